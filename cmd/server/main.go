package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/schema"
	"go.uber.org/zap"

	"github.com/mydasteran/portal/internal/config"
	"github.com/mydasteran/portal/internal/datasvc"
	"github.com/mydasteran/portal/internal/db"
	"github.com/mydasteran/portal/internal/logging"
	"github.com/mydasteran/portal/internal/member"
	"github.com/mydasteran/portal/internal/metrics"
	"github.com/mydasteran/portal/internal/migrations"
	"github.com/mydasteran/portal/internal/otp"
	"github.com/mydasteran/portal/internal/pricing"
	"github.com/mydasteran/portal/internal/production"
	"github.com/mydasteran/portal/internal/seed"
	"github.com/mydasteran/portal/internal/whatsapp"
	"github.com/mydasteran/portal/web"
)

type otpService interface {
	otp.Issuer
	otp.Authenticator
}

type server struct {
	cfg      config.Config
	log      *zap.Logger
	members  *member.Service
	otp      otpService
	sessions *sessionManager
	rates    pricing.RateBook
	metrics  *metrics.Metrics
	pages    map[string]*template.Template
	static   fs.FS
	forms    *schema.Decoder
	validate *validator.Validate
	// ping checks the database for /healthz. Nil means always healthy.
	ping func(context.Context) error
}

type baseViewData struct {
	ErrorMessage   string
	SuccessMessage string
	Member         *member.Customer
	ContactLink    string
}

func main() {
	cfg := config.Load()

	logger, err := logging.New(cfg.LogLevel, cfg.IsDev())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	for _, w := range cfg.Warnings() {
		logger.Warn("config", zap.String("warning", w))
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer database.Close()

	if cfg.IsDev() {
		if err := migrations.UpWithLogger(database, cfg.MigrationsDir, logger.Named("migrations")); err != nil {
			return fmt.Errorf("run database migrations: %w", err)
		}
	}
	if cfg.IsDev() || cfg.SeedDemo {
		stats, err := seed.Run(database, seed.Config{})
		if err != nil {
			return fmt.Errorf("seed demo data: %w", err)
		}
		logger.Info("demo data ready", zap.Int("inserts", stats.Inserts), zap.Int("updates", stats.Updates))
	}

	rates, err := pricing.LoadRateBookFile(cfg.RatesPath)
	if err != nil {
		return err
	}
	if _, err := rates.Strategy(cfg.CalculatorStrategy); err != nil {
		return err
	}

	data := datasvc.NewSQLStore(database)

	var prod production.Client = production.NewStoreClient(data)
	if cfg.ProductionStatusURL != "" {
		prod = production.NewHTTPClient(cfg.ProductionStatusURL, cfg.ProductionStatusKey, nil, logger.Named("production"))
	}

	secret := cfg.SessionSecret
	if secret == "" {
		secret, err = ephemeralSecret()
		if err != nil {
			return err
		}
		logger.Warn("using an ephemeral session secret, sessions end on restart")
	}

	srv, err := newServer(cfg, logger,
		member.NewService(data, prod, member.WithLogger(logger.Named("member"))),
		otp.NewLocalService(data, otp.LogSender{Log: logger.Named("otp"), RevealCode: cfg.IsDev()}, cfg.OTPTTL, otp.WithLogger(logger.Named("otp"))),
		newSessionManager(secret, cfg.SessionTTL, !cfg.IsDev()),
		rates,
		metrics.New(),
	)
	if err != nil {
		return err
	}
	srv.ping = database.PingContext

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", httpServer.Addr), zap.String("env", cfg.Env))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func newServer(cfg config.Config, logger *zap.Logger, members *member.Service, otpSvc otpService,
	sessions *sessionManager, rates pricing.RateBook, m *metrics.Metrics) (*server, error) {
	pages, err := parseTemplates(web.FS)
	if err != nil {
		return nil, err
	}
	static, err := fs.Sub(web.FS, "static")
	if err != nil {
		return nil, fmt.Errorf("static assets: %w", err)
	}

	forms := schema.NewDecoder()
	forms.IgnoreUnknownKeys(true)

	return &server{
		cfg:      cfg,
		log:      logger,
		members:  members,
		otp:      otpSvc,
		sessions: sessions,
		rates:    rates,
		metrics:  m,
		pages:    pages,
		static:   static,
		forms:    forms,
		validate: validator.New(),
	}, nil
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.Middleware(s.log))
	r.Use(s.metrics.Middleware)
	r.Use(middleware.Recoverer)

	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(s.static))))
	r.Get("/", s.handleHome)
	r.Post("/b2b", s.handleBusinessInquiry)
	r.Get("/kalkulator", s.handleCalculator)
	r.Get("/api/estimate", s.handleEstimateAPI)
	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Route("/member", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/member/dashboard", http.StatusSeeOther)
		})
		r.Get("/login", s.handleLoginForm)
		r.Post("/login/otp", s.handleOTPRequest)
		r.Post("/login/verify", s.handleOTPVerify)
		r.Post("/logout", s.handleLogout)

		r.Group(func(r chi.Router) {
			r.Use(s.memberMiddleware)
			r.Get("/dashboard", s.handleDashboard)
			r.Get("/history", s.handleHistory)
			r.Get("/history/{orderID}", s.handleOrderDetail)
			r.Get("/preorder", s.handlePreorders)
			r.Get("/preorder/{orderID}", s.handlePreorderDetail)
			r.Get("/profile", s.handleProfile)
			r.Post("/profile/addresses", s.handleAddressCreate)
			r.Post("/profile/addresses/{id}", s.handleAddressUpdate)
			r.Post("/profile/addresses/{id}/default", s.handleAddressDefault)
			r.Post("/profile/addresses/{id}/delete", s.handleAddressDelete)
		})
	})

	return r
}

func (s *server) base(r *http.Request) baseViewData {
	b := baseViewData{ContactLink: whatsapp.Link(s.cfg.WhatsAppNumber, whatsapp.GeneralInquiryText())}
	if c, ok := currentCustomer(r); ok {
		b.Member = &c
	}
	return b
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.ping != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ping(ctx); err != nil {
			s.log.Error("health check", zap.Error(err))
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

func ephemeralSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
