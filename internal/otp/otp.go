// Package otp implements phone-number login with one-time passcodes.
package otp

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mydasteran/portal/internal/datasvc"
)

var (
	ErrInvalidPhone     = errors.New("invalid phone number")
	ErrUnknownPhone     = errors.New("phone number is not registered")
	ErrInvalidCode      = errors.New("invalid passcode")
	ErrChallengeExpired = errors.New("passcode expired")
	ErrTooManyAttempts  = errors.New("too many wrong passcodes")
)

const (
	codeDigits     = 6
	minPhoneDigits = 10
	handleDomain   = "otp.mydasteran.id"
	// maxAttempts wrong codes consume a challenge.
	maxAttempts = 5
)

var (
	separators = regexp.MustCompile(`[\s\-.()]`)
	nonDigits  = regexp.MustCompile(`\D`)
)

// NormalizePhone converts a user-typed Indonesian number to 62xxxxxxxx form.
func NormalizePhone(raw string) string {
	phone := separators.ReplaceAllString(strings.TrimSpace(raw), "")
	phone = strings.TrimPrefix(phone, "+")
	phone = nonDigits.ReplaceAllString(phone, "")

	switch {
	case strings.HasPrefix(phone, "62"):
		return phone
	case strings.HasPrefix(phone, "0"):
		return "62" + phone[1:]
	case strings.HasPrefix(phone, "8"):
		return "62" + phone
	default:
		return phone
	}
}

// Challenge is an issued passcode. Handle identifies it on sign in.
type Challenge struct {
	Handle    string
	Phone     string
	ExpiresAt time.Time
}

// Identity is a signed-in member.
type Identity struct {
	AuthUserID string
	CustomerID string
	Phone      string
}

type Issuer interface {
	Request(ctx context.Context, phone string) (Challenge, error)
}

type Authenticator interface {
	SignIn(ctx context.Context, handle, code string) (Identity, error)
}

// Sender delivers a passcode to a phone number.
type Sender interface {
	Send(ctx context.Context, phone, code string) error
}

// LogSender records issued passcodes in the log. The code itself is only
// written when RevealCode is set, which is meant for development.
type LogSender struct {
	Log        *zap.Logger
	RevealCode bool
}

func (s LogSender) Send(_ context.Context, phone, code string) error {
	fields := []zap.Field{zap.String("phone", phone)}
	if s.RevealCode {
		fields = append(fields, zap.String("code", code))
	}
	s.Log.Info("otp issued", fields...)
	return nil
}

// LocalService issues and verifies passcodes against the data service.
type LocalService struct {
	data   datasvc.Service
	sender Sender
	ttl    time.Duration
	now    func() time.Time
	code   func() (string, error)
	log    *zap.Logger
}

type Option func(*LocalService)

func WithClock(now func() time.Time) Option {
	return func(s *LocalService) { s.now = now }
}

// WithCodeSource replaces the random code generator.
func WithCodeSource(fn func() (string, error)) Option {
	return func(s *LocalService) { s.code = fn }
}

func WithLogger(log *zap.Logger) Option {
	return func(s *LocalService) { s.log = log }
}

func NewLocalService(data datasvc.Service, sender Sender, ttl time.Duration, opts ...Option) *LocalService {
	s := &LocalService{
		data:   data,
		sender: sender,
		ttl:    ttl,
		now:    time.Now,
		code:   randomCode,
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handle is the sign-in handle for a normalized phone number.
func Handle(phone string) string {
	return phone + "@" + handleDomain
}

func (s *LocalService) Request(ctx context.Context, raw string) (Challenge, error) {
	phone := NormalizePhone(raw)
	if len(phone) < minPhoneDigits {
		return Challenge{}, ErrInvalidPhone
	}

	_, err := s.data.Single(ctx, datasvc.TableCustomers, datasvc.Where(datasvc.Eq("phone_number", phone)))
	if errors.Is(err, datasvc.ErrNotFound) {
		return Challenge{}, ErrUnknownPhone
	}
	if err != nil {
		return Challenge{}, fmt.Errorf("look up customer: %w", err)
	}

	code, err := s.code()
	if err != nil {
		return Challenge{}, fmt.Errorf("generate passcode: %w", err)
	}

	now := s.now()
	ch := Challenge{Handle: Handle(phone), Phone: phone, ExpiresAt: now.Add(s.ttl)}
	_, err = s.data.Insert(ctx, datasvc.TableOTPChallenges, datasvc.Record{
		"handle":       ch.Handle,
		"phone_number": phone,
		"code_hash":    hashCode(code),
		"expires_at":   datasvc.Timestamp(ch.ExpiresAt),
		"consumed":     false,
		"attempts":     0,
		"created_at":   datasvc.Timestamp(now),
	})
	if err != nil {
		return Challenge{}, fmt.Errorf("store challenge: %w", err)
	}

	if err := s.sender.Send(ctx, phone, code); err != nil {
		return Challenge{}, fmt.Errorf("send passcode: %w", err)
	}
	return ch, nil
}

func (s *LocalService) SignIn(ctx context.Context, handle, code string) (Identity, error) {
	code = strings.TrimSpace(code)
	if handle == "" || code == "" {
		return Identity{}, ErrInvalidCode
	}

	rec, err := s.data.Single(ctx, datasvc.TableOTPChallenges, datasvc.Query{
		Filters: []datasvc.Condition{
			datasvc.Eq("handle", handle),
			datasvc.Eq("consumed", false),
		},
		Order: []datasvc.Order{datasvc.Desc("created_at")},
	})
	if errors.Is(err, datasvc.ErrNotFound) {
		return Identity{}, ErrInvalidCode
	}
	if err != nil {
		return Identity{}, fmt.Errorf("load challenge: %w", err)
	}

	expiresAt, ok := rec.Time("expires_at")
	if !ok || !s.now().Before(expiresAt) {
		return Identity{}, ErrChallengeExpired
	}
	if subtle.ConstantTimeCompare([]byte(hashCode(code)), []byte(rec.String("code_hash"))) != 1 {
		return Identity{}, s.recordFailure(ctx, rec)
	}

	n, err := s.data.Update(ctx, datasvc.TableOTPChallenges,
		[]datasvc.Condition{datasvc.Eq("id", rec.String("id")), datasvc.Eq("consumed", false)},
		datasvc.Record{"consumed": true},
	)
	if err != nil {
		return Identity{}, fmt.Errorf("consume challenge: %w", err)
	}
	if n == 0 {
		return Identity{}, ErrInvalidCode
	}

	phone := rec.String("phone_number")
	cust, err := s.data.Single(ctx, datasvc.TableCustomers, datasvc.Where(datasvc.Eq("phone_number", phone)))
	if errors.Is(err, datasvc.ErrNotFound) {
		return Identity{}, ErrUnknownPhone
	}
	if err != nil {
		return Identity{}, fmt.Errorf("look up customer: %w", err)
	}

	id := Identity{AuthUserID: cust.String("auth_user_id"), CustomerID: cust.String("id"), Phone: phone}
	if id.AuthUserID == "" {
		id.AuthUserID = uuid.NewString()
		if _, err := s.data.Update(ctx, datasvc.TableCustomers,
			[]datasvc.Condition{datasvc.Eq("id", id.CustomerID)},
			datasvc.Record{"auth_user_id": id.AuthUserID},
		); err != nil {
			return Identity{}, fmt.Errorf("link auth user: %w", err)
		}
		s.log.Info("linked auth user", zap.String("customer_id", id.CustomerID))
	}
	return id, nil
}

// recordFailure counts a wrong code against the challenge and consumes it
// once maxAttempts is reached. Updates are conditional on the count read, and
// a lost race reloads the row, so every concurrent guess is counted.
func (s *LocalService) recordFailure(ctx context.Context, rec datasvc.Record) error {
	for {
		current := rec.Int("attempts")
		attempts := current + 1
		patch := datasvc.Record{"attempts": attempts}
		if attempts >= maxAttempts {
			patch["consumed"] = true
		}

		n, err := s.data.Update(ctx, datasvc.TableOTPChallenges,
			[]datasvc.Condition{
				datasvc.Eq("id", rec.String("id")),
				datasvc.Eq("consumed", false),
				datasvc.Eq("attempts", current),
			},
			patch,
		)
		if err != nil {
			return fmt.Errorf("record failed attempt: %w", err)
		}
		if n > 0 {
			if attempts >= maxAttempts {
				s.log.Warn("otp challenge locked", zap.String("phone", rec.String("phone_number")))
				return ErrTooManyAttempts
			}
			return ErrInvalidCode
		}

		rec, err = s.data.Single(ctx, datasvc.TableOTPChallenges, datasvc.Where(datasvc.Eq("id", rec.String("id"))))
		if err != nil {
			return fmt.Errorf("reload challenge: %w", err)
		}
		if rec.Bool("consumed") {
			return ErrInvalidCode
		}
	}
}

func hashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

func randomCode() (string, error) {
	limit := big.NewInt(1_000_000)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()), nil
}
