// Package member assembles the member area views from the data service:
// loyalty standing, point activity, order history, preorders and addresses.
package member

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/mydasteran/portal/internal/datasvc"
	"github.com/mydasteran/portal/internal/loyalty"
	"github.com/mydasteran/portal/internal/production"
)

var (
	ErrCustomerNotFound = errors.New("customer not found")
	ErrOrderNotFound    = errors.New("order not found")
	ErrAddressNotFound  = errors.New("address not found")
)

const (
	orderTypePreorder = "preorder"
	paymentConfirmed  = "confirmed"
	dashboardActivity = 10
)

// Service reads and writes member data. It is safe for concurrent use when
// the underlying data service is.
type Service struct {
	data       datasvc.Service
	prod       production.Client
	now        func() time.Time
	thresholds loyalty.Thresholds
	loc        *time.Location
	log        *zap.Logger
	validate   *validator.Validate
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithThresholds(th loyalty.Thresholds) Option {
	return func(s *Service) { s.thresholds = th }
}

// WithLocation sets the zone used for calendar months and zone-less timestamps.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func WithLogger(log *zap.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// NewService builds a Service. prod may be nil, in which case preorders carry
// no production progress.
func NewService(data datasvc.Service, prod production.Client, opts ...Option) *Service {
	s := &Service{
		data:       data,
		prod:       prod,
		now:        time.Now,
		thresholds: loyalty.DefaultThresholds(),
		loc:        jakarta(),
		log:        zap.NewNop(),
		validate:   validator.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func jakarta() *time.Location {
	loc, err := time.LoadLocation("Asia/Jakarta")
	if err != nil {
		return time.FixedZone("WIB", 7*60*60)
	}
	return loc
}

// Location is the zone months are computed in.
func (s *Service) Location() *time.Location { return s.loc }

// Now is the service clock in the service location.
func (s *Service) Now() time.Time { return s.now().In(s.loc) }

type Customer struct {
	ID         string
	AuthUserID string
	Name       string
	Phone      string
}

// DisplayPhone is the customer's phone in display form.
func (c Customer) DisplayPhone() string { return FormatPhone(c.Phone) }

func (s *Service) CustomerByAuthUser(ctx context.Context, authUserID string) (Customer, error) {
	if authUserID == "" {
		return Customer{}, ErrCustomerNotFound
	}
	rec, err := s.data.Single(ctx, datasvc.TableCustomers, datasvc.Where(datasvc.Eq("auth_user_id", authUserID)))
	if errors.Is(err, datasvc.ErrNotFound) {
		return Customer{}, ErrCustomerNotFound
	}
	if err != nil {
		return Customer{}, fmt.Errorf("load customer: %w", err)
	}
	return Customer{
		ID:         rec.String("id"),
		AuthUserID: rec.String("auth_user_id"),
		Name:       rec.String("name"),
		Phone:      rec.String("phone_number"),
	}, nil
}

// monthRange returns [start, end) of the calendar month in loc, as UTC
// timestamps comparable with stored created_at values.
func (s *Service) monthRange(year int, month time.Month) (string, string) {
	start := time.Date(year, month, 1, 0, 0, 0, 0, s.loc)
	return datasvc.Timestamp(start), datasvc.Timestamp(start.AddDate(0, 1, 0))
}

func (s *Service) parseTime(rec datasvc.Record, col string) (time.Time, bool) {
	if t, ok := rec[col].(time.Time); ok {
		return t.In(s.loc), !t.IsZero()
	}
	raw := rec.String(col)
	// Stored timestamps without a zone are UTC.
	t, ok := loyalty.ParseTimestamp(raw, time.UTC)
	if !ok {
		return time.Time{}, false
	}
	return t.In(s.loc), true
}

var nonDigits = regexp.MustCompile(`\D`)

// FormatPhone renders an Indonesian number as "+62 812-3456-7890". Numbers
// that are not +62 or are too short are returned unchanged.
func FormatPhone(raw string) string {
	digits := nonDigits.ReplaceAllString(raw, "")
	if len(digits) < 2 || digits[:2] != "62" {
		return raw
	}
	base := digits[2:]
	if len(base) < 9 {
		return raw
	}
	return "+62 " + base[:3] + "-" + base[3:7] + "-" + base[7:]
}

func ceilDays(d time.Duration) int {
	return int(math.Ceil(d.Hours() / 24))
}
