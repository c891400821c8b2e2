package member

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mydasteran/portal/internal/datasvc"
	"github.com/mydasteran/portal/internal/loyalty"
)

// Account is a member's loyalty account. Tier is the label stored by the
// backend; the computed tier lives in Dashboard.Standing.
type Account struct {
	ID            string
	PointsBalance int
	Tier          string
	EligibleSpend float64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Activity is one loyalty transaction annotated with its expiry status.
type Activity struct {
	ID          string
	Type        string
	TypeLabel   string
	Points      int
	Description string
	OrderID     string
	OrderNumber string
	CreatedAt   time.Time
	Expiry      loyalty.ExpiryStatus
}

type Dashboard struct {
	Customer Customer
	// Account is nil when the member has not activated loyalty.
	Account  *Account
	Standing loyalty.Standing
	Activity []Activity
	Year     int
	Month    time.Month
}

func (s *Service) Dashboard(ctx context.Context, c Customer) (Dashboard, error) {
	now := s.Now()
	d := Dashboard{Customer: c, Year: now.Year(), Month: now.Month()}

	acc, err := s.account(ctx, c.ID)
	if errors.Is(err, datasvc.ErrNotFound) {
		return d, nil
	}
	if err != nil {
		return Dashboard{}, err
	}
	d.Account = &acc
	d.Standing = loyalty.Evaluate(acc.EligibleSpend, s.thresholds)

	activity, err := s.activity(ctx, c.ID, now.Year(), now.Month(), dashboardActivity)
	if err != nil {
		s.log.Warn("load loyalty activity", zap.String("customer_id", c.ID), zap.Error(err))
		return d, nil
	}
	d.Activity = activity
	return d, nil
}

// PointsHistory lists the loyalty activity of one calendar month, newest first.
func (s *Service) PointsHistory(ctx context.Context, customerID string, year int, month time.Month) ([]Activity, error) {
	return s.activity(ctx, customerID, year, month, 0)
}

func (s *Service) account(ctx context.Context, customerID string) (Account, error) {
	rec, err := s.data.Single(ctx, datasvc.TableLoyaltyAccounts, datasvc.Where(datasvc.Eq("customer_id", customerID)))
	if err != nil {
		if errors.Is(err, datasvc.ErrNotFound) {
			return Account{}, err
		}
		return Account{}, fmt.Errorf("load loyalty account: %w", err)
	}

	acc := Account{
		ID:            rec.String("id"),
		PointsBalance: rec.Int("points_balance"),
		Tier:          rec.String("tier"),
		EligibleSpend: rec.Float("total_eligible_amount"),
	}
	acc.CreatedAt, _ = s.parseTime(rec, "created_at")
	acc.UpdatedAt, _ = s.parseTime(rec, "updated_at")
	return acc, nil
}

func (s *Service) activity(ctx context.Context, customerID string, year int, month time.Month, limit int) ([]Activity, error) {
	from, to := s.monthRange(year, month)
	recs, err := s.data.Select(ctx, datasvc.TableLoyaltyTransactions, datasvc.Query{
		Filters: []datasvc.Condition{
			datasvc.Eq("customer_id", customerID),
			datasvc.Gte("created_at", from),
			datasvc.Lt("created_at", to),
		},
		Order: []datasvc.Order{datasvc.Desc("created_at")},
		Limit: limit,
	})
	if err != nil {
		return nil, fmt.Errorf("select loyalty transactions: %w", err)
	}

	now := s.now()
	out := make([]Activity, 0, len(recs))
	for _, r := range recs {
		a := Activity{
			ID:          r.String("id"),
			Type:        r.String("type"),
			TypeLabel:   r.String("type_label"),
			Points:      r.Int("points"),
			Description: r.String("description"),
			OrderID:     r.String("order_id"),
			OrderNumber: r.String("order_number"),
		}
		a.CreatedAt, _ = s.parseTime(r, "created_at")

		var expiresAt *time.Time
		if t, ok := s.parseTime(r, "expires_at"); ok {
			expiresAt = &t
		}
		a.Expiry = loyalty.Annotate(a.Points, expiresAt, now)
		out = append(out, a)
	}
	return out, nil
}
