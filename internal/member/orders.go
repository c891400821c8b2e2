package member

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mydasteran/portal/internal/datasvc"
	"github.com/mydasteran/portal/internal/production"
)

type Item struct {
	ID          string
	ProductName string
	Quantity    int
	UnitPrice   float64
	Subtotal    float64
}

type Order struct {
	ID               string
	Number           string
	InvoiceNumber    string
	Source           string
	Type             string
	Status           string
	PaymentStatus    string
	Subtotal         float64
	ShippingCost     float64
	GrandTotal       float64
	PointsEarned     int
	PointsRedeemed   int
	PaymentMethod    string
	ShippingProvider string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	Items            []Item
}

// Ref is the reference the production floor knows the order by.
func (o Order) Ref() string {
	if o.InvoiceNumber != "" {
		return o.InvoiceNumber
	}
	return o.Number
}

type Payment struct {
	ID        string
	Amount    float64
	Status    string
	CreatedAt time.Time
}

// PaymentSummary totals confirmed payments against the order total.
type PaymentSummary struct {
	Paid     float64
	Shortage float64
	// FullyPaid is set only when the shortage is exactly zero and something
	// was paid.
	FullyPaid bool
}

func summarizePayments(grandTotal float64, payments []Payment) PaymentSummary {
	var paid float64
	for _, p := range payments {
		if p.Status == paymentConfirmed {
			paid += p.Amount
		}
	}
	shortage := grandTotal - paid
	return PaymentSummary{
		Paid:      paid,
		Shortage:  shortage,
		FullyPaid: shortage == 0 && paid > 0,
	}
}

// Stage is the step of the preorder timeline.
type Stage int

const (
	StageOrdered Stage = iota + 1
	StageProduction
	StageShipping
)

type Preorder struct {
	Order    Order
	Payments []Payment
	Summary  PaymentSummary
}

type PreorderDetail struct {
	Preorder
	TargetProduction *time.Time
	TargetShipping   *time.Time
	Stage            Stage
	// DaysToProduction is the whole days until TargetProduction, rounded
	// up. Zero means today, negative means late.
	DaysToProduction int
	Production       []production.ProductProgress
}

// OrderHistory lists the orders placed in one calendar month, newest first.
func (s *Service) OrderHistory(ctx context.Context, customerID string, year int, month time.Month) ([]Order, error) {
	from, to := s.monthRange(year, month)
	recs, err := s.data.Select(ctx, datasvc.TableOrders, datasvc.Query{
		Filters: []datasvc.Condition{
			datasvc.Eq("customer_id", customerID),
			datasvc.Gte("created_at", from),
			datasvc.Lt("created_at", to),
		},
		Order: []datasvc.Order{datasvc.Desc("created_at")},
	})
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	return s.ordersWithItems(ctx, recs)
}

// Order loads one order of the customer. Orders of other customers are
// reported as ErrOrderNotFound.
func (s *Service) Order(ctx context.Context, customerID, orderID string) (Order, error) {
	rec, err := s.data.Single(ctx, datasvc.TableOrders, datasvc.Where(
		datasvc.Eq("id", orderID),
		datasvc.Eq("customer_id", customerID),
	))
	if errors.Is(err, datasvc.ErrNotFound) {
		return Order{}, ErrOrderNotFound
	}
	if err != nil {
		return Order{}, fmt.Errorf("load order: %w", err)
	}

	o := s.order(rec)
	if o.Items, err = s.items(ctx, o.ID); err != nil {
		return Order{}, err
	}
	return o, nil
}

// Preorders lists open preorders, newest first, with their payments.
func (s *Service) Preorders(ctx context.Context, customerID string) ([]Preorder, error) {
	recs, err := s.data.Select(ctx, datasvc.TableOrders, datasvc.Query{
		Filters: []datasvc.Condition{
			datasvc.Eq("customer_id", customerID),
			datasvc.Eq("order_type", orderTypePreorder),
			datasvc.Neq("status", "completed"),
			datasvc.Neq("status", "cancelled"),
		},
		Order: []datasvc.Order{datasvc.Desc("created_at")},
	})
	if err != nil {
		return nil, fmt.Errorf("select preorders: %w", err)
	}

	orders, err := s.ordersWithItems(ctx, recs)
	if err != nil {
		return nil, err
	}

	out := make([]Preorder, 0, len(orders))
	for _, o := range orders {
		payments, err := s.payments(ctx, o.ID)
		if err != nil {
			s.log.Warn("load preorder payments", zap.String("order_id", o.ID), zap.Error(err))
			payments = nil
		}
		out = append(out, Preorder{Order: o, Payments: payments, Summary: summarizePayments(o.GrandTotal, payments)})
	}
	return out, nil
}

// Preorder loads one preorder with its timeline and production progress.
// Production status failures are logged and leave Production empty.
func (s *Service) Preorder(ctx context.Context, customerID, orderID string) (PreorderDetail, error) {
	o, err := s.Order(ctx, customerID, orderID)
	if err != nil {
		return PreorderDetail{}, err
	}
	if o.Type != orderTypePreorder {
		return PreorderDetail{}, ErrOrderNotFound
	}

	payments, err := s.payments(ctx, o.ID)
	if err != nil {
		return PreorderDetail{}, err
	}

	d := PreorderDetail{
		Preorder: Preorder{Order: o, Payments: payments, Summary: summarizePayments(o.GrandTotal, payments)},
		Stage:    StageProduction,
	}
	if d.Summary.Shortage <= 0 {
		d.Stage = StageShipping
	}

	rec, err := s.data.Single(ctx, datasvc.TablePreorderDetails, datasvc.Where(datasvc.Eq("order_id", o.ID)))
	switch {
	case err == nil:
		if t, ok := s.parseTime(rec, "target_production_date"); ok {
			d.TargetProduction = &t
			d.DaysToProduction = ceilDays(t.Sub(s.now()))
		}
		if t, ok := s.parseTime(rec, "target_shipping_date"); ok {
			d.TargetShipping = &t
		}
	case !errors.Is(err, datasvc.ErrNotFound):
		return PreorderDetail{}, fmt.Errorf("load preorder details: %w", err)
	}

	if s.prod != nil && o.Ref() != "" {
		stages, err := s.prod.Status(ctx, o.Ref())
		if err != nil {
			s.log.Warn("fetch production status", zap.String("ref", o.Ref()), zap.Error(err))
		} else {
			d.Production = production.Summarize(stages)
		}
	}
	return d, nil
}

func (s *Service) ordersWithItems(ctx context.Context, recs []datasvc.Record) ([]Order, error) {
	out := make([]Order, 0, len(recs))
	for _, r := range recs {
		o := s.order(r)
		items, err := s.items(ctx, o.ID)
		if err != nil {
			return nil, err
		}
		o.Items = items
		out = append(out, o)
	}
	return out, nil
}

func (s *Service) order(r datasvc.Record) Order {
	o := Order{
		ID:               r.String("id"),
		Number:           r.String("order_number"),
		InvoiceNumber:    r.String("invoice_number"),
		Source:           r.String("source"),
		Type:             r.String("order_type"),
		Status:           r.String("status"),
		PaymentStatus:    r.String("payment_status"),
		Subtotal:         r.Float("subtotal"),
		ShippingCost:     r.Float("shipping_cost"),
		GrandTotal:       r.Float("grand_total"),
		PointsEarned:     r.Int("loyalty_points_earned"),
		PointsRedeemed:   r.Int("loyalty_redeem_points"),
		PaymentMethod:    r.String("payment_method_name"),
		ShippingProvider: r.String("shipping_provider_name"),
	}
	o.CreatedAt, _ = s.parseTime(r, "created_at")
	o.UpdatedAt, _ = s.parseTime(r, "updated_at")
	return o
}

func (s *Service) items(ctx context.Context, orderID string) ([]Item, error) {
	recs, err := s.data.Select(ctx, datasvc.TableOrderItems, datasvc.Query{
		Filters: []datasvc.Condition{datasvc.Eq("order_id", orderID)},
		Order:   []datasvc.Order{datasvc.Asc("created_at")},
	})
	if err != nil {
		return nil, fmt.Errorf("select order items: %w", err)
	}

	items := make([]Item, 0, len(recs))
	for _, r := range recs {
		items = append(items, Item{
			ID:          r.String("id"),
			ProductName: r.String("product_name_snapshot"),
			Quantity:    r.Int("quantity"),
			UnitPrice:   r.Float("unit_price"),
			Subtotal:    r.Float("subtotal"),
		})
	}
	return items, nil
}

func (s *Service) payments(ctx context.Context, orderID string) ([]Payment, error) {
	recs, err := s.data.Select(ctx, datasvc.TablePayments, datasvc.Query{
		Filters: []datasvc.Condition{datasvc.Eq("order_id", orderID)},
		Order:   []datasvc.Order{datasvc.Asc("created_at")},
	})
	if err != nil {
		return nil, fmt.Errorf("select payments: %w", err)
	}

	out := make([]Payment, 0, len(recs))
	for _, r := range recs {
		p := Payment{
			ID:     r.String("id"),
			Amount: r.Float("amount"),
			Status: r.String("status"),
		}
		p.CreatedAt, _ = s.parseTime(r, "created_at")
		out = append(out, p)
	}
	return out, nil
}
