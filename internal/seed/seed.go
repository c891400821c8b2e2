package seed

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mydasteran/portal/internal/datasvc"
	"github.com/mydasteran/portal/internal/loyalty"
)

const (
	demoCustomerID = "demo-customer"
	demoAccountID  = "demo-loyalty"
	demoOrderID    = "demo-order-1"
	demoPreorderID = "demo-preorder-1"
	demoInvoice    = "INV-DEMO-PO-1"
	demoAddressID  = "demo-address-1"
	demoSpend      = 150_000_000
)

// Config contains the values required by the demo seed.
type Config struct {
	Name  string
	Phone string
	// Now anchors the demo dates so the dashboard shows current activity.
	Now time.Time
}

// Stats contains seed operation counters.
type Stats struct {
	Inserts int
	Updates int
}

type row struct {
	table string
	id    string
	cols  map[string]any
}

// Run inserts the demo member data in an idempotent way. Existing rows are
// left alone, except that a stale loyalty tier label is recomputed.
func Run(db *sql.DB, cfg Config) (Stats, error) {
	if cfg.Name == "" {
		cfg.Name = "Member Demo"
	}
	if cfg.Phone == "" {
		cfg.Phone = "6281234567890"
	}
	if cfg.Now.IsZero() {
		cfg.Now = time.Now()
	}

	tx, err := db.Begin()
	if err != nil {
		return Stats{}, fmt.Errorf("begin seed transaction: %w", err)
	}

	stats := Stats{}
	for _, r := range demoRows(cfg) {
		if err := ensureRow(tx, r, &stats); err != nil {
			_ = tx.Rollback()
			return Stats{}, err
		}
	}
	if err := syncTier(tx, &stats); err != nil {
		_ = tx.Rollback()
		return Stats{}, err
	}

	if err := tx.Commit(); err != nil {
		return Stats{}, fmt.Errorf("commit seed transaction: %w", err)
	}

	return stats, nil
}

func demoRows(cfg Config) []row {
	now := cfg.Now.UTC()
	ts := func(t time.Time) string { return datasvc.Timestamp(t) }
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	// Points earned this month expire at the start of the month after next.
	expiry := monthStart.AddDate(0, 2, 0)

	return []row{
		{datasvc.TableCustomers, demoCustomerID, map[string]any{
			"name": cfg.Name, "phone_number": cfg.Phone, "created_at": ts(now.AddDate(-1, 0, 0)),
		}},
		{datasvc.TableLoyaltyAccounts, demoAccountID, map[string]any{
			"customer_id": demoCustomerID, "points_balance": 1500, "tier": loyalty.TierBase.Label(),
			"total_eligible_amount": demoSpend, "created_at": ts(now.AddDate(-1, 0, 0)),
		}},
		{datasvc.TableOrders, demoOrderID, map[string]any{
			"customer_id": demoCustomerID, "order_number": "ORD-DEMO-1", "invoice_number": "INV-DEMO-1",
			"source": "website", "order_type": "regular", "status": "completed", "payment_status": "paid",
			"subtotal": 1_200_000, "shipping_cost": 35_000, "grand_total": 1_235_000,
			"loyalty_points_earned": 123, "payment_method_name": "Transfer BCA",
			"shipping_provider_name": "JNE", "created_at": ts(now.Add(-time.Hour)),
		}},
		{datasvc.TableOrderItems, "demo-order-1-item-1", map[string]any{
			"order_id": demoOrderID, "product_name_snapshot": "Daster Pendek Motif Bunga", "quantity": 12,
			"unit_price": 60_000, "subtotal": 720_000, "created_at": ts(now.Add(-time.Hour)),
		}},
		{datasvc.TableOrderItems, "demo-order-1-item-2", map[string]any{
			"order_id": demoOrderID, "product_name_snapshot": "Dress Panjang Polos", "quantity": 6,
			"unit_price": 80_000, "subtotal": 480_000, "created_at": ts(now.Add(-time.Hour)),
		}},
		{datasvc.TableLoyaltyTransactions, "demo-tx-earn", map[string]any{
			"customer_id": demoCustomerID, "type": "earn", "type_label": "Poin Belanja", "points": 123,
			"description": "Poin dari pesanan ORD-DEMO-1", "order_id": demoOrderID, "order_number": "ORD-DEMO-1",
			"expires_at": ts(expiry), "created_at": ts(now.Add(-time.Hour)),
		}},
		{datasvc.TableLoyaltyTransactions, "demo-tx-redeem", map[string]any{
			"customer_id": demoCustomerID, "type": "redeem", "type_label": "Tukar Poin", "points": -50,
			"description": "Potongan belanja", "created_at": ts(now.Add(-30 * time.Minute)),
		}},
		{datasvc.TableOrders, demoPreorderID, map[string]any{
			"customer_id": demoCustomerID, "order_number": "PO-DEMO-1", "invoice_number": demoInvoice,
			"source": "whatsapp", "order_type": "preorder", "status": "production", "payment_status": "partial",
			"subtotal": 8_750_000, "grand_total": 8_750_000, "created_at": ts(now.AddDate(0, 0, -10)),
		}},
		{datasvc.TableOrderItems, "demo-preorder-1-item-1", map[string]any{
			"order_id": demoPreorderID, "product_name_snapshot": "Gamis Aisyah", "quantity": 100,
			"unit_price": 87_500, "subtotal": 8_750_000, "created_at": ts(now.AddDate(0, 0, -10)),
		}},
		{datasvc.TablePayments, "demo-preorder-1-dp", map[string]any{
			"order_id": demoPreorderID, "amount": 4_000_000, "status": "confirmed", "created_at": ts(now.AddDate(0, 0, -10)),
		}},
		{datasvc.TablePayments, "demo-preorder-1-second", map[string]any{
			"order_id": demoPreorderID, "amount": 2_000_000, "status": "pending", "created_at": ts(now.AddDate(0, 0, -2)),
		}},
		{datasvc.TablePreorderDetails, "demo-preorder-1-details", map[string]any{
			"order_id": demoPreorderID, "target_production_date": now.AddDate(0, 0, 14).Format("2006-01-02"),
			"target_shipping_date": now.AddDate(0, 0, 21).Format("2006-01-02"), "created_at": ts(now.AddDate(0, 0, -10)),
		}},
		{datasvc.TableProductionStatus, "demo-prod-cutting", map[string]any{
			"ref_order_id": demoInvoice, "product_name": "Gamis Aisyah", "status": "cutting", "total_qty": 40,
			"created_at": ts(now.AddDate(0, 0, -5)),
		}},
		{datasvc.TableProductionStatus, "demo-prod-sewing", map[string]any{
			"ref_order_id": demoInvoice, "product_name": "Gamis Aisyah", "status": "sewing", "total_qty": 35,
			"created_at": ts(now.AddDate(0, 0, -4)),
		}},
		{datasvc.TableProductionStatus, "demo-prod-done", map[string]any{
			"ref_order_id": demoInvoice, "product_name": "Gamis Aisyah", "status": "done", "total_qty": 25,
			"created_at": ts(now.AddDate(0, 0, -3)),
		}},
		{datasvc.TableShippingAddresses, demoAddressID, map[string]any{
			"customer_id": demoCustomerID, "label": "Rumah", "recipient_name": cfg.Name,
			"phone_number": cfg.Phone, "address_line1": "Jl. Kenjeran No. 12", "kecamatan": "Bulak",
			"city": "Surabaya", "province": "Jawa Timur", "postal_code": "60121", "is_default": true,
			"created_at": ts(now.AddDate(-1, 0, 0)),
		}},
	}
}

func ensureRow(tx *sql.Tx, r row, stats *Stats) error {
	var exists bool
	if err := tx.QueryRow(`SELECT EXISTS(SELECT 1 FROM `+r.table+` WHERE id = ? LIMIT 1)`, r.id).Scan(&exists); err != nil {
		return fmt.Errorf("check %s %s existence: %w", r.table, r.id, err)
	}
	if exists {
		return nil
	}

	cols := make([]string, 0, len(r.cols)+1)
	for c := range r.cols {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	cols = append([]string{"id"}, cols...)

	args := make([]any, len(cols))
	args[0] = r.id
	for i, c := range cols[1:] {
		args[i+1] = r.cols[c]
	}

	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`,
		r.table, strings.Join(cols, ", "), strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", "))
	if _, err := tx.Exec(query, args...); err != nil {
		return fmt.Errorf("insert %s %s: %w", r.table, r.id, err)
	}
	stats.Inserts++
	return nil
}

// syncTier rewrites the stored tier label when it no longer matches the
// eligible spend.
func syncTier(tx *sql.Tx, stats *Stats) error {
	var label string
	var spend float64
	err := tx.QueryRow(`SELECT tier, total_eligible_amount FROM loyalty_accounts WHERE id = ?`, demoAccountID).Scan(&label, &spend)
	if err != nil {
		return fmt.Errorf("read demo loyalty account: %w", err)
	}

	want := loyalty.Classify(spend, loyalty.DefaultThresholds()).Label()
	if label == want {
		return nil
	}
	if _, err := tx.Exec(`UPDATE loyalty_accounts SET tier = ?, updated_at = datetime('now') WHERE id = ?`, want, demoAccountID); err != nil {
		return fmt.Errorf("update demo loyalty tier: %w", err)
	}
	stats.Updates++
	return nil
}
