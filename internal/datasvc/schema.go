package datasvc

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Tables known to the data service.
const (
	TableCustomers           = "customers"
	TableLoyaltyAccounts     = "loyalty_accounts"
	TableLoyaltyTransactions = "loyalty_transactions"
	TableOrders              = "orders"
	TableOrderItems          = "order_items"
	TablePayments            = "payments"
	TablePreorderDetails     = "preorder_details"
	TableShippingAddresses   = "shipping_addresses"
	TableOTPChallenges       = "otp_challenges"
	TableProductionStatus    = "production_status"
)

// schema lists the columns of each table. Identifiers are never interpolated
// into SQL unless they appear here.
var schema = map[string][]string{
	TableCustomers: {
		"id", "auth_user_id", "name", "phone_number", "created_at",
	},
	TableLoyaltyAccounts: {
		"id", "customer_id", "points_balance", "tier", "total_eligible_amount", "created_at", "updated_at",
	},
	TableLoyaltyTransactions: {
		"id", "customer_id", "type", "type_label", "points", "description", "order_id", "order_number",
		"expires_at", "created_at",
	},
	TableOrders: {
		"id", "customer_id", "order_number", "invoice_number", "source", "order_type", "status",
		"payment_status", "subtotal", "shipping_cost", "grand_total", "loyalty_points_earned",
		"loyalty_redeem_points", "payment_method_name", "shipping_provider_name", "created_at", "updated_at",
	},
	TableOrderItems: {
		"id", "order_id", "product_name_snapshot", "quantity", "unit_price", "subtotal", "created_at",
	},
	TablePayments: {
		"id", "order_id", "amount", "status", "created_at",
	},
	TablePreorderDetails: {
		"id", "order_id", "target_production_date", "target_shipping_date", "created_at",
	},
	TableShippingAddresses: {
		"id", "customer_id", "label", "recipient_name", "phone_number", "address_line1", "kecamatan",
		"city", "province", "postal_code", "is_default", "created_at", "updated_at",
	},
	TableOTPChallenges: {
		"id", "handle", "phone_number", "code_hash", "expires_at", "consumed", "attempts", "created_at",
	},
	TableProductionStatus: {
		"id", "ref_order_id", "product_name", "status", "total_qty", "created_at",
	},
}

var (
	errUnfilteredDelete = errors.New("delete without filters is not allowed")
	errUnfilteredUpdate = errors.New("update without filters is not allowed")
)

func checkTable(table string) error {
	if _, ok := schema[table]; !ok {
		return fmt.Errorf("unknown table %q", table)
	}
	return nil
}

func hasColumn(table, column string) bool {
	for _, c := range schema[table] {
		if c == column {
			return true
		}
	}
	return false
}

func checkColumns(table string, columns ...string) error {
	if err := checkTable(table); err != nil {
		return err
	}
	for _, c := range columns {
		if !hasColumn(table, c) {
			return fmt.Errorf("unknown column %q on table %q", c, table)
		}
	}
	return nil
}

func checkQuery(table string, q Query) error {
	if err := checkConditions(table, q.Filters); err != nil {
		return err
	}
	for _, o := range q.Order {
		if err := checkColumns(table, o.Column); err != nil {
			return err
		}
	}
	if q.Limit < 0 {
		return fmt.Errorf("negative limit %d", q.Limit)
	}
	return nil
}

func checkConditions(table string, filters []Condition) error {
	if err := checkTable(table); err != nil {
		return err
	}
	for _, f := range filters {
		if err := checkColumns(table, f.Column); err != nil {
			return err
		}
		switch f.Op {
		case OpEq, OpNeq, OpGte, OpLt:
		default:
			return fmt.Errorf("unsupported operator %q", f.Op)
		}
	}
	return nil
}

func checkRecord(table string, rec Record) error {
	cols := make([]string, 0, len(rec))
	for c := range rec {
		cols = append(cols, c)
	}
	return checkColumns(table, cols...)
}

// prepareInsert validates rec and fills id and created_at when missing.
func prepareInsert(table string, rec Record, now time.Time) (Record, error) {
	if err := checkRecord(table, rec); err != nil {
		return nil, err
	}
	out := make(Record, len(rec))
	for k, v := range rec {
		out[k] = sqlValue(v)
	}
	if s, _ := out["id"].(string); s == "" {
		out["id"] = uuid.NewString()
	}
	if hasColumn(table, "created_at") {
		if v, ok := out["created_at"]; !ok || v == nil || v == "" {
			out["created_at"] = Timestamp(now)
		}
	}
	return out, nil
}
