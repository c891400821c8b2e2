package member

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mydasteran/portal/internal/datasvc"
	"github.com/mydasteran/portal/internal/loyalty"
	"github.com/mydasteran/portal/internal/production"
)

var wib = time.FixedZone("WIB", 7*60*60)

// 2024-02-20 12:00 WIB
var fixedNow = time.Date(2024, time.February, 20, 5, 0, 0, 0, time.UTC)

type fixture struct {
	store *datasvc.MemStore
	svc   *Service
}

func newFixture(t *testing.T, prod production.Client) fixture {
	t.Helper()
	store := datasvc.NewMemStore()
	ctx := context.Background()

	insert := func(table string, rec datasvc.Record) {
		t.Helper()
		_, err := store.Insert(ctx, table, rec)
		require.NoError(t, err)
	}

	insert(datasvc.TableCustomers, datasvc.Record{"id": "c1", "auth_user_id": "auth-1", "name": "Siti", "phone_number": "6281234567890"})
	insert(datasvc.TableCustomers, datasvc.Record{"id": "c2", "auth_user_id": "auth-2", "name": "Dewi", "phone_number": "6289876543210"})
	insert(datasvc.TableLoyaltyAccounts, datasvc.Record{"id": "la1", "customer_id": "c1", "points_balance": 1500, "tier": "Gold", "total_eligible_amount": 150_000_000})

	insert(datasvc.TableLoyaltyTransactions, datasvc.Record{
		"id": "tx-jan", "customer_id": "c1", "type": "earn", "points": 100, "created_at": "2024-01-15 03:00:00",
	})
	insert(datasvc.TableLoyaltyTransactions, datasvc.Record{
		"id": "tx-feb-first", "customer_id": "c1", "type": "earn", "points": 200, "created_at": "2024-01-31 18:00:00",
	})
	insert(datasvc.TableLoyaltyTransactions, datasvc.Record{
		"id": "tx-feb-earn", "customer_id": "c1", "type": "earn", "type_label": "Poin Belanja", "points": 500,
		"order_number": "ORD-1", "created_at": "2024-02-10 03:00:00", "expires_at": "2024-03-01 00:00:00",
	})
	insert(datasvc.TableLoyaltyTransactions, datasvc.Record{
		"id": "tx-feb-redeem", "customer_id": "c1", "type": "redeem", "points": -300, "created_at": "2024-02-12 03:00:00",
	})
	insert(datasvc.TableLoyaltyTransactions, datasvc.Record{
		"id": "tx-other", "customer_id": "c2", "type": "earn", "points": 999, "created_at": "2024-02-12 03:00:00",
	})

	insert(datasvc.TableOrders, datasvc.Record{
		"id": "o1", "customer_id": "c1", "order_number": "ORD-1", "order_type": "regular", "status": "completed",
		"grand_total": 450_000, "created_at": "2024-02-10 03:00:00",
	})
	insert(datasvc.TableOrderItems, datasvc.Record{"order_id": "o1", "product_name_snapshot": "Daster Bunga", "quantity": 3, "unit_price": 150_000, "subtotal": 450_000})
	insert(datasvc.TableOrders, datasvc.Record{
		"id": "o-jan", "customer_id": "c1", "order_number": "ORD-0", "order_type": "regular", "status": "completed",
		"grand_total": 100_000, "created_at": "2024-01-05 03:00:00",
	})
	insert(datasvc.TableOrders, datasvc.Record{
		"id": "po1", "customer_id": "c1", "order_number": "PO-1", "invoice_number": "INV-PO-1", "order_type": "preorder",
		"status": "production", "grand_total": 3_000_000, "created_at": "2024-02-15 03:00:00",
	})
	insert(datasvc.TableOrders, datasvc.Record{
		"id": "po-done", "customer_id": "c1", "order_number": "PO-0", "order_type": "preorder",
		"status": "completed", "grand_total": 1_000_000, "created_at": "2024-02-01 03:00:00",
	})
	insert(datasvc.TableOrders, datasvc.Record{
		"id": "po-other", "customer_id": "c2", "order_number": "PO-9", "order_type": "preorder",
		"status": "production", "grand_total": 1_000_000, "created_at": "2024-02-01 03:00:00",
	})
	insert(datasvc.TablePayments, datasvc.Record{"order_id": "po1", "amount": 500_000, "status": "pending", "created_at": "2024-02-16 03:00:00"})
	insert(datasvc.TablePayments, datasvc.Record{"order_id": "po1", "amount": 1_000_000, "status": "confirmed", "created_at": "2024-02-15 04:00:00"})
	insert(datasvc.TablePreorderDetails, datasvc.Record{"order_id": "po1", "target_production_date": "2024-03-01", "target_shipping_date": "2024-03-10"})

	insert(datasvc.TableProductionStatus, datasvc.Record{"ref_order_id": "INV-PO-1", "product_name": "Gamis Aisyah", "status": "cutting", "total_qty": 30, "created_at": "2024-02-16 00:00:00"})
	insert(datasvc.TableProductionStatus, datasvc.Record{"ref_order_id": "INV-PO-1", "product_name": "Gamis Aisyah", "status": "done", "total_qty": 10, "created_at": "2024-02-17 00:00:00"})

	if prod == nil {
		prod = production.NewStoreClient(store)
	}
	svc := NewService(store, prod, WithClock(func() time.Time { return fixedNow }), WithLocation(wib))
	return fixture{store: store, svc: svc}
}

func TestCustomerByAuthUser(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	c, err := f.svc.CustomerByAuthUser(ctx, "auth-1")
	require.NoError(t, err)
	assert.Equal(t, "c1", c.ID)
	assert.Equal(t, "+62 812-3456-7890", c.DisplayPhone())

	_, err = f.svc.CustomerByAuthUser(ctx, "nobody")
	assert.ErrorIs(t, err, ErrCustomerNotFound)
	_, err = f.svc.CustomerByAuthUser(ctx, "")
	assert.ErrorIs(t, err, ErrCustomerNotFound)
}

func TestDashboard(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	c, err := f.svc.CustomerByAuthUser(ctx, "auth-1")
	require.NoError(t, err)

	d, err := f.svc.Dashboard(ctx, c)
	require.NoError(t, err)
	require.NotNil(t, d.Account)
	assert.Equal(t, 1500, d.Account.PointsBalance)
	assert.Equal(t, loyalty.TierMid, d.Standing.Tier)
	assert.InDelta(t, 0.75, d.Standing.Overall, 1e-9)
	assert.InDelta(t, 50_000_000, d.Standing.Remaining, 1e-9)
	assert.Equal(t, 2024, d.Year)
	assert.Equal(t, time.February, d.Month)

	ids := make([]string, 0, len(d.Activity))
	for _, a := range d.Activity {
		ids = append(ids, a.ID)
	}
	assert.Equal(t, []string{"tx-feb-redeem", "tx-feb-earn", "tx-feb-first"}, ids)

	earn := d.Activity[1]
	assert.True(t, earn.Expiry.HasExpiry)
	assert.True(t, earn.Expiry.ExpiringSoon)
	assert.False(t, earn.Expiry.Expired)
	assert.Equal(t, 29, earn.Expiry.ExpiresAt.Day())
	assert.Equal(t, time.February, earn.Expiry.ExpiresAt.Month())
	assert.Equal(t, 9, earn.Expiry.DaysUntilExpiry)

	assert.False(t, d.Activity[0].Expiry.HasExpiry)
}

func TestDashboardWithoutLoyaltyAccount(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	c, err := f.svc.CustomerByAuthUser(ctx, "auth-2")
	require.NoError(t, err)

	d, err := f.svc.Dashboard(ctx, c)
	require.NoError(t, err)
	assert.Nil(t, d.Account)
	assert.Empty(t, d.Activity)
}

func TestPointsHistoryByMonth(t *testing.T) {
	f := newFixture(t, nil)
	jan, err := f.svc.PointsHistory(context.Background(), "c1", 2024, time.January)
	require.NoError(t, err)
	require.Len(t, jan, 1)
	assert.Equal(t, "tx-jan", jan[0].ID)
}

func TestOrderHistoryAndDetail(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	feb, err := f.svc.OrderHistory(ctx, "c1", 2024, time.February)
	require.NoError(t, err)
	require.Len(t, feb, 3)
	assert.Equal(t, "po1", feb[0].ID)
	assert.Equal(t, "o1", feb[1].ID)
	require.Len(t, feb[1].Items, 1)
	assert.Equal(t, "Daster Bunga", feb[1].Items[0].ProductName)

	o, err := f.svc.Order(ctx, "c1", "o1")
	require.NoError(t, err)
	assert.Equal(t, "ORD-1", o.Number)
	assert.Equal(t, 450_000.0, o.GrandTotal)

	_, err = f.svc.Order(ctx, "c2", "o1")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestPreordersListsOpenPreorders(t *testing.T) {
	f := newFixture(t, nil)
	list, err := f.svc.Preorders(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, list, 1)

	p := list[0]
	assert.Equal(t, "po1", p.Order.ID)
	assert.Equal(t, 1_000_000.0, p.Summary.Paid)
	assert.Equal(t, 2_000_000.0, p.Summary.Shortage)
	assert.False(t, p.Summary.FullyPaid)
	require.Len(t, p.Payments, 2)
	assert.Equal(t, "confirmed", p.Payments[0].Status, "payments are oldest first")
}

func TestPreorderDetail(t *testing.T) {
	f := newFixture(t, nil)
	d, err := f.svc.Preorder(context.Background(), "c1", "po1")
	require.NoError(t, err)

	assert.Equal(t, StageProduction, d.Stage)
	require.NotNil(t, d.TargetProduction)
	assert.Equal(t, 9, d.DaysToProduction)
	require.NotNil(t, d.TargetShipping)
	require.Len(t, d.Production, 1)
	assert.Equal(t, 40, d.Production[0].Total)
	assert.Equal(t, 25, d.Production[0].DonePercent)

	_, err = f.svc.Preorder(context.Background(), "c1", "o1")
	assert.ErrorIs(t, err, ErrOrderNotFound, "regular orders have no preorder view")
}

func TestPreorderFullyPaidMovesToShipping(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.store.Insert(context.Background(), datasvc.TablePayments, datasvc.Record{
		"order_id": "po1", "amount": 2_000_000, "status": "confirmed", "created_at": "2024-02-18 03:00:00",
	})
	require.NoError(t, err)

	d, err := f.svc.Preorder(context.Background(), "c1", "po1")
	require.NoError(t, err)
	assert.Equal(t, StageShipping, d.Stage)
	assert.True(t, d.Summary.FullyPaid)
	assert.Zero(t, d.Summary.Shortage)
}

type failingProduction struct{}

func (failingProduction) Status(context.Context, string) ([]production.StageQuantity, error) {
	return nil, production.ErrUnavailable
}

func TestPreorderSurvivesProductionFailure(t *testing.T) {
	f := newFixture(t, failingProduction{})
	d, err := f.svc.Preorder(context.Background(), "c1", "po1")
	require.NoError(t, err)
	assert.Empty(t, d.Production)
}

func TestSummarizePayments(t *testing.T) {
	over := summarizePayments(100, []Payment{{Amount: 150, Status: "confirmed"}})
	assert.Equal(t, -50.0, over.Shortage)
	assert.False(t, over.FullyPaid, "overpayment is not an exact settlement")

	none := summarizePayments(0, nil)
	assert.False(t, none.FullyPaid)
}

func validAddress() AddressInput {
	return AddressInput{
		Label:         " Rumah ",
		RecipientName: "Siti",
		Phone:         "081234567890",
		Line1:         "Jl. Melati No. 1",
		City:          "Surabaya",
		Province:      "Jawa Timur",
		PostalCode:    "60111",
		IsDefault:     true,
	}
}

func TestAddressLifecycle(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	first, err := f.svc.AddAddress(ctx, "c1", validAddress())
	require.NoError(t, err)
	assert.Equal(t, "Rumah", first.Label)
	assert.True(t, first.IsDefault)
	assert.Empty(t, first.Kecamatan)

	second := validAddress()
	second.Label = "Kantor"
	second.Kecamatan = "Gubeng"
	office, err := f.svc.AddAddress(ctx, "c1", second)
	require.NoError(t, err)

	list, err := f.svc.Addresses(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, office.ID, list[0].ID)
	assert.True(t, list[0].IsDefault)
	assert.False(t, list[1].IsDefault, "adding a default address clears the previous default")

	require.NoError(t, f.svc.SetDefaultAddress(ctx, "c1", first.ID))
	list, err = f.svc.Addresses(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, list[0].ID)
	assert.False(t, list[1].IsDefault)

	edit := second
	edit.City = "Sidoarjo"
	edit.IsDefault = false
	updated, err := f.svc.UpdateAddress(ctx, "c1", office.ID, edit)
	require.NoError(t, err)
	assert.Equal(t, "Sidoarjo", updated.City)

	assert.ErrorIs(t, f.svc.DeleteAddress(ctx, "c2", office.ID), ErrAddressNotFound)
	require.NoError(t, f.svc.DeleteAddress(ctx, "c1", office.ID))
	list, err = f.svc.Addresses(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestAddAddressValidation(t *testing.T) {
	f := newFixture(t, nil)
	in := validAddress()
	in.City = "   "
	in.PostalCode = "abc"

	_, err := f.svc.AddAddress(context.Background(), "c1", in)
	require.Error(t, err)

	var verrs validator.ValidationErrors
	require.True(t, errors.As(err, &verrs))
	fields := map[string]string{}
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}
	assert.Equal(t, "required", fields["City"])
	assert.Equal(t, "numeric", fields["PostalCode"])

	list, err := f.svc.Addresses(context.Background(), "c1")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestFormatPhone(t *testing.T) {
	cases := map[string]string{
		"6281234567890":     "+62 812-3456-7890",
		"+62 812 3456 7890": "+62 812-3456-7890",
		"081234567890":      "081234567890",
		"62812":             "62812",
		"":                  "",
	}
	for in, want := range cases {
		assert.Equal(t, want, FormatPhone(in), "in=%q", in)
	}
}
