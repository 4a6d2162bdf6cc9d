package order

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/andreasstove999/ecommerce-system/reservation-service-go/internal/apperr"
	"github.com/andreasstove999/ecommerce-system/reservation-service-go/internal/db"
)

func newRepo(t *testing.T) (*PostgresRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresRepository(db.NewRunner(mock)), mock
}

func sampleOrder() *Order {
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	return &Order{
		ID:                "o1",
		OrderNumber:       "ORD-20240301-ABCDEF12",
		UserID:            "u1",
		Status:            StatusPending,
		Subtotal:          d("250"),
		ShippingCost:      d("20"),
		TotalPrice:        d("270"),
		PaymentMethod:     "card",
		ShippingAddressID: "a1",
		BillingAddressID:  "a1",
		Items: []Item{
			{ProductID: "p-a", VariantID: "v-a", Quantity: 1, Price: d("100")},
			{ProductID: "p-b", VariantID: "v-b", Quantity: 2, Price: d("75")},
		},
		Payment:   &Payment{Amount: d("270"), Status: PaymentPending, UpdatedAt: at},
		Timeline:  []TimelineEntry{{Status: StatusPending, Note: "order placed", CreatedAt: at}},
		CreatedAt: at,
		UpdatedAt: at,
	}
}

func TestCreateWritesAllTables(t *testing.T) {
	repo, mock := newRepo(t)
	o := sampleOrder()

	mock.ExpectExec(`INSERT INTO orders`).
		WithArgs("o1", o.OrderNumber, "u1", "", "PENDING", "250", "20", "270", "card", "a1", "a1", o.CreatedAt, o.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO order_items`).
		WithArgs(pgxmock.AnyArg(), "o1", 0, "p-a", "v-a", 1, "100").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO order_items`).
		WithArgs(pgxmock.AnyArg(), "o1", 1, "p-b", "v-b", 2, "75").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO payments`).
		WithArgs(pgxmock.AnyArg(), "o1", "270", "PENDING", "", o.Payment.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO order_timeline`).
		WithArgs("o1", "PENDING", "order placed", o.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.Create(context.Background(), o))
	require.NotEmpty(t, o.Items[0].ID)
	require.NotEmpty(t, o.Payment.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateDuplicateOrder(t *testing.T) {
	repo, mock := newRepo(t)

	mock.ExpectExec(`INSERT INTO orders`).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := repo.Create(context.Background(), sampleOrder())
	e, ok := apperr.As(err)
	require.True(t, ok)
	require.Equal(t, apperr.KindConflict, e.Kind)
	require.Equal(t, "order_exists", e.Code)
}

func TestGetAssemblesOrder(t *testing.T) {
	repo, mock := newRepo(t)
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM orders WHERE id=\$1`).
		WithArgs("o1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "order_number", "user_id", "session_id", "status", "subtotal", "shipping_cost", "total_price",
			"payment_method", "shipping_address_id", "billing_address_id", "created_at", "updated_at",
		}).AddRow("o1", "ORD-1", "u1", "", "PROCESSING", "250.00", "20.00", "270.00", "card", "a1", "a2", at, at))
	mock.ExpectQuery(`FROM order_items WHERE order_id=\$1 ORDER BY line_no`).
		WithArgs("o1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "product_id", "variant_id", "quantity", "price"}).
			AddRow("f9c1", "p-b", "v-b", 2, "75.00").
			AddRow("0a7e", "p-a", "v-a", 1, "100.00"))
	mock.ExpectQuery(`FROM payments`).
		WithArgs("o1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "amount", "status", "provider_transaction_id", "updated_at"}).
			AddRow("pay1", "270.00", "PAID", "tx-1", at))
	mock.ExpectQuery(`FROM order_timeline`).
		WithArgs("o1").
		WillReturnRows(pgxmock.NewRows([]string{"status", "note", "created_at"}).
			AddRow("PENDING", "order placed", at).
			AddRow("PROCESSING", "payment received", at))

	o, err := repo.Get(context.Background(), "o1")
	require.NoError(t, err)
	require.Equal(t, StatusProcessing, o.Status)
	require.True(t, o.TotalPrice.Equal(d("270")))
	require.Len(t, o.Items, 2)
	require.Equal(t, "f9c1", o.Items[0].ID)
	require.Equal(t, "0a7e", o.Items[1].ID)
	require.Equal(t, PaymentPaid, o.Payment.Status)
	require.Equal(t, "tx-1", o.Payment.ProviderTransactionID)
	require.Len(t, o.Timeline, 2)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetMissingOrder(t *testing.T) {
	repo, mock := newRepo(t)

	mock.ExpectQuery(`FROM orders WHERE id=\$1`).
		WithArgs("nope").
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.Get(context.Background(), "nope")
	require.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestCompareAndSetStatus(t *testing.T) {
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	tests := map[string]struct {
		rows    int64
		err     error
		want    bool
		wantErr bool
	}{
		"swapped":      {rows: 1, want: true},
		"stale status": {rows: 0, want: false},
		"db error":     {err: errors.New("conn reset"), wantErr: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			repo, mock := newRepo(t)
			exp := mock.ExpectExec(`UPDATE orders SET status=\$3`).WithArgs("o1", "PENDING", "PROCESSING", at)
			if tc.err != nil {
				exp.WillReturnError(tc.err)
			} else {
				exp.WillReturnResult(pgxmock.NewResult("UPDATE", tc.rows))
			}

			ok, err := repo.CompareAndSetStatus(context.Background(), "o1", StatusPending, StatusProcessing, at)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, ok)
		})
	}
}

func TestUpdatePaymentMissing(t *testing.T) {
	repo, mock := newRepo(t)
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectExec(`UPDATE payments`).
		WithArgs("o1", "PAID", "tx-1", at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.UpdatePayment(context.Background(), "o1", PaymentPaid, "tx-1", at)
	require.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}
