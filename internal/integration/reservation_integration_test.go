package integration

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/andreasstove999/ecommerce-system/reservation-service-go/internal/address"
	"github.com/andreasstove999/ecommerce-system/reservation-service-go/internal/apperr"
	"github.com/andreasstove999/ecommerce-system/reservation-service-go/internal/catalog"
	"github.com/andreasstove999/ecommerce-system/reservation-service-go/internal/clock"
	"github.com/andreasstove999/ecommerce-system/reservation-service-go/internal/db"
	httpapi "github.com/andreasstove999/ecommerce-system/reservation-service-go/internal/http"
	"github.com/andreasstove999/ecommerce-system/reservation-service-go/internal/idempotency"
	"github.com/andreasstove999/ecommerce-system/reservation-service-go/internal/order"
	"github.com/andreasstove999/ecommerce-system/reservation-service-go/internal/pricing"
	"github.com/andreasstove999/ecommerce-system/reservation-service-go/internal/reservation"
	"github.com/andreasstove999/ecommerce-system/reservation-service-go/internal/stock"
)

type app struct {
	pool    *pgxpool.Pool
	clock   *clock.Manual
	manager *reservation.Manager
	orders  *order.Service
	server  *httptest.Server
}

func TestReservationIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test needs docker")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pgC, dsn := startPostgres(ctx, t)
	defer terminateContainer(t, pgC)

	require.NoError(t, db.RunMigrations(dsn, zerolog.Nop()))
	a := newApp(ctx, t, dsn)
	seed(ctx, t, a.pool)

	t.Run("no oversell under concurrent reserves", func(t *testing.T) {
		const attempts = 20
		var (
			wg      sync.WaitGroup
			ok      atomic.Int32
			refused atomic.Int32
		)
		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := a.manager.Reserve(ctx, reservation.ReserveInput{
					VariantID: "v-scarce",
					Quantity:  1,
					Holder:    reservation.Holder{SessionID: fmt.Sprintf("s-%d", i)},
				})
				switch {
				case err == nil:
					ok.Add(1)
				case apperr.Is(err, apperr.KindStockUnavailable):
					refused.Add(1)
				default:
					t.Errorf("reserve: %v", err)
				}
			}(i)
		}
		wg.Wait()

		require.EqualValues(t, 5, ok.Load())
		require.EqualValues(t, attempts-5, refused.Load())

		lvl, err := a.manager.Level(ctx, "v-scarce")
		require.NoError(t, err)
		require.Equal(t, 5, lvl.Reserved)
		require.Zero(t, lvl.Available())
	})

	t.Run("expired holds are released by the sweeper", func(t *testing.T) {
		a.clock.Advance(16 * time.Minute)

		sweeper := reservation.NewSweeper(a.manager, time.Second, 100, zerolog.Nop())
		n, err := sweeper.SweepOnce(ctx)
		require.NoError(t, err)
		require.Equal(t, 5, n)

		lvl, err := a.manager.Level(ctx, "v-scarce")
		require.NoError(t, err)
		require.Zero(t, lvl.Reserved)
	})

	t.Run("order create is idempotent over HTTP", func(t *testing.T) {
		body := `{
			"items":[{"productId":"p-a","variantId":"v-a","quantity":1,"price":100},{"productId":"p-b","variantId":"v-b","quantity":2,"price":75}],
			"subtotal":250,"shippingCost":20,"total":%s,
			"paymentMethod":"card","shippingAddressId":"addr-1","billingAddressId":"addr-1"
		}`

		first := postOrder(t, a.server.URL, fmt.Sprintf(body, "270"))
		require.Equal(t, http.StatusCreated, first.StatusCode)
		first.Body.Close()

		retry := postOrder(t, a.server.URL, fmt.Sprintf(body, "999"))
		require.Equal(t, http.StatusOK, retry.StatusCode)
		retry.Body.Close()

		var count int
		require.NoError(t, a.pool.QueryRow(ctx, `SELECT count(*) FROM orders WHERE user_id='u1'`).Scan(&count))
		require.Equal(t, 1, count)

		var total string
		require.NoError(t, a.pool.QueryRow(ctx, `SELECT total_price::text FROM orders WHERE user_id='u1'`).Scan(&total))
		require.Equal(t, "270.00", total)
	})

	t.Run("delivered orders cannot move back", func(t *testing.T) {
		list, err := a.orders.ListForHolder(ctx, reservation.Holder{UserID: "u1"})
		require.NoError(t, err)
		require.Len(t, list, 1)
		admin := order.Actor{IsAdmin: true}

		for _, s := range []order.Status{order.StatusProcessing, order.StatusShipped, order.StatusDelivered} {
			_, err := a.orders.UpdateStatus(ctx, order.UpdateStatusInput{OrderID: list[0].ID, Status: s, Actor: admin})
			require.NoError(t, err)
		}

		_, err = a.orders.UpdateStatus(ctx, order.UpdateStatusInput{OrderID: list[0].ID, Status: order.StatusProcessing, Actor: admin})
		e, ok := apperr.As(err)
		require.True(t, ok)
		require.Equal(t, apperr.KindConflict, e.Kind)
		require.Equal(t, []string{}, e.Details["validNextStatuses"])

		got, err := a.orders.Get(ctx, list[0].ID, admin)
		require.NoError(t, err)
		require.Len(t, got.Timeline, 4)

		require.Len(t, got.Items, 2)
		require.Equal(t, "v-a", got.Items[0].VariantID)
		require.Equal(t, "v-b", got.Items[1].VariantID)
	})
}

func newApp(ctx context.Context, t *testing.T, dsn string) *app {
	t.Helper()

	// Enough connections for the concurrent reserve burst.
	pool, err := db.NewPool(ctx, dsn, db.PoolOptions{MaxConns: 25})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	runner := db.NewRunner(pool)
	clk := clock.NewManual(time.Now().UTC())
	manager := reservation.NewManager(runner, stock.NewPostgresLedger(runner), reservation.NewPostgresStore(runner), clk)
	orders := order.NewService(order.Deps{
		Tx:          runner,
		Repo:        order.NewPostgresRepository(runner),
		Idempotency: idempotency.NewPostgresLedger(runner),
		Prices:      pricing.NewValidator(catalog.NewPostgresCatalog(runner), pricing.DefaultTolerance),
		Stock:       manager,
		Addresses:   address.NewPostgresBook(runner),
		Clock:       clk,
	})

	server := httptest.NewServer(httpapi.NewRouter(httpapi.NewHandler(manager, orders), httpapi.RouterOptions{Logger: zerolog.Nop()}))
	t.Cleanup(server.Close)

	return &app{pool: pool, clock: clk, manager: manager, orders: orders, server: server}
}

func seed(ctx context.Context, t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	_, err := pool.Exec(ctx, `
		INSERT INTO products (id, name, base_price) VALUES
			('p-a', 'Lamp', 100.00), ('p-b', 'Mug', 75.00), ('p-s', 'Limited print', 40.00);
		INSERT INTO product_variants (id, product_id, price, total_stock) VALUES
			('v-a', 'p-a', 100.00, 10), ('v-b', 'p-b', 75.00, 10), ('v-scarce', 'p-s', 40.00, 5);
		INSERT INTO addresses (id, user_id, line1) VALUES ('addr-1', 'u1', '1 Main St');
	`)
	require.NoError(t, err)
}

func postOrder(t *testing.T, baseURL, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, baseURL+"/api/orders", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(httpapi.HeaderUserID, "u1")
	req.Header.Set(httpapi.HeaderIdemKey, "checkout-1")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func startPostgres(ctx context.Context, t *testing.T) (testcontainers.Container, string) {
	t.Helper()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16",
		Env:          map[string]string{"POSTGRES_PASSWORD": "postgres", "POSTGRES_USER": "postgres", "POSTGRES_DB": "reservations"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	mappedPort, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://postgres:postgres@%s:%s/reservations?sslmode=disable", host, mappedPort.Port())
	return container, dsn
}

func terminateContainer(t *testing.T, c testcontainers.Container) {
	t.Helper()
	terminateCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, c.Terminate(terminateCtx))
}
