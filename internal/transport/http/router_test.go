package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/fjod/go_till/internal/cart"
	"github.com/fjod/go_till/internal/catalog"
	"github.com/fjod/go_till/internal/checkout"
	"github.com/fjod/go_till/internal/clock"
	"github.com/fjod/go_till/internal/db"
	"github.com/fjod/go_till/internal/domain"
	"github.com/fjod/go_till/internal/draft"
	"github.com/fjod/go_till/internal/transaction"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// testServer wires the whole engine over a temporary database.
type testServer struct {
	router  chi.Router
	catalog *catalog.Repository
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	conn, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, db.RunMigrations(conn, "../../../migrations"))

	clk := clock.NewFixed(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	catalogRepo := catalog.NewRepository(conn)
	ledger := transaction.NewRepository(conn, clk)
	drafts := draft.NewMemoryStore(clk)
	carts := cart.NewService(catalogRepo)
	settler := checkout.NewService(ledger, ledger, carts, drafts, clk, checkout.DefaultPolicy(), zap.NewNop())

	timeout := 5 * time.Second
	router := NewRouter(Handlers{
		Catalog:      NewCatalogHandler(catalogRepo, timeout),
		Cart:         NewCartHandler(carts, timeout),
		Draft:        NewDraftHandler(drafts, carts, timeout),
		Checkout:     NewCheckoutHandler(settler, timeout),
		Transactions: NewTransactionHandler(ledger, timeout),
	}, timeout)

	return &testServer{router: router, catalog: catalogRepo}
}

func (s *testServer) seedProduct(t *testing.T, name string, price domain.Money, stock int) int64 {
	t.Helper()
	id, err := s.catalog.CreateProduct(context.Background(), &domain.Product{
		Name: name, Price: price, Stock: stock, Active: true,
	})
	require.NoError(t, err)
	return id
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("X-Actor-Token", "till-7")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)
	rec := srv.do(t, "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCatalogEndpoints(t *testing.T) {
	srv := newTestServer(t)
	id := srv.seedProduct(t, "espresso", 500, 10)

	rec := srv.do(t, "GET", "/api/v1/catalog/products", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	products := decode[[]ProductDTO](t, rec)
	require.Len(t, products, 1)
	assert.Equal(t, "espresso", products[0].Name)

	rec = srv.do(t, "GET", fmt.Sprintf("/api/v1/catalog/products/%d", id), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = srv.do(t, "GET", "/api/v1/catalog/products/999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = srv.do(t, "GET", "/api/v1/catalog/products/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCartFlow(t *testing.T) {
	srv := newTestServer(t)
	id := srv.seedProduct(t, "espresso", 500, 10)

	rec := srv.do(t, "POST", "/api/v1/carts", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[CartResponseDTO](t, rec)
	require.NotEmpty(t, created.SessionID)

	base := "/api/v1/carts/" + created.SessionID

	rec = srv.do(t, "POST", base+"/items", AddItemRequestDTO{ProductID: id, Quantity: 2})
	require.Equal(t, http.StatusCreated, rec.Code)
	withItem := decode[CartResponseDTO](t, rec)
	require.Len(t, withItem.Lines, 1)
	assert.Equal(t, domain.Money(1000), withItem.Totals.GrandTotal)

	rec = srv.do(t, "POST", base+"/discount", DiscountRequestDTO{Kind: "ORDER_PERCENT", Value: 1000})
	require.Equal(t, http.StatusOK, rec.Code)
	discounted := decode[CartResponseDTO](t, rec)
	assert.Equal(t, domain.Money(900), discounted.Totals.GrandTotal)

	rec = srv.do(t, "PUT", fmt.Sprintf("%s/items/%d", base, id), UpdateQuantityRequestDTO{Quantity: 1})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = srv.do(t, "DELETE", fmt.Sprintf("%s/items/%d", base, id), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	emptied := decode[CartResponseDTO](t, rec)
	assert.Empty(t, emptied.Lines)

	rec = srv.do(t, "DELETE", base, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = srv.do(t, "GET", base, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCart_InvalidBodies(t *testing.T) {
	srv := newTestServer(t)
	rec := srv.do(t, "POST", "/api/v1/carts", nil)
	session := decode[CartResponseDTO](t, rec).SessionID

	rec = srv.do(t, "POST", "/api/v1/carts/"+session+"/items", AddItemRequestDTO{ProductID: 0, Quantity: 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.do(t, "POST", "/api/v1/carts/"+session+"/items", AddItemRequestDTO{ProductID: 1, Quantity: 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.do(t, "POST", "/api/v1/carts/"+session+"/discount", DiscountRequestDTO{Kind: "NOPE", Value: 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckoutFlow(t *testing.T) {
	srv := newTestServer(t)
	id := srv.seedProduct(t, "espresso", 500, 10)

	rec := srv.do(t, "POST", "/api/v1/carts", nil)
	session := decode[CartResponseDTO](t, rec).SessionID
	rec = srv.do(t, "POST", "/api/v1/carts/"+session+"/items", AddItemRequestDTO{ProductID: id, Quantity: 2})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = srv.do(t, "POST", "/api/v1/checkout", SettleRequestDTO{
		SessionID:      session,
		PaymentMethod:  "cash",
		AmountTendered: 1500,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	tx := decode[TransactionResponseDTO](t, rec)
	assert.Equal(t, domain.TxStatusCompleted, tx.Status)
	assert.Equal(t, domain.Money(500), tx.ChangeDue)
	assert.Equal(t, "till-7", tx.Actor)

	// the session is gone after settlement
	rec = srv.do(t, "GET", "/api/v1/carts/"+session, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// stock decremented
	rec = srv.do(t, "GET", fmt.Sprintf("/api/v1/catalog/products/%d", id), nil)
	product := decode[ProductDTO](t, rec)
	assert.Equal(t, 8, product.Stock)

	rec = srv.do(t, "GET", fmt.Sprintf("/api/v1/transactions/%d", tx.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestCheckout_InsufficientPayment(t *testing.T) {
	srv := newTestServer(t)
	id := srv.seedProduct(t, "espresso", 500, 10)

	rec := srv.do(t, "POST", "/api/v1/carts", nil)
	session := decode[CartResponseDTO](t, rec).SessionID
	srv.do(t, "POST", "/api/v1/carts/"+session+"/items", AddItemRequestDTO{ProductID: id, Quantity: 2})

	rec = srv.do(t, "POST", "/api/v1/checkout", SettleRequestDTO{
		SessionID:      session,
		PaymentMethod:  "cash",
		AmountTendered: 100,
	})
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)

	// stock untouched, session still alive
	rec = srv.do(t, "GET", fmt.Sprintf("/api/v1/catalog/products/%d", id), nil)
	assert.Equal(t, 10, decode[ProductDTO](t, rec).Stock)
	rec = srv.do(t, "GET", "/api/v1/carts/"+session, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCheckout_DeferredPendingAndResolve(t *testing.T) {
	srv := newTestServer(t)
	id := srv.seedProduct(t, "espresso", 500, 10)

	rec := srv.do(t, "POST", "/api/v1/carts", nil)
	session := decode[CartResponseDTO](t, rec).SessionID
	srv.do(t, "POST", "/api/v1/carts/"+session+"/items", AddItemRequestDTO{ProductID: id, Quantity: 2})

	rec = srv.do(t, "POST", "/api/v1/checkout", SettleRequestDTO{
		SessionID:     session,
		PaymentMethod: "bank_transfer",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	tx := decode[TransactionResponseDTO](t, rec)
	assert.Equal(t, domain.TxStatusPending, tx.Status)

	rec = srv.do(t, "POST", fmt.Sprintf("/api/v1/transactions/%d/resolve", tx.ID),
		ResolveRequestDTO{Outcome: "COMPLETE", ReferenceNo: "BT-1001"})
	require.Equal(t, http.StatusOK, rec.Code)
	resolved := decode[TransactionResponseDTO](t, rec)
	assert.Equal(t, domain.TxStatusCompleted, resolved.Status)
	assert.Equal(t, "BT-1001", resolved.ReferenceNo)

	// a second resolution conflicts
	rec = srv.do(t, "POST", fmt.Sprintf("/api/v1/transactions/%d/resolve", tx.ID),
		ResolveRequestDTO{Outcome: "CANCEL"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = srv.do(t, "POST", fmt.Sprintf("/api/v1/transactions/%d/resolve", tx.ID),
		ResolveRequestDTO{Outcome: "SHRED"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckout_UnknownPaymentMethod(t *testing.T) {
	srv := newTestServer(t)
	rec := srv.do(t, "POST", "/api/v1/checkout", SettleRequestDTO{
		SessionID:     "whatever",
		PaymentMethod: "barter",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDraftFlow(t *testing.T) {
	srv := newTestServer(t)
	id := srv.seedProduct(t, "espresso", 500, 10)

	rec := srv.do(t, "POST", "/api/v1/carts", nil)
	session := decode[CartResponseDTO](t, rec).SessionID
	srv.do(t, "POST", "/api/v1/carts/"+session+"/items", AddItemRequestDTO{ProductID: id, Quantity: 2})

	rec = srv.do(t, "POST", "/api/v1/drafts", SaveDraftRequestDTO{
		SessionID: session,
		Title:     "table 4",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	saved := decode[draft.Summary](t, rec)
	require.NotEmpty(t, saved.ID)
	assert.Equal(t, domain.Money(1000), saved.Total)

	rec = srv.do(t, "GET", "/api/v1/drafts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]draft.Summary](t, rec)
	require.Len(t, list, 1)

	rec = srv.do(t, "POST", "/api/v1/drafts/"+saved.ID+"/resume", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resumed := decode[LoadDraftResponseDTO](t, rec)
	require.Len(t, resumed.Cart.Lines, 1)
	assert.NotEqual(t, session, resumed.Cart.SessionID)

	// settling the resumed session clears the draft
	rec = srv.do(t, "POST", "/api/v1/checkout", SettleRequestDTO{
		SessionID:      resumed.Cart.SessionID,
		PaymentMethod:  "cash",
		AmountTendered: 1000,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = srv.do(t, "GET", "/api/v1/drafts", nil)
	assert.Empty(t, decode[[]draft.Summary](t, rec))
}

func TestDraft_EmptyCartRejected(t *testing.T) {
	srv := newTestServer(t)
	rec := srv.do(t, "POST", "/api/v1/carts", nil)
	session := decode[CartResponseDTO](t, rec).SessionID

	rec = srv.do(t, "POST", "/api/v1/drafts", SaveDraftRequestDTO{SessionID: session, Title: "empty"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDraft_DiscardAndMissing(t *testing.T) {
	srv := newTestServer(t)
	id := srv.seedProduct(t, "espresso", 500, 10)

	rec := srv.do(t, "POST", "/api/v1/carts", nil)
	session := decode[CartResponseDTO](t, rec).SessionID
	srv.do(t, "POST", "/api/v1/carts/"+session+"/items", AddItemRequestDTO{ProductID: id, Quantity: 1})

	rec = srv.do(t, "POST", "/api/v1/drafts", SaveDraftRequestDTO{SessionID: session, Title: "parked"})
	saved := decode[draft.Summary](t, rec)

	rec = srv.do(t, "DELETE", "/api/v1/drafts/"+saved.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = srv.do(t, "DELETE", "/api/v1/drafts/"+saved.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = srv.do(t, "POST", "/api/v1/drafts/"+saved.ID+"/resume", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTransactionSearchAndStats(t *testing.T) {
	srv := newTestServer(t)
	id := srv.seedProduct(t, "espresso", 500, 100)

	settle := func(method string, tendered domain.Money) TransactionResponseDTO {
		rec := srv.do(t, "POST", "/api/v1/carts", nil)
		session := decode[CartResponseDTO](t, rec).SessionID
		srv.do(t, "POST", "/api/v1/carts/"+session+"/items", AddItemRequestDTO{ProductID: id, Quantity: 1})
		rec = srv.do(t, "POST", "/api/v1/checkout", SettleRequestDTO{
			SessionID:      session,
			PaymentMethod:  method,
			AmountTendered: tendered,
		})
		require.Equal(t, http.StatusCreated, rec.Code)
		return decode[TransactionResponseDTO](t, rec)
	}

	settle("cash", 500)
	settle("cash", 500)
	settle("e_wallet", 0) // pending

	rec := srv.do(t, "GET", "/api/v1/transactions?status=COMPLETED", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]transaction.Summary](t, rec), 2)

	rec = srv.do(t, "GET", "/api/v1/transactions?payment_method=e_wallet", nil)
	assert.Len(t, decode[[]transaction.Summary](t, rec), 1)

	rec = srv.do(t, "GET", "/api/v1/transactions?date_from=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.do(t, "GET", "/api/v1/transactions/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[StatusCountsDTO](t, rec)
	assert.Equal(t, 2, stats.Completed)
	assert.Equal(t, 1, stats.Pending)
	assert.Equal(t, 0, stats.Cancelled)

	rec = srv.do(t, "GET", "/api/v1/transactions/recent?limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]transaction.Summary](t, rec), 2)

	rec = srv.do(t, "GET", "/api/v1/transactions/recent?limit=0", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckout_IdempotencyKeyReturnsSameTransaction(t *testing.T) {
	srv := newTestServer(t)
	id := srv.seedProduct(t, "espresso", 500, 10)

	rec := srv.do(t, "POST", "/api/v1/carts", nil)
	session := decode[CartResponseDTO](t, rec).SessionID
	srv.do(t, "POST", "/api/v1/carts/"+session+"/items", AddItemRequestDTO{ProductID: id, Quantity: 2})

	body, err := json.Marshal(SettleRequestDTO{
		SessionID:      session,
		PaymentMethod:  "cash",
		AmountTendered: 1000,
	})
	require.NoError(t, err)

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", "/api/v1/checkout", bytes.NewReader(body))
		req.Header.Set("Idempotency-Key", "retry-77")
		rec := httptest.NewRecorder()
		srv.router.ServeHTTP(rec, req)
		return rec
	}

	first := send()
	require.Equal(t, http.StatusCreated, first.Code)
	firstTx := decode[TransactionResponseDTO](t, first)

	second := send()
	require.Equal(t, http.StatusCreated, second.Code)
	secondTx := decode[TransactionResponseDTO](t, second)

	assert.Equal(t, firstTx.ID, secondTx.ID)

	// stock was only taken once
	rec = srv.do(t, "GET", fmt.Sprintf("/api/v1/catalog/products/%d", id), nil)
	assert.Equal(t, 8, decode[ProductDTO](t, rec).Stock)
}
