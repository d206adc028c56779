package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"github.com/alicebob/miniredis/v2"
	"github.com/ariefcatur/woodchain/internal/accounts"
	"github.com/ariefcatur/woodchain/internal/catalog"
	"github.com/ariefcatur/woodchain/internal/ledger"
	"github.com/ariefcatur/woodchain/internal/orders"
	"github.com/ariefcatur/woodchain/internal/pipeline"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type MockAccounts struct{ mock.Mock }

func (m *MockAccounts) Signup(ctx context.Context, req accounts.SignupRequest) (accounts.Principal, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(accounts.Principal), args.Error(1)
}

func (m *MockAccounts) Login(ctx context.Context, email, password string) (accounts.Principal, error) {
	args := m.Called(ctx, email, password)
	return args.Get(0).(accounts.Principal), args.Error(1)
}

type MockPipeline struct{ mock.Mock }

func (m *MockPipeline) PlaceOrder(ctx context.Context, actor pipeline.Actor, req pipeline.PlaceOrderRequest) (pipeline.PlaceOrderResult, error) {
	args := m.Called(ctx, actor, req)
	return args.Get(0).(pipeline.PlaceOrderResult), args.Error(1)
}

func (m *MockPipeline) ConfirmOrder(ctx context.Context, actor pipeline.Actor, orderID int64, status string) error {
	args := m.Called(ctx, actor, orderID, status)
	return args.Error(0)
}

type MockOrders struct{ mock.Mock }

func (m *MockOrders) GetOrder(ctx context.Context, orderID int64) (orders.Order, error) {
	args := m.Called(ctx, orderID)
	return args.Get(0).(orders.Order), args.Error(1)
}

func (m *MockOrders) GetOrderDetails(ctx context.Context, orderID int64) ([]orders.OrderDetail, error) {
	args := m.Called(ctx, orderID)
	d, _ := args.Get(0).([]orders.OrderDetail)
	return d, args.Error(1)
}

func (m *MockOrders) GetOrderStatus(ctx context.Context, orderID int64) (orders.Status, error) {
	args := m.Called(ctx, orderID)
	return args.Get(0).(orders.Status), args.Error(1)
}

func (m *MockOrders) ListByUser(ctx context.Context, userID int64, q string) ([]orders.OrderSummary, error) {
	args := m.Called(ctx, userID, q)
	l, _ := args.Get(0).([]orders.OrderSummary)
	return l, args.Error(1)
}

func (m *MockOrders) ListBySupplier(ctx context.Context, supplierID int64, q string) ([]orders.OrderSummary, error) {
	args := m.Called(ctx, supplierID, q)
	l, _ := args.Get(0).([]orders.OrderSummary)
	return l, args.Error(1)
}

type MockCatalog struct{ mock.Mock }

func (m *MockCatalog) ListSuppliers(ctx context.Context, q string) ([]catalog.Supplier, error) {
	args := m.Called(ctx, q)
	s, _ := args.Get(0).([]catalog.Supplier)
	return s, args.Error(1)
}

func (m *MockCatalog) GetSupplier(ctx context.Context, supplierID int64) (catalog.Supplier, error) {
	args := m.Called(ctx, supplierID)
	return args.Get(0).(catalog.Supplier), args.Error(1)
}

func (m *MockCatalog) UpdateDescription(ctx context.Context, supplierID int64, description string) error {
	return m.Called(ctx, supplierID, description).Error(0)
}

func (m *MockCatalog) ListProducts(ctx context.Context, supplierID int64, q string) ([]orders.Product, error) {
	args := m.Called(ctx, supplierID, q)
	p, _ := args.Get(0).([]orders.Product)
	return p, args.Error(1)
}

func (m *MockCatalog) GetProduct(ctx context.Context, productID int64) (orders.Product, error) {
	args := m.Called(ctx, productID)
	return args.Get(0).(orders.Product), args.Error(1)
}

func (m *MockCatalog) CreateProduct(ctx context.Context, supplierID int64, in catalog.ProductInput) (orders.Product, error) {
	args := m.Called(ctx, supplierID, in)
	return args.Get(0).(orders.Product), args.Error(1)
}

func (m *MockCatalog) UpdateProduct(ctx context.Context, supplierID, productID int64, in catalog.ProductInput) error {
	return m.Called(ctx, supplierID, productID, in).Error(0)
}

func (m *MockCatalog) RetireProduct(ctx context.Context, supplierID, productID int64) error {
	return m.Called(ctx, supplierID, productID).Error(0)
}

type MockAuditor struct{ mock.Mock }

func (m *MockAuditor) GetOrder(ctx context.Context, orderID int64) (ledger.Order, error) {
	args := m.Called(ctx, orderID)
	return args.Get(0).(ledger.Order), args.Error(1)
}

func (m *MockAuditor) GetOrderDetails(ctx context.Context, orderID int64) ([]ledger.Line, error) {
	args := m.Called(ctx, orderID)
	l, _ := args.Get(0).([]ledger.Line)
	return l, args.Error(1)
}

func (m *MockAuditor) Compare(ctx context.Context, orderID int64) ([]orders.DriftReport, error) {
	args := m.Called(ctx, orderID)
	d, _ := args.Get(0).([]orders.DriftReport)
	return d, args.Error(1)
}

func (m *MockAuditor) OpenFailures(ctx context.Context, orderID int64) ([]orders.MirrorFailure, error) {
	args := m.Called(ctx, orderID)
	f, _ := args.Get(0).([]orders.MirrorFailure)
	return f, args.Error(1)
}

var (
	buyer    = accounts.Principal{UserID: 1, Email: "buyer@woodchain.local", UserType: accounts.UserTypeUser, CompanyName: "Default Buyer Co"}
	supplier = accounts.Principal{UserID: 2, Email: "supplier@woodchain.local", UserType: accounts.UserTypeSupplier, SupplierID: 1, CompanyName: "Default Wood Supplier"}
)

type testEnv struct {
	mr       *miniredis.Miniredis
	sessions *accounts.Sessions
	router   *chi.Mux
	accts    *MockAccounts
	pipe     *MockPipeline
	orders   *MockOrders
	catalog  *MockCatalog
	audit    *MockAuditor
}

func newTestEnv(t *testing.T) *testEnv {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	e := &testEnv{
		mr:       mr,
		sessions: &accounts.Sessions{Redis: rdb, TTL: time.Hour},
		accts:    new(MockAccounts),
		pipe:     new(MockPipeline),
		orders:   new(MockOrders),
		catalog:  new(MockCatalog),
		audit:    new(MockAuditor),
	}
	e.router = NewRouter(nil, e.sessions)
	(&AuthHandler{Accounts: e.accts, Sessions: e.sessions}).Register(e.router)
	(&CatalogHandler{Catalog: e.catalog}).Register(e.router)
	(&OrdersHandler{Orders: e.orders, Pipeline: e.pipe, Audit: e.audit, Redis: rdb}).Register(e.router)
	return e
}

func (e *testEnv) token(t *testing.T, p accounts.Principal) string {
	tok, err := e.sessions.Create(context.Background(), p)
	require.NoError(t, err)
	return tok
}

func (e *testEnv) do(method, path, token, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

const placeBody = `{"supplier_id":1,"delivery_date":"2026-11-01","lines":[{"product_id":1,"quantity":2},{"product_id":2,"quantity":1}]}`

func placedResult(mirrorErr error) pipeline.PlaceOrderResult {
	return pipeline.PlaceOrderResult{
		OrderID: 42,
		Total:   decimal.RequireFromString("159.97"),
		Lines: []orders.OrderDetail{
			{ProductID: 1, ProductName: "Oak Wood", Quantity: 2, Price: decimal.RequireFromString("59.99"), LineTotal: decimal.RequireFromString("119.98")},
			{ProductID: 2, ProductName: "Pine Wood", Quantity: 1, Price: decimal.RequireFromString("39.99"), LineTotal: decimal.RequireFromString("39.99")},
		},
		MirrorErr: mirrorErr,
	}
}

func TestHealthz(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestLogin_StartsSession(t *testing.T) {
	e := newTestEnv(t)
	e.accts.On("Login", mock.Anything, buyer.Email, "password").Return(buyer, nil)

	rec := e.do(http.MethodPost, "/login", "", `{"email":"buyer@woodchain.local","password":"password"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == SessionCookie {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(cookie)
	me := httptest.NewRecorder()
	e.router.ServeHTTP(me, req)
	require.Equal(t, http.StatusOK, me.Code)
	assert.Equal(t, float64(1), decodeBody(t, me)["user_id"])
}

func TestLogin_BadCredentials(t *testing.T) {
	e := newTestEnv(t)
	e.accts.On("Login", mock.Anything, "x@y.z", "nope").Return(accounts.Principal{}, accounts.ErrInvalidCredentials)

	rec := e.do(http.MethodPost, "/login", "", `{"email":"x@y.z","password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSignup_DuplicateEmail(t *testing.T) {
	e := newTestEnv(t)
	e.accts.On("Signup", mock.Anything, mock.Anything).Return(accounts.Principal{}, accounts.ErrEmailTaken)

	rec := e.do(http.MethodPost, "/signup", "", `{"user_type":"User","email":"buyer@woodchain.local","password":"secret1","company_name":"X"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "EMAIL_TAKEN", decodeBody(t, rec)["code"])
}

func TestLogout_DropsSession(t *testing.T) {
	e := newTestEnv(t)
	tok := e.token(t, buyer)

	rec := e.do(http.MethodPost, "/logout", tok, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, http.StatusUnauthorized, e.do(http.MethodGet, "/me", tok, "").Code)
}

func TestPlaceOrder_RequiresLogin(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(http.MethodPost, "/orders", "", placeBody)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	e.pipe.AssertNotCalled(t, "PlaceOrder", mock.Anything, mock.Anything, mock.Anything)
}

func TestPlaceOrder_CreatedEvenWhenLedgerBehind(t *testing.T) {
	e := newTestEnv(t)
	e.pipe.On("PlaceOrder", mock.Anything,
		mock.MatchedBy(func(a pipeline.Actor) bool { return a.UserID == 1 && a.SupplierID == 0 }),
		mock.MatchedBy(func(r pipeline.PlaceOrderRequest) bool {
			return r.SupplierID == 1 && len(r.Lines) == 2 && r.ClientTotal == nil &&
				r.DeliveryDate.Equal(time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC))
		}),
	).Return(placedResult(&pipeline.LedgerMirrorError{Op: orders.OpPlaceOrder, OrderID: 42, Err: errors.New("node down")}), nil)

	rec := e.do(http.MethodPost, "/orders", e.token(t, buyer), placeBody)
	require.Equal(t, http.StatusCreated, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, float64(42), body["order_id"])
	assert.Equal(t, "159.97", body["total_price"])
	assert.Equal(t, "Pending", body["delivery_status"])
	assert.Equal(t, "failed", body["ledger_mirror"])

	cached, err := e.mr.Get("order_status:42")
	require.NoError(t, err)
	assert.JSONEq(t, `{"order_id":42,"status":"Pending"}`, cached)
}

func TestPlaceOrder_ClientTotalPassedThrough(t *testing.T) {
	e := newTestEnv(t)
	e.pipe.On("PlaceOrder", mock.Anything, mock.Anything,
		mock.MatchedBy(func(r pipeline.PlaceOrderRequest) bool {
			return r.ClientTotal != nil && r.ClientTotal.Equal(decimal.RequireFromString("159.97"))
		}),
	).Return(placedResult(nil), nil)

	body := `{"supplier_id":1,"delivery_date":"2026-11-01","total_price":"159.97","lines":[{"product_id":1,"quantity":2},{"product_id":2,"quantity":1}]}`
	rec := e.do(http.MethodPost, "/orders", e.token(t, buyer), body)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["ledger_mirror"])
}

func TestPlaceOrder_IdempotencyKeyReplays(t *testing.T) {
	e := newTestEnv(t)
	tok := e.token(t, buyer)
	e.pipe.On("PlaceOrder", mock.Anything, mock.Anything, mock.Anything).Return(placedResult(nil), nil).Once()
	e.orders.On("GetOrder", mock.Anything, int64(42)).Return(orders.Order{
		OrderID: 42, UserID: 1, SupplierID: 1, TotalPrice: decimal.RequireFromString("159.97"), DeliveryStatus: orders.StatusPending,
	}, nil)
	e.orders.On("GetOrderDetails", mock.Anything, int64(42)).Return(placedResult(nil).Lines, nil)

	first := e.do(http.MethodPost, "/orders", tok, placeBody, "Idempotency-Key", "abc")
	require.Equal(t, http.StatusCreated, first.Code)

	again := e.do(http.MethodPost, "/orders", tok, placeBody, "Idempotency-Key", "abc")
	require.Equal(t, http.StatusOK, again.Code)
	body := decodeBody(t, again)
	assert.Equal(t, true, body["idempotent"])
	assert.Equal(t, float64(42), body["order_id"])

	e.pipe.AssertNumberOfCalls(t, "PlaceOrder", 1)
}

func TestPlaceOrder_InFlightKeyConflicts(t *testing.T) {
	e := newTestEnv(t)
	require.NoError(t, e.mr.Set("idem:order:place:1:abc", "pending"))

	rec := e.do(http.MethodPost, "/orders", e.token(t, buyer), placeBody, "Idempotency-Key", "abc")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestPlaceOrder_RejectionReleasesIdempotencyKey(t *testing.T) {
	e := newTestEnv(t)
	e.pipe.On("PlaceOrder", mock.Anything, mock.Anything, mock.Anything).
		Return(pipeline.PlaceOrderResult{}, &pipeline.NotFoundError{Kind: pipeline.ProductNotFound, ID: 9})

	rec := e.do(http.MethodPost, "/orders", e.token(t, buyer), placeBody, "Idempotency-Key", "abc")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "PRODUCT_NOT_FOUND", decodeBody(t, rec)["code"])
	assert.False(t, e.mr.Exists("idem:order:place:1:abc"))
}

func TestPlaceOrder_ClientGoneStillRecordsKey(t *testing.T) {
	e := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// the client disconnects while the order is being committed
	e.pipe.On("PlaceOrder", mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { cancel() }).
		Return(placedResult(nil), nil)

	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(placeBody)).WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.token(t, buyer))
	req.Header.Set("Idempotency-Key", "abc")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	got, err := e.mr.Get("idem:order:place:1:abc")
	require.NoError(t, err)
	assert.Equal(t, "42", got)
	assert.True(t, e.mr.Exists("order_status:42"))
}

func TestPlaceOrder_BadInput(t *testing.T) {
	e := newTestEnv(t)
	tok := e.token(t, buyer)

	for name, body := range map[string]string{
		"date":  `{"supplier_id":1,"delivery_date":"01/11/2026","lines":[{"product_id":1,"quantity":1}]}`,
		"total": `{"supplier_id":1,"delivery_date":"2026-11-01","total_price":"abc","lines":[{"product_id":1,"quantity":1}]}`,
		"json":  `{"supplier_id":`,
	} {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, http.StatusBadRequest, e.do(http.MethodPost, "/orders", tok, body).Code)
		})
	}
	e.pipe.AssertNotCalled(t, "PlaceOrder", mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdateStatus_MirrorFailureIsBadGateway(t *testing.T) {
	e := newTestEnv(t)
	require.NoError(t, e.mr.Set("order_status:42", `{"order_id":42,"status":"Pending"}`))
	e.pipe.On("ConfirmOrder", mock.Anything,
		mock.MatchedBy(func(a pipeline.Actor) bool { return a.UserID == 2 && a.SupplierID == 1 }),
		int64(42), "Confirmed",
	).Return(&pipeline.LedgerMirrorError{Op: orders.OpUpdateStatus, OrderID: 42, FailureID: 7, Err: errors.New("reverted")})

	rec := e.do(http.MethodPost, "/supplier/orders/42/status", e.token(t, supplier), `{"status":"Confirmed"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "LEDGER_MIRROR_FAILED", decodeBody(t, rec)["code"])
	assert.False(t, e.mr.Exists("order_status:42"))
}

func TestUpdateStatus_Confirmed(t *testing.T) {
	e := newTestEnv(t)
	e.pipe.On("ConfirmOrder", mock.Anything, mock.Anything, int64(42), "Confirmed").Return(nil)

	rec := e.do(http.MethodPost, "/supplier/orders/42/status", e.token(t, supplier), `{"status":"Confirmed"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"order_id":42,"status":"Confirmed"}`, rec.Body.String())
}

func TestUpdateStatus_Errors(t *testing.T) {
	e := newTestEnv(t)
	tok := e.token(t, supplier)
	e.pipe.On("ConfirmOrder", mock.Anything, mock.Anything, int64(43), "Confirmed").Return(&pipeline.NotFoundError{Kind: pipeline.OrderNotFound, ID: 43})
	e.pipe.On("ConfirmOrder", mock.Anything, mock.Anything, int64(44), "Shipped").Return(&pipeline.ValidationError{Field: "status", Message: pipeline.ErrMsgUnknownStatus})
	e.pipe.On("ConfirmOrder", mock.Anything, mock.Anything, int64(45), "Confirmed").Return(&pipeline.IdentityResolutionError{UserID: 2, Err: errors.New("unbound")})

	assert.Equal(t, http.StatusNotFound, e.do(http.MethodPost, "/supplier/orders/43/status", tok, `{"status":"Confirmed"}`).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodPost, "/supplier/orders/44/status", tok, `{"status":"Shipped"}`).Code)
	assert.Equal(t, http.StatusServiceUnavailable, e.do(http.MethodPost, "/supplier/orders/45/status", tok, `{"status":"Confirmed"}`).Code)
}

func TestUpdateStatus_BuyerForbidden(t *testing.T) {
	e := newTestEnv(t)
	rec := e.do(http.MethodPost, "/supplier/orders/42/status", e.token(t, buyer), `{"status":"Confirmed"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGetOrder_OnlyPartiesSeeIt(t *testing.T) {
	e := newTestEnv(t)
	e.orders.On("GetOrder", mock.Anything, int64(42)).Return(orders.Order{
		OrderID: 42, UserID: 9, SupplierID: 1, DeliveryDate: time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC),
		TotalPrice: decimal.RequireFromString("159.97"), DeliveryStatus: orders.StatusPending,
	}, nil)
	e.orders.On("GetOrderDetails", mock.Anything, int64(42)).Return(placedResult(nil).Lines, nil)

	assert.Equal(t, http.StatusNotFound, e.do(http.MethodGet, "/orders/42", e.token(t, buyer), "").Code)

	rec := e.do(http.MethodGet, "/orders/42", e.token(t, supplier), "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "2026-11-01", body["delivery_date"])
	assert.Len(t, body["lines"], 2)
}

func TestGetStatus_CachedAfterFirstRead(t *testing.T) {
	e := newTestEnv(t)
	e.orders.On("GetOrder", mock.Anything, int64(42)).Return(orders.Order{OrderID: 42, UserID: 1, SupplierID: 1}, nil)
	e.orders.On("GetOrderStatus", mock.Anything, int64(42)).Return(orders.StatusConfirmed, nil).Once()
	tok := e.token(t, buyer)

	for i := 0; i < 2; i++ {
		rec := e.do(http.MethodGet, "/orders/42/status", tok, "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"order_id":42,"status":"Confirmed"}`, rec.Body.String())
	}
	e.orders.AssertNumberOfCalls(t, "GetOrderStatus", 1)
}

func TestListOrders_ScopedToCaller(t *testing.T) {
	e := newTestEnv(t)
	e.orders.On("ListByUser", mock.Anything, int64(1), "oak").Return([]orders.OrderSummary{
		{Order: orders.Order{OrderID: 42, UserID: 1, SupplierID: 1, TotalPrice: decimal.RequireFromString("10"), DeliveryStatus: orders.StatusPending}, Counterparty: "Default Wood Supplier"},
	}, nil)
	e.orders.On("ListBySupplier", mock.Anything, int64(1), "").Return(nil, nil)

	rec := e.do(http.MethodGet, "/orders?q=oak", e.token(t, buyer), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"counterparty":"Default Wood Supplier"`)
	assert.Contains(t, rec.Body.String(), `"total_price":"10.00"`)

	rec = e.do(http.MethodGet, "/supplier/orders", e.token(t, supplier), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestGetLedger_ReportsDrift(t *testing.T) {
	e := newTestEnv(t)
	e.orders.On("GetOrder", mock.Anything, int64(42)).Return(orders.Order{
		OrderID: 42, UserID: 1, SupplierID: 1, TotalPrice: decimal.RequireFromString("159.97"), DeliveryStatus: orders.StatusConfirmed,
	}, nil)
	e.audit.On("GetOrder", mock.Anything, int64(42)).Return(ledger.Order{OrderID: 42, SupplierID: 1, TotalPrice: 15997, Status: 0}, nil)
	e.audit.On("GetOrderDetails", mock.Anything, int64(42)).Return([]ledger.Line{{ProductID: 1, Quantity: 2, Price: 11998}}, nil)
	e.audit.On("Compare", mock.Anything, int64(42)).Return([]orders.DriftReport{{OrderID: 42, CheckType: "status", Details: "local=1 ledger=0"}}, nil)
	e.audit.On("OpenFailures", mock.Anything, int64(42)).Return([]orders.MirrorFailure{{ID: 5, OrderID: 42, Operation: orders.OpUpdateStatus, Reason: "node down"}}, nil)

	rec := e.do(http.MethodGet, "/orders/42/ledger", e.token(t, buyer), "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, false, body["in_sync"])
	assert.Len(t, body["drift"], 1)
	assert.Len(t, body["open_failures"], 1)
	assert.Equal(t, float64(15997), body["ledger"].(map[string]any)["total_price_minor"])
}

func TestSupplierProducts(t *testing.T) {
	e := newTestEnv(t)
	tok := e.token(t, supplier)
	in := catalog.ProductInput{Name: "Birch Wood", Price: "24.5"}
	e.catalog.On("CreateProduct", mock.Anything, int64(1), in).Return(orders.Product{
		ProductID: 3, SupplierID: 1, Name: "Birch Wood", Price: decimal.RequireFromString("24.5"), Active: true,
	}, nil)
	e.catalog.On("RetireProduct", mock.Anything, int64(1), int64(99)).Return(catalog.ErrNotFound)

	rec := e.do(http.MethodPost, "/supplier/products", tok, `{"name":"Birch Wood","price":"24.5"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "24.50", decodeBody(t, rec)["price"])

	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodPost, "/supplier/products", tok, `{"name":"Birch Wood","price":"-1"}`).Code)
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodDelete, "/supplier/products/99", tok, "").Code)
	assert.Equal(t, http.StatusForbidden, e.do(http.MethodPost, "/supplier/products", e.token(t, buyer), `{"name":"x","price":"1"}`).Code)
}

func TestPublicCatalog(t *testing.T) {
	e := newTestEnv(t)
	e.catalog.On("ListSuppliers", mock.Anything, "wood").Return([]catalog.Supplier{{SupplierID: 1, CompanyName: "Default Wood Supplier"}}, nil)
	e.catalog.On("ListProducts", mock.Anything, int64(1), "").Return([]orders.Product{
		{ProductID: 1, SupplierID: 1, Name: "Oak Wood", Price: decimal.RequireFromString("59.99"), Active: true},
	}, nil)

	rec := e.do(http.MethodGet, "/suppliers?q=wood", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Default Wood Supplier")

	rec = e.do(http.MethodGet, "/suppliers/1/products", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"price":"59.99"`)
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{&pipeline.LocalCommitError{Op: "create order", Err: errors.New("conn reset")}, http.StatusInternalServerError},
		{&pipeline.IdentityResolutionError{UserID: 1, Err: errors.New("unbound")}, http.StatusServiceUnavailable},
		{&pipeline.LedgerMirrorError{Op: orders.OpUpdateStatus, OrderID: 1, Err: errors.New("x")}, http.StatusBadGateway},
		{&accounts.SignupError{Message: "email is invalid"}, http.StatusBadRequest},
		{orders.ErrNotFound, http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		code, _ := classify(c.err)
		assert.Equal(t, c.code, code, c.err.Error())
	}
}
