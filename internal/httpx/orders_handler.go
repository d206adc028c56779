package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/ariefcatur/woodchain/internal/accounts"
	"github.com/ariefcatur/woodchain/internal/ledger"
	"github.com/ariefcatur/woodchain/internal/orders"
	"github.com/ariefcatur/woodchain/internal/pipeline"
	"github.com/ariefcatur/woodchain/internal/redisx"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"net/http"
	"strconv"
	"time"
)

const idemPending = "pending"

// OrderReader is implemented by *orders.Repo.
type OrderReader interface {
	GetOrder(ctx context.Context, orderID int64) (orders.Order, error)
	GetOrderDetails(ctx context.Context, orderID int64) ([]orders.OrderDetail, error)
	GetOrderStatus(ctx context.Context, orderID int64) (orders.Status, error)
	ListByUser(ctx context.Context, userID int64, q string) ([]orders.OrderSummary, error)
	ListBySupplier(ctx context.Context, supplierID int64, q string) ([]orders.OrderSummary, error)
}

// OrderPipeline is implemented by *pipeline.Service.
type OrderPipeline interface {
	PlaceOrder(ctx context.Context, actor pipeline.Actor, req pipeline.PlaceOrderRequest) (pipeline.PlaceOrderResult, error)
	ConfirmOrder(ctx context.Context, actor pipeline.Actor, orderID int64, status string) error
}

// LedgerAuditor reads the ledger side of an order; implemented by *reconcile.Service plus *ledger.Client.
type LedgerAuditor interface {
	GetOrder(ctx context.Context, orderID int64) (ledger.Order, error)
	GetOrderDetails(ctx context.Context, orderID int64) ([]ledger.Line, error)
	Compare(ctx context.Context, orderID int64) ([]orders.DriftReport, error)
	OpenFailures(ctx context.Context, orderID int64) ([]orders.MirrorFailure, error)
}

type OrdersHandler struct {
	Orders   OrderReader
	Pipeline OrderPipeline
	Audit    LedgerAuditor // optional
	Redis    *redis.Client
	Log      *zap.Logger
}

func (h *OrdersHandler) Register(r chi.Router) {
	u := r.With(requireUser)
	u.Post("/orders", h.placeOrder)
	u.Get("/orders", h.listOrders)
	u.Get("/orders/{id}", h.getOrder)
	u.Get("/orders/{id}/status", h.getStatus)
	u.Get("/orders/{id}/ledger", h.getLedger)

	s := r.With(requireSupplier)
	s.Get("/supplier/orders", h.listSupplierOrders)
	s.Post("/supplier/orders/{id}/status", h.updateStatus)
}

type lineReq struct {
	ProductID int64 `json:"product_id"`
	Quantity  int64 `json:"quantity"`
}

type placeOrderReq struct {
	SupplierID   int64     `json:"supplier_id"`
	DeliveryDate string    `json:"delivery_date"` // 2006-01-02
	TotalPrice   *string   `json:"total_price,omitempty"`
	Lines        []lineReq `json:"lines"`
}

type lineView struct {
	ProductID          int64  `json:"product_id"`
	ProductName        string `json:"product_name"`
	ProductDescription string `json:"product_description"`
	Quantity           int64  `json:"quantity"`
	UnitPrice          string `json:"unit_price"`
	LineTotal          string `json:"line_total"`
}

type orderView struct {
	OrderID        int64      `json:"order_id"`
	UserID         int64      `json:"user_id"`
	SupplierID     int64      `json:"supplier_id"`
	OrderDate      time.Time  `json:"order_date"`
	DeliveryDate   string     `json:"delivery_date"`
	TotalPrice     string     `json:"total_price"`
	DeliveryStatus string     `json:"delivery_status"`
	Counterparty   string     `json:"counterparty,omitempty"`
	Lines          []lineView `json:"lines,omitempty"`
}

type placeOrderResp struct {
	OrderID      int64      `json:"order_id"`
	TotalPrice   string     `json:"total_price"`
	Status       string     `json:"delivery_status"`
	Lines        []lineView `json:"lines"`
	LedgerMirror string     `json:"ledger_mirror"` // ok | failed
	Idempotent   bool       `json:"idempotent"`
}

func toLineViews(ds []orders.OrderDetail) []lineView {
	out := make([]lineView, 0, len(ds))
	for _, d := range ds {
		out = append(out, lineView{
			ProductID:          d.ProductID,
			ProductName:        d.ProductName,
			ProductDescription: d.ProductDescription,
			Quantity:           d.Quantity,
			UnitPrice:          d.Price.StringFixed(2),
			LineTotal:          d.LineTotal.StringFixed(2),
		})
	}
	return out
}

func toOrderView(o orders.Order) orderView {
	return orderView{
		OrderID:        o.OrderID,
		UserID:         o.UserID,
		SupplierID:     o.SupplierID,
		OrderDate:      o.Date,
		DeliveryDate:   o.DeliveryDate.Format(time.DateOnly),
		TotalPrice:     o.TotalPrice.StringFixed(2),
		DeliveryStatus: string(o.DeliveryStatus),
	}
}

func actorOf(r *http.Request) pipeline.Actor {
	p, _ := PrincipalFrom(r.Context())
	return pipeline.Actor{UserID: p.UserID, SupplierID: p.SupplierID, TraceID: middleware.GetReqID(r.Context())}
}

func (h *OrdersHandler) placeOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderReq
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	in := pipeline.PlaceOrderRequest{SupplierID: req.SupplierID}
	if req.DeliveryDate != "" {
		d, err := time.Parse(time.DateOnly, req.DeliveryDate)
		if err != nil {
			badRequest(w, "delivery_date must be YYYY-MM-DD")
			return
		}
		in.DeliveryDate = d
	}
	if req.TotalPrice != nil {
		t, err := decimal.NewFromString(*req.TotalPrice)
		if err != nil {
			badRequest(w, "total_price must be a decimal number")
			return
		}
		in.ClientTotal = &t
	}
	for _, l := range req.Lines {
		in.Lines = append(in.Lines, pipeline.LineRequest{ProductID: l.ProductID, Quantity: l.Quantity})
	}

	actor := actorOf(r)
	ctx := r.Context()

	// Idempotency-Key: claim first, store the order id once committed
	var idemKey string
	if k := r.Header.Get("Idempotency-Key"); k != "" && h.Redis != nil {
		idemKey = fmt.Sprintf(redisx.KeyIdemOrderPlace, actor.UserID, k)
		won, err := redisx.Claim(ctx, h.Redis, idemKey, idemPending, redisx.TTLIdempotency)
		if err != nil {
			writeError(w, h.Log, err)
			return
		}
		if !won {
			h.replay(w, r, idemKey)
			return
		}
	}

	res, err := h.Pipeline.PlaceOrder(ctx, actor, in)
	if err != nil {
		if idemKey != "" {
			_ = h.Redis.Del(context.WithoutCancel(ctx), idemKey).Err()
		}
		writeError(w, h.Log, err)
		return
	}

	// the order is committed; a client disconnect must not drop the idempotency record
	bg := context.WithoutCancel(ctx)
	if idemKey != "" {
		_ = h.Redis.Set(bg, idemKey, res.OrderID, redisx.TTLIdempotency).Err()
	}
	h.cacheStatus(bg, res.OrderID, orders.StatusPending)

	resp := placeOrderResp{
		OrderID:      res.OrderID,
		TotalPrice:   res.Total.StringFixed(2),
		Status:       string(orders.StatusPending),
		Lines:        toLineViews(res.Lines),
		LedgerMirror: "ok",
	}
	if res.MirrorErr != nil {
		resp.LedgerMirror = "failed"
	}
	writeJSON(w, http.StatusCreated, resp)
}

// replay answers a repeated Idempotency-Key with the order the first request created.
func (h *OrdersHandler) replay(w http.ResponseWriter, r *http.Request, idemKey string) {
	v, err := h.Redis.Get(r.Context(), idemKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		writeError(w, h.Log, err)
		return
	}
	orderID, perr := strconv.ParseInt(v, 10, 64)
	if v == idemPending || errors.Is(err, redis.Nil) || perr != nil {
		writeJSON(w, http.StatusConflict, errorBody{Error: "a request with this Idempotency-Key is in progress", Code: "IDEMPOTENCY_IN_PROGRESS"})
		return
	}
	o, err := h.Orders.GetOrder(r.Context(), orderID)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	details, err := h.Orders.GetOrderDetails(r.Context(), orderID)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, placeOrderResp{
		OrderID:    o.OrderID,
		TotalPrice: o.TotalPrice.StringFixed(2),
		Status:     string(o.DeliveryStatus),
		Lines:      toLineViews(details),
		Idempotent: true,
	})
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	list, err := h.Orders.ListByUser(ctx, p.UserID, r.URL.Query().Get("q"))
	h.writeSummaries(w, list, err)
}

func (h *OrdersHandler) listSupplierOrders(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	list, err := h.Orders.ListBySupplier(ctx, p.SupplierID, r.URL.Query().Get("q"))
	h.writeSummaries(w, list, err)
}

func (h *OrdersHandler) writeSummaries(w http.ResponseWriter, list []orders.OrderSummary, err error) {
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	out := make([]orderView, 0, len(list))
	for _, s := range list {
		v := toOrderView(s.Order)
		v.Counterparty = s.Counterparty
		out = append(out, v)
	}
	writeJSON(w, http.StatusOK, out)
}

// visibleOrder loads an order the caller placed or supplies; anything else is reported as not found.
func (h *OrdersHandler) visibleOrder(ctx context.Context, p accounts.Principal, orderID int64) (orders.Order, error) {
	o, err := h.Orders.GetOrder(ctx, orderID)
	if err != nil {
		return orders.Order{}, err
	}
	if o.UserID != p.UserID && (p.SupplierID == 0 || o.SupplierID != p.SupplierID) {
		return orders.Order{}, orders.ErrNotFound
	}
	return o, nil
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		badRequest(w, "invalid order id")
		return
	}
	p, _ := PrincipalFrom(r.Context())
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.visibleOrder(ctx, p, id)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	details, err := h.Orders.GetOrderDetails(ctx, id)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	v := toOrderView(o)
	v.Lines = toLineViews(details)
	writeJSON(w, http.StatusOK, v)
}

type statusView struct {
	OrderID int64         `json:"order_id"`
	Status  orders.Status `json:"status"`
}

func (h *OrdersHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		badRequest(w, "invalid order id")
		return
	}
	p, _ := PrincipalFrom(r.Context())
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// visibility check always hits the DB; only the status itself is cached
	if _, err := h.visibleOrder(ctx, p, id); err != nil {
		writeError(w, h.Log, err)
		return
	}

	// 1) coba cache
	key := fmt.Sprintf(redisx.KeyOrderStatus, id)
	if h.Redis != nil {
		if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
			writeJSON(w, http.StatusOK, json.RawMessage(s))
			return
		}
	}

	// 2) fallback DB
	status, err := h.Orders.GetOrderStatus(ctx, id)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	h.cacheStatus(ctx, id, status)
	writeJSON(w, http.StatusOK, statusView{OrderID: id, Status: status})
}

func (h *OrdersHandler) cacheStatus(ctx context.Context, orderID int64, s orders.Status) {
	if h.Redis == nil {
		return
	}
	b, _ := json.Marshal(statusView{OrderID: orderID, Status: s})
	_ = h.Redis.Set(ctx, fmt.Sprintf(redisx.KeyOrderStatus, orderID), b, redisx.TTLStatusCache).Err()
}

type updateStatusReq struct {
	Status string `json:"status"`
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		badRequest(w, "invalid order id")
		return
	}
	var req updateStatusReq
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid json")
		return
	}

	err := h.Pipeline.ConfirmOrder(r.Context(), actorOf(r), id, req.Status)
	var mirror *pipeline.LedgerMirrorError
	if err == nil || errors.As(err, &mirror) {
		// local state moved in both cases
		if h.Redis != nil {
			_ = h.Redis.Del(context.WithoutCancel(r.Context()), fmt.Sprintf(redisx.KeyOrderStatus, id)).Err()
		}
	}
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, statusView{OrderID: id, Status: orders.StatusConfirmed})
}

type ledgerOrderView struct {
	OrderID      int64  `json:"order_id"`
	Buyer        string `json:"buyer"`
	SupplierID   int64  `json:"supplier_id"`
	DeliveryDate string `json:"delivery_date"`
	TotalPrice   int64  `json:"total_price_minor"`
	Status       uint8  `json:"status"`
}

type ledgerLineView struct {
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int64  `json:"quantity"`
	Price       int64  `json:"price_minor"`
}

type auditView struct {
	Local       orderView            `json:"local"`
	Ledger      *ledgerOrderView     `json:"ledger,omitempty"`
	LedgerLines []ledgerLineView     `json:"ledger_lines,omitempty"`
	LedgerError string               `json:"ledger_error,omitempty"`
	Drift       []orders.DriftReport `json:"drift"`
	Open        []failureView        `json:"open_failures"`
	InSync      bool                 `json:"in_sync"`
}

type failureView struct {
	ID        int64     `json:"id"`
	Operation string    `json:"operation"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// getLedger shows the ledger projection next to the local record. Read only.
func (h *OrdersHandler) getLedger(w http.ResponseWriter, r *http.Request) {
	if h.Audit == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "ledger audit disabled", Code: "LEDGER_UNAVAILABLE"})
		return
	}
	id, ok := idParam(r, "id")
	if !ok {
		badRequest(w, "invalid order id")
		return
	}
	p, _ := PrincipalFrom(r.Context())
	ctx := r.Context()

	o, err := h.visibleOrder(ctx, p, id)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	out := auditView{Local: toOrderView(o)}

	if lo, err := h.Audit.GetOrder(ctx, id); err != nil {
		out.LedgerError = err.Error()
	} else {
		out.Ledger = &ledgerOrderView{
			OrderID:      lo.OrderID,
			Buyer:        lo.Buyer.Hex(),
			SupplierID:   lo.SupplierID,
			DeliveryDate: lo.DeliveryDate.Format(time.DateOnly),
			TotalPrice:   lo.TotalPrice,
			Status:       lo.Status,
		}
		if lines, err := h.Audit.GetOrderDetails(ctx, id); err == nil {
			for _, l := range lines {
				out.LedgerLines = append(out.LedgerLines, ledgerLineView{ProductID: l.ProductID, ProductName: l.ProductName, Quantity: l.Quantity, Price: l.Price})
			}
		}
	}

	drift, err := h.Audit.Compare(ctx, id)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	if drift == nil {
		drift = []orders.DriftReport{}
	}
	out.Drift = drift
	out.InSync = len(drift) == 0

	open, err := h.Audit.OpenFailures(ctx, id)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	out.Open = make([]failureView, 0, len(open))
	for _, f := range open {
		out.Open = append(out.Open, failureView{ID: f.ID, Operation: string(f.Operation), Reason: f.Reason, CreatedAt: f.CreatedAt})
	}
	writeJSON(w, http.StatusOK, out)
}
