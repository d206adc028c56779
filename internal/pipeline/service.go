package pipeline

import (
	"context"
	"errors"
	"github.com/ariefcatur/woodchain/internal/identity"
	kafkax "github.com/ariefcatur/woodchain/internal/kafka"
	"github.com/ariefcatur/woodchain/internal/ledger"
	"github.com/ariefcatur/woodchain/internal/metrics"
	"github.com/ariefcatur/woodchain/internal/orders"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"time"
)

type OrderStore interface {
	ProductsForOrder(ctx context.Context, supplierID int64, ids []int64) (map[int64]orders.Product, error)
	CreateOrder(ctx context.Context, o *orders.Order, details []orders.OrderDetail) error
	ConfirmOrder(ctx context.Context, orderID, supplierID int64) error
}

type MirrorStore interface {
	RecordFailure(ctx context.Context, orderID int64, op orders.MirrorOperation, reason string) (int64, error)
}

type Ledger interface {
	PlaceOrder(ctx context.Context, from ledger.Identity, in ledger.PlaceOrderInput) error
	UpdateOrderStatus(ctx context.Context, from ledger.Identity, orderID int64, status uint8) error
}

// Publisher is implemented by *kafka.Producer.
type Publisher interface {
	PublishEvent(topic string, env orders.Envelope)
}

type MissingProductPolicy int

const (
	// AbortOnMissing rejects the whole order when a line's product cannot be resolved.
	AbortOnMissing MissingProductPolicy = iota
	// PlaceholderOnMissing keeps the line as a zero-priced "Product not found" entry.
	PlaceholderOnMissing
)

func ParseMissingProductPolicy(s string) MissingProductPolicy {
	if s == "placeholder" {
		return PlaceholderOnMissing
	}
	return AbortOnMissing
}

const placeholderName = "Product not found"

// MaxLineQuantity bounds a line after repeated products are merged.
const MaxLineQuantity int64 = 1_000_000

var maxTotalDrift = decimal.RequireFromString("0.01")

// Actor is the authenticated caller. SupplierID is zero for buyers.
type Actor struct {
	UserID     int64
	SupplierID int64
	TraceID    string
}

type LineRequest struct {
	ProductID int64
	Quantity  int64
}

type PlaceOrderRequest struct {
	SupplierID   int64
	Lines        []LineRequest
	DeliveryDate time.Time
	ClientTotal  *decimal.Decimal // optional, only checked against the computed total
}

type PlaceOrderResult struct {
	OrderID int64
	Total   decimal.Decimal
	Lines   []orders.OrderDetail
	// MirrorErr is a *LedgerMirrorError when the order is committed but the ledger is behind.
	MirrorErr error
}

// Service is the dual-write pipeline: local store first, ledger mirror second, at most one mirror attempt per call.
type Service struct {
	Orders   OrderStore
	Mirror   MirrorStore
	Ledger   Ledger
	Identity identity.Mapper
	Events   Publisher // optional
	Log      *zap.Logger
	Policy   MissingProductPolicy
	Producer string
	Now      func() time.Time
}

func (s *Service) logger() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *Service) PlaceOrder(ctx context.Context, actor Actor, req PlaceOrderRequest) (PlaceOrderResult, error) {
	lines, err := validatePlacement(actor, req)
	if err != nil {
		return PlaceOrderResult{}, err
	}

	ids := make([]int64, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ProductID)
	}
	products, err := s.Orders.ProductsForOrder(ctx, req.SupplierID, ids)
	if err != nil {
		return PlaceOrderResult{}, &LocalCommitError{Op: "resolve products", Err: err}
	}

	details := make([]orders.OrderDetail, 0, len(lines))
	total := decimal.Zero
	for _, l := range lines {
		p, ok := products[l.ProductID]
		if !ok {
			if s.Policy != PlaceholderOnMissing {
				return PlaceOrderResult{}, &NotFoundError{Kind: ProductNotFound, ID: l.ProductID}
			}
			p = orders.Product{ProductID: l.ProductID, Name: placeholderName, Price: decimal.Zero}
		}
		lt := orders.LineTotal(p.Price, l.Quantity)
		total = total.Add(lt)
		details = append(details, orders.OrderDetail{
			ProductID:          p.ProductID,
			ProductName:        p.Name,
			ProductDescription: p.Description,
			Quantity:           l.Quantity,
			Price:              p.Price,
			LineTotal:          lt,
		})
	}
	if req.ClientTotal != nil && req.ClientTotal.Sub(total).Abs().GreaterThan(maxTotalDrift) {
		return PlaceOrderResult{}, invalid("total_price", ErrMsgTotalMismatch)
	}

	order := &orders.Order{
		UserID:         actor.UserID,
		SupplierID:     req.SupplierID,
		Date:           s.now(),
		DeliveryDate:   dateOnly(req.DeliveryDate),
		TotalPrice:     total,
		DeliveryStatus: orders.StatusPending,
	}
	if err := s.Orders.CreateOrder(ctx, order, details); err != nil {
		return PlaceOrderResult{}, &LocalCommitError{Op: "create order", Err: err}
	}
	metrics.OrdersPlacedTotal.Inc()
	s.logger().Info("order placed", zap.Int64("order_id", order.OrderID), zap.Int64("user_id", actor.UserID),
		zap.Int64("supplier_id", req.SupplierID), zap.String("total", total.StringFixed(2)))

	// the local commit is final from here on; a client disconnect must not abort the mirror half-way
	mctx := context.WithoutCancel(ctx)
	mirrorErr := s.mirrorPlacement(mctx, actor, order, details)
	if mirrorErr != nil {
		s.recordMirrorFailure(mctx, actor, mirrorErr)
	}

	s.emit(orders.TopicOrderPlaced, orders.EventOrderPlaced, actor, order.OrderID, placedPayload(order, details, mirrorErr == nil))

	res := PlaceOrderResult{OrderID: order.OrderID, Total: total, Lines: details}
	if mirrorErr != nil {
		res.MirrorErr = mirrorErr
	}
	return res, nil
}

func (s *Service) mirrorPlacement(ctx context.Context, actor Actor, o *orders.Order, details []orders.OrderDetail) *LedgerMirrorError {
	from, err := s.Identity.Resolve(ctx, actor.UserID)
	if err != nil {
		return &LedgerMirrorError{Op: orders.OpPlaceOrder, OrderID: o.OrderID, Err: &IdentityResolutionError{UserID: actor.UserID, Err: err}}
	}
	in := ledger.PlaceOrderInput{
		SupplierID:   o.SupplierID,
		DeliveryDate: o.DeliveryDate,
		TotalPrice:   orders.MinorUnits(o.TotalPrice),
		Lines:        make([]ledger.Line, 0, len(details)),
	}
	for _, d := range details {
		in.Lines = append(in.Lines, ledger.Line{
			OrderID:            o.OrderID,
			ProductID:          d.ProductID,
			ProductName:        d.ProductName,
			ProductDescription: d.ProductDescription,
			Quantity:           d.Quantity,
			Price:              orders.MinorUnits(d.LineTotal),
		})
	}
	if err := s.Ledger.PlaceOrder(ctx, from, in); err != nil {
		return &LedgerMirrorError{Op: orders.OpPlaceOrder, OrderID: o.OrderID, Err: err}
	}
	return nil
}

// ConfirmOrder moves a Pending order of the acting supplier to Confirmed, then mirrors the new status.
// A *LedgerMirrorError return means the order IS confirmed locally and the ledger is stale.
func (s *Service) ConfirmOrder(ctx context.Context, actor Actor, orderID int64, status string) error {
	if orderID <= 0 {
		return invalid("order_id", ErrMsgOrderIDRequired)
	}
	if status == "" {
		return invalid("status", ErrMsgStatusRequired)
	}
	target, err := orders.ParseStatus(status)
	if err != nil {
		return invalid("status", ErrMsgUnknownStatus)
	}
	if !orders.CanTransition(orders.StatusPending, target) {
		return invalid("status", ErrMsgTransitionInvalid)
	}
	if actor.UserID <= 0 {
		return invalid("", ErrMsgUnauthenticated)
	}
	if actor.SupplierID <= 0 {
		return invalid("", ErrMsgNotSupplier)
	}

	from, err := s.Identity.Resolve(ctx, actor.UserID)
	if err != nil {
		return &IdentityResolutionError{UserID: actor.UserID, Err: err}
	}

	if err := s.Orders.ConfirmOrder(ctx, orderID, actor.SupplierID); err != nil {
		if errors.Is(err, orders.ErrNotFound) {
			return &NotFoundError{Kind: OrderNotFound, ID: orderID}
		}
		return &LocalCommitError{Op: "confirm order", Err: err}
	}
	metrics.OrdersConfirmedTotal.Inc()
	s.logger().Info("order confirmed", zap.Int64("order_id", orderID), zap.Int64("supplier_id", actor.SupplierID))

	mctx := context.WithoutCancel(ctx)
	var mirrorErr *LedgerMirrorError
	if err := s.Ledger.UpdateOrderStatus(mctx, from, orderID, target.LedgerCode()); err != nil {
		mirrorErr = &LedgerMirrorError{Op: orders.OpUpdateStatus, OrderID: orderID, Err: err}
		s.recordMirrorFailure(mctx, actor, mirrorErr)
	}

	s.emit(orders.TopicOrderConfirmed, orders.EventOrderConfirmed, actor, orderID, orders.OrderConfirmedPayload{
		OrderID:      orderID,
		SupplierID:   actor.SupplierID,
		Status:       target,
		LedgerSynced: mirrorErr == nil,
	})
	if mirrorErr != nil {
		return mirrorErr
	}
	return nil
}

// recordMirrorFailure makes a divergence observable: error log, metric, durable row and event.
func (s *Service) recordMirrorFailure(ctx context.Context, actor Actor, e *LedgerMirrorError) {
	metrics.LedgerMirrorFailuresTotal.WithLabelValues(string(e.Op)).Inc()
	s.logger().Error("ledger mirror failed",
		zap.Int64("order_id", e.OrderID),
		zap.String("operation", string(e.Op)),
		zap.Int64("user_id", actor.UserID),
		zap.Error(e.Err))

	if s.Mirror != nil {
		id, err := s.Mirror.RecordFailure(ctx, e.OrderID, e.Op, e.Err.Error())
		if err != nil {
			s.logger().Error("mirror failure not recorded", zap.Int64("order_id", e.OrderID), zap.Error(err))
		}
		e.FailureID = id
	}

	s.emit(orders.TopicLedgerMirrorFailed, orders.EventLedgerMirrorFailed, actor, e.OrderID, orders.LedgerMirrorFailedPayload{
		FailureID: e.FailureID,
		OrderID:   e.OrderID,
		Operation: e.Op,
		Reason:    e.Err.Error(),
	})
}

func (s *Service) emit(topic, eventType string, actor Actor, orderID int64, payload any) {
	if s.Events == nil {
		return
	}
	s.Events.PublishEvent(topic, kafkax.NewEnvelope(eventType, s.Producer, actor.TraceID, orderID, payload))
}

func validatePlacement(actor Actor, req PlaceOrderRequest) ([]LineRequest, error) {
	if actor.UserID <= 0 {
		return nil, invalid("", ErrMsgUnauthenticated)
	}
	if req.SupplierID <= 0 {
		return nil, invalid("supplier_id", ErrMsgSupplierRequired)
	}
	if len(req.Lines) == 0 {
		return nil, invalid("lines", ErrMsgLinesRequired)
	}
	if req.DeliveryDate.IsZero() {
		return nil, invalid("delivery_date", ErrMsgDeliveryRequired)
	}

	// repeated products collapse into one line, first position wins
	merged := make([]LineRequest, 0, len(req.Lines))
	index := make(map[int64]int, len(req.Lines))
	for _, l := range req.Lines {
		if l.ProductID <= 0 {
			return nil, invalid("product_id", ErrMsgProductRequired)
		}
		if l.Quantity <= 0 {
			return nil, invalid("quantity", ErrMsgQuantityPositive)
		}
		if l.Quantity > MaxLineQuantity {
			return nil, invalid("quantity", ErrMsgQuantityTooLarge)
		}
		if i, ok := index[l.ProductID]; ok {
			// both sides are <= MaxLineQuantity here, the sum cannot wrap
			if merged[i].Quantity+l.Quantity > MaxLineQuantity {
				return nil, invalid("quantity", ErrMsgQuantityTooLarge)
			}
			merged[i].Quantity += l.Quantity
			continue
		}
		index[l.ProductID] = len(merged)
		merged = append(merged, l)
	}
	return merged, nil
}

func placedPayload(o *orders.Order, details []orders.OrderDetail, synced bool) orders.OrderPlacedPayload {
	p := orders.OrderPlacedPayload{
		OrderID:      o.OrderID,
		UserID:       o.UserID,
		SupplierID:   o.SupplierID,
		DeliveryDate: o.DeliveryDate.Format(time.DateOnly),
		TotalPrice:   o.TotalPrice.StringFixed(2),
		Lines:        make([]orders.LinePayload, 0, len(details)),
		LedgerSynced: synced,
	}
	for _, d := range details {
		p.Lines = append(p.Lines, orders.LinePayload{
			ProductID: d.ProductID,
			Quantity:  d.Quantity,
			UnitPrice: d.Price.StringFixed(2),
			LineTotal: d.LineTotal.StringFixed(2),
		})
	}
	return p
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
