package reconcile

import (
	"context"
	"errors"
	"fmt"
	kafkax "github.com/ariefcatur/woodchain/internal/kafka"
	"github.com/ariefcatur/woodchain/internal/ledger"
	"github.com/ariefcatur/woodchain/internal/metrics"
	"github.com/ariefcatur/woodchain/internal/orders"
	"github.com/ariefcatur/woodchain/internal/redisx"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"time"
)

const (
	CheckMissing    = "missing"
	CheckLedgerRead = "ledger_read"
	CheckTotal      = "total"
	CheckStatus     = "status"
	CheckSupplier   = "supplier"
	CheckLines      = "lines"
)

type LocalReader interface {
	GetOrder(ctx context.Context, orderID int64) (orders.Order, error)
	GetOrderDetails(ctx context.Context, orderID int64) ([]orders.OrderDetail, error)
}

type LedgerReader interface {
	GetOrder(ctx context.Context, orderID int64) (ledger.Order, error)
	GetOrderDetails(ctx context.Context, orderID int64) ([]ledger.Line, error)
}

type Store interface {
	Pending(ctx context.Context, orderID int64) ([]orders.MirrorFailure, error)
	RecordDrift(ctx context.Context, reports []orders.DriftReport) error
	MarkReconciled(ctx context.Context, orderID int64, at time.Time) (int64, error)
	OpenOrders(ctx context.Context, limit int) ([]int64, error)
}

// Service compares the ledger projection of an order against the local record. It only reads the ledger.
type Service struct {
	Local       LocalReader
	Ledger      LedgerReader
	Store       Store
	Redis       *redis.Client
	Log         *zap.Logger
	ServiceName string
}

// Compare returns one report per mismatch; an empty result means the ledger agrees with the local store.
func (s *Service) Compare(ctx context.Context, orderID int64) ([]orders.DriftReport, error) {
	local, err := s.Local.GetOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("local order %d: %w", orderID, err)
	}
	details, err := s.Local.GetOrderDetails(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("local order %d details: %w", orderID, err)
	}

	drift := func(check, format string, args ...any) orders.DriftReport {
		return orders.DriftReport{OrderID: orderID, CheckType: check, Details: fmt.Sprintf(format, args...)}
	}

	remote, err := s.Ledger.GetOrder(ctx, orderID)
	if err != nil {
		return []orders.DriftReport{drift(CheckLedgerRead, "getOrder: %v", err)}, nil
	}
	if remote.OrderID == 0 {
		return []orders.DriftReport{drift(CheckMissing, "order absent from ledger")}, nil
	}

	var out []orders.DriftReport
	if want := orders.MinorUnits(local.TotalPrice); want != remote.TotalPrice {
		out = append(out, drift(CheckTotal, "local=%d ledger=%d", want, remote.TotalPrice))
	}
	if want := local.DeliveryStatus.LedgerCode(); want != remote.Status {
		out = append(out, drift(CheckStatus, "local=%d ledger=%d", want, remote.Status))
	}
	if local.SupplierID != remote.SupplierID {
		out = append(out, drift(CheckSupplier, "local=%d ledger=%d", local.SupplierID, remote.SupplierID))
	}

	lines, err := s.Ledger.GetOrderDetails(ctx, orderID)
	if err != nil {
		return append(out, drift(CheckLedgerRead, "getOrderDetails: %v", err)), nil
	}
	if len(lines) != len(details) {
		return append(out, drift(CheckLines, "local=%d lines ledger=%d lines", len(details), len(lines))), nil
	}
	for i, d := range details {
		l := lines[i]
		if l.ProductID != d.ProductID || l.Quantity != d.Quantity || l.Price != orders.MinorUnits(d.LineTotal) {
			out = append(out, drift(CheckLines, "line %d: local product=%d qty=%d price=%d ledger product=%d qty=%d price=%d",
				i, d.ProductID, d.Quantity, orders.MinorUnits(d.LineTotal), l.ProductID, l.Quantity, l.Price))
		}
	}
	return out, nil
}

// OpenFailures lists the mirror failures of the order that are still waiting for reconciliation.
func (s *Service) OpenFailures(ctx context.Context, orderID int64) ([]orders.MirrorFailure, error) {
	return s.Store.Pending(ctx, orderID)
}

// HandleMirrorFailed: dipasang sebagai handler consumer untuk topic ledger.mirror.failed.
func (s *Service) HandleMirrorFailed(ctx context.Context, m kafkago.Message) error {
	env, err := kafkax.DecodeEnvelope(m.Value)
	if err != nil {
		return err
	}
	if env.EventType != orders.EventLedgerMirrorFailed {
		return nil
	}

	dkey := fmt.Sprintf(redisx.KeyDedup, s.ServiceName, env.EventID)
	if s.Redis != nil {
		won, err := redisx.Claim(ctx, s.Redis, dkey, "1", redisx.TTLDedup)
		if err != nil {
			return err
		}
		if !won {
			return nil
		}
	}

	if err := s.reconcile(ctx, env); err != nil {
		if s.Redis != nil {
			// let the redelivery try again
			_ = s.Redis.Del(ctx, dkey).Err()
		}
		return err
	}
	return nil
}

func (s *Service) reconcile(ctx context.Context, env orders.Envelope) error {
	p, err := kafkax.UnwrapPayload[orders.LedgerMirrorFailedPayload](env.Payload)
	if err != nil {
		return err
	}
	log := s.logger().With(zap.Int64("order_id", p.OrderID), zap.String("operation", string(p.Operation)), zap.String("trace_id", env.TraceID))

	reports, err := s.Compare(ctx, p.OrderID)
	if errors.Is(err, orders.ErrNotFound) {
		log.Warn("mirror failure for unknown order, skipped")
		return nil
	}
	if err != nil {
		return err
	}

	if len(reports) == 0 {
		n, err := s.Store.MarkReconciled(ctx, p.OrderID, time.Now().UTC())
		if err != nil {
			return err
		}
		log.Info("ledger in sync, failure closed", zap.Int64("closed", n))
		return nil
	}
	if err := s.Store.RecordDrift(ctx, reports); err != nil {
		return err
	}
	metrics.DriftReportsTotal.Add(float64(len(reports)))
	for _, r := range reports {
		log.Warn("ledger drift", zap.String("check", r.CheckType), zap.String("details", r.Details))
	}
	return nil
}

// Sweep re-compares up to batch orders that still have open mirror failures and closes those
// the ledger now agrees with. It covers failures whose event was never published or consumed.
// Drift found here is only logged; the event path already recorded it.
func (s *Service) Sweep(ctx context.Context, batch int) (int, error) {
	ids, err := s.Store.OpenOrders(ctx, batch)
	if err != nil {
		return 0, fmt.Errorf("open orders: %w", err)
	}
	closed := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return closed, ctx.Err()
		}
		log := s.logger().With(zap.Int64("order_id", id))
		reports, err := s.Compare(ctx, id)
		if err != nil {
			metrics.ReconcileSweepTotal.WithLabelValues("error").Inc()
			log.Warn("sweep compare failed", zap.Error(err))
			continue
		}
		if len(reports) > 0 {
			metrics.ReconcileSweepTotal.WithLabelValues("drift").Inc()
			log.Debug("sweep: ledger still drifting", zap.Int("reports", len(reports)))
			continue
		}
		if _, err := s.Store.MarkReconciled(ctx, id, time.Now().UTC()); err != nil {
			metrics.ReconcileSweepTotal.WithLabelValues("error").Inc()
			log.Warn("sweep mark reconciled failed", zap.Error(err))
			continue
		}
		metrics.ReconcileSweepTotal.WithLabelValues("closed").Inc()
		closed++
	}
	return closed, nil
}

// RunSweeper calls Sweep every interval until ctx is done. interval <= 0 disables it.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration, batch int) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := s.Sweep(ctx, batch)
			if err != nil && ctx.Err() == nil {
				s.logger().Error("sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				s.logger().Info("sweep closed mirror failures", zap.Int("orders", n))
			}
		}
	}
}

func (s *Service) logger() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}
