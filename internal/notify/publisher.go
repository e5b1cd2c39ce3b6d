package notify

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// Publisher sends a single event.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// LogPublisher writes events to the logger. It is used when no broker is
// configured.
type LogPublisher struct {
	lg *zap.Logger
}

func NewLogPublisher(lg *zap.Logger) *LogPublisher {
	return &LogPublisher{lg: lg}
}

func (p *LogPublisher) Publish(_ context.Context, ev Event) error {
	p.lg.Info("Order event",
		zap.String("type", string(ev.Type)),
		zap.String("order_reference", ev.Reference),
		zap.String("status", ev.Status),
		zap.String("payment_status", ev.PaymentStatus),
	)
	return nil
}

// Dispatcher publishes events in the background. Delivery failures are logged
// and never reach the caller.
type Dispatcher struct {
	pub     Publisher
	timeout time.Duration
	wg      sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewDispatcher wraps pub. Each publish gets its own timeout.
func NewDispatcher(pub Publisher, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Dispatcher{pub: pub, timeout: timeout}
}

// Dispatch schedules ev for delivery and returns immediately. The request
// context only contributes its logger; cancellation does not abort delivery.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		zctx.From(ctx).Warn("Dropping event, dispatcher closed", zap.String("type", string(ev.Type)))
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	go func() {
		defer d.wg.Done()

		ctx, cancel := context.WithTimeout(ctx, d.timeout)
		defer cancel()

		if err := d.pub.Publish(ctx, ev); err != nil {
			zctx.From(ctx).Warn("Failed to publish order event",
				zap.String("type", string(ev.Type)),
				zap.String("order_reference", ev.Reference),
				zap.Error(err),
			)
		}
	}()
}

// Close stops accepting events and waits for in-flight deliveries.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "wait for pending events")
	}
}
