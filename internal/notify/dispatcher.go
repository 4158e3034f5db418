package notify

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/vikasavnish/savepad/internal/telemetry"
)

// Dispatcher sends notifications in the background so a slow or broken bot
// never holds up the request that triggered them. Failures are logged once
// and dropped.
type Dispatcher struct {
	next    Notifier
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewDispatcher(next Notifier, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{next: next, timeout: timeout}
}

func (d *Dispatcher) NotifyFamily(_ context.Context, msg FamilyMessage) error {
	d.run(msg.Action, func(ctx context.Context) error {
		return d.next.NotifyFamily(ctx, msg)
	})
	return nil
}

func (d *Dispatcher) NotifyPayment(_ context.Context, msg PaymentMessage) error {
	d.run("payment", func(ctx context.Context) error {
		return d.next.NotifyPayment(ctx, msg)
	})
	return nil
}

// run detaches from the request context: the request is usually finished
// by the time the bot answers.
func (d *Dispatcher) run(action string, send func(ctx context.Context) error) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		if err := send(ctx); err != nil {
			telemetry.Business.ObserveNotification(action, "failed")
			log.Warn().Err(err).Str("action", action).Msg("bot notification dropped")
			return
		}
		telemetry.Business.ObserveNotification(action, "sent")
		log.Debug().Str("action", action).Msg("bot notification sent")
	}()
}

// Wait blocks until every in-flight notification finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
