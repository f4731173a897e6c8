package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/warp/lending-engine/lending"
	"github.com/warp/lending-engine/metrics"
)

// BreakerSettings controls when the worker stops calling the mailer.
type BreakerSettings struct {
	// Failures is the number of consecutive send errors that opens the breaker.
	Failures uint32
	// Timeout is how long the breaker stays open before a trial send.
	Timeout time.Duration
}

func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{Failures: 5, Timeout: 30 * time.Second}
}

// Delivery outcomes, also used as metric labels.
const (
	ResultSent     = "sent"
	ResultSkipped  = "skipped"
	ResultFailed   = "failed"
	ResultRejected = "rejected"
)

// Worker consumes notices from a subscriber and mails them.
type Worker struct {
	sub    message.Subscriber
	topic  string
	mailer Mailer
	cb     *gobreaker.CircuitBreaker[interface{}]
	log    zerolog.Logger
	done   chan struct{}
}

func NewWorker(sub message.Subscriber, topic string, mailer Mailer, bs BreakerSettings, log zerolog.Logger) *Worker {
	if bs.Failures == 0 {
		bs.Failures = DefaultBreakerSettings().Failures
	}
	w := &Worker{
		sub:    sub,
		topic:  topic,
		mailer: mailer,
		log:    log,
		done:   make(chan struct{}),
	}

	metrics.MailerBreakerState.Set(0)
	w.cb = gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        "mailer",
		MaxRequests: 1,
		Timeout:     bs.Timeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= bs.Failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			w.log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("mailer circuit breaker state change")
			metrics.MailerBreakerState.Set(stateValue(to))
		},
	})
	return w
}

// Start subscribes and processes messages in the background until ctx is
// cancelled. The subscription exists when Start returns.
func (w *Worker) Start(ctx context.Context) error {
	msgs, err := w.sub.Subscribe(ctx, w.topic)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", w.topic, err)
	}
	go w.loop(ctx, msgs)
	return nil
}

// Done is closed when the processing loop exits.
func (w *Worker) Done() <-chan struct{} { return w.done }

func (w *Worker) loop(ctx context.Context, msgs <-chan *message.Message) {
	defer close(w.done)
	for msg := range msgs {
		n, err := decodeNotice(msg.Payload)
		if err != nil {
			w.log.Error().Err(err).Str("message_uuid", msg.UUID).Msg("dropping undecodable notice")
			metrics.NoticesDelivered.WithLabelValues(msg.Metadata.Get("kind"), ResultFailed).Inc()
			msg.Ack()
			continue
		}
		_, _ = w.Deliver(ctx, n)
		msg.Ack()
	}
}

// Deliver composes and sends one notice. It returns the outcome label and
// the send error, if any.
func (w *Worker) Deliver(ctx context.Context, n lending.Notice) (string, error) {
	result, err := w.deliver(ctx, n)
	metrics.NoticesDelivered.WithLabelValues(string(n.Kind), result).Inc()
	return result, err
}

func (w *Worker) deliver(ctx context.Context, n lending.Notice) (string, error) {
	mail, ok := Compose(n)
	if !ok {
		w.log.Debug().Str("loan_id", string(n.LoanID)).Msg("no email address; notice skipped")
		return ResultSkipped, nil
	}

	_, err := w.cb.Execute(func() (interface{}, error) {
		return nil, w.mailer.Send(ctx, mail)
	})
	switch {
	case err == nil:
		return ResultSent, nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		w.log.Warn().Str("loan_id", string(n.LoanID)).Str("kind", string(n.Kind)).Msg("mailer unavailable; notice dropped")
		return ResultRejected, err
	default:
		w.log.Error().Err(err).Str("loan_id", string(n.LoanID)).Str("to", mail.To).Msg("send notice")
		return ResultFailed, err
	}
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
