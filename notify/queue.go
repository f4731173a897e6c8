package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/warp/lending-engine/lending"
	"github.com/warp/lending-engine/logging"
)

const DefaultTopic = "library.notices"

// Queue is an in-process notice queue. It implements lending.NoticeDispatcher.
type Queue struct {
	pubsub *gochannel.GoChannel
	topic  string
}

var _ lending.NoticeDispatcher = (*Queue)(nil)

func NewQueue(topic string, log zerolog.Logger) *Queue {
	if topic == "" {
		topic = DefaultTopic
	}
	ps := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 64},
		logging.NewWatermillAdapter(log),
	)
	return &Queue{pubsub: ps, topic: topic}
}

// Dispatch publishes n. Messages published while no worker is subscribed
// are dropped.
func (q *Queue) Dispatch(_ context.Context, n lending.Notice) error {
	payload, err := encodeNotice(n)
	if err != nil {
		return err
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("kind", string(n.Kind))
	if err := q.pubsub.Publish(q.topic, msg); err != nil {
		return fmt.Errorf("publish %s notice: %w", n.Kind, err)
	}
	return nil
}

func (q *Queue) Subscriber() message.Subscriber { return q.pubsub }

func (q *Queue) Topic() string { return q.topic }

func (q *Queue) Close() error { return q.pubsub.Close() }

// =============================================================================
// WIRE FORMAT
// =============================================================================

type noticePayload struct {
	Kind         lending.NoticeKind `json:"kind"`
	LoanID       lending.LoanID     `json:"loan_id"`
	AccountID    lending.AccountID  `json:"account_id"`
	AccountName  string             `json:"account_name"`
	AccountEmail string             `json:"account_email"`
	BookID       lending.BookID     `json:"book_id"`
	BookTitle    string             `json:"book_title"`
	DueDate      *lending.Date      `json:"due_date,omitempty"`
	Fine         decimal.Decimal    `json:"fine"`
	At           time.Time          `json:"at"`
}

func encodeNotice(n lending.Notice) ([]byte, error) {
	b, err := json.Marshal(noticePayload(n))
	if err != nil {
		return nil, fmt.Errorf("encode notice: %w", err)
	}
	return b, nil
}

func decodeNotice(b []byte) (lending.Notice, error) {
	var p noticePayload
	if err := json.Unmarshal(b, &p); err != nil {
		return lending.Notice{}, fmt.Errorf("decode notice: %w", err)
	}
	return lending.Notice(p), nil
}
