package api

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	redisAdapter "auctionhouse/adapters/redis"
	"auctionhouse/adapters/sse"
	"auctionhouse/auction"
)

// EventPublisher 實作 auction.Publisher。有設定 producer 時事件寫入 Redis Stream，
// 由每個實例的 consumer 轉發給本機 SSE 訂閱者；否則直接推送給本機訂閱者
type EventPublisher struct {
	producer redisAdapter.IProducer[EventMessage]
	local    sse.IConnectionManager[EventMessage]
	clock    func() time.Time
	logger   *slog.Logger
}

type PublisherOption func(*EventPublisher)

// WithPublisherProducer 設置 Redis Stream producer
func WithPublisherProducer(producer redisAdapter.IProducer[EventMessage]) PublisherOption {
	return func(p *EventPublisher) {
		p.producer = producer
	}
}

// WithPublisherClock 設置時間來源(主要用於測試)
func WithPublisherClock(clock func() time.Time) PublisherOption {
	return func(p *EventPublisher) {
		p.clock = clock
	}
}

func NewEventPublisher(local sse.IConnectionManager[EventMessage], opts ...PublisherOption) *EventPublisher {
	p := &EventPublisher{
		local:  local,
		clock:  time.Now,
		logger: slog.Default().With(slog.String("caller", "EventPublisher")),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *EventPublisher) Publish(ctx context.Context, auctionID uuid.UUID, event auction.Event) error {
	const op = "EventPublisher.Publish"
	msg, err := NewEventMessage(auctionID, event, p.clock())
	if err != nil {
		return fmt.Errorf("[%s] Fail to build event message, err=%w", op, err)
	}
	if p.producer != nil {
		if err := p.producer.Publish(ctx, msg); err != nil {
			return fmt.Errorf("[%s] Fail to publish to stream, kind=%s, err=%w", op, msg.Kind, err)
		}
		return nil
	}
	if err := p.local.Publish(auctionID.String(), msg); err != nil {
		return fmt.Errorf("[%s] Fail to publish to local subscribers, kind=%s, err=%w", op, msg.Kind, err)
	}
	return nil
}
