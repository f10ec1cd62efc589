package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	redisAdapter "auctionhouse/adapters/redis"
	"auctionhouse/auction"
	"auctionhouse/models"
)

// EventRecorder 將事件寫入資料庫，重複的 EventID 必須被忽略
type EventRecorder interface {
	RecordEvent(ctx context.Context, event models.AuctionEvent) (bool, error)
}

// Archiver 將文件封存到物件儲存
type Archiver interface {
	UploadJSON(ctx context.Context, key string, v any) (string, error)
}

// SnapshotReader 讀取拍賣目前的帳本
type SnapshotReader interface {
	Snapshot(ctx context.Context, auctionID uuid.UUID) (auction.Snapshot, error)
}

// SettlementDocument 是結標後封存的文件
type SettlementDocument struct {
	AuctionID  uuid.UUID    `json:"auctionId"`
	SellerID   uuid.UUID    `json:"sellerId"`
	Outcome    string       `json:"outcome"`
	WinnerID   *uuid.UUID   `json:"winnerId,omitempty"`
	WinningBid *MoneyView   `json:"winningBid,omitempty"`
	BidCount   int          `json:"bidCount"`
	StartTime  time.Time    `json:"startTime"`
	EndTime    time.Time    `json:"endTime"`
	Extensions int          `json:"extensionCount"`
	Bids       []BidView    `json:"bids"`
	ArchivedAt time.Time    `json:"archivedAt"`
	Event      EventMessage `json:"event"`
}

// SettlementKey 回傳結標文件的物件 key
func SettlementKey(auctionID uuid.UUID) string {
	return fmt.Sprintf("settlements/%s.json", auctionID)
}

// Journal 以 consumer group 讀取事件串流，將每個事件寫入 auction_events，
// 結標事件另外封存結標文件。處理失敗的消息會移到 dead-letter stream
type Journal struct {
	consumer  redisAdapter.IGroupConsumer[EventMessage]
	recorder  EventRecorder
	snapshots SnapshotReader
	archiver  Archiver
	clock     func() time.Time
	logger    *slog.Logger

	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

type JournalOption func(*Journal)

// WithJournalArchiver 設置結標文件封存，未設置時不封存
func WithJournalArchiver(archiver Archiver) JournalOption {
	return func(j *Journal) {
		j.archiver = archiver
	}
}

// WithJournalClock 設置時間來源(主要用於測試)
func WithJournalClock(clock func() time.Time) JournalOption {
	return func(j *Journal) {
		j.clock = clock
	}
}

func NewJournal(consumer redisAdapter.IGroupConsumer[EventMessage], recorder EventRecorder, snapshots SnapshotReader, opts ...JournalOption) *Journal {
	j := &Journal{
		consumer:  consumer,
		recorder:  recorder,
		snapshots: snapshots,
		clock:     time.Now,
		logger:    slog.Default().With(slog.String("caller", "EventJournal")),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

func (j *Journal) Start() error {
	if err := j.consumer.Start(); err != nil {
		return fmt.Errorf("[Journal.Start] Fail to start group consumer, err=%w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	j.cancelFunc = cancel
	j.logger.Info("Start event journal worker")

	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		defer j.logger.Info("Event journal worker stopped")
		ch := j.consumer.Subscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				j.process(ctx, msg)
			}
		}
	}()
	return nil
}

func (j *Journal) process(ctx context.Context, msg *redisAdapter.Message[EventMessage]) {
	logger := j.logger.With(
		slog.String("messageId", msg.ID()),
		slog.String("eventID", msg.Data.EventID.String()),
		slog.String("kind", msg.Data.Kind))
	if handleErr := j.Handle(ctx, msg.Data); handleErr != nil {
		logger.Error("Fail to journal event", slog.Any("error", handleErr))
		if err := msg.Fail(ctx, handleErr); err != nil {
			logger.Error("Fail to fail message", slog.Any("error", err))
		}
		return
	}
	if err := msg.Done(ctx); err != nil {
		logger.Error("Journal success but fail to done message", slog.Any("error", err))
		return
	}
	logger.Debug("Journal success")
}

// Handle 寫入單一事件，重複投遞的事件只會寫入一次，封存則會覆蓋同一份文件
func (j *Journal) Handle(ctx context.Context, msg EventMessage) error {
	const op = "Journal.Handle"
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("[%s] Fail to marshal event, err=%w", op, err)
	}
	inserted, err := j.recorder.RecordEvent(ctx, models.AuctionEvent{
		EventID:    msg.EventID,
		AuctionID:  msg.AuctionID,
		Kind:       msg.Kind,
		Payload:    payload,
		OccurredAt: msg.OccurredAt,
	})
	if err != nil {
		return fmt.Errorf("[%s] Fail to record event, err=%w", op, err)
	}
	if !inserted {
		j.logger.Debug("Duplicated event ignored", slog.String("eventID", msg.EventID.String()))
	}

	if msg.Kind != string(auction.KindAuctionEnded) || j.archiver == nil {
		return nil
	}
	snap, err := j.snapshots.Snapshot(ctx, msg.AuctionID)
	if err != nil {
		return fmt.Errorf("[%s] Fail to load ledger for archive, err=%w", op, err)
	}
	l := snap.Ledger
	doc := SettlementDocument{
		AuctionID:  l.ID,
		SellerID:   l.SellerID,
		Outcome:    string(l.Outcome),
		WinnerID:   l.WinnerID,
		WinningBid: toMoneyViewPtr(l.WinningBid),
		BidCount:   l.BidCount,
		StartTime:  l.StartTime,
		EndTime:    l.EndTime,
		Extensions: l.ExtensionCount,
		Bids:       toBidViews(snap.Bids),
		ArchivedAt: j.clock().UTC(),
		Event:      msg,
	}
	url, err := j.archiver.UploadJSON(ctx, SettlementKey(l.ID), doc)
	if err != nil {
		return fmt.Errorf("[%s] Fail to archive settlement, err=%w", op, err)
	}
	j.logger.Info("Settlement archived", slog.String("auctionID", l.ID.String()), slog.String("url", url))
	return nil
}

func (j *Journal) Close() {
	if err := j.consumer.Close(); err != nil {
		j.logger.Error("Fail to close group consumer", slog.Any("error", err))
	}
	if j.cancelFunc != nil {
		j.cancelFunc()
	}
	j.wg.Wait()
}
