package api

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"auctionhouse/auction"
)

// MoneyView 是對外輸出的金額，Amount 為最小貨幣單位，Display 為十進位字串
type MoneyView struct {
	Amount   int64  `json:"amount" msgpack:"amount"`
	Currency string `json:"currency" msgpack:"currency"`
	Display  string `json:"display" msgpack:"display"`
}

func toMoneyView(m auction.Money) MoneyView {
	return MoneyView{
		Amount:   m.Amount,
		Currency: m.Currency,
		Display:  m.Decimal().StringFixed(auction.Exponent(m.Currency)),
	}
}

func toMoneyViewPtr(m *auction.Money) *MoneyView {
	if m == nil {
		return nil
	}
	v := toMoneyView(*m)
	return &v
}

// EventMessage 是寫入事件串流並推送給 SSE 訂閱者的事件封包，
// 依 Kind 只會有一個 payload 欄位有值
type EventMessage struct {
	EventID    uuid.UUID `json:"eventId" msgpack:"eventId"`
	AuctionID  uuid.UUID `json:"auctionId" msgpack:"auctionId"`
	Kind       string    `json:"kind" msgpack:"kind"`
	OccurredAt time.Time `json:"occurredAt" msgpack:"occurredAt"`

	BidAccepted      *BidAcceptedPayload      `json:"bidAccepted,omitempty" msgpack:"bidAccepted,omitempty"`
	AuctionExtended  *AuctionExtendedPayload  `json:"auctionExtended,omitempty" msgpack:"auctionExtended,omitempty"`
	AuctionEnded     *AuctionEndedPayload     `json:"auctionEnded,omitempty" msgpack:"auctionEnded,omitempty"`
	AuctionActivated *AuctionActivatedPayload `json:"auctionActivated,omitempty" msgpack:"auctionActivated,omitempty"`
	AuctionCancelled *AuctionCancelledPayload `json:"auctionCancelled,omitempty" msgpack:"auctionCancelled,omitempty"`
}

type BidAcceptedPayload struct {
	BidID      uuid.UUID `json:"bidId" msgpack:"bidId"`
	BidderID   uuid.UUID `json:"bidderId" msgpack:"bidderId"`
	BidderName string    `json:"bidderName" msgpack:"bidderName"`
	CurrentBid MoneyView `json:"currentBid" msgpack:"currentBid"`
	NextMinBid MoneyView `json:"nextMinBid" msgpack:"nextMinBid"`
	BidCount   int       `json:"bidCount" msgpack:"bidCount"`
	PlacedAt   time.Time `json:"placedAt" msgpack:"placedAt"`
}

type AuctionExtendedPayload struct {
	NewEndTime     time.Time `json:"newEndTime" msgpack:"newEndTime"`
	ExtensionCount int       `json:"extensionCount" msgpack:"extensionCount"`
}

type AuctionEndedPayload struct {
	Outcome    string     `json:"outcome" msgpack:"outcome"`
	WinnerID   *uuid.UUID `json:"winnerId,omitempty" msgpack:"winnerId,omitempty"`
	WinningBid *MoneyView `json:"winningBid,omitempty" msgpack:"winningBid,omitempty"`
	EndedAt    time.Time  `json:"endedAt" msgpack:"endedAt"`
}

type AuctionActivatedPayload struct {
	StartTime time.Time `json:"startTime" msgpack:"startTime"`
	EndTime   time.Time `json:"endTime" msgpack:"endTime"`
}

type AuctionCancelledPayload struct {
	CancelledBy uuid.UUID `json:"cancelledBy" msgpack:"cancelledBy"`
	CancelledAt time.Time `json:"cancelledAt" msgpack:"cancelledAt"`
}

// NewEventMessage 將領域事件轉成事件封包，每次呼叫都會產生新的 EventID
func NewEventMessage(auctionID uuid.UUID, event auction.Event, now time.Time) (EventMessage, error) {
	const op = "NewEventMessage"
	id, err := uuid.NewV7()
	if err != nil {
		return EventMessage{}, fmt.Errorf("[%s] Fail to generate event id, err=%w", op, err)
	}
	msg := EventMessage{
		EventID:    id,
		AuctionID:  auctionID,
		Kind:       string(event.Kind()),
		OccurredAt: now.UTC(),
	}
	switch e := event.(type) {
	case auction.BidAccepted:
		msg.OccurredAt = e.PlacedAt
		msg.BidAccepted = &BidAcceptedPayload{
			BidID:      e.BidID,
			BidderID:   e.BidderID,
			BidderName: e.BidderName,
			CurrentBid: toMoneyView(e.CurrentBid),
			NextMinBid: toMoneyView(e.NextMinBid),
			BidCount:   e.BidCount,
			PlacedAt:   e.PlacedAt,
		}
	case auction.AuctionExtended:
		msg.AuctionExtended = &AuctionExtendedPayload{
			NewEndTime:     e.NewEndTime,
			ExtensionCount: e.ExtensionCount,
		}
	case auction.AuctionEnded:
		msg.OccurredAt = e.EndedAt
		msg.AuctionEnded = &AuctionEndedPayload{
			Outcome:    string(e.Outcome),
			WinnerID:   e.WinnerID,
			WinningBid: toMoneyViewPtr(e.WinningBid),
			EndedAt:    e.EndedAt,
		}
	case auction.AuctionActivated:
		msg.AuctionActivated = &AuctionActivatedPayload{
			StartTime: e.StartTime,
			EndTime:   e.EndTime,
		}
	case auction.AuctionCancelled:
		msg.OccurredAt = e.CancelledAt
		msg.AuctionCancelled = &AuctionCancelledPayload{
			CancelledBy: e.CancelledBy,
			CancelledAt: e.CancelledAt,
		}
	default:
		return EventMessage{}, fmt.Errorf("[%s] unknown event type %T", op, event)
	}
	return msg, nil
}
