package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"auctionhouse/auction"
	"auctionhouse/models"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 1000
)

func abortWithError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Message: message})
}

// BodyLimitMiddleware 限制請求內容大小，超過時在解析 body 時回傳 413
func (s *Server) BodyLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			route := c.Request.Method + " " + c.FullPath()
			c.Request.Body = newLimitedBody(c.Request.Body, s.config.HTTP.MaxBodyBytes, route)
		}
		c.Next()
	}
}

// bindJSON 解析 body，失敗時已寫入回應並回傳 false
func bindJSON(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		var limitErr *BodyTooLargeError
		if errors.As(err, &limitErr) {
			abortWithError(c, http.StatusRequestEntityTooLarge, limitErr.Error())
			return false
		}
		abortWithError(c, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func parseAuctionID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid auction id")
		return uuid.Nil, false
	}
	return id, true
}

// handleCoordinatorError 將協調器的錯誤轉成 HTTP 回應
func (s *Server) handleCoordinatorError(c *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, auction.ErrNotFound):
		abortWithError(c, http.StatusNotFound, "auction not found")
	case errors.Is(err, auction.ErrInvalidArgument):
		abortWithError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, auction.ErrForbidden):
		abortWithError(c, http.StatusForbidden, "operation not permitted")
	case errors.Is(err, auction.ErrInvalidState):
		abortWithError(c, http.StatusConflict, "auction state does not allow this operation")
	case errors.Is(err, auction.ErrBusy):
		c.Header("Retry-After", "1")
		abortWithError(c, http.StatusServiceUnavailable, "auction busy, retry later")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		abortWithError(c, http.StatusRequestTimeout, "request cancelled")
	default:
		s.logger.Error("Unexpected error", slog.String("op", op), slog.Any("error", err))
		abortWithError(c, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) GetHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Publish an auction
// (POST /auctions)
func (s *Server) PostAuction(c *gin.Context) {
	const op = "PostAuction"
	user, err := currentUser(c)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, err.Error())
		return
	}
	var body CreateAuctionBody
	if !bindJSON(c, &body) {
		return
	}
	listingID := lo.FromPtr(body.ListingID)
	startTime := lo.FromPtrOr(body.StartTime, s.clock())

	ledger, err := s.coordinator.CreateAuction(c.Request.Context(), auction.CreateAuctionRequest{
		ListingID:       listingID,
		SellerID:        user.ID,
		Currency:        body.Currency,
		StartingPrice:   body.StartingPrice,
		ReservePrice:    body.ReservePrice,
		MinBidIncrement: body.MinBidIncrement,
		StartTime:       startTime,
		EndTime:         body.EndTime,
		MaxExtensions:   body.MaxExtensions,
	})
	if err != nil {
		s.handleCoordinatorError(c, op, err)
		return
	}
	c.Header("Location", "/auctions/"+ledger.ID.String())
	c.JSON(http.StatusCreated, CreateAuctionResponse{ID: ledger.ID})
}

// Get auction detail
// (GET /auctions/{id})
func (s *Server) GetAuction(c *gin.Context) {
	const op = "GetAuction"
	id, ok := parseAuctionID(c)
	if !ok {
		return
	}
	snap, err := s.coordinator.Snapshot(c.Request.Context(), id)
	if err != nil {
		s.handleCoordinatorError(c, op, err)
		return
	}
	c.JSON(http.StatusOK, toAuctionView(snap))
}

// Place a bid
// (POST /auctions/{id}/bids)
func (s *Server) PostAuctionBid(c *gin.Context) {
	const op = "PostAuctionBid"
	id, ok := parseAuctionID(c)
	if !ok {
		return
	}
	user, err := currentUser(c)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, err.Error())
		return
	}
	var body PlaceBidBody
	if !bindJSON(c, &body) {
		return
	}
	req := auction.PlaceBidRequest{
		BidderID:   user.ID,
		BidderName: user.Name,
		Amount:     auction.NewMoney(body.Amount, body.Currency),
		IsAutoBid:  body.IsAutoBid,
	}
	if body.MaxAutoBid != nil {
		req.MaxAutoBid = lo.ToPtr(auction.NewMoney(*body.MaxAutoBid, body.Currency))
	}

	result, err := s.coordinator.PlaceBid(c.Request.Context(), id, req)
	if err != nil {
		s.handleCoordinatorError(c, op, err)
		return
	}
	if !result.Accepted {
		rejection := RejectionResponse{Reason: string(result.Rejection.Reason)}
		if result.Rejection.MinAcceptable != nil {
			rejection.MinAcceptable = toMoneyViewPtr(result.Rejection.MinAcceptable)
		}
		c.JSON(http.StatusUnprocessableEntity, rejection)
		return
	}
	c.JSON(http.StatusOK, BidResponse{
		BidID:          result.BidID,
		Outbid:         result.Outbid,
		CurrentBid:     toMoneyView(result.CurrentBid),
		NextMinBid:     toMoneyView(result.NextMinBid),
		BidCount:       result.BidCount,
		EndTime:        result.EndTime,
		Extended:       result.NewEndTime != nil,
		ExtensionCount: result.ExtensionCount,
		NewEndTime:     result.NewEndTime,
	})
}

// Cancel an auction
// (POST /auctions/{id}/cancel)
func (s *Server) PostAuctionCancel(c *gin.Context) {
	const op = "PostAuctionCancel"
	id, ok := parseAuctionID(c)
	if !ok {
		return
	}
	user, err := currentUser(c)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, err.Error())
		return
	}
	err = s.coordinator.Cancel(c.Request.Context(), id, auction.CancelRequest{
		ActorID:  user.ID,
		Operator: user.Operator,
	})
	if err != nil {
		s.handleCoordinatorError(c, op, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type SettleResponse struct {
	Settled    bool       `json:"settled"`
	State      string     `json:"state"`
	Outcome    string     `json:"outcome,omitempty"`
	WinnerID   *uuid.UUID `json:"winnerId,omitempty"`
	WinningBid *MoneyView `json:"winningBid,omitempty"`
}

// Settle an auction manually, only for operators
// (POST /auctions/{id}/settle)
func (s *Server) PostAuctionSettle(c *gin.Context) {
	const op = "PostAuctionSettle"
	id, ok := parseAuctionID(c)
	if !ok {
		return
	}
	user, err := currentUser(c)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, err.Error())
		return
	}
	if !user.Operator {
		abortWithError(c, http.StatusForbidden, "operator role required")
		return
	}
	result, err := s.coordinator.TrySettle(c.Request.Context(), id)
	if err != nil {
		s.handleCoordinatorError(c, op, err)
		return
	}
	c.JSON(http.StatusOK, SettleResponse{
		Settled:    result.Settled,
		State:      string(result.State),
		Outcome:    string(result.Outcome),
		WinnerID:   result.WinnerID,
		WinningBid: toMoneyViewPtr(result.WinningBid),
	})
}

type HistoryEntry struct {
	EventID    uuid.UUID       `json:"eventId"`
	Kind       string          `json:"kind"`
	OccurredAt time.Time       `json:"occurredAt"`
	Payload    json.RawMessage `json:"payload"`
}

// Get journaled events of an auction
// (GET /auctions/{id}/history)
func (s *Server) GetAuctionHistory(c *gin.Context) {
	const op = "GetAuctionHistory"
	if s.history == nil {
		abortWithError(c, http.StatusNotImplemented, "event history is not enabled")
		return
	}
	id, ok := parseAuctionID(c)
	if !ok {
		return
	}
	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			abortWithError(c, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(n, maxHistoryLimit)
	}
	events, err := s.history.ListEvents(c.Request.Context(), id, limit)
	if err != nil {
		s.handleCoordinatorError(c, op, err)
		return
	}
	c.JSON(http.StatusOK, lo.Map(events, func(e models.AuctionEvent, _ int) HistoryEntry {
		return HistoryEntry{
			EventID:    e.EventID,
			Kind:       e.Kind,
			OccurredAt: e.OccurredAt,
			Payload:    json.RawMessage(e.Payload),
		}
	}))
}

// Track auction events
// (GET /auctions/{id}/events)
func (s *Server) GetAuctionEvents(c *gin.Context) {
	const op = "GetAuctionEvents"
	id, ok := parseAuctionID(c)
	if !ok {
		return
	}
	// 檢查拍賣是否存在
	snap, err := s.coordinator.Snapshot(c.Request.Context(), id)
	if err != nil {
		s.handleCoordinatorError(c, op, err)
		return
	}
	// 檢查拍賣是否已經結束
	if snap.Ledger.State.IsTerminal() {
		abortWithError(c, http.StatusGone, "auction has ended")
		return
	}
	ch, err := s.sseManager.Subscribe(id.String())
	if err != nil {
		s.logger.Error("Fail to subscribe to auction events", slog.String("op", op), slog.Any("error", err))
		abortWithError(c, http.StatusServiceUnavailable, "event stream unavailable")
		return
	}
	defer s.sseManager.Unsubscribe(id.String(), ch)

	// SSE請求合法，開始初始化串流
	w := c.Writer
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	// 訂閱後再送出快照，避免漏掉兩者之間的事件
	c.SSEvent("snapshot", toAuctionView(snap))
	w.Flush()

	keepAlive := time.NewTicker(s.config.HTTP.KeepAliveInterval)
	defer keepAlive.Stop()
	for {
		select {
		case <-c.Request.Context().Done():
			return
		case event, ok := <-ch:
			if !ok {
				// 緩衝區滿被踢除或服務關閉，由客戶端重新連線
				return
			}
			c.SSEvent(event.Kind, event)
			w.Flush()
			if event.Kind == string(auction.KindAuctionEnded) || event.Kind == string(auction.KindAuctionCancelled) {
				return
			}
		// 一段時間沒有事件就發送註解行，確保瀏覽器和Cloudflare不會斷開連線
		case <-keepAlive.C:
			_, _ = w.WriteString(": keepalive\n\n")
			w.Flush()
		}
	}
}
