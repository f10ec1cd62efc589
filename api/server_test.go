package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"auctionhouse/auction"
)

// 沒有設定資料庫時以記憶體存儲啟動
func TestNewServer_InMemoryStore(t *testing.T) {
	clock := newTestClock()
	server, err := NewServer(testConfig(), WithServerClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(server.Close)
	assert.Nil(t, server.recorder)
	assert.Nil(t, server.journal)

	ledger, err := server.Coordinator().CreateAuction(context.Background(), auction.CreateAuctionRequest{
		SellerID:        uuid.New(),
		Currency:        "TWD",
		StartingPrice:   100,
		MinBidIncrement: 10,
		StartTime:       clock.Now(),
		EndTime:         clock.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/auctions/%s", ledger.ID), nil)
	server.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

// 設定 Redis 後事件經由 stream 寫入事件紀錄，並以 consumer group 的鎖維持順序
func TestServer_JournalThroughStream(t *testing.T) {
	t.Cleanup(func() { goleak.VerifyNone(t) })
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	config := testConfig()
	config.Redis = RedisConfig{
		KeyPrefix:     "test:",
		ConsumerGroup: "journal",
		StreamKeys:    RedisStreamKeys{Events: "auction:events"},
	}
	recorder := newFakeRecorder()
	env := setupServer(t, config, WithRedisClient(client), WithEventStore(recorder, nil))
	require.NoError(t, env.server.Start())

	auctionID := env.createActiveAuction(t, uuid.New(), nil)
	result, err := env.server.Coordinator().PlaceBid(context.Background(), auctionID, auction.PlaceBidRequest{
		BidderID:   uuid.New(),
		BidderName: "bob",
		Amount:     auction.NewMoney(150, "TWD"),
	})
	require.NoError(t, err)
	require.True(t, result.Accepted)

	require.Eventually(t, func() bool { return recorder.len() == 2 }, 3*time.Second, 10*time.Millisecond)
	var kinds []string
	for _, id := range recorder.recorded() {
		recorder.mu.Lock()
		kinds = append(kinds, recorder.events[id].Kind)
		recorder.mu.Unlock()
	}
	assert.Equal(t, []string{string(auction.KindAuctionActivated), string(auction.KindBidAccepted)}, kinds)
	assert.True(t, mr.Exists(JournalLockKey(config.Redis)))
}
