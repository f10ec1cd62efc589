package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"auctionhouse/adapters/memory"
	"auctionhouse/auction"
)

const testSecret = "test-secret"

func init() {
	// 將日誌輸出重定向到io.Discard
	log.SetOutput(io.Discard)
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	gin.SetMode(gin.TestMode)
}

// testClock 是可以手動推進的時間來源
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testConfig() ServerConfig {
	return ServerConfig{
		ID:   "test-instance",
		Auth: AuthConfig{Secret: testSecret},
		Auction: AuctionConfig{
			ExtensionWindow:   2 * time.Minute,
			ExtensionDuration: 2 * time.Minute,
			LockTimeout:       time.Second,
		},
		Sweeper: SweeperConfig{Interval: time.Hour},
		HTTP:    HTTPConfig{MaxBodyBytes: 4 << 10, KeepAliveInterval: time.Hour},
	}
}

type testEnv struct {
	server  *Server
	handler http.Handler
	store   *memory.Store
	clock   *testClock
}

func setupServer(t *testing.T, config ServerConfig, opts ...ServerOption) *testEnv {
	t.Helper()
	store := memory.NewStore()
	clock := newTestClock()
	opts = append([]ServerOption{WithStorage(store), WithServerClock(clock.Now)}, opts...)
	server, err := NewServer(config, opts...)
	require.NoError(t, err)
	t.Cleanup(server.Close)
	return &testEnv{
		server:  server,
		handler: server.Handler(),
		store:   store,
		clock:   clock,
	}
}

// createActiveAuction 建立一場已開始、十分鐘後結束的拍賣
func (e *testEnv) createActiveAuction(t *testing.T, sellerID uuid.UUID, reserve *int64) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	now := e.clock.Now()
	ledger, err := e.server.Coordinator().CreateAuction(ctx, auction.CreateAuctionRequest{
		SellerID:        sellerID,
		Currency:        "TWD",
		StartingPrice:   100,
		ReservePrice:    reserve,
		MinBidIncrement: 10,
		StartTime:       now,
		EndTime:         now.Add(10 * time.Minute),
		MaxExtensions:   3,
	})
	require.NoError(t, err)
	activated, err := e.server.Coordinator().Activate(ctx, ledger.ID)
	require.NoError(t, err)
	require.True(t, activated)
	return ledger.ID
}

func signToken(t *testing.T, userID uuid.UUID, name, role string, expiresIn time.Duration) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, JWT{
		Username: name,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
		},
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch v := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(v)
	default:
		data, err := json.Marshal(v)
		require.NoError(t, err)
		reader = bytes.NewBuffer(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}
