package sse_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"auctionhouse/adapters/sse"
)

func TestChannel(t *testing.T) {
	ch := sse.NewChannel[Message](4)

	// 測試訂閱
	sub := ch.Subscribe()
	assert.NotNil(t, sub)
	assert.Equal(t, 1, ch.Len())

	// 測試廣播訊息
	msg := Message{Data: "test message"}
	assert.Equal(t, 0, ch.Broadcast(msg))
	assert.Equal(t, msg, <-sub)

	// 測試取消訂閱
	ch.Unsubscribe(sub)
	_, ok := <-sub
	assert.False(t, ok, "channel should be closed")
	ch.Unsubscribe(sub) // 重複取消不會 panic

	// 測試 IsIdle
	assert.True(t, ch.IsIdle(), "channel should be idle")
}

func TestChannel_EvictsSlowSubscriber(t *testing.T) {
	ch := sse.NewChannel[Message](1)
	slow := ch.Subscribe()
	fast := ch.Subscribe()

	assert.Equal(t, 0, ch.Broadcast(Message{Data: "1"}))
	assert.Equal(t, Message{Data: "1"}, <-fast)

	// slow 的緩衝區已滿，第二則訊息會把它踢掉
	assert.Equal(t, 1, ch.Broadcast(Message{Data: "2"}))
	assert.Equal(t, Message{Data: "2"}, <-fast)
	assert.Equal(t, 1, ch.Len())

	assert.Equal(t, Message{Data: "1"}, <-slow)
	_, ok := <-slow
	assert.False(t, ok, "evicted subscriber should be closed")
}

func TestChannel_UnsubscribeAll(t *testing.T) {
	ch := sse.NewChannel[Message](0)
	subs := []<-chan Message{ch.Subscribe(), ch.Subscribe()}
	ch.UnsubscribeAll()
	for _, sub := range subs {
		_, ok := <-sub
		assert.False(t, ok)
	}
	assert.True(t, ch.IsIdle())
}
