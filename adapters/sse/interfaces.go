package sse

// IConnectionManager 定義了 SSE 連線管理員的介面
type IConnectionManager[T any] interface {
	// Subscribe 註冊並訂閱指定頻道，返回接收訊息的通道。
	Subscribe(channelName string) (<-chan T, error)
	// Publish 將資料推送給本機上指定頻道的訂閱者。
	Publish(channelName string, data T) error
	// Unsubscribe 取消訂閱指定頻道。
	Unsubscribe(channelName string, ch <-chan T)
	// Done 停止 ConnectionManager，關閉所有訂閱。
	Done()
}
