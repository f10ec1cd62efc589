package api

import (
	"fmt"
	"io"
)

// BodyTooLargeError 表示請求內容超過 HTTPConfig.MaxBodyBytes
type BodyTooLargeError struct {
	Limit int64
	Route string
}

func (e *BodyTooLargeError) Error() string {
	return fmt.Sprintf("request body of %s exceeds %s", e.Route, FormatBytes(e.Limit))
}

// limitedBody 包裝請求內容，讀到超過 limit 的第一個位元組時回傳 BodyTooLargeError，
// 之後的讀取都回傳同一個錯誤
type limitedBody struct {
	body      io.ReadCloser
	remaining int64
	err       *BodyTooLargeError
}

func newLimitedBody(body io.ReadCloser, limit int64, route string) *limitedBody {
	return &limitedBody{
		body:      body,
		remaining: limit,
		err:       &BodyTooLargeError{Limit: limit, Route: route},
	}
}

func (b *limitedBody) Read(p []byte) (int, error) {
	if b.remaining < 0 {
		return 0, b.err
	}
	if len(p) == 0 {
		return 0, nil
	}
	// 多讀一個位元組判斷是否超過
	if int64(len(p)) > b.remaining+1 {
		p = p[:b.remaining+1]
	}
	n, err := b.body.Read(p)
	if int64(n) <= b.remaining {
		b.remaining -= int64(n)
		return n, err
	}
	n = int(b.remaining)
	b.remaining = -1
	return n, b.err
}

func (b *limitedBody) Close() error {
	return b.body.Close()
}
