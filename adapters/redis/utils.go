package redis

import (
	"encoding/base64"
	"errors"
	"fmt"
	"reflect"

	"github.com/vmihailenco/msgpack/v5"
)

const (
	// 消息欄位
	fieldData     = "data"
	fieldEncoding = "enc"
	fieldError    = "error"

	encodingMsgpack = "msgpack+b64"
)

var (
	ErrPointerType      = errors.New("pointer type is not allowed")
	ErrUnknownEncoding  = errors.New("unknown message encoding")
	ErrMissingDataField = errors.New("data field not found or invalid type")
)

// DefaultParseToMessage 將資料以 msgpack 序列化後 base64 編碼，放進 stream 的 data 欄位
func DefaultParseToMessage[T any](data T) (map[string]any, error) {
	// 檢查是否為指標類型
	if t := reflect.TypeOf(data); t != nil && t.Kind() == reflect.Ptr {
		return nil, ErrPointerType
	}

	bytes, err := msgpack.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("msgpack marshal error: %w", err)
	}

	return map[string]any{
		fieldData:     base64.StdEncoding.EncodeToString(bytes),
		fieldEncoding: encodingMsgpack,
	}, nil
}

// DefaultParseFromMessage 是 DefaultParseToMessage 的反向操作。
// 沒有 enc 欄位的消息視為 msgpack，其他編碼回傳 ErrUnknownEncoding
func DefaultParseFromMessage[T any](message map[string]any) (T, error) {
	var result T

	// 檢查是否為指標類型
	if t := reflect.TypeOf(result); t != nil && t.Kind() == reflect.Ptr {
		return result, ErrPointerType
	}

	if len(message) == 0 {
		return result, nil
	}

	if enc, ok := message[fieldEncoding]; ok && enc != encodingMsgpack {
		return result, fmt.Errorf("%w: %v", ErrUnknownEncoding, enc)
	}

	dataStr, ok := message[fieldData].(string)
	if !ok {
		return result, ErrMissingDataField
	}

	bytes, err := base64.StdEncoding.DecodeString(dataStr)
	if err != nil {
		return result, fmt.Errorf("base64 decode error: %w", err)
	}

	if err := msgpack.Unmarshal(bytes, &result); err != nil {
		return result, fmt.Errorf("msgpack unmarshal error: %w", err)
	}

	return result, nil
}

// deadLetterStream 回傳 stream 對應的死信 stream
func deadLetterStream(stream string) string {
	return stream + ":dead-letter"
}
