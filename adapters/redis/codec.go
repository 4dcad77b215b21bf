package redis

import (
	"encoding/base64"
	"errors"
	"fmt"
	"reflect"

	"github.com/vmihailenco/msgpack/v5"
)

var (
	ErrPointerType = errors.New("pointer type is not allowed")
)

// stream訊息的欄位名稱，payload為base64包裝的msgpack資料
const payloadField = "payload"

// EncodeStreamValue 將快照序列化為stream訊息的欄位map。
// Redis stream的欄位值只能是字串，因此以msgpack編碼後再包一層base64。
func EncodeStreamValue[T any](data T) (map[string]any, error) {
	const op = "EncodeStreamValue"
	if reflect.TypeOf(data).Kind() == reflect.Ptr {
		return nil, ErrPointerType
	}

	raw, err := msgpack.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to marshal payload, err=%w", op, err)
	}
	return map[string]any{
		payloadField: base64.StdEncoding.EncodeToString(raw),
	}, nil
}

// DecodeStreamValue 從stream訊息的欄位map還原快照
func DecodeStreamValue[T any](values map[string]any) (T, error) {
	const op = "DecodeStreamValue"
	var result T
	if reflect.TypeOf(result).Kind() == reflect.Ptr {
		return result, ErrPointerType
	}
	if len(values) == 0 {
		return result, nil
	}

	encoded, ok := values[payloadField].(string)
	if !ok {
		return result, fmt.Errorf("[%s] Fail to find field %q", op, payloadField)
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return result, fmt.Errorf("[%s] Fail to decode payload, err=%w", op, err)
	}
	if err := msgpack.Unmarshal(raw, &result); err != nil {
		return result, fmt.Errorf("[%s] Fail to unmarshal payload, err=%w", op, err)
	}
	return result, nil
}
