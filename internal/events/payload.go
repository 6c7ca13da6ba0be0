package events

import (
	"math/big"
	"strings"
)

// PayloadShape tags which decode path matched a payload.
type PayloadShape int

const (
	ShapeUnrecognized PayloadShape = iota
	ShapePositional                // value is an ordered array of fields
	ShapeNamed                     // value is an object with named fields
)

// CreatedData is the decoded payload of a stream_created event.
type CreatedData struct {
	Shape       PayloadShape
	StreamID    string
	Sender      string
	Receiver    string
	TotalAmount *big.Int
	Duration    int64
}

// WithdrawalData is the decoded payload of a stream_withdrawn event.
type WithdrawalData struct {
	Shape    PayloadShape
	StreamID string
	Amount   *big.Int
}

// CancellationData is the decoded payload of a stream_cancelled event.
type CancellationData struct {
	Shape      PayloadShape
	StreamID   string
	ToReceiver *big.Int
	ToSender   *big.Int
}

// Positional field order emitted by the contract. The two known shapes are
// decoded explicitly; anything else is Unrecognized, never guessed.
//
//	created:   [streamId, sender, receiver, totalAmount, duration]
//	withdrawn: [streamId, amount]
//	cancelled: [streamId, toReceiver, toSender]

// DecodeCreated decodes a stream_created payload.
func DecodeCreated(value any) (CreatedData, bool) {
	if arr, ok := value.([]any); ok {
		if len(arr) < 4 {
			return CreatedData{}, false
		}
		streamID, ok1 := asString(arr[0])
		sender, ok2 := asString(arr[1])
		receiver, ok3 := asString(arr[2])
		total, ok4 := asBigInt(arr[3])
		if !ok1 || !ok2 || !ok3 || !ok4 {
			return CreatedData{}, false
		}
		data := CreatedData{
			Shape:       ShapePositional,
			StreamID:    streamID,
			Sender:      sender,
			Receiver:    receiver,
			TotalAmount: total,
		}
		if len(arr) >= 5 {
			if d, ok := asInt64(arr[4]); ok {
				data.Duration = d
			}
		}
		return data, true
	}

	if obj, ok := value.(map[string]any); ok {
		streamID, ok1 := asString(obj["stream_id"])
		sender, ok2 := asString(obj["sender"])
		receiver, ok3 := asString(obj["receiver"])
		total, ok4 := asBigInt(obj["total_amount"])
		if !ok1 || !ok2 || !ok3 || !ok4 {
			return CreatedData{}, false
		}
		data := CreatedData{
			Shape:       ShapeNamed,
			StreamID:    streamID,
			Sender:      sender,
			Receiver:    receiver,
			TotalAmount: total,
		}
		if d, ok := asInt64(obj["duration"]); ok {
			data.Duration = d
		}
		return data, true
	}

	return CreatedData{}, false
}

// DecodeWithdrawal decodes a stream_withdrawn payload.
func DecodeWithdrawal(value any) (WithdrawalData, bool) {
	if arr, ok := value.([]any); ok {
		if len(arr) < 2 {
			return WithdrawalData{}, false
		}
		streamID, ok1 := asString(arr[0])
		amount, ok2 := asBigInt(arr[1])
		if !ok1 || !ok2 {
			return WithdrawalData{}, false
		}
		return WithdrawalData{Shape: ShapePositional, StreamID: streamID, Amount: amount}, true
	}

	if obj, ok := value.(map[string]any); ok {
		streamID, ok1 := asString(obj["stream_id"])
		amount, ok2 := asBigInt(obj["amount"])
		if !ok1 || !ok2 {
			return WithdrawalData{}, false
		}
		return WithdrawalData{Shape: ShapeNamed, StreamID: streamID, Amount: amount}, true
	}

	return WithdrawalData{}, false
}

// DecodeCancellation decodes a stream_cancelled payload.
func DecodeCancellation(value any) (CancellationData, bool) {
	if arr, ok := value.([]any); ok {
		if len(arr) < 3 {
			return CancellationData{}, false
		}
		streamID, ok1 := asString(arr[0])
		toReceiver, ok2 := asBigInt(arr[1])
		toSender, ok3 := asBigInt(arr[2])
		if !ok1 || !ok2 || !ok3 {
			return CancellationData{}, false
		}
		return CancellationData{
			Shape:      ShapePositional,
			StreamID:   streamID,
			ToReceiver: toReceiver,
			ToSender:   toSender,
		}, true
	}

	if obj, ok := value.(map[string]any); ok {
		streamID, ok1 := asString(obj["stream_id"])
		toReceiver, ok2 := asBigInt(obj["to_receiver"])
		toSender, ok3 := asBigInt(obj["to_sender"])
		if !ok1 || !ok2 || !ok3 {
			return CancellationData{}, false
		}
		return CancellationData{
			Shape:      ShapeNamed,
			StreamID:   streamID,
			ToReceiver: toReceiver,
			ToSender:   toSender,
		}, true
	}

	return CancellationData{}, false
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// asBigInt accepts decimal strings and JSON numbers. Amounts are unsigned;
// negative values are rejected here rather than deep in the reducer.
func asBigInt(v any) (*big.Int, bool) {
	switch n := v.(type) {
	case string:
		i, ok := new(big.Int).SetString(strings.TrimSpace(n), 10)
		if !ok || i.Sign() < 0 {
			return nil, false
		}
		return i, true
	case float64:
		if n < 0 || n != float64(int64(n)) {
			return nil, false
		}
		return big.NewInt(int64(n)), true
	default:
		return nil, false
	}
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case string:
		i, ok := new(big.Int).SetString(n, 10)
		if !ok || !i.IsInt64() {
			return 0, false
		}
		return i.Int64(), true
	default:
		return 0, false
	}
}
