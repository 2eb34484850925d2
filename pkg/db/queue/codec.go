package queue

import (
	"fmt"
	"strconv"
	"time"

	"github.com/erain9/exchange/pkg/messaging"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// EncodeInstruction serializes a settlement instruction as a protobuf Struct.
// Sequence and time travel as strings so they survive the float64 number type.
func EncodeInstruction(in *messaging.SettlementInstruction) ([]byte, error) {
	msg, err := structpb.NewStruct(map[string]interface{}{
		"symbol":        in.Symbol,
		"sequence":      strconv.FormatUint(in.Sequence, 10),
		"buyerOrderID":  in.BuyerOrderID,
		"sellerOrderID": in.SellerOrderID,
		"price":         in.Price,
		"quantity":      in.Quantity,
		"time":          in.Time.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build settlement message: %w", err)
	}
	data, err := proto.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal settlement message: %w", err)
	}
	return data, nil
}

// DecodeInstruction is the inverse of EncodeInstruction
func DecodeInstruction(data []byte) (*messaging.SettlementInstruction, error) {
	var msg structpb.Struct
	if err := proto.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settlement message: %w", err)
	}
	fields := msg.GetFields()
	str := func(key string) string { return fields[key].GetStringValue() }

	seq, err := strconv.ParseUint(str("sequence"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid settlement sequence %q: %w", str("sequence"), err)
	}
	ts, err := time.Parse(time.RFC3339Nano, str("time"))
	if err != nil {
		return nil, fmt.Errorf("invalid settlement time %q: %w", str("time"), err)
	}

	return &messaging.SettlementInstruction{
		Symbol:        str("symbol"),
		Sequence:      seq,
		BuyerOrderID:  str("buyerOrderID"),
		SellerOrderID: str("sellerOrderID"),
		Price:         str("price"),
		Quantity:      str("quantity"),
		Time:          ts,
	}, nil
}
