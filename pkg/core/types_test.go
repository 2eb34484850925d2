package core

import (
	"encoding/json"
	"testing"

	"github.com/nikolaydubina/fpdecimal"
)

func TestFillCounterparties(t *testing.T) {
	buyTaker := Fill{MakerOrderID: "maker", TakerOrderID: "taker", TakerSide: Buy}
	if buyTaker.BuyerOrderID() != "taker" || buyTaker.SellerOrderID() != "maker" {
		t.Errorf("Buy taker: got buyer=%s seller=%s", buyTaker.BuyerOrderID(), buyTaker.SellerOrderID())
	}

	sellTaker := Fill{MakerOrderID: "maker", TakerOrderID: "taker", TakerSide: Sell}
	if sellTaker.BuyerOrderID() != "maker" || sellTaker.SellerOrderID() != "taker" {
		t.Errorf("Sell taker: got buyer=%s seller=%s", sellTaker.BuyerOrderID(), sellTaker.SellerOrderID())
	}

	if sellTaker.CounterpartyOrderID() != "maker" {
		t.Errorf("Expected counterparty maker, got %s", sellTaker.CounterpartyOrderID())
	}
}

func TestFillNotional(t *testing.T) {
	f := Fill{Price: fpdecimal.FromFloat(40.5), Quantity: fpdecimal.FromInt(2)}
	if !f.Notional().Equal(fpdecimal.FromInt(81)) {
		t.Errorf("Expected notional 81, got %v", f.Notional())
	}
}

func TestResultExecuted(t *testing.T) {
	r := &LimitResult{
		Remaining: fpdecimal.FromInt(1),
		Fills: []Fill{
			{Quantity: fpdecimal.FromInt(2)},
			{Quantity: fpdecimal.FromInt(3)},
		},
	}
	if !r.Executed().Equal(fpdecimal.FromInt(5)) {
		t.Errorf("Expected executed 5, got %v", r.Executed())
	}

	m := &MarketResult{}
	if !m.Executed().Equal(fpdecimal.Zero) {
		t.Errorf("Expected executed 0, got %v", m.Executed())
	}
}

func TestResultMarshalJSON(t *testing.T) {
	r := &LimitResult{
		RestingOrderID: "",
		OrderID:        "o-1",
		Remaining:      fpdecimal.Zero,
	}

	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("Failed to marshal: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Failed to unmarshal: %v", err)
	}
	if _, ok := decoded["restingOrderID"]; ok {
		t.Error("Expected restingOrderID to be omitted for a filled order")
	}
	fills, ok := decoded["fills"].([]interface{})
	if !ok || len(fills) != 0 {
		t.Errorf("Expected empty fills array, got %v", decoded["fills"])
	}

	f := Fill{Symbol: "ABC", MakerOrderID: "m", TakerOrderID: "t", Price: fpdecimal.FromInt(40), Quantity: fpdecimal.FromInt(1), Sequence: 3}
	data, err = json.Marshal(f)
	if err != nil {
		t.Fatalf("Failed to marshal fill: %v", err)
	}
	var fill map[string]interface{}
	if err := json.Unmarshal(data, &fill); err != nil {
		t.Fatalf("Failed to unmarshal fill: %v", err)
	}
	if fill["counterpartyOrderID"] != "m" || fill["price"] != "40.000" {
		t.Errorf("Unexpected fill JSON %s", data)
	}
}
