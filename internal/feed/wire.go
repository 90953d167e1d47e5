package feed

// Wire shapes mirror the teacher's pkg/types WS event definitions
// (price/size as JSON strings on the happy path), generalized here to
// accept either textual or numeric JSON per the ingestion rule that a
// value must never silently become zero on a parse failure.

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// flexNumber decodes a JSON field that may be either a quoted string or a
// bare number, as Polymarket-style feeds are known to send either.
type flexNumber struct {
	value float64
	valid bool
}

func (f *flexNumber) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		f.valid = false
		return nil
	}
	if len(data) >= 2 && data[0] == '"' && data[len(data)-1] == '"' {
		s := string(data[1 : len(data)-1])
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			f.valid = false
			return nil
		}
		f.value, f.valid = v, true
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		f.valid = false
		return nil
	}
	f.value, f.valid = v, true
	return nil
}

// priceLevel is one bid or ask level in a book/price_change wire message.
type priceLevel struct {
	Price flexNumber `json:"price"`
	Size  flexNumber `json:"size"`
}

// wireEnvelope is peeked at first to route a frame to its typed shape.
type wireEnvelope struct {
	EventType string `json:"event_type"`
}

// wireBookEvent is a full order-book snapshot for one token.
type wireBookEvent struct {
	EventType string       `json:"event_type"`
	AssetID   string       `json:"asset_id"`
	Market    string       `json:"market"`
	Buys      []priceLevel `json:"buys"`
	Sells     []priceLevel `json:"sells"`
}

// wirePriceChange is a single level update within a price_change event.
type wirePriceChange struct {
	AssetID string     `json:"asset_id"`
	Price   flexNumber `json:"price"`
	Size    flexNumber `json:"size"`
	Side    string     `json:"side"` // "BUY" or "SELL"
}

// wirePriceChangeEvent is an incremental book update, one or more level
// changes applied atomically.
type wirePriceChangeEvent struct {
	EventType    string            `json:"event_type"`
	Market       string            `json:"market"`
	PriceChanges []wirePriceChange `json:"price_changes"`
}

// wireTrade is one row from the HTTP trades endpoint.
type wireTrade struct {
	ID         string     `json:"id"`
	Market     string     `json:"market"`
	AssetID    string     `json:"asset_id"`
	Price      flexNumber `json:"price"`
	Size       flexNumber `json:"size"`
	Side       string     `json:"side"`
	Timestamp  int64      `json:"timestamp"` // exchange-side, seconds or ms; diagnostics only
	TakerOrder string     `json:"taker_order_id"`
}
