package feed

import (
	"encoding/json"
	"testing"
)

func TestFlexNumberAcceptsStringOrNumber(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		data string
		want float64
		ok   bool
	}{
		{"quoted string", `"0.42"`, 0.42, true},
		{"bare number", `0.42`, 0.42, true},
		{"null", `null`, 0, false},
		{"unparseable string", `"not-a-number"`, 0, false},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			var f flexNumber
			if err := json.Unmarshal([]byte(tc.data), &f); err != nil {
				t.Fatalf("Unmarshal error: %v", err)
			}
			if f.valid != tc.ok {
				t.Fatalf("valid = %v, want %v", f.valid, tc.ok)
			}
			if tc.ok && f.value != tc.want {
				t.Errorf("value = %v, want %v", f.value, tc.want)
			}
		})
	}
}

func TestWireTradeDecodesFlexibleFields(t *testing.T) {
	t.Parallel()
	data := []byte(`{"id":"t1","market":"m1","asset_id":"a1","price":"0.40","size":123,"side":"BUY","timestamp":1690000000}`)
	var tr wireTrade
	if err := json.Unmarshal(data, &tr); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if !tr.Price.valid || tr.Price.value != 0.40 {
		t.Errorf("Price = %+v, want 0.40", tr.Price)
	}
	if !tr.Size.valid || tr.Size.value != 123 {
		t.Errorf("Size = %+v, want 123", tr.Size)
	}
}
