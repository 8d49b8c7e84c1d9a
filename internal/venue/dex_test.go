package venue

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestTrimHexPrefix(t *testing.T) {
	t.Parallel()

	tests := []struct{ in, want string }{
		{"0xabc123", "abc123"},
		{"abc123", "abc123"},
		{"0Xabc123", "abc123"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := trimHexPrefix(tt.in); got != tt.want {
			t.Errorf("trimHexPrefix(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseDEXBook(t *testing.T) {
	t.Parallel()

	data := dexL2BookData{
		Symbol: "BTC",
		Time:   1700000000000,
		Levels: [][]dexLevel{
			{{Px: "60000", Sz: "1.5", N: 3}},
			{{Px: "60010", Sz: "2.0", N: 1}},
		},
	}
	book := parseDEXBook(data)

	if book.Symbol != "BTC" || book.EventTime != 1700000000000 {
		t.Errorf("symbol/event_time = %q/%d, want BTC/1700000000000", book.Symbol, book.EventTime)
	}
	if len(book.Bids) != 1 || len(book.Asks) != 1 {
		t.Fatalf("book has %d bids, %d asks; want 1, 1", len(book.Bids), len(book.Asks))
	}
	if !book.Bids[0].Price.Equal(decimal.RequireFromString("60000")) {
		t.Errorf("bid price = %v, want 60000", book.Bids[0].Price)
	}
	if !book.Asks[0].Size.Equal(decimal.RequireFromString("2.0")) {
		t.Errorf("ask size = %v, want 2.0", book.Asks[0].Size)
	}
}

func TestParseDEXBookNoLevels(t *testing.T) {
	t.Parallel()

	book := parseDEXBook(dexL2BookData{Symbol: "BTC"})
	if len(book.Bids) != 0 || len(book.Asks) != 0 {
		t.Error("expected an empty book when no levels are present")
	}
}
