package venue

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestExtractCEXOrderIDTopLevel(t *testing.T) {
	t.Parallel()

	id, ok := extractCEXOrderID(cexOrderPlaceResponse{OrderID: "12345"})
	if !ok || id != "12345" {
		t.Errorf("got %q, %v; want 12345, true", id, ok)
	}
}

func TestExtractCEXOrderIDNested(t *testing.T) {
	t.Parallel()

	resp := cexOrderPlaceResponse{Data: &struct {
		OrderID string `json:"orderId"`
	}{OrderID: "67890"}}

	id, ok := extractCEXOrderID(resp)
	if !ok || id != "67890" {
		t.Errorf("got %q, %v; want 67890, true", id, ok)
	}
}

func TestExtractCEXOrderIDMissing(t *testing.T) {
	t.Parallel()

	_, ok := extractCEXOrderID(cexOrderPlaceResponse{})
	if ok {
		t.Error("expected ok=false when no order id is present in any shape")
	}
}

func TestParseCEXDepth(t *testing.T) {
	t.Parallel()

	msg := cexDepthMsg{
		Bids: [][2]string{{"60000.5", "1.2"}, {"60000.0", "0.5"}},
		Asks: [][2]string{{"60001.0", "0.8"}},
	}
	book := parseCEXDepth("BTCUSDT", msg)

	if len(book.Bids) != 2 || len(book.Asks) != 1 {
		t.Fatalf("book has %d bids, %d asks; want 2, 1", len(book.Bids), len(book.Asks))
	}
	if !book.Bids[0].Price.Equal(decimal.RequireFromString("60000.5")) {
		t.Errorf("top bid price = %v, want 60000.5", book.Bids[0].Price)
	}
	if !book.Asks[0].Size.Equal(decimal.RequireFromString("0.8")) {
		t.Errorf("top ask size = %v, want 0.8", book.Asks[0].Size)
	}
	if !book.Valid() {
		t.Error("expected a normal (non-crossed) book to be valid")
	}
}
