package output

import (
	"testing"

	"github.com/pgsample/pgsample/internal/sampling"
)

func TestQuoteIdentReservedWord(t *testing.T) {
	if QuoteIdent("order") != `"order"` {
		t.Errorf("reserved word must be quoted, got %q", QuoteIdent("order"))
	}
	if QuoteIdent("orders") != "orders" {
		t.Errorf("plain identifier must not be quoted, got %q", QuoteIdent("orders"))
	}
}

func TestLiteralEscaping(t *testing.T) {
	got := Literal(sampling.Text("O'Brien"))
	want := "'O''Brien'"
	if got != want {
		t.Errorf("Literal(text) = %q, want %q", got, want)
	}
}

func TestLiteralNullAndBool(t *testing.T) {
	if Literal(sampling.Null()) != "NULL" {
		t.Error("null value must literalize to NULL")
	}
	if Literal(sampling.Bool(true)) != "TRUE" {
		t.Error("true must literalize to TRUE")
	}
	if Literal(sampling.Bool(false)) != "FALSE" {
		t.Error("false must literalize to FALSE")
	}
}

func TestLiteralBytesAsHex(t *testing.T) {
	got := Literal(sampling.Bytes([]byte{0xDE, 0xAD}))
	want := `'\xdead'`
	if got != want {
		t.Errorf("Literal(bytes) = %q, want %q", got, want)
	}
}

func TestLiteralArray(t *testing.T) {
	got := Literal(sampling.Array([]sampling.Value{sampling.Int64(1), sampling.Int64(2)}))
	want := "ARRAY[1, 2]"
	if got != want {
		t.Errorf("Literal(array) = %q, want %q", got, want)
	}
}
