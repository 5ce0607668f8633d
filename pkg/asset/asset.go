package asset

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Symbol identifies a token together with its decimal precision.
// "4,ABC" means ABC amounts carry four decimal places, so one whole
// ABC is 10^4 smallest units.
type Symbol struct {
	Code      string `json:"code"`
	Precision uint8  `json:"precision"`
}

func NewSymbol(code string, precision uint8) Symbol {
	return Symbol{Code: code, Precision: precision}
}

func (s Symbol) IsZero() bool { return s.Code == "" }

func (s Symbol) String() string {
	return fmt.Sprintf("%d,%s", s.Precision, s.Code)
}

// ParseSymbol parses the "precision,CODE" form produced by String.
func ParseSymbol(str string) (Symbol, error) {
	parts := strings.SplitN(str, ",", 2)
	if len(parts) != 2 || parts[1] == "" {
		return Symbol{}, fmt.Errorf("invalid symbol %q", str)
	}
	var prec uint8
	if _, err := fmt.Sscanf(parts[0], "%d", &prec); err != nil {
		return Symbol{}, fmt.Errorf("invalid symbol precision %q: %w", str, err)
	}
	if prec > 18 {
		return Symbol{}, fmt.Errorf("symbol precision %d out of range", prec)
	}
	return Symbol{Code: strings.ToUpper(parts[1]), Precision: prec}, nil
}

// Asset is a token amount in smallest units.
type Asset struct {
	Amount int64  `json:"amount"`
	Symbol Symbol `json:"symbol"`
}

func New(amount int64, sym Symbol) Asset {
	return Asset{Amount: amount, Symbol: sym}
}

// Zero returns a zero-amount asset of the same symbol.
func (a Asset) Zero() Asset { return Asset{Amount: 0, Symbol: a.Symbol} }

// Add panics on symbol mismatch: mixing symbols is a programming error,
// never a user-input error.
func (a Asset) Add(b Asset) Asset {
	a.mustMatch(b)
	return Asset{Amount: a.Amount + b.Amount, Symbol: a.Symbol}
}

func (a Asset) Sub(b Asset) Asset {
	a.mustMatch(b)
	return Asset{Amount: a.Amount - b.Amount, Symbol: a.Symbol}
}

func (a Asset) GTE(b Asset) bool {
	a.mustMatch(b)
	return a.Amount >= b.Amount
}

func (a Asset) LT(b Asset) bool {
	a.mustMatch(b)
	return a.Amount < b.Amount
}

func (a Asset) Equal(b Asset) bool {
	return a.Symbol == b.Symbol && a.Amount == b.Amount
}

func (a Asset) mustMatch(b Asset) {
	if a.Symbol != b.Symbol {
		panic(fmt.Sprintf("asset symbol mismatch: %s vs %s", a.Symbol, b.Symbol))
	}
}

// Float returns the amount scaled to whole tokens. Only for display
// and candle volume accounting, never for balance arithmetic.
func (a Asset) Float() float64 {
	return float64(a.Amount) / pow10(a.Symbol.Precision)
}

func (a Asset) String() string {
	d := decimal.New(a.Amount, -int32(a.Symbol.Precision))
	return d.StringFixed(int32(a.Symbol.Precision)) + " " + a.Symbol.Code
}

// Parse reads a human amount like "1.2500" against a known symbol,
// rejecting amounts with more decimal places than the symbol carries.
func Parse(amountStr string, sym Symbol) (Asset, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amountStr))
	if err != nil {
		return Asset{}, fmt.Errorf("invalid amount %q: %w", amountStr, err)
	}
	scaled := d.Shift(int32(sym.Precision))
	if !scaled.IsInteger() {
		return Asset{}, fmt.Errorf("amount %q exceeds %s precision", amountStr, sym)
	}
	if !scaled.BigInt().IsInt64() {
		return Asset{}, fmt.Errorf("amount %q out of range", amountStr)
	}
	return Asset{Amount: scaled.IntPart(), Symbol: sym}, nil
}

func pow10(p uint8) float64 {
	f := 1.0
	for i := uint8(0); i < p; i++ {
		f *= 10
	}
	return f
}

// Pow10 is the scale factor for a precision, shared with the matching
// engine's price arithmetic.
func Pow10(p uint8) float64 { return pow10(p) }
