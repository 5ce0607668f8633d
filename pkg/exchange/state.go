package exchange

import (
	"hash/fnv"
	"math"

	"github.com/ethereum/go-ethereum/common"

	"github.com/glsig/dexchange/pkg/asset"
)

// MinFeeAmount is the smallest fee, in smallest units of the charged
// asset, the exchange will collect on a fill. The per-token minimum
// order size is derived from it so that every fill's fee clears this
// floor.
const MinFeeAmount = 10

// Fee-sink split: 10% to the operator account, 90% to the revenue
// account. Integer remainder goes to the operator share so the two
// always sum to the full fee.
const (
	glPercent  = 10
	sigPercent = 90
)

// DefaultGranularities are the candle bucket widths in seconds:
// 1m, 5m, 15m, 30m, 1h, 4h, 24h.
var DefaultGranularities = []int64{60, 300, 900, 1800, 3600, 14400, 86400}

// Pair is a permitted trading pair. Base/quote orientation is fixed at
// registration time and determines the price unit (quote per base) for
// both book sides.
type Pair struct {
	Base  asset.Symbol `json:"base"`
	Quote asset.Symbol `json:"quote"`
	Key   uint64       `json:"key"`
}

// Name renders the pair the way markets are usually labelled, e.g.
// "ABC-XYZ".
func (p Pair) Name() string { return p.Base.Code + "-" + p.Quote.Code }

// FeeInfo is the per-token fee schedule. Percentages are whole-trade
// percentages (0.1 means 0.1%), MinOrder the smallest sell amount an
// order in this token may rest with.
type FeeInfo struct {
	MakerPct float64     `json:"makerPct"`
	TakerPct float64     `json:"takerPct"`
	MinOrder asset.Asset `json:"minOrder"`
}

// TokenInfo records a permitted token and the custody contract that
// moves it on and off the exchange.
type TokenInfo struct {
	Symbol   asset.Symbol   `json:"symbol"`
	Contract common.Address `json:"contract"`
}

// GlobalState is the single versioned configuration record: permitted
// tokens and pairs, fee schedules, candle granularities and the
// monotonic order-id counter. It is loaded at engine construction and
// written into the action batch whenever an action mutates it.
type GlobalState struct {
	TotalOrderID  uint64                      `json:"totalOrderId"`
	Tokens        map[string]TokenInfo        `json:"tokens"`    // symbol code -> token
	Contracts     map[common.Address][]string `json:"contracts"` // custody contract -> symbol codes
	Pairs         []Pair                      `json:"pairs"`
	Fees          map[string]FeeInfo          `json:"fees"` // symbol code -> schedule
	Granularities []int64                     `json:"granularities"`
}

func NewGlobalState() *GlobalState {
	return &GlobalState{
		Tokens:        make(map[string]TokenInfo),
		Contracts:     make(map[common.Address][]string),
		Fees:          make(map[string]FeeInfo),
		Granularities: append([]int64(nil), DefaultGranularities...),
	}
}

// clone deep-copies the state record.
func (g *GlobalState) clone() *GlobalState {
	c := &GlobalState{
		TotalOrderID:  g.TotalOrderID,
		Tokens:        make(map[string]TokenInfo, len(g.Tokens)),
		Contracts:     make(map[common.Address][]string, len(g.Contracts)),
		Pairs:         append([]Pair(nil), g.Pairs...),
		Fees:          make(map[string]FeeInfo, len(g.Fees)),
		Granularities: append([]int64(nil), g.Granularities...),
	}
	for code, tok := range g.Tokens {
		c.Tokens[code] = tok
	}
	for addr, codes := range g.Contracts {
		c.Contracts[addr] = append([]string(nil), codes...)
	}
	for code, fee := range g.Fees {
		c.Fees[code] = fee
	}
	return c
}

// NextOrderID hands out the next monotonic order id.
func (g *GlobalState) NextOrderID() uint64 {
	id := g.TotalOrderID
	g.TotalOrderID++
	return id
}

func (g *GlobalState) TokenPermitted(sym asset.Symbol) bool {
	tok, ok := g.Tokens[sym.Code]
	return ok && tok.Symbol == sym
}

// PairPermitted finds the registered pair covering the two symbols in
// either orientation.
func (g *GlobalState) PairPermitted(a, b asset.Symbol) (Pair, bool) {
	for _, p := range g.Pairs {
		if (p.Base == a && p.Quote == b) || (p.Base == b && p.Quote == a) {
			return p, true
		}
	}
	return Pair{}, false
}

// FeeFor returns the fee schedule for a symbol code, zero-valued if the
// token carries no schedule.
func (g *GlobalState) FeeFor(sym asset.Symbol) FeeInfo {
	fi, ok := g.Fees[sym.Code]
	if !ok {
		return FeeInfo{MinOrder: asset.New(0, sym)}
	}
	return fi
}

// SymbolKey derives the stable 64-bit key of a symbol used for pair and
// bucket keying.
func SymbolKey(s asset.Symbol) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s.Code))
	h.Write([]byte{s.Precision})
	return h.Sum64()
}

// PairKey is symmetric in its arguments, so one book serves both
// directions of a pair.
func PairKey(a, b asset.Symbol) uint64 {
	return SymbolKey(a) ^ SymbolKey(b)
}

// OwnerKey folds an address into the 64-bit keyspace used for derived
// per-account pair keys.
func OwnerKey(addr common.Address) uint64 {
	h := fnv.New64a()
	h.Write(addr[:])
	return h.Sum64()
}

// NewFeeInfo derives the minimum order size from the smaller of the
// two fee rates: the smallest order whose fee still reaches
// MinFeeAmount. Zero on either rate disables the minimum.
func NewFeeInfo(sym asset.Symbol, makerPct, takerPct float64) FeeInfo {
	minOrder := 0.0
	if makerPct != 0 && takerPct != 0 {
		minOrder = 100 * MinFeeAmount / math.Min(makerPct, takerPct)
	}
	return FeeInfo{
		MakerPct: makerPct,
		TakerPct: takerPct,
		MinOrder: asset.New(int64(math.Ceil(minOrder)), sym),
	}
}
