package api

// Request and response types for REST endpoints and WebSocket messages.
// Amounts cross the wire as human decimal strings ("1.2500"); the
// handlers scale them against the token's registered precision.

// ==============================
// REST Response Types
// ==============================

// PairInfo describes one permitted trading pair.
type PairInfo struct {
	Name  string `json:"name"`  // e.g. "ABC-SYS"
	Base  string `json:"base"`  // "4,ABC"
	Quote string `json:"quote"` // "4,SYS"
}

// TokenView describes a permitted token with its fee schedule.
type TokenView struct {
	Symbol   string  `json:"symbol"`   // "4,ABC"
	Contract string  `json:"contract"` // custody contract address
	MakerPct float64 `json:"makerPct"`
	TakerPct float64 `json:"takerPct"`
	MinOrder string  `json:"minOrder"` // e.g. "0.1000 ABC"
}

// OrderView is one resting order.
type OrderView struct {
	ID        uint64  `json:"id"`
	Owner     string  `json:"owner"`
	Sell      string  `json:"sell"`
	Buy       string  `json:"buy"`
	Price     float64 `json:"price"`
	Received  string  `json:"received"`
	Paid      string  `json:"paid"`
	Fee       string  `json:"fee"`
	AvgPrice  float64 `json:"avgPrice"`
	CreatedAt int64   `json:"createdAt"` // unix microseconds
}

// BookView is the two sorted sides of one pair's book.
type BookView struct {
	Pair      string      `json:"pair"`
	Sells     []OrderView `json:"sells"`
	Buys      []OrderView `json:"buys"`
	Timestamp int64       `json:"timestamp"` // unix milliseconds
}

// BalanceView is one token balance inside an account.
type BalanceView struct {
	Token     string `json:"token"`
	Available string `json:"available"`
	Used      string `json:"used"`
}

// AccountView is an account snapshot.
type AccountView struct {
	Address  string        `json:"address"`
	Balances []BalanceView `json:"balances"`
}

// CandleView is one OHLCV bucket.
type CandleView struct {
	Open        int64   `json:"open"` // bucket open time, unix seconds
	OpenPrice   float64 `json:"o"`
	HighPrice   float64 `json:"h"`
	LowPrice    float64 `json:"l"`
	ClosePrice  float64 `json:"c"`
	BaseVolume  float64 `json:"baseVolume"`
	QuoteVolume float64 `json:"quoteVolume"`
}

// HistoryView is one closed-order record.
type HistoryView struct {
	OrderID   uint64  `json:"orderId"`
	Owner     string  `json:"owner"`
	Status    uint8   `json:"status"`
	Memo      string  `json:"memo"`
	Sell      string  `json:"sell"`
	Buy       string  `json:"buy"`
	Received  string  `json:"received"`
	Paid      string  `json:"paid"`
	Fee       string  `json:"fee"`
	Price     float64 `json:"price"`
	AvgPrice  float64 `json:"avgPrice"`
	StartTime int64   `json:"startTime"`
	EndTime   int64   `json:"endTime"`
}

// ErrorResponse is returned for all errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// ==============================
// REST Request Types
// ==============================

// Quantity is a token code plus a human decimal amount.
type Quantity struct {
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

// DepositRequest credits an inbound custody notification.
type DepositRequest struct {
	Owner    string   `json:"owner"`
	Quantity Quantity `json:"quantity"`
}

// PlaceOrderRequest rests a sell/buy order on its pair's book.
type PlaceOrderRequest struct {
	Owner string   `json:"owner"`
	Sell  Quantity `json:"sell"`
	Buy   Quantity `json:"buy"`
}

// CancelRequest cancels the listed order ids, or everything the owner
// has open when All is set.
type CancelRequest struct {
	Owner string   `json:"owner"`
	IDs   []uint64 `json:"ids,omitempty"`
	All   bool     `json:"all,omitempty"`
}

// WithdrawRequest sends the owner's full available balance of one token
// back out through custody.
type WithdrawRequest struct {
	Owner string `json:"owner"`
	Token string `json:"token"`
}

// ==============================
// Admin Request Types
// ==============================

// AddTokenRequest registers a token. Symbol carries the precision in
// the "4,ABC" form.
type AddTokenRequest struct {
	Contract string  `json:"contract"`
	Symbol   string  `json:"symbol"`
	MakerPct float64 `json:"makerPct"`
	TakerPct float64 `json:"takerPct"`
}

// DelTokenRequest delists a token.
type DelTokenRequest struct {
	Contract string `json:"contract"`
	Symbol   string `json:"symbol"`
}

// PairRequest names a pair by token codes, base first.
type PairRequest struct {
	Base  string `json:"base"`
	Quote string `json:"quote"`
}

// SetFeeRequest replaces a token's fee schedule.
type SetFeeRequest struct {
	Token    string  `json:"token"`
	MakerPct float64 `json:"makerPct"`
	TakerPct float64 `json:"takerPct"`
}

// DropOrdersRequest force-cancels orders by token or by pair. Exactly
// one of Token or Base+Quote must be set.
type DropOrdersRequest struct {
	Token string `json:"token,omitempty"`
	Base  string `json:"base,omitempty"`
	Quote string `json:"quote,omitempty"`
}

// BlacklistRequest names the account to bar or unbar.
type BlacklistRequest struct {
	Address string `json:"address"`
}

// ==============================
// WebSocket Message Types
// ==============================

// WSSubscribeRequest is sent by the client to manage its channel set.
// Channels: "trades:ABC-SYS", "candles:ABC-SYS".
type WSSubscribeRequest struct {
	Op       string   `json:"op"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}

// TradeUpdate is broadcast on the trades channel after each fill.
type TradeUpdate struct {
	Type        string  `json:"type"` // "trade"
	Pair        string  `json:"pair"`
	Price       float64 `json:"price"`
	BaseAmount  string  `json:"baseAmount"`
	QuoteAmount string  `json:"quoteAmount"`
	MakerID     uint64  `json:"makerId"`
	TakerID     uint64  `json:"takerId"`
	Timestamp   int64   `json:"timestamp"` // unix seconds
}

// CandleUpdate is broadcast on the candles channel for every bucket the
// fill touched.
type CandleUpdate struct {
	Type        string     `json:"type"` // "candle"
	Pair        string     `json:"pair"`
	Granularity int64      `json:"granularity"`
	Candle      CandleView `json:"candle"`
}
