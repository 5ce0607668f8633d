package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/glsig/dexchange/params"
	"github.com/glsig/dexchange/pkg/asset"
	"github.com/glsig/dexchange/pkg/exchange"
	"github.com/glsig/dexchange/pkg/storage"
)

// Server handles REST API and WebSocket connections. It is a thin
// translation layer: requests are decoded, amounts scaled against the
// registered token precisions, and the engine's errors mapped onto
// HTTP statuses. All exchange rules live in the engine.
type Server struct {
	x      *exchange.Exchange
	store  *storage.PebbleStore
	router *mux.Router
	hub    *Hub
	log    *zap.SugaredLogger
	cfg    params.API
}

// NewServer creates a new API server.
func NewServer(x *exchange.Exchange, store *storage.PebbleStore, cfg params.API, log *zap.SugaredLogger) *Server {
	s := &Server{
		x:      x,
		store:  store,
		router: mux.NewRouter(),
		hub:    NewHub(log),
		log:    log,
		cfg:    cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Market endpoints
	api.HandleFunc("/pairs", s.handleGetPairs).Methods("GET")
	api.HandleFunc("/tokens", s.handleGetTokens).Methods("GET")
	api.HandleFunc("/pairs/{pair}/book", s.handleGetBook).Methods("GET")
	api.HandleFunc("/pairs/{pair}/candles", s.handleGetCandles).Methods("GET")

	// Account endpoints
	api.HandleFunc("/accounts/{address}", s.handleGetAccount).Methods("GET")
	api.HandleFunc("/accounts/{address}/orders", s.handleGetOrders).Methods("GET")
	api.HandleFunc("/accounts/{address}/history", s.handleGetHistory).Methods("GET")

	// Trading endpoints
	api.HandleFunc("/deposits", s.handleDeposit).Methods("POST")
	api.HandleFunc("/orders", s.handlePlaceOrder).Methods("POST")
	api.HandleFunc("/orders/cancel", s.handleCancel).Methods("POST")
	api.HandleFunc("/withdrawals", s.handleWithdraw).Methods("POST")

	// Admin endpoints, gated behind the admin JWT
	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(s.adminAuth)
	admin.HandleFunc("/tokens", s.handleAddToken).Methods("POST")
	admin.HandleFunc("/tokens/delete", s.handleDelToken).Methods("POST")
	admin.HandleFunc("/pairs", s.handleAddPair).Methods("POST")
	admin.HandleFunc("/pairs/delete", s.handleDelPair).Methods("POST")
	admin.HandleFunc("/fees", s.handleSetFee).Methods("POST")
	admin.HandleFunc("/orders/drop", s.handleDropOrders).Methods("POST")
	admin.HandleFunc("/blacklist", s.handleAddBlacklist).Methods("POST")
	admin.HandleFunc("/blacklist/delete", s.handleDelBlacklist).Methods("POST")

	// WebSocket endpoint
	s.router.HandleFunc("/ws", s.handleWebSocket)

	// Health check
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Start starts the API server.
func (s *Server) Start(addr string) error {
	go s.hub.Run()

	c := cors.New(cors.Options{
		AllowedOrigins:   s.cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	s.log.Infow("api server starting", "addr", addr)
	return http.ListenAndServe(addr, c.Handler(s.router))
}

// ==============================
// Market Handlers
// ==============================

func (s *Server) handleGetPairs(w http.ResponseWriter, r *http.Request) {
	pairs := s.x.Pairs()
	out := make([]PairInfo, len(pairs))
	for i, p := range pairs {
		out[i] = PairInfo{Name: p.Name(), Base: p.Base.String(), Quote: p.Quote.String()}
	}
	respondJSON(w, out)
}

func (s *Server) handleGetTokens(w http.ResponseWriter, r *http.Request) {
	tokens := s.x.Tokens()
	out := make([]TokenView, len(tokens))
	for i, t := range tokens {
		fee := s.x.FeeFor(t.Symbol)
		out[i] = TokenView{
			Symbol:   t.Symbol.String(),
			Contract: t.Contract.Hex(),
			MakerPct: fee.MakerPct,
			TakerPct: fee.TakerPct,
			MinOrder: fee.MinOrder.String(),
		}
	}
	respondJSON(w, out)
}

func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	pair, ok := s.x.PairByName(mux.Vars(r)["pair"])
	if !ok {
		respondError(w, http.StatusNotFound, "pair not found", "")
		return
	}
	sells, buys, err := s.x.BookSnapshot(pair.Base, pair.Quote)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, BookView{
		Pair:      pair.Name(),
		Sells:     orderViews(sells),
		Buys:      orderViews(buys),
		Timestamp: time.Now().UnixMilli(),
	})
}

func (s *Server) handleGetCandles(w http.ResponseWriter, r *http.Request) {
	pair, ok := s.x.PairByName(mux.Vars(r)["pair"])
	if !ok {
		respondError(w, http.StatusNotFound, "pair not found", "")
		return
	}

	q := r.URL.Query()
	gran, err := strconv.ParseInt(q.Get("granularity"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid granularity", q.Get("granularity"))
		return
	}
	permitted := false
	for _, g := range s.x.Granularities() {
		if g == gran {
			permitted = true
			break
		}
	}
	if !permitted {
		respondError(w, http.StatusBadRequest, "unsupported granularity", q.Get("granularity"))
		return
	}

	now := time.Now().Unix()
	from := queryInt(q.Get("from"), now-gran*100)
	to := queryInt(q.Get("to"), now)

	buckets, err := s.store.Candles(pair.Key, gran, from, to)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "candle query failed", err.Error())
		return
	}
	out := make([]CandleView, len(buckets))
	for i, b := range buckets {
		out[i] = candleView(b)
	}
	respondJSON(w, out)
}

// ==============================
// Account Handlers
// ==============================

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(mux.Vars(r)["address"])
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid address", "")
		return
	}
	acct, ok := s.x.AccountInfo(addr)
	if !ok {
		respondError(w, http.StatusNotFound, "account not found", "")
		return
	}
	view := AccountView{Address: addr.Hex()}
	for _, code := range acct.BalanceCodes() {
		bal := acct.Balances[code]
		view.Balances = append(view.Balances, BalanceView{
			Token:     code,
			Available: bal.Available.String(),
			Used:      bal.Used.String(),
		})
	}
	respondJSON(w, view)
}

func (s *Server) handleGetOrders(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(mux.Vars(r)["address"])
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid address", "")
		return
	}
	respondJSON(w, orderViews(s.x.OpenOrders(addr)))
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(mux.Vars(r)["address"])
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid address", "")
		return
	}
	limit := int(queryInt(r.URL.Query().Get("limit"), 100))
	records, err := s.store.History(&addr, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "history query failed", err.Error())
		return
	}
	out := make([]HistoryView, len(records))
	for i, h := range records {
		out[i] = HistoryView{
			OrderID:   h.OrderID,
			Owner:     h.Owner.Hex(),
			Status:    uint8(h.Status),
			Memo:      h.Status.Memo(),
			Sell:      h.Sell.String(),
			Buy:       h.Buy.String(),
			Received:  h.Received.String(),
			Paid:      h.Paid.String(),
			Fee:       h.Fee.String(),
			Price:     h.Price,
			AvgPrice:  h.AvgPrice,
			StartTime: h.StartTime,
			EndTime:   h.EndTime,
		}
	}
	respondJSON(w, out)
}

// ==============================
// Trading Handlers
// ==============================

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	owner, ok := parseAddress(req.Owner)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid owner address", "")
		return
	}
	amount, err := s.parseQuantity(req.Quantity)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid quantity", err.Error())
		return
	}
	if err := s.x.Deposit(owner, amount); err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, map[string]string{"status": "credited"})
}

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req PlaceOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	owner, ok := parseAddress(req.Owner)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid owner address", "")
		return
	}
	sell, err := s.parseQuantity(req.Sell)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid sell quantity", err.Error())
		return
	}
	buy, err := s.parseQuantity(req.Buy)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid buy quantity", err.Error())
		return
	}
	if err := s.x.PlaceOrder(owner, sell, buy); err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, map[string]string{"status": "accepted"})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	var req CancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	owner, ok := parseAddress(req.Owner)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid owner address", "")
		return
	}
	var err error
	if req.All {
		err = s.x.CancelAll(owner)
	} else {
		if len(req.IDs) == 0 {
			respondError(w, http.StatusBadRequest, "no order ids", "")
			return
		}
		err = s.x.CancelOrders(owner, req.IDs)
	}
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, map[string]string{"status": "cancelled"})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req WithdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	owner, ok := parseAddress(req.Owner)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid owner address", "")
		return
	}
	sym, ok := s.x.LookupSymbol(req.Token)
	if !ok {
		respondError(w, http.StatusBadRequest, "unknown token", req.Token)
		return
	}
	if err := s.x.Withdraw(owner, sym); err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, map[string]string{"status": "withdrawn"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Broadcast Methods
// ==============================

// PublishTrade is wired as the engine's trade hook. It fans the fill
// out to the trades channel and, per granularity, the candles channel.
func (s *Server) PublishTrade(t exchange.Trade) {
	s.hub.BroadcastToChannel("trades:"+t.Pair, TradeUpdate{
		Type:        "trade",
		Pair:        t.Pair,
		Price:       t.Price,
		BaseAmount:  t.BaseAmt.String(),
		QuoteAmount: t.QuoteAmt.String(),
		MakerID:     t.MakerID,
		TakerID:     t.TakerID,
		Timestamp:   t.Timestamp,
	})

	pair, ok := s.x.PairByName(t.Pair)
	if !ok {
		return
	}
	for _, gran := range s.x.Granularities() {
		open := (t.Timestamp / gran) * gran
		bucket, err := s.store.LoadBucket(exchange.BucketKey{PairKey: pair.Key, Granularity: gran, Open: open})
		if err != nil || bucket == nil {
			continue
		}
		s.hub.BroadcastToChannel("candles:"+t.Pair, CandleUpdate{
			Type:        "candle",
			Pair:        t.Pair,
			Granularity: gran,
			Candle:      candleView(bucket),
		})
	}
}

// ==============================
// Helper Functions
// ==============================

// parseQuantity resolves a token code against the registry and scales
// the decimal amount to smallest units.
func (s *Server) parseQuantity(q Quantity) (asset.Asset, error) {
	sym, ok := s.x.LookupSymbol(q.Token)
	if !ok {
		return asset.Asset{}, &unknownTokenError{code: q.Token}
	}
	return asset.Parse(q.Amount, sym)
}

type unknownTokenError struct{ code string }

func (e *unknownTokenError) Error() string { return "unknown token " + e.code }

func parseAddress(s string) (common.Address, bool) {
	if !common.IsHexAddress(s) {
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}

func queryInt(s string, def int64) int64 {
	if s == "" {
		return def
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func orderViews(orders []exchange.Order) []OrderView {
	out := make([]OrderView, len(orders))
	for i, o := range orders {
		out[i] = OrderView{
			ID:        o.ID,
			Owner:     o.Owner.Hex(),
			Sell:      o.Sell.String(),
			Buy:       o.Buy.String(),
			Price:     o.Price,
			Received:  o.Received.String(),
			Paid:      o.Paid.String(),
			Fee:       o.Fee.String(),
			AvgPrice:  o.AvgPrice,
			CreatedAt: o.CreatedAt,
		}
	}
	return out
}

func candleView(b *exchange.Bucket) CandleView {
	return CandleView{
		Open:        b.Key.Open,
		OpenPrice:   b.OpenPrice,
		HighPrice:   b.High,
		LowPrice:    b.Low,
		ClosePrice:  b.ClosePrice,
		BaseVolume:  b.BaseVolume,
		QuoteVolume: b.QuoteVolume,
	}
}

// respondEngineError maps the engine's error categories onto HTTP
// statuses.
func (s *Server) respondEngineError(w http.ResponseWriter, err error) {
	switch {
	case exchange.IsValidation(err):
		respondError(w, http.StatusBadRequest, "rejected", err.Error())
	case exchange.IsAuthorization(err):
		respondError(w, http.StatusForbidden, "forbidden", err.Error())
	case exchange.IsInsufficientBalance(err):
		respondError(w, http.StatusUnprocessableEntity, "insufficient balance", err.Error())
	default:
		s.log.Errorw("internal error", "err", err)
		respondError(w, http.StatusInternalServerError, "internal error", "")
	}
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}
