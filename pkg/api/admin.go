package api

import (
	"encoding/json"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/glsig/dexchange/pkg/asset"
)

// Admin handlers. All of these sit behind the adminAuth middleware;
// request bodies are decoded and handed straight to the engine.

func (s *Server) handleAddToken(w http.ResponseWriter, r *http.Request) {
	var req AddTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	contract, ok := parseAddress(req.Contract)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid contract address", "")
		return
	}
	sym, err := asset.ParseSymbol(req.Symbol)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid symbol", err.Error())
		return
	}
	if err := s.x.AddToken(contract, sym, req.MakerPct, req.TakerPct); err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, map[string]string{"status": "added"})
}

func (s *Server) handleDelToken(w http.ResponseWriter, r *http.Request) {
	var req DelTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	contract, ok := parseAddress(req.Contract)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid contract address", "")
		return
	}
	sym, err := asset.ParseSymbol(req.Symbol)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid symbol", err.Error())
		return
	}
	if err := s.x.DelToken(contract, sym); err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, map[string]string{"status": "removed"})
}

func (s *Server) handleAddPair(w http.ResponseWriter, r *http.Request) {
	base, quote, ok := s.decodePairRequest(w, r)
	if !ok {
		return
	}
	if err := s.x.AddPair(base, quote); err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, map[string]string{"status": "added"})
}

func (s *Server) handleDelPair(w http.ResponseWriter, r *http.Request) {
	base, quote, ok := s.decodePairRequest(w, r)
	if !ok {
		return
	}
	if err := s.x.DelPair(base, quote); err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, map[string]string{"status": "removed"})
}

func (s *Server) handleSetFee(w http.ResponseWriter, r *http.Request) {
	var req SetFeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	sym, ok := s.x.LookupSymbol(req.Token)
	if !ok {
		respondError(w, http.StatusBadRequest, "unknown token", req.Token)
		return
	}
	if err := s.x.SetFee(sym, req.MakerPct, req.TakerPct); err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, map[string]string{"status": "updated"})
}

func (s *Server) handleDropOrders(w http.ResponseWriter, r *http.Request) {
	var req DropOrdersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	switch {
	case req.Token != "" && req.Base == "" && req.Quote == "":
		sym, ok := s.x.LookupSymbol(req.Token)
		if !ok {
			respondError(w, http.StatusBadRequest, "unknown token", req.Token)
			return
		}
		if err := s.x.DropByToken(sym); err != nil {
			s.respondEngineError(w, err)
			return
		}
	case req.Token == "" && req.Base != "" && req.Quote != "":
		base, ok := s.x.LookupSymbol(req.Base)
		if !ok {
			respondError(w, http.StatusBadRequest, "unknown token", req.Base)
			return
		}
		quote, ok := s.x.LookupSymbol(req.Quote)
		if !ok {
			respondError(w, http.StatusBadRequest, "unknown token", req.Quote)
			return
		}
		if err := s.x.DropByPair(base, quote); err != nil {
			s.respondEngineError(w, err)
			return
		}
	default:
		respondError(w, http.StatusBadRequest, "specify token or base+quote", "")
		return
	}
	respondJSON(w, map[string]string{"status": "dropped"})
}

func (s *Server) handleAddBlacklist(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.decodeBlacklistRequest(w, r)
	if !ok {
		return
	}
	if err := s.x.AddBlacklist(addr); err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, map[string]string{"status": "blacklisted"})
}

func (s *Server) handleDelBlacklist(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.decodeBlacklistRequest(w, r)
	if !ok {
		return
	}
	if err := s.x.DelBlacklist(addr); err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, map[string]string{"status": "unbarred"})
}

func (s *Server) decodePairRequest(w http.ResponseWriter, r *http.Request) (base, quote asset.Symbol, ok bool) {
	var req PairRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	base, found := s.x.LookupSymbol(req.Base)
	if !found {
		respondError(w, http.StatusBadRequest, "unknown token", req.Base)
		return
	}
	quote, found = s.x.LookupSymbol(req.Quote)
	if !found {
		respondError(w, http.StatusBadRequest, "unknown token", req.Quote)
		return
	}
	return base, quote, true
}

func (s *Server) decodeBlacklistRequest(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	var req BlacklistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return common.Address{}, false
	}
	addr, ok := parseAddress(req.Address)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid address", "")
		return common.Address{}, false
	}
	return addr, true
}
