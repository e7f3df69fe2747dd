// Package rpc exposes TokenState over JSON-RPC: a request/response
// envelope, method-table dispatch and an IP-keyed rate limiter in front
// of the token_* operations.
package rpc

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"

	"yieldcore/core/indexing"
	"yieldcore/core/token"
	"yieldcore/core/types"
)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      any             `json:"id"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string `json:"jsonrpc"`
	Result  any    `json:"result,omitempty"`
	Error   *Error `json:"error,omitempty"`
	ID      any    `json:"id"`
}

// Error is a JSON-RPC error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// RateLimiter is a per-client token-bucket-by-window limiter.
type RateLimiter struct {
	mu       sync.Mutex
	requests map[string]*bucket
	limit    int
	window   time.Duration
}

type bucket struct {
	count     int
	resetTime time.Time
}

// NewRateLimiter creates a limiter allowing limit requests per window,
// per client IP.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{requests: make(map[string]*bucket), limit: limit, window: window}
}

// Allow reports whether clientID may make another request right now.
func (rl *RateLimiter) Allow(clientID string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	b, ok := rl.requests[clientID]
	if !ok {
		rl.requests[clientID] = &bucket{count: 1, resetTime: now.Add(rl.window)}
		return true
	}
	if now.After(b.resetTime) {
		b.count = 1
		b.resetTime = now.Add(rl.window)
		return true
	}
	if b.count < rl.limit {
		b.count++
		return true
	}
	return false
}

// Clean evicts clients whose window has long since expired.
func (rl *RateLimiter) Clean() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := time.Now()
	for id, b := range rl.requests {
		if now.After(b.resetTime.Add(rl.window)) {
			delete(rl.requests, id)
		}
	}
}

// Server serves the token_* JSON-RPC namespace over HTTP.
type Server struct {
	token *token.TokenState
	now   func() uint64

	httpServer  *http.Server
	rateLimiter *RateLimiter
	methods     map[string]func(json.RawMessage) (any, error)

	addr string
}

// NewServer builds a Server exposing tok on addr. now supplies the
// operation timestamp for every call (package clock in production, a
// fixed func in tests).
func NewServer(addr string, tok *token.TokenState, now func() uint64) *Server {
	s := &Server{
		token:       tok,
		now:         now,
		addr:        addr,
		rateLimiter: NewRateLimiter(600, time.Minute),
		methods:     make(map[string]func(json.RawMessage) (any, error)),
	}
	s.registerMethods()
	return s
}

func (s *Server) registerMethods() {
	s.methods["token_mint"] = s.mint
	s.methods["token_burn"] = s.burn
	s.methods["token_transfer"] = s.transfer
	s.methods["token_startEarning"] = s.startEarning
	s.methods["token_stopEarning"] = s.stopEarning
	s.methods["token_claim"] = s.claim
	s.methods["token_balanceOf"] = s.balanceOf
	s.methods["token_isEarning"] = s.isEarning
	s.methods["token_totalSupply"] = s.totalSupply
	s.methods["token_currentIndex"] = s.currentIndex
}

// Handler returns the http.Handler this server dispatches through,
// exposed so tests can drive it with httptest without binding a port.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleHTTP)
	return mux
}

// Start serves HTTP in the background.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			s.rateLimiter.Clean()
		}
	}()

	log.Info("starting rpc server", "addr", s.addr)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("rpc server error", "err", err)
		}
	}()
	return nil
}

// Stop shuts the HTTP server down.
func (s *Server) Stop() {
	if s.httpServer != nil {
		s.httpServer.Close()
	}
}

func (s *Server) handleHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	clientIP := clientIP(r)
	if !s.rateLimiter.Allow(clientIP) {
		s.writeError(w, &Error{Code: -32005, Message: "rate limit exceeded"}, nil)
		return
	}
	if r.ContentLength > 1<<20 {
		s.writeError(w, &Error{Code: -32006, Message: "request too large"}, nil)
		return
	}

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, &Error{Code: -32700, Message: "parse error: " + err.Error()}, nil)
		return
	}

	resp := s.dispatch(&req)
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) dispatch(req *Request) *Response {
	method, ok := s.methods[req.Method]
	if !ok {
		return &Response{JSONRPC: "2.0", Error: &Error{Code: -32601, Message: "method not found"}, ID: req.ID}
	}
	result, err := method(req.Params)
	if err != nil {
		return &Response{JSONRPC: "2.0", Error: &Error{Code: -32000, Message: err.Error()}, ID: req.ID}
	}
	return &Response{JSONRPC: "2.0", Result: result, ID: req.ID}
}

func (s *Server) writeError(w http.ResponseWriter, rpcErr *Error, id any) {
	json.NewEncoder(w).Encode(&Response{JSONRPC: "2.0", Error: rpcErr, ID: id})
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	if idx := strings.LastIndex(r.RemoteAddr, ":"); idx != -1 {
		return r.RemoteAddr[:idx]
	}
	return r.RemoteAddr
}

// --- method implementations ---

type transferParams struct {
	To     string `json:"to"`
	From   string `json:"from"`
	Amount string `json:"amount"`
}

func parseAmount(s string) (*uint256.Int, error) {
	v := new(uint256.Int)
	if err := v.SetFromDecimal(s); err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return v, nil
}

func (s *Server) mint(params json.RawMessage) (any, error) {
	var p transferParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	amount, err := parseAmount(p.Amount)
	if err != nil {
		return nil, err
	}
	to := types.HexToAddress(p.To)
	if err := s.token.Mint(to, amount, s.now()); err != nil {
		return nil, err
	}
	return true, nil
}

func (s *Server) burn(params json.RawMessage) (any, error) {
	var p transferParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	amount, err := parseAmount(p.Amount)
	if err != nil {
		return nil, err
	}
	from := types.HexToAddress(p.From)
	if err := s.token.Burn(from, amount, s.now()); err != nil {
		return nil, err
	}
	return true, nil
}

func (s *Server) transfer(params json.RawMessage) (any, error) {
	var p transferParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	amount, err := parseAmount(p.Amount)
	if err != nil {
		return nil, err
	}
	from := types.HexToAddress(p.From)
	to := types.HexToAddress(p.To)
	if err := s.token.Transfer(from, to, amount, s.now()); err != nil {
		return nil, err
	}
	return true, nil
}

type startEarningParams struct {
	Address                  string `json:"address"`
	CurrentNonEarningBalance string `json:"currentNonEarningBalance"`
}

func (s *Server) startEarning(params json.RawMessage) (any, error) {
	var p startEarningParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	balance, err := parseAmount(p.CurrentNonEarningBalance)
	if err != nil {
		return nil, err
	}
	addr := types.HexToAddress(p.Address)
	if err := s.token.StartEarning(addr, balance, s.now()); err != nil {
		return nil, err
	}
	return true, nil
}

type addressParams struct {
	Address string `json:"address"`
}

func (s *Server) stopEarning(params json.RawMessage) (any, error) {
	var p addressParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	addr := types.HexToAddress(p.Address)
	present, principal, err := s.token.StopEarning(addr, s.now())
	if err != nil {
		return nil, err
	}
	return map[string]string{"presentAmount": present.Dec(), "principal": principal.Dec()}, nil
}

func (s *Server) claim(params json.RawMessage) (any, error) {
	var p addressParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	addr := types.HexToAddress(p.Address)
	amount, err := s.token.Claim(addr, s.now())
	if err != nil {
		return nil, err
	}
	return map[string]string{"presentAmount": amount.Dec()}, nil
}

func (s *Server) balanceOf(params json.RawMessage) (any, error) {
	var p addressParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	addr := types.HexToAddress(p.Address)
	if s.token.IsEarning(addr) {
		idx, err := s.token.CurrentIndex(s.now())
		if err != nil {
			return nil, err
		}
		principal := s.token.PrincipalBalance(addr)
		present := indexing.PresentFromPrincipalDown(principal, idx)
		return map[string]string{"balance": present.Dec()}, nil
	}
	return map[string]string{"balance": "0"}, nil
}

func (s *Server) isEarning(params json.RawMessage) (any, error) {
	var p addressParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	return s.token.IsEarning(types.HexToAddress(p.Address)), nil
}

func (s *Server) totalSupply(params json.RawMessage) (any, error) {
	total, err := s.token.TotalSupply(s.now())
	if err != nil {
		return nil, err
	}
	return total.Dec(), nil
}

func (s *Server) currentIndex(params json.RawMessage) (any, error) {
	idx, err := s.token.CurrentIndex(s.now())
	if err != nil {
		return nil, err
	}
	return idx.Dec(), nil
}
