package rpc

import (
	"encoding/json"
	"testing"
	"time"

	"yieldcore/core/token"
)

func fixedNow(ts uint64) func() uint64 {
	return func() uint64 { return ts }
}

func call(s *Server, method string, params any) *Response {
	raw, _ := json.Marshal(params)
	return s.dispatch(&Request{JSONRPC: "2.0", Method: method, Params: raw, ID: 1})
}

func TestMintAndBalanceOf(t *testing.T) {
	tok := token.New("reg", 0)
	s := NewServer(":0", tok, fixedNow(0))

	resp := call(s, "token_mint", transferParams{To: "0x0000000000000000000000000000000000000001", Amount: "1000"})
	if resp.Error != nil {
		t.Fatal(resp.Error.Message)
	}

	resp = call(s, "token_balanceOf", addressParams{Address: "0x0000000000000000000000000000000000000001"})
	if resp.Error != nil {
		t.Fatal(resp.Error.Message)
	}
	// The address is not earning, and the core tracks only the non-earning
	// aggregate, so balanceOf reports zero for it.
	m := resp.Result.(map[string]string)
	if m["balance"] != "0" {
		t.Errorf("balance = %s, want 0", m["balance"])
	}
}

func TestUnknownMethod(t *testing.T) {
	tok := token.New("reg", 0)
	s := NewServer(":0", tok, fixedNow(0))
	resp := call(s, "token_doesNotExist", struct{}{})
	if resp.Error == nil || resp.Error.Code != -32601 {
		t.Fatalf("expected method-not-found error, got %+v", resp.Error)
	}
}

func TestMintInsufficientAmountSurfacesAsRPCError(t *testing.T) {
	tok := token.New("reg", 0)
	s := NewServer(":0", tok, fixedNow(0))
	resp := call(s, "token_mint", transferParams{To: "0x0000000000000000000000000000000000000001", Amount: "0"})
	if resp.Error == nil {
		t.Fatal("expected an RPC error for zero-amount mint")
	}
}

func TestRateLimiterAllowsUpToLimit(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)
	for i := 0; i < 3; i++ {
		if !rl.Allow("client-a") {
			t.Fatalf("request %d should be allowed", i)
		}
	}
	if rl.Allow("client-a") {
		t.Fatal("4th request should be rejected")
	}
	if !rl.Allow("client-b") {
		t.Fatal("a different client should have its own bucket")
	}
}
