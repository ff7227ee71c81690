package rpc

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"swapescrow/core"
	"swapescrow/storage"
)

const testToken = "secret-token"

var (
	aliceHex = "0xa1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1a1"
	bobHex   = "0xb2b2b2b2b2b2b2b2b2b2b2b2b2b2b2b2b2b2b2b2"
	carolHex = "0xc3c3c3c3c3c3c3c3c3c3c3c3c3c3c3c3c3c3c3c3"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	node, err := core.NewNode(storage.NewMemDB(), logger)
	require.NoError(t, err)
	node.SetAccountRent(big.NewInt(10))
	node.SetRecordRent(big.NewInt(25))

	require.NoError(t, node.RegisterMint("GOLD", "Gold", 6))
	require.NoError(t, node.RegisterMint("IRON", "Iron", 9))
	for _, hexAddr := range []string{aliceHex, bobHex, carolHex} {
		addr, err := parseAddress(hexAddr)
		require.NoError(t, err)
		require.NoError(t, node.CreditStorage(addr, big.NewInt(1_000)))
	}
	alice, _ := parseAddress(aliceHex)
	bob, _ := parseAddress(bobHex)
	require.NoError(t, node.FundAccount(alice, "GOLD", big.NewInt(500)))
	require.NoError(t, node.FundAccount(bob, "IRON", big.NewInt(2_000)))

	server := NewServer(node, logger)
	server.authToken = testToken
	return server
}

func call(t *testing.T, server *Server, method string, params interface{}, token string) RPCResponse {
	t.Helper()
	payload := map[string]interface{}{
		"jsonrpc": jsonRPCVersion,
		"id":      1,
		"method":  method,
	}
	if params != nil {
		payload["params"] = []interface{}{params}
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	server.handle(rec, req)

	var resp RPCResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func resultMap(t *testing.T, resp RPCResponse) map[string]interface{} {
	t.Helper()
	require.Nil(t, resp.Error)
	out, ok := resp.Result.(map[string]interface{})
	require.True(t, ok, "result is not an object: %#v", resp.Result)
	return out
}

func TestEscrowLifecycleOverRPC(t *testing.T) {
	server := newTestServer(t)

	resp := call(t, server, "escrow_initialize", map[string]interface{}{
		"initializer":       aliceHex,
		"seed":              "7",
		"mintA":             "GOLD",
		"mintB":             "IRON",
		"initializerAmount": "400",
		"takerAmount":       "900",
		"taker":             bobHex,
	}, testToken)
	created := resultMap(t, resp)
	escrowAddr := created["address"].(string)
	vaultB := created["vaultB"].(string)
	require.Equal(t, aliceHex, created["initializer"])
	require.Equal(t, "7", created["seed"])

	// The derived address is recomputable without state.
	resp = call(t, server, "escrow_address", map[string]interface{}{"seed": "7"}, "")
	derived := resultMap(t, resp)
	require.Equal(t, escrowAddr, derived["address"])

	resp = call(t, server, "token_transfer", map[string]interface{}{
		"from":   bobHex,
		"to":     vaultB,
		"mint":   "IRON",
		"amount": "900",
	}, testToken)
	require.Nil(t, resp.Error)

	resp = call(t, server, "escrow_exchange", map[string]interface{}{
		"address": escrowAddr,
		"caller":  carolHex,
	}, testToken)
	require.Nil(t, resp.Error)

	resp = call(t, server, "token_getBalance", map[string]interface{}{
		"owner": bobHex,
		"mint":  "GOLD",
	}, "")
	balance := resultMap(t, resp)
	require.Equal(t, "400", balance["balance"])

	resp = call(t, server, "token_getBalance", map[string]interface{}{
		"owner": aliceHex,
		"mint":  "IRON",
	}, "")
	balance = resultMap(t, resp)
	require.Equal(t, "900", balance["balance"])

	resp = call(t, server, "escrow_get", map[string]interface{}{"address": escrowAddr}, "")
	require.NotNil(t, resp.Error)
	require.Equal(t, codeEscrowNotFound, resp.Error.Code)

	resp = call(t, server, "escrow_listEvents", nil, "")
	require.Nil(t, resp.Error)
	events, ok := resp.Result.([]interface{})
	require.True(t, ok)
	require.Len(t, events, 2)
}

func TestMutatingMethodsRequireAuth(t *testing.T) {
	server := newTestServer(t)

	for _, method := range []string{"escrow_initialize", "escrow_cancel", "escrow_exchange", "token_transfer"} {
		resp := call(t, server, method, map[string]interface{}{}, "")
		require.NotNil(t, resp.Error, "method %s", method)
		require.Equal(t, codeUnauthorized, resp.Error.Code, "method %s", method)
	}

	resp := call(t, server, "escrow_cancel", map[string]interface{}{
		"address": aliceHex,
		"caller":  aliceHex,
	}, "wrong-token")
	require.NotNil(t, resp.Error)
	require.Equal(t, codeUnauthorized, resp.Error.Code)
}

func TestInitializeParamValidation(t *testing.T) {
	server := newTestServer(t)

	base := func() map[string]interface{} {
		return map[string]interface{}{
			"initializer":       aliceHex,
			"seed":              "1",
			"mintA":             "GOLD",
			"mintB":             "IRON",
			"initializerAmount": "400",
			"takerAmount":       "900",
			"taker":             bobHex,
		}
	}

	cases := map[string]func(map[string]interface{}){
		"bad address":       func(p map[string]interface{}) { p["initializer"] = "0x1234" },
		"zero amount":       func(p map[string]interface{}) { p["initializerAmount"] = "0" },
		"negative amount":   func(p map[string]interface{}) { p["takerAmount"] = "-5" },
		"non-numeric":       func(p map[string]interface{}) { p["takerAmount"] = "lots" },
		"beyond uint64":     func(p map[string]interface{}) { p["initializerAmount"] = "18446744073709551616" },
		"missing seed":      func(p map[string]interface{}) { delete(p, "seed") },
		"fractional amount": func(p map[string]interface{}) { p["initializerAmount"] = "4.5" },
	}
	for name, mutate := range cases {
		params := base()
		mutate(params)
		resp := call(t, server, "escrow_initialize", params, testToken)
		require.NotNil(t, resp.Error, "case %s", name)
		require.Equal(t, codeEscrowInvalidParams, resp.Error.Code, "case %s", name)
	}
}

func TestCancelByStrangerIsForbidden(t *testing.T) {
	server := newTestServer(t)

	resp := call(t, server, "escrow_initialize", map[string]interface{}{
		"initializer":       aliceHex,
		"seed":              "3",
		"mintA":             "GOLD",
		"mintB":             "IRON",
		"initializerAmount": "100",
		"takerAmount":       "200",
		"taker":             bobHex,
	}, testToken)
	created := resultMap(t, resp)

	resp = call(t, server, "escrow_cancel", map[string]interface{}{
		"address": created["address"],
		"caller":  carolHex,
	}, testToken)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeEscrowForbidden, resp.Error.Code)
}

func TestSeedReuseMapsToConflict(t *testing.T) {
	server := newTestServer(t)

	params := map[string]interface{}{
		"initializer":       aliceHex,
		"seed":              float64(11),
		"mintA":             "GOLD",
		"mintB":             "IRON",
		"initializerAmount": "50",
		"takerAmount":       "60",
		"taker":             bobHex,
	}
	resp := call(t, server, "escrow_initialize", params, testToken)
	require.Nil(t, resp.Error)
	resp = call(t, server, "escrow_initialize", params, testToken)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeEscrowConflict, resp.Error.Code)
}

func TestUnknownMethod(t *testing.T) {
	server := newTestServer(t)
	resp := call(t, server, "escrow_frobnicate", nil, "")
	require.NotNil(t, resp.Error)
	require.Equal(t, codeMethodNotFound, resp.Error.Code)
}

func TestMalformedRequests(t *testing.T) {
	server := newTestServer(t)

	send := func(body string) RPCResponse {
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte(body)))
		rec := httptest.NewRecorder()
		server.handle(rec, req)
		var resp RPCResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		return resp
	}

	resp := send("")
	require.NotNil(t, resp.Error)
	require.Equal(t, codeInvalidRequest, resp.Error.Code)

	resp = send("{not json")
	require.NotNil(t, resp.Error)
	require.Equal(t, codeParseError, resp.Error.Code)

	resp = send(`{"jsonrpc":"1.0","method":"escrow_get","id":1}`)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeInvalidRequest, resp.Error.Code)

	resp = send(`{"jsonrpc":"2.0","id":1}`)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeInvalidRequest, resp.Error.Code)
}

func TestMintLookup(t *testing.T) {
	server := newTestServer(t)

	resp := call(t, server, "token_getMint", map[string]interface{}{"symbol": "gold"}, "")
	mint := resultMap(t, resp)
	require.Equal(t, "GOLD", mint["symbol"])
	require.Equal(t, float64(6), mint["decimals"])

	resp = call(t, server, "token_getMint", map[string]interface{}{"symbol": "COPPER"}, "")
	require.NotNil(t, resp.Error)
	require.Equal(t, codeEscrowNotFound, resp.Error.Code)
}
