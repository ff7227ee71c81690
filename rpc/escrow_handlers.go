package rpc

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"swapescrow/core"
	"swapescrow/native/escrow"
	"swapescrow/native/token"
)

const (
	codeEscrowInvalidParams = -32021
	codeEscrowNotFound      = -32022
	codeEscrowForbidden     = -32023
	codeEscrowConflict      = -32024
	codeEscrowInternal      = -32025
)

type escrowInitializeParams struct {
	Initializer       string          `json:"initializer"`
	Seed              json.RawMessage `json:"seed"`
	MintA             string          `json:"mintA"`
	MintB             string          `json:"mintB"`
	InitializerAmount string          `json:"initializerAmount"`
	TakerAmount       string          `json:"takerAmount"`
	Taker             string          `json:"taker"`
}

type escrowAddressParams struct {
	Address string `json:"address"`
}

type escrowActorParams struct {
	Address string `json:"address"`
	Caller  string `json:"caller"`
}

type escrowSeedParams struct {
	Seed json.RawMessage `json:"seed"`
}

type tokenTransferParams struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Mint   string `json:"mint"`
	Amount string `json:"amount"`
}

type tokenBalanceParams struct {
	Owner string `json:"owner"`
	Mint  string `json:"mint"`
}

type mintParams struct {
	Symbol string `json:"symbol"`
}

type escrowAddressResult struct {
	Address string `json:"address"`
	Bump    uint8  `json:"bump"`
}

type escrowJSON struct {
	Address           string `json:"address"`
	Initializer       string `json:"initializer"`
	Taker             string `json:"taker"`
	MintA             string `json:"mintA"`
	MintB             string `json:"mintB"`
	InitializerAmount string `json:"initializerAmount"`
	TakerAmount       string `json:"takerAmount"`
	Seed              string `json:"seed"`
	Bump              uint8  `json:"bump"`
	CreatedAt         int64  `json:"createdAt"`
	VaultA            string `json:"vaultA"`
	VaultB            string `json:"vaultB"`
}

type tokenBalanceResult struct {
	Owner   string `json:"owner"`
	Mint    string `json:"mint"`
	Balance string `json:"balance"`
}

type mintResult struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Decimals uint8  `json:"decimals"`
}

type escrowEventJSON struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

func (s *Server) handleEscrowInitialize(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", "exactly one parameter object expected")
		return
	}
	var params escrowInitializeParams
	if err := json.Unmarshal(req.Params[0], &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	initializer, err := parseAddress(params.Initializer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	taker, err := parseAddress(params.Taker)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	seed, err := parseSeed(params.Seed)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	initializerAmount, err := parseAmount(params.InitializerAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	takerAmount, err := parseAmount(params.TakerAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	esc, addr, err := s.node.EscrowInitialize(initializer, seed, params.MintA, params.MintB, initializerAmount, takerAmount, taker)
	if err != nil {
		writeEscrowError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatEscrowJSON(addr, esc))
}

func (s *Server) handleEscrowCancel(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	addr, caller, ok := s.decodeActorParams(w, req)
	if !ok {
		return
	}
	if err := s.node.EscrowCancel(caller, addr); err != nil {
		writeEscrowError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"status": "cancelled"})
}

func (s *Server) handleEscrowExchange(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	addr, caller, ok := s.decodeActorParams(w, req)
	if !ok {
		return
	}
	if err := s.node.EscrowExchange(caller, addr); err != nil {
		writeEscrowError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"status": "exchanged"})
}

func (s *Server) handleEscrowGet(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", "exactly one parameter object expected")
		return
	}
	var params escrowAddressParams
	if err := json.Unmarshal(req.Params[0], &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	esc, err := s.node.EscrowGet(addr)
	if err != nil {
		writeEscrowError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatEscrowJSON(addr, esc))
}

func (s *Server) handleEscrowAddress(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", "exactly one parameter object expected")
		return
	}
	var params escrowSeedParams
	if err := json.Unmarshal(req.Params[0], &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	seed, err := parseSeed(params.Seed)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	addr, bump, err := s.node.EscrowAddress(seed)
	if err != nil {
		writeEscrowError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, escrowAddressResult{Address: formatAddress(addr), Bump: bump})
}

func (s *Server) handleEscrowListEvents(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", "no parameters expected")
		return
	}
	committed := s.node.Events()
	out := make([]escrowEventJSON, 0, len(committed))
	for _, evt := range committed {
		payload, ok := evt.(*escrow.Event)
		if !ok {
			continue
		}
		attrs := make(map[string]string, len(payload.Attributes))
		for k, v := range payload.Attributes {
			attrs[k] = v
		}
		out = append(out, escrowEventJSON{Type: payload.Type, Attributes: attrs})
	}
	writeResult(w, req.ID, out)
}

func (s *Server) handleTokenTransfer(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", "exactly one parameter object expected")
		return
	}
	var params tokenTransferParams
	if err := json.Unmarshal(req.Params[0], &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	from, err := parseAddress(params.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	to, err := parseAddress(params.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.TokenTransfer(from, to, params.Mint, amount); err != nil {
		writeEscrowError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"status": "transferred"})
}

func (s *Server) handleTokenGetBalance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", "exactly one parameter object expected")
		return
	}
	var params tokenBalanceParams
	if err := json.Unmarshal(req.Params[0], &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	owner, err := parseAddress(params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	balance, err := s.node.TokenBalance(owner, params.Mint)
	if err != nil {
		writeEscrowError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, tokenBalanceResult{
		Owner:   formatAddress(owner),
		Mint:    strings.ToUpper(strings.TrimSpace(params.Mint)),
		Balance: balance.String(),
	})
}

func (s *Server) handleTokenGetMint(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", "exactly one parameter object expected")
		return
	}
	var params mintParams
	if err := json.Unmarshal(req.Params[0], &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	meta, ok, err := s.node.MintInfo(params.Symbol)
	if err != nil {
		writeEscrowError(w, req.ID, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeEscrowNotFound, "not_found", fmt.Sprintf("mint %s not registered", params.Symbol))
		return
	}
	writeResult(w, req.ID, mintResult{Symbol: meta.Symbol, Name: meta.Name, Decimals: meta.Decimals})
}

func (s *Server) decodeActorParams(w http.ResponseWriter, req *RPCRequest) ([20]byte, [20]byte, bool) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", "exactly one parameter object expected")
		return [20]byte{}, [20]byte{}, false
	}
	var params escrowActorParams
	if err := json.Unmarshal(req.Params[0], &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return [20]byte{}, [20]byte{}, false
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return [20]byte{}, [20]byte{}, false
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return [20]byte{}, [20]byte{}, false
	}
	return addr, caller, true
}

// parseAmount accepts a positive decimal amount that fits in an unsigned
// 64-bit integer, the native range of token balances on the wire.
func parseAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount")
	}
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	if !amount.IsUint64() {
		return nil, fmt.Errorf("amount exceeds uint64 range")
	}
	return amount, nil
}

// parseSeed accepts the seed either as a JSON number or as a decimal string;
// the string form avoids precision loss in clients that treat all numbers as
// floats.
func parseSeed(raw json.RawMessage) (uint64, error) {
	if len(raw) == 0 {
		return 0, fmt.Errorf("seed required")
	}
	var direct uint64
	if err := json.Unmarshal(raw, &direct); err == nil {
		return direct, nil
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		seed, parseErr := strconv.ParseUint(strings.TrimSpace(str), 10, 64)
		if parseErr != nil {
			return 0, fmt.Errorf("invalid seed: %v", parseErr)
		}
		return seed, nil
	}
	return 0, fmt.Errorf("invalid seed parameter")
}

func parseAddress(value string) ([20]byte, error) {
	var out [20]byte
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return out, fmt.Errorf("address required")
	}
	cleaned := strings.TrimPrefix(strings.TrimPrefix(trimmed, "0x"), "0X")
	if len(cleaned) != 40 {
		return out, fmt.Errorf("address must be 20 bytes")
	}
	decoded, err := hex.DecodeString(cleaned)
	if err != nil {
		return out, err
	}
	copy(out[:], decoded)
	return out, nil
}

func formatAddress(addr [20]byte) string {
	return "0x" + hex.EncodeToString(addr[:])
}

func formatEscrowJSON(addr [20]byte, esc *escrow.Escrow) escrowJSON {
	initializerAmount := "0"
	if esc.InitializerAmount != nil {
		initializerAmount = esc.InitializerAmount.String()
	}
	takerAmount := "0"
	if esc.TakerAmount != nil {
		takerAmount = esc.TakerAmount.String()
	}
	return escrowJSON{
		Address:           formatAddress(addr),
		Initializer:       formatAddress(esc.Initializer),
		Taker:             formatAddress(esc.Taker),
		MintA:             esc.MintA,
		MintB:             esc.MintB,
		InitializerAmount: initializerAmount,
		TakerAmount:       takerAmount,
		Seed:              strconv.FormatUint(esc.Seed, 10),
		Bump:              esc.Bump,
		CreatedAt:         esc.CreatedAt,
		VaultA:            formatAddress(token.Associated(addr, esc.MintA)),
		VaultB:            formatAddress(token.Associated(addr, esc.MintB)),
	}
}

func writeEscrowError(w http.ResponseWriter, id interface{}, err error) {
	if err == nil {
		return
	}
	status := http.StatusInternalServerError
	code := codeEscrowInternal
	message := "internal_error"
	data := err.Error()
	switch {
	case errors.Is(err, core.ErrEscrowNotFound) || errors.Is(err, escrow.ErrNotFound):
		status = http.StatusNotFound
		code = codeEscrowNotFound
		message = "not_found"
	case errors.Is(err, escrow.ErrUnauthorized):
		status = http.StatusForbidden
		code = codeEscrowForbidden
		message = "forbidden"
	case errors.Is(err, escrow.ErrAlreadyInitialized),
		errors.Is(err, escrow.ErrInsufficientTakerTokens),
		errors.Is(err, token.ErrInsufficientFunds),
		errors.Is(err, token.ErrInsufficientStorageCredit):
		status = http.StatusConflict
		code = codeEscrowConflict
		message = "conflict"
	case errors.Is(err, escrow.ErrInvalidAmount),
		errors.Is(err, escrow.ErrInvalidAsset),
		errors.Is(err, token.ErrInvalidAmount),
		errors.Is(err, token.ErrUnknownMint),
		errors.Is(err, token.ErrMintMismatch),
		errors.Is(err, token.ErrDecimalsMismatch):
		status = http.StatusBadRequest
		code = codeEscrowInvalidParams
		message = "invalid_params"
	}
	writeError(w, status, id, code, message, data)
}
