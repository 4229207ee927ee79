// Package rpc serves the vesting module over JSON-RPC 2.0.
package rpc

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fvest/rpc/modules"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
)

// Server dispatches vesting JSON-RPC methods and exports prometheus metrics.
type Server struct {
	vesting   *modules.VestingModule
	authToken string
	log       *slog.Logger
}

// NewServer builds a server around the vesting module. authToken, when
// non-empty, gates the mutating methods behind a bearer token.
func NewServer(vesting *modules.VestingModule, authToken string, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{vesting: vesting, authToken: strings.TrimSpace(authToken), log: log}
}

// Handler returns the HTTP mux serving the RPC endpoint and /metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// Start serves the handler on addr until the listener fails.
func (s *Server) Start(addr string) error {
	s.log.Info("starting JSON-RPC server", "addr", addr)
	return http.ListenAndServe(addr, s.Handler())
}

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      interface{}     `json:"id"`
}

type rpcResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *rpcError   `json:"error,omitempty"`
}

type rpcError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// creditParams and friends decode the single object-style parameter each
// method accepts. Amounts travel as decimal strings.
type creditParams struct {
	Caller string `json:"caller"`
	User   string `json:"user"`
	Amount string `json:"amount"`
}

type callerParams struct {
	Caller string `json:"caller"`
}

type earlyExitParams struct {
	Caller          string `json:"caller"`
	PairedAmount    string `json:"pairedAmount"`
	MinLiquidityOut string `json:"minLiquidityOut"`
}

type userParams struct {
	User string `json:"user"`
}

type setPausedParams struct {
	Caller string `json:"caller"`
	Paused bool   `json:"paused"`
}

type bindLockBoxParams struct {
	Caller  string `json:"caller"`
	LockBox string `json:"lockBox"`
}

type recoverParams struct {
	Caller string `json:"caller"`
	Token  string `json:"token"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

func parseAddress(field, value string) (common.Address, *rpcError) {
	if !common.IsHexAddress(strings.TrimSpace(value)) {
		return common.Address{}, &rpcError{Code: codeInvalidParams, Message: fmt.Sprintf("%s is not a valid address", field)}
	}
	return common.HexToAddress(strings.TrimSpace(value)), nil
}

func parseAmount(field, value string) (*big.Int, *rpcError) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, &rpcError{Code: codeInvalidParams, Message: fmt.Sprintf("%s is required", field)}
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || amount.Sign() < 0 {
		return nil, &rpcError{Code: codeInvalidParams, Message: fmt.Sprintf("%s is not a valid amount", field)}
	}
	return amount, nil
}

func decodeParams(raw json.RawMessage, out interface{}) *rpcError {
	if len(raw) == 0 {
		return &rpcError{Code: codeInvalidParams, Message: "params object required"}
	}
	// Accept both a bare object and a single-element positional array.
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		if len(list) != 1 {
			return &rpcError{Code: codeInvalidParams, Message: "expected a single params object"}
		}
		raw = list[0]
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &rpcError{Code: codeInvalidParams, Message: "malformed params object"}
	}
	return nil
}

var mutatingMethods = map[string]bool{
	"vesting_credit":             true,
	"vesting_claim":              true,
	"vesting_earlyExit":          true,
	"vesting_setPaused":          true,
	"vesting_bindLockBox":        true,
	"vesting_refreshApprovals":   true,
	"vesting_recoverStrayTokens": true,
}

func (s *Server) authorized(r *http.Request) bool {
	if s.authToken == "" {
		return true
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	return header == "Bearer "+s.authToken
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		writeResponse(w, http.StatusBadRequest, rpcResponse{JSONRPC: jsonRPCVersion, Error: &rpcError{Code: codeParseError, Message: "unable to read request"}})
		return
	}
	var req rpcRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeResponse(w, http.StatusBadRequest, rpcResponse{JSONRPC: jsonRPCVersion, Error: &rpcError{Code: codeParseError, Message: "invalid JSON"}})
		return
	}
	if req.JSONRPC != jsonRPCVersion || strings.TrimSpace(req.Method) == "" {
		writeResponse(w, http.StatusBadRequest, rpcResponse{JSONRPC: jsonRPCVersion, ID: req.ID, Error: &rpcError{Code: codeInvalidRequest, Message: "invalid request"}})
		return
	}
	if mutatingMethods[req.Method] && !s.authorized(r) {
		writeResponse(w, http.StatusUnauthorized, rpcResponse{JSONRPC: jsonRPCVersion, ID: req.ID, Error: &rpcError{Code: codeUnauthorized, Message: "unauthorized"}})
		return
	}

	status, result, rpcErr := s.dispatch(req)
	resp := rpcResponse{JSONRPC: jsonRPCVersion, ID: req.ID, Result: result, Error: rpcErr}
	if rpcErr != nil {
		s.log.Warn("rpc call failed", "method", req.Method, "code", rpcErr.Code, "message", rpcErr.Message)
	}
	writeResponse(w, status, resp)
}

func moduleErr(err *modules.ModuleError) (int, interface{}, *rpcError) {
	return err.HTTPStatus, nil, &rpcError{Code: err.Code, Message: err.Message, Data: err.Data}
}

func (s *Server) dispatch(req rpcRequest) (int, interface{}, *rpcError) {
	switch req.Method {
	case "vesting_credit":
		var p creditParams
		if errParams := decodeParams(req.Params, &p); errParams != nil {
			return http.StatusBadRequest, nil, errParams
		}
		caller, errAddr := parseAddress("caller", p.Caller)
		if errAddr != nil {
			return http.StatusBadRequest, nil, errAddr
		}
		user, errAddr := parseAddress("user", p.User)
		if errAddr != nil {
			return http.StatusBadRequest, nil, errAddr
		}
		amount, errAmt := parseAmount("amount", p.Amount)
		if errAmt != nil {
			return http.StatusBadRequest, nil, errAmt
		}
		if modErr := s.vesting.Credit(caller, user, amount); modErr != nil {
			return moduleErr(modErr)
		}
		return http.StatusOK, map[string]bool{"credited": true}, nil

	case "vesting_claim":
		var p callerParams
		if errParams := decodeParams(req.Params, &p); errParams != nil {
			return http.StatusBadRequest, nil, errParams
		}
		caller, errAddr := parseAddress("caller", p.Caller)
		if errAddr != nil {
			return http.StatusBadRequest, nil, errAddr
		}
		paid, modErr := s.vesting.Claim(caller)
		if modErr != nil {
			return moduleErr(modErr)
		}
		return http.StatusOK, map[string]string{"paid": paid.String()}, nil

	case "vesting_earlyExit":
		var p earlyExitParams
		if errParams := decodeParams(req.Params, &p); errParams != nil {
			return http.StatusBadRequest, nil, errParams
		}
		caller, errAddr := parseAddress("caller", p.Caller)
		if errAddr != nil {
			return http.StatusBadRequest, nil, errAddr
		}
		paired, errAmt := parseAmount("pairedAmount", p.PairedAmount)
		if errAmt != nil {
			return http.StatusBadRequest, nil, errAmt
		}
		minOut := big.NewInt(0)
		if strings.TrimSpace(p.MinLiquidityOut) != "" {
			minOut, errAmt = parseAmount("minLiquidityOut", p.MinLiquidityOut)
			if errAmt != nil {
				return http.StatusBadRequest, nil, errAmt
			}
		}
		receipt, modErr := s.vesting.EarlyExit(caller, paired, minOut)
		if modErr != nil {
			return moduleErr(modErr)
		}
		return http.StatusOK, map[string]string{
			"forced":          fmt.Sprintf("%t", receipt.Forced),
			"rewardUsed":      receipt.RewardUsed.String(),
			"pairedUsed":      receipt.PairedUsed.String(),
			"liquidityMinted": receipt.LiquidityMinted.String(),
		}, nil

	case "vesting_timeRemaining":
		var p userParams
		if errParams := decodeParams(req.Params, &p); errParams != nil {
			return http.StatusBadRequest, nil, errParams
		}
		user, errAddr := parseAddress("user", p.User)
		if errAddr != nil {
			return http.StatusBadRequest, nil, errAddr
		}
		remaining, modErr := s.vesting.TimeRemaining(user)
		if modErr != nil {
			return moduleErr(modErr)
		}
		return http.StatusOK, map[string]int64{"seconds": remaining}, nil

	case "vesting_totalVested":
		balance, modErr := s.vesting.TotalVested()
		if modErr != nil {
			return moduleErr(modErr)
		}
		return http.StatusOK, map[string]string{"balance": balance.String()}, nil

	case "vesting_paused":
		paused, modErr := s.vesting.Paused()
		if modErr != nil {
			return moduleErr(modErr)
		}
		return http.StatusOK, map[string]bool{"paused": paused}, nil

	case "vesting_setPaused":
		var p setPausedParams
		if errParams := decodeParams(req.Params, &p); errParams != nil {
			return http.StatusBadRequest, nil, errParams
		}
		caller, errAddr := parseAddress("caller", p.Caller)
		if errAddr != nil {
			return http.StatusBadRequest, nil, errAddr
		}
		if modErr := s.vesting.SetPaused(caller, p.Paused); modErr != nil {
			return moduleErr(modErr)
		}
		return http.StatusOK, map[string]bool{"paused": p.Paused}, nil

	case "vesting_bindLockBox":
		var p bindLockBoxParams
		if errParams := decodeParams(req.Params, &p); errParams != nil {
			return http.StatusBadRequest, nil, errParams
		}
		caller, errAddr := parseAddress("caller", p.Caller)
		if errAddr != nil {
			return http.StatusBadRequest, nil, errAddr
		}
		lockBox, errAddr := parseAddress("lockBox", p.LockBox)
		if errAddr != nil {
			return http.StatusBadRequest, nil, errAddr
		}
		if modErr := s.vesting.BindLockBox(caller, lockBox); modErr != nil {
			return moduleErr(modErr)
		}
		return http.StatusOK, map[string]bool{"bound": true}, nil

	case "vesting_refreshApprovals":
		var p callerParams
		if errParams := decodeParams(req.Params, &p); errParams != nil {
			return http.StatusBadRequest, nil, errParams
		}
		caller, errAddr := parseAddress("caller", p.Caller)
		if errAddr != nil {
			return http.StatusBadRequest, nil, errAddr
		}
		if modErr := s.vesting.RefreshApprovals(caller); modErr != nil {
			return moduleErr(modErr)
		}
		return http.StatusOK, map[string]bool{"refreshed": true}, nil

	case "vesting_recoverStrayTokens":
		var p recoverParams
		if errParams := decodeParams(req.Params, &p); errParams != nil {
			return http.StatusBadRequest, nil, errParams
		}
		caller, errAddr := parseAddress("caller", p.Caller)
		if errAddr != nil {
			return http.StatusBadRequest, nil, errAddr
		}
		tokenAddr, errAddr := parseAddress("token", p.Token)
		if errAddr != nil {
			return http.StatusBadRequest, nil, errAddr
		}
		to, errAddr := parseAddress("to", p.To)
		if errAddr != nil {
			return http.StatusBadRequest, nil, errAddr
		}
		amount, errAmt := parseAmount("amount", p.Amount)
		if errAmt != nil {
			return http.StatusBadRequest, nil, errAmt
		}
		if modErr := s.vesting.RecoverStrayTokens(caller, tokenAddr, to, amount); modErr != nil {
			return moduleErr(modErr)
		}
		return http.StatusOK, map[string]bool{"recovered": true}, nil

	default:
		return http.StatusNotFound, nil, &rpcError{Code: codeMethodNotFound, Message: "method not found"}
	}
}

func writeResponse(w http.ResponseWriter, status int, resp rpcResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
