package rpc

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"crossgate/core/message"
	"crossgate/core/registry"
	"crossgate/observability"
)

// Endpoint is the read surface an endpoint exposes to the status API. Both
// Gateway and CoGateway satisfy it.
type Endpoint interface {
	Address() [20]byte
	Remote() [20]byte
	Linked() (bool, [32]byte)
	Message(hash [32]byte) (*message.Message, bool)
	OutboxStatus(hash [32]byte) message.Status
	InboxStatus(hash [32]byte) message.Status
	NextNonce(account [20]byte) (uint64, error)
	OutboxRecord(hash [32]byte) (*registry.TransferRecord, error)
	InboxRecord(hash [32]byte) (*registry.TransferRecord, error)
}

// NewRouter builds the status API for one endpoint with the default rate
// limit.
func NewRouter(ep Endpoint) http.Handler {
	return NewRouterWithLimit(ep, defaultRateLimit)
}

// NewRouterWithLimit builds the status API with an explicit per-client rate
// limit on the gateway routes. Health and metrics stay unthrottled so probes
// and scrapers are never turned away.
func NewRouterWithLimit(ep Endpoint, limit RateLimit) http.Handler {
	r := chi.NewRouter()
	r.Use(metricsMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	limiter := newClientLimiter(limit)
	r.Route("/v1/gateway", func(sr chi.Router) {
		sr.Use(limiter.Middleware)
		sr.Get("/link", handleLink(ep))
		sr.Get("/messages/{hash}", handleMessage(ep))
		sr.Get("/nonce/{address}", handleNonce(ep))
	})
	return r
}

type linkResponse struct {
	Address  string `json:"address"`
	Remote   string `json:"remote"`
	Linked   bool   `json:"linked"`
	LinkHash string `json:"linkHash,omitempty"`
}

func handleLink(ep Endpoint) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		linked, linkHash := ep.Linked()
		resp := linkResponse{
			Address: hexPrefixed(ep.Address()),
			Remote:  hexPrefixed(ep.Remote()),
			Linked:  linked,
		}
		if linkHash != ([32]byte{}) {
			resp.LinkHash = "0x" + hex.EncodeToString(linkHash[:])
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

type recordResponse struct {
	Amount      string `json:"amount"`
	Beneficiary string `json:"beneficiary"`
}

type messageResponse struct {
	MessageHash  string          `json:"messageHash"`
	IntentHash   string          `json:"intentHash"`
	Sender       string          `json:"sender"`
	Nonce        uint64          `json:"nonce"`
	GasPrice     string          `json:"gasPrice"`
	GasLimit     string          `json:"gasLimit"`
	GasConsumed  string          `json:"gasConsumed"`
	OutboxStatus string          `json:"outboxStatus"`
	InboxStatus  string          `json:"inboxStatus"`
	Record       *recordResponse `json:"record,omitempty"`
}

func handleMessage(ep Endpoint) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hash, err := parseHash(chi.URLParam(r, "hash"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		msg, ok := ep.Message(hash)
		if !ok {
			writeError(w, http.StatusNotFound, errors.New("unknown message hash"))
			return
		}
		resp := messageResponse{
			MessageHash:  "0x" + hex.EncodeToString(hash[:]),
			IntentHash:   "0x" + hex.EncodeToString(msg.IntentHash[:]),
			Sender:       hexPrefixed(msg.Sender),
			Nonce:        msg.Nonce,
			GasPrice:     msg.GasPrice.String(),
			GasLimit:     msg.GasLimit.String(),
			GasConsumed:  msg.GasConsumed.String(),
			OutboxStatus: ep.OutboxStatus(hash).String(),
			InboxStatus:  ep.InboxStatus(hash).String(),
		}
		rec, err := ep.OutboxRecord(hash)
		if errors.Is(err, registry.ErrNoRecord) {
			rec, err = ep.InboxRecord(hash)
		}
		if err == nil {
			resp.Record = &recordResponse{
				Amount:      rec.Amount.String(),
				Beneficiary: hexPrefixed(rec.Beneficiary),
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

type nonceResponse struct {
	Address   string `json:"address"`
	NextNonce uint64 `json:"nextNonce"`
}

func handleNonce(ep Endpoint) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		addr, err := parseAddress(chi.URLParam(r, "address"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		nonce, err := ep.NextNonce(addr)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, nonceResponse{Address: hexPrefixed(addr), NextNonce: nonce})
	}
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)
		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		observability.HTTPMetrics().ObserveRequest(route, strconv.Itoa(rec.code), time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func parseHash(raw string) ([32]byte, error) {
	decoded, err := hex.DecodeString(strings.TrimPrefix(raw, "0x"))
	if err != nil {
		return [32]byte{}, errors.New("invalid message hash encoding")
	}
	if len(decoded) != 32 {
		return [32]byte{}, errors.New("message hash must be 32 bytes")
	}
	var hash [32]byte
	copy(hash[:], decoded)
	return hash, nil
}

func parseAddress(raw string) ([20]byte, error) {
	decoded, err := hex.DecodeString(strings.TrimPrefix(raw, "0x"))
	if err != nil {
		return [20]byte{}, errors.New("invalid address encoding")
	}
	if len(decoded) != 20 {
		return [20]byte{}, errors.New("address must be 20 bytes")
	}
	var addr [20]byte
	copy(addr[:], decoded)
	return addr, nil
}

func hexPrefixed(addr [20]byte) string {
	return "0x" + hex.EncodeToString(addr[:])
}

func writeJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
