package rpc

import (
	"encoding/hex"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"crossgate/core/message"
	"crossgate/core/registry"
)

type fakeEndpoint struct {
	msg    *message.Message
	hash   [32]byte
	rec    *registry.TransferRecord
	linked bool
}

func (f *fakeEndpoint) Address() [20]byte          { return [20]byte{0xa1} }
func (f *fakeEndpoint) Remote() [20]byte           { return [20]byte{0xb2} }
func (f *fakeEndpoint) Linked() (bool, [32]byte)   { return f.linked, f.hash }
func (f *fakeEndpoint) NextNonce([20]byte) (uint64, error) { return 3, nil }

func (f *fakeEndpoint) Message(hash [32]byte) (*message.Message, bool) {
	if hash == f.hash {
		return f.msg, true
	}
	return nil, false
}

func (f *fakeEndpoint) OutboxStatus(hash [32]byte) message.Status {
	if hash == f.hash {
		return message.StatusDeclared
	}
	return message.StatusUndeclared
}

func (f *fakeEndpoint) InboxStatus([32]byte) message.Status { return message.StatusUndeclared }

func (f *fakeEndpoint) OutboxRecord(hash [32]byte) (*registry.TransferRecord, error) {
	if hash == f.hash && f.rec != nil {
		return f.rec, nil
	}
	return nil, registry.ErrNoRecord
}

func (f *fakeEndpoint) InboxRecord([32]byte) (*registry.TransferRecord, error) {
	return nil, registry.ErrNoRecord
}

func newFake() *fakeEndpoint {
	msg := &message.Message{
		IntentHash: [32]byte{0x01},
		Nonce:      0,
		GasPrice:   big.NewInt(5),
		GasLimit:   big.NewInt(100),
		Sender:     [20]byte{0x11},
		HashLock:   [32]byte{0x02},
	}
	_ = msg.Sanitize()
	return &fakeEndpoint{
		msg:    msg,
		hash:   msg.Hash(),
		rec:    &registry.TransferRecord{Amount: big.NewInt(777), Beneficiary: [20]byte{0x22}},
		linked: true,
	}
}

func get(t *testing.T, handler http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	router := NewRouter(newFake())
	w := get(t, router, "/healthz")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "ok", w.Body.String())
}

func TestLinkStatus(t *testing.T) {
	router := NewRouter(newFake())
	w := get(t, router, "/v1/gateway/link")
	require.Equal(t, http.StatusOK, w.Code)

	var resp linkResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.True(t, resp.Linked)
	require.Equal(t, "0xa100000000000000000000000000000000000000", resp.Address)
	require.NotEmpty(t, resp.LinkHash)
}

func TestMessageLookup(t *testing.T) {
	fake := newFake()
	router := NewRouter(fake)

	w := get(t, router, "/v1/gateway/messages/0x"+hexOf(fake.hash[:]))
	require.Equal(t, http.StatusOK, w.Code)

	var resp messageResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "declared", resp.OutboxStatus)
	require.Equal(t, "undeclared", resp.InboxStatus)
	require.NotNil(t, resp.Record)
	require.Equal(t, "777", resp.Record.Amount)
}

func TestMessageLookupUnknown(t *testing.T) {
	router := NewRouter(newFake())
	w := get(t, router, "/v1/gateway/messages/0x"+hexOf(make([]byte, 32)))
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestMessageLookupBadHash(t *testing.T) {
	router := NewRouter(newFake())
	w := get(t, router, "/v1/gateway/messages/zzzz")
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestNonceLookup(t *testing.T) {
	router := NewRouter(newFake())
	w := get(t, router, "/v1/gateway/nonce/0x1100000000000000000000000000000000000000")
	require.Equal(t, http.StatusOK, w.Code)

	var resp nonceResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, uint64(3), resp.NextNonce)
}

func TestRateLimitEnforced(t *testing.T) {
	router := NewRouterWithLimit(newFake(), RateLimit{RequestsPerMinute: 60, Burst: 2})

	require.Equal(t, http.StatusOK, get(t, router, "/v1/gateway/link").Code)
	require.Equal(t, http.StatusOK, get(t, router, "/v1/gateway/link").Code)
	require.Equal(t, http.StatusTooManyRequests, get(t, router, "/v1/gateway/link").Code)

	// Health stays reachable when a client exhausts its budget.
	require.Equal(t, http.StatusOK, get(t, router, "/healthz").Code)
}

func TestMetricsExposed(t *testing.T) {
	router := NewRouter(newFake())
	w := get(t, router, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
}

func hexOf(b []byte) string {
	return hex.EncodeToString(b)
}
