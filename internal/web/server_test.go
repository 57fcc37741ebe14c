package web

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/remit/internal/domain"
	"github.com/vadiminshakov/remit/internal/metrics"
	"github.com/vadiminshakov/remit/internal/services/conversion"
	"github.com/vadiminshakov/remit/internal/services/escrow"
	"github.com/vadiminshakov/remit/internal/services/ledger"
	"github.com/vadiminshakov/remit/internal/services/notify"
	"github.com/vadiminshakov/remit/internal/services/rates"
	"github.com/vadiminshakov/remit/internal/services/settlement"
	"github.com/vadiminshakov/remit/internal/services/users"
	"github.com/vadiminshakov/remit/internal/storage/escrows"
	"github.com/vadiminshakov/remit/internal/storage/evidence"
	"github.com/vadiminshakov/remit/internal/storage/outbox"
	"github.com/vadiminshakov/remit/internal/storage/settlements"
	"github.com/vadiminshakov/remit/internal/storage/transitions"
	"github.com/vadiminshakov/remit/internal/storage/wallets"
)

const (
	admin    = "admin1"
	admin2   = "admin2"
	treasury = "treasury"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	escrowStore, err := escrows.NewWALStore(t.TempDir())
	require.NoError(t, err)
	settlementStore, err := settlements.NewWALStore(t.TempDir())
	require.NoError(t, err)
	walletStore, err := wallets.NewWALStore(t.TempDir())
	require.NoError(t, err)
	transitionStore, err := transitions.NewWALStore(t.TempDir())
	require.NoError(t, err)
	journal, err := outbox.NewJournal(t.TempDir(), nil)
	require.NoError(t, err)
	evidenceStore, err := evidence.NewDiskStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = escrowStore.Close()
		_ = settlementStore.Close()
		_ = walletStore.Close()
		_ = transitionStore.Close()
		_ = journal.Close()
	})

	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg, reg)

	dir, err := users.NewDirectory([]domain.User{
		{ID: "alice", Username: "alice"},
		{ID: "bob", Username: "bob_shop"},
	}, []string{admin, admin2})
	require.NoError(t, err)

	lg := ledger.New(walletStore, m, nil)
	notifier := notify.NewFanout(transitionStore, nil, m, nil)

	escrowEngine, err := escrow.New(escrow.Deps{
		Repo:     escrowStore,
		Ledger:   lg,
		Users:    dir,
		Evidence: evidenceStore,
		Admins:   dir,
		Notifier: notifier,
	}, escrow.Options{DefaultFeePercent: decimal.NewFromInt(3), FeeAccount: "platform"})
	require.NoError(t, err)

	settlementEngine, err := settlement.New(settlement.Deps{
		Repo:        settlementStore,
		Ledger:      lg,
		Users:       dir,
		Admins:      dir,
		Broadcaster: journal,
		Notifier:    notifier,
	}, treasury)
	require.NoError(t, err)

	src := rates.NewStatic(map[domain.Pair]decimal.Decimal{
		{From: "USD", To: "EUR"}: decimal.RequireFromString("0.9"),
	})
	quoter := conversion.NewQuoter(src, conversion.Fees{
		FeePercent:    decimal.NewFromInt(2),
		SpreadPercent: decimal.NewFromInt(1),
	}, nil)

	s := NewServer(":0", Deps{
		Quoter:      quoter,
		Escrows:     escrowEngine,
		Settlements: settlementEngine,
		Wallets:     lg,
		Transitions: transitionStore,
		Admins:      dir,
		Metrics:     m,
	})
	s.pollInterval = 10 * time.Millisecond
	return s
}

func call(t *testing.T, h http.Handler, method, path, actorID string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if actorID != "" {
		req.Header.Set(ActorHeader, actorID)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func balanceOf(t *testing.T, h http.Handler, owner string, currency domain.Currency) string {
	t.Helper()
	rec := call(t, h, http.MethodGet, "/wallets/"+owner, admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	for _, acc := range decodeBody[walletResponse](t, rec).Accounts {
		if acc.Balance.Currency == currency {
			return acc.Balance.Amount.String()
		}
	}
	return "0"
}

func deposit(t *testing.T, h http.Handler, owner, amount, currency string) {
	t.Helper()
	rec := call(t, h, http.MethodPost, "/wallets/"+owner+"/deposit", admin, moneyDTO{Amount: amount, Currency: currency})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func createEscrow(t *testing.T, h http.Handler, amount string) string {
	t.Helper()
	rec := call(t, h, http.MethodPost, "/escrows", "alice", createEscrowRequest{Seller: "bob_shop", Amount: amount, Currency: "USD"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[domain.EscrowTransaction](t, rec).ID
}

func TestServer_EscrowLifecycle(t *testing.T) {
	h := newTestServer(t).Handler()
	deposit(t, h, "alice", "1000", "USD")

	id := createEscrow(t, h, "500")

	steps := []struct {
		path   string
		actor  string
		status domain.EscrowStatus
	}{
		{"/escrows/" + id + "/fund", "alice", domain.EscrowInEscrow},
		{"/escrows/" + id + "/deliver", "bob", domain.EscrowAwaitingRelease},
		{"/escrows/" + id + "/release", "alice", domain.EscrowCompleted},
	}
	for _, step := range steps {
		rec := call(t, h, http.MethodPost, step.path, step.actor, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, step.status, decodeBody[domain.EscrowTransaction](t, rec).Status)
	}

	assert.Equal(t, "500", balanceOf(t, h, "alice", "USD"))
	assert.Equal(t, "485", balanceOf(t, h, "bob", "USD"))
	assert.Equal(t, "15", balanceOf(t, h, "platform", "USD"))

	rec := call(t, h, http.MethodGet, "/escrows", "bob", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[escrowList](t, rec).Escrows, 1)
}

func TestServer_DisputeAndResolve(t *testing.T) {
	h := newTestServer(t).Handler()
	deposit(t, h, "alice", "100", "USD")
	id := createEscrow(t, h, "100")
	require.Equal(t, http.StatusOK, call(t, h, http.MethodPost, "/escrows/"+id+"/fund", "alice", nil).Code)

	png := evidenceDTO{Name: "shot.png", ContentType: "image/png", Data: base64.StdEncoding.EncodeToString([]byte("png"))}

	rec := call(t, h, http.MethodPost, "/escrows/"+id+"/dispute", "alice", disputeRequest{
		Reason:   "never arrived",
		Evidence: []evidenceDTO{png, png, png, png, png, png},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
	assert.Equal(t, "evidence_validation_error", decodeBody[errorResponse](t, rec).Error)

	rec = call(t, h, http.MethodPost, "/escrows/"+id+"/dispute", "alice", disputeRequest{
		Reason:   "never arrived",
		Evidence: []evidenceDTO{png},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	tx := decodeBody[domain.EscrowTransaction](t, rec)
	assert.Equal(t, domain.EscrowDisputed, tx.Status)
	require.NotNil(t, tx.Dispute)
	assert.Len(t, tx.Dispute.Evidence, 1)

	rec = call(t, h, http.MethodPost, "/escrows/"+id+"/resolve", "alice", resolveRequest{Resolution: "refund"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = call(t, h, http.MethodPost, "/escrows/"+id+"/resolve", admin, resolveRequest{Resolution: "refund"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, domain.EscrowRefunded, decodeBody[domain.EscrowTransaction](t, rec).Status)
	assert.Equal(t, "100", balanceOf(t, h, "alice", "USD"))
}

// brokenTail fails every read, standing in for a client still uploading.
type brokenTail struct{}

func (brokenTail) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestServer_DisputeEvidenceCheckedAsItStreams(t *testing.T) {
	h := newTestServer(t).Handler()
	deposit(t, h, "alice", "100", "USD")
	id := createEscrow(t, h, "100")
	require.Equal(t, http.StatusOK, call(t, h, http.MethodPost, "/escrows/"+id+"/fund", "alice", nil).Code)

	post := func(body io.Reader) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/escrows/"+id+"/dispute", body)
		req.Header.Set(ActorHeader, "alice")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	t.Run("sixth file is refused before it is read", func(t *testing.T) {
		item := `{"name":"shot.png","content_type":"image/png","data":"cG5n"}`
		head := `{"reason":"never arrived","evidence":[` + strings.Repeat(item+",", domain.MaxEvidenceFiles) + `{"name":`

		rec := post(io.MultiReader(strings.NewReader(head), brokenTail{}))
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
		assert.Equal(t, "evidence_validation_error", decodeBody[errorResponse](t, rec).Error)
	})

	t.Run("oversized file is refused before base64 decoding", func(t *testing.T) {
		data := strings.Repeat("A", encodedFileLimit+4)
		body := `{"reason":"never arrived","evidence":[{"name":"big.png","content_type":"image/png","data":"` + data + `"}]}`

		rec := post(strings.NewReader(body))
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Contains(t, decodeBody[errorResponse](t, rec).Message, "exceeds")
	})

	t.Run("unknown field", func(t *testing.T) {
		rec := post(strings.NewReader(`{"reason":"never arrived","urgent":true}`))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("reason after evidence", func(t *testing.T) {
		rec := post(strings.NewReader(`{"evidence":[{"name":"a.pdf","content_type":"application/pdf","data":"JVBERg=="}],"reason":"late"}`))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		tx := decodeBody[domain.EscrowTransaction](t, rec)
		require.NotNil(t, tx.Dispute)
		assert.Equal(t, "late", tx.Dispute.Reason)
		assert.Len(t, tx.Dispute.Evidence, 1)
	})
}

func TestServer_ErrorMapping(t *testing.T) {
	h := newTestServer(t).Handler()
	id := createEscrow(t, h, "500")

	tests := []struct {
		name   string
		method string
		path   string
		actor  string
		body   any
		status int
		code   string
	}{
		{"missing actor", http.MethodPost, "/escrows/" + id + "/fund", "", nil, http.StatusForbidden, "unauthorized_actor"},
		{"insufficient funds", http.MethodPost, "/escrows/" + id + "/fund", "alice", nil, http.StatusPaymentRequired, "insufficient_funds"},
		{"wrong actor", http.MethodPost, "/escrows/" + id + "/fund", "bob", nil, http.StatusForbidden, "unauthorized_actor"},
		{"invalid transition", http.MethodPost, "/escrows/" + id + "/release", "alice", nil, http.StatusConflict, "invalid_state_transition"},
		{"unknown escrow", http.MethodGet, "/escrows/nope", "alice", nil, http.StatusNotFound, "not_found"},
		{"unknown seller", http.MethodPost, "/escrows", "alice", createEscrowRequest{Seller: "ghost", Amount: "1", Currency: "USD"}, http.StatusNotFound, "user_not_found"},
		{"invalid amount", http.MethodPost, "/escrows", "alice", createEscrowRequest{Seller: "bob", Amount: "lots", Currency: "USD"}, http.StatusBadRequest, "validation_error"},
		{"unknown field", http.MethodPost, "/quotes", "alice", map[string]string{"from": "USD", "to": "EUR", "extra": "1"}, http.StatusBadRequest, "validation_error"},
		{"deposit by non admin", http.MethodPost, "/wallets/alice/deposit", "alice", moneyDTO{Amount: "10", Currency: "USD"}, http.StatusForbidden, "unauthorized_actor"},
		{"foreign wallet", http.MethodGet, "/wallets/bob", "alice", nil, http.StatusForbidden, "unauthorized_actor"},
		{"unknown pair", http.MethodGet, "/rates?from=USD&to=JPY", "alice", nil, http.StatusNotFound, "not_found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := call(t, h, tt.method, tt.path, tt.actor, tt.body)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, decodeBody[errorResponse](t, rec).Error)
		})
	}
}

func TestServer_Quote(t *testing.T) {
	h := newTestServer(t).Handler()

	send := "100"
	rec := call(t, h, http.MethodPost, "/quotes", "alice", quoteRequest{From: "usd", To: "eur", SendAmount: &send})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	q := decodeBody[domain.ConversionQuote](t, rec)
	assert.Equal(t, domain.SolveForward, q.Direction)
	assert.Equal(t, "87.32", q.ReceiveAmount.String())
	assert.Equal(t, "2", q.Fee.String())

	rec = call(t, h, http.MethodGet, "/rates?from=USD&to=EUR", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "0.9", decodeBody[rateResponse](t, rec).Rate.String())
}

func TestServer_SettlementFlow(t *testing.T) {
	h := newTestServer(t).Handler()
	deposit(t, h, treasury, "50000", "USD")

	rec := call(t, h, http.MethodPost, "/settlements", "alice", initiateRequest{
		CounterpartyID:     "bob",
		Amount:             "10000",
		Currency:           "USD",
		DestinationAddress: "DE89370400440532013000",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := decodeBody[domain.MultiSigTransaction](t, rec).ID

	rec = call(t, h, http.MethodPost, "/settlements/"+id+"/sign", admin, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code, "admin cannot sign before the partner")

	rec = call(t, h, http.MethodPost, "/settlements/"+id+"/sign", "bob", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, domain.SettlementPendingAdmin, decodeBody[domain.MultiSigTransaction](t, rec).Status)

	rec = call(t, h, http.MethodPost, "/settlements/"+id+"/sign", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	tx := decodeBody[domain.MultiSigTransaction](t, rec)
	assert.Equal(t, domain.SettlementCompleted, tx.Status)
	assert.True(t, tx.FullySigned())

	assert.Equal(t, "40000", balanceOf(t, h, treasury, "USD"))

	rec = call(t, h, http.MethodPost, "/settlements/"+id+"/reject", "bob", rejectRequest{Reason: "too late"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = call(t, h, http.MethodGet, "/settlements/"+id, "mallory", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = call(t, h, http.MethodGet, "/settlements", admin2, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody[settlementList](t, rec).Settlements, "admins list their own by default")

	rec = call(t, h, http.MethodGet, "/settlements?party=", admin2, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[settlementList](t, rec).Settlements, 1)
}

func TestServer_EventStream(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()
	deposit(t, h, "alice", "100", "USD")
	id := createEscrow(t, h, "100")
	require.Equal(t, http.StatusOK, call(t, h, http.MethodPost, "/escrows/"+id+"/fund", "alice", nil).Code)

	rec := call(t, h, http.MethodGet, "/events/stream", "alice", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events/stream?machine=escrow&entity="+id, nil)
	require.NoError(t, err)
	req.Header.Set(ActorHeader, admin)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var got []domain.TransitionEvent
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() && len(got) < 2 {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var e domain.TransitionEvent
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &e))
		got = append(got, e)
	}
	require.Len(t, got, 2)
	assert.Equal(t, string(domain.EscrowAwaitingFunding), got[0].To)
	assert.Equal(t, string(domain.EscrowInEscrow), got[1].To)
}

func TestServer_Metrics(t *testing.T) {
	h := newTestServer(t).Handler()
	call(t, h, http.MethodGet, "/rates?from=USD&to=EUR", "", nil)

	rec := call(t, h, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "remit_http_requests_total")
}

func TestResumeIndex(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/events/stream?after=7", nil)
	idx, err := resumeIndex(req)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), idx)

	req = httptest.NewRequest(http.MethodGet, "/events/stream", nil)
	req.Header.Set("Last-Event-ID", "12")
	idx, err = resumeIndex(req)
	require.NoError(t, err)
	assert.Equal(t, uint64(12), idx)

	req = httptest.NewRequest(http.MethodGet, "/events/stream?after=x", nil)
	_, err = resumeIndex(req)
	require.ErrorIs(t, err, domain.ErrValidation)
}
