package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/govledger/internal/chain"
	"github.com/jmerrifield20/govledger/internal/checkpoint"
	"github.com/jmerrifield20/govledger/internal/delegation"
	"github.com/jmerrifield20/govledger/internal/eventlog"
	"github.com/jmerrifield20/govledger/internal/governance"
	"github.com/jmerrifield20/govledger/internal/governance/handler"
	"github.com/jmerrifield20/govledger/internal/identity"
	"github.com/jmerrifield20/govledger/internal/token"
	"go.uber.org/zap"
)

var (
	owner = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	alice = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob   = common.HexToAddress("0x00000000000000000000000000000000000000b0")
)

const oneToken = "1000000000000000000"

type govEnv struct {
	router *gin.Engine
	tokens *identity.TokenIssuer
	svc    *governance.Service
}

func setupGovernanceRouter(t *testing.T) *govEnv {
	t.Helper()
	return setupWithJournal(t, eventlog.NewMemoryLog())
}

func setupWithJournal(t *testing.T, journal eventlog.Log) *govEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := zap.NewNop()
	clock := chain.NewCounter(1)
	tracker := delegation.New(checkpoint.New(), logger)
	tok := token.New(owner, tracker, clock, logger)
	svc := governance.NewService(tok, clock, journal, governance.Config{Automine: true}, logger)
	tokens := identity.NewTokenIssuer([]byte("test-secret"), "govledger-test", time.Hour)

	r := gin.New()
	v1 := r.Group("/api/v1")
	handler.NewGovernanceHandler(svc, tokens, logger).Register(v1)
	r.GET("/metrics", handler.MetricsHandler())
	return &govEnv{router: r, tokens: tokens, svc: svc}
}

func (e *govEnv) do(t *testing.T, method, path string, as *common.Address, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if as != nil {
		tok, err := e.tokens.Issue(*as)
		if err != nil {
			t.Fatal(err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return resp
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("expected %d, got %d: %s", want, w.Code, w.Body.String())
	}
}

func votesOf(t *testing.T, e *govEnv, addr common.Address) string {
	t.Helper()
	w := e.do(t, http.MethodGet, "/api/v1/accounts/"+addr.Hex()+"/votes", nil, nil)
	expectStatus(t, w, http.StatusOK)
	return decode(t, w)["votes"].(string)
}

func TestMintAndDelegate_creditsVotes(t *testing.T) {
	e := setupGovernanceRouter(t)

	w := e.do(t, http.MethodPost, "/api/v1/delegate", &alice, map[string]string{"delegatee": alice.Hex()})
	expectStatus(t, w, http.StatusOK)
	if got := decode(t, w)["delegate"]; got != alice.Hex() {
		t.Errorf("delegate: got %v, want %s", got, alice.Hex())
	}

	w = e.do(t, http.MethodPost, "/api/v1/token/mint", &owner, map[string]string{"to": alice.Hex(), "amount": oneToken})
	expectStatus(t, w, http.StatusOK)

	if got := votesOf(t, e, alice); got != oneToken {
		t.Errorf("votes: got %s, want %s", got, oneToken)
	}
}

func TestMint_403_notOwner(t *testing.T) {
	e := setupGovernanceRouter(t)

	w := e.do(t, http.MethodPost, "/api/v1/token/mint", &alice, map[string]string{"to": alice.Hex(), "amount": oneToken})
	expectStatus(t, w, http.StatusForbidden)
}

func TestBurn_403_notOwner(t *testing.T) {
	e := setupGovernanceRouter(t)

	w := e.do(t, http.MethodPost, "/api/v1/token/burn", &alice, map[string]string{"from": alice.Hex(), "amount": oneToken})
	expectStatus(t, w, http.StatusForbidden)
}

func TestMint_401_withoutToken(t *testing.T) {
	e := setupGovernanceRouter(t)

	w := e.do(t, http.MethodPost, "/api/v1/token/mint", nil, map[string]string{"to": alice.Hex(), "amount": oneToken})
	expectStatus(t, w, http.StatusUnauthorized)
}

func TestMint_400_badInput(t *testing.T) {
	e := setupGovernanceRouter(t)

	tests := []struct {
		name string
		body map[string]string
	}{
		{"missing amount", map[string]string{"to": alice.Hex()}},
		{"bad address", map[string]string{"to": "0x123", "amount": "1"}},
		{"bad amount", map[string]string{"to": alice.Hex(), "amount": "ten"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := e.do(t, http.MethodPost, "/api/v1/token/mint", &owner, tt.body)
			expectStatus(t, w, http.StatusBadRequest)
		})
	}
}

func TestMint_422_zeroAmount(t *testing.T) {
	e := setupGovernanceRouter(t)

	w := e.do(t, http.MethodPost, "/api/v1/token/mint", &owner, map[string]string{"to": alice.Hex(), "amount": "0"})
	expectStatus(t, w, http.StatusUnprocessableEntity)
}

func TestBurn_422_insufficientBalance(t *testing.T) {
	e := setupGovernanceRouter(t)

	w := e.do(t, http.MethodPost, "/api/v1/token/burn", &owner, map[string]string{"from": alice.Hex(), "amount": "1"})
	expectStatus(t, w, http.StatusUnprocessableEntity)
}

func TestBurn_reducesVotes(t *testing.T) {
	e := setupGovernanceRouter(t)

	e.do(t, http.MethodPost, "/api/v1/delegate", &alice, map[string]string{"delegatee": alice.Hex()})
	e.do(t, http.MethodPost, "/api/v1/token/mint", &owner, map[string]string{"to": alice.Hex(), "amount": "0x14"})

	w := e.do(t, http.MethodPost, "/api/v1/token/burn", &owner, map[string]string{"from": alice.Hex(), "amount": "5"})
	expectStatus(t, w, http.StatusOK)
	if got := decode(t, w)["balance"]; got != "15" {
		t.Errorf("balance: got %v, want 15", got)
	}
	if got := votesOf(t, e, alice); got != "15" {
		t.Errorf("votes: got %s, want 15", got)
	}
}

func TestPriorVotes_400_notYetDetermined(t *testing.T) {
	e := setupGovernanceRouter(t)

	w := e.do(t, http.MethodGet, "/api/v1/chain/head", nil, nil)
	expectStatus(t, w, http.StatusOK)
	head := int(decode(t, w)["block"].(float64))

	w = e.do(t, http.MethodGet, "/api/v1/accounts/"+alice.Hex()+"/votes/prior?block="+strconv.Itoa(head), nil, nil)
	expectStatus(t, w, http.StatusBadRequest)
	if got := decode(t, w)["error"]; got != "not yet determined" {
		t.Errorf("error: got %v, want %q", got, "not yet determined")
	}
}

func TestPriorVotes_historicalQuery(t *testing.T) {
	e := setupGovernanceRouter(t)

	e.do(t, http.MethodPost, "/api/v1/delegate", &alice, map[string]string{"delegatee": alice.Hex()})
	w := e.do(t, http.MethodPost, "/api/v1/token/mint", &owner, map[string]string{"to": alice.Hex(), "amount": "100"})
	expectStatus(t, w, http.StatusOK)
	mintBlock := int(decode(t, w)["block"].(float64))

	w = e.do(t, http.MethodPost, "/api/v1/token/burn", &owner, map[string]string{"from": alice.Hex(), "amount": "40"})
	expectStatus(t, w, http.StatusOK)

	expectStatus(t, e.do(t, http.MethodPost, "/api/v1/chain/mine", &owner, nil), http.StatusOK)

	w = e.do(t, http.MethodGet, "/api/v1/accounts/"+alice.Hex()+"/votes/prior?block="+strconv.Itoa(mintBlock), nil, nil)
	expectStatus(t, w, http.StatusOK)
	if got := decode(t, w)["votes"]; got != "100" {
		t.Errorf("prior votes at mint block: got %v, want 100", got)
	}

	w = e.do(t, http.MethodGet, "/api/v1/accounts/"+alice.Hex()+"/votes/prior?block="+strconv.Itoa(mintBlock-1), nil, nil)
	expectStatus(t, w, http.StatusOK)
	if got := decode(t, w)["votes"]; got != "0" {
		t.Errorf("prior votes before mint: got %v, want 0", got)
	}
}

func TestPriorVotes_400_badBlock(t *testing.T) {
	e := setupGovernanceRouter(t)

	w := e.do(t, http.MethodGet, "/api/v1/accounts/"+alice.Hex()+"/votes/prior?block=abc", nil, nil)
	expectStatus(t, w, http.StatusBadRequest)
}

func TestCheckpoints_listsHistory(t *testing.T) {
	e := setupGovernanceRouter(t)

	e.do(t, http.MethodPost, "/api/v1/delegate", &alice, map[string]string{"delegatee": bob.Hex()})
	e.do(t, http.MethodPost, "/api/v1/token/mint", &owner, map[string]string{"to": alice.Hex(), "amount": "7"})
	e.do(t, http.MethodPost, "/api/v1/token/mint", &owner, map[string]string{"to": alice.Hex(), "amount": "3"})

	w := e.do(t, http.MethodGet, "/api/v1/accounts/"+bob.Hex()+"/checkpoints", nil, nil)
	expectStatus(t, w, http.StatusOK)
	resp := decode(t, w)
	if int(resp["count"].(float64)) != 2 {
		t.Fatalf("count: got %v, want 2", resp["count"])
	}
	cps := resp["checkpoints"].([]any)
	last := cps[1].(map[string]any)
	if last["votes"] != "10" {
		t.Errorf("last checkpoint votes: got %v, want 10", last["votes"])
	}
}

func TestDelegate_emptyClearsDelegate(t *testing.T) {
	e := setupGovernanceRouter(t)

	e.do(t, http.MethodPost, "/api/v1/delegate", &alice, map[string]string{"delegatee": bob.Hex()})
	e.do(t, http.MethodPost, "/api/v1/token/mint", &owner, map[string]string{"to": alice.Hex(), "amount": "9"})

	w := e.do(t, http.MethodPost, "/api/v1/delegate", &alice, map[string]string{"delegatee": ""})
	expectStatus(t, w, http.StatusOK)
	if got := decode(t, w)["delegate"]; got != nil {
		t.Errorf("delegate: got %v, want null", got)
	}

	w = e.do(t, http.MethodGet, "/api/v1/accounts/"+alice.Hex()+"/delegate", nil, nil)
	expectStatus(t, w, http.StatusOK)
	if got := decode(t, w)["delegate"]; got != nil {
		t.Errorf("delegate lookup: got %v, want null", got)
	}
	if got := votesOf(t, e, bob); got != "0" {
		t.Errorf("bob votes: got %s, want 0", got)
	}
}

func TestMine_403_notOwner(t *testing.T) {
	e := setupGovernanceRouter(t)

	w := e.do(t, http.MethodPost, "/api/v1/chain/mine", &alice, nil)
	expectStatus(t, w, http.StatusForbidden)
}

func TestTokenInfo(t *testing.T) {
	e := setupGovernanceRouter(t)

	e.do(t, http.MethodPost, "/api/v1/token/mint", &owner, map[string]string{"to": bob.Hex(), "amount": "12"})

	w := e.do(t, http.MethodGet, "/api/v1/token", nil, nil)
	expectStatus(t, w, http.StatusOK)
	resp := decode(t, w)
	if resp["owner"] != owner.Hex() {
		t.Errorf("owner: got %v, want %s", resp["owner"], owner.Hex())
	}
	if resp["total_supply"] != "12" {
		t.Errorf("total_supply: got %v, want 12", resp["total_supply"])
	}

	w = e.do(t, http.MethodGet, "/api/v1/accounts/"+bob.Hex()+"/balance", nil, nil)
	expectStatus(t, w, http.StatusOK)
	if got := decode(t, w)["balance"]; got != "12" {
		t.Errorf("balance: got %v, want 12", got)
	}
}

func TestAccounts_400_badAddress(t *testing.T) {
	e := setupGovernanceRouter(t)

	w := e.do(t, http.MethodGet, "/api/v1/accounts/not-an-address/votes", nil, nil)
	expectStatus(t, w, http.StatusBadRequest)
}

// failingLog refuses every append.
type failingLog struct{ eventlog.Log }

func (failingLog) Append(context.Context, eventlog.Record) (*eventlog.Entry, error) {
	return nil, errors.New("disk full")
}

func TestMint_503_afterJournalFailure(t *testing.T) {
	e := setupWithJournal(t, failingLog{eventlog.NewMemoryLog()})

	w := e.do(t, http.MethodPost, "/api/v1/token/mint", &owner, map[string]string{"to": alice.Hex(), "amount": oneToken})
	expectStatus(t, w, http.StatusServiceUnavailable)
	if msg, _ := decode(t, w)["error"].(string); strings.Contains(msg, "disk full") {
		t.Errorf("storage error leaked to client: %q", msg)
	}

	w = e.do(t, http.MethodPost, "/api/v1/delegate", &alice, map[string]string{"delegatee": bob.Hex()})
	expectStatus(t, w, http.StatusServiceUnavailable)

	// Reads keep working from memory.
	w = e.do(t, http.MethodGet, "/api/v1/accounts/"+alice.Hex()+"/balance", nil, nil)
	expectStatus(t, w, http.StatusOK)
}

func TestMetrics_headBlockTracksRejectedMutation(t *testing.T) {
	e := setupGovernanceRouter(t)
	handler.SetHeadBlock(0)
	for i := 0; i < 3; i++ {
		e.svc.Mine()
	}

	w := e.do(t, http.MethodPost, "/api/v1/token/mint", &alice, map[string]string{"to": alice.Hex(), "amount": oneToken})
	expectStatus(t, w, http.StatusForbidden)

	w = e.do(t, http.MethodGet, "/metrics", nil, nil)
	expectStatus(t, w, http.StatusOK)
	want := fmt.Sprintf("govledger_head_block %d\n", e.svc.Head())
	if !strings.Contains(w.Body.String(), want) {
		t.Errorf("metrics missing %q", strings.TrimSpace(want))
	}
}
