package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	app "github.com/rafflehub/rewards/internal/app"
	"github.com/rafflehub/rewards/internal/app/domain/raffle"
	"github.com/rafflehub/rewards/internal/app/domain/token"
	"github.com/rafflehub/rewards/internal/app/domain/user"
	"github.com/rafflehub/rewards/internal/middleware"
)

const testAuthToken = "test-token"

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	application, err := app.New(app.Stores{}, nil)
	if err != nil {
		t.Fatalf("new application: %v", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt hash: %v", err)
	}
	adminAuth := middleware.NewAdminAuth([]byte("test-signing-key"), "admin", string(hash), time.Hour, nil)

	return WrapWithAuth(NewHandler(application, adminAuth), []string{testAuthToken}, nil)
}

func authedRequest(method, url string, body []byte) *http.Request {
	req := httptest.NewRequest(method, url, bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+testAuthToken)
	return req
}

func adminRequest(t *testing.T, handler http.Handler, method, url string, body []byte) *http.Request {
	t.Helper()
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodPost, "/admin/login",
		marshal(map[string]string{"username": "admin", "password": "s3cret"})))
	if resp.Code != http.StatusOK {
		t.Fatalf("admin login failed: %d %s", resp.Code, resp.Body.String())
	}
	var session struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &session); err != nil {
		t.Fatalf("decode login response: %v", err)
	}

	req := httptest.NewRequest(method, url, bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+session.Token)
	return req
}

func marshal(v any) []byte {
	buf, _ := json.Marshal(v)
	return buf
}

func createUser(t *testing.T, handler http.Handler, id string) user.User {
	t.Helper()
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodPost, "/users", marshal(map[string]string{"id": id})))
	if resp.Code != http.StatusCreated {
		t.Fatalf("create user: %d %s", resp.Code, resp.Body.String())
	}
	var u user.User
	if err := json.Unmarshal(resp.Body.Bytes(), &u); err != nil {
		t.Fatalf("decode user: %v", err)
	}
	return u
}

func TestHandlerAuthRequired(t *testing.T) {
	handler := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/users", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestHealthSkipsAuth(t *testing.T) {
	handler := newTestHandler(t)

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}

func TestDepositApprovalFlow(t *testing.T) {
	handler := newTestHandler(t)

	referrer := createUser(t, handler, "user-ref")
	createUser(t, handler, "user-dep")

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodPost, "/users/user-dep/referrer",
		marshal(map[string]string{"code": referrer.ReferralCode})))
	if resp.Code != http.StatusOK {
		t.Fatalf("bind referrer: %d %s", resp.Code, resp.Body.String())
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodPost, "/users/user-dep/tokens",
		marshal(map[string]any{"type": "deposit", "amount": 1000})))
	if resp.Code != http.StatusCreated {
		t.Fatalf("create deposit: %d %s", resp.Code, resp.Body.String())
	}
	var deposit token.UnifiedToken
	if err := json.Unmarshal(resp.Body.Bytes(), &deposit); err != nil {
		t.Fatalf("decode deposit: %v", err)
	}
	if deposit.Status != token.StatusPending {
		t.Fatalf("expected pending deposit, got %s", deposit.Status)
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, adminRequest(t, handler, http.MethodGet, "/admin/tokens/pending", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("list pending: %d %s", resp.Code, resp.Body.String())
	}
	var pending []token.UnifiedToken
	if err := json.Unmarshal(resp.Body.Bytes(), &pending); err != nil {
		t.Fatalf("decode pending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != deposit.ID {
		t.Fatalf("expected the deposit in the review queue, got %+v", pending)
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, adminRequest(t, handler, http.MethodPost, "/admin/tokens/"+deposit.ID+"/approve", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("approve: %d %s", resp.Code, resp.Body.String())
	}

	// Replayed decision conflicts.
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, adminRequest(t, handler, http.MethodPost, "/admin/tokens/"+deposit.ID+"/approve", nil))
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 on replay, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodGet, "/users/user-dep", nil))
	var depositor user.User
	if err := json.Unmarshal(resp.Body.Bytes(), &depositor); err != nil {
		t.Fatalf("decode depositor: %v", err)
	}
	if depositor.Balance != 1000 {
		t.Fatalf("expected balance 1000, got %d", depositor.Balance)
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodGet, "/users/user-ref/referral", nil))
	var overview struct {
		TotalCommission    int64 `json:"total_commission"`
		TotalDepositVolume int64 `json:"total_deposit_volume"`
		InvitedCount       int64 `json:"invited_count"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &overview); err != nil {
		t.Fatalf("decode overview: %v", err)
	}
	if overview.TotalCommission != 100 || overview.TotalDepositVolume != 1000 || overview.InvitedCount != 1 {
		t.Fatalf("unexpected referral overview: %+v", overview)
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodGet, "/users/user-ref/referral/commissions", nil))
	var commissions []token.UnifiedToken
	if err := json.Unmarshal(resp.Body.Bytes(), &commissions); err != nil {
		t.Fatalf("decode commissions: %v", err)
	}
	if len(commissions) != 1 || commissions[0].Amount != 100 {
		t.Fatalf("expected one commission of 100, got %+v", commissions)
	}
}

func TestUserTokenTypeRestricted(t *testing.T) {
	handler := newTestHandler(t)
	createUser(t, handler, "user-1")

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodPost, "/users/user-1/tokens",
		marshal(map[string]any{"type": "bonus", "amount": 10_000})))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for user-minted bonus, got %d", resp.Code)
	}
}

func TestWithdrawalInsufficientBalance(t *testing.T) {
	handler := newTestHandler(t)
	createUser(t, handler, "user-1")

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodPost, "/users/user-1/tokens",
		marshal(map[string]any{"type": "withdrawal", "amount": 500})))
	if resp.Code != http.StatusCreated {
		t.Fatalf("create withdrawal: %d %s", resp.Code, resp.Body.String())
	}
	var withdrawal token.UnifiedToken
	if err := json.Unmarshal(resp.Body.Bytes(), &withdrawal); err != nil {
		t.Fatalf("decode withdrawal: %v", err)
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, adminRequest(t, handler, http.MethodPost, "/admin/tokens/"+withdrawal.ID+"/approve", nil))
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 for insufficient balance, got %d %s", resp.Code, resp.Body.String())
	}
}

func TestAdminEndpointsRejectUserToken(t *testing.T) {
	handler := newTestHandler(t)

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodGet, "/admin/tokens/pending", nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for API token on admin route, got %d", resp.Code)
	}
}

func TestRaffleFlow(t *testing.T) {
	handler := newTestHandler(t)
	createUser(t, handler, "player-1")

	// Fund the player through an admin-minted bonus.
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, adminRequest(t, handler, http.MethodPost, "/admin/tokens",
		marshal(map[string]any{"user_id": "player-1", "type": "bonus", "amount": 500})))
	if resp.Code != http.StatusCreated {
		t.Fatalf("mint bonus: %d %s", resp.Code, resp.Body.String())
	}
	var bonus token.UnifiedToken
	if err := json.Unmarshal(resp.Body.Bytes(), &bonus); err != nil {
		t.Fatalf("decode bonus: %v", err)
	}
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, adminRequest(t, handler, http.MethodPost, "/admin/tokens/"+bonus.ID+"/approve", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("approve bonus: %d %s", resp.Code, resp.Body.String())
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, adminRequest(t, handler, http.MethodPost, "/admin/raffles/open",
		marshal(map[string]any{"entry_price": 100})))
	if resp.Code != http.StatusCreated {
		t.Fatalf("open round: %d %s", resp.Code, resp.Body.String())
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodPost, "/users/player-1/raffle-entries", nil))
	if resp.Code != http.StatusCreated {
		t.Fatalf("enter raffle: %d %s", resp.Code, resp.Body.String())
	}
	var entry token.UnifiedToken
	if err := json.Unmarshal(resp.Body.Bytes(), &entry); err != nil {
		t.Fatalf("decode entry: %v", err)
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, adminRequest(t, handler, http.MethodPost, "/admin/tokens/"+entry.ID+"/approve", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("approve entry: %d %s", resp.Code, resp.Body.String())
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, adminRequest(t, handler, http.MethodPost, "/admin/raffles/draw", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("draw: %d %s", resp.Code, resp.Body.String())
	}
	var drawn raffle.Round
	if err := json.Unmarshal(resp.Body.Bytes(), &drawn); err != nil {
		t.Fatalf("decode drawn round: %v", err)
	}
	if drawn.Status != raffle.RoundStatusDrawn || drawn.WinnerID != "player-1" {
		t.Fatalf("unexpected draw result: %+v", drawn)
	}
	if drawn.Prize != 80 {
		t.Fatalf("expected prize 80, got %d", drawn.Prize)
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodGet, "/users/player-1", nil))
	var player user.User
	if err := json.Unmarshal(resp.Body.Bytes(), &player); err != nil {
		t.Fatalf("decode player: %v", err)
	}
	// 500 bonus - 100 entry + 80 prize
	if player.Balance != 480 {
		t.Fatalf("expected balance 480, got %d", player.Balance)
	}

	// The draw opens a follow-up round carrying the house remainder.
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodGet, "/raffles/open", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("get open round: %d %s", resp.Code, resp.Body.String())
	}
	var next raffle.Round
	if err := json.Unmarshal(resp.Body.Bytes(), &next); err != nil {
		t.Fatalf("decode next round: %v", err)
	}
	if next.RoundNumber != drawn.RoundNumber+1 || next.Pot != 20 {
		t.Fatalf("unexpected follow-up round: %+v", next)
	}
}

func TestMigrationEndpoint(t *testing.T) {
	handler := newTestHandler(t)
	createUser(t, handler, "user-1")

	// No legacy rows yet: a no-op pass.
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodPost, "/users/user-1/migrate", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("migrate: %d %s", resp.Code, resp.Body.String())
	}
	var result struct {
		Migrated int `json:"migrated"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Migrated != 0 {
		t.Fatalf("expected 0 migrated, got %d", result.Migrated)
	}
}

func TestAdminSweepEndpoint(t *testing.T) {
	handler := newTestHandler(t)

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, adminRequest(t, handler, http.MethodPost, "/admin/tokens/sweep", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("sweep: %d %s", resp.Code, resp.Body.String())
	}
	var result struct {
		Expired int64 `json:"expired"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Expired != 0 {
		t.Fatalf("expected 0 expired, got %d", result.Expired)
	}
}

func TestAdminMigrateEndpoint(t *testing.T) {
	handler := newTestHandler(t)
	createUser(t, handler, "user-1")

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, adminRequest(t, handler, http.MethodPost, "/admin/users/user-1/migrate", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("admin migrate: %d %s", resp.Code, resp.Body.String())
	}
}

func TestOversizedBodyRejected(t *testing.T) {
	handler := newTestHandler(t)

	body := append([]byte(`{"id":"`), bytes.Repeat([]byte("a"), 1<<20)...)
	body = append(body, '"', '}')
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodPost, "/users", body))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversized body, got %d", resp.Code)
	}
}

func TestUnknownRouteReturns404(t *testing.T) {
	handler := newTestHandler(t)

	for _, path := range []string{"/users/u1/unknown", "/raffles/r1/unknown"} {
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, authedRequest(http.MethodGet, path, nil))
		if resp.Code != http.StatusNotFound {
			t.Fatalf("%s: expected 404, got %d", path, resp.Code)
		}
	}
}
