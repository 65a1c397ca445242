// Package httpapi exposes the rewards REST API.
package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	app "github.com/rafflehub/rewards/internal/app"
	"github.com/rafflehub/rewards/internal/app/domain/token"
	"github.com/rafflehub/rewards/internal/app/storage"
	"github.com/rafflehub/rewards/internal/middleware"
)

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app   *app.Application
	admin *middleware.AdminAuth
}

// NewHandler returns a mux exposing the core REST API. Admin routes require
// adminAuth; passing nil disables them.
func NewHandler(application *app.Application, adminAuth *middleware.AdminAuth) http.Handler {
	h := &handler{app: application, admin: adminAuth}
	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.health)
	mux.HandleFunc("/users", h.users)
	mux.HandleFunc("/users/", h.userResources)
	mux.HandleFunc("/tokens/", h.tokenByID)
	mux.HandleFunc("/raffles", h.raffles)
	mux.HandleFunc("/raffles/", h.raffleResources)
	if adminAuth != nil {
		mux.HandleFunc("/admin/login", h.adminLogin)
		mux.Handle("/admin/", adminAuth.Handler(http.HandlerFunc(h.adminResources)))
	}
	return mux
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) users(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var payload struct {
			ID string `json:"id"`
		}
		if err := decodeJSON(w, r, &payload); err != nil {
			writeInvalidInput(w, err)
			return
		}
		u, err := h.app.Users.EnsureUser(r.Context(), payload.ID)
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, u)

	case http.MethodGet:
		list, err := h.app.Users.List(r.Context(), queryLimit(r))
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) userResources(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/users"), "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) == 0 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	userID := parts[0]

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		u, err := h.app.Users.Get(r.Context(), userID)
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, u)
		return
	}

	switch parts[1] {
	case "referrer":
		h.userReferrer(w, r, userID)
	case "tokens":
		h.userTokens(w, r, userID)
	case "referral":
		h.userReferral(w, r, userID, parts[2:])
	case "migrate":
		h.userMigrate(w, r, userID)
	case "raffle-entries":
		h.userRaffleEntry(w, r, userID)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *handler) userReferrer(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		Code string `json:"code"`
	}
	if err := decodeJSON(w, r, &payload); err != nil {
		writeInvalidInput(w, err)
		return
	}
	u, err := h.app.Users.BindReferrer(r.Context(), userID, payload.Code)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *handler) userTokens(w http.ResponseWriter, r *http.Request, userID string) {
	switch r.Method {
	case http.MethodGet:
		filter := storage.TokenFilter{
			UserID: userID,
			Type:   token.Type(r.URL.Query().Get("type")),
			Status: token.Status(r.URL.Query().Get("status")),
			Limit:  queryLimit(r),
		}
		list, err := h.app.Ledger.List(r.Context(), filter)
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)

	case http.MethodPost:
		var payload struct {
			Type     string            `json:"type"`
			Amount   int64             `json:"amount"`
			Metadata map[string]string `json:"metadata"`
		}
		if err := decodeJSON(w, r, &payload); err != nil {
			writeInvalidInput(w, err)
			return
		}
		// Users may only request deposits and withdrawals; other types are
		// minted by admins or the system.
		requested := token.Type(payload.Type)
		if requested != token.TypeDeposit && requested != token.TypeWithdrawal {
			writeErrorBody(w, http.StatusBadRequest, "invalid_input", "type must be deposit or withdrawal")
			return
		}
		created, err := h.app.Ledger.Create(r.Context(), token.UnifiedToken{
			UserID:   userID,
			Type:     requested,
			Amount:   payload.Amount,
			Metadata: payload.Metadata,
		})
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) userReferral(w http.ResponseWriter, r *http.Request, userID string, rest []string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if len(rest) == 0 {
		overview, err := h.app.Referral.Overview(r.Context(), userID)
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, overview)
		return
	}
	switch rest[0] {
	case "invited":
		list, err := h.app.Referral.ListInvited(r.Context(), userID, queryLimit(r))
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	case "commissions":
		list, err := h.app.Referral.ListCommissions(r.Context(), userID, queryLimit(r))
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *handler) userMigrate(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	result, err := h.app.Ledger.MigrateLegacy(r.Context(), userID)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handler) userRaffleEntry(w http.ResponseWriter, r *http.Request, userID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	created, err := h.app.Raffle.Enter(r.Context(), userID)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *handler) tokenByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/tokens"), "/")
	if id == "" || strings.Contains(id, "/") {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	t, err := h.app.Ledger.Get(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *handler) raffles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	list, err := h.app.Raffle.ListRounds(r.Context(), queryLimit(r))
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handler) raffleResources(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/raffles"), "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) == 0 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if parts[0] == "open" && len(parts) == 1 {
		round, err := h.app.Raffle.GetOpenRound(r.Context())
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, round)
		return
	}

	roundID := parts[0]
	if len(parts) == 1 {
		round, err := h.app.Raffle.GetRound(r.Context(), roundID)
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, round)
		return
	}
	if parts[1] == "entries" {
		entries, err := h.app.Raffle.ListEntries(r.Context(), roundID)
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, entries)
		return
	}
	w.WriteHeader(http.StatusNotFound)
}

func queryLimit(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0
	}
	return limit
}
