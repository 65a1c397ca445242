package httpapi

import (
	"net/http"
	"strings"

	"github.com/rafflehub/rewards/internal/app/domain/token"
	"github.com/rafflehub/rewards/internal/middleware"
)

func (h *handler) adminLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &payload); err != nil {
		writeInvalidInput(w, err)
		return
	}
	session, err := h.admin.Login(payload.Username, payload.Password)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": session})
}

// adminResources routes everything below /admin/ except /admin/login. The
// JWT middleware has already established the admin identity on the context.
func (h *handler) adminResources(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/admin"), "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) == 0 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	switch parts[0] {
	case "tokens":
		h.adminTokens(w, r, parts[1:])
	case "raffles":
		h.adminRaffles(w, r, parts[1:])
	case "users":
		h.adminUsers(w, r, parts[1:])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *handler) adminTokens(w http.ResponseWriter, r *http.Request, rest []string) {
	adminID := middleware.GetUserID(r.Context())

	if len(rest) == 0 {
		// POST /admin/tokens mints bonuses and cashback on behalf of a user.
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var payload struct {
			UserID   string            `json:"user_id"`
			Type     string            `json:"type"`
			Amount   int64             `json:"amount"`
			Metadata map[string]string `json:"metadata"`
		}
		if err := decodeJSON(w, r, &payload); err != nil {
			writeInvalidInput(w, err)
			return
		}
		created, err := h.app.Ledger.Create(r.Context(), token.UnifiedToken{
			UserID:   payload.UserID,
			Type:     token.Type(payload.Type),
			Amount:   payload.Amount,
			Metadata: payload.Metadata,
		})
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
		return
	}

	if rest[0] == "sweep" && len(rest) == 1 {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		swept, err := h.app.Ledger.ExpireDue(r.Context())
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int64{"expired": swept})
		return
	}

	if rest[0] == "pending" && len(rest) == 1 {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		list, err := h.app.Ledger.ListPending(r.Context(), queryLimit(r))
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
		return
	}

	tokenID := rest[0]
	if len(rest) != 2 || r.Method != http.MethodPost {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	switch rest[1] {
	case "approve":
		decided, err := h.app.Ledger.Approve(r.Context(), tokenID, adminID)
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, decided)
	case "reject":
		var payload struct {
			Reason string `json:"reason"`
		}
		if err := decodeJSON(w, r, &payload); err != nil {
			writeInvalidInput(w, err)
			return
		}
		decided, err := h.app.Ledger.Reject(r.Context(), tokenID, adminID, payload.Reason)
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, decided)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// adminUsers runs the legacy migration for one user on demand.
func (h *handler) adminUsers(w http.ResponseWriter, r *http.Request, rest []string) {
	if len(rest) != 2 || rest[1] != "migrate" || r.Method != http.MethodPost {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	result, err := h.app.Ledger.MigrateLegacy(r.Context(), rest[0])
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handler) adminRaffles(w http.ResponseWriter, r *http.Request, rest []string) {
	if len(rest) != 1 || r.Method != http.MethodPost {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	adminID := middleware.GetUserID(r.Context())

	switch rest[0] {
	case "open":
		var payload struct {
			EntryPrice int64 `json:"entry_price"`
		}
		if err := decodeJSON(w, r, &payload); err != nil {
			writeInvalidInput(w, err)
			return
		}
		round, err := h.app.Raffle.OpenRound(r.Context(), payload.EntryPrice, 0)
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, round)
	case "draw":
		round, err := h.app.Raffle.Draw(r.Context(), adminID)
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, round)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}
