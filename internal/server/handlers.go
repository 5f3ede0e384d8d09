package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"mining-bot/internal/models"
	"mining-bot/internal/store"
)

type referralsResponse struct {
	Level1 []string `json:"level1"`
	Level2 []string `json:"level2"`
	Level3 []string `json:"level3"`
}

// userResponse leaves out the avatar url, it embeds the bot token.
type userResponse struct {
	ID                  string            `json:"id"`
	ReferrerID          *string           `json:"referrer_id"`
	ReferrerIDLevel2    *string           `json:"referrer_id_level2"`
	ReferrerIDLevel3    *string           `json:"referrer_id_level3"`
	Balance             models.Coins      `json:"balance"`
	AccrualRate         models.Rate       `json:"accrual_rate"`
	AccrualWindowExpiry *time.Time        `json:"accrual_window_expiry"`
	AccrualState        string            `json:"accrual_state"`
	DisplayName         string            `json:"display_name"`
	Referrals           referralsResponse `json:"referrals"`
	CreatedAt           time.Time         `json:"created_at"`
}

func newUserResponse(rec *models.UserRecord, now time.Time) userResponse {
	return userResponse{
		ID:                  rec.ID,
		ReferrerID:          rec.ReferrerID,
		ReferrerIDLevel2:    rec.ReferrerIDLevel2,
		ReferrerIDLevel3:    rec.ReferrerIDLevel3,
		Balance:             rec.Balance,
		AccrualRate:         rec.AccrualRate,
		AccrualWindowExpiry: rec.AccrualWindowExpiry,
		AccrualState:        rec.AccrualState(now).String(),
		DisplayName:         rec.DisplayName,
		Referrals: referralsResponse{
			Level1: nonNil(rec.Descendants(models.Level1)),
			Level2: nonNil(rec.Descendants(models.Level2)),
			Level3: nonNil(rec.Descendants(models.Level3)),
		},
		CreatedAt: rec.CreatedAt,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rec, err := s.store.Get(r.Context(), id)
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusOK, newUserResponse(rec, s.now()))
	case errors.Is(err, store.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "user not found")
	case errors.Is(err, store.ErrMalformedRecord):
		s.log.Error().Err(err).Str("user_id", id).Msg("Malformed user record")
		s.writeError(w, http.StatusInternalServerError, "user record is malformed")
	default:
		s.log.Error().Err(err).Str("user_id", id).Msg("Failed to load user")
		s.writeError(w, http.StatusServiceUnavailable, "store unavailable")
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
