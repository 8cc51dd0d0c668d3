package httpx

import (
	"errors"
	"net/http"

	"github.com/canvascast/canvascast-go/internal/core"
)

// DraftHandlers provides the anonymous draft prompt claim endpoint.
type DraftHandlers struct {
	Drafts core.DraftStore
}

// Claim assigns a pre-signup draft to the presenting user. A missing,
// expired, or already claimed token answers 404 without distinguishing the
// three, so tokens cannot be probed.
func (h *DraftHandlers) Claim(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token  string `json:"token"`
		UserID string `json:"user_id"`
	}
	if !DecodeJSON(w, r, &req) {
		return
	}
	if req.Token == "" || req.UserID == "" {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "invalid_request",
			Err:     errors.New("token and user_id are required"),
		})
		return
	}

	draftID, err := h.Drafts.Claim(r.Context(), core.ClaimDraftParams{
		Token:  req.Token,
		UserID: req.UserID,
	})
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "claim_failed", Err: err})
		return
	}
	if draftID == nil {
		WriteError(w, ErrorParams{
			Code:    http.StatusNotFound,
			ErrCode: "draft_not_claimable",
			Err:     errors.New("draft not found, expired, or already claimed"),
		})
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{"draft_id": *draftID})
}
