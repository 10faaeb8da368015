package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/blender-id/bid/internal/bid/service"
	"github.com/blender-id/bid/pkg/slogx"
)

// DeleteTokenHandler serves POST /v1/addon/delete_token.
//
// The presented token authenticates itself: whoever holds the opaque string
// may revoke it. Deletion is permanent and idempotent; the token row and its
// paired refresh tokens are removed outright, never tombstoned.
type DeleteTokenHandler struct {
	TokenService *service.TokenService
}

func (h *DeleteTokenHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	if err := r.ParseForm(); err != nil {
		writeFail(w, http.StatusBadRequest, map[string]string{"request": "malformed form body"})
		return
	}

	token := strings.TrimSpace(r.PostForm.Get("token"))
	if token == "" {
		token = bearerToken(r)
	}
	subclient := strings.TrimSpace(r.PostForm.Get("subclient_id"))
	expectedUserID := strings.TrimSpace(r.PostForm.Get("user_id"))

	if token == "" {
		writeFail(w, http.StatusUnauthorized, map[string]string{"token": "no token given"})
		return
	}

	user, _, err := h.TokenService.Validate(ctx, token, subclient, expectedUserID)
	if err != nil {
		if errors.Is(err, service.ErrTokenInvalid) || errors.Is(err, service.ErrNotOwner) {
			writeFail(w, http.StatusUnauthorized, map[string]string{"token": "Token is invalid"})
			return
		}
		log.Error("delete_token validation failed", "err", err)
		writeFail(w, http.StatusInternalServerError, map[string]string{"server": "internal error"})
		return
	}

	if err := h.TokenService.Revoke(ctx, user.ID, token, subclient); err != nil {
		log.Error("token revocation failed", "user_id", user.ID, "err", err)
		writeFail(w, http.StatusInternalServerError, map[string]string{"server": "internal error"})
		return
	}

	// The deployed add-on expects this exact message.
	writeSuccess(w, http.StatusOK, map[string]string{"message": "ole"})
}
