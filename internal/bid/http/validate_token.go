package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/blender-id/bid/internal/bid/domain"
	"github.com/blender-id/bid/internal/bid/service"
	"github.com/blender-id/bid/pkg/httpx"
	"github.com/blender-id/bid/pkg/slogx"
)

// ValidateTokenHandler serves POST /v1/addon/validate_token.
//
// The token may arrive as a form field or as a bearer header; the form field
// wins when both are present. An optional subclient_id pins the lookup to a
// delegated token, and an optional user_id asserts ownership.
type ValidateTokenHandler struct {
	TokenService *service.TokenService
}

func (h *ValidateTokenHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	if err := r.ParseForm(); err != nil {
		writeInvalidToken(w)
		return
	}

	token := strings.TrimSpace(r.PostForm.Get("token"))
	if token == "" {
		token = bearerToken(r)
	}
	subclient := strings.TrimSpace(r.PostForm.Get("subclient_id"))
	expectedUserID := strings.TrimSpace(r.PostForm.Get("user_id"))

	if token == "" {
		writeInvalidToken(w)
		return
	}

	user, access, err := h.TokenService.Validate(ctx, token, subclient, expectedUserID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTokenInvalid), errors.Is(err, service.ErrNotOwner):
			// Same body either way: ownership mismatches must not confirm
			// that the token exists.
			writeInvalidToken(w)
		default:
			log.Error("token validation failed", "err", err)
			writeFail(w, http.StatusInternalServerError, map[string]string{"server": "internal error"})
		}
		return
	}

	httpWriteValidate(w, user, access)
}

func httpWriteValidate(w http.ResponseWriter, user domain.User, access domain.AccessToken) {
	resp := validateResponse{
		Status: "success",
		User: userResponse{
			ID:       user.ID,
			Email:    user.Email,
			FullName: user.FullName,
		},
		TokenExpires: domain.FormatExpires(access.ExpiresAt),
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// bearerToken pulls the raw token out of an Authorization: Bearer header,
// returning "" when the header is absent or malformed.
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) > len(prefix) && strings.EqualFold(auth[:len(prefix)], prefix) {
		return strings.TrimSpace(auth[len(prefix):])
	}
	return ""
}
