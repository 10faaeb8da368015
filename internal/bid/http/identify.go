package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/blender-id/bid/internal/bid/domain"
	"github.com/blender-id/bid/internal/bid/service"
	"github.com/blender-id/bid/pkg/slogx"
)

// IdentifyHandler serves POST /v1/addon/identify.
// Accepts application/x-www-form-urlencoded with email, password, and an
// optional host_label. On success it issues a fresh primary token pair.
type IdentifyHandler struct {
	TokenService *service.TokenService
}

func (h *IdentifyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	if err := r.ParseForm(); err != nil {
		writeFail(w, http.StatusBadRequest, map[string]string{"request": "malformed form body"})
		return
	}

	email := strings.TrimSpace(r.PostForm.Get("email"))
	password := r.PostForm.Get("password")
	hostLabel := strings.TrimSpace(r.PostForm.Get("host_label"))

	user, err := h.TokenService.Authenticate(ctx, email, password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			// One uniform failure body: no hint whether the email exists,
			// the password is wrong, or the account is deactivated.
			writeFail(w, http.StatusOK, map[string]string{"credentials": "authentication failed"})
			return
		}
		log.Error("identify failed", "err", err)
		writeFail(w, http.StatusInternalServerError, map[string]string{"server": "internal error"})
		return
	}

	pair, err := h.TokenService.IssuePrimary(ctx, user, hostLabel, remoteIP(r))
	if err != nil {
		log.Error("token issuance failed", "user_id", user.ID, "err", err)
		writeFail(w, http.StatusInternalServerError, map[string]string{"server": "internal error"})
		return
	}

	writeSuccess(w, http.StatusOK, identifyData{
		UserID: user.ID,
		OAuthToken: oauthTokenData{
			AccessToken:  pair.AccessToken,
			RefreshToken: pair.RefreshToken,
			Expires:      domain.FormatExpires(pair.Expires),
		},
	})
}

// remoteIP extracts the client address for login bookkeeping, preferring the
// proxy-set X-Forwarded-For header.
func remoteIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i >= 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}
	host := r.RemoteAddr
	if i := strings.LastIndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	return host
}
