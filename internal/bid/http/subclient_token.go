package http

import (
	"net/http"
	"strings"

	"github.com/blender-id/bid/internal/bid/domain"
	"github.com/blender-id/bid/internal/bid/service"
	"github.com/blender-id/bid/pkg/httpx"
	"github.com/blender-id/bid/pkg/slogx"
)

// SubclientTokenHandler serves POST /v1/addon/subclient_token.
//
// Requires a primary bearer token (enforced by the authn middleware). Issues
// a delegated token locked to the requested subclient id; the delegated token
// only ever validates with that same id presented alongside it.
type SubclientTokenHandler struct {
	TokenService *service.TokenService
	UserService  *service.UserService
}

func (h *SubclientTokenHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	if err := r.ParseForm(); err != nil {
		writeFail(w, http.StatusBadRequest, map[string]string{"request": "malformed form body"})
		return
	}

	subclient := strings.TrimSpace(r.PostForm.Get("subclient_id"))
	hostLabel := strings.TrimSpace(r.PostForm.Get("host_label"))
	if subclient == "" {
		writeFail(w, http.StatusBadRequest, map[string]string{"subclient_id": "not given"})
		return
	}

	userID := httpx.UserIDFromCtx(ctx)
	user, err := h.UserService.GetUserByID(ctx, userID)
	if err != nil {
		log.Error("failed to load authenticated user", "user_id", userID, "err", err)
		writeFail(w, http.StatusInternalServerError, map[string]string{"server": "internal error"})
		return
	}

	pair, err := h.TokenService.IssueSubclient(ctx, user, subclient, hostLabel)
	if err != nil {
		log.Error("subclient token issuance failed",
			"user_id", user.ID, "subclient", subclient, "err", err)
		writeFail(w, http.StatusInternalServerError, map[string]string{"server": "internal error"})
		return
	}

	writeSuccess(w, http.StatusCreated, subclientTokenData{
		Token:   pair.AccessToken,
		Expires: domain.FormatExpires(pair.Expires),
	})
}
