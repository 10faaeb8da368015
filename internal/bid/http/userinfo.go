package http

import (
	"net/http"

	"github.com/blender-id/bid/internal/bid/service"
	"github.com/blender-id/bid/pkg/httpx"
	"github.com/blender-id/bid/pkg/slogx"
)

type UserInfoHandler struct {
	UserService *service.UserService
}

// userInfoResponse carries the authenticated user's profile. Roles is a
// name-to-flag map rather than a list because that is how deployed consumers
// already parse it; only active, public roles appear in it.
type userInfoResponse struct {
	ID       string          `json:"id"`
	Email    string          `json:"email"`
	FullName string          `json:"full_name"`
	Roles    map[string]bool `json:"roles"`
}

func (h *UserInfoHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	userID := httpx.UserIDFromCtx(ctx)

	user, err := h.UserService.GetUserByID(ctx, userID)
	if err != nil {
		log.Warn("failed to load user", "user_id", userID, "err", err)
		writeFail(w, http.StatusInternalServerError, map[string]string{"server": "internal error"})
		return
	}

	roles, err := h.UserService.ListRoles(ctx, userID)
	if err != nil {
		log.Warn("failed to load roles", "user_id", userID, "err", err)
		writeFail(w, http.StatusInternalServerError, map[string]string{"server": "internal error"})
		return
	}

	roleMap := make(map[string]bool)
	for _, role := range roles {
		if role.IsActive && role.IsPublic {
			roleMap[role.Name] = true
		}
	}

	response := userInfoResponse{
		ID:       user.ID,
		Email:    user.Email,
		FullName: user.FullName,
		Roles:    roleMap,
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, response)
}
