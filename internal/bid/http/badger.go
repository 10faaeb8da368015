package http

import (
	"errors"
	"net/http"

	"github.com/blender-id/bid/internal/bid/service"
	"github.com/blender-id/bid/pkg/httpx"
	"github.com/blender-id/bid/pkg/slogx"
)

// BadgerHandler serves the badge management endpoints:
//
//	POST /v1/badger/grant/{badge}/{email}
//	POST /v1/badger/revoke/{badge}/{email}
//
// Both verbs map onto the same authorization engine; the caller must hold the
// badger scope (checked by middleware) and manage the named badge (checked by
// the engine per call, never cached across requests).
type BadgerHandler struct {
	BadgerService *service.BadgerService
	UserService   *service.UserService
}

func (h *BadgerHandler) HandleGrant(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, service.ActionGrant)
}

func (h *BadgerHandler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, service.ActionRevoke)
}

func (h *BadgerHandler) handle(w http.ResponseWriter, r *http.Request, action service.BadgerAction) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	badge := r.PathValue("badge")
	email := r.PathValue("email")

	actorID := httpx.UserIDFromCtx(ctx)
	actor, err := h.UserService.GetUserByID(ctx, actorID)
	if err != nil {
		log.Error("failed to load acting user", "user_id", actorID, "err", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	result, err := h.BadgerService.Badger(ctx, actor, action, badge, email)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrBadgeForbidden):
			// Empty body: the caller learns nothing about whether the badge
			// exists, is inactive, or is simply outside their grant set.
			w.WriteHeader(http.StatusForbidden)
		case errors.Is(err, service.ErrTargetUnknown):
			w.WriteHeader(http.StatusUnprocessableEntity)
		default:
			log.Error("badger action failed",
				"action", action.String(), "badge", badge, "err", err)
			w.WriteHeader(http.StatusInternalServerError)
		}
		return
	}

	httpx.WriteJSON(w, http.StatusOK, badgerResponse{Result: string(result)})
}
