package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/blender-id/bid/internal/bid/domain"
	"github.com/blender-id/bid/internal/bid/obs"
	"github.com/blender-id/bid/internal/bid/store"
	"github.com/blender-id/bid/pkg/idx"
	"github.com/blender-id/bid/pkg/slogx"
)

// BadgerAction is the tagged variant selecting which way Badger mutates the
// target's badge set.
type BadgerAction int

const (
	ActionGrant BadgerAction = iota
	ActionRevoke
)

func (a BadgerAction) String() string {
	switch a {
	case ActionGrant:
		return domain.AuditActionGrant
	case ActionRevoke:
		return domain.AuditActionRevoke
	default:
		return fmt.Sprintf("BadgerAction(%d)", int(a))
	}
}

// BadgerResult is the success marker returned to the caller.
type BadgerResult string

const (
	// ResultOK means the badge set actually changed.
	ResultOK BadgerResult = "ok"
	// ResultNoOp means the target was already in the requested state.
	ResultNoOp BadgerResult = "no-op"
)

var (
	// ErrBadgeForbidden covers every authorization failure: unknown badge
	// name, badge outside the actor's managed set, non-badge role, and
	// inactive role. The cases are indistinguishable to the caller so the
	// existence of badges cannot be probed; logs tell them apart.
	ErrBadgeForbidden = errors.New("badge_forbidden")

	// ErrTargetUnknown reports that the target email resolves to no user.
	// This is a caller-input problem, distinct from a permission problem.
	ErrTargetUnknown = errors.New("target_unknown")
)

// BadgerService grants and revokes badges. Authority comes from the role
// graph: a user may manage exactly the union of the managed-role sets of the
// roles they hold, recomputed on every call.
type BadgerService struct {
	Store store.Store
}

// Badger applies action for badgeName to the user identified by targetEmail,
// on behalf of actor. The whole read-decide-write-audit sequence runs in one
// transaction, so no partial state (role changed without an audit entry, or
// the reverse) can be observed.
//
// Per (target, badge) pair the operation is a two-state machine
// {absent, present}: a grant on present and a revoke on absent are no-op
// successes that leave the audit log untouched.
func (s *BadgerService) Badger(ctx context.Context, actor domain.User, action BadgerAction, badgeName, targetEmail string) (BadgerResult, error) {
	l := slogx.FromContext(ctx).With(
		slog.String("actor", actor.Email),
		slog.String("action", action.String()),
		slog.String("badge", badgeName),
		slog.String("target", targetEmail),
	)

	if action != ActionGrant && action != ActionRevoke {
		return "", fmt.Errorf("badger: unknown action %q", action)
	}

	var result BadgerResult

	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		// See which roles the actor can manage: the union of the
		// managed-role sets of every role they hold, keyed by name.
		mayManage, err := managedRoles(ctx, tx, actor.ID)
		if err != nil {
			return err
		}

		role, ok := mayManage[badgeName]
		if !ok {
			l.Warn("actor may not manage badge")
			return ErrBadgeForbidden
		}

		target, err := tx.Users().GetUserByEmail(ctx, domain.NormalizeEmail(targetEmail))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				l.Warn("badge action for nonexistent target user")
				return ErrTargetUnknown
			}
			return err
		}

		// The resolved role must be an active badge.
		if !role.IsBadge {
			l.Warn("badge action for non-badge role")
			return ErrBadgeForbidden
		}
		if !role.IsActive {
			l.Warn("badge action for inactive badge")
			return ErrBadgeForbidden
		}

		has, err := tx.Users().HasRole(ctx, target.ID, role.ID)
		if err != nil {
			return err
		}

		var message string
		switch action {
		case ActionGrant:
			if has {
				l.Debug("target already has badge")
				result = ResultNoOp
				return nil
			}
			if err := tx.Users().AddRole(ctx, target.ID, role.ID); err != nil {
				return err
			}
			message = "granted badge " + role.Name
		case ActionRevoke:
			if !has {
				l.Debug("target already does not have badge")
				result = ResultNoOp
				return nil
			}
			if err := tx.Users().RemoveRole(ctx, target.ID, role.ID); err != nil {
				return err
			}
			message = "revoked badge " + role.Name
		}

		entry := domain.AuditEntry{
			ID:           idx.New().String(),
			ActorUserID:  actor.ID,
			TargetUserID: target.ID,
			RoleName:     role.Name,
			Action:       action.String(),
			Message:      message,
		}
		if err := tx.Audit().Append(ctx, entry); err != nil {
			return err
		}

		l.Info("badge " + action.String() + " applied")
		result = ResultOK
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrBadgeForbidden):
			obs.CountBadgerAction(action.String(), "forbidden")
		case errors.Is(err, ErrTargetUnknown):
			obs.CountBadgerAction(action.String(), "unknown-target")
		default:
			obs.CountBadgerAction(action.String(), "error")
		}
		return "", err
	}

	obs.CountBadgerAction(action.String(), string(result))
	return result, nil
}

// managedRoles flat-maps the actor's held roles through their managed-role
// edges into a name-keyed mapping. No caching across requests; the role
// graph is small and authority must reflect the current state of the store.
func managedRoles(ctx context.Context, tx store.Tx, userID string) (map[string]domain.Role, error) {
	held, err := tx.Users().ListRoles(ctx, userID)
	if err != nil {
		return nil, err
	}

	mayManage := make(map[string]domain.Role)
	for _, role := range held {
		managed, err := tx.Roles().ListManagedRoles(ctx, role.ID)
		if err != nil {
			return nil, err
		}
		for _, m := range managed {
			mayManage[m.Name] = m
		}
	}
	return mayManage, nil
}
