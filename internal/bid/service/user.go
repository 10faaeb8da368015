package service

import (
	"context"

	"github.com/blender-id/bid/internal/bid/domain"
	"github.com/blender-id/bid/internal/bid/store"
)

type UserService struct {
	Store store.Store
}

// GetUserByID fetches a user by id.
func (s *UserService) GetUserByID(ctx context.Context, userID string) (domain.User, error) {
	return s.Store.Users().GetUserByID(ctx, userID)
}

// ListRoles returns every role the user holds.
func (s *UserService) ListRoles(ctx context.Context, userID string) ([]domain.Role, error) {
	return s.Store.Users().ListRoles(ctx, userID)
}
