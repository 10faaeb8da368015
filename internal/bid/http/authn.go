package http

import (
	"context"

	"github.com/blender-id/bid/internal/bid/service"
	"github.com/blender-id/bid/pkg/httpx"
)

// tokenAuthenticator resolves bearer tokens against the token store. Only
// primary tokens (subclient "") authenticate the interactive API.
type tokenAuthenticator struct {
	tokens *service.TokenService
}

func (a *tokenAuthenticator) AuthenticateToken(ctx context.Context, token string) (httpx.Identity, error) {
	user, access, err := a.tokens.Validate(ctx, token, "", "")
	if err != nil {
		return httpx.Identity{}, err
	}
	return httpx.Identity{
		UserID: user.ID,
		Scopes: access.Scopes,
	}, nil
}
