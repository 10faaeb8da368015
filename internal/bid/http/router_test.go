package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/blender-id/bid/internal/bid/domain"
	"github.com/blender-id/bid/internal/bid/service"
	"github.com/blender-id/bid/internal/bid/store"
	"github.com/blender-id/bid/internal/bid/store/drivers/sqlite"
	"github.com/blender-id/bid/pkg/cryptox"
	"github.com/blender-id/bid/pkg/idx"
	"github.com/blender-id/bid/pkg/slogx"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	// Use a throwaway pepper so tests never touch a real pepper file.
	dir, err := os.MkdirTemp("", "http-test")
	if err != nil {
		panic(err)
	}
	cryptox.SetPepperPath(filepath.Join(dir, "pepper"))
	code := m.Run()
	_ = os.RemoveAll(dir)
	os.Exit(code)
}

type testServer struct {
	*httptest.Server

	store  store.Store
	tokens *service.TokenService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	app := domain.Application{
		ID:       idx.New().String(),
		ClientID: "blender-addon",
		Name:     "Blender Add-on",
		Scopes:   []string{"badger"},
	}
	require.NoError(t, st.Applications().CreateApplication(context.Background(), app))

	tokens := &service.TokenService{Store: st, Application: app}

	router := NewRouter("test", st, slogx.New(slogx.Config{Level: "error", Format: "text"}))
	router.TokenService = tokens
	router.UserService = &service.UserService{Store: st}
	router.BadgerService = &service.BadgerService{Store: st}
	router.ApplyRoutes()

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testServer{Server: srv, store: st, tokens: tokens}
}

func (ts *testServer) seedUser(t *testing.T, email, password string) domain.User {
	t.Helper()

	hash, err := cryptox.HashPassword(password)
	require.NoError(t, err)

	user := domain.User{
		ID:           idx.New().String(),
		Email:        email,
		FullName:     "Test User",
		PasswordHash: hash,
		IsActive:     true,
	}
	require.NoError(t, ts.store.Users().CreateUser(context.Background(), user))
	return user
}

func (ts *testServer) postForm(t *testing.T, path, bearer string, form url.Values) (*http.Response, map[string]any) {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, ts.URL+path, strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	// Error middlewares write plain-text bodies; tolerate those.
	var decoded map[string]any
	_ = json.Unmarshal(body, &decoded)
	return resp, decoded
}

func TestIdentifyEndpoint(t *testing.T) {
	ts := newTestServer(t)
	user := ts.seedUser(t, "ton@blender.example", "suzanne-the-monkey")

	t.Run("issues a token pair for valid credentials", func(t *testing.T) {
		resp, body := ts.postForm(t, "/v1/addon/identify", "", url.Values{
			"email":      {"ton@blender.example"},
			"password":   {"suzanne-the-monkey"},
			"host_label": {"workstation"},
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, "success", body["status"])

		data := body["data"].(map[string]any)
		require.Equal(t, user.ID, data["user_id"])

		oauth := data["oauth_token"].(map[string]any)
		require.NotEmpty(t, oauth["access_token"])
		require.NotEmpty(t, oauth["refresh_token"])

		// Expiry must be in the exact layout the add-on parses.
		_, err := time.Parse(domain.ExpiresFormat, oauth["expires"].(string))
		require.NoError(t, err)
	})

	t.Run("wrong password and unknown email fail identically", func(t *testing.T) {
		_, wrongPass := ts.postForm(t, "/v1/addon/identify", "", url.Values{
			"email":    {"ton@blender.example"},
			"password": {"wrong"},
		})
		_, unknown := ts.postForm(t, "/v1/addon/identify", "", url.Values{
			"email":    {"nobody@blender.example"},
			"password": {"whatever"},
		})

		require.Equal(t, "fail", wrongPass["status"])
		require.Equal(t, wrongPass, unknown)
	})
}

func TestValidateTokenEndpoint(t *testing.T) {
	ts := newTestServer(t)
	user := ts.seedUser(t, "artist@blender.example", "pw-orange-suzanne")

	pair, err := ts.tokens.IssuePrimary(context.Background(), user, "", "")
	require.NoError(t, err)

	t.Run("returns the owning user for a live token", func(t *testing.T) {
		resp, body := ts.postForm(t, "/v1/addon/validate_token", "", url.Values{
			"token": {pair.AccessToken},
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, "success", body["status"])

		u := body["user"].(map[string]any)
		require.Equal(t, user.ID, u["id"])
		require.Equal(t, user.Email, u["email"])
		require.Equal(t, "Test User", u["full_name"])
		require.NotEmpty(t, body["token_expires"])
	})

	t.Run("accepts the token via bearer header", func(t *testing.T) {
		resp, _ := ts.postForm(t, "/v1/addon/validate_token", pair.AccessToken, url.Values{})
		require.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("rejects an unknown token with 403", func(t *testing.T) {
		resp, body := ts.postForm(t, "/v1/addon/validate_token", "", url.Values{
			"token": {"garbage"},
		})
		require.Equal(t, http.StatusForbidden, resp.StatusCode)
		require.Equal(t, "fail", body["status"])
		require.Equal(t, "Token is invalid", body["token"])
	})

	t.Run("rejects a primary token presented with a subclient id", func(t *testing.T) {
		resp, _ := ts.postForm(t, "/v1/addon/validate_token", "", url.Values{
			"token":        {pair.AccessToken},
			"subclient_id": {"flamenco"},
		})
		require.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("rejects an ownership assertion by another user", func(t *testing.T) {
		other := ts.seedUser(t, "other@blender.example", "pw-other-12345")
		resp, _ := ts.postForm(t, "/v1/addon/validate_token", "", url.Values{
			"token":   {pair.AccessToken},
			"user_id": {other.ID},
		})
		require.Equal(t, http.StatusForbidden, resp.StatusCode)
	})
}

func TestDeleteTokenEndpoint(t *testing.T) {
	ts := newTestServer(t)
	user := ts.seedUser(t, "artist@blender.example", "pw-orange-suzanne")

	pair, err := ts.tokens.IssuePrimary(context.Background(), user, "", "")
	require.NoError(t, err)

	t.Run("rejects a mismatched user_id assertion", func(t *testing.T) {
		other := ts.seedUser(t, "other@blender.example", "pw-other-12345")
		resp, _ := ts.postForm(t, "/v1/addon/delete_token", "", url.Values{
			"token":   {pair.AccessToken},
			"user_id": {other.ID},
		})
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

		_, _, err := ts.tokens.Validate(context.Background(), pair.AccessToken, "", "")
		require.NoError(t, err, "token must survive the refused deletion")
	})

	t.Run("revokes the presented token", func(t *testing.T) {
		resp, body := ts.postForm(t, "/v1/addon/delete_token", "", url.Values{
			"token": {pair.AccessToken},
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, "success", body["status"])
		require.Equal(t, "ole", body["data"].(map[string]any)["message"])

		_, _, err := ts.tokens.Validate(context.Background(), pair.AccessToken, "", "")
		require.ErrorIs(t, err, service.ErrTokenInvalid)
	})

	t.Run("rejects a token that no longer exists", func(t *testing.T) {
		resp, _ := ts.postForm(t, "/v1/addon/delete_token", "", url.Values{
			"token": {pair.AccessToken},
		})
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("rejects a missing token", func(t *testing.T) {
		resp, _ := ts.postForm(t, "/v1/addon/delete_token", "", url.Values{})
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestSubclientTokenEndpoint(t *testing.T) {
	ts := newTestServer(t)
	user := ts.seedUser(t, "artist@blender.example", "pw-orange-suzanne")

	pair, err := ts.tokens.IssuePrimary(context.Background(), user, "", "")
	require.NoError(t, err)

	var subclientToken string

	t.Run("mints a delegated token for the bearer", func(t *testing.T) {
		resp, body := ts.postForm(t, "/v1/addon/subclient_token", pair.AccessToken, url.Values{
			"subclient_id": {"flamenco"},
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		require.Equal(t, "success", body["status"])

		data := body["data"].(map[string]any)
		subclientToken = data["token"].(string)
		require.NotEmpty(t, subclientToken)

		got, _, err := ts.tokens.Validate(context.Background(), subclientToken, "flamenco", "")
		require.NoError(t, err)
		require.Equal(t, user.ID, got.ID)
	})

	t.Run("requires a bearer token", func(t *testing.T) {
		resp, _ := ts.postForm(t, "/v1/addon/subclient_token", "", url.Values{
			"subclient_id": {"flamenco"},
		})
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("a delegated token cannot authenticate the endpoint", func(t *testing.T) {
		resp, _ := ts.postForm(t, "/v1/addon/subclient_token", subclientToken, url.Values{
			"subclient_id": {"cloud"},
		})
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("requires a subclient id", func(t *testing.T) {
		resp, _ := ts.postForm(t, "/v1/addon/subclient_token", pair.AccessToken, url.Values{})
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestBadgerEndpoints(t *testing.T) {
	ctx := context.Background()
	ts := newTestServer(t)

	badge := domain.Role{ID: idx.New().String(), Name: "cloud_demo", IsActive: true, IsBadge: true, IsPublic: true}
	require.NoError(t, ts.store.Roles().CreateRole(ctx, badge))
	manager := domain.Role{ID: idx.New().String(), Name: "badger_cloud", IsActive: true}
	require.NoError(t, ts.store.Roles().CreateRole(ctx, manager))
	require.NoError(t, ts.store.Roles().AddManagedRole(ctx, manager.ID, badge.ID))

	actor := ts.seedUser(t, "badger@blender.example", "pw-badger-12345")
	require.NoError(t, ts.store.Users().AddRole(ctx, actor.ID, manager.ID))
	target := ts.seedUser(t, "target@blender.example", "pw-target-12345")

	pair, err := ts.tokens.IssuePrimary(ctx, actor, "", "")
	require.NoError(t, err)

	t.Run("grant then redundant grant", func(t *testing.T) {
		resp, body := ts.postForm(t, "/v1/badger/grant/cloud_demo/target@blender.example", pair.AccessToken, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, "ok", body["result"])

		resp, body = ts.postForm(t, "/v1/badger/grant/cloud_demo/target@blender.example", pair.AccessToken, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, "no-op", body["result"])
	})

	t.Run("revoke then redundant revoke", func(t *testing.T) {
		resp, body := ts.postForm(t, "/v1/badger/revoke/cloud_demo/target@blender.example", pair.AccessToken, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, "ok", body["result"])

		resp, body = ts.postForm(t, "/v1/badger/revoke/cloud_demo/target@blender.example", pair.AccessToken, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, "no-op", body["result"])
	})

	t.Run("unmanaged badge is forbidden", func(t *testing.T) {
		resp, _ := ts.postForm(t, "/v1/badger/grant/other_badge/target@blender.example", pair.AccessToken, nil)
		require.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("unknown target is unprocessable", func(t *testing.T) {
		resp, _ := ts.postForm(t, "/v1/badger/grant/cloud_demo/ghost@blender.example", pair.AccessToken, nil)
		require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	})

	t.Run("requires authentication", func(t *testing.T) {
		resp, _ := ts.postForm(t, "/v1/badger/grant/cloud_demo/target@blender.example", "", nil)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("scope gate runs before the engine", func(t *testing.T) {
		// Plant a token whose scope set lacks "badger". Even a redundant
		// action must bounce at the scope check, leaving no trace.
		opaque, err := cryptox.GenerateToken(cryptox.TokenSize256)
		require.NoError(t, err)
		require.NoError(t, ts.store.AccessTokens().CreateAccessToken(ctx, domain.AccessToken{
			ID:            idx.New().String(),
			TokenHash:     cryptox.FingerprintToken(opaque),
			UserID:        actor.ID,
			ApplicationID: ts.tokens.Application.ID,
			ExpiresAt:     time.Now().Add(time.Hour),
		}))

		resp, _ := ts.postForm(t, "/v1/badger/revoke/cloud_demo/target@blender.example", opaque, nil)
		require.Equal(t, http.StatusForbidden, resp.StatusCode)

		entries, err := ts.store.Audit().ListByTarget(ctx, target.ID)
		require.NoError(t, err)
		require.Len(t, entries, 2) // only the earlier grant and revoke
	})
}

func TestUserInfoEndpoint(t *testing.T) {
	ctx := context.Background()
	ts := newTestServer(t)
	user := ts.seedUser(t, "artist@blender.example", "pw-orange-suzanne")

	public := domain.Role{ID: idx.New().String(), Name: "cloud_subscriber", IsActive: true, IsBadge: true, IsPublic: true}
	hidden := domain.Role{ID: idx.New().String(), Name: "staff", IsActive: true}
	retired := domain.Role{ID: idx.New().String(), Name: "old_badge", IsBadge: true, IsPublic: true}
	for _, role := range []domain.Role{public, hidden, retired} {
		require.NoError(t, ts.store.Roles().CreateRole(ctx, role))
		require.NoError(t, ts.store.Users().AddRole(ctx, user.ID, role.ID))
	}

	pair, err := ts.tokens.IssuePrimary(ctx, user, "", "")
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/v1/userinfo", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		ID       string          `json:"id"`
		Email    string          `json:"email"`
		FullName string          `json:"full_name"`
		Roles    map[string]bool `json:"roles"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, user.ID, body.ID)
	require.Equal(t, user.Email, body.Email)

	// Only active, public roles are exposed.
	require.Equal(t, map[string]bool{"cloud_subscriber": true}, body.Roles)
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{"/livez", "/readyz"} {
		resp, err := ts.Client().Get(ts.URL + path)
		require.NoError(t, err)
		_ = resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}
