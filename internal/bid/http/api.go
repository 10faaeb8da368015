// Package http implements the HTTP boundary of the identity service: the
// add-on token endpoints (identify, validate, delete, subclient), the badger
// endpoints, userinfo, and the health/metrics endpoints.
//
// The add-on endpoints speak a legacy status/data JSON envelope that predates
// this implementation and is baked into deployed desktop clients; its shapes
// must be preserved exactly.
package http

import (
	"net/http"

	"github.com/blender-id/bid/pkg/httpx"
)

// statusEnvelope is the legacy add-on response wrapper.
type statusEnvelope struct {
	Status string `json:"status"` // "success" or "fail"
	Data   any    `json:"data,omitempty"`
}

// oauthTokenData is the token pair shape nested in the identify response.
type oauthTokenData struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	Expires      string `json:"expires"`
}

type identifyData struct {
	UserID     string         `json:"user_id"`
	OAuthToken oauthTokenData `json:"oauth_token"`
}

type subclientTokenData struct {
	Token   string `json:"token"`
	Expires string `json:"expires"`
}

// validateResponse is the top-level validate_token success shape. It is not
// wrapped in data; the legacy client reads user and token_expires directly.
type validateResponse struct {
	Status       string       `json:"status"`
	User         userResponse `json:"user"`
	TokenExpires string       `json:"token_expires"`
}

type userResponse struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
}

// badgerResponse is the result marker of the badger endpoints.
type badgerResponse struct {
	Result string `json:"result"`
}

func writeSuccess(w http.ResponseWriter, code int, data any) {
	httpx.WriteJSON(w, code, statusEnvelope{Status: "success", Data: data})
}

func writeFail(w http.ResponseWriter, code int, data any) {
	httpx.WriteJSON(w, code, statusEnvelope{Status: "fail", Data: data})
}

// writeInvalidToken is the uniform validate_token failure: the same body for
// not-found, expired, and subclient-mismatched tokens so callers cannot probe
// which tokens exist.
func writeInvalidToken(w http.ResponseWriter) {
	httpx.WriteJSON(w, http.StatusForbidden, map[string]string{
		"status": "fail",
		"token":  "Token is invalid",
	})
}
