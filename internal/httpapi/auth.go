package httpapi

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/claude-relay/internal/oauth"
)

const authorizeURLBase = "https://console.anthropic.com/oauth/authorize"

// handleOAuthStart begins the PKCE authorize-code flow: it mints a
// session id and a verifier and returns the URL the operator's browser
// should visit. The PKCE dance itself happens in that browser, against
// the developer console — this endpoint only prepares for the
// callback.
func (s *Server) handleOAuthStart(w http.ResponseWriter, r *http.Request) {
	sessionID := uuid.NewString()
	verifier, err := randomVerifier()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"success": false, "error": "failed to generate verifier",
		})
		return
	}

	authURL := authorizeURLBase + "?client_id=" + oauth.DefaultClientID() +
		"&response_type=code&code_challenge=" + verifier + "&code_challenge_method=plain" +
		"&state=" + sessionID

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"authUrl":   authURL,
		"sessionId": sessionID,
	})
}

type oauthCallbackBody struct {
	Code string `json:"code"`
}

// handleOAuthCallback splits the pasted-back code on '#': the portion
// after '#' is the PKCE verifier, per the developer console's
// convention for this flow.
func (s *Server) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	var body oauthCallbackBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Code == "" {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success": false, "error": "missing code",
		})
		return
	}

	code, verifier, _ := strings.Cut(body.Code, "#")
	if err := s.OAuth.ExchangeCode(r.Context(), code, verifier); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success": false, "error": err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// handleLoginStart runs the same exchange as the callback endpoint but
// under the device-flow naming the CLI's `login` command also targets.
func (s *Server) handleLoginStart(w http.ResponseWriter, r *http.Request) {
	s.handleOAuthCallback(w, r)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.OAuth.Logout(r.Context()); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"success": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (s *Server) handleAuthStatus(w http.ResponseWriter, r *http.Request) {
	_, ok := s.OAuth.AccessToken(r.Context())
	writeJSON(w, http.StatusOK, map[string]interface{}{"authenticated": ok})
}

func randomVerifier() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
