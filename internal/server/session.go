package server

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"

	"github.com/gorilla/securecookie"
)

const sessionCookie = "storefront_session"

// SessionManager issues and reads the signed cart session cookie. The
// session id is the key carts are stored under; signing keeps clients from
// forging their way into another session's cart.
type SessionManager struct {
	sc *securecookie.SecureCookie
}

// NewSessionManager creates a manager from the configured keys. Nil keys
// get ephemeral generated replacements, which invalidates sessions on
// restart but keeps single-instance deployments working without config.
func NewSessionManager(hashKey, blockKey []byte) *SessionManager {
	if len(hashKey) == 0 {
		hashKey = securecookie.GenerateRandomKey(32)
	}
	if len(blockKey) == 0 {
		blockKey = securecookie.GenerateRandomKey(32)
	}
	return &SessionManager{sc: securecookie.New(hashKey, blockKey)}
}

// EnsureSession returns the request's session id, creating and setting a new
// one when the cookie is absent or invalid.
func (s *SessionManager) EnsureSession(w http.ResponseWriter, r *http.Request) (string, error) {
	if sid, ok := s.sessionID(r); ok {
		return sid, nil
	}

	sid := newSessionID()
	encoded, err := s.sc.Encode(sessionCookie, map[string]string{"sid": sid})
	if err != nil {
		return "", err
	}
	http.SetCookie(w, &http.Cookie{
		Name: sessionCookie, Value: encoded, Path: "/",
		HttpOnly: true, SameSite: http.SameSiteLaxMode,
	})
	return sid, nil
}

func (s *SessionManager) sessionID(r *http.Request) (string, bool) {
	c, err := r.Cookie(sessionCookie)
	if err != nil {
		return "", false
	}
	value := map[string]string{}
	if err := s.sc.Decode(sessionCookie, c.Value, &value); err != nil {
		return "", false
	}
	sid := value["sid"]
	if sid == "" {
		return "", false
	}
	return sid, true
}

func newSessionID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "sess_unknown"
	}
	return "sess_" + hex.EncodeToString(b)
}
