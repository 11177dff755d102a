// Package auth guards the report server's admin routes with a login that
// issues a session cookie.
package auth

import (
	"crypto/subtle"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// AdminUser holds the credentials accepted by the login handler.
type AdminUser struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// Configured reports whether both fields are set.
func (u AdminUser) Configured() bool {
	return u.Username != "" && u.Password != ""
}

const (
	sessionCookieName = "admin_session_token"
	defaultSessionTTL = time.Hour
)

// Authenticator checks credentials and tracks issued session tokens.
type Authenticator struct {
	admin AdminUser
	ttl   time.Duration
	now   func() time.Time

	mu       sync.Mutex
	sessions map[string]time.Time
}

// NewAuthenticator warns when the admin credentials are incomplete; logins
// are then refused.
func NewAuthenticator(admin AdminUser, ttl time.Duration) *Authenticator {
	if !admin.Configured() {
		log.Warn().Msg("Admin username or password not set, admin routes will refuse every login")
	}
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &Authenticator{admin: admin, ttl: ttl, now: time.Now, sessions: map[string]time.Time{}}
}

func (a *Authenticator) check(username, password string) bool {
	u := subtle.ConstantTimeCompare([]byte(username), []byte(a.admin.Username))
	p := subtle.ConstantTimeCompare([]byte(password), []byte(a.admin.Password))
	return u&p == 1
}

func (a *Authenticator) issue() string {
	token := uuid.NewString()
	a.mu.Lock()
	defer a.mu.Unlock()
	now := a.now()
	for t, exp := range a.sessions {
		if now.After(exp) {
			delete(a.sessions, t)
		}
	}
	a.sessions[token] = now.Add(a.ttl)
	return token
}

func (a *Authenticator) valid(token string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	exp, ok := a.sessions[token]
	if !ok {
		return false
	}
	if a.now().After(exp) {
		delete(a.sessions, token)
		return false
	}
	return true
}

func (a *Authenticator) revoke(token string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.sessions, token)
}
