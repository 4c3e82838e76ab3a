package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/zhouzirui/apt-chat/backend/internal/config"
	"github.com/zhouzirui/apt-chat/backend/pkg/utils"
)

const authRealm = `Basic realm="Login Required"`

// BasicAuth guards admin routes with the shared admin credential. When the
// configured password looks like a bcrypt hash it is compared as one.
func BasicAuth(cfg config.AuthConfig) func(http.Handler) http.Handler {
	hashed := strings.HasPrefix(cfg.Password, "$2")

	check := func(username, password string) bool {
		userOK := subtle.ConstantTimeCompare([]byte(username), []byte(cfg.Username)) == 1
		var passOK bool
		if hashed {
			passOK = bcrypt.CompareHashAndPassword([]byte(cfg.Password), []byte(password)) == nil
		} else {
			passOK = subtle.ConstantTimeCompare([]byte(password), []byte(cfg.Password)) == 1
		}
		return userOK && passOK
	}

	return func(next http.Handler) http.Handler {
		if !cfg.Enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			username, password, ok := r.BasicAuth()
			if !ok || !check(username, password) {
				w.Header().Set("WWW-Authenticate", authRealm)
				utils.RespondError(w, http.StatusUnauthorized, "Authentication required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
