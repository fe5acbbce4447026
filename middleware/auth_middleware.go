// api/middleware/auth_middleware.go
package middleware

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"aurelienallenic/api/models"
	"aurelienallenic/api/session"
)

const sessionKey = "session"

// SessionCookie writes and clears the session cookie.
type SessionCookie struct {
	Name   string
	TTL    time.Duration
	Secure bool
}

// Set writes token with the rolling TTL. Secure cookies are SameSite=None
// so the frontend on another origin can send them.
func (sc SessionCookie) Set(c *gin.Context, token string) {
	if sc.Secure {
		c.SetSameSite(http.SameSiteNoneMode)
	} else {
		c.SetSameSite(http.SameSiteLaxMode)
	}
	c.SetCookie(sc.Name, token, int(sc.TTL/time.Second), "/", "", sc.Secure, true)
}

func (sc SessionCookie) Clear(c *gin.Context) {
	if sc.Secure {
		c.SetSameSite(http.SameSiteNoneMode)
	} else {
		c.SetSameSite(http.SameSiteLaxMode)
	}
	c.SetCookie(sc.Name, "", -1, "/", "", sc.Secure, true)
}

// Sessions loads the session named by the cookie, if any, and refreshes
// the cookie. It never rejects a request.
func Sessions(store *session.Store, cookie SessionCookie, log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(cookie.Name)
		if err != nil || token == "" {
			c.Next()
			return
		}

		data, err := store.Load(c.Request.Context(), token)
		switch {
		case err == nil:
			c.Set(sessionKey, data)
			cookie.Set(c, token)
		case errors.Is(err, session.ErrNoSession):
			cookie.Clear(c)
		default:
			log.WithError(err).Warn("Sessions: failed to load session")
		}
		c.Next()
	}
}

// CurrentSession returns the session loaded for this request.
func CurrentSession(c *gin.Context) (*session.Data, bool) {
	v, ok := c.Get(sessionKey)
	if !ok {
		return nil, false
	}
	data, ok := v.(*session.Data)
	return data, ok && data != nil
}

// SessionToken is the raw cookie value, for logout.
func SessionToken(c *gin.Context, cookie SessionCookie) string {
	token, _ := c.Cookie(cookie.Name)
	return token
}

func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := CurrentSession(c); !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Next()
	}
}

// RequireAdmin answers 401 without a session and 403 for non-admins.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		data, ok := CurrentSession(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		if data.Role != models.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Forbidden: admin access required"})
			return
		}
		c.Next()
	}
}
