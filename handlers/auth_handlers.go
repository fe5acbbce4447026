// api/handlers/auth_handlers.go
package handlers

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"aurelienallenic/api/middleware"
	"aurelienallenic/api/models"
	"aurelienallenic/api/oauth"
	"aurelienallenic/api/session"
	"aurelienallenic/api/store"
	"aurelienallenic/api/utils"
)

const (
	oauthStateCookie = "oauth_state"
	oauthStateTTL    = 10 * time.Minute
)

type AuthHandlers struct {
	Users       store.UserRepository
	Sessions    *session.Store
	Cookie      middleware.SessionCookie
	Google      oauth.Provider
	FrontendURL string
	Log         *logrus.Logger
}

// NewAuthHandlers builds the auth handlers. google may be nil when OAuth is
// not configured; the Google routes then answer 503.
func NewAuthHandlers(users store.UserRepository, sessions *session.Store, cookie middleware.SessionCookie, google oauth.Provider, frontendURL string, log *logrus.Logger) *AuthHandlers {
	return &AuthHandlers{
		Users:       users,
		Sessions:    sessions,
		Cookie:      cookie,
		Google:      google,
		FrontendURL: strings.TrimRight(frontendURL, "/"),
		Log:         log,
	}
}

// Login handles email/password authentication and opens a session.
func (h *AuthHandlers) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email and password are required"})
		return
	}
	email := utils.NormalizeEmail(req.Email)
	password := strings.TrimSpace(req.Password)

	user, err := h.Users.GetUserByEmail(c.Request.Context(), email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		h.Log.WithError(err).Error("Login: failed to load user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	if !user.HasPassword() {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "this account uses Google sign-in"})
		return
	}
	if err := bcrypt.CompareHashAndPassword(user.HashedPassword, []byte(password)); err != nil {
		h.Log.WithField("user_id", user.ID).Info("Login: password mismatch")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	// A password login proves the account is an email account.
	if user.AuthMethod == models.AuthMethodGoogle {
		user.AuthMethod = models.AuthMethodEmail
		if err := h.Users.UpdateUser(c.Request.Context(), user); err != nil {
			h.Log.WithError(err).WithField("user_id", user.ID).Warn("Login: failed to switch auth method")
		}
	}

	if err := h.startSession(c, user); err != nil {
		h.Log.WithError(err).WithField("user_id", user.ID).Error("Login: failed to create session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	h.Log.WithField("user_id", user.ID).Info("User logged in")
	c.JSON(http.StatusOK, gin.H{"message": "Login successful", "user": user.Public()})
}

func (h *AuthHandlers) Logout(c *gin.Context) {
	if token := middleware.SessionToken(c, h.Cookie); token != "" {
		if err := h.Sessions.Destroy(c.Request.Context(), token); err != nil {
			h.Log.WithError(err).Error("Logout: failed to destroy session")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to log out"})
			return
		}
	}
	h.Cookie.Clear(c)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

func (h *AuthHandlers) Check(c *gin.Context) {
	data, ok := middleware.CurrentSession(c)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"isAuthenticated": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"isAuthenticated": true,
		"user": models.PublicUser{
			ID:      data.UserID,
			Email:   data.Email,
			Name:    data.Name,
			Picture: data.Picture,
		},
	})
}

// CreateUser is the admin-only account creation. There is no public signup.
func (h *AuthHandlers) CreateUser(c *gin.Context) {
	var req models.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	email := utils.NormalizeEmail(req.Email)
	if email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email is required"})
		return
	}
	if !utils.IsValidEmail(email) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid email format"})
		return
	}

	method := req.AuthMethod
	if method == "" {
		method = models.AuthMethodEmail
	}
	if method != models.AuthMethodEmail && method != models.AuthMethodGoogle {
		c.JSON(http.StatusBadRequest, gin.H{"error": "authMethod must be email or google"})
		return
	}
	role := req.Role
	if role == "" {
		role = models.RoleUser
	}
	if role != models.RoleUser && role != models.RoleAdmin {
		c.JSON(http.StatusBadRequest, gin.H{"error": "role must be user or admin"})
		return
	}

	password := strings.TrimSpace(req.Password)
	if method == models.AuthMethodEmail && password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Password is required for email accounts"})
		return
	}

	user := &models.User{
		Email:      email,
		Name:       strings.TrimSpace(req.Name),
		AuthMethod: method,
		Role:       role,
	}
	if password != "" {
		hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			h.Log.WithError(err).Error("CreateUser: failed to hash password")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process password"})
			return
		}
		user.HashedPassword = hashed
	}

	if err := h.Users.CreateUser(c.Request.Context(), user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "A user with this email already exists"})
			return
		}
		h.Log.WithError(err).Error("CreateUser: failed to insert user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
		return
	}

	h.Log.WithFields(logrus.Fields{"user_id": user.ID, "role": user.Role}).Info("User created")
	c.JSON(http.StatusCreated, gin.H{
		"message": "User created successfully",
		"user": gin.H{
			"id":         user.ID,
			"email":      user.Email,
			"name":       user.Name,
			"authMethod": user.AuthMethod,
			"role":       user.Role,
		},
	})
}

// GoogleLogin redirects to the consent screen with a fresh state cookie.
func (h *AuthHandlers) GoogleLogin(c *gin.Context) {
	if h.Google == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Google sign-in is not configured"})
		return
	}
	state, err := randomState()
	if err != nil {
		h.Log.WithError(err).Error("GoogleLogin: failed to generate state")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(oauthStateCookie, state, int(oauthStateTTL/time.Second), "/", "", h.Cookie.Secure, true)
	c.Redirect(http.StatusFound, h.Google.AuthCodeURL(state))
}

// GoogleCallback signs in an existing account. Unknown Google users are
// sent back to the login page rather than registered.
func (h *AuthHandlers) GoogleCallback(c *gin.Context) {
	if h.Google == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Google sign-in is not configured"})
		return
	}

	expected, _ := c.Cookie(oauthStateCookie)
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(oauthStateCookie, "", -1, "/", "", h.Cookie.Secure, true)

	state := c.Query("state")
	if c.Query("error") != "" || expected == "" || subtle.ConstantTimeCompare([]byte(state), []byte(expected)) != 1 {
		h.loginRedirect(c, "oauth_failed")
		return
	}

	identity, err := h.Google.Exchange(c.Request.Context(), c.Query("code"))
	if err != nil {
		if errors.Is(err, oauth.ErrNoEmail) {
			h.loginRedirect(c, "no_email")
			return
		}
		h.Log.WithError(err).Warn("GoogleCallback: code exchange failed")
		h.loginRedirect(c, "oauth_failed")
		return
	}

	ctx := c.Request.Context()
	user, err := h.Users.FindByEmailOrGoogleID(ctx, utils.NormalizeEmail(identity.Email), identity.Subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.loginRedirect(c, "account_not_found")
			return
		}
		h.Log.WithError(err).Error("GoogleCallback: failed to load user")
		h.loginRedirect(c, "server_error")
		return
	}

	if linkGoogleAccount(user, identity) {
		if err := h.Users.UpdateUser(ctx, user); err != nil {
			h.Log.WithError(err).WithField("user_id", user.ID).Error("GoogleCallback: failed to update user")
			h.loginRedirect(c, "server_error")
			return
		}
	}

	if err := h.startSession(c, user); err != nil {
		h.Log.WithError(err).WithField("user_id", user.ID).Error("GoogleCallback: failed to create session")
		h.loginRedirect(c, "server_error")
		return
	}

	h.Log.WithField("user_id", user.ID).Info("User logged in with Google")
	c.Redirect(http.StatusFound, h.FrontendURL+"/dashboard?success=logged_in")
}

// linkGoogleAccount applies what the Google profile adds to user and
// reports whether anything changed.
func linkGoogleAccount(user *models.User, id *oauth.Identity) bool {
	changed := false
	if user.GoogleID == nil || *user.GoogleID == "" {
		sub := id.Subject
		user.GoogleID = &sub
		changed = true
	}
	if !user.HasPassword() && user.AuthMethod != models.AuthMethodGoogle {
		user.AuthMethod = models.AuthMethodGoogle
		changed = true
	}
	if user.Name == "" && id.Name != "" {
		user.Name = id.Name
		changed = true
	}
	if user.Picture == "" && id.Picture != "" {
		user.Picture = id.Picture
		changed = true
	}
	return changed
}

func (h *AuthHandlers) startSession(c *gin.Context, user *models.User) error {
	public := user.Public()
	token, err := h.Sessions.Create(c.Request.Context(), session.Data{
		UserID:    user.ID,
		Email:     user.Email,
		Name:      public.Name,
		Picture:   user.Picture,
		Role:      user.Role,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	h.Cookie.Set(c, token)
	return nil
}

func (h *AuthHandlers) loginRedirect(c *gin.Context, code string) {
	c.Redirect(http.StatusFound, h.FrontendURL+"/login?error="+code)
}

func randomState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
