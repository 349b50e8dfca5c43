package auth

import (
	"encoding/json"
	"net/http"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/artl-app/artl-service/internal/logging"
	"github.com/artl-app/artl-service/internal/models"
)

// LoginRequest represents the login request body
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse represents the successful login response
type LoginResponse struct {
	Token     string    `json:"token"`
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Hash compared when the user does not exist, so unknown and known users
// take the same time.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("artl-dummy-password"), bcrypt.DefaultCost)

// Authenticator checks credentials against the configured users
type Authenticator struct {
	users  map[string][]byte
	logger *logging.Logger
}

// NewAuthenticator indexes users by name
func NewAuthenticator(users []models.UserConfig) *Authenticator {
	a := &Authenticator{
		users:  make(map[string][]byte, len(users)),
		logger: logging.NewLogger("Auth"),
	}
	for _, u := range users {
		a.users[u.Username] = []byte(u.PasswordHash)
	}
	return a
}

// HashPassword returns the bcrypt hash to put in the configuration
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(hash), err
}

// Verify reports whether the password matches the user's hash
func (a *Authenticator) Verify(username, password string) bool {
	hash, ok := a.users[username]
	if !ok {
		bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return false
	}
	return bcrypt.CompareHashAndPassword(hash, []byte(password)) == nil
}

// LoginHandler handles user authentication
func (a *Authenticator) LoginHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}

	if req.Username == "" || req.Password == "" {
		http.Error(w, `{"error":"username and password are required"}`, http.StatusBadRequest)
		return
	}

	if !a.Verify(req.Username, req.Password) {
		a.logger.Warn("failed login", "username", req.Username, "remote", r.RemoteAddr)
		http.Error(w, `{"error":"invalid credentials"}`, http.StatusUnauthorized)
		return
	}

	token, expires, err := GenerateToken(req.Username)
	if err != nil {
		http.Error(w, `{"error":"failed to generate token"}`, http.StatusInternalServerError)
		return
	}

	a.logger.Info("login", "username", req.Username)
	json.NewEncoder(w).Encode(LoginResponse{
		Token:     token,
		Username:  req.Username,
		ExpiresAt: expires,
	})
}
