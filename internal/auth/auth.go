package auth

import (
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAuthDisabled       = errors.New("authentication is disabled")
)

// Config holds authentication settings
type Config struct {
	Username string
	// Password is either a bcrypt hash or a plaintext value that gets
	// hashed at startup. Empty disables authentication.
	Password    string
	JWTSecret   string
	TokenExpiry time.Duration
}

// Authenticator handles user authentication
type Authenticator struct {
	enabled      bool
	username     string
	passwordHash []byte
	jwtManager   *JWTManager
}

// NewAuthenticator creates an authenticator from config
func NewAuthenticator(cfg Config) *Authenticator {
	username := cfg.Username
	if username == "" {
		username = "admin"
	}

	var passwordHash []byte
	enabled := cfg.Password != ""
	if enabled {
		// A 60-byte value starting with '$' is already a bcrypt hash
		if len(cfg.Password) == 60 && cfg.Password[0] == '$' {
			passwordHash = []byte(cfg.Password)
		} else {
			hash, err := bcrypt.GenerateFromPassword([]byte(cfg.Password), bcrypt.DefaultCost)
			if err == nil {
				passwordHash = hash
			}
		}
	}

	return &Authenticator{
		enabled:      enabled,
		username:     username,
		passwordHash: passwordHash,
		jwtManager:   NewJWTManager(cfg.JWTSecret, cfg.TokenExpiry),
	}
}

// IsEnabled returns whether authentication is enabled
func (a *Authenticator) IsEnabled() bool {
	return a.enabled
}

// Authenticate validates credentials and returns a JWT token with its
// unix expiry
func (a *Authenticator) Authenticate(username, password string) (string, int64, error) {
	if !a.enabled {
		return "", 0, ErrAuthDisabled
	}
	if username != a.username {
		return "", 0, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password)); err != nil {
		return "", 0, ErrInvalidCredentials
	}

	token, expiresAt, err := a.jwtManager.GenerateToken(username)
	if err != nil {
		return "", 0, err
	}
	return token, expiresAt.Unix(), nil
}

// ValidateToken validates a JWT token and returns its claims
func (a *Authenticator) ValidateToken(tokenString string) (*Claims, error) {
	return a.jwtManager.ValidateToken(tokenString)
}
