// Package auth provides authentication (API key and JWT), the role
// hierarchy, and the tool permission matrix.
package auth

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"

	"github.com/ragforge/rag-mcp/internal/cache"
	"github.com/ragforge/rag-mcp/internal/observability"
	"github.com/ragforge/rag-mcp/internal/reqcontext"
)

// Common authentication errors, mapped by the middleware pipeline onto
// apperrors.KindAuthentication.
var (
	ErrNoCredential  = errors.New("auth: no credential provided")
	ErrInvalidAPIKey = errors.New("auth: invalid or expired api key")
	ErrInvalidToken  = errors.New("auth: invalid or expired token")
)

// Identity is the authenticated principal produced by ValidateAPIKey or
// ValidateJWT, before tenant-extraction enriches it into a full
// reqcontext.RequestContext.
type Identity struct {
	UserID     string
	TenantID   string
	Role       reqcontext.Role
	Email      string
	AuthMethod reqcontext.AuthMethod
}

// Claims is the JWT payload issued by GenerateJWT and consumed by
// ValidateJWT.
type Claims struct {
	jwt.RegisteredClaims
	UserID   string `json:"user_id"`
	TenantID string `json:"tenant_id"`
	Role     string `json:"role"`
	Email    string `json:"email,omitempty"`
}

// ServiceConfig configures the Service.
type ServiceConfig struct {
	JWTSecret     string
	JWTExpiration time.Duration
	CacheTTL      time.Duration
}

// DefaultServiceConfig returns sane production defaults.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		JWTExpiration: 24 * time.Hour,
		CacheTTL:      5 * time.Minute,
	}
}

// Service authenticates MCP callers against API keys (stored hashed in
// Postgres) and JWTs.
type Service struct {
	config ServiceConfig
	db     *sqlx.DB
	cache  cache.Cache
	logger observability.Logger
}

// NewService constructs an authentication Service. cache may be nil to
// disable the API-key validation cache.
func NewService(config ServiceConfig, db *sqlx.DB, c cache.Cache, logger observability.Logger) *Service {
	if config.JWTExpiration == 0 {
		config.JWTExpiration = DefaultServiceConfig().JWTExpiration
	}
	if config.CacheTTL == 0 {
		config.CacheTTL = DefaultServiceConfig().CacheTTL
	}
	return &Service{config: config, db: db, cache: c, logger: logger}
}

// ValidateAPIKey hashes rawKey and looks it up in mcp.tenant_api_keys,
// trying the cache first to avoid a database round trip on every call.
func (s *Service) ValidateAPIKey(ctx context.Context, rawKey string) (*Identity, error) {
	if rawKey == "" {
		return nil, ErrNoCredential
	}

	keyHash := hashAPIKey(rawKey)
	cacheKey := "auth:apikey:" + keyHash

	if s.cache != nil {
		var cached Identity
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			cached.AuthMethod = reqcontext.AuthMethodAPIKey
			return &cached, nil
		}
	}

	if s.db == nil {
		return nil, ErrInvalidAPIKey
	}

	var row struct {
		KeyID     string     `db:"key_id"`
		TenantID  string     `db:"tenant_id"`
		UserID    *string    `db:"user_id"`
		Role      string     `db:"role"`
		ExpiresAt *time.Time `db:"expires_at"`
	}
	const query = `
		SELECT k.key_id, k.tenant_id, u.user_id, u.role, k.expires_at
		FROM mcp.tenant_api_keys k
		LEFT JOIN mcp.users u ON u.user_id = k.user_id
		WHERE k.key_hash = $1
	`
	if err := s.db.GetContext(ctx, &row, query, keyHash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidAPIKey
		}
		return nil, fmt.Errorf("auth: api key lookup: %w", err)
	}
	if row.ExpiresAt != nil && time.Now().After(*row.ExpiresAt) {
		return nil, ErrInvalidAPIKey
	}

	role, err := ParseRole(row.Role)
	if err != nil {
		role = reqcontext.RoleEndUser
	}
	userID := ""
	if row.UserID != nil {
		userID = *row.UserID
	}

	identity := &Identity{
		UserID:     userID,
		TenantID:   row.TenantID,
		Role:       role,
		AuthMethod: reqcontext.AuthMethodAPIKey,
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, identity, s.config.CacheTTL); err != nil {
			s.logger.Warn("failed to cache api key validation", map[string]interface{}{"error": err.Error()})
		}
	}

	go s.touchLastUsed(keyHash)

	return identity, nil
}

func (s *Service) touchLastUsed(keyHash string) {
	if s.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	const query = `UPDATE mcp.tenant_api_keys SET last_used_at = $1 WHERE key_hash = $2`
	if _, err := s.db.ExecContext(ctx, query, time.Now(), keyHash); err != nil {
		s.logger.Warn("failed to update api key last_used_at", map[string]interface{}{"error": err.Error()})
	}
}

// ValidateJWT parses and verifies tokenString, returning the Identity
// encoded in its claims.
func (s *Service) ValidateJWT(ctx context.Context, tokenString string) (*Identity, error) {
	if tokenString == "" || s.config.JWTSecret == "" {
		return nil, ErrInvalidToken
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("auth: unexpected signing method %v", t.Header["alg"])
		}
		return []byte(s.config.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, ErrInvalidToken
	}

	role, err := ParseRole(claims.Role)
	if err != nil {
		return nil, ErrInvalidToken
	}

	return &Identity{
		UserID:     claims.UserID,
		TenantID:   claims.TenantID,
		Role:       role,
		Email:      claims.Email,
		AuthMethod: reqcontext.AuthMethodJWT,
	}, nil
}

// GenerateJWT issues a signed token for identity. The tenant
// registration flow does not call it; it hands back an API key instead.
func (s *Service) GenerateJWT(identity Identity) (string, error) {
	if s.config.JWTSecret == "" {
		return "", errors.New("auth: jwt secret not configured")
	}
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.JWTExpiration)),
		},
		UserID:   identity.UserID,
		TenantID: identity.TenantID,
		Role:     string(identity.Role),
		Email:    identity.Email,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.config.JWTSecret))
}

// hashAPIKey produces the stored, lookup-safe form of a raw API key.
// Unlike passwords, API keys are high-entropy random tokens, so a fast
// deterministic hash is appropriate here and is what permits an
// indexed equality lookup instead of a full-table bcrypt comparison.
func hashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// HashAPIKey exposes the same hash hashAPIKey uses internally, so the
// tenant-registration flow that issues a caller's first key hashes it
// identically to how ValidateAPIKey will later look it up.
func HashAPIKey(raw string) string {
	return hashAPIKey(raw)
}

// HashPassword bcrypt-hashes a human-chosen password, as opposed to
// machine API keys, which HashAPIKey hashes. No code in this module
// calls it.
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("auth: hash password: %w", err)
	}
	return string(bytes), nil
}

// VerifyPassword reports whether password matches hash.
func VerifyPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
