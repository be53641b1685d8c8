package auth

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/straye-as/pipeline-api/internal/config"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
	ErrInvalidScope = errors.New("token missing required scope")
)

const jwksRefreshInterval = 24 * time.Hour

// JWTValidator validates portal tokens signed with the shared secret (HS256)
// and Azure AD tokens signed with the tenant's published keys (RS256)
type JWTValidator struct {
	auth    *config.AuthConfig
	azureAd *config.AzureAdConfig
	client  *http.Client

	mu         sync.RWMutex
	publicKeys map[string]*rsa.PublicKey
	lastUpdate time.Time
}

// NewJWTValidator creates a new JWT validator
func NewJWTValidator(authCfg *config.AuthConfig, azureCfg *config.AzureAdConfig) *JWTValidator {
	return &JWTValidator{
		auth:       authCfg,
		azureAd:    azureCfg,
		client:     &http.Client{Timeout: 10 * time.Second},
		publicKeys: make(map[string]*rsa.PublicKey),
	}
}

// ValidateToken validates a JWT token and returns user context. The acting
// role is resolved later by the middleware.
func (v *JWTValidator) ValidateToken(tokenString string) (*UserContext, error) {
	// Parse token without validation first to get header
	token, _, err := new(jwt.Parser).ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	switch token.Method.(type) {
	case *jwt.SigningMethodHMAC:
		return v.validatePortalToken(tokenString)
	case *jwt.SigningMethodRSA:
		return v.validateAzureToken(tokenString, token)
	}
	return nil, fmt.Errorf("%w: unexpected signing method %v", ErrInvalidToken, token.Header["alg"])
}

func (v *JWTValidator) validatePortalToken(tokenString string) (*UserContext, error) {
	if v.auth == nil || v.auth.JWTSecret == "" {
		return nil, fmt.Errorf("%w: portal tokens are not enabled", ErrInvalidToken)
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.auth.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.auth.Issuer))
	}
	if v.auth.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.auth.Audience))
	}

	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(v.auth.JWTSecret), nil
	}, opts...)
	if err != nil {
		return nil, classifyParseError(err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}

	return userFromClaims(claims)
}

func (v *JWTValidator) validateAzureToken(tokenString string, unverified *jwt.Token) (*UserContext, error) {
	if v.azureAd == nil || !v.azureAd.Enabled() {
		return nil, fmt.Errorf("%w: azure ad tokens are not enabled", ErrInvalidToken)
	}

	// Get key ID from header
	kid, ok := unverified.Header["kid"].(string)
	if !ok {
		return nil, fmt.Errorf("%w: missing kid in header", ErrInvalidToken)
	}

	publicKey, err := v.getPublicKey(kid)
	if err != nil {
		return nil, fmt.Errorf("failed to get public key: %w", err)
	}

	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return publicKey, nil
	})
	if err != nil {
		return nil, classifyParseError(err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}

	// Validate audience
	if v.azureAd.ClientId != "" {
		aud, _ := claims.GetAudience()
		validAud := false
		for _, a := range aud {
			if a == v.azureAd.ClientId || strings.Contains(a, v.azureAd.ClientId) {
				validAud = true
				break
			}
		}
		if !validAud {
			return nil, fmt.Errorf("%w: invalid audience", ErrInvalidToken)
		}
	}

	// Validate issuer
	iss, _ := claims.GetIssuer()
	if !strings.Contains(iss, v.azureAd.TenantId) {
		return nil, fmt.Errorf("%w: invalid issuer", ErrInvalidToken)
	}

	// Validate scopes
	if v.azureAd.RequiredScopes != "" {
		if !HasRequiredScope(ExtractScopes(claims), v.azureAd.RequiredScopes) {
			return nil, ErrInvalidScope
		}
	}

	return userFromClaims(claims)
}

func classifyParseError(err error) error {
	if errors.Is(err, jwt.ErrTokenExpired) {
		return ErrExpiredToken
	}
	return fmt.Errorf("%w: %v", ErrInvalidToken, err)
}

func userFromClaims(claims jwt.MapClaims) (*UserContext, error) {
	userCtx := &UserContext{
		DisplayName: extractString(claims, "name", "unique_name", "preferred_username"),
		Email:       extractString(claims, "email", "upn", "unique_name"),
		Roles:       ExtractRoles(claims),
		AuthType:    AuthTypeJWT,
	}

	if oidStr := extractString(claims, "oid", "sub"); oidStr != "" {
		if uid, err := uuid.Parse(oidStr); err == nil {
			userCtx.UserID = uid
		}
	}

	// If no user ID, derive a stable one from email
	if userCtx.UserID == uuid.Nil && userCtx.Email != "" {
		userCtx.UserID = uuid.NewSHA1(uuid.NameSpaceOID, []byte(strings.ToLower(userCtx.Email)))
	}
	if userCtx.UserID == uuid.Nil {
		return nil, fmt.Errorf("%w: token carries no subject", ErrInvalidToken)
	}

	return userCtx, nil
}

// SignPortalToken issues an HS256 token for a portal user. Used by the
// portal's login flow and by tests.
func SignPortalToken(cfg *config.AuthConfig, userID uuid.UUID, name, email string, roles []string, ttl time.Duration) (string, error) {
	if cfg.JWTSecret == "" {
		return "", errors.New("jwt secret not configured")
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   userID.String(),
		"name":  name,
		"email": email,
		"roles": roles,
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
	}
	if cfg.Issuer != "" {
		claims["iss"] = cfg.Issuer
	}
	if cfg.Audience != "" {
		claims["aud"] = cfg.Audience
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.JWTSecret))
}

func (v *JWTValidator) getPublicKey(kid string) (*rsa.PublicKey, error) {
	v.mu.RLock()
	key, exists := v.publicKeys[kid]
	fresh := time.Since(v.lastUpdate) < jwksRefreshInterval
	v.mu.RUnlock()
	if exists && fresh {
		return key, nil
	}

	// Fetch keys from JWKS endpoint
	if err := v.refreshPublicKeys(); err != nil {
		return nil, err
	}

	v.mu.RLock()
	defer v.mu.RUnlock()
	key, exists = v.publicKeys[kid]
	if !exists {
		return nil, fmt.Errorf("public key not found for kid: %s", kid)
	}
	return key, nil
}

func (v *JWTValidator) refreshPublicKeys() error {
	jwksURL := fmt.Sprintf("%s%s/discovery/v2.0/keys", v.azureAd.InstanceUrl, v.azureAd.TenantId)

	resp, err := v.client.Get(jwksURL)
	if err != nil {
		return fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("JWKS endpoint returned status %d", resp.StatusCode)
	}

	var jwks struct {
		Keys []struct {
			Kid string `json:"kid"`
			N   string `json:"n"`
			E   string `json:"e"`
			Kty string `json:"kty"`
			Use string `json:"use"`
		} `json:"keys"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return fmt.Errorf("failed to decode JWKS: %w", err)
	}

	newKeys := make(map[string]*rsa.PublicKey)
	for _, key := range jwks.Keys {
		if key.Kty != "RSA" || key.Use != "sig" {
			continue
		}

		nBytes, err := base64.RawURLEncoding.DecodeString(key.N)
		if err != nil {
			continue
		}
		eBytes, err := base64.RawURLEncoding.DecodeString(key.E)
		if err != nil {
			continue
		}

		e := 0
		for _, b := range eBytes {
			e = e<<8 + int(b)
		}
		newKeys[key.Kid] = &rsa.PublicKey{N: new(big.Int).SetBytes(nBytes), E: e}
	}

	v.mu.Lock()
	v.publicKeys = newKeys
	v.lastUpdate = time.Now()
	v.mu.Unlock()

	return nil
}

func extractString(claims jwt.MapClaims, keys ...string) string {
	for _, key := range keys {
		if val, ok := claims[key]; ok {
			if str, ok := val.(string); ok && str != "" {
				return str
			}
		}
	}
	return ""
}

// ExtractRoles extracts role claims as strings from the "roles" or "role" claim
func ExtractRoles(claims jwt.MapClaims) []string {
	roles := []string{}

	for _, key := range []string{"roles", "role"} {
		if val, ok := claims[key]; ok {
			switch v := val.(type) {
			case []interface{}:
				for _, r := range v {
					if str, ok := r.(string); ok {
						roles = append(roles, str)
					}
				}
			case []string:
				roles = append(roles, v...)
			case string:
				roles = append(roles, v)
			}
		}
	}

	return roles
}

// ExtractScopes extracts scopes from JWT claims
func ExtractScopes(claims jwt.MapClaims) []string {
	scopes := []string{}

	if val, ok := claims["scp"]; ok {
		if str, ok := val.(string); ok {
			scopes = strings.Split(str, " ")
		}
	}

	if val, ok := claims["scope"]; ok {
		if str, ok := val.(string); ok {
			scopes = append(scopes, strings.Split(str, " ")...)
		}
	}

	return scopes
}

// HasRequiredScope checks if token has required scopes
func HasRequiredScope(tokenScopes []string, required string) bool {
	required = strings.TrimSpace(required)
	if required == "" {
		return true
	}

	for _, req := range strings.Split(required, ",") {
		req = strings.TrimSpace(req)
		if req == "" {
			continue
		}
		for _, scope := range tokenScopes {
			if strings.EqualFold(scope, req) {
				return true
			}
		}
	}
	return false
}
