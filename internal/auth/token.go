package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	fbauth "firebase.google.com/go/v4/auth"
	"github.com/golang-jwt/jwt/v4"
)

// FirebaseVerifier checks Firebase ID tokens. *auth.Client satisfies it.
type FirebaseVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*fbauth.Token, error)
}

// Service validates bearer tokens: HS256 JWTs signed with the shared key,
// and Firebase ID tokens when a verifier is configured.
type Service struct {
	signingKey []byte
	issuer     string
	firebase   FirebaseVerifier
}

// Claims represents JWT claims for foodloop tokens.
type Claims struct {
	UserID  string   `json:"uid"`
	Email   string   `json:"email"`
	Roles   []string `json:"roles,omitempty"`
	City    string   `json:"city,omitempty"`
	Pincode string   `json:"pincode,omitempty"`
	Contact string   `json:"contact,omitempty"`
	jwt.RegisteredClaims
}

// NewService creates a token service. firebase may be nil.
func NewService(signingKey, issuer string, firebase FirebaseVerifier) *Service {
	return &Service{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		firebase:   firebase,
	}
}

// GenerateSigningKey generates a secure random signing key
func GenerateSigningKey() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate signing key: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

// GenerateToken signs a token carrying p's profile.
func (s *Service) GenerateToken(p Principal, expiresIn time.Duration) (string, error) {
	if len(s.signingKey) == 0 {
		return "", fmt.Errorf("%w: no signing key configured", ErrInvalidToken)
	}
	now := time.Now()
	claims := Claims{
		UserID:  p.ID,
		Email:   p.Email,
		Roles:   p.Roles,
		City:    p.City,
		Pincode: p.Pincode,
		Contact: p.Contact,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   p.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.signingKey)
}

// ValidateToken validates a foodloop JWT and returns its claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	if len(s.signingKey) == 0 {
		return nil, fmt.Errorf("%w: no signing key configured", ErrInvalidToken)
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.signingKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if s.issuer != "" && claims.Issuer != s.issuer {
		return nil, fmt.Errorf("%w: issuer %q", ErrInvalidToken, claims.Issuer)
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: missing uid", ErrInvalidToken)
	}
	return claims, nil
}

// Verify resolves a raw bearer token to a Principal. Foodloop JWTs are
// tried first, then Firebase ID tokens.
func (s *Service) Verify(ctx context.Context, raw string) (*Principal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrMissingToken
	}
	claims, jwtErr := s.ValidateToken(raw)
	if jwtErr == nil {
		return &Principal{
			ID:      claims.UserID,
			Email:   claims.Email,
			Roles:   claims.Roles,
			City:    claims.City,
			Pincode: claims.Pincode,
			Contact: claims.Contact,
		}, nil
	}
	if s.firebase == nil {
		return nil, jwtErr
	}

	tok, err := s.firebase.VerifyIDToken(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: firebase: %v", ErrInvalidToken, err)
	}
	return principalFromFirebase(tok), nil
}

// principalFromFirebase reads profile fields from custom claims.
func principalFromFirebase(tok *fbauth.Token) *Principal {
	str := func(key string) string {
		v, _ := tok.Claims[key].(string)
		return v
	}
	p := &Principal{
		ID:      tok.UID,
		Email:   str("email"),
		City:    str("city"),
		Pincode: str("pincode"),
		Contact: str("contact"),
	}
	switch roles := tok.Claims["roles"].(type) {
	case []interface{}:
		for _, r := range roles {
			if s, ok := r.(string); ok {
				p.Roles = append(p.Roles, s)
			}
		}
	case string:
		p.Roles = strings.Split(roles, ",")
	}
	return p
}
