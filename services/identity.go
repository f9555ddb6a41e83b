package services

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/Dosada05/club-events/models"
)

const (
	DefaultTokenTTL = 24 * time.Hour

	claimUsername = "username"
	claimRole     = "role"
)

// Principal is the authenticated caller.
type Principal struct {
	Username string
	Role     models.MemberRole
}

func (p Principal) IsAdmin() bool {
	return p.Role == models.RoleAdmin
}

// Identity turns bearer tokens into principals and back.
type Identity interface {
	Authenticate(token string) (Principal, error)
	Issue(p Principal) (string, error)
}

// JWTIdentity issues and verifies HS256 tokens.
type JWTIdentity struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewJWTIdentity(secret string, ttl time.Duration) *JWTIdentity {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &JWTIdentity{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (i *JWTIdentity) Issue(p Principal) (string, error) {
	now := i.now()
	claims := jwt.MapClaims{
		claimUsername: p.Username,
		claimRole:     string(p.Role),
		"exp":         now.Add(i.ttl).Unix(),
		"iat":         now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func (i *JWTIdentity) Authenticate(tokenString string) (Principal, error) {
	if tokenString == "" {
		return Principal{}, ErrAuthenticationFailed
	}

	parser := jwt.Parser{ValidMethods: []string{jwt.SigningMethodHS256.Alg()}}
	claims := jwt.MapClaims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return i.secret, nil
	})
	if err != nil || !token.Valid {
		return Principal{}, fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}
	if !claims.VerifyExpiresAt(i.now().Unix(), true) {
		return Principal{}, fmt.Errorf("%w: token expired", ErrAuthenticationFailed)
	}

	username, _ := claims[claimUsername].(string)
	role, _ := claims[claimRole].(string)
	if username == "" {
		return Principal{}, fmt.Errorf("%w: missing %q claim", ErrAuthenticationFailed, claimUsername)
	}
	if !models.MemberRole(role).Valid() {
		return Principal{}, fmt.Errorf("%w: invalid role %q", ErrAuthenticationFailed, role)
	}
	return Principal{Username: username, Role: models.MemberRole(role)}, nil
}
