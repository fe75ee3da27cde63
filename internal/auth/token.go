// ABOUTME: JWT token verification for authenticating WebSocket clients
// ABOUTME: Uses HS256 signing with configurable secret

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
)

// Claims identifies an authenticated live client. Staff tokens carry a
// department; guest tokens carry the guest's channel address. Exactly one of
// the two is expected.
type Claims struct {
	Subject      string
	Department   string
	GuestAddress string
}

// Staff reports whether the token belongs to a staff member
func (c *Claims) Staff() bool {
	return c.Department != ""
}

// TokenVerifier defines the interface for token verification
type TokenVerifier interface {
	Verify(tokenString string) (*Claims, error)
}

// JWTVerifier implements TokenVerifier using HS256 signed JWTs
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier creates a new JWT verifier with the given secret
func NewJWTVerifier(secret []byte) *JWTVerifier {
	return &JWTVerifier{secret: secret}
}

// Verify validates the token and extracts the identity claims
func (v *JWTVerifier) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		// Validate the signing method is HS256
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})

	if err != nil {
		// Check if it's specifically an expiration error
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return nil, ErrInvalidToken
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	sub, ok := mapClaims["sub"].(string)
	if !ok || sub == "" {
		return nil, fmt.Errorf("%w: sub", ErrMissingClaim)
	}

	claims := &Claims{Subject: sub}
	if dept, ok := mapClaims["dept"].(string); ok {
		claims.Department = dept
	}
	if addr, ok := mapClaims["addr"].(string); ok {
		claims.GuestAddress = addr
	}
	if claims.Department == "" && claims.GuestAddress == "" {
		return nil, fmt.Errorf("%w: dept or addr", ErrMissingClaim)
	}

	return claims, nil
}

// GenerateStaff creates a token for a staff member scoped to a department
func (v *JWTVerifier) GenerateStaff(subject, department string, expiresIn time.Duration) (string, error) {
	return v.generate(jwt.MapClaims{"sub": subject, "dept": department}, expiresIn)
}

// GenerateGuest creates a token for a guest's own live connection
func (v *JWTVerifier) GenerateGuest(subject, address string, expiresIn time.Duration) (string, error) {
	return v.generate(jwt.MapClaims{"sub": subject, "addr": address}, expiresIn)
}

func (v *JWTVerifier) generate(claims jwt.MapClaims, expiresIn time.Duration) (string, error) {
	now := time.Now()
	claims["iat"] = now.Unix()
	claims["exp"] = now.Add(expiresIn).Unix()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}
