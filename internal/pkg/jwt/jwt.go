// Package jwt verifies the bearer tokens issued by the HRIS identity service.
// This service never issues tokens itself.
package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-chi/jwtauth/v5"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

var ErrInvalidClaims = errors.New("token claims are invalid")

// Claims is what handlers need to know about the caller.
type Claims struct {
	UserID    string
	CompanyID *string
	Role      string
}

type Service interface {
	JWTAuth() *jwtauth.JWTAuth
	// Claims extracts the caller from a verified token
	Claims(token jwt.Token) (Claims, error)
}

type JWTService struct {
	tokenAuth *jwtauth.JWTAuth
}

// NewJWTService accepts HS256 tokens signed with secretKey. skew is the
// tolerated clock difference to the issuer.
func NewJWTService(secretKey string, skew time.Duration) Service {
	return &JWTService{
		tokenAuth: jwtauth.New("HS256", []byte(secretKey), nil, jwt.WithAcceptableSkew(skew)),
	}
}

// JWTAuth returns the verifier used by the auth middleware.
func (j *JWTService) JWTAuth() *jwtauth.JWTAuth {
	return j.tokenAuth
}

func (j *JWTService) Claims(token jwt.Token) (Claims, error) {
	if token == nil {
		return Claims{}, ErrInvalidClaims
	}
	if t, ok := token.Get("type"); ok && t != "access" {
		return Claims{}, fmt.Errorf("%w: token type %v", ErrInvalidClaims, t)
	}

	userID, ok := stringClaim(token, "user_id")
	if !ok || userID == "" {
		return Claims{}, fmt.Errorf("%w: missing user_id", ErrInvalidClaims)
	}

	claims := Claims{UserID: userID}
	if companyID, ok := stringClaim(token, "company_id"); ok && companyID != "" {
		claims.CompanyID = &companyID
	}
	claims.Role, _ = stringClaim(token, "role")
	return claims, nil
}

func stringClaim(token jwt.Token, name string) (string, bool) {
	v, ok := token.Get(name)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
