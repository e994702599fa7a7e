package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"schedule-service/internal/model"
)

var ErrInvalidClaims = errors.New("invalid identity claims")

// GenerateAccessToken issues an HS256 access token carrying the caller's id and role.
func GenerateAccessToken(secret string, userID uuid.UUID, role model.Role, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub":  userID.String(),
		"role": string(role),
		"exp":  time.Now().Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func ValidateToken(secret, tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, jwt.ErrInvalidKey
}

// IdentityFromClaims reads the caller id from "sub" and the role from "role",
// falling back to the legacy "role_name" claim.
func IdentityFromClaims(claims jwt.MapClaims) (model.Identity, error) {
	sub, ok := claims["sub"].(string)
	if !ok {
		return model.Identity{}, fmt.Errorf("%w: sub missing", ErrInvalidClaims)
	}

	callerID, err := uuid.Parse(sub)
	if err != nil {
		return model.Identity{}, fmt.Errorf("%w: sub is not a uuid", ErrInvalidClaims)
	}

	rawRole, ok := claims["role"].(string)
	if !ok {
		rawRole, ok = claims["role_name"].(string)
	}
	if !ok {
		return model.Identity{}, fmt.Errorf("%w: role missing", ErrInvalidClaims)
	}

	role, ok := model.ParseRole(rawRole)
	if !ok {
		return model.Identity{}, fmt.Errorf("%w: unknown role %q", ErrInvalidClaims, rawRole)
	}

	return model.Identity{CallerID: callerID, Role: role}, nil
}

// Authenticate validates tokenString and extracts the caller identity.
func Authenticate(secret, tokenString string) (model.Identity, error) {
	claims, err := ValidateToken(secret, tokenString)
	if err != nil {
		return model.Identity{}, err
	}
	return IdentityFromClaims(claims)
}
