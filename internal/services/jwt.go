package services

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/casevault/reward-service/internal/config"
	"github.com/casevault/reward-service/internal/errs"
)

const (
	RoleAdmin = "admin"

	tokenIssuer = "casevault"
)

type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type JWTService struct {
	secret   []byte
	duration time.Duration
}

func NewJWTService(cfg config.JWTConfig) *JWTService {
	duration := cfg.Duration
	if duration <= 0 {
		duration = 24 * time.Hour
	}
	return &JWTService{secret: []byte(cfg.Secret), duration: duration}
}

func (s *JWTService) Enabled() bool {
	return len(s.secret) > 0
}

func (s *JWTService) GenerateToken(subject, role string) (string, error) {
	if !s.Enabled() {
		return "", errs.New("jwt secret is not configured")
	}

	now := time.Now()
	claims := &Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.duration)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	if !s.Enabled() {
		return nil, errs.Mark(errs.New("jwt secret is not configured"), errs.ErrUnauthorized)
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(tokenIssuer))
	if err != nil {
		return nil, errs.Mark(errs.Wrap(err, "parse token"), errs.ErrUnauthorized)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errs.Mark(errs.New("invalid token"), errs.ErrUnauthorized)
	}

	return claims, nil
}
