package usecase

import (
	"crypto/subtle"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// AdminAuthService guards the admin maintenance endpoints with a single shared password.
// Password may be a bcrypt hash.
type AdminAuthService struct {
	Password  string
	JWTSecret string
	TTL       time.Duration
	Now       func() time.Time
}

func (s *AdminAuthService) Enabled() bool {
	return s.Password != "" && s.JWTSecret != ""
}

func (s *AdminAuthService) Login(password string) (string, time.Time, error) {
	if !s.Enabled() || !s.checkPassword(password) {
		return "", time.Time{}, ErrUnauthorized
	}
	ttl := s.TTL
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	exp := s.now().Add(ttl)
	claims := jwt.MapClaims{
		"role": "admin",
		"iat":  s.now().Unix(),
		"exp":  exp.Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString([]byte(s.JWTSecret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

func (s *AdminAuthService) Verify(token string) error {
	if !s.Enabled() {
		return ErrUnauthorized
	}
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		return []byte(s.JWTSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil || !parsed.Valid {
		return ErrUnauthorized
	}
	m, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return ErrUnauthorized
	}
	if role, _ := m["role"].(string); role != "admin" {
		return ErrUnauthorized
	}
	return nil
}

func (s *AdminAuthService) checkPassword(password string) bool {
	if strings.HasPrefix(s.Password, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(s.Password), []byte(password)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(s.Password), []byte(password)) == 1
}

func (s *AdminAuthService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
