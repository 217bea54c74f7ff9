package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"X402-Registry/pkg/logger"
)

const defaultAccessTTL = 24 * time.Hour

// Service verifies operator bearer tokens for the HTTP surface.
type Service struct {
	mode     Mode
	secret   []byte
	issuer   string
	audience []string
	ttl      time.Duration
	now      func() time.Time
	audit    *slog.Logger
}

type claims struct {
	Permissions []string `json:"perms"`
	jwt.RegisteredClaims
}

// NewService validates the configuration and builds the service.
func NewService(cfg Config) (*Service, error) {
	mode := Mode(strings.ToLower(strings.TrimSpace(string(cfg.Mode))))
	if mode == "" {
		mode = ModeDisabled
	}
	s := &Service{mode: mode, now: time.Now, audit: logger.Audit()}
	switch mode {
	case ModeDisabled:
		return s, nil
	case ModeJWT:
	default:
		return nil, fmt.Errorf("unsupported auth mode %q", cfg.Mode)
	}

	secret := cfg.Secret
	if secret == "" && cfg.SecretEnv != "" {
		secret = os.Getenv(cfg.SecretEnv)
	}
	if len(secret) < 32 {
		return nil, errors.New("jwt secret must be at least 32 bytes")
	}
	s.secret = []byte(secret)
	s.issuer = cfg.Issuer
	if s.issuer == "" {
		s.issuer = "x402-registry"
	}
	s.audience = append([]string(nil), cfg.Audience...)
	s.ttl = time.Duration(cfg.AccessTTLSeconds) * time.Second
	if s.ttl <= 0 {
		s.ttl = defaultAccessTTL
	}
	return s, nil
}

// Mode returns the active authentication mode.
func (s *Service) Mode() Mode {
	if s == nil {
		return ModeDisabled
	}
	return s.mode
}

// Issue signs an access token for an operator.
func (s *Service) Issue(name string, permissions []string) (string, time.Time, error) {
	if s == nil || s.mode != ModeJWT {
		return "", time.Time{}, errors.New("token issuance requires jwt mode")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", time.Time{}, errors.New("operator name is required")
	}
	now := s.now().UTC()
	expires := now.Add(s.ttl)
	c := claims{
		Permissions: append([]string(nil), permissions...),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   name,
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings(s.audience),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return token, expires, nil
}

// AuthenticateRequest validates the Authorization header value.
func (s *Service) AuthenticateRequest(_ context.Context, authorization string) (*Subject, error) {
	if s == nil || s.mode == ModeDisabled {
		return &Subject{Name: "anonymous", Permissions: []string{"*"}}, nil
	}
	authorization = strings.TrimSpace(authorization)
	if authorization == "" {
		return nil, ErrMissingToken
	}
	const prefix = "bearer "
	if len(authorization) <= len(prefix) || !strings.EqualFold(authorization[:len(prefix)], prefix) {
		return nil, ErrInvalidToken
	}
	return s.verify(strings.TrimSpace(authorization[len(prefix):]))
}

func (s *Service) verify(raw string) (*Subject, error) {
	var c claims
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	token, err := parser.ParseWithClaims(raw, &c, func(*jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if !c.VerifyIssuer(s.issuer, true) {
		return nil, ErrInvalidToken
	}
	for _, aud := range s.audience {
		if !c.VerifyAudience(aud, true) {
			return nil, ErrInvalidToken
		}
	}
	if c.Subject == "" {
		return nil, ErrInvalidToken
	}
	return &Subject{Name: c.Subject, Permissions: c.Permissions}, nil
}
