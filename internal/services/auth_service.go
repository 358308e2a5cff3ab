package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	"github.com/Wikid82/warden/internal/config"
	"github.com/Wikid82/warden/internal/logger"
	"github.com/Wikid82/warden/internal/models"
	"github.com/Wikid82/warden/internal/store"
	"github.com/Wikid82/warden/internal/util"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrIPBlocked          = errors.New("ip address blocked")
	ErrInvalidRole        = errors.New("invalid role")
)

// Claims are carried in the bearer tokens issued at login. The subject is
// the user's UUID.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// LoginInput is a credential check together with where it came from.
type LoginInput struct {
	Email     string
	Password  string
	IPAddress string
	UserAgent string
}

// AuthService handles password login and bearer tokens. Failed logins are
// written to the ledger and may trigger a brute-force block of the source.
type AuthService struct {
	users    store.UserRepository
	ledger   *LedgerService
	blocks   *BlockService
	detector *AnomalyDetector
	secret   []byte
	ttl      time.Duration
	now      clock
}

func NewAuthService(users store.UserRepository, ledger *LedgerService, blocks *BlockService, detector *AnomalyDetector, cfg config.SecurityConfig) *AuthService {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &AuthService{
		users:    users,
		ledger:   ledger,
		blocks:   blocks,
		detector: detector,
		secret:   []byte(cfg.JWTSecret),
		ttl:      ttl,
		now:      time.Now,
	}
}

// SetClock overrides the time source.
func (s *AuthService) SetClock(now func() time.Time) { s.now = now }

// Register creates an enabled user with the given role.
func (s *AuthService) Register(ctx context.Context, email, password, name, role string) (*models.User, error) {
	switch role {
	case models.RoleAdmin, models.RoleManager, models.RoleEmployee:
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	u := &models.User{
		Email:   strings.ToLower(strings.TrimSpace(email)),
		Name:    name,
		Role:    role,
		Enabled: true,
	}
	if err := u.SetPassword(password); err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// Login verifies credentials and returns a signed token. Requests from a
// blocked address are refused before the password is checked.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (string, *models.User, error) {
	if identifiableIP(in.IPAddress) && s.blocks != nil {
		blocked, err := s.blocks.IsBlocked(ctx, in.IPAddress)
		if err != nil {
			return "", nil, err
		}
		if blocked {
			return "", nil, ErrIPBlocked
		}
	}

	u, err := s.users.GetByEmail(ctx, in.Email)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return "", nil, fmt.Errorf("lookup user: %w", err)
	}
	if u == nil || !u.Enabled || !u.CheckPassword(in.Password) {
		s.recordFailure(ctx, in)
		return "", nil, ErrInvalidCredentials
	}

	token, err := s.GenerateToken(u)
	if err != nil {
		return "", nil, err
	}
	return token, u, nil
}

func (s *AuthService) recordFailure(ctx context.Context, in LoginInput) {
	log := logger.WithFields(logrus.Fields{
		"email": util.SanitizeForLog(in.Email),
		"ip":    util.SanitizeForLog(in.IPAddress),
	})
	if err := s.ledger.RecordFailedLogin(ctx, in.Email, in.IPAddress, in.UserAgent); err != nil {
		log.WithError(err).Warn("failed to record failed login")
		return
	}
	if s.detector == nil {
		return
	}
	if err := s.detector.DetectBruteForce(ctx, in.IPAddress, ""); err != nil {
		log.WithError(err).Warn("brute force check failed")
	}
}

// GenerateToken signs a token for u.
func (s *AuthService) GenerateToken(u *models.User) (string, error) {
	now := s.now()
	claims := Claims{
		Role: u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.UUID,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and verifies a bearer token.
func (s *AuthService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
