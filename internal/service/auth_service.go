package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/vedran77/consult/internal/domain"
	"github.com/vedran77/consult/internal/repository"
	"github.com/vedran77/consult/pkg/validator"
)

var (
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrHandleTaken  = errors.New("handle already taken")
)

// IdentityClaims carry the verified identity triple. sub is the user id.
type IdentityClaims struct {
	Role    domain.Role `json:"role"`
	Profile string      `json:"profile"`
	jwt.RegisteredClaims
}

// AuthService turns identity tokens into domain identities and registers
// the role profiles those tokens point at. Credential checks belong to the
// identity provider; this only trusts signed claims.
type AuthService struct {
	profiles  repository.ProfileRepository
	jwtSecret []byte
}

func NewAuthService(profiles repository.ProfileRepository, jwtSecret string) *AuthService {
	return &AuthService{
		profiles:  profiles,
		jwtSecret: []byte(jwtSecret),
	}
}

// IssueToken signs ident for ttl.
func (s *AuthService) IssueToken(ident domain.Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := IdentityClaims{
		Role:    ident.Role,
		Profile: ident.ProfileID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   ident.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// VerifyToken checks the signature and expiry and returns the identity.
func (s *AuthService) VerifyToken(tokenStr string) (domain.Identity, error) {
	var claims IdentityClaims
	token, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (any, error) {
		return s.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return domain.Identity{}, ErrInvalidToken
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return domain.Identity{}, ErrInvalidToken
	}
	profileID, err := uuid.Parse(claims.Profile)
	if err != nil || !claims.Role.Valid() {
		return domain.Identity{}, ErrInvalidToken
	}
	return domain.Identity{UserID: userID, Role: claims.Role, ProfileID: profileID}, nil
}

type RegisterProfileInput struct {
	UserID uuid.UUID   `json:"user_id"`
	Role   domain.Role `json:"role"`
	Handle string      `json:"handle"`
}

// RegisterProfile creates the role profile a user acts under.
func (s *AuthService) RegisterProfile(ctx context.Context, input RegisterProfileInput) (*domain.Profile, error) {
	if input.UserID == uuid.Nil {
		return nil, invalid("user_id", "user id is required")
	}
	if !input.Role.Valid() {
		return nil, invalid("role", "role must be seeker or expert")
	}
	if err := firstError(validator.ValidateHandle(input.Handle)); err != nil {
		return nil, err
	}

	p := &domain.Profile{
		ID:        uuid.New(),
		UserID:    input.UserID,
		Role:      input.Role,
		Handle:    strings.TrimSpace(input.Handle),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.profiles.Create(ctx, p); err != nil {
		if isDuplicateError(err) {
			return nil, ErrHandleTaken
		}
		return nil, fmt.Errorf("creating profile: %w: %w", ErrStorage, err)
	}
	return p, nil
}

// isDuplicateError matches unique violations from postgres (23505), mongo
// (E11000) and the memory store.
func isDuplicateError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "23505") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "already exists")
}
