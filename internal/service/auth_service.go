package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/pointsheet/pointsheet-api/internal/models"
	appErrors "github.com/pointsheet/pointsheet-api/pkg/errors"
)

type authStaffStore interface {
	FindByEmail(ctx context.Context, email string) (*models.Staff, error)
	ClaimsVersion(ctx context.Context, uid string) (int, error)
}

type claimsVersionCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// AuthConfig defines token issuance parameters.
type AuthConfig struct {
	Secret string
	Expiry time.Duration
	Issuer string
}

const claimsVersionTTL = 5 * time.Minute

// AuthService issues and validates access tokens. Claims are trusted as
// presented except for the claims version, which must match the staff row;
// the synchronizer bumps the stored version when roles or school change,
// which invalidates older tokens within the cache TTL window.
type AuthService struct {
	staff     authStaffStore
	versions  claimsVersionCache
	validator *validator.Validate
	logger    *zap.Logger
	config    AuthConfig
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(staff authStaffStore, versions claimsVersionCache, validate *validator.Validate, logger *zap.Logger, config AuthConfig) *AuthService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Expiry <= 0 {
		config.Expiry = 12 * time.Hour
	}
	return &AuthService{staff: staff, versions: versions, validator: validate, logger: logger, config: config}
}

// IssueToken authenticates a staff member and returns a signed access token.
func (s *AuthService) IssueToken(ctx context.Context, req models.TokenRequest) (*models.TokenResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid token payload")
	}

	staff, err := s.staff.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid email or password")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch staff")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(staff.PasswordHash), []byte(req.Password)); err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid email or password")
	}

	issuedAt := time.Now().UTC()
	expiresAt := issuedAt.Add(s.config.Expiry)
	claims := &models.JWTClaims{
		UID:           staff.UID,
		SchoolID:      staff.SchoolID,
		Roles:         staff.Roles,
		ClaimsVersion: staff.ClaimsVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   staff.UID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.Secret))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign access token")
	}

	return &models.TokenResponse{
		AccessToken: signed,
		ExpiresIn:   int64(s.config.Expiry.Seconds()),
		IssuedAt:    issuedAt,
		Staff: models.StaffInfo{
			UID:      staff.UID,
			Email:    staff.Email,
			FullName: staff.FullName,
			SchoolID: staff.SchoolID,
			Roles:    staff.Roles,
		},
	}, nil
}

// ParseToken parses and validates an access token returning the claims.
func (s *AuthService) ParseToken(tokenString string) (*models.JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.Secret), nil
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}

	if claims.UID == "" || claims.SchoolID == "" || len(claims.Roles) == 0 {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "token claims are incomplete")
	}

	return claims, nil
}

// CheckClaimsVersion rejects tokens minted before the staff member's claims
// were re-issued. The stored version is read through a short-lived cache.
func (s *AuthService) CheckClaimsVersion(ctx context.Context, claims *models.JWTClaims) error {
	current, err := s.currentClaimsVersion(ctx, claims.UID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrUnauthorized, "staff record no longer exists")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify claims version")
	}
	if claims.ClaimsVersion != current {
		return appErrors.Clone(appErrors.ErrUnauthorized, "token claims are stale; sign in again")
	}
	return nil
}

func (s *AuthService) currentClaimsVersion(ctx context.Context, uid string) (int, error) {
	key := claimsVersionKey(uid)
	if s.versions != nil {
		var cached int
		if err := s.versions.Get(ctx, key, &cached); err == nil {
			return cached, nil
		} else if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("claims version cache read failed", zap.String("uid", uid), zap.Error(err))
		}
	}

	current, err := s.staff.ClaimsVersion(ctx, uid)
	if err != nil {
		return 0, err
	}
	if s.versions != nil {
		if err := s.versions.Set(ctx, key, current, claimsVersionTTL); err != nil {
			s.logger.Warn("claims version cache write failed", zap.String("uid", uid), zap.Error(err))
		}
	}
	return current, nil
}

func claimsVersionKey(uid string) string {
	return "claims_version/" + uid
}
