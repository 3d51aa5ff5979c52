package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/pointsheet/pointsheet-api/internal/models"
	appErrors "github.com/pointsheet/pointsheet-api/pkg/errors"
)

type mockAuthStaffStore struct {
	staff              *models.Staff
	findErr            error
	versionErr         error
	claimsVersionCalls int
}

func (m *mockAuthStaffStore) FindByEmail(ctx context.Context, email string) (*models.Staff, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	if m.staff == nil || m.staff.Email != email {
		return nil, sql.ErrNoRows
	}
	return m.staff, nil
}

func (m *mockAuthStaffStore) ClaimsVersion(ctx context.Context, uid string) (int, error) {
	m.claimsVersionCalls++
	if m.versionErr != nil {
		return 0, m.versionErr
	}
	if m.staff == nil || m.staff.UID != uid {
		return 0, sql.ErrNoRows
	}
	return m.staff.ClaimsVersion, nil
}

type mockVersionCache struct {
	values map[string]int
	sets   int
}

func (m *mockVersionCache) Get(ctx context.Context, key string, dest interface{}) error {
	v, ok := m.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	if out, ok := dest.(*int); ok {
		*out = v
	}
	return nil
}

func (m *mockVersionCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if m.values == nil {
		m.values = make(map[string]int)
	}
	if v, ok := value.(int); ok {
		m.values[key] = v
	}
	m.sets++
	return nil
}

func authTestStaff(t *testing.T) *models.Staff {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.MinCost)
	require.NoError(t, err)
	return &models.Staff{
		UID:           "staff-1",
		SchoolID:      "school-1",
		Email:         "teacher@example.com",
		FullName:      "Dana Whitfield",
		PasswordHash:  string(hash),
		Roles:         models.RoleList{models.RoleTeacher},
		ClaimsVersion: 3,
	}
}

func TestAuthServiceIssueTokenSuccess(t *testing.T) {
	repo := &mockAuthStaffStore{staff: authTestStaff(t)}
	svc := NewAuthService(repo, nil, nil, nil, AuthConfig{Secret: "secret", Expiry: time.Hour, Issuer: "pointsheet"})

	res, err := svc.IssueToken(context.Background(), models.TokenRequest{Email: "teacher@example.com", Password: "correct-horse"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.EqualValues(t, 3600, res.ExpiresIn)
	assert.Equal(t, "staff-1", res.Staff.UID)
	assert.Equal(t, "school-1", res.Staff.SchoolID)

	claims, err := svc.ParseToken(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "staff-1", claims.UID)
	assert.Equal(t, "school-1", claims.SchoolID)
	assert.Equal(t, models.RoleList{models.RoleTeacher}, claims.Roles)
	assert.Equal(t, 3, claims.ClaimsVersion)
}

func TestAuthServiceIssueTokenWrongPassword(t *testing.T) {
	repo := &mockAuthStaffStore{staff: authTestStaff(t)}
	svc := NewAuthService(repo, nil, nil, nil, AuthConfig{Secret: "secret", Expiry: time.Hour})

	_, err := svc.IssueToken(context.Background(), models.TokenRequest{Email: "teacher@example.com", Password: "wrong"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceIssueTokenUnknownEmail(t *testing.T) {
	repo := &mockAuthStaffStore{}
	svc := NewAuthService(repo, nil, nil, nil, AuthConfig{Secret: "secret", Expiry: time.Hour})

	_, err := svc.IssueToken(context.Background(), models.TokenRequest{Email: "nobody@example.com", Password: "whatever"})
	require.Error(t, err)
	// Unknown email and wrong password are indistinguishable to the caller.
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	repo := &mockAuthStaffStore{staff: authTestStaff(t)}
	issuer := NewAuthService(repo, nil, nil, nil, AuthConfig{Secret: "secret-a", Expiry: time.Hour})
	verifier := NewAuthService(repo, nil, nil, nil, AuthConfig{Secret: "secret-b", Expiry: time.Hour})

	res, err := issuer.IssueToken(context.Background(), models.TokenRequest{Email: "teacher@example.com", Password: "correct-horse"})
	require.NoError(t, err)

	_, err = verifier.ParseToken(res.AccessToken)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestParseTokenRejectsExpired(t *testing.T) {
	svc := NewAuthService(&mockAuthStaffStore{}, nil, nil, nil, AuthConfig{Secret: "secret", Expiry: time.Hour})

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, &models.JWTClaims{
		UID:      "staff-1",
		SchoolID: "school-1",
		Roles:    models.RoleList{models.RoleTeacher},
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
		},
	})
	signed, err := expired.SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = svc.ParseToken(signed)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestParseTokenRejectsIncompleteClaims(t *testing.T) {
	svc := NewAuthService(&mockAuthStaffStore{}, nil, nil, nil, AuthConfig{Secret: "secret", Expiry: time.Hour})

	bare := jwt.NewWithClaims(jwt.SigningMethodHS256, &models.JWTClaims{
		UID: "staff-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := bare.SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = svc.ParseToken(signed)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestCheckClaimsVersionCurrent(t *testing.T) {
	repo := &mockAuthStaffStore{staff: authTestStaff(t)}
	svc := NewAuthService(repo, nil, nil, nil, AuthConfig{Secret: "secret", Expiry: time.Hour})

	err := svc.CheckClaimsVersion(context.Background(), &models.JWTClaims{UID: "staff-1", ClaimsVersion: 3})
	require.NoError(t, err)
}

func TestCheckClaimsVersionStale(t *testing.T) {
	staff := authTestStaff(t)
	staff.ClaimsVersion = 4
	repo := &mockAuthStaffStore{staff: staff}
	svc := NewAuthService(repo, nil, nil, nil, AuthConfig{Secret: "secret", Expiry: time.Hour})

	err := svc.CheckClaimsVersion(context.Background(), &models.JWTClaims{UID: "staff-1", ClaimsVersion: 3})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestCheckClaimsVersionStaffGone(t *testing.T) {
	repo := &mockAuthStaffStore{}
	svc := NewAuthService(repo, nil, nil, nil, AuthConfig{Secret: "secret", Expiry: time.Hour})

	err := svc.CheckClaimsVersion(context.Background(), &models.JWTClaims{UID: "ghost", ClaimsVersion: 1})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestCheckClaimsVersionCachesLookup(t *testing.T) {
	repo := &mockAuthStaffStore{staff: authTestStaff(t)}
	cache := &mockVersionCache{}
	svc := NewAuthService(repo, cache, nil, nil, AuthConfig{Secret: "secret", Expiry: time.Hour})
	claims := &models.JWTClaims{UID: "staff-1", ClaimsVersion: 3}

	require.NoError(t, svc.CheckClaimsVersion(context.Background(), claims))
	require.NoError(t, svc.CheckClaimsVersion(context.Background(), claims))

	// The second check is served from the cache.
	assert.Equal(t, 1, repo.claimsVersionCalls)
	assert.Equal(t, 1, cache.sets)
}
