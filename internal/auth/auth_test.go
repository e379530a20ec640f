package auth

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sujalbistaa/classhub/internal/models"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}))
	return NewService(db, "test-secret")
}

func register(t *testing.T, s *Service, email string) *models.User {
	t.Helper()
	user, err := s.Register(RegisterInput{
		Name:     "Nina",
		Email:    email,
		Password: "hunter2hunter2",
	})
	require.NoError(t, err)
	return user
}

func TestRegisterCreatesPendingAccount(t *testing.T) {
	s := newTestService(t)

	user := register(t, s, "nina@example.com")

	assert.Equal(t, models.StatusPending, user.RegistrationStatus)
	assert.Equal(t, models.RoleMember, user.Role)
	require.NotNil(t, user.RegistrationToken)
	assert.NotEqual(t, "hunter2hunter2", user.Password, "password must be hashed")
}

func TestRegisterDuplicateEmail(t *testing.T) {
	s := newTestService(t)
	register(t, s, "nina@example.com")

	_, err := s.Register(RegisterInput{Name: "Other", Email: "nina@example.com", Password: "hunter2hunter2"})
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestLoginBlockedUntilApproved(t *testing.T) {
	s := newTestService(t)
	user := register(t, s, "nina@example.com")

	_, _, err := s.Login("nina@example.com", "hunter2hunter2", "1.2.3.4")
	assert.ErrorIs(t, err, ErrNotApproved)

	approved, err := s.Approve(*user.RegistrationToken)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, approved.RegistrationStatus)
	assert.NotNil(t, approved.ApprovedAt)

	token, loggedIn, err := s.Login("nina@example.com", "hunter2hunter2", "1.2.3.4")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, user.ID, loggedIn.ID)
}

func TestApproveClearsRegistrationToken(t *testing.T) {
	s := newTestService(t)
	user := register(t, s, "nina@example.com")
	token := *user.RegistrationToken

	_, err := s.Approve(token)
	require.NoError(t, err)

	// the token is single-use
	_, err = s.Approve(token)
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestRejectBlocksLogin(t *testing.T) {
	s := newTestService(t)
	user := register(t, s, "nina@example.com")

	rejected, err := s.Reject(*user.RegistrationToken, "not a classmate")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, rejected.RegistrationStatus)

	_, _, err = s.Login("nina@example.com", "hunter2hunter2", "1.2.3.4")
	assert.ErrorIs(t, err, ErrNotApproved)

	var stored models.User
	require.NoError(t, s.db.First(&stored, user.ID).Error)
	require.NotNil(t, stored.RejectionReason)
	assert.Equal(t, "not a classmate", *stored.RejectionReason)
}

func TestLoginInvalidCredentials(t *testing.T) {
	s := newTestService(t)
	user := register(t, s, "nina@example.com")
	_, err := s.Approve(*user.RegistrationToken)
	require.NoError(t, err)

	_, _, err = s.Login("nina@example.com", "wrong-password", "1.2.3.4")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = s.Login("nobody@example.com", "hunter2hunter2", "1.2.3.4")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestApproveUnknownToken(t *testing.T) {
	s := newTestService(t)
	_, err := s.Approve("no-such-token")
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestTokenRoundTrip(t *testing.T) {
	s := newTestService(t)
	user := register(t, s, "nina@example.com")
	_, err := s.Approve(*user.RegistrationToken)
	require.NoError(t, err)

	token, _, err := s.Login("nina@example.com", "hunter2hunter2", "1.2.3.4")
	require.NoError(t, err)

	claims, err := s.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, "nina@example.com", claims.Email)
	assert.Equal(t, models.RoleMember, claims.Role)
	assert.False(t, claims.IsAdmin())
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	s := newTestService(t)
	user := register(t, s, "nina@example.com")
	_, err := s.Approve(*user.RegistrationToken)
	require.NoError(t, err)
	token, _, err := s.Login("nina@example.com", "hunter2hunter2", "1.2.3.4")
	require.NoError(t, err)

	other := NewService(s.db, "different-secret")
	_, err = other.ParseToken(token)
	assert.Error(t, err)

	_, err = s.ParseToken(token + "x")
	assert.Error(t, err)
	_, err = s.ParseToken("not.a.jwt")
	assert.Error(t, err)
}

func TestSeedAdmin(t *testing.T) {
	s := newTestService(t)

	require.NoError(t, s.SeedAdmin("Admin", "admin@example.com", "change-me-please"))

	var count int64
	require.NoError(t, s.db.Model(&models.User{}).Where("role = ?", models.RoleAdmin).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	// idempotent once an admin exists
	require.NoError(t, s.SeedAdmin("Admin", "admin2@example.com", "change-me-please"))
	require.NoError(t, s.db.Model(&models.User{}).Where("role = ?", models.RoleAdmin).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	token, admin, err := s.Login("admin@example.com", "change-me-please", "1.2.3.4")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, models.RoleAdmin, admin.Role)
}

func TestSeedAdminSkippedWithoutCredentials(t *testing.T) {
	s := newTestService(t)

	require.NoError(t, s.SeedAdmin("", "", ""))

	var count int64
	require.NoError(t, s.db.Model(&models.User{}).Count(&count).Error)
	assert.Zero(t, count)
}
