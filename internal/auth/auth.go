// Package auth handles registration, admin approval, login, and JWT access
// tokens.
package auth

import (
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/sujalbistaa/classhub/internal/models"
)

var (
	ErrEmailTaken         = errors.New("email already in use")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotApproved        = errors.New("registration not approved")
	ErrTokenNotFound      = errors.New("registration token not found")
)

const tokenTTL = 24 * time.Hour

// Claims is the decoded access-token payload attached to authenticated
// requests.
type Claims struct {
	UserID uint
	Email  string
	Name   string
	Role   string
}

func (c *Claims) IsAdmin() bool { return c.Role == models.RoleAdmin }

type tokenClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

// Service implements the auth workflows on top of the users table.
type Service struct {
	db     *gorm.DB
	secret []byte
}

func NewService(db *gorm.DB, secret string) *Service {
	return &Service{db: db, secret: []byte(secret)}
}

// RegisterInput is the registration payload.
type RegisterInput struct {
	Name     string `json:"name" binding:"required,min=2,max=100"`
	Email    string `json:"email" binding:"required,email,max=250"`
	Password string `json:"password" binding:"required,min=8,max=72"`
}

// Register creates a pending account. The returned user carries the
// registration token an admin needs to approve or reject it.
func (s *Service) Register(input RegisterInput) (*models.User, error) {
	var existing models.User
	err := s.db.Where("email = ?", input.Email).First(&existing).Error
	if err == nil {
		return nil, ErrEmailTaken
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	token := uuid.NewString()
	user := models.User{
		Name:               input.Name,
		Email:              input.Email,
		Password:           string(hashed),
		Role:               models.RoleMember,
		RegistrationStatus: models.StatusPending,
		RegistrationToken:  &token,
		IsActive:           true,
	}
	if err := s.db.Create(&user).Error; err != nil {
		return nil, err
	}

	log.Printf("Registered user %d (%s), pending approval", user.ID, user.Email)
	return &user, nil
}

// Login checks credentials and issues an access token. Only approved, active
// accounts may log in.
func (s *Service) Login(email, password, ip string) (string, *models.User, error) {
	var user models.User
	if err := s.db.Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}
	if user.RegistrationStatus != models.StatusApproved || !user.IsActive {
		return "", nil, ErrNotApproved
	}

	now := time.Now()
	s.db.Model(&user).Updates(map[string]any{
		"last_login_at": now,
		"last_login_ip": ip,
	})

	token, err := s.issueToken(&user)
	if err != nil {
		return "", nil, err
	}
	return token, &user, nil
}

// Approve activates the pending registration behind token.
func (s *Service) Approve(token string) (*models.User, error) {
	user, err := s.findByToken(token)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	updates := map[string]any{
		"registration_status": models.StatusApproved,
		"registration_token":  nil,
		"approved_at":         now,
	}
	if err := s.db.Model(user).Updates(updates).Error; err != nil {
		return nil, err
	}
	user.RegistrationStatus = models.StatusApproved
	user.ApprovedAt = &now

	log.Printf("Approved registration for user %d (%s)", user.ID, user.Email)
	return user, nil
}

// Reject declines the pending registration behind token, recording reason.
func (s *Service) Reject(token, reason string) (*models.User, error) {
	user, err := s.findByToken(token)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{
		"registration_status": models.StatusRejected,
		"registration_token":  nil,
		"rejection_reason":    reason,
	}
	if err := s.db.Model(user).Updates(updates).Error; err != nil {
		return nil, err
	}
	user.RegistrationStatus = models.StatusRejected

	log.Printf("Rejected registration for user %d (%s): %s", user.ID, user.Email, reason)
	return user, nil
}

func (s *Service) findByToken(token string) (*models.User, error) {
	var user models.User
	err := s.db.Where("registration_token = ?", token).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// User loads a user by id.
func (s *Service) User(id uint) (*models.User, error) {
	var user models.User
	if err := s.db.First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Service) issueToken(user *models.User) (string, error) {
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(user.ID), 10),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(tokenTTL)),
		},
		Email: user.Email,
		Name:  user.Name,
		Role:  user.Role,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ParseToken validates an access token and returns its claims.
func (s *Service) ParseToken(raw string) (*Claims, error) {
	var claims tokenClaims
	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	userID, err := strconv.ParseUint(claims.Subject, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid subject: %w", err)
	}

	return &Claims{
		UserID: uint(userID),
		Email:  claims.Email,
		Name:   claims.Name,
		Role:   claims.Role,
	}, nil
}

// SeedAdmin creates the admin account from the environment if no admin
// exists yet.
func (s *Service) SeedAdmin(name, email, password string) error {
	if email == "" || password == "" {
		return nil
	}

	var count int64
	if err := s.db.Model(&models.User{}).Where("role = ?", models.RoleAdmin).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	now := time.Now()
	admin := models.User{
		Name:               name,
		Email:              email,
		Password:           string(hashed),
		Role:               models.RoleAdmin,
		RegistrationStatus: models.StatusApproved,
		ApprovedAt:         &now,
		IsActive:           true,
	}
	if err := s.db.Create(&admin).Error; err != nil {
		return err
	}
	log.Printf("Seeded admin account %s", email)
	return nil
}
