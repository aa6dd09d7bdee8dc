package services

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"arokya/internal/models"
	"arokya/internal/repositories"

	"github.com/dgrijalva/jwt-go"
	"golang.org/x/crypto/bcrypt"
)

// Token lifetimes accepted by NewAuthService.
const (
	MinTokenTTL     = 24 * time.Hour
	MaxTokenTTL     = 7 * 24 * time.Hour
	DefaultTokenTTL = 24 * time.Hour
)

// AuthService handles registration, login and bearer token verification.
// Tokens are stateless: there is no server-side revocation, a token stays
// valid until it expires.
type AuthService struct {
	userRepo  repositories.UserRepository
	jwtSecret []byte
	tokenTTL  time.Duration
}

// NewAuthService creates a new AuthService. A ttl outside [MinTokenTTL,
// MaxTokenTTL] is clamped into that range.
func NewAuthService(userRepo repositories.UserRepository, jwtSecret string, ttl time.Duration) *AuthService {
	switch {
	case ttl == 0:
		ttl = DefaultTokenTTL
	case ttl < MinTokenTTL:
		ttl = MinTokenTTL
	case ttl > MaxTokenTTL:
		ttl = MaxTokenTTL
	}
	return &AuthService{
		userRepo:  userRepo,
		jwtSecret: []byte(jwtSecret),
		tokenTTL:  ttl,
	}
}

// MaxPasswordBytes is the longest password bcrypt accepts. Multibyte
// characters count once per byte.
const MaxPasswordBytes = 72

// Signup registers a user with an empty order history and returns a fresh token.
func (s *AuthService) Signup(name, email, password string) (*models.AuthResult, error) {
	name = strings.TrimSpace(name)
	email = normalizeEmail(email)
	if name == "" || email == "" || password == "" {
		return nil, ErrInvalidInput
	}
	if len(password) > MaxPasswordBytes {
		return nil, ErrPasswordTooLong
	}

	existing, err := s.userRepo.GetByEmail(email)
	if err == nil && existing != nil {
		return nil, ErrDuplicateUser
	}
	if err != nil && !errors.Is(err, repositories.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up email: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
	}
	if err := s.userRepo.Create(user); err != nil {
		// lost a race with a concurrent signup for the same email
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, ErrDuplicateUser
		}
		return nil, fmt.Errorf("failed to register user: %w", err)
	}
	log.Printf("User registered: %s", user.ID)

	return s.issue(user)
}

// Login checks the credentials and returns a fresh token. An unknown email and
// a wrong password produce distinct errors; the HTTP layer reports both the same way.
func (s *AuthService) Login(email, password string) (*models.AuthResult, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password are required", ErrInvalidCredentials)
	}

	user, err := s.userRepo.GetByEmail(email)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return s.issue(user)
}

// Verify parses a bearer token and returns the user id it was issued for.
func (s *AuthService) Verify(tokenString string) (string, error) {
	if tokenString == "" {
		return "", ErrUnauthenticated
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", ErrUnauthenticated
	}
	// jwt-go only checks exp when it is present
	if !claims.VerifyExpiresAt(jwt.TimeFunc().Unix(), true) {
		return "", fmt.Errorf("%w: token has no expiry", ErrUnauthenticated)
	}
	userID, _ := claims["user_id"].(string)
	if userID == "" {
		return "", fmt.Errorf("%w: token has no subject", ErrUnauthenticated)
	}
	return userID, nil
}

// Me returns the public profile of a user.
func (s *AuthService) Me(userID string) (*models.PublicUser, error) {
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	pub := user.Public()
	return &pub, nil
}

func (s *AuthService) issue(user *models.User) (*models.AuthResult, error) {
	now := jwt.TimeFunc()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": user.ID,
		"email":   user.Email,
		"iat":     now.Unix(),
		"exp":     now.Add(s.tokenTTL).Unix(),
	})
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}
	return &models.AuthResult{Token: tokenString, User: user.Public()}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
