package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidRole        = errors.New("invalid role")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
)

// Store is what the service needs from the user repository.
type Store interface {
	Create(ctx context.Context, u *User) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	Search(ctx context.Context, selfID, term string) ([]User, error)
	All(ctx context.Context, selfID string) ([]User, error)
	SetStatus(ctx context.Context, id string, online bool) error
}

type Service struct {
	repo      Store
	jwtSecret string
}

type Claims struct {
	Name string `json:"name"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

func NewService(repo Store, secret string) *Service {
	return &Service{
		repo:      repo,
		jwtSecret: secret,
	}
}

func (s *Service) Register(ctx context.Context, req *RegisterRequest) (*User, error) {
	if !ValidRole(req.Role) {
		return nil, ErrInvalidRole
	}

	hashedPwd, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	u := &User{
		Name:     req.Name,
		Email:    req.Email,
		Password: string(hashedPwd),
		Role:     req.Role,
		Avatar:   req.Avatar,
	}

	if _, err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	u, err := s.repo.GetByEmail(ctx, req.Email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Name: u.Name,
		Role: u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			Issuer:    "zephia",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
		},
	})

	ss, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return nil, err
	}

	return &LoginResponse{AccessToken: ss, User: *u}, nil
}

// ValidateToken returns the authenticated user's id, name and role.
func (s *Service) ValidateToken(tokenString string) (string, string, string, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})
	if err != nil || !token.Valid {
		return "", "", "", ErrInvalidToken
	}
	return claims.Subject, claims.Name, claims.Role, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

// SearchProfiles matches users by name, email or role, excluding selfID.
func (s *Service) SearchProfiles(ctx context.Context, selfID, term string) ([]User, error) {
	return s.repo.Search(ctx, selfID, term)
}

// AllProfiles lists every user except selfID.
func (s *Service) AllProfiles(ctx context.Context, selfID string) ([]User, error) {
	return s.repo.All(ctx, selfID)
}

// SetStatus records presence (online flag plus last-seen timestamp).
func (s *Service) SetStatus(ctx context.Context, id string, online bool) error {
	return s.repo.SetStatus(ctx, id, online)
}
