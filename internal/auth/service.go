package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultTokenExpiry = 24 * time.Hour
	DefaultBcryptCost  = 12

	MinNameLength     = 2
	MinPasswordLength = 6
)

// ErrValidation wraps registration and login input errors.
var ErrValidation = errors.New("invalid input")

type Option func(*Service)

func WithTokenExpiry(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.expiry = d
		}
	}
}

// WithBcryptCost overrides the hashing cost, mostly to keep tests fast.
func WithBcryptCost(cost int) Option {
	return func(s *Service) {
		s.bcryptCost = cost
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// Service registers users, checks passwords and issues HS256 tokens whose
// subject is the user id.
type Service struct {
	store      UserStore
	secret     []byte
	expiry     time.Duration
	bcryptCost int
	now        func() time.Time
}

func NewService(store UserStore, secret string, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("user store is required")
	}
	if secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	s := &Service{
		store:      store,
		secret:     []byte(secret),
		expiry:     DefaultTokenExpiry,
		bcryptCost: DefaultBcryptCost,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Register creates a new account.
func (s *Service) Register(ctx context.Context, email, name, password string) (*User, error) {
	email = normalizeEmail(email)
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) < MinNameLength {
		return nil, fmt.Errorf("%w: name must be at least %d characters", ErrValidation, MinNameLength)
	}
	if err := validateCredentials(email, password); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		PasswordHash: string(hash),
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Login checks the password and returns a signed token for the user.
// Unknown emails and wrong passwords yield the same error.
func (s *Service) Login(ctx context.Context, email, password string) (string, *User, error) {
	email = normalizeEmail(email)
	if err := validateCredentials(email, password); err != nil {
		return "", nil, err
	}

	u, err := s.store.GetUserByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		return "", nil, ErrInvalidCredentials
	}
	if err != nil {
		return "", nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}

	token, err := s.IssueToken(u)
	if err != nil {
		return "", nil, err
	}
	return token, u, nil
}

// IssueToken creates a signed JWT for u.
func (s *Service) IssueToken(u *User) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"sub":   u.ID,
		"email": u.Email,
		"iat":   now.Unix(),
		"exp":   now.Add(s.expiry).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses tokenStr and loads the user it names.
func (s *Service) ValidateToken(ctx context.Context, tokenStr string) (*User, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: invalid claims", ErrInvalidToken)
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, fmt.Errorf("%w: missing sub claim", ErrInvalidToken)
	}

	u, err := s.store.GetUser(ctx, sub)
	if errors.Is(err, ErrUserNotFound) {
		return nil, fmt.Errorf("%w: unknown user", ErrInvalidToken)
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) Expiry() time.Duration {
	return s.expiry
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateCredentials(email, password string) error {
	if _, err := mail.ParseAddress(email); err != nil || !strings.Contains(email, "@") {
		return fmt.Errorf("%w: please enter a valid email", ErrValidation)
	}
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrValidation, MinPasswordLength)
	}
	return nil
}
