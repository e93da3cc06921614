package services

import (
	"context"
	"log"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

type AuthStore interface {
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	GetUser(ctx context.Context, id string) (*User, error)
	AddUser(ctx context.Context, u *User) error
	RevokeToken(ctx context.Context, jti string, expiresAt time.Time) error
	IsTokenRevoked(ctx context.Context, jti string) (bool, error)
}

// Principal is the identity carried by a verified bearer token.
type Principal struct {
	UserID    string
	Email     string
	TokenID   string
	ExpiresAt time.Time
}

type TokenSigner func(uid, email, jti string, ttl time.Duration) (string, error)

type AuthService struct {
	store     AuthStore
	now       func() time.Time
	idGen     func(prefix string, n int) string
	signToken TokenSigner
	tokenTTL  time.Duration
}

type AuthResult struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
}

func NewAuthService(store AuthStore, signer TokenSigner, ttl time.Duration) *AuthService {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &AuthService{
		store:     store,
		now:       func() time.Time { return time.Now().UTC() },
		idGen:     func(prefix string, n int) string { return prefix + shortID(n) },
		signToken: signer,
		tokenTTL:  ttl,
	}
}

func normEmail(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

// CreateAdmin registers an administrator account.
func (s *AuthService) CreateAdmin(ctx context.Context, email, password string) (*User, error) {
	email = normEmail(email)
	if email == "" || strings.TrimSpace(password) == "" {
		return nil, NewInvalidError("email/password required")
	}
	existing, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		return nil, NewUnavailableError("find user", err)
	}
	if existing != nil {
		return nil, NewConflictError("email exists")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	u := &User{ID: s.idGen("u", 10), Email: email, PassHash: hash, IsAdmin: true, CreatedAt: s.now()}
	if err := s.store.AddUser(ctx, u); err != nil {
		if _, ok := AsServiceError(err); ok {
			return nil, err
		}
		return nil, NewUnavailableError("add user", err)
	}
	return u, nil
}

// SignIn checks the credentials and issues a token for administrators only.
// A valid non-admin account gets ErrAccessDenied and no token.
func (s *AuthService) SignIn(ctx context.Context, email, password string) (*AuthResult, error) {
	email = normEmail(email)
	if email == "" || strings.TrimSpace(password) == "" {
		return nil, NewInvalidError("email/password required")
	}
	u, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		log.Printf("auth: find user: %v", err)
		return nil, NewUnavailableError("sign in", err)
	}
	if u == nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(u.PassHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !u.IsAdmin {
		log.Printf("auth: sign-in refused for non-admin %s", u.ID)
		return nil, ErrAccessDenied
	}
	if s.signToken == nil {
		return nil, NewInvalidError("token signer not configured")
	}
	token, err := s.signToken(u.ID, u.Email, s.idGen("j", 16), s.tokenTTL)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, UserID: u.ID, Email: u.Email, ExpiresAt: s.now().Add(s.tokenTTL)}, nil
}

// SignOut revokes the principal's token until it would have expired anyway.
func (s *AuthService) SignOut(ctx context.Context, p *Principal) error {
	if p == nil || p.TokenID == "" {
		return nil
	}
	exp := p.ExpiresAt
	if exp.IsZero() {
		exp = s.now().Add(s.tokenTTL)
	}
	if err := s.store.RevokeToken(ctx, p.TokenID, exp); err != nil {
		log.Printf("auth: revoke %s: %v", p.TokenID, err)
		return NewUnavailableError("sign out", err)
	}
	return nil
}

func (s *AuthService) TokenTTL() time.Duration {
	return s.tokenTTL
}

// AccessGate decides whether a principal may use the administration screens.
// It reads the store on every call.
type AccessGate struct {
	store AuthStore
}

func NewAccessGate(store AuthStore) *AccessGate {
	return &AccessGate{store: store}
}

// Check returns the admin user behind p. Any doubt, including a failed
// lookup, yields ErrAdminRequired.
func (g *AccessGate) Check(ctx context.Context, p *Principal) (*User, error) {
	if p == nil || p.UserID == "" {
		return nil, ErrAdminRequired
	}
	if p.TokenID != "" {
		revoked, err := g.store.IsTokenRevoked(ctx, p.TokenID)
		if err != nil {
			log.Printf("auth: revocation lookup %s: %v", p.TokenID, err)
			return nil, ErrAdminRequired
		}
		if revoked {
			return nil, ErrAdminRequired
		}
	}
	u, err := g.store.GetUser(ctx, p.UserID)
	if err != nil {
		log.Printf("auth: role lookup %s: %v", p.UserID, err)
		return nil, ErrAdminRequired
	}
	if u == nil || !u.IsAdmin {
		return nil, ErrAdminRequired
	}
	return u, nil
}
