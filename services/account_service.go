package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/pilab-dev/teams-collab/cache"
	"github.com/pilab-dev/teams-collab/domain"
	"github.com/pilab-dev/teams-collab/internal/audit"
	"github.com/pilab-dev/teams-collab/internal/metrics"
	"github.com/rs/zerolog/log"
)

const minPasswordLength = 8

// ExternalLoginResult is the outcome of LoginWithExternal. Exactly one of
// Account and SignupCode is set.
type ExternalLoginResult struct {
	Account *domain.Account
	// SignupCode is a single-use code that lets the caller create an
	// account for an identity nobody has linked yet.
	SignupCode string
}

// AccountService implements signup, login and identity linking on top of
// the account repository.
type AccountService struct {
	accounts domain.AccountRepository
	hasher   PasswordHasher
	codes    cache.CodeStore
	audit    *audit.Logger
}

// NewAccountService creates a new AccountService. auditLog may be nil.
func NewAccountService(
	accounts domain.AccountRepository,
	hasher PasswordHasher,
	codes cache.CodeStore,
	auditLog *audit.Logger,
) *AccountService {
	return &AccountService{
		accounts: accounts,
		hasher:   hasher,
		codes:    codes,
		audit:    auditLog,
	}
}

// Get returns the account with id.
func (s *AccountService) Get(ctx context.Context, id string) (*domain.Account, error) {
	return s.accounts.FindByID(ctx, id)
}

// Signup creates a password account.
func (s *AccountService) Signup(ctx context.Context, email, password string) (*domain.Account, error) {
	account, err := s.createAccount(ctx, email, password, nil)
	s.audit.Record(audit.Event{Action: "signup", AccountID: accountID(account), Target: email, Success: err == nil, Err: err})
	return account, err
}

// Login checks email and password.
func (s *AccountService) Login(ctx context.Context, email, password string) (*domain.Account, error) {
	account, err := s.accounts.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			err = ErrInvalidCredentials
		}
		s.loginFailed(domain.ConnectionPassword, email, err)
		return nil, err
	}
	if err := s.hasher.Verify(account.PasswordHash, password); err != nil {
		s.loginFailed(domain.ConnectionPassword, email, ErrInvalidCredentials)
		return nil, ErrInvalidCredentials
	}

	metrics.LoginSuccessTotal.WithLabelValues(string(domain.ConnectionPassword)).Inc()
	s.audit.Record(audit.Event{Action: "login", AccountID: account.ID, Success: true})
	return account, nil
}

// LoginWithExternal resolves a verified external identity to the account
// linked to it. When no account holds the identity a signup code is
// issued instead.
func (s *AccountService) LoginWithExternal(ctx context.Context, identity domain.LinkedIdentity, name string) (*ExternalLoginResult, error) {
	if identity.ObjectID == "" || identity.TenantID == "" {
		return nil, fmt.Errorf("%w: identity requires object and tenant id", ErrInvalidInput)
	}

	account, err := s.accounts.FindByExternalIdentity(ctx, identity.ObjectID, identity.TenantID)
	switch {
	case err == nil:
		metrics.LoginSuccessTotal.WithLabelValues(string(domain.ConnectionAAD)).Inc()
		s.audit.Record(audit.Event{Action: "login_external", AccountID: account.ID, Target: identity.ObjectID, Success: true})
		return &ExternalLoginResult{Account: account}, nil
	case !errors.Is(err, domain.ErrAccountNotFound):
		s.loginFailed(domain.ConnectionAAD, identity.ObjectID, err)
		return nil, err
	}

	code, err := s.codes.Issue(ctx, &cache.SignupGrant{Identity: identity, Name: name})
	if err != nil {
		return nil, fmt.Errorf("issue signup code: %w", err)
	}
	log.Debug().Str("object_id", identity.ObjectID).Msg("no account linked to external identity, issued signup code")
	return &ExternalLoginResult{SignupCode: code}, nil
}

// SignupWithCode redeems a signup code and creates an account already
// linked to the identity the code stands for.
func (s *AccountService) SignupWithCode(ctx context.Context, code, email, password string) (*domain.Account, error) {
	grant, err := s.codes.Consume(ctx, code)
	if err != nil {
		if errors.Is(err, cache.ErrCodeNotFound) {
			return nil, ErrSignupCodeInvalid
		}
		return nil, err
	}

	// The identity may have been linked elsewhere since the code was issued.
	if err := s.ensureUnlinked(ctx, grant.Identity, ""); err != nil {
		return nil, err
	}

	identity := grant.Identity
	account, err := s.createAccount(ctx, email, password, &identity)
	s.audit.Record(audit.Event{Action: "signup_external", AccountID: accountID(account), Target: identity.ObjectID, Success: err == nil, Err: err})
	if err == nil {
		metrics.IdentityLinksTotal.WithLabelValues("link").Inc()
	}
	return account, err
}

// Link attaches identity to the account. Linking an identity another
// account already holds fails with domain.ErrIdentityAlreadyLinked and
// leaves both accounts untouched.
//
// The check and the write are not atomic: two concurrent links of the same
// identity can both pass the check.
func (s *AccountService) Link(ctx context.Context, accountID string, identity domain.LinkedIdentity) (*domain.Account, error) {
	if identity.ObjectID == "" || identity.TenantID == "" {
		return nil, fmt.Errorf("%w: identity requires object and tenant id", ErrInvalidInput)
	}

	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if err := s.ensureUnlinked(ctx, identity, account.ID); err != nil {
		s.audit.Record(audit.Event{Action: "link", AccountID: account.ID, Target: identity.ObjectID, Err: err})
		return nil, err
	}

	updated, err := s.accounts.UpsertLink(ctx, account.Email, &identity)
	if err != nil {
		return nil, fmt.Errorf("link identity: %w", err)
	}
	metrics.IdentityLinksTotal.WithLabelValues("link").Inc()
	s.audit.Record(audit.Event{Action: "link", AccountID: updated.ID, Target: identity.ObjectID, Success: true})
	return updated, nil
}

// Unlink removes the linked identity of the account, if any.
func (s *AccountService) Unlink(ctx context.Context, accountID string) (*domain.Account, error) {
	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	updated, err := s.accounts.UpsertLink(ctx, account.Email, nil)
	if err != nil {
		return nil, fmt.Errorf("unlink identity: %w", err)
	}
	metrics.IdentityLinksTotal.WithLabelValues("unlink").Inc()
	target := ""
	if account.LinkedIdentity != nil {
		target = account.LinkedIdentity.ObjectID
	}
	s.audit.Record(audit.Event{Action: "unlink", AccountID: updated.ID, Target: target, Success: true})
	return updated, nil
}

// ensureUnlinked fails when an account other than ownerID holds identity.
func (s *AccountService) ensureUnlinked(ctx context.Context, identity domain.LinkedIdentity, ownerID string) error {
	holder, err := s.accounts.FindByExternalIdentity(ctx, identity.ObjectID, identity.TenantID)
	if errors.Is(err, domain.ErrAccountNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if holder.ID == ownerID {
		return nil
	}
	metrics.IdentityLinksTotal.WithLabelValues("conflict").Inc()
	return domain.ErrIdentityAlreadyLinked
}

func (s *AccountService) createAccount(ctx context.Context, email, password string, identity *domain.LinkedIdentity) (*domain.Account, error) {
	email = normalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: malformed email", ErrInvalidInput)
	}
	if len(password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}

	_, err := s.accounts.FindByEmail(ctx, email)
	if err == nil {
		return nil, domain.ErrAccountExists
	}
	if !errors.Is(err, domain.ErrAccountNotFound) {
		return nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	account := &domain.Account{
		Email:          email,
		PasswordHash:   hash,
		LinkedIdentity: identity,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, err
	}
	metrics.AccountsCreatedTotal.Inc()
	return account, nil
}

func (s *AccountService) loginFailed(conn domain.Connection, target string, err error) {
	metrics.LoginFailureTotal.WithLabelValues(string(conn)).Inc()
	s.audit.Record(audit.Event{Action: "login", Target: target, Err: err})
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func accountID(a *domain.Account) string {
	if a == nil {
		return ""
	}
	return a.ID
}
