package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pilab-dev/teams-collab/cache"
	"github.com/pilab-dev/teams-collab/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- Mock Implementations ---

type MockAccountRepository struct {
	mock.Mock
}

func (m *MockAccountRepository) Create(ctx context.Context, account *domain.Account) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

func (m *MockAccountRepository) FindByID(ctx context.Context, id string) (*domain.Account, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Account), args.Error(1)
}

func (m *MockAccountRepository) FindByEmail(ctx context.Context, email string) (*domain.Account, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Account), args.Error(1)
}

func (m *MockAccountRepository) FindByExternalIdentity(ctx context.Context, objectID, tenantID string) (*domain.Account, error) {
	args := m.Called(ctx, objectID, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Account), args.Error(1)
}

func (m *MockAccountRepository) UpsertLink(ctx context.Context, email string, identity *domain.LinkedIdentity) (*domain.Account, error) {
	args := m.Called(ctx, email, identity)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Account), args.Error(1)
}

type MockPasswordHasher struct {
	mock.Mock
}

func (m *MockPasswordHasher) Hash(password string) (string, error) {
	args := m.Called(password)
	return args.String(0), args.Error(1)
}

func (m *MockPasswordHasher) Verify(hashedPassword, password string) error {
	args := m.Called(hashedPassword, password)
	return args.Error(0)
}

func newTestService(t *testing.T) (*AccountService, *MockAccountRepository, *MockPasswordHasher, *cache.MemoryCodeStore) {
	t.Helper()
	repo := new(MockAccountRepository)
	hasher := new(MockPasswordHasher)
	codes := cache.NewMemoryCodeStore(time.Minute)
	t.Cleanup(codes.Stop)
	return NewAccountService(repo, hasher, codes, nil), repo, hasher, codes
}

var (
	ctx      = context.Background()
	identity = domain.LinkedIdentity{ObjectID: "oid-1", TenantID: "tid-1", PrincipalName: "ada@contoso.com"}
)

func TestAccountService_Signup(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		svc, repo, hasher, _ := newTestService(t)
		repo.On("FindByEmail", ctx, "ada@example.com").Return(nil, domain.ErrAccountNotFound).Once()
		hasher.On("Hash", "correct-horse").Return("hashed", nil).Once()
		repo.On("Create", ctx, mock.MatchedBy(func(a *domain.Account) bool {
			return a.Email == "ada@example.com" && a.PasswordHash == "hashed" && a.LinkedIdentity == nil
		})).Run(func(args mock.Arguments) {
			args.Get(1).(*domain.Account).ID = "acc-1"
		}).Return(nil).Once()

		account, err := svc.Signup(ctx, "  Ada@Example.com ", "correct-horse")
		require.NoError(t, err)
		assert.Equal(t, "acc-1", account.ID)
		repo.AssertExpectations(t)
		hasher.AssertExpectations(t)
	})

	t.Run("Duplicate email", func(t *testing.T) {
		svc, repo, hasher, _ := newTestService(t)
		repo.On("FindByEmail", ctx, "ada@example.com").Return(&domain.Account{ID: "acc-1"}, nil).Once()

		_, err := svc.Signup(ctx, "ada@example.com", "correct-horse")
		assert.ErrorIs(t, err, domain.ErrAccountExists)
		repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		hasher.AssertNotCalled(t, "Hash", mock.Anything)
	})

	t.Run("Invalid input", func(t *testing.T) {
		svc, repo, _, _ := newTestService(t)

		_, err := svc.Signup(ctx, "not-an-email", "correct-horse")
		assert.ErrorIs(t, err, ErrInvalidInput)
		_, err = svc.Signup(ctx, "ada@example.com", "short")
		assert.ErrorIs(t, err, ErrInvalidInput)
		repo.AssertNotCalled(t, "FindByEmail", mock.Anything, mock.Anything)
	})
}

func TestAccountService_Login(t *testing.T) {
	stored := &domain.Account{ID: "acc-1", Email: "ada@example.com", PasswordHash: "hashed"}

	t.Run("Success", func(t *testing.T) {
		svc, repo, hasher, _ := newTestService(t)
		repo.On("FindByEmail", ctx, "ada@example.com").Return(stored, nil).Once()
		hasher.On("Verify", "hashed", "correct-horse").Return(nil).Once()

		account, err := svc.Login(ctx, "ada@example.com", "correct-horse")
		require.NoError(t, err)
		assert.Equal(t, stored, account)
	})

	t.Run("Wrong password", func(t *testing.T) {
		svc, repo, hasher, _ := newTestService(t)
		repo.On("FindByEmail", ctx, "ada@example.com").Return(stored, nil).Once()
		hasher.On("Verify", "hashed", "nope").Return(errors.New("mismatch")).Once()

		_, err := svc.Login(ctx, "ada@example.com", "nope")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("Unknown email", func(t *testing.T) {
		svc, repo, _, _ := newTestService(t)
		repo.On("FindByEmail", ctx, "nobody@example.com").Return(nil, domain.ErrAccountNotFound).Once()

		_, err := svc.Login(ctx, "nobody@example.com", "whatever1")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})
}

func TestAccountService_LoginWithExternal(t *testing.T) {
	t.Run("Linked account", func(t *testing.T) {
		svc, repo, _, _ := newTestService(t)
		linked := &domain.Account{ID: "acc-1", Email: "ada@example.com", LinkedIdentity: &identity}
		repo.On("FindByExternalIdentity", ctx, "oid-1", "tid-1").Return(linked, nil).Once()

		result, err := svc.LoginWithExternal(ctx, identity, "Ada")
		require.NoError(t, err)
		assert.Equal(t, linked, result.Account)
		assert.Empty(t, result.SignupCode)
	})

	t.Run("Unknown identity issues signup code", func(t *testing.T) {
		svc, repo, _, codes := newTestService(t)
		repo.On("FindByExternalIdentity", ctx, "oid-1", "tid-1").Return(nil, domain.ErrAccountNotFound).Once()

		result, err := svc.LoginWithExternal(ctx, identity, "Ada")
		require.NoError(t, err)
		assert.Nil(t, result.Account)
		require.NotEmpty(t, result.SignupCode)

		grant, err := codes.Consume(ctx, result.SignupCode)
		require.NoError(t, err)
		assert.Equal(t, identity, grant.Identity)
		assert.Equal(t, "Ada", grant.Name)
	})

	t.Run("Incomplete identity", func(t *testing.T) {
		svc, _, _, _ := newTestService(t)
		_, err := svc.LoginWithExternal(ctx, domain.LinkedIdentity{ObjectID: "oid-1"}, "")
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestAccountService_SignupWithCode(t *testing.T) {
	svc, repo, hasher, codes := newTestService(t)
	code, err := codes.Issue(ctx, &cache.SignupGrant{Identity: identity})
	require.NoError(t, err)

	repo.On("FindByExternalIdentity", ctx, "oid-1", "tid-1").Return(nil, domain.ErrAccountNotFound).Once()
	repo.On("FindByEmail", ctx, "ada@example.com").Return(nil, domain.ErrAccountNotFound).Once()
	hasher.On("Hash", "correct-horse").Return("hashed", nil).Once()
	repo.On("Create", ctx, mock.MatchedBy(func(a *domain.Account) bool {
		return a.LinkedIdentity != nil && a.LinkedIdentity.ObjectID == "oid-1"
	})).Run(func(args mock.Arguments) {
		args.Get(1).(*domain.Account).ID = "acc-9"
	}).Return(nil).Once()

	account, err := svc.SignupWithCode(ctx, code, "ada@example.com", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, "acc-9", account.ID)

	// Codes are single use.
	_, err = svc.SignupWithCode(ctx, code, "ada@example.com", "correct-horse")
	assert.ErrorIs(t, err, ErrSignupCodeInvalid)
	repo.AssertExpectations(t)
}

func TestAccountService_SignupWithCode_IdentityTakenMeanwhile(t *testing.T) {
	svc, repo, _, codes := newTestService(t)
	code, err := codes.Issue(ctx, &cache.SignupGrant{Identity: identity})
	require.NoError(t, err)
	repo.On("FindByExternalIdentity", ctx, "oid-1", "tid-1").Return(&domain.Account{ID: "acc-other"}, nil).Once()

	_, err = svc.SignupWithCode(ctx, code, "ada@example.com", "correct-horse")
	assert.ErrorIs(t, err, domain.ErrIdentityAlreadyLinked)
	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestAccountService_Link(t *testing.T) {
	first := &domain.Account{ID: "acc-1", Email: "first@example.com"}
	second := &domain.Account{ID: "acc-2", Email: "second@example.com"}

	t.Run("Link then relink after unlink", func(t *testing.T) {
		svc, repo, _, _ := newTestService(t)
		linked := &domain.Account{ID: "acc-1", Email: "first@example.com", LinkedIdentity: &identity}

		repo.On("FindByID", ctx, "acc-1").Return(first, nil)
		repo.On("FindByExternalIdentity", ctx, "oid-1", "tid-1").Return(nil, domain.ErrAccountNotFound)
		repo.On("UpsertLink", ctx, "first@example.com", &identity).Return(linked, nil)
		repo.On("UpsertLink", ctx, "first@example.com", (*domain.LinkedIdentity)(nil)).Return(first, nil)

		got, err := svc.Link(ctx, "acc-1", identity)
		require.NoError(t, err)
		assert.Equal(t, "oid-1", got.LinkedIdentity.ObjectID)

		got, err = svc.Unlink(ctx, "acc-1")
		require.NoError(t, err)
		assert.Nil(t, got.LinkedIdentity)

		got, err = svc.Link(ctx, "acc-1", identity)
		require.NoError(t, err)
		assert.Equal(t, "oid-1", got.LinkedIdentity.ObjectID)
	})

	t.Run("Second account is rejected before mutation", func(t *testing.T) {
		svc, repo, _, _ := newTestService(t)
		holder := &domain.Account{ID: "acc-1", Email: "first@example.com", LinkedIdentity: &identity}

		repo.On("FindByID", ctx, "acc-2").Return(second, nil).Once()
		repo.On("FindByExternalIdentity", ctx, "oid-1", "tid-1").Return(holder, nil).Once()

		_, err := svc.Link(ctx, "acc-2", identity)
		assert.ErrorIs(t, err, domain.ErrIdentityAlreadyLinked)
		repo.AssertNotCalled(t, "UpsertLink", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Relinking own identity is allowed", func(t *testing.T) {
		svc, repo, _, _ := newTestService(t)
		holder := &domain.Account{ID: "acc-1", Email: "first@example.com", LinkedIdentity: &identity}

		repo.On("FindByID", ctx, "acc-1").Return(holder, nil).Once()
		repo.On("FindByExternalIdentity", ctx, "oid-1", "tid-1").Return(holder, nil).Once()
		repo.On("UpsertLink", ctx, "first@example.com", &identity).Return(holder, nil).Once()

		_, err := svc.Link(ctx, "acc-1", identity)
		require.NoError(t, err)
	})

	t.Run("Unknown account", func(t *testing.T) {
		svc, repo, _, _ := newTestService(t)
		repo.On("FindByID", ctx, "missing").Return(nil, domain.ErrAccountNotFound).Once()

		_, err := svc.Link(ctx, "missing", identity)
		assert.ErrorIs(t, err, domain.ErrAccountNotFound)
	})
}
