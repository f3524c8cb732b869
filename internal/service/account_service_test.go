package service

import (
	"context"
	"path"
	"strings"
	"sync"
	"testing"
	"time"

	"agencecom/internal/entity"
	"agencecom/internal/utils"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// --- fakes ---

type memUserRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]*entity.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[uuid.UUID]*entity.User)}
}

func (r *memUserRepo) Create(_ context.Context, user *entity.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Email == user.Email {
			return gorm.ErrDuplicatedKey
		}
	}
	user.ID = uuid.New()
	user.CreatedAt = time.Now()
	clone := *user
	r.users[user.ID] = &clone
	return nil
}

func (r *memUserRepo) FindByID(_ context.Context, id uuid.UUID) (*entity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok || !user.Active {
		return nil, nil
	}
	clone := *user
	return &clone, nil
}

func (r *memUserRepo) FindByEmail(_ context.Context, email string) (*entity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Email == email && user.Active {
			clone := *user
			return &clone, nil
		}
	}
	return nil, nil
}

func (r *memUserRepo) List(_ context.Context, limit, offset int) ([]entity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var users []entity.User
	for _, user := range r.users {
		users = append(users, *user)
	}
	return users, nil
}

func (r *memUserRepo) MarkVerified(_ context.Context, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user, ok := r.users[userID]; ok {
		user.Verified = true
	}
	return nil
}

func (r *memUserRepo) SetResetToken(_ context.Context, userID uuid.UUID, tokenHash string, expiry time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user, ok := r.users[userID]; ok {
		user.ResetTokenHash = &tokenHash
		user.ResetTokenExpiry = &expiry
	}
	return nil
}

func (r *memUserRepo) ConsumeResetToken(_ context.Context, tokenHash string, newPasswordHash string, now time.Time) (*uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.ResetTokenHash != nil && *user.ResetTokenHash == tokenHash &&
			user.ResetTokenExpiry != nil && user.ResetTokenExpiry.After(now) {
			user.PasswordHash = newPasswordHash
			user.ResetTokenHash = nil
			user.ResetTokenExpiry = nil
			id := user.ID
			return &id, nil
		}
	}
	return nil, nil
}

type memAuditRepo struct {
	mu   sync.Mutex
	logs []entity.AuditLog
}

func (r *memAuditRepo) Log(_ context.Context, log *entity.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, *log)
	return nil
}

type notifierMock struct {
	mock.Mock
}

func (m *notifierMock) Send(ctx context.Context, msg Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *notifierMock) lastMessage(t *testing.T) Message {
	t.Helper()
	require.NotEmpty(t, m.Calls)
	return m.Calls[len(m.Calls)-1].Arguments.Get(1).(Message)
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func newTestService(t *testing.T) (*AccountService, *memUserRepo, *notifierMock, *fakeClock, utils.TokenManager) {
	t.Helper()
	users := newMemUserRepo()
	notifier := new(notifierMock)
	clock := &fakeClock{now: time.Now()}
	tokens := utils.TokenManager{Secret: []byte("test-secret"), SessionTTL: time.Hour}

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	svc := NewAccountService(
		users,
		&memAuditRepo{},
		notifier,
		BcryptPasswordHasher{Cost: bcrypt.MinCost},
		tokens,
		clock,
		AccountConfig{
			AppBaseURL: "http://localhost:8080",
			VerifyTTL:  7 * 24 * time.Hour,
			ResetTTL:   time.Hour,
		},
		logger,
	)
	return svc, users, notifier, clock, tokens
}

func registerInput(email string) RegisterInput {
	return RegisterInput{
		Username:        "alice",
		Email:           email,
		Password:        "Passw0rd!",
		ConfirmPassword: "Passw0rd!",
	}
}

// secretFromMail pulls the last path segment out of the link in the text body.
func secretFromMail(t *testing.T, msg Message) string {
	t.Helper()
	fields := strings.Fields(msg.Text)
	require.NotEmpty(t, fields)
	link := fields[len(fields)-1]
	return path.Base(link)
}

// --- register ---

func TestRegisterCreatesUnverifiedAccount(t *testing.T) {
	svc, users, notifier, _, _ := newTestService(t)
	notifier.On("Send", mock.Anything, mock.Anything).Return(nil)

	user, err := svc.Register(context.Background(), registerInput("Alice@Example.com"))
	require.NoError(t, err)

	assert.False(t, user.Verified)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.NotEqual(t, "Passw0rd!", user.PasswordHash)
	notifier.AssertNumberOfCalls(t, "Send", 1)

	stored, err := users.FindByEmail(context.Background(), "alice@example.com")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.False(t, stored.Verified)
}

func TestRegisterDuplicateEmailIsCaseInsensitive(t *testing.T) {
	svc, users, notifier, _, _ := newTestService(t)
	notifier.On("Send", mock.Anything, mock.Anything).Return(nil)

	_, err := svc.Register(context.Background(), registerInput("alice@example.com"))
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), registerInput("ALICE@EXAMPLE.COM"))
	assert.ErrorIs(t, err, ErrEmailTaken)

	users.mu.Lock()
	assert.Len(t, users.users, 1)
	users.mu.Unlock()
}

func TestRegisterValidation(t *testing.T) {
	svc, _, notifier, _, _ := newTestService(t)

	input := registerInput("alice@example.com")
	input.ConfirmPassword = "different"
	_, err := svc.Register(context.Background(), input)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.Register(context.Background(), RegisterInput{Email: "alice@example.com"})
	assert.ErrorIs(t, err, ErrValidation)

	notifier.AssertNumberOfCalls(t, "Send", 0)
}

func TestRegisterNotifierFailure(t *testing.T) {
	svc, users, notifier, _, _ := newTestService(t)
	notifier.On("Send", mock.Anything, mock.Anything).Return(assert.AnError)

	_, err := svc.Register(context.Background(), registerInput("alice@example.com"))
	assert.ErrorIs(t, err, ErrNotification)

	// The row is kept so resend-verification can recover the flow.
	stored, err := users.FindByEmail(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.NotNil(t, stored)
}

// --- verify email ---

func TestVerifyEmailFlipsFlagOnce(t *testing.T) {
	svc, users, notifier, _, tokens := newTestService(t)
	notifier.On("Send", mock.Anything, mock.Anything).Return(nil)

	user, err := svc.Register(context.Background(), registerInput("alice@example.com"))
	require.NoError(t, err)

	token, err := tokens.IssueVerificationToken(user.ID.String(), time.Hour)
	require.NoError(t, err)

	require.NoError(t, svc.VerifyEmail(context.Background(), token))
	stored, _ := users.FindByID(context.Background(), user.ID)
	assert.True(t, stored.Verified)

	// Second consumption is an idempotent no-op.
	require.NoError(t, svc.VerifyEmail(context.Background(), token))
}

func TestVerifyEmailExpiredToken(t *testing.T) {
	svc, _, notifier, _, tokens := newTestService(t)
	notifier.On("Send", mock.Anything, mock.Anything).Return(nil)

	user, err := svc.Register(context.Background(), registerInput("alice@example.com"))
	require.NoError(t, err)

	token, err := tokens.IssueVerificationToken(user.ID.String(), -time.Minute)
	require.NoError(t, err)

	assert.ErrorIs(t, svc.VerifyEmail(context.Background(), token), ErrInvalidToken)
}

func TestVerifyEmailBadToken(t *testing.T) {
	svc, _, _, _, tokens := newTestService(t)

	assert.ErrorIs(t, svc.VerifyEmail(context.Background(), "garbage"), ErrInvalidToken)

	// Valid signature, unknown account.
	token, err := tokens.IssueVerificationToken(uuid.NewString(), time.Hour)
	require.NoError(t, err)
	assert.ErrorIs(t, svc.VerifyEmail(context.Background(), token), ErrInvalidToken)
}

// --- login ---

func registerVerified(t *testing.T, svc *AccountService, tokens utils.TokenManager, email string) *entity.User {
	t.Helper()
	user, err := svc.Register(context.Background(), registerInput(email))
	require.NoError(t, err)
	token, err := tokens.IssueVerificationToken(user.ID.String(), time.Hour)
	require.NoError(t, err)
	require.NoError(t, svc.VerifyEmail(context.Background(), token))
	return user
}

func TestLoginSuccess(t *testing.T) {
	svc, _, notifier, _, tokens := newTestService(t)
	notifier.On("Send", mock.Anything, mock.Anything).Return(nil)

	user := registerVerified(t, svc, tokens, "alice@example.com")

	result, err := svc.Login(context.Background(), "Alice@Example.com", "Passw0rd!", nil)
	require.NoError(t, err)

	claims, err := tokens.ParseSessionToken(result.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID.String(), claims.Subject)
	assert.Equal(t, "user", claims.Role)
	assert.Equal(t, int64(3600), result.ExpiresIn)
	assert.Equal(t, "alice", result.User.Username)
}

func TestLoginEnumerationParity(t *testing.T) {
	svc, _, notifier, _, tokens := newTestService(t)
	notifier.On("Send", mock.Anything, mock.Anything).Return(nil)

	registerVerified(t, svc, tokens, "alice@example.com")

	_, wrongPassword := svc.Login(context.Background(), "alice@example.com", "not-the-password", nil)
	_, unknownEmail := svc.Login(context.Background(), "nobody@example.com", "whatever", nil)

	assert.ErrorIs(t, wrongPassword, ErrInvalidCredentials)
	assert.ErrorIs(t, unknownEmail, ErrInvalidCredentials)
	assert.Equal(t, wrongPassword.Error(), unknownEmail.Error())
}

func TestLoginUnverified(t *testing.T) {
	svc, _, notifier, _, _ := newTestService(t)
	notifier.On("Send", mock.Anything, mock.Anything).Return(nil)

	_, err := svc.Register(context.Background(), registerInput("alice@example.com"))
	require.NoError(t, err)

	_, err = svc.Login(context.Background(), "alice@example.com", "Passw0rd!", nil)
	assert.ErrorIs(t, err, ErrNotVerified)
}

// --- password reset ---

func TestRequestPasswordResetUnknownEmail(t *testing.T) {
	svc, _, notifier, _, _ := newTestService(t)

	err := svc.RequestPasswordReset(context.Background(), "nobody@example.com")
	assert.NoError(t, err)
	notifier.AssertNumberOfCalls(t, "Send", 0)
}

func TestRequestPasswordResetStoresHashNotSecret(t *testing.T) {
	svc, users, notifier, clock, tokens := newTestService(t)
	notifier.On("Send", mock.Anything, mock.Anything).Return(nil)

	user := registerVerified(t, svc, tokens, "alice@example.com")

	require.NoError(t, svc.RequestPasswordReset(context.Background(), "alice@example.com"))

	secret := secretFromMail(t, notifier.lastMessage(t))
	stored, _ := users.FindByID(context.Background(), user.ID)
	require.NotNil(t, stored.ResetTokenHash)
	require.NotNil(t, stored.ResetTokenExpiry)
	assert.NotEqual(t, secret, *stored.ResetTokenHash)
	assert.Equal(t, utils.HashSecret(secret), *stored.ResetTokenHash)
	assert.WithinDuration(t, clock.now.Add(time.Hour), *stored.ResetTokenExpiry, time.Second)
}

func TestResetPasswordIsSingleUse(t *testing.T) {
	svc, _, notifier, _, tokens := newTestService(t)
	notifier.On("Send", mock.Anything, mock.Anything).Return(nil)

	registerVerified(t, svc, tokens, "alice@example.com")
	require.NoError(t, svc.RequestPasswordReset(context.Background(), "alice@example.com"))
	secret := secretFromMail(t, notifier.lastMessage(t))

	require.NoError(t, svc.ResetPassword(context.Background(), secret, "NewPassw0rd!", "NewPassw0rd!"))

	// Old password is gone, new one works.
	_, err := svc.Login(context.Background(), "alice@example.com", "Passw0rd!", nil)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(context.Background(), "alice@example.com", "NewPassw0rd!", nil)
	assert.NoError(t, err)

	// Replaying the consumed secret fails.
	err = svc.ResetPassword(context.Background(), secret, "AnotherPass1!", "AnotherPass1!")
	assert.ErrorIs(t, err, ErrResetTokenInvalid)
}

func TestResetPasswordExpiredSecret(t *testing.T) {
	svc, _, notifier, clock, tokens := newTestService(t)
	notifier.On("Send", mock.Anything, mock.Anything).Return(nil)

	registerVerified(t, svc, tokens, "alice@example.com")
	require.NoError(t, svc.RequestPasswordReset(context.Background(), "alice@example.com"))
	secret := secretFromMail(t, notifier.lastMessage(t))

	clock.now = clock.now.Add(2 * time.Hour)

	err := svc.ResetPassword(context.Background(), secret, "NewPassw0rd!", "NewPassw0rd!")
	assert.ErrorIs(t, err, ErrResetTokenInvalid)
}

func TestResetPasswordMismatch(t *testing.T) {
	svc, _, _, _, _ := newTestService(t)

	err := svc.ResetPassword(context.Background(), "some-secret", "one", "two")
	assert.ErrorIs(t, err, ErrValidation)
}

// --- resend verification ---

func TestResendVerification(t *testing.T) {
	svc, _, notifier, _, tokens := newTestService(t)
	notifier.On("Send", mock.Anything, mock.Anything).Return(nil)

	assert.ErrorIs(t, svc.ResendVerification(context.Background(), "nobody@example.com"), ErrAccountNotFound)

	_, err := svc.Register(context.Background(), registerInput("alice@example.com"))
	require.NoError(t, err)

	require.NoError(t, svc.ResendVerification(context.Background(), "alice@example.com"))
	notifier.AssertNumberOfCalls(t, "Send", 2)

	registerVerified(t, svc, tokens, "bob@example.com")
	err = svc.ResendVerification(context.Background(), "bob@example.com")
	assert.ErrorIs(t, err, ErrAlreadyVerified)
}
