package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"agencecom/internal/entity"
	"agencecom/internal/repository"
	"agencecom/internal/utils"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Compared against when the email is unknown, so both branches of a failed
// login cost one bcrypt verification.
const dummyPasswordHash = "$2a$12$R9h/cIPz0gi.URNNX3kh2OPST9/PgBkqquzi.Ss7KIUgO2t0jWMUW"

type RegisterInput struct {
	Username        string
	Email           string
	Password        string
	ConfirmPassword string
}

type LoginResult struct {
	Token     string
	ExpiresIn int64
	User      *entity.User
}

// AccountService orchestrates the account lifecycle: registration with email
// verification, login, password reset, and verification resend.
type AccountService struct {
	users  repository.UserRepository
	audits repository.AuditLogRepository

	notifier Notifier
	hasher   PasswordHasher
	tokens   TokenService
	clock    Clock
	config   AccountConfig
	log      *logrus.Logger
}

func NewAccountService(
	users repository.UserRepository,
	audits repository.AuditLogRepository,
	notifier Notifier,
	hasher PasswordHasher,
	tokens TokenService,
	clock Clock,
	config AccountConfig,
	log *logrus.Logger,
) *AccountService {
	return &AccountService{
		users:    users,
		audits:   audits,
		notifier: notifier,
		hasher:   hasher,
		tokens:   tokens,
		clock:    clock,
		config:   config,
		log:      log,
	}
}

// Register stores a new unverified account and mails a verification link.
// The account row is kept when the mail fails, but the caller still gets
// ErrNotification so the user is never told "registered" without at least an
// attempted notification.
func (s *AccountService) Register(ctx context.Context, input RegisterInput) (*entity.User, error) {
	if strings.TrimSpace(input.Username) == "" ||
		strings.TrimSpace(input.Email) == "" ||
		input.Password == "" || input.ConfirmPassword == "" {
		return nil, ErrValidation
	}
	if input.Password != input.ConfirmPassword {
		return nil, ErrValidation
	}

	email := utils.NormalizeEmail(input.Email)
	existing, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, err
	}

	user := &entity.User{
		Username:     strings.TrimSpace(input.Username),
		Email:        email,
		PasswordHash: hash,
		Verified:     false,
		Active:       true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		// Losing the FindByEmail race surfaces here.
		if isDuplicate(err) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}

	_ = s.audit(ctx, &user.ID, nil, entity.AuditRegistered, nil)

	if err := s.sendVerificationMail(ctx, user, s.verifyTTL()); err != nil {
		s.log.WithError(err).WithField("user_id", user.ID).Warn("verification email failed")
		_ = s.audit(ctx, &user.ID, nil, entity.AuditNotifyFailed, map[string]any{"mail": "verify"})
		return nil, ErrNotification
	}
	return user, nil
}

// Login checks credentials and mints a session token. An unknown email and a
// wrong password are indistinguishable to the caller.
func (s *AccountService) Login(ctx context.Context, email string, password string, ip *string) (*LoginResult, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, ErrValidation
	}

	normalized := utils.NormalizeEmail(email)
	user, err := s.users.FindByEmail(ctx, normalized)
	if err != nil {
		return nil, err
	}
	if user == nil {
		_ = s.hasher.Verify(dummyPasswordHash, password)
		_ = s.audit(ctx, nil, ip, entity.AuditLoginFailed, map[string]any{"email": normalized})
		return nil, ErrInvalidCredentials
	}

	if !s.hasher.Verify(user.PasswordHash, password) {
		_ = s.audit(ctx, &user.ID, ip, entity.AuditLoginFailed, nil)
		return nil, ErrInvalidCredentials
	}

	if !user.Verified {
		return nil, ErrNotVerified
	}

	token, ttl, err := s.tokens.IssueSessionToken(user.ID.String(), user.Role())
	if err != nil {
		return nil, err
	}

	_ = s.audit(ctx, &user.ID, ip, entity.AuditLoginSuccess, nil)
	return &LoginResult{
		Token:     token,
		ExpiresIn: int64(ttl.Seconds()),
		User:      user,
	}, nil
}

// VerifyEmail consumes a verification token. An already verified account is a
// no-op success; every failure collapses to ErrInvalidToken.
func (s *AccountService) VerifyEmail(ctx context.Context, token string) error {
	subject, err := s.tokens.ParseVerificationToken(token)
	if err != nil {
		return ErrInvalidToken
	}
	userID, err := uuid.Parse(subject)
	if err != nil {
		return ErrInvalidToken
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrInvalidToken
	}
	if user.Verified {
		return nil
	}

	if err := s.users.MarkVerified(ctx, user.ID); err != nil {
		return err
	}
	_ = s.audit(ctx, &user.ID, nil, entity.AuditEmailVerified, nil)
	return nil
}

// ResendVerification mints a fresh, shorter-lived token for an unverified
// account. Nothing is persisted; verification tokens are signed, not stored.
func (s *AccountService) ResendVerification(ctx context.Context, email string) error {
	if strings.TrimSpace(email) == "" {
		return ErrValidation
	}

	user, err := s.users.FindByEmail(ctx, utils.NormalizeEmail(email))
	if err != nil {
		return err
	}
	if user == nil {
		return ErrAccountNotFound
	}
	if user.Verified {
		return ErrAlreadyVerified
	}

	if err := s.sendVerificationMail(ctx, user, s.resendVerifyTTL()); err != nil {
		s.log.WithError(err).WithField("user_id", user.ID).Warn("verification email failed")
		return ErrNotification
	}
	_ = s.audit(ctx, &user.ID, nil, entity.AuditVerificationResent, nil)
	return nil
}

// RequestPasswordReset stores the hash of a fresh random secret and mails the
// plaintext. An unknown email returns the same nil as a successful send, so
// the response carries no account-existence oracle.
func (s *AccountService) RequestPasswordReset(ctx context.Context, email string) error {
	if strings.TrimSpace(email) == "" {
		return ErrValidation
	}

	user, err := s.users.FindByEmail(ctx, utils.NormalizeEmail(email))
	if err != nil {
		return err
	}
	if user == nil {
		return nil
	}

	secret, err := utils.NewResetSecret()
	if err != nil {
		return err
	}
	expiry := s.now().Add(s.resetTTL())
	if err := s.users.SetResetToken(ctx, user.ID, utils.HashSecret(secret), expiry); err != nil {
		return err
	}

	link := s.buildLink("/users/reset-password", secret)
	msg := Message{
		To:      user.Email,
		Subject: "Réinitialisation du mot de passe",
		HTML: fmt.Sprintf("<p>Bonjour %s,</p><p>Pour réinitialiser votre mot de passe, cliquez sur ce lien (valable 1h) :</p><p><a href=\"%s\">%s</a></p>",
			user.Username, link, link),
		Text: fmt.Sprintf("Réinitialisez votre mot de passe : %s", link),
	}
	if err := s.notifier.Send(ctx, msg); err != nil {
		s.log.WithError(err).WithField("user_id", user.ID).Warn("reset email failed")
		_ = s.audit(ctx, &user.ID, nil, entity.AuditNotifyFailed, map[string]any{"mail": "reset"})
		return ErrNotification
	}

	_ = s.audit(ctx, &user.ID, nil, entity.AuditResetRequested, nil)
	return nil
}

// ResetPassword consumes a reset secret. The matching, password replacement,
// and clearing of both reset fields happen in one store write, so the secret
// can never be replayed.
func (s *AccountService) ResetPassword(ctx context.Context, secret string, newPassword string, confirmPassword string) error {
	if strings.TrimSpace(secret) == "" || newPassword == "" || confirmPassword == "" {
		return ErrValidation
	}
	if newPassword != confirmPassword {
		return ErrValidation
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	userID, err := s.users.ConsumeResetToken(ctx, utils.HashSecret(secret), hash, s.now())
	if err != nil {
		return err
	}
	if userID == nil {
		return ErrResetTokenInvalid
	}

	_ = s.audit(ctx, userID, nil, entity.AuditPasswordReset, nil)
	return nil
}

func (s *AccountService) GetAccount(ctx context.Context, userID uuid.UUID) (*entity.User, error) {
	return s.users.FindByID(ctx, userID)
}

func (s *AccountService) ListAccounts(ctx context.Context, limit, offset int) ([]entity.User, error) {
	return s.users.List(ctx, limit, offset)
}

func (s *AccountService) sendVerificationMail(ctx context.Context, user *entity.User, ttl time.Duration) error {
	token, err := s.tokens.IssueVerificationToken(user.ID.String(), ttl)
	if err != nil {
		return err
	}
	link := s.buildLink("/users/verify", token)
	msg := Message{
		To:      user.Email,
		Subject: "Vérifiez votre compte",
		HTML: fmt.Sprintf("Bonjour %s,<br><br>Merci de vérifier votre compte en cliquant sur ce lien : <a href=\"%s\">Vérifier mon compte</a>",
			user.Username, link),
		Text: fmt.Sprintf("Vérifiez votre compte : %s", link),
	}
	return s.notifier.Send(ctx, msg)
}

func (s *AccountService) buildLink(path string, token string) string {
	base := strings.TrimRight(s.config.AppBaseURL, "/")
	return fmt.Sprintf("%s%s/%s", base, path, url.PathEscape(token))
}

func (s *AccountService) audit(
	ctx context.Context,
	userID *uuid.UUID,
	ip *string,
	action entity.AuditAction,
	metadata map[string]any,
) error {
	if s.audits == nil {
		return nil
	}
	var payload datatypes.JSON
	if metadata != nil {
		bytes, err := json.Marshal(metadata)
		if err != nil {
			return err
		}
		payload = datatypes.JSON(bytes)
	}
	return s.audits.Log(ctx, &entity.AuditLog{
		UserID:    userID,
		IPAddress: ip,
		Action:    action,
		Metadata:  payload,
	})
}

func (s *AccountService) now() time.Time {
	if s.clock == nil {
		return time.Now()
	}
	return s.clock.Now()
}

func (s *AccountService) verifyTTL() time.Duration {
	if s.config.VerifyTTL > 0 {
		return s.config.VerifyTTL
	}
	return 7 * 24 * time.Hour
}

func (s *AccountService) resendVerifyTTL() time.Duration {
	if s.config.ResendVerifyTTL > 0 {
		return s.config.ResendVerifyTTL
	}
	return 24 * time.Hour
}

func (s *AccountService) resetTTL() time.Duration {
	if s.config.ResetTTL > 0 {
		return s.config.ResetTTL
	}
	return time.Hour
}

func isDuplicate(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "duplicate key")
}
