package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"agencecom/internal/utils"

	"github.com/jellydator/ttlcache/v2"
	"github.com/sirupsen/logrus"
)

const (
	maxAttachmentSize  = 5 << 20
	defaultDedupWindow = 2 * time.Minute
)

var allowedAttachmentTypes = map[string]bool{
	"application/pdf": true,
	"image/jpeg":      true,
	"image/png":       true,
}

type ContactConfig struct {
	// AdminEmail receives the contact messages.
	AdminEmail string
	// SendAck controls the acknowledgement copy to the sender.
	SendAck bool
	// DedupWindow bounds how long an idempotency key suppresses a resend.
	DedupWindow time.Duration
}

type ContactInput struct {
	Name           string
	Email          string
	Body           string
	IdempotencyKey string
	Attachment     *Attachment
}

// ContactService forwards contact-form submissions to the site admin. Repeat
// submissions carrying the same idempotency key inside the window are
// short-circuited without re-sending anything.
type ContactService struct {
	notifier Notifier
	dedup    *ttlcache.Cache
	config   ContactConfig
	log      *logrus.Logger
}

func NewContactService(notifier Notifier, config ContactConfig, log *logrus.Logger) *ContactService {
	window := config.DedupWindow
	if window == 0 {
		window = defaultDedupWindow
	}
	cache := ttlcache.NewCache()
	cache.SetTTL(window)
	cache.SkipTTLExtensionOnHit(true)
	return &ContactService{
		notifier: notifier,
		dedup:    cache,
		config:   config,
		log:      log,
	}
}

// Close releases the eviction goroutine behind the idempotency cache.
func (s *ContactService) Close() {
	s.dedup.Close()
}

// Submit returns duplicate=true when the idempotency key was already seen;
// no side effects run in that case.
func (s *ContactService) Submit(ctx context.Context, input ContactInput) (duplicate bool, err error) {
	if strings.TrimSpace(input.Name) == "" ||
		strings.TrimSpace(input.Email) == "" ||
		strings.TrimSpace(input.Body) == "" {
		return false, ErrValidation
	}
	if err := validateAttachment(input.Attachment); err != nil {
		return false, err
	}

	if key := strings.TrimSpace(input.IdempotencyKey); key != "" {
		if _, err := s.dedup.Get(key); err == nil {
			return true, nil
		}
		s.dedup.Set(key, struct{}{})
	}

	msg := Message{
		To:      s.config.AdminEmail,
		Subject: fmt.Sprintf("Nouveau message de contact — %s", input.Name),
		HTML: fmt.Sprintf("<h2>Nouveau message</h2><p><b>Nom:</b> %s</p><p><b>Email:</b> %s</p><p><b>Message:</b><br/>%s</p>",
			input.Name, input.Email, strings.ReplaceAll(input.Body, "\n", "<br>")),
		Text: fmt.Sprintf("Nom: %s\nEmail: %s\n\n%s", input.Name, input.Email, input.Body),
	}
	if input.Attachment != nil {
		msg.Attachments = []Attachment{*input.Attachment}
	}
	if err := s.notifier.Send(ctx, msg); err != nil {
		s.log.WithError(err).Warn("contact email failed")
		return false, ErrNotification
	}

	// Acknowledgement is best effort; the admin already has the message.
	sender := utils.NormalizeEmail(input.Email)
	if s.config.SendAck && sender != "" && sender != utils.NormalizeEmail(s.config.AdminEmail) {
		ack := Message{
			To:      input.Email,
			Subject: "Nous avons bien reçu votre message",
			HTML: fmt.Sprintf("<p>Bonjour %s,</p><p>Merci pour votre message. Nous revenons vers vous très vite.</p><hr><blockquote>%s</blockquote>",
				input.Name, strings.ReplaceAll(input.Body, "\n", "<br>")),
			Text: fmt.Sprintf("Bonjour %s,\n\nMerci pour votre message. Nous revenons vers vous très vite.", input.Name),
		}
		if err := s.notifier.Send(ctx, ack); err != nil {
			s.log.WithError(err).Warn("contact acknowledgement failed")
		}
	}

	return false, nil
}

func validateAttachment(attachment *Attachment) error {
	if attachment == nil {
		return nil
	}
	if !allowedAttachmentTypes[attachment.ContentType] {
		return fmt.Errorf("%w: attachment type must be pdf, jpeg or png", ErrValidation)
	}
	if len(attachment.Content) > maxAttachmentSize {
		return fmt.Errorf("%w: attachment exceeds 5 MB", ErrValidation)
	}
	return nil
}
