package mail

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	gomail "gopkg.in/gomail.v2"

	"github.com/mmudassir0/ecommerce-auth/internal/core/port"
	"github.com/mmudassir0/ecommerce-auth/internal/infra/config"
	"github.com/mmudassir0/ecommerce-auth/internal/infra/logger"
)

// Dispatcher sends transactional email over SMTP.
type Dispatcher struct {
	cfg    config.MailSettings
	dialer *gomail.Dialer
	base   string
	logger *zap.Logger
}

// NewDispatcher creates an SMTP-backed mail dispatcher. base is the public
// URL links in outgoing mail point at.
func NewDispatcher(cfg config.MailSettings, base string, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		cfg:    cfg,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		base:   base,
		logger: log,
	}
}

// SendVerificationEmail mails the account confirmation link.
func (d *Dispatcher) SendVerificationEmail(ctx context.Context, to string, token string) error {
	link := fmt.Sprintf("%s/verify-email?token=%s", d.base, token)
	body := fmt.Sprintf(
		"<p>Welcome! Confirm your email address by following the link below.</p>"+
			"<p><a href=%q>Verify email</a></p>"+
			"<p>The link expires in 24 hours. If you did not create an account, ignore this message.</p>",
		link,
	)
	return d.send(ctx, to, "Verify your email address", body)
}

// SendTwoFactorCode mails the login challenge code.
func (d *Dispatcher) SendTwoFactorCode(ctx context.Context, to string, code string) error {
	body := fmt.Sprintf(
		"<p>Your sign-in code:</p><h2>%s</h2>"+
			"<p>The code expires in 10 minutes. If you did not try to sign in, change your password.</p>",
		code,
	)
	return d.send(ctx, to, "Your sign-in code", body)
}

// SendPasswordResetEmail mails the password reset link.
func (d *Dispatcher) SendPasswordResetEmail(ctx context.Context, to string, token string) error {
	link := fmt.Sprintf("%s/reset-password?token=%s", d.base, token)
	body := fmt.Sprintf(
		"<p>A password reset was requested for your account.</p>"+
			"<p><a href=%q>Reset password</a></p>"+
			"<p>The link expires in 1 hour. If you did not request this, ignore this message.</p>",
		link,
	)
	return d.send(ctx, to, "Reset your password", body)
}

// SendLockoutNotice informs the owner that repeated failures locked the account.
func (d *Dispatcher) SendLockoutNotice(ctx context.Context, to string, minutes int) error {
	body := fmt.Sprintf(
		"<p>Your account was temporarily locked after repeated failed sign-in attempts.</p>"+
			"<p>You can try again in %d minutes, or reset your password now.</p>",
		minutes,
	)
	return d.send(ctx, to, "Account temporarily locked", body)
}

func (d *Dispatcher) send(ctx context.Context, to, subject, htmlBody string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", d.cfg.FromAddress, d.cfg.FromName)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", htmlBody)

	if err := d.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}

	d.logger.Debug("mail sent",
		zap.String("to", logger.MaskEmail(to)),
		zap.String("subject", subject),
	)
	return nil
}

// StubDispatcher logs outgoing mail instead of delivering it. Useful for
// development environments without an SMTP relay.
type StubDispatcher struct {
	logger *zap.Logger
}

// NewStubDispatcher constructs a logging-only dispatcher.
func NewStubDispatcher(log *zap.Logger) *StubDispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &StubDispatcher{logger: log}
}

func (d *StubDispatcher) log(kind, to string, fields ...zap.Field) error {
	fields = append([]zap.Field{
		zap.String("kind", kind),
		zap.String("to", logger.MaskEmail(to)),
	}, fields...)
	d.logger.Info("stub mail dispatched", fields...)
	return nil
}

// SendVerificationEmail logs the verification token.
func (d *StubDispatcher) SendVerificationEmail(_ context.Context, to string, token string) error {
	return d.log("verification", to, zap.String("token", logger.MaskString(token)))
}

// SendTwoFactorCode logs the challenge code.
func (d *StubDispatcher) SendTwoFactorCode(_ context.Context, to string, code string) error {
	return d.log("two_factor_code", to, zap.String("code", code))
}

// SendPasswordResetEmail logs the reset token.
func (d *StubDispatcher) SendPasswordResetEmail(_ context.Context, to string, token string) error {
	return d.log("password_reset", to, zap.String("token", logger.MaskString(token)))
}

// SendLockoutNotice logs the lockout notification.
func (d *StubDispatcher) SendLockoutNotice(_ context.Context, to string, minutes int) error {
	return d.log("lockout_notice", to, zap.Int("minutes", minutes))
}

var (
	_ port.MailDispatcher = (*Dispatcher)(nil)
	_ port.MailDispatcher = (*StubDispatcher)(nil)
)
