package port

import "context"

// MailDispatcher delivers transactional email.
type MailDispatcher interface {
	SendVerificationEmail(ctx context.Context, to string, token string) error
	SendTwoFactorCode(ctx context.Context, to string, code string) error
	SendPasswordResetEmail(ctx context.Context, to string, token string) error
	SendLockoutNotice(ctx context.Context, to string, minutes int) error
}
