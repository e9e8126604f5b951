package email

import (
	"bytes"
	"fmt"
	"html/template"
	"net/url"
	"time"

	"github.com/go-mail/mail"
	"go.uber.org/zap"

	"mfa-service/internal/config"
	"mfa-service/internal/util"
)

// Client sends transactional email over SMTP.
type Client struct {
	dialer *mail.Dialer
	config *config.EmailConfig
	issuer string
}

func NewClient(cfg *config.Config) *Client {
	dialer := mail.NewDialer(cfg.Email.Host, cfg.Email.Port, cfg.Email.Username, cfg.Email.Password)
	dialer.Timeout = 10 * time.Second

	return &Client{
		dialer: dialer,
		config: &cfg.Email,
		issuer: cfg.TOTP.Issuer,
	}
}

var verificationTmpl = template.Must(template.New("verification").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
  <h1>Email Verification</h1>
  <p>Hello <strong>{{.FirstName}}</strong>,</p>
  <p>Thank you for signing up! Please verify your email address by clicking the link below:</p>
  <p><a href="{{.Link}}">Verify Email Address</a></p>
  <p style="font-size: 12px; color: #888; word-break: break-all;">{{.Link}}</p>
  <p>This link will expire in <strong>{{.ExpiryHours}} hours</strong>.</p>
  <p style="font-size: 12px; color: #999;">If you didn't create an account, you can safely ignore this email.</p>
</body>
</html>
`))

var welcomeTmpl = template.Must(template.New("welcome").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
  <h1>Account Activated</h1>
  <p>Hello <strong>{{.FirstName}}</strong>,</p>
  <p>Your account <strong>{{.Username}}</strong> has been approved and activated.</p>
  <p>You can now sign in with your username and the temporary password provided by your administrator, then set up your second factor.</p>
</body>
</html>
`))

func (c *Client) send(to, subject string, tmpl *template.Template, data interface{}, textBody string) error {
	if !c.config.Enabled {
		util.Debug("email delivery disabled, skipping", zap.String("subject", subject))
		return nil
	}

	var html bytes.Buffer
	if err := tmpl.Execute(&html, data); err != nil {
		return fmt.Errorf("failed to render email: %w", err)
	}

	msg := mail.NewMessage()
	msg.SetHeader("From", c.config.From)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", textBody)
	msg.AddAlternative("text/html", html.String())

	if err := c.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	util.Info("email sent", zap.String("subject", subject))
	return nil
}

// SendVerificationEmail delivers the email-verify link.
func (c *Client) SendVerificationEmail(to, token, username, firstName string) error {
	link := fmt.Sprintf("%s?token=%s&username=%s",
		c.config.VerifyBaseURL, url.QueryEscape(token), url.QueryEscape(username))
	hours := int(c.config.VerificationExpiry.Hours())

	data := struct {
		FirstName   string
		Link        string
		ExpiryHours int
	}{firstName, link, hours}

	text := fmt.Sprintf(
		"Hello %s,\n\nThank you for signing up! Please verify your email address by visiting:\n\n%s\n\nThis link will expire in %d hours.\n\nIf you didn't create an account, you can safely ignore this email.\n",
		firstName, link, hours)

	subject := fmt.Sprintf("Verify your email - %s", c.issuer)
	return c.send(to, subject, verificationTmpl, data, text)
}

// SendWelcomeEmail notifies the user after admin activation.
func (c *Client) SendWelcomeEmail(to, username, firstName string) error {
	data := struct {
		FirstName string
		Username  string
	}{firstName, username}

	text := fmt.Sprintf(
		"Hello %s,\n\nYour account %s has been approved and activated.\nYou can now sign in with your username and the temporary password provided by your administrator.\n",
		firstName, username)

	subject := fmt.Sprintf("Your account has been activated - %s", c.issuer)
	return c.send(to, subject, welcomeTmpl, data, text)
}
