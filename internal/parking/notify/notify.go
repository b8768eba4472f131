// Package notify delivers operator alerts to a Discord-compatible webhook and
// user emails over implicit-TLS SMTP. Either channel falls back to the log
// when it is not configured.
package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aussiebroadwan/parking/pkg/slogx"
	"github.com/wneessen/go-mail"
)

// WebhookUsername is the display name alerts are posted under.
const WebhookUsername = "IoT_platform"

type Config struct {
	WebhookURL string

	SMTPHost       string
	SMTPPort       int // implicit TLS, usually 465
	SenderAddr     string
	SenderPassword string

	HTTPClient *http.Client
	TLSConfig  *tls.Config // defaults to verifying SMTPHost
}

type Gateway struct {
	cfg    Config
	client *http.Client
}

func New(cfg Config) *Gateway {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if cfg.SMTPPort == 0 {
		cfg.SMTPPort = 465
	}
	return &Gateway{cfg: cfg, client: client}
}

type webhookMessage struct {
	Username string `json:"username"`
	Content  string `json:"content"`
}

// AlertOperator posts text to the operator webhook.
func (g *Gateway) AlertOperator(ctx context.Context, text string) error {
	if g.cfg.WebhookURL == "" {
		slogx.FromContext(ctx).Warn("operator alert (no webhook configured)", slog.String("text", text))
		return nil
	}

	body, err := json.Marshal(webhookMessage{Username: WebhookUsername, Content: text})
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create alert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("alert request failed: %w", err)
	}
	defer resp.Body.Close()

	// Discord answers 204, other receivers may answer 200.
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("alert rejected with status %d: %s", resp.StatusCode, string(msg))
	}
	return nil
}

// EmailUser sends a plain text email from the configured sender.
func (g *Gateway) EmailUser(ctx context.Context, address, subject, body string) error {
	if g.cfg.SMTPHost == "" || g.cfg.SenderAddr == "" {
		slogx.FromContext(ctx).Warn("user email (no smtp configured)",
			slog.String("to", address),
			slog.String("subject", subject),
		)
		return nil
	}

	msg, err := newMessage(g.cfg.SenderAddr, address, subject, body)
	if err != nil {
		return err
	}

	client, err := g.smtpClient()
	if err != nil {
		return err
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}

// smtpClient dials with implicit TLS and PLAIN auth when a password is set.
func (g *Gateway) smtpClient() (*mail.Client, error) {
	tlsCfg := g.cfg.TLSConfig
	if tlsCfg == nil {
		tlsCfg = &tls.Config{ServerName: g.cfg.SMTPHost, MinVersion: tls.VersionTLS12}
	}

	opts := []mail.Option{
		mail.WithPort(g.cfg.SMTPPort),
		mail.WithSSL(),
		mail.WithTLSConfig(tlsCfg),
	}
	if g.cfg.SenderPassword != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(g.cfg.SenderAddr),
			mail.WithPassword(g.cfg.SenderPassword),
		)
	}

	client, err := mail.NewClient(g.cfg.SMTPHost, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return client, nil
}

func newMessage(from, to, subject, body string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(from); err != nil {
		return nil, fmt.Errorf("invalid sender address %q: %w", from, err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("invalid recipient address %q: %w", to, err)
	}
	msg.Subject(strings.NewReplacer("\r", "", "\n", " ").Replace(subject))
	msg.SetDate()
	msg.SetBodyString(mail.TypeTextPlain, body)
	return msg, nil
}
