// Package notify implements the alert delivery channels consumed by the
// monitor: SMTP email, a chat webhook and a logging SMS stub. Every channel
// failure is the caller's to log; nothing here retries or panics.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"github.com/lp24213/agroisync-sub001/internal/monitor"
)

// EmailConfig carries the SMTP settings for the email channel.
type EmailConfig struct {
	Host     string   `yaml:"host"`
	Port     int      `yaml:"port"`
	From     string   `yaml:"from"`
	Password string   `yaml:"password"`
	To       []string `yaml:"to"`
}

// EmailChannel delivers alerts over SMTP.
type EmailChannel struct {
	client *mail.Client
	from   string
	to     []string
}

// NewEmailChannel builds the SMTP client. Dialing happens per send.
func NewEmailChannel(cfg EmailConfig) (*EmailChannel, error) {
	client, err := mail.NewClient(cfg.Host,
		mail.WithPort(cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(cfg.From),
		mail.WithPassword(cfg.Password),
		mail.WithTLSPolicy(mail.TLSMandatory),
	)
	if err != nil {
		return nil, fmt.Errorf("creating mail client: %w", err)
	}

	return &EmailChannel{client: client, from: cfg.From, to: cfg.To}, nil
}

func (e *EmailChannel) Kind() monitor.ChannelKind {
	return monitor.ChannelEmail
}

func (e *EmailChannel) Send(ctx context.Context, alert monitor.Alert) error {
	msg := mail.NewMsg()
	if err := msg.From(e.from); err != nil {
		return fmt.Errorf("setting From address: %w", err)
	}
	if err := msg.To(e.to...); err != nil {
		return fmt.Errorf("setting To address: %w", err)
	}

	msg.Subject(fmt.Sprintf("[%s] Security Alert - %s", alert.Severity, alert.Event.Type))
	msg.SetBodyString(mail.TypeTextPlain, fmt.Sprintf(
		"%s\n\nSource: %s\nTarget: %s\nTime: %s\nEvent ID: %s",
		alert.Message,
		alert.Event.Source,
		alert.Event.Target,
		alert.Timestamp.Format(time.RFC3339),
		alert.Event.ID,
	))

	if err := e.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("sending alert email: %w", err)
	}
	return nil
}

// ChatChannel posts alerts as JSON to a chat webhook.
type ChatChannel struct {
	webhookURL string
	httpClient *http.Client
}

// NewChatChannel builds a chat channel. client may be nil for a default
// with a 10s timeout.
func NewChatChannel(webhookURL string, client *http.Client) *ChatChannel {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &ChatChannel{webhookURL: webhookURL, httpClient: client}
}

func (c *ChatChannel) Kind() monitor.ChannelKind {
	return monitor.ChannelChat
}

func (c *ChatChannel) Send(ctx context.Context, alert monitor.Alert) error {
	payload, err := json.Marshal(map[string]any{
		"text":     alert.Message,
		"severity": alert.Severity,
		"source":   alert.Event.Source,
		"eventId":  alert.Event.ID,
		"time":     alert.Timestamp.Format(time.RFC3339),
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("posting to webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// SMSChannel is a logging stub standing in for a real SMS gateway.
type SMSChannel struct {
	logger *zap.Logger
}

// NewSMSChannel returns the stub.
func NewSMSChannel(logger *zap.Logger) *SMSChannel {
	return &SMSChannel{logger: logger}
}

func (s *SMSChannel) Kind() monitor.ChannelKind {
	return monitor.ChannelSMS
}

func (s *SMSChannel) Send(_ context.Context, alert monitor.Alert) error {
	s.logger.Info("sms alert (stub)",
		zap.String("severity", string(alert.Severity)),
		zap.String("message", alert.Message),
		zap.String("eventId", alert.Event.ID),
	)
	return nil
}
