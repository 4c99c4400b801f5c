/*
Package notify emails a per-run digest of newly discovered double-growth
reports.
*/
package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	gomail "gopkg.in/mail.v2"

	"github.com/shanehull/tdnetwatch/internal/types"
)

// EmailConfig holds SMTP configuration for sending the digest.
type EmailConfig struct {
	SMTPServer string
	SMTPPort   int
	SMTPUser   string
	SMTPPass   string
	FromEmail  string
	ToEmail    string
	Enabled    bool
}

// Mailer delivers run digests via SMTP.
type Mailer struct {
	cfg EmailConfig
	log zerolog.Logger
}

// NewMailer creates a Mailer with the given SMTP configuration.
func NewMailer(cfg EmailConfig, log zerolog.Logger) *Mailer {
	if cfg.FromEmail == "" {
		cfg.FromEmail = cfg.SMTPUser
	}
	return &Mailer{cfg: cfg, log: log}
}

// SendDigest emails a plain-text summary of the given double-growth
// reports. A disabled mailer silently does nothing.
func (m *Mailer) SendDigest(reports []types.Report) error {
	if !m.cfg.Enabled || len(reports) == 0 {
		return nil
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.FromEmail)
	msg.SetHeader("To", m.cfg.ToEmail)
	msg.SetHeader("Subject", fmt.Sprintf("増収増益速報: %d件", len(reports)))
	msg.SetBody("text/plain", renderDigest(reports))

	dialer := gomail.NewDialer(m.cfg.SMTPServer, m.cfg.SMTPPort, m.cfg.SMTPUser, m.cfg.SMTPPass)
	dialer.Timeout = 10 * time.Second

	if err := dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("failed to send digest to %s: %w", m.cfg.ToEmail, err)
	}

	m.log.Info().Int("reports", len(reports)).Str("to", m.cfg.ToEmail).Msg("digest sent")
	return nil
}

func renderDigest(reports []types.Report) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("増収増益の決算短信: %d件\n", len(reports)))
	sb.WriteString(strings.Repeat("=", 50) + "\n\n")

	for _, r := range reports {
		sb.WriteString(fmt.Sprintf("%s %s\n", r.Code, r.Name))
		sb.WriteString(fmt.Sprintf("%s\n", r.Title))
		sb.WriteString(fmt.Sprintf("売上: %s  利益: %s\n", formatPct(r.SalesPct), formatPct(r.ProfitPct)))
		if r.Summary != "" {
			sb.WriteString(r.Summary + "\n")
		}
		sb.WriteString(r.PDFURL + "\n\n")
	}

	return sb.String()
}

func formatPct(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%+.1f%%", *v)
}
