// Package mail delivers run reports to site operators over SMTP. Delivery is
// always best-effort; a broken mail server must never fail a backup run.
package mail

import (
	"context"
	"fmt"
	"strings"
	"time"

	gomail "github.com/wneessen/go-mail"

	"github.com/edvin/backhaul/internal/config"
)

// Mailer sends backup run reports. The zero check in Enabled lets callers
// skip composing a message entirely when SMTP is not configured.
type Mailer struct {
	host     string
	port     int
	username string
	password string
	from     string
	adminTo  string
}

func NewMailer(cfg *config.Config) *Mailer {
	return &Mailer{
		host:     cfg.SMTPHost,
		port:     cfg.SMTPPort,
		username: cfg.SMTPUsername,
		password: cfg.SMTPPassword,
		from:     cfg.SMTPFrom,
		adminTo:  cfg.AdminEmail,
	}
}

func (m *Mailer) Enabled() bool {
	return m.host != "" && m.from != ""
}

// RunReport is the summary of a finished backup run sent to the operator.
type RunReport struct {
	Status      string
	StorageType string
	SizeBytes   int64
	Duration    time.Duration
	Message     string
	FinishedAt  time.Time
}

// SendRunReport delivers the report to the given address, falling back to
// the configured admin address when none was set. Callers wrap this in a
// best-effort guard; errors are returned for logging only.
func (m *Mailer) SendRunReport(ctx context.Context, to string, report RunReport) error {
	if !m.Enabled() {
		return fmt.Errorf("smtp is not configured")
	}
	if to == "" {
		to = m.adminTo
	}
	if to == "" {
		return fmt.Errorf("no recipient configured")
	}

	msg := gomail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return fmt.Errorf("set sender: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("set recipient: %w", err)
	}

	msg.Subject(fmt.Sprintf("Backup %s (%s)", report.Status, report.FinishedAt.Format("2006-01-02 15:04")))
	msg.SetBodyString(gomail.TypeTextPlain, m.renderBody(report))

	opts := []gomail.Option{
		gomail.WithPort(m.port),
		gomail.WithTLSPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(30 * time.Second),
	}
	if m.username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(m.username),
			gomail.WithPassword(m.password),
		)
	}

	client, err := gomail.NewClient(m.host, opts...)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send run report: %w", err)
	}
	return nil
}

func (m *Mailer) renderBody(report RunReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Backup finished with status: %s\n\n", report.Status)
	fmt.Fprintf(&b, "Storage:  %s\n", report.StorageType)
	fmt.Fprintf(&b, "Size:     %.2f MiB\n", float64(report.SizeBytes)/(1024*1024))
	fmt.Fprintf(&b, "Duration: %s\n", report.Duration.Round(time.Second))
	if report.Message != "" {
		fmt.Fprintf(&b, "\nDetails:\n%s\n", report.Message)
	}
	return b.String()
}
