// Package notify mails the uploading user once their spreadsheet has
// been taken in, attaching an annotated error workbook when rows were
// rejected.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/agrifield/backend/internal/config"
	"github.com/agrifield/backend/internal/ingestion"
	"github.com/agrifield/backend/internal/repository"
)

// Mailer sends upload outcome notifications over SMTP.
type Mailer struct {
	dialer *gomail.Dialer
	from   string
	appURL string
	users  repository.UserRepository
	logger *zap.Logger
}

// NewMailer wires an SMTP mailer. The user repository resolves the
// recipient address from the uploading user ID.
func NewMailer(cfg config.MailConfig, appURL string, users repository.UserRepository, logger *zap.Logger) *Mailer {
	return &Mailer{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
		appURL: appURL,
		users:  users,
		logger: logger.With(zap.String("component", "mailer")),
	}
}

// NotifyUploadOutcome mails the uploader. Uploads with rejected rows
// carry a workbook attachment annotating each bad row; clean uploads
// get a plain confirmation.
func (m *Mailer) NotifyUploadOutcome(ctx context.Context, outcome ingestion.UploadOutcome) error {
	user, err := m.users.GetByID(ctx, outcome.UserID)
	if err != nil {
		return fmt.Errorf("failed to resolve upload owner: %w", err)
	}
	if user.Email == nil || *user.Email == "" {
		m.logger.Warn("upload owner has no email, skipping notification",
			zap.String("user_id", outcome.UserID.String()))
		return nil
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", *user.Email)

	if len(outcome.Errors) > 0 {
		report, err := ingestion.BuildErrorReport(outcome.Records, outcome.Errors, outcome.Headers)
		if err != nil {
			return fmt.Errorf("failed to build error report: %w", err)
		}
		msg.SetHeader("Subject", "File uploaded with errors")
		msg.SetBody("text/html", fmt.Sprintf(
			"<p>Your file <b>%s</b> was uploaded, but some rows could not be processed.</p>"+
				"<p>The attached sheet lists each rejected row with the reason. "+
				"Fix the rows and upload the file again at <a href=%q>%s</a>.</p>",
			outcome.FileName, m.appURL, m.appURL,
		))
		attachment := fmt.Sprintf("farm_tasks_%s.xlsx", time.Now().Format("2006-01-02_15-04-05"))
		msg.Attach(attachment, gomail.SetCopyFunc(func(w io.Writer) error {
			_, err := io.Copy(w, bytes.NewReader(report))
			return err
		}))
	} else {
		msg.SetHeader("Subject", "File uploaded successfully")
		msg.SetBody("text/html", fmt.Sprintf(
			"<p>Your file <b>%s</b> was uploaded successfully.</p>"+
				"<p>Track the created tasks at <a href=%q>%s</a>.</p>",
			outcome.FileName, m.appURL, m.appURL,
		))
	}

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("failed to send notification mail: %w", err)
	}
	m.logger.Info("upload notification sent",
		zap.String("user_id", outcome.UserID.String()),
		zap.Int("error_rows", len(outcome.Errors)),
	)
	return nil
}
