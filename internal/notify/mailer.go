package notify

import (
	"context"
	"encoding/base64"
	"fmt"
	"html"
	"strings"

	"github.com/mailersend/mailersend-go"

	"ms-reservation/internal/config"
	"ms-reservation/internal/logger"
	"ms-reservation/internal/models"
)

type EmailSender interface {
	Send(ctx context.Context, message *mailersend.Message) (*mailersend.Response, error)
}

type UserDirectory interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
}

type QRRenderer interface {
	PNG(payload string) ([]byte, error)
}

// Mailer e-mails a confirmation with one QR attachment per ticket.
type Mailer struct {
	Sender  EmailSender
	Users   UserDirectory
	QR      QRRenderer
	From    mailersend.From
	Subject string
	Logger  *logger.Logger
}

func NewMailer(cfg config.MailConfig, users UserDirectory, qr QRRenderer, log *logger.Logger) *Mailer {
	client := mailersend.NewMailersend(cfg.APIKey)
	return &Mailer{
		Sender:  client.Email,
		Users:   users,
		QR:      qr,
		From:    mailersend.From{Name: cfg.FromName, Email: cfg.FromEmail},
		Subject: cfg.Subject,
		Logger:  log,
	}
}

func (m *Mailer) Deliver(ctx context.Context, c models.TicketConfirmation) error {
	user, err := m.Users.GetUser(ctx, c.UserID)
	if err != nil {
		return fmt.Errorf("look up recipient %s: %w", c.UserID, err)
	}

	message := &mailersend.Message{}
	message.SetFrom(m.From)
	message.SetRecipients([]mailersend.Recipient{{Name: user.FullName, Email: user.Email}})
	message.SetSubject(fmt.Sprintf("%s: %s", m.Subject, c.EventTitle))
	message.SetHTML(renderHTML(user, c))
	message.SetText(renderText(user, c))

	for _, t := range c.Tickets {
		png, err := m.QR.PNG(t.QRPayload)
		if err != nil {
			return fmt.Errorf("render qr for ticket %d: %w", t.TicketID, err)
		}
		message.AddAttachment(mailersend.Attachment{
			Content:  base64.StdEncoding.EncodeToString(png),
			Filename: fmt.Sprintf("ticket-%d.png", t.TicketID),
		})
	}

	res, err := m.Sender.Send(ctx, message)
	if err != nil {
		return fmt.Errorf("send confirmation %s: %w", c.TxnRef, err)
	}
	messageID := ""
	if res != nil && res.Response != nil {
		messageID = res.Header.Get("X-Message-Id")
	}
	m.Logger.Info("MAIL", fmt.Sprintf("Tickets for %s sent to %s (message %s)", c.TxnRef, user.Email, messageID))
	return nil
}

func renderText(user *models.User, c models.TicketConfirmation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\nYour tickets for %s are confirmed (order %s, total %s).\n\n", user.FullName, c.EventTitle, c.TxnRef, c.Total.StringFixed(2))
	for _, t := range c.Tickets {
		fmt.Fprintf(&b, "- Ticket %d: seat %s, %s, %s\n", t.TicketID, t.SeatCode, t.Category, t.Price.StringFixed(2))
	}
	b.WriteString("\nShow the attached QR code at the entrance.\n")
	return b.String()
}

func renderHTML(user *models.User, c models.TicketConfirmation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<p>Hello %s,</p><p>Your tickets for <b>%s</b> are confirmed (order %s, total %s).</p><ul>",
		html.EscapeString(user.FullName), html.EscapeString(c.EventTitle), html.EscapeString(c.TxnRef), c.Total.StringFixed(2))
	for _, t := range c.Tickets {
		fmt.Fprintf(&b, "<li>Ticket %d: seat %s, %s, %s</li>", t.TicketID, html.EscapeString(t.SeatCode), html.EscapeString(t.Category), t.Price.StringFixed(2))
	}
	b.WriteString("</ul><p>Show the attached QR code at the entrance.</p>")
	return b.String()
}
