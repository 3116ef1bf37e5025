package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mailersend/mailersend-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-reservation/internal/apperrors"
	"ms-reservation/internal/logger"
	"ms-reservation/internal/models"
)

type fakeSender struct {
	sent []*mailersend.Message
}

func (f *fakeSender) Send(_ context.Context, message *mailersend.Message) (*mailersend.Response, error) {
	f.sent = append(f.sent, message)
	return nil, nil
}

type fakeUsers map[string]models.User

func (f fakeUsers) GetUser(_ context.Context, id string) (*models.User, error) {
	u, ok := f[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return &u, nil
}

type fakeQR struct{}

func (fakeQR) PNG(payload string) ([]byte, error) { return []byte("png:" + payload), nil }

func confirmation() models.TicketConfirmation {
	return models.TicketConfirmation{
		UserID:     "user-1",
		EventID:    5,
		EventTitle: "Spring Concert",
		TxnRef:     "user-1_5_1_000001",
		Total:      decimal.NewFromInt(300),
		Tickets: []models.ConfirmedTicket{
			{TicketID: 1, SeatCode: "A12", Category: "VIP", Price: decimal.NewFromInt(200), QRPayload: "T1.a"},
			{TicketID: 2, SeatCode: "B13", Category: "STANDARD", Price: decimal.NewFromInt(100), QRPayload: "T2.b"},
		},
	}
}

func TestMailer_SendsOneAttachmentPerTicket(t *testing.T) {
	sender := &fakeSender{}
	m := &Mailer{
		Sender:  sender,
		Users:   fakeUsers{"user-1": {ID: "user-1", Email: "buyer@example.com", FullName: "Buyer"}},
		QR:      fakeQR{},
		From:    mailersend.From{Name: "Tickets", Email: "noreply@example.com"},
		Subject: "Your tickets",
		Logger:  logger.NewNop(),
	}

	require.NoError(t, m.Deliver(context.Background(), confirmation()))
	require.Len(t, sender.sent, 1)

	raw, err := json.Marshal(sender.sent[0])
	require.NoError(t, err)
	var body struct {
		To []struct {
			Email string `json:"email"`
		} `json:"to"`
		Subject     string `json:"subject"`
		Text        string `json:"text"`
		Attachments []struct {
			Filename string `json:"filename"`
		} `json:"attachments"`
	}
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, "buyer@example.com", body.To[0].Email)
	assert.Equal(t, "Your tickets: Spring Concert", body.Subject)
	assert.Contains(t, body.Text, "seat A12, VIP, 200.00")
	require.Len(t, body.Attachments, 2)
	assert.Equal(t, "ticket-1.png", body.Attachments[0].Filename)
}

func TestMailer_UnknownRecipient(t *testing.T) {
	m := &Mailer{Sender: &fakeSender{}, Users: fakeUsers{}, QR: fakeQR{}, Logger: logger.NewNop()}

	err := m.Deliver(context.Background(), confirmation())
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}
