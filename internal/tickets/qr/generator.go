package qr

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/skip2/go-qrcode"
)

const macLength = 22

var ErrInvalidPayload = errors.New("invalid ticket qr payload")

// Generator derives the QR payload of a ticket from its id. The same id always
// yields the same payload, so re-issuing a QR never changes what was printed.
type Generator struct {
	secret []byte
}

func NewGenerator(secret string) (*Generator, error) {
	if len(secret) < 16 {
		return nil, errors.New("qr secret must be at least 16 bytes")
	}
	return &Generator{secret: []byte(secret)}, nil
}

// Payload returns "T<id>.<mac>".
func (g *Generator) Payload(ticketID int64) string {
	return fmt.Sprintf("T%d.%s", ticketID, g.mac(ticketID))
}

// Verify returns the ticket id carried by a payload after checking its MAC.
func (g *Generator) Verify(payload string) (int64, error) {
	idPart, mac, ok := strings.Cut(strings.TrimSpace(payload), ".")
	if !ok || !strings.HasPrefix(idPart, "T") {
		return 0, ErrInvalidPayload
	}
	id, err := strconv.ParseInt(idPart[1:], 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrInvalidPayload
	}
	if !hmac.Equal([]byte(mac), []byte(g.mac(id))) {
		return 0, ErrInvalidPayload
	}
	return id, nil
}

// PNG renders the payload as a 256px QR image.
func (g *Generator) PNG(payload string) ([]byte, error) {
	return qrcode.Encode(payload, qrcode.Medium, 256)
}

func (g *Generator) mac(ticketID int64) string {
	h := hmac.New(sha256.New, g.secret)
	h.Write([]byte(strconv.FormatInt(ticketID, 10)))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))[:macLength]
}
