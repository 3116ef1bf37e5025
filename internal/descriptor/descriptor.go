// Package descriptor signs the order context that travels through the payment
// gateway and back. The gateway is untrusted, so the context is an HS256 token
// carrying everything settlement needs; nothing is looked up by the gateway.
package descriptor

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Version is bumped whenever the claim layout changes.
const Version = 1

const issuer = "ms-reservation"

var (
	ErrMalformed          = errors.New("descriptor malformed")
	ErrBadSignature       = errors.New("descriptor signature invalid")
	ErrUnsupportedVersion = errors.New("descriptor version unsupported")
)

// Assignment ties one seat to the category that priced it and the hold that
// reserves it.
type Assignment struct {
	SeatID     int64 `json:"s"`
	CategoryID int64 `json:"c"`
	HoldID     int64 `json:"h"`
}

type Descriptor struct {
	Version     int          `json:"v"`
	UserID      string       `json:"u"`
	EventID     int64        `json:"e"`
	TxnRef      string       `json:"x"`
	Assignments []Assignment `json:"a"`
}

func (d Descriptor) HoldIDs() []int64 {
	ids := make([]int64, 0, len(d.Assignments))
	for _, a := range d.Assignments {
		ids = append(ids, a.HoldID)
	}
	return ids
}

func (d Descriptor) SeatIDs() []int64 {
	ids := make([]int64, 0, len(d.Assignments))
	for _, a := range d.Assignments {
		ids = append(ids, a.SeatID)
	}
	return ids
}

func (d Descriptor) validate() error {
	if d.UserID == "" || d.EventID <= 0 || d.TxnRef == "" || len(d.Assignments) == 0 {
		return fmt.Errorf("%w: missing user, event, txn ref or assignments", ErrMalformed)
	}
	for _, a := range d.Assignments {
		if a.SeatID <= 0 || a.CategoryID <= 0 || a.HoldID <= 0 {
			return fmt.Errorf("%w: incomplete assignment %+v", ErrMalformed, a)
		}
	}
	return nil
}

type claims struct {
	Descriptor
	jwt.RegisteredClaims
}

type Signer struct {
	secret []byte
	now    func() time.Time
}

func NewSigner(secret string) (*Signer, error) {
	if len(secret) < 16 {
		return nil, errors.New("descriptor secret must be at least 16 bytes")
	}
	return &Signer{secret: []byte(secret), now: time.Now}, nil
}

// Sign stamps the current version onto d and returns the compact token.
func (s *Signer) Sign(d Descriptor) (string, error) {
	d.Version = Version
	if err := d.validate(); err != nil {
		return "", err
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Descriptor: d,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   issuer,
			ID:       uuid.NewString(),
			IssuedAt: jwt.NewNumericDate(s.now()),
		},
	})
	return token.SignedString(s.secret)
}

// Parse verifies the token and returns its descriptor. Errors wrap
// ErrMalformed, ErrBadSignature or ErrUnsupportedVersion.
func (s *Signer) Parse(raw string) (Descriptor, error) {
	var c claims
	_, err := jwt.ParseWithClaims(raw, &c, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(s.now),
	)
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return Descriptor{}, fmt.Errorf("%w: %v", ErrBadSignature, err)
	default:
		return Descriptor{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if c.Version != Version {
		return Descriptor{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, c.Version)
	}
	if err := c.Descriptor.validate(); err != nil {
		return Descriptor{}, err
	}
	return c.Descriptor, nil
}
