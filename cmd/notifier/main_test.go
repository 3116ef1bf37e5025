package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-reservation/internal/logger"
	"ms-reservation/internal/models"
)

type recordingSink struct {
	got []models.TicketConfirmation
	err error
}

func (s *recordingSink) Deliver(_ context.Context, c models.TicketConfirmation) error {
	s.got = append(s.got, c)
	return s.err
}

func TestHandleConfirmation_Delivers(t *testing.T) {
	sink := &recordingSink{}
	handle := handleConfirmation(sink, logger.NewNop())

	value, err := json.Marshal(models.TicketConfirmation{TxnRef: "T-1", UserID: "u-1", Tickets: []models.ConfirmedTicket{{TicketID: 9}}})
	require.NoError(t, err)

	require.NoError(t, handle(context.Background(), kafkago.Message{Value: value}))
	require.Len(t, sink.got, 1)
	assert.Equal(t, "T-1", sink.got[0].TxnRef)
	assert.Equal(t, []int64{9}, sink.got[0].TicketIDs())
}

func TestHandleConfirmation_BadPayloadIsAcknowledged(t *testing.T) {
	sink := &recordingSink{}
	handle := handleConfirmation(sink, logger.NewNop())

	assert.NoError(t, handle(context.Background(), kafkago.Message{Value: []byte("{")}))
	assert.Empty(t, sink.got)
}

func TestHandleConfirmation_DeliveryFailureIsRetried(t *testing.T) {
	sink := &recordingSink{err: errors.New("mail down")}
	handle := handleConfirmation(sink, logger.NewNop())

	value, err := json.Marshal(models.TicketConfirmation{TxnRef: "T-2"})
	require.NoError(t, err)
	assert.Error(t, handle(context.Background(), kafkago.Message{Value: value}))
}
