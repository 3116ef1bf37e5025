package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-reservation/internal/logger"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestPublish_EncodesJSONWithTopicAndKey(t *testing.T) {
	w := &fakeWriter{}
	p := &Producer{writer: w, logger: logger.NewNop()}

	err := p.Publish(context.Background(), "reservation.seats.status", "5", map[string]interface{}{"event_id": 5, "status": "HELD"})
	require.NoError(t, err)

	require.Len(t, w.msgs, 1)
	assert.Equal(t, "reservation.seats.status", w.msgs[0].Topic)
	assert.Equal(t, "5", string(w.msgs[0].Key))
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &decoded))
	assert.Equal(t, "HELD", decoded["status"])
}

func TestPublish_WrapsWriterError(t *testing.T) {
	boom := errors.New("broker down")
	p := &Producer{writer: &fakeWriter{err: boom}, logger: logger.NewNop()}

	err := p.Publish(context.Background(), "t", "k", "v")
	assert.True(t, errors.Is(err, boom))
}

func TestPublish_UnencodableValue(t *testing.T) {
	p := &Producer{writer: &fakeWriter{}, logger: logger.NewNop()}
	err := p.Publish(context.Background(), "t", "k", make(chan int))
	assert.Error(t, err)
}

type producerTestReader struct {
	msgs      []kafka.Message
	committed []int64
	cancel    context.CancelFunc
}

func (r *producerTestReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.msgs) == 0 {
		r.cancel()
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	msg := r.msgs[0]
	r.msgs = r.msgs[1:]
	return msg, nil
}

func (r *producerTestReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *producerTestReader) Close() error { return nil }

func TestConsumerRun_CommitsOnlyHandledMessages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	reader := &producerTestReader{
		msgs:   []kafka.Message{{Offset: 1, Value: []byte("ok")}, {Offset: 2, Value: []byte("bad")}, {Offset: 3, Value: []byte("ok")}},
		cancel: cancel,
	}
	c := &Consumer{reader: reader, topic: "t", logger: logger.NewNop()}

	err := c.Run(ctx, func(_ context.Context, msg kafka.Message) error {
		if string(msg.Value) == "bad" {
			return errors.New("cannot handle")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, reader.committed)
}
