package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maison-luxe/storefront/internal/services"
)

type fakeWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaOrderPublisherWritesKeyedMessage(t *testing.T) {
	writer := &fakeWriter{}
	publisher := newKafkaOrderPublisher(writer)

	ref, err := publisher.PublishOrderCompleted(context.Background(), sampleEvent())
	require.NoError(t, err)
	assert.Equal(t, "01JORDER", ref)
	require.Len(t, writer.messages, 1)

	msg := writer.messages[0]
	assert.Equal(t, []byte("01JORDER"), msg.Key)
	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "event_type", msg.Headers[0].Key)
	assert.Equal(t, []byte(services.OrderCompletedEventType), msg.Headers[0].Value)

	var payload services.OrderCompletedEvent
	require.NoError(t, json.Unmarshal(msg.Value, &payload))
	assert.Equal(t, 2, payload.ItemCount)

	require.NoError(t, publisher.Close())
	assert.True(t, writer.closed)
}

func TestKafkaOrderPublisherWrapsWriteError(t *testing.T) {
	publisher := newKafkaOrderPublisher(&fakeWriter{err: errors.New("leader not available")})

	_, err := publisher.PublishOrderCompleted(context.Background(), sampleEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "leader not available")
}

func TestNewKafkaOrderPublisherValidates(t *testing.T) {
	_, err := NewKafkaOrderPublisher("", []string{"localhost:9092"})
	assert.Error(t, err)
	_, err = NewKafkaOrderPublisher("orders", nil)
	assert.Error(t, err)

	logged := kafka.LoggerFunc(func(string, ...interface{}) {})
	publisher, err := NewKafkaOrderPublisher("orders", []string{"localhost:9092"}, WithKafkaErrorLogger(logged))
	require.NoError(t, err)
	assert.NoError(t, publisher.Close())
}

type stubSink struct {
	id  string
	err error
	n   int
}

func (s *stubSink) PublishOrderCompleted(context.Context, services.OrderCompletedEvent) (string, error) {
	s.n++
	return s.id, s.err
}

func TestFanoutPublisherAttemptsEverySink(t *testing.T) {
	failing := &stubSink{err: errors.New("down")}
	healthy := &stubSink{id: "msg-1"}
	fanout := NewFanoutPublisher().Add("pubsub", failing).Add("kafka", healthy).Add("none", nil)

	assert.Equal(t, 2, fanout.Len())
	ref, err := fanout.PublishOrderCompleted(context.Background(), sampleEvent())
	assert.Equal(t, "msg-1", ref)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pubsub: down")
	assert.Equal(t, 1, failing.n)
	assert.Equal(t, 1, healthy.n)
}
