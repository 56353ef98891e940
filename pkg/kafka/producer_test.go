package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func header(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestProducer_Publish(t *testing.T) {
	writer := &fakeWriter{}
	producer := NewProducerWithWriter(writer, "identity-events", testLogger())

	err := producer.Publish(context.Background(), "42", "contact.linked", map[string]any{"primary": 42})
	require.NoError(t, err)
	require.Len(t, writer.messages, 1)

	msg := writer.messages[0]
	assert.Equal(t, "identity-events", msg.Topic)
	assert.Equal(t, "42", string(msg.Key))
	assert.Equal(t, "contact.linked", header(msg, "event_type"))
	assert.Equal(t, SchemaVersion, header(msg, "schema_version"))
	assert.Empty(t, header(msg, "traceparent"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &body))
	assert.Equal(t, float64(42), body["primary"])
}

func TestProducer_PublishError(t *testing.T) {
	writer := &fakeWriter{err: errors.New("leader not available")}
	producer := NewProducerWithWriter(writer, "identity-events", testLogger())

	err := producer.Publish(context.Background(), "1", "contact.created", struct{}{})
	assert.EqualError(t, err, "leader not available")
}

func TestProducer_Close(t *testing.T) {
	writer := &fakeWriter{}
	require.NoError(t, NewProducerWithWriter(writer, "t", testLogger()).Close())
	assert.True(t, writer.closed)
}

func TestParseBrokers(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, ParseBrokers(" a:9092, ,b:9092 "))
	assert.Nil(t, ParseBrokers(""))
}

func TestCompression(t *testing.T) {
	assert.Equal(t, kafka.Gzip, compression("gzip"))
	assert.Equal(t, kafka.Zstd, compression("zstd"))
	assert.Equal(t, kafka.Compression(0), compression("none"))
	assert.Equal(t, kafka.Snappy, compression(""))
}
