package redis

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func publishTestPayload(t *testing.T, client *goredis.Client, stream string, payload testPayload) {
	t.Helper()
	values, err := EncodeStreamValue(payload)
	require.NoError(t, err)
	require.NoError(t, client.XAdd(context.Background(), &goredis.XAddArgs{Stream: stream, Values: values}).Err())
}

func TestConsumerReadsFromStartID(t *testing.T) {
	_, client := setupTest(t)
	publishTestPayload(t, client, "test-stream", testPayload{ID: "1", Data: "first"})
	publishTestPayload(t, client, "test-stream", testPayload{ID: "2", Data: "second"})

	consumer, err := NewConsumer[testPayload](client, "test-stream",
		WithConsumerStartID[testPayload]("0"),
		WithConsumerBlockTimeout[testPayload](50*time.Millisecond),
	)
	require.NoError(t, err)

	consumer.Start()
	defer consumer.Close()

	var received []testPayload
	for range 2 {
		select {
		case payload := <-consumer.Subscribe():
			received = append(received, payload)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for message")
		}
	}
	require.Len(t, received, 2)
	assert.Equal(t, "first", received[0].Data)
	assert.Equal(t, "second", received[1].Data)
}

func TestConsumerSkipsUndecodableMessages(t *testing.T) {
	_, client := setupTest(t)
	require.NoError(t, client.XAdd(context.Background(), &goredis.XAddArgs{Stream: "test-stream", Values: map[string]any{"payload": "$$$"}}).Err())
	publishTestPayload(t, client, "test-stream", testPayload{ID: "2", Data: "good"})

	consumer, err := NewConsumer[testPayload](client, "test-stream",
		WithConsumerStartID[testPayload]("0"),
		WithConsumerBlockTimeout[testPayload](50*time.Millisecond),
	)
	require.NoError(t, err)

	consumer.Start()
	defer consumer.Close()

	select {
	case payload := <-consumer.Subscribe():
		assert.Equal(t, "good", payload.Data)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestConsumerCloseIsIdempotent(t *testing.T) {
	_, client := setupTest(t)
	consumer, err := NewConsumer[testPayload](client, "test-stream",
		WithConsumerBlockTimeout[testPayload](50*time.Millisecond),
	)
	require.NoError(t, err)

	consumer.Start()
	consumer.Close()
	consumer.Close()
}
