package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupGroupStream(t *testing.T, client *goredis.Client, stream, group string) {
	t.Helper()
	require.NoError(t, client.XGroupCreateMkStream(context.Background(), stream, group, "0").Err())
}

func receiveMessage[T any](t *testing.T, gc IGroupConsumer[T]) *Message[T] {
	t.Helper()
	select {
	case msg := <-gc.Subscribe():
		require.NotNil(t, msg)
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func TestGroupConsumerDeliversAndAcks(t *testing.T) {
	_, client := setupTest(t)
	setupGroupStream(t, client, "sales", "sync")
	publishTestPayload(t, client, "sales", testPayload{ID: "1", Data: "sold"})

	gc, err := NewGroupConsumer[testPayload](client, "sales", "sync", "worker-1",
		WithGroupConsumerBlockTimeout[testPayload](50*time.Millisecond),
	)
	require.NoError(t, err)
	require.NoError(t, gc.Start())
	defer gc.Close()

	msg := receiveMessage(t, gc)
	assert.Equal(t, "sold", msg.Data.Data)
	require.NoError(t, msg.Done(context.Background()))

	pending, err := client.XPending(context.Background(), "sales", "sync").Result()
	require.NoError(t, err)
	assert.Zero(t, pending.Count)
}

func TestGroupConsumerReplaysPendingOnRestart(t *testing.T) {
	_, client := setupTest(t)
	setupGroupStream(t, client, "sales", "sync")
	publishTestPayload(t, client, "sales", testPayload{ID: "1", Data: "sold"})

	// 第一個實例收到訊息但沒有ack就關閉
	first, err := NewGroupConsumer[testPayload](client, "sales", "sync", "worker-1",
		WithGroupConsumerBlockTimeout[testPayload](50*time.Millisecond),
	)
	require.NoError(t, err)
	require.NoError(t, first.Start())
	_ = receiveMessage(t, first)
	require.NoError(t, first.Close())

	// 同名consumer重啟後要先重放pending訊息
	second, err := NewGroupConsumer[testPayload](client, "sales", "sync", "worker-1",
		WithGroupConsumerBlockTimeout[testPayload](50*time.Millisecond),
	)
	require.NoError(t, err)
	require.NoError(t, second.Start())
	defer second.Close()

	msg := receiveMessage(t, second)
	assert.Equal(t, "sold", msg.Data.Data)
	require.NoError(t, msg.Done(context.Background()))
}

func TestGroupConsumerFailMovesToDeadLetter(t *testing.T) {
	_, client := setupTest(t)
	setupGroupStream(t, client, "sales", "sync")
	publishTestPayload(t, client, "sales", testPayload{ID: "1", Data: "bad"})

	gc, err := NewGroupConsumer[testPayload](client, "sales", "sync", "worker-1",
		WithGroupConsumerBlockTimeout[testPayload](50*time.Millisecond),
	)
	require.NoError(t, err)
	require.NoError(t, gc.Start())
	defer gc.Close()

	msg := receiveMessage(t, gc)
	require.NoError(t, msg.Fail(context.Background(), errors.New("cannot persist")))

	ctx := context.Background()
	deadLetters, err := client.XRange(ctx, "sales:dead-letter", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, deadLetters, 1)
	assert.Equal(t, "cannot persist", deadLetters[0].Values["error"])

	pending, err := client.XPending(ctx, "sales", "sync").Result()
	require.NoError(t, err)
	assert.Zero(t, pending.Count)
}

func TestGroupConsumerUndecodableGoesToDeadLetter(t *testing.T) {
	_, client := setupTest(t)
	setupGroupStream(t, client, "sales", "sync")
	require.NoError(t, client.XAdd(context.Background(), &goredis.XAddArgs{Stream: "sales", Values: map[string]any{"payload": "$$$"}}).Err())
	publishTestPayload(t, client, "sales", testPayload{ID: "2", Data: "good"})

	gc, err := NewGroupConsumer[testPayload](client, "sales", "sync", "worker-1",
		WithGroupConsumerBlockTimeout[testPayload](50*time.Millisecond),
	)
	require.NoError(t, err)
	require.NoError(t, gc.Start())
	defer gc.Close()

	msg := receiveMessage(t, gc)
	assert.Equal(t, "good", msg.Data.Data)
	require.NoError(t, msg.Done(context.Background()))

	deadLetters, err := client.XRange(context.Background(), "sales:dead-letter", "-", "+").Result()
	require.NoError(t, err)
	assert.Len(t, deadLetters, 1)
}
