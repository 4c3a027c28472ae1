package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	recipients []string
	err        error
}

func (r *recordingNotifier) Notify(ctx context.Context, recipientID string, msg Message) error {
	r.recipients = append(r.recipients, recipientID)
	return r.err
}

func TestRedisNotifierPublishes(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	sub := client.Subscribe(ctx, "test:notify")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	n := NewRedisNotifier(client, "test:notify")
	require.NoError(t, n.Notify(ctx, "42", Message{Kind: KindApproved, KeyName: "K1", Text: "approved"}))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &env))
	assert.Equal(t, "42", env.RecipientID)
	assert.Equal(t, KindApproved, env.Kind)
	assert.Equal(t, "K1", env.KeyName)
	assert.False(t, env.SentAt.IsZero())
}

func TestRedisNotifierUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	n := NewRedisNotifier(client, "")
	err := n.Notify(context.Background(), "42", Message{Kind: KindDenied})
	assert.Error(t, err)
}

func TestMultiNotifier(t *testing.T) {
	boom := errors.New("boom")
	a := &recordingNotifier{}
	b := &recordingNotifier{err: boom}

	m := MultiNotifier{a, b, LogNotifier{}}
	err := m.Notify(context.Background(), "7", Message{Kind: KindOverdue, KeyName: "K1"})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"7"}, a.recipients)
	assert.Equal(t, []string{"7"}, b.recipients)

	assert.NoError(t, MultiNotifier{a}.Notify(context.Background(), "8", Message{}))
}
