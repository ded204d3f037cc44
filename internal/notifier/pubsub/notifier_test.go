package pubsub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

type event struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

func (e event) Attributes() map[string]string {
	return map[string]string{"status": e.Status}
}

func TestNotifierPublish(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Create a fake Pub/Sub server.
	srv := pstest.NewServer()
	defer func() { _ = srv.Close() }()

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	client, err := pubsub.NewClient(ctx, "project-id", option.WithGRPCConn(conn))
	require.NoError(t, err)

	topic, err := client.CreateTopic(ctx, "clone-events")
	require.NoError(t, err)
	sub, err := client.CreateSubscription(ctx, "sub-id", pubsub.SubscriptionConfig{Topic: topic})
	require.NoError(t, err)

	notifier := New(client)
	id, err := notifier.Publish(ctx, "clone-events", event{JobID: "job-1", Status: "completed"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	received := make(chan *pubsub.Message, 1)
	recvCtx, stop := context.WithCancel(ctx)
	go func() {
		_ = sub.Receive(recvCtx, func(_ context.Context, msg *pubsub.Message) {
			msg.Ack()
			select {
			case received <- msg:
			default:
			}
		})
	}()

	select {
	case msg := <-received:
		var got event
		require.NoError(t, json.Unmarshal(msg.Data, &got))
		assert.Equal(t, "job-1", got.JobID)
		assert.Equal(t, "completed", msg.Attributes["status"])
	case <-ctx.Done():
		t.Fatal("message was not delivered")
	}
	stop()

	assert.NoError(t, notifier.Close())
}

func TestNotifierRequiresTopic(t *testing.T) {
	t.Parallel()

	_, err := New(nil).Publish(context.Background(), "t", "payload")
	require.ErrorContains(t, err, "not configured")
}
