package kafka_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	kafkax "github.com/ariefcatur/go-realtime-drops/internal/kafka"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	DropID   string  `json:"drop_id"`
	Progress float64 `json:"progress"`
}

func TestUnwrapPayload(t *testing.T) {
	raw := json.RawMessage(kafkax.MustMarshal(payload{DropID: "D1", Progress: 0.5}))
	p, err := kafkax.UnwrapPayload[payload](raw)
	require.NoError(t, err)
	assert.Equal(t, payload{DropID: "D1", Progress: 0.5}, p)

	_, err = kafkax.UnwrapPayload[payload](json.RawMessage(`[1,2]`))
	assert.ErrorContains(t, err, "decode payload")
}

func TestMustMarshal_Panics(t *testing.T) {
	assert.Panics(t, func() { kafkax.MustMarshal(make(chan int)) })
}

func TestEventHeaders(t *testing.T) {
	h := kafkax.EventHeaders("ProgressUpdated", 1)
	require.Len(t, h, 2)
	assert.Equal(t, kafkax.HeaderEventType, h[0].Key)
	assert.Equal(t, "ProgressUpdated", string(h[0].Value))
	assert.Equal(t, "1", string(h[1].Value))
}

func TestProducer_CloseIsIdempotent(t *testing.T) {
	p := kafkax.NewProducer([]string{"127.0.0.1:1"}, "drop.test", 1, nil)
	p.Start(context.Background())
	p.Close()
	p.Close()

	done := make(chan struct{})
	go func() {
		p.WaitClosed()
		p.Publish([]byte("k"), []byte("v"))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("producer did not shut down")
	}
}

func TestBackoff_RetriesUntilHandled(t *testing.T) {
	var calls int
	h := func(context.Context, kafkago.Message) error {
		calls++
		if calls < 3 {
			return errors.New("ledger down")
		}
		return nil
	}
	b := kafkax.Backoff{Initial: time.Millisecond, Max: 2 * time.Millisecond}

	err := b.Handle(context.Background(), h, kafkago.Message{Offset: 7}, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestBackoff_StopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int
	h := func(context.Context, kafkago.Message) error {
		calls++
		if calls == 2 {
			cancel()
		}
		return errors.New("ledger down")
	}
	b := kafkax.Backoff{Initial: time.Millisecond, Max: time.Millisecond}

	done := make(chan error, 1)
	go func() { done <- b.Handle(ctx, h, kafkago.Message{}, nil) }()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 2, calls)
	case <-time.After(2 * time.Second):
		t.Fatal("retry loop ignored cancellation")
	}
}
