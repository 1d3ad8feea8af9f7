package xkafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xshadow/pkg/resilience/xretry"
	"github.com/omeyang/xshadow/pkg/shadow/xclassify"
	"github.com/omeyang/xshadow/pkg/shadow/xinvoke"
)

type seen struct {
	shadow   bool
	invokeID string
	typ      xinvoke.InvokeType
}

func TestConsumer_Consume(t *testing.T) {
	api := &fakeConsumer{}
	c := newConsumer(api, "billing", nil)

	api.push(
		message("orders", "a", header(xinvoke.HeaderClusterTest, "1"), header(xinvoke.HeaderInvokeID, "0.2")),
		message("orders", "b"),
		message("PT_orders", "c"),
	)

	var got []seen
	handler := func(ctx context.Context, _ *kafka.Message) error {
		ic := xinvoke.Current(ctx)
		got = append(got, seen{ic.IsClusterTest(), ic.InvokeID(), ic.Type()})
		return nil
	}
	for range 3 {
		require.NoError(t, c.Consume(context.Background(), handler))
	}

	assert.Equal(t, []seen{
		{true, "0.2", xinvoke.InvokeMQ},
		{false, xinvoke.RootInvokeID, xinvoke.InvokeMQ},
		{true, xinvoke.RootInvokeID, xinvoke.InvokeMQ},
	}, got)
	assert.Equal(t, 3, api.storedCount())
	assert.Equal(t, ConsumerStats{Consumed: 3, Shadow: 2}, c.Stats())
}

func TestConsumer_ShadowGroupName(t *testing.T) {
	api := &fakeConsumer{}
	c := newConsumer(api, "PT_billing", nil)
	api.push(message("orders", "a"))

	var shadow bool
	require.NoError(t, c.Consume(context.Background(), func(ctx context.Context, _ *kafka.Message) error {
		shadow = xinvoke.IsClusterTest(ctx)
		return nil
	}))
	assert.True(t, shadow)
}

func TestConsumer_SwitchOffDrops(t *testing.T) {
	api := &fakeConsumer{}
	cl := xclassify.New(xclassify.WithSwitch(xclassify.NewSwitch(false)))
	c := newConsumer(api, "billing", []Option{WithClassifier(cl)})
	api.push(message("PT_orders", "a"), message("orders", "b"))

	var values []string
	handler := func(_ context.Context, msg *kafka.Message) error {
		values = append(values, string(msg.Value))
		return nil
	}
	require.NoError(t, c.Consume(context.Background(), handler))
	require.NoError(t, c.Consume(context.Background(), handler))

	assert.Equal(t, []string{"b"}, values)
	assert.Equal(t, 2, api.storedCount())
	assert.Equal(t, int64(1), c.Stats().Dropped)
}

func TestConsumer_HandlerErrorSkipsStore(t *testing.T) {
	api := &fakeConsumer{}
	c := newConsumer(api, "billing", nil)
	api.push(message("orders", "a"))

	boom := errors.New("boom")
	err := c.Consume(context.Background(), func(context.Context, *kafka.Message) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, api.storedCount())
}

func TestConsumer_ReadError(t *testing.T) {
	api := &fakeConsumer{readErr: kafka.NewError(kafka.ErrTransport, "broker down", false)}
	c := newConsumer(api, "billing", nil)

	err := c.Consume(context.Background(), func(context.Context, *kafka.Message) error { return nil })
	var kerr kafka.Error
	require.ErrorAs(t, err, &kerr)
	assert.Equal(t, kafka.ErrTransport, kerr.Code())
}

func TestConsumer_ConsumeLoop(t *testing.T) {
	api := &fakeConsumer{readErr: kafka.NewError(kafka.ErrTransport, "broker down", false)}
	c := newConsumer(api, "billing", []Option{WithBackoff(xretry.FixedBackoff(time.Millisecond))})
	api.push(message("orders", "a"), message("orders", "b"))

	ctx, cancel := context.WithCancel(context.Background())
	var mu sync.Mutex
	var values []string
	done := make(chan error, 1)
	go func() {
		done <- c.ConsumeLoop(ctx, func(_ context.Context, msg *kafka.Message) error {
			mu.Lock()
			defer mu.Unlock()
			values = append(values, string(msg.Value))
			return nil
		})
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(values) == 2
	}, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, int64(1), c.Stats().Errors)
}

func TestConsumer_Close(t *testing.T) {
	api := &fakeConsumer{}
	c := newConsumer(api, "billing", nil)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.True(t, api.closed)

	err := c.Consume(context.Background(), func(context.Context, *kafka.Message) error { return nil })
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, c.Consume(context.Background(), nil), ErrNilHandler)
	assert.ErrorIs(t, c.ConsumeLoop(context.Background(), nil), ErrNilHandler)
}

func TestNewConsumer_InvalidArguments(t *testing.T) {
	_, err := NewConsumer(nil, []string{"orders"})
	assert.ErrorIs(t, err, ErrNilConfig)
	_, err = NewConsumer(&kafka.ConfigMap{}, nil)
	assert.ErrorIs(t, err, ErrEmptyTopics)
}
