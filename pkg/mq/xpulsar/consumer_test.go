package xpulsar

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/apache/pulsar-client-go/pulsar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xshadow/pkg/resilience/xretry"
	"github.com/omeyang/xshadow/pkg/shadow/xclassify"
	"github.com/omeyang/xshadow/pkg/shadow/xconsumer"
	"github.com/omeyang/xshadow/pkg/shadow/xinvoke"
)

func TestConsumer_Consume(t *testing.T) {
	mc := newMockConsumer("billing")
	c, err := WrapConsumer(mc)
	require.NoError(t, err)
	assert.Equal(t, "billing", c.Subscription())

	mc.msgs <- &mockMessage{topic: "orders", payload: []byte("a"),
		properties: map[string]string{xinvoke.HeaderClusterTest: "true", xinvoke.HeaderTraceID: "t-1"}}
	mc.msgs <- &mockMessage{topic: "orders", payload: []byte("b")}

	var shadow []bool
	var traces []string
	handler := func(ctx context.Context, _ pulsar.Message) error {
		shadow = append(shadow, xinvoke.IsClusterTest(ctx))
		traces = append(traces, xinvoke.TraceID(ctx))
		assert.Equal(t, xinvoke.InvokeMQ, xinvoke.Current(ctx).Type())
		return nil
	}
	require.NoError(t, c.Consume(context.Background(), handler))
	require.NoError(t, c.Consume(context.Background(), handler))

	assert.Equal(t, []bool{true, false}, shadow)
	assert.Equal(t, "t-1", traces[0])
	acked, nacked := mc.counts()
	assert.Equal(t, 2, acked)
	assert.Zero(t, nacked)
	assert.Equal(t, ConsumerStats{Consumed: 2, Shadow: 1}, c.Stats())
}

func TestConsumer_HandlerErrorNacks(t *testing.T) {
	mc := newMockConsumer("billing")
	c, err := WrapConsumer(mc)
	require.NoError(t, err)
	mc.msgs <- &mockMessage{topic: "orders"}

	err = c.Consume(context.Background(), func(context.Context, pulsar.Message) error { return errBoom })
	assert.ErrorIs(t, err, errBoom)
	acked, nacked := mc.counts()
	assert.Zero(t, acked)
	assert.Equal(t, 1, nacked)
}

func TestConsumer_AckErrorIgnored(t *testing.T) {
	mc := newMockConsumer("billing")
	mc.ackErr = errBoom
	c, err := WrapConsumer(mc)
	require.NoError(t, err)
	mc.msgs <- &mockMessage{topic: "orders"}

	assert.NoError(t, c.Consume(context.Background(), func(context.Context, pulsar.Message) error { return nil }))
}

func TestConsumer_SwitchOffDrops(t *testing.T) {
	mc := newMockConsumer("PT_billing")
	cl := xclassify.New(xclassify.WithSwitch(xclassify.NewSwitch(false)))
	c, err := WrapConsumer(mc, WithClassifier(cl))
	require.NoError(t, err)
	mc.msgs <- &mockMessage{topic: "orders"}

	called := false
	require.NoError(t, c.Consume(context.Background(), func(context.Context, pulsar.Message) error {
		called = true
		return nil
	}))
	assert.False(t, called)
	acked, _ := mc.counts()
	assert.Equal(t, 1, acked)
	assert.Equal(t, int64(1), c.Stats().Dropped)
}

func TestConsumer_ConsumeLoop(t *testing.T) {
	mc := newMockConsumer("billing")
	mc.receiveErr = errBoom
	c, err := WrapConsumer(mc, WithBackoff(xretry.FixedBackoff(time.Millisecond)))
	require.NoError(t, err)
	mc.msgs <- &mockMessage{topic: "orders"}

	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan struct{}, 1)
	done := make(chan error, 1)
	go func() {
		done <- c.ConsumeLoop(ctx, func(context.Context, pulsar.Message) error {
			got <- struct{}{}
			return nil
		})
	}()

	select {
	case <-got:
	case <-time.After(time.Second):
		t.Fatal("message not consumed")
	}
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, int64(1), c.Stats().Errors)
	assert.ErrorIs(t, c.ConsumeLoop(ctx, nil), ErrNilHandler)
}

func TestNewConsumer(t *testing.T) {
	client := &mockClient{}
	c, err := NewConsumer(client, pulsar.ConsumerOptions{Topic: "orders", SubscriptionName: "billing"})
	require.NoError(t, err)
	c.Close()
	c.Close()
	assert.True(t, client.consumers[0].isClosed())

	_, err = NewConsumer(nil, pulsar.ConsumerOptions{})
	assert.ErrorIs(t, err, ErrNilClient)
	_, err = NewConsumer(client, pulsar.ConsumerOptions{SubscriptionName: "s"})
	assert.ErrorIs(t, err, ErrEmptyTopic)
	_, err = NewConsumer(client, pulsar.ConsumerOptions{Topic: "t"})
	assert.ErrorIs(t, err, ErrEmptySubscription)
	_, err = NewConsumer(&mockClient{subscribeErr: errBoom}, pulsar.ConsumerOptions{Topic: "t", SubscriptionName: "s"})
	assert.ErrorIs(t, err, errBoom)
	_, err = WrapConsumer(nil)
	assert.ErrorIs(t, err, ErrNilConsumer)
}

func TestSubscriber_Subscribe(t *testing.T) {
	client := &mockClient{}
	s, err := NewSubscriber(client, WithSubscriptionType(pulsar.KeyShared))
	require.NoError(t, err)

	var mu sync.Mutex
	var got []*xconsumer.Message
	sub, err := s.Subscribe(context.Background(), nil, xconsumer.Consumer{
		Tag:       "PT_worker",
		Topic:     "PT_orders",
		Group:     "PT_billing",
		Arguments: map[string]any{"region": "cn", "ignored": 3},
		Handler: func(_ context.Context, msg *xconsumer.Message) error {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, msg)
			return nil
		},
	})
	require.NoError(t, err)

	opts := client.subscribed[0]
	assert.Equal(t, "PT_orders", opts.Topic)
	assert.Equal(t, "PT_billing", opts.SubscriptionName)
	assert.Equal(t, "PT_worker", opts.Name)
	assert.Equal(t, pulsar.KeyShared, opts.Type)
	assert.Equal(t, map[string]string{"region": "cn"}, opts.Properties)

	client.consumers[0].msgs <- &mockMessage{topic: "PT_orders", key: "k", payload: []byte("v"),
		properties: map[string]string{"p": "1"}}
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	msg := got[0]
	mu.Unlock()
	assert.Equal(t, "PT_orders", msg.Topic)
	assert.Equal(t, "k", msg.Key)
	assert.Equal(t, []byte("v"), msg.Value)
	assert.Equal(t, "1", msg.Header("p"))

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
	assert.True(t, client.consumers[0].isClosed())
}

func TestSubscriber_InvalidArguments(t *testing.T) {
	_, err := NewSubscriber(nil)
	assert.ErrorIs(t, err, ErrNilClient)

	s, err := NewSubscriber(&mockClient{})
	require.NoError(t, err)
	h := func(context.Context, *xconsumer.Message) error { return nil }
	_, err = s.Subscribe(context.Background(), nil, xconsumer.Consumer{Group: "g", Handler: h})
	assert.ErrorIs(t, err, ErrEmptyTopic)
	_, err = s.Subscribe(context.Background(), nil, xconsumer.Consumer{Topic: "t", Handler: h})
	assert.ErrorIs(t, err, ErrEmptySubscription)
	_, err = s.Subscribe(context.Background(), nil, xconsumer.Consumer{Topic: "t", Group: "g"})
	assert.ErrorIs(t, err, ErrNilHandler)
}

func TestConnection(t *testing.T) {
	c := NewConnection("pulsar://broker/app", xconsumer.Consumer{Topic: "a"})
	assert.Equal(t, "pulsar://broker/app", c.ID())
	assert.Len(t, c.Consumers(), 1)
}
