package xpulsar

import (
	"context"
	"errors"
	"testing"

	"github.com/apache/pulsar-client-go/pulsar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xshadow/pkg/shadow/xinvoke"
	"github.com/omeyang/xshadow/pkg/shadow/xmediator"
	"github.com/omeyang/xshadow/pkg/shadow/xwhitelist"
)

func shadowCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, err := xinvoke.EnterWith(context.Background(),
		xinvoke.NewRoot(xinvoke.WithTraceID("trace-1"), xinvoke.WithClusterTest(true)))
	require.NoError(t, err)
	return ctx
}

func prodCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, err := xinvoke.EnterWith(context.Background(), xinvoke.NewRoot(xinvoke.WithTraceID("trace-2")))
	require.NoError(t, err)
	return ctx
}

func TestProducer_Send(t *testing.T) {
	client := &mockClient{}
	p, err := NewProducer(client, pulsar.ProducerOptions{Topic: "orders", Name: "orders-producer"})
	require.NoError(t, err)
	defer func() { require.NoError(t, p.Close()) }()

	t.Run("生产流量发往业务主题", func(t *testing.T) {
		_, err := p.Send(prodCtx(t), &pulsar.ProducerMessage{Payload: []byte("a")})
		require.NoError(t, err)
		out := client.producer("orders").last()
		require.NotNil(t, out)
		assert.Equal(t, "trace-2", out.Properties[xinvoke.HeaderTraceID])
		assert.NotContains(t, out.Properties, xinvoke.HeaderClusterTest)
		assert.Nil(t, client.producer("PT_orders"))
	})

	t.Run("影子流量发往影子主题", func(t *testing.T) {
		msg := &pulsar.ProducerMessage{Payload: []byte("b"), Properties: map[string]string{"biz": "1"}}
		_, err := p.Send(shadowCtx(t), msg)
		require.NoError(t, err)

		shadow := client.producer("PT_orders")
		require.NotNil(t, shadow)
		out := shadow.last()
		assert.Equal(t, "1", out.Properties["biz"])
		assert.Equal(t, "1", out.Properties[xinvoke.HeaderClusterTest])
		assert.Equal(t, "0.1", out.Properties[xinvoke.HeaderInvokeID])
		assert.Equal(t, map[string]string{"biz": "1"}, msg.Properties)

		// 影子生产者只创建一次，名称由 broker 分配
		_, err = p.Send(shadowCtx(t), &pulsar.ProducerMessage{Payload: []byte("c")})
		require.NoError(t, err)
		assert.Equal(t, int64(1), p.Binding().Derivations())
		assert.Len(t, client.created, 2)
		assert.Empty(t, client.created[1].Name)
	})

	t.Run("异步发送", func(t *testing.T) {
		done := make(chan error, 1)
		p.SendAsync(shadowCtx(t), &pulsar.ProducerMessage{Payload: []byte("d")},
			func(_ pulsar.MessageID, m *pulsar.ProducerMessage, err error) {
				assert.Equal(t, "1", m.Properties[xinvoke.HeaderClusterTest])
				done <- err
			})
		require.NoError(t, <-done)

		p.SendAsync(context.Background(), nil, func(_ pulsar.MessageID, _ *pulsar.ProducerMessage, err error) {
			done <- err
		})
		assert.ErrorIs(t, <-done, ErrNilMessage)
	})

	t.Run("Flush", func(t *testing.T) {
		require.NoError(t, p.Flush(context.Background()))
		assert.Equal(t, 1, client.producer("orders").flushed)
		assert.Equal(t, 1, client.producer("PT_orders").flushed)
	})
}

func TestProducer_ShadowUnavailable(t *testing.T) {
	business := &mockProducer{topic: "orders"}
	client := &mockClient{createProducerErr: errBoom}
	p, err := WrapProducer(client, business)
	require.NoError(t, err)

	_, err = p.Send(shadowCtx(t), &pulsar.ProducerMessage{Payload: []byte("a")})
	var unavailable *xmediator.ShadowUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Nil(t, business.last())
}

func TestProducer_WhitelistDenied(t *testing.T) {
	gate, err := xwhitelist.New([]xwhitelist.Entry{xwhitelist.Topic("payments")})
	require.NoError(t, err)
	client := &mockClient{}
	p, err := NewProducer(client, pulsar.ProducerOptions{Topic: "orders"}, WithGate(gate))
	require.NoError(t, err)

	_, err = p.Send(shadowCtx(t), &pulsar.ProducerMessage{})
	var denied *xwhitelist.DeniedError
	require.ErrorAs(t, err, &denied)
	assert.Nil(t, client.producer("PT_orders"))

	_, err = p.Send(prodCtx(t), &pulsar.ProducerMessage{})
	assert.NoError(t, err)
}

func TestProducer_Close(t *testing.T) {
	client := &mockClient{}
	p, err := NewProducer(client, pulsar.ProducerOptions{Topic: "orders"})
	require.NoError(t, err)
	_, err = p.Send(shadowCtx(t), &pulsar.ProducerMessage{})
	require.NoError(t, err)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.True(t, client.producer("orders").closed)
	assert.True(t, client.producer("PT_orders").closed)
}

func TestNewProducer_InvalidArguments(t *testing.T) {
	_, err := NewProducer(nil, pulsar.ProducerOptions{Topic: "t"})
	assert.ErrorIs(t, err, ErrNilClient)
	_, err = NewProducer(&mockClient{}, pulsar.ProducerOptions{})
	assert.ErrorIs(t, err, ErrEmptyTopic)
	_, err = NewProducer(&mockClient{createProducerErr: errBoom}, pulsar.ProducerOptions{Topic: "t"})
	assert.True(t, errors.Is(err, errBoom))
	_, err = WrapProducer(&mockClient{}, nil)
	assert.ErrorIs(t, err, ErrNilProducer)
	_, err = WrapProducer(nil, &mockProducer{})
	assert.ErrorIs(t, err, ErrNilClient)

	p, err := NewProducer(&mockClient{}, pulsar.ProducerOptions{Topic: "t"})
	require.NoError(t, err)
	_, err = p.Send(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNilMessage)
}
