package xkafka

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xshadow/pkg/shadow/xinvoke"
)

type fakeProducer struct {
	mu      sync.Mutex
	sent    []*kafka.Message
	err     error
	pending int
	closed  bool
	flushed int
}

func (f *fakeProducer) Produce(msg *kafka.Message, _ chan kafka.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeProducer) Flush(timeoutMs int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushed = timeoutMs
	return f.pending
}

func (f *fakeProducer) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending
}

func (f *fakeProducer) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeProducer) last(t *testing.T) *kafka.Message {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.sent)
	return f.sent[len(f.sent)-1]
}

// fakeConsumer 依次返回 msgs，之后返回轮询超时。
type fakeConsumer struct {
	mu      sync.Mutex
	msgs    []*kafka.Message
	readErr error
	stored  []*kafka.Message
	closed  bool
}

func (f *fakeConsumer) push(msgs ...*kafka.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msgs...)
}

func (f *fakeConsumer) ReadMessage(timeout time.Duration) (*kafka.Message, error) {
	f.mu.Lock()
	if f.readErr != nil {
		err := f.readErr
		f.readErr = nil
		f.mu.Unlock()
		return nil, err
	}
	if len(f.msgs) > 0 {
		msg := f.msgs[0]
		f.msgs = f.msgs[1:]
		f.mu.Unlock()
		return msg, nil
	}
	f.mu.Unlock()
	time.Sleep(min(timeout, 5*time.Millisecond))
	return nil, kafka.NewError(kafka.ErrTimedOut, "timed out", false)
}

func (f *fakeConsumer) StoreMessage(m *kafka.Message) ([]kafka.TopicPartition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stored = append(f.stored, m)
	return []kafka.TopicPartition{m.TopicPartition}, nil
}

func (f *fakeConsumer) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConsumer) storedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.stored)
}

func message(topic, value string, headers ...kafka.Header) *kafka.Message {
	return &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: 0},
		Value:          []byte(value),
		Headers:        headers,
	}
}

func header(k, v string) kafka.Header { return kafka.Header{Key: k, Value: []byte(v)} }

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
