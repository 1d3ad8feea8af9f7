package xpulsar

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/apache/pulsar-client-go/pulsar"
)

// =============================================================================
// mockClient
// =============================================================================

type mockClient struct {
	mu                sync.Mutex
	createProducerErr error
	subscribeErr      error
	producers         map[string]*mockProducer
	consumers         []*mockConsumer
	subscribed        []pulsar.ConsumerOptions
	created           []pulsar.ProducerOptions
}

func (m *mockClient) CreateProducer(options pulsar.ProducerOptions) (pulsar.Producer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createProducerErr != nil {
		return nil, m.createProducerErr
	}
	if m.producers == nil {
		m.producers = map[string]*mockProducer{}
	}
	p := &mockProducer{topic: options.Topic}
	m.producers[options.Topic] = p
	m.created = append(m.created, options)
	return p, nil
}

func (m *mockClient) Subscribe(options pulsar.ConsumerOptions) (pulsar.Consumer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subscribeErr != nil {
		return nil, m.subscribeErr
	}
	c := newMockConsumer(options.SubscriptionName)
	m.consumers = append(m.consumers, c)
	m.subscribed = append(m.subscribed, options)
	return c, nil
}

func (m *mockClient) producer(topic string) *mockProducer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.producers[topic]
}

// =============================================================================
// mockProducer
// =============================================================================

type mockProducer struct {
	topic string

	mu      sync.Mutex
	sendErr error
	sent    []*pulsar.ProducerMessage
	closed  bool
	flushed int
}

func (m *mockProducer) Topic() string { return m.topic }
func (m *mockProducer) Name() string  { return "mock-producer" }
func (m *mockProducer) Send(_ context.Context, msg *pulsar.ProducerMessage) (pulsar.MessageID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return nil, m.sendErr
	}
	m.sent = append(m.sent, msg)
	return pulsar.EarliestMessageID(), nil
}
func (m *mockProducer) SendAsync(ctx context.Context, msg *pulsar.ProducerMessage, callback func(pulsar.MessageID, *pulsar.ProducerMessage, error)) {
	id, err := m.Send(ctx, msg)
	callback(id, msg, err)
}
func (m *mockProducer) LastSequenceID() int64 { return 0 }
func (m *mockProducer) Flush() error          { return m.FlushWithCtx(context.Background()) }
func (m *mockProducer) FlushWithCtx(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushed++
	return nil
}
func (m *mockProducer) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
}

func (m *mockProducer) last() *pulsar.ProducerMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return nil
	}
	return m.sent[len(m.sent)-1]
}

// =============================================================================
// mockConsumer
// =============================================================================

type mockConsumer struct {
	sub  string
	msgs chan pulsar.Message

	mu         sync.Mutex
	receiveErr error
	ackErr     error
	acked      []pulsar.Message
	nacked     []pulsar.Message
	closed     bool
}

func newMockConsumer(sub string) *mockConsumer {
	return &mockConsumer{sub: sub, msgs: make(chan pulsar.Message, 16)}
}

func (m *mockConsumer) Subscription() string                                { return m.sub }
func (m *mockConsumer) Unsubscribe() error                                  { return nil }
func (m *mockConsumer) UnsubscribeForce() error                             { return nil }
func (m *mockConsumer) GetLastMessageIDs() ([]pulsar.TopicMessageID, error) { return nil, nil }
func (m *mockConsumer) Receive(ctx context.Context) (pulsar.Message, error) {
	m.mu.Lock()
	if err := m.receiveErr; err != nil {
		m.receiveErr = nil
		m.mu.Unlock()
		return nil, err
	}
	m.mu.Unlock()
	select {
	case msg := <-m.msgs:
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
func (m *mockConsumer) Chan() <-chan pulsar.ConsumerMessage { return nil }
func (m *mockConsumer) Ack(msg pulsar.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acked = append(m.acked, msg)
	return m.ackErr
}
func (m *mockConsumer) AckID(pulsar.MessageID) error                        { return nil }
func (m *mockConsumer) AckIDList([]pulsar.MessageID) error                  { return nil }
func (m *mockConsumer) AckWithTxn(pulsar.Message, pulsar.Transaction) error { return nil }
func (m *mockConsumer) AckCumulative(pulsar.Message) error                  { return nil }
func (m *mockConsumer) AckIDCumulative(pulsar.MessageID) error              { return nil }
func (m *mockConsumer) ReconsumeLater(pulsar.Message, time.Duration)        {}
func (m *mockConsumer) ReconsumeLaterWithCustomProperties(pulsar.Message, map[string]string, time.Duration) {
}
func (m *mockConsumer) Nack(msg pulsar.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nacked = append(m.nacked, msg)
}
func (m *mockConsumer) NackID(pulsar.MessageID) {}
func (m *mockConsumer) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
}
func (m *mockConsumer) Seek(pulsar.MessageID) error { return nil }
func (m *mockConsumer) SeekByTime(time.Time) error  { return nil }
func (m *mockConsumer) Name() string                { return "mock-consumer" }

func (m *mockConsumer) counts() (acked, nacked int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.acked), len(m.nacked)
}

func (m *mockConsumer) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// =============================================================================
// mockMessage
// =============================================================================

type mockMessage struct {
	topic      string
	key        string
	payload    []byte
	properties map[string]string
}

func (m *mockMessage) Topic() string                                   { return m.topic }
func (m *mockMessage) Properties() map[string]string                   { return m.properties }
func (m *mockMessage) Payload() []byte                                 { return m.payload }
func (m *mockMessage) ID() pulsar.MessageID                            { return pulsar.EarliestMessageID() }
func (m *mockMessage) PublishTime() time.Time                          { return time.Time{} }
func (m *mockMessage) EventTime() time.Time                            { return time.Time{} }
func (m *mockMessage) Key() string                                     { return m.key }
func (m *mockMessage) OrderingKey() string                             { return "" }
func (m *mockMessage) RedeliveryCount() uint32                         { return 0 }
func (m *mockMessage) IsReplicated() bool                              { return false }
func (m *mockMessage) GetReplicatedFrom() string                       { return "" }
func (m *mockMessage) GetSchemaValue(any) error                        { return nil }
func (m *mockMessage) ProducerName() string                            { return "" }
func (m *mockMessage) SchemaVersion() []byte                           { return nil }
func (m *mockMessage) GetEncryptionContext() *pulsar.EncryptionContext { return nil }
func (m *mockMessage) Index() *uint64                                  { return nil }
func (m *mockMessage) BrokerPublishTime() *time.Time                   { return nil }

var errBoom = errors.New("boom")
