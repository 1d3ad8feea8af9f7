package xkafka

import (
	"context"
	"maps"
	"slices"
	"sync/atomic"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/omeyang/xshadow/internal/mqcore"
	"github.com/omeyang/xshadow/pkg/observability/xmetrics"
	"github.com/omeyang/xshadow/pkg/shadow/xinvoke"
)

// producerAPI Producer 用到的 *kafka.Producer 方法。
type producerAPI interface {
	Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error
	Flush(timeoutMs int) int
	Len() int
	Close()
}

var _ producerAPI = (*kafka.Producer)(nil)

// ProducerStats 生产者统计。
type ProducerStats struct {
	// Produced 成功入队的消息数，入队不等于已投递。
	Produced int64
	// Shadow 其中发往影子主题的消息数。
	Shadow int64
	// Denied 被白名单拒绝的消息数。
	Denied int64
	// Errors 入队失败的消息数。
	Errors int64
	// QueueLength 等待发送的消息数。
	QueueLength int
}

// Producer 影子感知的 Kafka 生产者，并发安全。
type Producer struct {
	api  producerAPI
	opts options

	closed   atomic.Bool
	produced atomic.Int64
	shadow   atomic.Int64
	denied   atomic.Int64
	errs     atomic.Int64
}

// NewProducer 创建生产者。config 必须包含 bootstrap.servers，不会被修改。
func NewProducer(config *kafka.ConfigMap, opts ...Option) (*Producer, error) {
	if config == nil {
		return nil, ErrNilConfig
	}
	cloned, err := cloneConfig(config)
	if err != nil {
		return nil, err
	}
	p, err := kafka.NewProducer(cloned)
	if err != nil {
		return nil, err
	}
	return newProducer(p, opts), nil
}

// WrapProducer 包装已有的 *kafka.Producer，Close 时一并关闭。
func WrapProducer(p *kafka.Producer, opts ...Option) (*Producer, error) {
	if p == nil {
		return nil, ErrNilClient
	}
	return newProducer(p, opts), nil
}

func newProducer(api producerAPI, opts []Option) *Producer {
	return &Producer{api: api, opts: buildOptions(opts)}
}

// Produce 异步发送消息，语义同 kafka.Producer.Produce。
//
// ctx 处于影子调用上下文时，消息发往影子主题，主题未在白名单中时返回
// *xwhitelist.DeniedError。msg 本身不被修改。
func (p *Producer) Produce(ctx context.Context, msg *kafka.Message, deliveryChan chan kafka.Event) (err error) {
	if msg == nil {
		return ErrNilMessage
	}
	if p.closed.Load() {
		return ErrClosed
	}
	topic := topicOf(msg)
	if topic == "" {
		return ErrEmptyTopic
	}

	routed, shadow, routeErr := mqcore.Route(ctx, p.opts.classifier.Naming(), p.opts.gate, topic)
	ctx, span := xmetrics.Start(ctx, p.opts.observer, xmetrics.SpanOptions{
		Component: componentName,
		Operation: "produce",
		Kind:      xmetrics.KindProducer,
		Attrs:     kafkaAttrs(routed, shadow),
	})
	defer func() { span.End(xmetrics.Result{Err: err}) }()

	if routeErr != nil {
		p.denied.Add(1)
		return routeErr
	}

	out := *msg
	out.TopicPartition.Topic = &routed
	out.Headers = p.outgoingHeaders(ctx, msg.Headers)

	if err := p.api.Produce(&out, deliveryChan); err != nil {
		p.errs.Add(1)
		return err
	}
	p.produced.Add(1)
	if shadow {
		p.shadow.Add(1)
	}
	return nil
}

// outgoingHeaders 返回写入传播头后的头部副本。
//
// 存在调用上下文时先移除调用方带来的影子头，以本跳的影子标记为准。
func (p *Producer) outgoingHeaders(ctx context.Context, in []kafka.Header) []kafka.Header {
	headers := slices.Clone(in)
	if xinvoke.Current(ctx) != nil {
		headers = removeHeader(headers, xinvoke.HeaderClusterTest)
		headers = removeHeader(headers, xinvoke.HeaderDebug)
	}
	carrier := map[string]string{}
	p.opts.propagator.Inject(ctx, carrier)
	for _, k := range slices.Sorted(maps.Keys(carrier)) {
		headers = setHeader(headers, k, carrier[k])
	}
	return headers
}

// Stats 返回统计信息。
func (p *Producer) Stats() ProducerStats {
	return ProducerStats{
		Produced:    p.produced.Load(),
		Shadow:      p.shadow.Load(),
		Denied:      p.denied.Load(),
		Errors:      p.errs.Load(),
		QueueLength: p.api.Len(),
	}
}

// Close 等待队列中的消息发出后关闭，超时仍有剩余时返回 ErrFlushTimeout。重复调用无效果。
func (p *Producer) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	remaining := p.api.Flush(int(p.opts.flushTimeout.Milliseconds()))
	p.api.Close()
	if remaining > 0 {
		return ErrFlushTimeout
	}
	return nil
}
