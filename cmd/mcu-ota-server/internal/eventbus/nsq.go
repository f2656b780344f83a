// Package eventbus publishes upgrade events to nsq.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/nsqio/go-nsq"
	"go.uber.org/zap"
)

// nsqdRetryDelay represents the delay that is used for retries in blocking calls.
const nsqdRetryDelay = 3 * time.Second

// UpgradeTopic receives an event for every recorded firmware upgrade.
const UpgradeTopic = "ota-upgrade"

// Publisher sends messages to a topic.
type Publisher interface {
	Publish(topic string, data any) error
	Stop()
}

type PublisherProvider func(log *zap.SugaredLogger, nsqd string) (Publisher, error)

// NSQClient waits for a publisher to become available.
type NSQClient struct {
	log               *zap.SugaredLogger
	nsqd              string
	publisherProvider PublisherProvider
	Publisher         Publisher
}

// NewNSQ create a new NSQClient.
func NewNSQ(log *zap.SugaredLogger, nsqd string, publisherProvider PublisherProvider) *NSQClient {
	return &NSQClient{
		log:               log,
		nsqd:              nsqd,
		publisherProvider: publisherProvider,
	}
}

// WaitForPublisher blocks until the provider is able to provide a publisher
// or ctx is done.
func (n *NSQClient) WaitForPublisher(ctx context.Context) error {
	publisher, err := retry.DoWithData(
		func() (Publisher, error) {
			return n.publisherProvider(n.log, n.nsqd)
		},
		retry.Context(ctx),
		retry.Attempts(0),
		retry.Delay(nsqdRetryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(_ uint, err error) {
			n.log.Errorw("cannot create nsq publisher", "nsqd", n.nsqd, "error", err)
		}),
	)
	if err != nil {
		return err
	}
	n.log.Infow("nsq connected", "nsqd", n.nsqd)
	n.Publisher = publisher
	return nil
}

// NSQPublisher publishes json encoded messages to a single nsqd.
type NSQPublisher struct {
	producer *nsq.Producer
}

// NewNSQPublisher connects to nsqd, it fails if nsqd does not answer.
func NewNSQPublisher(log *zap.SugaredLogger, nsqd string) (Publisher, error) {
	p, err := nsq.NewProducer(nsqd, nsq.NewConfig())
	if err != nil {
		return nil, fmt.Errorf("cannot create producer with nsqd=%q: %w", nsqd, err)
	}
	p.SetLogger(nsqLogger{log.Named("nsq")}, nsq.LogLevelWarning)

	if err := p.Ping(); err != nil {
		p.Stop()
		return nil, fmt.Errorf("cannot reach nsqd=%q: %w", nsqd, err)
	}
	return &NSQPublisher{producer: p}, nil
}

func (p *NSQPublisher) Publish(topic string, data any) error {
	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("cannot marshal data to json: %w", err)
	}
	return p.producer.Publish(topic, b)
}

func (p *NSQPublisher) Stop() {
	p.producer.Stop()
}

// nsqLogger forwards the log output of go-nsq to zap.
type nsqLogger struct {
	log *zap.SugaredLogger
}

func (l nsqLogger) Output(_ int, s string) error {
	l.log.Warn(strings.TrimSpace(s))
	return nil
}
