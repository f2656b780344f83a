package eventbus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func TestNewNSQ(t *testing.T) {
	actual := NewNSQ(zap.NewNop().Sugar(), "addr", NewNSQPublisher)

	assert := assert.New(t)
	assert.NotNil(actual)
	assert.Equal("addr", actual.nsqd)
	assert.Nil(actual.Publisher)
}

func TestNSQ_WaitForPublisher(t *testing.T) {
	publisher := &RecordingPublisher{}
	assert := assert.New(t)

	nsq := NewNSQ(zaptest.NewLogger(t).Sugar(), "addr", func(_ *zap.SugaredLogger, nsqd string) (Publisher, error) {
		assert.Equal("addr", nsqd)
		return publisher, nil
	})

	err := nsq.WaitForPublisher(context.Background())
	require.NoError(t, err)
	assert.Same(publisher, nsq.Publisher)
}

func TestNSQ_WaitForPublisherCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	nsq := NewNSQ(zaptest.NewLogger(t).Sugar(), "addr", func(*zap.SugaredLogger, string) (Publisher, error) {
		return nil, errors.New("connection refused")
	})

	err := nsq.WaitForPublisher(ctx)
	require.Error(t, err)
	assert.Nil(t, nsq.Publisher)
}

func TestRecordingPublisher(t *testing.T) {
	p := &RecordingPublisher{}
	require.NoError(t, p.Publish(UpgradeTopic, "hello"))

	p.Err = errors.New("nsqd gone")
	require.Error(t, p.Publish(UpgradeTopic, "lost"))

	assert.Equal(t, []Message{{Topic: UpgradeTopic, Data: "hello"}}, p.Messages())
}
