package nats

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gitlab.com/nevasik7/alerting/logger"

	"dexindexer/internal/config"
	"dexindexer/internal/pubsub"
)

// MockLogger implements logger.Logger for tests
type MockLogger struct {
	mock.Mock
}

func (m *MockLogger) Debug(msg string)                          { m.Called(msg) }
func (m *MockLogger) Debugf(msg string, args ...interface{})    { m.Called(msg, args) }
func (m *MockLogger) Info(msg string)                           { m.Called(msg) }
func (m *MockLogger) Infof(format string, args ...interface{})  { m.Called(format, args) }
func (m *MockLogger) Warn(msg string)                           { m.Called(msg) }
func (m *MockLogger) Warnf(msg string, args ...interface{})     { m.Called(msg, args) }
func (m *MockLogger) Error(msg string)                          { m.Called(msg) }
func (m *MockLogger) Errorf(format string, args ...interface{}) { m.Called(format, args) }
func (m *MockLogger) Fatal(msg string)                          { m.Called(msg) }
func (m *MockLogger) Fatalf(msg string, args ...interface{})    { m.Called(msg, args) }
func (m *MockLogger) Panic(msg string)                          { m.Called(msg) }
func (m *MockLogger) Panicf(msg string, args ...interface{})    { m.Called(msg, args) }

func (m *MockLogger) WithField(key string, value interface{}) logger.Logger {
	m.Called(key, value)
	return m
}

func (m *MockLogger) WithFields(fields map[string]interface{}) logger.Logger {
	m.Called(fields)
	return m
}

const connectedMsg = "Connected to NATS successfully, url=%s"

// ========== Without Server ==========

func TestNew_NilConfig(t *testing.T) {
	mockLogger := new(MockLogger)

	client, err := New(mockLogger, nil)

	assert.Nil(t, client)
	assert.EqualError(t, err, "config is required")
	mockLogger.AssertNotCalled(t, "Infof", mock.Anything, mock.Anything)
}

func TestNew_EmptyURL(t *testing.T) {
	mockLogger := new(MockLogger)

	client, err := New(mockLogger, &config.NATSConfig{})

	assert.Nil(t, client)
	assert.EqualError(t, err, "nats url is required")
}

func TestNilConnection(t *testing.T) {
	client := &Client{log: new(MockLogger)}

	assert.False(t, client.Ready())
	assert.Equal(t, nats.DISCONNECTED, client.Status())
	assert.NoError(t, client.Close())
	assert.ErrorIs(t, client.Publish(context.Background(), "x", 1), ErrNotConnected)
	assert.ErrorIs(t, client.Health(context.Background()), ErrNotConnected)
}

// ========== In-Memory Server ==========

func runServer(t *testing.T) string {
	t.Helper()

	opts := natsserver.DefaultTestOptions
	opts.Port = -1
	s := natsserver.RunServer(&opts)
	t.Cleanup(s.Shutdown)

	return s.ClientURL()
}

func connect(t *testing.T, url, prefix string) (*Client, *MockLogger) {
	t.Helper()

	mockLogger := new(MockLogger)
	mockLogger.On("Infof", connectedMsg, mock.Anything).Once()

	client, err := New(mockLogger, &config.NATSConfig{URL: url, BroadcastPrefix: prefix})
	require.NoError(t, err)
	return client, mockLogger
}

func TestNew_Success(t *testing.T) {
	client, mockLogger := connect(t, runServer(t), "")
	defer client.nc.Close()

	assert.True(t, client.Ready())
	assert.Equal(t, nats.CONNECTED, client.Status())
	assert.NoError(t, client.Health(context.Background()))
	mockLogger.AssertExpectations(t)
}

func TestPublish_PrefixedJSON(t *testing.T) {
	url := runServer(t)
	client, _ := connect(t, url, "dexindexer.test")
	defer client.nc.Close()

	got := make(chan *nats.Msg, 1)
	sub, err := client.QueueSubscribe("dexindexer.test.pool", "", func(msg *nats.Msg) { got <- msg })
	require.NoError(t, err)
	defer sub.Unsubscribe()
	require.NoError(t, client.nc.Flush())

	require.NoError(t, client.Publish(context.Background(), "pool", map[string]string{"id": "0xpool"}))

	select {
	case msg := <-got:
		var body map[string]string
		require.NoError(t, json.Unmarshal(msg.Data, &body))
		assert.Equal(t, "0xpool", body["id"])
	case <-time.After(2 * time.Second):
		t.Fatal("message was not delivered")
	}
}

func TestPublish_EncodeError(t *testing.T) {
	client, _ := connect(t, runServer(t), "")
	defer client.nc.Close()

	err := client.Publish(context.Background(), "bad", make(chan int))
	assert.ErrorContains(t, err, "failed to encode")
}

func TestQueueSubscribe_SingleDeliveryPerGroup(t *testing.T) {
	url := runServer(t)
	client, _ := connect(t, url, "")
	defer client.nc.Close()

	got := make(chan struct{}, 4)
	for i := 0; i < 2; i++ {
		sub, err := client.QueueSubscribe("events", "indexers", func(*nats.Msg) { got <- struct{}{} })
		require.NoError(t, err)
		defer sub.Unsubscribe()
	}
	require.NoError(t, client.nc.Flush())

	require.NoError(t, client.nc.Publish("events", []byte("{}")))
	require.NoError(t, client.nc.Flush())

	<-got
	select {
	case <-got:
		t.Fatal("queue group delivered twice")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestClose_Idempotent(t *testing.T) {
	client, mockLogger := connect(t, runServer(t), "")
	mockLogger.On("Infof", "NATS connection closed gracefully", mock.Anything).Once()

	assert.NoError(t, client.Close())
	assert.NoError(t, client.Close())

	assert.False(t, client.Ready())
	assert.Equal(t, nats.CLOSED, client.Status())
	mockLogger.AssertNumberOfCalls(t, "Infof", 2)
}

// ========== Fanout ==========

func TestFanout_PublishesToAll(t *testing.T) {
	url := runServer(t)
	a, _ := connect(t, url, "a")
	defer a.nc.Close()
	b, _ := connect(t, url, "b")
	defer b.nc.Close()

	got := make(chan string, 2)
	sub, err := a.QueueSubscribe(">", "", func(msg *nats.Msg) { got <- msg.Subject })
	require.NoError(t, err)
	defer sub.Unsubscribe()
	require.NoError(t, a.nc.Flush())

	fan := pubsub.Fanout{a, b}
	require.NoError(t, fan.Publish(context.Background(), "x", 1))
	require.NoError(t, fan.Health(context.Background()))

	subjects := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case s := <-got:
			subjects[s] = true
		case <-time.After(2 * time.Second):
			t.Fatal("fanout message missing")
		}
	}
	assert.Equal(t, map[string]bool{"a.x": true, "b.x": true}, subjects)
}
