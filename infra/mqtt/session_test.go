package mqtt

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turion/turionlink/core/printer"
	"github.com/turion/turionlink/infra/logger"
	"github.com/turion/turionlink/simulator"
)

const testSerial = "01S00C123400001"

// mockClient implements paho.Client backed by a simulator.Device.
type mockClient struct {
	opts *paho.ClientOptions

	mu        sync.Mutex
	connected bool
	subs      map[string]paho.MessageHandler
	published []mockMessage

	onPublish    func(topic string, payload []byte)
	onSubscribe  func(topic string)
	connectDelay time.Duration
}

func (m *mockClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *mockClient) IsConnectionOpen() bool { return m.IsConnected() }

func (m *mockClient) Connect() paho.Token {
	m.mu.Lock()
	m.connected = true
	m.mu.Unlock()
	if m.opts != nil && m.opts.OnConnect != nil {
		m.opts.OnConnect(m)
	}
	return &mockToken{delay: m.connectDelay}
}

func (m *mockClient) Disconnect(uint) {
	m.mu.Lock()
	m.connected = false
	m.mu.Unlock()
}

func (m *mockClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	raw, _ := payload.([]byte)
	m.mu.Lock()
	m.published = append(m.published, mockMessage{topic: topic, payload: raw})
	hook := m.onPublish
	m.mu.Unlock()
	if hook != nil {
		hook(topic, raw)
	}
	return &mockToken{}
}

func (m *mockClient) Subscribe(topic string, qos byte, cb paho.MessageHandler) paho.Token {
	m.mu.Lock()
	m.subs[topic] = cb
	hook := m.onSubscribe
	m.mu.Unlock()
	if hook != nil {
		hook(topic)
	}
	return &mockToken{}
}

// deliver feeds an inbound message into the subscribed handler, as the Paho
// delivery goroutine would.
func (m *mockClient) deliver(topic string, payload []byte) {
	m.mu.Lock()
	cb := m.subs[topic]
	m.mu.Unlock()
	if cb != nil {
		cb(m, mockMessage{topic: topic, payload: payload})
	}
}

func (m *mockClient) SubscribeMultiple(map[string]byte, paho.MessageHandler) paho.Token {
	return &mockToken{}
}
func (m *mockClient) Unsubscribe(...string) paho.Token        { return &mockToken{} }
func (m *mockClient) AddRoute(string, paho.MessageHandler)    {}
func (m *mockClient) OptionsReader() paho.ClientOptionsReader { return paho.ClientOptionsReader{} }

type mockToken struct {
	err   error
	delay time.Duration
}

func (t *mockToken) Wait() bool { return true }
func (t *mockToken) WaitTimeout(d time.Duration) bool {
	if t.delay > d {
		time.Sleep(d)
		return false
	}
	time.Sleep(t.delay)
	return true
}
func (t *mockToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *mockToken) Error() error { return t.err }

type mockMessage struct {
	topic   string
	payload []byte
}

func (m mockMessage) Duplicate() bool   { return false }
func (m mockMessage) Qos() byte         { return 0 }
func (m mockMessage) Retained() bool    { return false }
func (m mockMessage) Topic() string     { return m.topic }
func (m mockMessage) MessageID() uint16 { return 0 }
func (m mockMessage) Payload() []byte   { return m.payload }
func (m mockMessage) Ack()              {}

// newTestSession wires a session to a scripted device through the mock
// transport. statusOnSubscribe controls whether the device immediately
// broadcasts status once the report topic is subscribed.
func newTestSession(t *testing.T, dev *simulator.Device, statusOnSubscribe bool) (*Session, *mockClient) {
	t.Helper()
	mc := &mockClient{subs: make(map[string]paho.MessageHandler)}

	old := newMQTTClient
	newMQTTClient = func(o *paho.ClientOptions) pahoClient {
		mc.opts = o
		return mc
	}
	t.Cleanup(func() { newMQTTClient = old })

	mc.onPublish = func(topic string, payload []byte) {
		if topic != printer.RequestTopic(dev.Serial) {
			return
		}
		if reply, ok := dev.HandleRequest(payload); ok {
			mc.deliver(printer.ReportTopic(dev.Serial), reply)
		}
	}
	if statusOnSubscribe {
		mc.onSubscribe = func(topic string) {
			if topic == printer.ReportTopic(dev.Serial) {
				mc.deliver(topic, dev.StatusFrame(nil))
			}
		}
	}

	s, err := NewSession(
		Config{Host: "printer.local", Password: "secret", Serial: dev.Serial},
		WithLogger(logger.NopLogger{}),
	)
	require.NoError(t, err)
	s.connectTimeout = 200 * time.Millisecond
	s.replyTimeout = 200 * time.Millisecond
	return s, mc
}

func TestSessionTLSAndReconnectOptions(t *testing.T) {
	dev := simulator.New(testSerial)
	_, mc := newTestSession(t, dev, true)

	require.NotNil(t, mc.opts.TLSConfig)
	assert.True(t, mc.opts.TLSConfig.InsecureSkipVerify)
	assert.Equal(t, testSerial, mc.opts.TLSConfig.ServerName)
	assert.True(t, mc.opts.AutoReconnect)
	assert.Equal(t, time.Second, mc.opts.ConnectRetryInterval)
	assert.Equal(t, time.Second, mc.opts.MaxReconnectInterval)
	require.Len(t, mc.opts.Servers, 1)
	assert.Equal(t, "ssl", mc.opts.Servers[0].Scheme)
	assert.Equal(t, "printer.local:8883", mc.opts.Servers[0].Host)
}

func TestConnectReadyAfterFirstStatus(t *testing.T) {
	dev := simulator.New(testSerial)
	s, mc := newTestSession(t, dev, true)

	require.NoError(t, s.Connect(context.Background()))
	assert.Equal(t, printer.StateReady, s.State())

	mc.mu.Lock()
	_, subscribed := mc.subs[printer.ReportTopic(testSerial)]
	mc.mu.Unlock()
	assert.True(t, subscribed)
}

func TestConnectTimesOutWithoutStatus(t *testing.T) {
	dev := simulator.New(testSerial)
	s, _ := newTestSession(t, dev, false)

	err := s.Connect(context.Background())
	assert.ErrorIs(t, err, printer.ErrConnectTimeout)
	assert.Equal(t, printer.StateDisconnected, s.State())
}

func TestConnectBudgetCoversTokenWait(t *testing.T) {
	dev := simulator.New(testSerial)
	s, mc := newTestSession(t, dev, false)
	mc.connectDelay = 150 * time.Millisecond

	// A slow handshake eats into the same budget as the telemetry wait; the
	// two must not stack to double the configured timeout.
	start := time.Now()
	err := s.Connect(context.Background())
	assert.ErrorIs(t, err, printer.ErrConnectTimeout)
	assert.Less(t, time.Since(start), 300*time.Millisecond)
}

func TestConnectRetryRequiresFreshTelemetry(t *testing.T) {
	dev := simulator.New(testSerial)
	s, mc := newTestSession(t, dev, false)

	err := s.Connect(context.Background())
	require.ErrorIs(t, err, printer.ErrConnectTimeout)

	// A frame arriving after the attempt gave up must not satisfy a retry.
	mc.deliver(printer.ReportTopic(testSerial), dev.StatusFrame(nil))

	err = s.Connect(context.Background())
	assert.ErrorIs(t, err, printer.ErrConnectTimeout)
}

func TestStopRoundTrip(t *testing.T) {
	dev := simulator.New(testSerial)
	dev.HandleResult("stop", "success")
	s, _ := newTestSession(t, dev, true)

	require.NoError(t, s.Connect(context.Background()))
	reply, err := s.Stop(context.Background())
	require.NoError(t, err)
	assert.True(t, reply.Succeeded())

	reqs := dev.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "stop", reqs[0]["command"])
	assert.Equal(t, "0", reqs[0]["sequence_id"])
}

func TestProjectPrintRoundTrip(t *testing.T) {
	dev := simulator.New(testSerial)
	dev.HandleResult("project_file", "success")
	s, _ := newTestSession(t, dev, true)

	require.NoError(t, s.Connect(context.Background()))
	reply, err := s.PrintProject(context.Background(), "file.3mf", nil, printer.WithPlate(2))
	require.NoError(t, err)
	assert.True(t, reply.Succeeded())

	reqs := dev.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "Metadata/plate_2.gcode", reqs[0]["param"])
	assert.Equal(t, false, reqs[0]["use_ams"])
}

func TestStatusRoutedToHandlerNotMailbox(t *testing.T) {
	dev := simulator.New(testSerial)
	s, mc := newTestSession(t, dev, true)
	require.NoError(t, s.Connect(context.Background()))

	var mu sync.Mutex
	var states []string
	s.SetStatusHandler(func(st printer.Status) {
		mu.Lock()
		states = append(states, st.GcodeState())
		mu.Unlock()
	})

	mc.deliver(printer.ReportTopic(testSerial), dev.StatusFrame(map[string]any{"gcode_state": "RUNNING"}))
	mc.deliver(printer.ReportTopic(testSerial), dev.StatusFrame(map[string]any{"gcode_state": "FINISH"}))

	mu.Lock()
	assert.Equal(t, []string{"RUNNING", "FINISH"}, states)
	mu.Unlock()

	// The broadcasts must not satisfy a reply wait.
	_, err := s.Pause(context.Background())
	assert.ErrorIs(t, err, printer.ErrReplyTimeout)
}

func TestUnsolicitedReplyNotDeliveredLater(t *testing.T) {
	dev := simulator.New(testSerial)
	dev.HandleResult("stop", "success")
	s, mc := newTestSession(t, dev, true)
	require.NoError(t, s.Connect(context.Background()))

	// Reply arriving with no call pending is dropped, not stashed.
	mc.deliver(printer.ReportTopic(testSerial), []byte(`{"print":{"result":"stale"}}`))

	reply, err := s.Stop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "success", reply.Result())
}

func TestConcurrentCallRejected(t *testing.T) {
	dev := simulator.New(testSerial) // silent device: no reply scripted
	s, _ := newTestSession(t, dev, true)
	require.NoError(t, s.Connect(context.Background()))

	done := make(chan error, 1)
	go func() {
		_, err := s.Pause(context.Background())
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)

	_, err := s.Stop(context.Background())
	assert.ErrorIs(t, err, printer.ErrCallPending)
	assert.ErrorIs(t, <-done, printer.ErrReplyTimeout)
}

func TestDisconnectUnblocksWaiter(t *testing.T) {
	dev := simulator.New(testSerial)
	s, _ := newTestSession(t, dev, true)
	require.NoError(t, s.Connect(context.Background()))
	s.replyTimeout = 5 * time.Second

	done := make(chan error, 1)
	go func() {
		_, err := s.Stop(context.Background())
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	s.Disconnect()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, printer.ErrSessionClosed)
	case <-time.After(time.Second):
		t.Fatal("waiter not unblocked by disconnect")
	}
	s.Disconnect() // idempotent
}

func TestStopNoReplyDoesNotBlock(t *testing.T) {
	dev := simulator.New(testSerial) // silent device
	s, _ := newTestSession(t, dev, true)
	require.NoError(t, s.Connect(context.Background()))

	start := time.Now()
	require.NoError(t, s.StopNoReply(context.Background()))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	require.Len(t, dev.Requests(), 1)
	assert.Equal(t, "stop", dev.Requests()[0]["command"])
}

func TestMalformedInboundClassifiedAsReply(t *testing.T) {
	dev := simulator.New(testSerial)
	s, mc := newTestSession(t, dev, true)
	require.NoError(t, s.Connect(context.Background()))

	done := make(chan printer.Reply, 1)
	go func() {
		r, _ := s.Stop(context.Background())
		done <- r
	}()
	time.Sleep(20 * time.Millisecond)
	mc.deliver(printer.ReportTopic(testSerial), []byte("not json"))

	select {
	case r := <-done:
		assert.False(t, r.Succeeded())
	case <-time.After(time.Second):
		t.Fatal("malformed payload did not satisfy the reply wait")
	}
}

func TestReconnectStateTransitions(t *testing.T) {
	dev := simulator.New(testSerial)
	s, mc := newTestSession(t, dev, true)
	require.NoError(t, s.Connect(context.Background()))
	require.Equal(t, printer.StateReady, s.State())

	mc.opts.OnConnectionLost(mc, errors.New("broken pipe"))
	assert.Equal(t, printer.StateConnecting, s.State())

	// Paho reconnects transparently; the completion handshake does not rerun.
	mc.opts.OnConnect(mc)
	assert.Equal(t, printer.StateAwaitingFirstTelemetry, s.State())
	mc.deliver(printer.ReportTopic(testSerial), dev.StatusFrame(nil))
	assert.Equal(t, printer.StateReady, s.State())
}

func TestHandlerReplacementWaitsForInflight(t *testing.T) {
	dev := simulator.New(testSerial)
	s, mc := newTestSession(t, dev, true)
	require.NoError(t, s.Connect(context.Background()))

	entered := make(chan struct{})
	release := make(chan struct{})
	s.SetStatusHandler(func(printer.Status) {
		close(entered)
		<-release
	})

	go mc.deliver(printer.ReportTopic(testSerial), dev.StatusFrame(nil))
	<-entered

	replaced := make(chan struct{})
	go func() {
		s.SetStatusHandler(nil)
		close(replaced)
	}()

	select {
	case <-replaced:
		t.Fatal("replacement did not wait for in-flight handler")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	select {
	case <-replaced:
	case <-time.After(time.Second):
		t.Fatal("replacement never completed")
	}
}

func TestConnectRejectedWhileActive(t *testing.T) {
	dev := simulator.New(testSerial)
	s, _ := newTestSession(t, dev, true)
	require.NoError(t, s.Connect(context.Background()))

	err := s.Connect(context.Background())
	assert.Error(t, err)
}
