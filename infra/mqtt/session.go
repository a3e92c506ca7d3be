package mqtt

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/turion/turionlink/core/printer"
	"github.com/turion/turionlink/infra/logger"
	"github.com/turion/turionlink/infra/metrics"
)

// pahoClient is the subset of the Paho API the session uses, extracted so
// tests can substitute a scripted transport.
type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// Session is the MQTT control connection to one printer. It demultiplexes the
// report topic into status broadcasts (pushed to the registered handler) and
// command replies (handed to the single blocked caller), and implements
// printer.Client on top of that.
type Session struct {
	cfg     Config
	serial  string
	builder printer.CommandBuilder
	mailbox *printer.Mailbox
	state   printer.StateTracker

	readyMu sync.Mutex
	ready   chan struct{}

	handlerMu sync.Mutex
	handler   printer.StatusHandler

	cli pahoClient
	log logger.Logger
	met *metrics.SessionMetrics

	connectTimeout time.Duration
	replyTimeout   time.Duration
}

var _ printer.Client = (*Session)(nil)

// Option configures a Session.
type Option func(*Session)

// WithLogger overrides the default component logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Session) { s.log = l }
}

// WithMetrics attaches Prometheus instrumentation to the session.
func WithMetrics(m *metrics.SessionMetrics) Option {
	return func(s *Session) { s.met = m }
}

// NewSession probes the device identity (unless cfg.Serial is set) and
// prepares the MQTT client. The network connection is only made by Connect.
//
// The device certificate names its serial, not the host it is reached at, so
// the TLS config skips chain verification but overrides the SNI value with
// the probed serial; some firmware refuses the handshake otherwise.
func NewSession(cfg Config, opts ...Option) (*Session, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("session config: %w", err)
	}

	s := &Session{
		cfg:            cfg,
		mailbox:        printer.NewMailbox(),
		connectTimeout: time.Duration(cfg.ConnectTimeoutSeconds) * time.Second,
		replyTimeout:   time.Duration(cfg.ReplyTimeoutSeconds) * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.New("printer-session")
	}

	serial := cfg.Serial
	if serial == "" {
		var err error
		if serial, err = Probe(cfg.Host, cfg.Port); err != nil {
			return nil, err
		}
		s.log.Infof("probed device serial %s", serial)
	}
	s.serial = serial

	copts := paho.NewClientOptions().
		AddBroker(fmt.Sprintf("ssl://%s:%d", cfg.Host, cfg.Port)).
		SetClientID("turionlink-" + uuid.NewString()).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetTLSConfig(&tls.Config{
			InsecureSkipVerify: true,
			ServerName:         serial,
		}).
		SetKeepAlive(60 * time.Second).
		SetConnectTimeout(s.connectTimeout).
		SetAutoReconnect(true).
		SetConnectRetryInterval(time.Second).
		SetMaxReconnectInterval(time.Second).
		// Status handlers may publish (emergency stop); without this Paho
		// would deadlock publishing from the delivery goroutine.
		SetOrderMatters(false)

	copts.OnConnect = func(c paho.Client) {
		s.state.Set(printer.StateAwaitingFirstTelemetry)
		topic := printer.ReportTopic(s.serial)
		if token := c.Subscribe(topic, 0, s.route); token.Wait() && token.Error() != nil {
			s.log.Errorf("subscribe %s: %v", topic, token.Error())
		}
	}
	copts.OnConnectionLost = func(_ paho.Client, err error) {
		s.state.Set(printer.StateConnecting)
		s.met.Reconnect()
		s.log.Warnf("connection lost, reconnecting: %v", err)
	}

	s.cli = newMQTTClient(copts)
	return s, nil
}

// Serial returns the device identity used for topic addressing.
func (s *Session) Serial() string { return s.serial }

// State reports the session lifecycle state.
func (s *Session) State() printer.State { return s.state.State() }

// Connect establishes the MQTT connection and blocks until the device has
// sent its first status broadcast. A transport handshake that succeeds
// without the device ever reporting status fails with ErrConnectTimeout
// rather than hanging.
func (s *Session) Connect(ctx context.Context) error {
	if !s.state.Transition(printer.StateDisconnected, printer.StateConnecting) {
		return fmt.Errorf("connect: session is %s", s.state.State())
	}

	// Each attempt gets a fresh gate: telemetry from an earlier, abandoned
	// attempt must not satisfy this one.
	s.readyMu.Lock()
	ready := make(chan struct{})
	s.ready = ready
	s.readyMu.Unlock()

	// One budget spans the transport handshake and the first status report.
	timer := time.NewTimer(s.connectTimeout)
	defer timer.Stop()

	token := s.cli.Connect()
	if !token.WaitTimeout(s.connectTimeout) {
		s.state.Set(printer.StateDisconnected)
		return fmt.Errorf("connect %s: %w", s.cfg.Host, printer.ErrConnectTimeout)
	}
	if err := token.Error(); err != nil {
		s.state.Set(printer.StateDisconnected)
		return fmt.Errorf("connect %s: %w", s.cfg.Host, err)
	}

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		s.dropTransport()
		return ctx.Err()
	case <-timer.C:
		s.dropTransport()
		return fmt.Errorf("connect %s: %w", s.cfg.Host, printer.ErrConnectTimeout)
	}
}

// signalReady completes the pending connect gate, if any.
func (s *Session) signalReady() {
	s.readyMu.Lock()
	if s.ready != nil {
		close(s.ready)
		s.ready = nil
	}
	s.readyMu.Unlock()
}

// Disconnect tears the session down and unblocks any caller waiting on a
// reply. Idempotent.
func (s *Session) Disconnect() {
	s.mailbox.Close()
	s.dropTransport()
}

// dropTransport releases the network connection but leaves the mailbox open,
// so a failed Connect can be retried on the same session.
func (s *Session) dropTransport() {
	s.state.Set(printer.StateDisconnected)
	if s.cli != nil && s.cli.IsConnected() {
		s.cli.Disconnect(250)
	}
}

// SetStatusHandler registers the status broadcast handler, replacing any
// previous one. Replacement waits for an in-flight invocation of the old
// handler to return. A nil handler drops broadcasts.
func (s *Session) SetStatusHandler(h printer.StatusHandler) {
	s.handlerMu.Lock()
	s.handler = h
	s.handlerMu.Unlock()
}

// route runs on the Paho delivery goroutine and is the sole writer into the
// mailbox. Classification: telemetry iff print.command == "push_status";
// everything else, malformed payloads included, is a reply.
func (s *Session) route(_ paho.Client, msg paho.Message) {
	var payload map[string]any
	if err := json.Unmarshal(msg.Payload(), &payload); err != nil {
		s.log.Warnf("undecodable message on %s: %v", msg.Topic(), err)
	}

	if printer.IsPushStatus(payload) {
		s.met.StatusFrame()
		s.state.Transition(printer.StateAwaitingFirstTelemetry, printer.StateReady)
		s.signalReady()

		s.handlerMu.Lock()
		if s.handler != nil {
			s.handler(printer.Status(payload))
		}
		s.handlerMu.Unlock()
		return
	}

	if !s.mailbox.Deliver(printer.Reply(payload)) {
		s.met.OrphanReply()
		s.log.Warnf("reply received with no call pending, dropped")
	}
}

// Publish sends a command without awaiting a reply.
func (s *Session) Publish(ctx context.Context, req printer.Request) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := req.Marshal()
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	token := s.cli.Publish(printer.RequestTopic(s.serial), 0, false, raw)
	token.Wait()
	if err := token.Error(); err != nil {
		s.met.PublishFailure()
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// PublishWithReply sends a command and blocks until the device replies, the
// context is done, or the reply timeout expires. The reply slot admits one
// outstanding call; a concurrent call fails with ErrCallPending.
func (s *Session) PublishWithReply(ctx context.Context, req printer.Request) (printer.Reply, error) {
	if err := s.mailbox.Acquire(); err != nil {
		return nil, err
	}
	start := time.Now()
	if err := s.Publish(ctx, req); err != nil {
		s.mailbox.Release()
		return nil, err
	}

	wctx := ctx
	if s.replyTimeout > 0 {
		var cancel context.CancelFunc
		wctx, cancel = context.WithTimeout(ctx, s.replyTimeout)
		defer cancel()
	}
	reply, err := s.mailbox.Wait(wctx)
	if err != nil {
		return nil, err
	}
	s.met.Reply()
	s.met.ObserveReplyLatency(time.Since(start).Seconds())
	return reply, nil
}

// RawGcode runs a single G-code line on the device.
func (s *Session) RawGcode(ctx context.Context, gcode string) (printer.Reply, error) {
	return s.PublishWithReply(ctx, s.builder.RawGcode(gcode))
}

// PrintGcodeFile starts printing a plain G-code file already on the device.
func (s *Session) PrintGcodeFile(ctx context.Context, url string) (printer.Reply, error) {
	return s.PublishWithReply(ctx, s.builder.PrintGcodeFile(url))
}

// PrintProject starts a print from an uploaded 3MF project archive.
func (s *Session) PrintProject(ctx context.Context, url string, amsMapping []int, opts ...printer.ProjectOption) (printer.Reply, error) {
	return s.PublishWithReply(ctx, s.builder.PrintProject(url, amsMapping, opts...))
}

// Stop aborts the current print and awaits the device acknowledgement.
func (s *Session) Stop(ctx context.Context) (printer.Reply, error) {
	return s.PublishWithReply(ctx, s.builder.Stop())
}

// StopNoReply aborts the current print without awaiting acknowledgement, for
// emergency paths that cannot afford to block.
func (s *Session) StopNoReply(ctx context.Context) error {
	return s.Publish(ctx, s.builder.Stop())
}

// Pause pauses the current print.
func (s *Session) Pause(ctx context.Context) (printer.Reply, error) {
	return s.PublishWithReply(ctx, s.builder.Pause())
}

// Resume resumes a paused print.
func (s *Session) Resume(ctx context.Context) (printer.Reply, error) {
	return s.PublishWithReply(ctx, s.builder.Resume())
}
