package session

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/awnumar/memguard"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/danmuck/amulectl/internal/observability"
	"github.com/danmuck/amulectl/internal/protocol/frame"
	"github.com/danmuck/amulectl/internal/protocol/schema"
	"github.com/danmuck/amulectl/internal/protocol/tlv"
)

// Dialer opens the TCP stream to the daemon. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

type Options struct {
	Config   Config
	Password string
	// Logger defaults to a disabled logger.
	Logger   *zerolog.Logger
	Registry schema.Registry
	Dialer   Dialer
}

// Session is a single EC client connection with reconnection and a
// half-duplex request queue. Safe for concurrent use.
type Session struct {
	id       string
	cfg      Config
	log      zerolog.Logger
	names    schema.Registry
	dialer   Dialer
	password *memguard.Enclave
	rng      *rand.Rand

	mu           sync.Mutex
	link         *link
	queue        []*pendingRequest
	manualClose  bool
	reconnecting bool
	closing      chan struct{}

	flights singleflight.Group
}

func New(opts Options) (*Session, error) {
	cfg := opts.Config.WithDefaults()
	if strings.TrimSpace(cfg.Address) == "" {
		return nil, ErrAddressRequired
	}
	if err := cfg.ValidateClientTransport(); err != nil {
		return nil, err
	}

	s := &Session{
		id:      uuid.NewString(),
		cfg:     cfg,
		names:   opts.Registry,
		dialer:  opts.Dialer,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		closing: make(chan struct{}),
	}
	if s.names == nil {
		s.names = schema.DefaultTable()
	}
	if s.dialer == nil {
		s.dialer = &net.Dialer{Timeout: cfg.ConnectTimeout}
	}
	if opts.Password != "" {
		// NewEnclave wipes its argument.
		s.password = memguard.NewEnclave([]byte(opts.Password))
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	s.log = logger.With().
		Str("session", s.id).
		Str("addr", cfg.Address).
		Logger()
	return s, nil
}

func (s *Session) ID() string { return s.id }

func (s *Session) Config() Config { return s.cfg }

// Connected reports whether a live connection is installed.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.link != nil && s.link.alive()
}

// Reconnecting reports whether a reconnection sequence is running.
func (s *Session) Reconnecting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconnecting
}

// Connect dials the daemon without authenticating. A live connection is reused.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.link != nil && s.link.alive() {
		s.mu.Unlock()
		return nil
	}
	s.reopenLocked()
	s.mu.Unlock()

	conn, err := s.dial(ctx)
	if err != nil {
		return err
	}
	l := newLink(conn, s.cfg)

	s.mu.Lock()
	if s.manualClose {
		s.mu.Unlock()
		l.shutdown(ErrSessionClosed)
		return ErrSessionClosed
	}
	s.link = l
	s.mu.Unlock()

	l.start(s.linkDown)
	s.log.Info().Msg("connected")
	return nil
}

// Authenticate runs the salted challenge-response handshake on the current
// connection. It holds the wire for both round trips.
func (s *Session) Authenticate(ctx context.Context) error {
	req, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer s.release(req)

	l := s.currentLink()
	if l == nil {
		return ErrNotConnected
	}
	err = s.handshake(ctx, func(ctx context.Context, p frame.Packet) (frame.Packet, error) {
		return s.exchange(ctx, req, l, p)
	})
	if errors.Is(err, ErrAuthFailed) {
		s.discard(l, err)
	}
	return err
}

// discard unpublishes l before closing it, so its reader does not start a
// reconnect.
func (s *Session) discard(l *link, err error) {
	s.mu.Lock()
	if s.link == l {
		s.link = nil
	}
	s.mu.Unlock()
	l.shutdown(err)
}

// Dial connects and authenticates.
func (s *Session) Dial(ctx context.Context) error {
	if err := s.Connect(ctx); err != nil {
		return err
	}
	return s.Authenticate(ctx)
}

// SendPacket queues one request and returns the next packet the daemon sends.
// Requests run strictly in submission order with one on the wire at a time.
// A missing connection triggers (or joins) reconnection first.
func (s *Session) SendPacket(ctx context.Context, opcode uint8, tags []tlv.Tag) (resp frame.Packet, err error) {
	start := time.Now()
	name := s.names.OpcodeName(opcode)
	defer func() {
		observability.RecordRequest(name, time.Since(start), err)
		ev := s.log.Debug()
		if err != nil {
			ev = s.log.Warn().Err(err)
		}
		ev.Str("op", name).
			Str("reply", s.names.OpcodeName(resp.Opcode)).
			Int("tags", len(resp.Tags)).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	}()

	req, err := s.acquire(ctx)
	if err != nil {
		return frame.Packet{}, err
	}
	defer s.release(req)

	l, err := s.ensureLink(ctx)
	if err != nil {
		return frame.Packet{}, err
	}
	if err := req.rejected(); err != nil {
		return frame.Packet{}, err
	}
	return s.exchange(ctx, req, l, frame.Packet{Opcode: opcode, Tags: tags})
}

func (s *Session) exchange(ctx context.Context, req *pendingRequest, l *link, p frame.Packet) (frame.Packet, error) {
	resp, err := l.exchange(ctx, p, req.done)
	if rejectErr := req.rejected(); rejectErr != nil && err != nil {
		return frame.Packet{}, rejectErr
	}
	return resp, err
}

// Close tears down the connection, rejects pending requests and suppresses
// reconnection until Connect or Reconnect is called.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.manualClose {
		s.mu.Unlock()
		return nil
	}
	s.manualClose = true
	close(s.closing)
	l := s.link
	s.link = nil
	s.mu.Unlock()

	s.rejectPending(ErrSessionClosed)
	if l != nil {
		l.shutdown(ErrSessionClosed)
	}
	s.log.Info().Msg("closed")
	return nil
}

// Reconnect drops the current connection, rejects pending requests and runs
// the bounded dial+authenticate sequence. Concurrent callers share one sequence.
func (s *Session) Reconnect(ctx context.Context) error {
	s.mu.Lock()
	s.reopenLocked()
	l := s.link
	s.link = nil
	s.mu.Unlock()

	if l != nil {
		te := &TransportError{Op: "reconnect", Err: ErrNotConnected}
		l.shutdown(te)
		s.rejectPending(te)
	}
	return s.reconnect(ctx)
}

// reopenLocked clears a manual close.
func (s *Session) reopenLocked() {
	if !s.manualClose {
		return
	}
	s.manualClose = false
	s.closing = make(chan struct{})
}

func (s *Session) currentLink() *link {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.link == nil || !s.link.alive() {
		return nil
	}
	return s.link
}

func (s *Session) ensureLink(ctx context.Context) (*link, error) {
	s.mu.Lock()
	if s.manualClose {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	l := s.link
	s.mu.Unlock()
	if l != nil && l.alive() {
		return l, nil
	}

	if err := s.reconnect(ctx); err != nil {
		return nil, err
	}
	if l = s.currentLink(); l == nil {
		return nil, ErrNotConnected
	}
	return l, nil
}

// linkDown runs on the reader goroutine when a connection ends.
func (s *Session) linkDown(l *link, err error) {
	s.mu.Lock()
	if s.link != l {
		s.mu.Unlock()
		return
	}
	s.link = nil
	manual := s.manualClose
	reconnecting := s.reconnecting
	s.mu.Unlock()

	if manual {
		return
	}
	s.log.Warn().Err(err).Msg("connection lost")
	s.rejectPending(err)
	if reconnecting {
		return
	}
	go func() {
		if err := s.reconnect(context.Background()); err != nil {
			s.log.Error().Err(err).Msg("background reconnect failed")
		}
	}()
}

func (s *Session) reconnect(ctx context.Context) error {
	ch := s.flights.DoChan("reconnect", func() (any, error) {
		return nil, s.reconnectLoop()
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) reconnectLoop() error {
	s.mu.Lock()
	if s.manualClose {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.link != nil && s.link.alive() {
		s.mu.Unlock()
		return nil
	}
	s.link = nil
	s.reconnecting = true
	closing := s.closing
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.reconnecting = false
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-closing:
			cancel()
		case <-ctx.Done():
		}
	}()

	attempts := s.cfg.ReconnectAttempts
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		l, err := s.open(ctx)
		observability.RecordReconnectAttempt(err)
		if err == nil {
			s.mu.Lock()
			if s.manualClose {
				s.mu.Unlock()
				l.shutdown(ErrSessionClosed)
				return ErrSessionClosed
			}
			s.link = l
			s.mu.Unlock()
			s.log.Info().Int("attempt", attempt).Msg("reconnected")
			return nil
		}
		lastErr = err
		s.log.Warn().Err(err).Int("attempt", attempt).Int("max", attempts).Msg("reconnect attempt failed")

		if ctx.Err() != nil {
			return ErrSessionClosed
		}
		if errors.Is(err, ErrAuthFailed) {
			s.rejectPending(err)
			return err
		}
		if attempt == attempts {
			break
		}
		timer := time.NewTimer(NextBackoffDelay(s.cfg.Backoff, attempt, s.rng))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ErrSessionClosed
		case <-timer.C:
		}
	}

	err := fmt.Errorf("%w after %d attempts: %w", ErrReconnectExhausted, attempts, lastErr)
	s.rejectPending(err)
	return err
}

// open dials and authenticates a fresh connection without publishing it.
func (s *Session) open(ctx context.Context) (*link, error) {
	conn, err := s.dial(ctx)
	if err != nil {
		return nil, err
	}
	l := newLink(conn, s.cfg)
	l.start(s.linkDown)
	err = s.handshake(ctx, func(ctx context.Context, p frame.Packet) (frame.Packet, error) {
		return l.exchange(ctx, p, nil)
	})
	if err != nil {
		l.shutdown(err)
		return nil, err
	}
	return l, nil
}

func (s *Session) dial(ctx context.Context) (net.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()

	conn, err := s.dialer.DialContext(dialCtx, "tcp", s.cfg.Address)
	if err != nil {
		return nil, &TransportError{Op: "dial", Err: err}
	}
	if !s.cfg.TLS.Enabled {
		return conn, nil
	}

	tlsCfg, err := s.cfg.clientTLSConfig()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	tlsConn := tls.Client(conn, tlsCfg)
	if err := tlsConn.HandshakeContext(dialCtx); err != nil {
		_ = tlsConn.Close()
		return nil, &TransportError{Op: "tls handshake", Err: err}
	}
	return tlsConn, nil
}
