package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/danmuck/amulectl/internal/protocol/frame"
)

const readChunkBytes = 32 * 1024

type inbound struct {
	pkt frame.Packet
	err error
}

// link is one dialed connection. Its reader goroutine reassembles packets and
// parks them in packets until the in-flight exchange takes them; unsolicited
// packets wait for the next exchange.
type link struct {
	conn         net.Conn
	framer       *frame.Framer
	writeTimeout time.Duration
	packets      chan inbound

	dead chan struct{}
	once sync.Once
	err  error
}

func newLink(conn net.Conn, cfg Config) *link {
	return &link{
		conn:         conn,
		framer:       frame.NewFramer(cfg.Limits),
		writeTimeout: cfg.WriteTimeout,
		packets:      make(chan inbound, 16),
		dead:         make(chan struct{}),
	}
}

func (l *link) start(onDown func(*link, error)) {
	go l.readLoop(onDown)
}

func (l *link) readLoop(onDown func(*link, error)) {
	defer func() { onDown(l, l.err) }()
	buf := make([]byte, readChunkBytes)
	for {
		n, err := l.conn.Read(buf)
		if n > 0 {
			l.framer.Feed(buf[:n])
			for {
				pkt, ok, perr := l.framer.Next()
				if errors.Is(perr, frame.ErrPayloadTooLarge) {
					l.shutdown(&TransportError{Op: "read", Err: perr})
					return
				}
				if !ok {
					break
				}
				select {
				case l.packets <- inbound{pkt: pkt, err: perr}:
				case <-l.dead:
					return
				}
			}
		}
		if err != nil {
			l.shutdown(&TransportError{Op: "read", Err: err})
			return
		}
	}
}

// shutdown closes the socket once; err is what pending exchanges observe.
func (l *link) shutdown(err error) {
	l.once.Do(func() {
		l.err = err
		close(l.dead)
		_ = l.conn.Close()
	})
}

func (l *link) alive() bool {
	select {
	case <-l.dead:
		return false
	default:
		return true
	}
}

// exchange writes req and waits for the next inbound packet. abandon is closed
// when the owning request was rejected from outside (close, disconnect).
//
// A context cancelled after the write leaves a reply in flight that would be
// handed to the next request, so the link is torn down instead.
func (l *link) exchange(ctx context.Context, req frame.Packet, abandon <-chan struct{}) (frame.Packet, error) {
	raw, err := frame.Build(req.Opcode, req.Tags)
	if err != nil {
		return frame.Packet{}, err
	}
	if !l.alive() {
		return frame.Packet{}, l.err
	}
	if l.writeTimeout > 0 {
		_ = l.conn.SetWriteDeadline(time.Now().Add(l.writeTimeout))
	}
	if _, err := l.conn.Write(raw); err != nil {
		te := &TransportError{Op: "write", Err: err}
		l.shutdown(te)
		return frame.Packet{}, te
	}

	select {
	case in := <-l.packets:
		return in.pkt, in.err
	case <-l.dead:
		select {
		case in := <-l.packets:
			return in.pkt, in.err
		default:
		}
		return frame.Packet{}, l.err
	case <-abandon:
		return frame.Packet{}, ErrSessionClosed
	case <-ctx.Done():
		l.shutdown(&TransportError{Op: "read", Err: fmt.Errorf("exchange abandoned: %w", ctx.Err())})
		return frame.Packet{}, ctx.Err()
	}
}
