package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/danmuck/amulectl/internal/protocol/frame"
	"github.com/danmuck/amulectl/internal/protocol/schema"
	"github.com/danmuck/amulectl/internal/protocol/session"
	"github.com/danmuck/amulectl/internal/protocol/tlv"
)

var (
	ErrInvalidNetwork = errors.New("client: invalid search network")
	ErrSearchTimeout  = errors.New("client: search timed out")
	ErrRejected       = errors.New("client: request rejected by daemon")
)

// Sender is the session boundary: one request in, the daemon's reply out.
type Sender interface {
	SendPacket(ctx context.Context, opcode uint8, tags []tlv.Tag) (frame.Packet, error)
}

// Polling controls SearchAndWait.
type Polling struct {
	// Settle is the pause after starting a search before the first progress poll.
	Settle   time.Duration
	Interval time.Duration
	// LocalWindow is how long a local search runs; the daemon reports no progress for it.
	LocalWindow time.Duration
	// Timeout applies when the caller's context has no deadline.
	Timeout time.Duration
}

func DefaultPolling() Polling {
	return Polling{
		Settle:      5 * time.Second,
		Interval:    time.Second,
		LocalWindow: 10 * time.Second,
		Timeout:     2 * time.Minute,
	}
}

type Option func(*Client)

func WithRegistry(r schema.Registry) Option {
	return func(c *Client) { c.names = r }
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l }
}

func WithPolling(p Polling) Option {
	return func(c *Client) { c.poll = p }
}

// Client issues typed aMule operations over a Sender.
type Client struct {
	sender Sender
	names  schema.Registry
	log    zerolog.Logger
	poll   Polling
	closer func() error
}

func New(sender Sender, opts ...Option) *Client {
	c := &Client{
		sender: sender,
		names:  schema.DefaultTable(),
		log:    zerolog.Nop(),
		poll:   DefaultPolling(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dial opens an authenticated session and wraps it. Close releases the session.
func Dial(ctx context.Context, opts session.Options, clientOpts ...Option) (*Client, error) {
	s, err := session.New(opts)
	if err != nil {
		return nil, err
	}
	if err := s.Dial(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	if opts.Registry != nil {
		clientOpts = append([]Option{WithRegistry(opts.Registry)}, clientOpts...)
	}
	c := New(s, clientOpts...)
	c.closer = s.Close
	return c, nil
}

func (c *Client) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer()
}

func (c *Client) send(ctx context.Context, opcode uint8, tags ...tlv.Tag) (frame.Packet, error) {
	resp, err := c.sender.SendPacket(ctx, opcode, tags)
	if err != nil {
		return frame.Packet{}, fmt.Errorf("client: %s: %w", c.names.OpcodeName(opcode), err)
	}
	c.log.Debug().
		Str("op", c.names.OpcodeName(opcode)).
		Str("reply", c.names.OpcodeName(resp.Opcode)).
		Int("tags", len(resp.Tags)).
		Msg("client.Client reply")
	return resp, nil
}

// expect sends a command whose success is signalled by one reply opcode.
func (c *Client) expect(ctx context.Context, want uint8, opcode uint8, tags ...tlv.Tag) error {
	resp, err := c.send(ctx, opcode, tags...)
	if err != nil {
		return err
	}
	if resp.Opcode == want {
		return nil
	}
	msg := ""
	if t, ok := tlv.Find(resp.Tags, schema.TagString); ok {
		msg = ": " + t.Text()
	}
	return fmt.Errorf("%w: %s replied %s%s", ErrRejected, c.names.OpcodeName(opcode), c.names.OpcodeName(resp.Opcode), msg)
}

func (c *Client) tree(ctx context.Context, opcode uint8, tags ...tlv.Tag) ([]Node, error) {
	resp, err := c.send(ctx, opcode, tags...)
	if err != nil {
		return nil, err
	}
	return Tree(resp.Tags, c.names), nil
}

func (c *Client) ConnectionState(ctx context.Context) ([]Node, error) {
	return c.tree(ctx, schema.OpGetConnState)
}

func (c *Client) Stats(ctx context.Context) ([]Node, error) {
	return c.tree(ctx, schema.OpStatReq)
}

func (c *Client) StatsTree(ctx context.Context) ([]Node, error) {
	return c.tree(ctx, schema.OpGetStatsTree)
}

func (c *Client) ServerInfo(ctx context.Context) ([]Node, error) {
	return c.tree(ctx, schema.OpGetServerInfo)
}

func (c *Client) ServerList(ctx context.Context) ([]Node, error) {
	return c.tree(ctx, schema.OpGetServerList)
}

func (c *Client) Log(ctx context.Context) ([]Node, error) {
	return c.tree(ctx, schema.OpGetLog)
}

func (c *Client) DebugLog(ctx context.Context) ([]Node, error) {
	return c.tree(ctx, schema.OpGetDebugLog)
}

func (c *Client) UploadQueue(ctx context.Context) ([]Node, error) {
	return c.tree(ctx, schema.OpGetUloadQueue)
}
