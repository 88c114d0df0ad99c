package client

import (
	"context"
	"net/netip"

	"github.com/danmuck/amulectl/internal/protocol/schema"
	"github.com/danmuck/amulectl/internal/protocol/tlv"
)

func (c *Client) ConnectServer(ctx context.Context, addr netip.AddrPort) error {
	return c.serverCommand(ctx, schema.OpServerConnect, addr)
}

func (c *Client) DisconnectServer(ctx context.Context, addr netip.AddrPort) error {
	return c.serverCommand(ctx, schema.OpServerDisconnect, addr)
}

func (c *Client) RemoveServer(ctx context.Context, addr netip.AddrPort) error {
	return c.serverCommand(ctx, schema.OpServerRemove, addr)
}

func (c *Client) serverCommand(ctx context.Context, opcode uint8, addr netip.AddrPort) error {
	return c.expect(ctx, schema.OpNoop, opcode, tlv.New(schema.TagServer, tlv.TypeIPv4, addr))
}
