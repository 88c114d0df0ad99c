package client

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/danmuck/amulectl/internal/protocol/schema"
	"github.com/danmuck/amulectl/internal/protocol/tlv"
)

// Kad reports these progress values once a keyword search has finished.
const (
	kadSearchDone    = 0xFFFF
	kadSearchStopped = 0xFFFE
)

type SearchResult struct {
	Name    string
	Hash    tlv.Hash16
	Size    uint64
	Sources uint64
}

// ParseNetwork maps "local", "global" or "kad" to a search type.
func ParseNetwork(s string) (uint8, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "local":
		return schema.SearchLocal, nil
	case "global":
		return schema.SearchGlobal, nil
	case "kad":
		return schema.SearchKad, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidNetwork, s)
	}
}

func validNetwork(network uint8) bool {
	return network == schema.SearchLocal || network == schema.SearchGlobal || network == schema.SearchKad
}

// Search starts a search and returns the daemon's status message.
// An empty extension searches all file types.
func (c *Client) Search(ctx context.Context, query string, network uint8, extension string) (string, error) {
	if !validNetwork(network) {
		return "", fmt.Errorf("%w: %d", ErrInvalidNetwork, network)
	}
	params := []tlv.Tag{tlv.New(schema.TagSearchName, tlv.TypeString, query)}
	if extension != "" {
		params = append(params, tlv.New(schema.TagSearchExtension, tlv.TypeString, extension))
	}
	resp, err := c.send(ctx, schema.OpSearchStart, tlv.New(schema.TagSearchType, tlv.TypeUint8, network, params...))
	if err != nil {
		return "", err
	}
	var msg string
	if t, ok := tlv.Find(resp.Tags, schema.TagString); ok {
		msg = t.Text()
	}
	if resp.Opcode == schema.OpFailed {
		return msg, fmt.Errorf("%w: search %q: %s", ErrRejected, query, msg)
	}
	return msg, nil
}

func (c *Client) StopSearch(ctx context.Context) error {
	_, err := c.send(ctx, schema.OpSearchStop)
	return err
}

// SearchProgress returns the raw progress value: a percentage for server
// searches, kadSearchDone/kadSearchStopped when a Kad search has ended.
func (c *Client) SearchProgress(ctx context.Context) (uint64, error) {
	resp, err := c.send(ctx, schema.OpSearchProgress)
	if err != nil {
		return 0, err
	}
	if err := schema.Validate(schema.OpSearchProgress, resp.Tags); err != nil {
		return 0, err
	}
	status, _ := tlv.Find(resp.Tags, schema.TagSearchStatus)
	n, _ := status.Uint()
	return n, nil
}

// SearchResults returns the current results, most sources first.
func (c *Client) SearchResults(ctx context.Context) ([]SearchResult, error) {
	resp, err := c.send(ctx, schema.OpSearchResults)
	if err != nil {
		return nil, err
	}
	results := make([]SearchResult, 0, len(resp.Tags))
	for _, t := range resp.Tags {
		results = append(results, SearchResult{
			Name:    childText(t, schema.TagPartfileName),
			Hash:    fileHash(t),
			Size:    childUint(t, schema.TagPartfileSizeFull),
			Sources: childUint(t, schema.TagPartfileSourceCount),
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Sources > results[j].Sources
	})
	return results, nil
}

// SearchAndWait starts a search, polls until the network reports completion,
// then returns the results. Without a context deadline Polling.Timeout applies.
func (c *Client) SearchAndWait(ctx context.Context, query string, network uint8, extension string) ([]SearchResult, error) {
	if _, ok := ctx.Deadline(); !ok && c.poll.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.poll.Timeout)
		defer cancel()
	}

	start := time.Now()
	if _, err := c.Search(ctx, query, network, extension); err != nil {
		return nil, searchErr(err)
	}
	// Server searches report stale progress until the daemon resets it.
	if err := sleepCtx(ctx, c.poll.Settle); err != nil {
		return nil, searchErr(err)
	}
	for {
		status, err := c.SearchProgress(ctx)
		if err != nil {
			return nil, searchErr(err)
		}
		if searchFinished(network, status, time.Since(start), c.poll.LocalWindow) {
			break
		}
		c.log.Debug().Uint8("network", network).Uint64("progress", status).Msg("client.Client search pending")
		if err := sleepCtx(ctx, c.poll.Interval); err != nil {
			return nil, searchErr(err)
		}
	}
	return c.SearchResults(ctx)
}

func searchFinished(network uint8, status uint64, elapsed, localWindow time.Duration) bool {
	switch network {
	case schema.SearchKad:
		return status == kadSearchDone || status == kadSearchStopped
	case schema.SearchGlobal:
		return status == 100 || status == 0
	case schema.SearchLocal:
		return elapsed >= localWindow
	}
	return true
}

func (c *Client) DownloadSearchResult(ctx context.Context, hash tlv.Hash16, category uint32) error {
	var children []tlv.Tag
	if category != 0 {
		children = append(children, tlv.New(schema.TagPartfileCat, tlv.TypeUint32, category))
	}
	return c.expect(ctx, schema.OpStrings, schema.OpDownloadSearchResult,
		tlv.New(schema.TagPartfile, tlv.TypeHash16, hash, children...))
}

func searchErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrSearchTimeout, err)
	}
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
