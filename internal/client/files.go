package client

import (
	"context"
	"time"

	"github.com/danmuck/amulectl/internal/protocol/schema"
	"github.com/danmuck/amulectl/internal/protocol/tlv"
)

type SharedFile struct {
	Name             string
	Hash             tlv.Hash16
	Size             uint64
	Transferred      uint64
	TransferredTotal uint64
	Requests         uint64
	RequestsTotal    uint64
	Accepted         uint64
	AcceptedTotal    uint64
	Priority         uint64
}

type Download struct {
	Name             string
	Hash             tlv.Hash16
	Size             uint64
	Done             uint64
	Sources          uint64
	Speed            uint64
	Priority         uint64
	Category         uint64
	LastSeenComplete time.Time
}

// Progress is the completed percentage, 0 when the size is unknown.
func (d Download) Progress() float64 {
	if d.Size == 0 {
		return 0
	}
	return float64(d.Done) / float64(d.Size) * 100
}

func (c *Client) SharedFiles(ctx context.Context) ([]SharedFile, error) {
	resp, err := c.send(ctx, schema.OpGetSharedFiles)
	if err != nil {
		return nil, err
	}
	files := make([]SharedFile, 0, len(resp.Tags))
	for _, t := range resp.Tags {
		files = append(files, SharedFile{
			Name:             childText(t, schema.TagPartfileName),
			Hash:             fileHash(t),
			Size:             childUint(t, schema.TagPartfileSizeFull),
			Transferred:      childUint(t, schema.TagKnownfileXferred),
			TransferredTotal: childUint(t, schema.TagKnownfileXferredAll),
			Requests:         childUint(t, schema.TagKnownfileReqCount),
			RequestsTotal:    childUint(t, schema.TagKnownfileReqCountAll),
			Accepted:         childUint(t, schema.TagKnownfileAcceptCount),
			AcceptedTotal:    childUint(t, schema.TagKnownfileAcceptCntAll),
			Priority:         childUint(t, schema.TagKnownfilePrio),
		})
	}
	return files, nil
}

func (c *Client) DownloadQueue(ctx context.Context) ([]Download, error) {
	resp, err := c.send(ctx, schema.OpGetDloadQueue)
	if err != nil {
		return nil, err
	}
	downloads := make([]Download, 0, len(resp.Tags))
	for _, t := range resp.Tags {
		d := Download{
			Name:     childText(t, schema.TagPartfileName),
			Hash:     fileHash(t),
			Size:     childUint(t, schema.TagPartfileSizeFull),
			Done:     childUint(t, schema.TagPartfileSizeDone),
			Sources:  childUint(t, schema.TagPartfileSourceCount),
			Speed:    childUint(t, schema.TagPartfileSpeed),
			Priority: childUint(t, schema.TagPartfilePrio),
			Category: childUint(t, schema.TagPartfileCat),
		}
		if seen := childUint(t, schema.TagPartfileLastSeenComp); seen > 0 {
			d.LastSeenComplete = time.Unix(int64(seen), 0).UTC()
		}
		downloads = append(downloads, d)
	}
	return downloads, nil
}

// AddLink queues an ed2k link into category (0 is the default category).
func (c *Client) AddLink(ctx context.Context, link string, category uint32) error {
	return c.expect(ctx, schema.OpNoop, schema.OpAddLink,
		tlv.New(schema.TagString, tlv.TypeString, link,
			tlv.New(schema.TagPartfileCat, tlv.TypeUint32, category)))
}

func (c *Client) CancelDownload(ctx context.Context, hash tlv.Hash16) error {
	return c.expect(ctx, schema.OpNoop, schema.OpPartfileDelete,
		tlv.New(schema.TagPartfile, tlv.TypeHash16, hash))
}

func (c *Client) SetFileCategory(ctx context.Context, hash tlv.Hash16, category uint32) error {
	return c.expect(ctx, schema.OpNoop, schema.OpPartfileSetCat,
		tlv.New(schema.TagPartfile, tlv.TypeHash16, hash,
			tlv.New(schema.TagPartfileCat, tlv.TypeUint32, category)))
}

func childUint(t tlv.Tag, id uint16) uint64 {
	child, ok := t.Child(id)
	if !ok {
		return 0
	}
	n, _ := child.Uint()
	return n
}

func childText(t tlv.Tag, id uint16) string {
	child, ok := t.Child(id)
	if !ok {
		return ""
	}
	return child.Text()
}

// fileHash prefers an explicit hash child, then the record tag's own value.
func fileHash(t tlv.Tag) tlv.Hash16 {
	if child, ok := t.Child(schema.TagPartfileHash); ok {
		if h, ok := child.Hash(); ok {
			return h
		}
		if h, err := tlv.ParseHash16(child.Text()); err == nil {
			return h
		}
	}
	h, _ := t.Hash()
	return h
}
