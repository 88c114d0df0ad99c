package client

import (
	"context"
	"errors"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/amulectl/internal/protocol/frame"
	"github.com/danmuck/amulectl/internal/protocol/schema"
	"github.com/danmuck/amulectl/internal/protocol/tlv"
	"github.com/danmuck/amulectl/internal/testutil/testlog"
)

// fakeSender passes every request and reply through the wire codec so tests
// see exactly what a daemon would.
type fakeSender struct {
	t       *testing.T
	mu      sync.Mutex
	reqs    []frame.Packet
	respond func(n int, req frame.Packet) frame.Packet
}

func (f *fakeSender) SendPacket(ctx context.Context, opcode uint8, tags []tlv.Tag) (frame.Packet, error) {
	if err := ctx.Err(); err != nil {
		return frame.Packet{}, err
	}
	req := wire(f.t, frame.Packet{Opcode: opcode, Tags: tags})
	f.mu.Lock()
	n := len(f.reqs)
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	return wire(f.t, f.respond(n, req)), nil
}

func (f *fakeSender) requests() []frame.Packet {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]frame.Packet(nil), f.reqs...)
}

func wire(t *testing.T, p frame.Packet) frame.Packet {
	t.Helper()
	raw, err := frame.Build(p.Opcode, p.Tags)
	if err != nil {
		t.Fatalf("build 0x%02x: %v", p.Opcode, err)
	}
	out, err := frame.Parse(raw)
	if err != nil {
		t.Fatalf("parse 0x%02x: %v", p.Opcode, err)
	}
	return out
}

func reply(opcode uint8, tags ...tlv.Tag) frame.Packet {
	return frame.Packet{Opcode: opcode, Tags: tags}
}

func newTestClient(t *testing.T, respond func(n int, req frame.Packet) frame.Packet) (*Client, *fakeSender) {
	t.Helper()
	f := &fakeSender{t: t, respond: respond}
	return New(f, WithLogger(testlog.Logger(t)), WithPolling(Polling{Interval: time.Millisecond, LocalWindow: 5 * time.Millisecond})), f
}

func hashOf(b byte) tlv.Hash16 {
	var h tlv.Hash16
	for i := range h {
		h[i] = b
	}
	return h
}

func TestSharedFilesDecodesRecords(t *testing.T) {
	testlog.Start(t)
	c, f := newTestClient(t, func(int, frame.Packet) frame.Packet {
		return reply(schema.OpSharedFiles,
			tlv.New(schema.TagKnownfile, tlv.TypeHash16, hashOf(0x11),
				tlv.New(schema.TagPartfileName, tlv.TypeString, "debian.iso"),
				tlv.New(schema.TagPartfileSizeFull, tlv.TypeUint64, uint64(4<<30)),
				tlv.New(schema.TagKnownfileXferred, tlv.TypeUint32, 1024),
				tlv.New(schema.TagKnownfileReqCountAll, tlv.TypeUint16, 9),
				tlv.New(schema.TagKnownfilePrio, tlv.TypeUint8, 2),
			))
	})

	files, err := c.SharedFiles(context.Background())
	if err != nil {
		t.Fatalf("shared files: %v", err)
	}
	if got := f.requests()[0].Opcode; got != schema.OpGetSharedFiles {
		t.Fatalf("request opcode=0x%02x", got)
	}
	if len(files) != 1 {
		t.Fatalf("files=%d", len(files))
	}
	want := SharedFile{Name: "debian.iso", Hash: hashOf(0x11), Size: 4 << 30, Transferred: 1024, RequestsTotal: 9, Priority: 2}
	if files[0] != want {
		t.Fatalf("file=%+v want %+v", files[0], want)
	}
}

func TestDownloadQueueDecodesRecords(t *testing.T) {
	testlog.Start(t)
	c, _ := newTestClient(t, func(int, frame.Packet) frame.Packet {
		return reply(schema.OpDloadQueue,
			tlv.New(schema.TagPartfile, tlv.TypeHash16, hashOf(0x22),
				tlv.New(schema.TagPartfileName, tlv.TypeString, "movie.mkv"),
				tlv.New(schema.TagPartfileSizeFull, tlv.TypeUint32, 400),
				tlv.New(schema.TagPartfileSizeDone, tlv.TypeUint32, 100),
				tlv.New(schema.TagPartfileSourceCount, tlv.TypeUint16, 7),
				tlv.New(schema.TagPartfileLastSeenComp, tlv.TypeUint32, 1700000000),
			),
			tlv.New(schema.TagPartfile, tlv.TypeHash16, hashOf(0x33),
				tlv.New(schema.TagPartfileHash, tlv.TypeString, hashOf(0x44).String()),
			))
	})

	downloads, err := c.DownloadQueue(context.Background())
	if err != nil {
		t.Fatalf("download queue: %v", err)
	}
	if len(downloads) != 2 {
		t.Fatalf("downloads=%d", len(downloads))
	}
	d := downloads[0]
	if d.Name != "movie.mkv" || d.Hash != hashOf(0x22) || d.Sources != 7 || d.Progress() != 25 {
		t.Fatalf("download=%+v progress=%v", d, d.Progress())
	}
	if !d.LastSeenComplete.Equal(time.Unix(1700000000, 0)) {
		t.Fatalf("last seen=%v", d.LastSeenComplete)
	}
	if downloads[1].Hash != hashOf(0x44) {
		t.Fatalf("hash child should win over tag value: %s", downloads[1].Hash)
	}
	if downloads[1].Progress() != 0 || !downloads[1].LastSeenComplete.IsZero() {
		t.Fatalf("empty record=%+v", downloads[1])
	}
}

func TestSearchBuildsRequestTree(t *testing.T) {
	testlog.Start(t)
	c, f := newTestClient(t, func(int, frame.Packet) frame.Packet {
		return reply(schema.OpStrings, tlv.New(schema.TagString, tlv.TypeString, "Search in progress"))
	})

	msg, err := c.Search(context.Background(), "ubuntu", schema.SearchKad, "iso")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if msg != "Search in progress" {
		t.Fatalf("message=%q", msg)
	}
	req := f.requests()[0]
	if req.Opcode != schema.OpSearchStart || len(req.Tags) != 1 {
		t.Fatalf("request=%+v", req)
	}
	root := req.Tags[0]
	if n, _ := root.Uint(); root.ID != schema.TagSearchType || root.Type != tlv.TypeUint8 || n != uint64(schema.SearchKad) {
		t.Fatalf("search type tag=%+v", root)
	}
	name, _ := root.Child(schema.TagSearchName)
	ext, _ := root.Child(schema.TagSearchExtension)
	if name.Text() != "ubuntu" || ext.Text() != "iso" {
		t.Fatalf("params name=%q ext=%q", name.Text(), ext.Text())
	}
}

func TestSearchRejectsInvalidNetwork(t *testing.T) {
	testlog.Start(t)
	c, f := newTestClient(t, func(int, frame.Packet) frame.Packet { return reply(schema.OpNoop) })
	if _, err := c.Search(context.Background(), "x", 9, ""); !errors.Is(err, ErrInvalidNetwork) {
		t.Fatalf("expected ErrInvalidNetwork, got %v", err)
	}
	if len(f.requests()) != 0 {
		t.Fatalf("invalid search must not reach the daemon")
	}
	if _, err := ParseNetwork("edonkey"); !errors.Is(err, ErrInvalidNetwork) {
		t.Fatalf("expected ErrInvalidNetwork, got %v", err)
	}
	if n, err := ParseNetwork(" Kad "); err != nil || n != schema.SearchKad {
		t.Fatalf("parse kad: %d %v", n, err)
	}
}

func TestSearchResultsSortedBySources(t *testing.T) {
	testlog.Start(t)
	result := func(name string, sources int) tlv.Tag {
		return tlv.New(schema.TagSearchfile, tlv.TypeHash16, hashOf(byte(sources)),
			tlv.New(schema.TagPartfileName, tlv.TypeString, name),
			tlv.New(schema.TagPartfileSourceCount, tlv.TypeUint32, sources))
	}
	c, _ := newTestClient(t, func(int, frame.Packet) frame.Packet {
		return reply(schema.OpSearchResults, result("few", 2), result("many", 40), result("none", 0), result("some", 9))
	})

	results, err := c.SearchResults(context.Background())
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	want := []string{"many", "some", "few", "none"}
	for i, name := range want {
		if results[i].Name != name {
			t.Fatalf("position %d: got %q want %q", i, results[i].Name, name)
		}
	}
}

func TestSearchAndWaitPollsUntilKadDone(t *testing.T) {
	testlog.Start(t)
	progress := []int{10, 60, 0xFFFF}
	polls := 0
	c, f := newTestClient(t, func(n int, req frame.Packet) frame.Packet {
		switch req.Opcode {
		case schema.OpSearchStart:
			return reply(schema.OpStrings)
		case schema.OpSearchProgress:
			p := progress[polls]
			polls++
			return reply(schema.OpSearchProgress, tlv.New(schema.TagSearchStatus, tlv.TypeUint32, p))
		case schema.OpSearchResults:
			return reply(schema.OpSearchResults, tlv.New(schema.TagSearchfile, tlv.TypeHash16, hashOf(1),
				tlv.New(schema.TagPartfileName, tlv.TypeString, "hit")))
		}
		return reply(schema.OpFailed)
	})

	results, err := c.SearchAndWait(context.Background(), "hit", schema.SearchKad, "")
	if err != nil {
		t.Fatalf("search and wait: %v", err)
	}
	if len(results) != 1 || results[0].Name != "hit" {
		t.Fatalf("results=%+v", results)
	}
	if polls != 3 {
		t.Fatalf("progress polls=%d want 3", polls)
	}
	reqs := f.requests()
	if last := reqs[len(reqs)-1].Opcode; last != schema.OpSearchResults {
		t.Fatalf("last request=0x%02x", last)
	}
}

func TestSearchAndWaitHonorsDeadline(t *testing.T) {
	testlog.Start(t)
	c, _ := newTestClient(t, func(n int, req frame.Packet) frame.Packet {
		if req.Opcode == schema.OpSearchProgress {
			return reply(schema.OpSearchProgress, tlv.New(schema.TagSearchStatus, tlv.TypeUint8, 50))
		}
		return reply(schema.OpStrings)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := c.SearchAndWait(ctx, "slow", schema.SearchGlobal, ""); !errors.Is(err, ErrSearchTimeout) {
		t.Fatalf("expected ErrSearchTimeout, got %v", err)
	}
}

func TestSearchProgressRequiresStatusTag(t *testing.T) {
	testlog.Start(t)
	c, _ := newTestClient(t, func(int, frame.Packet) frame.Packet { return reply(schema.OpSearchProgress) })
	var verr schema.ValidationError
	if _, err := c.SearchProgress(context.Background()); !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSearchFinished(t *testing.T) {
	testlog.Start(t)
	tests := []struct {
		network uint8
		status  uint64
		elapsed time.Duration
		want    bool
	}{
		{schema.SearchKad, 50, 0, false},
		{schema.SearchKad, 0xFFFE, 0, true},
		{schema.SearchGlobal, 100, 0, true},
		{schema.SearchGlobal, 0, 0, true},
		{schema.SearchGlobal, 40, 0, false},
		{schema.SearchLocal, 0, time.Second, false},
		{schema.SearchLocal, 0, 10 * time.Second, true},
	}
	for _, tt := range tests {
		if got := searchFinished(tt.network, tt.status, tt.elapsed, 10*time.Second); got != tt.want {
			t.Fatalf("network=%d status=%d elapsed=%v got=%v", tt.network, tt.status, tt.elapsed, got)
		}
	}
}

func TestCommandsReportRejection(t *testing.T) {
	testlog.Start(t)
	c, f := newTestClient(t, func(n int, req frame.Packet) frame.Packet {
		if req.Opcode == schema.OpAddLink {
			return reply(schema.OpFailed, tlv.New(schema.TagString, tlv.TypeString, "Invalid link"))
		}
		return reply(schema.OpNoop)
	})
	ctx := context.Background()

	if err := c.AddLink(ctx, "ed2k://|file|bad|", 3); !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
	link := f.requests()[0].Tags[0]
	cat, _ := link.Child(schema.TagPartfileCat)
	if link.ID != schema.TagString || cat.Type != tlv.TypeUint32 {
		t.Fatalf("add link tag=%+v", link)
	}

	if err := c.CancelDownload(ctx, hashOf(0xAB)); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	addr := netip.MustParseAddrPort("176.103.48.36:4184")
	if err := c.RemoveServer(ctx, addr); err != nil {
		t.Fatalf("remove server: %v", err)
	}
	server := f.requests()[2].Tags[0]
	if server.ID != schema.TagServer || server.Value != addr {
		t.Fatalf("server tag=%+v", server)
	}
}

func TestDownloadSearchResultExpectsStrings(t *testing.T) {
	testlog.Start(t)
	c, f := newTestClient(t, func(int, frame.Packet) frame.Packet { return reply(schema.OpStrings) })
	if err := c.DownloadSearchResult(context.Background(), hashOf(5), 0); err != nil {
		t.Fatalf("download: %v", err)
	}
	if tag := f.requests()[0].Tags[0]; tag.HasChildren() {
		t.Fatalf("default category should send no children: %+v", tag)
	}
}

func TestCategories(t *testing.T) {
	testlog.Start(t)
	c, f := newTestClient(t, func(n int, req frame.Packet) frame.Packet {
		switch req.Opcode {
		case schema.OpGetPreferences:
			return reply(schema.OpMiscData, tlv.Container(schema.TagPrefsCategories,
				tlv.New(schema.TagCategory, tlv.TypeUint32, 0,
					tlv.New(schema.TagCategoryTitle, tlv.TypeString, "all")),
				tlv.New(schema.TagCategory, tlv.TypeUint32, 4,
					tlv.New(schema.TagCategoryTitle, tlv.TypeString, "linux"),
					tlv.New(schema.TagCategoryColor, tlv.TypeUint32, 0xFF8800),
					tlv.New(schema.TagCategoryPrio, tlv.TypeUint8, 1)),
			))
		case schema.OpCreateCategory:
			return reply(schema.OpNoop, tlv.New(schema.TagCategory, tlv.TypeUint32, 5))
		}
		return reply(schema.OpNoop)
	})
	ctx := context.Background()

	cats, err := c.Categories(ctx)
	if err != nil {
		t.Fatalf("categories: %v", err)
	}
	want := Category{ID: 4, Title: "linux", Color: 0xFF8800, Priority: 1}
	if len(cats) != 2 || cats[1] != want {
		t.Fatalf("categories=%+v", cats)
	}
	sel := f.requests()[0].Tags[0]
	if n, _ := sel.Uint(); sel.ID != schema.TagSelectPrefs || n != uint64(schema.PrefsCategories) {
		t.Fatalf("select prefs tag=%+v", sel)
	}

	id, err := c.CreateCategory(ctx, Category{Title: "books"})
	if err != nil || id != 5 {
		t.Fatalf("create id=%d err=%v", id, err)
	}
	created := f.requests()[1].Tags[0]
	if created.Type != tlv.TypeCustom || created.Value != nil || len(created.Children) != 5 {
		t.Fatalf("create tag=%+v", created)
	}
	if err := c.DeleteCategory(ctx, 5); err != nil {
		t.Fatalf("delete: %v", err)
	}
}

func TestTreeSkipsBookkeepingTagsByName(t *testing.T) {
	testlog.Start(t)
	names := schema.Table{Tags: map[uint16]string{
		0x0A01: "EC_TAG_STATTREE_NODE",
		0x0A02: "EC_TAG_STAT_VALUE_TYPE",
		0x0A03: "EC_TAG_STATTREE_NODEID",
	}}
	tags := []tlv.Tag{
		tlv.New(0x0A01, tlv.TypeString, "Uptime",
			tlv.New(0x0A02, tlv.TypeUint8, 3),
			tlv.New(0x0A03, tlv.TypeUint32, 17),
			tlv.New(0x0A01, tlv.TypeUint64, uint64(1)<<40)),
		tlv.New(0x0A03, tlv.TypeUint32, 18),
	}

	nodes := Tree(tags, names)
	if len(nodes) != 1 || nodes[0].Value != "Uptime" {
		t.Fatalf("nodes=%+v", nodes)
	}
	if len(nodes[0].Children) != 1 || nodes[0].Children[0].Value != "1099511627776" {
		t.Fatalf("children=%+v", nodes[0].Children)
	}
	if _, ok := Find(nodes, "EC_TAG_STAT_VALUE_TYPE"); ok {
		t.Fatalf("value type node should be dropped")
	}
}
