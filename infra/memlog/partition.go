package memlog

import (
	"sort"
	"sync"

	"github.com/pkg/errors"

	"memlog/domain/stream"
)

// Partition is an append-only sequence of payloads.
type Partition struct {
	log   stream.Name
	index int

	mu      sync.RWMutex
	records []Payload

	// groups guards trackers and tailers, never records.
	groups   sync.Mutex
	trackers map[stream.Name]*OffsetTracker
	tailers  map[stream.Name]struct{}
}

func newPartition(log stream.Name, index int) *Partition {
	return &Partition{
		log:      log,
		index:    index,
		trackers: make(map[stream.Name]*OffsetTracker),
		tailers:  make(map[stream.Name]struct{}),
	}
}

func (p *Partition) Index() int { return p.index }

// LogPartition returns the public identity of the partition.
func (p *Partition) LogPartition() stream.LogPartition {
	return stream.PartitionOf(p.log, p.index)
}

// Append stores rec and returns its offset, which is the size before append.
func (p *Partition) Append(rec Payload) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	off := int64(len(p.records))
	p.records = append(p.records, rec)
	return off
}

func (p *Partition) Size() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return int64(len(p.records))
}

// Get returns the payload stored at offset.
func (p *Partition) Get(offset int64) (Payload, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if offset < 0 || offset >= int64(len(p.records)) {
		return nil, false
	}
	return p.records[offset], true
}

// CreateTailer opens the group's cursor on this partition. The cursor starts
// at offset 0 and must be positioned by the caller.
func (p *Partition) CreateTailer(group stream.Name) (*Cursor, error) {
	p.groups.Lock()
	defer p.groups.Unlock()
	if _, ok := p.tailers[group]; ok {
		return nil, errors.Wrapf(stream.ErrTailerExists, "group %s on %s", group, p.LogPartition())
	}
	p.tailers[group] = struct{}{}
	return &Cursor{
		partition: p,
		group:     group,
		tracker:   p.trackerLocked(group),
	}, nil
}

func (p *Partition) closeTailer(group stream.Name) {
	p.groups.Lock()
	delete(p.tailers, group)
	p.groups.Unlock()
}

// HasTailer reports whether group currently holds a cursor.
func (p *Partition) HasTailer(group stream.Name) bool {
	p.groups.Lock()
	defer p.groups.Unlock()
	_, ok := p.tailers[group]
	return ok
}

// Tracker returns the group's tracker, creating it on first use.
func (p *Partition) Tracker(group stream.Name) *OffsetTracker {
	p.groups.Lock()
	defer p.groups.Unlock()
	return p.trackerLocked(group)
}

func (p *Partition) trackerLocked(group stream.Name) *OffsetTracker {
	t, ok := p.trackers[group]
	if !ok {
		t = newOffsetTracker()
		p.trackers[group] = t
	}
	return t
}

// Committed returns the group's committed offset, 0 if it never committed.
func (p *Partition) Committed(group stream.Name) int64 {
	p.groups.Lock()
	t, ok := p.trackers[group]
	p.groups.Unlock()
	if !ok {
		return 0
	}
	return t.Get()
}

// Groups lists the consumer groups known to the partition.
func (p *Partition) Groups() []stream.Name {
	p.groups.Lock()
	out := make([]stream.Name, 0, len(p.trackers))
	for g := range p.trackers {
		out = append(out, g)
	}
	p.groups.Unlock()
	sortNames(out)
	return out
}

// Lag reports the group's committed position against the partition end.
func (p *Partition) Lag(group stream.Name) stream.LogLag {
	return stream.LagOfRange(p.Committed(group), p.Size())
}

func sortNames(names []stream.Name) {
	sort.Slice(names, func(i, j int) bool { return names[i].URN() < names[j].URN() })
}

// -------------------- Cursor --------------------

// Cursor is a group's read position on a partition.
// A cursor is not safe for concurrent use.
type Cursor struct {
	partition *Partition
	group     stream.Name
	tracker   *OffsetTracker
	offset    int64
	closed    bool
}

func (c *Cursor) Partition() *Partition { return c.partition }

func (c *Cursor) Group() stream.Name { return c.group }

// Offset returns the offset of the next record to read.
func (c *Cursor) Offset() int64 { return c.offset }

// Read returns the record under the cursor then advances. ok is false when
// the cursor reached the end of the partition. A record stored with another
// encoding than expected yields ErrEncodingMismatch and does not advance.
func (c *Cursor) Read(expected Encoding) (data []byte, offset int64, ok bool, err error) {
	rec, found := c.partition.Get(c.offset)
	if !found {
		return nil, c.offset, false, nil
	}
	if rec.Encoding() != expected {
		return nil, c.offset, false, errors.Wrapf(stream.ErrEncodingMismatch,
			"%s at offset %d is %s, reader expects %s", c.partition.LogPartition(), c.offset, rec.Encoding(), expected)
	}
	offset = c.offset
	c.offset++
	return rec.Bytes(), offset, true, nil
}

func (c *Cursor) ToStart() { c.offset = 0 }

func (c *Cursor) ToEnd() { c.offset = c.partition.Size() }

// MoveTo positions the cursor on n, which must lie in [0, Size()].
func (c *Cursor) MoveTo(n int64) bool {
	if n < 0 || n > c.partition.Size() {
		return false
	}
	c.offset = n
	return true
}

// Commit publishes v as the group's committed offset.
func (c *Cursor) Commit(v int64) { c.tracker.Set(v) }

func (c *Cursor) Committed() int64 { return c.tracker.Get() }

// Close releases the group's slot. The committed offset is kept.
func (c *Cursor) Close() {
	if c.closed {
		return
	}
	c.closed = true
	c.partition.closeTailer(c.group)
}
