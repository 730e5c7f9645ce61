// Package outbox journals records forwarded to an external broker so that
// failed deliveries survive until they are retried.
package outbox

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/benbjohnson/clock"
	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"

	"memlog/domain/stream"
)

// -------------------- State --------------------

type State uint8

const (
	StateNew State = iota
	StateSent
	StateAcked
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateSent:
		return "SENT"
	case StateAcked:
		return "ACKED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// -------------------- Entry --------------------

// Key identifies an entry. Log offsets restart at zero with every process,
// so each Open starts a new run and entries of earlier runs keep their keys.
type Key struct {
	Run    uint64
	Offset stream.LogOffset
}

func (k Key) String() string {
	return fmt.Sprintf("run %d %s", k.Run, k.Offset)
}

// Entry is the delivery state of one record.
type Entry struct {
	Key
	State       State
	Retries     uint32
	LastAttempt int64
	Payload     []byte
}

const headerLen = 1 + 4 + 8

// binary encoding: [state:1][retries:4][lastAttempt:8][payload...]
func encodeEntry(e Entry) []byte {
	buf := make([]byte, headerLen+len(e.Payload))
	buf[0] = byte(e.State)
	binary.BigEndian.PutUint32(buf[1:5], e.Retries)
	binary.BigEndian.PutUint64(buf[5:13], uint64(e.LastAttempt))
	copy(buf[headerLen:], e.Payload)
	return buf
}

func decodeEntry(b []byte) (Entry, error) {
	if len(b) < headerLen {
		return Entry{}, errors.Errorf("outbox entry too short: %d bytes", len(b))
	}
	return Entry{
		State:       State(b[0]),
		Retries:     binary.BigEndian.Uint32(b[1:5]),
		LastAttempt: int64(binary.BigEndian.Uint64(b[5:13])),
		Payload:     bytes.Clone(b[headerLen:]),
	}, nil
}

// -------------------- Outbox --------------------

// ErrNotFound is returned by Get for offsets never journaled.
var ErrNotFound = pebble.ErrNotFound

// Outbox is a pebble-backed journal keyed by run and log offset.
type Outbox struct {
	db    *pebble.DB
	clock clock.Clock
	run   uint64
}

// Open opens or creates the journal in dir.
func Open(dir string) (*Outbox, error) {
	return OpenWithClock(dir, clock.New())
}

func OpenWithClock(dir string, clk clock.Clock) (*Outbox, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrapf(err, "open outbox %s", dir)
	}
	run, err := nextRun(db)
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "open outbox %s", dir)
	}
	return &Outbox{db: db, clock: clk, run: run}, nil
}

// nextRun bumps the persisted run counter.
func nextRun(db *pebble.DB) (uint64, error) {
	var run uint64
	val, closer, err := db.Get([]byte(runKey))
	switch {
	case errors.Is(err, pebble.ErrNotFound):
	case err != nil:
		return 0, err
	default:
		if len(val) == 8 {
			run = binary.BigEndian.Uint64(val)
		}
		closer.Close()
	}
	run++
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, run)
	if err := db.Set([]byte(runKey), buf, pebble.Sync); err != nil {
		return 0, err
	}
	return run, nil
}

// Run returns the run this Outbox journals new entries under.
func (o *Outbox) Run() uint64 { return o.run }

// KeyOf returns the key PutNew uses for offset.
func (o *Outbox) KeyOf(offset stream.LogOffset) Key {
	return Key{Run: o.run, Offset: offset}
}

func (o *Outbox) Close() error {
	return o.db.Close()
}

// PutNew journals a record about to be published under the current run.
func (o *Outbox) PutNew(offset stream.LogOffset, payload []byte) (Key, error) {
	k := o.KeyOf(offset)
	return k, o.put(Entry{Key: k, State: StateNew, Payload: payload})
}

func (o *Outbox) MarkSent(k Key) error {
	return o.transition(k, StateSent, false)
}

func (o *Outbox) MarkAcked(k Key) error {
	return o.transition(k, StateAcked, false)
}

// MarkFailed records a failed attempt and bumps the retry count.
func (o *Outbox) MarkFailed(k Key) error {
	return o.transition(k, StateFailed, true)
}

func (o *Outbox) transition(k Key, state State, retry bool) error {
	e, err := o.Get(k)
	if err != nil {
		return err
	}
	e.State = state
	e.LastAttempt = o.clock.Now().UnixNano()
	if retry {
		e.Retries++
	}
	return o.put(e)
}

func (o *Outbox) put(e Entry) error {
	return o.db.Set(keyFor(e.Key), encodeEntry(e), pebble.Sync)
}

// Get returns the entry journaled under k.
func (o *Outbox) Get(k Key) (Entry, error) {
	val, closer, err := o.db.Get(keyFor(k))
	if err != nil {
		return Entry{}, errors.Wrapf(err, "outbox get %s", k)
	}
	defer closer.Close()

	e, err := decodeEntry(val)
	if err != nil {
		return Entry{}, err
	}
	e.Key = k
	return e, nil
}

// -------------------- Scan --------------------

// ScanByState calls fn for every entry in state, oldest run first.
func (o *Outbox) ScanByState(state State, fn func(Entry) error) error {
	return o.scan(func(e Entry) error {
		if e.State != state {
			return nil
		}
		return fn(e)
	})
}

// ScanPending calls fn for every entry not yet acknowledged.
func (o *Outbox) ScanPending(fn func(Entry) error) error {
	return o.scan(func(e Entry) error {
		if e.State == StateAcked {
			return nil
		}
		return fn(e)
	})
}

func (o *Outbox) scan(fn func(Entry) error) error {
	iter, err := o.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keyPrefix),
		UpperBound: []byte(keyPrefix + "\xff"),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		e, err := decodeEntry(iter.Value())
		if err != nil {
			return err
		}
		if e.Key, err = parseKey(iter.Key()); err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return iter.Error()
}

// PruneAcked deletes acknowledged entries and returns how many it removed.
func (o *Outbox) PruneAcked() (int, error) {
	batch := o.db.NewBatch()
	defer batch.Close()

	n := 0
	err := o.ScanByState(StateAcked, func(e Entry) error {
		n++
		return batch.Delete(keyFor(e.Key), nil)
	})
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	return n, batch.Commit(pebble.Sync)
}

// -------------------- Helpers --------------------

const (
	keyPrefix = "outbox/"
	runKey    = "meta/run"
)

// outbox/<run>/<log urn>/<partition>/<offset>, zero padded so keys sort by
// run then offset.
func keyFor(k Key) []byte {
	return []byte(fmt.Sprintf("%s%020d/%s/%03d/%020d", keyPrefix, k.Run,
		k.Offset.Partition.Name.URN(), k.Offset.Partition.Partition, k.Offset.Offset))
}

func parseKey(b []byte) (Key, error) {
	rest := string(bytes.TrimPrefix(b, []byte(keyPrefix)))
	r := strings.IndexByte(rest, '/')
	if r < 0 {
		return Key{}, errors.Errorf("malformed outbox key %q", b)
	}
	run, err := strconv.ParseUint(rest[:r], 10, 64)
	if err != nil {
		return Key{}, errors.Wrapf(err, "outbox key %q", b)
	}
	rest = rest[r+1:]
	i := strings.LastIndexByte(rest, '/')
	if i < 0 {
		return Key{}, errors.Errorf("malformed outbox key %q", b)
	}
	off, err := strconv.ParseInt(rest[i+1:], 10, 64)
	if err != nil {
		return Key{}, errors.Wrapf(err, "outbox key %q", b)
	}
	rest = rest[:i]
	j := strings.LastIndexByte(rest, '/')
	if j < 0 {
		return Key{}, errors.Errorf("malformed outbox key %q", b)
	}
	p, err := strconv.Atoi(rest[j+1:])
	if err != nil {
		return Key{}, errors.Wrapf(err, "outbox key %q", b)
	}
	name := stream.NameOfURN(rest[:j])
	return Key{Run: run, Offset: stream.OffsetOf(stream.PartitionOf(name, p), off)}, nil
}
