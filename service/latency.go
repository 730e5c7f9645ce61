package service

import (
	"time"

	"github.com/pkg/errors"

	"memlog/domain/stream"
	"memlog/infra/codec"
	"memlog/infra/memlog"
)

// LatencyPerPartition measures how far behind group is on each partition of
// the log. The latency of a lagging partition is the age of the last record
// the group committed, as given by timestamp; key names that record.
// Partitions with no lag, or where the group committed nothing, report the
// lag alone. Either extractor may be nil; a nil timestamp leaves Timestamp
// and Latency zero.
func LatencyPerPartition[M any](
	m *LogManager,
	name stream.Name,
	group stream.Name,
	c codec.Codec[M],
	timestamp func(M) time.Time,
	key func(M) string,
) ([]stream.Latency, error) {
	l, err := m.registry.Get(name)
	if err != nil {
		return nil, err
	}
	enc := memlog.EncodingCodec
	if codec.IsNoCodec(c) {
		c = codec.NoCodec[M]()
		enc = memlog.EncodingLegacy
	}

	now := m.opts.clock.Now()
	out := make([]stream.Latency, 0, l.Size())
	for _, p := range l.Partitions() {
		committed := p.Committed(group)
		lag := stream.LagOfRange(committed, p.Size())
		if lag.Lag() == 0 || committed == 0 {
			out = append(out, stream.Latency{Lag: lag})
			continue
		}
		rec, ok := p.Get(committed - 1)
		if !ok {
			out = append(out, stream.Latency{Lag: lag})
			continue
		}
		if rec.Encoding() != enc {
			return nil, errors.Wrapf(stream.ErrEncodingMismatch, "%s at offset %d", p.LogPartition(), committed-1)
		}
		msg, err := c.Decode(rec.Bytes())
		if err != nil {
			return nil, errors.Wrapf(err, "decode %s at offset %d", p.LogPartition(), committed-1)
		}
		lat := stream.Latency{Lag: lag}
		if timestamp != nil {
			lat.Timestamp = timestamp(msg)
			lat.Latency = now.Sub(lat.Timestamp)
		}
		if key != nil {
			lat.Key = key(msg)
		}
		out = append(out, lat)
	}
	return out, nil
}
