package memlog

import (
	"github.com/pkg/errors"

	"memlog/domain/stream"
)

// MaxPartitions is the hard cap on partitions per log.
const MaxPartitions = 100

// Log is a named, fixed-size array of partitions.
type Log struct {
	name       stream.Name
	partitions []*Partition
}

func newLog(name stream.Name, size int) (*Log, error) {
	if size <= 0 || size > MaxPartitions {
		return nil, errors.Wrapf(stream.ErrPartitionCount, "%d not in [1, %d] for %s", size, MaxPartitions, name)
	}
	l := &Log{
		name:       name,
		partitions: make([]*Partition, size),
	}
	for i := range l.partitions {
		l.partitions[i] = newPartition(name, i)
	}
	return l, nil
}

func (l *Log) Name() stream.Name { return l.name }

// Size returns the partition count.
func (l *Log) Size() int { return len(l.partitions) }

func (l *Log) Partition(i int) (*Partition, error) {
	if i < 0 || i >= len(l.partitions) {
		return nil, errors.Wrapf(stream.ErrPartitionOutOfRange, "partition %d of %s (size %d)", i, l.name, len(l.partitions))
	}
	return l.partitions[i], nil
}

// Partitions returns the partitions in index order.
func (l *Log) Partitions() []*Partition {
	out := make([]*Partition, len(l.partitions))
	copy(out, l.partitions)
	return out
}

// Lag returns the group's lag on every partition, in index order.
func (l *Log) Lag(group stream.Name) []stream.LogLag {
	out := make([]stream.LogLag, len(l.partitions))
	for i, p := range l.partitions {
		out[i] = p.Lag(group)
	}
	return out
}

// Groups lists the consumer groups known to any partition.
func (l *Log) Groups() []stream.Name {
	seen := make(map[stream.Name]struct{})
	var out []stream.Name
	for _, p := range l.partitions {
		for _, g := range p.Groups() {
			if _, ok := seen[g]; ok {
				continue
			}
			seen[g] = struct{}{}
			out = append(out, g)
		}
	}
	sortNames(out)
	return out
}
