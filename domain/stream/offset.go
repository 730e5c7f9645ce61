package stream

import "fmt"

// LogPartition identifies one partition of a log.
type LogPartition struct {
	Name      Name
	Partition int
}

func PartitionOf(name Name, partition int) LogPartition {
	return LogPartition{Name: name, Partition: partition}
}

func (p LogPartition) String() string {
	return fmt.Sprintf("%s:%02d", p.Name, p.Partition)
}

// LogOffset is the position of a record inside a partition.
// Offsets are zero based, dense and never reused.
type LogOffset struct {
	Partition LogPartition
	Offset    int64
}

func OffsetOf(partition LogPartition, offset int64) LogOffset {
	return LogOffset{Partition: partition, Offset: offset}
}

// Next returns the offset of the record that follows o.
func (o LogOffset) Next() LogOffset {
	return LogOffset{Partition: o.Partition, Offset: o.Offset + 1}
}

func (o LogOffset) String() string {
	return fmt.Sprintf("%s:+%d", o.Partition, o.Offset)
}

// LogRecord is a decoded message delivered to a consumer.
type LogRecord[M any] struct {
	Message M
	Offset  LogOffset
}
