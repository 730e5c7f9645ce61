// Package service is the public face of the in-memory log.
//
// A LogManager owns a memlog.Registry and hands out typed Appenders and
// LogTailers bound to a codec. A LogTailer is either a PartitionTailer,
// reading one partition, or a CompoundTailer fanning in several of them
// round robin under a single consumer group.
//
// Nothing here touches the network. The API mirrors an external broker
// client closely enough to stand in for one in tests and development.
package service
