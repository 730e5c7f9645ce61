// Package codec defines how message values are turned into bytes before
// being appended to a log, and back when they are tailed.
//
// NoCodec is a sentinel: appenders using it fall back to generic gob
// serialization and tag the record as legacy, so that readers using a real
// codec refuse it instead of decoding garbage.
package codec
