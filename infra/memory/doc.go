// Package memory provides typed object pools used on the hot encode
// path. Pools hand out reset objects so callers never observe stale state.
package memory
