// Package dv opens PV4 containers for random access by frame number and
// extracts frame ranges into new containers.
//
// A DV pairs a stream file with its index, loading the index from the
// companion file or deriving it from the stream. Frame access is serialized
// internally because all calls share one reader position; callers may use a
// DV from several goroutines.
package dv
