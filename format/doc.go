// Package format defines the on-disk records of the EARTH SOFT PV4 container:
// the 16 KiB stream file header, the 512-byte frame preamble with its aligned
// audio and video payloads, and the 16-byte index file entry.
//
// All multi-byte integers are big-endian. Frame offsets and sizes stored in
// the index are expressed in 4096-byte units.
package format
