// Package dvio implements sequential I/O for PV4 containers: the stream file
// reader and writer, the headerless index file reader and writer, the
// combined StreamAndIndexWriter, and index derivation from a stream file when
// no companion index exists.
//
// Readers and writers own their stream position. Independent readers over the
// same file are safe; concurrent writers to one file are not supported.
package dvio
