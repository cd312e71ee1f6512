// Package codec decodes PV4 video frames to 32-bit BGR bitmaps, either
// progressively or as two deinterlaced fields, and defines the encoder
// contract.
//
// Sample extraction is delegated to a backend chosen when a Decoder is
// created. Backends register themselves with a priority; the highest
// priority backend that is available for the decoder's thread count wins.
// The built-in backends read uncompressed packed YUV422 payloads stored in
// the four video blocks as consecutive row bands (see RawEncoder).
package codec
