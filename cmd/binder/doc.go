// Command binder lists, unpacks, and repacks BND3, BND4, BXF3, and BXF4
// archives.
//
// Usage:
//
//	binder list [--data file.bdt] <file>
//	binder unpack [--data file.bdt] -o <dir> <file>
//	binder pack [--data file.bdt] -o <file> <dir>
//
// unpack writes every payload under <dir>/files and records the container
// metadata in <dir>/binder.yaml. pack reads that manifest back and
// rebuilds the container. Compressed payloads and DCX-wrapped containers
// are recompressed on pack, so an unmodified unpack/pack cycle reproduces
// the input byte for byte only when its compressed data was produced by
// this package; other inputs repack to equivalent but not identical bytes.
// Split binders name their BDF data file with --data.
package main
