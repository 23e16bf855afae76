// Package binder reads and writes binder archives: the BND3 and BND4
// single-stream containers and their split BXF3 and BXF4 counterparts, which
// keep file headers (BHF) and file data (BDF) in separate streams.
//
// A binder holds an ordered list of [File] values, each with an optional
// integer ID, an optional name, per-file flags, and a payload that may be
// stored compressed. Which fields a container records is selected by its
// [Format].
//
// # Eager access
//
// The Read functions parse a whole container into memory:
//
//	bnd, err := binder.ReadBND4File("chr/c0000.anibnd.dcx")
//	if err != nil {
//		return err
//	}
//	for _, f := range bnd.Files {
//		fmt.Println(f.ID, f.Name, len(f.Bytes))
//	}
//
// Containers are written back with Write or WriteFile. File writes replace
// the target atomically. Split binders write through a pair of [Sink]
// values so that header and data streams can go to memory or disk
// independently:
//
//	err := bxf.WriteTo(&binder.BufferSink{}, binder.NewFileSink("out.bdt"))
//
// # Lazy access
//
// [Open] and [OpenSplit] return a [Reader] that parses metadata up front and
// reads payloads on demand from the held data stream:
//
//	r, err := binder.Open("menu.bnd")
//	if err != nil {
//		return err
//	}
//	defer r.Close()
//	data, err := r.ReadFile(`N:\menu\title.tpf`)
//
// # Compression
//
// Containers and individual payloads may be wrapped in DCX. Every reader
// unwraps DCX input transparently; [Unwrap] and [Wrap] operate on whole
// serialized containers.
//
// # Errors
//
// Failures wrap the sentinel errors in this package and are matched with
// errors.Is. A failed read never returns a partial container.
package binder
