// Package lasterror implements the two-call error retrieval protocol.
//
// A failing operation records its error in the Channel of the calling
// context; the caller then asks for Length to size a buffer and CopyInto to
// fill it:
//
//	ctx, ch := lasterror.WithChannel(ctx)
//	if _, err := rt.Instantiate(ctx, wasmBytes, imports); err != nil {
//	    buf := make([]byte, ch.Length())
//	    n := ch.CopyInto(buf)
//	    fmt.Println(string(buf[:n]))
//	}
//
// Each context owns its own Channel, so concurrent callers never observe
// each other's errors. There is no process wide slot.
package lasterror
