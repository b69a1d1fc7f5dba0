// Package capi is the handle-based boundary of the runtime, shaped for
// callers that cannot hold Go pointers: every object is named by an opaque
// handle, every fallible operation returns a Result, and the reason for an
// Error is read back from the session's last-error channel.
//
//	s, err := capi.NewSession(ctx)
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	imports, _ := s.ImportObjectNew()
//	s.ImportsSetImportFunc(imports, "env", "log", logFn,
//	    []capi.ValueTag{capi.TagI32}, nil)
//
//	inst, res := s.Instantiate(wasmBytes, imports)
//	if res != capi.OK {
//	    buf := make([]byte, s.LastErrorLength())
//	    s.LastErrorMessage(buf)
//	    return errors.New(string(buf))
//	}
//	s.InstanceCall(inst, "run", nil, nil)
//
// Handles are generational. A handle whose object was destroyed, or one
// forged from an integer, is rejected with an invalid_handle error rather
// than resolved to whatever object reuses its slot.
//
// The slice MemoryData returns aliases the live buffer and is invalidated
// by any grow; fetch it again afterwards.
package capi
