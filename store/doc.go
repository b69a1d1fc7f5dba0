// Package store holds the runtime objects an instance is made of: linear
// memories, tables, globals, functions, and the per-instance context handed
// to host functions.
//
// Objects are plain mutable values without internal locking; callers
// serialize access to a single object. Memory.Data returns the live buffer,
// and Memory.Grow may move it:
//
//	data := mem.Data()
//	mem.Grow(1)
//	// data is stale here; call mem.Data() again
//
// Sharing follows a holder count. The host creates objects with NewMemory,
// NewTable, or NewGlobal and releases them with Destroy. An instance that
// imports an object calls Acquire and later Release; Destroy fails with an
// in_use error while any holder remains. Objects declared by a module are
// adopted by their instance and freed when the last holder releases them.
package store
