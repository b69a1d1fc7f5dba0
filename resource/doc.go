// Package resource maps opaque handles to host-side values.
//
// Handles are generational: dropping a value advances its slot's
// generation, so a stale or forged handle is rejected rather than resolved
// to whatever value later reuses the slot.
//
//	table := resource.NewTable()
//	mems := resource.NewTyped[*store.Memory](table, memoryTypeID)
//
//	h, err := mems.Insert(mem)
//	mem, ok := mems.Get(h)
//	mem, err = mems.Remove(h)
//	_, ok = mems.Get(h) // false from now on
//
// # Type Safety
//
// Every value carries the type ID it was inserted with. GetTyped, Borrow
// and Remove refuse handles of another type, so a memory handle presented
// where a global is expected fails like a stale one.
//
// # Borrows
//
// Borrow pins a value for the duration of an operation; Remove fails with
// ErrOutstandingBorrow until every borrow is returned.
//
// # Observers
//
//	table.Subscribe(resource.ObserverFunc(func(e resource.Event) {
//	    log.Printf("%s %d", e.Type, e.Handle)
//	}))
//
// # Close
//
// Close invalidates every handle and drops the remaining values that
// implement Dropper, lowest type ID first. Assign type IDs so that values
// holding others (instances) precede the values they hold (memories).
package resource
