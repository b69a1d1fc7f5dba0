// Package linker resolves module imports against an import object.
//
// # Main Types
//
//   - Imports: the import object, bindings grouped by namespace
//   - Namespace: bindings of one import module name
//   - Resolved: the bindings chosen for a module by Link
//
// # Host Functions
//
// A host function can be supplied three ways:
//
//   - DefineFunc / RegisterFunction: a HostCallback over []api.Value with an
//     explicit signature
//   - DefineRawFunc: a RawHostCallback over the executor's uint64 stack
//   - DefineGoFunc / RegisterHost: a plain Go function or the methods of a
//     struct, with the signature derived by reflection
//
// Registering a name twice replaces the earlier binding.
//
// # Example
//
//	imports := linker.NewImports()
//	defer imports.Close()
//	imports.Namespace("env").DefineGoFunc("log", func(v int32) {
//		fmt.Println(v)
//	})
package linker
