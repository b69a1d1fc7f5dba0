// Package wasmer is the embedding core of a WebAssembly host.
//
// It validates module bytes, links a module against host supplied imports,
// owns the linear memory, table and global state an instance exposes, and
// marshals typed values across the host/guest boundary.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	wasmer/              Root package with the host-facing Memory interface
//	├── api/             Typed values, limits, descriptors and signatures
//	├── errors/          Structured error taxonomy
//	├── lasterror/       Context scoped last-error channel
//	├── wasm/            Core WASM binary decoding, encoding and validation
//	├── store/           Memory, Table, Global and instance state
//	├── linker/          Import registry and import resolution
//	├── engine/          Validator and Executor contracts, wazero validator
//	│   └── interp/      Interpreter executor
//	├── runtime/         Instantiation protocol and exported calls
//	├── resource/        Generational handle arena
//	├── capi/            Handle based boundary mirroring the wasmer C API
//	└── cmd/run/         Command line driver
//
// # Quick Start
//
//	rt, err := runtime.New(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	imports := linker.NewImports()
//	imports.RegisterFunction("env", "log",
//	    func(ic *store.InstanceContext, args []api.Value) ([]api.Value, error) {
//	        v, _ := args[0].AsI32()
//	        fmt.Println(v)
//	        return nil, nil
//	    },
//	    []api.Kind{api.KindI32}, nil,
//	)
//
//	inst, err := rt.Instantiate(ctx, wasmBytes, imports)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer inst.Close(ctx)
//
//	results, err := inst.Call(ctx, "run")
//
// # Errors
//
// Every fallible operation returns an *errors.Error whose Kind names the
// failure class (validation, link, limits, type_mismatch, mutability,
// not_found, arity, trap). When the context carries a lasterror.Channel the
// message is also recorded there, which is how the capi boundary implements
// the two-call error retrieval protocol.
//
// # Thread Safety
//
// Runtime is safe for concurrent use. Instance, Memory, Table and Global
// assume a single writer; callers serialize concurrent access themselves.
//
// # Memory Model
//
// Linear memory only grows. Growing may move the backing buffer, so a slice
// obtained from Memory.Data must not be used after a Grow.
package wasmer
