// Package runtime instantiates WebAssembly MVP modules and calls their
// exports.
//
// # Quick Start
//
//	ctx, errs := lasterror.WithChannel(context.Background())
//	rt, err := runtime.New(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	imports := linker.NewImports()
//	imports.RegisterFunction("env", "log",
//	    func(ic *store.InstanceContext, args []api.Value) ([]api.Value, error) {
//	        n, _ := args[0].AsI32()
//	        fmt.Println(n)
//	        return nil, nil
//	    },
//	    []api.Kind{api.KindI32}, nil)
//
//	inst, err := rt.Instantiate(ctx, wasmBytes, imports)
//	if err != nil {
//	    msg, _ := errs.Message()
//	    log.Fatal(msg)
//	}
//	defer inst.Close(ctx)
//
//	results, err := inst.Call(ctx, "run")
//
// # Instantiation
//
// Instantiate walks the states
//
//	Uninstantiated -> Validating -> Linking -> Ready
//
// and ends in Failed on any error, in which case no instance is returned.
// Linking resolves imports, allocates the declared memory, table and
// globals, writes element and data segments (all bounds-checked before the
// first write), compiles, and runs the start function.
//
// # Ownership
//
// Memories, tables and globals created by the host are destroyed by the
// host. An instance that imports one holds it until Close, and Destroy
// fails with an in_use error meanwhile. Objects an instance declares are
// freed when the last instance holding them closes, so a memory exported
// to a peer outlives its declaring instance.
//
// # Errors
//
// Every failing Instantiate, Call and CallInto records its error in the
// lasterror.Channel carried by ctx. Validate never does.
//
// # Memory Aliasing
//
// Memory.Data returns the live buffer. Growing the memory, from the host or
// from guest memory.grow, may move it; slices taken earlier must be
// re-fetched.
package runtime
