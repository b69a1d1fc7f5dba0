// Package engine defines the validator and executor contracts the runtime
// is built on, and supplies validators.
//
// # Validators
//
//	StructuralValidator  - decoder plus index, limit and block checks
//	WazeroValidator      - full type checking via wazero compilation
//	Chain                - runs several validators in order
//
// Validators return an error of kind validation; they never record into an
// error channel.
//
// # Executors
//
// An Executor compiles the functions of a store.ModuleInstance and invokes
// them. The interp subpackage provides the default one. Guest faults come
// back as *Trap with a TrapCode:
//
//	_, err := exec.Invoke(ctx, inst, fn, args)
//	if errors.Is(err, engine.NewTrap(engine.TrapIntegerDivideByZero)) {
//		...
//	}
//
// # Thread Safety
//
// Validators are safe for concurrent use. Executors may be shared between
// instances, but a single instance must not be invoked concurrently.
package engine
