// Package wasm provides WebAssembly MVP binary format parsing and encoding.
//
// The package covers the core value types (i32, i64, f32, f64), functions,
// a single funcref table, a single linear memory, globals, imports, exports,
// the start function, active element and data segments, and multi-value
// block types. Proposals past the MVP (SIMD, threads, bulk memory,
// reference types, multi-memory) are rejected by the decoder.
//
// # Parsing
//
//	data, _ := os.ReadFile("module.wasm")
//	module, err := wasm.ParseModule(data)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Parse with validation enabled:
//
//	module, err := wasm.ParseModuleValidate(data)
//
// Parse errors carry the byte offset and section name:
//
//	var pe *wasm.ParseError
//	if errors.As(err, &pe) {
//	    fmt.Println(pe.Section, pe.Position)
//	}
//
// # Encoding
//
// Encode a module back to binary:
//
//	encoded := module.Encode()
//
// Function bodies can be assembled from instructions:
//
//	body := wasm.EncodeInstructions([]wasm.Instruction{
//	    {Opcode: wasm.OpLocalGet, Imm: wasm.LocalImm{LocalIdx: 0}},
//	    {Opcode: wasm.OpEnd},
//	})
//
// # Validation
//
// Module.Validate checks type, function, table, memory and global indices,
// limits, constant expressions, export names, the start signature, and the
// nesting of every function body. It does not type check the operand stack;
// engine.WazeroValidator adds that.
package wasm
