package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/dejan-stankovic/wasmer/api"
	"github.com/dejan-stankovic/wasmer/linker"
	"github.com/dejan-stankovic/wasmer/runtime"
	"github.com/dejan-stankovic/wasmer/store"
	"github.com/dejan-stankovic/wasmer/wasm"
)

type exportInfo struct {
	name string
	kind string
	fn   *api.FuncType
}

func (e exportInfo) signature() string {
	if e.fn == nil {
		return e.name
	}
	return e.name + e.fn.String()
}

// loaded is a module instantiated for the command line.
type loaded struct {
	rt      *runtime.Runtime
	inst    *runtime.Instance
	imports *linker.Imports
	module  *wasm.Module
	exports []exportInfo
}

func load(ctx context.Context, opts options, log *zap.Logger) (*loaded, error) {
	data, err := os.ReadFile(opts.wasmFile)
	if err != nil {
		return nil, err
	}
	return loadBytes(ctx, data, opts, log, os.Stdout)
}

func loadBytes(ctx context.Context, data []byte, opts options, log *zap.Logger, out io.Writer) (*loaded, error) {
	m, err := wasm.ParseModule(data)
	if err != nil {
		return nil, fmt.Errorf("parse module: %w", err)
	}

	rt, err := runtime.New(ctx, runtimeOptions(opts, log)...)
	if err != nil {
		return nil, err
	}

	imports := linker.NewImports()
	if opts.stub {
		if err := stubImports(imports, m, log, out); err != nil {
			rt.Close(ctx)
			return nil, err
		}
	}

	inst, err := rt.Instantiate(ctx, data, imports)
	if err != nil {
		imports.Close()
		rt.Close(ctx)
		return nil, err
	}

	l := &loaded{rt: rt, inst: inst, imports: imports, module: m}
	for _, e := range inst.Exports() {
		info := exportInfo{name: e.Name, kind: e.Kind.String()}
		if ft, ok := inst.ExportedFunction(e.Name); ok {
			info.fn = &ft
		}
		l.exports = append(l.exports, info)
	}
	return l, nil
}

func (l *loaded) close(ctx context.Context) {
	l.inst.Close(ctx)
	l.imports.Close()
	l.rt.Close(ctx)
}

// stubImports satisfies every function import with a host function that
// prints its arguments and returns zeros.
func stubImports(imports *linker.Imports, m *wasm.Module, log *zap.Logger, out io.Writer) error {
	for _, imp := range m.Imports {
		if imp.Desc.Kind != wasm.KindFunc || int(imp.Desc.TypeIdx) >= len(m.Types) {
			continue
		}
		ft := store.FuncTypeOf(m.Types[imp.Desc.TypeIdx])
		qualified := imp.Module + "." + imp.Name
		fn := func(_ *store.InstanceContext, args []api.Value) ([]api.Value, error) {
			log.Debug("host import called", zap.String("import", qualified), zap.Stringers("args", args))
			fmt.Fprintf(out, "[%s] %s\n", qualified, formatValues(args))
			results := make([]api.Value, len(ft.Results))
			for i, k := range ft.Results {
				results[i] = api.Zero(k)
			}
			return results, nil
		}
		if err := imports.RegisterFunction(imp.Module, imp.Name, fn, ft.Params, ft.Results); err != nil {
			return fmt.Errorf("stub %s: %w", qualified, err)
		}
	}
	return nil
}

var entryPoints = []string{"_start", "main", "run"}

// entryPoint returns the first conventional entry point exported with no
// parameters.
func (l *loaded) entryPoint() string {
	for _, name := range entryPoints {
		if ft, ok := l.inst.ExportedFunction(name); ok && len(ft.Params) == 0 {
			return name
		}
	}
	return ""
}

func (l *loaded) functions() []exportInfo {
	var out []exportInfo
	for _, e := range l.exports {
		if e.fn != nil {
			out = append(out, e)
		}
	}
	return out
}

func (l *loaded) parseArgs(name string, raw []string) ([]api.Value, error) {
	ft, ok := l.inst.ExportedFunction(name)
	if !ok {
		return nil, fmt.Errorf("function %q not exported", name)
	}
	if len(raw) != len(ft.Params) {
		return nil, fmt.Errorf("%s takes %d arguments, got %d", name, len(ft.Params), len(raw))
	}
	args := make([]api.Value, len(raw))
	for i, s := range raw {
		v, err := parseValue(ft.Params[i], s)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		args[i] = v
	}
	return args, nil
}

// parseValue reads s as a value of kind k. Integers accept any base
// prefix strconv understands; i32 also accepts unsigned values up to
// 2^32-1, which wrap.
func parseValue(k api.Kind, s string) (api.Value, error) {
	s = strings.TrimSpace(s)
	switch k {
	case api.KindI32:
		n, err := strconv.ParseInt(s, 0, 64)
		if err != nil {
			return api.Value{}, err
		}
		if n < math.MinInt32 || n > math.MaxUint32 {
			return api.Value{}, fmt.Errorf("%s out of range for i32", s)
		}
		return api.I32(int32(n)), nil
	case api.KindI64:
		n, err := strconv.ParseInt(s, 0, 64)
		if err != nil {
			u, uerr := strconv.ParseUint(s, 0, 64)
			if uerr != nil {
				return api.Value{}, err
			}
			n = int64(u)
		}
		return api.I64(n), nil
	case api.KindF32:
		f, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return api.Value{}, err
		}
		return api.F32(float32(f)), nil
	case api.KindF64:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return api.Value{}, err
		}
		return api.F64(f), nil
	}
	return api.Value{}, fmt.Errorf("unsupported kind %s", k)
}

func formatValues(vs []api.Value) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = v.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
