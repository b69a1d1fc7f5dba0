package linker

import (
	"reflect"
	"sort"
	"strings"
	"unicode"

	"github.com/dejan-stankovic/wasmer/errors"
)

// Host is implemented by structs whose exported methods become host
// functions in the namespace it names.
type Host interface {
	Namespace() string
}

// ExplicitRegistrar lets a Host supply import names that snake_case
// conversion of method names cannot produce.
type ExplicitRegistrar interface {
	Register() map[string]any
}

// RegisterHost binds every exported method of h except Namespace and
// Register. Method names are converted to snake_case: WriteString becomes
// write_string and GetHTTPStatus becomes get_http_status.
func (im *Imports) RegisterHost(h Host) error {
	if h == nil {
		return errors.InvalidInput(errors.PhaseHost, "host is nil")
	}
	name := h.Namespace()
	if name == "" {
		return errors.InvalidInput(errors.PhaseHost, "namespace cannot be empty")
	}
	ns := im.Namespace(name)

	if er, ok := h.(ExplicitRegistrar); ok {
		funcs := er.Register()
		names := make([]string, 0, len(funcs))
		for n := range funcs {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			if err := ns.DefineGoFunc(n, funcs[n]); err != nil {
				return err
			}
		}
		return nil
	}

	rv := reflect.ValueOf(h)
	rt := rv.Type()
	for i := 0; i < rt.NumMethod(); i++ {
		method := rt.Method(i)
		if !method.IsExported() || method.Name == "Namespace" || method.Name == "Register" {
			continue
		}
		if err := ns.DefineGoFunc(toSnakeCase(method.Name), rv.Method(i).Interface()); err != nil {
			return err
		}
	}
	return nil
}

// toSnakeCase converts PascalCase to snake_case, keeping acronyms together.
func toSnakeCase(s string) string {
	runes := []rune(s)
	var b strings.Builder

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if !unicode.IsUpper(r) {
			b.WriteRune(r)
			continue
		}

		end := i + 1
		for end < len(runes) && unicode.IsUpper(runes[end]) {
			end++
		}
		// the last capital of a run starts the next word
		if end > i+1 && end < len(runes) && unicode.IsLower(runes[end]) {
			end--
		}
		if i > 0 {
			b.WriteByte('_')
		}
		for j := i; j < end; j++ {
			b.WriteRune(unicode.ToLower(runes[j]))
		}
		i = end - 1
	}
	return b.String()
}
