package linker

import (
	"fmt"

	"github.com/dejan-stankovic/wasmer/api"
	"github.com/dejan-stankovic/wasmer/errors"
)

// kindMismatch reports an import bound to an item of the wrong kind.
func kindMismatch(ns, name string, want, got api.ExternKind) error {
	return errors.New(errors.PhaseLink, errors.KindLink).
		Path(ns, name).
		Expected(want.String()).
		Actual(got.String()).
		Detail("import kind mismatch").
		Build()
}

// typeMismatch reports a bound item whose type does not satisfy the import.
func typeMismatch(ns, name, want, got, detail string) error {
	return errors.New(errors.PhaseLink, errors.KindLink).
		Path(ns, name).
		Expected(want).
		Actual(got).
		Detail("%s", detail).
		Build()
}

func limitsString(l api.Limits) string {
	if l.Max == nil {
		return fmt.Sprintf("{min %d}", l.Min)
	}
	return fmt.Sprintf("{min %d, max %d}", l.Min, *l.Max)
}
