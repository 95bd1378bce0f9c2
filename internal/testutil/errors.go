package testutil

import (
	"github.com/allisson/logvault/internal/errors"
)

func errDuplicate(what string) error {
	return errors.Wrapf(errors.ErrConflict, "%s already exists", what)
}
