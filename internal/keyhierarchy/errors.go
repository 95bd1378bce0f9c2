package keyhierarchy

import (
	"github.com/allisson/logvault/internal/errors"
)

// ErrGrantNotWrapped indicates a derivation grant passed where a sealed KEK was expected.
var ErrGrantNotWrapped = errors.Wrap(errors.ErrInvalidInput, "grant carries no wrapped kek")
