package blockplan

import "errors"

// ErrInconsistentInputLength is returned by PreformatData when the tariff, production and
// consumption series do not reduce to slices of equal length over the requested window.
var ErrInconsistentInputLength = errors.New("blockplan: inconsistent input data length")
