package expansion

import "errors"

var (
	ErrGeneratorRequired = errors.New("expansion generator is required")
	ErrCacheRequired     = errors.New("expansion cache is required")
)
