package retry

import (
	"fmt"

	"github.com/poiesic/lexis/core"
)

var (
	// ErrInvalidMaxRetries is returned when a policy allows no attempts.
	ErrInvalidMaxRetries = fmt.Errorf("%w: max retries must be greater than 0", core.ErrConfiguration)
)
