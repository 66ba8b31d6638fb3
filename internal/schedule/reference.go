package schedule

import (
	"strings"

	"github.com/google/uuid"
)

// RefSource produces booking references. Injected into the generator so
// tests can pin deterministic codes.
type RefSource func() string

// NewBookingReference returns an APT- prefixed 8 character uppercase code
// derived from a random 128-bit identifier.
func NewBookingReference() string {
	return "APT-" + strings.ToUpper(uuid.NewString()[:8])
}
