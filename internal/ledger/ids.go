// internal/ledger/ids.go
package ledger

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewCorrelationID returns "txn_<unix millis, base36>_<12 random hex chars>".
// Correlation ids sort roughly by creation time.
func NewCorrelationID(at time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return "txn_" + strconv.FormatInt(at.UnixMilli(), 36) + "_" + suffix
}
