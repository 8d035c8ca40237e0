// internal/ledger/ids_test.go
package ledger

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewCorrelationID(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a := NewCorrelationID(at)
	b := NewCorrelationID(at)
	assert.NotEqual(t, a, b)

	parts := strings.Split(a, "_")
	assert.Len(t, parts, 3)
	assert.Equal(t, "txn", parts[0])
	assert.Equal(t, "mm7p6yo0", parts[1])
	assert.Len(t, parts[2], 12)
}
