package ungoverned

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatermark(t *testing.T) {
	wm := Watermark()

	assert.Equal(t, "UNGOVERNED", wm["zone"])
	assert.Equal(t, Article50, wm["article"])
	assert.Equal(t, "KEEPER", wm["liability"])
	assert.Equal(t, false, wm["constitutional_protection"])
	assert.Equal(t, false, wm["senate_reviewed"])
	assert.Equal(t, QuarantinePath, wm["quarantine_path"])
	assert.Equal(t, Warning, wm["warning"])

	ts, ok := wm["timestamp"].(string)
	require.True(t, ok)
	_, err := time.Parse(time.RFC3339, ts)
	assert.NoError(t, err)
}
