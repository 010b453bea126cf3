package log

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.log")

	zl, err := NewLogger(WithLogLevel("warn"), WithOutputPaths(out), WithApp("viewcounter"))
	require.NoError(t, err)

	zl.Sugar().Infof("dropped")
	zl.Sugar().Warnf("kept: key=%s", "page-42")
	require.NoError(t, zl.Sync())

	b, err := os.ReadFile(out)
	require.NoError(t, err)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &entry), string(b))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "kept: key=page-42", entry["msg"])
	assert.Equal(t, "viewcounter", entry["app"])
	assert.NotContains(t, entry, "caller")
}

func TestNewLogger_BadLevel(t *testing.T) {
	_, err := NewLogger(WithLogLevel("loud"))
	assert.Error(t, err)

	assert.Panics(t, func() { Must(NewLogger(WithLogLevel("loud"))) })
}
