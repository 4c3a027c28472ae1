package sheet

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen(t *testing.T) {
	ctx := context.Background()

	g, err := Open("memory", "")
	require.NoError(t, err)
	assert.IsType(t, &MemoryGrid{}, g)

	g, err = Open("sqlite", filepath.Join(t.TempDir(), "keys.db"))
	require.NoError(t, err)
	defer g.Close()
	require.NoError(t, g.Ping(ctx))

	_, err = Open("mongodb", "")
	assert.Error(t, err)
}
