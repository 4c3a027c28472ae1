package sheet

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryGridAppendAndRows(t *testing.T) {
	ctx := context.Background()
	g := NewMemoryGrid()

	row, err := g.Append(ctx, "Keys", []string{"Key", "Count"})
	require.NoError(t, err)
	assert.Equal(t, 1, row)

	row, err = g.Append(ctx, "Keys", []string{"K1", "2", ""})
	require.NoError(t, err)
	assert.Equal(t, 2, row)

	rows, err := g.Rows(ctx, "Keys")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Key", "Count"}, {"K1", "2"}}, rows)
	assert.Equal(t, GrowBy, g.Capacity("Keys"))
}

func TestMemoryGridAppendSkipsTrailingEmptyRows(t *testing.T) {
	ctx := context.Background()
	g := NewMemoryGrid()

	_, _ = g.Append(ctx, "S", []string{"h"})
	require.NoError(t, g.UpdateCell(ctx, "S", 5, 1, ""))

	row, err := g.Append(ctx, "S", []string{"v"})
	require.NoError(t, err)
	assert.Equal(t, 2, row)
}

func TestMemoryGridAppendGrowsCapacity(t *testing.T) {
	ctx := context.Background()
	g := NewMemoryGrid()

	for i := 0; i < GrowBy+1; i++ {
		_, err := g.Append(ctx, "S", []string{"x"})
		require.NoError(t, err)
	}
	assert.Equal(t, 2*GrowBy, g.Capacity("S"))
}

func TestMemoryGridUpdateCell(t *testing.T) {
	ctx := context.Background()
	g := NewMemoryGrid()

	_, _ = g.Append(ctx, "S", []string{"a", "b"})
	require.NoError(t, g.UpdateCell(ctx, "S", 1, 4, "d"))

	rows, err := g.Rows(ctx, "S")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "b", "", "d"}}, rows)

	assert.ErrorIs(t, g.UpdateCell(ctx, "S", 0, 1, "x"), ErrInvalidCell)
}

func TestMemoryGridRowsReturnsCopy(t *testing.T) {
	ctx := context.Background()
	g := NewMemoryGrid()
	_, _ = g.Append(ctx, "S", []string{"a"})

	rows, _ := g.Rows(ctx, "S")
	rows[0][0] = "mutated"

	again, _ := g.Rows(ctx, "S")
	assert.Equal(t, "a", again[0][0])
}

func TestMemoryGridMissingSheet(t *testing.T) {
	rows, err := NewMemoryGrid().Rows(context.Background(), "nope")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestIsEmptyRow(t *testing.T) {
	assert.True(t, IsEmptyRow(nil))
	assert.True(t, IsEmptyRow([]string{"", "  "}))
	assert.False(t, IsEmptyRow([]string{"", "x"}))
}
