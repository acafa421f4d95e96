package debug

import (
	"context"
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitzhangjie/retrodbg/pkg/breakpoint"
	"github.com/hitzhangjie/retrodbg/pkg/config"
)

func TestProjectPersistsBreakpoints(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.PersistDelay = 0

	labels := filepath.Join(dir, "main.vs")
	require.Nil(t, ioutil.WriteFile(labels, []byte("al C:080d .start\n"), 0644))

	ctx := context.Background()
	p, err := OpenProject(cfg, dir)
	require.Nil(t, err)
	n, err := p.LoadSymbols(ctx, labels)
	require.Nil(t, err)
	assert.Equal(t, 1, n)

	bp, err := breakpoint.New(breakpoint.UnboundBind{Start: "start+3"}, breakpoint.Store, "", nil)
	require.Nil(t, err)
	bp, err = p.Catalog.AddBreakpoint(ctx, bp)
	require.Nil(t, err)
	require.Len(t, bp.Ranges, 1)
	assert.Equal(t, uint16(0x0810), bp.Ranges[0].Start)

	assert.Nil(t, p.Monitor())
	require.Nil(t, p.Close(ctx))

	p, err = OpenProject(cfg, dir)
	require.Nil(t, err)
	defer p.Close(ctx)

	bps := p.Catalog.Breakpoints()
	require.Len(t, bps, 1)
	assert.Equal(t, breakpoint.Store, bps[0].Mode)
	assert.Equal(t, breakpoint.UnboundBind{Start: "start+3"}, bps[0].Bind)
}
