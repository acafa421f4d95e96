package breakpoint

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tuple struct {
	Bind        string
	Mode        Mode
	Condition   string
	StopWhenHit bool
	Enabled     bool
}

func tuples(bps []*Breakpoint) []tuple {
	var out []tuple
	for _, bp := range bps {
		out = append(out, tuple{
			Bind:        bp.Bind.String(),
			Mode:        bp.Mode,
			Condition:   bp.Condition,
			StopWhenHit: bp.StopWhenHit,
			Enabled:     bp.Enabled,
		})
	}
	return out
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	mk := func(bind Bind, mode Mode, cond string, stop, enabled bool) *Breakpoint {
		bp, err := New(bind, mode, cond, nil)
		require.NoError(t, err)
		bp.StopWhenHit = stop
		bp.Enabled = enabled
		bp.HitCount = 7
		bp.Checkpoints = []uint32{3}
		return bp
	}
	in := []*Breakpoint{
		mk(LineBind{File: "src/main.asm", Line: 0}, Exec, "", true, true),
		mk(LineBind{File: "src/irq.asm", Line: 12}, Exec, "A == $10 && X != $00", false, true),
		mk(UnboundBind{Start: "$d020"}, Store, "", true, false),
		mk(UnboundBind{Start: "screen", End: strp("screen+999")}, Load, "@io:$d012 == $ff", true, true),
	}

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, in))

	out, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, tuples(in), tuples(out))

	for _, bp := range out {
		assert.False(t, bp.Armed())
		assert.Zero(t, bp.HitCount)
	}
}

func TestEncodeFormat(t *testing.T) {
	line, err := New(LineBind{File: "src/main.asm", Line: 3}, Exec, "", nil)
	require.NoError(t, err)
	unbound, err := New(UnboundBind{Start: "$1000"}, Store, "A == $01", nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, []*Breakpoint{line, unbound}))

	var got map[string][]map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got["breakpoints"], 2)

	first := got["breakpoints"][0]
	assert.Equal(t, true, first["stopWhenHit"])
	assert.Equal(t, true, first["isEnabled"])
	assert.Equal(t, "Exec", first["mode"])
	assert.Nil(t, first["condition"])
	_, ok := first["condition"]
	assert.True(t, ok)
	assert.Equal(t, map[string]interface{}{
		"$type":      "line",
		"filePath":   "src/main.asm",
		"lineNumber": float64(3),
	}, first["bind"])

	second := got["breakpoints"][1]
	assert.Equal(t, "Store", second["mode"])
	assert.Equal(t, "A == $01", second["condition"])
	assert.Equal(t, map[string]interface{}{
		"$type":        "unbound",
		"startAddress": "$1000",
		"endAddress":   nil,
	}, second["bind"])
}

func TestDecodeErrors(t *testing.T) {
	type arg struct {
		name    string
		input   string
		wantErr error
	}
	args := []arg{
		{
			name:    "unknown bind type",
			input:   `{"breakpoints":[{"stopWhenHit":true,"isEnabled":true,"mode":"Exec","condition":null,"bind":{"$type":"symbol","name":"main"}}]}`,
			wantErr: ErrUnknownBind,
		},
		{
			name:  "unknown mode",
			input: `{"breakpoints":[{"mode":"Jump","bind":{"$type":"line","filePath":"a.asm","lineNumber":1}}]}`,
		},
		{
			name:  "missing bind",
			input: `{"breakpoints":[{"mode":"Exec"}]}`,
		},
		{
			name:  "not json",
			input: `breakpoints`,
		},
	}

	for _, a := range args {
		t.Run(a.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(a.input))
			assert.Error(t, err)
			if a.wantErr != nil {
				assert.True(t, errors.Is(err, a.wantErr))
			}
		})
	}
}

func TestLoadFileMissing(t *testing.T) {
	bps, err := LoadFile(filepath.Join(t.TempDir(), "none.json"))
	assert.NoError(t, err)
	assert.Empty(t, bps)
}

func TestSaverKeepsNewestSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "bps.json")
	s := newSaver(path, time.Hour)

	older := fileRecord{Breakpoints: []record{{Mode: Load, Bind: bindRecord{UnboundBind{Start: "$1"}}}}}
	newer := fileRecord{Breakpoints: []record{{Mode: Store, Bind: bindRecord{UnboundBind{Start: "$2"}}}}}

	s.schedule(older)
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, s.save(newer))
	require.NoError(t, s.flush())

	bps, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, bps, 1)
	assert.Equal(t, Store, bps[0].Mode)

	matches, err := filepath.Glob(filepath.Join(filepath.Dir(path), "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}
