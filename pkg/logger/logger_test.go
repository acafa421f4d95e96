package logger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogRepeats(t *testing.T) {
	Clear()
	defer Clear()

	Log("monitor", "connected")
	Log("monitor", "connected")
	Logf("breakpoint", "delete checkpoint %d: %s", 3, "failed")

	w := &bytes.Buffer{}
	Tail(w, 0)
	assert.Equal(t, "monitor: connected (repeat x2)\nbreakpoint: delete checkpoint 3: failed\n", w.String())

	w.Reset()
	Tail(w, 1)
	assert.Equal(t, "breakpoint: delete checkpoint 3: failed\n", w.String())
}

func TestLogBounded(t *testing.T) {
	l := newLogger(3)
	for _, d := range []string{"a", "b", "c", "d", "e"} {
		l.log("t", d)
	}
	entries := l.copy()
	assert.Len(t, entries, 3)
	assert.Equal(t, "c", entries[0].Detail)
	assert.Equal(t, "e", entries[2].Detail)
}
