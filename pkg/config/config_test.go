package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestFromViper(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set(KeyValidationDelay, "50ms")
	v.Set(KeyCaseInsensitive, true)
	v.Set(KeyMonitorAddress, "localhost:6510")

	p := FromViper(v)
	assert.Equal(t, 50*time.Millisecond, p.ValidationDelay)
	assert.Equal(t, 500*time.Millisecond, p.PersistDelay)
	assert.Equal(t, "localhost:6510", p.MonitorAddress)
	assert.True(t, p.CaseInsensitivePaths)
}

func TestNormalizePath(t *testing.T) {
	sensitive := Platform{}
	insensitive := Platform{CaseInsensitivePaths: true}

	type arg struct {
		p    Platform
		a, b string
		same bool
	}
	args := []arg{
		{sensitive, "src/main.asm", "src/main.asm", true},
		{sensitive, "./src/main.asm", "src/main.asm", true},
		{sensitive, "src/../src/main.asm", "src/main.asm", true},
		{sensitive, "src/Main.asm", "src/main.asm", false},
		{insensitive, "src/Main.asm", "SRC/main.asm", true},
	}
	for _, a := range args {
		assert.Equal(t, a.same, a.p.SamePath(a.a, a.b), "%s vs %s", a.a, a.b)
	}
}
