// Package config holds the platform settings that are handed to the catalog,
// the symbol table and the expression validators at construction time.
package config

import (
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// keys understood by FromViper
const (
	KeyMonitorAddress   = "monitor.address"
	KeyMonitorTimeout   = "monitor.timeout"
	KeyValidationDelay  = "validation.delay"
	KeyPersistDelay     = "persist.delay"
	KeyCaseInsensitive  = "paths.case_insensitive"
	KeyLogEcho          = "log.echo"
	KeyBreakpointsFile  = "project.breakpoints"
	defaultMonitorAddr  = "127.0.0.1:6502"
	defaultBreakpointFn = ".retrodbg/breakpoints.json"
)

// Platform platform dependent settings
type Platform struct {
	// CaseInsensitivePaths makes the path comparer fold case, as the
	// filesystems on windows and darwin do.
	CaseInsensitivePaths bool

	ValidationDelay time.Duration // quiet period before a condition is validated
	PersistDelay    time.Duration // debounce window for breakpoint saves

	MonitorAddress string
	MonitorTimeout time.Duration

	BreakpointsFile string // relative to the project directory
	LogEcho         bool
}

// Default returns the settings used when no configuration is present.
func Default() Platform {
	return Platform{
		CaseInsensitivePaths: runtime.GOOS == "windows" || runtime.GOOS == "darwin",
		ValidationDelay:      200 * time.Millisecond,
		PersistDelay:         500 * time.Millisecond,
		MonitorAddress:       defaultMonitorAddr,
		MonitorTimeout:       5 * time.Second,
		BreakpointsFile:      defaultBreakpointFn,
	}
}

// SetDefaults registers the defaults of Default() on v.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault(KeyMonitorAddress, d.MonitorAddress)
	v.SetDefault(KeyMonitorTimeout, d.MonitorTimeout)
	v.SetDefault(KeyValidationDelay, d.ValidationDelay)
	v.SetDefault(KeyPersistDelay, d.PersistDelay)
	v.SetDefault(KeyCaseInsensitive, d.CaseInsensitivePaths)
	v.SetDefault(KeyLogEcho, d.LogEcho)
	v.SetDefault(KeyBreakpointsFile, d.BreakpointsFile)
}

// FromViper builds the platform settings from v. Missing keys fall back to
// Default().
func FromViper(v *viper.Viper) Platform {
	p := Default()
	if v.IsSet(KeyMonitorAddress) {
		p.MonitorAddress = v.GetString(KeyMonitorAddress)
	}
	if v.IsSet(KeyMonitorTimeout) {
		p.MonitorTimeout = v.GetDuration(KeyMonitorTimeout)
	}
	if v.IsSet(KeyValidationDelay) {
		p.ValidationDelay = v.GetDuration(KeyValidationDelay)
	}
	if v.IsSet(KeyPersistDelay) {
		p.PersistDelay = v.GetDuration(KeyPersistDelay)
	}
	if v.IsSet(KeyCaseInsensitive) {
		p.CaseInsensitivePaths = v.GetBool(KeyCaseInsensitive)
	}
	if v.IsSet(KeyLogEcho) {
		p.LogEcho = v.GetBool(KeyLogEcho)
	}
	if v.IsSet(KeyBreakpointsFile) {
		p.BreakpointsFile = v.GetString(KeyBreakpointsFile)
	}
	return p
}

// NormalizePath returns the key under which a project relative path is
// indexed. Separators are unified to '/' and, on case insensitive
// platforms, case is folded.
func (p Platform) NormalizePath(path string) string {
	path = filepath.ToSlash(filepath.Clean(path))
	path = strings.TrimPrefix(path, "./")
	if p.CaseInsensitivePaths {
		path = strings.ToLower(path)
	}
	return path
}

// SamePath reports whether a and b name the same project file.
func (p Platform) SamePath(a, b string) bool {
	return p.NormalizePath(a) == p.NormalizePath(b)
}

// ExpandPath expands a leading '~' and makes path absolute.
func ExpandPath(path string) (string, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return "", err
	}
	return filepath.Abs(expanded)
}
