// Package config reads host-side defaults from an ini file: polling
// timeouts for the init state machine, the noc_safe policy flag, and the
// DMA chunking threshold. The file is optional; a missing file yields the
// built-in defaults.
package config

import (
	"os"
	"time"

	"github.com/mvo5/goconfigparser"

	"github.com/tenstorrent/luwen-go/dirs"
	"github.com/tenstorrent/luwen-go/initstate"
	"github.com/tenstorrent/luwen-go/lerrors"
)

// Host holds the tunables an operator may override in dirs.HostConfigFile.
type Host struct {
	NocSafe          bool
	SubsystemTimeout time.Duration
	OverallTimeout   time.Duration
	DmaThreshold     uint64

	// WasRead reports whether a config file was actually found, as opposed
	// to the defaults being served.
	WasRead bool
}

// Defaults returns the built-in settings used when no config file exists.
func Defaults() Host {
	return Host{
		NocSafe:          false,
		SubsystemTimeout: 20 * time.Second,
		OverallTimeout:   2 * time.Minute,
		DmaThreshold:     1 << 20,
	}
}

// Load reads dirs.HostConfigFile. The file is flat key=value, no section
// headers, like:
//
//	noc_safe=false
//	subsystem_timeout=20s
//	overall_timeout=2m
//	dma_threshold=1048576
//
// A missing file is not an error; unknown keys are ignored so newer
// configs keep working against older library versions.
func Load() (Host, error) {
	return load(dirs.HostConfigFile())
}

func load(path string) (Host, error) {
	h := Defaults()

	cfg := goconfigparser.New()
	cfg.AllowNoSectionHeader = true
	if err := cfg.ReadFile(path); err != nil {
		if os.IsNotExist(err) {
			return h, nil
		}
		return Host{}, lerrors.Errorf("config: cannot read %s: %w", path, err)
	}
	h.WasRead = true

	if v, err := cfg.Getbool("", "noc_safe"); err == nil {
		h.NocSafe = v
	}
	if v, err := cfg.Get("", "subsystem_timeout"); err == nil {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Host{}, lerrors.Errorf("config: bad subsystem_timeout %q: %w", v, err)
		}
		h.SubsystemTimeout = d
	}
	if v, err := cfg.Get("", "overall_timeout"); err == nil {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Host{}, lerrors.Errorf("config: bad overall_timeout %q: %w", v, err)
		}
		h.OverallTimeout = d
	}
	if v, err := cfg.Getint("", "dma_threshold"); err == nil {
		if v < 0 {
			return Host{}, lerrors.Errorf("config: dma_threshold must be non-negative, got %d", v)
		}
		h.DmaThreshold = uint64(v)
	}
	return h, nil
}

// ApplyTo copies the host-level timeouts into an initstate.Config, leaving
// the chip-specific fields the caller already filled in untouched.
func (h Host) ApplyTo(cfg *initstate.Config) {
	cfg.PerSubsystemTimeout = h.SubsystemTimeout
	cfg.OverallTimeout = h.OverallTimeout
}
