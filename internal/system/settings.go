// Package system applies process-wide runtime settings and profiling hooks.
package system

import (
	"runtime"
	"runtime/debug"

	"github.com/spf13/viper"

	"bitfeed/internal/logger"
)

// Settings holds the runtime tunables applied at startup.
type Settings struct {
	MaxProcs    int
	GCPercent   int
	MaxThreads  int
	MemoryLimit int // in MiB
}

// DefaultSettings returns the recommended defaults.
func DefaultSettings() *Settings {
	return &Settings{
		MaxProcs:    runtime.NumCPU(),
		GCPercent:   100,
		MaxThreads:  10000,
		MemoryLimit: 2048,
	}
}

// LoadFromViper overlays configured values onto the defaults. Keys left
// unset (zero) keep their default, so a partial config section is fine.
func LoadFromViper() *Settings {
	s := DefaultSettings()
	if n := viper.GetInt("system.maxprocs"); n > 0 {
		s.MaxProcs = n
	}
	if n := viper.GetInt("system.gcpercent"); n > 0 {
		s.GCPercent = n
	}
	if n := viper.GetInt("system.maxthreads"); n > 0 {
		s.MaxThreads = n
	}
	if n := viper.GetInt("system.memorylimit"); n > 0 {
		s.MemoryLimit = n
	}
	return s
}

// Apply configures the Go runtime.
func (s *Settings) Apply() {
	log := logger.WithComponent("system")

	runtime.GOMAXPROCS(s.MaxProcs)
	debug.SetGCPercent(s.GCPercent)
	debug.SetMaxThreads(s.MaxThreads)
	debug.SetMemoryLimit(int64(s.MemoryLimit) * 1024 * 1024)

	log.WithFields(map[string]interface{}{
		"maxprocs":        s.MaxProcs,
		"gc_percent":      s.GCPercent,
		"max_threads":     s.MaxThreads,
		"memory_limit_mb": s.MemoryLimit,
	}).Info("runtime settings applied")
}
