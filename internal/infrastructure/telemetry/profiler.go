// Pyroscope continuous profiling. The hot paths here are movement appends and
// projection rebuilds; CPU and alloc profiles are what catch a regression in
// the proration loop before it shows up as checkout latency.
package telemetry

import (
	"fmt"
	"os"
	"runtime"
	"sync"

	"github.com/grafana/pyroscope-go"
	"go.uber.org/zap"
)

// ProfilerConfig controls which profile types Pyroscope collects.
type ProfilerConfig struct {
	Enabled           bool
	ServerAddress     string
	ApplicationName   string
	BasicAuthUser     string // for Grafana Cloud
	BasicAuthPassword string

	ProfileCPU           bool
	ProfileAllocObjects  bool
	ProfileAllocSpace    bool
	ProfileInuseObjects  bool
	ProfileInuseSpace    bool
	ProfileGoroutines    bool
	ProfileMutexCount    bool
	ProfileMutexDuration bool
	ProfileBlockCount    bool
	ProfileBlockDuration bool

	MutexProfileFraction int // default 5
	BlockProfileRate     int // default 5
	DisableGCRuns        bool
}

// Profiler owns the Pyroscope session lifecycle.
type Profiler struct {
	profiler *pyroscope.Profiler
	logger   *zap.Logger
	config   ProfilerConfig
	mu       sync.Mutex
	stopped  bool
}

// NewProfiler starts a Pyroscope session. A disabled config yields a no-op
// profiler whose Stop is safe to call.
func NewProfiler(cfg ProfilerConfig, logger *zap.Logger) (*Profiler, error) {
	p := &Profiler{logger: logger, config: cfg}
	if !cfg.Enabled {
		logger.Info("Continuous profiling disabled, using no-op profiler")
		return p, nil
	}

	if cfg.ServerAddress == "" {
		return nil, fmt.Errorf("profiler server address is required when profiling is enabled")
	}
	if cfg.ApplicationName == "" {
		return nil, fmt.Errorf("profiler application name is required when profiling is enabled")
	}

	// Mutex and block profiles need runtime sampling switched on.
	if cfg.ProfileMutexCount || cfg.ProfileMutexDuration {
		fraction := cfg.MutexProfileFraction
		if fraction <= 0 {
			fraction = 5
		}
		runtime.SetMutexProfileFraction(fraction)
	}
	if cfg.ProfileBlockCount || cfg.ProfileBlockDuration {
		rate := cfg.BlockProfileRate
		if rate <= 0 {
			rate = 5
		}
		runtime.SetBlockProfileRate(rate)
	}

	profileTypes := p.profileTypes()
	if len(profileTypes) == 0 {
		logger.Warn("No profile types enabled, profiler will not collect any data")
	}

	tags := map[string]string{}
	if hostname := os.Getenv("HOSTNAME"); hostname != "" {
		tags["hostname"] = hostname
	}
	if podName := os.Getenv("POD_NAME"); podName != "" {
		tags["pod"] = podName
	}

	pyroscopeCfg := pyroscope.Config{
		ApplicationName: cfg.ApplicationName,
		ServerAddress:   cfg.ServerAddress,
		Logger:          newPyroscopeLogger(logger),
		Tags:            tags,
		ProfileTypes:    profileTypes,
		DisableGCRuns:   cfg.DisableGCRuns,
	}
	if cfg.BasicAuthUser != "" && cfg.BasicAuthPassword != "" {
		pyroscopeCfg.BasicAuthUser = cfg.BasicAuthUser
		pyroscopeCfg.BasicAuthPassword = cfg.BasicAuthPassword
	}

	profiler, err := pyroscope.Start(pyroscopeCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to start Pyroscope profiler: %w", err)
	}
	p.profiler = profiler

	logger.Info("Pyroscope profiler started",
		zap.String("server_address", cfg.ServerAddress),
		zap.String("application_name", cfg.ApplicationName),
		zap.Int("profile_types", len(profileTypes)),
	)
	return p, nil
}

func (p *Profiler) profileTypes() []pyroscope.ProfileType {
	enabled := []struct {
		on bool
		t  pyroscope.ProfileType
	}{
		{p.config.ProfileCPU, pyroscope.ProfileCPU},
		{p.config.ProfileAllocObjects, pyroscope.ProfileAllocObjects},
		{p.config.ProfileAllocSpace, pyroscope.ProfileAllocSpace},
		{p.config.ProfileInuseObjects, pyroscope.ProfileInuseObjects},
		{p.config.ProfileInuseSpace, pyroscope.ProfileInuseSpace},
		{p.config.ProfileGoroutines, pyroscope.ProfileGoroutines},
		{p.config.ProfileMutexCount, pyroscope.ProfileMutexCount},
		{p.config.ProfileMutexDuration, pyroscope.ProfileMutexDuration},
		{p.config.ProfileBlockCount, pyroscope.ProfileBlockCount},
		{p.config.ProfileBlockDuration, pyroscope.ProfileBlockDuration},
	}
	var types []pyroscope.ProfileType
	for _, e := range enabled {
		if e.on {
			types = append(types, e.t)
		}
	}
	return types
}

// Stop flushes and stops the session. Safe to call more than once. The
// Pyroscope SDK takes no context, so this relies on its internal timeouts.
func (p *Profiler) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return nil
	}
	p.stopped = true

	if p.profiler == nil {
		return nil
	}
	if err := p.profiler.Stop(); err != nil {
		p.logger.Error("Error stopping profiler", zap.Error(err))
		return fmt.Errorf("failed to stop profiler: %w", err)
	}
	return nil
}

// IsEnabled reports whether a session is actually running.
func (p *Profiler) IsEnabled() bool {
	return p.config.Enabled && p.profiler != nil
}

// pyroscopeLogger adapts zap to the pyroscope.Logger interface.
type pyroscopeLogger struct {
	logger *zap.SugaredLogger
}

func newPyroscopeLogger(logger *zap.Logger) pyroscope.Logger {
	return &pyroscopeLogger{logger: logger.Named("pyroscope").Sugar()}
}

func (l *pyroscopeLogger) Infof(format string, args ...any)  { l.logger.Infof(format, args...) }
func (l *pyroscopeLogger) Debugf(format string, args ...any) { l.logger.Debugf(format, args...) }
func (l *pyroscopeLogger) Errorf(format string, args ...any) { l.logger.Errorf(format, args...) }
