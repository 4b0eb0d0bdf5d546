package telemetry

import (
	"sync"
	"testing"

	"github.com/grafana/pyroscope-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewProfiler_Disabled(t *testing.T) {
	profiler, err := NewProfiler(ProfilerConfig{
		Enabled:         false,
		ServerAddress:   "http://localhost:4040",
		ApplicationName: "retailcore-test",
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NotNil(t, profiler)

	assert.False(t, profiler.IsEnabled())
	assert.NoError(t, profiler.Stop())
	assert.NoError(t, profiler.Stop(), "second stop is a no-op")
}

func TestNewProfiler_MissingServerAddress(t *testing.T) {
	profiler, err := NewProfiler(ProfilerConfig{
		Enabled:         true,
		ApplicationName: "retailcore-test",
	}, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.Nil(t, profiler)
	assert.Contains(t, err.Error(), "server address is required")
}

func TestNewProfiler_MissingApplicationName(t *testing.T) {
	profiler, err := NewProfiler(ProfilerConfig{
		Enabled:       true,
		ServerAddress: "http://localhost:4040",
	}, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.Nil(t, profiler)
	assert.Contains(t, err.Error(), "application name is required")
}

func TestProfiler_ProfileTypes(t *testing.T) {
	tests := []struct {
		name string
		cfg  ProfilerConfig
		want []pyroscope.ProfileType
	}{
		{
			name: "none enabled",
			cfg:  ProfilerConfig{},
			want: nil,
		},
		{
			name: "cpu only",
			cfg:  ProfilerConfig{ProfileCPU: true},
			want: []pyroscope.ProfileType{pyroscope.ProfileCPU},
		},
		{
			name: "server defaults",
			cfg: ProfilerConfig{
				ProfileCPU:        true,
				ProfileAllocSpace: true,
				ProfileInuseSpace: true,
				ProfileGoroutines: true,
			},
			want: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseSpace,
				pyroscope.ProfileGoroutines,
			},
		},
		{
			name: "mutex and block",
			cfg: ProfilerConfig{
				ProfileMutexCount:    true,
				ProfileMutexDuration: true,
				ProfileBlockCount:    true,
				ProfileBlockDuration: true,
			},
			want: []pyroscope.ProfileType{
				pyroscope.ProfileMutexCount,
				pyroscope.ProfileMutexDuration,
				pyroscope.ProfileBlockCount,
				pyroscope.ProfileBlockDuration,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Profiler{config: tt.cfg}
			assert.Equal(t, tt.want, p.profileTypes())
		})
	}
}

func TestProfiler_StopConcurrent(t *testing.T) {
	profiler, err := NewProfiler(ProfilerConfig{Enabled: false}, zaptest.NewLogger(t))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, profiler.Stop())
		}()
	}
	wg.Wait()
}

func TestPyroscopeLogger(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	adapter := newPyroscopeLogger(zap.New(core))

	adapter.Infof("uploading %d profiles", 3)
	adapter.Debugf("session %s", "abc")
	adapter.Errorf("upload failed: %v", "timeout")

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, "uploading 3 profiles", entries[0].Message)
	assert.Equal(t, "pyroscope", entries[0].LoggerName)
	assert.Equal(t, zap.ErrorLevel, entries[2].Level)
}
