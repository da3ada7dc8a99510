package cpufreq

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-logr/logr"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/tutu-network/wakeboost/internal/domain"
	"github.com/tutu-network/wakeboost/internal/logging"
)

const testRoot = "/sys/devices/system/cpu"

func writeFile(t *testing.T, fs afero.Fs, path, content string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0644), "failed to write %s", path)
}

func readFile(t *testing.T, fs afero.Fs, path string) string {
	t.Helper()
	data, err := afero.ReadFile(fs, path)
	require.NoError(t, err, "failed to read %s", path)
	return strings.TrimSpace(string(data))
}

func cpuFile(cpu int, resource string) string {
	return filepath.Join(testRoot, fmt.Sprintf("cpu%d", cpu), "cpufreq", resource)
}

// newFakeSysfs lays out online CPUs with hardware range 300 MHz–2.4 GHz and
// the user range 300 MHz–1.8 GHz.
func newFakeSysfs(t *testing.T, online string, cpus ...int) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	writeFile(t, fs, filepath.Join(testRoot, "online"), online+"\n")
	for _, cpu := range cpus {
		writeFile(t, fs, cpuFile(cpu, "cpuinfo_min_freq"), "300000\n")
		writeFile(t, fs, cpuFile(cpu, "cpuinfo_max_freq"), "2400000\n")
		writeFile(t, fs, cpuFile(cpu, "scaling_min_freq"), "300000\n")
		writeFile(t, fs, cpuFile(cpu, "scaling_max_freq"), "1800000\n")
	}
	return fs
}

func newTestSubsystem(t *testing.T, fs afero.Fs) *Subsystem {
	t.Helper()
	return New(fs, Config{Root: testRoot}, logr.Discard())
}

func TestOnlineCPUs(t *testing.T) {
	for _, tc := range []struct {
		online string
		want   []int
	}{
		{online: "0", want: []int{0}},
		{online: "0-3", want: []int{0, 1, 2, 3}},
		{online: "0-1,4,6-7", want: []int{0, 1, 4, 6, 7}},
	} {
		fs := newFakeSysfs(t, tc.online)
		s := newTestSubsystem(t, fs)

		cpus, err := s.OnlineCPUs()
		require.NoError(t, err)
		assert.Equal(t, tc.want, cpus, "online=%q", tc.online)
	}
}

func TestOnlineCPUs_Errors(t *testing.T) {
	s := newTestSubsystem(t, afero.NewMemMapFs())
	_, err := s.OnlineCPUs()
	assert.Error(t, err, "missing online file")

	fs := afero.NewMemMapFs()
	writeFile(t, fs, filepath.Join(testRoot, "online"), "garbage")
	_, err = newTestSubsystem(t, fs).OnlineCPUs()
	assert.Error(t, err, "unparseable online file")

	fs = afero.NewMemMapFs()
	writeFile(t, fs, filepath.Join(testRoot, "online"), "\n")
	_, err = newTestSubsystem(t, fs).OnlineCPUs()
	assert.ErrorIs(t, err, domain.ErrNoOnlineCPUs)
}

func TestUpdatePolicy_NoNotifiersKeepsUserLimits(t *testing.T) {
	fs := newFakeSysfs(t, "0", 0)
	s := newTestSubsystem(t, fs)

	require.NoError(t, s.UpdatePolicy(0))
	assert.Equal(t, "300000", readFile(t, fs, cpuFile(0, "scaling_min_freq")))
	assert.Equal(t, "1800000", readFile(t, fs, cpuFile(0, "scaling_max_freq")))

	policies := s.Policies()
	require.Len(t, policies, 1)
	assert.Equal(t, domain.Policy{CPU: 0, Min: 300000, Max: 1800000, HWMin: 300000, HWMax: 2400000}, policies[0])
}

func TestUpdatePolicy_NotifierRaisesFloor(t *testing.T) {
	fs := newFakeSysfs(t, "0", 0)
	s := newTestSubsystem(t, fs)

	var events []domain.PolicyEvent
	require.NoError(t, s.RegisterPolicyNotifier("boost", 0, func(ev domain.PolicyEvent, p *domain.Policy) {
		events = append(events, ev)
		if ev != domain.PolicyAdjust {
			return
		}
		p.Min = p.HWMax
		if p.Max < p.Min {
			p.Max = p.Min
		}
	}))

	require.NoError(t, s.UpdatePolicy(0))
	assert.Equal(t, []domain.PolicyEvent{domain.PolicyAdjust, domain.PolicyNotify}, events)
	assert.Equal(t, "2400000", readFile(t, fs, cpuFile(0, "scaling_min_freq")))
	assert.Equal(t, "2400000", readFile(t, fs, cpuFile(0, "scaling_max_freq")))
}

func TestUpdatePolicy_ClampsOutOfRangeProposal(t *testing.T) {
	fs := newFakeSysfs(t, "0", 0)
	s := newTestSubsystem(t, fs)

	require.NoError(t, s.RegisterPolicyNotifier("bad", 0, func(ev domain.PolicyEvent, p *domain.Policy) {
		if ev == domain.PolicyAdjust {
			p.Min = 5_000_000
			p.Max = 100
		}
	}))

	require.NoError(t, s.UpdatePolicy(0))
	policies := s.Policies()
	require.Len(t, policies, 1)
	assert.Equal(t, uint64(300000), policies[0].Max)
	assert.Equal(t, uint64(300000), policies[0].Min)
}

func TestUpdatePolicy_NotifyPhaseCannotModify(t *testing.T) {
	fs := newFakeSysfs(t, "0", 0)
	s := newTestSubsystem(t, fs)

	require.NoError(t, s.RegisterPolicyNotifier("late", 0, func(ev domain.PolicyEvent, p *domain.Policy) {
		if ev == domain.PolicyNotify {
			p.Min = p.HWMax
		}
	}))

	require.NoError(t, s.UpdatePolicy(0))
	assert.Equal(t, "300000", readFile(t, fs, cpuFile(0, "scaling_min_freq")))
}

func TestUpdatePolicy_BaselineCapturedOnce(t *testing.T) {
	fs := newFakeSysfs(t, "0", 0)
	s := newTestSubsystem(t, fs)

	raise := true
	require.NoError(t, s.RegisterPolicyNotifier("toggle", 0, func(ev domain.PolicyEvent, p *domain.Policy) {
		if ev == domain.PolicyAdjust && raise {
			p.Min = p.HWMax
			p.Max = p.HWMax
		}
	}))

	require.NoError(t, s.UpdatePolicy(0))
	assert.Equal(t, "2400000", readFile(t, fs, cpuFile(0, "scaling_min_freq")))

	// The raised values on disk must not become the new baseline.
	raise = false
	require.NoError(t, s.UpdatePolicy(0))
	assert.Equal(t, "300000", readFile(t, fs, cpuFile(0, "scaling_min_freq")))
	assert.Equal(t, "1800000", readFile(t, fs, cpuFile(0, "scaling_max_freq")))
}

func TestUpdatePolicy_DiscardsFloorPinnedAtHardwareMax(t *testing.T) {
	fs := newFakeSysfs(t, "0-1", 0, 1)
	// cpu0 looks like a boost that was never undone.
	writeFile(t, fs, cpuFile(0, "scaling_min_freq"), "2400000\n")
	writeFile(t, fs, cpuFile(0, "scaling_max_freq"), "2400000\n")
	writeFile(t, fs, cpuFile(1, "scaling_min_freq"), "600000\n")
	s := newTestSubsystem(t, fs)

	for i := 0; i < 3; i++ {
		_, err := s.UpdateAll()
		require.NoError(t, err)
	}

	assert.Equal(t, "300000", readFile(t, fs, cpuFile(0, "scaling_min_freq")))
	assert.Equal(t, "2400000", readFile(t, fs, cpuFile(0, "scaling_max_freq")))
	assert.Equal(t, "600000", readFile(t, fs, cpuFile(1, "scaling_min_freq")), "a user floor below the max is kept")
}

func TestUpdatePolicy_LogsAppliedRangeAtDebug(t *testing.T) {
	var buf bytes.Buffer
	fs := newFakeSysfs(t, "0", 0)
	s := New(fs, Config{Root: testRoot}, logging.NewWithWriter(&buf, zapcore.DebugLevel, false))

	require.NoError(t, s.UpdatePolicy(0))
	assert.Contains(t, buf.String(), "policy applied")
}

func TestUpdatePolicy_MissingBoundsIsUnavailable(t *testing.T) {
	fs := newFakeSysfs(t, "0-1", 0)
	s := newTestSubsystem(t, fs)

	err := s.UpdatePolicy(1)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSubsystemUnavailable)
}

func TestUpdateAll_SkipsUnavailableCPUs(t *testing.T) {
	fs := newFakeSysfs(t, "0-2", 0, 2)
	s := newTestSubsystem(t, fs)

	updated, err := s.UpdateAll()
	require.NoError(t, err)
	assert.Equal(t, 2, updated)

	policies := s.Policies()
	require.Len(t, policies, 2)
	assert.Equal(t, 0, policies[0].CPU)
	assert.Equal(t, 2, policies[1].CPU)
}

func TestUnregisterPolicyNotifier(t *testing.T) {
	s := newTestSubsystem(t, newFakeSysfs(t, "0", 0))
	fn := func(domain.PolicyEvent, *domain.Policy) {}

	require.NoError(t, s.RegisterPolicyNotifier("a", 0, fn))
	assert.Error(t, s.RegisterPolicyNotifier("a", 0, fn))
	require.NoError(t, s.UnregisterPolicyNotifier("a"))
	assert.Error(t, s.UnregisterPolicyNotifier("a"))
}
