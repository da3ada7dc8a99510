// Package cpufreq models a cpufreq policy recomputation round on top of the
// kernel's sysfs interface. Each round builds a proposed range from the
// captured user limits, passes it through the registered policy notifiers
// and writes the result to scaling_min_freq / scaling_max_freq.
package cpufreq

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/spf13/afero"
	"k8s.io/utils/cpuset"

	"github.com/tutu-network/wakeboost/internal/domain"
	"github.com/tutu-network/wakeboost/internal/infra/metrics"
	"github.com/tutu-network/wakeboost/internal/infra/notifier"
)

// DefaultSysfsRoot is where the kernel exposes CPU topology and cpufreq.
const DefaultSysfsRoot = "/sys/devices/system/cpu"

const (
	fileOnline   = "online"
	fileHWMin    = "cpuinfo_min_freq"
	fileHWMax    = "cpuinfo_max_freq"
	fileScaleMin = "scaling_min_freq"
	fileScaleMax = "scaling_max_freq"
)

// Config controls the subsystem.
type Config struct {
	Root           string        // sysfs cpu directory (default: /sys/devices/system/cpu)
	ResyncInterval time.Duration // natural recomputation period, 0 disables
}

type limits struct {
	min, max uint64
}

// Subsystem is the frequency-scaling subsystem seen by the boost
// controller. It implements domain.FrequencySubsystem.
type Subsystem struct {
	fs     afero.Fs
	root   string
	resync time.Duration
	log    logr.Logger

	chain notifier.Chain[domain.PolicyNotifierFunc]

	// mu serializes recomputation rounds; notifiers run with it held.
	mu      sync.Mutex
	user    map[int]limits
	applied map[int]domain.Policy
}

// New creates a subsystem reading and writing sysfs through fs.
func New(fs afero.Fs, cfg Config, log logr.Logger) *Subsystem {
	root := cfg.Root
	if root == "" {
		root = DefaultSysfsRoot
	}
	return &Subsystem{
		fs:      fs,
		root:    root,
		resync:  cfg.ResyncInterval,
		log:     log.WithName("cpufreq"),
		user:    make(map[int]limits),
		applied: make(map[int]domain.Policy),
	}
}

// ─── Notifiers ──────────────────────────────────────────────────────────────

// RegisterPolicyNotifier adds a policy callback. Higher priority runs first.
func (s *Subsystem) RegisterPolicyNotifier(name string, priority int, fn domain.PolicyNotifierFunc) error {
	if err := s.chain.Register(name, priority, fn); err != nil {
		return fmt.Errorf("register policy notifier %s: %w", name, err)
	}
	return nil
}

// UnregisterPolicyNotifier removes a policy callback.
func (s *Subsystem) UnregisterPolicyNotifier(name string) error {
	if err := s.chain.Unregister(name); err != nil {
		return fmt.Errorf("unregister policy notifier %s: %w", name, err)
	}
	return nil
}

// ─── Topology ───────────────────────────────────────────────────────────────

// OnlineCPUs parses the kernel's online CPU list (e.g. "0-3,6").
func (s *Subsystem) OnlineCPUs() ([]int, error) {
	data, err := afero.ReadFile(s.fs, filepath.Join(s.root, fileOnline))
	if err != nil {
		return nil, fmt.Errorf("read online cpus: %w", err)
	}
	set, err := cpuset.Parse(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("parse online cpus %q: %w", strings.TrimSpace(string(data)), err)
	}
	if set.IsEmpty() {
		return nil, domain.ErrNoOnlineCPUs
	}
	return set.List(), nil
}

// ─── Recomputation ──────────────────────────────────────────────────────────

// UpdatePolicy runs one recomputation round for cpu: build the proposal,
// call the notifiers with PolicyAdjust, clamp to hardware bounds, call
// them again with PolicyNotify and write the result.
func (s *Subsystem) UpdatePolicy(cpu int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	hwMin, err := s.readFreq(cpu, fileHWMin)
	if err != nil {
		metrics.PolicyUpdates.WithLabelValues("unavailable").Inc()
		return fmt.Errorf("%w %d: %v", domain.ErrSubsystemUnavailable, cpu, err)
	}
	hwMax, err := s.readFreq(cpu, fileHWMax)
	if err != nil {
		metrics.PolicyUpdates.WithLabelValues("unavailable").Inc()
		return fmt.Errorf("%w %d: %v", domain.ErrSubsystemUnavailable, cpu, err)
	}

	base, ok := s.user[cpu]
	if !ok {
		base = s.captureLimits(cpu, hwMin, hwMax)
		s.user[cpu] = base
	}

	p := domain.Policy{CPU: cpu, Min: base.min, Max: base.max, HWMin: hwMin, HWMax: hwMax}
	p.Clamp()
	s.notify(domain.PolicyAdjust, &p)
	p.Clamp()

	final := p
	s.notify(domain.PolicyNotify, &final)

	if err := s.apply(cpu, p); err != nil {
		metrics.PolicyUpdates.WithLabelValues("error").Inc()
		return err
	}
	s.applied[cpu] = p
	metrics.PolicyUpdates.WithLabelValues("ok").Inc()
	s.log.V(1).Info("policy applied", "cpu", cpu, "minKHz", p.Min, "maxKHz", p.Max)
	return nil
}

// UpdateAll recomputes every online CPU. CPUs without readable bounds are
// skipped; the first other error is returned after all CPUs were tried.
func (s *Subsystem) UpdateAll() (int, error) {
	cpus, err := s.OnlineCPUs()
	if err != nil {
		return 0, err
	}

	updated := 0
	var firstErr error
	for _, cpu := range cpus {
		err := s.UpdatePolicy(cpu)
		switch {
		case err == nil:
			updated++
		case isUnavailable(err):
		case firstErr == nil:
			firstErr = err
		}
	}
	return updated, firstErr
}

// Run re-evaluates all online CPUs every ResyncInterval until ctx is done.
// Call in a goroutine.
func (s *Subsystem) Run(ctx context.Context) {
	if s.resync <= 0 {
		return
	}
	ticker := time.NewTicker(s.resync)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.UpdateAll(); err != nil {
				s.log.Error(err, "periodic policy resync")
			}
		}
	}
}

// Policies returns the last applied policy for every CPU, ordered by CPU.
func (s *Subsystem) Policies() []domain.Policy {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Policy, 0, len(s.applied))
	for _, p := range s.applied {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CPU < out[j].CPU })
	return out
}

// Root returns the sysfs directory in use.
func (s *Subsystem) Root() string { return s.root }

func isUnavailable(err error) bool {
	return errors.Is(err, domain.ErrSubsystemUnavailable)
}

func (s *Subsystem) notify(event domain.PolicyEvent, p *domain.Policy) {
	for _, e := range s.chain.Entries() {
		e.Fn(event, p)
	}
}

// captureLimits reads the limits in force before the first round; they
// become the baseline every later proposal starts from. A floor pinned at
// the hardware maximum is what a boost leaves behind when the process dies
// mid-window, so it is taken as the hardware minimum instead.
func (s *Subsystem) captureLimits(cpu int, hwMin, hwMax uint64) limits {
	l := limits{min: hwMin, max: hwMax}
	if v, err := s.readFreq(cpu, fileScaleMin); err == nil {
		l.min = v
	}
	if l.min == hwMax && hwMin < hwMax {
		s.log.Info("discarding floor pinned at hardware max", "cpu", cpu, "minKHz", l.min, "restoreKHz", hwMin)
		l.min = hwMin
	}
	if v, err := s.readFreq(cpu, fileScaleMax); err == nil {
		l.max = v
	}
	s.log.V(1).Info("captured user limits", "cpu", cpu, "minKHz", l.min, "maxKHz", l.max)
	return l
}

// apply writes the new range. The kernel rejects a min above the current
// max, so when raising the floor past it the max goes first.
func (s *Subsystem) apply(cpu int, p domain.Policy) error {
	curMax, err := s.readFreq(cpu, fileScaleMax)
	if err != nil || p.Min > curMax {
		if err := s.writeFreq(cpu, fileScaleMax, p.Max); err != nil {
			return err
		}
		return s.writeFreq(cpu, fileScaleMin, p.Min)
	}
	if err := s.writeFreq(cpu, fileScaleMin, p.Min); err != nil {
		return err
	}
	return s.writeFreq(cpu, fileScaleMax, p.Max)
}

// ─── Sysfs Helpers ──────────────────────────────────────────────────────────

func (s *Subsystem) freqPath(cpu int, resource string) string {
	return filepath.Join(s.root, fmt.Sprintf("cpu%d", cpu), "cpufreq", resource)
}

func (s *Subsystem) readFreq(cpu int, resource string) (uint64, error) {
	data, err := afero.ReadFile(s.fs, s.freqPath(cpu, resource))
	if err != nil {
		return 0, fmt.Errorf("read %s for cpu %d: %w", resource, cpu, err)
	}
	v, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s for cpu %d: %w", resource, cpu, err)
	}
	return v, nil
}

func (s *Subsystem) writeFreq(cpu int, resource string, khz uint64) error {
	path := s.freqPath(cpu, resource)
	if err := afero.WriteFile(s.fs, path, []byte(strconv.FormatUint(khz, 10)), 0644); err != nil {
		return fmt.Errorf("write %s for cpu %d: %w", resource, cpu, err)
	}
	return nil
}
