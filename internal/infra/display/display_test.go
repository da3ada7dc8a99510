package display

import (
	"testing"

	"github.com/go-logr/logr"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutu-network/wakeboost/internal/domain"
)

const testBLPower = "/sys/class/backlight/panel0-backlight/bl_power"

type recorder struct {
	events []domain.DisplayEvent
}

func (r *recorder) fn(ev domain.DisplayEvent) { r.events = append(r.events, ev) }

// ─── Chain ──────────────────────────────────────────────────────────────────

func TestChain_PriorityOrder(t *testing.T) {
	c := NewChain(logr.Discard())
	var order []string
	require.NoError(t, c.Register("late", 0, func(domain.DisplayEvent) { order = append(order, "late") }))
	require.NoError(t, c.Register("first", 1<<30, func(domain.DisplayEvent) { order = append(order, "first") }))

	c.Notify(domain.DisplayEvent{Stage: domain.StageEarly, Blank: domain.BlankUnblank})
	assert.Equal(t, []string{"first", "late"}, order)
}

func TestChain_TransitionSendsEarlyThenLate(t *testing.T) {
	c := NewChain(logr.Discard())
	rec := &recorder{}
	require.NoError(t, c.Register("rec", 0, rec.fn))

	_, seen := c.Last()
	assert.False(t, seen)

	c.Transition(domain.BlankPowerdown)
	assert.Equal(t, []domain.DisplayEvent{
		{Stage: domain.StageEarly, Blank: domain.BlankPowerdown},
		{Stage: domain.StageLate, Blank: domain.BlankPowerdown},
	}, rec.events)

	last, seen := c.Last()
	assert.True(t, seen)
	assert.Equal(t, domain.BlankPowerdown, last)
}

func TestChain_Unregister(t *testing.T) {
	c := NewChain(logr.Discard())
	rec := &recorder{}
	require.NoError(t, c.Register("rec", 0, rec.fn))
	require.NoError(t, c.Unregister("rec"))
	assert.Error(t, c.Unregister("rec"))

	c.Transition(domain.BlankUnblank)
	assert.Empty(t, rec.events)
}

// ─── Sysfs Source ───────────────────────────────────────────────────────────

func newSource(t *testing.T, fs afero.Fs, cfg SourceConfig) (*SysfsSource, *recorder) {
	t.Helper()
	c := NewChain(logr.Discard())
	rec := &recorder{}
	require.NoError(t, c.Register("rec", 0, rec.fn))
	src, err := NewSysfsSource(fs, cfg, c, logr.Discard())
	require.NoError(t, err)
	return src, rec
}

func TestSysfsSource_DiscoversBacklight(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, testBLPower, []byte("0\n"), 0644))

	src, _ := newSource(t, fs, SourceConfig{})
	assert.Equal(t, testBLPower, src.Path())
}

func TestSysfsSource_NoBacklight(t *testing.T) {
	_, err := NewSysfsSource(afero.NewMemMapFs(), SourceConfig{}, NewChain(logr.Discard()), logr.Discard())
	assert.Error(t, err)
}

func TestSysfsSource_InvalidMode(t *testing.T) {
	_, err := NewSysfsSource(afero.NewMemMapFs(), SourceConfig{Path: testBLPower, Mode: "lux"}, NewChain(logr.Discard()), logr.Discard())
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSysfsSource_PollAnnouncesChanges(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, testBLPower, []byte("4\n"), 0644))
	src, rec := newSource(t, fs, SourceConfig{Path: testBLPower})

	changed, err := src.Poll()
	require.NoError(t, err)
	assert.False(t, changed, "first poll only sets the baseline")
	assert.Empty(t, rec.events)

	changed, err = src.Poll()
	require.NoError(t, err)
	assert.False(t, changed)

	require.NoError(t, afero.WriteFile(fs, testBLPower, []byte("0\n"), 0644))
	changed, err = src.Poll()
	require.NoError(t, err)
	assert.True(t, changed)
	require.Len(t, rec.events, 2)
	assert.Equal(t, domain.DisplayEvent{Stage: domain.StageEarly, Blank: domain.BlankUnblank}, rec.events[0])
}

func TestSysfsSource_BrightnessMode(t *testing.T) {
	fs := afero.NewMemMapFs()
	path := "/sys/class/backlight/panel0-backlight/brightness"
	require.NoError(t, afero.WriteFile(fs, path, []byte("128\n"), 0644))
	src, rec := newSource(t, fs, SourceConfig{Path: path, Mode: ModeBrightness})

	level, err := src.Read()
	require.NoError(t, err)
	assert.Equal(t, domain.BlankUnblank, level)

	_, err = src.Poll()
	require.NoError(t, err)
	require.NoError(t, afero.WriteFile(fs, path, []byte("0\n"), 0644))
	changed, err := src.Poll()
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, domain.BlankPowerdown, rec.events[0].Blank)
}

func TestSysfsSource_ReadErrors(t *testing.T) {
	fs := afero.NewMemMapFs()
	src, _ := newSource(t, fs, SourceConfig{Path: testBLPower})

	_, err := src.Read()
	assert.Error(t, err, "missing file")

	require.NoError(t, afero.WriteFile(fs, testBLPower, []byte("on\n"), 0644))
	_, err = src.Read()
	assert.Error(t, err, "non-numeric")

	require.NoError(t, afero.WriteFile(fs, testBLPower, []byte("9\n"), 0644))
	_, err = src.Read()
	assert.Error(t, err, "out of range")
}
