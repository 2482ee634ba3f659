package scope

import (
	"testing"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/test"
	"github.com/stretchr/testify/assert"

	"github.com/itohio/goanneal/pkg/cycle"
	"github.com/itohio/goanneal/pkg/trace"
)

func ramp(n int) []trace.Sample {
	out := make([]trace.Sample, n)
	for i := range out {
		out[i] = trace.Sample{Elapsed: time.Duration(i) * 50 * time.Millisecond, Amps: float32(i) * 0.08}
	}
	return out
}

func TestAutoScale(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		a := autoScale(nil, nil, 10*time.Second)
		assert.Equal(t, axes{yMin: 0, yMax: 1, xMax: 10 * time.Second}, a)
	})

	t.Run("short pass keeps the window", func(t *testing.T) {
		samples := ramp(101) // 5 s, peak 8 A
		a := autoScale(samples, trace.Slopes(samples), 10*time.Second)
		assert.Equal(t, 10*time.Second, a.xMax)
		assert.Zero(t, a.yMin)
		assert.InDelta(t, 8.8, a.yMax, 1e-3)
	})

	t.Run("long pass stretches the axis", func(t *testing.T) {
		samples := ramp(401)
		a := autoScale(samples, nil, 10*time.Second)
		assert.Equal(t, 20*time.Second, a.xMax)
	})

	t.Run("falling slopes extend below zero", func(t *testing.T) {
		samples := []trace.Sample{{Amps: 4}, {Elapsed: time.Second, Amps: 2}}
		a := autoScale(samples, trace.Slopes(samples), time.Second)
		assert.Less(t, a.yMin, -2.0)
	})
}

func TestAxes_Mapping(t *testing.T) {
	a := axes{yMin: 0, yMax: 10, xMax: 10 * time.Second}
	assert.Equal(t, float32(0), a.x(0, 200))
	assert.Equal(t, float32(100), a.x(5*time.Second, 200))
	assert.Equal(t, float32(100), a.y(0, 100), "zero sits on the bottom edge")
	assert.Equal(t, float32(0), a.y(10, 100))
}

func TestScope_Update(t *testing.T) {
	test.NewTempApp(t)

	s := New(0)
	assert.Equal(t, DefaultWindow, s.window)
	assert.Zero(t, s.Len())

	samples := ramp(3000)
	s.Update(samples)
	assert.Equal(t, 3000, s.Len())
	assert.Len(t, s.display, s.maxDisplayPoints)
	assert.Len(t, s.slopes, s.maxDisplayPoints-1)

	s.Mark(cycle.Recommendation{Cycle: 1, Peak: samples[2999], Recommended: 4.6})
	assert.NotNil(t, s.rec)

	// A new pass drops the old marker
	s.Update(samples[:1])
	assert.Nil(t, s.rec)

	s.Clear()
	assert.Zero(t, s.Len())
	assert.Empty(t, s.display)
}

func TestScope_Render(t *testing.T) {
	test.NewTempApp(t)

	s := New(10 * time.Second)
	s.Resize(fyne.NewSize(600, 300))
	r := test.WidgetRenderer(s)

	r.Refresh()
	grid := len(r.Objects())
	assert.Greater(t, grid, 1)

	samples := ramp(21)
	s.Update(samples)
	s.Mark(cycle.Recommendation{Cycle: 1, Peak: samples[20]})
	r.Refresh()
	// 20 amps segments, 19 slope segments, peak line and label
	assert.Equal(t, grid+20+19+2, len(r.Objects()))
}
