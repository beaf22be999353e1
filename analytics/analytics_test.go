package analytics

import (
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var t0 = time.Date(2025, 10, 15, 22, 10, 0, 0, time.UTC)

func sample() []Record {
	return []Record{
		{ID: "c", Label: "cpu", Category: "system", Value: 3, Timestamp: t0.Add(2 * time.Second)},
		{ID: "a", Label: "cpu", Category: "system", Value: 1, Timestamp: t0},
		{ID: "b", Label: "requests", Category: "traffic", Value: 10, Timestamp: t0.Add(time.Second)},
	}
}

func TestGenerator_Next(t *testing.T) {
	g := NewGenerator(rand.New(rand.NewSource(1)))
	g.now = func() time.Time { return t0 }

	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		r := g.Next()
		assert.Len(t, r.ID, 32)
		assert.False(t, seen[r.ID])
		seen[r.ID] = true

		assert.Contains(t, defaultLabels, r.Label)
		assert.Contains(t, defaultCategories, r.Category)
		assert.GreaterOrEqual(t, r.Value, 0.0)
		assert.Less(t, r.Value, 100.0)
		assert.Equal(t, t0, r.Timestamp)
	}
}

func TestFromMap(t *testing.T) {
	r, err := FromMap(map[string]interface{}{
		"id":        "x1",
		"label":     "cpu",
		"category":  "system",
		"value":     12.5,
		"timestamp": "2025-10-15T22:10:00Z",
	})
	require.NoError(t, err)
	assert.Equal(t, "cpu", r.Label)
	assert.Equal(t, 12.5, r.Value)
	assert.True(t, t0.Equal(r.Timestamp))

	_, err = FromMap(map[string]interface{}{"value": 1})
	assert.Error(t, err)

	_, err = FromMap(map[string]interface{}{"label": "cpu", "value": "high"})
	assert.Error(t, err)
}

func TestProcessor_Process(t *testing.T) {
	p := NewProcessor(rand.New(rand.NewSource(7)), zap.NewNop())
	assert.Nil(t, p.Report())

	in := sample()
	out := p.Process(in)
	require.Len(t, out, 3)

	for i, r := range out {
		assert.Equal(t, in[i].ID, r.ID)
		assert.GreaterOrEqual(t, r.CalculatedValue, 0.0)
		assert.Less(t, r.CalculatedValue, r.Value*100)
		assert.Equal(t, 0.0, in[i].CalculatedValue, "input is left untouched")
	}

	m := p.Metrics()
	assert.Equal(t, 3, m.Processed)
	assert.Equal(t, 1, m.Batches)

	p.now = func() time.Time { return t0 }
	report := p.Report()
	require.NotNil(t, report)
	assert.Equal(t, 3, report.TotalRecords)
	assert.Equal(t, Columns, report.Columns)
	assert.Equal(t, t0, report.GeneratedAt)

	assert.Nil(t, p.Process(nil))
}

func TestBuildDashboard(t *testing.T) {
	d := BuildDashboard(sample())

	assert.Equal(t, []string{
		"2025-10-15T22:10:00Z",
		"2025-10-15T22:10:01Z",
		"2025-10-15T22:10:02Z",
	}, d.LineChartData.Labels)
	assert.Equal(t, []float64{1, 10, 3}, d.LineChartData.Datasets[0].Data)

	assert.Equal(t, []string{"cpu", "requests"}, d.BarChartData.Labels)
	assert.Equal(t, []float64{4, 10}, d.BarChartData.Datasets[0].Data)

	assert.Equal(t, []string{"system", "traffic"}, d.PieChartData.Labels)
	assert.Equal(t, []float64{2, 1}, d.PieChartData.Datasets[0].Data)
}

func TestBuildDashboard_Empty(t *testing.T) {
	d := BuildDashboard(nil)
	assert.Empty(t, d.LineChartData.Labels)
	assert.Empty(t, d.BarChartData.Labels)
	assert.Len(t, d.PieChartData.Datasets, 1)
}

func TestWindow(t *testing.T) {
	w := NewWindow(2)
	for _, r := range sample() {
		w.Add(r)
	}

	assert.Equal(t, 2, w.Len())
	snap := w.Snapshot()
	assert.Equal(t, "a", snap[0].ID)
	assert.Equal(t, "b", snap[1].ID)

	snap[0].ID = "changed"
	assert.Equal(t, "a", w.Snapshot()[0].ID)
}

func TestDebouncer_CoalescesBursts(t *testing.T) {
	var calls int32
	var last atomic.Value

	d := NewDebouncer(20*time.Millisecond, func(v int) {
		atomic.AddInt32(&calls, 1)
		last.Store(v)
	})

	for i := 1; i <= 5; i++ {
		d.Push(i)
	}

	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 5, last.Load())

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestDebouncer_Stop(t *testing.T) {
	var calls int32
	d := NewDebouncer(20*time.Millisecond, func(v string) { atomic.AddInt32(&calls, 1) })

	d.Push("x")
	d.Stop()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestDebouncer_StaleTimerIsIgnored(t *testing.T) {
	var calls int32
	d := NewDebouncer(time.Hour, func(v int) { atomic.AddInt32(&calls, 1) })

	d.Push(1)
	d.Push(2)

	// a timer armed by the first push that fired before being stopped
	d.fire(1)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))

	d.Stop()
	d.fire(2)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))

	d.Push(3)
	d.fire(4)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	d.Stop()
}
