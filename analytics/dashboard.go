package analytics

import (
	"sort"
	"sync"
	"time"
)

// Dataset and ChartData follow the Chart.js data layout so the JSON can be
// handed to a chart as-is.
type Dataset struct {
	Label string    `json:"label"`
	Data  []float64 `json:"data"`
}

type ChartData struct {
	Labels   []string  `json:"labels"`
	Datasets []Dataset `json:"datasets"`
}

type Dashboard struct {
	LineChartData ChartData `json:"lineChartData"`
	BarChartData  ChartData `json:"barChartData"`
	PieChartData  ChartData `json:"pieChartData"`
}

// BuildDashboard turns records into three charts:
// line: value and calculated value over time,
// bar: value totals per label,
// pie: record count per category.
func BuildDashboard(records []Record) Dashboard {
	sorted := make([]Record, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	line := ChartData{
		Labels: make([]string, 0, len(sorted)),
		Datasets: []Dataset{
			{Label: "value", Data: make([]float64, 0, len(sorted))},
			{Label: "calculatedValue", Data: make([]float64, 0, len(sorted))},
		},
	}
	for _, r := range sorted {
		line.Labels = append(line.Labels, r.Timestamp.UTC().Format(time.RFC3339))
		line.Datasets[0].Data = append(line.Datasets[0].Data, r.Value)
		line.Datasets[1].Data = append(line.Datasets[1].Data, r.CalculatedValue)
	}

	totals := map[string]float64{}
	counts := map[string]float64{}
	for _, r := range records {
		totals[r.Label] += r.Value
		counts[r.Category]++
	}

	return Dashboard{
		LineChartData: line,
		BarChartData:  grouped("total", totals),
		PieChartData:  grouped("count", counts),
	}
}

func grouped(label string, m map[string]float64) ChartData {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	data := make([]float64, 0, len(keys))
	for _, k := range keys {
		data = append(data, m[k])
	}

	return ChartData{Labels: keys, Datasets: []Dataset{{Label: label, Data: data}}}
}

// Window keeps the most recent records up to a fixed size
type Window struct {
	size    int
	mu      sync.Mutex
	records []Record
}

func NewWindow(size int) *Window {
	if size < 1 {
		size = 1
	}
	return &Window{size: size, records: make([]Record, 0, size)}
}

func (w *Window) Add(r Record) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.records) == w.size {
		copy(w.records, w.records[1:])
		w.records = w.records[:w.size-1]
	}
	w.records = append(w.records, r)
}

func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	return len(w.records)
}

// Snapshot returns a copy, oldest first
func (w *Window) Snapshot() []Record {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]Record, len(w.records))
	copy(out, w.records)
	return out
}
