// Package analytics produces and summarises the metric records carried over
// the stream: generation, per-batch processing, a rolling window and the chart
// datasets served to dashboards.
package analytics

import (
	"math/rand"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type Record struct {
	ID              string    `json:"id"`
	Label           string    `json:"label"`
	Category        string    `json:"category"`
	Value           float64   `json:"value"`
	CalculatedValue float64   `json:"calculatedValue"`
	Timestamp       time.Time `json:"timestamp"`
}

// Columns lists the record fields as they appear on the wire
var Columns = []string{"id", "label", "category", "value", "calculatedValue", "timestamp"}

// FromMap converts a decoded JSON object into a Record
func FromMap(m map[string]interface{}) (Record, error) {
	var r Record

	b, err := json.Marshal(m)
	if err != nil {
		return r, errors.Wrap(err, "encode record")
	}

	if err := json.Unmarshal(b, &r); err != nil {
		return r, errors.Wrap(err, "decode record")
	}

	if len(r.Label) == 0 {
		return r, errors.New("record has no label")
	}

	return r, nil
}

var (
	defaultLabels     = []string{"cpu", "memory", "requests", "latency", "errors"}
	defaultCategories = []string{"system", "traffic", "quality"}
)

// Generator makes synthetic records. It is safe for concurrent use.
type Generator struct {
	rnd        *rand.Rand
	mu         sync.Mutex
	labels     []string
	categories []string
	now        func() time.Time
}

func NewGenerator(rnd *rand.Rand) *Generator {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	return &Generator{
		rnd:        rnd,
		labels:     defaultLabels,
		categories: defaultCategories,
		now:        time.Now,
	}
}

func (g *Generator) Next() Record {
	g.mu.Lock()
	defer g.mu.Unlock()

	return Record{
		ID:        strings.Replace(uuid.NewString(), "-", "", -1),
		Label:     g.labels[g.rnd.Intn(len(g.labels))],
		Category:  g.categories[g.rnd.Intn(len(g.categories))],
		Value:     float64(g.rnd.Intn(10000)) / 100,
		Timestamp: g.now(),
	}
}
