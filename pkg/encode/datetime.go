package encode

import (
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/arkadix/relgraph/pkg/source"
	"gonum.org/v1/gonum/mat"
)

// datetimeFeatures is the length of the cyclical calendar feature vector:
// sin/cos of month, day, weekday and hour, plus a scaled year.
const datetimeFeatures = 9

var datetimeParseLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02",
	"15:04:05",
}

// datetimeEncoder projects cyclical calendar components to the model width.
type datetimeEncoder struct {
	proj    *mat.Dense // datetimeFeatures × dim
	bias    []float64
	missing []float64
}

func newDatetime(dim int, rng *rand.Rand) *datetimeEncoder {
	return &datetimeEncoder{
		proj:    randMat(datetimeFeatures, dim, rng),
		bias:    randVec(dim, rng),
		missing: randVec(dim, rng),
	}
}

func (e *datetimeEncoder) Dim() int { return len(e.bias) }

func (e *datetimeEncoder) Encode(v source.Value) []float64 {
	t, ok := asTime(v)
	if !ok {
		out := make([]float64, len(e.missing))
		copy(out, e.missing)
		return out
	}

	f := calendarFeatures(t)
	out := make([]float64, len(e.bias))
	copy(out, e.bias)
	for i := 0; i < datetimeFeatures; i++ {
		row := e.proj.RawRowView(i)
		for j := range out {
			out[j] += f[i] * row[j]
		}
	}
	return out
}

func calendarFeatures(t time.Time) [datetimeFeatures]float64 {
	cyc := func(x, period float64) (float64, float64) {
		a := 2 * math.Pi * x / period
		return math.Sin(a), math.Cos(a)
	}
	var f [datetimeFeatures]float64
	f[0], f[1] = cyc(float64(t.Month()-1), 12)
	f[2], f[3] = cyc(float64(t.Day()-1), 31)
	f[4], f[5] = cyc(float64(t.Weekday()), 7)
	f[6], f[7] = cyc(float64(t.Hour()), 24)
	f[8] = float64(t.Year()-2000) / 100
	return f
}

func asTime(v source.Value) (time.Time, bool) {
	switch v.Kind {
	case source.KindTime:
		return v.Time, true
	case source.KindText:
		s := strings.TrimSpace(v.Text)
		for _, layout := range datetimeParseLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}
