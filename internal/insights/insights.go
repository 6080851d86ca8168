// Package insights summarizes the cleaned trip dataset: per-column
// statistics, the price distribution and average prices by time of day and
// day of week.
package insights

import (
	"log/slog"
	"math"
	"slices"

	"tripfare/internal/dataset"
	"tripfare/internal/schema"
)

// HistogramBins is the number of equal-width price bins.
const HistogramBins = 20

// Report is the dataset summary served by the insights endpoint and the
// form's insights command.
type Report struct {
	Rows                     int                  `json:"rows"`
	Numeric                  []NumericSummary     `json:"numeric"`
	Categorical              []CategoricalSummary `json:"categorical"`
	PriceHistogram           []Bin                `json:"price_histogram"`
	AvgPriceByTimeOfDay      []GroupAverage       `json:"avg_price_by_time_of_day"`
	AvgPriceByDayOfWeek      []GroupAverage       `json:"avg_price_by_day_of_week"`
	DistancePriceCorrelation *float64             `json:"distance_price_correlation"`
}

// NumericSummary describes one numeric column. Std is the sample standard
// deviation; it is zero for fewer than two values.
type NumericSummary struct {
	Field   string  `json:"field"`
	Count   int     `json:"count"`
	Missing int     `json:"missing"`
	Mean    float64 `json:"mean"`
	Std     float64 `json:"std"`
	Min     float64 `json:"min"`
	P25     float64 `json:"p25"`
	Median  float64 `json:"median"`
	P75     float64 `json:"p75"`
	Max     float64 `json:"max"`
}

// CategoricalSummary describes one categorical column. Top is the most
// frequent value, ties going to the value seen first.
type CategoricalSummary struct {
	Field   string `json:"field"`
	Count   int    `json:"count"`
	Missing int    `json:"missing"`
	Unique  int    `json:"unique"`
	Top     string `json:"top"`
	Freq    int    `json:"freq"`
}

// Bin is one histogram bucket covering [Lower, Upper); the last bucket
// also includes Upper.
type Bin struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	Count int     `json:"count"`
}

// GroupAverage is the mean price of rows sharing one categorical value.
type GroupAverage struct {
	Value     string  `json:"value"`
	Count     int     `json:"count"`
	MeanPrice float64 `json:"mean_price"`
}

// Service builds Reports.
type Service struct {
	schema *schema.Schema
	logger *slog.Logger
}

// NewService creates an insights service for datasets described by s.
func NewService(s *schema.Schema, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{schema: s, logger: logger}
}

// Generate computes the report for ds. The dataset is not modified.
func (s *Service) Generate(ds *dataset.Dataset) *Report {
	report := &Report{Rows: ds.Len()}
	if ds.Len() == 0 {
		s.logger.Warn("insights requested for an empty dataset")
		return report
	}

	for _, name := range s.schema.NumericFields() {
		report.Numeric = append(report.Numeric, summarizeNumeric(name, column(ds, name)))
	}
	report.Numeric = append(report.Numeric, summarizeNumeric(s.schema.Target(), toAny(ds.Targets)))

	for _, name := range s.schema.CategoricalFields() {
		report.Categorical = append(report.Categorical, summarizeCategorical(name, column(ds, name)))
	}

	report.PriceHistogram = histogram(ds.Targets, HistogramBins)

	if _, ok := s.schema.CategoricalDomain(schema.FieldTimeOfDay); ok {
		report.AvgPriceByTimeOfDay = s.groupAverages(ds, schema.FieldTimeOfDay)
	}
	if _, ok := s.schema.CategoricalDomain(schema.FieldDayOfWeek); ok {
		report.AvgPriceByDayOfWeek = s.groupAverages(ds, schema.FieldDayOfWeek)
	}
	if s.schema.IsFeature(schema.FieldTripDistanceKm) {
		report.DistancePriceCorrelation = correlation(ds, schema.FieldTripDistanceKm)
	}

	s.logger.Info("dataset insights generated", "rows", report.Rows, "bins", len(report.PriceHistogram))
	return report
}

func column(ds *dataset.Dataset, name string) []any {
	out := make([]any, len(ds.Records))
	for i, r := range ds.Records {
		out[i] = r[name]
	}
	return out
}

func toAny(values []float64) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func summarizeNumeric(name string, col []any) NumericSummary {
	sum := NumericSummary{Field: name}
	values := make([]float64, 0, len(col))
	for _, v := range col {
		if f, ok := schema.NumericValue(v); ok {
			values = append(values, f)
		} else {
			sum.Missing++
		}
	}
	sum.Count = len(values)
	if sum.Count == 0 {
		return sum
	}

	slices.Sort(values)
	var total float64
	for _, v := range values {
		total += v
	}
	sum.Mean = total / float64(sum.Count)
	if sum.Count > 1 {
		var sq float64
		for _, v := range values {
			d := v - sum.Mean
			sq += d * d
		}
		sum.Std = math.Sqrt(sq / float64(sum.Count-1))
	}
	sum.Min = values[0]
	sum.Max = values[len(values)-1]
	sum.P25 = quantile(values, 0.25)
	sum.Median = quantile(values, 0.5)
	sum.P75 = quantile(values, 0.75)
	return sum
}

// quantile interpolates linearly between the closest ranks of sorted.
func quantile(sorted []float64, q float64) float64 {
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

func summarizeCategorical(name string, col []any) CategoricalSummary {
	sum := CategoricalSummary{Field: name}
	counts := make(map[string]int)
	var order []string
	for _, v := range col {
		s, ok := v.(string)
		if !ok || s == "" {
			sum.Missing++
			continue
		}
		if counts[s] == 0 {
			order = append(order, s)
		}
		counts[s]++
		sum.Count++
	}
	sum.Unique = len(order)
	for _, v := range order {
		if counts[v] > sum.Freq {
			sum.Top, sum.Freq = v, counts[v]
		}
	}
	return sum
}

// histogram buckets values into n equal-width bins between min and max.
func histogram(values []float64, n int) []Bin {
	if len(values) == 0 {
		return nil
	}
	lo, hi := slices.Min(values), slices.Max(values)
	if lo == hi {
		lo, hi = lo-0.5, hi+0.5
	}
	width := (hi - lo) / float64(n)

	bins := make([]Bin, n)
	for i := range bins {
		bins[i].Lower = lo + float64(i)*width
		bins[i].Upper = lo + float64(i+1)*width
	}
	bins[n-1].Upper = hi

	for _, v := range values {
		i := int((v - lo) / width)
		if i >= n {
			i = n - 1
		}
		bins[i].Count++
	}
	return bins
}

// groupAverages returns the mean price per domain value, in domain order.
// Values with no rows are reported with a zero count.
func (s *Service) groupAverages(ds *dataset.Dataset, field string) []GroupAverage {
	domain, _ := s.schema.CategoricalDomain(field)
	sums := make(map[string]float64, len(domain))
	counts := make(map[string]int, len(domain))
	for i, r := range ds.Records {
		v, ok := r[field].(string)
		if !ok {
			continue
		}
		sums[v] += ds.Targets[i]
		counts[v]++
	}

	out := make([]GroupAverage, 0, len(domain))
	for _, v := range domain {
		g := GroupAverage{Value: v, Count: counts[v]}
		if g.Count > 0 {
			g.MeanPrice = sums[v] / float64(g.Count)
		}
		out = append(out, g)
	}
	return out
}

// correlation is the Pearson coefficient between field and the target over
// rows where field is present. It is nil when either side has no variance.
func correlation(ds *dataset.Dataset, field string) *float64 {
	var xs, ys []float64
	for i, r := range ds.Records {
		if x, ok := schema.NumericValue(r[field]); ok {
			xs = append(xs, x)
			ys = append(ys, ds.Targets[i])
		}
	}
	if len(xs) < 2 {
		return nil
	}

	var mx, my float64
	for i := range xs {
		mx += xs[i]
		my += ys[i]
	}
	mx /= float64(len(xs))
	my /= float64(len(ys))

	var cov, vx, vy float64
	for i := range xs {
		dx, dy := xs[i]-mx, ys[i]-my
		cov += dx * dy
		vx += dx * dx
		vy += dy * dy
	}
	if vx == 0 || vy == 0 {
		return nil
	}
	r := cov / math.Sqrt(vx*vy)
	return &r
}
