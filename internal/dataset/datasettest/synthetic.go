// Package datasettest generates deterministic trip datasets for tests.
package datasettest

import (
	"encoding/csv"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"tripfare/internal/dataset"
	"tripfare/internal/schema"
)

var (
	timesOfDay = []string{"Morning", "Afternoon", "Evening", "Night"}
	days       = []string{"Weekday", "Weekend"}
	traffic    = []string{"Low", "Medium", "High"}
	weather    = []string{"Clear", "Rain", "Snow"}
)

var trafficFactor = map[string]float64{"Low": 1.0, "Medium": 1.15, "High": 1.4}

// Options tune Synthetic. MissingRate is the probability that any single
// feature cell is left empty.
type Options struct {
	Rows        int
	Seed        int64
	MissingRate float64
}

// Synthetic returns a cleaned dataset whose price follows the fare formula
// (base + distance*rate + minutes*rate) scaled by traffic.
func Synthetic(opts Options) *dataset.Dataset {
	rng := rand.New(rand.NewSource(opts.Seed))
	rows := make([]schema.Record, opts.Rows)
	for i := range rows {
		rows[i] = Trip(rng)
	}

	ds := dataset.Clean(rows, schema.Default())
	if opts.MissingRate > 0 {
		for _, r := range ds.Records {
			for _, f := range schema.Default().RequiredFields() {
				if rng.Float64() < opts.MissingRate {
					r[f] = nil
				}
			}
		}
	}
	return ds
}

// Trip draws one complete record including its Trip_Price.
func Trip(rng *rand.Rand) schema.Record {
	distance := 1 + rng.Float64()*49
	minutes := 5 + rng.Float64()*115
	base := 2 + rng.Float64()*3
	perKm := 0.5 + rng.Float64()
	perMinute := 0.1 + rng.Float64()*0.4
	tr := traffic[rng.Intn(len(traffic))]

	price := (base + distance*perKm + minutes*perMinute) * trafficFactor[tr]

	return schema.Record{
		schema.FieldTripDistanceKm:      distance,
		schema.FieldTripDurationMinutes: minutes,
		schema.FieldPassengerCount:      float64(1 + rng.Intn(4)),
		schema.FieldBaseFare:            base,
		schema.FieldPerKmRate:           perKm,
		schema.FieldPerMinuteRate:       perMinute,
		schema.FieldTimeOfDay:           timesOfDay[rng.Intn(len(timesOfDay))],
		schema.FieldDayOfWeek:           days[rng.Intn(len(days))],
		schema.FieldTrafficConditions:   tr,
		schema.FieldWeather:             weather[rng.Intn(len(weather))],
		schema.FieldTripPrice:           price,
	}
}

// Request returns the sample request used across front-end tests.
func Request() schema.Record {
	return schema.Record{
		schema.FieldTripDistanceKm:      5.0,
		schema.FieldTripDurationMinutes: 15.0,
		schema.FieldPassengerCount:      1.0,
		schema.FieldBaseFare:            3.0,
		schema.FieldPerKmRate:           1.2,
		schema.FieldPerMinuteRate:       0.3,
		schema.FieldTimeOfDay:           "Morning",
		schema.FieldDayOfWeek:           "Weekday",
		schema.FieldTrafficConditions:   "Low",
		schema.FieldWeather:             "Clear",
	}
}

// WriteCSV writes rows synthetic trips to a CSV file under t.TempDir and
// returns its path.
func WriteCSV(t testing.TB, rows int, seed int64) string {
	t.Helper()
	s := schema.Default()
	header := append(s.RequiredFields(), s.Target())

	path := filepath.Join(t.TempDir(), "trips.csv")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create csv: %v", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		t.Fatalf("write header: %v", err)
	}
	rng := rand.New(rand.NewSource(seed))
	for i := 0; i < rows; i++ {
		trip := Trip(rng)
		line := make([]string, len(header))
		for j, col := range header {
			switch v := trip[col].(type) {
			case float64:
				line[j] = strconv.FormatFloat(v, 'f', 4, 64)
			case string:
				line[j] = v
			}
		}
		if err := w.Write(line); err != nil {
			t.Fatalf("write row: %v", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		t.Fatalf("flush csv: %v", err)
	}
	return path
}
