// Package preprocess turns trip records into the numeric matrix the forest
// is trained on. The fitted state is frozen after Fit so training and
// serving apply the exact same transformation.
package preprocess

import (
	"errors"
	"slices"

	"tripfare/internal/schema"
)

// ErrNoRows is returned by Fit when there is nothing to learn from.
var ErrNoRows = errors.New("preprocess: no rows to fit")

// Preprocessor holds the statistics learned by Fit. It is never mutated
// afterwards; Transform is safe for concurrent use.
type Preprocessor struct {
	numeric     []string
	means       []float64
	categorical []string
	modes       []string
	vocab       [][]string
	vocabIndex  []map[string]int
	offsets     []int
	width       int
}

// Fit learns per-column statistics from the training records:
//   - numeric columns: mean of the present values (0 when none are present);
//   - categorical columns: most frequent value, ties going to the value seen
//     first, and a lexically sorted one-hot vocabulary of the imputed column.
//
// Values that are not numbers in numeric columns are treated as missing.
func Fit(s *schema.Schema, records []schema.Record) (*Preprocessor, error) {
	if len(records) == 0 {
		return nil, ErrNoRows
	}

	p := &Preprocessor{
		numeric:     s.NumericFields(),
		categorical: s.CategoricalFields(),
	}

	p.means = make([]float64, len(p.numeric))
	for i, name := range p.numeric {
		p.means[i] = columnMean(records, name)
	}
	p.width = len(p.numeric)

	p.modes = make([]string, len(p.categorical))
	p.vocab = make([][]string, len(p.categorical))
	p.vocabIndex = make([]map[string]int, len(p.categorical))
	p.offsets = make([]int, len(p.categorical))
	for i, name := range p.categorical {
		mode, vocab := columnModeAndVocab(records, name)
		p.modes[i] = mode
		p.vocab[i] = vocab
		p.vocabIndex[i] = make(map[string]int, len(vocab))
		for j, v := range vocab {
			p.vocabIndex[i][v] = j
		}
		p.offsets[i] = p.width
		p.width += len(vocab)
	}

	return p, nil
}

func columnMean(records []schema.Record, name string) float64 {
	var sum float64
	var n int
	for _, r := range records {
		if v, ok := schema.NumericValue(r[name]); ok {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func columnModeAndVocab(records []schema.Record, name string) (string, []string) {
	counts := make(map[string]int)
	var order []string
	for _, r := range records {
		v, ok := r[name].(string)
		if !ok || v == "" {
			continue
		}
		if counts[v] == 0 {
			order = append(order, v)
		}
		counts[v]++
	}

	var mode string
	best := 0
	for _, v := range order {
		if counts[v] > best {
			mode, best = v, counts[v]
		}
	}

	vocab := slices.Clone(order)
	slices.Sort(vocab)
	return mode, vocab
}

// Transform encodes one record. Missing values are imputed with the fitted
// statistics and a category outside the fitted vocabulary yields an all-zero
// indicator block.
func (p *Preprocessor) Transform(r schema.Record) []float64 {
	row := make([]float64, p.width)
	p.transformInto(r, row)
	return row
}

// TransformAll encodes every record into one backing array.
func (p *Preprocessor) TransformAll(records []schema.Record) [][]float64 {
	backing := make([]float64, len(records)*p.width)
	out := make([][]float64, len(records))
	for i, r := range records {
		row := backing[i*p.width : (i+1)*p.width : (i+1)*p.width]
		p.transformInto(r, row)
		out[i] = row
	}
	return out
}

func (p *Preprocessor) transformInto(r schema.Record, row []float64) {
	for i, name := range p.numeric {
		if v, ok := schema.NumericValue(r[name]); ok {
			row[i] = v
		} else {
			row[i] = p.means[i]
		}
	}

	for i, name := range p.categorical {
		var value string
		switch v := r[name].(type) {
		case string:
			value = v
		case nil:
			value = p.modes[i]
		default:
			continue
		}
		if value == "" {
			value = p.modes[i]
		}
		if j, ok := p.vocabIndex[i][value]; ok {
			row[p.offsets[i]+j] = 1
		}
	}
}

// Width is the number of columns Transform produces.
func (p *Preprocessor) Width() int {
	return p.width
}

// FeatureNames labels each output column: numeric field names followed by
// "Field=Value" for every indicator column.
func (p *Preprocessor) FeatureNames() []string {
	names := make([]string, 0, p.width)
	names = append(names, p.numeric...)
	for i, field := range p.categorical {
		for _, v := range p.vocab[i] {
			names = append(names, field+"="+v)
		}
	}
	return names
}

// Means returns the fitted imputation mean of every numeric field.
func (p *Preprocessor) Means() map[string]float64 {
	out := make(map[string]float64, len(p.numeric))
	for i, name := range p.numeric {
		out[name] = p.means[i]
	}
	return out
}

// Modes returns the fitted most frequent value of every categorical field.
func (p *Preprocessor) Modes() map[string]string {
	out := make(map[string]string, len(p.categorical))
	for i, name := range p.categorical {
		out[name] = p.modes[i]
	}
	return out
}

// Vocabulary returns the fitted indicator vocabulary of a categorical field.
func (p *Preprocessor) Vocabulary(field string) ([]string, bool) {
	i := slices.Index(p.categorical, field)
	if i < 0 {
		return nil, false
	}
	return slices.Clone(p.vocab[i]), true
}
