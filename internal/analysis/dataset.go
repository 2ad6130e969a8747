package analysis

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// CSV column names read from the survey dataset.
const (
	colQuestion       = "Question"
	colYearStart      = "YearStart"
	colYearEnd        = "YearEnd"
	colLocation       = "LocationDesc"
	colValue          = "Data_Value"
	colCategory       = "StratificationCategory1"
	colStratification = "Stratification1"
)

var requiredColumns = []string{colQuestion, colYearStart, colYearEnd, colLocation, colValue}

// Row is one survey observation.
type Row struct {
	Question       string
	YearStart      int
	YearEnd        int
	State          string
	Value          float64
	HasValue       bool
	Category       string
	Stratification string
}

// Dataset is the in-memory survey table. It is read-only after loading and
// safe for concurrent use.
type Dataset struct {
	rows       []Row
	byQuestion map[string][]int
	// states in order of first appearance.
	states []string
}

// LoadDataset reads the CSV file at path.
func LoadDataset(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	ds, err := ReadDataset(f)
	if err != nil {
		return nil, fmt.Errorf("read dataset %s: %w", path, err)
	}
	return ds, nil
}

// ReadDataset parses survey CSV data with a header row. It fails when any of
// the required columns is missing. Unparsable Data_Value cells are kept as
// rows without a value.
func ReadDataset(r io.Reader) (*Dataset, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("empty dataset")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}
	var missing []string
	for _, name := range requiredColumns {
		if _, ok := cols[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("dataset missing required columns: %s", strings.Join(missing, ", "))
	}

	field := func(rec []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	ds := &Dataset{byQuestion: make(map[string][]int)}
	seenStates := make(map[string]bool)
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read line %d: %w", line, err)
		}

		row := Row{
			Question:       field(rec, colQuestion),
			YearStart:      parseYear(field(rec, colYearStart)),
			YearEnd:        parseYear(field(rec, colYearEnd)),
			State:          field(rec, colLocation),
			Category:       field(rec, colCategory),
			Stratification: field(rec, colStratification),
		}
		if v, err := strconv.ParseFloat(field(rec, colValue), 64); err == nil && !isNaNOrInf(v) {
			row.Value = v
			row.HasValue = true
		}

		ds.byQuestion[row.Question] = append(ds.byQuestion[row.Question], len(ds.rows))
		ds.rows = append(ds.rows, row)

		if row.State != "" && !seenStates[row.State] {
			seenStates[row.State] = true
			ds.states = append(ds.states, row.State)
		}
	}
	return ds, nil
}

// Len returns the number of rows.
func (d *Dataset) Len() int {
	return len(d.rows)
}

// States returns every state in order of first appearance.
func (d *Dataset) States() []string {
	out := make([]string, len(d.states))
	copy(out, d.states)
	return out
}

// questionRows calls fn for each row answering question.
func (d *Dataset) questionRows(question string, fn func(r *Row)) {
	for _, i := range d.byQuestion[question] {
		fn(&d.rows[i])
	}
}

// parseYear accepts integer or float-formatted years ("2011", "2011.0").
func parseYear(s string) int {
	if y, err := strconv.Atoi(s); err == nil {
		return y
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !isNaNOrInf(f) {
		return int(f)
	}
	return 0
}

func isNaNOrInf(f float64) bool {
	return math.IsNaN(f) || math.IsInf(f, 0)
}
