package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
)

const (
	qObesity = "Percent of adults aged 18 years and older who have obesity"
	qMuscle  = "Percent of adults who engage in muscle-strengthening activities on 2 or more days a week"
	qOther   = "Percent of students in grades 9-12 who drink regular soda"
)

// Obesity values across all years sum to 298 over 7 rows.
const fixtureCSV = `YearStart,YearEnd,LocationDesc,Question,Data_Value,StratificationCategory1,Stratification1
2011,2011,Ohio,"` + qObesity + `",30,Age (years),18 - 24
2015,2015,Ohio,"` + qObesity + `",32,Age (years),18 - 24
2010,2010,Ohio,"` + qObesity + `",100,Sex,Female
2012,2012,California,"` + qObesity + `",25,Sex,Female
2020,2020,California,"` + qObesity + `",27,Sex,Male
2013,2013,Texas,"` + qObesity + `",34,,
2021,2023,Texas,"` + qObesity + `",50,Sex,Male
2014,2014,Guam,"` + qObesity + `",,Sex,Male
2016,2016,Ohio,"` + qMuscle + `",20,Total,Total
2016,2016,California,"` + qMuscle + `",40,Total,Total
2016,2016,Texas,"` + qOther + `",10,Total,Total
`

const obesityGlobalMean = 298.0 / 7.0

func newTestIngestor(t *testing.T) *Ingestor {
	t.Helper()
	ds, err := ReadDataset(strings.NewReader(fixtureCSV))
	if err != nil {
		t.Fatalf("ReadDataset: %v", err)
	}
	return NewIngestor(ds)
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	reg := NewRegistry()
	RegisterBuiltins(reg, newTestIngestor(t))
	return reg
}

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func assertSeries(t *testing.T, got Series, want Series) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("series = %v, want %v", got, want)
	}
	for i := range want {
		if got[i].Key != want[i].Key || !approxEqual(got[i].Value, want[i].Value) {
			t.Errorf("entry %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestReadDataset(t *testing.T) {
	in := newTestIngestor(t)
	if in.ds.Len() != 11 {
		t.Errorf("Len() = %d, want 11", in.ds.Len())
	}
	states := in.ds.States()
	want := []string{"Ohio", "California", "Texas", "Guam"}
	if strings.Join(states, ",") != strings.Join(want, ",") {
		t.Errorf("States() = %v, want %v", states, want)
	}
}

func TestReadDatasetMissingColumns(t *testing.T) {
	_, err := ReadDataset(strings.NewReader("Question,LocationDesc\nq,Ohio\n"))
	if err == nil {
		t.Fatal("expected error for missing columns")
	}
	for _, col := range []string{"YearStart", "YearEnd", "Data_Value"} {
		if !strings.Contains(err.Error(), col) {
			t.Errorf("error %q does not name %s", err, col)
		}
	}
}

func TestReadDatasetEmpty(t *testing.T) {
	if _, err := ReadDataset(strings.NewReader("")); err == nil {
		t.Error("expected error for empty input")
	}
}

func TestReadDatasetBOMAndFloatYears(t *testing.T) {
	data := "\ufeffYearStart,YearEnd,LocationDesc,Question,Data_Value\n2011.0,2012.0,Ohio,q,12.5\n"
	ds, err := ReadDataset(strings.NewReader(data))
	if err != nil {
		t.Fatalf("ReadDataset: %v", err)
	}
	row := ds.rows[0]
	if row.YearStart != 2011 || row.YearEnd != 2012 {
		t.Errorf("years = %d-%d, want 2011-2012", row.YearStart, row.YearEnd)
	}
	if !row.HasValue || row.Value != 12.5 {
		t.Errorf("value = %v (has=%v), want 12.5", row.Value, row.HasValue)
	}
}

func TestStatesMean(t *testing.T) {
	in := newTestIngestor(t)

	got := in.StatesMean(Query{Question: qObesity})
	assertSeries(t, got, Series{
		{Key: "California", Value: 26},
		{Key: "Ohio", Value: 31},
		{Key: "Texas", Value: 34},
	})

	if got := in.StatesMean(Query{}); len(got) != 0 {
		t.Errorf("StatesMean without question = %v, want empty", got)
	}
}

func TestStateMean(t *testing.T) {
	in := newTestIngestor(t)

	assertSeries(t, in.StateMean(Query{Question: qObesity, State: "Ohio"}), Series{{Key: "Ohio", Value: 31}})

	tests := []struct {
		name string
		q    Query
	}{
		{"missing state", Query{Question: qObesity}},
		{"missing question", Query{State: "Ohio"}},
		{"unknown state", Query{Question: qObesity, State: "Atlantis"}},
		{"state without values", Query{Question: qObesity, State: "Guam"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := in.StateMean(tt.q); len(got) != 0 {
				t.Errorf("StateMean = %v, want empty", got)
			}
		})
	}
}

func TestBest5AndWorst5(t *testing.T) {
	in := newTestIngestor(t)

	// Lower is better for obesity.
	assertSeries(t, in.Best5(Query{Question: qObesity}), Series{
		{Key: "California", Value: 26},
		{Key: "Ohio", Value: 31},
		{Key: "Texas", Value: 34},
	})
	assertSeries(t, in.Worst5(Query{Question: qObesity}), Series{
		{Key: "Texas", Value: 34},
		{Key: "Ohio", Value: 31},
		{Key: "California", Value: 26},
	})

	// Higher is better for muscle strengthening.
	assertSeries(t, in.Best5(Query{Question: qMuscle}), Series{
		{Key: "California", Value: 40},
		{Key: "Ohio", Value: 20},
	})
	assertSeries(t, in.Worst5(Query{Question: qMuscle}), Series{
		{Key: "Ohio", Value: 20},
		{Key: "California", Value: 40},
	})

	if got := in.Best5(Query{Question: qOther}); len(got) != 0 {
		t.Errorf("Best5 for unranked question = %v, want empty", got)
	}
	if got := in.Worst5(Query{Question: qOther}); len(got) != 0 {
		t.Errorf("Worst5 for unranked question = %v, want empty", got)
	}
}

func TestBest5LimitsToFive(t *testing.T) {
	var b strings.Builder
	b.WriteString("YearStart,YearEnd,LocationDesc,Question,Data_Value\n")
	for i, s := range []string{"A", "B", "C", "D", "E", "F", "G"} {
		b.WriteString("2015,2015," + s + ",\"" + qObesity + "\"," + string(rune('1'+i)) + "\n")
	}
	ds, err := ReadDataset(strings.NewReader(b.String()))
	if err != nil {
		t.Fatalf("ReadDataset: %v", err)
	}
	in := NewIngestor(ds)

	best := in.Best5(Query{Question: qObesity})
	if strings.Join(best.Keys(), "") != "ABCDE" {
		t.Errorf("Best5 keys = %v, want A..E", best.Keys())
	}
	worst := in.Worst5(Query{Question: qObesity})
	if strings.Join(worst.Keys(), "") != "GFEDC" {
		t.Errorf("Worst5 keys = %v, want G..C", worst.Keys())
	}
}

func TestGlobalMean(t *testing.T) {
	in := newTestIngestor(t)

	got := in.GlobalMean(Query{Question: qObesity})
	if !approxEqual(got["global_mean"], obesityGlobalMean) {
		t.Errorf("global_mean = %v, want %v", got["global_mean"], obesityGlobalMean)
	}

	got = in.GlobalMean(Query{})
	if v, ok := got["global_mean"]; !ok || v != 0 {
		t.Errorf("GlobalMean without question = %v, want global_mean 0", got)
	}
}

func TestDiffFromMean(t *testing.T) {
	in := newTestIngestor(t)

	got, err := in.DiffFromMean(Query{Question: qObesity})
	if err != nil {
		t.Fatalf("DiffFromMean: %v", err)
	}
	assertSeries(t, got, Series{
		{Key: "Ohio", Value: obesityGlobalMean - 31},
		{Key: "California", Value: obesityGlobalMean - 26},
		{Key: "Texas", Value: obesityGlobalMean - 34},
	})

	if _, err := in.DiffFromMean(Query{}); !errors.Is(err, ErrMissingParam) {
		t.Errorf("DiffFromMean without question error = %v, want ErrMissingParam", err)
	}
}

func TestStateDiffFromMean(t *testing.T) {
	in := newTestIngestor(t)

	assertSeries(t, in.StateDiffFromMean(Query{Question: qObesity, State: "Ohio"}),
		Series{{Key: "Ohio", Value: obesityGlobalMean - 31}})

	// A state without data is measured against zero.
	assertSeries(t, in.StateDiffFromMean(Query{Question: qObesity, State: "Guam"}),
		Series{{Key: "Guam", Value: obesityGlobalMean}})

	if got := in.StateDiffFromMean(Query{Question: qObesity}); len(got) != 0 {
		t.Errorf("StateDiffFromMean without state = %v, want empty", got)
	}
}

func TestMeanByCategory(t *testing.T) {
	in := newTestIngestor(t)

	assertSeries(t, in.MeanByCategory(Query{Question: qObesity}), Series{
		{Key: "('California', 'Sex', 'Female')", Value: 25},
		{Key: "('California', 'Sex', 'Male')", Value: 27},
		{Key: "('Ohio', 'Age (years)', '18 - 24')", Value: 31},
		{Key: "('Ohio', 'Sex', 'Female')", Value: 100},
		{Key: "('Texas', 'Sex', 'Male')", Value: 50},
	})
}

func TestStateMeanByCategory(t *testing.T) {
	in := newTestIngestor(t)

	got := in.StateMeanByCategory(Query{Question: qObesity, State: "Ohio"})
	if len(got) != 1 {
		t.Fatalf("StateMeanByCategory = %v, want one state", got)
	}
	assertSeries(t, got["Ohio"], Series{
		{Key: "('Age (years)', '18 - 24')", Value: 31},
		{Key: "('Sex', 'Female')", Value: 100},
	})

	if got := in.StateMeanByCategory(Query{Question: qObesity, State: "Atlantis"}); len(got) != 0 {
		t.Errorf("StateMeanByCategory for unknown state = %v, want empty", got)
	}
}

func TestRegistryComputeEncodesInOrder(t *testing.T) {
	reg := newTestRegistry(t)
	params := json.RawMessage(`{"question":"` + qObesity + `"}`)

	tests := []struct {
		kind string
		want string
	}{
		{"states_mean", `{"California":26,"Ohio":31,"Texas":34}`},
		{"worst5", `{"Texas":34,"Ohio":31,"California":26}`},
		{"state_mean", `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			res, err := reg.Compute(context.Background(), tt.kind, params)
			if err != nil {
				t.Fatalf("Compute: %v", err)
			}
			data, err := json.Marshal(res)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			if string(data) != tt.want {
				t.Errorf("result = %s, want %s", data, tt.want)
			}
		})
	}
}

func TestRegistryStateMeanByCategoryEncoding(t *testing.T) {
	reg := newTestRegistry(t)
	params := json.RawMessage(`{"question":"` + qObesity + `","state":"Ohio"}`)

	res, err := reg.Compute(context.Background(), "state_mean_by_category", params)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	data, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"Ohio":{"('Age (years)', '18 - 24')":31,"('Sex', 'Female')":100}}`
	if string(data) != want {
		t.Errorf("result = %s, want %s", data, want)
	}
}

func TestRegistryUnknownKind(t *testing.T) {
	reg := newTestRegistry(t)

	_, err := reg.Compute(context.Background(), "median", nil)
	if !errors.Is(err, ErrUnknownKind) {
		t.Errorf("Compute unknown kind error = %v, want ErrUnknownKind", err)
	}
	if reg.Has("median") {
		t.Error("Has(median) = true")
	}
}

func TestRegistryListSortedAndComplete(t *testing.T) {
	reg := newTestRegistry(t)

	list := reg.List()
	if len(list) != 9 {
		t.Fatalf("List() returned %d analyses, want 9", len(list))
	}
	for i := 1; i < len(list); i++ {
		if list[i-1].Kind >= list[i].Kind {
			t.Errorf("List not sorted at %d: %q >= %q", i, list[i-1].Kind, list[i].Kind)
		}
	}
	for _, d := range list {
		if d.Summary == "" || len(d.Params) == 0 {
			t.Errorf("analysis %q has incomplete description %+v", d.Kind, d)
		}
	}
}

func TestDecodeQuery(t *testing.T) {
	tests := []struct {
		name    string
		params  string
		want    Query
		wantErr bool
	}{
		{"empty", "", Query{}, false},
		{"null", "null", Query{}, false},
		{"object", `{"question":"q","state":"Ohio"}`, Query{Question: "q", State: "Ohio"}, false},
		{"extra fields", `{"question":"q","year":2020}`, Query{Question: "q"}, false},
		{"array", `[1,2]`, Query{}, true},
		{"string", `"q"`, Query{}, true},
		{"wrong type", `{"question":5}`, Query{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeQuery(json.RawMessage(tt.params))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestSeriesMarshalJSON(t *testing.T) {
	s := Series{{Key: "b", Value: 2}, {Key: "a", Value: 1.5}}
	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(data) != `{"b":2,"a":1.5}` {
		t.Errorf("Marshal = %s", data)
	}

	var empty Series
	data, err = json.Marshal(empty)
	if err != nil {
		t.Fatalf("Marshal nil: %v", err)
	}
	if string(data) != `{}` {
		t.Errorf("Marshal nil = %s, want {}", data)
	}
}

func TestTupleKey(t *testing.T) {
	tests := []struct {
		parts []string
		want  string
	}{
		{[]string{"Ohio", "Age (years)", "18 - 24"}, "('Ohio', 'Age (years)', '18 - 24')"},
		{[]string{"Total"}, "('Total',)"},
		{[]string{"Men's health"}, `("Men's health",)`},
	}
	for _, tt := range tests {
		if got := tupleKey(tt.parts...); got != tt.want {
			t.Errorf("tupleKey(%q) = %s, want %s", tt.parts, got, tt.want)
		}
	}
}
