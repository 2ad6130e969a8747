package analysis

import (
	"context"
	"fmt"
	"sort"

	"github.com/seantiz/healthstat/internal/model"
)

// Survey years considered by the per-state pipelines.
const (
	minYearStart = 2011
	maxYearEnd   = 2022
)

const rankSize = 5

// Questions where a lower percentage is the better outcome.
var questionsBestIsMin = []string{
	"Percent of adults aged 18 years and older who have an overweight classification",
	"Percent of adults aged 18 years and older who have obesity",
	"Percent of adults who engage in no leisure-time physical activity",
	"Percent of adults who report consuming fruit less than one time daily",
	"Percent of adults who report consuming vegetables less than one time daily",
}

// Questions where a higher percentage is the better outcome.
var questionsBestIsMax = []string{
	"Percent of adults who achieve at least 150 minutes a week of moderate-intensity aerobic physical activity or 75 minutes a week of vigorous-intensity aerobic activity (or an equivalent combination)",
	"Percent of adults who achieve at least 150 minutes a week of moderate-intensity aerobic physical activity or 75 minutes a week of vigorous-intensity aerobic physical activity and engage in muscle-strengthening activities on 2 or more days a week",
	"Percent of adults who achieve at least 300 minutes a week of moderate-intensity aerobic physical activity or 150 minutes a week of vigorous-intensity aerobic activity (or an equivalent combination)",
	"Percent of adults who engage in muscle-strengthening activities on 2 or more days a week",
}

// Ingestor answers the survey questions over a loaded Dataset.
type Ingestor struct {
	ds        *Dataset
	bestIsMin map[string]bool
	bestIsMax map[string]bool
}

// NewIngestor creates an Ingestor over ds.
func NewIngestor(ds *Dataset) *Ingestor {
	in := &Ingestor{
		ds:        ds,
		bestIsMin: make(map[string]bool, len(questionsBestIsMin)),
		bestIsMax: make(map[string]bool, len(questionsBestIsMax)),
	}
	for _, q := range questionsBestIsMin {
		in.bestIsMin[q] = true
	}
	for _, q := range questionsBestIsMax {
		in.bestIsMax[q] = true
	}
	return in
}

// StatesMean returns the mean value per state for the question within the
// survey years, ascending by value.
func (in *Ingestor) StatesMean(q Query) Series {
	if q.Question == "" {
		return Series{}
	}
	return in.stateMeans(q.Question, "")
}

// StateMean returns {state: mean} for one state within the survey years.
func (in *Ingestor) StateMean(q Query) Series {
	if q.Question == "" || q.State == "" {
		return Series{}
	}
	return in.stateMeans(q.Question, q.State)
}

// Best5 returns the five best states for the question.
func (in *Ingestor) Best5(q Query) Series {
	if q.Question == "" {
		return Series{}
	}
	all := in.StatesMean(q)
	switch {
	case in.bestIsMin[q.Question]:
		return all.Head(rankSize)
	case in.bestIsMax[q.Question]:
		return all.Reversed().Head(rankSize)
	}
	return Series{}
}

// Worst5 returns the five worst states for the question.
func (in *Ingestor) Worst5(q Query) Series {
	if q.Question == "" {
		return Series{}
	}
	all := in.StatesMean(q)
	switch {
	case in.bestIsMax[q.Question]:
		return all.Head(rankSize)
	case in.bestIsMin[q.Question]:
		return all.Reversed().Head(rankSize)
	}
	return Series{}
}

// GlobalMean returns {"global_mean": v} over every value for the question,
// regardless of year.
func (in *Ingestor) GlobalMean(q Query) map[string]float64 {
	return map[string]float64{"global_mean": in.globalMean(q.Question)}
}

// DiffFromMean returns global_mean - state_mean for every state with data.
func (in *Ingestor) DiffFromMean(q Query) (Series, error) {
	if q.Question == "" {
		return nil, fmt.Errorf("%w: question", ErrMissingParam)
	}

	global := in.globalMean(q.Question)
	diffs := Series{}
	for _, state := range in.ds.states {
		means := in.stateMeans(q.Question, state)
		v, ok := means.Get(state)
		if !ok {
			continue
		}
		diffs = append(diffs, Entry{Key: state, Value: global - v})
	}
	return diffs, nil
}

// StateDiffFromMean returns {state: global_mean - state_mean}. A state with
// no data counts as a mean of 0.
func (in *Ingestor) StateDiffFromMean(q Query) Series {
	if q.Question == "" || q.State == "" {
		return Series{}
	}
	global := in.globalMean(q.Question)
	v, _ := in.StateMean(q).Get(q.State)
	return Series{{Key: q.State, Value: global - v}}
}

// MeanByCategory returns the mean per (state, category, stratification),
// ordered by that tuple.
func (in *Ingestor) MeanByCategory(q Query) Series {
	if q.Question == "" {
		return Series{}
	}

	type groupKey struct{ state, category, strat string }
	groups := make(map[groupKey]*meanAcc)
	in.ds.questionRows(q.Question, func(r *Row) {
		if !r.HasValue || r.State == "" || r.Category == "" || r.Stratification == "" {
			return
		}
		k := groupKey{r.State, r.Category, r.Stratification}
		acc, ok := groups[k]
		if !ok {
			acc = &meanAcc{}
			groups[k] = acc
		}
		acc.add(r.Value)
	})

	keys := make([]groupKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.state != b.state {
			return a.state < b.state
		}
		if a.category != b.category {
			return a.category < b.category
		}
		return a.strat < b.strat
	})

	out := make(Series, 0, len(keys))
	for _, k := range keys {
		out = append(out, Entry{
			Key:   tupleKey(k.state, k.category, k.strat),
			Value: groups[k].mean(),
		})
	}
	return out
}

// StateMeanByCategory returns {state: {(category, stratification): mean}}.
func (in *Ingestor) StateMeanByCategory(q Query) map[string]Series {
	out := make(map[string]Series)
	if q.Question == "" || q.State == "" {
		return out
	}

	type groupKey struct{ category, strat string }
	groups := make(map[groupKey]*meanAcc)
	found := false
	in.ds.questionRows(q.Question, func(r *Row) {
		if r.State != q.State {
			return
		}
		found = true
		if !r.HasValue || r.Category == "" || r.Stratification == "" {
			return
		}
		k := groupKey{r.Category, r.Stratification}
		acc, ok := groups[k]
		if !ok {
			acc = &meanAcc{}
			groups[k] = acc
		}
		acc.add(r.Value)
	})
	if !found {
		return out
	}

	keys := make([]groupKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].category != keys[j].category {
			return keys[i].category < keys[j].category
		}
		return keys[i].strat < keys[j].strat
	})

	means := make(Series, 0, len(keys))
	for _, k := range keys {
		means = append(means, Entry{Key: tupleKey(k.category, k.strat), Value: groups[k].mean()})
	}
	out[q.State] = means
	return out
}

// stateMeans runs the per-state pipeline: filter by question (and state when
// non-empty), keep the survey years, drop missing values, average per state
// and sort ascending.
func (in *Ingestor) stateMeans(question, state string) Series {
	groups := make(map[string]*meanAcc)
	var order []string
	in.ds.questionRows(question, func(r *Row) {
		if state != "" && r.State != state {
			return
		}
		if r.State == "" || !r.HasValue {
			return
		}
		if r.YearStart < minYearStart || r.YearEnd > maxYearEnd {
			return
		}
		acc, ok := groups[r.State]
		if !ok {
			acc = &meanAcc{}
			groups[r.State] = acc
			order = append(order, r.State)
		}
		acc.add(r.Value)
	})

	out := make(Series, 0, len(order))
	for _, s := range order {
		out = append(out, Entry{Key: s, Value: groups[s].mean()})
	}
	out.sortByValue()
	return out
}

func (in *Ingestor) globalMean(question string) float64 {
	if question == "" {
		return 0
	}
	var acc meanAcc
	in.ds.questionRows(question, func(r *Row) {
		if r.HasValue {
			acc.add(r.Value)
		}
	})
	return acc.mean()
}

// RegisterBuiltins registers every survey analysis on reg.
func RegisterBuiltins(reg *Registry, in *Ingestor) {
	questionOnly := []string{"question"}
	questionAndState := []string{"question", "state"}

	series := func(fn func(Query) Series) func(context.Context, Query) (any, error) {
		return func(_ context.Context, q Query) (any, error) {
			return fn(q), nil
		}
	}

	reg.Register(model.KindStatesMean, Func{
		Desc: Description{Summary: "Mean value per state, ascending", Params: questionOnly},
		Fn:   series(in.StatesMean),
	})
	reg.Register(model.KindStateMean, Func{
		Desc: Description{Summary: "Mean value for one state", Params: questionAndState},
		Fn:   series(in.StateMean),
	})
	reg.Register(model.KindBest5, Func{
		Desc: Description{Summary: "Five best-performing states", Params: questionOnly},
		Fn:   series(in.Best5),
	})
	reg.Register(model.KindWorst5, Func{
		Desc: Description{Summary: "Five worst-performing states", Params: questionOnly},
		Fn:   series(in.Worst5),
	})
	reg.Register(model.KindGlobalMean, Func{
		Desc: Description{Summary: "Mean value across all states", Params: questionOnly},
		Fn: func(_ context.Context, q Query) (any, error) {
			return in.GlobalMean(q), nil
		},
	})
	reg.Register(model.KindDiffFromMean, Func{
		Desc: Description{Summary: "Global mean minus each state's mean", Params: questionOnly},
		Fn: func(_ context.Context, q Query) (any, error) {
			return in.DiffFromMean(q)
		},
	})
	reg.Register(model.KindStateDiffFromMean, Func{
		Desc: Description{Summary: "Global mean minus one state's mean", Params: questionAndState},
		Fn:   series(in.StateDiffFromMean),
	})
	reg.Register(model.KindMeanByCategory, Func{
		Desc: Description{Summary: "Mean per state and stratification", Params: questionOnly},
		Fn:   series(in.MeanByCategory),
	})
	reg.Register(model.KindStateMeanByCategory, Func{
		Desc: Description{Summary: "Mean per stratification for one state", Params: questionAndState},
		Fn: func(_ context.Context, q Query) (any, error) {
			return in.StateMeanByCategory(q), nil
		},
	})
}
