package analysis

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"
)

// Entry is one keyed value in a Series.
type Entry struct {
	Key   string
	Value float64
}

// Series is an ordered set of keyed values. It marshals to a JSON object whose
// members keep the series order, so rankings survive encoding.
type Series []Entry

// MarshalJSON encodes s as a JSON object in series order. A nil series
// encodes as {}.
func (s Series) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range s {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(e.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(e.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Get returns the value stored under key.
func (s Series) Get(key string) (float64, bool) {
	for _, e := range s {
		if e.Key == key {
			return e.Value, true
		}
	}
	return 0, false
}

// Keys returns the keys in series order.
func (s Series) Keys() []string {
	keys := make([]string, len(s))
	for i, e := range s {
		keys[i] = e.Key
	}
	return keys
}

// Reversed returns a copy of s in reverse order.
func (s Series) Reversed() Series {
	out := make(Series, len(s))
	for i, e := range s {
		out[len(s)-1-i] = e
	}
	return out
}

// Head returns at most the first n entries.
func (s Series) Head(n int) Series {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// sortByValue orders s ascending by value, breaking ties by key.
func (s Series) sortByValue() {
	sort.SliceStable(s, func(i, j int) bool {
		if s[i].Value != s[j].Value {
			return s[i].Value < s[j].Value
		}
		return s[i].Key < s[j].Key
	})
}

// meanAcc accumulates a running mean.
type meanAcc struct {
	sum   float64
	count int
}

func (m *meanAcc) add(v float64) {
	m.sum += v
	m.count++
}

func (m meanAcc) mean() float64 {
	if m.count == 0 {
		return 0
	}
	return m.sum / float64(m.count)
}

// tupleKey renders a group key the way the original survey API did, as a
// Python tuple literal: ('Ohio', 'Age (years)', '18 - 24').
func tupleKey(parts ...string) string {
	var b strings.Builder
	b.WriteByte('(')
	for i, p := range parts {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(quoteLiteral(p))
	}
	if len(parts) == 1 {
		b.WriteByte(',')
	}
	b.WriteByte(')')
	return b.String()
}

// quoteLiteral single-quotes s, switching to double quotes when s contains a
// single quote but no double quote.
func quoteLiteral(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	if strings.Contains(s, "'") && !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	return "'" + strings.ReplaceAll(s, "'", `\'`) + "'"
}
