package narrative

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	jsonrepair "github.com/RealAlexandreAI/json-repair"
	hjson "github.com/hjson/hjson-go/v4"
)

// Parse stages, from strictest to most lenient.
const (
	StageJSON      = "json"
	StageRepair    = "jsonrepair"
	StageHJSON     = "hjson"
	StageTruncated = "truncated"
)

// Entry is one age of a backend response after coercion. Missing numeric
// fields are nil.
type Entry struct {
	Age   int
	Open  *float64
	Close *float64
	High  *float64
	Low   *float64
	Brief string
}

var fieldAliases = map[string][]string{
	"age":   {"age", "年龄", "岁"},
	"open":  {"open", "开盘", "o"},
	"close": {"close", "收盘", "c"},
	"high":  {"high", "最高", "h"},
	"low":   {"low", "最低", "l"},
	"brief": {"brief", "reason", "narrative", "summary", "comment", "点评", "简评"},
}

// ParseEntries extracts the first well-formed array of objects from a
// backend response. Prose around the array, code fences, trailing commas,
// single quotes and comments are tolerated. It reports the stage that
// succeeded.
func ParseEntries(text string) ([]Entry, string, error) {
	for _, cand := range arrayCandidates(text) {
		if items, stage, ok := decodeArray(cand); ok {
			return coerce(items), stage, nil
		}
	}
	// A response cut off mid-array has no balanced candidate.
	if i := strings.IndexByte(text, '['); i >= 0 {
		if repaired, err := jsonrepair.RepairJSON(text[i:]); err == nil {
			if items, ok := objects(unmarshalStd(repaired)); ok {
				return coerce(items), StageTruncated, nil
			}
		}
	}
	return nil, "", fmt.Errorf("%w: no JSON array of objects found", ErrParse)
}

func decodeArray(cand string) ([]map[string]any, string, bool) {
	if items, ok := objects(unmarshalStd(cand)); ok {
		return items, StageJSON, true
	}
	if repaired, err := jsonrepair.RepairJSON(cand); err == nil {
		if items, ok := objects(unmarshalStd(repaired)); ok {
			return items, StageRepair, true
		}
	}
	var v any
	if err := hjson.Unmarshal([]byte(cand), &v); err == nil {
		if items, ok := objects(v); ok {
			return items, StageHJSON, true
		}
	}
	return nil, "", false
}

func unmarshalStd(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil
	}
	return v
}

// objects accepts an array with at least one object, or an object wrapping
// such an array.
func objects(v any) ([]map[string]any, bool) {
	switch t := v.(type) {
	case []any:
		out := make([]map[string]any, 0, len(t))
		for _, e := range t {
			if m, ok := e.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out, len(out) > 0
	case map[string]any:
		for _, inner := range t {
			if out, ok := objects(inner); ok {
				if _, nested := inner.([]any); nested {
					return out, true
				}
			}
		}
	}
	return nil, false
}

// arrayCandidates returns every bracket-balanced [...] span, in order of
// their opening bracket. Brackets inside string literals are ignored.
func arrayCandidates(text string) []string {
	var out []string
	for start := 0; start < len(text); start++ {
		if text[start] != '[' {
			continue
		}
		if end := matchBracket(text, start); end > start {
			out = append(out, text[start:end+1])
		}
	}
	return out
}

func matchBracket(text string, start int) int {
	depth := 0
	var quote byte
	for i := start; i < len(text); i++ {
		ch := text[i]
		if quote != 0 {
			switch ch {
			case '\\':
				i++
			case quote:
				quote = 0
			}
			continue
		}
		switch ch {
		case '"', '\'':
			quote = ch
		case '[', '{':
			depth++
		case ']', '}':
			depth--
			if depth == 0 {
				if ch == ']' {
					return i
				}
				return -1
			}
			if depth < 0 {
				return -1
			}
		}
	}
	return -1
}

func coerce(items []map[string]any) []Entry {
	out := make([]Entry, 0, len(items))
	for i, m := range items {
		e := Entry{Age: i + 1}
		if v, ok := field(m, "age"); ok {
			if n, ok := number(v); ok && n >= 1 {
				e.Age = int(math.Round(n))
			}
		}
		e.Open = optNumber(m, "open")
		e.Close = optNumber(m, "close")
		e.High = optNumber(m, "high")
		e.Low = optNumber(m, "low")
		if v, ok := field(m, "brief"); ok {
			if s, ok := v.(string); ok {
				e.Brief = strings.TrimSpace(s)
			}
		}
		out = append(out, e)
	}
	return out
}

func field(m map[string]any, name string) (any, bool) {
	for _, alias := range fieldAliases[name] {
		for k, v := range m {
			if strings.EqualFold(strings.TrimSpace(k), alias) {
				return v, true
			}
		}
	}
	return nil, false
}

func optNumber(m map[string]any, name string) *float64 {
	v, ok := field(m, name)
	if !ok {
		return nil
	}
	n, ok := number(v)
	if !ok {
		return nil
	}
	return &n
}

func number(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = n
	case string:
		n, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(t), "%"), 64)
		if err != nil {
			return 0, false
		}
		f = n
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
