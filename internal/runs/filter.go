package runs

import (
	"fmt"
	"strconv"
	"strings"
)

// Filter is a predicate in the LangSmith run filter grammar
type Filter interface {
	String() string
}

type comparison struct {
	op    string
	field string
	value any
}

func (c comparison) String() string {
	return fmt.Sprintf("%s(%s, %s)", c.op, c.field, formatValue(c.value))
}

type logical struct {
	op       string
	operands []Filter
}

func (l logical) String() string {
	parts := make([]string, len(l.operands))
	for i, f := range l.operands {
		parts[i] = f.String()
	}
	return l.op + "(" + strings.Join(parts, ", ") + ")"
}

// Eq matches runs whose field equals value
func Eq(field string, value any) Filter {
	return comparison{op: "eq", field: field, value: value}
}

// And matches runs satisfying every operand. Nil operands are dropped and
// a single operand is returned as is.
func And(filters ...Filter) Filter {
	return combine("and", filters)
}

// Or matches runs satisfying any operand, with the same collapsing as And
func Or(filters ...Filter) Filter {
	return combine("or", filters)
}

func combine(op string, filters []Filter) Filter {
	kept := make([]Filter, 0, len(filters))
	for _, f := range filters {
		if f != nil {
			kept = append(kept, f)
		}
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	default:
		return logical{op: op, operands: kept}
	}
}

// IsRoot matches top-level runs
func IsRoot() Filter { return Eq("is_root", true) }

// ID matches one run id
func ID(id string) Filter { return Eq("id", id) }

// Name matches an exact run name
func Name(name string) Filter { return Eq("name", name) }

// TraceID matches every run of one trace
func TraceID(id string) Filter { return Eq("trace_id", id) }

// Metadata matches runs carrying key=value in their metadata
func Metadata(key, value string) Filter {
	return And(Eq("metadata_key", key), Eq("metadata_value", value))
}

// AnyName matches runs named any of names
func AnyName(names ...string) Filter {
	filters := make([]Filter, len(names))
	for i, n := range names {
		filters[i] = Name(n)
	}
	return Or(filters...)
}

// Render returns the wire form of f, "" for a nil filter
func Render(f Filter) string {
	if f == nil {
		return ""
	}
	return f.String()
}

func formatValue(v any) string {
	switch val := v.(type) {
	case string:
		return strconv.Quote(val)
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return strconv.Quote(fmt.Sprint(val))
	}
}
