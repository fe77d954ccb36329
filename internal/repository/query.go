package repository

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"cardfolio-api/internal/model"
)

// applyQuery filters, orders and limits records in memory. Stores that cannot
// push the whole query down to the backend finish it here.
func applyQuery(records []Record, q Query) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if matches(r.Data, q.Filters) {
			out = append(out, r)
		}
	}

	if q.OrderBy != "" {
		sort.SliceStable(out, func(i, j int) bool {
			c := compareValues(out[i].Data[q.OrderBy], out[j].Data[q.OrderBy])
			if q.Descending {
				return c > 0
			}
			return c < 0
		})
	}

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

func matches(doc model.Document, filters []Filter) bool {
	for _, f := range filters {
		v, ok := doc[f.Field]
		if f.Op == OpArrayContains {
			if !arrayContains(v, f.Value) {
				return false
			}
			continue
		}
		if !ok || v == nil {
			return false
		}
		c := compareValues(v, f.Value)
		switch f.Op {
		case OpEqual:
			if c != 0 {
				return false
			}
		case OpNotEqual:
			if c == 0 {
				return false
			}
		case OpLess:
			if c >= 0 {
				return false
			}
		case OpLessEqual:
			if c > 0 {
				return false
			}
		case OpGreater:
			if c <= 0 {
				return false
			}
		case OpGreaterEqual:
			if c < 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func arrayContains(arr, want any) bool {
	doc := model.Document{"v": arr}
	for _, s := range doc.Strings("v") {
		if compareValues(s, want) == 0 {
			return true
		}
	}
	return false
}

// compareValues orders values of the canonical document types. Times and
// numbers compare by value; nil sorts first; mismatched types compare by
// their string form.
func compareValues(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}

	da := model.Document{"v": a}
	db := model.Document{"v": b}

	if ta, ok := a.(time.Time); ok {
		if tb, ok := db.Time("v"); ok {
			return ta.Compare(tb)
		}
	}
	if _, ok := b.(time.Time); ok {
		return -compareValues(b, a)
	}

	if isNumber(a) || isNumber(b) {
		na, okA := da.Decimal("v")
		nb, okB := db.Decimal("v")
		if okA && okB {
			return na.Cmp(nb)
		}
	}

	if ba, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			switch {
			case ba == bb:
				return 0
			case !ba:
				return -1
			default:
				return 1
			}
		}
	}

	sa, okA := a.(string)
	sb, okB := b.(string)
	if okA && okB {
		return strings.Compare(sa, sb)
	}
	return 0
}

func isNumber(v any) bool {
	switch v.(type) {
	case int, int32, int64, float64, decimal.Decimal:
		return true
	}
	return false
}

// mergeDocument applies partial onto base in place, resolving the array
// sentinels against the stored value.
func mergeDocument(base, partial model.Document) {
	for k, v := range partial {
		switch op := v.(type) {
		case ArrayUnion:
			current := base.Strings(k)
			for _, item := range op {
				if !containsString(current, item) {
					current = append(current, item)
				}
			}
			if current == nil {
				current = []string{}
			}
			base[k] = current
		case ArrayRemove:
			current := base.Strings(k)
			kept := make([]string, 0, len(current))
			for _, item := range current {
				if !containsString(op, item) {
					kept = append(kept, item)
				}
			}
			base[k] = kept
		default:
			base[k] = v
		}
	}
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
