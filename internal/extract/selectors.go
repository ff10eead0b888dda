package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/spherical/table-extractor/internal/domain"
)

// AllColumns keeps every column.
var AllColumns domain.ColumnSelector = domain.SelectorFunc(
	func(_ context.Context, headers domain.Row, _ []domain.Row) (domain.HeaderSet, error) {
		return domain.NewHeaderSet(headers...), nil
	},
)

// FixedSelector selects columns by name without asking anyone. Names match
// exactly first, then case-insensitively after trimming.
type FixedSelector struct {
	Names []string
}

// ColumnsSelector returns AllColumns for an empty list and a FixedSelector
// otherwise.
func ColumnsSelector(names []string) domain.ColumnSelector {
	var cleaned []string
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			cleaned = append(cleaned, n)
		}
	}
	if len(cleaned) == 0 {
		return AllColumns
	}
	return &FixedSelector{Names: cleaned}
}

// ParseColumns splits a comma separated column list.
func ParseColumns(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return strings.Split(s, ",")
}

// SelectColumns implements domain.ColumnSelector.
func (f *FixedSelector) SelectColumns(_ context.Context, headers domain.Row, _ []domain.Row) (domain.HeaderSet, error) {
	if len(f.Names) == 0 {
		return nil, domain.ErrNoColumnsSelected
	}

	selected := make(domain.HeaderSet)
	var unknown []string
	for _, name := range f.Names {
		if matched := matchHeader(headers, name); len(matched) > 0 {
			for _, h := range matched {
				selected[h] = struct{}{}
			}
			continue
		}
		unknown = append(unknown, name)
	}

	if len(unknown) > 0 {
		return nil, domain.ValidationError(
			fmt.Sprintf("unknown columns %s (available: %s)",
				strings.Join(unknown, ", "), strings.Join(headers, ", ")),
			nil,
		)
	}
	return selected, nil
}

func matchHeader(headers domain.Row, name string) []string {
	for _, h := range headers {
		if h == name {
			return []string{h}
		}
	}

	var matched []string
	for _, h := range headers {
		if strings.EqualFold(strings.TrimSpace(h), strings.TrimSpace(name)) {
			matched = append(matched, h)
		}
	}
	return matched
}
