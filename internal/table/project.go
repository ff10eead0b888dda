package table

import "github.com/spherical/table-extractor/internal/domain"

// ColumnIndices returns the positions of header cells present in selected,
// left to right.
func ColumnIndices(header domain.Row, selected domain.HeaderSet) []int {
	var idx []int
	for i, h := range header {
		if selected.Contains(h) {
			idx = append(idx, i)
		}
	}
	return idx
}

// Project keeps the selected columns of t in header order. Rows shorter
// than a kept index get "" for that cell.
func Project(t domain.Table, selected domain.HeaderSet) (domain.Table, error) {
	if len(t) == 0 {
		return nil, domain.ErrEmptyTable
	}

	idx := ColumnIndices(t.Header(), selected)
	if len(idx) == 0 {
		return nil, domain.ErrNoColumnsSelected
	}

	out := make(domain.Table, len(t))
	for r, row := range t {
		projected := make(domain.Row, len(idx))
		for c, i := range idx {
			if i < len(row) {
				projected[c] = row[i]
			}
		}
		out[r] = projected
	}
	return out, nil
}

// Preview returns the header and up to domain.PreviewRows data rows.
func Preview(t domain.Table) (domain.Row, []domain.Row) {
	data := t.Data()
	if len(data) > domain.PreviewRows {
		data = data[:domain.PreviewRows]
	}

	preview := make([]domain.Row, len(data))
	for i, row := range data {
		preview[i] = row.Clone()
	}
	return t.Header().Clone(), preview
}
