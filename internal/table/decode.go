package table

import (
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"github.com/spherical/table-extractor/internal/domain"
)

// Decode parses normalized lines as comma-separated values.
//
// Quoted fields follow the usual rules: "" is a literal quote and commas
// inside quotes do not split. A quote inside an unquoted field is kept as
// is (5'11" stays 5'11"). Cells are trimmed and rows whose cells are all
// blank are dropped.
//
// Decode returns domain.ErrEmptyTable when no row survives and a
// *domain.MalformedCSVError when a quoted field is still open at the end
// of the input.
func Decode(lines []string) (domain.Table, error) {
	var t domain.Table
	for pos := 0; pos < len(lines); {
		next, err := decodeFrom(lines, pos, &t)
		if err != nil {
			return nil, err
		}
		pos = next
	}

	if len(t) == 0 {
		return nil, domain.ErrEmptyTable
	}
	return t, nil
}

// decodeFrom reads records strictly starting at lines[pos]. On the first
// parse error the offending record is re-read with relaxed quoting and
// the index of the line after it is returned so reading can resume there.
func decodeFrom(lines []string, pos int, t *domain.Table) (int, error) {
	r := csv.NewReader(strings.NewReader(strings.Join(lines[pos:], "\n")))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	for {
		record, err := r.Read()
		if err == io.EOF {
			return len(lines), nil
		}
		next := -1
		if err != nil {
			var pe *csv.ParseError
			if !errors.As(err, &pe) {
				return 0, err
			}
			record, next, err = recoverRecord(lines, pos+pe.StartLine, pos+pe.Line, pe)
			if err != nil {
				return 0, err
			}
		}

		if row, ok := cleanRow(record); ok {
			*t = append(*t, row)
		}
		if next >= 0 {
			return next, nil
		}
	}
}

// recoverRecord re-reads the record starting at 1-based line start with
// relaxed quoting, first through line end and then one more line at a
// time while a quoted field is still open. It returns the fields and the
// index of the first line after the record.
func recoverRecord(lines []string, start, end int, pe *csv.ParseError) ([]string, int, error) {
	if start < 1 || start > len(lines) {
		return nil, 0, &domain.MalformedCSVError{Line: start, Err: pe}
	}
	end = min(max(end, start), len(lines))

	for {
		fields, ok := splitRelaxed(strings.Join(lines[start-1:end], "\n"))
		if ok {
			return fields, end, nil
		}
		if end == len(lines) {
			return nil, 0, &domain.MalformedCSVError{
				Line: start,
				Text: lines[start-1],
				Err:  csv.ErrQuote,
			}
		}
		end++
	}
}

// splitRelaxed splits one record without rejecting stray quotes. Text
// after a closing quote is appended to the field, and quotes inside an
// unquoted field are literal. ok is false when the record ends inside a
// quoted field.
func splitRelaxed(text string) (fields []string, ok bool) {
	var (
		field   strings.Builder
		quoted  bool
		closed  bool
		started bool
	)

	flush := func() {
		fields = append(fields, field.String())
		field.Reset()
		quoted, closed, started = false, false, false
	}

	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case quoted && !closed:
			if c != '"' {
				field.WriteByte(c)
				continue
			}
			if i+1 < len(text) && text[i+1] == '"' {
				field.WriteByte('"')
				i++
				continue
			}
			closed = true
		case c == ',':
			flush()
		case c == '"' && !started:
			quoted, started = true, true
		case (c == ' ' || c == '\t') && !started:
			// leading space before a possible opening quote
		default:
			started = true
			field.WriteByte(c)
		}
	}

	if quoted && !closed {
		return nil, false
	}
	flush()
	return fields, true
}

func cleanRow(record []string) (domain.Row, bool) {
	row := make(domain.Row, len(record))
	blank := true
	for i, cell := range record {
		row[i] = strings.TrimSpace(cell)
		if row[i] != "" {
			blank = false
		}
	}
	return row, !blank
}
