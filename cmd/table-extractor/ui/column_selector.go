package ui

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/spherical/table-extractor/internal/domain"
)

// PromptSelector asks on a terminal which columns to keep. Every column is
// ticked by default: an empty answer keeps them all, "none" keeps nothing.
type PromptSelector struct {
	In  io.Reader
	Out io.Writer

	// BeforePrompt and AfterPrompt run around the interaction, e.g. to pause
	// a spinner.
	BeforePrompt func()
	AfterPrompt  func()

	once  sync.Once
	lines chan readResult
}

type readResult struct {
	line string
	err  error
}

// SelectColumns implements domain.ColumnSelector.
func (p *PromptSelector) SelectColumns(ctx context.Context, headers domain.Row, preview []domain.Row) (domain.HeaderSet, error) {
	if p.BeforePrompt != nil {
		p.BeforePrompt()
	}
	if p.AfterPrompt != nil {
		defer p.AfterPrompt()
	}
	p.once.Do(p.startReader)

	fmt.Fprintln(p.Out)
	headerColor.Fprintln(p.Out, "Preview")
	rows := make([][]string, len(preview))
	for i, r := range preview {
		rows[i] = r
	}
	Table(p.Out, headers, rows)

	fmt.Fprintln(p.Out)
	fmt.Fprintln(p.Out, "Columns:")
	for i, h := range headers {
		fmt.Fprintf(p.Out, "  %d. %s\n", i+1, h)
	}

	for {
		fmt.Fprint(p.Out, "Columns to include (e.g. 1,3 or 2-4; Enter for all, \"none\" for nothing): ")

		line, err := p.readLine(ctx)
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}

		selected, perr := ParseSelection(line, headers)
		if perr == nil {
			return selected, nil
		}
		if errors.Is(err, io.EOF) {
			return nil, perr
		}
		errorColor.Fprintf(p.Out, "✗ %v\n", perr)
	}
}

// startReader reads In line by line for the lifetime of the selector. A
// line read after a cancelled prompt waits for the next prompt.
func (p *PromptSelector) startReader() {
	p.lines = make(chan readResult)
	go func() {
		defer close(p.lines)
		r := bufio.NewReader(p.In)
		for {
			line, err := r.ReadString('\n')
			p.lines <- readResult{line: line, err: err}
			if err != nil {
				return
			}
		}
	}()
}

func (p *PromptSelector) readLine(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r, ok := <-p.lines:
		if !ok {
			return "", io.EOF
		}
		return strings.TrimSpace(r.line), r.err
	}
}

// ParseSelection turns an answer such as "1,3-4,Price" into a header set.
// Numbers are 1-based; other tokens match header names case-insensitively.
func ParseSelection(input string, headers domain.Row) (domain.HeaderSet, error) {
	input = strings.TrimSpace(input)
	switch strings.ToLower(input) {
	case "", "all", "*":
		return domain.NewHeaderSet(headers...), nil
	case "none":
		return domain.HeaderSet{}, nil
	}

	selected := make(domain.HeaderSet)
	for _, tok := range strings.Split(input, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}

		if lo, hi, ok := strings.Cut(tok, "-"); ok {
			from, errFrom := strconv.Atoi(strings.TrimSpace(lo))
			to, errTo := strconv.Atoi(strings.TrimSpace(hi))
			if errFrom == nil && errTo == nil {
				if from < 1 || to > len(headers) || from > to {
					return nil, fmt.Errorf("range %q is outside 1-%d", tok, len(headers))
				}
				for i := from; i <= to; i++ {
					selected[headers[i-1]] = struct{}{}
				}
				continue
			}
		}

		if n, err := strconv.Atoi(tok); err == nil {
			if n < 1 || n > len(headers) {
				return nil, fmt.Errorf("column %d is outside 1-%d", n, len(headers))
			}
			selected[headers[n-1]] = struct{}{}
			continue
		}

		found := false
		for _, h := range headers {
			if strings.EqualFold(strings.TrimSpace(h), tok) {
				selected[h] = struct{}{}
				found = true
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown column %q", tok)
		}
	}
	return selected, nil
}
