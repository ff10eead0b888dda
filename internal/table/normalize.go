// Package table turns model output into rows and columns.
package table

import (
	"strings"

	"github.com/spherical/table-extractor/internal/domain"
)

var lineBreaks = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// Normalize splits raw model output into trimmed lines, dropping blank
// lines and markdown code fences. It never fails; empty input yields an
// empty slice.
func Normalize(raw string) []string {
	lines := strings.Split(lineBreaks.Replace(raw), "\n")

	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, domain.FenceMarker) {
			continue
		}
		out = append(out, line)
	}
	return out
}
