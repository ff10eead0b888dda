package table

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{
			name: "empty input",
			raw:  "",
			want: []string{},
		},
		{
			name: "fenced csv",
			raw:  "```csv\nName,Age\nAlice,30\nBob,\n```",
			want: []string{"Name,Age", "Alice,30", "Bob,"},
		},
		{
			name: "fences and blank lines only",
			raw:  "```\n\n   \n```\n",
			want: []string{},
		},
		{
			name: "windows and old mac line endings",
			raw:  "a,b\r\n1,2\r3,4",
			want: []string{"a,b", "1,2", "3,4"},
		},
		{
			name: "lines are trimmed",
			raw:  "  a,b  \n\t1,2\t",
			want: []string{"a,b", "1,2"},
		},
		{
			name: "indented fence is dropped",
			raw:  "   ```csv\nx\n   ```",
			want: []string{"x"},
		},
		{
			name: "prose is kept",
			raw:  "Here is the table:\n```\nx,y\n```",
			want: []string{"Here is the table:", "x,y"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.raw))
		})
	}
}
