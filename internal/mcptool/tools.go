// Package mcptool exposes table extraction as MCP tools over stdio.
package mcptool

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/spherical/table-extractor/internal/domain"
	"github.com/spherical/table-extractor/internal/extract"
	"github.com/spherical/table-extractor/internal/sink"
)

// ServerName is the implementation name reported to MCP clients.
const ServerName = "table-extractor"

// Backend runs the extraction pipeline for tool calls.
type Backend interface {
	Parse(ctx context.Context, raw string, selector domain.ColumnSelector) (domain.Table, error)
	Process(ctx context.Context, imagePath string, selector domain.ColumnSelector, outDir string, events chan<- domain.StageEvent) (*extract.Result, error)
}

var columnsSchema = map[string]interface{}{
	"type":        "array",
	"items":       map[string]interface{}{"type": "string"},
	"description": "Header names to keep. All columns are kept when omitted.",
}

// MetadataParseTableResponse describes the parse_table_response tool.
var MetadataParseTableResponse = &mcp.Tool{
	Name: "parse_table_response",
	Description: "Parse a vision model's CSV answer into a table. " +
		"Markdown code fences and blank lines are ignored. " +
		"Returns the header, the data rows and the projected table as CSV text.",
	InputSchema: map[string]interface{}{
		"type":     "object",
		"required": []string{"content"},
		"properties": map[string]interface{}{
			"content": map[string]interface{}{
				"type":        "string",
				"description": "Raw model response holding CSV text",
			},
			"columns": columnsSchema,
		},
	},
}

// MetadataExtractTable describes the extract_table tool.
var MetadataExtractTable = &mcp.Tool{
	Name: "extract_table",
	Description: "Send a local image to the vision model, parse the table it returns " +
		"and write results.csv next to the image or into output_dir.",
	InputSchema: map[string]interface{}{
		"type":     "object",
		"required": []string{"path"},
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Path to a png, jpg, bmp, gif or webp image",
			},
			"output_dir": map[string]interface{}{
				"type":        "string",
				"description": "Directory for results.csv. Defaults to the image's directory.",
			},
			"columns": columnsSchema,
		},
	},
}

// InputParseTableResponse is the input for the parse_table_response tool.
type InputParseTableResponse struct {
	Content string   `json:"content"`
	Columns []string `json:"columns,omitempty"`
}

// InputExtractTable is the input for the extract_table tool.
type InputExtractTable struct {
	Path      string   `json:"path"`
	OutputDir string   `json:"output_dir,omitempty"`
	Columns   []string `json:"columns,omitempty"`
}

// OutputTable is returned by both tools.
type OutputTable struct {
	Header   []string   `json:"header"`
	Rows     [][]string `json:"rows"`
	CSV      string     `json:"csv"`
	Location string     `json:"location,omitempty"`
}

// Tools binds tool handlers to a backend.
type Tools struct {
	backend Backend
}

// NewTools creates tool handlers for backend.
func NewTools(backend Backend) *Tools {
	return &Tools{backend: backend}
}

// ParseTableResponse runs the parsing pipeline on a model response.
func (t *Tools) ParseTableResponse(ctx context.Context, _ *mcp.CallToolRequest, input InputParseTableResponse) (*mcp.CallToolResult, OutputTable, error) {
	if strings.TrimSpace(input.Content) == "" {
		return nil, OutputTable{}, fmt.Errorf("content is required")
	}

	table, err := t.backend.Parse(ctx, input.Content, extract.ColumnsSelector(input.Columns))
	if err != nil {
		return nil, OutputTable{}, err
	}

	out, err := toOutput(table)
	return nil, out, err
}

// ExtractTable runs a full extraction on a local image.
func (t *Tools) ExtractTable(ctx context.Context, _ *mcp.CallToolRequest, input InputExtractTable) (*mcp.CallToolResult, OutputTable, error) {
	if strings.TrimSpace(input.Path) == "" {
		return nil, OutputTable{}, fmt.Errorf("path is required")
	}

	res, err := t.backend.Process(ctx, input.Path, extract.ColumnsSelector(input.Columns), input.OutputDir, nil)
	if err != nil {
		return nil, OutputTable{}, err
	}

	out, err := toOutput(res.Table)
	out.Location = res.Location
	return nil, out, err
}

func toOutput(table domain.Table) (OutputTable, error) {
	text, err := sink.EncodeString(table)
	if err != nil {
		return OutputTable{}, err
	}

	rows := make([][]string, 0, len(table.Data()))
	for _, row := range table.Data() {
		rows = append(rows, row)
	}
	return OutputTable{
		Header: table.Header(),
		Rows:   rows,
		CSV:    text,
	}, nil
}
