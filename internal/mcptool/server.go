package mcptool

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// NewServer registers the tools on a new MCP server. extract_table is only
// offered when withExtract is set, since it needs a configured model.
func NewServer(backend Backend, version string, withExtract bool) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: ServerName, Version: version}, nil)

	tools := NewTools(backend)
	mcp.AddTool(server, MetadataParseTableResponse, tools.ParseTableResponse)
	if withExtract {
		mcp.AddTool(server, MetadataExtractTable, tools.ExtractTable)
	}
	return server
}

// Run serves MCP over stdin/stdout until ctx is done or the client leaves.
func Run(ctx context.Context, server *mcp.Server) error {
	return server.Run(ctx, &mcp.StdioTransport{})
}
