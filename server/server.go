package server

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Epistemic-Technology/exam-mcp/internal/config"
	"github.com/Epistemic-Technology/exam-mcp/internal/logger"
	"github.com/Epistemic-Technology/exam-mcp/internal/storage"
	"github.com/Epistemic-Technology/exam-mcp/resources"
	"github.com/Epistemic-Technology/exam-mcp/tools"
)

func CreateServer(log logger.Logger) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "exam-mcp", Version: "v0.1.0"}, nil)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration: %v", err)
	}
	if cfg.APIKey() == "" {
		log.Warn("No oracle API key configured, extraction will use the deterministic path only")
	}

	store, err := initializeStorage(cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize storage: %v", err)
	}

	RegisterTools(server, store, cfg, log)
	RegisterResources(server, store)

	return server
}

// RegisterTools adds the exam tools to server
func RegisterTools(server *mcp.Server, store storage.Store, cfg *config.Config, log logger.Logger) {
	mcp.AddTool(server, tools.ExamExtractTool(), func(ctx context.Context, req *mcp.CallToolRequest, query tools.ExamExtractQuery) (*mcp.CallToolResult, *tools.ExamExtractResponse, error) {
		return tools.ExamExtractToolHandler(ctx, req, query, store, cfg, log)
	})

	mcp.AddTool(server, tools.ExamAnswerKeyTool(), func(ctx context.Context, req *mcp.CallToolRequest, query tools.ExamAnswerKeyQuery) (*mcp.CallToolResult, *tools.ExamAnswerKeyResponse, error) {
		return tools.ExamAnswerKeyToolHandler(ctx, req, query, store, cfg, log)
	})

	mcp.AddTool(server, tools.ExamCollectionExtractTool(), func(ctx context.Context, req *mcp.CallToolRequest, query tools.ExamCollectionExtractQuery) (*mcp.CallToolResult, *tools.ExamCollectionExtractResponse, error) {
		return tools.ExamCollectionExtractToolHandler(ctx, req, query, store, cfg, log)
	})

	mcp.AddTool(server, tools.ExamListTool(), func(ctx context.Context, req *mcp.CallToolRequest, query tools.ExamListQuery) (*mcp.CallToolResult, *tools.ExamListResponse, error) {
		return tools.ExamListToolHandler(ctx, req, query, store, log)
	})

	mcp.AddTool(server, tools.ExamZoteroSearchTool(), func(ctx context.Context, req *mcp.CallToolRequest, query tools.ExamZoteroSearchQuery) (*mcp.CallToolResult, *tools.ExamZoteroSearchResponse, error) {
		return tools.ExamZoteroSearchToolHandler(ctx, req, query, store, cfg, log)
	})
}

// RegisterResources adds the exam:// resource templates to server
func RegisterResources(server *mcp.Server, store storage.Store) {
	handler := resources.NewExamResourceHandler(store)
	read := func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		return handler.ReadResource(ctx, req.Params.URI)
	}

	templates := []*mcp.ResourceTemplate{
		{
			URITemplate: "exam://{documentId}",
			Name:        "exam",
			Description: "Extracted exam with title, description, questions and answer summary",
			MIMEType:    "application/json",
		},
		{
			URITemplate: "exam://{documentId}/questions",
			Name:        "exam-questions",
			Description: "All questions of the exam in order",
			MIMEType:    "application/json",
		},
		{
			URITemplate: "exam://{documentId}/questions/{index}",
			Name:        "exam-question",
			Description: "A specific question of the exam (1-indexed)",
			MIMEType:    "application/json",
		},
		{
			URITemplate: "exam://{documentId}/images/{imageId}",
			Name:        "exam-image",
			Description: "An image bound to a question, by its IMG_n identifier",
		},
	}
	for _, t := range templates {
		server.AddResourceTemplate(t, read)
	}
}

// initializeStorage opens the store selected by the configuration
func initializeStorage(cfg *config.Config, log logger.Logger) (storage.Store, error) {
	if cfg.DatabaseURL != "" {
		log.Info("Connecting to Postgres database")
	} else {
		dbPath, err := cfg.ResolveDBPath()
		if err != nil {
			return nil, err
		}
		log.Info("Initializing SQLite database at: %s", dbPath)
	}
	return storage.Open(context.Background(), cfg)
}
