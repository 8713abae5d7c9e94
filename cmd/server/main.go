package main

import (
	"context"
	"log"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	mymem "github.com/maxfong/my-mem-mcp"
	memorystore "github.com/maxfong/my-mem-mcp/memory_store"
	"github.com/maxfong/my-mem-mcp/memory_store/providers/embedder"
	cachedembedder "github.com/maxfong/my-mem-mcp/memory_store/providers/embedder/cached"
	openaiembedder "github.com/maxfong/my-mem-mcp/memory_store/providers/embedder/openai"
	"github.com/maxfong/my-mem-mcp/memory_store/providers/persister"
	filepersister "github.com/maxfong/my-mem-mcp/memory_store/providers/persister/file"
	httpserver "github.com/maxfong/my-mem-mcp/server/http"
	mcpserver "github.com/maxfong/my-mem-mcp/server/mcp"
)

var (
	cfg struct {
		// Storage config
		DataDir string `help:"Directory for per-user memory collections" env:"MYMEM_DATA_DIR" default:"data"`

		// Embedder config
		EmbedderLocation string  `help:"Base URL of an OpenAI-compatible embedding endpoint" env:"MYMEM_EMBEDDER_URL" default:"http://localhost:11434/v1"`
		EmbedderKey      string  `help:"API key for the embedding endpoint" env:"MYMEM_EMBEDDER_KEY" default:""`
		Model            string  `help:"Embedding model identifier" env:"MYMEM_EMBEDDER_MODEL" default:"mxbai-embed-large"`
		CacheEmbeddings  bool    `help:"Cache embeddings for repeated texts" default:"true"`
		MinScore         float64 `help:"Minimum similarity score for search results" default:"0.5"`

		// User config
		DefaultUser string `help:"Process-wide default user id" env:"MYMEM_DEFAULT_USER" default:""`
		SessionUser string `help:"Bind every call to this user id" env:"MYMEM_SESSION_USER" default:""`

		// Transport config
		Transport      string `help:"MCP transport" enum:"stdio,sse" default:"stdio"`
		SSEAddress     string `help:"Listen address for the SSE transport" default:":8081"`
		Console        bool   `help:"Serve the HTML admin console" default:"true"`
		ConsoleAddress string `help:"Listen address for the admin console" env:"MYMEM_CONSOLE_ADDR" default:":8080"`
		Trace          bool   `help:"Record tool calls as OpenTelemetry spans" default:"false"`
	}
)

func main() {
	// Parse inputs
	_ = godotenv.Load()
	_ = kong.Parse(&cfg)
	ctx := context.Background()

	// Create persister
	p, err := filepersister.NewPersister(
		persister.WithLocation(cfg.DataDir),
	)
	if err != nil {
		log.Fatalf("failed to create persister: %v", err)
	}

	// Create embedder
	var e embedder.Embedder = openaiembedder.NewEmbedder(
		embedder.WithLocation(cfg.EmbedderLocation),
		embedder.WithApiKey(cfg.EmbedderKey),
		embedder.WithModel(cfg.Model),
	)
	if cfg.CacheEmbeddings {
		e, err = cachedembedder.NewEmbedder(
			e,
			embedder.WithModel(cfg.Model),
		)
		if err != nil {
			log.Fatalf("failed to create embedding cache: %v", err)
		}
	}

	if !e.Health(ctx) {
		log.Printf("warning: embedding endpoint %s is unreachable; add and search will fail until it is up", cfg.EmbedderLocation)
	}

	// Create store
	store, err := memorystore.New(
		memorystore.WithEmbedder(e),
		memorystore.WithPersister(p),
		memorystore.WithMinScore(cfg.MinScore),
	)
	if err != nil {
		log.Fatalf("failed to create memory store: %v", err)
	}

	// Create service
	service := mymem.New(
		store,
		mymem.WithDefaultUserId(cfg.DefaultUser),
		mymem.WithSessionUserId(cfg.SessionUser),
	)

	// Create MCP server
	recorder := mcpserver.NewLogRecorder()
	if cfg.Trace {
		recorder = mcpserver.NewMultiRecorder(recorder, mcpserver.NewOtelRecorder())
	}
	mcp := mcpserver.NewServer(
		service,
		mcpserver.WithRecorder(recorder),
	)

	g, ctx := errgroup.WithContext(ctx)

	if cfg.Console {
		console := httpserver.NewServer(
			service,
			httpserver.WithAddress(cfg.ConsoleAddress),
		)
		g.Go(func() error {
			return console.Run(ctx)
		})
	}

	g.Go(func() error {
		switch cfg.Transport {
		case "sse":
			log.Printf("serving MCP over SSE on %s", cfg.SSEAddress)
			return mcp.ServeSSE(cfg.SSEAddress)
		default:
			return mcp.ServeStdio()
		}
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
