package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fabfab/ragstack/api"
	"github.com/fabfab/ragstack/config"
	"github.com/fabfab/ragstack/document"
	"github.com/fabfab/ragstack/embeddings"
	"github.com/fabfab/ragstack/llm"
	"github.com/fabfab/ragstack/rag"
	"github.com/fabfab/ragstack/vectorstore"
	"github.com/fabfab/ragstack/websearch"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	switch os.Args[1] {
	case "serve":
		serveCmd(cfg, logger)
	case "chat":
		chatCmd(cfg, logger)
	case "ingest":
		ingestCmd(cfg, logger, os.Args[2:])
	case "clear":
		clearCmd(cfg, logger, os.Args[2:])
	case "info":
		infoCmd(cfg, logger)
	default:
		logger.Error("unknown command", zap.String("command", os.Args[1]))
		printUsage()
		os.Exit(1)
	}
}

// buildService constructs the pipeline with all of its collaborators. The
// returned store must be closed by the caller.
func buildService(ctx context.Context, cfg config.Config, logger *zap.Logger) (*rag.Service, vectorstore.Store, error) {
	store, err := vectorstore.New(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("vector store setup: %w", err)
	}

	embedder, err := embeddings.NewEmbedder(cfg)
	if err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("embedder setup: %w", err)
	}

	llmClient, err := llm.NewClient(cfg)
	if err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("llm setup: %w", err)
	}

	web := websearch.NewProvider(cfg)
	processor := document.NewProcessor(cfg.ChunkSize, logger)

	svc := rag.NewService(store, embedder, llmClient, web, processor, logger, rag.Options{
		EmbeddingProvider: cfg.Embeddings.Provider,
		VectorBackend:     cfg.VectorBackend,
		TopK:              cfg.TopK,
	})

	if err := svc.Init(ctx); err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("pipeline init: %w", err)
	}

	return svc, store, nil
}

func serveCmd(cfg config.Config, logger *zap.Logger) {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	svc, store, err := buildService(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("startup failed", zap.Error(err))
	}
	defer store.Close()

	uploads, err := document.NewUploads(cfg.UploadDir)
	if err != nil {
		logger.Fatal("upload store setup", zap.Error(err))
	}

	server := api.NewServer(svc, uploads, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(cfg.HTTPAddr)
	}()

	select {
	case err := <-errCh:
		logger.Fatal("server failed", zap.Error(err))
	case <-ctx.Done():
		logger.Info("shutting down")
		if err := server.Stop(context.Background()); err != nil {
			logger.Warn("shutdown error", zap.Error(err))
		}
	}
}

func chatCmd(cfg config.Config, logger *zap.Logger) {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	svc, store, err := buildService(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("startup failed", zap.Error(err))
	}
	defer store.Close()

	fmt.Println("Ask a question, or type 'help' for commands.")

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		command, arg, _ := strings.Cut(line, " ")
		arg = strings.TrimSpace(arg)

		switch command {
		case "quit", "exit":
			return
		case "help":
			printChatHelp()
		case "info":
			info, err := svc.Info(ctx)
			if err != nil {
				fmt.Printf("Error: %v\n", err)
				continue
			}
			fmt.Printf("Embedding provider: %s\n", info.EmbeddingProvider)
			fmt.Printf("Vector backend:     %s\n", info.VectorBackend)
			fmt.Printf("Web search:         %t\n", info.WebSearchAvailable)
			fmt.Printf("Records:            %d (dimension %d)\n", info.Records, info.Dimension)
		case "ingest":
			if arg == "" {
				fmt.Println("Error: usage: ingest <path>")
				continue
			}
			chunks, err := svc.IngestFile(ctx, arg, uuid.NewString(), filepath.Base(arg))
			if err != nil {
				fmt.Printf("Error: %v\n", err)
				continue
			}
			fmt.Printf("Ingested %d chunks from %s\n", chunks, arg)
		case "ingest_folder":
			if arg == "" {
				fmt.Println("Error: usage: ingest_folder <path>")
				continue
			}
			files, chunks, err := svc.IngestDirectory(ctx, arg, uuid.NewString)
			if err != nil {
				fmt.Printf("Error: %v\n", err)
				continue
			}
			fmt.Printf("Ingested %d files (%d chunks) from %s\n", files, chunks, arg)
		default:
			answer, err := svc.Query(ctx, line, cfg.TopK)
			if err != nil {
				fmt.Printf("Error: %v\n", err)
				continue
			}
			fmt.Println(answer.Answer)
			if len(answer.Sources) > 0 {
				fmt.Println("\nSources:")
				for i, source := range answer.Sources {
					fmt.Printf("%d. %s\n", i+1, source)
				}
			}
		}
	}

	if err := scanner.Err(); err != nil {
		logger.Fatal("read input", zap.Error(err))
	}
}

func ingestCmd(cfg config.Config, logger *zap.Logger, args []string) {
	flags := flag.NewFlagSet("ingest", flag.ExitOnError)
	path := flags.String("path", "", "document file to ingest")
	dir := flags.String("dir", "", "directory of documents to ingest")
	if err := flags.Parse(args); err != nil {
		logger.Fatal("parse ingest flags", zap.Error(err))
	}
	if *path == "" && *dir == "" {
		logger.Fatal("ingest requires --path or --dir")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	svc, store, err := buildService(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("startup failed", zap.Error(err))
	}
	defer store.Close()

	if *path != "" {
		chunks, err := svc.IngestFile(ctx, *path, uuid.NewString(), filepath.Base(*path))
		if err != nil {
			logger.Fatal("ingestion failed", zap.Error(err))
		}
		fmt.Printf("Ingested %d chunks from %s\n", chunks, *path)
		return
	}

	files, chunks, err := svc.IngestDirectory(ctx, *dir, uuid.NewString)
	if err != nil {
		logger.Fatal("ingestion failed", zap.Error(err))
	}
	fmt.Printf("Ingested %d files (%d chunks) from %s\n", files, chunks, *dir)
}

func clearCmd(cfg config.Config, logger *zap.Logger, args []string) {
	flags := flag.NewFlagSet("clear", flag.ExitOnError)
	confirmed := flags.Bool("confirm", false, "skip confirmation prompt")
	if err := flags.Parse(args); err != nil {
		logger.Fatal("parse clear flags", zap.Error(err))
	}

	if !*confirmed {
		fmt.Print("This will permanently delete all indexed vectors and uploaded files. Continue? [y/N]: ")
		scanner := bufio.NewScanner(os.Stdin)
		if !scanner.Scan() {
			fmt.Println("clear aborted")
			return
		}
		answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if answer != "y" && answer != "yes" {
			fmt.Println("clear aborted")
			return
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	svc, store, err := buildService(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("startup failed", zap.Error(err))
	}
	defer store.Close()

	if err := svc.Reset(ctx); err != nil {
		logger.Fatal("clear collection", zap.Error(err))
	}

	uploads, err := document.NewUploads(cfg.UploadDir)
	if err != nil {
		logger.Fatal("upload store setup", zap.Error(err))
	}
	if err := uploads.Clear(); err != nil {
		logger.Fatal("clear uploads", zap.Error(err))
	}

	fmt.Println("All documents cleared")
}

func infoCmd(cfg config.Config, logger *zap.Logger) {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	svc, store, err := buildService(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("startup failed", zap.Error(err))
	}
	defer store.Close()

	info, err := svc.Info(ctx)
	if err != nil {
		logger.Fatal("system info", zap.Error(err))
	}

	fmt.Printf("Embedding provider: %s\n", info.EmbeddingProvider)
	fmt.Printf("Vector backend:     %s\n", info.VectorBackend)
	fmt.Printf("Web search:         %t\n", info.WebSearchAvailable)
	fmt.Printf("Records:            %d (dimension %d)\n", info.Records, info.Dimension)
}

func printChatHelp() {
	fmt.Println("Commands:")
	fmt.Println("  ingest <path>         Ingest a single document")
	fmt.Println("  ingest_folder <path>  Ingest every supported document in a folder")
	fmt.Println("  info                  Show system information")
	fmt.Println("  help                  Show this help")
	fmt.Println("  quit                  Exit")
	fmt.Println("Anything else is treated as a question.")
}

func printUsage() {
	fmt.Println("Usage: ragstack <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  serve    Run the HTTP API server")
	fmt.Println("  chat     Interactive question answering")
	fmt.Println("  ingest   Ingest documents (--path or --dir)")
	fmt.Println("  clear    Remove all indexed data and uploads")
	fmt.Println("  info     Show system information")
}
