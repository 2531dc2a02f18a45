package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"personal-rag/internal/config"
	"personal-rag/internal/embedding"
	"personal-rag/internal/helper"
	"personal-rag/internal/indexer"
	"personal-rag/internal/ingestion"
	"personal-rag/internal/intent"
	"personal-rag/internal/llmservice"
	"personal-rag/internal/models"
	"personal-rag/internal/parser"
	"personal-rag/internal/rag"
	"personal-rag/internal/retrieval"
	"personal-rag/internal/session"
	"personal-rag/internal/tokenizer"
	"personal-rag/internal/vectorstore"
)

const configFilePath = "./configs/config.yaml"

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Caller().Logger()

	configPath := flag.String("config", configFilePath, "Path to the config file")
	filePath := flag.String("file", "", "Path to a document to upload")
	query := flag.String("query", "", "Query to be answered")
	sessionID := flag.String("session", "", "Session id for the query")
	chat := flag.Bool("chat", false, "Read queries from stdin in one session")
	runIndexer := flag.Bool("index", false, "Run the document indexer until interrupted")
	scanOnce := flag.Bool("scan-once", false, "Index new or changed documents once and exit")
	ingestNew := flag.Bool("ingest-new", false, "Re-ingest every document in the documents directory")
	health := flag.Bool("health", false, "Report vector store health")
	dryRun := flag.Bool("dry-run", false, "Dry run, process the file without saving to the vector store")
	summarize := flag.Bool("summarize", false, "Print a summary of the -file document instead of storing it")
	flag.Parse()

	if *filePath != "" && (*query != "" || *chat) {
		log.Fatal().Msg("Please provide either a document file using the -file flag or a query, but not both")
	}
	if *summarize && *filePath == "" {
		log.Fatal().Msg("Please provide the document to summarize with the -file flag")
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading config")
	}
	setLogLevel(cfg.Log.Level)
	log.Debug().Interface("config", redacted(cfg)).Msg("Loaded config")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *summarize {
		generator, err := llmservice.New(ctx, &cfg.InferenceLLM)
		if err != nil {
			log.Fatal().Err(err).Msg("Error initializing generative service")
		}
		summary, err := summarizeFile(ctx, generator, *filePath)
		if err != nil {
			log.Fatal().Err(err).Msg("Error summarizing file")
		}
		log.Info().Msg("Summary: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
		fmt.Printf("%s\n\n", summary)
		return
	}

	embedder, err := embedding.New(&cfg.EmbedLLM)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing embedder")
	}
	pipeline := ingestion.NewPipeline(tokenizer.Default(), cfg.RAG.ChunkSize, embedder)

	if *filePath != "" && *dryRun {
		processFile(ctx, pipeline, *filePath)
		return
	}

	if !(*filePath != "" || *query != "" || *chat || *runIndexer || *scanOnce || *ingestNew || *health) {
		flag.Usage()
		os.Exit(2)
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Error opening vector store")
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing vector store")
		}
	}()

	switch {
	case *filePath != "":
		uploadFile(ctx, pipeline, store, *filePath)
	case *runIndexer, *scanOnce, *ingestNew:
		ix := indexer.New(cfg.Indexer, pipeline, store)
		runIndexing(ctx, ix, *runIndexer, *ingestNew)
	case *health:
		r := newRAG(ctx, cfg, store, embedder)
		helper.PrettyPrint(r.Health(ctx))
	case *chat:
		chatLoop(ctx, newRAG(ctx, cfg, store, embedder), *sessionID)
	default:
		answerQuery(ctx, newRAG(ctx, cfg, store, embedder), *query, *sessionID)
	}
}

func setLogLevel(level string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

func redacted(cfg *config.Config) config.Config {
	c := *cfg
	for _, key := range []*string{&c.EmbedLLM.Key, &c.InferenceLLM.Key, &c.VectorStore.EncryptionKey, &c.VectorStore.Qdrant.APIKey, &c.Database.DSN} {
		if *key != "" {
			*key = "***"
		}
	}
	return c
}

func openStore(ctx context.Context, cfg *config.Config) (vectorstore.Store, error) {
	if cfg.VectorStore.Backend == "chromem" {
		if err := helper.CreateFolder(cfg.VectorStore.Path); err != nil {
			return nil, fmt.Errorf("failed to create vector store folder: %w", err)
		}
	}
	return vectorstore.Open(ctx, cfg)
}

func newRAG(ctx context.Context, cfg *config.Config, store vectorstore.Store, embedder embedding.Embedder) *rag.RAG {
	generator, err := llmservice.New(ctx, &cfg.InferenceLLM)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing generative service")
	}
	decider, err := retrieval.New(cfg.Retrieval.Strategy, generator)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing retrieval decision")
	}
	classifier, err := intent.Load(cfg.Intent.TaxonomyPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading intent taxonomy")
	}

	return rag.NewRAG(rag.Dependencies{
		Store:      store,
		Embedder:   embedder,
		Generator:  generator,
		Sessions:   session.NewStore(cfg.Session),
		Decider:    decider,
		Classifier: classifier,
	}, cfg.RAG)
}

func processFile(ctx context.Context, pipeline *ingestion.Pipeline, filePath string) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error reading file")
	}
	chunks := pipeline.Process(ctx, data, filepath.Base(filePath))
	log.Info().Int("chunks", len(chunks)).Msg("Processed document")
	helper.PrettyPrint(withoutEmbeddings(chunks))
}

type summarizer interface {
	Summarize(ctx context.Context, text string) string
}

func summarizeFile(ctx context.Context, s summarizer, filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	text, err := parser.ExtractText(data, filepath.Base(filePath))
	if err != nil {
		return "", fmt.Errorf("failed to extract text: %w", err)
	}
	text = parser.NormalizeWhitespace(text)
	if text == "" {
		return "", fmt.Errorf("no text found in %s", filepath.Base(filePath))
	}
	summary := s.Summarize(ctx, text)
	if llmservice.IsErrorAnswer(summary) {
		return "", errors.New(summary)
	}
	return summary, nil
}

func uploadFile(ctx context.Context, pipeline *ingestion.Pipeline, store vectorstore.Store, filePath string) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error reading file")
	}
	result, err := pipeline.Upload(ctx, store, data, filepath.Base(filePath))
	if err != nil {
		log.Error().Err(err).Msg("Error storing document")
	}
	if result != nil {
		result.Chunks = withoutEmbeddings(result.Chunks)
		helper.PrettyPrint(result)
	}
}

func runIndexing(ctx context.Context, ix *indexer.Indexer, forever, force bool) {
	switch {
	case forever:
		if err := ix.Run(ctx); err != nil {
			log.Fatal().Err(err).Msg("Indexer stopped")
		}
	case force:
		added, err := ix.IngestNew(ctx)
		if err != nil {
			log.Error().Err(err).Msg("Error ingesting documents")
		}
		helper.PrettyPrint(map[string]any{"chunks_added": added})
	default:
		report, err := ix.ScanOnce(ctx)
		if err != nil {
			log.Error().Err(err).Msg("Error scanning documents")
		}
		helper.PrettyPrint(report)
	}
}

func answerQuery(ctx context.Context, r *rag.RAG, query, sessionID string) string {
	response, err := r.Query(ctx, models.QueryRequest{Query: query, SessionID: sessionID})
	if err != nil {
		log.Error().Err(err).Msg("Error querying")
		return sessionID
	}

	log.Info().Msg("Query: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	fmt.Printf("%s\n\n", query)

	log.Info().Msg("Source: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	fmt.Printf("%s\n\n", strings.Join(response.Sources, "\n"))

	log.Info().Msg("Assistant: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	fmt.Printf("%s\n\n", response.Answer)

	log.Debug().
		Str("session_id", response.SessionID).
		Bool("used_documents", response.UsedDocuments).
		Interface("intent", response.IntentAnalysis).
		Msg("Query details")
	return response.SessionID
}

func chatLoop(ctx context.Context, r *rag.RAG, sessionID string) {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			sessionID = answerQuery(ctx, r, line, sessionID)
		}
		fmt.Print("> ")
	}
}

func withoutEmbeddings(chunks []models.Chunk) []models.Chunk {
	out := make([]models.Chunk, len(chunks))
	for i, c := range chunks {
		c.Embedding = nil
		out[i] = c
	}
	return out
}
