// Command pull-policies refreshes the shared policy index: it crawls the
// policy publisher's index page, downloads every linked PDF, optionally
// mirrors the raw files into the archive, then chunks, embeds, and loads
// everything into the vector store. The load is truncate-and-reload: the
// collection is recreated on every run so removed policies disappear from the
// index.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/generative-ai-go/genai"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"golang.org/x/net/html"
	"google.golang.org/api/option"

	"policychat-backend/config"
	"policychat-backend/llm"
	"policychat-backend/loader"
	"policychat-backend/models"
	"policychat-backend/splitter"
	"policychat-backend/storage"
	"policychat-backend/vectorindex"
)

const (
	embedBatchSize = 100
	batchPause     = 100 * time.Millisecond
)

func main() {
	corpusDir := flag.String("corpus", "./policies", "directory holding (or receiving) the policy PDFs")
	skipFetch := flag.Bool("skip-fetch", false, "index the existing corpus directory without crawling")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		if err := godotenv.Load("../../.env"); err != nil {
			log.Warn("No .env file found, using environment variables")
		}
	}
	cfg := config.Load()

	ctx := context.Background()

	if !*skipFetch {
		indexURL := os.Getenv("POLICY_INDEX_URL")
		if indexURL == "" {
			log.Fatal("POLICY_INDEX_URL environment variable is required (or pass -skip-fetch)")
		}
		if err := fetchCorpus(ctx, indexURL, *corpusDir); err != nil {
			log.Fatal("Failed to fetch policy corpus", "error", err)
		}
	}

	embedder, cleanupLLM, err := initEmbedder(cfg)
	if err != nil {
		log.Fatal("Failed to initialize embedder", "error", err)
	}
	defer cleanupLLM()

	store, cleanupStore, err := initPolicyStore(cfg)
	if err != nil {
		log.Fatal("Failed to initialize policy index", "error", err)
	}
	defer cleanupStore()

	if err := buildIndex(ctx, cfg, embedder, store, *corpusDir); err != nil {
		log.Fatal("Failed to build policy index", "error", err)
	}
	log.Info("Policy index rebuilt", "collection", cfg.PolicyCollection)
}

// fetchCorpus crawls the index page, collects every PDF link whose href
// matches POLICY_LINK_PATTERN (all PDFs when unset), and downloads them into
// corpusDir. Already-downloaded files are overwritten so a re-run picks up
// revised policies.
func fetchCorpus(ctx context.Context, indexURL, corpusDir string) error {
	if err := os.MkdirAll(corpusDir, 0755); err != nil {
		return fmt.Errorf("failed to create corpus directory: %w", err)
	}

	var linkRe *regexp.Regexp
	if pattern := os.Getenv("POLICY_LINK_PATTERN"); pattern != "" {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("invalid POLICY_LINK_PATTERN: %w", err)
		}
		linkRe = re
	}

	client := &http.Client{Timeout: 2 * time.Minute}
	links, err := collectPDFLinks(ctx, client, indexURL, linkRe)
	if err != nil {
		return err
	}
	if len(links) == 0 {
		return fmt.Errorf("no PDF links found at %s", indexURL)
	}
	log.Info("Found policy documents", "count", len(links), "index", indexURL)

	var archive storage.Archive
	if os.Getenv("ARCHIVE_BACKEND") != "" {
		archive, err = storage.NewArchiveFromEnv()
		if err != nil {
			return fmt.Errorf("failed to initialize archive: %w", err)
		}
	}
	for _, link := range links {
		name := path.Base(link)
		if err := downloadFile(ctx, client, link, filepath.Join(corpusDir, name)); err != nil {
			log.Warn("Failed to download policy, skipping", "url", link, "error", err)
			continue
		}
		log.Info("Downloaded policy", "file", name)

		if archive != nil {
			f, err := os.Open(filepath.Join(corpusDir, name))
			if err != nil {
				return err
			}
			archivePath, err := archive.Put(ctx, name, f)
			f.Close()
			if err != nil {
				log.Warn("Failed to mirror policy into archive", "file", name, "error", err)
			} else {
				log.Info("Mirrored policy", "file", name, "archive_path", archivePath)
			}
		}
	}
	return nil
}

// collectPDFLinks crawls up to two hops from the index page. PDF anchors on
// the index are taken directly; same-host non-PDF links (filtered by linkRe
// when set) are followed one level deep, since the publisher's index usually
// links to per-policy detail pages that in turn link the PDFs.
func collectPDFLinks(ctx context.Context, client *http.Client, page string, linkRe *regexp.Regexp) ([]string, error) {
	base, err := url.Parse(page)
	if err != nil {
		return nil, fmt.Errorf("invalid index URL: %w", err)
	}

	doc, err := fetchPage(ctx, client, page)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch index page: %w", err)
	}

	seen := make(map[string]bool)
	var links []string
	add := func(resolved string) {
		if !seen[resolved] {
			seen[resolved] = true
			links = append(links, resolved)
		}
	}

	var detailPages []string
	followed := map[string]bool{base.String(): true}
	for _, href := range anchorHrefs(doc) {
		ref, err := url.Parse(href)
		if err != nil {
			continue
		}
		resolved := base.ResolveReference(ref)
		resolved.Fragment = ""
		if isPDFLink(href) {
			if linkRe == nil || linkRe.MatchString(href) {
				add(resolved.String())
			}
			continue
		}
		if resolved.Host != base.Host {
			continue
		}
		if linkRe != nil && !linkRe.MatchString(href) {
			continue
		}
		if !followed[resolved.String()] {
			followed[resolved.String()] = true
			detailPages = append(detailPages, resolved.String())
		}
	}

	for _, detail := range detailPages {
		detailDoc, err := fetchPage(ctx, client, detail)
		if err != nil {
			log.Warn("Failed to fetch policy page, skipping", "url", detail, "error", err)
			continue
		}
		detailBase, err := url.Parse(detail)
		if err != nil {
			continue
		}
		for _, href := range anchorHrefs(detailDoc) {
			if !isPDFLink(href) {
				continue
			}
			ref, err := url.Parse(href)
			if err != nil {
				continue
			}
			add(detailBase.ResolveReference(ref).String())
		}
	}
	return links, nil
}

func fetchPage(ctx context.Context, client *http.Client, page string) (*html.Node, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, page, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("page returned status %d", resp.StatusCode)
	}
	return html.Parse(resp.Body)
}

// anchorHrefs returns every <a href> value in document order.
func anchorHrefs(doc *html.Node) []string {
	var hrefs []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key == "href" && attr.Val != "" {
					hrefs = append(hrefs, attr.Val)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return hrefs
}

func isPDFLink(href string) bool {
	return strings.HasSuffix(strings.ToLower(href), ".pdf")
}

func downloadFile(ctx context.Context, client *http.Client, srcURL, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srcURL, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download returned status %d", resp.StatusCode)
	}

	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(dest)
		return err
	}
	return f.Close()
}

// buildIndex loads the corpus, chunks and embeds it in batches, and reloads
// the collection from scratch.
func buildIndex(ctx context.Context, cfg *config.Config, embedder llm.Embedder, store vectorindex.Store, corpusDir string) error {
	docs, err := loader.LoadDir(corpusDir)
	if err != nil {
		return fmt.Errorf("failed to load corpus: %w", err)
	}
	if len(docs) == 0 {
		return fmt.Errorf("no loadable documents in %s", corpusDir)
	}

	split := splitter.NewRecursiveCharacter(cfg.ChunkSize, cfg.ChunkOverlap)
	chunks := models.FilterComplexMetadata(split.SplitDocuments(docs))
	log.Info("Chunked corpus", "documents", len(docs), "chunks", len(chunks))

	vectors := make([][]float64, 0, len(chunks))
	for i := 0; i < len(chunks); i += embedBatchSize {
		end := i + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		texts := make([]string, end-i)
		for j := i; j < end; j++ {
			texts[j-i] = chunks[j].Text
		}

		batch, err := embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return fmt.Errorf("failed to embed batch starting at %d: %w", i, err)
		}
		vectors = append(vectors, batch...)
		log.Info("Embedded batch", "done", end, "total", len(chunks))

		if end < len(chunks) {
			time.Sleep(batchPause)
		}
	}
	if len(vectors) != len(chunks) || len(vectors[0]) == 0 {
		return fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	if err := store.Recreate(ctx, len(vectors[0])); err != nil {
		return fmt.Errorf("failed to recreate collection: %w", err)
	}
	for i := 0; i < len(chunks); i += embedBatchSize {
		end := i + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		if err := store.Upsert(ctx, chunks[i:end], vectors[i:end]); err != nil {
			return fmt.Errorf("failed to upsert batch starting at %d: %w", i, err)
		}
	}
	return nil
}

// initEmbedder builds the embedding client for the configured backend.
func initEmbedder(cfg *config.Config) (llm.Embedder, func(), error) {
	switch cfg.LLMBackend {
	case "gemini":
		if cfg.GeminiAPIKey == "" {
			return nil, nil, fmt.Errorf("GEMINI_API_KEY environment variable is required")
		}
		client, err := genai.NewClient(context.Background(), option.WithAPIKey(cfg.GeminiAPIKey))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create Gemini client: %w", err)
		}
		gc := llm.NewGeminiClient(client, llm.GeminiConfig{
			EmbeddingModel:  cfg.GeminiEmbeddingModel,
			GenerationModel: cfg.GeminiGenerationModel,
		})
		return gc, func() { client.Close() }, nil

	case "ollama":
		oc := llm.NewOllamaClient(llm.OllamaConfig{
			BaseURL:        cfg.OllamaURL,
			EmbeddingModel: cfg.OllamaEmbeddingModel,
		})
		return oc, func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown LLM backend: %s", cfg.LLMBackend)
	}
}

// initPolicyStore mirrors the server's backend selection.
func initPolicyStore(cfg *config.Config) (vectorindex.Store, func(), error) {
	switch cfg.VectorBackend {
	case "qdrant":
		store := vectorindex.NewQdrant(vectorindex.QdrantConfig{
			URL:        cfg.QdrantURL,
			APIKey:     cfg.QdrantAPIKey,
			Collection: cfg.PolicyCollection,
		})
		return store, func() {}, nil

	case "pgvector":
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create Postgres pool: %w", err)
		}
		if err := pool.Ping(context.Background()); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("failed to ping Postgres: %w", err)
		}
		store, err := vectorindex.NewPgvector(pool, cfg.PolicyCollection)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		return store, func() { pool.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown vector backend: %s", cfg.VectorBackend)
	}
}
