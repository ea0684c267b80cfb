// Package rag indexes extracted documents in an embedded vector store and
// answers questions from the passages closest to them.
package rag

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sort"
	"strconv"

	"github.com/google/uuid"
	"github.com/philippgille/chromem-go"

	"learnhub/internal/chunker"
	"learnhub/internal/generator"
	"learnhub/internal/logger"
	"learnhub/internal/models"
	"learnhub/internal/repair"
)

const collectionName = "documents"

// Metadata keys stored with every passage.
const (
	metaUser     = "user_id"
	metaPublic   = "is_public"
	metaDocument = "document_id"
	metaFilename = "filename"
	metaChunk    = "chunk"
)

// ErrEmptyQuery is returned for a blank question.
var ErrEmptyQuery = errors.New("query text is empty")

// LLM writes the final answer.
type LLM interface {
	Generate(ctx context.Context, prompt string, media []models.Media) (string, error)
}

// Config sizes the passages and the number retrieved per query.
type Config struct {
	Path         string
	Compress     bool
	ChunkSize    int
	ChunkOverlap int
	TopK         int
}

// Store wraps a chromem collection shared by every user. Passages carry
// their owner and visibility so queries only see what the caller may read.
type Store struct {
	db      *chromem.DB
	coll    *chromem.Collection
	chunker *chunker.TextChunker
	llm     LLM
	prompts *generator.PromptBuilder
	topK    int
	log     *logger.Logger
}

// Open opens the persistent store at cfg.Path, or an in-memory one when the
// path is empty.
func Open(cfg Config, embed chromem.EmbeddingFunc, llm LLM, prompts *generator.PromptBuilder, log *logger.Logger) (*Store, error) {
	var (
		db  *chromem.DB
		err error
	)
	if cfg.Path == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(cfg.Path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("open vector store at %s: %w", cfg.Path, err)
		}
	}
	return New(db, cfg, embed, llm, prompts, log)
}

// New uses an existing chromem database.
func New(db *chromem.DB, cfg Config, embed chromem.EmbeddingFunc, llm LLM, prompts *generator.PromptBuilder, log *logger.Logger) (*Store, error) {
	ch, err := chunker.NewText(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("rag chunker: %w", err)
	}
	if cfg.TopK <= 0 {
		return nil, fmt.Errorf("rag top k must be positive, got %d", cfg.TopK)
	}
	coll, err := db.GetOrCreateCollection(collectionName, nil, normalized(embed))
	if err != nil {
		return nil, fmt.Errorf("open collection %s: %w", collectionName, err)
	}
	if prompts == nil {
		prompts = generator.NewPromptBuilder()
	}
	return &Store{
		db:      db,
		coll:    coll,
		chunker: ch,
		llm:     llm,
		prompts: prompts,
		topK:    cfg.TopK,
		log:     log,
	}, nil
}

// Count returns the number of stored passages.
func (s *Store) Count() int { return s.coll.Count() }

// Document is text to index.
type Document struct {
	ID       uuid.UUID
	UserID   string
	IsPublic bool
	Filename string
	Text     string
}

// AddResult reports what Add stored.
type AddResult struct {
	DocumentID uuid.UUID `json:"document_id"`
	Filename   string    `json:"filename"`
	Chunks     int       `json:"chunks"`
}

// Add splits doc into passages, embeds them and stores them.
func (s *Store) Add(ctx context.Context, doc Document) (*AddResult, error) {
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	chunks := s.chunker.Chunk(doc.Text)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("document %s has no text to index", doc.Filename)
	}

	docs := make([]chromem.Document, len(chunks))
	for i, c := range chunks {
		docs[i] = chromem.Document{
			ID:      fmt.Sprintf("%s-%d", doc.ID, c.Index),
			Content: c.Text,
			Metadata: map[string]string{
				metaUser:     doc.UserID,
				metaPublic:   strconv.FormatBool(doc.IsPublic),
				metaDocument: doc.ID.String(),
				metaFilename: doc.Filename,
				metaChunk:    strconv.Itoa(c.Index),
			},
		}
	}
	if err := s.coll.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return nil, fmt.Errorf("index %s: %w", doc.Filename, err)
	}
	s.log.Info("Indexed document", "document_id", doc.ID, "filename", doc.Filename, "chunks", len(docs))
	return &AddResult{DocumentID: doc.ID, Filename: doc.Filename, Chunks: len(docs)}, nil
}

// Source is a passage an answer was based on.
type Source struct {
	DocumentID string  `json:"document_id"`
	Filename   string  `json:"filename"`
	Chunk      int     `json:"chunk"`
	Similarity float32 `json:"similarity"`
	Content    string  `json:"content"`
}

// Answer is the response to a query.
type Answer struct {
	Query   string   `json:"query"`
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
}

// Retrieve returns up to TopK passages visible to userID: their own and
// every public one, most similar first.
func (s *Store) Retrieve(ctx context.Context, userID, query string) ([]Source, error) {
	if query == "" {
		return nil, ErrEmptyQuery
	}
	n := min(s.topK, s.coll.Count())
	if n == 0 {
		return nil, nil
	}

	seen := make(map[string]Source)
	filters := []map[string]string{{metaPublic: "true"}}
	if userID != "" {
		filters = append(filters, map[string]string{metaUser: userID})
	}
	for _, where := range filters {
		results, err := s.coll.Query(ctx, query, n, where, nil)
		if err != nil {
			return nil, fmt.Errorf("query vector store: %w", err)
		}
		for _, r := range results {
			seen[r.ID] = toSource(r)
		}
	}

	out := make([]Source, 0, len(seen))
	for _, src := range seen {
		out = append(out, src)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		if out[i].DocumentID != out[j].DocumentID {
			return out[i].DocumentID < out[j].DocumentID
		}
		return out[i].Chunk < out[j].Chunk
	})
	if len(out) > s.topK {
		out = out[:s.topK]
	}
	return out, nil
}

// Query answers query from the passages Retrieve finds. With no passages
// the LLM is not called.
func (s *Store) Query(ctx context.Context, userID, query string) (*Answer, error) {
	sources, err := s.Retrieve(ctx, userID, query)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return &Answer{Query: query, Answer: "No documents are available to answer this question.", Sources: []Source{}}, nil
	}

	passages := make([]string, len(sources))
	for i, src := range sources {
		passages[i] = src.Content
	}
	text, err := s.llm.Generate(ctx, s.prompts.Answer(query, passages), nil)
	if err != nil {
		return nil, fmt.Errorf("answer query: %w", err)
	}
	return &Answer{Query: query, Answer: text, Sources: sources}, nil
}

func toSource(r chromem.Result) Source {
	chunk, _ := strconv.Atoi(r.Metadata[metaChunk])
	return Source{
		DocumentID: r.Metadata[metaDocument],
		Filename:   r.Metadata[metaFilename],
		Chunk:      chunk,
		Similarity: r.Similarity,
		Content:    r.Content,
	}
}

// normalized scales every embedding to unit length; chromem scores passages
// by dot product.
func normalized(embed chromem.EmbeddingFunc) chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		v, err := embed(ctx, text)
		if err != nil {
			return nil, err
		}
		var norm float64
		for _, x := range v {
			norm += float64(x) * float64(x)
		}
		if norm == 0 {
			return nil, fmt.Errorf("embedding of %q is a zero vector", repair.Sample(text, 40))
		}
		norm = math.Sqrt(norm)
		out := make([]float32, len(v))
		for i, x := range v {
			out[i] = float32(float64(x) / norm)
		}
		return out, nil
	}
}
