package memory

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/philippgille/chromem-go"
)

// SearchResult is one vector-tier hit.
type SearchResult struct {
	ID       string
	Score    float32
	Content  string
	Metadata map[string]string
}

// VectorStore is the semantic tier, backed by the embedded chromem-go
// database. Vectors are pre-computed by the caller; the store never calls
// an embedder itself.
type VectorStore struct {
	db          *chromem.DB
	persistPath string

	mu          sync.RWMutex
	collections map[string]*chromem.Collection

	embeddingFunc chromem.EmbeddingFunc
	logger        *slog.Logger
}

// NewVectorStore opens the vector tier. persistDir == "" keeps everything
// in memory; otherwise the database is loaded from and exported to
// persistDir/vectors.gob.
func NewVectorStore(persistDir string) (*VectorStore, error) {
	var db *chromem.DB
	if persistDir != "" {
		if err := os.MkdirAll(persistDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create vector dir: %w", err)
		}
		dbPath := filepath.Join(persistDir, "vectors.gob")
		if _, err := os.Stat(dbPath); err == nil {
			loaded, err := chromem.NewPersistentDB(dbPath, false)
			if err != nil {
				slog.Warn("failed to load existing vector database, starting fresh", "path", dbPath, "error", err)
				db = chromem.NewDB()
			} else {
				db = loaded
			}
		} else {
			db = chromem.NewDB()
		}
	} else {
		db = chromem.NewDB()
	}

	return &VectorStore{
		db:          db,
		persistPath: persistDir,
		collections: make(map[string]*chromem.Collection),
		embeddingFunc: func(ctx context.Context, text string) ([]float32, error) {
			return nil, fmt.Errorf("vectors must be pre-computed")
		},
		logger: slog.Default().With("component", "vector_store"),
	}, nil
}

func (v *VectorStore) collection(name string) (*chromem.Collection, error) {
	v.mu.RLock()
	col, ok := v.collections[name]
	v.mu.RUnlock()
	if ok {
		return col, nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if col, ok := v.collections[name]; ok {
		return col, nil
	}
	col, err := v.db.GetOrCreateCollection(name, nil, v.embeddingFunc)
	if err != nil {
		return nil, fmt.Errorf("failed to open collection %q: %w", name, err)
	}
	v.collections[name] = col
	return col, nil
}

// Upsert stores a document with its pre-computed vector. The payload's
// "content" key, when present, becomes the document body.
func (v *VectorStore) Upsert(ctx context.Context, collection, id string, vector []float32, payload map[string]any) error {
	col, err := v.collection(collection)
	if err != nil {
		return err
	}

	metadata := make(map[string]string, len(payload))
	content := ""
	for k, val := range payload {
		if k == "content" {
			if s, ok := val.(string); ok {
				content = s
				continue
			}
		}
		metadata[k] = fmt.Sprint(val)
	}

	doc := chromem.Document{ID: id, Content: content, Metadata: metadata, Embedding: vector}
	if err := col.AddDocuments(ctx, []chromem.Document{doc}, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}

	if err := v.persist(); err != nil {
		v.logger.Warn("failed to persist vector store", "error", err)
	}
	return nil
}

// Search returns the k nearest documents in a collection, optionally
// restricted by an exact-match metadata filter.
func (v *VectorStore) Search(ctx context.Context, collection string, query []float32, k int, filter map[string]string) ([]SearchResult, error) {
	col, err := v.collection(collection)
	if err != nil {
		return nil, err
	}

	// chromem rejects k larger than the collection.
	if count := col.Count(); k > count {
		k = count
	}
	if k == 0 {
		return nil, nil
	}

	hits, err := col.QueryEmbedding(ctx, query, k, filter, nil)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	out := make([]SearchResult, 0, len(hits))
	for _, h := range hits {
		out = append(out, SearchResult{
			ID:       h.ID,
			Score:    h.Similarity,
			Content:  h.Content,
			Metadata: h.Metadata,
		})
	}
	return out, nil
}

// Close exports the database when persistence is enabled.
func (v *VectorStore) Close() error {
	return v.persist()
}

func (v *VectorStore) persist() error {
	if v.persistPath == "" {
		return nil
	}
	dbPath := filepath.Join(v.persistPath, "vectors.gob")
	if err := v.db.Export(dbPath, false, ""); err != nil {
		return fmt.Errorf("failed to export vector database: %w", err)
	}
	return nil
}
