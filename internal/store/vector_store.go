// Package store implements the vector index: sqlite-backed document storage
// with embedding blobs and cosine nearest-neighbor search. Documents live in
// named collections (summaries, chunks, brains, tools) so one database file
// serves every index the engine needs.
package store

import (
	"context"
	"crypto/md5"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sync"

	"cortex/internal/embedding"
	"cortex/internal/logging"
	"cortex/internal/types"
)

// Collection names used by the engine.
const (
	CollectionSummaries = "summaries"
	CollectionChunks    = "chunks"
	CollectionBrains    = "brains"
	CollectionTools     = "tools"
)

// VectorStore is the process-wide vector index. Entry-level atomicity is
// provided by sqlite; the mutex serializes writes per the single-writer
// discipline of the indexing pipeline.
type VectorStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	engine embedding.Engine
}

// Open opens (or creates) the store at path. Use ":memory:" for tests.
func Open(path string, engine embedding.Engine) (*VectorStore, error) {
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	schema := `CREATE TABLE IF NOT EXISTS documents (
		id         TEXT NOT NULL,
		collection TEXT NOT NULL,
		filename   TEXT NOT NULL DEFAULT '',
		content    TEXT NOT NULL,
		embedding  BLOB,
		metadata   TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (collection, id)
	);
	CREATE INDEX IF NOT EXISTS idx_documents_filename ON documents(collection, filename);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	logging.Store("vector store opened at %s (driver=%s, engine=%s)", path, driverName, engine.Name())
	return &VectorStore{db: db, engine: engine}, nil
}

// Close releases the database handle.
func (s *VectorStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// DocumentID derives a stable id for a document so re-adds replace instead
// of duplicating.
func DocumentID(doc types.Document) string {
	if doc.ID != "" {
		return doc.ID
	}
	h := md5.New()
	h.Write([]byte(doc.Filename()))
	h.Write([]byte{0})
	h.Write([]byte(doc.ChunkType()))
	h.Write([]byte{0})
	h.Write([]byte(doc.Metadata[types.MetaClass]))
	h.Write([]byte{0})
	h.Write([]byte(doc.Metadata[types.MetaMethod]))
	h.Write([]byte{0})
	h.Write([]byte(doc.Text))
	return hex.EncodeToString(h.Sum(nil))
}

// Add embeds and upserts documents into a collection. Re-adding a document
// with the same metadata keys replaces the earlier row.
func (s *VectorStore) Add(ctx context.Context, collection string, docs []types.Document) error {
	if len(docs) == 0 {
		return nil
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
	}
	vectors, err := s.engine.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed %d documents: %w", len(docs), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO documents
		(id, collection, filename, content, embedding, metadata) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, doc := range docs {
		meta, err := json.Marshal(doc.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		if _, err := stmt.Exec(DocumentID(doc), collection, doc.Filename(), doc.Text, encodeVector(vectors[i]), string(meta)); err != nil {
			return fmt.Errorf("failed to insert document: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit insert: %w", err)
	}
	logging.Store("added %d documents to %s", len(docs), collection)
	return nil
}

// Search returns the topK documents in a collection nearest to the query.
func (s *VectorStore) Search(ctx context.Context, collection, query string, topK int) ([]types.Document, error) {
	if topK <= 0 {
		topK = 5
	}
	queryVec, err := s.engine.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content, embedding, metadata FROM documents WHERE collection = ? AND embedding IS NOT NULL`,
		collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []types.Document
	var vectors [][]float32
	for rows.Next() {
		var doc types.Document
		var blob []byte
		var meta string
		if err := rows.Scan(&doc.ID, &doc.Text, &blob, &meta); err != nil {
			continue
		}
		if meta != "" {
			_ = json.Unmarshal([]byte(meta), &doc.Metadata)
		}
		docs = append(docs, doc)
		vectors = append(vectors, decodeVector(blob))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	matches := embedding.TopK(queryVec, vectors, topK)
	out := make([]types.Document, 0, len(matches))
	for _, m := range matches {
		out = append(out, docs[m.Index])
	}
	return out, nil
}

// DeleteByFilename tombstones every document of a file within a collection.
// The incremental indexer uses this when a source file is removed.
func (s *VectorStore) DeleteByFilename(collection, filename string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec(`DELETE FROM documents WHERE collection = ? AND filename = ?`, collection, filename)
	if err != nil {
		return fmt.Errorf("failed to delete documents for %s: %w", filename, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		logging.Store("deleted %d documents for %s from %s", n, filename, collection)
	}
	return nil
}

// Count returns the number of documents in a collection.
func (s *VectorStore) Count(collection string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM documents WHERE collection = ?`, collection).Scan(&n)
	return n, err
}

// Clear drops every document in a collection.
func (s *VectorStore) Clear(collection string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`DELETE FROM documents WHERE collection = ?`, collection)
	return err
}

// encodeVector serializes an embedding as little-endian float32 bytes.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeVector is the inverse of encodeVector.
func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
