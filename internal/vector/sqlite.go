package vector

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
)

// SQLiteIndex stores embeddings in a sqlite table and answers queries by
// brute-force cosine similarity. Fine for the corpus sizes a single CRM
// tenant produces; swap the Index implementation if that ever changes.
type SQLiteIndex struct {
	db *sql.DB
}

func NewSQLiteIndex(db *sql.DB) (*SQLiteIndex, error) {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS documents (
		id        TEXT PRIMARY KEY,
		text      TEXT NOT NULL,
		metadata  TEXT NOT NULL DEFAULT '{}',
		embedding BLOB NOT NULL
	)`)
	if err != nil {
		return nil, fmt.Errorf("create documents table: %w", err)
	}
	return &SQLiteIndex{db: db}, nil
}

func (s *SQLiteIndex) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO documents (id, text, metadata, embedding) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET text = excluded.text, metadata = excluded.metadata, embedding = excluded.embedding`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, record := range records {
		if len(record.Embedding) == 0 {
			return fmt.Errorf("record %q has no embedding", record.ID)
		}
		metadata, err := json.Marshal(record.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata for %q: %w", record.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, record.ID, record.Text, string(metadata), encodeEmbedding(record.Embedding)); err != nil {
			return fmt.Errorf("upsert %q: %w", record.ID, err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteIndex) Query(ctx context.Context, embedding []float32, topK int) ([]Match, error) {
	if topK <= 0 {
		topK = 5
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, text, metadata, embedding FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("scan documents: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var (
			id, text, metadataJSON string
			blob                   []byte
		)
		if err := rows.Scan(&id, &text, &metadataJSON, &blob); err != nil {
			return nil, err
		}

		stored, err := decodeEmbedding(blob)
		if err != nil {
			return nil, fmt.Errorf("decode embedding for %q: %w", id, err)
		}

		score := cosineSimilarity(embedding, stored)
		if math.IsNaN(score) {
			continue
		}

		var metadata map[string]string
		if err := json.Unmarshal([]byte(metadataJSON), &metadata); err != nil {
			metadata = nil
		}

		matches = append(matches, Match{ID: id, Text: text, Score: score, Metadata: metadata})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (s *SQLiteIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	_, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("delete documents: %w", err)
	}
	return nil
}

func encodeEmbedding(embedding []float32) []byte {
	buf := make([]byte, 4*len(embedding))
	for i, v := range embedding {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeEmbedding(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 4", len(blob))
	}
	embedding := make([]float32, len(blob)/4)
	for i := range embedding {
		embedding[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return embedding, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return math.NaN()
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return math.NaN()
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
