package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/poiesic/lore/core"
	"github.com/poiesic/lore/storage"
)

type chunkRepository struct {
	db *DB
}

func (r *chunkRepository) ReplaceChunks(ctx context.Context, documentID core.ID, chunks []*core.Chunk) error {
	for i, c := range chunks {
		if err := core.ValidateChunk(c); err != nil {
			return err
		}
		if c.DocumentId != documentID {
			return fmt.Errorf("%w: chunk %d belongs to %s, not %s", core.ErrInvalidChunk, i, c.DocumentId, documentID)
		}
		if c.Index != i {
			return fmt.Errorf("%w: chunk at position %d has index %d", core.ErrInvalidChunk, i, c.Index)
		}
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	return r.db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, string(documentID)); err != nil {
			return fmt.Errorf("failed to delete chunks: %w", err)
		}
		if len(chunks) == 0 {
			return nil
		}

		stmt, err := tx.PrepareContext(ctx, `INSERT INTO chunks
			(id, document_id, idx, text, token_count, page, status, vector_id, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare chunk insert: %w", err)
		}
		defer stmt.Close()

		for _, c := range chunks {
			if c.Id == "" {
				c.Id = core.ChunkID(documentID, c.Index)
			}
			if c.Status == "" {
				c.Status = core.ChunkStatusPending
			}
			if c.CreatedAt.IsZero() {
				c.CreatedAt = now
			}
			c.UpdatedAt = now
			if _, err := stmt.ExecContext(ctx,
				string(c.Id), string(documentID), c.Index, c.Text, c.TokenCount, c.Page,
				string(c.Status), string(c.VectorId), millis(c.CreatedAt), millis(c.UpdatedAt),
			); err != nil {
				return fmt.Errorf("failed to insert chunk %d: %w", c.Index, err)
			}
		}
		return nil
	})
}

func (r *chunkRepository) GetChunks(ctx context.Context, documentID core.ID) ([]*core.Chunk, error) {
	rows, err := r.db.sqlDB.QueryContext(ctx, `SELECT
		id, document_id, idx, text, token_count, page, status, vector_id, created_at, updated_at
		FROM chunks WHERE document_id = ? ORDER BY idx`, string(documentID))
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []*core.Chunk
	for rows.Next() {
		var (
			c                        core.Chunk
			id, docID, status, vecID string
			created, updated         int64
		)
		if err := rows.Scan(&id, &docID, &c.Index, &c.Text, &c.TokenCount, &c.Page,
			&status, &vecID, &created, &updated); err != nil {
			return nil, err
		}
		c.Id = core.ID(id)
		c.DocumentId = core.ID(docID)
		c.Status = core.ChunkStatus(status)
		c.VectorId = core.ID(vecID)
		c.CreatedAt = fromMillis(created)
		c.UpdatedAt = fromMillis(updated)
		chunks = append(chunks, &c)
	}
	return chunks, rows.Err()
}

func (r *chunkRepository) UpdateChunkStatuses(ctx context.Context, documentID core.ID, status core.ChunkStatus, vectorIDs map[core.ID]core.ID) error {
	now := millis(time.Now().UTC())
	return r.db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`UPDATE chunks SET status = ?, vector_id = '', updated_at = ? WHERE document_id = ?`,
			string(status), now, string(documentID),
		); err != nil {
			return fmt.Errorf("failed to update chunk statuses: %w", err)
		}
		for chunkID, vectorID := range vectorIDs {
			res, err := tx.ExecContext(ctx,
				`UPDATE chunks SET vector_id = ? WHERE id = ? AND document_id = ?`,
				string(vectorID), string(chunkID), string(documentID),
			)
			if err != nil {
				return fmt.Errorf("failed to record vector id: %w", err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return fmt.Errorf("%w: chunk %s of document %s", storage.ErrNotFound, chunkID, documentID)
			}
		}
		return nil
	})
}

func (r *chunkRepository) CountChunks(ctx context.Context, documentID core.ID, statuses ...core.ChunkStatus) (int, error) {
	query := `SELECT COUNT(*) FROM chunks WHERE document_id = ?`
	args := []any{string(documentID)}
	if len(statuses) > 0 {
		marks := make([]string, len(statuses))
		for i, s := range statuses {
			marks[i] = "?"
			args = append(args, string(s))
		}
		query += " AND status IN (" + strings.Join(marks, ", ") + ")"
	}

	var n int
	if err := r.db.sqlDB.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return n, nil
}

func (r *chunkRepository) Close() error {
	return nil
}
