package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/poiesic/lore/core"
	"github.com/poiesic/lore/storage"
)

const documentColumns = `id, collection_id, name, source_kind, storage_ref, extracted_text,
	status, error_message, metadata, processing_started_at, processing_finished_at,
	created_at, updated_at`

type documentRepository struct {
	db *DB
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(s scanner) (*core.Document, error) {
	var (
		doc                                 core.Document
		id, kind, status, metadata          string
		started, finished, created, updated int64
	)
	err := s.Scan(&id, &doc.CollectionId, &doc.Name, &kind, &doc.StorageRef, &doc.ExtractedText,
		&status, &doc.ErrorMessage, &metadata, &started, &finished, &created, &updated)
	if err != nil {
		return nil, err
	}

	doc.Id = core.ID(id)
	doc.SourceKind = core.SourceKind(kind)
	doc.Status = core.DocumentStatus(status)
	if metadata != "" {
		if err := json.Unmarshal([]byte(metadata), &doc.Metadata); err != nil {
			return nil, fmt.Errorf("%w: document %s metadata: %w", storage.ErrSerializationFailed, id, err)
		}
	}
	doc.ProcessingStartedAt = fromMillis(started)
	doc.ProcessingFinishedAt = fromMillis(finished)
	doc.CreatedAt = fromMillis(created)
	doc.UpdatedAt = fromMillis(updated)
	return &doc, nil
}

func encodeMetadata(m core.ProcessingMetadata) (string, error) {
	bs, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("%w: %w", storage.ErrSerializationFailed, err)
	}
	return string(bs), nil
}

func (r *documentRepository) CreateDocument(ctx context.Context, doc *core.Document) (*core.Document, error) {
	if err := core.ValidateDocument(doc); err != nil {
		return nil, err
	}

	created := *doc
	if created.Id == "" {
		created.Id = core.NewID()
	}
	if created.Status == "" {
		created.Status = core.DocumentStatusPending
	}
	now := time.Now().UTC().Truncate(time.Millisecond)
	if created.CreatedAt.IsZero() {
		created.CreatedAt = now
	}
	created.UpdatedAt = now

	metadata, err := encodeMetadata(created.Metadata)
	if err != nil {
		return nil, err
	}

	_, err = r.db.sqlDB.ExecContext(ctx,
		`INSERT INTO documents (`+documentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(created.Id), created.CollectionId, created.Name, string(created.SourceKind), created.StorageRef,
		created.ExtractedText, string(created.Status), created.ErrorMessage, metadata,
		millis(created.ProcessingStartedAt), millis(created.ProcessingFinishedAt),
		millis(created.CreatedAt), millis(created.UpdatedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, fmt.Errorf("%w: document %s", storage.ErrDuplicateKey, created.Id)
		}
		return nil, fmt.Errorf("failed to insert document: %w", err)
	}
	return &created, nil
}

func (r *documentRepository) GetDocument(ctx context.Context, id core.ID) (*core.Document, error) {
	return getDocument(ctx, r.db.sqlDB, id)
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func getDocument(ctx context.Context, q querier, id core.ID) (*core.Document, error) {
	row := q.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, string(id))
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: document %s", storage.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// writeDocument updates doc's row. A non-empty guard turns the write into a
// compare-and-set on the stored status.
func writeDocument(ctx context.Context, q querier, doc *core.Document, guard core.DocumentStatus) error {
	metadata, err := encodeMetadata(doc.Metadata)
	if err != nil {
		return err
	}
	res, err := q.ExecContext(ctx, `UPDATE documents SET
		name = ?, storage_ref = ?, extracted_text = ?, status = ?, error_message = ?, metadata = ?,
		processing_started_at = ?, processing_finished_at = ?, updated_at = ?
		WHERE id = ? AND (? = '' OR status = ?)`,
		doc.Name, doc.StorageRef, doc.ExtractedText, string(doc.Status), doc.ErrorMessage, metadata,
		millis(doc.ProcessingStartedAt), millis(doc.ProcessingFinishedAt), millis(doc.UpdatedAt),
		string(doc.Id), string(guard), string(guard),
	)
	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if guard != "" {
			return fmt.Errorf("document %s: %w: status changed concurrently", doc.Id, core.ErrInvalidStateTransition)
		}
		return fmt.Errorf("%w: document %s", storage.ErrNotFound, doc.Id)
	}
	return nil
}

func (r *documentRepository) UpdateDocument(ctx context.Context, doc *core.Document) (*core.Document, error) {
	var updated *core.Document
	err := r.db.withTx(ctx, func(tx *sql.Tx) error {
		current, err := getDocument(ctx, tx, doc.Id)
		if err != nil {
			return err
		}
		next := *doc
		next.Status = current.Status
		next.CollectionId = current.CollectionId
		next.SourceKind = current.SourceKind
		next.CreatedAt = current.CreatedAt
		next.UpdatedAt = time.Now().UTC().Truncate(time.Millisecond)
		if err := writeDocument(ctx, tx, &next, ""); err != nil {
			return err
		}
		updated = &next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *documentRepository) Transition(ctx context.Context, id core.ID, to core.DocumentStatus, update func(*core.Document)) (*core.Document, error) {
	var updated *core.Document
	err := r.db.withTx(ctx, func(tx *sql.Tx) error {
		doc, err := getDocument(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := core.CheckTransition(doc.Status, to); err != nil {
			return fmt.Errorf("document %s: %w", id, err)
		}

		from := doc.Status
		now := time.Now().UTC().Truncate(time.Millisecond)
		doc.Status = to
		switch to {
		case core.DocumentStatusProcessing:
			doc.ProcessingStartedAt = now
			doc.ProcessingFinishedAt = time.Time{}
			doc.ErrorMessage = ""
		case core.DocumentStatusCompleted, core.DocumentStatusError:
			doc.ProcessingFinishedAt = now
		}
		if update != nil {
			update(doc)
			doc.Id = id
			doc.Status = to
		}
		doc.UpdatedAt = now

		if err := writeDocument(ctx, tx, doc, from); err != nil {
			return err
		}
		updated = doc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *documentRepository) ListDocuments(ctx context.Context, filter storage.DocumentFilter) ([]*core.Document, error) {
	var (
		where []string
		args  []any
	)
	if filter.CollectionId != "" {
		where = append(where, "collection_id = ?")
		args = append(args, filter.CollectionId)
	}
	if len(filter.Statuses) > 0 {
		marks := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			marks[i] = "?"
			args = append(args, string(s))
		}
		where = append(where, "status IN ("+strings.Join(marks, ", ")+")")
	}

	query := `SELECT ` + documentColumns + ` FROM documents`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := r.db.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []*core.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (r *documentRepository) Close() error {
	return nil
}
