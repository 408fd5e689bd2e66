package document

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nikhilbhutani/docextract/internal/models"
)

const documentColumns = `id, drive_id, item_id, site_id, web_url, file_name, file_size, content_type,
	document_type, status, current_step, raw_text, data, searchable_drive_id, searchable_item_id,
	ocr_job_id, error_message, created_at, updated_at, processed_at`

type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Insert(ctx context.Context, doc *models.Document) (*models.Document, error) {
	id := doc.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	row := s.db.QueryRow(ctx,
		`INSERT INTO documents (id, drive_id, item_id, site_id, web_url, file_name, file_size, content_type,
			document_type, status, current_step, data, error_message, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)
		 RETURNING `+documentColumns,
		id, doc.DriveID, doc.ItemID, doc.SiteID, doc.WebURL, doc.FileName, doc.FileSize, doc.ContentType,
		doc.DocumentType, doc.Status, doc.CurrentStep, dataArg(doc.Data), doc.ErrorMessage, doc.CreatedAt,
	)
	created, err := scanDocument(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("insert document: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) UpsertStart(ctx context.Context, file models.SourceFile, now time.Time) (*models.Document, error) {
	row := s.db.QueryRow(ctx,
		`INSERT INTO documents (id, drive_id, item_id, site_id, web_url, file_name, file_size, content_type,
			document_type, status, current_step, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
		 ON CONFLICT (drive_id, item_id) DO UPDATE SET
			site_id = EXCLUDED.site_id,
			web_url = EXCLUDED.web_url,
			file_name = EXCLUDED.file_name,
			file_size = EXCLUDED.file_size,
			content_type = EXCLUDED.content_type,
			document_type = EXCLUDED.document_type,
			status = EXCLUDED.status,
			current_step = EXCLUDED.current_step,
			error_message = NULL,
			updated_at = EXCLUDED.updated_at
		 RETURNING `+documentColumns,
		uuid.New(), file.ExternalID.DriveID, file.ExternalID.ItemID, file.SiteID, file.WebURL, file.FileName,
		file.FileSize, file.ContentType, file.DocumentType, models.StatusInProgress, models.StepDownloading, now,
	)
	doc, err := scanDocument(row)
	if err != nil {
		return nil, fmt.Errorf("upsert document: %w", err)
	}
	return doc, nil
}

func (s *PostgresStore) Update(ctx context.Context, id uuid.UUID, fn func(doc *models.Document) error) (*models.Document, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	doc, err := scanDocument(tx.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load document: %w", err)
	}

	if err := fn(doc); err != nil {
		return nil, err
	}

	updated, err := scanDocument(tx.QueryRow(ctx,
		`UPDATE documents SET
			site_id = $2, web_url = $3, file_name = $4, file_size = $5, content_type = $6,
			document_type = $7, status = $8, current_step = $9, raw_text = $10, data = $11,
			searchable_drive_id = $12, searchable_item_id = $13, ocr_job_id = $14,
			error_message = $15, updated_at = $16, processed_at = $17
		 WHERE id = $1
		 RETURNING `+documentColumns,
		id, doc.SiteID, doc.WebURL, doc.FileName, doc.FileSize, doc.ContentType,
		doc.DocumentType, doc.Status, doc.CurrentStep, doc.RawText, dataArg(doc.Data),
		doc.SearchableDriveID, doc.SearchableItemID, doc.OCRJobID,
		doc.ErrorMessage, doc.UpdatedAt, doc.ProcessedAt,
	))
	if err != nil {
		return nil, fmt.Errorf("update document: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit document update: %w", err)
	}
	return updated, nil
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	doc, err := scanDocument(s.db.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

func (s *PostgresStore) GetByExternalID(ctx context.Context, ext models.ExternalID) (*models.Document, error) {
	doc, err := scanDocument(s.db.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE drive_id = $1 AND item_id = $2`,
		ext.DriveID, ext.ItemID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get document by external id: %w", err)
	}
	return doc, nil
}

func (s *PostgresStore) List(ctx context.Context, q ListQuery) ([]models.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE 1 = 1`
	var args []interface{}
	argIdx := 1

	if q.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, *q.Status)
		argIdx++
	}
	if q.ProcessedFrom != nil {
		query += fmt.Sprintf(" AND processed_at >= $%d", argIdx)
		args = append(args, *q.ProcessedFrom)
		argIdx++
	}
	if q.ProcessedTo != nil {
		query += fmt.Sprintf(" AND processed_at <= $%d", argIdx)
		args = append(args, *q.ProcessedTo)
		argIdx++
	}

	if q.ByProcessedAt {
		query += " ORDER BY processed_at ASC NULLS LAST"
	} else {
		query += " ORDER BY created_at DESC"
	}
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, q.Limit)
		argIdx++
	}
	if q.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, q.Offset)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, nil
}

func (s *PostgresStore) Count(ctx context.Context, status *models.Status) (int, error) {
	var n int
	var err error
	if status == nil {
		err = s.db.QueryRow(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n)
	} else {
		err = s.db.QueryRow(ctx, `SELECT COUNT(*) FROM documents WHERE status = $1`, *status).Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return n, nil
}

func scanDocument(row pgx.Row) (*models.Document, error) {
	var d models.Document
	err := row.Scan(&d.ID, &d.DriveID, &d.ItemID, &d.SiteID, &d.WebURL, &d.FileName, &d.FileSize, &d.ContentType,
		&d.DocumentType, &d.Status, &d.CurrentStep, &d.RawText, &d.Data, &d.SearchableDriveID, &d.SearchableItemID,
		&d.OCRJobID, &d.ErrorMessage, &d.CreatedAt, &d.UpdatedAt, &d.ProcessedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// dataArg keeps an absent result as SQL NULL rather than JSON null.
func dataArg(data models.FieldData) interface{} {
	if data == nil {
		return nil
	}
	return data
}
