package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vertextoedge/threadfetch/internal/domain"
)

// Load returns every stored download ordered by queue position
func (s *Store) Load() ([]*domain.Download, error) {
	query := `
		SELECT id, source_url, destination_path, metadata, status,
			   bytes_downloaded, total_bytes, error_message, retry_count,
			   resume_token, validators, created_at, started_at, completed_at, paused_at
		FROM downloads
		ORDER BY position ASC
	`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, domain.NewStorageError("load downloads", "", err)
	}
	defer rows.Close()

	var downloads []*domain.Download
	for rows.Next() {
		d, err := scanDownload(rows)
		if err != nil {
			return nil, domain.NewStorageError("scan download", "", err)
		}
		downloads = append(downloads, d)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStorageError("load downloads", "", err)
	}
	return downloads, nil
}

// Save replaces the stored snapshot in one transaction
func (s *Store) Save(downloads []*domain.Download) error {
	tx, err := s.db.Begin()
	if err != nil {
		return domain.NewStorageError("begin save", "", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM downloads`); err != nil {
		return domain.NewStorageError("clear downloads", "", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO downloads (
			id, position, source_url, destination_path, metadata, status,
			bytes_downloaded, total_bytes, error_message, retry_count,
			resume_token, validators, created_at, started_at, completed_at, paused_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return domain.NewStorageError("prepare insert", "", err)
	}
	defer stmt.Close()

	for i, d := range downloads {
		meta, err := json.Marshal(d.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata of %s: %w", d.ID, err)
		}
		validators, err := json.Marshal(d.Validators)
		if err != nil {
			return fmt.Errorf("encode validators of %s: %w", d.ID, err)
		}

		_, err = stmt.Exec(
			d.ID, i, d.SourceURL, d.DestinationPath, string(meta), string(d.Status),
			d.BytesDownloaded, d.TotalBytes, d.ErrorMessage, d.RetryCount,
			d.ResumeToken, string(validators), d.CreatedAt.UnixNano(),
			nullTime(d.StartedAt), nullTime(d.CompletedAt), nullTime(d.PausedAt),
		)
		if err != nil {
			return domain.NewStorageError("insert download", d.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.NewStorageError("commit save", "", err)
	}
	return nil
}

// scanner is implemented by *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

func scanDownload(row scanner) (*domain.Download, error) {
	d := &domain.Download{}
	var (
		meta, validators, status         string
		createdAt                        int64
		startedAt, completedAt, pausedAt sql.NullInt64
		resumeToken                      []byte
	)

	err := row.Scan(
		&d.ID, &d.SourceURL, &d.DestinationPath, &meta, &status,
		&d.BytesDownloaded, &d.TotalBytes, &d.ErrorMessage, &d.RetryCount,
		&resumeToken, &validators, &createdAt, &startedAt, &completedAt, &pausedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(meta), &d.Metadata); err != nil {
		return nil, fmt.Errorf("decode metadata of %s: %w", d.ID, err)
	}
	if err := json.Unmarshal([]byte(validators), &d.Validators); err != nil {
		return nil, fmt.Errorf("decode validators of %s: %w", d.ID, err)
	}

	d.Status = domain.Status(status)
	if len(resumeToken) > 0 {
		d.ResumeToken = resumeToken
	}
	d.CreatedAt = time.Unix(0, createdAt)
	d.StartedAt = timeFromNull(startedAt)
	d.CompletedAt = timeFromNull(completedAt)
	d.PausedAt = timeFromNull(pausedAt)
	d.Normalize()

	return d, nil
}

func nullTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func timeFromNull(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(0, v.Int64)
	return &t
}
