package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/halgrim/skilldex/internal/skill"
)

// SaveDefinition upserts a definition and replaces its attached files in one
// transaction.
func (s *Store) SaveDefinition(ctx context.Context, def *skill.Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("save skill %s: begin: %w", def.ID, err)
	}
	defer tx.Rollback(ctx)

	now := time.Now()
	_, err = tx.Exec(ctx, `
		INSERT INTO skills (id, domain, title, description, short_description, tags, document_body, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		ON CONFLICT (id) DO UPDATE SET
			domain = EXCLUDED.domain,
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			short_description = EXCLUDED.short_description,
			tags = EXCLUDED.tags,
			document_body = EXCLUDED.document_body,
			updated_at = EXCLUDED.updated_at`,
		def.ID, def.Domain, def.Title, def.Description, def.ShortDescription,
		def.Tags, def.DocumentBody, now,
	)
	if err != nil {
		return fmt.Errorf("save skill %s: %w", def.ID, err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM skill_files WHERE skill_id = $1`, def.ID); err != nil {
		return fmt.Errorf("save skill %s: clear files: %w", def.ID, err)
	}
	for _, f := range def.Files {
		if _, err := tx.Exec(ctx,
			`INSERT INTO skill_files (skill_id, name, content) VALUES ($1, $2, $3)`,
			def.ID, f.Name, f.Content,
		); err != nil {
			return fmt.Errorf("save skill %s: file %s: %w", def.ID, f.Name, err)
		}
	}

	return tx.Commit(ctx)
}

// GetDefinition retrieves a definition with its attached files.
// Unknown ids yield ErrNotFound.
func (s *Store) GetDefinition(ctx context.Context, id string) (*skill.Definition, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, domain, title, description, short_description, tags, document_body
		FROM skills WHERE id = $1`, id)

	var def skill.Definition
	err := row.Scan(&def.ID, &def.Domain, &def.Title, &def.Description,
		&def.ShortDescription, &def.Tags, &def.DocumentBody)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("skill %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get skill %s: %w", id, err)
	}

	rows, err := s.db.Query(ctx,
		`SELECT name, content FROM skill_files WHERE skill_id = $1 ORDER BY name`, id)
	if err != nil {
		return nil, fmt.Errorf("get skill %s: files: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var f skill.File
		if err := rows.Scan(&f.Name, &f.Content); err != nil {
			return nil, fmt.Errorf("get skill %s: scan file: %w", id, err)
		}
		def.Files = append(def.Files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get skill %s: files: %w", id, err)
	}
	return &def, nil
}

// ListIDs returns every stored skill id in lexical order.
func (s *Store) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT id FROM skills ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list skills: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("list skills: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CountSkills returns the number of stored definitions.
func (s *Store) CountSkills(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM skills`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count skills: %w", err)
	}
	return n, nil
}

// DeleteAll clears every definition and, via cascade, every attached file.
func (s *Store) DeleteAll(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM skills`); err != nil {
		return fmt.Errorf("delete skills: %w", err)
	}
	return nil
}
