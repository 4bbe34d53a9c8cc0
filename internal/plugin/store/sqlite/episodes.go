package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/chirino/souvenir/internal/model"
)

type episodeStore struct {
	db *sql.DB
}

func (s *episodeStore) Insert(ctx context.Context, batch []model.Episode) error {
	if len(batch) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO episodes (id, session_id, timestamp, type, content, importance, access_count, last_accessed, consolidated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, ep := range batch {
		var lastAccessed any
		if ep.LastAccessed != nil {
			lastAccessed = ep.LastAccessed.UTC().Format(time.RFC3339Nano)
		}
		if _, err := stmt.ExecContext(ctx, ep.ID, ep.SessionID, ep.Timestamp.UTC().Format(time.RFC3339Nano),
			string(ep.Type), ep.Content, ep.Importance, ep.AccessCount, lastAccessed); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *episodeStore) FetchUnconsolidated(ctx context.Context, minAge time.Duration) ([]model.Episode, error) {
	cutoff := time.Now().UTC().Add(-minAge).Format(time.RFC3339Nano)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, timestamp, type, content, importance, access_count, last_accessed, consolidated
		FROM episodes
		WHERE consolidated = 0 AND timestamp <= ?
		ORDER BY timestamp ASC
	`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Episode
	for rows.Next() {
		ep, err := scanEpisode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ep)
	}
	return out, rows.Err()
}

func (s *episodeStore) MarkConsolidated(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `UPDATE episodes SET consolidated = 1 WHERE id = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *episodeStore) DeleteConsolidatedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM episodes WHERE consolidated = 1 AND timestamp < ?
	`, cutoff.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEpisode(row scanner) (model.Episode, error) {
	var ep model.Episode
	var epType string
	var lastAccessed sql.NullString
	var timestamp string
	var consolidated int
	if err := row.Scan(&ep.ID, &ep.SessionID, &timestamp, &epType, &ep.Content,
		&ep.Importance, &ep.AccessCount, &lastAccessed, &consolidated); err != nil {
		return model.Episode{}, err
	}
	ep.Type = model.EpisodeType(epType)
	ep.Consolidated = consolidated != 0
	if t, err := time.Parse(time.RFC3339Nano, timestamp); err == nil {
		ep.Timestamp = t
	}
	if lastAccessed.Valid {
		if t, err := time.Parse(time.RFC3339Nano, lastAccessed.String); err == nil {
			ep.LastAccessed = &t
		}
	}
	return ep, nil
}
