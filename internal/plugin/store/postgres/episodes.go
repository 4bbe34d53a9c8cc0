package postgres

import (
	"context"
	"time"

	"github.com/chirino/souvenir/internal/model"
	"gorm.io/gorm"
)

type episodeStore struct {
	db *gorm.DB
}

func (s *episodeStore) Insert(ctx context.Context, batch []model.Episode) error {
	if len(batch) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, ep := range batch {
			if err := tx.Exec(`
				INSERT INTO episodes (id, session_id, timestamp, type, content, importance, access_count, last_accessed, consolidated)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, FALSE)
			`, ep.ID, ep.SessionID, ep.Timestamp.UTC(), string(ep.Type), ep.Content, ep.Importance, ep.AccessCount, ep.LastAccessed).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *episodeStore) FetchUnconsolidated(ctx context.Context, minAge time.Duration) ([]model.Episode, error) {
	cutoff := time.Now().UTC().Add(-minAge)
	rows, err := s.db.WithContext(ctx).Raw(`
		SELECT id, session_id, timestamp, type, content, importance, access_count, last_accessed, consolidated
		FROM episodes
		WHERE consolidated = FALSE AND timestamp <= ?
		ORDER BY timestamp ASC
	`, cutoff).Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Episode
	for rows.Next() {
		var ep model.Episode
		var epType string
		var lastAccessed *time.Time
		if err := rows.Scan(&ep.ID, &ep.SessionID, &ep.Timestamp, &epType, &ep.Content,
			&ep.Importance, &ep.AccessCount, &lastAccessed, &ep.Consolidated); err != nil {
			return nil, err
		}
		ep.Type = model.EpisodeType(epType)
		ep.LastAccessed = lastAccessed
		out = append(out, ep)
	}
	return out, rows.Err()
}

func (s *episodeStore) MarkConsolidated(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Exec(`UPDATE episodes SET consolidated = TRUE WHERE id IN ?`, ids).Error
}

func (s *episodeStore) DeleteConsolidatedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res := s.db.WithContext(ctx).Exec(`DELETE FROM episodes WHERE consolidated = TRUE AND timestamp < ?`, cutoff.UTC())
	return int(res.RowsAffected), res.Error
}
