package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chirino/souvenir/internal/lexical"
	"github.com/chirino/souvenir/internal/model"
	registrystore "github.com/chirino/souvenir/internal/registry/store"
	"github.com/google/uuid"
	pgvec "github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

type memoryStore struct {
	db                 *gorm.DB
	embeddingDimension int
}

// validateEmbedding rejects a write whose vector length does not match the
// configured embedder's dimension. A nil/empty vector is always allowed
// (embedding is backfilled asynchronously), and validation is a no-op when
// no embedder is configured.
func (s *memoryStore) validateEmbedding(v []float32) error {
	if s.embeddingDimension <= 0 || len(v) == 0 {
		return nil
	}
	if len(v) != s.embeddingDimension {
		return &registrystore.ValidationError{
			Field:   "embedding",
			Message: fmt.Sprintf("vector has %d dimensions, want %d", len(v), s.embeddingDimension),
		}
	}
	return nil
}

func encodeIDs(ids []string) string {
	if ids == nil {
		ids = []string{}
	}
	b, _ := json.Marshal(ids)
	return string(b)
}

func decodeIDs(b []byte) []string {
	var ids []string
	if len(b) == 0 {
		return nil
	}
	_ = json.Unmarshal(b, &ids)
	return ids
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func embeddingVector(v []float32) any {
	if len(v) == 0 {
		return nil
	}
	return pgvec.NewVector(v)
}

// parseVectorText decodes pgvector's text output ("[0.1,0.2,0.3]") since the
// raw-SQL reads here never scan into pgvec.Vector directly.
func parseVectorText(s sql.NullString) []float32 {
	if !s.Valid || s.String == "" {
		return nil
	}
	trimmed := strings.Trim(s.String, "[]")
	if trimmed == "" {
		return nil
	}
	parts := strings.Split(trimmed, ",")
	out := make([]float32, 0, len(parts))
	for _, p := range parts {
		var f float64
		if _, err := fmt.Sscanf(strings.TrimSpace(p), "%g", &f); err == nil {
			out = append(out, float32(f))
		}
	}
	return out
}

const recallableClause = `m.status = 'active' AND (m.valid_at IS NULL OR m.valid_at <= ?) AND (m.invalid_at IS NULL OR m.invalid_at > ?)`

func (s *memoryStore) Insert(ctx context.Context, m model.Memory) error {
	if err := s.validateEmbedding(m.Embedding); err != nil {
		return err
	}

	err := s.db.WithContext(ctx).Exec(`
		INSERT INTO memories (id, content, component, category, importance, session_id, source_ids,
			entity_ids, embedding, created_at, updated_at, last_accessed, access_count, status,
			valid_at, invalid_at, superseded_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?::vector, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.Content, m.Component, m.Category, m.Importance, m.SessionID,
		encodeIDs(m.SourceEpisodeIDs), encodeIDs(m.EntityIDs), embeddingVector(m.Embedding),
		m.CreatedAt.UTC(), m.UpdatedAt.UTC(), m.LastAccessed, m.AccessCount,
		string(m.Status), m.ValidAt, m.InvalidAt, nullString(m.SupersededBy)).Error
	if err != nil {
		return fmt.Errorf("postgres: insert memory: %w", err)
	}
	return nil
}

func (s *memoryStore) Update(ctx context.Context, id string, u model.MemoryUpdate) error {
	if u.SetEmbedding {
		if err := s.validateEmbedding(u.Embedding); err != nil {
			return err
		}
	}

	sets := []string{"updated_at = ?"}
	args := []any{time.Now().UTC()}

	if u.Content != nil {
		sets = append(sets, "content = ?")
		args = append(args, *u.Content)
	}
	if u.Importance != nil {
		sets = append(sets, "importance = ?")
		args = append(args, *u.Importance)
	}
	if u.SetEntityIDs {
		sets = append(sets, "entity_ids = ?")
		args = append(args, encodeIDs(u.EntityIDs))
	}
	if u.SetSourceIDs {
		sets = append(sets, "source_ids = ?")
		args = append(args, encodeIDs(u.SourceIDs))
	}
	if u.SetEmbedding {
		sets = append(sets, "embedding = ?::vector")
		args = append(args, embeddingVector(u.Embedding))
	}
	if u.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*u.Status))
	}
	if u.SupersededBy != nil {
		sets = append(sets, "superseded_by = ?")
		args = append(args, nullString(*u.SupersededBy))
	}
	if u.SetInvalidAt {
		sets = append(sets, "invalid_at = ?")
		args = append(args, u.InvalidAt)
	}

	args = append(args, id)
	err := s.db.WithContext(ctx).Exec(fmt.Sprintf(`UPDATE memories SET %s WHERE id = ?`, strings.Join(sets, ", ")), args...).Error
	if err != nil {
		return fmt.Errorf("postgres: update memory: %w", err)
	}
	return nil
}

func (s *memoryStore) UpdateAccessStats(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Exec(`
		UPDATE memories SET access_count = access_count + 1, last_accessed = ? WHERE id IN ?
	`, time.Now().UTC(), ids).Error
}

func (s *memoryStore) SearchFTS(ctx context.Context, query string, limit int) ([]registrystore.ScoredMemory, error) {
	expr := lexical.TSQuery(query)
	if expr == "" {
		return nil, nil
	}
	now := time.Now().UTC()
	rows, err := s.db.WithContext(ctx).Raw(fmt.Sprintf(`
		SELECT m.id, m.content, m.component, m.category, m.importance, m.session_id, m.source_ids,
			m.entity_ids, m.embedding::text, m.created_at, m.updated_at, m.last_accessed, m.access_count,
			m.status, m.valid_at, m.invalid_at, m.superseded_by,
			ts_rank(m.content_tsv, to_tsquery('english', ?)) AS rank
		FROM memories m
		WHERE m.content_tsv @@ to_tsquery('english', ?) AND %s
		ORDER BY rank DESC
		LIMIT ?
	`, recallableClause), expr, expr, now, now, limit).Rows()
	if err != nil {
		return nil, fmt.Errorf("postgres: search fts: %w", err)
	}
	defer rows.Close()

	var out []registrystore.ScoredMemory
	for rows.Next() {
		mem, rank, err := scanMemoryRow(rows, true)
		if err != nil {
			return nil, err
		}
		out = append(out, registrystore.ScoredMemory{Memory: mem, BM25: rank})
	}
	return out, rows.Err()
}

func (s *memoryStore) FindSimilar(ctx context.Context, content, component string, opts registrystore.SimilarOptions) ([]registrystore.ScoredMemory, error) {
	expr := lexical.TSQuery(content)
	if expr == "" {
		return nil, nil
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 1
	}
	now := time.Now().UTC()
	query := fmt.Sprintf(`
		SELECT m.id, m.content, m.component, m.category, m.importance, m.session_id, m.source_ids,
			m.entity_ids, m.embedding::text, m.created_at, m.updated_at, m.last_accessed, m.access_count,
			m.status, m.valid_at, m.invalid_at, m.superseded_by,
			ts_rank(m.content_tsv, to_tsquery('english', ?)) AS rank
		FROM memories m
		WHERE m.content_tsv @@ to_tsquery('english', ?) AND m.component = ? AND %s
	`, recallableClause)
	args := []any{expr, expr, component, now, now}
	if opts.Category != "" {
		query += " AND m.category = ?"
		args = append(args, opts.Category)
	}
	if opts.SessionID != "" {
		query += " AND m.session_id = ?"
		args = append(args, opts.SessionID)
	}
	query += " ORDER BY rank DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.WithContext(ctx).Raw(query, args...).Rows()
	if err != nil {
		return nil, fmt.Errorf("postgres: find similar: %w", err)
	}
	defer rows.Close()

	var out []registrystore.ScoredMemory
	for rows.Next() {
		mem, rank, err := scanMemoryRow(rows, true)
		if err != nil {
			return nil, err
		}
		out = append(out, registrystore.ScoredMemory{Memory: mem, BM25: rank})
	}
	return out, rows.Err()
}

func (s *memoryStore) UpsertEntity(ctx context.Context, entity model.Entity) (model.Entity, error) {
	var existingID uuid.UUID
	var existingType string
	err := s.db.WithContext(ctx).Raw(`SELECT id, type FROM entities WHERE lower(name) = lower(?)`, entity.Name).
		Row().Scan(&existingID, &existingType)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		id := entity.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		if err := s.db.WithContext(ctx).Exec(`INSERT INTO entities (id, name, type) VALUES (?, ?, ?)`,
			id, entity.Name, entity.Type).Error; err != nil {
			return model.Entity{}, fmt.Errorf("postgres: insert entity: %w", err)
		}
		return model.Entity{ID: id, Name: entity.Name, Type: entity.Type}, nil
	case err != nil:
		return model.Entity{}, fmt.Errorf("postgres: lookup entity: %w", err)
	default:
		if existingType != entity.Type {
			if err := s.db.WithContext(ctx).Exec(`UPDATE entities SET type = ? WHERE id = ?`, entity.Type, existingID).Error; err != nil {
				return model.Entity{}, fmt.Errorf("postgres: update entity type: %w", err)
			}
			existingType = entity.Type
		}
		return model.Entity{ID: existingID, Name: entity.Name, Type: existingType}, nil
	}
}

func (s *memoryStore) UpsertRelationship(ctx context.Context, rel model.Relationship) error {
	err := s.db.WithContext(ctx).Exec(`
		INSERT INTO relationships (from_entity, to_entity, relation, confidence, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (from_entity, to_entity, relation) DO UPDATE SET
			confidence = EXCLUDED.confidence,
			updated_at = EXCLUDED.updated_at
	`, rel.FromEntityID, rel.ToEntityID, rel.Relation, rel.Confidence, time.Now().UTC()).Error
	if err != nil {
		return fmt.Errorf("postgres: upsert relationship: %w", err)
	}
	return nil
}

func (s *memoryStore) FindEntitiesByName(ctx context.Context, query string) ([]model.Entity, error) {
	tokens := lexical.EntityNameTokens(query)
	if len(tokens) == 0 {
		return nil, nil
	}
	var clauses []string
	var args []any
	for _, tok := range tokens {
		clauses = append(clauses, "name ILIKE ?")
		args = append(args, "%"+escapeLike(tok)+"%")
	}
	rows, err := s.db.WithContext(ctx).Raw(fmt.Sprintf(`
		SELECT id, name, type FROM entities WHERE %s
	`, strings.Join(clauses, " OR ")), args...).Rows()
	if err != nil {
		return nil, fmt.Errorf("postgres: find entities: %w", err)
	}
	defer rows.Close()

	var out []model.Entity
	for rows.Next() {
		var e model.Entity
		if err := rows.Scan(&e.ID, &e.Name, &e.Type); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer("\\", "\\\\", "%", "\\%", "_", "\\_")
	return r.Replace(s)
}

func (s *memoryStore) FindRelationshipsForEntity(ctx context.Context, id string) ([]model.Relationship, error) {
	entID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse entity id: %w", err)
	}
	rows, err := s.db.WithContext(ctx).Raw(`
		SELECT from_entity, to_entity, relation, confidence, updated_at
		FROM relationships WHERE from_entity = ? OR to_entity = ?
	`, entID, entID).Rows()
	if err != nil {
		return nil, fmt.Errorf("postgres: find relationships: %w", err)
	}
	defer rows.Close()

	var out []model.Relationship
	for rows.Next() {
		var r model.Relationship
		if err := rows.Scan(&r.FromEntityID, &r.ToEntityID, &r.Relation, &r.Confidence, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *memoryStore) FindMemoriesByEntityIds(ctx context.Context, ids []string) ([]model.Memory, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	now := time.Now().UTC()
	idsJSON, _ := json.Marshal(ids)
	rows, err := s.db.WithContext(ctx).Raw(fmt.Sprintf(`
		SELECT DISTINCT m.id, m.content, m.component, m.category, m.importance, m.session_id, m.source_ids,
			m.entity_ids, m.embedding::text, m.created_at, m.updated_at, m.last_accessed, m.access_count,
			m.status, m.valid_at, m.invalid_at, m.superseded_by
		FROM memories m, jsonb_array_elements_text(m.entity_ids) je
		WHERE je.value = ANY(?) AND %s
	`, recallableClause), pqStringArray(string(idsJSON)), now, now).Rows()
	if err != nil {
		return nil, fmt.Errorf("postgres: find memories by entity ids: %w", err)
	}
	defer rows.Close()

	var out []model.Memory
	for rows.Next() {
		mem, _, err := scanMemoryRow(rows, false)
		if err != nil {
			return nil, err
		}
		out = append(out, mem)
	}
	return out, rows.Err()
}

// pqStringArray turns a JSON array of strings into a Postgres text[] literal
// suitable for = ANY(?).
func pqStringArray(jsonArr string) string {
	var ids []string
	_ = json.Unmarshal([]byte(jsonArr), &ids)
	quoted := make([]string, len(ids))
	for i, id := range ids {
		quoted[i] = `"` + strings.ReplaceAll(id, `"`, `\"`) + `"`
	}
	return "{" + strings.Join(quoted, ",") + "}"
}

func (s *memoryStore) FindEmbedded(ctx context.Context) ([]model.Memory, error) {
	now := time.Now().UTC()
	rows, err := s.db.WithContext(ctx).Raw(fmt.Sprintf(`
		SELECT m.id, m.content, m.component, m.category, m.importance, m.session_id, m.source_ids,
			m.entity_ids, m.embedding::text, m.created_at, m.updated_at, m.last_accessed, m.access_count,
			m.status, m.valid_at, m.invalid_at, m.superseded_by
		FROM memories m
		WHERE m.embedding IS NOT NULL AND %s
	`, recallableClause), now, now).Rows()
	if err != nil {
		return nil, fmt.Errorf("postgres: find embedded: %w", err)
	}
	defer rows.Close()

	var out []model.Memory
	for rows.Next() {
		mem, _, err := scanMemoryRow(rows, false)
		if err != nil {
			return nil, err
		}
		out = append(out, mem)
	}
	return out, rows.Err()
}

func (s *memoryStore) FindActiveByComponentSession(ctx context.Context, component, sessionID string) ([]model.Memory, error) {
	now := time.Now().UTC()
	rows, err := s.db.WithContext(ctx).Raw(fmt.Sprintf(`
		SELECT m.id, m.content, m.component, m.category, m.importance, m.session_id, m.source_ids,
			m.entity_ids, m.embedding::text, m.created_at, m.updated_at, m.last_accessed, m.access_count,
			m.status, m.valid_at, m.invalid_at, m.superseded_by
		FROM memories m
		WHERE m.component = ? AND m.session_id = ? AND %s
		ORDER BY m.importance ASC, m.updated_at ASC
	`, recallableClause), component, sessionID, now, now).Rows()
	if err != nil {
		return nil, fmt.Errorf("postgres: find active by component session: %w", err)
	}
	defer rows.Close()

	var out []model.Memory
	for rows.Next() {
		mem, _, err := scanMemoryRow(rows, false)
		if err != nil {
			return nil, err
		}
		out = append(out, mem)
	}
	return out, rows.Err()
}

func (s *memoryStore) FindUnembedded(ctx context.Context, limit int) ([]model.Memory, error) {
	now := time.Now().UTC()
	rows, err := s.db.WithContext(ctx).Raw(fmt.Sprintf(`
		SELECT m.id, m.content, m.component, m.category, m.importance, m.session_id, m.source_ids,
			m.entity_ids, m.embedding::text, m.created_at, m.updated_at, m.last_accessed, m.access_count,
			m.status, m.valid_at, m.invalid_at, m.superseded_by
		FROM memories m
		WHERE m.embedding IS NULL AND %s
		ORDER BY m.created_at ASC
		LIMIT ?
	`, recallableClause), now, now, limit).Rows()
	if err != nil {
		return nil, fmt.Errorf("postgres: find unembedded: %w", err)
	}
	defer rows.Close()

	var out []model.Memory
	for rows.Next() {
		mem, _, err := scanMemoryRow(rows, false)
		if err != nil {
			return nil, err
		}
		out = append(out, mem)
	}
	return out, rows.Err()
}

func (s *memoryStore) Supersede(ctx context.Context, oldID, newID string) error {
	err := s.db.WithContext(ctx).Exec(`
		UPDATE memories SET status = 'superseded', superseded_by = ?, updated_at = ? WHERE id = ?
	`, newID, time.Now().UTC(), oldID).Error
	if err != nil {
		return fmt.Errorf("postgres: supersede: %w", err)
	}
	return nil
}

func (s *memoryStore) ExpireItem(ctx context.Context, id string) error {
	now := time.Now().UTC()
	err := s.db.WithContext(ctx).Exec(`
		UPDATE memories SET status = 'expired', invalid_at = ?, updated_at = ? WHERE id = ?
	`, now, now, id).Error
	if err != nil {
		return fmt.Errorf("postgres: expire item: %w", err)
	}
	return nil
}

func (s *memoryStore) ExpireSession(ctx context.Context, sessionID, component string) (int, error) {
	now := time.Now().UTC()
	res := s.db.WithContext(ctx).Exec(fmt.Sprintf(`
		UPDATE memories SET status = 'expired', invalid_at = ?, updated_at = ?
		WHERE session_id = ? AND component = ? AND %s
	`, recallableClause), now, now, sessionID, component, now, now)
	if res.Error != nil {
		return 0, fmt.Errorf("postgres: expire session: %w", res.Error)
	}
	return int(res.RowsAffected), nil
}

func (s *memoryStore) ApplyImportanceDecay(ctx context.Context, component string, inactivePeriod time.Duration, decayRate, floorThreshold float64) (int, error) {
	now := time.Now().UTC()
	cutoff := now.Add(-inactivePeriod)

	rows, err := s.db.WithContext(ctx).Raw(fmt.Sprintf(`
		SELECT m.id, m.importance FROM memories m
		WHERE m.component = ? AND %s AND GREATEST(COALESCE(m.last_accessed, m.updated_at), m.updated_at) < ?
	`, recallableClause), component, now, now, cutoff).Rows()
	if err != nil {
		return 0, fmt.Errorf("postgres: decay scan: %w", err)
	}
	type row struct {
		id         string
		importance float64
	}
	var candidates []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.importance); err != nil {
			rows.Close()
			return 0, err
		}
		candidates = append(candidates, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	flooredCount := 0
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, c := range candidates {
			decayed := c.importance * decayRate
			if floorThreshold > 0 && decayed < floorThreshold {
				if err := tx.Exec(`
					UPDATE memories SET status = 'decayed', invalid_at = ?, updated_at = ? WHERE id = ?
				`, now, now, c.id).Error; err != nil {
					return fmt.Errorf("postgres: floor decay: %w", err)
				}
				flooredCount++
				continue
			}
			if err := tx.Exec(`
				UPDATE memories SET importance = ?, updated_at = ? WHERE id = ?
			`, decayed, now, c.id).Error; err != nil {
				return fmt.Errorf("postgres: apply decay: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return flooredCount, nil
}

func (s *memoryStore) DeleteTombstoned(ctx context.Context, status model.MemoryStatus, cutoff time.Time) (int, error) {
	res := s.db.WithContext(ctx).Exec(`
		DELETE FROM memories WHERE status = ? AND updated_at < ?
	`, string(status), cutoff.UTC())
	if res.Error != nil {
		return 0, fmt.Errorf("postgres: delete tombstoned: %w", res.Error)
	}
	return int(res.RowsAffected), nil
}

func (s *memoryStore) DeleteOrphanedEntities(ctx context.Context) (int, error) {
	res := s.db.WithContext(ctx).Exec(`
		DELETE FROM entities
		WHERE id NOT IN (
			SELECT DISTINCT (je.value)::uuid FROM memories m, jsonb_array_elements_text(m.entity_ids) je
			WHERE m.status = 'active'
		)
		  AND id NOT IN (SELECT from_entity FROM relationships)
		  AND id NOT IN (SELECT to_entity FROM relationships)
	`)
	if res.Error != nil {
		return 0, fmt.Errorf("postgres: delete orphaned entities: %w", res.Error)
	}
	return int(res.RowsAffected), nil
}

func (s *memoryStore) DeleteOrphanedRelationships(ctx context.Context) (int, error) {
	res := s.db.WithContext(ctx).Exec(`
		DELETE FROM relationships
		WHERE from_entity NOT IN (SELECT id FROM entities) OR to_entity NOT IN (SELECT id FROM entities)
	`)
	if res.Error != nil {
		return 0, fmt.Errorf("postgres: delete orphaned relationships: %w", res.Error)
	}
	return int(res.RowsAffected), nil
}

func (s *memoryStore) Stats(ctx context.Context) (model.Stats, error) {
	stats := model.Stats{ByStatus: map[model.MemoryStatus]int{}, ByComponent: map[string]int{}}

	rows, err := s.db.WithContext(ctx).Raw(`SELECT status, COUNT(*) FROM memories GROUP BY status`).Rows()
	if err != nil {
		return stats, err
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			rows.Close()
			return stats, err
		}
		stats.ByStatus[model.MemoryStatus(status)] = count
		stats.TotalMemories += count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return stats, err
	}

	rows, err = s.db.WithContext(ctx).Raw(`SELECT component, COUNT(*) FROM memories GROUP BY component`).Rows()
	if err != nil {
		return stats, err
	}
	for rows.Next() {
		var component string
		var count int
		if err := rows.Scan(&component, &count); err != nil {
			rows.Close()
			return stats, err
		}
		stats.ByComponent[component] = count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return stats, err
	}

	if err := s.db.WithContext(ctx).Raw(`SELECT COUNT(*) FROM entities`).Row().Scan(&stats.TotalEntities); err != nil {
		return stats, err
	}
	if err := s.db.WithContext(ctx).Raw(`SELECT COUNT(*) FROM relationships`).Row().Scan(&stats.TotalRelationships); err != nil {
		return stats, err
	}
	if err := s.db.WithContext(ctx).Raw(`SELECT COUNT(*) FROM episodes WHERE consolidated = FALSE`).Row().Scan(&stats.Unconsolidated); err != nil {
		return stats, err
	}
	return stats, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMemoryRow(row rowScanner, withRank bool) (model.Memory, float64, error) {
	var m model.Memory
	var status string
	var sourceIDs, entityIDs []byte
	var embeddingText sql.NullString
	var lastAccessed, validAt, invalidAt *time.Time
	var supersededBy sql.NullString
	var rank float64

	dest := []any{
		&m.ID, &m.Content, &m.Component, &m.Category, &m.Importance, &m.SessionID, &sourceIDs,
		&entityIDs, &embeddingText, &m.CreatedAt, &m.UpdatedAt, &lastAccessed, &m.AccessCount,
		&status, &validAt, &invalidAt, &supersededBy,
	}
	if withRank {
		dest = append(dest, &rank)
	}
	if err := row.Scan(dest...); err != nil {
		return model.Memory{}, 0, err
	}

	m.Status = model.MemoryStatus(status)
	m.SourceEpisodeIDs = decodeIDs(sourceIDs)
	m.EntityIDs = decodeIDs(entityIDs)
	m.Embedding = parseVectorText(embeddingText)
	m.LastAccessed = lastAccessed
	m.ValidAt = validAt
	m.InvalidAt = invalidAt
	if supersededBy.Valid {
		m.SupersededBy = supersededBy.String
	}
	return m, rank, nil
}

var _ registrystore.MemoryStore = (*memoryStore)(nil)
var _ registrystore.EpisodeStore = (*episodeStore)(nil)
