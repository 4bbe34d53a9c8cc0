package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/chirino/souvenir/internal/lexical"
	"github.com/chirino/souvenir/internal/model"
	registrystore "github.com/chirino/souvenir/internal/registry/store"
	"github.com/google/uuid"

	jsonpkg "encoding/json"
)

type memoryStore struct {
	db                 *sql.DB
	migrator           *Backend
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

func nowStr() string { return time.Now().UTC().Format(time.RFC3339Nano) }

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func parseTimePtr(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t := parseTime(ns.String)
	return &t
}

func encodeEmbedding(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeEmbedding(b []byte) []float32 {
	if len(b) == 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

func encodeIDs(ids []string) string {
	if ids == nil {
		ids = []string{}
	}
	b, _ := jsonpkg.Marshal(ids)
	return string(b)
}

func decodeIDs(s string) []string {
	var ids []string
	if s == "" {
		return nil
	}
	_ = jsonpkg.Unmarshal([]byte(s), &ids)
	return ids
}

// ftsWrite indexes (or re-indexes) one memory's content, self-healing the
// virtual table if it was dropped or never created.
func (s *memoryStore) ftsWrite(ctx context.Context, tx *sql.Tx, id, content string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM memories_fts WHERE id = ?`, id)
	if err == nil {
		_, err = tx.ExecContext(ctx, `INSERT INTO memories_fts (id, content) VALUES (?, ?)`, id, content)
	}
	if err != nil && isMissingTableErr(err) {
		// Re-apply the schema on tx itself: the pool has a single
		// connection, which tx already holds.
		if _, migrateErr := tx.ExecContext(ctx, schemaSQL); migrateErr != nil {
			return fmt.Errorf("sqlite: migrate: %w", migrateErr)
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO memories_fts (id, content) VALUES (?, ?)`, id, content)
	}
	return err
}

func isMissingTableErr(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "no such table")
}

func (s *memoryStore) Insert(ctx context.Context, m model.Memory) error {
	if err := s.validateEmbedding(m.Embedding); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO memories (id, content, component, category, importance, session_id, source_ids,
			entity_ids, embedding, created_at, updated_at, last_accessed, access_count, status,
			valid_at, invalid_at, superseded_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.Content, m.Component, m.Category, m.Importance, m.SessionID,
		encodeIDs(m.SourceEpisodeIDs), encodeIDs(m.EntityIDs), encodeEmbedding(m.Embedding),
		formatTime(m.CreatedAt), formatTime(m.UpdatedAt), formatTimePtr(m.LastAccessed), m.AccessCount,
		string(m.Status), formatTimePtr(m.ValidAt), formatTimePtr(m.InvalidAt), nullString(m.SupersededBy))
	if err != nil {
		return fmt.Errorf("sqlite: insert memory: %w", err)
	}
	if err := s.ftsWrite(ctx, tx, m.ID, m.Content); err != nil {
		return fmt.Errorf("sqlite: index memory: %w", err)
	}
	return tx.Commit()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (s *memoryStore) Update(ctx context.Context, id string, u model.MemoryUpdate) error {
	if u.SetEmbedding {
		if err := s.validateEmbedding(u.Embedding); err != nil {
			return err
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	sets := []string{"updated_at = ?"}
	args := []any{nowStr()}

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
		sets = append(sets, "embedding = ?")
		args = append(args, encodeEmbedding(u.Embedding))
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
		args = append(args, formatTimePtr(u.InvalidAt))
	}

	args = append(args, id)
	_, err = tx.ExecContext(ctx, fmt.Sprintf(`UPDATE memories SET %s WHERE id = ?`, strings.Join(sets, ", ")), args...)
	if err != nil {
		return fmt.Errorf("sqlite: update memory: %w", err)
	}

	if u.Content != nil {
		if err := s.ftsWrite(ctx, tx, id, *u.Content); err != nil {
			return fmt.Errorf("sqlite: reindex memory: %w", err)
		}
	}
	return tx.Commit()
}

func (s *memoryStore) UpdateAccessStats(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		UPDATE memories SET access_count = access_count + 1, last_accessed = ? WHERE id = ?
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	now := nowStr()
	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, now, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

const recallableClause = `m.status = 'active' AND (m.valid_at IS NULL OR m.valid_at <= ?) AND (m.invalid_at IS NULL OR m.invalid_at > ?)`

func (s *memoryStore) SearchFTS(ctx context.Context, query string, limit int) ([]registrystore.ScoredMemory, error) {
	expr := lexical.MatchExpression(query)
	if expr == "" {
		return nil, nil
	}
	now := nowStr()
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT m.id, m.content, m.component, m.category, m.importance, m.session_id, m.source_ids,
			m.entity_ids, m.embedding, m.created_at, m.updated_at, m.last_accessed, m.access_count,
			m.status, m.valid_at, m.invalid_at, m.superseded_by, bm25(memories_fts) AS rank
		FROM memories_fts
		JOIN memories m ON m.id = memories_fts.id
		WHERE memories_fts MATCH ? AND %s
		ORDER BY rank ASC
		LIMIT ?
	`, recallableClause), expr, now, now, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: search fts: %w", err)
	}
	defer rows.Close()

	var out []registrystore.ScoredMemory
	for rows.Next() {
		mem, rank, err := scanMemoryWithRank(rows)
		if err != nil {
			return nil, err
		}
		// bm25() returns a negative value, more negative is a better match;
		// flip the sign so callers can treat higher as stronger.
		out = append(out, registrystore.ScoredMemory{Memory: mem, BM25: -rank})
	}
	return out, rows.Err()
}

func (s *memoryStore) FindSimilar(ctx context.Context, content, component string, opts registrystore.SimilarOptions) ([]registrystore.ScoredMemory, error) {
	expr := lexical.MatchExpression(content)
	if expr == "" {
		return nil, nil
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 1
	}
	now := nowStr()
	query := fmt.Sprintf(`
		SELECT m.id, m.content, m.component, m.category, m.importance, m.session_id, m.source_ids,
			m.entity_ids, m.embedding, m.created_at, m.updated_at, m.last_accessed, m.access_count,
			m.status, m.valid_at, m.invalid_at, m.superseded_by, bm25(memories_fts) AS rank
		FROM memories_fts
		JOIN memories m ON m.id = memories_fts.id
		WHERE memories_fts MATCH ? AND m.component = ? AND %s
	`, recallableClause)
	args := []any{expr, component, now, now}
	if opts.Category != "" {
		query += " AND m.category = ?"
		args = append(args, opts.Category)
	}
	if opts.SessionID != "" {
		query += " AND m.session_id = ?"
		args = append(args, opts.SessionID)
	}
	query += " ORDER BY bm25(memories_fts) ASC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: find similar: %w", err)
	}
	defer rows.Close()

	var out []registrystore.ScoredMemory
	for rows.Next() {
		mem, rank, err := scanMemoryWithRank(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, registrystore.ScoredMemory{Memory: mem, BM25: -rank})
	}
	return out, rows.Err()
}

func (s *memoryStore) UpsertEntity(ctx context.Context, entity model.Entity) (model.Entity, error) {
	var existingID, existingType string
	err := s.db.QueryRowContext(ctx, `SELECT id, type FROM entities WHERE name = ? COLLATE NOCASE`, entity.Name).
		Scan(&existingID, &existingType)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		id := entity.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		if _, err := s.db.ExecContext(ctx, `INSERT INTO entities (id, name, type) VALUES (?, ?, ?)`,
			id.String(), entity.Name, entity.Type); err != nil {
			return model.Entity{}, fmt.Errorf("sqlite: insert entity: %w", err)
		}
		return model.Entity{ID: id, Name: entity.Name, Type: entity.Type}, nil
	case err != nil:
		return model.Entity{}, fmt.Errorf("sqlite: lookup entity: %w", err)
	default:
		if existingType != entity.Type {
			if _, err := s.db.ExecContext(ctx, `UPDATE entities SET type = ? WHERE id = ?`, entity.Type, existingID); err != nil {
				return model.Entity{}, fmt.Errorf("sqlite: update entity type: %w", err)
			}
			existingType = entity.Type
		}
		id, err := uuid.Parse(existingID)
		if err != nil {
			return model.Entity{}, fmt.Errorf("sqlite: decode entity id: %w", err)
		}
		return model.Entity{ID: id, Name: entity.Name, Type: existingType}, nil
	}
}

func (s *memoryStore) UpsertRelationship(ctx context.Context, rel model.Relationship) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO relationships (from_entity, to_entity, relation, confidence, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (from_entity, to_entity, relation) DO UPDATE SET
			confidence = excluded.confidence,
			updated_at = excluded.updated_at
	`, rel.FromEntityID.String(), rel.ToEntityID.String(), rel.Relation, rel.Confidence, nowStr())
	if err != nil {
		return fmt.Errorf("sqlite: upsert relationship: %w", err)
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
		clauses = append(clauses, "name LIKE ? ESCAPE '\\'")
		args = append(args, "%"+escapeLike(tok)+"%")
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, name, type FROM entities WHERE %s
	`, strings.Join(clauses, " OR ")), args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: find entities: %w", err)
	}
	defer rows.Close()

	var out []model.Entity
	for rows.Next() {
		var idStr, name, typ string
		if err := rows.Scan(&idStr, &name, &typ); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			continue
		}
		out = append(out, model.Entity{ID: id, Name: name, Type: typ})
	}
	return out, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer("\\", "\\\\", "%", "\\%", "_", "\\_")
	return r.Replace(s)
}

func (s *memoryStore) FindRelationshipsForEntity(ctx context.Context, id string) ([]model.Relationship, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT from_entity, to_entity, relation, confidence, updated_at
		FROM relationships WHERE from_entity = ? OR to_entity = ?
	`, id, id)
	if err != nil {
		return nil, fmt.Errorf("sqlite: find relationships: %w", err)
	}
	defer rows.Close()

	var out []model.Relationship
	for rows.Next() {
		var from, to, relation, updatedAt string
		var confidence float64
		if err := rows.Scan(&from, &to, &relation, &confidence, &updatedAt); err != nil {
			return nil, err
		}
		fromID, err1 := uuid.Parse(from)
		toID, err2 := uuid.Parse(to)
		if err1 != nil || err2 != nil {
			continue
		}
		out = append(out, model.Relationship{
			FromEntityID: fromID, ToEntityID: toID, Relation: relation,
			Confidence: confidence, UpdatedAt: parseTime(updatedAt),
		})
	}
	return out, rows.Err()
}

func (s *memoryStore) FindMemoriesByEntityIds(ctx context.Context, ids []string) ([]model.Memory, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	now := nowStr()
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT DISTINCT m.id, m.content, m.component, m.category, m.importance, m.session_id, m.source_ids,
			m.entity_ids, m.embedding, m.created_at, m.updated_at, m.last_accessed, m.access_count,
			m.status, m.valid_at, m.invalid_at, m.superseded_by
		FROM memories m, json_each(m.entity_ids) je
		WHERE je.value IN (%s) AND %s
	`, placeholders(len(ids)), recallableClause), append(toAnySlice(ids), now, now)...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: find memories by entity ids: %w", err)
	}
	defer rows.Close()

	var out []model.Memory
	for rows.Next() {
		mem, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, mem)
	}
	return out, rows.Err()
}

func (s *memoryStore) FindEmbedded(ctx context.Context) ([]model.Memory, error) {
	now := nowStr()
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT m.id, m.content, m.component, m.category, m.importance, m.session_id, m.source_ids,
			m.entity_ids, m.embedding, m.created_at, m.updated_at, m.last_accessed, m.access_count,
			m.status, m.valid_at, m.invalid_at, m.superseded_by
		FROM memories m
		WHERE m.embedding IS NOT NULL AND %s
	`, recallableClause), now, now)
	if err != nil {
		return nil, fmt.Errorf("sqlite: find embedded: %w", err)
	}
	defer rows.Close()

	var out []model.Memory
	for rows.Next() {
		mem, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, mem)
	}
	return out, rows.Err()
}

func (s *memoryStore) FindActiveByComponentSession(ctx context.Context, component, sessionID string) ([]model.Memory, error) {
	now := nowStr()
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT m.id, m.content, m.component, m.category, m.importance, m.session_id, m.source_ids,
			m.entity_ids, m.embedding, m.created_at, m.updated_at, m.last_accessed, m.access_count,
			m.status, m.valid_at, m.invalid_at, m.superseded_by
		FROM memories m
		WHERE m.component = ? AND m.session_id = ? AND %s
		ORDER BY m.importance ASC, m.updated_at ASC
	`, recallableClause), component, sessionID, now, now)
	if err != nil {
		return nil, fmt.Errorf("sqlite: find active by component session: %w", err)
	}
	defer rows.Close()

	var out []model.Memory
	for rows.Next() {
		mem, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, mem)
	}
	return out, rows.Err()
}

func (s *memoryStore) FindUnembedded(ctx context.Context, limit int) ([]model.Memory, error) {
	now := nowStr()
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT m.id, m.content, m.component, m.category, m.importance, m.session_id, m.source_ids,
			m.entity_ids, m.embedding, m.created_at, m.updated_at, m.last_accessed, m.access_count,
			m.status, m.valid_at, m.invalid_at, m.superseded_by
		FROM memories m
		WHERE m.embedding IS NULL AND %s
		ORDER BY m.created_at ASC
		LIMIT ?
	`, recallableClause), now, now, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: find unembedded: %w", err)
	}
	defer rows.Close()

	var out []model.Memory
	for rows.Next() {
		mem, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, mem)
	}
	return out, rows.Err()
}

func placeholders(n int) string {
	ph := make([]string, n)
	for i := range ph {
		ph[i] = "?"
	}
	return strings.Join(ph, ", ")
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func (s *memoryStore) Supersede(ctx context.Context, oldID, newID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE memories SET status = 'superseded', superseded_by = ?, updated_at = ? WHERE id = ?
	`, newID, nowStr(), oldID)
	if err != nil {
		return fmt.Errorf("sqlite: supersede: %w", err)
	}
	return nil
}

func (s *memoryStore) ExpireItem(ctx context.Context, id string) error {
	now := nowStr()
	_, err := s.db.ExecContext(ctx, `
		UPDATE memories SET status = 'expired', invalid_at = ?, updated_at = ? WHERE id = ?
	`, now, now, id)
	if err != nil {
		return fmt.Errorf("sqlite: expire item: %w", err)
	}
	return nil
}

func (s *memoryStore) ExpireSession(ctx context.Context, sessionID, component string) (int, error) {
	now := nowStr()
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE memories SET status = 'expired', invalid_at = ?, updated_at = ?
		WHERE session_id = ? AND component = ? AND %s
	`, recallableClause), now, now, sessionID, component, now, now)
	if err != nil {
		return 0, fmt.Errorf("sqlite: expire session: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *memoryStore) ApplyImportanceDecay(ctx context.Context, component string, inactivePeriod time.Duration, decayRate, floorThreshold float64) (int, error) {
	now := time.Now().UTC()
	cutoff := formatTime(now.Add(-inactivePeriod))
	nowS := formatTime(now)

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT m.id, m.importance FROM memories m
		WHERE m.component = ? AND %s AND MAX(COALESCE(m.last_accessed, m.updated_at), m.updated_at) < ?
	`, recallableClause), component, nowS, nowS, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sqlite: decay scan: %w", err)
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
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	for _, c := range candidates {
		decayed := c.importance * decayRate
		if floorThreshold > 0 && decayed < floorThreshold {
			if _, err := tx.ExecContext(ctx, `
				UPDATE memories SET status = 'decayed', invalid_at = ?, updated_at = ? WHERE id = ?
			`, nowS, nowS, c.id); err != nil {
				return 0, fmt.Errorf("sqlite: floor decay: %w", err)
			}
			flooredCount++
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE memories SET importance = ?, updated_at = ? WHERE id = ?
		`, decayed, nowS, c.id); err != nil {
			return 0, fmt.Errorf("sqlite: apply decay: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return flooredCount, nil
}

func (s *memoryStore) DeleteTombstoned(ctx context.Context, status model.MemoryStatus, cutoff time.Time) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT id FROM memories WHERE status = ? AND updated_at < ?
	`, string(status), formatTime(cutoff))
	if err != nil {
		return 0, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, tx.Commit()
	}

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `DELETE FROM memories_fts WHERE id = ?`, id); err != nil {
			return 0, err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id); err != nil {
			return 0, err
		}
	}
	return len(ids), tx.Commit()
}

func (s *memoryStore) DeleteOrphanedEntities(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM entities
		WHERE id NOT IN (SELECT DISTINCT je.value FROM memories m, json_each(m.entity_ids) je WHERE m.status = 'active')
		  AND id NOT IN (SELECT from_entity FROM relationships)
		  AND id NOT IN (SELECT to_entity FROM relationships)
	`)
	if err != nil {
		return 0, fmt.Errorf("sqlite: delete orphaned entities: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *memoryStore) DeleteOrphanedRelationships(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM relationships
		WHERE from_entity NOT IN (SELECT id FROM entities) OR to_entity NOT IN (SELECT id FROM entities)
	`)
	if err != nil {
		return 0, fmt.Errorf("sqlite: delete orphaned relationships: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *memoryStore) Stats(ctx context.Context) (model.Stats, error) {
	stats := model.Stats{ByStatus: map[model.MemoryStatus]int{}, ByComponent: map[string]int{}}

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM memories GROUP BY status`)
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

	rows, err = s.db.QueryContext(ctx, `SELECT component, COUNT(*) FROM memories GROUP BY component`)
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

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entities`).Scan(&stats.TotalEntities); err != nil {
		return stats, err
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM relationships`).Scan(&stats.TotalRelationships); err != nil {
		return stats, err
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM episodes WHERE consolidated = 0`).Scan(&stats.Unconsolidated); err != nil {
		return stats, err
	}
	return stats, nil
}

func scanMemory(row scanner) (model.Memory, error) {
	mem, _, err := scanMemoryRow(row, false)
	return mem, err
}

func scanMemoryWithRank(row scanner) (model.Memory, float64, error) {
	return scanMemoryRow(row, true)
}

func scanMemoryRow(row scanner, withRank bool) (model.Memory, float64, error) {
	var m model.Memory
	var status, createdAt, updatedAt, sourceIDs, entityIDs string
	var lastAccessed, validAt, invalidAt, supersededBy sql.NullString
	var embedding []byte
	var rank float64

	dest := []any{
		&m.ID, &m.Content, &m.Component, &m.Category, &m.Importance, &m.SessionID, &sourceIDs,
		&entityIDs, &embedding, &createdAt, &updatedAt, &lastAccessed, &m.AccessCount,
		&status, &validAt, &invalidAt, &supersededBy,
	}
	if withRank {
		dest = append(dest, &rank)
	}
	if err := row.Scan(dest...); err != nil {
		return model.Memory{}, 0, err
	}

	m.Status = model.MemoryStatus(status)
	m.CreatedAt = parseTime(createdAt)
	m.UpdatedAt = parseTime(updatedAt)
	m.SourceEpisodeIDs = decodeIDs(sourceIDs)
	m.EntityIDs = decodeIDs(entityIDs)
	m.Embedding = decodeEmbedding(embedding)
	m.LastAccessed = parseTimePtr(lastAccessed)
	m.ValidAt = parseTimePtr(validAt)
	m.InvalidAt = parseTimePtr(invalidAt)
	if supersededBy.Valid {
		m.SupersededBy = supersededBy.String
	}
	return m, rank, nil
}

var _ registrystore.MemoryStore = (*memoryStore)(nil)
var _ registrystore.EpisodeStore = (*episodeStore)(nil)
