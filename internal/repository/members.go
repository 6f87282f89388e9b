// Package repository reads the member snapshots the matching engine consumes
// and writes the audit rows it emits. All other persistence belongs to the
// surrounding platform.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"member-match-workers/internal/common/logger"
	"member-match-workers/internal/matching"
	"member-match-workers/internal/models"
)

// ErrMemberNotFound is returned when a subject id has no row in the current
// snapshot.
var ErrMemberNotFound = errors.New("member not found")

const signalsCachePrefix = "member:signals:"

// MemberRepository serves candidate pools from Postgres with a read-through
// Redis cache for per-member signals.
type MemberRepository struct {
	db       *sql.DB
	redis    *redis.Client
	cacheTTL time.Duration
	logger   logger.Logger
}

func NewMemberRepository(db *sql.DB, rdb *redis.Client, cacheTTL time.Duration, log logger.Logger) *MemberRepository {
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}
	return &MemberRepository{
		db:       db,
		redis:    rdb,
		cacheTTL: cacheTTL,
		logger:   log.WithFields(map[string]interface{}{"component": "member-repository"}),
	}
}

// ActiveMembers returns the signals of every active member, with opportunity
// tags attached, excluding excludeID when non-empty. The digest opt-in flag
// rides along on the profile; callers filter on it as needed.
func (r *MemberRepository) ActiveMembers(ctx context.Context, excludeID string) ([]matching.Signals, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, COALESCE(name, ''), COALESCE(industry, ''), is_active, weekly_digest_opt_in
		FROM members
		WHERE is_active = TRUE AND ($1 = '' OR id <> $1)
		ORDER BY created_at`, excludeID)
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	var members []models.MemberProfile
	for rows.Next() {
		var m models.MemberProfile
		if err := rows.Scan(&m.ID, &m.Name, &m.Industry, &m.IsActive, &m.WeeklyDigestOptIn); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}

	opportunities, err := r.opportunitiesFor(ctx, excludeID)
	if err != nil {
		return nil, err
	}

	signals := make([]matching.Signals, len(members))
	for i, m := range members {
		signals[i] = matching.NewSignals(m, opportunities[m.ID])
	}
	return signals, nil
}

func (r *MemberRepository) opportunitiesFor(ctx context.Context, excludeID string) (map[string][]models.Opportunity, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT o.member_id, o.kind, o.category
		FROM member_opportunities o
		JOIN members m ON m.id = o.member_id
		WHERE m.is_active = TRUE AND ($1 = '' OR o.member_id <> $1)`, excludeID)
	if err != nil {
		return nil, fmt.Errorf("query opportunities: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]models.Opportunity)
	for rows.Next() {
		var o models.Opportunity
		if err := rows.Scan(&o.MemberID, &o.Kind, &o.Category); err != nil {
			return nil, fmt.Errorf("scan opportunity: %w", err)
		}
		out[o.MemberID] = append(out[o.MemberID], o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate opportunities: %w", err)
	}
	return out, nil
}

// MemberSignals returns one member's normalized signals, served from the
// Redis cache when fresh.
func (r *MemberRepository) MemberSignals(ctx context.Context, memberID string) (matching.Signals, error) {
	cacheKey := signalsCachePrefix + memberID
	if r.redis != nil {
		if val, err := r.redis.Get(ctx, cacheKey).Result(); err == nil {
			var cached matching.Signals
			if err := json.Unmarshal([]byte(val), &cached); err == nil {
				return cached, nil
			}
		}
	}

	var m models.MemberProfile
	err := r.db.QueryRowContext(ctx, `
		SELECT id, COALESCE(name, ''), COALESCE(industry, ''), is_active, weekly_digest_opt_in
		FROM members WHERE id = $1`, memberID).
		Scan(&m.ID, &m.Name, &m.Industry, &m.IsActive, &m.WeeklyDigestOptIn)
	if errors.Is(err, sql.ErrNoRows) {
		return matching.Signals{}, ErrMemberNotFound
	}
	if err != nil {
		return matching.Signals{}, fmt.Errorf("query member %s: %w", memberID, err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT member_id, kind, category
		FROM member_opportunities WHERE member_id = $1`, memberID)
	if err != nil {
		return matching.Signals{}, fmt.Errorf("query opportunities for %s: %w", memberID, err)
	}
	defer rows.Close()

	var opportunities []models.Opportunity
	for rows.Next() {
		var o models.Opportunity
		if err := rows.Scan(&o.MemberID, &o.Kind, &o.Category); err != nil {
			return matching.Signals{}, fmt.Errorf("scan opportunity: %w", err)
		}
		opportunities = append(opportunities, o)
	}
	if err := rows.Err(); err != nil {
		return matching.Signals{}, fmt.Errorf("iterate opportunities: %w", err)
	}

	signals := matching.NewSignals(m, opportunities)

	if r.redis != nil {
		if data, err := json.Marshal(signals); err == nil {
			if err := r.redis.Set(ctx, cacheKey, data, r.cacheTTL).Err(); err != nil {
				r.logger.Debug("signals cache write failed", map[string]interface{}{
					"memberId": memberID,
					"error":    err.Error(),
				})
			}
		}
	}

	return signals, nil
}

// InvalidateSignals drops a member's cached signals, for callers reacting to
// profile edits.
func (r *MemberRepository) InvalidateSignals(ctx context.Context, memberID string) {
	if r.redis == nil {
		return
	}
	if err := r.redis.Del(ctx, signalsCachePrefix+memberID).Err(); err != nil {
		r.logger.Debug("signals cache invalidation failed", map[string]interface{}{
			"memberId": memberID,
			"error":    err.Error(),
		})
	}
}

// OpenCollabRequests returns open collaboration requests posted by other
// members, newest first, bounded by limit.
func (r *MemberRepository) OpenCollabRequests(ctx context.Context, excludeMemberID string, limit int) ([]models.CollabRequest, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, member_id, title, COALESCE(description, ''), COALESCE(looking_for, '[]'), status
		FROM collab_requests
		WHERE status = $1 AND ($2 = '' OR member_id <> $2)
		ORDER BY created_at DESC
		LIMIT $3`, models.CollabStatusOpen, excludeMemberID, limit)
	if err != nil {
		return nil, fmt.Errorf("query collab requests: %w", err)
	}
	defer rows.Close()

	var requests []models.CollabRequest
	for rows.Next() {
		var req models.CollabRequest
		var lookingFor []byte
		if err := rows.Scan(&req.ID, &req.MemberID, &req.Title, &req.Description, &lookingFor, &req.Status); err != nil {
			return nil, fmt.Errorf("scan collab request: %w", err)
		}
		if err := json.Unmarshal(lookingFor, &req.LookingFor); err != nil {
			req.LookingFor = nil
		}
		requests = append(requests, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate collab requests: %w", err)
	}
	return requests, nil
}

// Record persists one digest decision. Implements matching.AuditLog; callers
// treat failures as non-fatal.
func (r *MemberRepository) Record(ctx context.Context, runID string, decision models.DigestDecision) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO match_digest_log (run_id, member_id, status, match_count, reason, delivery_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())`,
		runID, decision.MemberID, decision.Status, decision.MatchCount, decision.Reason, decision.DeliveryID)
	if err != nil {
		return fmt.Errorf("insert digest decision: %w", err)
	}
	return nil
}
