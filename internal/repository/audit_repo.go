package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"zhsystem/internal/database"
	"zhsystem/internal/model"
)

type AuditRepository struct {
	db database.DBTX
}

func NewAuditRepository(db database.DBTX) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) Log(ctx context.Context, entry model.AuditEntry) error {
	occurredAt, err := time.Parse(time.RFC3339Nano, entry.OccurredAt)
	if err != nil {
		return fmt.Errorf("parse audit time: %w", err)
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO audit_entries
		 (action, occurred_at, actor_user_id, actor_email, actor_ip, status, error_text)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.Action, occurredAt,
		entry.Actor.UserID, entry.Actor.Email, entry.Actor.IP,
		entry.Status, entry.Error)
	if err != nil {
		return fmt.Errorf("log audit entry: %w", err)
	}
	return nil
}

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 200
)

// auditFilter accumulates AND-ed predicates with positional arguments.
type auditFilter struct {
	clauses []string
	args    []any
}

func (f *auditFilter) add(clause string, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	f.args = append(f.args, value)
	f.clauses = append(f.clauses, fmt.Sprintf(clause, len(f.args)))
}

func (f *auditFilter) where() string {
	if len(f.clauses) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(f.clauses, " AND ")
}

func newAuditFilter(query model.AuditQuery) *auditFilter {
	f := &auditFilter{}
	f.add("lower(action) = lower($%d)", query.Action)
	f.add("actor_user_id = $%d", query.ActorID)
	f.add("lower(status) = lower($%d)", query.Status)
	f.add("occurred_at >= $%d::timestamptz", query.From)
	f.add("occurred_at <= $%d::timestamptz", query.To)
	return f
}

// Query returns one page of entries, newest first, and the paging metadata.
func (r *AuditRepository) Query(ctx context.Context, query model.AuditQuery) ([]model.AuditEntry, model.Meta, error) {
	page := max(query.Page, 1)
	limit := query.Limit
	if limit <= 0 {
		limit = defaultAuditLimit
	}
	limit = min(limit, maxAuditLimit)

	filter := newAuditFilter(query)
	whereClause := filter.where()

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM audit_entries "+whereClause, filter.args...).Scan(&total); err != nil {
		return nil, model.Meta{}, fmt.Errorf("count audit entries: %w", err)
	}
	meta := model.Meta{Page: page, Limit: limit, Total: total, TotalPages: (total + limit - 1) / limit}

	next := len(filter.args) + 1
	dataQuery := fmt.Sprintf(
		`SELECT action, occurred_at, actor_user_id, actor_email, actor_ip, status, error_text
		 FROM audit_entries %s
		 ORDER BY occurred_at DESC
		 LIMIT $%d OFFSET $%d`, whereClause, next, next+1)
	args := append(filter.args, limit, (page-1)*limit)

	rows, err := r.db.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, model.Meta{}, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	entries := make([]model.AuditEntry, 0, limit)
	for rows.Next() {
		var (
			e          model.AuditEntry
			occurredAt time.Time
		)
		if err := rows.Scan(&e.Action, &occurredAt,
			&e.Actor.UserID, &e.Actor.Email, &e.Actor.IP,
			&e.Status, &e.Error); err != nil {
			return nil, model.Meta{}, fmt.Errorf("scan audit entry: %w", err)
		}
		e.OccurredAt = occurredAt.UTC().Format(time.RFC3339Nano)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, model.Meta{}, fmt.Errorf("iterate audit entries: %w", err)
	}

	return entries, meta, nil
}
