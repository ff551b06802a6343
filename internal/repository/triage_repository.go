package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-triage/internal/domain"
)

// TriageFilter narrows ListRecent.
type TriageFilter struct {
	Category *domain.Category
	Priority *domain.Priority
	RouteTo  *domain.Team
	Status   *domain.TriageStatus
	Since    *time.Time
	Limit    int
	Offset   int
}

// TriageRepository stores every triage decision, complete or not.
type TriageRepository interface {
	Create(ctx context.Context, result *domain.TriageResult) error
	LatestByTicketID(ctx context.Context, ticketID domain.TicketID) (*domain.TriageResult, error)
	ListRecent(ctx context.Context, filter TriageFilter) ([]domain.TriageResult, error)
}

type triageRepository struct {
	pool *pgxpool.Pool
}

// NewTriageRepository instantiates repository.
func NewTriageRepository(pool *pgxpool.Pool) TriageRepository {
	return &triageRepository{pool: pool}
}

const triageColumns = `run_id::text, ticket_id, subject, message, category, priority, route_to,
               sla_hours, escalation_path, regular_customer, routing_fallback, status,
               failed_stage, failures, llm_requests, llm_tokens, created_at`

func (r *triageRepository) Create(ctx context.Context, result *domain.TriageResult) error {
	failures, err := encodeFailures(result.Failures)
	if err != nil {
		return err
	}
	const query = `
        INSERT INTO triage_decisions (run_id, ticket_id, subject, message, category, priority, route_to,
            sla_hours, escalation_path, regular_customer, routing_fallback, status, failed_stage, failures,
            llm_requests, llm_tokens, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`
	_, err = r.pool.Exec(ctx, query,
		result.RunID,
		string(result.TicketID),
		result.Subject,
		result.Message,
		string(result.Category),
		string(result.Priority),
		string(result.RouteTo),
		result.SLAHours,
		result.EscalationPath,
		result.RegularCustomer,
		result.RoutingFallback,
		string(result.Status),
		string(result.FailedStage),
		failures,
		result.Usage.Requests,
		result.Usage.Tokens,
		result.CreatedAt,
	)
	return err
}

func (r *triageRepository) LatestByTicketID(ctx context.Context, ticketID domain.TicketID) (*domain.TriageResult, error) {
	query := `SELECT ` + triageColumns + `
        FROM triage_decisions WHERE ticket_id=$1
        ORDER BY created_at DESC LIMIT 1`
	rows, err := r.pool.Query(ctx, query, string(ticketID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results, err := scanResults(rows)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, pgx.ErrNoRows
	}
	return &results[0], nil
}

func (r *triageRepository) ListRecent(ctx context.Context, filter TriageFilter) ([]domain.TriageResult, error) {
	query, args := buildListQuery(filter)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanResults(rows)
}

func buildListQuery(filter TriageFilter) (string, []any) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.Category != nil {
		args = append(args, string(*filter.Category))
		clauses = append(clauses, fmt.Sprintf("category=$%d", len(args)))
	}
	if filter.Priority != nil {
		args = append(args, string(*filter.Priority))
		clauses = append(clauses, fmt.Sprintf("priority=$%d", len(args)))
	}
	if filter.RouteTo != nil {
		args = append(args, string(*filter.RouteTo))
		clauses = append(clauses, fmt.Sprintf("route_to=$%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		clauses = append(clauses, fmt.Sprintf("status=$%d", len(args)))
	}
	if filter.Since != nil {
		args = append(args, *filter.Since)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT %s FROM triage_decisions WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		triageColumns, strings.Join(clauses, " AND "), limit, offset)
	return query, args
}

func scanResults(rows pgx.Rows) ([]domain.TriageResult, error) {
	var out []domain.TriageResult
	for rows.Next() {
		var (
			result                                                   domain.TriageResult
			ticketID, category, priority, routeTo, status, failedStg string
			failures                                                 []byte
		)
		if err := rows.Scan(
			&result.RunID,
			&ticketID,
			&result.Subject,
			&result.Message,
			&category,
			&priority,
			&routeTo,
			&result.SLAHours,
			&result.EscalationPath,
			&result.RegularCustomer,
			&result.RoutingFallback,
			&status,
			&failedStg,
			&failures,
			&result.Usage.Requests,
			&result.Usage.Tokens,
			&result.CreatedAt,
		); err != nil {
			return nil, err
		}
		result.TicketID = domain.TicketID(ticketID)
		result.Category = domain.Category(category)
		result.Priority = domain.Priority(priority)
		result.RouteTo = domain.Team(routeTo)
		result.Status = domain.TriageStatus(status)
		result.FailedStage = domain.Stage(failedStg)
		if len(failures) > 0 {
			if err := json.Unmarshal(failures, &result.Failures); err != nil {
				return nil, fmt.Errorf("decode failures for run %s: %w", result.RunID, err)
			}
		}
		out = append(out, result)
	}
	return out, rows.Err()
}

func encodeFailures(failures []domain.StageFailure) (string, error) {
	if len(failures) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(failures)
	if err != nil {
		return "", fmt.Errorf("encode failures: %w", err)
	}
	return string(data), nil
}
