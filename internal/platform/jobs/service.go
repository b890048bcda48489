package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"crm/internal/domain/targets"
	"crm/internal/platform/config"
)

const (
	JobRecurrenceSweep  = "target_recurrence_sweep"
	JobAggregationSweep = "target_aggregation_sweep"
)

type Service struct {
	DB      *pgxpool.Pool
	Cfg     config.Config
	Targets *targets.Service
	queue   chan job
}

type job struct {
	Type     string
	TenantID string
	Run      func(context.Context) (any, error)
}

func New(db *pgxpool.Pool, cfg config.Config, targetSvc *targets.Service) *Service {
	return &Service{
		DB:      db,
		Cfg:     cfg,
		Targets: targetSvc,
		queue:   make(chan job, 128),
	}
}

func (s *Service) Start(ctx context.Context) {
	go s.worker(ctx)
	if s.Cfg.RecurrenceInterval > 0 {
		go s.scheduleRecurrences(ctx, s.Cfg.RecurrenceInterval)
	}
	if s.Cfg.AggregationInterval > 0 {
		go s.scheduleAggregation(ctx, s.Cfg.AggregationInterval)
	}
}

func (s *Service) Enqueue(jobType, tenantID string, run func(context.Context) (any, error)) {
	select {
	case s.queue <- job{Type: jobType, TenantID: tenantID, Run: run}:
	default:
		slog.Warn("job queue full", "jobType", jobType, "tenantId", tenantID)
	}
}

func (s *Service) RunNow(ctx context.Context, jobType, tenantID string, run func(context.Context) (any, error)) (any, error) {
	return s.runJob(ctx, job{Type: jobType, TenantID: tenantID, Run: run})
}

func (s *Service) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.queue:
			if _, err := s.runJob(ctx, j); err != nil {
				slog.Warn("job run failed", "jobType", j.Type, "tenantId", j.TenantID, "err", err)
			}
		}
	}
}

func (s *Service) runJob(ctx context.Context, j job) (any, error) {
	var tenantParam any
	if j.TenantID != "" {
		tenantParam = j.TenantID
	}
	runID := ""
	if err := s.DB.QueryRow(ctx, `
    INSERT INTO job_runs (tenant_id, job_type, status)
    VALUES ($1,$2,$3)
    RETURNING id
  `, tenantParam, j.Type, "running").Scan(&runID); err != nil {
		slog.Warn("job run insert failed", "err", err)
	}

	details, err := j.Run(ctx)
	status := "completed"
	if err != nil {
		status = "failed"
	}
	detailsJSON, marshalErr := json.Marshal(details)
	if marshalErr != nil {
		slog.Warn("job details marshal failed", "err", marshalErr)
		detailsJSON = []byte("{}")
	}
	if runID != "" {
		if _, updErr := s.DB.Exec(ctx, `
      UPDATE job_runs
      SET status = $1, details_json = $2, completed_at = now()
      WHERE id = $3
    `, status, detailsJSON, runID); updErr != nil {
			slog.Warn("job run update failed", "err", updErr)
		}
	}
	return details, err
}

func (s *Service) scheduleRecurrences(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Enqueue(JobRecurrenceSweep, "", func(ctx context.Context) (any, error) {
				return s.Targets.RunRecurrences(ctx, time.Now())
			})
		}
	}
}

// scheduleAggregation keeps progress counters moving even when no trigger
// fires, picking up business events written outside the API.
func (s *Service) scheduleAggregation(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refs, err := s.listActiveTargets(ctx)
			if err != nil {
				slog.Warn("aggregation sweep target lookup failed", "err", err)
				continue
			}
			for _, ref := range refs {
				r := ref
				s.Enqueue(JobAggregationSweep, r.TenantID, func(ctx context.Context) (any, error) {
					return nil, s.Targets.Recalculate(ctx, r.TenantID, r.UserID)
				})
			}
		}
	}
}

func (s *Service) listActiveTargets(ctx context.Context) ([]targets.TargetRef, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT tenant_id, user_id
    FROM performance_targets
    WHERE user_id IS NOT NULL
  `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var refs []targets.TargetRef
	for rows.Next() {
		var ref targets.TargetRef
		if err := rows.Scan(&ref.TenantID, &ref.UserID); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}
