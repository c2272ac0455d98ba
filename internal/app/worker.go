package app

import (
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-ledger/internal/engine"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

// QueueRedisOpts points the job queue at the configured Redis database.
func (c *Config) QueueRedisOpts() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: c.RedisAddr, DB: c.RedisDB}
}

// NewWorker wires the ledger jobs and their cron schedules into an asynq worker.
func NewWorker(cfg *Config, eng *engine.Engine, redisOpts asynq.RedisClientOpt, metrics *jobmetrics.Metrics, logger *slog.Logger) (*jobs.Worker, error) {
	tenants := jobs.Tenants{IDs: cfg.Tenants, BaseCurrency: cfg.BaseCurrency}
	integrity := jobs.NewGLIntegrityJob(eng, tenants, logger, metrics)
	followUp := jobs.NewPaymentFollowUpJob(eng, tenants, logger, metrics)

	var cron []jobs.CronRegistration
	if cfg.IntegrityCron != "" {
		task, err := jobs.NewLedgerIntegrityTask()
		if err != nil {
			return nil, err
		}
		cron = append(cron, jobs.CronRegistration{Spec: cfg.IntegrityCron, Task: task, Options: []asynq.Option{asynq.MaxRetry(3)}})
	}
	if cfg.PaymentFollowUpCron != "" {
		task, err := jobs.NewPaymentFollowUpTask()
		if err != nil {
			return nil, err
		}
		cron = append(cron, jobs.CronRegistration{Spec: cfg.PaymentFollowUpCron, Task: task, Options: []asynq.Option{asynq.MaxRetry(3)}})
	}

	return jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   redisOpts,
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskLedgerIntegrity, Handler: integrity.Handle},
			{Type: jobs.TaskPaymentFollowUp, Handler: followUp.Handle},
		},
		Cron: cron,
	})
}
