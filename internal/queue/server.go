package queue

import (
	"strings"

	"github.com/hibiken/asynq"

	"fossawork-backend/internal/config"
	"fossawork-backend/internal/scheduler"
)

// RedisConnOpt builds the asynq Redis connection from config. REDIS_URL
// may be a full URI or a bare host:port.
func RedisConnOpt(cfg *config.Config) (asynq.RedisConnOpt, error) {
	if strings.HasPrefix(cfg.RedisURL, "redis://") || strings.HasPrefix(cfg.RedisURL, "rediss://") {
		return asynq.ParseRedisURI(cfg.RedisURL)
	}
	return asynq.RedisClientOpt{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, nil
}

// NewServer builds the asynq server and mux handling scrape tasks.
func NewServer(cfg *config.Config, exec *scheduler.Executor) (*asynq.Server, *asynq.ServeMux, error) {
	connOpt, err := RedisConnOpt(cfg)
	if err != nil {
		return nil, nil, err
	}

	srv := asynq.NewServer(connOpt, asynq.Config{
		Concurrency: cfg.WorkerConcurrency,
		Queues: map[string]int{
			"scrapes": 1,
		},
	})

	mux := asynq.NewServeMux()
	processor := NewTaskProcessor(exec)
	mux.HandleFunc(TaskScrapeUser, processor.HandleScrapeUser)

	return srv, mux, nil
}
