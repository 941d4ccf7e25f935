package worker

import (
	"github.com/hibiken/asynq"

	"github.com/corrigeo/api/internal/queue"
)

// RunServer starts the asynq worker server and blocks until it stops. Both
// entry points (API with embedded workers, standalone worker) share this so
// there is exactly one pipeline implementation.
func RunServer(redisOpt asynq.RedisClientOpt, queueName string, concurrency int, w *CorrectionWorker) error {
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queueName: 1,
		},
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TaskTypeCorrection, w.ProcessTask)

	return srv.Run(mux)
}
