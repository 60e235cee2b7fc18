package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"
)

func (q *Queue) HandleNotifyOperatorTask(ctx context.Context, task *asynq.Task) error {
	var payload NotifyOperatorPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode %s payload: %v: %w", TaskTypeNotifyOperator, err, asynq.SkipRetry)
	}

	if err := q.webhook.Send(ctx, payload.Message); err != nil {
		retried, _ := asynq.GetRetryCount(ctx)
		log.Warn().Err(err).Int("retry", retried).Msg("operator notification delivery failed")
		return err
	}
	return nil
}

// Mux routes the queue's task types to their handlers.
func (q *Queue) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTypeNotifyOperator, q.HandleNotifyOperatorTask)
	return mux
}

// NewServer builds the asynq worker that drains notify:operator tasks.
func NewServer(redis asynq.RedisConnOpt) *asynq.Server {
	return asynq.NewServer(redis, asynq.Config{
		Concurrency: 2,
		Logger:      asynqLogger{},
	})
}

// asynqLogger forwards asynq's internal logging to zerolog.
type asynqLogger struct{}

func (asynqLogger) Debug(args ...interface{}) { log.Debug().Msg(fmt.Sprint(args...)) }
func (asynqLogger) Info(args ...interface{})  { log.Info().Msg(fmt.Sprint(args...)) }
func (asynqLogger) Warn(args ...interface{})  { log.Warn().Msg(fmt.Sprint(args...)) }
func (asynqLogger) Error(args ...interface{}) { log.Error().Msg(fmt.Sprint(args...)) }
func (asynqLogger) Fatal(args ...interface{}) { log.Fatal().Msg(fmt.Sprint(args...)) }
