package queue

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"
)

func NewNotifyTask(message string) (*asynq.Task, error) {
	payload, err := json.Marshal(NotifyOperatorPayload{Message: message})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeNotifyOperator, payload, asynq.MaxRetry(maxNotifyRetries)), nil
}

// Notify enqueues the message. When Redis rejects the task the message is
// delivered directly so it is not lost.
func (q *Queue) Notify(ctx context.Context, message string) {
	task, err := NewNotifyTask(message)
	if err == nil {
		var info *asynq.TaskInfo
		info, err = q.client.EnqueueContext(ctx, task)
		if err == nil {
			log.Debug().Str("task_id", info.ID).Str("queue", info.Queue).Msg("operator notification enqueued")
			return
		}
	}
	log.Warn().Err(err).Msg("enqueue operator notification failed; sending directly")
	q.webhook.Notify(ctx, message)
}
