package queue

import (
	"github.com/hibiken/asynq"
	"github.com/maheshrc27/postflow/internal/notify"
)

// Queue carries operator notifications through Redis so a delivery failure
// is retried by the asynq worker instead of being dropped.
type Queue struct {
	client  *asynq.Client
	webhook *notify.Webhook
}

func NewQueue(client *asynq.Client, webhook *notify.Webhook) *Queue {
	return &Queue{
		client:  client,
		webhook: webhook,
	}
}

const (
	TaskTypeNotifyOperator = "notify:operator"
	maxNotifyRetries       = 3
)

type NotifyOperatorPayload struct {
	Message string `json:"message"`
}
