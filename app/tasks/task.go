package tasks

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

type TaskType string

const (
	TaskTypeRefreshPodcast TaskType = "refresh_podcast"
)

// Trigger records what queued a task.
type Trigger string

const (
	TriggerStartup Trigger = "startup"
	TriggerTick    Trigger = "tick"
	TriggerManual  Trigger = "manual"
)

const (
	DefaultMaxRetries = 3
	maxRetryWait      = 30 * time.Second
)

type TaskInterface interface {
	Execute(ctx context.Context) error
	GetID() string
	GetType() TaskType
	GetTrigger() Trigger
	GetRetryCount() int
	GetMaxRetries() int
	IncrementRetryCount()
	CanRetry() bool
	RetryDelay(base time.Duration) time.Duration
}

type Task struct {
	ID         string
	Type       TaskType
	Trigger    Trigger
	RetryCount int
	MaxRetries int
}

func (t *Task) GetID() string {
	return t.ID
}

func (t *Task) GetType() TaskType {
	return t.Type
}

func (t *Task) GetTrigger() Trigger {
	return t.Trigger
}

func (t *Task) GetRetryCount() int {
	return t.RetryCount
}

func (t *Task) GetMaxRetries() int {
	return t.MaxRetries
}

func (t *Task) IncrementRetryCount() {
	t.RetryCount++
}

func (t *Task) CanRetry() bool {
	return t.RetryCount < t.MaxRetries
}

// RetryDelay doubles base for every retry already taken, capped at 30s.
func (t *Task) RetryDelay(base time.Duration) time.Duration {
	if t.RetryCount < 1 {
		return base
	}
	delay := base << uint(t.RetryCount-1)
	if delay > maxRetryWait || delay <= 0 {
		delay = maxRetryWait
	}
	return delay
}

func NewTask(taskType TaskType, trigger Trigger) Task {
	return Task{
		ID:         fmt.Sprintf("%s-%d-%d", trigger, time.Now().UnixNano(), rand.Intn(10000)),
		Type:       taskType,
		Trigger:    trigger,
		MaxRetries: DefaultMaxRetries,
	}
}
