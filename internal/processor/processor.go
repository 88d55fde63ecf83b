package taskprocessor

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/MichaelCampos91/pedidos-sub000/internal/gateway"
	"github.com/MichaelCampos91/pedidos-sub000/internal/models"
	"github.com/MichaelCampos91/pedidos-sub000/internal/repository"
)

type Publisher interface {
	Publish(topic string, message []byte) error
}

type OrderSource interface {
	GetByID(ctx context.Context, id string) (*models.Order, error)
	MarkERPSynced(ctx context.Context, id string, at time.Time) error
}

// TaskProcessor drains the outbox: audit tasks go to Kafka, erp_sync tasks
// push the order into the ERP. Failed tasks are retried with a delay up to
// maxAttempts.
type TaskProcessor struct {
	repo         repository.TaskRepository
	publisher    Publisher
	erp          gateway.OrderPusher
	orders       OrderSource
	topic        string
	pollInterval time.Duration
	limit        int
	maxAttempts  int
	retryDelay   time.Duration
}

func NewTaskProcessor(repo repository.TaskRepository, publisher Publisher, erp gateway.OrderPusher, orders OrderSource, topic string, pollInterval time.Duration, limit int) *TaskProcessor {
	return &TaskProcessor{
		repo:         repo,
		publisher:    publisher,
		erp:          erp,
		orders:       orders,
		topic:        topic,
		pollInterval: pollInterval,
		limit:        limit,
		maxAttempts:  3,
		retryDelay:   2 * time.Second,
	}
}

func (p *TaskProcessor) Start(ctx context.Context) {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.processPendingTasks(ctx)
		}
	}
}

func (p *TaskProcessor) processPendingTasks(ctx context.Context) {
	tasks, err := p.repo.GetPendingTasks(ctx, p.limit, p.maxAttempts)
	if err != nil {
		log.Printf("Error fetching pending tasks: %v", err)
		return
	}
	for _, task := range tasks {
		if err := p.repo.MarkTaskProcessing(ctx, task.ID); err != nil {
			log.Printf("Error marking task %d as PROCESSING: %v", task.ID, err)
			continue
		}

		if err := p.runTask(ctx, task); err != nil {
			p.recordFailure(ctx, task, err)
			continue
		}
		if err := p.repo.DeleteTask(ctx, task.ID); err != nil {
			log.Printf("Error deleting task %d after success: %v", task.ID, err)
		}
	}
}

func (p *TaskProcessor) runTask(ctx context.Context, task *repository.Task) error {
	switch task.Kind {
	case repository.TaskKindAudit:
		return p.publisher.Publish(p.topic, task.Payload)
	case repository.TaskKindERPSync:
		return p.syncOrder(ctx, task.Payload)
	default:
		// unknown kinds are not retriable; surface loudly
		return fmt.Errorf("unknown task kind %q", task.Kind)
	}
}

func (p *TaskProcessor) syncOrder(ctx context.Context, payload []byte) error {
	var ref struct {
		OrderID string `json:"order_id"`
	}
	if err := json.Unmarshal(payload, &ref); err != nil {
		return fmt.Errorf("decode erp task: %w", err)
	}
	order, err := p.orders.GetByID(ctx, ref.OrderID)
	if err != nil {
		return err
	}
	if order == nil {
		return fmt.Errorf("erp task: %w", models.ErrOrderNotFound)
	}
	if err := p.erp.PushOrder(ctx, order); err != nil {
		return err
	}
	return p.orders.MarkERPSynced(ctx, order.ID, time.Now().UTC())
}

func (p *TaskProcessor) recordFailure(ctx context.Context, task *repository.Task, err error) {
	newAttempt := task.AttemptCount + 1
	newStatus := repository.TaskStatusFailed
	if newAttempt >= p.maxAttempts {
		newStatus = repository.TaskStatusNoAttemptsLeft
	}
	nextAttempt := time.Now().Add(p.retryDelay)
	if errUpd := p.repo.UpdateTaskFailure(ctx, task.ID, newAttempt, newStatus, nextAttempt); errUpd != nil {
		log.Printf("Error updating task %d on failure: %v", task.ID, errUpd)
	}
	log.Printf("Task %d (%s) failed: %v", task.ID, task.Kind, err)
}
