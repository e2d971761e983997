package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bharathbbg/awb-reconciler/internal/apperror"
	"github.com/bharathbbg/awb-reconciler/internal/logger"
	"github.com/bharathbbg/awb-reconciler/internal/model"
	"github.com/bharathbbg/awb-reconciler/internal/transport"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const DefaultRetryDelay = 60 * time.Second

type Kind string

const (
	KindCreate  Kind = "create"
	KindSync    Kind = "sync"
	KindRestore Kind = "restore"
)

type Task struct {
	Kind       Kind      `json:"kind"`
	OrderID    string    `json:"order_id"`
	Manual     bool      `json:"manual,omitempty"`
	Actor      string    `json:"actor"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Runner executes lifecycle transitions.
type Runner interface {
	Create(ctx context.Context, orderID, actor string) (model.GenerateResult, error)
	Sync(ctx context.Context, orderID string, manual bool, actor string) (model.SyncResult, error)
	Restore(ctx context.Context, orderID, actor string) (model.RestoreResult, error)
}

// Receipt reports where a task went. Queued means it will run later, on a
// consumer or as a scheduled retry. Otherwise Result holds what the inline
// run returned: model.GenerateResult, model.SyncResult or model.RestoreResult.
type Receipt struct {
	Queued bool
	Result any
}

type Publisher interface {
	Publish(ctx context.Context, body []byte) error
}

// Dispatcher defers tasks to RabbitMQ. Without a broker, or when publishing
// fails, it runs the task inline and schedules a single delayed retry if that
// fails with a transient error.
type Dispatcher struct {
	pub        Publisher
	runner     Runner
	retryDelay time.Duration
	after      func(time.Duration, func())
	now        func() time.Time
}

// NewDispatcher accepts a nil publisher for inline-only operation.
func NewDispatcher(pub Publisher, runner Runner) *Dispatcher {
	return &Dispatcher{
		pub:        pub,
		runner:     runner,
		retryDelay: DefaultRetryDelay,
		after:      func(d time.Duration, f func()) { time.AfterFunc(d, f) },
		now:        time.Now,
	}
}

func (d *Dispatcher) Enqueue(ctx context.Context, task Task) (Receipt, error) {
	log := logger.GetLoggerFromCtx(ctx)
	if task.EnqueuedAt.IsZero() {
		task.EnqueuedAt = d.now().UTC()
	}

	if d.pub != nil {
		body, err := json.Marshal(task)
		if err != nil {
			return Receipt{}, fmt.Errorf("marshal task: %w", err)
		}
		err = d.pub.Publish(ctx, body)
		if err == nil {
			return Receipt{Queued: true}, nil
		}
		log.Warn(ctx, "task queue unavailable, running inline",
			zap.String("order_id", task.OrderID),
			zap.String("kind", string(task.Kind)),
			zap.Error(err),
		)
	}

	res, err := d.Execute(ctx, task)
	if err == nil {
		return Receipt{Result: res}, nil
	}
	if !retryable(err) {
		return Receipt{Result: res}, err
	}

	log.Warn(ctx, "inline task failed, retry scheduled",
		zap.String("order_id", task.OrderID),
		zap.String("kind", string(task.Kind)),
		zap.Duration("delay", d.retryDelay),
		zap.Error(err),
	)
	retryCtx := context.WithoutCancel(ctx)
	d.after(d.retryDelay, func() {
		if _, err := d.Execute(retryCtx, task); err != nil {
			logger.GetLoggerFromCtx(retryCtx).Error(retryCtx, "delayed task retry failed",
				zap.String("order_id", task.OrderID),
				zap.String("kind", string(task.Kind)),
				zap.Error(err),
			)
		}
	})
	return Receipt{Queued: true}, nil
}

// Execute runs task now and returns the runner's result.
func (d *Dispatcher) Execute(ctx context.Context, task Task) (any, error) {
	switch task.Kind {
	case KindCreate:
		return d.runner.Create(ctx, task.OrderID, task.Actor)
	case KindSync:
		return d.runner.Sync(ctx, task.OrderID, task.Manual, task.Actor)
	case KindRestore:
		return d.runner.Restore(ctx, task.OrderID, task.Actor)
	}
	return nil, apperror.New(apperror.KindValidation, "queue.execute", fmt.Errorf("unknown task kind %q", task.Kind))
}

// Consume runs tasks from deliveries until ctx ends or the channel closes.
// Successful tasks are acked; failures are logged and dropped.
func (d *Dispatcher) Consume(ctx context.Context, deliveries <-chan amqp.Delivery) {
	log := logger.GetLoggerFromCtx(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-deliveries:
			if !ok {
				log.Info(ctx, "task deliveries closed")
				return
			}
			d.handle(ctx, msg)
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, msg amqp.Delivery) {
	log := logger.GetLoggerFromCtx(ctx)

	var task Task
	if err := json.Unmarshal(msg.Body, &task); err != nil {
		log.Error(ctx, "malformed task dropped", zap.Error(err))
		_ = msg.Nack(false, false)
		return
	}
	if _, err := d.Execute(ctx, task); err != nil {
		log.Error(ctx, "task failed",
			zap.String("order_id", task.OrderID),
			zap.String("kind", string(task.Kind)),
			zap.String("stage", "queue"),
			zap.Error(err),
		)
		_ = msg.Nack(false, false)
		return
	}
	if err := msg.Ack(false); err != nil {
		log.Warn(ctx, "task ack failed", zap.String("order_id", task.OrderID), zap.Error(err))
	}
}

func retryable(err error) bool {
	return transport.IsRetryable(err) || apperror.Is(err, apperror.KindAmbiguous)
}
