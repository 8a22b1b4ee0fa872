package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"campusbook/internal/config"
	"campusbook/internal/domain"
	"campusbook/internal/events"
	"campusbook/internal/metrics"
	"campusbook/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	redisQueueKey = "campusbook:notifications"
	deadLetterKey = "campusbook:notifications:deadletter"
)

// Sender delivers one notification to its user.
type Sender interface {
	Send(ctx context.Context, n *models.Notification) error
}

// InboxSender writes notifications into the in-app inbox.
type InboxSender struct {
	store domain.NotificationStore
}

func NewInboxSender(store domain.NotificationStore) *InboxSender {
	return &InboxSender{store: store}
}

func (s *InboxSender) Send(ctx context.Context, n *models.Notification) error {
	return s.store.CreateMessage(ctx, &models.Message{UserID: n.UserID, Body: n.Body})
}

// NotificationWorker turns booking and waitlist events into inbox messages.
// Every notification is persisted first, then handed to redis or the local
// queue; the store is polled for retries and anything the queues dropped.
type NotificationWorker struct {
	store        domain.NotificationStore
	sender       Sender
	redis        *redis.Client
	retryPolicy  RetryPolicy
	queue        chan models.Notification
	pollInterval time.Duration
	batchSize    int
	loc          *time.Location
	logger       *zerolog.Logger
	now          func() time.Time
}

func NewNotificationWorker(
	store domain.NotificationStore,
	sender Sender,
	redisClient *redis.Client,
	cfg config.NotificationConfig,
	loc *time.Location,
	logger *zerolog.Logger,
) *NotificationWorker {
	retry := RetryPolicy{
		MaxRetries:    cfg.MaxRetries,
		InitialDelay:  cfg.InitialDelay,
		MaxDelay:      cfg.MaxDelay,
		BackoffFactor: 2,
	}
	if retry.MaxRetries == 0 {
		retry.MaxRetries = 5
	}
	if retry.InitialDelay == 0 {
		retry.InitialDelay = 2 * time.Second
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = time.Minute
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = models.WorkerQueueSize
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = 2 * time.Second
	}
	if sender == nil {
		sender = NewInboxSender(store)
	}
	if loc == nil {
		loc = time.Local
	}

	return &NotificationWorker{
		store:        store,
		sender:       sender,
		redis:        redisClient,
		retryPolicy:  retry,
		queue:        make(chan models.Notification, queueSize),
		pollInterval: poll,
		batchSize:    20,
		loc:          loc,
		logger:       logger,
		now:          time.Now,
	}
}

// Subscribe attaches the worker to every event it renders.
func (w *NotificationWorker) Subscribe(bus *events.EventBus) {
	for _, et := range events.BookingEventTypes {
		bus.Subscribe(et, w.HandleEvent)
	}
	bus.Subscribe(events.EventWaitlistPromoted, w.HandleEvent)
}

// HandleEvent renders and enqueues the notifications of one event. Failures
// are logged and never reach the publisher.
func (w *NotificationWorker) HandleEvent(e *events.Event) error {
	notifications, err := render(e, w.loc)
	if err != nil {
		w.logger.Error().Err(err).Str("event_type", e.Type).Msg("failed to render notification")
		metrics.IncNotification("render_error")
		return nil
	}

	ctx := context.Background()
	for i := range notifications {
		if err := w.Enqueue(ctx, &notifications[i]); err != nil {
			w.logger.Error().Err(err).Str("event_type", e.Type).Int64("user_id", notifications[i].UserID).Msg("failed to enqueue notification")
		}
	}
	return nil
}

// Enqueue persists n and schedules it via redis or the in-memory queue.
func (w *NotificationWorker) Enqueue(ctx context.Context, n *models.Notification) error {
	if n.UserID == 0 {
		return errors.New("notification user is required")
	}
	if n.Body == "" {
		return errors.New("notification body is required")
	}

	n.Status = models.NotificationPending
	if err := w.store.CreateNotification(ctx, n); err != nil {
		return fmt.Errorf("persist notification: %w", err)
	}

	if w.redis != nil {
		if err := w.pushRedis(ctx, redisQueueKey, n); err != nil {
			w.logger.Warn().Err(err).Int64("notification_id", n.ID).Msg("redis push failed, fallback to memory queue")
		} else {
			return nil
		}
	}

	select {
	case w.queue <- *n:
	default:
		w.logger.Warn().Int64("notification_id", n.ID).Msg("in-memory queue full, notification left to polling")
	}
	return nil
}

// Start runs the delivery loop until ctx is done.
func (w *NotificationWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("notification worker started")
	defer w.logger.Info().Msg("notification worker stopped")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if n, ok := w.tryLocalQueue(); ok {
			w.process(ctx, &n)
			continue
		}

		if n, ok := w.tryRedis(ctx); ok {
			w.process(ctx, &n)
			continue
		}

		if w.drainStore(ctx) == 0 {
			w.sleep(ctx)
		}
	}
}

// drainStore delivers one batch of due notifications and returns its size.
func (w *NotificationWorker) drainStore(ctx context.Context) int {
	pending, err := w.store.GetPendingNotifications(ctx, w.now(), w.batchSize)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error().Err(err).Msg("fetch pending notifications")
		}
		return 0
	}
	for i := range pending {
		w.process(ctx, &pending[i])
	}
	return len(pending)
}

func (w *NotificationWorker) sleep(ctx context.Context) {
	timer := time.NewTimer(w.pollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (w *NotificationWorker) tryLocalQueue() (models.Notification, bool) {
	select {
	case n := <-w.queue:
		return n, true
	default:
		return models.Notification{}, false
	}
}

func (w *NotificationWorker) tryRedis(ctx context.Context) (models.Notification, bool) {
	if w.redis == nil {
		return models.Notification{}, false
	}
	res, err := w.redis.BRPop(ctx, time.Second, redisQueueKey).Result()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || errors.Is(err, redis.Nil) {
			return models.Notification{}, false
		}
		w.logger.Error().Err(err).Msg("redis BRPOP error")
		return models.Notification{}, false
	}
	if len(res) != 2 {
		return models.Notification{}, false
	}
	var n models.Notification
	if err := json.Unmarshal([]byte(res[1]), &n); err != nil {
		w.logger.Error().Err(err).Msg("decode redis notification")
		return models.Notification{}, false
	}
	return n, true
}

// process delivers n once. Rows are claimed first because the same id can
// arrive from a queue and from polling.
func (w *NotificationWorker) process(ctx context.Context, n *models.Notification) {
	claimed, err := w.store.ClaimNotification(ctx, n.ID)
	if err != nil {
		w.logger.Error().Err(err).Int64("notification_id", n.ID).Msg("claim notification")
		return
	}
	if !claimed {
		w.logger.Debug().Int64("notification_id", n.ID).Msg("notification already taken")
		return
	}

	if err := w.sender.Send(ctx, n); err != nil {
		w.retryOrFail(ctx, n, err)
		return
	}

	metrics.IncNotification(models.NotificationDelivered)
	if err := w.store.UpdateNotificationStatus(ctx, n.ID, models.NotificationDelivered, "", nil); err != nil {
		w.logger.Error().Err(err).Int64("notification_id", n.ID).Msg("mark delivered")
	}
}

func (w *NotificationWorker) retryOrFail(ctx context.Context, n *models.Notification, cause error) {
	attempt := n.RetryCount + 1
	if w.retryPolicy.Exhausted(attempt) {
		metrics.IncNotification(models.NotificationFailed)
		w.logger.Error().Err(cause).Int64("notification_id", n.ID).Int("attempt", attempt).Msg("notification failed permanently")
		if err := w.store.UpdateNotificationStatus(ctx, n.ID, models.NotificationFailed, cause.Error(), nil); err != nil {
			w.logger.Error().Err(err).Int64("notification_id", n.ID).Msg("mark failed")
		}
		w.pushDeadLetter(ctx, n)
		return
	}

	metrics.IncNotification(models.NotificationRetry)
	next := w.now().Add(w.retryPolicy.NextDelay(attempt))
	if err := w.store.UpdateNotificationStatus(ctx, n.ID, models.NotificationRetry, cause.Error(), &next); err != nil {
		w.logger.Error().Err(err).Int64("notification_id", n.ID).Msg("mark retry")
	}
}

func (w *NotificationWorker) pushRedis(ctx context.Context, key string, n *models.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, key, data).Err()
}

func (w *NotificationWorker) pushDeadLetter(ctx context.Context, n *models.Notification) {
	if w.redis == nil {
		return
	}
	if err := w.pushRedis(ctx, deadLetterKey, n); err != nil {
		w.logger.Error().Err(err).Int64("notification_id", n.ID).Msg("deadletter push")
	}
}
