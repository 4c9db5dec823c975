package amqp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dafibh/envelope/envelope-backend/internal/domain"
	"github.com/dafibh/envelope/envelope-backend/internal/websocket"
	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// Circuit breaker states
const (
	StateClosed int32 = iota
	StateOpen
	StateHalfOpen
)

const (
	maxFailures    = 5
	openTimeout    = 30 * time.Second
	publishTimeout = 5 * time.Second
	maxBackoff     = 30 * time.Second
)

// Routing keys on the events exchange
const (
	budgetEventKeyPrefix = "budget."
	budgetEventBinding   = "budget.#"
	cancelKey            = "control.cancel"
)

var (
	_ domain.RecalcQueue       = (*Client)(nil)
	_ websocket.EventPublisher = (*Client)(nil)
)

// ErrCircuitOpen is returned by publishes while the broker is considered down
var ErrCircuitOpen = errors.New("circuit breaker is open")

// RecalcHandler processes one decoded request. Returning an error requeues the delivery.
type RecalcHandler func(ctx context.Context, msg *RecalcMessage) error

// BudgetEventHandler receives an event relayed from another process
type BudgetEventHandler func(budgetID string, event websocket.Event)

// CancelHandler receives a cancellation request for a job
type CancelHandler func(budgetID, jobID string)

// Client publishes and consumes recalculation requests on a durable direct exchange.
// Budget events and job cancellations travel on a companion topic exchange that
// every interested process reads through its own temporary queue.
type Client struct {
	url          string
	exchangeName string
	queueName    string
	logger       zerolog.Logger

	mu          sync.Mutex
	reconnectMu sync.Mutex
	conn        *amqp091.Connection
	channel     *amqp091.Channel

	failureCount int64
	state        int32
	breakerMu    sync.Mutex
	lastFailure  time.Time
}

// NewClient dials the broker and declares the exchange, queue and binding
func NewClient(url, exchangeName, queueName string, logger zerolog.Logger) (*Client, error) {
	c := &Client{
		url:          url,
		exchangeName: exchangeName,
		queueName:    queueName,
		logger:       logger.With().Str("component", "amqp").Str("queue", queueName).Logger(),
	}
	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) connect() error {
	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	if err := c.setup(channel); err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("setup exchange and queue: %w", err)
	}

	c.mu.Lock()
	c.conn, c.channel = conn, channel
	c.mu.Unlock()
	return nil
}

// reconnect replaces stale unless another caller already did
func (c *Client) reconnect(stale *amqp091.Channel) error {
	c.reconnectMu.Lock()
	defer c.reconnectMu.Unlock()

	c.mu.Lock()
	current, conn := c.channel, c.conn
	c.mu.Unlock()
	if current != nil && current != stale {
		return nil
	}
	if conn != nil {
		conn.Close()
	}
	return c.connect()
}

func (c *Client) currentChannel() *amqp091.Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channel
}

func (c *Client) eventsExchange() string {
	return c.exchangeName + ".events"
}

func (c *Client) setup(ch *amqp091.Channel) error {
	if err := ch.ExchangeDeclare(c.exchangeName, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	if err := ch.ExchangeDeclare(c.eventsExchange(), "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare events exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(c.queueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	// routing key is the queue name
	if err := ch.QueueBind(c.queueName, c.queueName, c.exchangeName, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

// RequestRecalc publishes a persistent recalculation request. It satisfies domain.RecalcRequester.
func (c *Client) RequestRecalc(ctx context.Context, req domain.RecalcRequest) error {
	body, err := NewRecalcMessage(req).ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := c.send(ctx, c.exchangeName, c.queueName, amqp091.Persistent, body); err != nil {
		return fmt.Errorf("publish recalc request for %s: %w", req.BudgetID, err)
	}

	c.logger.Debug().
		Str("request_id", req.RequestID).
		Str("budget_id", req.BudgetID).
		Str("mode", string(req.Mode)).
		Msg("Published recalc request")
	return nil
}

// CancelRecalc asks every worker to stop the job. Workers not running it ignore the message.
func (c *Client) CancelRecalc(ctx context.Context, budgetID, jobID string) error {
	body, err := (&CancelMessage{BudgetID: budgetID, JobID: jobID, Timestamp: time.Now()}).ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := c.send(ctx, c.eventsExchange(), cancelKey, amqp091.Transient, body); err != nil {
		return fmt.Errorf("publish cancel for job %s: %w", jobID, err)
	}
	c.logger.Debug().Str("budget_id", budgetID).Str("job_id", jobID).Msg("Published recalc cancellation")
	return nil
}

// Publish forwards a budget event to the API processes. It satisfies
// websocket.EventPublisher, so failures are logged rather than returned.
func (c *Client) Publish(budgetID string, event websocket.Event) {
	body, err := NewBudgetEventMessage(budgetID, event).ToJSON()
	if err != nil {
		c.logger.Error().Err(err).Str("budget_id", budgetID).Str("event_type", event.Type).Msg("Failed to serialize budget event")
		return
	}
	if err := c.send(context.Background(), c.eventsExchange(), budgetEventKeyPrefix+event.Type, amqp091.Transient, body); err != nil {
		c.logger.Warn().Err(err).Str("budget_id", budgetID).Str("event_type", event.Type).Msg("Failed to publish budget event")
	}
}

// send publishes through the circuit breaker, reconnecting once on a lost connection
func (c *Client) send(ctx context.Context, exchange, key string, mode uint8, body []byte) error {
	if c.isCircuitOpen() {
		return ErrCircuitOpen
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	ch := c.currentChannel()
	err := c.publish(ctx, ch, exchange, key, mode, body)
	if err != nil && isConnectionError(err) {
		c.logger.Warn().Err(err).Msg("AMQP connection lost, reconnecting")
		if rerr := c.reconnect(ch); rerr == nil {
			err = c.publish(ctx, c.currentChannel(), exchange, key, mode, body)
		}
	}
	if err != nil {
		c.recordFailure()
		return err
	}
	c.recordSuccess()
	return nil
}

func (c *Client) publish(ctx context.Context, ch *amqp091.Channel, exchange, key string, mode uint8, body []byte) error {
	if ch == nil {
		return amqp091.ErrClosed
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	return ch.PublishWithContext(ctx, exchange, key, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: mode,
		Timestamp:    time.Now(),
		Body:         body,
	})
}

// ConsumeRecalcRequests delivers requests to handler one at a time until ctx is
// cancelled. Malformed bodies are dropped; handler failures are requeued once. A closed
// delivery channel triggers a reconnect with exponential backoff.
func (c *Client) ConsumeRecalcRequests(ctx context.Context, handler RecalcHandler) error {
	attempt := 0
	for {
		ch, msgs, err := c.startConsuming()
		if err == nil {
			attempt = 0
			c.logger.Info().Msg("Started consuming recalc requests")
			err = c.drain(ctx, msgs, handler)
		}
		if ctx.Err() != nil {
			c.logger.Info().Err(ctx.Err()).Msg("Stopping message consumption")
			return ctx.Err()
		}

		wait := exponentialBackoff(attempt)
		attempt++
		c.logger.Warn().Err(err).Dur("retry_in", wait).Msg("Consumer interrupted")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		if rerr := c.reconnect(ch); rerr != nil {
			c.logger.Error().Err(rerr).Msg("Failed to reconnect to AMQP broker")
		}
	}
}

func (c *Client) startConsuming() (*amqp091.Channel, <-chan amqp091.Delivery, error) {
	ch := c.currentChannel()
	if ch == nil {
		return nil, nil, amqp091.ErrClosed
	}
	// recalculations for one budget serialize on its lock anyway
	if err := ch.Qos(1, 0, false); err != nil {
		return ch, nil, fmt.Errorf("set prefetch: %w", err)
	}
	msgs, err := ch.Consume(c.queueName, "", false, false, false, false, nil)
	if err != nil {
		return ch, nil, fmt.Errorf("start consuming: %w", err)
	}
	return ch, msgs, nil
}

func (c *Client) drain(ctx context.Context, msgs <-chan amqp091.Delivery, handler RecalcHandler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return errors.New("message channel closed")
			}
			c.handleDelivery(ctx, delivery, handler)
		}
	}
}

func (c *Client) handleDelivery(ctx context.Context, delivery amqp091.Delivery, handler RecalcHandler) {
	msg, err := RecalcMessageFromJSON(delivery.Body)
	if err != nil {
		c.logger.Error().Err(err).Msg("Dropping malformed recalc message")
		delivery.Nack(false, false)
		return
	}

	log := c.logger.With().
		Str("request_id", msg.RequestID).
		Str("budget_id", msg.BudgetID).
		Str("mode", string(msg.Mode)).
		Logger()

	if err := handler(ctx, msg); err != nil {
		// another job already owns the budget and will pick up the dirty months
		if errors.Is(err, domain.ErrRecalcInProgress) || errors.Is(err, domain.ErrBudgetNotFound) {
			log.Info().Err(err).Msg("Discarding recalc request")
			delivery.Ack(false)
			return
		}
		// a second failure is dropped; its months stay flagged for the sweep
		log.Error().Err(err).Bool("redelivered", delivery.Redelivered).Msg("Failed to handle recalc request")
		delivery.Nack(false, !delivery.Redelivered)
		return
	}

	delivery.Ack(false)
	log.Info().Msg("Processed recalc request")
}

// ConsumeBudgetEvents delivers events published by workers until ctx is cancelled.
// Events raised while this process was disconnected are lost.
func (c *Client) ConsumeBudgetEvents(ctx context.Context, handle BudgetEventHandler) error {
	return c.consumeBroadcast(ctx, budgetEventBinding, func(delivery amqp091.Delivery) {
		c.handleBudgetEvent(delivery, handle)
	})
}

// ConsumeCancellations delivers job cancellation requests until ctx is cancelled
func (c *Client) ConsumeCancellations(ctx context.Context, handle CancelHandler) error {
	return c.consumeBroadcast(ctx, cancelKey, func(delivery amqp091.Delivery) {
		c.handleCancel(delivery, handle)
	})
}

func (c *Client) handleBudgetEvent(delivery amqp091.Delivery, handle BudgetEventHandler) {
	msg, err := BudgetEventMessageFromJSON(delivery.Body)
	if err != nil {
		c.logger.Error().Err(err).Str("routing_key", delivery.RoutingKey).Msg("Dropping malformed budget event")
		return
	}
	handle(msg.BudgetID, msg.Event)
}

func (c *Client) handleCancel(delivery amqp091.Delivery, handle CancelHandler) {
	msg, err := CancelMessageFromJSON(delivery.Body)
	if err != nil {
		c.logger.Error().Err(err).Msg("Dropping malformed cancel message")
		return
	}
	handle(msg.BudgetID, msg.JobID)
}

// consumeBroadcast reads bindingKey on the events exchange through an exclusive
// auto-delete queue, reconnecting with backoff like ConsumeRecalcRequests
func (c *Client) consumeBroadcast(ctx context.Context, bindingKey string, handle func(amqp091.Delivery)) error {
	log := c.logger.With().Str("binding", bindingKey).Logger()
	attempt := 0
	for {
		ch, msgs, err := c.startBroadcast(bindingKey)
		if err == nil {
			attempt = 0
			log.Info().Msg("Started consuming broadcast messages")
			err = drainBroadcast(ctx, msgs, handle)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		wait := exponentialBackoff(attempt)
		attempt++
		log.Warn().Err(err).Dur("retry_in", wait).Msg("Broadcast consumer interrupted")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		if rerr := c.reconnect(ch); rerr != nil {
			log.Error().Err(rerr).Msg("Failed to reconnect to AMQP broker")
		}
	}
}

func (c *Client) startBroadcast(bindingKey string) (*amqp091.Channel, <-chan amqp091.Delivery, error) {
	ch := c.currentChannel()
	if ch == nil {
		return nil, nil, amqp091.ErrClosed
	}
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return ch, nil, fmt.Errorf("declare broadcast queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, bindingKey, c.eventsExchange(), false, nil); err != nil {
		return ch, nil, fmt.Errorf("bind broadcast queue: %w", err)
	}
	msgs, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		return ch, nil, fmt.Errorf("start consuming: %w", err)
	}
	return ch, msgs, nil
}

func drainBroadcast(ctx context.Context, msgs <-chan amqp091.Delivery, handle func(amqp091.Delivery)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return errors.New("message channel closed")
			}
			handle(delivery)
		}
	}
}

// Close closes the channel and connection
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

func (c *Client) isCircuitOpen() bool {
	if atomic.LoadInt32(&c.state) != StateOpen {
		return false
	}
	c.breakerMu.Lock()
	defer c.breakerMu.Unlock()
	if time.Since(c.lastFailure) > openTimeout {
		atomic.StoreInt32(&c.state, StateHalfOpen)
		return false
	}
	return true
}

func (c *Client) recordSuccess() {
	atomic.StoreInt64(&c.failureCount, 0)
	atomic.StoreInt32(&c.state, StateClosed)
}

func (c *Client) recordFailure() {
	c.breakerMu.Lock()
	c.lastFailure = time.Now()
	c.breakerMu.Unlock()

	failures := atomic.AddInt64(&c.failureCount, 1)
	if failures >= maxFailures || atomic.LoadInt32(&c.state) == StateHalfOpen {
		if atomic.SwapInt32(&c.state, StateOpen) != StateOpen {
			c.logger.Warn().Int64("failures", failures).Msg("AMQP circuit breaker opened")
		}
	}
}

func exponentialBackoff(attempt int) time.Duration {
	if attempt > 5 {
		return maxBackoff
	}
	d := time.Second << attempt
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	var amqpErr *amqp091.Error
	if errors.As(err, &amqpErr) {
		return amqpErr.Code == amqp091.ChannelError || amqpErr.Code == amqp091.ConnectionForced || amqpErr.Recover
	}
	return false
}
