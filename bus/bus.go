// Package bus is the in-process publish/subscribe hub. Every subscriber
// gets its own buffered worker goroutine, so a slow or failing subscriber
// cannot block publishers or starve its peers. Publishing is fire and
// forget: engine errors never reach the producer.
package bus

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wmsflow/rulebus/logger"
	"github.com/wmsflow/rulebus/model"
	"go.uber.org/zap"
)

type Subscriber interface {
	Name() string
	OnEvent(event model.Event)
}

type subscription struct {
	subscriber Subscriber
	events     chan model.Event
}

type EventBus struct {
	mu            sync.RWMutex
	subscriptions []*subscription
	capacity      int
	stop          chan struct{}
	wg            *sync.WaitGroup
	started       bool
}

func NewEventBus(capacity int, wg *sync.WaitGroup) *EventBus {
	if capacity <= 0 {
		capacity = 1024
	}
	return &EventBus{
		capacity: capacity,
		stop:     make(chan struct{}),
		wg:       wg,
	}
}

// Subscribe registers a subscriber. Must be called before Start.
func (b *EventBus) Subscribe(subscriber Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscriptions = append(b.subscriptions, &subscription{
		subscriber: subscriber,
		events:     make(chan model.Event, b.capacity),
	})
}

func (b *EventBus) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return
	}
	b.started = true
	for _, sub := range b.subscriptions {
		b.wg.Add(1)
		go b.run(sub)
	}
}

func (b *EventBus) run(sub *subscription) {
	defer b.wg.Done()
	for {
		select {
		case event := <-sub.events:
			b.deliver(sub, event)
		case <-b.stop:
			logger.Info("stopping bus subscriber", zap.String("subscriber", sub.subscriber.Name()))
			return
		}
	}
}

func (b *EventBus) deliver(sub *subscription, event model.Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("subscriber panic",
				zap.String("subscriber", sub.subscriber.Name()),
				zap.String("eventId", event.Id),
				zap.Any("panic", r))
		}
	}()
	sub.subscriber.OnEvent(event)
}

// Publish assigns id and timestamp when absent and fans the event out to
// every subscriber queue. A full queue drops the event for that
// subscriber rather than blocking the producer.
func (b *EventBus) Publish(event model.Event) {
	if len(event.Id) == 0 {
		event.Id = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subscriptions {
		select {
		case sub.events <- event:
		default:
			logger.Error("subscriber queue full, dropping event",
				zap.String("subscriber", sub.subscriber.Name()),
				zap.String("eventId", event.Id),
				zap.String("type", event.Type))
		}
	}
}

func (b *EventBus) Stop() {
	close(b.stop)
}
