package host

import (
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Event - Something fired on the bus.
type Event struct {
	Topic string
	Data  map[string]interface{}
}

// Bus - Synchronous publish/subscribe by topic.
type Bus struct {
	mutex    sync.RWMutex
	handlers map[string]map[int]func(Event)
	nextID   int
}

// NewBus - Create a bus without subscribers.
func NewBus() *Bus {
	return &Bus{handlers: make(map[string]map[int]func(Event))}
}

// Subscribe - Call the handler for every event on the topic. Returns a function unsubscribing it.
func (bus *Bus) Subscribe(topic string, handler func(Event)) func() {
	bus.mutex.Lock()
	defer bus.mutex.Unlock()
	id := bus.nextID
	bus.nextID++
	if bus.handlers[topic] == nil {
		bus.handlers[topic] = make(map[int]func(Event))
	}
	bus.handlers[topic][id] = handler
	return func() {
		bus.mutex.Lock()
		defer bus.mutex.Unlock()
		delete(bus.handlers[topic], id)
		if len(bus.handlers[topic]) == 0 {
			delete(bus.handlers, topic)
		}
	}
}

// Fire - Call the topic's handlers in subscription order before returning.
func (bus *Bus) Fire(topic string, data map[string]interface{}) {
	bus.mutex.RLock()
	ids := make([]int, 0, len(bus.handlers[topic]))
	for id := range bus.handlers[topic] {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	handlers := make([]func(Event), 0, len(ids))
	for _, id := range ids {
		handlers = append(handlers, bus.handlers[topic][id])
	}
	bus.mutex.RUnlock()

	log.WithFields(log.Fields{
		"topic":    topic,
		"handlers": len(handlers),
	}).Debug("Firing event")
	event := Event{Topic: topic, Data: data}
	for _, handler := range handlers {
		handler(event)
	}
}

// HasSubscribers - Whether anything listens on the topic.
func (bus *Bus) HasSubscribers(topic string) bool {
	bus.mutex.RLock()
	defer bus.mutex.RUnlock()
	return len(bus.handlers[topic]) > 0
}
