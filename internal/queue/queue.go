package queue

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/mcardwell78/RBAconnector-sub000/internal/service"
)

// TopicScheduledSends carries scheduled-send ids from the dispatcher to
// whoever performs the hand-off.
const TopicScheduledSends = "scheduled_sends"

// Queue interface
type Queue interface {
	Publish(topic string, payload any) error
	Subscribe(topic string, handler func(payload any) error) error
}

// InMemoryQueue is an in-process queue with per-job retry, used by the server
// binary when no broker is configured.
type InMemoryQueue struct {
	mu       sync.Mutex
	handlers map[string][]func(payload any) error
}

func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{
		handlers: make(map[string][]func(payload any) error),
	}
}

// JobPayload wraps a message payload with retry info
type JobPayload struct {
	Payload    any
	RetryCount int
	MaxRetries int
}

// Publish sends a message to all subscribers
func (q *InMemoryQueue) Publish(topic string, payload any) error {
	q.mu.Lock()
	handlers := q.handlers[topic]
	q.mu.Unlock()

	if len(handlers) == 0 {
		return fmt.Errorf("no subscribers for topic %s", topic)
	}

	job := JobPayload{
		Payload:    payload,
		RetryCount: 0,
		MaxRetries: 3,
	}

	for _, handler := range handlers {
		go q.processJob(handler, job)
	}

	return nil
}

// processJob handles retries and errors
func (q *InMemoryQueue) processJob(handler func(payload any) error, job JobPayload) {
	for job.RetryCount <= job.MaxRetries {
		err := handler(job.Payload)
		if err == nil {
			return // ACK
		}

		job.RetryCount++
		log.Printf("Job failed (attempt %d/%d): %+v, error: %v\n", job.RetryCount, job.MaxRetries, job.Payload, err)

		if job.RetryCount > job.MaxRetries {
			log.Printf("Job permanently failed after %d attempts: %+v\n", job.MaxRetries, job.Payload)
			return // No requeue
		}

		// Exponential backoff before retry
		time.Sleep(time.Duration(job.RetryCount*500) * time.Millisecond)
	}
}

// Subscribe adds a handler for a topic
func (q *InMemoryQueue) Subscribe(topic string, handler func(payload any) error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}

// StartScheduledSendSubscriber wires the dispatch service to the in-process
// queue: each payload is a scheduled-send id ready to go out.
func StartScheduledSendSubscriber(q Queue, dispatch *service.DispatchService) {
	go func() {
		err := q.Subscribe(TopicScheduledSends, func(payload any) error {
			sendID, ok := payload.(string)
			if !ok {
				log.Println("⚠️ Invalid payload type, expected string send id")
				return nil
			}

			log.Println("📩 Processing scheduled send:", sendID)
			if err := dispatch.ProcessSend(sendID); err != nil {
				return err // triggers retry in queue
			}
			return nil
		})

		if err != nil {
			log.Println("⚠️ Failed to start subscriber for", TopicScheduledSends, ":", err)
		}
	}()
}
