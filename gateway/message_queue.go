package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// MessagesDebounce is the quiet period before unsaved messages are flushed
const MessagesDebounce = 3 * time.Second

// MessageStore is where chat batches are written
type MessageStore interface {
	SaveMessages(ctx context.Context, meetingID string, messages []ChatMessage) (*SaveResult, error)
}

// MessageQueue keeps the ordered chat of a session and flushes the unsaved
// messages as one batch once the chat goes quiet for MessagesDebounce.
type MessageQueue struct {
	store     MessageStore
	meetingID string
	debouncer *Debouncer
	onError   func(error)
	log       *logrus.Entry

	mu       sync.Mutex
	messages []*ChatMessage
}

// NewMessageQueue creates a queue. onError receives ErrPersistence wrapped
// failures and may be nil.
func NewMessageQueue(store MessageStore, meetingID string, clock Clock, onError func(error)) *MessageQueue {
	return &MessageQueue{
		store:     store,
		meetingID: meetingID,
		debouncer: NewDebouncer(MessagesDebounce, clock),
		onError:   onError,
		log: logrus.WithFields(logrus.Fields{
			"component":  "message_queue",
			"meeting_id": meetingID,
		}),
	}
}

// Load replaces the queue with the stored history. Loaded messages are saved.
func (q *MessageQueue) Load(history []ChatMessage) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.messages = q.messages[:0]
	for i := range history {
		msg := history[i]
		msg.Saved = true
		q.messages = append(q.messages, &msg)
	}
}

// AddOutgoing appends a message written locally and rearms the flush timer
func (q *MessageQueue) AddOutgoing(msg ChatMessage) {
	msg.Saved = false
	q.mu.Lock()
	q.messages = append(q.messages, &msg)
	q.mu.Unlock()
	q.debouncer.Trigger(q.flush)
}

// AddIncoming appends a message received from the other participant, who
// persists it. A message with the same timestamp and sender as one already
// held is ignored; the return reports whether it was added.
func (q *MessageQueue) AddIncoming(msg ChatMessage) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, held := range q.messages {
		if held.Timestamp == msg.Timestamp && held.Sender == msg.Sender {
			return false
		}
	}
	msg.Saved = true
	q.messages = append(q.messages, &msg)
	return true
}

// Messages returns a copy of the chat in arrival order
func (q *MessageQueue) Messages() []ChatMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]ChatMessage, len(q.messages))
	for i, msg := range q.messages {
		out[i] = *msg
	}
	return out
}

// Unsaved counts the messages not yet acknowledged by the server
func (q *MessageQueue) Unsaved() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, msg := range q.messages {
		if !msg.Saved {
			n++
		}
	}
	return n
}

// Flush sends the pending batch now if a flush is scheduled
func (q *MessageQueue) Flush() {
	q.debouncer.Flush()
}

// FlushNow cancels the timer and sends whatever is unsaved
func (q *MessageQueue) FlushNow() {
	q.debouncer.Cancel()
	q.flush()
}

// Stop drops any pending flush
func (q *MessageQueue) Stop() {
	q.debouncer.Cancel()
}

func (q *MessageQueue) flush() {

	// Snapshot the unsaved messages
	q.mu.Lock()
	var flushed []*ChatMessage
	var batch []ChatMessage
	for _, msg := range q.messages {
		if !msg.Saved {
			flushed = append(flushed, msg)
			batch = append(batch, *msg)
		}
	}
	q.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	result, err := q.store.SaveMessages(ctx, q.meetingID, batch)
	if err != nil {
		q.log.WithError(err).WithField("batch_size", len(batch)).Warn("Failed to save chat messages")
		if q.onError != nil {
			q.onError(fmt.Errorf("%w: save messages: %v", ErrPersistence, err))
		}
		return
	}

	// Only what was sent is marked saved
	q.mu.Lock()
	for _, msg := range flushed {
		msg.Saved = true
	}
	q.mu.Unlock()

	q.log.WithFields(logrus.Fields{
		"batch_size":  len(batch),
		"saved_count": result.SavedCount,
	}).Debug("Chat messages saved")
}
