package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockStore struct {
	mock.Mock
	mu      sync.Mutex
	batches [][]ChatMessage
}

func (m *mockStore) SaveTranscript(ctx context.Context, meetingID, transcript string) error {
	args := m.Called(meetingID, transcript)
	return args.Error(0)
}

func (m *mockStore) SaveMessages(ctx context.Context, meetingID string, messages []ChatMessage) (*SaveResult, error) {
	m.mu.Lock()
	m.batches = append(m.batches, messages)
	m.mu.Unlock()
	args := m.Called(meetingID, len(messages))
	if res, ok := args.Get(0).(*SaveResult); ok {
		return res, args.Error(1)
	}
	return nil, args.Error(1)
}

func TestTranscriptSaver_TenEditsOneSave(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	store := &mockStore{}
	store.On("SaveTranscript", "m1", "edit 9").Return(nil).Once()

	saver := NewTranscriptSaver(store, "m1", clock, nil)
	for i := 0; i < 10; i++ {
		saver.Schedule("edit " + string(rune('0'+i)))
		clock.Advance(300 * time.Millisecond)
	}

	clock.Advance(TranscriptDebounce - 300*time.Millisecond - time.Millisecond)
	store.AssertNotCalled(t, "SaveTranscript", mock.Anything, mock.Anything)

	clock.Advance(time.Millisecond)
	store.AssertExpectations(t)
	store.AssertNumberOfCalls(t, "SaveTranscript", 1)
}

func TestTranscriptSaver_EmptyTranscriptNotSent(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	store := &mockStore{}

	saver := NewTranscriptSaver(store, "m1", clock, nil)
	saver.Schedule("   ")
	clock.Advance(TranscriptDebounce)
	saver.FlushNow()

	store.AssertNotCalled(t, "SaveTranscript", mock.Anything, mock.Anything)
}

func TestTranscriptSaver_FlushNowAndFailure(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	store := &mockStore{}
	store.On("SaveTranscript", "m1", "linha").Return(errors.New("boom")).Once()

	var reported error
	saver := NewTranscriptSaver(store, "m1", clock, func(err error) { reported = err })
	saver.Schedule("linha")
	saver.FlushNow()

	assert.ErrorIs(t, reported, ErrPersistence)
	assert.Equal(t, 0, clock.Pending())
	store.AssertExpectations(t)
}

func TestMessageQueue_FlushMarksOnlySentMessages(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	store := &mockStore{}
	store.On("SaveMessages", "m1", 2).Return(&SaveResult{SavedCount: 2, TotalReceived: 2}, nil).Once()

	q := NewMessageQueue(store, "m1", clock, nil)
	q.Load([]ChatMessage{{Sender: "Ana", Text: "antiga", Timestamp: "t0"}})
	q.AddOutgoing(ChatMessage{Sender: "Ana", Text: "Oi", Timestamp: "t1"})
	clock.Advance(time.Second)
	q.AddOutgoing(ChatMessage{Sender: "Ana", Text: "Tudo bem?", Timestamp: "t2"})
	assert.Equal(t, 2, q.Unsaved())

	clock.Advance(MessagesDebounce)
	store.AssertExpectations(t)
	assert.Equal(t, 0, q.Unsaved())

	require.Len(t, store.batches, 1)
	assert.Equal(t, "Oi", store.batches[0][0].Text)
	assert.Equal(t, "Tudo bem?", store.batches[0][1].Text)
}

func TestMessageQueue_FailureKeepsMessagesUnsaved(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	store := &mockStore{}
	store.On("SaveMessages", "m1", 1).Return(nil, errors.New("offline")).Once()

	var reported error
	q := NewMessageQueue(store, "m1", clock, func(err error) { reported = err })
	q.AddOutgoing(ChatMessage{Sender: "Ana", Text: "Oi", Timestamp: "t1"})
	clock.Advance(MessagesDebounce)

	assert.ErrorIs(t, reported, ErrPersistence)
	assert.Equal(t, 1, q.Unsaved())

	// No immediate retry
	clock.Advance(time.Minute)
	store.AssertNumberOfCalls(t, "SaveMessages", 1)
}

func TestMessageQueue_AddIncomingDedup(t *testing.T) {
	q := NewMessageQueue(&mockStore{}, "m1", NewManualClock(time.Unix(0, 0)), nil)

	msg := ChatMessage{Sender: "Bia", Text: "Olá", Timestamp: "t1"}
	assert.True(t, q.AddIncoming(msg))
	assert.False(t, q.AddIncoming(msg))
	assert.Equal(t, 0, q.Unsaved())
	assert.Len(t, q.Messages(), 1)
}
