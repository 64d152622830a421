package client

import (
	"errors"

	"github.com/MattCruikshank/mindcare/internal/models"
)

var (
	// ErrCrossThread is returned when a reply does not belong to the open thread.
	ErrCrossThread = errors.New("reply belongs to a thread that is not open")
	// ErrDuplicateReply is returned when a reply id is already in the open thread.
	ErrDuplicateReply = errors.New("reply already present")
)

// ThreadStore is the in-memory copy of the forum that the view renders.
// It is owned by the engine's execution context and is not safe for concurrent use.
type ThreadStore struct {
	threads []models.Thread
	index   map[int64]int // thread id -> position in threads

	openID   int64 // 0 when no thread is open
	open     models.Thread
	replies  []models.Reply
	replyIDs map[int64]bool
}

// NewThreadStore creates an empty store.
func NewThreadStore() *ThreadStore {
	return &ThreadStore{index: make(map[int64]int)}
}

// ListThreads returns a snapshot of the known threads in display order.
func (s *ThreadStore) ListThreads() []models.Thread {
	out := make([]models.Thread, len(s.threads))
	copy(out, s.threads)
	return out
}

// Thread looks up a thread summary by id.
func (s *ThreadStore) Thread(id int64) (models.Thread, bool) {
	i, ok := s.index[id]
	if !ok {
		return models.Thread{}, false
	}
	return s.threads[i], true
}

// ReplaceThreads replaces the index with a fresh fetch, keeping the server's
// order. Later duplicates of an id are dropped.
func (s *ThreadStore) ReplaceThreads(threads []models.Thread) {
	s.threads = make([]models.Thread, 0, len(threads))
	s.index = make(map[int64]int, len(threads))
	for _, t := range threads {
		if _, dup := s.index[t.ID]; dup {
			continue
		}
		s.index[t.ID] = len(s.threads)
		s.threads = append(s.threads, t)
	}
}

// UpsertThread stores t. A new id is placed first and reported as inserted;
// a known id is updated in place and keeps its position.
func (s *ThreadStore) UpsertThread(t models.Thread) bool {
	if i, ok := s.index[t.ID]; ok {
		// Counters only grow; an echo may carry a stale count.
		if s.threads[i].ReplyCount > t.ReplyCount {
			t.ReplyCount = s.threads[i].ReplyCount
		}
		s.threads[i] = t
		return false
	}

	s.threads = append([]models.Thread{t}, s.threads...)
	for i, th := range s.threads {
		s.index[th.ID] = i
	}
	return true
}

// IncrementReplyCount bumps the cached reply counter of a thread that is not
// open. It reports the new count, or false when nothing changed.
func (s *ThreadStore) IncrementReplyCount(threadID int64) (int, bool) {
	if threadID == s.openID {
		return 0, false
	}
	i, ok := s.index[threadID]
	if !ok {
		return 0, false
	}
	s.threads[i].ReplyCount++
	return s.threads[i].ReplyCount, true
}

// OpenThread makes thread the open thread with its initial replies, replacing
// whatever was open before.
func (s *ThreadStore) OpenThread(thread models.Thread, replies []models.Reply) {
	s.openID = thread.ID
	s.open = thread
	s.replies = make([]models.Reply, 0, len(replies))
	s.replyIDs = make(map[int64]bool, len(replies))
	for _, r := range replies {
		if r.ThreadID != thread.ID || s.replyIDs[r.ID] {
			continue
		}
		s.replyIDs[r.ID] = true
		s.replies = append(s.replies, r)
	}
	s.UpsertThread(thread)
}

// CloseThread drops the open thread's reply list.
func (s *ThreadStore) CloseThread() {
	s.openID = 0
	s.open = models.Thread{}
	s.replies = nil
	s.replyIDs = nil
}

// OpenThreadID returns the open thread's id, or 0.
func (s *ThreadStore) OpenThreadID() int64 {
	return s.openID
}

// OpenThreadDetail returns the open thread, or false when none is open.
func (s *ThreadStore) OpenThreadDetail() (models.Thread, bool) {
	return s.open, s.openID != 0
}

// Replies returns a snapshot of the open thread's replies, oldest first.
// Any other thread id yields nil.
func (s *ThreadStore) Replies(threadID int64) []models.Reply {
	if threadID == 0 || threadID != s.openID {
		return nil
	}
	out := make([]models.Reply, len(s.replies))
	copy(out, s.replies)
	return out
}

// AppendReply adds a reply to the end of the open thread.
func (s *ThreadStore) AppendReply(r models.Reply) error {
	if s.openID == 0 || r.ThreadID != s.openID {
		return ErrCrossThread
	}
	if s.replyIDs[r.ID] {
		return ErrDuplicateReply
	}
	s.replyIDs[r.ID] = true
	s.replies = append(s.replies, r)

	s.open.ReplyCount = len(s.replies)
	if i, ok := s.index[r.ThreadID]; ok {
		s.threads[i].ReplyCount = s.open.ReplyCount
	}
	return nil
}
