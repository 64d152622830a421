package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/MattCruikshank/mindcare/internal/models"
	"github.com/MattCruikshank/mindcare/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// manualScheduler queues both background work and posted functions so tests
// decide when fetches complete.
type manualScheduler struct {
	work   []func()
	posted []func()
}

func (s *manualScheduler) Go(work func()) { s.work = append(s.work, work) }
func (s *manualScheduler) Post(fn func()) { s.posted = append(s.posted, fn) }

// runWork completes the i-th pending background job.
func (s *manualScheduler) runWork(i int) {
	w := s.work[i]
	s.work = append(s.work[:i], s.work[i+1:]...)
	w()
}

// drain runs everything until both queues are empty.
func (s *manualScheduler) drain() {
	for len(s.work) > 0 || len(s.posted) > 0 {
		for len(s.work) > 0 {
			s.runWork(0)
		}
		for len(s.posted) > 0 {
			fn := s.posted[0]
			s.posted = s.posted[1:]
			fn()
		}
	}
}

type emitted struct {
	event   protocol.MessageType
	payload interface{}
}

type fakeChannel struct {
	connects int
	emitErr  error
	emits    []emitted
	ops      []string // join:<room> and leave:<room> in call order
	joined   map[string]bool
	handlers map[protocol.MessageType][]Handler
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{joined: make(map[string]bool), handlers: make(map[protocol.MessageType][]Handler)}
}

func (c *fakeChannel) Connect(context.Context) error { c.connects++; return nil }
func (c *fakeChannel) Close() error                  { return nil }

func (c *fakeChannel) Emit(event protocol.MessageType, payload interface{}) error {
	if c.emitErr != nil {
		return c.emitErr
	}
	c.emits = append(c.emits, emitted{event, payload})
	return nil
}

func (c *fakeChannel) On(event protocol.MessageType, h Handler) {
	c.handlers[event] = append(c.handlers[event], h)
}

func (c *fakeChannel) JoinRoom(room string) error {
	c.ops = append(c.ops, "join:"+room)
	c.joined[room] = true
	return nil
}

func (c *fakeChannel) LeaveRoom(room string) error {
	c.ops = append(c.ops, "leave:"+room)
	delete(c.joined, room)
	return nil
}

func (c *fakeChannel) deliver(t *testing.T, event protocol.MessageType, payload interface{}) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	for _, h := range c.handlers[event] {
		h(raw)
	}
}

type fakeAPI struct {
	threads   []models.Thread
	details   map[int64]*models.ThreadDetail
	listErr   error
	threadErr error
}

func (a *fakeAPI) ListThreads(context.Context) ([]models.Thread, error) {
	if a.listErr != nil {
		return nil, a.listErr
	}
	return append([]models.Thread(nil), a.threads...), nil
}

func (a *fakeAPI) GetThread(_ context.Context, id int64) (*models.ThreadDetail, error) {
	if a.threadErr != nil {
		return nil, a.threadErr
	}
	d, ok := a.details[id]
	if !ok {
		return nil, &StatusError{Code: 404}
	}
	cp := *d
	cp.Replies = append([]models.Reply(nil), d.Replies...)
	return &cp, nil
}

type recordingView struct {
	list      []models.Thread
	prepended []models.Thread
	badges    map[int64]int
	detail    *models.Thread
	replies   []models.Reply
	notices   []string
	errors    []string
	closed    int
	focused   []string
}

func newRecordingView() *recordingView {
	return &recordingView{badges: make(map[int64]int)}
}

func (v *recordingView) RenderThreadList(threads []models.Thread) {
	v.list = threads
	v.detail = nil
	v.replies = nil
}
func (v *recordingView) PrependThread(t models.Thread) {
	v.prepended = append(v.prepended, t)
	v.list = append([]models.Thread{t}, v.list...)
}
func (v *recordingView) UpdateReplyCount(id int64, n int) { v.badges[id] = n }
func (v *recordingView) RenderThreadDetail(t models.Thread, replies []models.Reply) {
	v.detail = &t
	v.replies = replies
}
func (v *recordingView) AppendReply(r models.Reply) { v.replies = append(v.replies, r) }
func (v *recordingView) CloseComposer()             { v.closed++ }
func (v *recordingView) ShowNotice(msg string)      { v.notices = append(v.notices, msg) }
func (v *recordingView) ShowError(msg string)       { v.errors = append(v.errors, msg) }
func (v *recordingView) FocusComposer(text string)  { v.focused = append(v.focused, text) }

type harness struct {
	engine *Engine
	ch     *fakeChannel
	api    *fakeAPI
	view   *recordingView
	sched  *manualScheduler
}

func replies(threadID int64, n int) []models.Reply {
	out := make([]models.Reply, n)
	for i := range out {
		out[i] = models.Reply{ID: int64(i + 1), ThreadID: threadID, Author: "Ben", Text: fmt.Sprintf("r%d", i+1)}
	}
	return out
}

// newHarness starts an engine whose list shows A(id=1, replies=3) and B(id=2, replies=0).
func newHarness(t *testing.T) *harness {
	t.Helper()
	a := models.Thread{ID: 1, Title: "A", Category: "academic", Author: "Asha", ReplyCount: 3}
	b := models.Thread{ID: 2, Title: "B", Category: "wellness", Author: "Ben"}
	h := &harness{
		ch: newFakeChannel(),
		api: &fakeAPI{
			threads: []models.Thread{a, b},
			details: map[int64]*models.ThreadDetail{
				1: {Thread: a, Replies: replies(1, 3)},
				2: {Thread: b},
			},
		},
		view:  newRecordingView(),
		sched: &manualScheduler{},
	}
	h.engine = NewEngine(NewThreadStore(), h.ch, h.api, h.view, h.sched, zap.NewNop())
	require.NoError(t, h.engine.Start(context.Background()))
	h.sched.drain()
	require.Len(t, h.view.list, 2)
	return h
}

func (h *harness) open(id int64) {
	h.engine.OpenThread(context.Background(), id)
	h.sched.drain()
}

func TestStartLoadsListAndRegistersHandlers(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, 1, h.ch.connects)
	assert.Equal(t, ListView, h.engine.Session().State)
	assert.Len(t, h.ch.handlers[protocol.TypeThreadCreated], 1)
	assert.Len(t, h.ch.handlers[protocol.TypeReplyCreated], 1)
	assert.Equal(t, "A", h.view.list[0].Title)
}

func TestOpenThreadScenario(t *testing.T) {
	h := newHarness(t)

	h.open(1)
	s := h.engine.Session()
	assert.Equal(t, DetailView, s.State)
	assert.Equal(t, int64(1), s.ThreadID)
	assert.Equal(t, "thread_1", s.Room)
	assert.True(t, h.ch.joined["thread_1"])
	require.Len(t, h.view.replies, 3)

	h.ch.deliver(t, protocol.TypeReplyCreated, models.Reply{ID: 9, ThreadID: 1, Author: "Chen", Text: "hi"})
	require.Len(t, h.view.replies, 4)
	assert.Equal(t, "hi", h.view.replies[3].Text)
	assert.Len(t, h.engine.Store().Replies(1), 4)

	// The server now reports four replies.
	h.api.threads[0].ReplyCount = 4
	h.engine.ShowList(context.Background())
	h.sched.drain()
	assert.Equal(t, 4, h.view.list[0].ReplyCount)
}

func TestLeavingDetailLeavesRoom(t *testing.T) {
	h := newHarness(t)

	h.open(1)
	h.engine.ShowList(context.Background())
	h.sched.drain()

	assert.Empty(t, h.ch.joined)
	assert.Equal(t, []string{"join:thread_1", "leave:thread_1"}, h.ch.ops)
	assert.Equal(t, Session{State: ListView}, withoutNav(h.engine.Session()))
	assert.Zero(t, h.engine.Store().OpenThreadID())
}

func TestSwitchingThreadsLeavesBeforeJoining(t *testing.T) {
	h := newHarness(t)

	h.open(1)
	h.open(2)

	assert.Equal(t, []string{"join:thread_1", "leave:thread_1", "join:thread_2"}, h.ch.ops)
	assert.Equal(t, map[string]bool{"thread_2": true}, h.ch.joined)
}

func TestRoomJoinedOnlyAfterFetch(t *testing.T) {
	h := newHarness(t)

	h.engine.OpenThread(context.Background(), 1)
	assert.Empty(t, h.ch.ops)
	assert.Equal(t, ListView, h.engine.Session().State)

	h.sched.drain()
	assert.Equal(t, []string{"join:thread_1"}, h.ch.ops)
}

func TestStaleThreadResponseDiscarded(t *testing.T) {
	h := newHarness(t)

	h.engine.OpenThread(context.Background(), 1)
	h.engine.OpenThread(context.Background(), 2)
	// Thread 2 answers first, then the slow thread 1 response lands.
	h.sched.runWork(1)
	h.sched.runWork(0)
	h.sched.drain()

	s := h.engine.Session()
	assert.Equal(t, int64(2), s.ThreadID)
	assert.Equal(t, "B", h.view.detail.Title)
	assert.Equal(t, []string{"join:thread_2"}, h.ch.ops)
}

func TestStaleListResponseDiscarded(t *testing.T) {
	h := newHarness(t)

	h.engine.ShowList(context.Background())
	h.engine.OpenThread(context.Background(), 1)
	h.sched.drain()

	assert.Equal(t, DetailView, h.engine.Session().State)
	require.NotNil(t, h.view.detail)
	assert.Equal(t, "A", h.view.detail.Title)
}

func TestOpenThreadFailureStaysInList(t *testing.T) {
	h := newHarness(t)
	h.api.threadErr = errors.New("connection refused")

	h.open(1)

	assert.Equal(t, ListView, h.engine.Session().State)
	assert.Empty(t, h.ch.ops)
	assert.Equal(t, []string{ErrorLoadThread}, h.view.errors)
	assert.Len(t, h.view.list, 2)
}

func TestShowListFailureKeepsPriorList(t *testing.T) {
	h := newHarness(t)
	h.api.listErr = errors.New("503")

	h.engine.ShowList(context.Background())
	h.sched.drain()

	assert.Len(t, h.view.list, 2)
	assert.Equal(t, []string{ErrorLoadThreads}, h.view.errors)
}

func TestReplyForOtherThreadUpdatesBadgeOnly(t *testing.T) {
	h := newHarness(t)
	h.open(1)

	h.ch.deliver(t, protocol.TypeReplyCreated, models.Reply{ID: 20, ThreadID: 2, Text: "elsewhere"})

	assert.Len(t, h.view.replies, 3)
	assert.Len(t, h.engine.Store().Replies(1), 3)
	assert.Equal(t, 1, h.view.badges[2])
	th, ok := h.engine.Store().Thread(2)
	require.True(t, ok)
	assert.Equal(t, 1, th.ReplyCount)
}

func TestReplyInListViewIncrementsBadge(t *testing.T) {
	h := newHarness(t)

	h.ch.deliver(t, protocol.TypeReplyCreated, models.Reply{ID: 4, ThreadID: 1, Text: "x"})
	assert.Equal(t, 4, h.view.badges[1])

	// Unknown threads are ignored.
	h.ch.deliver(t, protocol.TypeReplyCreated, models.Reply{ID: 5, ThreadID: 99, Text: "x"})
	_, ok := h.view.badges[99]
	assert.False(t, ok)
}

func TestDuplicateReplyBroadcastAppendsOnce(t *testing.T) {
	h := newHarness(t)
	h.open(1)

	r := models.Reply{ID: 9, ThreadID: 1, Text: "hi"}
	h.ch.deliver(t, protocol.TypeReplyCreated, r)
	h.ch.deliver(t, protocol.TypeReplyCreated, r)

	assert.Len(t, h.view.replies, 4)
}

func TestThreadCreatedPrependsInListOnly(t *testing.T) {
	h := newHarness(t)

	c := models.Thread{ID: 3, Title: "C", Category: "social", Author: "Chen"}
	h.ch.deliver(t, protocol.TypeThreadCreated, c)
	h.ch.deliver(t, protocol.TypeThreadCreated, c)

	require.Len(t, h.view.prepended, 1)
	assert.Equal(t, "C", h.view.list[0].Title)
	assert.Len(t, h.engine.Store().ListThreads(), 3)

	h.open(1)
	h.ch.deliver(t, protocol.TypeThreadCreated, models.Thread{ID: 4, Title: "D"})
	assert.Len(t, h.view.prepended, 1)
	assert.Len(t, h.view.replies, 3)
	assert.Len(t, h.engine.Store().ListThreads(), 4)
}

func TestThreadCreatedWhileSwitchingThreadsNotPrepended(t *testing.T) {
	h := newHarness(t)
	h.open(1)

	// The detail of thread 1 stays on screen until thread 2 arrives.
	h.engine.OpenThread(context.Background(), 2)
	h.ch.deliver(t, protocol.TypeThreadCreated, models.Thread{ID: 3, Title: "C"})
	assert.Empty(t, h.view.prepended)
	require.NotNil(t, h.view.detail)
	assert.Equal(t, int64(1), h.view.detail.ID)
	assert.Len(t, h.engine.Store().ListThreads(), 3)

	h.sched.drain()
	assert.Equal(t, int64(2), h.view.detail.ID)

	// Back on the list the thread is rendered from the store.
	h.api.threads = append([]models.Thread{{ID: 3, Title: "C"}}, h.api.threads...)
	h.engine.ShowList(context.Background())
	h.sched.drain()
	assert.Equal(t, "C", h.view.list[0].Title)

	h.ch.deliver(t, protocol.TypeThreadCreated, models.Thread{ID: 4, Title: "D"})
	require.Len(t, h.view.prepended, 1)
	assert.Equal(t, "D", h.view.prepended[0].Title)
}

func TestBroadcastThreadSurvivesListRefetch(t *testing.T) {
	h := newHarness(t)

	h.engine.ShowList(context.Background())
	// The broadcast lands while the fetch, built before the insert, is in flight.
	h.ch.deliver(t, protocol.TypeThreadCreated, models.Thread{ID: 3, Title: "C"})
	h.sched.drain()

	ids := []int64{}
	for _, th := range h.view.list {
		ids = append(ids, th.ID)
	}
	assert.Equal(t, []int64{3, 1, 2}, ids)
}

func TestSubmitNewThreadValidation(t *testing.T) {
	cases := [][3]string{
		{"", "academic", "body"},
		{"title", "  ", "body"},
		{"title", "academic", ""},
	}
	for _, c := range cases {
		h := newHarness(t)
		err := h.engine.SubmitNewThread(c[0], c[1], c[2])
		assert.ErrorIs(t, err, ErrValidation)
		assert.Empty(t, h.ch.emits)
		assert.Equal(t, []string{NoticeFillAllFields}, h.view.notices)
		assert.Zero(t, h.view.closed)
	}
}

func TestSubmitNewThreadEmitsWithoutLocalInsert(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.engine.SubmitNewThread(" Feeling low ", "wellness", "Any tips?"))

	require.Len(t, h.ch.emits, 1)
	assert.Equal(t, protocol.TypeNewThread, h.ch.emits[0].event)
	assert.Equal(t, protocol.NewThreadMessage{Title: "Feeling low", Category: "wellness", Message: "Any tips?"}, h.ch.emits[0].payload)
	assert.Equal(t, 1, h.view.closed)
	assert.Len(t, h.engine.Store().ListThreads(), 2)
}

func TestSubmitNewThreadEmitFailure(t *testing.T) {
	h := newHarness(t)
	h.ch.emitErr = ErrNotConnected

	err := h.engine.SubmitNewThread("t", "c", "m")
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Zero(t, h.view.closed)
	assert.Equal(t, []string{ErrorSend}, h.view.errors)
}

func TestSubmitReply(t *testing.T) {
	h := newHarness(t)

	assert.ErrorIs(t, h.engine.SubmitReply("hello"), ErrNoThreadOpen)
	assert.Empty(t, h.ch.emits)

	h.open(1)
	assert.ErrorIs(t, h.engine.SubmitReply("   "), ErrValidation)
	assert.Empty(t, h.ch.emits)

	h.engine.BeginReplyTo("Ben")
	h.engine.Composer().SetText("@Ben thanks!")
	require.NoError(t, h.engine.SubmitReply(h.engine.Composer().Text()+"  "))

	require.Len(t, h.ch.emits, 1)
	assert.Equal(t, protocol.NewReplyMessage{ThreadID: 1, Text: "@Ben thanks!"}, h.ch.emits[0].payload)
	assert.Empty(t, h.engine.Composer().Text())
	assert.Nil(t, h.engine.Composer().Context())
	// No local echo; the reply arrives with the broadcast.
	assert.Len(t, h.view.replies, 3)
}

func TestServerErrorShown(t *testing.T) {
	h := newHarness(t)
	h.ch.deliver(t, protocol.TypeError, protocol.ErrorMessage{Code: protocol.ErrCodeNotFound, Message: "Thread not found"})
	assert.Equal(t, []string{"Thread not found"}, h.view.errors)
}

func withoutNav(s Session) Session {
	s.nav = 0
	return s
}
