package client

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/MattCruikshank/mindcare/internal/models"
	"github.com/MattCruikshank/mindcare/internal/protocol"
	"go.uber.org/zap"
)

var (
	// ErrValidation is returned when a submission is missing required input.
	ErrValidation = errors.New("validation failed")
	// ErrNoThreadOpen is returned when replying outside a thread's detail view.
	ErrNoThreadOpen = errors.New("no thread open")
)

// Messages shown to the user.
const (
	NoticeFillAllFields = "Please fill in all fields."
	NoticeEmptyReply    = "Please write a reply first."
	ErrorLoadThreads    = "Could not load the forum. Please try again."
	ErrorLoadThread     = "Could not load this thread. Please try again."
	ErrorSend           = "Could not send. Please check your connection and try again."
)

// ViewState is the engine's navigation state.
type ViewState int

const (
	ListView ViewState = iota
	DetailView
)

func (s ViewState) String() string {
	switch s {
	case ListView:
		return "list"
	case DetailView:
		return "detail"
	}
	return "unknown"
}

// Session is the navigation state of one forum session.
type Session struct {
	State    ViewState
	ThreadID int64  // open thread in DetailView, else 0
	Room     string // room joined, else ""

	// nav increases on every navigation; fetch results carrying an older
	// value are stale.
	nav uint64
	// opening is the thread whose detail fetch is pending, else 0. The view
	// keeps showing the previous screen until the fetch completes.
	opening int64
}

// Engine keeps the ThreadStore and the view in step with user actions and
// realtime broadcasts. Except for Start, its methods must run on the
// scheduler's execution context.
type Engine struct {
	store    *ThreadStore
	channel  RealtimeChannel
	api      ForumAPI
	view     View
	sched    Scheduler
	composer *ReplyComposer
	session  Session
	log      *zap.Logger
}

// NewEngine creates an engine in ListView.
func NewEngine(store *ThreadStore, channel RealtimeChannel, api ForumAPI, view View, sched Scheduler, log *zap.Logger) *Engine {
	return &Engine{
		store:    store,
		channel:  channel,
		api:      api,
		view:     view,
		sched:    sched,
		composer: &ReplyComposer{},
		log:      log,
	}
}

// Session returns a copy of the navigation state.
func (e *Engine) Session() Session {
	return e.session
}

// Store returns the engine's thread store.
func (e *Engine) Store() *ThreadStore {
	return e.store
}

// Composer returns the reply composer.
func (e *Engine) Composer() *ReplyComposer {
	return e.composer
}

// Start registers the broadcast handlers, connects the channel and queues the
// initial list load. It may be called before the scheduler runs.
func (e *Engine) Start(ctx context.Context) error {
	e.channel.On(protocol.TypeThreadCreated, e.onThreadCreated)
	e.channel.On(protocol.TypeReplyCreated, e.onReplyCreated)
	e.channel.On(protocol.TypeError, e.onServerError)

	if err := e.channel.Connect(ctx); err != nil {
		return err
	}
	e.sched.Post(func() { e.ShowList(ctx) })
	return nil
}

func (e *Engine) leaveRoom() {
	if e.session.Room == "" {
		return
	}
	if err := e.channel.LeaveRoom(e.session.Room); err != nil {
		e.log.Warn("failed to leave room", zap.String("room", e.session.Room), zap.Error(err))
	}
	e.session.Room = ""
}

// toList resets the session to ListView and starts a new navigation.
func (e *Engine) toList() uint64 {
	e.leaveRoom()
	e.store.CloseThread()
	e.session.State = ListView
	e.session.ThreadID = 0
	e.session.opening = 0
	e.session.nav++
	return e.session.nav
}

// OpenThread navigates to a thread's detail view. The room is joined only
// after the thread and its replies are rendered.
func (e *Engine) OpenThread(ctx context.Context, id int64) {
	nav := e.toList()
	e.session.opening = id

	e.sched.Go(func() {
		detail, err := e.api.GetThread(ctx, id)
		e.sched.Post(func() { e.finishOpen(nav, id, detail, err) })
	})
}

func (e *Engine) finishOpen(nav uint64, id int64, detail *models.ThreadDetail, err error) {
	if nav != e.session.nav {
		e.log.Debug("discarding stale thread response", zap.Int64("thread", id))
		return
	}
	e.session.opening = 0
	if err == nil && detail.Thread.ID != id {
		err = errors.New("server returned a different thread")
	}
	if err != nil {
		e.log.Warn("failed to load thread", zap.Int64("thread", id), zap.Error(err))
		e.view.RenderThreadList(e.store.ListThreads())
		e.view.ShowError(ErrorLoadThread)
		return
	}

	e.store.OpenThread(detail.Thread, detail.Replies)
	thread, _ := e.store.OpenThreadDetail()
	e.view.RenderThreadDetail(thread, e.store.Replies(id))

	room := protocol.RoomForThread(id)
	if err := e.channel.JoinRoom(room); err != nil {
		e.log.Warn("failed to join room", zap.String("room", room), zap.Error(err))
	}
	e.session.State = DetailView
	e.session.ThreadID = id
	e.session.Room = room
}

// ShowList navigates to the thread list and refetches it.
func (e *Engine) ShowList(ctx context.Context) {
	nav := e.toList()

	e.sched.Go(func() {
		threads, err := e.api.ListThreads(ctx)
		e.sched.Post(func() { e.finishList(nav, threads, err) })
	})
}

func (e *Engine) finishList(nav uint64, threads []models.Thread, err error) {
	if nav != e.session.nav {
		e.log.Debug("discarding stale thread list")
		return
	}
	if err != nil {
		e.log.Warn("failed to load threads", zap.Error(err))
		e.view.RenderThreadList(e.store.ListThreads())
		e.view.ShowError(ErrorLoadThreads)
		return
	}

	// Threads are never deleted, so a known thread missing from the fetch
	// arrived by broadcast after the server built the list.
	fetched := make(map[int64]bool, len(threads))
	for _, t := range threads {
		fetched[t.ID] = true
	}
	var newer []models.Thread
	for _, t := range e.store.ListThreads() {
		if !fetched[t.ID] {
			newer = append(newer, t)
		}
	}
	e.store.ReplaceThreads(threads)
	for i := len(newer) - 1; i >= 0; i-- {
		e.store.UpsertThread(newer[i])
	}

	e.view.RenderThreadList(e.store.ListThreads())
}

func (e *Engine) onThreadCreated(data json.RawMessage) {
	var thread models.Thread
	if err := json.Unmarshal(data, &thread); err != nil || thread.ID <= 0 {
		e.log.Warn("ignoring malformed thread_created", zap.ByteString("data", data))
		return
	}
	// While a detail fetch is pending the screen is not the list.
	if e.store.UpsertThread(thread) && e.session.State == ListView && e.session.opening == 0 {
		e.view.PrependThread(thread)
	}
}

func (e *Engine) onReplyCreated(data json.RawMessage) {
	var reply models.Reply
	if err := json.Unmarshal(data, &reply); err != nil || reply.ThreadID <= 0 {
		e.log.Warn("ignoring malformed reply_created", zap.ByteString("data", data))
		return
	}

	if e.session.State == DetailView && reply.ThreadID == e.session.ThreadID {
		if err := e.store.AppendReply(reply); err != nil {
			e.log.Warn("dropping reply", zap.Int64("reply", reply.ID), zap.Int64("thread", reply.ThreadID), zap.Error(err))
			return
		}
		e.view.AppendReply(reply)
		return
	}

	if count, ok := e.store.IncrementReplyCount(reply.ThreadID); ok {
		e.view.UpdateReplyCount(reply.ThreadID, count)
	}
}

func (e *Engine) onServerError(data json.RawMessage) {
	var msg protocol.ErrorMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		e.log.Warn("ignoring malformed error event", zap.ByteString("data", data))
		return
	}
	e.log.Info("server rejected event", zap.String("code", msg.Code), zap.String("message", msg.Message))
	e.view.ShowError(msg.Message)
}

// SubmitNewThread emits a new thread. The thread appears in the list only
// when the server's broadcast arrives.
func (e *Engine) SubmitNewThread(title, category, message string) error {
	title = strings.TrimSpace(title)
	category = strings.TrimSpace(category)
	message = strings.TrimSpace(message)
	if title == "" || category == "" || message == "" {
		e.view.ShowNotice(NoticeFillAllFields)
		return ErrValidation
	}

	err := e.channel.Emit(protocol.TypeNewThread, protocol.NewThreadMessage{
		Title:    title,
		Category: category,
		Message:  message,
	})
	if err != nil {
		e.log.Warn("failed to emit new_thread", zap.Error(err))
		e.view.ShowError(ErrorSend)
		return err
	}
	e.view.CloseComposer()
	return nil
}

// SubmitReply emits a reply to the open thread and clears the composer.
func (e *Engine) SubmitReply(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		e.view.ShowNotice(NoticeEmptyReply)
		return ErrValidation
	}
	if e.session.State != DetailView {
		return ErrNoThreadOpen
	}

	err := e.channel.Emit(protocol.TypeNewReply, protocol.NewReplyMessage{
		ThreadID: e.session.ThreadID,
		Text:     text,
	})
	if err != nil {
		e.log.Warn("failed to emit new_reply", zap.Int64("thread", e.session.ThreadID), zap.Error(err))
		e.view.ShowError(ErrorSend)
		return err
	}
	e.composer.Reset()
	return nil
}

// BeginReplyTo addresses the reply being composed to author.
func (e *Engine) BeginReplyTo(author string) {
	e.composer.BeginReplyTo(author)
	e.view.FocusComposer(e.composer.Text())
}

// CancelReplyTo drops the reply-to context.
func (e *Engine) CancelReplyTo() {
	e.composer.Cancel()
}
