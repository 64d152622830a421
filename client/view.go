package client

import (
	"fmt"
	"io"
	"strings"

	"github.com/MattCruikshank/mindcare/internal/models"
	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"
)

// View renders forum state. It holds no forum state of its own; every call
// comes from the engine's execution context.
type View interface {
	RenderThreadList(threads []models.Thread)
	PrependThread(thread models.Thread)
	// UpdateReplyCount changes a rendered list entry's badge. Entries that are
	// not rendered are ignored.
	UpdateReplyCount(threadID int64, count int)
	RenderThreadDetail(thread models.Thread, replies []models.Reply)
	// AppendReply adds a reply to the end of the detail pane and scrolls to it.
	AppendReply(reply models.Reply)
	CloseComposer()
	ShowNotice(msg string)
	ShowError(msg string)
	FocusComposer(text string)
}

// ExcerptRunes is the length of message previews in the thread list.
const ExcerptRunes = 100

// Excerpt shortens a message for the thread list.
func Excerpt(message string) string {
	r := []rune(message)
	if len(r) <= ExcerptRunes {
		return message
	}
	return string(r[:ExcerptRunes]) + "..."
}

// ReplyCountLabel renders a reply badge such as "1,204 replies".
func ReplyCountLabel(n int) string {
	return humanize.Comma(int64(n)) + " " + english.PluralWord(n, "reply", "replies")
}

// TextView renders the forum as plain text.
type TextView struct {
	w      io.Writer
	listed map[int64]bool // thread ids rendered in the current list
}

// NewTextView creates a text view writing to w.
func NewTextView(w io.Writer) *TextView {
	return &TextView{w: w, listed: make(map[int64]bool)}
}

func (v *TextView) printf(format string, args ...interface{}) {
	fmt.Fprintf(v.w, format, args...)
}

func (v *TextView) threadLine(t models.Thread) {
	v.printf("[%d] %s  (%s, by %s, %s)  %s\n", t.ID, t.Title, t.Category, t.Author, t.Timestamp, ReplyCountLabel(t.ReplyCount))
	v.printf("     %s\n", Excerpt(t.Message))
	v.listed[t.ID] = true
}

// RenderThreadList implements View.
func (v *TextView) RenderThreadList(threads []models.Thread) {
	v.listed = make(map[int64]bool, len(threads))
	v.printf("== Community Forum ==\n")
	if len(threads) == 0 {
		v.printf("No threads yet. Start the conversation!\n")
		return
	}
	for _, t := range threads {
		v.threadLine(t)
	}
}

// PrependThread implements View.
func (v *TextView) PrependThread(thread models.Thread) {
	v.printf("+ new thread\n")
	v.threadLine(thread)
}

// UpdateReplyCount implements View.
func (v *TextView) UpdateReplyCount(threadID int64, count int) {
	if !v.listed[threadID] {
		return
	}
	v.printf("* [%d] now has %s\n", threadID, ReplyCountLabel(count))
}

// RenderThreadDetail implements View.
func (v *TextView) RenderThreadDetail(thread models.Thread, replies []models.Reply) {
	v.listed = make(map[int64]bool)
	v.printf("== %s ==\n", thread.Title)
	v.printf("%s | by %s | %s\n\n", thread.Category, thread.Author, thread.Timestamp)
	v.printf("%s\n\n", thread.Message)
	v.printf("-- %s --\n", ReplyCountLabel(len(replies)))
	for _, r := range replies {
		v.AppendReply(r)
	}
}

// AppendReply implements View.
func (v *TextView) AppendReply(reply models.Reply) {
	v.printf("  %s (%s): %s\n", reply.Author, reply.Timestamp, reply.Text)
}

// CloseComposer implements View.
func (v *TextView) CloseComposer() {}

// ShowNotice implements View.
func (v *TextView) ShowNotice(msg string) {
	v.printf("! %s\n", msg)
}

// ShowError implements View.
func (v *TextView) ShowError(msg string) {
	v.printf("error: %s\n", msg)
}

// FocusComposer implements View.
func (v *TextView) FocusComposer(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	v.printf("reply> %s\n", text)
}
