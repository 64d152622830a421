package client

import "strings"

// ReplyContext records whom a reply is addressed to.
type ReplyContext struct {
	TargetAuthor string
}

// ReplyComposer holds the reply field's text and reply-to context.
type ReplyComposer struct {
	text string
	ctx  *ReplyContext
}

// MentionPrefix returns the text a reply to author starts with.
func MentionPrefix(author string) string {
	return "@" + author + " "
}

// BeginReplyTo addresses the reply to author and pre-fills the mention.
func (c *ReplyComposer) BeginReplyTo(author string) {
	c.ctx = &ReplyContext{TargetAuthor: author}
	c.text = MentionPrefix(author)
}

// Cancel drops the reply context. The text is cleared only if it is still
// exactly the untouched mention.
func (c *ReplyComposer) Cancel() {
	if c.ctx != nil && c.text == MentionPrefix(c.ctx.TargetAuthor) {
		c.text = ""
	}
	c.ctx = nil
}

// SetText records what the user typed. Text that no longer starts with the
// mention marker invalidates the context.
func (c *ReplyComposer) SetText(s string) {
	c.text = s
	if c.ctx != nil && !strings.HasPrefix(s, "@"+c.ctx.TargetAuthor) {
		c.ctx = nil
	}
}

// Reset clears text and context after a send.
func (c *ReplyComposer) Reset() {
	c.text = ""
	c.ctx = nil
}

// Text returns the field's content.
func (c *ReplyComposer) Text() string {
	return c.text
}

// Context returns the active reply context, or nil.
func (c *ReplyComposer) Context() *ReplyContext {
	return c.ctx
}
