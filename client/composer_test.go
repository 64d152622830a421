package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCancelUntouchedMentionClearsText(t *testing.T) {
	var c ReplyComposer
	c.BeginReplyTo("Sam")
	assert.Equal(t, "@Sam ", c.Text())
	require.NotNil(t, c.Context())
	assert.Equal(t, "Sam", c.Context().TargetAuthor)

	c.Cancel()
	assert.Equal(t, "", c.Text())
	assert.Nil(t, c.Context())
}

func TestCancelKeepsUserText(t *testing.T) {
	var c ReplyComposer
	c.BeginReplyTo("Sam")
	c.SetText("@Sam thanks!")

	c.Cancel()
	assert.Equal(t, "@Sam thanks!", c.Text())
	assert.Nil(t, c.Context())
}

func TestEditingAwayMentionDropsContext(t *testing.T) {
	var c ReplyComposer
	c.BeginReplyTo("Sam")
	c.SetText("@Sa")
	assert.Nil(t, c.Context())

	// Without a context, cancel never touches the text.
	c.SetText("@Sam ")
	c.Cancel()
	assert.Equal(t, "@Sam ", c.Text())
}

func TestResetClearsEverything(t *testing.T) {
	var c ReplyComposer
	c.BeginReplyTo("Sam")
	c.SetText("@Sam see you")
	c.Reset()
	assert.Empty(t, c.Text())
	assert.Nil(t, c.Context())
}
