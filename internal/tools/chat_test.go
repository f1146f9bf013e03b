// ABOUTME: Tests for the chat tool pack
// ABOUTME: Covers DM sends, self DMs, history rendering and listing

package tools

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tommyyliu/everlight-agents/internal/store"
)

func TestSendDMTo_PersistsAndNotifies(t *testing.T) {
	f := newFixture(t)

	result := invoke(t, f.tc, sendDMTo, `{"target_agent":"Safine","content":"hello there"}`)
	assert.True(t, strings.HasPrefix(result, "Sent to Direct Message between Eforos and Safine (conversation_id="), result)

	// Chat message persisted in the ensured conversation.
	convs, err := f.store.ListConversations(context.Background(), f.user.ID, "dm")
	require.NoError(t, err)
	require.Len(t, convs, 1)

	msgs, err := f.store.ListChatMessages(context.Background(), convs[0].ID, store.ChatMessageFilter{Limit: 10})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello there", msgs[0].Content)
	assert.Equal(t, "text", msgs[0].ContentType)

	// Notification goes to the target's private channel: lower-cased name.
	sent := f.transport.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "safine", sent[0].Channel)
	assert.Equal(t, "Eforos", sent[0].Sender)
	assert.Equal(t, "hello there", sent[0].Message)
}

func TestSendDMTo_UnknownAgent(t *testing.T) {
	f := newFixture(t)

	result := invoke(t, f.tc, sendDMTo, `{"target_agent":"Nobody","content":"hi"}`)
	assert.Equal(t, "Error: one or both agents not found.", result)
	assert.Empty(t, f.transport.sent())
}

func TestSendDMTo_TestModeSkipsNotification(t *testing.T) {
	f := newFixture(t)
	f.tc.Testing = true

	result := invoke(t, f.tc, sendDMTo, `{"target_agent":"Safine","content":"quiet"}`)
	assert.Contains(t, result, "Sent to")
	assert.Empty(t, f.transport.sent())

	convs, err := f.store.ListConversations(context.Background(), f.user.ID, "dm")
	require.NoError(t, err)
	assert.Len(t, convs, 1)
}

func TestSendSelfDM(t *testing.T) {
	f := newFixture(t)

	result := invoke(t, f.tc, sendSelfDM, `{"content":"remember this"}`)
	assert.True(t, strings.HasPrefix(result, "Sent to Direct Message with Eforos (self) (conversation_id="), result)

	sent := f.transport.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "eforos", sent[0].Channel)
}

func TestFetchDMHistory_Format(t *testing.T) {
	f := newFixture(t)

	invoke(t, f.tc, sendDMTo, `{"target_agent":"Safine","content":"first"}`)
	invoke(t, f.tc, sendDMTo, `{"target_agent":"Safine","content":"second"}`)

	result := invoke(t, f.tc, fetchDMHistory, `{"with_agent":"Safine"}`)
	lines := strings.Split(result, "\n")
	require.GreaterOrEqual(t, len(lines), 6)
	assert.True(t, strings.HasPrefix(lines[0], "Conversation: Direct Message between Eforos and Safine"))
	assert.Equal(t, "Members: Eforos, Safine", lines[1])
	assert.Equal(t, "---", lines[2])
	assert.Equal(t, "Messages:", lines[3])
	assert.Contains(t, lines[4], "Eforos: first")
	assert.Contains(t, lines[5], "Eforos: second")
}

func TestFetchSelfDMHistory_EnsuresConversation(t *testing.T) {
	f := newFixture(t)

	result := invoke(t, f.tc, fetchSelfDMHistory, `{}`)
	assert.Contains(t, result, "Conversation: Direct Message with Eforos (self)")
	assert.Contains(t, result, "Members: Eforos")

	convs, err := f.store.ListConversations(context.Background(), f.user.ID, "self")
	require.NoError(t, err)
	assert.Len(t, convs, 1)
}

func TestListConversations(t *testing.T) {
	f := newFixture(t)

	result := invoke(t, f.tc, listConversations, `{}`)
	assert.Equal(t, "No conversations found.", result)

	invoke(t, f.tc, sendDMTo, `{"target_agent":"Safine","content":"hi"}`)
	invoke(t, f.tc, sendSelfDM, `{"content":"note"}`)

	result = invoke(t, f.tc, listConversations, `{}`)
	assert.Contains(t, result, "Conversation: Direct Message between Eforos and Safine")
	assert.Contains(t, result, "Conversation: Direct Message with Eforos (self)")
	assert.NotContains(t, result, "no messages yet")

	result = invoke(t, f.tc, listConversations, `{"kind":"self"}`)
	assert.NotContains(t, result, "between Eforos and Safine")
	assert.Contains(t, result, "(self)")
}
