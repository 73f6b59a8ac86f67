package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkReadBySkipsSenderAndDuplicates(t *testing.T) {
	m := Message{SenderRole: RoleSeeker}

	assert.False(t, m.MarkReadBy(RoleSeeker))
	assert.True(t, m.MarkReadBy(RoleExpert))
	assert.False(t, m.MarkReadBy(RoleExpert))
	assert.Equal(t, []Role{RoleExpert}, m.ReadBy)
	assert.False(t, m.UnreadFor(RoleExpert))
	assert.False(t, m.UnreadFor(RoleSeeker))
}

func TestUnreadForOnValues(t *testing.T) {
	msgs := []Message{
		{SenderRole: RoleSeeker},
		{SenderRole: RoleSeeker, ReadBy: []Role{RoleExpert}},
		{SenderRole: RoleExpert},
	}
	n := 0
	for _, m := range msgs {
		if m.Clone().UnreadFor(RoleExpert) {
			n++
		}
	}
	assert.Equal(t, 1, n)
	assert.True(t, Message{SenderRole: RoleExpert}.UnreadFor(RoleSeeker))
	assert.False(t, Message{SenderRole: RoleExpert, ReadBy: []Role{RoleSeeker}}.IsReadBy(RoleExpert))
}

func TestAttachmentRefJSON(t *testing.T) {
	ref := "c/4f1e.png"
	data, err := json.Marshal(Message{Content: "https://cdn/x.png", ContentType: ContentImage, AttachmentRef: &ref})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"attachment_ref":"c/4f1e.png"`)
	assert.NotContains(t, string(data), "file_url")
}

func TestMessageIDJSONIsString(t *testing.T) {
	ids := []MessageID{7262969340747993088, 1}
	data, err := json.Marshal(ids)
	require.NoError(t, err)
	assert.Equal(t, `["7262969340747993088","1"]`, string(data))

	var back []MessageID
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, ids, back)
}

func TestChannelIsOpen(t *testing.T) {
	now := time.Now()
	ch := Channel{Active: true, ExpiresAt: now.Add(time.Hour)}
	assert.True(t, ch.IsOpen(now))
	assert.False(t, ch.IsOpen(now.Add(2*time.Hour)))

	ch.Active = false
	assert.False(t, ch.IsOpen(now))
}

func TestRatingDelta(t *testing.T) {
	assert.Equal(t, 1, RatingUpvote.Delta())
	assert.Equal(t, -1, RatingDownvote.Delta())
	assert.False(t, RatingOutcome("meh").Valid())
}
