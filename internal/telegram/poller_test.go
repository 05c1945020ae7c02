package telegram

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/hlabs/openclaw/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

type fakeUpdater struct {
	batches [][]Update
	offsets []int64
	err     error
}

func (f *fakeUpdater) GetUpdates(_ context.Context, offset int64, _ time.Duration) ([]Update, error) {
	f.offsets = append(f.offsets, offset)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.batches) == 0 {
		return nil, nil
	}
	b := f.batches[0]
	f.batches = f.batches[1:]
	return b, nil
}

const groupID = -1001234

func userMsg(id int64, thread int, text string) Update {
	return Update{UpdateID: id, Message: &Message{
		From:            &User{ID: 555, FirstName: "Ana"},
		Chat:            Chat{ID: groupID},
		MessageThreadID: thread,
		Text:            text,
	}}
}

func TestPoller_ReturnsFirstActionableCommand(t *testing.T) {
	bot := userMsg(10, 1, "mirror from the bot")
	bot.Message.From.IsBot = true
	other := userMsg(11, 1, "other chat")
	other.Message.Chat.ID = -100999
	wrongTopic := userMsg(12, 7, "wrong topic")
	photo := userMsg(13, 1, "")

	up := &fakeUpdater{batches: [][]Update{
		{bot, other, wrongTopic, photo, userMsg(14, 1, "design a caching layer"), userMsg(15, 1, "second")},
		{userMsg(16, 0, "main thread")},
	}}
	logger := logging.NewTestLogger()
	p := NewPoller(up, "1234", 1, 10*time.Second, logger.Underlying())

	cmd, err := p.Poll(context.Background())
	require.NoError(t, err)
	require.NotNil(t, cmd)
	assert.Equal(t, "design a caching layer", cmd.Text)
	assert.Equal(t, "555", cmd.SubmitterID)
	assert.Equal(t, SourceName, cmd.Source)

	logger.AssertLogged(t, zapcore.DebugLevel, "ignored: wrong chat")
	logger.AssertLogged(t, zapcore.DebugLevel, "ignored: wrong topic")
	logger.AssertLogged(t, zapcore.DebugLevel, "ignored: command already taken")

	// Topic 1 accepts main-thread messages without a thread id.
	cmd, err = p.Poll(context.Background())
	require.NoError(t, err)
	require.NotNil(t, cmd)
	assert.Equal(t, "main thread", cmd.Text)

	cmd, err = p.Poll(context.Background())
	require.NoError(t, err)
	assert.Nil(t, cmd)

	assert.Equal(t, []int64{0, 16, 17}, up.offsets)
}

func TestPoller_TopicRules(t *testing.T) {
	tests := []struct {
		name   string
		topic  int
		thread int
		want   bool
	}{
		{"exact match", 5, 5, true},
		{"other topic", 5, 6, false},
		{"no thread with topic 5", 5, 0, false},
		{"no thread with topic 1", 1, 0, true},
		{"any topic when unset", 0, 42, true},
		{"any topic when negative", -1, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPoller(&fakeUpdater{}, "-1001234", tt.topic, 0, nil)
			assert.Equal(t, tt.want, p.matchesTopic(tt.thread))
		})
	}
}

func TestPoller_Error(t *testing.T) {
	up := &fakeUpdater{err: errors.New("timeout")}
	p := NewPoller(up, "-1001234", 1, time.Second, nil)
	cmd, err := p.Poll(context.Background())
	assert.Error(t, err)
	assert.Nil(t, cmd)
}

func TestPoller_OverHTTP(t *testing.T) {
	api, client := newBotAPI(t)
	api.handlers["getUpdates"] = func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"ok": true, "result": []map[string]any{{
			"update_id": 3,
			"message": map[string]any{
				"message_id": 1,
				"from":       map[string]any{"id": 777, "is_bot": false, "first_name": "Bo"},
				"chat":       map[string]any{"id": groupID},
				"text":       "write a launch tweet thread",
			},
		}}})
	}

	p := NewPoller(client, "1234", 1, 0, nil)
	cmd, err := p.Poll(context.Background())
	require.NoError(t, err)
	require.NotNil(t, cmd)
	assert.Equal(t, "write a launch tweet thread", cmd.Text)
	assert.Equal(t, "777", cmd.SubmitterID)
}
