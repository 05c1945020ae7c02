package telegram

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/hlabs/openclaw/internal/agent"
	"github.com/hlabs/openclaw/internal/config"
	"github.com/hlabs/openclaw/internal/conversation"
	"github.com/hlabs/openclaw/internal/logging"
	"github.com/hlabs/openclaw/internal/secrets"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

type recordingSender struct {
	mu   sync.Mutex
	reqs []SendRequest
	err  error
}

func (s *recordingSender) SendMessage(_ context.Context, req SendRequest) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqs = append(s.reqs, req)
	if s.err != nil {
		return nil, s.err
	}
	return &Message{MessageID: int64(len(s.reqs))}, nil
}

func TestNotifier_Broadcast(t *testing.T) {
	sender := &recordingSender{}
	n := NewNotifier(sender, NotifierOptions{ChatID: "123456", GeneralTopicID: 1})

	n.Broadcast(context.Background(), conversation.DevLog, agent.RoleEngineer, "use a <map> & lock")

	require.Len(t, sender.reqs, 1)
	req := sender.reqs[0]
	assert.Equal(t, "-100123456", req.ChatID)
	assert.Equal(t, 1, req.MessageThreadID)
	assert.Equal(t, "HTML", req.ParseMode)
	assert.Equal(t, "💻 <b>[Engineer]</b>\n\nuse a &lt;map&gt; &amp; lock", req.Text)
}

func TestNotifier_TopicMapping(t *testing.T) {
	opts, err := OptionsFromConfig(config.TelegramConfig{
		ChatID:         "-100777",
		GeneralTopicID: 1,
		Topics:         map[string]int{"quality-control": 9, "final-output": 12},
	})
	require.NoError(t, err)
	sender := &recordingSender{}
	n := NewNotifier(sender, opts)

	assert.Equal(t, 9, n.TopicFor(conversation.QualityControl))
	assert.Equal(t, 12, n.TopicFor(conversation.FinalOutput))
	assert.Equal(t, 1, n.TopicFor(conversation.CopyBoard))

	n.Broadcast(context.Background(), conversation.QualityControl, agent.RoleCritic, "不通过 ❌")
	require.Len(t, sender.reqs, 1)
	assert.Equal(t, 9, sender.reqs[0].MessageThreadID)
	assert.True(t, strings.HasPrefix(sender.reqs[0].Text, "⚖️ <b>[Critic]</b>"))

	_, err = OptionsFromConfig(config.TelegramConfig{Topics: map[string]int{"lobby": 3}})
	assert.ErrorIs(t, err, conversation.ErrUnknownChannel)
}

func TestNotifier_UnknownRoleHeader(t *testing.T) {
	sender := &recordingSender{}
	n := NewNotifier(sender, NotifierOptions{ChatID: "-1001"})
	n.Broadcast(context.Background(), conversation.General, agent.RoleUser, "hi")
	require.Len(t, sender.reqs, 1)
	assert.Equal(t, "🤖 <b>[System]</b>\n\nhi", sender.reqs[0].Text)
	assert.Zero(t, sender.reqs[0].MessageThreadID)
}

func TestNotifier_BroadcastFailureIsLogged(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	logger := logging.NewTestLogger()
	sender := &recordingSender{err: errors.New("connection reset")}
	n := NewNotifier(sender, NotifierOptions{ChatID: "-1001", Logger: logger.Underlying(), Metrics: metrics})

	n.Broadcast(context.Background(), conversation.General, agent.RoleDirector, "plan")

	logger.AssertLogged(t, zapcore.WarnLevel, "broadcast failed")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.messages.WithLabelValues("broadcast", "error")))
}

func TestNotifier_DeliverPrivate(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	sender := &recordingSender{}
	n := NewNotifier(sender, NotifierOptions{ChatID: "-1001", GeneralTopicID: 1, Metrics: metrics})

	ok := n.DeliverPrivate(context.Background(), "final <doc>", "555")
	assert.True(t, ok)
	require.Len(t, sender.reqs, 1)
	req := sender.reqs[0]
	assert.Equal(t, "555", req.ChatID)
	assert.Zero(t, req.MessageThreadID)
	assert.Equal(t, deliveryHeader+"\n\nfinal &lt;doc&gt;\n\n"+deliveryFooter, req.Text)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.messages.WithLabelValues("private", "ok")))
}

func TestNotifier_DeliverPrivateFailure(t *testing.T) {
	api, client := newBotAPI(t)
	api.handlers["sendMessage"] = func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"ok": false, "error_code": 403, "description": "Forbidden"})
	}
	n := NewNotifier(client, NotifierOptions{ChatID: "-1001"})

	assert.False(t, n.DeliverPrivate(context.Background(), "final", "555"))
	assert.False(t, n.DeliverPrivate(context.Background(), "final", ""))
	assert.Len(t, api.sent, 1, "empty recipient never reaches the API")
}

func TestNotifier_ScrubsSecrets(t *testing.T) {
	sender := &recordingSender{}
	logger := logging.NewTestLogger()
	n := NewNotifier(sender, NotifierOptions{
		ChatID:   "-1001",
		Scrubber: secrets.MustNew(nil),
		Logger:   logger.Underlying(),
	})

	n.Broadcast(context.Background(), conversation.DevLog, agent.RoleEngineer,
		"set TOKEN=123456789:AAbbCCddEEffGGhhIIjjKKllMMnnOOppQQr")
	require.Len(t, sender.reqs, 1)
	assert.NotContains(t, sender.reqs[0].Text, "AAbbCC")
	assert.Contains(t, sender.reqs[0].Text, "[REDACTED]")
	logger.AssertLogged(t, zapcore.WarnLevel, "secrets redacted")
}

func TestNotifier_LongMessagesAreChunked(t *testing.T) {
	sender := &recordingSender{}
	n := NewNotifier(sender, NotifierOptions{ChatID: "-1001"})

	long := strings.Repeat("line of copy\n", 600)
	assert.True(t, n.DeliverPrivate(context.Background(), long, "555"))
	require.Greater(t, len(sender.reqs), 1)

	first, last := sender.reqs[0].Text, sender.reqs[len(sender.reqs)-1].Text
	assert.True(t, strings.HasPrefix(first, deliveryHeader))
	assert.True(t, strings.HasSuffix(last, deliveryFooter))
	var joined strings.Builder
	for _, r := range sender.reqs {
		assert.LessOrEqual(t, len([]rune(r.Text)), 4096)
		joined.WriteString(r.Text)
	}
	assert.Equal(t, strings.Count(long, "line of copy"), strings.Count(joined.String(), "line of copy"))
}

func TestChunkText(t *testing.T) {
	assert.Equal(t, []string{"short"}, chunkText("short", 10))

	chunks := chunkText("aaaa\nbbbb\ncccc", 6)
	assert.Equal(t, []string{"aaaa\n", "bbbb\n", "cccc"}, chunks)

	chunks = chunkText(strings.Repeat("é", 25), 10)
	require.Len(t, chunks, 3)
	assert.Equal(t, 10, len([]rune(chunks[0])))
	assert.Equal(t, 5, len([]rune(chunks[2])))
}
