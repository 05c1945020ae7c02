package telegram

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/hlabs/openclaw/internal/workflow"
	"go.uber.org/zap"
)

// SourceName tags commands read from Telegram.
const SourceName = "telegram"

// Updater is the part of Client the poller needs.
type Updater interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error)
}

// Poller reads task commands from one topic of the group chat.
type Poller struct {
	client  Updater
	chatID  string
	topicID int
	timeout time.Duration
	logger  *zap.Logger

	mu     sync.Mutex
	offset int64
}

// NewPoller creates a poller for chatID. A topicID of 1 also accepts
// messages posted to the main thread without a thread id; a topicID of zero
// or less accepts every topic.
func NewPoller(client Updater, chatID string, topicID int, timeout time.Duration, logger *zap.Logger) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		client:  client,
		chatID:  NormalizeChatID(chatID),
		topicID: topicID,
		timeout: timeout,
		logger:  logger,
	}
}

// Poll fetches pending updates and returns the first actionable command.
// The offset advances past the whole batch, so further commands in the same
// batch are dropped. Returns nil when nothing actionable arrived.
func (p *Poller) Poll(ctx context.Context) (*workflow.Command, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	updates, err := p.client.GetUpdates(ctx, p.offset, p.timeout)
	if err != nil {
		return nil, err
	}

	var cmd *workflow.Command
	for _, u := range updates {
		if u.UpdateID >= p.offset {
			p.offset = u.UpdateID + 1
		}
		msg := u.Message
		if msg == nil {
			continue
		}

		chatID := strconv.FormatInt(msg.Chat.ID, 10)
		fromBot := msg.From != nil && msg.From.IsBot
		p.logger.Debug("update received",
			zap.Int64("update_id", u.UpdateID),
			zap.String("chat_id", chatID),
			zap.Int("topic", msg.MessageThreadID),
			zap.Bool("from_bot", fromBot),
		)

		switch {
		case fromBot:
			continue
		case chatID != p.chatID:
			p.logger.Debug("ignored: wrong chat", zap.String("got", chatID), zap.String("want", p.chatID))
			continue
		case !p.matchesTopic(msg.MessageThreadID):
			p.logger.Debug("ignored: wrong topic", zap.Int("got", msg.MessageThreadID), zap.Int("want", p.topicID))
			continue
		case msg.Text == "":
			continue
		}

		if cmd == nil {
			cmd = &workflow.Command{Text: msg.Text, Source: SourceName}
			if msg.From != nil {
				cmd.SubmitterID = RecipientString(msg.From.ID)
			}
		} else {
			p.logger.Debug("ignored: command already taken from batch", zap.Int64("update_id", u.UpdateID))
		}
	}
	return cmd, nil
}

func (p *Poller) matchesTopic(thread int) bool {
	if p.topicID <= 0 {
		return true
	}
	return thread == p.topicID || (thread == 0 && p.topicID == 1)
}

var (
	_ workflow.CommandSource = (*Poller)(nil)
	_ workflow.Notifier      = (*Notifier)(nil)
)
