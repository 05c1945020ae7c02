package telegram

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/hlabs/openclaw/internal/agent"
	"github.com/hlabs/openclaw/internal/config"
	"github.com/hlabs/openclaw/internal/conversation"
	"github.com/hlabs/openclaw/internal/secrets"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// maxChunkRunes keeps each escaped message under the 4096 character
	// sendMessage limit with room for the header and entity expansion.
	maxChunkRunes = 3000

	deliveryHeader = "📨 <b>[OpenClaw Delivery]</b>"
	deliveryFooter = "<i>(This is your private delivery.)</i>"
)

// Sender is the part of Client the notifier needs.
type Sender interface {
	SendMessage(ctx context.Context, req SendRequest) (*Message, error)
}

// NotifierOptions configures a Notifier.
type NotifierOptions struct {
	ChatID         string
	GeneralTopicID int
	// Topics maps conversation channels to forum topics. Unmapped channels
	// go to GeneralTopicID.
	Topics   map[conversation.Channel]int
	SendRate float64
	Profiles *agent.ProfileSet
	Scrubber secrets.Scrubber
	Logger   *zap.Logger
	Metrics  *Metrics
}

// OptionsFromConfig builds NotifierOptions from the telegram config section.
// Topic keys that are not conversation channels are dropped with an error.
func OptionsFromConfig(cfg config.TelegramConfig) (NotifierOptions, error) {
	opts := NotifierOptions{
		ChatID:         cfg.ChatID,
		GeneralTopicID: cfg.GeneralTopicID,
		SendRate:       cfg.SendRate,
		Topics:         make(map[conversation.Channel]int, len(cfg.Topics)),
	}
	for k, v := range cfg.Topics {
		ch, err := conversation.ParseChannel(k)
		if err != nil {
			return opts, fmt.Errorf("telegram.topics: %w", err)
		}
		opts.Topics[ch] = v
	}
	return opts, nil
}

// Notifier mirrors workflow messages to the group chat and delivers final
// artifacts privately. Its methods never return errors; failures are logged
// and counted.
type Notifier struct {
	sender   Sender
	chatID   string
	general  int
	topics   map[conversation.Channel]int
	limiter  *rate.Limiter
	profiles *agent.ProfileSet
	scrubber secrets.Scrubber
	logger   *zap.Logger
	metrics  *Metrics
}

// NewNotifier creates a notifier sending through sender.
func NewNotifier(sender Sender, opts NotifierOptions) *Notifier {
	n := &Notifier{
		sender:   sender,
		chatID:   NormalizeChatID(opts.ChatID),
		general:  opts.GeneralTopicID,
		topics:   opts.Topics,
		profiles: opts.Profiles,
		scrubber: opts.Scrubber,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
	}
	if opts.SendRate > 0 {
		n.limiter = rate.NewLimiter(rate.Limit(opts.SendRate), 1)
	} else {
		n.limiter = rate.NewLimiter(rate.Inf, 1)
	}
	if n.profiles == nil {
		n.profiles = agent.DefaultProfiles()
	}
	if n.scrubber == nil {
		n.scrubber = secrets.Noop{}
	}
	if n.logger == nil {
		n.logger = zap.NewNop()
	}
	return n
}

// TopicFor returns the forum topic a conversation channel is mirrored to.
func (n *Notifier) TopicFor(ch conversation.Channel) int {
	if t, ok := n.topics[ch]; ok && t > 0 {
		return t
	}
	return n.general
}

// Broadcast posts text to the group under role's header.
func (n *Notifier) Broadcast(ctx context.Context, ch conversation.Channel, role agent.Role, text string) {
	header := roleHeader(n.profiles.Get(role))
	thread := n.TopicFor(ch)
	if thread < 0 {
		thread = 0
	}

	for i, chunk := range chunkText(n.scrub(text), maxChunkRunes) {
		body := html.EscapeString(chunk)
		if i == 0 {
			body = header + "\n\n" + body
		}
		err := n.send(ctx, SendRequest{
			ChatID:          n.chatID,
			MessageThreadID: thread,
			Text:            body,
			ParseMode:       "HTML",
		})
		n.metrics.observe("broadcast", err)
		if err != nil {
			n.logger.Warn("broadcast failed",
				zap.String("channel", string(ch)),
				zap.String("role", string(role)),
				zap.Int("topic", thread),
				zap.Error(err),
			)
			return
		}
	}
}

// DeliverPrivate sends text to recipient's private chat and reports success.
func (n *Notifier) DeliverPrivate(ctx context.Context, text, recipient string) bool {
	if strings.TrimSpace(recipient) == "" {
		return false
	}
	chunks := chunkText(n.scrub(text), maxChunkRunes)
	for i, chunk := range chunks {
		body := html.EscapeString(chunk)
		if i == 0 {
			body = deliveryHeader + "\n\n" + body
		}
		if i == len(chunks)-1 {
			body += "\n\n" + deliveryFooter
		}
		err := n.send(ctx, SendRequest{ChatID: recipient, Text: body, ParseMode: "HTML"})
		n.metrics.observe("private", err)
		if err != nil {
			n.logger.Warn("private delivery failed",
				zap.String("recipient", recipient),
				zap.Int("chunk", i+1),
				zap.Int("chunks", len(chunks)),
				zap.Error(err),
			)
			return false
		}
	}
	n.logger.Info("private delivery sent", zap.String("recipient", recipient), zap.Int("chunks", len(chunks)))
	return true
}

func (n *Notifier) send(ctx context.Context, req SendRequest) error {
	if err := n.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter error: %w", err)
	}
	_, err := n.sender.SendMessage(ctx, req)
	return err
}

func (n *Notifier) scrub(text string) string {
	res := n.scrubber.Scrub(text)
	if res.HasFindings() {
		n.logger.Warn("secrets redacted from outbound message", zap.Int("findings", res.Total))
	}
	return res.Scrubbed
}

func roleHeader(p agent.Profile) string {
	return p.Emoji + " <b>[" + html.EscapeString(p.Label) + "]</b>"
}

// chunkText splits s into pieces of at most max runes, preferring to break
// after a newline.
func chunkText(s string, max int) []string {
	if utf8.RuneCountInString(s) <= max {
		return []string{s}
	}
	var out []string
	runes := []rune(s)
	for len(runes) > max {
		cut := max
		for i := max; i > max/2; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		out = append(out, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		out = append(out, string(runes))
	}
	return out
}

// RecipientString formats a numeric Telegram user id.
func RecipientString(id int64) string {
	if id == 0 {
		return ""
	}
	return strconv.FormatInt(id, 10)
}
