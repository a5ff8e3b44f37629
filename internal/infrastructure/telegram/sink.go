package telegram

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"jobwatcher/internal/domain"
	"jobwatcher/internal/ports"
)

// Sink delivers payloads to one Telegram chat through the bot API and
// doubles as the live feed for watch mode: channel posts arriving via
// long polling are handed to the pipeline as messages.
type Sink struct {
	bot  *tele.Bot
	chat tele.Recipient
	log  *slog.Logger
}

var _ ports.Sink = (*Sink)(nil)

// New builds a bot-backed sink targeting chatID.
func New(token string, chatID int64, log *slog.Logger) (*Sink, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if chatID == 0 {
		return nil, errors.New("telegram chat id is required")
	}
	if log == nil {
		log = slog.Default()
	}

	bot, err := tele.NewBot(tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, err
	}
	return &Sink{bot: bot, chat: tele.ChatID(chatID), log: log}, nil
}

// Send pushes one text payload to the target chat.
func (s *Sink) Send(_ context.Context, text string) error {
	_, err := s.bot.Send(s.chat, text, tele.NoPreview)
	return err
}

// Listen runs the bot poller until ctx is cancelled, forwarding every
// channel post the bot can see into out. Posts without text are
// skipped. Blocks the caller.
func (s *Sink) Listen(ctx context.Context, out chan<- domain.Message) {
	s.bot.Handle(tele.OnChannelPost, func(c tele.Context) error {
		m := c.Message()
		if m == nil {
			return nil
		}
		text := m.Text
		if text == "" {
			text = m.Caption
		}
		if text == "" {
			return nil
		}

		source := "@" + m.Chat.Username
		if m.Chat.Username == "" {
			source = m.Chat.Title
		}

		msg := domain.Message{
			Source:   source,
			ID:       int64(m.ID),
			Text:     text,
			PostedAt: m.Time(),
		}
		select {
		case out <- msg:
		default:
			s.log.Warn("channel post dropped, consumer too slow", "source", source, "id", m.ID)
		}
		return nil
	})

	go func() {
		<-ctx.Done()
		s.bot.Stop()
	}()

	s.log.Info("listening for channel posts")
	s.bot.Start()
}
