package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/lysyi3m/rss-bulletin/app/feed"
)

var ErrEmptyText = errors.New("message text is empty")

type Settings struct {
	Token   string
	ChatID  string // numeric id or @channel username
	URL     string // Bot API endpoint, empty for the public one
	Timeout time.Duration
}

// Sender delivers bulletins to one chat through the Bot API.
type Sender struct {
	bot  *tele.Bot
	chat tele.Recipient
}

func NewSender(settings Settings) (*Sender, error) {
	if strings.TrimSpace(settings.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}

	chat, err := ParseRecipient(settings.ChatID)
	if err != nil {
		return nil, err
	}

	timeout := settings.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	bot, err := tele.NewBot(tele.Settings{
		URL:     settings.URL,
		Token:   settings.Token,
		Client:  &http.Client{Timeout: timeout},
		Offline: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	return &Sender{bot: bot, chat: chat}, nil
}

// Send posts text as one message with link previews disabled. FormatHTML
// selects the HTML parse mode, anything else is sent as plain text.
func (s *Sender) Send(ctx context.Context, text string, format feed.Format) error {
	if text == "" {
		return ErrEmptyText
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	opts := &tele.SendOptions{DisableWebPagePreview: true}
	if format == feed.FormatHTML {
		opts.ParseMode = tele.ModeHTML
	}

	if _, err := s.bot.Send(s.chat, text, opts); err != nil {
		return fmt.Errorf("failed to send %s message: %w", format, err)
	}
	return nil
}

type username string

func (u username) Recipient() string {
	return string(u)
}

// ParseRecipient accepts a numeric chat id or an @username.
func ParseRecipient(chatID string) (tele.Recipient, error) {
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return nil, errors.New("telegram chat id is empty")
	}

	if strings.HasPrefix(chatID, "@") {
		if len(chatID) == 1 {
			return nil, fmt.Errorf("invalid chat username %q", chatID)
		}
		return username(chatID), nil
	}

	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat id %q: %w", chatID, err)
	}
	return tele.ChatID(id), nil
}
