// Package telegram implements userinteraction.Transport over Telegram,
// for sessions running unattended where the TSG's human approver is
// reachable only through a chat side-channel rather than the CLI's stdin
// (a forked worker process has no attached terminal).
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Transport sends messages to, and awaits replies from, one fixed chat.
type Transport struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// New constructs a Transport from a bot token and the chat id to address.
func New(token string, chatID int64) (*Transport, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &Transport{bot: bot, chatID: chatID}, nil
}

func (t *Transport) Info(_ context.Context, message string) error {
	_, err := t.bot.Send(tgbotapi.NewMessage(t.chatID, "Info: "+message))
	return err
}

func (t *Transport) Ask(ctx context.Context, message string) (string, error) {
	if _, err := t.bot.Send(tgbotapi.NewMessage(t.chatID, "Question: "+message)); err != nil {
		return "", err
	}
	reply, err := t.awaitReply(ctx)
	if err != nil {
		return "", err
	}
	return reply, nil
}

func (t *Transport) Choose(ctx context.Context, message string, options []string) (int, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Options: %s\n", message)
	for i, opt := range options {
		fmt.Fprintf(&b, "%d. %s\n", i+1, opt)
	}
	b.WriteString("Reply with the option number.")
	if _, err := t.bot.Send(tgbotapi.NewMessage(t.chatID, b.String())); err != nil {
		return 0, err
	}

	reply, err := t.awaitReply(ctx)
	if err != nil {
		return 0, err
	}
	choice, err := strconv.Atoi(strings.TrimSpace(reply))
	if err != nil {
		return 0, fmt.Errorf("invalid telegram reply: not a number")
	}
	idx := choice - 1
	if idx < 0 || idx >= len(options) {
		return 0, fmt.Errorf("invalid choice: must be between 1 and %d", len(options))
	}
	return idx, nil
}

// awaitReply polls Telegram's updates channel until a message from the
// configured chat arrives or the context is done.
func (t *Transport) awaitReply(ctx context.Context) (string, error) {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 30

	updates := t.bot.GetUpdatesChan(cfg)
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case update := <-updates:
			if update.Message == nil || update.Message.Chat == nil {
				continue
			}
			if update.Message.Chat.ID != t.chatID {
				continue
			}
			return update.Message.Text, nil
		}
	}
}
