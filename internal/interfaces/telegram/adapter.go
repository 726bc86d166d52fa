package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/domain/entity"
	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/domain/service"
	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/pkg/safego"
)

// Config carries the Telegram frontend settings.
type Config struct {
	BotToken string
	AllowIDs []int64 // empty list leaves the bot open to everyone
	PrefsDSN string
}

// Pipeline is the query entry point the adapter drives.
type Pipeline interface {
	Handle(ctx context.Context, query *entity.Query, source string) *entity.Response
}

// Adapter bridges Telegram long polling to the response pipeline. Each
// chat maps to one pipeline session, so conversation memory follows the
// chat rather than the individual sender.
type Adapter struct {
	bot      *tgbotapi.BotAPI
	cfg      Config
	pipeline Pipeline
	memory   *service.SessionMemory
	breakers *service.BreakerRegistry
	prefs    *prefStore
	logger   *zap.Logger
	cancel   context.CancelFunc
}

// NewAdapter authorizes the bot token and opens the preference store.
func NewAdapter(cfg Config, pipeline Pipeline, memory *service.SessionMemory, breakers *service.BreakerRegistry, logger *zap.Logger) (*Adapter, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	prefs, err := newPrefStore(cfg.PrefsDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open telegram prefs store: %w", err)
	}

	logger.Info("Telegram bot authorized",
		zap.String("username", bot.Self.UserName),
	)

	return &Adapter{
		bot:      bot,
		cfg:      cfg,
		pipeline: pipeline,
		memory:   memory,
		breakers: breakers,
		prefs:    prefs,
		logger:   logger,
	}, nil
}

// Start begins long polling. Updates are handled concurrently; the loop
// exits when ctx is cancelled or Stop is called.
func (a *Adapter) Start(ctx context.Context) error {
	inner, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if err := a.setupCommands(); err != nil {
		a.logger.Warn("Failed to register bot command menu", zap.Error(err))
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := a.bot.GetUpdatesChan(u)

	a.logger.Info("Starting Telegram polling")

	safego.Go(a.logger, "telegram-poll", func() {
		for {
			select {
			case <-inner.Done():
				a.bot.StopReceivingUpdates()
				a.logger.Info("Telegram adapter stopped")
				return
			case update := <-updates:
				upd := update
				safego.Go(a.logger, "telegram-update", func() {
					a.handleUpdate(inner, upd)
				})
			}
		}
	})

	return nil
}

// Stop ends polling and closes the preference store.
func (a *Adapter) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
	if err := a.prefs.Close(); err != nil {
		a.logger.Warn("Failed to close telegram prefs store", zap.Error(err))
	}
}

func (a *Adapter) setupCommands() error {
	commands := []tgbotapi.BotCommand{
		{Command: "start", Description: "Introduce the bot"},
		{Command: "help", Description: "Usage and commands"},
		{Command: "clear", Description: "Forget this conversation"},
		{Command: "voice", Description: "Toggle voice-style replies"},
		{Command: "status", Description: "Pipeline health"},
	}

	if _, err := a.bot.Request(tgbotapi.NewSetMyCommands(commands...)); err != nil {
		return fmt.Errorf("failed to set bot commands: %w", err)
	}
	return nil
}

func (a *Adapter) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}

	if !a.allowed(msg.From.ID) {
		a.logger.Warn("Unauthorized telegram user",
			zap.Int64("user_id", msg.From.ID),
			zap.String("username", msg.From.UserName),
		)
		return
	}

	if msg.IsCommand() {
		a.handleCommand(ctx, msg)
		return
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		text = strings.TrimSpace(msg.Caption)
	}
	voiceNote := msg.Voice != nil || msg.VideoNote != nil

	if text == "" {
		// Transcription happens upstream of the bot. A bare voice note
		// carries nothing the pipeline can answer.
		if voiceNote {
			a.send(msg.Chat.ID, msg.MessageID, "I can't listen to voice notes from here. Type your question and I'll answer it.")
		}
		return
	}

	voice := voiceNote || a.prefs.VoiceEnabled(msg.Chat.ID)

	query, err := entity.NewQuery(strconv.FormatInt(msg.From.ID, 10), chatSessionID(msg.Chat.ID), text, voice)
	if err != nil {
		a.logger.Warn("Rejected telegram message",
			zap.Int64("chat_id", msg.Chat.ID),
			zap.Error(err),
		)
		return
	}

	a.sendTyping(msg.Chat.ID)

	resp := a.pipeline.Handle(ctx, query, "telegram")
	if resp == nil {
		// Rate limited. Dropped without feedback so a chatty user cannot
		// turn the throttle itself into a reply stream.
		return
	}

	a.deliver(msg.Chat.ID, msg.MessageID, resp.Content)
}

// deliver renders markdown to Telegram HTML and sends it, splitting
// oversized responses across messages. Reply threading applies to the
// first chunk only.
func (a *Adapter) deliver(chatID int64, replyTo int, content string) {
	for i, chunk := range ChunkMessage(content) {
		msg := tgbotapi.NewMessage(chatID, MarkdownToHTML(chunk))
		msg.ParseMode = tgbotapi.ModeHTML
		if i == 0 && replyTo > 0 {
			msg.ReplyToMessageID = replyTo
		}

		_, err := a.bot.Send(msg)
		if err != nil && strings.Contains(err.Error(), "can't parse entities") {
			a.logger.Warn("HTML parse failed, retrying as plain text",
				zap.Int64("chat_id", chatID),
				zap.Error(err),
			)
			plain := tgbotapi.NewMessage(chatID, chunk)
			if i == 0 && replyTo > 0 {
				plain.ReplyToMessageID = replyTo
			}
			_, err = a.bot.Send(plain)
		}
		if err != nil {
			a.logger.Error("Failed to send telegram message",
				zap.Int64("chat_id", chatID),
				zap.Error(err),
			)
			return
		}
	}
}

func (a *Adapter) send(chatID int64, replyTo int, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if replyTo > 0 {
		msg.ReplyToMessageID = replyTo
	}
	if _, err := a.bot.Send(msg); err != nil {
		a.logger.Error("Failed to send telegram message",
			zap.Int64("chat_id", chatID),
			zap.Error(err),
		)
	}
}

func (a *Adapter) sendTyping(chatID int64) {
	a.bot.Send(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping))
}

// allowed reports whether the sender may talk to the bot.
func (a *Adapter) allowed(userID int64) bool {
	if len(a.cfg.AllowIDs) == 0 {
		return true
	}
	for _, id := range a.cfg.AllowIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func chatSessionID(chatID int64) string {
	return "tg-" + strconv.FormatInt(chatID, 10)
}
