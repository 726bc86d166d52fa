package telegram

import (
	"context"
	"fmt"
	"sort"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const helpText = `I answer questions using my knowledge base, web search and a language model, whichever the question needs.

Commands:
/start - introduce the bot
/help - this message
/clear - forget this conversation
/voice on|off - short, speakable replies
/status - pipeline health

Anything else you send is treated as a question.`

// handleCommand routes slash commands. Unknown commands get a hint
// instead of being fed to the pipeline.
func (a *Adapter) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	reply := a.commandReply(ctx, msg.Command(), msg.CommandArguments(), msg.Chat.ID)
	if reply != "" {
		a.send(msg.Chat.ID, 0, reply)
	}
}

func (a *Adapter) commandReply(ctx context.Context, name, args string, chatID int64) string {
	switch name {
	case "start":
		return "Hi! Send me a question and I'll answer from my knowledge base, the web, or both. /help lists the commands."
	case "help":
		return helpText
	case "clear":
		if err := a.memory.Clear(ctx, chatSessionID(chatID)); err != nil {
			a.logger.Warn("Failed to clear session",
				zap.String("session_id", chatSessionID(chatID)),
				zap.Error(err),
			)
			return "Couldn't clear the conversation, try again in a moment."
		}
		return "Conversation cleared. Fresh start."
	case "voice":
		return a.voiceReply(chatID, args)
	case "status":
		return a.statusReply()
	default:
		return "Unknown command. /help lists what I understand."
	}
}

func (a *Adapter) voiceReply(chatID int64, args string) string {
	switch strings.ToLower(strings.TrimSpace(args)) {
	case "on":
		if err := a.prefs.SetVoice(chatID, true); err != nil {
			a.logger.Warn("Failed to save voice preference",
				zap.Int64("chat_id", chatID),
				zap.Error(err),
			)
			return "Couldn't save that, try again."
		}
		return "Voice style on. Replies will be short and speakable."
	case "off":
		if err := a.prefs.SetVoice(chatID, false); err != nil {
			a.logger.Warn("Failed to save voice preference",
				zap.Int64("chat_id", chatID),
				zap.Error(err),
			)
			return "Couldn't save that, try again."
		}
		return "Voice style off."
	case "":
		if a.prefs.VoiceEnabled(chatID) {
			return "Voice style is on. /voice off to disable."
		}
		return "Voice style is off. /voice on to enable."
	default:
		return "Usage: /voice on|off"
	}
}

// statusReply summarizes circuit breaker state. Only services the
// pipeline has actually touched appear in the registry.
func (a *Adapter) statusReply() string {
	states := a.breakers.States()
	if len(states) == 0 {
		return "All services healthy."
	}

	names := make([]string, 0, len(states))
	for name := range states {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("Service status:\n")
	for _, name := range names {
		st := states[name]
		if st.Open {
			fmt.Fprintf(&b, "%s: down (%d recent failures)\n", name, st.Failures)
		} else {
			fmt.Fprintf(&b, "%s: ok\n", name)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
