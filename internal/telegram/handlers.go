package telegram

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"money-request-bot/internal/auth"
	"money-request-bot/internal/speech"
)

func (b *Bot) handleIncomingMessage(ctx context.Context, msg *tgbotapi.Message) {
	if !b.authSvc.IsAllowed(msg.From.ID) {
		log.Printf("Unauthorized access attempt by user ID: %d, username: @%s", msg.From.ID, msg.From.UserName)
		b.sendMessage(msg.Chat.ID, "You are not authorized to file money requests. Please contact the administrator.")
		b.notifyAdminRequest(msg.From.ID, msg.From.UserName)
		return
	}

	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}
	if msg.Voice != nil {
		b.handleVoiceTurn(ctx, msg)
		return
	}
	if msg.Audio != nil {
		b.handleAudioTurn(ctx, msg)
		return
	}
	b.handleTextTurn(ctx, msg)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start":
		b.sendMessage(msg.Chat.ID,
			"Welcome to the money request assistant.\n\n"+
				"Describe your request (project number, project name, amount in riyals, reason) "+
				"as text or a voice note — in English, Arabic or both. I will ask for anything "+
				"that is still missing.\n\n"+
				"Commands: /status, /set, /language, /requests, /reset")
	case "language":
		b.sendLanguageKeyboard(msg.Chat.ID)
	case "status":
		b.handleStatus(msg.Chat.ID, msg.From.ID)
	case "set":
		b.handleSet(msg.Chat.ID, msg.From.ID, msg.CommandArguments())
	case "requests":
		b.handleListRequests(ctx, msg.Chat.ID)
	case "reset":
		b.resetSession(msg.Chat.ID, msg.From.ID)
	case "allowlist", "allow", "remove", "report":
		b.handleAdminCommand(ctx, msg)
	default:
		b.sendMessage(msg.Chat.ID, "Unknown command. Try /start.")
	}
}

func (b *Bot) handleAdminCommand(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From.ID != b.adminUserID {
		b.sendMessage(msg.Chat.ID, "This command is available to the administrator only.")
		return
	}
	switch msg.Command() {
	case "allowlist":
		var bld strings.Builder
		bld.WriteString("Allowlist:\n")
		for _, u := range b.authSvc.List() {
			bld.WriteString(fmt.Sprintf("- id=%d, @%s %s %s\n", u.ID, u.Username, u.FirstName, u.LastName))
		}
		b.sendMessage(msg.Chat.ID, bld.String())
	case "allow":
		uid, ok := parseUserID(msg.CommandArguments())
		if !ok {
			b.sendMessage(msg.Chat.ID, "Usage: /allow <user_id>")
			return
		}
		if err := b.authSvc.Upsert(auth.User{ID: uid}); err != nil {
			b.sendMessage(msg.Chat.ID, fmt.Sprintf("Failed to allow user: %v", err))
			return
		}
		b.sendMessage(msg.Chat.ID, fmt.Sprintf("User %d added to allowlist", uid))
	case "remove":
		uid, ok := parseUserID(msg.CommandArguments())
		if !ok {
			b.sendMessage(msg.Chat.ID, "Usage: /remove <user_id>")
			return
		}
		if err := b.authSvc.Remove(uid); err != nil {
			b.sendMessage(msg.Chat.ID, fmt.Sprintf("Failed to remove user: %v", err))
			return
		}
		b.sendMessage(msg.Chat.ID, fmt.Sprintf("User %d removed from allowlist", uid))
	case "report":
		if err := b.SendDailyReport(ctx); err != nil {
			b.sendMessage(msg.Chat.ID, fmt.Sprintf("Report failed: %v", err))
		}
	}
}

func parseUserID(args string) (int64, bool) {
	fields := strings.Fields(args)
	if len(fields) != 1 {
		return 0, false
	}
	uid, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return 0, false
	}
	return uid, true
}

func (b *Bot) sendLanguageKeyboard(chatID int64) {
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("English", cbLangPrefix+string(speech.LanguageEnglish)),
			tgbotapi.NewInlineKeyboardButtonData("Arabic", cbLangPrefix+string(speech.LanguageArabic)),
			tgbotapi.NewInlineKeyboardButtonData("Mixed", cbLangPrefix+string(speech.LanguageMixed)),
		),
	)
	b.sendWithKeyboard(chatID, "Select the language of your voice notes:", kb)
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil || cb.From == nil {
		return
	}
	chatID := cb.Message.Chat.ID
	userID := cb.From.ID

	if !b.authSvc.IsAllowed(userID) {
		return
	}

	switch {
	case cb.Data == cbReset:
		b.resetSession(chatID, userID)
	case cb.Data == cbConfirm:
		b.handleConfirm(ctx, chatID, userID)
	case cb.Data == cbSubmit:
		b.handleSubmit(ctx, chatID, userID)
	case strings.HasPrefix(cb.Data, cbLangPrefix):
		lang := speech.Language(strings.TrimPrefix(cb.Data, cbLangPrefix))
		b.form(userID).language = lang
		b.sendMessage(chatID, fmt.Sprintf("Voice language set to %s.", lang))
	}
}

func (b *Bot) handleTextTurn(ctx context.Context, msg *tgbotapi.Message) {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		b.sendMessage(msg.Chat.ID, "Please enter some text first.")
		return
	}
	b.processTurn(ctx, msg.Chat.ID, msg.From.ID, text, turnText, text)
}

func (b *Bot) handleVoiceTurn(ctx context.Context, msg *tgbotapi.Message) {
	mime := msg.Voice.MimeType
	if mime == "" {
		mime = "audio/ogg"
	}
	b.transcribeAndProcess(ctx, msg, msg.Voice.FileID, mime)
}

// Audio attachments (mp3 and friends) go through the same path; the
// recognizer transcodes containers the backend does not accept.
func (b *Bot) handleAudioTurn(ctx context.Context, msg *tgbotapi.Message) {
	b.transcribeAndProcess(ctx, msg, msg.Audio.FileID, msg.Audio.MimeType)
}

func (b *Bot) transcribeAndProcess(ctx context.Context, msg *tgbotapi.Message, fileID, mimeType string) {
	if b.recognizer == nil {
		b.sendMessage(msg.Chat.ID, "Voice input is not available, please type your request.")
		return
	}

	file, err := b.s.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		log.Printf("failed to get voice file: %v", err)
		b.sendMessage(msg.Chat.ID, "Error: could not fetch the voice note, please try again.")
		return
	}
	audio, err := b.download(file.Link(b.token))
	if err != nil {
		log.Printf("failed to download voice file: %v", err)
		b.sendMessage(msg.Chat.ID, "Error: could not fetch the voice note, please try again.")
		return
	}

	lang := b.form(msg.From.ID).language
	text, err := b.recognizer.Transcribe(ctx, audio, mimeType, lang)
	if err != nil {
		b.sendMessage(msg.Chat.ID, recognitionErrorMessage(err))
		return
	}

	b.processTurn(ctx, msg.Chat.ID, msg.From.ID, text, turnVoice, "voice note")
}
