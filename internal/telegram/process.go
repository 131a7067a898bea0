package telegram

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"money-request-bot/internal/audit"
	"money-request-bot/internal/extract"
	"money-request-bot/internal/memory"
	"money-request-bot/internal/speech"
	"money-request-bot/internal/store"
)

const (
	turnText  = "text"
	turnVoice = "voice"
)

// processTurn runs one slot-filling turn: extract with the session context,
// merge into memory, report the current fields and what is still missing.
func (b *Bot) processTurn(ctx context.Context, chatID, userID int64, text, kind, rawInput string) {
	session := b.sessions.Session(userID)

	candidate, err := b.extractor.Extract(ctx, text, session.Context())
	if err != nil {
		log.Printf("extraction failed for user %d: %v", userID, err)
		b.sendMessage(chatID, "Could not extract request details. Please try again.")
		return
	}

	session.AddInteraction(text, candidate)

	// New information reopens the form.
	f := b.form(userID)
	f.phase = phaseEditing
	f.originalText = candidate.OriginalText

	var reply strings.Builder
	if kind == turnVoice {
		fmt.Fprintf(&reply, "Voice processed! You said: %s\n\n", text)
	} else {
		reply.WriteString("Text processed! ")
	}
	reply.WriteString(session.MissingInfoPrompt())
	reply.WriteString("\n")
	partial, _ := session.PartialInfo()
	reply.WriteString(renderFields(partial))

	b.record(audit.Event{Timestamp: time.Now().UTC(), UserID: userID, Kind: kind, Input: rawInput, Transcript: text, Response: reply.String()})
	b.sendWithKeyboard(chatID, reply.String(), formKeyboard())
}

func formKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Confirm Details", cbConfirm),
			tgbotapi.NewInlineKeyboardButtonData("Start Over", cbReset),
		),
	)
}

func renderFields(p memory.Partial) string {
	return fmt.Sprintf(
		"Project number: %s\nProject name: %s\nAmount: %s\nReason: %s",
		orDash(p.ProjectNumber),
		orDash(p.ProjectName),
		orDash(amountString(p.Amount)),
		orDash(p.Reason),
	)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func amountString(v float64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64) + " riyals"
}

// missingFieldNames lists the human-readable names of empty fields, in form
// order, for the submission-gate message.
func missingFieldNames(p memory.Partial) []string {
	var missing []string
	if p.ProjectNumber == "" {
		missing = append(missing, "project number")
	}
	if p.ProjectName == "" {
		missing = append(missing, "project name")
	}
	if p.Amount <= 0 {
		missing = append(missing, "amount")
	}
	if p.Reason == "" {
		missing = append(missing, "reason")
	}
	return missing
}

// handleConfirm validates the form, locks it and plays back a synthesized
// summary. Submit stays unreachable until this step succeeds.
func (b *Bot) handleConfirm(ctx context.Context, chatID, userID int64) {
	session := b.sessions.Session(userID)
	partial, _ := session.PartialInfo()

	if missing := missingFieldNames(partial); len(missing) > 0 {
		b.sendMessage(chatID, "Please provide: "+strings.Join(missing, ", "))
		return
	}

	confirmation := fmt.Sprintf(
		"Sir please ensure before submit project number: %s, project name: %s, amount: %s riyals, reason for request: %s are ok",
		partial.ProjectNumber, partial.ProjectName,
		strconv.FormatFloat(partial.Amount, 'f', -1, 64), partial.Reason)

	if b.synthesizer != nil {
		path, err := b.synthesizer.Synthesize(ctx, confirmation)
		if err != nil {
			log.Printf("confirmation synthesis failed: %v", err)
			b.sendMessage(chatID, fmt.Sprintf("Error generating audio: %v", err))
			return
		}
		defer os.Remove(path)
		if err := b.sendVoice(chatID, path); err != nil {
			log.Printf("failed to send confirmation voice: %v", err)
			b.sendMessage(chatID, confirmation)
		}
	} else {
		b.sendMessage(chatID, confirmation)
	}

	b.form(userID).phase = phaseConfirmed
	b.record(audit.Event{Timestamp: time.Now().UTC(), UserID: userID, Kind: "confirm", Input: confirmation})

	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Submit Request", cbSubmit),
			tgbotapi.NewInlineKeyboardButtonData("Keep Editing", cbReset),
		),
	)
	b.sendWithKeyboard(chatID, "Please confirm the details you heard.", kb)
}

// handleSubmit persists the confirmed request and resets the conversation.
// It refuses to run unless the form is in the confirmed phase.
func (b *Bot) handleSubmit(ctx context.Context, chatID, userID int64) {
	f := b.form(userID)
	if f.phase != phaseConfirmed {
		b.sendMessage(chatID, "Please confirm the details first.")
		return
	}

	session := b.sessions.Session(userID)
	partial, _ := session.PartialInfo()
	if missing := missingFieldNames(partial); len(missing) > 0 {
		f.phase = phaseEditing
		b.sendMessage(chatID, "Please provide: "+strings.Join(missing, ", "))
		return
	}

	rec := store.RequestRecord{
		ProjectNumber: partial.ProjectNumber,
		ProjectName:   partial.ProjectName,
		Amount:        partial.Amount,
		Reason:        partial.Reason,
		OriginalText:  f.originalText,
	}
	if err := b.store.Add(ctx, rec); err != nil {
		log.Printf("failed to persist request for user %d: %v", userID, err)
		b.sendMessage(chatID, fmt.Sprintf("Error saving request: %v", err))
		return
	}

	session.ClearMemory()
	f.phase = phaseEditing
	f.originalText = ""

	b.record(audit.Event{Timestamp: time.Now().UTC(), UserID: userID, Kind: "submit",
		Input: fmt.Sprintf("project_number=%s project_name=%s amount=%s reason=%s",
			rec.ProjectNumber, rec.ProjectName, strconv.FormatFloat(rec.Amount, 'f', -1, 64), rec.Reason)})
	b.sendMessage(chatID, "Request successfully added!")
}

func (b *Bot) handleStatus(chatID, userID int64) {
	session := b.sessions.Session(userID)
	partial, _ := session.PartialInfo()
	b.sendWithKeyboard(chatID, session.MissingInfoPrompt()+"\n"+renderFields(partial), formKeyboard())
}

// handleSet applies a manual field edit at full confidence, overriding any
// earlier extraction for that field.
func (b *Bot) handleSet(chatID, userID int64, args string) {
	parts := strings.SplitN(strings.TrimSpace(args), " ", 2)
	if len(parts) != 2 || strings.TrimSpace(parts[1]) == "" {
		b.sendMessage(chatID, "Usage: /set <project_number|project_name|amount|reason> <value>")
		return
	}
	field, value := parts[0], strings.TrimSpace(parts[1])

	candidate := &extract.Candidate{Confidence: map[string]float64{field: 1.0}}
	switch field {
	case extract.FieldProjectNumber:
		candidate.ProjectNumber = value
	case extract.FieldProjectName:
		candidate.ProjectName = value
	case extract.FieldAmount:
		v, err := strconv.ParseFloat(strings.ReplaceAll(value, ",", ""), 64)
		if err != nil || v <= 0 {
			b.sendMessage(chatID, "Amount must be a positive number.")
			return
		}
		candidate.Amount = v
	case extract.FieldReason:
		candidate.Reason = value
	default:
		b.sendMessage(chatID, "Unknown field. Use project_number, project_name, amount or reason.")
		return
	}

	session := b.sessions.Session(userID)
	session.AddInteraction("", candidate)
	b.form(userID).phase = phaseEditing

	partial, _ := session.PartialInfo()
	b.sendWithKeyboard(chatID, "Updated.\n"+renderFields(partial), formKeyboard())
}

func (b *Bot) handleListRequests(ctx context.Context, chatID int64) {
	records, err := b.store.ListAll(ctx)
	if err != nil {
		log.Printf("failed to list requests: %v", err)
		b.sendMessage(chatID, fmt.Sprintf("Error getting requests: %v", err))
		return
	}
	if len(records) == 0 {
		b.sendMessage(chatID, "No requests yet.")
		return
	}

	var bld strings.Builder
	bld.WriteString("Existing requests (newest first):\n")
	for _, r := range records {
		fmt.Fprintf(&bld, "%s | #%s | %s | %s riyals | %s\n",
			r.Timestamp.Format("2006-01-02 15:04"),
			r.ProjectNumber, r.ProjectName,
			strconv.FormatFloat(r.Amount, 'f', -1, 64), r.Reason)
	}
	b.sendMessage(chatID, bld.String())
}

func (b *Bot) resetSession(chatID, userID int64) {
	b.sessions.Session(userID).ClearMemory()
	f := b.form(userID)
	f.phase = phaseEditing
	f.originalText = ""
	b.sendMessage(chatID, "Context cleared. Describe your request to start over.")
}

// SendDailyReport messages the administrator a digest of requests submitted
// in the last 24 hours.
func (b *Bot) SendDailyReport(ctx context.Context) error {
	if b.adminUserID == 0 {
		return nil
	}
	records, err := b.store.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("daily report: %w", err)
	}

	cutoff := time.Now().UTC().Add(-24 * time.Hour)
	var count int
	var total float64
	for _, r := range records {
		if r.Timestamp.After(cutoff) {
			count++
			total += r.Amount
		}
	}

	b.sendMessage(b.adminUserID, fmt.Sprintf(
		"Daily digest: %d request(s) submitted in the last 24h, %s riyals total. %d request(s) overall.",
		count, strconv.FormatFloat(total, 'f', -1, 64), len(records)))
	return nil
}

func (b *Bot) notifyAdminRequest(userID int64, username string) {
	if b.adminUserID == 0 {
		return
	}
	b.sendMessage(b.adminUserID, fmt.Sprintf("User id=%d @%s tried to use the bot but is not allowlisted.", userID, username))
}

func (b *Bot) record(ev audit.Event) {
	if b.recorder == nil {
		return
	}
	if err := b.recorder.AppendInteraction(ev); err != nil {
		log.Printf("failed to record interaction: %v", err)
	}
}

// recognitionErrorMessage maps recognizer failures to the actionable
// messages shown to the user.
func recognitionErrorMessage(err error) string {
	switch {
	case errors.Is(err, speech.ErrUnintelligible):
		return "Error: Could not understand audio. Please speak clearly and try again."
	case errors.Is(err, speech.ErrServiceUnavailable):
		return fmt.Sprintf("Error: Could not request results from speech service: %v", err)
	default:
		return fmt.Sprintf("Error: %v", err)
	}
}
