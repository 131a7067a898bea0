package telegram

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"money-request-bot/internal/audit"
	"money-request-bot/internal/auth"
	"money-request-bot/internal/extract"
	"money-request-bot/internal/memory"
	"money-request-bot/internal/speech"
	"money-request-bot/internal/store"
)

// Callback data for inline buttons.
const (
	cbConfirm    = "confirm_request"
	cbSubmit     = "submit_request"
	cbReset      = "reset_ctx"
	cbLangPrefix = "lang:"
)

// phase is the per-user form workflow state. Submit is only reachable from
// phaseConfirmed; a successful submit always returns to phaseEditing with
// the session cleared.
type phase int

const (
	phaseEditing phase = iota
	phaseConfirmed
)

// formState tracks the workflow phase plus the raw input that produced the
// current field values (persisted as original_text on submit).
type formState struct {
	phase        phase
	language     speech.Language
	originalText string
}

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetFile(c tgbotapi.FileConfig) (tgbotapi.File, error)
}

type requestStore interface {
	Add(ctx context.Context, rec store.RequestRecord) error
	ListAll(ctx context.Context) ([]store.RequestRecord, error)
}

type botAPISender struct{ api *tgbotapi.BotAPI }

func (s botAPISender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	return s.api.Send(c)
}

func (s botAPISender) GetFile(c tgbotapi.FileConfig) (tgbotapi.File, error) {
	return s.api.GetFile(c)
}

type Bot struct {
	api         *tgbotapi.BotAPI
	s           sender
	token       string
	authSvc     *auth.Service
	extractor   *extract.Processor
	sessions    *memory.Manager
	store       requestStore
	recognizer  speech.Recognizer
	synthesizer speech.Synthesizer
	recorder    audit.Recorder
	adminUserID int64

	mu    sync.Mutex
	forms map[int64]*formState

	// download fetches a Telegram file by URL; replaceable in tests.
	download func(url string) ([]byte, error)
}

func New(
	botToken string,
	authSvc *auth.Service,
	extractor *extract.Processor,
	sessions *memory.Manager,
	st *store.Store,
	recognizer speech.Recognizer,
	synthesizer speech.Synthesizer,
	recorder audit.Recorder,
	adminUserID int64,
) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, err
	}
	return &Bot{
		api:         api,
		s:           botAPISender{api: api},
		token:       botToken,
		authSvc:     authSvc,
		extractor:   extractor,
		sessions:    sessions,
		store:       st,
		recognizer:  recognizer,
		synthesizer: synthesizer,
		recorder:    recorder,
		adminUserID: adminUserID,
		forms:       make(map[int64]*formState),
		download:    downloadFile,
	}, nil
}

func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for update := range updates {
		if update.Message != nil {
			b.handleIncomingMessage(ctx, update.Message)
			continue
		}
		if update.CallbackQuery != nil {
			b.handleCallback(ctx, update.CallbackQuery)
			continue
		}
	}
}

// form returns the user's workflow state, creating it in the editing phase.
func (b *Bot) form(userID int64) *formState {
	b.mu.Lock()
	defer b.mu.Unlock()
	f, ok := b.forms[userID]
	if !ok {
		f = &formState{phase: phaseEditing, language: speech.LanguageEnglish}
		b.forms[userID] = f
	}
	return f
}

func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.s.Send(msg); err != nil {
		log.Printf("failed to send message: %v", err)
	}
}

func (b *Bot) sendWithKeyboard(chatID int64, text string, kb tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = kb
	if _, err := b.s.Send(msg); err != nil {
		log.Printf("failed to send message: %v", err)
	}
}

func (b *Bot) sendVoice(chatID int64, path string) error {
	voice := tgbotapi.NewVoice(chatID, tgbotapi.FilePath(path))
	if _, err := b.s.Send(voice); err != nil {
		return fmt.Errorf("send voice: %w", err)
	}
	return nil
}

func downloadFile(url string) ([]byte, error) {
	resp, err := http.Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to download file: %w", err)
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}
