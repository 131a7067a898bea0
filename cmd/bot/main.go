package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"money-request-bot/internal/audit"
	"money-request-bot/internal/auth"
	"money-request-bot/internal/config"
	"money-request-bot/internal/extract"
	"money-request-bot/internal/llm"
	"money-request-bot/internal/memory"
	"money-request-bot/internal/scheduler"
	"money-request-bot/internal/speech"
	"money-request-bot/internal/store"
	"money-request-bot/internal/telegram"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}

	cfg := config.New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var allowRepo auth.Repository
	if cfg.AllowlistFilePath != "" {
		repo, err := auth.NewFileRepository(cfg.AllowlistFilePath)
		if err != nil {
			log.Printf("failed to init allowlist repo: %v", err)
		} else {
			allowRepo = repo
		}
	}
	authSvc, err := auth.NewWithRepo(allowRepo, cfg.AllowedUsers)
	if err != nil {
		log.Fatalf("failed to init auth: %v", err)
	}

	llmClient, err := llm.NewFactory(cfg).CreateClient(string(cfg.LLMProvider), cfg.OpenAIModel)
	if err != nil {
		log.Fatalf("failed to create llm client: %v", err)
	}

	st := store.New(cfg.DatabasePath)
	if err := st.Initialize(ctx); err != nil {
		log.Fatalf("failed to initialize database: %v", err)
	}

	// Speech services are optional: without credentials the bot still runs
	// in text-only mode.
	var recognizer speech.Recognizer
	if r, err := speech.NewGoogleRecognizer(ctx, cfg.GoogleCredentialsFile); err != nil {
		log.Printf("speech recognition disabled: %v", err)
	} else {
		recognizer = r
	}
	var synthesizer speech.Synthesizer
	if s, err := speech.NewGoogleSynthesizer(ctx, cfg.GoogleCredentialsFile); err != nil {
		log.Printf("speech synthesis disabled: %v", err)
	} else {
		synthesizer = s
	}
	if speech.HasAudioInput() {
		log.Println("local audio capture device detected")
	} else {
		log.Println("no local audio capture device, voice notes only")
	}

	var recorder audit.Recorder
	if cfg.AuditLogPath != "" {
		fr, err := audit.NewFileRecorder(cfg.AuditLogPath)
		if err != nil {
			log.Printf("failed to init audit recorder: %v", err)
		} else {
			recorder = fr
		}
	}

	bot, err := telegram.New(
		cfg.TelegramBotToken,
		authSvc,
		extract.NewProcessor(llmClient),
		memory.NewManager(),
		st,
		recognizer,
		synthesizer,
		recorder,
		cfg.AdminUserID,
	)
	if err != nil {
		log.Fatalf("failed to create telegram bot: %v", err)
	}

	sched := scheduler.New(cfg.ReportSchedule)
	sched.SetReportFunction(bot.SendDailyReport)
	if err := sched.Start(); err != nil {
		log.Printf("failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		cancel()
		os.Exit(0)
	}()

	log.Println("money request bot started")
	bot.Start(ctx)
}
