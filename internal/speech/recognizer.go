// Package speech adapts spoken audio to text and text to spoken audio.
// Both adapters are stateless single-call utilities around Google Cloud
// backends.
package speech

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Language is the caller's hint about what the user speaks.
type Language string

const (
	LanguageEnglish Language = "English"
	LanguageArabic  Language = "Arabic"
	LanguageMixed   Language = "Mixed (Arabic/English)"
)

var (
	// ErrServiceUnavailable: the recognition backend could not be reached.
	ErrServiceUnavailable = errors.New("could not request results from speech service")
	// ErrUnintelligible: the backend produced no transcript for the audio.
	ErrUnintelligible = errors.New("could not understand audio")
)

// Recognizer converts a recorded utterance to text.
type Recognizer interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string, lang Language) (string, error)
}

// localesFor maps the language hint to recognition locales in try order.
// Mixed input is tried as Arabic first and falls back to English.
func localesFor(lang Language) []string {
	switch lang {
	case LanguageArabic:
		return []string{"ar-SA"}
	case LanguageMixed:
		return []string{"ar-SA", "en-US"}
	default:
		return []string{"en-US"}
	}
}

// GoogleRecognizer recognizes short utterances via Google Cloud Speech.
type GoogleRecognizer struct {
	client *speech.Client

	// recognize runs a single recognition call; replaceable in tests.
	recognize func(ctx context.Context, audio []byte, mimeType, locale string) (string, error)
}

func NewGoogleRecognizer(ctx context.Context, credentialsFile string) (*GoogleRecognizer, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	c, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("speech client: %w", err)
	}
	r := &GoogleRecognizer{client: c}
	r.recognize = r.recognizeOnce
	return r, nil
}

func (r *GoogleRecognizer) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}

// Transcribe transcodes unsupported containers to WAV, then dispatches to
// the backend with the locale chain for the language hint. The fallback
// locale is consulted only when the audio was unintelligible, not on
// service failures.
func (r *GoogleRecognizer) Transcribe(ctx context.Context, audio []byte, mimeType string, lang Language) (string, error) {
	if len(audio) == 0 {
		return "", ErrUnintelligible
	}

	if inferEncoding(mimeType) == speechpb.RecognitionConfig_ENCODING_UNSPECIFIED {
		wav, err := transcodeToWAV(ctx, audio, mimeType)
		if err != nil {
			return "", fmt.Errorf("transcode audio: %w", err)
		}
		audio = wav
		mimeType = "audio/wav"
	}

	locales := localesFor(lang)
	for i, locale := range locales {
		text, err := r.recognize(ctx, audio, mimeType, locale)
		if err == nil {
			return text, nil
		}
		if !errors.Is(err, ErrUnintelligible) || i == len(locales)-1 {
			return "", err
		}
	}
	return "", ErrUnintelligible
}

func (r *GoogleRecognizer) recognizeOnce(ctx context.Context, audio []byte, mimeType, locale string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	enc := inferEncoding(mimeType)
	cfg := &speechpb.RecognitionConfig{
		Encoding:                   enc,
		LanguageCode:               locale,
		EnableAutomaticPunctuation: true,
	}
	switch enc {
	case speechpb.RecognitionConfig_OGG_OPUS:
		// Telegram voice notes are 48 kHz mono Opus.
		cfg.SampleRateHertz = 48000
		cfg.AudioChannelCount = 1
	case speechpb.RecognitionConfig_LINEAR16:
		cfg.SampleRateHertz = transcodeSampleRate
	}

	resp, err := r.client.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: cfg,
		Audio:  &speechpb.RecognitionAudio{AudioSource: &speechpb.RecognitionAudio_Content{Content: audio}},
	})
	if err != nil {
		switch status.Code(err) {
		case codes.Unavailable, codes.DeadlineExceeded:
			return "", fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
		}
		return "", fmt.Errorf("speech recognize: %w", err)
	}

	var full strings.Builder
	for _, res := range resp.Results {
		if res == nil || len(res.Alternatives) == 0 {
			continue
		}
		t := strings.TrimSpace(res.Alternatives[0].Transcript)
		if t == "" {
			continue
		}
		if full.Len() > 0 {
			full.WriteString(" ")
		}
		full.WriteString(t)
	}
	if full.Len() == 0 {
		return "", ErrUnintelligible
	}
	return full.String(), nil
}

func inferEncoding(mimeType string) speechpb.RecognitionConfig_AudioEncoding {
	m := strings.ToLower(strings.TrimSpace(mimeType))
	switch {
	case strings.Contains(m, "wav") || strings.Contains(m, "x-wav"):
		return speechpb.RecognitionConfig_LINEAR16
	case strings.Contains(m, "ogg") || strings.Contains(m, "opus"):
		return speechpb.RecognitionConfig_OGG_OPUS
	case strings.Contains(m, "flac"):
		return speechpb.RecognitionConfig_FLAC
	case strings.Contains(m, "mp3") || strings.Contains(m, "mpeg"):
		return speechpb.RecognitionConfig_MP3
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED
	}
}
