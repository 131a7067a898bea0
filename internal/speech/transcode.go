package speech

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"os"
	"os/exec"
	"strconv"
)

const transcodeSampleRate = 16000

// transcodeToWAV converts an unsupported container to 16 kHz mono WAV via
// ffmpeg. Temporary files are scoped to the call and removed on every exit
// path.
func transcodeToWAV(ctx context.Context, audio []byte, mimeType string) ([]byte, error) {
	in, err := os.CreateTemp("", "voice-in-*"+extensionFor(mimeType))
	if err != nil {
		return nil, fmt.Errorf("create temp input: %w", err)
	}
	defer os.Remove(in.Name())

	if _, err := in.Write(audio); err != nil {
		_ = in.Close()
		return nil, fmt.Errorf("write temp input: %w", err)
	}
	if err := in.Close(); err != nil {
		return nil, fmt.Errorf("close temp input: %w", err)
	}

	out, err := os.CreateTemp("", "voice-out-*.wav")
	if err != nil {
		return nil, fmt.Errorf("create temp output: %w", err)
	}
	outPath := out.Name()
	_ = out.Close()
	defer os.Remove(outPath)

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "ffmpeg", "-y",
		"-i", in.Name(),
		"-ar", strconv.Itoa(transcodeSampleRate),
		"-ac", "1",
		"-f", "wav",
		outPath)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg: %w: %s", err, stderr.String())
	}

	wav, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("read transcoded audio: %w", err)
	}
	return wav, nil
}

func extensionFor(mimeType string) string {
	exts, err := mime.ExtensionsByType(mimeType)
	if err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}
