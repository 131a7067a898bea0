package speech

import (
	"os"
	"strings"
)

// HasAudioInput is a best-effort probe for a local capture device. It looks
// for ALSA PCM capture nodes and never fails; a server deployment simply
// reports false.
func HasAudioInput() bool {
	entries, err := os.ReadDir("/dev/snd")
	if err != nil {
		return false
	}
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, "pcm") && strings.HasSuffix(name, "c") {
			return true
		}
	}
	return false
}
