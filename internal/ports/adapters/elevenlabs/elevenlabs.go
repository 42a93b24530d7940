package elevenlabs

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/forPelevin/reelsmith/internal/types"
)

const (
	defaultBaseURL = "https://api.elevenlabs.io"
	defaultModel   = "eleven_multilingual_v2"
	defaultVoice   = "21m00Tcm4TlvDq8ikWAM"

	requestTimeout = 90 * time.Second
)

type Adapter struct {
	key     string
	model   string
	baseURL string
	// voices maps upper-cased character names to voice IDs; unmapped
	// characters fall back to the default narrator voice.
	voices       map[string]string
	defaultVoice string
	client       *http.Client
}

func New(apiKey, model, baseURL string, voices map[string]string, narratorVoice string) *Adapter {
	if model == "" {
		model = defaultModel
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if narratorVoice == "" {
		narratorVoice = defaultVoice
	}
	norm := make(map[string]string, len(voices))
	for name, id := range voices {
		norm[strings.ToUpper(strings.TrimSpace(name))] = id
	}
	return &Adapter{
		key:          apiKey,
		model:        model,
		baseURL:      strings.TrimRight(baseURL, "/"),
		voices:       norm,
		defaultVoice: narratorVoice,
		client:       &http.Client{Timeout: 5 * time.Minute},
	}
}

type synthesisRequest struct {
	Text    string `json:"text"`
	ModelID string `json:"model_id"`
}

type synthesisResponse struct {
	AudioBase64 string `json:"audio_base64"`
	Alignment   struct {
		Characters []string  `json:"characters"`
		StartTimes []float64 `json:"character_start_times_seconds"`
	} `json:"alignment"`
}

func (a *Adapter) Synthesize(ctx context.Context, dialogue, character string) (types.SpeechResult, error) {
	if strings.TrimSpace(dialogue) == "" {
		return types.SpeechResult{}, errors.New("dialogue is empty")
	}

	body, err := json.Marshal(synthesisRequest{Text: dialogue, ModelID: a.model})
	if err != nil {
		return types.SpeechResult{}, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/text-to-speech/%s/with-timestamps?output_format=mp3_44100_128",
		a.baseURL, a.voiceFor(character))

	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return types.SpeechResult{}, err
	}
	req.Header.Set("xi-api-key", a.key)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return types.SpeechResult{}, fmt.Errorf("elevenlabs timeout after %s", requestTimeout)
		}
		return types.SpeechResult{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		rb, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return types.SpeechResult{}, fmt.Errorf("elevenlabs status %d and read body failed: %v", resp.StatusCode, readErr)
		}
		return types.SpeechResult{}, fmt.Errorf("elevenlabs status %d: %s", resp.StatusCode, truncate(string(rb), 400))
	}

	var sr synthesisResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return types.SpeechResult{}, fmt.Errorf("decode response: %w", err)
	}

	audio, err := base64.StdEncoding.DecodeString(sr.AudioBase64)
	if err != nil {
		return types.SpeechResult{}, fmt.Errorf("decode audio: %w", err)
	}

	return types.SpeechResult{
		Audio: audio,
		Marks: wordMarks(sr.Alignment.Characters, sr.Alignment.StartTimes),
	}, nil
}

func (a *Adapter) voiceFor(character string) string {
	if id, ok := a.voices[strings.ToUpper(strings.TrimSpace(character))]; ok {
		return id
	}
	return a.defaultVoice
}

// wordMarks folds the service's character-level timestamps into word-level
// marks. A word starts at its first non-space character's start time.
func wordMarks(chars []string, starts []float64) []types.WordMark {
	n := len(chars)
	if len(starts) < n {
		n = len(starts)
	}

	var out []types.WordMark
	var word strings.Builder
	wordStartMS := 0

	flush := func() {
		if word.Len() == 0 {
			return
		}
		out = append(out, types.WordMark{Text: word.String(), StartMS: wordStartMS})
		word.Reset()
	}

	for i := 0; i < n; i++ {
		c := chars[i]
		if isSpace(c) {
			flush()
			continue
		}
		if word.Len() == 0 {
			wordStartMS = int(starts[i] * 1000)
		}
		word.WriteString(c)
	}
	flush()
	return out
}

func isSpace(s string) bool {
	for _, r := range s {
		if !unicode.IsSpace(r) {
			return false
		}
	}
	return s != ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
