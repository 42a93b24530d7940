package types

type Script struct {
	Title         string      `json:"title"`
	Theme         string      `json:"theme"`
	Characters    []Character `json:"characters"`
	Scenes        []Scene     `json:"scenes"`
	TotalDuration float64     `json:"total_duration"`
}

type Character struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type Scene struct {
	Number      int      `json:"scene_number"`
	Characters  []string `json:"characters"`
	Dialogue    string   `json:"dialogue"`
	Action      string   `json:"action"`
	Location    string   `json:"location"`
	Camera      string   `json:"camera"`
	DurationSec float64  `json:"duration_seconds"`
}

// WordMark is one spoken word and its start offset within the utterance.
// Sequences arrive chronological from the speech service; nothing downstream
// re-sorts them.
type WordMark struct {
	Text    string
	StartMS int
}

type SpeechResult struct {
	Audio []byte
	Marks []WordMark
}

type Manifest struct {
	Reel   string          `json:"reel"`
	Title  string          `json:"title"`
	RunID  string          `json:"run_id"`
	Video  string          `json:"video"`
	Scenes []ManifestScene `json:"scenes"`
}

type ManifestScene struct {
	Number        int     `json:"scene_number"`
	Character     string  `json:"character"`
	Dialogue      string  `json:"dialogue"`
	Image         string  `json:"image"`
	Audio         string  `json:"audio"`
	Marks         string  `json:"speech_marks"`
	Video         string  `json:"video"`
	AudioSec      float64 `json:"audio_sec"`
	VisualSec     float64 `json:"visual_sec"`
	SyncMode      string  `json:"sync_mode"`
	StretchFactor float64 `json:"stretch_factor,omitempty"`
	FreezeSec     float64 `json:"freeze_sec,omitempty"`
}
