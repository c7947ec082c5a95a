package subtitle

// Reader is the interface for reading subtitle files
type Reader interface {
	Read() (*File, error)
}

// Dialogue is a single dialogue event extracted from a subtitle file.
// Start and End keep the raw ASS timestamps (H:MM:SS.cc, centiseconds).
type Dialogue struct {
	Index   int    `json:"index"`
	Start   string `json:"start"`
	End     string `json:"end"`
	Chinese string `json:"chinese"`
	English string `json:"english"`
	Raw     string `json:"raw"`
}

// File represents a parsed subtitle file
type File struct {
	Path      string     `json:"path"`
	Name      string     `json:"name"`
	Season    int        `json:"season"`
	Episode   int        `json:"episode"`
	Format    string     `json:"format"` // e.g. ASS
	Dialogues []Dialogue `json:"dialogues"`
	// Languages holds the ISO 639-1 codes detected in the dialogue text,
	// informational only.
	Languages []string `json:"languages"`
}
