package library

// Entry is one subtitle file discovered in the corpus directory.
type Entry struct {
	Path    string `json:"path"`
	Name    string `json:"name"`
	Season  int    `json:"season"`
	Episode int    `json:"episode"`
}

// MediaKind selects which media root a clip source is resolved from.
type MediaKind string

const (
	KindAudio MediaKind = "audio"
	KindVideo MediaKind = "video"
)
