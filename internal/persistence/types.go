package persistence

// SearchHit is one matching dialogue joined with its file metadata.
// ContextBefore and ContextAfter hold the adjacent dialogue in the same
// file rendered as "<chinese>\n<english>", empty at file boundaries.
type SearchHit struct {
	Season        int
	Episode       int
	Filename      string
	DialogueIndex int
	StartTime     string
	EndTime       string
	ChineseText   string
	EnglishText   string
	ContextBefore string
	ContextAfter  string
}

// SeasonStats summarizes one season of the indexed corpus.
type SeasonStats struct {
	EpisodeCount int   `json:"episode_count"`
	Episodes     []int `json:"episodes"`
}

// Stats summarizes the whole indexed corpus.
type Stats struct {
	TotalFiles     int                    `json:"total_files"`
	TotalDialogues int                    `json:"total_dialogues"`
	Seasons        map[string]SeasonStats `json:"seasons"`
}
