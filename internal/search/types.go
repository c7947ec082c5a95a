package search

// Result is one search hit as served over the API.
type Result struct {
	Season        int    `json:"season"`
	Episode       int    `json:"episode"`
	Filename      string `json:"filename"`
	DialogueIndex int    `json:"dialogue_index"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	StartDisplay  string `json:"start_display"`
	EndDisplay    string `json:"end_display"`
	ChineseText   string `json:"chinese_text"`
	EnglishText   string `json:"english_text"`
	ContextBefore string `json:"context_before"`
	ContextAfter  string `json:"context_after"`
}

// Response is the payload of one search call.
type Response struct {
	Query   string   `json:"query"`
	Total   int      `json:"total"`
	Results []Result `json:"results"`
}
