package search

import "regexp"

// Highlight wraps every case-insensitive occurrence of query in
// <mark>...</mark>, leaving everything else untouched. Blank queries return
// text unchanged.
func Highlight(text, query string) string {
	if text == "" || query == "" {
		return text
	}
	re, err := regexp.Compile(`(?i)` + regexp.QuoteMeta(query))
	if err != nil {
		return text
	}
	return re.ReplaceAllString(text, "<mark>$0</mark>")
}

func highlightResult(r Result, query string) Result {
	r.ChineseText = Highlight(r.ChineseText, query)
	r.EnglishText = Highlight(r.EnglishText, query)
	r.ContextBefore = Highlight(r.ContextBefore, query)
	r.ContextAfter = Highlight(r.ContextAfter, query)
	return r
}
