package subtitle

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/abadojack/whatlanggo"
	"golang.org/x/text/encoding"
	xunicode "golang.org/x/text/encoding/unicode"

	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/language"
)

// ASSReader reads Advanced SubStation Alpha (.ass) subtitle files.
type ASSReader struct {
	path string
}

// NewReader creates a reader for the subtitle file at path.
func NewReader(path string) Reader {
	return &ASSReader{path: path}
}

// Dialogue event lines follow the Events Format definition:
// Layer, Start, End, Style, Actor, MarginL, MarginR, MarginV, Effect, Text.
// Style through Effect are skipped field by field so commas inside Text survive.
var dialoguePattern = regexp.MustCompile(
	`(?m)^Dialogue:\s*\d+,` +
		`(\d+:\d+:\d+\.\d+),` +
		`(\d+:\d+:\d+\.\d+),` +
		`[^,]*,[^,]*,[^,]*,[^,]*,[^,]*,[^,]*,` +
		`(.*)$`)

// Override tags like {\fs14} or {\c&HFFFFFF&} carry styling, not text.
var overrideTagPattern = regexp.MustCompile(`\{[^}]+\}`)

var seasonEpisodePattern = regexp.MustCompile(`(?i)S(\d+)E(\d+)`)

// ParseSeasonEpisode extracts season and episode numbers from a filename
// such as "Young Sheldon S05E01 One Bad Night.ass".
func ParseSeasonEpisode(filename string) (season, episode int, ok bool) {
	m := seasonEpisodePattern.FindStringSubmatch(filename)
	if m == nil {
		return 0, 0, false
	}
	season, _ = strconv.Atoi(m[1])
	episode, _ = strconv.Atoi(m[2])
	return season, episode, true
}

func (r *ASSReader) Read() (*File, error) {
	if !strings.HasSuffix(strings.ToLower(r.path), ".ass") {
		return nil, fmt.Errorf("only ASS format subtitle files are supported: %s", r.path)
	}

	raw, err := os.ReadFile(r.path)
	if err != nil {
		return nil, fmt.Errorf("read subtitle file: %w", err)
	}

	content, err := decodeSubtitleBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", r.path, err)
	}

	dialogues := extractDialogues(content)

	name := filepath.Base(r.path)
	season, episode, _ := ParseSeasonEpisode(name)

	return &File{
		Path:      r.path,
		Name:      name,
		Season:    season,
		Episode:   episode,
		Format:    "ASS",
		Dialogues: dialogues,
		Languages: detectLanguages(dialogues),
	}, nil
}

// decodeSubtitleBytes tries a fixed list of encodings and accepts the first
// decoding that yields valid UTF-8 containing an ASS marker. Bilingual fansub
// releases come in UTF-8 (with or without BOM), UTF-16 of either endianness,
// or one of the GB family encodings.
func decodeSubtitleBytes(raw []byte) (string, error) {
	if utf8.Valid(raw) {
		text := string(bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf")))
		if hasASSMarker(text) {
			return text, nil
		}
	}

	decoders := []*encoding.Decoder{
		xunicode.UTF16(xunicode.LittleEndian, xunicode.UseBOM).NewDecoder(),
		xunicode.UTF16(xunicode.LittleEndian, xunicode.IgnoreBOM).NewDecoder(),
		xunicode.UTF16(xunicode.BigEndian, xunicode.IgnoreBOM).NewDecoder(),
		simplifiedchinese.GB18030.NewDecoder(),
		simplifiedchinese.GBK.NewDecoder(),
	}
	for _, dec := range decoders {
		decoded, err := dec.Bytes(raw)
		if err != nil {
			continue
		}
		text := string(decoded)
		if utf8.ValidString(text) && hasASSMarker(text) {
			return text, nil
		}
	}

	return "", fmt.Errorf("no known encoding produced ASS content")
}

func hasASSMarker(text string) bool {
	return strings.Contains(text, "[Script Info]") || strings.Contains(text, "Dialogue:")
}

func extractDialogues(content string) []Dialogue {
	matches := dialoguePattern.FindAllStringSubmatch(content, -1)

	dialogues := make([]Dialogue, 0, len(matches))
	for _, m := range matches {
		start, end, text := m[1], m[2], m[3]
		text = strings.TrimSuffix(text, "\r")

		clean := overrideTagPattern.ReplaceAllString(text, "")
		chinese, english := splitBilingual(clean)

		dialogues = append(dialogues, Dialogue{
			Index:   len(dialogues),
			Start:   start,
			End:     end,
			Chinese: chinese,
			English: english,
			Raw:     text,
		})
	}
	return dialogues
}

// splitBilingual splits a dialogue text on the ASS hard line break `\N` into
// its Chinese and English halves. The first half is taken as Chinese unless
// script detection clearly says the line is English-first. A missing Chinese
// half falls back to the English text so every dialogue stays searchable.
func splitBilingual(text string) (chinese, english string) {
	parts := strings.Split(text, `\N`)

	chinese = strings.TrimSpace(parts[0])
	if len(parts) > 1 {
		english = strings.TrimSpace(parts[1])
	}

	if chinese != "" && english != "" && isLatinThenHan(chinese, english) {
		chinese, english = english, chinese
	}

	if chinese == "" && english != "" {
		chinese = english
	}
	return chinese, english
}

// isLatinThenHan reports whether the first half is Latin script while the
// second is Han, i.e. an English-first bilingual line.
func isLatinThenHan(first, second string) bool {
	return whatlanggo.DetectScript(first) == unicode.Latin &&
		whatlanggo.DetectScript(second) == unicode.Han
}

// detectLanguages samples the dialogue columns and returns the distinct
// ISO 639-1 codes found in them.
func detectLanguages(dialogues []Dialogue) []string {
	if len(dialogues) == 0 {
		return nil
	}

	const sampleSize = 50
	var zh, en strings.Builder
	for i, d := range dialogues {
		if i >= sampleSize {
			break
		}
		zh.WriteString(d.Chinese)
		zh.WriteString("\n")
		en.WriteString(d.English)
		en.WriteString("\n")
	}

	langs := make([]string, 0, 2)
	seen := make(map[string]bool)
	for _, sample := range []string{zh.String(), en.String()} {
		if strings.TrimSpace(sample) == "" {
			continue
		}
		code := whatlanggo.DetectLang(sample).Iso6391()
		tag, err := language.Parse(code)
		if err != nil {
			continue
		}
		base, conf := tag.Base()
		if conf == language.No {
			continue
		}
		normalized := base.String()
		if !seen[normalized] {
			seen[normalized] = true
			langs = append(langs, normalized)
		}
	}
	return langs
}
