package textanalysis

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const maxMarkerWords = 12

// chunkText splits text on paragraph boundaries into pieces of at most limit
// runes. A single paragraph longer than limit is cut on rune boundaries.
func chunkText(text string, limit int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}
	var (
		chunks  []string
		current strings.Builder
		size    int
	)
	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			chunks = append(chunks, s)
		}
		current.Reset()
		size = 0
	}
	for _, para := range strings.Split(text, "\n\n") {
		n := utf8.RuneCountInString(para)
		if n > limit {
			flush()
			runes := []rune(para)
			for start := 0; start < len(runes); start += limit {
				end := min(start+limit, len(runes))
				chunks = append(chunks, strings.TrimSpace(string(runes[start:end])))
			}
			continue
		}
		if size > 0 && size+n+2 > limit {
			flush()
		}
		if size > 0 {
			current.WriteString("\n\n")
			size += 2
		}
		current.WriteString(para)
		size += n
	}
	flush()
	return chunks
}

type marker struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
	Start   string `json:"start"`
}

// cutSections slices text at each marker's opening words. Markers are matched
// in order, case-insensitively and ignoring whitespace differences; markers
// that cannot be located after the previous one are dropped. Text before the
// first located marker is folded into the first section.
func cutSections(text string, markers []marker) []Section {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	type located struct {
		pos int
		m   marker
	}
	var found []located
	cursor := 0
	for _, m := range markers {
		pattern := markerPattern(m.Start)
		if pattern == nil {
			continue
		}
		loc := pattern.FindStringIndex(text[cursor:])
		if loc == nil {
			continue
		}
		pos := cursor + loc[0]
		if len(found) > 0 && pos == found[len(found)-1].pos {
			continue
		}
		found = append(found, located{pos: pos, m: m})
		cursor = pos + (loc[1] - loc[0])
	}
	if len(found) == 0 {
		title := ""
		if len(markers) > 0 {
			title = strings.TrimSpace(markers[0].Title)
		}
		return []Section{{Title: title, Text: text}}
	}
	found[0].pos = 0

	sections := make([]Section, 0, len(found))
	for i, f := range found {
		end := len(text)
		if i+1 < len(found) {
			end = found[i+1].pos
		}
		body := strings.TrimSpace(text[f.pos:end])
		if body == "" {
			continue
		}
		sections = append(sections, Section{
			Title:   strings.TrimSpace(f.m.Title),
			Summary: strings.TrimSpace(f.m.Summary),
			Text:    body,
		})
	}
	return sections
}

func markerPattern(start string) *regexp.Regexp {
	words := strings.Fields(start)
	if len(words) == 0 {
		return nil
	}
	if len(words) > maxMarkerWords {
		words = words[:maxMarkerWords]
	}
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	pattern, err := regexp.Compile(`(?i)` + strings.Join(quoted, `\s+`))
	if err != nil {
		return nil
	}
	return pattern
}
