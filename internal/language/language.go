package language

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	textlang "golang.org/x/text/language"
)

type entry struct {
	code2   string   // ISO 639-1
	code3   string   // ISO 639-2/T
	alt3    string   // ISO 639-2/B alternate
	display string   // English name
	words   []string // accepted word forms
}

var languages = []entry{
	{"en", "eng", "", "English", []string{"english"}},
	{"es", "spa", "", "Spanish", []string{"spanish", "español"}},
	{"fr", "fra", "fre", "French", []string{"french", "français"}},
	{"de", "deu", "ger", "German", []string{"german", "deutsch"}},
	{"it", "ita", "", "Italian", []string{"italian", "italiano"}},
	{"pt", "por", "", "Portuguese", []string{"portuguese"}},
	{"ja", "jpn", "", "Japanese", []string{"japanese"}},
	{"ko", "kor", "", "Korean", []string{"korean"}},
	{"zh", "zho", "chi", "Chinese", []string{"chinese"}},
	{"ru", "rus", "", "Russian", []string{"russian"}},
	{"ar", "ara", "", "Arabic", []string{"arabic"}},
	{"hi", "hin", "", "Hindi", []string{"hindi"}},
	{"nl", "nld", "dut", "Dutch", []string{"dutch"}},
	{"pl", "pol", "", "Polish", []string{"polish"}},
	{"sv", "swe", "", "Swedish", []string{"swedish"}},
	{"da", "dan", "", "Danish", []string{"danish"}},
	{"no", "nor", "", "Norwegian", []string{"norwegian"}},
	{"fi", "fin", "", "Finnish", []string{"finnish"}},
	{"tr", "tur", "", "Turkish", []string{"turkish"}},
	{"id", "ind", "", "Indonesian", []string{"indonesian", "bahasa"}},
}

var (
	byCode3 map[string]*entry
	byWord  map[string]*entry
)

func init() {
	byCode3 = make(map[string]*entry, len(languages)*2)
	byWord = make(map[string]*entry, len(languages))
	for i := range languages {
		e := &languages[i]
		byCode3[e.code3] = e
		if e.alt3 != "" {
			byCode3[e.alt3] = e
		}
		for _, w := range e.words {
			byWord[w] = e
		}
	}
}

// Normalize returns the canonical BCP-47 form of value. Blank input yields
// fallback (normalized the same way). Unparseable input is an error.
func Normalize(value, fallback string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		value = strings.TrimSpace(fallback)
	}
	if value == "" {
		return "", fmt.Errorf("language is required")
	}
	tag, err := Parse(value)
	if err != nil {
		return "", err
	}
	return tag.String(), nil
}

// Parse resolves value to a language tag, accepting ISO 639-2 codes and
// English names in addition to BCP-47.
func Parse(value string) (textlang.Tag, error) {
	key := strings.ToLower(strings.TrimSpace(strings.ReplaceAll(value, "_", "-")))
	if key == "" {
		return textlang.Und, fmt.Errorf("language is required")
	}
	if e, ok := byWord[key]; ok {
		key = e.code2
	} else if e, ok := byCode3[key]; ok {
		key = e.code2
	}
	tag, err := textlang.Parse(key)
	if err != nil {
		return textlang.Und, fmt.Errorf("invalid language %q: %w", value, err)
	}
	if tag == textlang.Und {
		return textlang.Und, fmt.Errorf("invalid language %q: undetermined", value)
	}
	return tag, nil
}

// Base returns the two-letter base language of a tag ("en" for "en-GB"), or
// an empty string when it cannot be determined.
func Base(value string) string {
	tag, err := Parse(value)
	if err != nil {
		return ""
	}
	base, confidence := tag.Base()
	if confidence == textlang.No {
		return ""
	}
	return base.String()
}

// DisplayName returns an English name for the language, falling back to the
// upper-cased input.
func DisplayName(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "Unknown"
	}
	base := Base(trimmed)
	for i := range languages {
		if languages[i].code2 == base {
			return languages[i].display
		}
	}
	return strings.ToUpper(trimmed)
}

// Title applies language-aware title casing. Titles that already contain
// upper-case letters are left alone so authored capitalisation survives.
func Title(lang, text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" || strings.ToLower(text) != text {
		return text
	}
	tag, err := Parse(lang)
	if err != nil {
		tag = textlang.Und
	}
	return cases.Title(tag).String(text)
}
