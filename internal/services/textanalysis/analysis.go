package textanalysis

import (
	"context"
	"fmt"
	"strings"

	"plotline/internal/language"
	"plotline/internal/services"
)

const characterSystemPrompt = `You extract the characters of a work of fiction.
Respond with JSON only: {"characters":[{"name":"...","description":"...","aliases":["..."]}]}.
"name" is the most complete form of the name used in the text. "description" is one or two
sentences on appearance and role that an illustrator could use. "aliases" lists other names or
titles the text uses for the same character. Include only people or personified beings that act
or speak. Do not invent characters.`

const chapterSystemPrompt = `You divide a manuscript into chapters.
Respond with JSON only: {"chapters":[{"title":"...","start":"..."}]}.
"start" must be the first eight words of the chapter copied exactly from the text, including any
heading. List chapters in reading order. Use the manuscript's own chapter headings where present;
otherwise split at major breaks in time, place or viewpoint and invent a short title.`

const sceneSystemPrompt = `You divide one chapter of a manuscript into scenes.
Respond with JSON only: {"scenes":[{"title":"...","summary":"...","start":"..."}]}.
A scene is a continuous span of action in one place and time. "start" must be the first eight
words of the scene copied exactly from the text. "summary" is one sentence describing what
happens and what it looks like. List scenes in reading order.`

const promptSystemPrompt = `You write prompts for an illustration model.
Respond with JSON only: {"prompt":"..."}.
Describe a single illustration of the scene: setting, lighting, the characters present with
their visual traits, their poses and the mood. Use concrete visual language in at most 80 words.
Do not ask for text, captions or speech bubbles in the image. Write the prompt in English.`

// ExtractCharacters lists the characters appearing in text. Long manuscripts
// are analyzed in chunks and the results merged by name.
func (c *Client) ExtractCharacters(ctx context.Context, text, lang string) ([]Character, error) {
	if err := requireText("extract characters", text); err != nil {
		return nil, err
	}
	var (
		merged []Character
		index  = make(map[string]int)
	)
	for i, chunk := range chunkText(text, c.chunkRunes) {
		var payload struct {
			Characters []Character `json:"characters"`
		}
		user := buildUserPrompt(lang, fmt.Sprintf("Manuscript excerpt %d:", i+1), chunk)
		if err := c.ask(ctx, "extract characters", characterSystemPrompt, user, &payload); err != nil {
			return nil, err
		}
		for _, ch := range payload.Characters {
			ch.Name = strings.TrimSpace(ch.Name)
			if ch.Name == "" {
				continue
			}
			key := strings.ToLower(ch.Name)
			if pos, ok := index[key]; ok {
				existing := &merged[pos]
				if existing.Description == "" {
					existing.Description = strings.TrimSpace(ch.Description)
				}
				existing.Aliases = append(existing.Aliases, ch.Aliases...)
				continue
			}
			index[key] = len(merged)
			ch.Description = strings.TrimSpace(ch.Description)
			merged = append(merged, ch)
		}
	}
	return merged, nil
}

// SplitChapters divides a manuscript into ordered chapters.
func (c *Client) SplitChapters(ctx context.Context, text, lang string) ([]Section, error) {
	if err := requireText("split chapters", text); err != nil {
		return nil, err
	}
	var markers []marker
	for i, chunk := range chunkText(text, c.chunkRunes) {
		var payload struct {
			Chapters []marker `json:"chapters"`
		}
		user := buildUserPrompt(lang, fmt.Sprintf("Manuscript excerpt %d:", i+1), chunk)
		if err := c.ask(ctx, "split chapters", chapterSystemPrompt, user, &payload); err != nil {
			return nil, err
		}
		markers = append(markers, payload.Chapters...)
	}
	return titled(lang, cutSections(text, markers)), nil
}

// SplitScenes divides one chapter into ordered scenes.
func (c *Client) SplitScenes(ctx context.Context, chapterText, lang string) ([]Section, error) {
	if err := requireText("split scenes", chapterText); err != nil {
		return nil, err
	}
	var markers []marker
	for _, chunk := range chunkText(chapterText, c.chunkRunes) {
		var payload struct {
			Scenes []marker `json:"scenes"`
		}
		user := buildUserPrompt(lang, "Chapter text:", chunk)
		if err := c.ask(ctx, "split scenes", sceneSystemPrompt, user, &payload); err != nil {
			return nil, err
		}
		markers = append(markers, payload.Scenes...)
	}
	return titled(lang, cutSections(chapterText, markers)), nil
}

// ScenePrompt writes an illustration prompt for one scene and appends the
// style preset.
func (c *Client) ScenePrompt(ctx context.Context, req PromptRequest) (string, error) {
	body := strings.TrimSpace(req.SceneText)
	if body == "" {
		body = strings.TrimSpace(req.SceneSummary)
	}
	if err := requireText("scene prompt", body); err != nil {
		return "", err
	}
	var b strings.Builder
	if req.SceneTitle != "" {
		fmt.Fprintf(&b, "Scene title: %s\n", req.SceneTitle)
	}
	if req.SceneSummary != "" {
		fmt.Fprintf(&b, "Scene summary: %s\n", req.SceneSummary)
	}
	if len(req.Characters) > 0 {
		b.WriteString("Characters in this scene:\n")
		for _, ch := range req.Characters {
			fmt.Fprintf(&b, "- %s: %s\n", ch.Name, strings.TrimSpace(ch.Description))
		}
	}
	b.WriteString("\n")
	if runes := []rune(body); len(runes) > c.chunkRunes {
		body = string(runes[:c.chunkRunes])
	}
	user := buildUserPrompt(req.Language, b.String()+"Scene text:", body)

	var payload struct {
		Prompt string `json:"prompt"`
	}
	if err := c.ask(ctx, "scene prompt", promptSystemPrompt, user, &payload); err != nil {
		return "", err
	}
	prompt := strings.TrimSpace(payload.Prompt)
	if prompt == "" {
		return "", services.Wrap(services.ErrExternalService, component, "scene prompt", "model returned an empty prompt", nil)
	}
	return ComposePrompt(prompt, req.StylePreset), nil
}

// ComposePrompt appends a style preset to a scene description.
func ComposePrompt(description, stylePreset string) string {
	description = strings.TrimRight(strings.TrimSpace(description), ". ")
	stylePreset = strings.TrimSpace(stylePreset)
	if stylePreset == "" {
		return description + "."
	}
	return fmt.Sprintf("%s. Style: %s.", description, stylePreset)
}

func buildUserPrompt(lang, heading, body string) string {
	var b strings.Builder
	if instr := languageInstruction(lang); instr != "" {
		b.WriteString(instr)
		b.WriteString("\n\n")
	}
	b.WriteString(heading)
	b.WriteString("\n")
	b.WriteString(body)
	return b.String()
}

func titled(lang string, sections []Section) []Section {
	for i := range sections {
		sections[i].Title = language.Title(lang, sections[i].Title)
	}
	return sections
}
