package stages

import (
	"context"
	"regexp"
	"strings"
	"sync"

	"plotline/internal/jobs"
	"plotline/internal/library"
	"plotline/internal/stage"
)

// CharacterLinking associates characters with each scene by finding their
// names and aliases in the scene. It makes no external calls.
type CharacterLinking struct {
	library *library.Store

	mu      sync.Mutex
	jobID   string
	matcher *CharacterMatcher
}

// NewCharacterLinking constructs the linking stage.
func NewCharacterLinking(lib *library.Store) *CharacterLinking {
	return &CharacterLinking{library: lib}
}

func (s *CharacterLinking) Name() jobs.Stage { return jobs.StageLinking }

func (s *CharacterLinking) Plan(ctx context.Context, run stage.Run) ([]stage.Unit, error) {
	return planScenes(ctx, s.library, s.Name(), run, 0)
}

func (s *CharacterLinking) Execute(ctx context.Context, run stage.Run, unit stage.Unit) (stage.Result, error) {
	scene, err := s.library.Scene(ctx, unit.Target)
	if err != nil {
		return stage.Result{}, libraryError(s.Name(), "load scene", err)
	}
	matcher, err := s.matcherFor(ctx, run)
	if err != nil {
		return stage.Result{}, libraryError(s.Name(), "load characters", err)
	}
	linked := matcher.Match(strings.Join([]string{scene.Title, scene.Summary, scene.Text}, "\n"))
	if err := s.library.ReplaceSceneCharacters(ctx, scene.ID, linked); err != nil {
		return stage.Result{}, libraryError(s.Name(), "save links", err)
	}
	return stage.Result{Produced: len(linked)}, nil
}

func (s *CharacterLinking) HealthCheck(context.Context) stage.Health {
	return stage.Healthy(string(s.Name()))
}

// matcherFor returns the job's character matcher, loading and compiling it on
// first use. Characters do not change while a job links scenes.
func (s *CharacterLinking) matcherFor(ctx context.Context, run stage.Run) (*CharacterMatcher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.matcher != nil && s.jobID == run.JobID {
		return s.matcher, nil
	}
	characters, err := s.library.Characters(ctx, run.ProjectID)
	if err != nil {
		return nil, err
	}
	s.jobID, s.matcher = run.JobID, NewCharacterMatcher(characters)
	return s.matcher, nil
}

// CharacterMatcher holds one compiled whole-word pattern per character.
type CharacterMatcher struct {
	ids      []string
	patterns []*regexp.Regexp
}

// NewCharacterMatcher compiles the name, alias and first-name terms of each
// character. Characters without usable terms never match.
func NewCharacterMatcher(characters []library.Character) *CharacterMatcher {
	m := &CharacterMatcher{}
	for _, ch := range characters {
		terms := matchTerms(ch)
		if len(terms) == 0 {
			continue
		}
		quoted := make([]string, len(terms))
		for i, term := range terms {
			quoted[i] = regexp.QuoteMeta(term)
		}
		pattern, err := regexp.Compile(`(?i)(?:^|[^\p{L}\p{N}])(?:` + strings.Join(quoted, "|") + `)(?:$|[^\p{L}\p{N}])`)
		if err != nil {
			continue
		}
		m.ids = append(m.ids, ch.ID)
		m.patterns = append(m.patterns, pattern)
	}
	return m
}

// Match returns the ids of characters named in text, in character order.
func (m *CharacterMatcher) Match(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	var ids []string
	for i, pattern := range m.patterns {
		if pattern.MatchString(text) {
			ids = append(ids, m.ids[i])
		}
	}
	return ids
}

// MatchCharacters returns the ids of characters whose name, alias or first
// name appears in text as a whole word.
func MatchCharacters(text string, characters []library.Character) []string {
	return NewCharacterMatcher(characters).Match(text)
}

func matchTerms(ch library.Character) []string {
	terms := make([]string, 0, len(ch.Aliases)+2)
	name := strings.TrimSpace(ch.Name)
	if name != "" {
		terms = append(terms, name)
		if fields := strings.Fields(name); len(fields) > 1 && len([]rune(fields[0])) >= 3 {
			terms = append(terms, fields[0])
		}
	}
	for _, alias := range ch.Aliases {
		if alias = strings.TrimSpace(alias); alias != "" {
			terms = append(terms, alias)
		}
	}
	return terms
}

// planScenes returns one unit per scene, or one per scene variant when
// variants is positive.
func planScenes(ctx context.Context, lib *library.Store, name jobs.Stage, run stage.Run, variants int) ([]stage.Unit, error) {
	scenes, err := lib.Scenes(ctx, run.ProjectID)
	if err != nil {
		return nil, libraryError(name, "plan", err)
	}
	if variants <= 0 {
		units := make([]stage.Unit, 0, len(scenes))
		for _, sc := range scenes {
			units = append(units, stage.Unit{RefID: sc.ID, Target: sc.ID, Label: sc.Title})
		}
		return units, nil
	}
	units := make([]stage.Unit, 0, len(scenes)*variants)
	for _, sc := range scenes {
		for v := 0; v < variants; v++ {
			units = append(units, stage.Unit{RefID: stage.VariantRef(sc.ID, v), Target: sc.ID, Variant: v, Label: sc.Title})
		}
	}
	return units, nil
}
