package stages

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"plotline/internal/jobs"
	"plotline/internal/library"
	"plotline/internal/services"
	"plotline/internal/services/textanalysis"
	"plotline/internal/stage"
)

// ImageGeneration renders images-per-scene illustrations for every scene.
type ImageGeneration struct {
	library   *library.Store
	generator ImageGenerator
	blobs     BlobStore
}

// NewImageGeneration constructs the images stage.
func NewImageGeneration(lib *library.Store, generator ImageGenerator, blobs BlobStore) *ImageGeneration {
	return &ImageGeneration{library: lib, generator: generator, blobs: blobs}
}

func (s *ImageGeneration) Name() jobs.Stage { return jobs.StageImages }

func (s *ImageGeneration) Plan(ctx context.Context, run stage.Run) ([]stage.Unit, error) {
	return planScenes(ctx, s.library, s.Name(), run, max(run.ImagesPerScene, 1))
}

func (s *ImageGeneration) Execute(ctx context.Context, run stage.Run, unit stage.Unit) (stage.Result, error) {
	scene, err := s.library.Scene(ctx, unit.Target)
	if err != nil {
		return stage.Result{}, libraryError(s.Name(), "load scene", err)
	}
	prompt := strings.TrimSpace(scene.Prompt)
	if prompt == "" {
		// Scenes that skipped the prompt stage fall back to their summary.
		fallback := strings.TrimSpace(scene.Summary)
		if fallback == "" {
			fallback = strings.TrimSpace(scene.Title)
		}
		if fallback == "" {
			return stage.Result{}, stage.Fail(services.ErrValidation, s.Name(), "generate", "scene has no prompt", nil)
		}
		prompt = textanalysis.ComposePrompt(fallback, run.StylePreset)
	}

	img, err := s.generator.Generate(ctx, prompt, run.StylePreset)
	if err != nil {
		return stage.Result{}, err
	}
	if err := run.Checkpoint(); err != nil {
		return stage.Result{}, err
	}

	key := fmt.Sprintf("%s/%s-%d%s", run.ProjectID, scene.ID, unit.Variant, extensionFor(img.MimeType))
	size, err := s.blobs.Put(key, bytes.NewReader(img.Data))
	if err != nil {
		return stage.Result{}, stage.Fail(services.ErrTransient, s.Name(), "store image", "", err)
	}
	asset := &library.ImageAsset{
		SceneID:       scene.ID,
		Variant:       unit.Variant,
		Prompt:        prompt,
		StylePreset:   run.StylePreset,
		BlobKey:       key,
		MimeType:      img.MimeType,
		SizeBytes:     size,
		Model:         img.Model,
		RevisedPrompt: img.RevisedPrompt,
		JobID:         run.JobID,
	}
	if err := s.library.SaveImage(ctx, asset); err != nil {
		return stage.Result{}, libraryError(s.Name(), "save image", err)
	}
	return stage.Result{Produced: 1, Detail: key}, nil
}

func (s *ImageGeneration) HealthCheck(context.Context) stage.Health {
	if s.generator == nil || !s.generator.Configured() {
		return stage.Unhealthy(string(s.Name()), "image model not configured")
	}
	if s.blobs == nil {
		return stage.Unhealthy(string(s.Name()), "image storage not configured")
	}
	return stage.Healthy(string(s.Name()))
}

func extensionFor(mime string) string {
	switch strings.ToLower(strings.TrimSpace(mime)) {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".bin"
	}
}
