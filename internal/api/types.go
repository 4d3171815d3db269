package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// JobOptions mirrors the per-job knobs chosen at start.
type JobOptions struct {
	ImagesPerScene int    `json:"imagesPerScene"`
	StylePreset    string `json:"stylePreset"`
	Language       string `json:"language"`
}

// Job describes a generation job in a transport-friendly format.
type Job struct {
	ID              string     `json:"id"`
	ProjectID       string     `json:"projectId"`
	Type            string     `json:"type"`
	Stages          []string   `json:"stages"`
	Status          string     `json:"status"`
	CurrentStage    string     `json:"currentStage,omitempty"`
	Progress        int        `json:"progress"`
	PartialSuccess  bool       `json:"partialSuccess"`
	ErrorMessage    string     `json:"errorMessage,omitempty"`
	CancelRequested bool       `json:"cancelRequested"`
	Options         JobOptions `json:"options"`
	CreatedAt       string     `json:"createdAt,omitempty"`
	UpdatedAt       string     `json:"updatedAt,omitempty"`
	StartedAt       string     `json:"startedAt,omitempty"`
	FinishedAt      string     `json:"finishedAt,omitempty"`
	Version         int64      `json:"version"`
}

// Terminal reports whether the job reached a final state.
func (j Job) Terminal() bool {
	switch j.Status {
	case "succeeded", "failed", "canceled":
		return true
	default:
		return false
	}
}

// Item describes one unit of work of a job stage.
type Item struct {
	ID           string `json:"id"`
	JobID        string `json:"jobId"`
	Stage        string `json:"stage"`
	RefID        string `json:"refId"`
	Status       string `json:"status"`
	Attempts     int    `json:"attempts"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	CreatedAt    string `json:"createdAt,omitempty"`
	UpdatedAt    string `json:"updatedAt,omitempty"`
	FinishedAt   string `json:"finishedAt,omitempty"`
}

// StartJobOptions is the options object of a start request.
type StartJobOptions struct {
	ImagesPerScene int `json:"imagesPerScene,omitempty"`
}

// StartJobRequest is the body of a start call.
type StartJobRequest struct {
	ManuscriptText string          `json:"manuscriptText,omitempty"`
	StylePreset    string          `json:"stylePreset,omitempty"`
	Language       string          `json:"language,omitempty"`
	Type           string          `json:"type,omitempty"`
	Stages         []string        `json:"stages,omitempty"`
	Options        StartJobOptions `json:"options"`
}

// JobResponse wraps a single job.
type JobResponse struct {
	Job Job `json:"job"`
}

// JobListResponse wraps a project's job history.
type JobListResponse struct {
	Jobs []Job `json:"jobs"`
}

// ItemListResponse wraps item history.
type ItemListResponse struct {
	Items []Item `json:"items"`
}

// CancelResponse acknowledges a cancel call.
type CancelResponse struct {
	Acknowledged bool `json:"acknowledged"`
}

// StageHealth mirrors readiness reporting for pipeline stages.
type StageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// WorkflowStatus summarizes workflow execution state.
type WorkflowStatus struct {
	Running     bool          `json:"running"`
	ActiveJobs  int           `json:"activeJobs"`
	QueuedJobs  int           `json:"queuedJobs"`
	LastError   string        `json:"lastError,omitempty"`
	StageHealth []StageHealth `json:"stageHealth"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool           `json:"running"`
	PID          int            `json:"pid"`
	DatabasePath string         `json:"databasePath"`
	LockFilePath string         `json:"lockFilePath"`
	Workflow     WorkflowStatus `json:"workflow"`
}

// Character is a project character.
type Character struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Aliases     []string `json:"aliases,omitempty"`
}

// Chapter is a project chapter. The text is omitted from listings.
type Chapter struct {
	ID    string `json:"id"`
	Index int    `json:"index"`
	Title string `json:"title"`
	Words int    `json:"words"`
}

// Scene is a project scene with its linked characters and prompt.
type Scene struct {
	ID           string   `json:"id"`
	ChapterID    string   `json:"chapterId"`
	ChapterIndex int      `json:"chapterIndex"`
	Index        int      `json:"index"`
	Title        string   `json:"title"`
	Summary      string   `json:"summary,omitempty"`
	Prompt       string   `json:"prompt,omitempty"`
	CharacterIDs []string `json:"characterIds"`
}

// Image is a generated illustration.
type Image struct {
	ID            string `json:"id"`
	SceneID       string `json:"sceneId"`
	Variant       int    `json:"variant"`
	Prompt        string `json:"prompt"`
	StylePreset   string `json:"stylePreset,omitempty"`
	BlobKey       string `json:"blobKey"`
	MimeType      string `json:"mimeType"`
	SizeBytes     int64  `json:"sizeBytes"`
	Model         string `json:"model,omitempty"`
	RevisedPrompt string `json:"revisedPrompt,omitempty"`
	CreatedAt     string `json:"createdAt,omitempty"`
}

// CharacterListResponse wraps a project's characters.
type CharacterListResponse struct {
	Characters []Character `json:"characters"`
}

// ChapterListResponse wraps a project's chapters.
type ChapterListResponse struct {
	Chapters []Chapter `json:"chapters"`
}

// SceneListResponse wraps a project's scenes.
type SceneListResponse struct {
	Scenes []Scene `json:"scenes"`
}

// ImageListResponse wraps a project's images.
type ImageListResponse struct {
	Images []Image `json:"images"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
