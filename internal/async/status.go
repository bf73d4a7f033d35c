// Package async provides background processing infrastructure for the
// indexing daemon.
package async

import (
	"sync"
	"time"
)

// IndexingStatus represents the overall indexing state.
type IndexingStatus string

const (
	// StatusIndexing indicates indexing is in progress.
	StatusIndexing IndexingStatus = "indexing"
	// StatusReady indicates indexing is complete and search is available.
	StatusReady IndexingStatus = "ready"
	// StatusError indicates indexing failed with an error.
	StatusError IndexingStatus = "error"
)

// IndexingStage represents the current stage of the indexing process.
type IndexingStage string

const (
	// StageLoading indicates the manifest load-and-diff phase.
	StageLoading IndexingStage = "loading"
	// StageEmbedding indicates the embedding generation phase.
	StageEmbedding IndexingStage = "embedding"
	// StageIndexing indicates the index building phase.
	StageIndexing IndexingStage = "indexing"
)

// IndexProgressSnapshot is an immutable snapshot of indexing progress.
type IndexProgressSnapshot struct {
	Status         string  `json:"status"`
	Stage          string  `json:"stage"`
	SkillsTotal    int     `json:"skills_total"`
	SkillsLoaded   int     `json:"skills_loaded"`
	ToolsTotal     int     `json:"tools_total"`
	ToolsIndexed   int     `json:"tools_indexed"`
	ProgressPct    float64 `json:"progress_pct"`
	ElapsedSeconds int     `json:"elapsed_seconds"`
	ErrorMessage   string  `json:"error_message,omitempty"`
}

// IndexProgress provides thread-safe tracking of indexing progress.
type IndexProgress struct {
	mu sync.RWMutex

	status       IndexingStatus
	stage        IndexingStage
	skillsTotal  int
	skillsLoaded int
	toolsTotal   int
	toolsIndexed int
	startTime    time.Time
	errorMessage string
}

// NewIndexProgress creates a new progress tracker initialized for indexing.
func NewIndexProgress() *IndexProgress {
	return &IndexProgress{
		status:    StatusIndexing,
		stage:     StageLoading,
		startTime: time.Now(),
	}
}

// SetStage updates the current indexing stage and resets the total count.
func (p *IndexProgress) SetStage(stage IndexingStage, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stage = stage
	p.skillsTotal = total
}

// UpdateSkills updates the number of skills loaded.
func (p *IndexProgress) UpdateSkills(loaded int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.skillsLoaded = loaded
}

// SetToolsTotal sets the total number of tool documents to process.
func (p *IndexProgress) SetToolsTotal(total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.toolsTotal = total
}

// UpdateTools updates the number of indexed tool documents.
func (p *IndexProgress) UpdateTools(indexed int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.toolsIndexed = indexed
}

// SetError marks the indexing as failed with an error message.
func (p *IndexProgress) SetError(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status = StatusError
	p.errorMessage = message
}

// SetReady marks the indexing as complete and ready for search.
func (p *IndexProgress) SetReady() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status = StatusReady
}

// IsIndexing returns true if indexing is still in progress.
func (p *IndexProgress) IsIndexing() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.status == StatusIndexing
}

// Snapshot returns an immutable copy of the current progress state.
func (p *IndexProgress) Snapshot() IndexProgressSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var progressPct float64
	if p.skillsTotal > 0 {
		progressPct = float64(p.skillsLoaded) / float64(p.skillsTotal) * 100.0
	}

	return IndexProgressSnapshot{
		Status:         string(p.status),
		Stage:          string(p.stage),
		SkillsTotal:    p.skillsTotal,
		SkillsLoaded:   p.skillsLoaded,
		ToolsTotal:     p.toolsTotal,
		ToolsIndexed:   p.toolsIndexed,
		ProgressPct:    progressPct,
		ElapsedSeconds: int(time.Since(p.startTime).Seconds()),
		ErrorMessage:   p.errorMessage,
	}
}
