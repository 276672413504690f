package story

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Common errors for project loading
var (
	ErrMissingProjectID = errors.New("project file has no id")
	ErrMissingTask      = errors.New("project file has no task")
)

// ChapterContent is one already-written chapter carried in a project file.
type ChapterContent struct {
	Chapter int    `json:"chapter"`
	Title   string `json:"title,omitempty"`
	Summary string `json:"summary,omitempty"`
	Text    string `json:"text"`
}

// Project is the on-disk input for the CLI: the full story state plus the
// chapters written so far. Everything except the ID is optional.
type Project struct {
	ID       string           `json:"id"`
	Setting  Setting          `json:"setting"`
	Roster   []Character      `json:"roster,omitempty"`
	Threads  []PlotThread     `json:"threads,omitempty"`
	Analysis *ChapterAnalysis `json:"analysis,omitempty"`
	Task     *WritingTask     `json:"task,omitempty"`
	Chapters []ChapterContent `json:"chapters,omitempty"`
}

// LoadProject reads and validates a project JSON file.
func LoadProject(path string) (*Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read project file: %w", err)
	}
	var p Project
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse project file %s: %w", path, err)
	}
	if p.ID == "" {
		return nil, ErrMissingProjectID
	}
	return &p, nil
}

// TotalChapters returns the highest chapter number present in the project,
// considering both written chapters and the pending task.
func (p *Project) TotalChapters() int {
	total := 0
	for _, ch := range p.Chapters {
		if ch.Chapter > total {
			total = ch.Chapter
		}
	}
	if p.Task != nil && p.Task.Chapter > total {
		total = p.Task.Chapter
	}
	return total
}
