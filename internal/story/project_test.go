package story

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeProjectFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "project.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadProject(t *testing.T) {
	path := writeProjectFile(t, `{
		"id": "novel",
		"setting": {"genre": "maritime fantasy"},
		"roster": [{"name": "Ava"}],
		"task": {"chapter": 6, "title": "The Crossing"},
		"chapters": [
			{"chapter": 1, "title": "Arrival", "summary": "Mara arrives.", "text": "The boat came in at dusk."}
		]
	}`)

	p, err := LoadProject(path)
	require.NoError(t, err)
	assert.Equal(t, "novel", p.ID)
	assert.Equal(t, "maritime fantasy", p.Setting.Genre)
	require.Len(t, p.Chapters, 1)
	require.NotNil(t, p.Task)
	assert.Equal(t, 6, p.Task.Chapter)
}

func TestLoadProjectMissingID(t *testing.T) {
	path := writeProjectFile(t, `{"setting": {}}`)

	_, err := LoadProject(path)
	assert.ErrorIs(t, err, ErrMissingProjectID)
}

func TestLoadProjectBadJSON(t *testing.T) {
	path := writeProjectFile(t, `{not json`)

	_, err := LoadProject(path)
	assert.Error(t, err)
}

func TestLoadProjectMissingFile(t *testing.T) {
	_, err := LoadProject(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestProjectTotalChapters(t *testing.T) {
	p := &Project{
		Chapters: []ChapterContent{{Chapter: 3}, {Chapter: 1}},
	}
	assert.Equal(t, 3, p.TotalChapters())

	p.Task = &WritingTask{Chapter: 7}
	assert.Equal(t, 7, p.TotalChapters())

	assert.Equal(t, 0, (&Project{}).TotalChapters())
}
