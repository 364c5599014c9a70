package stewardd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"cronosquity/native/steward"
)

// FileScoreSource reads submission scores from one JSON file per program,
// named <programID>.json, each holding an array of score entries. A missing
// file means the program has no submissions yet.
type FileScoreSource struct {
	dir string
}

// NewFileScoreSource constructs a score source rooted at dir.
func NewFileScoreSource(dir string) *FileScoreSource {
	return &FileScoreSource{dir: dir}
}

// Scores loads the ranked submissions for the supplied program.
func (s *FileScoreSource) Scores(_ context.Context, programID uint64) ([]steward.ScoreEntry, error) {
	path := filepath.Join(s.dir, fmt.Sprintf("%d.json", programID))
	contents, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read scores: %w", err)
	}
	var entries []steward.ScoreEntry
	if err := json.Unmarshal(contents, &entries); err != nil {
		return nil, fmt.Errorf("parse scores %s: %w", path, err)
	}
	return entries, nil
}
