package narrative

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"storyroom-server/shared/interfaces"
	"storyroom-server/shared/models"
)

var _ interfaces.StorySource = (*FSSource)(nil)

// FSSource reads <dir>/<storyId>.json.
type FSSource struct {
	dir string
}

func NewFSSource(dir string) *FSSource {
	return &FSSource{dir: dir}
}

func (s *FSSource) Load(_ context.Context, storyID string) ([]byte, error) {
	if err := validateStoryID(storyID); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.dir, storyID+".json"))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: story %s", models.ErrNotFound, storyID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read story %s: %w", storyID, err)
	}
	return data, nil
}

func validateStoryID(storyID string) error {
	if storyID == "" || strings.ContainsAny(storyID, `/\`) || strings.Contains(storyID, "..") {
		return fmt.Errorf("%w: story id %q", models.ErrInvalid, storyID)
	}
	return nil
}

// StoryIDs lists the stories present in the directory.
func (s *FSSource) StoryIDs() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list stories in %s: %w", s.dir, err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), ".json"))
	}
	return ids, nil
}
