package converter

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// scratch tracks the files of one invocation under a fresh uuid prefix.
type scratch struct {
	dir    string
	prefix string
	files  []string
}

func newScratch(dir string) *scratch {
	if dir == "" {
		dir = os.TempDir()
	}
	return &scratch{dir: dir, prefix: uuid.NewString()}
}

// path returns <dir>/<prefix><suffix> and schedules it for removal.
func (s *scratch) path(suffix string) string {
	p := filepath.Join(s.dir, s.prefix+suffix)
	s.files = append(s.files, p)
	return p
}

func (s *scratch) write(suffix string, data []byte) (string, error) {
	p := s.path(suffix)
	if err := os.WriteFile(p, data, 0o600); err != nil {
		return "", fmt.Errorf("write scratch file: %w", err)
	}
	return p, nil
}

func (s *scratch) cleanup() {
	for _, p := range s.files {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			log.Printf("[converter] failed to remove %s: %v", p, err)
		}
	}
	s.files = nil
}
