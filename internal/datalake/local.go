package datalake

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore keeps each area in its own directory.
type LocalStore struct {
	rawDir       string
	processedDir string
}

// NewLocalStore returns a store rooted at the given directories. Nothing is
// created until Init is called.
func NewLocalStore(rawDir, processedDir string) *LocalStore {
	return &LocalStore{
		rawDir:       filepath.Clean(rawDir),
		processedDir: filepath.Clean(processedDir),
	}
}

func (s *LocalStore) Init(ctx context.Context) error {
	for _, dir := range []string{s.rawDir, s.processedDir} {
		if strings.TrimSpace(dir) == "" || dir == "." {
			return errors.New("data lake directory is not configured")
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("ensure data lake directory %s: %w", dir, err)
		}
	}
	log.Printf("[datalake] using raw=%s processed=%s", s.rawDir, s.processedDir)
	return nil
}

// Put writes through a temp file and renames it into place so readers never
// observe a partial file.
func (s *LocalStore) Put(ctx context.Context, area Area, name string, data []byte) error {
	dir, err := s.dir(area, name)
	if err != nil {
		return err
	}

	tempFile, err := os.CreateTemp(dir, "."+name+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tempPath := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = tempFile.Close()
			_ = os.Remove(tempPath)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tempFile.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", name, err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Rename(tempPath, filepath.Join(dir, name)); err != nil {
		return fmt.Errorf("promote %s: %w", name, err)
	}
	cleanup = false
	return nil
}

func (s *LocalStore) Get(ctx context.Context, area Area, name string) ([]byte, error) {
	dir, err := s.dir(area, name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s/%s", ErrNotExist, area, name)
		}
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}

func (s *LocalStore) dir(area Area, name string) (string, error) {
	if err := validateName(area, name); err != nil {
		return "", err
	}
	if area == AreaRaw {
		return s.rawDir, nil
	}
	return s.processedDir, nil
}
