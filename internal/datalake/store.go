// Package datalake holds the raw and processed file areas of the pipeline.
package datalake

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

// Area names one of the two file areas.
type Area string

const (
	// AreaRaw holds unmodified fetched partner files.
	AreaRaw Area = "raw"
	// AreaProcessed holds normalized CSV counterparts.
	AreaProcessed Area = "processed"
)

// ErrNotExist is returned when a requested file is absent from the store.
var ErrNotExist = errors.New("data lake file does not exist")

// Store persists pipeline files by area and name.
type Store interface {
	// Init creates or reuses the backing locations. It must be called once at startup.
	Init(ctx context.Context) error
	Put(ctx context.Context, area Area, name string, data []byte) error
	Get(ctx context.Context, area Area, name string) ([]byte, error)
}

func validateName(area Area, name string) error {
	switch area {
	case AreaRaw, AreaProcessed:
	default:
		return fmt.Errorf("unknown data lake area %q", area)
	}
	if strings.TrimSpace(name) == "" {
		return errors.New("file name is required")
	}
	if name != path.Base(name) || name == "." || name == ".." || strings.Contains(name, `\`) {
		return fmt.Errorf("invalid file name %q", name)
	}
	return nil
}
