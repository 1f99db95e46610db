package state

import (
	"fmt"

	"github.com/rowjay/tzwindow/internal/config"
)

// NewStorage builds the snapshot backend named by cfg.Backend.
func NewStorage(cfg config.StateConfig) (Storage, error) {
	switch cfg.Backend {
	case "local", "":
		return NewLocal(cfg.Local.Path), nil
	case "s3":
		if cfg.S3.Endpoint == "" || cfg.S3.Bucket == "" {
			return nil, fmt.Errorf("state: s3 endpoint and bucket are required")
		}
		return NewS3(cfg.S3)
	default:
		return nil, fmt.Errorf("state: unsupported backend: %s", cfg.Backend)
	}
}
