// Package storage defines the output vault file-system abstraction.
package storage

import (
	"time"

	"github.com/starford/craftmd/internal/models"
)

// Provider is the interface for vault file operations. Paths are
// slash-separated and relative to the vault root.
type Provider interface {
	// List returns metadata for every .md file under dir.
	List(dir string) ([]models.FileMetadata, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path, creating parent directories.
	Write(path string, content []byte) error
	// Delete removes the file at path.
	Delete(path string) error
	// Exists reports whether a regular file exists at path.
	Exists(path string) (bool, error)
	// SetTimes sets the access and modification times of path.
	SetTimes(path string, atime, mtime time.Time) error
	// Abs returns the absolute file-system path of path.
	Abs(path string) (string, error)
}
