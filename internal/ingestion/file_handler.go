package ingestion

import (
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
)

// FileHandler stores uploaded spreadsheets on disk
type FileHandler struct {
	uploadsDir string
}

// NewFileHandler creates a new file handler
func NewFileHandler(uploadsDir string) *FileHandler {
	return &FileHandler{
		uploadsDir: uploadsDir,
	}
}

// SaveUploadedFile saves an uploaded spreadsheet to the uploads directory.
// Only the base name of filename is used.
func (fh *FileHandler) SaveUploadedFile(filename string, content io.Reader) (string, error) {
	name := filepath.Base(filepath.Clean("/" + filename))
	if name == "/" || name == "." {
		return "", eris.Errorf("ingestion: invalid filename %q", filename)
	}
	if !IsSupported(name) {
		return "", eris.Wrapf(ErrUnsupportedFormat, "save %s", name)
	}

	// Ensure uploads directory exists
	if err := os.MkdirAll(fh.uploadsDir, 0755); err != nil {
		return "", eris.Wrap(err, "ingestion: create uploads directory")
	}

	filePath := filepath.Join(fh.uploadsDir, name)
	if rel, err := filepath.Rel(fh.uploadsDir, filePath); err != nil || rel != name {
		return "", eris.Errorf("ingestion: %q escapes the uploads directory", filename)
	}
	file, err := os.Create(filePath)
	if err != nil {
		return "", eris.Wrap(err, "ingestion: create file")
	}
	defer file.Close()

	if _, err := io.Copy(file, content); err != nil {
		return "", eris.Wrap(err, "ingestion: write file")
	}

	return filePath, nil
}

// Remove deletes one stored upload
func (fh *FileHandler) Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return eris.Wrapf(err, "ingestion: remove %s", path)
	}
	return nil
}

// ClearUploads removes all files from the uploads directory
func (fh *FileHandler) ClearUploads() error {
	if err := os.RemoveAll(fh.uploadsDir); err != nil {
		return eris.Wrap(err, "ingestion: clear uploads directory")
	}
	return os.MkdirAll(fh.uploadsDir, 0755)
}
