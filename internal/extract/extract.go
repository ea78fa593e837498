// Package extract pulls plain text out of local files and directories
// so it can be fed to the completion API. Adapters cover plain text,
// source code, JSON, HTML, and PDF. Unsupported kinds (video needs a
// remote transcription service) yield a user-visible notice instead of
// text.
package extract

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsupportedType marks a file extension no adapter handles.
var ErrUnsupportedType = errors.New("unsupported file type")

// textExtensions are read verbatim: plain text, markup, and source code.
var textExtensions = map[string]bool{
	".txt": true, ".md": true, ".csv": true, ".yml": true, ".yaml": true,
	".go": true, ".py": true, ".js": true, ".jsx": true, ".ts": true,
	".tsx": true, ".cpp": true, ".cc": true, ".c": true, ".h": true,
	".hh": true, ".cs": true, ".css": true, ".kt": true, ".swift": true,
	".java": true, ".php": true, ".rs": true, ".rb": true, ".sh": true,
	".proto": true, ".sql": true, ".toml": true,
}

// Service extracts text from files. Stateless apart from its logger.
type Service struct {
	logger *slog.Logger
}

// NewService creates an extraction service.
func NewService(logger *slog.Logger) *Service {
	return &Service{logger: logger}
}

// Supported reports whether any adapter handles the path's extension.
func Supported(path string) bool {
	switch ext := strings.ToLower(filepath.Ext(path)); {
	case textExtensions[ext]:
		return true
	case ext == ".json", ext == ".html", ext == ".htm", ext == ".pdf":
		return true
	default:
		return false
	}
}

// Extract returns the text content of one file. Missing files surface
// fs.ErrNotExist; extensions without an adapter surface
// ErrUnsupportedType. Adapter failures are logged and reported.
func (s *Service) Extract(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("extract %s: is a directory (use ExtractDir)", path)
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case textExtensions[ext]:
		return s.extractFile(path, func(data []byte) (string, error) {
			return string(data), nil
		})
	case ext == ".json":
		return s.extractFile(path, extractJSON)
	case ext == ".html", ext == ".htm":
		return s.extractFile(path, func(data []byte) (string, error) {
			return extractHTML(string(data)), nil
		})
	case ext == ".pdf":
		text, err := extractPDF(path)
		if err != nil {
			s.logger.Error("pdf extraction failed", "path", path, "error", err)
			return "", fmt.Errorf("extract %s: %w", path, err)
		}
		return text, nil
	default:
		return "", fmt.Errorf("extract %s: %w (%s)", path, ErrUnsupportedType, ext)
	}
}

// extractFile reads the file and applies the adapter.
func (s *Service) extractFile(path string, adapt func([]byte) (string, error)) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		s.logger.Error("read failed", "path", path, "error", err)
		return "", fmt.Errorf("extract %s: %w", path, err)
	}
	text, err := adapt(data)
	if err != nil {
		s.logger.Error("extraction failed", "path", path, "error", err)
		return "", fmt.Errorf("extract %s: %w", path, err)
	}
	return text, nil
}

// ExtractAll extracts every path in the batch, combining what
// succeeded and collecting a notice per failed path. Partial success
// is expected for mixed batches.
func (s *Service) ExtractAll(paths []string) (string, []string) {
	var combined strings.Builder
	var notices []string

	for _, path := range paths {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}

		text, err := s.Extract(path)
		if err != nil {
			notices = append(notices, noticeFor(path, err))
			continue
		}
		if combined.Len() > 0 {
			combined.WriteString("\n")
		}
		combined.WriteString(text)
	}

	return combined.String(), notices
}

// ExtractDir walks dir and combines text from every supported file.
// Unsupported files are skipped with a notice. Each file's text is
// preceded by its relative path so the model can tell sources apart.
func (s *Service) ExtractDir(dir string) (string, []string, error) {
	var combined strings.Builder
	var notices []string

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			// Skip hidden directories like .git.
			if name := d.Name(); name != "." && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}

		if !Supported(path) {
			s.logger.Info("skipping unsupported file", "path", path)
			notices = append(notices, noticeFor(path, ErrUnsupportedType))
			return nil
		}

		text, err := s.Extract(path)
		if err != nil {
			notices = append(notices, noticeFor(path, err))
			return nil
		}

		rel, relErr := filepath.Rel(dir, path)
		if relErr != nil {
			rel = path
		}
		if combined.Len() > 0 {
			combined.WriteString("\n")
		}
		combined.WriteString(rel)
		combined.WriteString(".\n")
		combined.WriteString(text)
		return nil
	})
	if err != nil {
		return "", notices, fmt.Errorf("walk %s: %w", dir, err)
	}

	return combined.String(), notices, nil
}

// noticeFor renders a per-path failure as a user-visible line.
func noticeFor(path string, err error) string {
	switch {
	case errors.Is(err, ErrUnsupportedType):
		return fmt.Sprintf("I can't process the file: %s", path)
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Sprintf("The file does not exist: %s", path)
	default:
		return fmt.Sprintf("Could not read the file %s: %v", path, err)
	}
}

// extractJSON validates and re-indents JSON so the model sees a
// consistent layout.
func extractJSON(data []byte) (string, error) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return "", fmt.Errorf("indent json: %w", err)
	}
	return buf.String(), nil
}
