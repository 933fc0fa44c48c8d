// Package content loads training modules from CSV or Markdown files.
package content

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/okian/trainingbot/internal/domain/form"
	"github.com/okian/trainingbot/internal/domain/model"
)

// Loader reads the module set for a run.
type Loader interface {
	Load(ctx context.Context, path string) ([]model.TrainingModule, error)
}

// FileLoader reads .csv and .md files, or every such file under a directory.
// Nothing is cached; each call reads the files again.
type FileLoader struct {
	strictTopics bool
}

// Option configures a FileLoader.
type Option func(*FileLoader)

// WithStrictTopics rejects modules whose topic is not a known platform label.
func WithStrictTopics(strict bool) Option {
	return func(l *FileLoader) { l.strictTopics = strict }
}

// NewFileLoader creates a FileLoader.
func NewFileLoader(opts ...Option) *FileLoader {
	l := &FileLoader{}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads modules from path. Read failures are SourceUnavailable, bad
// records FormatError. An empty result is a FormatError.
func (l *FileLoader) Load(ctx context.Context, path string) ([]model.TrainingModule, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, unavailable(path, err)
	}

	files := []string{path}
	if info.IsDir() {
		files, err = discover(path)
		if err != nil {
			return nil, unavailable(path, err)
		}
	}

	var out []model.TrainingModule
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, unavailable(f, err)
		}
		var mods []model.TrainingModule
		switch strings.ToLower(filepath.Ext(f)) {
		case ".csv":
			mods, err = l.loadCSV(f)
		case ".md", ".markdown":
			mods, err = l.loadMarkdown(f)
		default:
			return nil, malformed(f, "unsupported module file type %q", filepath.Ext(f))
		}
		if err != nil {
			return nil, err
		}
		out = append(out, mods...)
	}

	if len(out) == 0 {
		return nil, malformed(path, "no training modules found")
	}
	seen := make(map[string]string, len(out))
	for _, m := range out {
		if prev, dup := seen[m.ID]; dup {
			return nil, malformed(m.Source, "duplicate module id %s (first seen at %s)", m.ID, prev)
		}
		seen[m.ID] = m.Source
	}
	return out, nil
}

func discover(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(p)) {
		case ".csv", ".md", ".markdown":
			files = append(files, p)
		}
		return nil
	})
	sort.Strings(files)
	return files, err
}

// finish validates m and fills in the derived fields.
func (l *FileLoader) finish(m model.TrainingModule) (model.TrainingModule, error) {
	if strings.TrimSpace(m.Topic) == "" {
		return m, malformed(m.Source, "topic (Checkbox Label) is empty")
	}
	if strings.TrimSpace(m.Description) == "" {
		return m, malformed(m.Source, "description is empty")
	}
	if m.ID == "" {
		m.ID = ContentID(m)
	}
	if label, ok := CanonicalTopic(m.Topic); ok {
		m.Topic = label
	} else if l.strictTopics {
		return m, malformed(m.Source, "unknown training type %q", m.Topic)
	}
	if _, err := form.Duration(m.Duration); err != nil {
		return m, malformed(m.Source, "%v", err)
	}
	if _, err := form.Date(m.Date, time.Time{}); err != nil {
		return m, malformed(m.Source, "%v", err)
	}
	if _, err := form.Minutes(m.Time); err != nil {
		return m, malformed(m.Source, "%v", err)
	}
	if m.Title == "" {
		m.Title = m.Topic
	}
	return m, nil
}

// ContentID is the hex SHA-256 of the required fields joined by 0x1f, in
// column order: Location, Checkbox Label, Description, Duration, Date, Time,
// Instructor.
func ContentID(m model.TrainingModule) string {
	sum := sha256.Sum256([]byte(strings.Join([]string{
		m.Location, m.Topic, m.Description, m.Duration, m.Date, m.Time, m.Instructor,
	}, "\x1f")))
	return hex.EncodeToString(sum[:])
}
