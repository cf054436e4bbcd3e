// Package storage keeps per-project files on disk and enforces storage quotas
// by measuring the project directory after each write.
package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/and161185/zerobase/internal/errs"
	"github.com/and161185/zerobase/internal/model"
)

// MiB is the unit of quotas and reported usage.
const MiB = 1 << 20

const tempPrefix = ".upload-"

// AllowedTypes are the MIME types accepted for upload, detected from content.
var AllowedTypes = []string{
	"application/pdf",
	"image/png",
	"image/jpeg",
	"image/gif",
	"image/webp",
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// Manager stores files under <root>/<projectID>.
type Manager struct {
	root         string
	maxFileBytes int64
	log          *zap.Logger

	usage     func(dir string) (int64, error)
	available func(path string) (int64, error)
}

// New constructs a Manager. maxFileMB <= 0 means 50.
func New(root string, maxFileMB int64, log *zap.Logger) *Manager {
	if maxFileMB <= 0 {
		maxFileMB = 50
	}
	return &Manager{
		root:         root,
		maxFileBytes: maxFileMB * MiB,
		log:          log,
		usage:        DirSize,
		available:    AvailableBytes,
	}
}

// Dir returns the project's storage directory.
func (m *Manager) Dir(projectID string) string {
	return filepath.Join(m.root, filepath.Base(projectID))
}

// Ensure creates the project's storage directory.
func (m *Manager) Ensure(projectID string) error {
	return os.MkdirAll(m.Dir(projectID), 0o750)
}

// Usage returns the bytes currently stored for the project.
func (m *Manager) Usage(projectID string) (int64, error) {
	return m.usage(m.Dir(projectID))
}

// Available returns the free bytes on the filesystem holding the storage root.
func (m *Manager) Available() (int64, error) {
	return m.available(m.root)
}

// Save writes r as name into the project's directory. The upload lands in a
// temporary file first; usage is then measured and the temporary file is
// removed when the project would exceed quotaBytes. An existing file with the
// same name is replaced only after the check passes.
func (m *Manager) Save(projectID, name string, r io.Reader, quotaBytes int64) (model.FileInfo, error) {
	safe := Sanitize(name)
	if safe == "" {
		return model.FileInfo{}, fmt.Errorf("%w: file name is required", errs.ErrValidation)
	}
	dir := m.Dir(projectID)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return model.FileInfo{}, err
	}

	tmp, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return model.FileInfo{}, err
	}
	tmpPath := tmp.Name()
	keep := false
	defer func() {
		if !keep {
			_ = os.Remove(tmpPath)
		}
	}()

	n, err := io.Copy(tmp, io.LimitReader(r, m.maxFileBytes+1))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return model.FileInfo{}, err
	}
	if n == 0 {
		return model.FileInfo{}, fmt.Errorf("%w: no file uploaded", errs.ErrValidation)
	}
	if n > m.maxFileBytes {
		return model.FileInfo{}, fmt.Errorf("%w: file exceeds the %d MB limit", errs.ErrValidation, m.maxFileBytes/MiB)
	}

	mt, err := mimetype.DetectFile(tmpPath)
	if err != nil {
		return model.FileInfo{}, err
	}
	if !mimetype.EqualsAny(mt.String(), AllowedTypes...) {
		return model.FileInfo{}, fmt.Errorf("%w: unsupported file type: %s", errs.ErrValidation, mt.String())
	}

	dst := filepath.Join(dir, safe)
	used, err := m.usage(dir)
	if err != nil {
		return model.FileInfo{}, err
	}
	// a replaced file stops counting once the upload takes its place
	if prev, err := os.Lstat(dst); err == nil && prev.Mode().IsRegular() {
		used -= prev.Size()
	}
	if used > quotaBytes {
		m.log.Info("upload rolled back: quota exceeded",
			zap.String("project_id", projectID), zap.Int64("used_bytes", used), zap.Int64("quota_bytes", quotaBytes))
		return model.FileInfo{}, fmt.Errorf("%w. Used: %d MB / %d MB", errs.ErrQuotaExceeded, used/MiB, quotaBytes/MiB)
	}

	if err := os.Rename(tmpPath, dst); err != nil {
		return model.FileInfo{}, err
	}
	keep = true

	info, err := stat(dst)
	if err != nil {
		return model.FileInfo{}, err
	}
	info.MimeType = mt.String()
	return info, nil
}

// List returns the project's files sorted by name. A missing directory is empty.
func (m *Manager) List(projectID string) ([]model.FileInfo, error) {
	entries, err := os.ReadDir(m.Dir(projectID))
	if errors.Is(err, fs.ErrNotExist) {
		return []model.FileInfo{}, nil
	}
	if err != nil {
		return nil, err
	}
	out := make([]model.FileInfo, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), tempPrefix) {
			continue
		}
		info, err := stat(filepath.Join(m.Dir(projectID), e.Name()))
		if err != nil {
			continue
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Open opens a stored file for reading.
func (m *Manager) Open(projectID, name string) (*os.File, model.FileInfo, error) {
	p, err := m.path(projectID, name)
	if err != nil {
		return nil, model.FileInfo{}, err
	}
	info, err := stat(p)
	if err != nil {
		return nil, model.FileInfo{}, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, model.FileInfo{}, err
	}
	return f, info, nil
}

// Delete removes a stored file.
func (m *Manager) Delete(projectID, name string) error {
	p, err := m.path(projectID, name)
	if err != nil {
		return err
	}
	err = os.Remove(p)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: file not found", errs.ErrNotFound)
	}
	return err
}

func (m *Manager) path(projectID, name string) (string, error) {
	safe := Sanitize(name)
	if safe == "" || safe != name || strings.HasPrefix(safe, tempPrefix) {
		return "", fmt.Errorf("%w: file not found", errs.ErrNotFound)
	}
	return filepath.Join(m.Dir(projectID), safe), nil
}

// Sanitize replaces every character outside [A-Za-z0-9._-] with '_' and
// refuses names made only of dots.
func Sanitize(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	s := unsafeChars.ReplaceAllString(name, "_")
	if strings.Trim(s, ".") == "" {
		return ""
	}
	return s
}

func stat(p string) (model.FileInfo, error) {
	st, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return model.FileInfo{}, fmt.Errorf("%w: file not found", errs.ErrNotFound)
	}
	if err != nil {
		return model.FileInfo{}, err
	}
	return model.FileInfo{
		Name:       st.Name(),
		SizeBytes:  st.Size(),
		SizeMB:     float64(st.Size()*100/MiB) / 100,
		ModifiedAt: st.ModTime(),
		Ext:        strings.ToLower(filepath.Ext(st.Name())),
	}, nil
}

// DirSize sums the sizes of regular files below dir. A missing dir is 0.
func DirSize(dir string) (int64, error) {
	var total int64
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		total += info.Size()
		return nil
	})
	return total, err
}
