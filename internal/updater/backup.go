package updater

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

const (
	backupFilename     = "camfleet.backup"
	backupInfoFilename = "backup.json"
)

// Backup describes the saved previous binary.
type Backup struct {
	Version   string    `json:"version"`
	CreatedAt time.Time `json:"created_at"`
}

type backupStore struct {
	dir    string
	logger *slog.Logger
}

func newBackupStore(dir string, logger *slog.Logger) *backupStore {
	return &backupStore{dir: dir, logger: logger}
}

func (s *backupStore) binaryPath() string {
	return filepath.Join(s.dir, backupFilename)
}

// current reads the backup metadata; a missing binary means no backup.
func (s *backupStore) current() (Backup, bool) {
	data, err := os.ReadFile(filepath.Join(s.dir, backupInfoFilename))
	if err != nil {
		return Backup{}, false
	}
	var b Backup
	if err := json.Unmarshal(data, &b); err != nil {
		s.logger.Warn("Failed to parse backup info", "error", err)
		return Backup{}, false
	}
	if _, err := os.Stat(s.binaryPath()); err != nil {
		s.logger.Warn("Backup file missing", "path", s.binaryPath())
		return Backup{}, false
	}
	return b, true
}

func (s *backupStore) save(exe, currentVersion string) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create backup directory: %w", err)
	}
	if err := copyFile(exe, s.binaryPath()); err != nil {
		return err
	}

	data, err := json.Marshal(Backup{Version: currentVersion, CreatedAt: time.Now()})
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(s.dir, backupInfoFilename), data, 0o644); err != nil {
		return fmt.Errorf("write backup info: %w", err)
	}
	s.logger.Info("Backup created", "version", currentVersion, "path", s.binaryPath())
	return nil
}

func (s *backupStore) restore(exe string) error {
	if err := copyFile(s.binaryPath(), exe); err != nil {
		return err
	}
	s.logger.Info("Backup restored", "path", exe)
	return nil
}

// copyFile writes src to a temporary file beside dst and renames it over
// dst, so a running binary is replaced rather than truncated.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".camfleet-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}
	if err := tmp.Chmod(0o755); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}
