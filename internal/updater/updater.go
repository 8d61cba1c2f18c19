// Package updater replaces the running binary with a newer release.
package updater

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/creativeprojects/go-selfupdate"

	"github.com/smazurov/camfleet/internal/logging"
	"github.com/smazurov/camfleet/internal/version"
)

// Error codes for update operations.
const (
	ErrCodeCheckFailed    = "CHECK_FAILED"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeNoUpdate       = "NO_UPDATE"
	ErrCodeBackupFailed   = "BACKUP_FAILED"
	ErrCodeApplyFailed    = "APPLY_FAILED"
	ErrCodeNoBackup       = "NO_BACKUP"
	ErrCodeRollbackFailed = "ROLLBACK_FAILED"
)

// Error is an update failure with a code.
type Error struct {
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func newError(code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// HasCode reports whether err is an *Error with code.
func HasCode(err error, code string) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

// Options configures an Updater.
type Options struct {
	// Repository is the GitHub slug releases are fetched from.
	Repository string
	Prerelease bool
	// BackupDir keeps the previous binary. Default /var/lib/camfleet/backup.
	BackupDir  string
	// Executable overrides the path of the binary to replace.
	Executable string
}

// Info describes the newest release relative to the running binary.
type Info struct {
	CurrentVersion  string    `json:"current_version"`
	LatestVersion   string    `json:"latest_version"`
	ReleaseNotes    string    `json:"release_notes,omitempty"`
	ReleaseURL      string    `json:"release_url,omitempty"`
	PublishedAt     time.Time `json:"published_at"`
	UpdateAvailable bool      `json:"update_available"`
}

// releaseSource is the part of selfupdate.Updater used here.
type releaseSource interface {
	DetectLatest(ctx context.Context, repository selfupdate.Repository) (*selfupdate.Release, bool, error)
	UpdateTo(ctx context.Context, rel *selfupdate.Release, cmdPath string) error
}

// Updater checks, applies and rolls back releases.
type Updater struct {
	repo    selfupdate.Repository
	source  releaseSource
	exe     string
	backups *backupStore
	logger  *slog.Logger
}

// New creates an updater backed by GitHub releases.
func New(opts Options) (*Updater, error) {
	if opts.Repository == "" {
		return nil, errors.New("updater: repository is required")
	}
	if opts.BackupDir == "" {
		opts.BackupDir = "/var/lib/camfleet/backup"
	}

	source, err := selfupdate.NewGitHubSource(selfupdate.GitHubConfig{})
	if err != nil {
		return nil, fmt.Errorf("create GitHub source: %w", err)
	}
	up, err := selfupdate.NewUpdater(selfupdate.Config{
		Source:     source,
		Prerelease: opts.Prerelease,
	})
	if err != nil {
		return nil, fmt.Errorf("create updater: %w", err)
	}

	exe := opts.Executable
	if exe == "" {
		if exe, err = selfupdate.ExecutablePath(); err != nil {
			return nil, fmt.Errorf("locate executable: %w", err)
		}
	}

	logger := logging.GetLogger("updater")
	return &Updater{
		repo:    selfupdate.ParseSlug(opts.Repository),
		source:  up,
		exe:     exe,
		backups: newBackupStore(opts.BackupDir, logger),
		logger:  logger,
	}, nil
}

// Check looks up the latest release without downloading it.
func (u *Updater) Check(ctx context.Context) (Info, *selfupdate.Release, error) {
	current := version.Version

	release, found, err := u.source.DetectLatest(ctx, u.repo)
	if err != nil {
		return Info{}, nil, newError(ErrCodeCheckFailed, "failed to check for updates", err)
	}
	if !found {
		return Info{}, nil, newError(ErrCodeNotFound, "repository not found or has no releases", nil)
	}

	// Development builds always take the latest release.
	newer := current == "dev" || release.GreaterThan(current)

	info := Info{
		CurrentVersion:  current,
		LatestVersion:   release.Version(),
		ReleaseNotes:    release.ReleaseNotes,
		ReleaseURL:      release.URL,
		PublishedAt:     release.PublishedAt,
		UpdateAvailable: newer,
	}
	return info, release, nil
}

// Apply installs the latest release over the executable after backing it
// up. A failed install restores the backup. The caller restarts the service.
func (u *Updater) Apply(ctx context.Context) (Info, error) {
	info, release, err := u.Check(ctx)
	if err != nil {
		return info, err
	}
	if !info.UpdateAvailable {
		return info, newError(ErrCodeNoUpdate, "already running "+info.CurrentVersion, nil)
	}

	if err := u.backups.save(u.exe, info.CurrentVersion); err != nil {
		return info, newError(ErrCodeBackupFailed, "failed to back up executable", err)
	}

	u.logger.Info("Applying update", "from", info.CurrentVersion, "to", info.LatestVersion)
	if err := u.source.UpdateTo(ctx, release, u.exe); err != nil {
		if restoreErr := u.backups.restore(u.exe); restoreErr != nil {
			u.logger.Error("Automatic rollback failed", "error", restoreErr)
		}
		return info, newError(ErrCodeApplyFailed, "failed to apply update", err)
	}
	return info, nil
}

// Rollback restores the backed up binary.
func (u *Updater) Rollback() (Backup, error) {
	b, ok := u.backups.current()
	if !ok {
		return Backup{}, newError(ErrCodeNoBackup, "no backup available", nil)
	}
	if err := u.backups.restore(u.exe); err != nil {
		return b, newError(ErrCodeRollbackFailed, "failed to restore backup", err)
	}
	return b, nil
}

// Backup returns the stored backup, if any.
func (u *Updater) Backup() (Backup, bool) {
	return u.backups.current()
}
