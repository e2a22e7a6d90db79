package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"offline-chat/internal/message"
)

var (
	// ErrBackupFailed wraps the underlying cause of an aborted backup.
	ErrBackupFailed = errors.New("backup failed")
	// ErrBackupNotFound reports a restore from a missing archive.
	ErrBackupNotFound = errors.New("backup not found")
	// ErrInvalidBackup reports an archive without a messages file.
	ErrInvalidBackup = errors.New("invalid backup")
)

const messagesFile = "messages.json"

// Metadata describes a completed backup. Created only on success,
// never mutated.
type Metadata struct {
	Timestamp    time.Time `json:"timestamp"`
	MessageCount int       `json:"message_count"`
	MediaCount   int       `json:"media_count"`
	Size         int64     `json:"size"`
}

// Exporter offers a finished archive to the platform's share/export
// surface. Optional.
type Exporter interface {
	Export(ctx context.Context, archivePath string) error
}

// MediaImporter places a restored media file into permanent storage
// and returns its new location.
type MediaImporter interface {
	Import(src string) (string, error)
}

// Engine packages conversation history plus referenced media into a
// portable tar.gz archive, and restores state from one. All staging
// happens under workDir and is removed on every exit path.
type Engine struct {
	workDir  string
	exporter Exporter
}

// NewEngine builds an engine staging under workDir.
func NewEngine(workDir string, exporter Exporter) *Engine {
	return &Engine{workDir: workDir, exporter: exporter}
}

// Create serializes messages, copies every referenced media file into a
// staging area, packages the area into a tar.gz archive, exports it,
// and returns the backup metadata. Any step failure aborts the whole
// operation with a wrapped ErrBackupFailed; staging state is cleaned up
// on success, failure, and cancellation alike.
func (e *Engine) Create(ctx context.Context, msgs []message.Message, mediaRefs []string) (Metadata, error) {
	staging := filepath.Join(e.workDir, fmt.Sprintf("backup-%d", time.Now().UnixNano()))
	defer func() {
		if err := os.RemoveAll(staging); err != nil {
			log.Printf("backup: removing staging dir: %v", err)
		}
	}()

	meta, archive, err := e.create(ctx, staging, msgs, mediaRefs)
	if err != nil {
		if archive != "" {
			_ = os.Remove(archive)
		}
		return Metadata{}, fmt.Errorf("%w: %w", ErrBackupFailed, err)
	}

	if e.exporter != nil {
		if err := e.exporter.Export(ctx, archive); err != nil {
			_ = os.Remove(archive)
			return Metadata{}, fmt.Errorf("%w: export: %w", ErrBackupFailed, err)
		}
	}
	if err := os.Remove(archive); err != nil {
		log.Printf("backup: removing archive copy: %v", err)
	}
	return meta, nil
}

func (e *Engine) create(ctx context.Context, staging string, msgs []message.Message, mediaRefs []string) (Metadata, string, error) {
	if err := ctx.Err(); err != nil {
		return Metadata{}, "", err
	}
	if msgs == nil {
		msgs = []message.Message{}
	}
	mediaDir := filepath.Join(staging, "media")
	if err := os.MkdirAll(mediaDir, 0o755); err != nil {
		return Metadata{}, "", err
	}

	data, err := json.MarshalIndent(msgs, "", "  ")
	if err != nil {
		return Metadata{}, "", err
	}
	if err := os.WriteFile(filepath.Join(staging, messagesFile), data, 0o600); err != nil {
		return Metadata{}, "", err
	}

	for _, ref := range mediaRefs {
		if err := ctx.Err(); err != nil {
			return Metadata{}, "", err
		}
		name := filepath.Base(ref)
		if err := copyFile(ref, filepath.Join(mediaDir, name)); err != nil {
			return Metadata{}, "", fmt.Errorf("copying media %s: %w", ref, err)
		}
	}

	if err := ctx.Err(); err != nil {
		return Metadata{}, "", err
	}
	archive := filepath.Join(e.workDir, fmt.Sprintf("chat_backup_%s.tar.gz", time.Now().UTC().Format("20060102T150405")))
	if err := packDir(staging, archive); err != nil {
		return Metadata{}, archive, err
	}
	info, err := os.Stat(archive)
	if err != nil {
		return Metadata{}, archive, err
	}

	return Metadata{
		Timestamp:    time.Now().UTC(),
		MessageCount: len(msgs),
		MediaCount:   len(mediaRefs),
		Size:         info.Size(),
	}, archive, nil
}

// Restore unpacks an archive, validates it, and places its media files
// into permanent storage via the importer. Validation happens before
// any permanent write: a missing archive yields ErrBackupNotFound and a
// missing messages file yields ErrInvalidBackup, both with zero media
// imported.
func (e *Engine) Restore(ctx context.Context, archivePath string, importer MediaImporter) ([]message.Message, []string, error) {
	if _, err := os.Stat(archivePath); err != nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrBackupNotFound, archivePath)
	}

	staging := filepath.Join(e.workDir, fmt.Sprintf("restore-%d", time.Now().UnixNano()))
	defer func() {
		if err := os.RemoveAll(staging); err != nil {
			log.Printf("restore: removing staging dir: %v", err)
		}
	}()

	if err := unpackArchive(archivePath, staging); err != nil {
		return nil, nil, fmt.Errorf("%w: unpack: %v", ErrInvalidBackup, err)
	}

	data, err := os.ReadFile(filepath.Join(staging, messagesFile))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s missing", ErrInvalidBackup, messagesFile)
	}
	var msgs []message.Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, nil, fmt.Errorf("%w: %s unreadable: %v", ErrInvalidBackup, messagesFile, err)
	}

	var restored []string
	entries, err := os.ReadDir(filepath.Join(staging, "media"))
	if err != nil && !os.IsNotExist(err) {
		return nil, nil, fmt.Errorf("%w: listing media: %w", ErrBackupFailed, err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, nil, fmt.Errorf("%w: %w", ErrBackupFailed, err)
		}
		placed, err := importer.Import(filepath.Join(staging, "media", entry.Name()))
		if err != nil {
			return nil, nil, fmt.Errorf("%w: importing media %s: %w", ErrBackupFailed, entry.Name(), err)
		}
		restored = append(restored, placed)
	}
	return msgs, restored, nil
}
