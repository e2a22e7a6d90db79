package backup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"offline-chat/internal/message"
)

// captureExporter copies the archive aside so tests can restore from it
// after the engine removes its own copy.
type captureExporter struct {
	dest string
	err  error
}

func (e *captureExporter) Export(_ context.Context, archivePath string) error {
	if e.err != nil {
		return e.err
	}
	return copyFile(archivePath, e.dest)
}

type fakeImporter struct {
	dir      string
	imported []string
	err      error
}

func (f *fakeImporter) Import(src string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	dst := filepath.Join(f.dir, filepath.Base(src))
	if err := copyFile(src, dst); err != nil {
		return "", err
	}
	f.imported = append(f.imported, dst)
	return dst, nil
}

func stagingEntries(t *testing.T, workDir string) []string {
	t.Helper()
	entries, err := os.ReadDir(workDir)
	if err != nil {
		t.Fatalf("reading work dir: %v", err)
	}
	var names []string
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), "backup-") || strings.HasPrefix(entry.Name(), "restore-") {
			names = append(names, entry.Name())
		}
	}
	return names
}

func fixtureMedia(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing fixture %s: %v", name, err)
	}
	return path
}

func TestCreateAndRestoreRoundTrip(t *testing.T) {
	workDir := t.TempDir()
	srcDir := t.TempDir()
	archiveCopy := filepath.Join(t.TempDir(), "kept.tar.gz")
	exporter := &captureExporter{dest: archiveCopy}
	engine := NewEngine(workDir, exporter)

	media := fixtureMedia(t, srcDir, "photo.png", "png-bytes")
	msgs := []message.Message{message.New("alice", "bob", "hello"), message.New("bob", "alice", "hi back")}

	meta, err := engine.Create(context.Background(), msgs, []string{media})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if meta.MessageCount != 2 || meta.MediaCount != 1 {
		t.Fatalf("unexpected metadata %+v", meta)
	}
	if meta.Size <= 0 {
		t.Fatalf("expected positive archive size, got %d", meta.Size)
	}
	if len(stagingEntries(t, workDir)) != 0 {
		t.Fatal("staging residue left after successful backup")
	}

	importer := &fakeImporter{dir: t.TempDir()}
	restored, mediaFiles, err := engine.Restore(context.Background(), archiveCopy, importer)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if len(restored) != 2 || restored[0].Content() != "hello" {
		t.Fatalf("unexpected restored messages %+v", restored)
	}
	if len(mediaFiles) != 1 {
		t.Fatalf("expected 1 restored media file, got %v", mediaFiles)
	}
	data, err := os.ReadFile(mediaFiles[0])
	if err != nil || string(data) != "png-bytes" {
		t.Fatalf("restored media unreadable: %v", err)
	}
	if len(stagingEntries(t, workDir)) != 0 {
		t.Fatal("staging residue left after restore")
	}
}

func TestCreateCleansUpOnFailure(t *testing.T) {
	workDir := t.TempDir()
	engine := NewEngine(workDir, nil)

	_, err := engine.Create(context.Background(), nil, []string{filepath.Join(workDir, "does-not-exist.png")})
	if !errors.Is(err, ErrBackupFailed) {
		t.Fatalf("expected ErrBackupFailed, got %v", err)
	}
	if len(stagingEntries(t, workDir)) != 0 {
		t.Fatal("staging residue left after failed backup")
	}
}

func TestCreateTwiceLeavesNoResidue(t *testing.T) {
	workDir := t.TempDir()
	engine := NewEngine(workDir, nil)
	msgs := []message.Message{message.New("alice", "bob", "repeat")}

	for i := 0; i < 2; i++ {
		if _, err := engine.Create(context.Background(), msgs, nil); err != nil {
			t.Fatalf("Create pass %d: %v", i, err)
		}
		if len(stagingEntries(t, workDir)) != 0 {
			t.Fatalf("staging residue after pass %d", i)
		}
	}
	// The engine removes its archive copy after export too.
	entries, _ := os.ReadDir(workDir)
	if len(entries) != 0 {
		t.Fatalf("work dir not empty after backups: %v", entries)
	}
}

func TestCreateSurfacesExportFailure(t *testing.T) {
	workDir := t.TempDir()
	engine := NewEngine(workDir, &captureExporter{err: errors.New("share sheet dismissed")})

	_, err := engine.Create(context.Background(), []message.Message{message.New("a", "b", "x")}, nil)
	if !errors.Is(err, ErrBackupFailed) {
		t.Fatalf("expected ErrBackupFailed, got %v", err)
	}
	entries, _ := os.ReadDir(workDir)
	if len(entries) != 0 {
		t.Fatalf("expected archive and staging removed after export failure, got %v", entries)
	}
}

func TestCreateHonorsCancellation(t *testing.T) {
	workDir := t.TempDir()
	engine := NewEngine(workDir, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.Create(ctx, []message.Message{message.New("a", "b", "x")}, nil)
	if !errors.Is(err, ErrBackupFailed) {
		t.Fatalf("expected ErrBackupFailed on cancellation, got %v", err)
	}
	if len(stagingEntries(t, workDir)) != 0 {
		t.Fatal("staging residue left after cancelled backup")
	}
}

func TestRestoreMissingArchive(t *testing.T) {
	engine := NewEngine(t.TempDir(), nil)
	_, _, err := engine.Restore(context.Background(), "/nowhere/backup.tar.gz", &fakeImporter{dir: t.TempDir()})
	if !errors.Is(err, ErrBackupNotFound) {
		t.Fatalf("expected ErrBackupNotFound, got %v", err)
	}
}

func TestRestoreRejectsArchiveWithoutMessagesFile(t *testing.T) {
	workDir := t.TempDir()
	engine := NewEngine(workDir, nil)

	// Build an archive that carries media but no messages.json.
	bogusDir := filepath.Join(t.TempDir(), "contents")
	if err := os.MkdirAll(filepath.Join(bogusDir, "media"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	fixtureMedia(t, filepath.Join(bogusDir, "media"), "leak.png", "bytes")
	archive := filepath.Join(t.TempDir(), "bogus.tar.gz")
	if err := packDir(bogusDir, archive); err != nil {
		t.Fatalf("packDir: %v", err)
	}

	importer := &fakeImporter{dir: t.TempDir()}
	_, _, err := engine.Restore(context.Background(), archive, importer)
	if !errors.Is(err, ErrInvalidBackup) {
		t.Fatalf("expected ErrInvalidBackup, got %v", err)
	}
	if len(importer.imported) != 0 {
		t.Fatalf("media imported before validation passed: %v", importer.imported)
	}
	if len(stagingEntries(t, workDir)) != 0 {
		t.Fatal("staging residue left after invalid restore")
	}
}
