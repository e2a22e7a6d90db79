package app

import (
	"flag"
	"log"
	"os"
	"path/filepath"
	"time"
)

const (
	defaultStorePath = "chat.db"
	defaultMediaDir  = "media"
	defaultBackupDir = "backups"
)

// Config holds runtime settings derived from CLI flags and the
// environment.
type Config struct {
	DataDir   string
	StoreDB   string
	MediaDir  string
	BackupDir string

	ListenAddr string
	RelayURL   string
	RelayToken string
	ProbeURL   string
	ProbeEvery time.Duration

	SenderID   string
	ReceiverID string
	Passphrase string
	PageSize   int

	PromoteEvery time.Duration
	DatabaseURL  string
}

// LoadConfig parses CLI flags and returns a populated Config.
func LoadConfig() *Config {
	cfg := &Config{}

	flag.StringVar(&cfg.DataDir, "data-dir", "chat-data", "base directory for local state")
	flag.StringVar(&cfg.StoreDB, "store-db", defaultStorePath, "path to the message store db")
	flag.StringVar(&cfg.MediaDir, "media-dir", defaultMediaDir, "directory for permanent media storage")
	flag.StringVar(&cfg.BackupDir, "backup-dir", defaultBackupDir, "staging directory for backup archives")
	flag.StringVar(&cfg.ListenAddr, "listen", "127.0.0.1:8090", "address the API listens on")
	flag.StringVar(&cfg.RelayURL, "relay", "http://127.0.0.1:8000", "message relay base url")
	flag.StringVar(&cfg.RelayToken, "relay-token", "", "bearer token for the relay")
	flag.StringVar(&cfg.ProbeURL, "probe", "", "url probed for reachability (defaults to the relay)")
	flag.DurationVar(&cfg.ProbeEvery, "probe-every", 10*time.Second, "interval between reachability probes")
	flag.StringVar(&cfg.SenderID, "sender", "me", "local participant id")
	flag.StringVar(&cfg.ReceiverID, "receiver", "", "remote participant id")
	flag.StringVar(&cfg.Passphrase, "passphrase", "", "passphrase for AES-256 encryption at rest")
	flag.IntVar(&cfg.PageSize, "page-size", 50, "timeline page size")
	flag.DurationVar(&cfg.PromoteEvery, "promote-every", 15*time.Second, "interval between scheduled-message checks")

	flag.Parse()

	if cfg.ProbeURL == "" {
		cfg.ProbeURL = cfg.RelayURL
	}
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")

	cfg.ensureDirs()
	return cfg
}

func (cfg *Config) ensureDirs() {
	if cfg.DataDir == "" {
		cfg.DataDir = "chat-data"
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatalf("init data dir: %v", err)
	}
	if cfg.StoreDB == defaultStorePath {
		cfg.StoreDB = filepath.Join(cfg.DataDir, "chat.db")
	}
	if cfg.MediaDir == defaultMediaDir {
		cfg.MediaDir = filepath.Join(cfg.DataDir, "media")
	}
	if cfg.BackupDir == defaultBackupDir {
		cfg.BackupDir = filepath.Join(cfg.DataDir, "backups")
	}
	if err := os.MkdirAll(cfg.BackupDir, 0o755); err != nil {
		log.Fatalf("prepare backup dir: %v", err)
	}
}
