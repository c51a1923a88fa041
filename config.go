package ntt

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config holds the copy engine's environment-driven settings. Every
// field maps to one env var so workers, the recovery tool, and tests
// can all source configuration the same way, following the teacher's
// plain-struct LoadConfiguration shape.
type Config struct {
	// DatabaseURL is a libpq-style connection string for pgxpool.
	DatabaseURL string

	// ImageRoot is the read-only root under which mounted/imaged media
	// appear, e.g. /mnt/ntt-images/{medium_hash}.
	ImageRoot string

	// ByHashRoot is the content-addressed blob store root (C3).
	ByHashRoot string

	// ArchiveRoot is the root under which the archive directory tree
	// (hardlinked to ByHashRoot) is published.
	ArchiveRoot string

	// IgnorePatterns is the list of glob patterns read from the file
	// named by NTT_IGNORE_PATTERNS; Excluded reports whether a path
	// matches one. The copier itself does not filter on them.
	IgnorePatterns []string

	// WorkerID identifies this process in claimed_by and log lines.
	WorkerID string

	// BatchSize is the number of inodes claimed per work-claim round (C4).
	BatchSize int

	// RedisAddr, if non-empty, backs the blob-existence cache with
	// Redis; when empty no cache is used. Optional: the blob store
	// works correctly, just with more filesystem stats, when unset.
	RedisAddr string
}

const (
	envDatabaseURL    = "NTT_DB_URL"
	envImageRoot      = "IMAGE_ROOT"
	envByHashRoot     = "BYHASH_ROOT"
	envArchiveRoot    = "ARCHIVE_ROOT"
	envIgnorePatterns = "NTT_IGNORE_PATTERNS"
	envWorkerID       = "NTT_WORKER_ID"
	envBatchSize      = "NTT_BATCH_SIZE"
	envRedisAddr      = "NTT_REDIS_ADDR"

	defaultBatchSize = 100
)

// LoadConfig reads the engine's configuration from the environment.
// WorkerID defaults to "host:pid" when NTT_WORKER_ID is unset, and
// BatchSize defaults to 100.
func LoadConfig() (Config, error) {
	c := Config{
		DatabaseURL: os.Getenv(envDatabaseURL),
		ImageRoot:   os.Getenv(envImageRoot),
		ByHashRoot:  os.Getenv(envByHashRoot),
		ArchiveRoot: os.Getenv(envArchiveRoot),
		WorkerID:    os.Getenv(envWorkerID),
		BatchSize:   defaultBatchSize,
		RedisAddr:   os.Getenv(envRedisAddr),
	}

	for _, name := range []string{envDatabaseURL, envImageRoot, envByHashRoot, envArchiveRoot} {
		if os.Getenv(name) == "" {
			return Config{}, fmt.Errorf("missing required environment variable %s", name)
		}
	}

	if file := os.Getenv(envIgnorePatterns); file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return Config{}, fmt.Errorf("read %s file: %w", envIgnorePatterns, err)
		}
		for _, p := range strings.Split(string(data), "\n") {
			p = strings.TrimSpace(p)
			if p != "" && !strings.HasPrefix(p, "#") {
				c.IgnorePatterns = append(c.IgnorePatterns, p)
			}
		}
	}

	if raw := os.Getenv(envBatchSize); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("invalid %s: %q", envBatchSize, raw)
		}
		c.BatchSize = n
	}

	if c.WorkerID == "" {
		host, err := os.Hostname()
		if err != nil {
			host = "unknown"
		}
		c.WorkerID = fmt.Sprintf("%s:%d", host, os.Getpid())
	}

	return c, nil
}

// Excluded reports whether path matches any configured ignore pattern.
// A pattern matches if it is a literal substring of relPath or if it
// matches any path component via filepath.Match (e.g. "*.tmp",
// "lost+found").
func (c Config) Excluded(relPath string) bool {
	for _, pat := range c.IgnorePatterns {
		if strings.Contains(relPath, pat) {
			return true
		}
		for _, component := range strings.Split(relPath, string(os.PathSeparator)) {
			if ok, _ := filepath.Match(pat, component); ok {
				return true
			}
		}
	}
	return false
}
