package archive

import (
	"fmt"
	"os"
	"strings"
)

const (
	ModeOff    = "off"
	ModeMemory = "memory"
	ModeDB     = "db"
)

const defaultSQLitePath = "data/chupistica_archive.db"

func archiveModeFromEnv() string {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv("ARCHIVE_MODE")))
	switch raw {
	case "", ModeMemory, "mem":
		return ModeMemory
	case ModeOff, "none", "disabled":
		return ModeOff
	case ModeDB, "sqlite", "postgres", "postgresql":
		return ModeDB
	default:
		return raw
	}
}

func archiveDSNFromEnv() string {
	if v := strings.TrimSpace(os.Getenv("ARCHIVE_DATABASE_URL")); v != "" {
		return v
	}
	return strings.TrimSpace(os.Getenv("DATABASE_URL"))
}

func archiveSQLitePathFromEnv() string {
	if v := strings.TrimSpace(os.Getenv("ARCHIVE_SQLITE_PATH")); v != "" {
		return v
	}
	return defaultSQLitePath
}

// NewStoreFromEnv builds the archive backend selected by ARCHIVE_MODE. In db
// mode a PostgreSQL DSN (ARCHIVE_DATABASE_URL or DATABASE_URL) wins over the
// SQLite file at ARCHIVE_SQLITE_PATH. Mode "off" returns a nil Store.
func NewStoreFromEnv() (Store, string, error) {
	mode := archiveModeFromEnv()

	switch mode {
	case ModeOff:
		return nil, mode, nil
	case ModeMemory:
		return NewMemoryStore(), mode, nil
	case ModeDB:
		if dsn := archiveDSNFromEnv(); dsn != "" {
			store, err := NewPostgresStore(dsn)
			if err != nil {
				return nil, mode, err
			}
			return store, mode, nil
		}
		store, err := NewSQLiteStore(archiveSQLitePathFromEnv())
		if err != nil {
			return nil, mode, err
		}
		return store, mode, nil
	default:
		return nil, mode, fmt.Errorf("invalid ARCHIVE_MODE %q (supported: %s, %s, %s)", mode, ModeOff, ModeMemory, ModeDB)
	}
}
