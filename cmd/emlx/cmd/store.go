package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/wesm/emlx/internal/store"
)

// dbPath is the --db override shared by the index commands.
var dbPath string

func addDBFlag(cmd *cobra.Command) {
	cmd.Flags().StringVar(&dbPath, "db", "", "index database (default: [data].database_path or ~/.emlx/emlx.db)")
}

func databasePath() string {
	if dbPath != "" {
		return dbPath
	}
	return cfg.DatabasePath()
}

// openStore opens the index with the schema applied. Unless create is
// set, a missing database is reported instead of silently created.
func openStore(create bool) (*store.Store, error) {
	path := databasePath()
	if !create {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("no index at %s (run 'emlx index' first)", path)
		}
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := st.InitSchema(); err != nil {
		st.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	if !st.FTS5Available() {
		logger.Debug("FTS5 not available; search uses LIKE matching")
	}
	return st, nil
}
