package datastore

import (
	"os"
	"path/filepath"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tphakala/trackid-go/internal/conf"
	"github.com/tphakala/trackid-go/internal/errors"
)

func sqliteDialector(cfg conf.SQLiteSettings) (gorm.Dialector, error) {
	if cfg.Path == "" {
		return nil, errors.Newf("sqlite path is empty").
			Component("datastore").
			Category(errors.CategoryConfiguration).
			Build()
	}
	// in-memory databases have no directory to create
	if cfg.Path != ":memory:" && !isURIPath(cfg.Path) {
		if dir := filepath.Dir(cfg.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, errors.New(err).
					Component("datastore").
					Category(errors.CategoryFileIO).
					Context("path", dir).
					Build()
			}
		}
	}
	return sqlite.Open(cfg.Path), nil
}

func isURIPath(p string) bool {
	return strings.HasPrefix(p, "file:")
}
