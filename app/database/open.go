package database

import (
	"errors"
	"fmt"
	"strings"
)

const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
)

var ErrUnknownDriver = errors.New("unknown state driver")

// Open returns the store for driver, keeping at most limit ids.
func Open(driver, path string, limit int) (SeenStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("state path is required")
	}

	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", DriverFile:
		return NewFileStore(path, limit), nil
	case DriverSQLite, "sqlite3":
		return NewSQLiteStore(path, limit)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, driver)
	}
}
