// package repositories provides sqlite persistence for cached resolutions and run summaries.
package repositories

import (
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("record not found")

// requireOneRow checks that an UPDATE or DELETE touched exactly one row.
func requireOneRow(result sql.Result, what string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}

// boolToInt maps a bool onto sqlite's integer booleans.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
