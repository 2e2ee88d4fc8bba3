//nolint:revive // test package mirrors the helper package name.
package shared

import (
	"errors"
	"fmt"
	"testing"
)

func TestSQLiteErrorStringFallback(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		busy     bool
		locked   bool
		conflict bool
		unique   bool
	}{
		{name: "nil", err: nil},
		{name: "busy", err: errors.New("step: SQLITE_BUSY"), busy: true, conflict: true},
		{name: "locked", err: fmt.Errorf("exec: %w", errors.New("database is locked")), locked: true, conflict: true},
		{name: "unique", err: errors.New("UNIQUE constraint failed: issues.conversation_id"), unique: true},
		{name: "other", err: errors.New("no such table: users")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsSQLiteBusyError(tt.err); got != tt.busy {
				t.Errorf("IsSQLiteBusyError() = %v, want %v", got, tt.busy)
			}
			if got := IsSQLiteLockedError(tt.err); got != tt.locked {
				t.Errorf("IsSQLiteLockedError() = %v, want %v", got, tt.locked)
			}
			if got := IsSQLiteConflictError(tt.err); got != tt.conflict {
				t.Errorf("IsSQLiteConflictError() = %v, want %v", got, tt.conflict)
			}
			if got := IsSQLiteUniqueError(tt.err); got != tt.unique {
				t.Errorf("IsSQLiteUniqueError() = %v, want %v", got, tt.unique)
			}
		})
	}
}
