// Package sql carries the versioned warehouse DDL. The loader executes the
// statements in file order at startup; every statement is idempotent.
package sql

import (
	"embed"
	"fmt"
	"sort"
)

//go:embed *.sql
var files embed.FS

// Statements returns the DDL file contents in apply order.
func Statements() ([]string, error) {
	entries, err := files.ReadDir(".")
	if err != nil {
		return nil, fmt.Errorf("read ddl dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}

	sort.Strings(names)

	statements := make([]string, 0, len(names))

	for _, name := range names {
		content, readErr := files.ReadFile(name)
		if readErr != nil {
			return nil, fmt.Errorf("read ddl %s: %w", name, readErr)
		}

		statements = append(statements, string(content))
	}

	return statements, nil
}
