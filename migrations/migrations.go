// Package migrations provides embedded SQL migration files for tasksync.
package migrations

import (
	"embed"
	"fmt"
	"sort"
	"strings"
)

//go:embed *.sql
var migrationFS embed.FS

// ListMigrations returns the embedded migration files sorted by name (001_, 002_, ...).
func ListMigrations() ([]string, error) {
	entries, err := migrationFS.ReadDir(".")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// GetMigrationSQL returns a specific migration file's SQL content.
func GetMigrationSQL(filename string) (string, error) {
	data, err := migrationFS.ReadFile(filename)
	if err != nil {
		return "", fmt.Errorf("failed to read migration file %s: %w", filename, err)
	}
	return string(data), nil
}

// GetAllSQL returns all migration files concatenated in order.
// Every statement is idempotent, so the result can be applied on each start.
func GetAllSQL() (string, error) {
	files, err := ListMigrations()
	if err != nil {
		return "", err
	}

	var builder strings.Builder
	for _, file := range files {
		sql, err := GetMigrationSQL(file)
		if err != nil {
			return "", err
		}
		builder.WriteString(sql)
		builder.WriteString("\n\n")
	}

	return builder.String(), nil
}
