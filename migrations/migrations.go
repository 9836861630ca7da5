// Package migrations embeds the SQL schema applied by the test harnesses and
// the pipelinectl migrate command.
package migrations

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

//go:embed *.sql
var files embed.FS

// File is one migration script.
type File struct {
	Name string
	SQL  string
}

// Files returns the migration scripts ordered by name.
func Files() ([]File, error) {
	names, err := fs.Glob(files, "*.sql")
	if err != nil {
		return nil, fmt.Errorf("migrations: glob: %w", err)
	}
	sort.Strings(names)

	out := make([]File, 0, len(names))
	for _, name := range names {
		data, err := files.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("migrations: read %s: %w", name, err)
		}
		out = append(out, File{Name: name, SQL: string(data)})
	}
	return out, nil
}

// All concatenates every migration script in order.
func All() (string, error) {
	list, err := Files()
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, f := range list {
		b.WriteString(f.SQL)
		b.WriteString("\n")
	}
	return b.String(), nil
}
