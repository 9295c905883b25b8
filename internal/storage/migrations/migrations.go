// Package migrations applies the embedded Postgres and ClickHouse schemas.
package migrations

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
)

// PostgresFS holds the Postgres schema scripts, applied once each.
//
//go:embed postgres/*.sql
var PostgresFS embed.FS

// ClickhouseFS holds the ClickHouse schema scripts, re-run on every start.
//
//go:embed clickhouse/*.sql
var ClickhouseFS embed.FS

// script is one embedded migration file.
type script struct {
	Version string // file name up to the first underscore, e.g. "001"
	Name    string
	SQL     string
}

// scripts returns the non-empty .sql files under dir in lexical order.
func scripts(fsys fs.FS, dir string) ([]script, error) {
	paths, err := fs.Glob(fsys, dir+"/*.sql")
	if err != nil {
		return nil, fmt.Errorf("list %s migrations: %w", dir, err)
	}
	sort.Strings(paths)

	out := make([]script, 0, len(paths))
	for _, p := range paths {
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", p, err)
		}
		if strings.TrimSpace(string(data)) == "" {
			continue
		}
		name := path.Base(p)
		version, _, _ := strings.Cut(strings.TrimSuffix(name, ".sql"), "_")
		out = append(out, script{Version: version, Name: name, SQL: string(data)})
	}
	return out, nil
}
