package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// migrationFileRe pins the filename contract: a 14-digit UTC timestamp
// version followed by a snake_case name.
var migrationFileRe = regexp.MustCompile(`^(\d{14})_([a-z0-9_]+)\.sql$`)

const (
	versionTimeLayout = "20060102150405"

	gooseUpMarker    = "-- +goose Up"
	gooseDownMarker  = "-- +goose Down"
	gooseBeginMarker = "-- +goose StatementBegin"
	gooseEndMarker   = "-- +goose StatementEnd"
)

const migrationSkeleton = gooseUpMarker + `
` + gooseBeginMarker + `
-- %[1]s
` + gooseEndMarker + `

` + gooseDownMarker + `
` + gooseBeginMarker + `
-- revert %[1]s
` + gooseEndMarker + `
`

// CreateSQLMigration writes an empty goose SQL migration skeleton into dir
// and returns its path. The name is lowered to snake_case; a name with no
// usable characters is rejected rather than silently mangled.
func CreateSQLMigration(dir, name string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("dir is required")
	}
	slug := slugify(name)
	if slug == "" {
		return "", fmt.Errorf("migration name %q has no usable characters", name)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create migrations dir: %w", err)
	}

	filename := time.Now().UTC().Format(versionTimeLayout) + "_" + slug + ".sql"
	path := filepath.Join(dir, filename)
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("migration %s already exists", path)
	}

	if err := os.WriteFile(path, []byte(fmt.Sprintf(migrationSkeleton, slug)), 0o644); err != nil {
		return "", fmt.Errorf("write migration: %w", err)
	}
	return path, nil
}

// slugify lowercases the name and folds every run of non [a-z0-9]
// characters into a single underscore.
func slugify(name string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		isWord := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if !isWord {
			pendingSep = b.Len() > 0
			continue
		}
		if pendingSep {
			b.WriteByte('_')
			pendingSep = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ValidateDir checks every .sql file in dir against the filename contract
// and the goose annotations goose needs to run it. An empty directory is an
// error: this repo always ships its schema migration.
func ValidateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	byVersion := map[string]string{}
	checked := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}

		m := migrationFileRe.FindStringSubmatch(name)
		if m == nil {
			return fmt.Errorf("migration %q does not match <YYYYMMDDHHMMSS>_<snake_case>.sql", name)
		}
		if prev, dup := byVersion[m[1]]; dup {
			return fmt.Errorf("migrations %q and %q share version %s", prev, name, m[1])
		}
		byVersion[m[1]] = name

		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("read migration %q: %w", name, err)
		}
		if err := checkAnnotations(name, string(raw)); err != nil {
			return err
		}
		checked++
	}

	if checked == 0 {
		return fmt.Errorf("no SQL migrations in %q", dir)
	}
	return nil
}

func checkAnnotations(name, sql string) error {
	up := strings.Index(sql, gooseUpMarker)
	down := strings.Index(sql, gooseDownMarker)
	switch {
	case up < 0:
		return fmt.Errorf("migration %q is missing %q", name, gooseUpMarker)
	case down < 0:
		return fmt.Errorf("migration %q is missing %q", name, gooseDownMarker)
	case down < up:
		return fmt.Errorf("migration %q has its Down section before Up", name)
	}

	begins := strings.Count(sql, gooseBeginMarker)
	ends := strings.Count(sql, gooseEndMarker)
	if begins != ends {
		return fmt.Errorf("migration %q has %d StatementBegin but %d StatementEnd markers", name, begins, ends)
	}
	return nil
}
