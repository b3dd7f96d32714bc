// Package catalog holds the fixed allow-list of queryable database files and
// resolves user-supplied names against it.
package catalog

import (
	"errors"
	"path/filepath"
	"sort"
	"strings"
)

// Suffix is appended to names that do not already carry it.
const Suffix = ".db"

// ErrNotFound is returned when a name is not on the allow-list.
var ErrNotFound = errors.New("database not found")

// defaultNames is the hard-coded allow-list.
var defaultNames = []string{"chinook.db", "titanic.db", "sakila.db", "sample.db"}

// Catalog is the allow-list of database files, rooted at a directory on disk.
type Catalog struct {
	dir   string
	names map[string]struct{}
}

// New creates a Catalog over the default allow-list. Database files are looked up
// relative to dir; an empty dir means the working directory.
func New(dir string) *Catalog {
	names := make(map[string]struct{}, len(defaultNames))
	for _, name := range defaultNames {
		names[name] = struct{}{}
	}
	return &Catalog{dir: dir, names: names}
}

// Normalize lower-cases raw and appends Suffix if absent. It goes one step past
// a plain case fold: surrounding whitespace and one layer of quotes or
// backticks are dropped too, so `"sakila"` resolves. Nothing inside the name
// is touched, and there is no partial matching.
func Normalize(raw string) string {
	name := strings.TrimSpace(raw)
	name = strings.Trim(name, "\"'`")
	name = strings.ToLower(strings.TrimSpace(name))
	if !strings.HasSuffix(name, Suffix) {
		name += Suffix
	}
	return name
}

// Resolve normalizes raw and returns it when it is on the allow-list.
func (c *Catalog) Resolve(raw string) (string, error) {
	name := Normalize(raw)
	if !c.Contains(name) {
		return "", ErrNotFound
	}
	return name, nil
}

// Contains reports whether name is on the allow-list exactly as given.
func (c *Catalog) Contains(name string) bool {
	_, ok := c.names[name]
	return ok
}

// Names returns the allow-list in sorted order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.names))
	for name := range c.names {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dir returns the directory database files are resolved against.
func (c *Catalog) Dir() string {
	return c.dir
}

// Path returns the on-disk location of name. It does not check existence.
func (c *Catalog) Path(name string) string {
	if c.dir == "" {
		return name
	}
	return filepath.Join(c.dir, name)
}
