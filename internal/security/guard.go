// Package security gates filesystem access to a set of allowed areas before
// the record store reads or writes a path.
package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// ErrPathNotAllowed is returned when a path falls outside every allowed area.
var ErrPathNotAllowed = errors.New("path not allowed")

// Operations passed to Guard.Check.
const (
	OpRead   = "read"
	OpWrite  = "write"
	OpDelete = "delete"
)

// Guard decides whether an operation on a path may proceed.
type Guard interface {
	Check(path, op string) error
}

// AllowAll permits every path.
type AllowAll struct{}

// Check always succeeds.
func (AllowAll) Check(string, string) error { return nil }

// AreaGuard allows paths that resolve inside one of its areas.
type AreaGuard struct {
	areas  []string
	logger *zap.Logger
}

// NewAreaGuard builds a guard over the given areas. A leading "~" is expanded
// to the user's home directory and every area is made absolute.
func NewAreaGuard(areas []string, logger *zap.Logger) (*AreaGuard, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &AreaGuard{logger: logger}
	for _, area := range areas {
		area = strings.TrimSpace(area)
		if area == "" {
			continue
		}
		abs, err := resolve(area)
		if err != nil {
			return nil, fmt.Errorf("invalid allowed area %q: %w", area, err)
		}
		g.areas = append(g.areas, abs)
	}
	if len(g.areas) == 0 {
		return nil, fmt.Errorf("at least one allowed area is required")
	}
	return g, nil
}

// Areas returns the resolved allowed areas.
func (g *AreaGuard) Areas() []string {
	return append([]string(nil), g.areas...)
}

// Check returns ErrPathNotAllowed unless path is inside an allowed area.
func (g *AreaGuard) Check(path, op string) error {
	abs, err := resolve(path)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrPathNotAllowed, op, path, err)
	}
	for _, area := range g.areas {
		if within(area, abs) {
			g.logger.Debug("path allowed", zap.String("op", op), zap.String("path", abs))
			return nil
		}
	}
	g.logger.Warn("path rejected", zap.String("op", op), zap.String("path", abs))
	return fmt.Errorf("%w: %s %s", ErrPathNotAllowed, op, abs)
}

func resolve(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return filepath.Abs(path)
}

func within(area, path string) bool {
	rel, err := filepath.Rel(area, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
