package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/robalyx/repbot/pkg/utils"
	"go.uber.org/zap"
)

// LoadLocations reads the location list used by the forum checker.
// Relative names resolve against configPath. A missing file is logged and yields an
// empty list, which turns location matching off.
func LoadLocations(configPath, name string, logger *zap.Logger) ([]string, error) {
	path := name
	if !filepath.IsAbs(path) && configPath != "" {
		path = filepath.Join(configPath, name)
	}

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Warn("Locations file not found, location matching disabled", zap.String("path", path))
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open locations file: %w", err)
	}
	defer f.Close()

	locations, err := utils.ReadListLines(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read locations file: %w", err)
	}

	logger.Info("Loaded locations", zap.String("path", path), zap.Int("count", len(locations)))

	return locations, nil
}
