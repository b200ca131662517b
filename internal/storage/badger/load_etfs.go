package badger

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/folio/internal/interfaces"
	"github.com/ternarybob/folio/internal/models"
)

// LoadETFSeeds loads ETF metadata from JSON files in the seed directory and
// upserts them into the metadata collection. Each file holds an array of
// metadata records. A missing directory is not an error.
func LoadETFSeeds(ctx context.Context, dir string, storage interfaces.ETFStorage, logger arbor.ILogger) (int, error) {
	if dir == "" {
		return 0, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Debug().Str("dir", dir).Msg("ETF seed directory not found, skipping")
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read ETF seed directory %s: %w", dir, err)
	}

	total := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn().Err(err).Str("file", path).Msg("Failed to read ETF seed file")
			continue
		}

		var etfs []*models.ETFMetadata
		if err := json.Unmarshal(data, &etfs); err != nil {
			logger.Warn().Err(err).Str("file", path).Msg("Failed to parse ETF seed file")
			continue
		}

		count, err := storage.Seed(ctx, etfs)
		if err != nil {
			logger.Warn().Err(err).Str("file", path).Msg("Failed to seed ETF metadata")
			continue
		}

		logger.Info().Str("file", entry.Name()).Int("count", count).Msg("Loaded ETF seed file")
		total += count
	}
	return total, nil
}
