package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/wastorga/sim/pkg/persistence"
	"github.com/wastorga/sim/pkg/persistence/file"
	"github.com/wastorga/sim/pkg/persistence/postgresql"
)

// NewPersistence picks the store from the URL scheme. Anything that is not postgres is a file root.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch parsePersistenceProvider(databaseURL) {
	case "postgres":
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, err
		}

		return p, nil
	default:
		return file.NewPersistence(databaseURL), nil
	}
}

func parsePersistenceProvider(databaseURL string) string {
	scheme, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	switch scheme {
	case "postgres", "postgresql":
		return "postgres"
	default:
		return "file"
	}
}
