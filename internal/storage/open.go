package storage

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"drumbot/internal/domain"
	logx "drumbot/pkg/logx"
)

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch driver := strings.ToLower(strings.TrimSpace(cfg.Driver)); driver {
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "postgres", "postgresql":
		return openPostgres(cfg, log)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver: %q", driver)
	}
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStorage, err)
}

// fromRow builds a Subscription from persisted columns. Unknown policy names
// map to PolicyUnknown, which every consumer skips.
func fromRow(owner, dest int64, mode, extra, title, handle string, updated time.Time) domain.Subscription {
	p, _ := domain.ParsePolicy(mode)
	return domain.Subscription{
		OwnerID:          owner,
		DestinationID:    dest,
		Policy:           p,
		PolicyParam:      extra,
		DestinationTitle: title,
		OwnerHandle:      handle,
		UpdatedAt:        updated,
	}
}

func sortSubs(subs []domain.Subscription) {
	sort.Slice(subs, func(i, j int) bool {
		if subs[i].OwnerID != subs[j].OwnerID {
			return subs[i].OwnerID < subs[j].OwnerID
		}
		return subs[i].DestinationID < subs[j].DestinationID
	})
}
