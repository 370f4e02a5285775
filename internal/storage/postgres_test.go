package storage

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"drumbot/internal/domain"
	logx "drumbot/pkg/logx"
)

// dryRunDB builds SQL without a server: no ping, statements are not executed.
func dryRunDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(postgres.Open("host=127.0.0.1 port=1 user=drumbot dbname=drumbot sslmode=disable"), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
		Logger:               newGormLogger(logx.Nop(), logger.Silent),
	})
	require.NoError(t, err)
	return db
}

func TestModelRoundTrip(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	sub := domain.Subscription{
		OwnerID:          7,
		DestinationID:    -100,
		Policy:           domain.PolicyDailyFixedTime,
		PolicyParam:      "09:00",
		DestinationTitle: "Drum Channel",
		OwnerHandle:      "@dj",
		UpdatedAt:        at,
	}
	m := toModel(sub)
	require.Equal(t, "daily_info", m.PostMode)
	require.Equal(t, sub, m.toDomain())

	legacy := subscriptionModel{UserID: 1, ChannelID: -1, PostMode: "weekly"}
	require.Equal(t, domain.PolicyUnknown, legacy.toDomain().Policy)
}

func TestUpsertStatements(t *testing.T) {
	db := dryRunDB(t)

	m := toModel(domain.Subscription{OwnerID: 7, DestinationID: -100, Policy: domain.PolicyKeywordMatch, PolicyParam: "jungle"})
	stmt := db.Clauses(subscriptionUpsert()).Create(&m).Statement
	q := stmt.SQL.String()
	require.Contains(t, q, `INSERT INTO "users_channels"`)
	require.Contains(t, q, `ON CONFLICT ("user_id","channel_id") DO UPDATE SET`)
	for _, col := range []string{"post_mode", "extra_data", "channel_title", "owner_handle", "updated_at"} {
		require.Contains(t, q, `"`+col+`"="excluded"."`+col+`"`)
	}
	require.NotContains(t, q, `"user_id"="excluded"`)

	a := announcedModel{DestinationID: -100, FilePath: "/srv/audio/radio_show/b.mp3"}
	q = db.Clauses(announcedUpsert()).Create(&a).Statement.SQL.String()
	require.Contains(t, q, `ON CONFLICT ("destination_id") DO UPDATE SET "file_path"="excluded"."file_path"`)
}

func TestOpenPostgresNeedsDSN(t *testing.T) {
	_, err := Open(Config{Driver: "postgres", DSN: "  "}, logx.Nop())
	require.Error(t, err)
}

func TestGormLoggerGoesThroughLogx(t *testing.T) {
	var buf bytes.Buffer
	l := newGormLogger(logx.NewWriter(&buf, "trace"), logger.Warn)
	ctx := context.Background()
	query := func() (string, int64) { return `SELECT * FROM "users_channels"`, 0 }

	l.Trace(ctx, time.Now(), query, gorm.ErrRecordNotFound)
	l.Info(ctx, "connected to %s", "db")
	require.Empty(t, buf.String())

	l.Trace(ctx, time.Now(), query, errors.New("relation does not exist"))
	require.Contains(t, buf.String(), "query failed")
	require.Contains(t, buf.String(), `"sub":"gorm"`)
	require.Contains(t, buf.String(), "relation does not exist")

	buf.Reset()
	l.Trace(ctx, time.Now().Add(-time.Second), query, nil)
	require.Contains(t, buf.String(), "slow query")

	buf.Reset()
	l.LogMode(logger.Silent).Trace(ctx, time.Now(), query, errors.New("boom"))
	require.Empty(t, buf.String())
}
