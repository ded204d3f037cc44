package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/site-cloner/internal/cloner"
)

func testManifest(now time.Time) cloner.Manifest {
	return cloner.Manifest{
		Name:      "demo",
		SourceURL: "https://example.com/",
		PublicURL: "https://cdn.example/clonedwebs/demo/index.html",
		Resources: []cloner.ManifestEntry{
			{Name: "site.css", URL: "https://example.com/site.css"},
			{URL: "https://example.com/missing.png", Error: "HTTP 404"},
		},
		CreatedAt:   now,
		PublishedAt: &now,
	}
}

func TestStoreManifestUpsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewManifestStoreWithPool(mock, "clone_manifests")
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	manifest := testManifest(now)
	body, err := json.Marshal(manifest)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO clone_manifests").
		WithArgs("job-1", "demo", "https://example.com/", manifest.PublicURL, 2, 1, now, body).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.StoreManifest(context.Background(), "job-1", manifest))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreManifestWrapsErrors(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewManifestStoreWithPool(mock, "")
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO clone_manifests").WillReturnError(errors.New("connection reset"))
	err = store.StoreManifest(context.Background(), "job-1", testManifest(time.Now().UTC()))
	require.ErrorContains(t, err, "insert manifest: connection reset")

	require.Error(t, store.StoreManifest(context.Background(), "", cloner.Manifest{}))
}

func TestHistoryDecodesRows(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewManifestStoreWithPool(mock, "clone_manifests")
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	manifest := testManifest(now)
	body, err := json.Marshal(manifest)
	require.NoError(t, err)

	rows := mock.NewRows([]string{
		"job_id", "site_name", "source_url", "public_url", "resource_count", "failed_count", "published_at", "manifest",
	}).AddRow("job-1", "demo", "https://example.com/", manifest.PublicURL, 2, 1, now, body)
	mock.ExpectQuery("SELECT job_id, site_name").WithArgs("demo", 5).WillReturnRows(rows)

	history, err := store.History(context.Background(), "demo", 5)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, "job-1", history[0].JobID)
	require.Equal(t, 1, history[0].Failed)
	require.Len(t, history[0].Manifest.Resources, 2)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInvalidTableName(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewManifestStoreWithPool(mock, "drop table;")
	require.Error(t, err)
	_, err = NewManifestStoreWithPool(nil, "")
	require.Error(t, err)
}

func TestEnsureSchemaCreatesTable(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewManifestStoreWithPool(mock, "archive")
	require.NoError(t, err)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS archive").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	require.NoError(t, store.EnsureSchema(context.Background()))

	mock.ExpectPing().WillReturnError(errors.New("down"))
	require.ErrorContains(t, store.Ping(context.Background()), "ping postgres")
	require.NoError(t, mock.ExpectationsWereMet())
}
