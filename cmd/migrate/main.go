// Command migrate applies schema migrations to the dataset database (sqlite)
// or to the BigQuery archive dataset.
package main

import (
	"context"
	"crypto/sha256"
	"embed"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	infraBQ "github.com/dvloznov/cellsense/internal/infra/bigquery"
	"github.com/dvloznov/cellsense/internal/logger"
	"github.com/dvloznov/cellsense/internal/store/sqlite"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"
)

//go:embed bigquery/*.sql
var bigqueryFS embed.FS

// Migration is a single BigQuery migration file.
type Migration struct {
	Version  int
	Name     string
	Filename string
	SQL      string
	Checksum string
}

// AppliedMigration is a row of schema_migrations.
type AppliedMigration struct {
	Version   int
	Name      string
	AppliedAt time.Time
	Checksum  string
	AppliedBy string
}

var migrationPattern = regexp.MustCompile(`^(\d{4})_(.+)\.sql$`)

func main() {
	var (
		target    = flag.String("target", "sqlite", "Migration target: sqlite or bigquery")
		dbPath    = flag.String("db", envOr("DB_PATH", "./data/cellsense.db"), "SQLite database path")
		projectID = flag.String("project", os.Getenv("BIGQUERY_PROJECT"), "GCP project ID")
		datasetID = flag.String("dataset", envOr("BIGQUERY_DATASET", infraBQ.DefaultDatasetID), "BigQuery dataset ID")
		appliedBy = flag.String("applied-by", "migrate-cli", "Name of the tool applying migrations")
	)
	flag.Parse()

	log := logger.New()

	switch *target {
	case "sqlite":
		if err := sqlite.RunMigrations(*dbPath); err != nil {
			log.Fatal().Err(err).Str("db_path", *dbPath).Msg("SQLite migration failed")
		}
		log.Info().Str("db_path", *dbPath).Msg("SQLite schema is up to date")
	case "bigquery":
		if *projectID == "" {
			log.Fatal().Msg("Error: -project flag is required for the bigquery target")
		}
		if err := migrateBigQuery(context.Background(), log, *projectID, *datasetID, *appliedBy); err != nil {
			log.Fatal().Err(err).Msg("BigQuery migration failed")
		}
	default:
		log.Fatal().Str("target", *target).Msg("Unknown target, expected sqlite or bigquery")
	}
}

func migrateBigQuery(ctx context.Context, log zerolog.Logger, projectID, datasetID, appliedBy string) error {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return fmt.Errorf("creating BigQuery client: %w", err)
	}
	defer client.Close()

	log = log.With().Str("project", projectID).Str("dataset", datasetID).Logger()
	log.Info().Msg("Connected to BigQuery")

	if err := runQuery(ctx, client.Query(schemaMigrationsDDL(projectID, datasetID))); err != nil {
		return fmt.Errorf("ensuring schema_migrations table: %w", err)
	}

	migrations, err := readMigrations(bigqueryFS, "bigquery", projectID, datasetID)
	if err != nil {
		return err
	}

	applied, err := getAppliedMigrations(ctx, client, projectID, datasetID)
	if err != nil {
		return err
	}

	todo := pendingMigrations(migrations, applied)
	log.Info().
		Int("files", len(migrations)).
		Int("applied", len(applied)).
		Int("pending", len(todo)).
		Msg("Migration status")

	for _, m := range todo {
		mlog := log.With().Int("version", m.Version).Str("name", m.Name).Logger()
		mlog.Info().Msg("Applying migration")

		if err := runQuery(ctx, client.Query(m.SQL)); err != nil {
			return fmt.Errorf("executing %s: %w", m.Filename, err)
		}
		if err := recordMigration(ctx, client, projectID, datasetID, appliedBy, m); err != nil {
			return fmt.Errorf("recording %s: %w", m.Filename, err)
		}
	}

	if len(todo) == 0 {
		log.Info().Msg("No new migrations to apply")
	}
	return nil
}

func schemaMigrationsDDL(projectID, datasetID string) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS `%s.%s.schema_migrations` (\n"+
		"  version    INT64 NOT NULL,\n"+
		"  name       STRING NOT NULL,\n"+
		"  applied_at TIMESTAMP NOT NULL,\n"+
		"  checksum   STRING,\n"+
		"  applied_by STRING\n"+
		")", projectID, datasetID)
}

// readMigrations loads NNNN_name.sql files from dir, substitutes the project
// and dataset placeholders and sorts them by version. The checksum is taken
// over the file before substitution.
func readMigrations(fsys fs.FS, dir, projectID, datasetID string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("reading migrations directory: %w", err)
	}

	var migrations []Migration
	seen := make(map[int]string)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		matches := migrationPattern.FindStringSubmatch(e.Name())
		if matches == nil {
			continue
		}
		version, _ := strconv.Atoi(matches[1])
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("duplicate migration version %04d: %s and %s", version, prev, e.Name())
		}
		seen[version] = e.Name()

		content, err := fs.ReadFile(fsys, dir+"/"+e.Name())
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", e.Name(), err)
		}

		sql := strings.ReplaceAll(string(content), "{{PROJECT_ID}}", projectID)
		sql = strings.ReplaceAll(sql, "{{DATASET_ID}}", datasetID)

		migrations = append(migrations, Migration{
			Version:  version,
			Name:     matches[2],
			Filename: e.Name(),
			SQL:      sql,
			Checksum: fmt.Sprintf("%x", sha256.Sum256(content)),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// pendingMigrations returns the migrations whose version is not yet applied.
func pendingMigrations(all []Migration, applied []AppliedMigration) []Migration {
	done := make(map[int]bool, len(applied))
	for _, am := range applied {
		done[am.Version] = true
	}

	var todo []Migration
	for _, m := range all {
		if !done[m.Version] {
			todo = append(todo, m)
		}
	}
	return todo
}

func getAppliedMigrations(ctx context.Context, client *bigquery.Client, projectID, datasetID string) ([]AppliedMigration, error) {
	q := client.Query(fmt.Sprintf(
		"SELECT version, name, applied_at, checksum, applied_by FROM `%s.%s.schema_migrations` ORDER BY version",
		projectID, datasetID))

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading applied migrations: %w", err)
	}

	var applied []AppliedMigration
	for {
		var row struct {
			Version   int64
			Name      string
			AppliedAt time.Time
			Checksum  bigquery.NullString
			AppliedBy bigquery.NullString
		}
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterating applied migrations: %w", err)
		}

		applied = append(applied, AppliedMigration{
			Version:   int(row.Version),
			Name:      row.Name,
			AppliedAt: row.AppliedAt,
			Checksum:  row.Checksum.StringVal,
			AppliedBy: row.AppliedBy.StringVal,
		})
	}
	return applied, nil
}

func recordMigration(ctx context.Context, client *bigquery.Client, projectID, datasetID, appliedBy string, m Migration) error {
	q := client.Query(fmt.Sprintf(
		"INSERT INTO `%s.%s.schema_migrations` (version, name, applied_at, checksum, applied_by) "+
			"VALUES (@version, @name, CURRENT_TIMESTAMP(), @checksum, @applied_by)",
		projectID, datasetID))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "version", Value: m.Version},
		{Name: "name", Value: m.Name},
		{Name: "checksum", Value: m.Checksum},
		{Name: "applied_by", Value: appliedBy},
	}
	return runQuery(ctx, q)
}

func runQuery(ctx context.Context, q *bigquery.Query) error {
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("running query: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
