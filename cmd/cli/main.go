package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dvloznov/cellsense/internal/aggregate"
	"github.com/dvloznov/cellsense/internal/analysis"
	"github.com/dvloznov/cellsense/internal/assistant"
	"github.com/dvloznov/cellsense/internal/columns"
	"github.com/dvloznov/cellsense/internal/domain"
	"github.com/dvloznov/cellsense/internal/gcsuploader"
	infraBQ "github.com/dvloznov/cellsense/internal/infra/bigquery"
	"github.com/dvloznov/cellsense/internal/logger"
	"github.com/dvloznov/cellsense/internal/workbook"
	"github.com/rs/zerolog"
)

func main() {
	log := logger.New()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "inspect":
		runInspect(log)
	case "ask":
		runAsk(log)
	case "upload":
		runUpload(log)
	case "summaries":
		runSummaries(log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("CellSense CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  inspect    Analyze a local workbook and print the report")
	fmt.Println("  ask        Ask the rule-based assistant about a local workbook")
	fmt.Println("  upload     Upload a workbook to GCS")
	fmt.Println("  summaries  List archived dataset summaries from BigQuery")
	fmt.Println("  help       Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

// loadWorkbook reads a local workbook the same way the upload endpoint does.
func loadWorkbook(path, keywords string) (*domain.Dataset, error) {
	filename := filepath.Base(path)
	if err := workbook.CheckExtension(filename); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	sheet, err := workbook.Read(f)
	if err != nil {
		return nil, err
	}

	return &domain.Dataset{
		ID:         filename,
		Filename:   filename,
		Columns:    sheet.Columns,
		RowCount:   len(sheet.Records),
		Records:    sheet.Records,
		Analysis:   analysis.Analyze(sheet.Columns, sheet.Records, keywords),
		UploadedAt: time.Now().UTC(),
	}, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runInspect(log zerolog.Logger) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	filePath := fs.String("file", "", "Path to a local .xlsx workbook")
	keywords := fs.String("keywords", "", "Comma-separated extra financial column keywords")
	fs.Parse(os.Args[2:])

	if *filePath == "" {
		log.Fatal().Msg("Usage: cli inspect -file PATH")
	}

	ds, err := loadWorkbook(*filePath, *keywords)
	if err != nil {
		log.Fatal().Err(err).Str("file", *filePath).Msg("Failed to read workbook")
	}

	roles := columns.Infer(ds.Columns)
	out := struct {
		Dataset    domain.DatasetInfo         `json:"dataset"`
		Roles      columns.Roles              `json:"roles"`
		Categories []domain.CategoryAggregate `json:"categories"`
		Report     analysis.Report            `json:"report"`
	}{
		Dataset:    ds.Info(),
		Roles:      roles,
		Categories: aggregate.ByCategory(ds.Records, roles),
		Report:     analysis.BuildReport(ds),
	}

	if err := printJSON(out); err != nil {
		log.Fatal().Err(err).Msg("Failed to write report")
	}
}

func runAsk(log zerolog.Logger) {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	filePath := fs.String("file", "", "Path to a local .xlsx workbook")
	question := fs.String("question", "", "Question about the workbook")
	fs.Parse(os.Args[2:])

	if *filePath == "" || *question == "" {
		log.Fatal().Msg("Usage: cli ask -file PATH -question TEXT")
	}

	ds, err := loadWorkbook(*filePath, "")
	if err != nil {
		log.Fatal().Err(err).Str("file", *filePath).Msg("Failed to read workbook")
	}

	answer, err := assistant.NewRuleBased().Answer(context.Background(), ds, *question)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to answer question")
	}

	fmt.Println(answer.Text)
}

func runUpload(log zerolog.Logger) {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	bucketName := fs.String("bucket", os.Getenv("GCS_BUCKET"), "GCS bucket name (or set GCS_BUCKET env)")
	datasetID := fs.String("data-id", "", "Dataset ID used as the object prefix")
	filePath := fs.String("file", "", "Path to local workbook")
	fs.Parse(os.Args[2:])

	if *bucketName == "" || *filePath == "" || *datasetID == "" {
		log.Fatal().Msg("Usage: cli upload -bucket NAME -data-id ID -file PATH")
	}
	if err := workbook.CheckExtension(*filePath); err != nil {
		log.Fatal().Err(err).Str("file", *filePath).Msg("Refusing to upload")
	}

	ctx := logger.WithContext(context.Background(), log)
	objectName := gcsuploader.ObjectName(*datasetID, *filePath)

	log.Info().
		Str("bucket", *bucketName).
		Str("object", objectName).
		Str("file", *filePath).
		Msg("Uploading workbook to GCS")

	if err := gcsuploader.UploadFile(ctx, *bucketName, objectName, *filePath); err != nil {
		log.Fatal().Err(err).Msg("Upload failed")
	}

	fmt.Printf("Uploaded %s to %s\n", *filePath, gcsuploader.URI(*bucketName, objectName))
}

func runSummaries(log zerolog.Logger) {
	fs := flag.NewFlagSet("summaries", flag.ExitOnError)
	project := fs.String("project", os.Getenv("BIGQUERY_PROJECT"), "BigQuery project (or set BIGQUERY_PROJECT env)")
	dataset := fs.String("dataset", infraBQ.DefaultDatasetID, "BigQuery dataset")
	datasetID := fs.String("data-id", "", "Show a single archived dataset")
	limit := fs.Int("limit", 20, "Maximum number of summaries")
	fs.Parse(os.Args[2:])

	if *project == "" {
		log.Fatal().Msg("Error: --project is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	repo, err := infraBQ.NewBigQuerySummaryRepository(ctx, *project, *dataset)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create repository")
	}
	defer repo.Close()

	if *datasetID != "" {
		row, err := repo.FindDatasetSummary(ctx, *datasetID)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to find summary")
		}
		if row == nil {
			log.Fatal().Str("data_id", *datasetID).Msg("Dataset not archived")
		}
		if err := printJSON(row.View()); err != nil {
			log.Fatal().Err(err).Msg("Failed to write summary")
		}
		return
	}

	rows, err := repo.ListDatasetSummaries(ctx, *limit)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list summaries")
	}

	fmt.Printf("\n=== Archived datasets (%d) ===\n", len(rows))
	for i, row := range rows {
		v := row.View()
		fmt.Printf("\n%d. %s (%s)\n", i+1, v.Filename, v.DatasetID)
		fmt.Printf("   Rows:     %d x %d columns\n", v.RowCount, v.ColumnCount)
		if v.NetBalance != nil {
			fmt.Printf("   Net:      %.2f\n", *v.NetBalance)
		}
		if v.PeriodStart != "" {
			fmt.Printf("   Period:   %s to %s\n", v.PeriodStart, v.PeriodEnd)
		}
		if v.GCSURI != "" {
			fmt.Printf("   Workbook: %s\n", v.GCSURI)
		}
		fmt.Printf("   Archived: %s\n", v.ArchivedAt.Format(time.RFC3339))
	}
	fmt.Println()
}
