package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dvloznov/cellsense/internal/conversation"
	"github.com/dvloznov/cellsense/internal/domain"
	"github.com/dvloznov/cellsense/internal/jobs"
	"github.com/dvloznov/cellsense/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/xuri/excelize/v2"
)

// mockDatasetStore delegates to an in-memory store unless a Func is set.
type mockDatasetStore struct {
	store.DatasetStore
	SaveFunc func(ctx context.Context, ds *domain.Dataset) error
}

func (m *mockDatasetStore) Save(ctx context.Context, ds *domain.Dataset) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, ds)
	}
	return m.DatasetStore.Save(ctx, ds)
}

type mockPublisher struct {
	PublishArchiveDatasetFunc func(ctx context.Context, job *jobs.ArchiveDatasetJob) error
	published                 []*jobs.ArchiveDatasetJob
}

func (m *mockPublisher) PublishArchiveDataset(ctx context.Context, job *jobs.ArchiveDatasetJob) error {
	if m.PublishArchiveDatasetFunc != nil {
		if err := m.PublishArchiveDatasetFunc(ctx, job); err != nil {
			return err
		}
	}
	if job.JobID == "" {
		job.JobID = "job-1"
	}
	m.published = append(m.published, job)
	return nil
}

func (m *mockPublisher) Close() error { return nil }

func echoAsker() conversation.Asker {
	return conversation.AskerFunc(func(ctx context.Context, datasetID, question string) (conversation.Answer, error) {
		return conversation.Answer{Text: "answer to " + question, Source: "test"}, nil
	})
}

// testRecords returns n rows cycling through three categories with negative amounts.
func testRecords(n int) []domain.Record {
	recs := make([]domain.Record, n)
	for i := range recs {
		recs[i] = domain.Record{
			"Description": fmt.Sprintf("txn %d", i),
			"Category":    []string{"Food", "Rent", "Fun"}[i%3],
			"Amount":      float64(-(i + 1)),
		}
	}
	return recs
}

func testDataset(id string, n int) *domain.Dataset {
	return &domain.Dataset{
		ID:       id,
		Filename: "test.xlsx",
		Columns:  []string{"Description", "Category", "Amount"},
		RowCount: n,
		Records:  testRecords(n),
	}
}

// workbookBytes builds an xlsx with a header row and the given data rows.
func workbookBytes(t *testing.T, header []any, rows ...[]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		t.Fatal(err)
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		row := row
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatal(err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func multipartUpload(t *testing.T, filename string, content []byte, fields map[string]string) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)

	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write(content); err != nil {
			t.Fatal(err)
		}
	}
	for k, v := range fields {
		_ = mw.WriteField(k, v)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(r chi.Router, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func jsonRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (status %d)", err, rec.Code)
	}
	return v
}
