package assistant

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dvloznov/cellsense/internal/domain"
)

// buildQuestionPrompt describes the dataset and the answer format to the model.
func buildQuestionPrompt(ds *domain.Dataset, question string) (string, error) {
	analysis, err := json.Marshal(ds.Analysis)
	if err != nil {
		return "", fmt.Errorf("buildQuestionPrompt: encode analysis: %w", err)
	}

	sample := ds.Records
	if len(sample) > maxSampleRecords {
		sample = sample[:maxSampleRecords]
	}
	rows, err := json.Marshal(sample)
	if err != nil {
		return "", fmt.Errorf("buildQuestionPrompt: encode records: %w", err)
	}

	var b strings.Builder
	b.WriteString("You are a personal finance assistant answering questions about a spreadsheet.\n\n")
	fmt.Fprintf(&b, "File: %s\n", ds.Filename)
	fmt.Fprintf(&b, "Rows: %d\n", ds.RowCount)
	fmt.Fprintf(&b, "Columns: %s\n\n", strings.Join(ds.Columns, ", "))
	b.WriteString("Precomputed analysis (JSON):\n")
	b.Write(analysis)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "First %d rows (JSON):\n", len(sample))
	b.Write(rows)
	b.WriteString("\n\n")
	b.WriteString("Rules:\n" +
		"- Prefer the precomputed analysis for totals; rows may be a sample.\n" +
		"- Amounts are in the sheet's own currency; do not convert.\n" +
		"- If the data cannot answer the question, say so briefly.\n" +
		"- Output STRICT JSON only: {\"answer\": string, \"columns\": [string]}.\n" +
		"- \"columns\" lists the sheet columns the answer relies on.\n" +
		"- Do NOT wrap the response in code fences.\n\n")
	fmt.Fprintf(&b, "Question: %s\n", question)
	return b.String(), nil
}

// cleanModelJSON strips Markdown fences and any text around the JSON object.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}
	return s
}
