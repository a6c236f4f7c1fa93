package assistant

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/dvloznov/cellsense/internal/aggregate"
	"github.com/dvloznov/cellsense/internal/columns"
	"github.com/dvloznov/cellsense/internal/conversation"
	"github.com/dvloznov/cellsense/internal/domain"
	"github.com/shopspring/decimal"
)

// RuleBased answers the common questions directly from the upload analysis.
// It needs no network access and returns ErrUnanswerable for anything else.
type RuleBased struct{}

// NewRuleBased returns the analysis-backed answerer.
func NewRuleBased() *RuleBased { return &RuleBased{} }

type rule struct {
	keywords []string
	answer   func(ds *domain.Dataset) (string, bool)
}

// Rules are tried in order; the first whose keyword matches and which can
// answer from the data wins.
var rules = []rule{
	{[]string{"summary", "overview", "summarize", "summarise"}, answerSummary},
	{[]string{"categor"}, answerCategories},
	{[]string{"income", "earn", "revenue"}, answerIncome},
	{[]string{"spend", "spent", "expense", "cost"}, answerExpenses},
	{[]string{"balance", "saving", "net"}, answerBalance},
	{[]string{"how many rows", "how many transactions", "row count", "number of rows"}, answerRows},
}

// Answer implements Answerer.
func (r *RuleBased) Answer(ctx context.Context, ds *domain.Dataset, question string) (conversation.Answer, error) {
	q := strings.ToLower(question)
	for _, rl := range rules {
		if !containsAny(q, rl.keywords) {
			continue
		}
		if text, ok := rl.answer(ds); ok {
			return conversation.Answer{Text: text, Source: SourceAnalysis}, nil
		}
	}
	return conversation.Answer{}, ErrUnanswerable
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func money(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

func answerIncome(ds *domain.Dataset) (string, bool) {
	fs := ds.Analysis.FinancialSummary
	if fs == nil {
		return "", false
	}
	return fmt.Sprintf("Your total income is %s.", money(fs.TotalIncome)), true
}

func answerExpenses(ds *domain.Dataset) (string, bool) {
	fs := ds.Analysis.FinancialSummary
	if fs == nil {
		return "", false
	}
	return fmt.Sprintf("You spent a total of %s.", money(fs.TotalExpenses)), true
}

func answerBalance(ds *domain.Dataset) (string, bool) {
	fs := ds.Analysis.FinancialSummary
	if fs == nil {
		return "", false
	}
	return fmt.Sprintf("Your net balance (income minus expenses) is %s.", money(fs.NetBalance)), true
}

func answerRows(ds *domain.Dataset) (string, bool) {
	return fmt.Sprintf("%s contains %d rows across %d columns.", ds.Filename, ds.RowCount, len(ds.Columns)), true
}

// answerCategories ranks categories by aggregated magnitude when amount and
// category columns exist, and by row count otherwise.
func answerCategories(ds *domain.Dataset) (string, bool) {
	aggs := aggregate.ByCategory(ds.Records, columns.Infer(ds.Columns))
	if len(aggs) > 0 {
		sort.SliceStable(aggs, func(i, j int) bool { return aggs[i].Value > aggs[j].Value })
		if len(aggs) > 3 {
			aggs = aggs[:3]
		}
		parts := make([]string, len(aggs))
		for i, a := range aggs {
			parts[i] = fmt.Sprintf("%s (%s)", a.Name, money(a.Value))
		}
		return "Your top categories are " + strings.Join(parts, ", ") + ".", true
	}

	fs := ds.Analysis.FinancialSummary
	if fs == nil || len(fs.Categories) == 0 {
		return "", false
	}
	cats := fs.Categories
	if len(cats) > 3 {
		cats = cats[:3]
	}
	parts := make([]string, len(cats))
	for i, c := range cats {
		parts[i] = fmt.Sprintf("%s (%d rows)", c.Name, c.Count)
	}
	return "Your most frequent categories are " + strings.Join(parts, ", ") + ".", true
}

func answerSummary(ds *domain.Dataset) (string, bool) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s has %d rows.", ds.Filename, ds.RowCount)
	if fs := ds.Analysis.FinancialSummary; fs != nil {
		fmt.Fprintf(&b, " Income %s, expenses %s, net balance %s.",
			money(fs.TotalIncome), money(fs.TotalExpenses), money(fs.NetBalance))
	}
	if text, ok := answerCategories(ds); ok {
		b.WriteString(" " + text)
	}
	return b.String(), true
}
