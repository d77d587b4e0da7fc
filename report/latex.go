package report

import (
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// DefaultSummaryTargets are the main soil constituents shown in the best
// model summary table.
var DefaultSummaryTargets = []string{
	"Clay_Content", "pH", "Organic_Carbon", "Organic_Nitrogen",
	"Potassium", "Magnesium", "Calcium", "Sodium",
}

// LatexOptions controls table generation.
type LatexOptions struct {
	// TopN is the number of rows per target table. Default 10.
	TopN int
	// SummaryTargets are the rows of the summary table. Default DefaultSummaryTargets.
	SummaryTargets []string
	// MinR2 excludes scores at or below it. Default -1000.
	MinR2 float64
}

func (o LatexOptions) withDefaults() LatexOptions {
	if o.TopN <= 0 {
		o.TopN = 10
	}
	if o.SummaryTargets == nil {
		o.SummaryTargets = DefaultSummaryTargets
	}
	if o.MinR2 == 0 {
		o.MinR2 = -1000
	}
	return o
}

var derivSuffix = regexp.MustCompile(`_deriv\d*$`)

// algorithm IDs and legacy estimator class names, longest first.
var algorithmDisplay = []struct{ id, name string }{
	{"gradient_boosting", "Gradient Boosting"},
	{"linear_regression", "Linear Regression"},
	{"random_forest", "Random Forest"},
	{"enhanced_pls", "Enhanced PLS"},
	{"enhanced_nn", "Enhanced NN"},
	{"extra_trees", "Extra Trees"},
	{"linear_svr", "Linear SVR"},
	{"ridge", "Ridge"},
	{"knn", "K-Neighbors"},
	{"mlp", "MLP Regressor"},
	{"pls", "PLS"},
}

var nameReplacements = []struct{ old, new string }{
	{"Enhanced Neural Network", "Enhanced NN"},
	{"MLPRegressor", "MLP Regressor"},
	{"XGBRegressor", "XGBoost"},
	{"LGBMRegressor", "LightGBM"},
	{"ExtraTreesRegressor", "Extra Trees"},
	{"HistGradientBoostingRegressor", "Hist Gradient Boosting"},
	{"GradientBoostingRegressor", "Gradient Boosting"},
	{"KNeighborsRegressor", "K-Neighbors"},
	{"BaggingRegressor", "Bagging"},
	{"AdaBoostRegressor", "AdaBoost"},
	{"LinearRegression", "Linear Regression"},
	{"BayesianRidge", "Bayesian Ridge"},
	{"RidgeCV", "Ridge CV"},
	{"LassoCV", "Lasso CV"},
	{"ElasticNetCV", "ElasticNet CV"},
	{"TransformedTargetRegressor", "Transformed Target"},
	{"OrthogonalMatchingPursuitCV", "OMP CV"},
	{"noScale", "No Scaling"},
	{"StndScale", "Standard Scaling"},
}

// CleanMethodName turns a method name such as "random_forest_StndScale_deriv1"
// into the display form "Random Forest Standard Scaling (Deriv)".
func CleanMethodName(method string) string {
	cleaned := method
	deriv := derivSuffix.MatchString(cleaned)
	if deriv {
		cleaned = derivSuffix.ReplaceAllString(cleaned, "")
	}
	for _, a := range algorithmDisplay {
		if cleaned == a.id || strings.HasPrefix(cleaned, a.id+"_") {
			cleaned = a.name + strings.TrimPrefix(cleaned, a.id)
			break
		}
	}
	cleaned = strings.ReplaceAll(cleaned, "_", " ")
	for _, r := range nameReplacements {
		cleaned = strings.ReplaceAll(cleaned, r.old, r.new)
	}
	if deriv {
		cleaned += " (Deriv)"
	}
	return titleWords(cleaned)
}

// CleanPropertyName replaces underscores and capitalizes each word:
// "Organic_Carbon" -> "Organic Carbon", "clay_content" -> "Clay Content".
func CleanPropertyName(prop string) string {
	return titleWords(strings.ReplaceAll(prop, "_", " "))
}

// titleWords upper-cases the first letter of words that have no upper case
// letter yet, so "pH" and "PCA10" survive unchanged.
func titleWords(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		if strings.IndexFunc(w, unicode.IsUpper) >= 0 {
			continue
		}
		rs := []rune(w)
		for j, r := range rs {
			if unicode.IsLetter(r) {
				rs[j] = unicode.ToUpper(r)
				break
			}
		}
		words[i] = string(rs)
	}
	return strings.Join(words, " ")
}

func tableLabel(prop string) string {
	return strings.ReplaceAll(strings.ToLower(prop), "_", "")
}

// valid returns the records of target whose R² is above min, best first.
func (r *ResultsReport) valid(target string, min float64) []Record {
	var out []Record
	for _, rec := range r.Ranked(target) {
		if rec.HasScore() && *rec.R2 > min {
			out = append(out, rec)
		}
	}
	return out
}

// LatexTables renders the best model summary table followed by one top-N
// table per target, targets ordered by their best R².
func LatexTables(r *ResultsReport, opts LatexOptions) string {
	var b strings.Builder
	_ = WriteLatex(&b, r, opts)
	return b.String()
}

// WriteLatex writes the output of LatexTables to w.
func WriteLatex(w io.Writer, r *ResultsReport, opts LatexOptions) error {
	opts = opts.withDefaults()
	lines := []string{
		"% LaTeX Tables for Soil Property Prediction Results",
		"% Generated automatically from combined results",
		"% Summary table followed by detailed tables for each property",
		"",
		summaryTable(r, opts),
		"",
		fmt.Sprintf("%% Detailed tables for each soil property (top %d methods)", opts.TopN),
		"",
	}

	type targetBest struct {
		name string
		best float64
	}
	targets := make([]targetBest, 0)
	for _, t := range r.Targets() {
		best := -999.0
		if v := r.valid(t, opts.MinR2); len(v) > 0 {
			best = *v[0].R2
		}
		targets = append(targets, targetBest{t, best})
	}
	sort.SliceStable(targets, func(i, j int) bool { return targets[i].best > targets[j].best })
	for _, t := range targets {
		lines = append(lines, targetTable(r, t.name, opts))
	}

	_, err := io.WriteString(w, strings.Join(lines, "\n"))
	return err
}

func targetTable(r *ResultsReport, target string, opts LatexOptions) string {
	recs := r.valid(target, opts.MinR2)
	if len(recs) == 0 {
		return fmt.Sprintf("%% No valid methods found for %s\n", target)
	}
	if len(recs) > opts.TopN {
		recs = recs[:opts.TopN]
	}
	lines := []string{
		`\begin{table}[htbp]`,
		`\centering`,
		fmt.Sprintf(`\caption{Top models for predicting %s}`, CleanPropertyName(target)),
		fmt.Sprintf(`\label{tab:%s}`, tableLabel(target)),
		`\begin{tabular}{@{}ll@{}}`,
		`\toprule`,
		`\textbf{Model} & \textbf{R\textsuperscript{2}} \\`,
		`\midrule`,
	}
	for _, rec := range recs {
		lines = append(lines, fmt.Sprintf(`%s & %.3f \\`, CleanMethodName(rec.Method()), *rec.R2))
	}
	lines = append(lines, `\bottomrule`, `\end{tabular}`, `\end{table}`, "")
	return strings.Join(lines, "\n")
}

func summaryTable(r *ResultsReport, opts LatexOptions) string {
	type row struct {
		prop, method string
		r2           *float64
	}
	present := make(map[string]bool)
	for _, t := range r.Targets() {
		present[t] = true
	}
	rows := make([]row, 0, len(opts.SummaryTargets))
	for _, prop := range opts.SummaryTargets {
		switch v := r.valid(prop, opts.MinR2); {
		case !present[prop]:
			rows = append(rows, row{prop, "Not available", nil})
		case len(v) == 0:
			rows = append(rows, row{prop, "No valid results", nil})
		default:
			rows = append(rows, row{prop, CleanMethodName(v[0].Method()), v[0].R2})
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i].r2, rows[j].r2
		if a == nil || b == nil {
			return a != nil && b == nil
		}
		return *a > *b
	})

	lines := []string{
		"% Best Methods Summary Table",
		fmt.Sprintf("%% Shows the top-performing method for each of the %d main soil constituents", len(opts.SummaryTargets)),
		"",
		`\begin{table}[htbp]`,
		`\centering`,
		`\caption{Best performing models for each soil constituent}`,
		`\label{tab:best_methods_summary}`,
		`\begin{tabular}{@{}lll@{}}`,
		`\toprule`,
		`\textbf{Soil Constituent} & \textbf{Best Model} & \textbf{R\textsuperscript{2}} \\`,
		`\midrule`,
	}
	for _, rw := range rows {
		score := "---"
		if rw.r2 != nil {
			score = fmt.Sprintf("%.3f", *rw.r2)
		}
		lines = append(lines, fmt.Sprintf(`%s & %s & %s \\`, CleanPropertyName(rw.prop), rw.method, score))
	}
	lines = append(lines, `\bottomrule`, `\end{tabular}`, `\end{table}`)
	return strings.Join(lines, "\n")
}
