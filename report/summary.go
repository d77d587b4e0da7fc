package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

// Summary writes a plain text report: per target method counts split into
// full-spectrum and derivative runs, valid share, R² range and best method,
// then the overall top 10 and the derivative vs full-spectrum comparison.
func Summary(w io.Writer, r *ResultsReport) error {
	var b strings.Builder
	rule := strings.Repeat("=", 80)
	fmt.Fprintf(&b, "%s\nCOMBINED RESULTS SUMMARY REPORT\n%s\n", rule, rule)
	targets := r.Targets()
	fmt.Fprintf(&b, "Total soil properties analyzed: %d\n", len(targets))

	var total, full, deriv int
	var all []Record
	for _, t := range targets {
		ranked := r.Ranked(t)
		var nFull, nDeriv int
		var scores []float64
		for _, rec := range ranked {
			if rec.Preprocessing.IsDerivative() {
				nDeriv++
			} else {
				nFull++
			}
			if rec.HasScore() {
				scores = append(scores, *rec.R2)
				all = append(all, rec)
			}
		}
		total += len(ranked)
		full += nFull
		deriv += nDeriv

		if len(scores) == 0 {
			fmt.Fprintf(&b, "\n%s: No valid results\n", t)
			continue
		}
		lo, hi, sum := scores[0], scores[0], 0.0
		for _, s := range scores {
			lo, hi = min(lo, s), max(hi, s)
			sum += s
		}
		fmt.Fprintf(&b, "\n%s:\n", t)
		fmt.Fprintf(&b, "  Methods: %d total (%d fullrun, %d derivatives)\n", len(ranked), nFull, nDeriv)
		fmt.Fprintf(&b, "  Valid results: %d/%d (%.1f%%)\n", len(scores), len(ranked), 100*float64(len(scores))/float64(len(ranked)))
		fmt.Fprintf(&b, "  R² range: %.4f - %.4f (avg: %.4f)\n", lo, hi, sum/float64(len(scores)))
		fmt.Fprintf(&b, "  Best method: %s (R² = %.4f)\n", ranked[0].Method(), *ranked[0].R2)
	}

	half := strings.Repeat("=", 40)
	fmt.Fprintf(&b, "\n%s\nOVERALL STATISTICS:\n%s\n", half, half)
	fmt.Fprintf(&b, "Total methods tested: %d\n", total)
	fmt.Fprintf(&b, "  Fullrun methods: %d\n", full)
	fmt.Fprintf(&b, "  Derivatives methods: %d\n", deriv)
	fmt.Fprintf(&b, "Properties with results: %d\n", len(targets))

	if len(all) > 0 {
		sort.SliceStable(all, func(i, j int) bool { return *all[i].R2 > *all[j].R2 })
		fmt.Fprintf(&b, "\nTOP 10 BEST PREDICTIONS OVERALL:\n%s\n", strings.Repeat("-", 60))
		for i, rec := range all[:min(10, len(all))] {
			fmt.Fprintf(&b, "%2d. %-15s | %-35s | R² = %.4f (%s)\n", i+1, rec.Target, rec.Method(), *rec.R2, family(rec))
		}

		var sumFull, sumDeriv float64
		var nFull, nDeriv int
		for _, rec := range all {
			if rec.Preprocessing.IsDerivative() {
				sumDeriv += *rec.R2
				nDeriv++
			} else {
				sumFull += *rec.R2
				nFull++
			}
		}
		if nFull > 0 && nDeriv > 0 {
			avgFull, avgDeriv := sumFull/float64(nFull), sumDeriv/float64(nDeriv)
			fmt.Fprintf(&b, "\nPERFORMANCE COMPARISON:\n")
			fmt.Fprintf(&b, "Average R² - Fullrun methods: %.4f\n", avgFull)
			fmt.Fprintf(&b, "Average R² - Derivatives methods: %.4f\n", avgDeriv)
			if avgFull != 0 {
				change := (avgDeriv - avgFull) / avgFull * 100
				if avgDeriv > avgFull {
					fmt.Fprintf(&b, "RESULT: Derivatives show %.1f%% improvement over fullrun methods\n", abs(change))
				} else {
					fmt.Fprintf(&b, "RESULT: Derivatives show %.1f%% decline compared to fullrun methods\n", abs(change))
				}
			}
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func family(rec Record) string {
	if rec.Preprocessing.IsDerivative() {
		return "derivatives"
	}
	return "fullrun"
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
