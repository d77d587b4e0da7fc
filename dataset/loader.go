package dataset

import (
	"encoding/csv"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/YuminosukeSato/soilspec/pkg/errors"
	"github.com/YuminosukeSato/soilspec/pkg/log"
)

// JoinPolicy decides what happens to spectral samples that cannot be matched
// to both property tables.
type JoinPolicy int

const (
	// JoinStrict fails the load if any spectral sample is unmatched.
	JoinStrict JoinPolicy = iota
	// JoinDropUnmatched drops unmatched samples and logs how many were dropped.
	JoinDropUnmatched
)

// String returns the configuration name of the policy.
func (p JoinPolicy) String() string {
	switch p {
	case JoinStrict:
		return "strict"
	case JoinDropUnmatched:
		return "drop_unmatched"
	default:
		return "unknown"
	}
}

// ParseJoinPolicy parses "strict" or "drop_unmatched".
func ParseJoinPolicy(s string) (JoinPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "strict":
		return JoinStrict, nil
	case "drop_unmatched", "drop":
		return JoinDropUnmatched, nil
	default:
		return JoinStrict, errors.NewValidationError("join_policy", "must be strict or drop_unmatched", s)
	}
}

// Files names the four input tables inside the data directory.
type Files struct {
	Spectra  string
	Chemical string
	Physical string
	Link     string
}

// DefaultFiles returns the conventional input file names.
func DefaultFiles() Files {
	return Files{
		Spectra:  "spectra.csv",
		Chemical: "chemical.csv",
		Physical: "physical.csv",
		Link:     "sample_link.csv",
	}
}

func (f Files) withDefaults() Files {
	d := DefaultFiles()
	if f.Spectra == "" {
		f.Spectra = d.Spectra
	}
	if f.Chemical == "" {
		f.Chemical = d.Chemical
	}
	if f.Physical == "" {
		f.Physical = d.Physical
	}
	if f.Link == "" {
		f.Link = d.Link
	}
	return f
}

// LoaderOptions controls column names and the join policy.
type LoaderOptions struct {
	SpectraIDColumn   string // first column of the spectra table
	LinkSpectraColumn string // link column holding spectral sample IDs
	LinkCodeColumn    string // link column holding laboratory sample codes
	PropertyIDColumn  string // sample code column of the property tables
	ExpectedBands     int    // 0 means take the band count from the header
	JoinPolicy        JoinPolicy
	Logger            log.Logger
}

// DefaultLoaderOptions returns the default column names with a strict join.
func DefaultLoaderOptions() LoaderOptions {
	return LoaderOptions{
		SpectraIDColumn:   "sample_id",
		LinkSpectraColumn: "sample_id",
		LinkCodeColumn:    "sample_code",
		PropertyIDColumn:  "sample_code",
		JoinPolicy:        JoinStrict,
	}
}

func (o LoaderOptions) withDefaults() LoaderOptions {
	d := DefaultLoaderOptions()
	if o.SpectraIDColumn == "" {
		o.SpectraIDColumn = d.SpectraIDColumn
	}
	if o.LinkSpectraColumn == "" {
		o.LinkSpectraColumn = d.LinkSpectraColumn
	}
	if o.LinkCodeColumn == "" {
		o.LinkCodeColumn = d.LinkCodeColumn
	}
	if o.PropertyIDColumn == "" {
		o.PropertyIDColumn = d.PropertyIDColumn
	}
	if o.Logger == nil {
		o.Logger = log.Nop()
	}
	return o
}

// missingTokens are the cell values treated as "not measured".
var missingTokens = map[string]struct{}{
	"": {}, "NA": {}, "N/A": {}, "NaN": {}, "nan": {}, "-": {}, "null": {},
}

// IsMissing reports whether a property cell denotes a missing measurement.
func IsMissing(cell string) bool {
	_, ok := missingTokens[strings.TrimSpace(cell)]
	return ok
}

// Load reads the spectra, chemical, physical and link tables from dir and
// joins them on sample identifier.
func Load(dir string, files Files, opts LoaderOptions) (*Dataset, *PropertyTable, error) {
	files = files.withDefaults()
	opts = opts.withDefaults()
	logger := opts.Logger.With(log.PhaseKey, log.PhaseLoading)

	spectraPath := filepath.Join(dir, files.Spectra)
	wavelengths, spectra, err := readSpectra(spectraPath, opts)
	if err != nil {
		return nil, nil, err
	}

	chemPath := filepath.Join(dir, files.Chemical)
	chem, err := readProperties(chemPath, opts.PropertyIDColumn)
	if err != nil {
		return nil, nil, err
	}
	physPath := filepath.Join(dir, files.Physical)
	phys, err := readProperties(physPath, opts.PropertyIDColumn)
	if err != nil {
		return nil, nil, err
	}
	for _, name := range phys.Names {
		for _, other := range chem.Names {
			if name == other {
				return nil, nil, errors.WithStack(&errors.DataLoadError{
					Path:   physPath,
					Column: name,
					Reason: "property also defined in " + chemPath,
				})
			}
		}
	}

	linkPath := filepath.Join(dir, files.Link)
	link, err := readLink(linkPath, opts)
	if err != nil {
		return nil, nil, err
	}

	table := combine(chem, phys)

	var samples []SpectralSample
	var unmatched []string
	for _, sp := range spectra {
		code, ok := link[sp.ID]
		if !ok {
			unmatched = append(unmatched, sp.ID)
			continue
		}
		chemRow, inChem := chem.Rows[code]
		physRow, inPhys := phys.Rows[code]
		if !inChem || !inPhys {
			unmatched = append(unmatched, sp.ID)
			continue
		}
		props := make(map[string]float64, len(chemRow)+len(physRow))
		for k, v := range chemRow {
			props[k] = v
		}
		for k, v := range physRow {
			props[k] = v
		}
		sp.Properties = props
		samples = append(samples, sp)
	}

	if len(unmatched) > 0 {
		switch opts.JoinPolicy {
		case JoinDropUnmatched:
			logger.Warn("Dropping unmatched spectral samples",
				log.DroppedKey, len(unmatched),
				log.SamplesKey, len(samples),
				"first_unmatched", firstN(unmatched, 5),
			)
		default:
			return nil, nil, errors.WithStack(&errors.DataLoadError{
				Path:     linkPath,
				SampleID: unmatched[0],
				Reason:   joinReason(unmatched),
			})
		}
	}
	if len(samples) == 0 {
		return nil, nil, errors.NewDataLoadError(spectraPath, "no spectral sample matched the property tables", errors.ErrEmptyData)
	}

	ds, err := New(wavelengths, samples)
	if err != nil {
		return nil, nil, errors.NewDataLoadError(spectraPath, "invalid dataset", err)
	}
	logger.Info("Dataset loaded",
		log.FilePathKey, dir,
		log.SamplesKey, ds.Len(),
		log.FeaturesKey, ds.NBands(),
		"properties", len(ds.PropertyNames()),
	)
	return ds, table, nil
}

// LoadSpectra reads a spectra table without properties, for inference.
func LoadSpectra(path string, opts LoaderOptions) (*Dataset, error) {
	opts = opts.withDefaults()
	wavelengths, samples, err := readSpectra(path, opts)
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, errors.NewDataLoadError(path, "no spectra rows", errors.ErrEmptyData)
	}
	ds, err := New(wavelengths, samples)
	if err != nil {
		return nil, errors.NewDataLoadError(path, "invalid dataset", err)
	}
	return ds, nil
}

func joinReason(unmatched []string) string {
	return strconv.Itoa(len(unmatched)) + " spectral samples have no matching chemical and physical record (first: " +
		strings.Join(firstN(unmatched, 5), ", ") + ")"
}

func firstN(s []string, n int) []string {
	if len(s) < n {
		return s
	}
	return s[:n]
}

// readTable opens path and returns the header and data rows.
func readTable(path string) ([]string, [][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, errors.NewDataLoadError(path, "file not found", err)
		}
		return nil, nil, errors.NewDataLoadError(path, "cannot open file", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err == io.EOF {
		return nil, nil, errors.NewDataLoadError(path, "file is empty", errors.ErrEmptyData)
	}
	if err != nil {
		return nil, nil, errors.NewDataLoadError(path, "cannot parse header", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	header[0] = strings.TrimPrefix(header[0], "\ufeff")

	var rows [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, errors.NewDataLoadError(path, "cannot parse row", err)
		}
		rows = append(rows, rec)
	}
	return header, rows, nil
}

func readSpectra(path string, opts LoaderOptions) ([]float64, []SpectralSample, error) {
	header, rows, err := readTable(path)
	if err != nil {
		return nil, nil, err
	}
	if header[0] != opts.SpectraIDColumn {
		return nil, nil, errors.NewDataLoadErrorAt(path, 0, header[0], "first column must be "+opts.SpectraIDColumn)
	}

	nBands := len(header) - 1
	if nBands == 0 {
		return nil, nil, errors.NewDataLoadError(path, "no wavelength columns", nil)
	}
	if opts.ExpectedBands > 0 && nBands != opts.ExpectedBands {
		return nil, nil, errors.NewDataLoadErrorAt(path, 0, "",
			"expected "+strconv.Itoa(opts.ExpectedBands)+" wavelength columns, got "+strconv.Itoa(nBands))
	}

	wavelengths := make([]float64, nBands)
	for j := 0; j < nBands; j++ {
		wl, err := strconv.ParseFloat(header[j+1], 64)
		if err != nil || math.IsNaN(wl) || math.IsInf(wl, 0) {
			return nil, nil, errors.NewDataLoadErrorAt(path, 0, header[j+1], "wavelength header is not a number")
		}
		if j > 0 && wl <= wavelengths[j-1] {
			return nil, nil, errors.NewDataLoadErrorAt(path, 0, header[j+1], "wavelengths must be strictly increasing")
		}
		wavelengths[j] = wl
	}

	samples := make([]SpectralSample, 0, len(rows))
	seen := make(map[string]int, len(rows))
	for i, rec := range rows {
		row := i + 1
		if len(rec) != nBands+1 {
			return nil, nil, errors.NewDataLoadErrorAt(path, row, "",
				"expected "+strconv.Itoa(nBands)+" reflectance values, got "+strconv.Itoa(len(rec)-1))
		}
		id := strings.TrimSpace(rec[0])
		if id == "" {
			return nil, nil, errors.NewDataLoadErrorAt(path, row, opts.SpectraIDColumn, "empty sample id")
		}
		if prev, dup := seen[id]; dup {
			return nil, nil, errors.NewDataLoadErrorAt(path, row, opts.SpectraIDColumn,
				"duplicate sample id "+id+" (first at row "+strconv.Itoa(prev)+")")
		}
		seen[id] = row

		refl := make([]float64, nBands)
		for j := 0; j < nBands; j++ {
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[j+1]), 64)
			if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, nil, errors.NewDataLoadErrorAt(path, row, header[j+1], "reflectance must be a finite number")
			}
			refl[j] = v
		}
		samples = append(samples, SpectralSample{ID: id, Reflectance: refl})
	}

	sort.SliceStable(samples, func(a, b int) bool { return samples[a].ID < samples[b].ID })
	return wavelengths, samples, nil
}

func readProperties(path, idColumn string) (*PropertyTable, error) {
	header, rows, err := readTable(path)
	if err != nil {
		return nil, err
	}
	idCol := indexOf(header, idColumn)
	if idCol < 0 {
		return nil, errors.NewDataLoadErrorAt(path, 0, idColumn, "id column not found")
	}

	table := &PropertyTable{Rows: make(map[string]map[string]float64, len(rows))}
	for j, name := range header {
		if j == idCol {
			continue
		}
		if name == "" {
			return nil, errors.NewDataLoadErrorAt(path, 0, "", "empty property column name")
		}
		table.Names = append(table.Names, name)
	}

	for i, rec := range rows {
		row := i + 1
		if len(rec) != len(header) {
			return nil, errors.NewDataLoadErrorAt(path, row, "",
				"expected "+strconv.Itoa(len(header))+" cells, got "+strconv.Itoa(len(rec)))
		}
		code := strings.TrimSpace(rec[idCol])
		if code == "" {
			return nil, errors.NewDataLoadErrorAt(path, row, idColumn, "empty sample code")
		}
		if _, dup := table.Rows[code]; dup {
			return nil, errors.NewDataLoadErrorAt(path, row, idColumn, "duplicate sample code "+code)
		}

		values := make(map[string]float64, len(header)-1)
		for j, cell := range rec {
			if j == idCol || IsMissing(cell) {
				continue
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
			if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, errors.NewDataLoadErrorAt(path, row, header[j], "value "+strconv.Quote(cell)+" is not numeric")
			}
			values[header[j]] = v
		}
		table.Rows[code] = values
	}
	return table, nil
}

func readLink(path string, opts LoaderOptions) (map[string]string, error) {
	header, rows, err := readTable(path)
	if err != nil {
		return nil, err
	}
	idCol := indexOf(header, opts.LinkSpectraColumn)
	if idCol < 0 {
		return nil, errors.NewDataLoadErrorAt(path, 0, opts.LinkSpectraColumn, "column not found")
	}
	codeCol := indexOf(header, opts.LinkCodeColumn)
	if codeCol < 0 {
		return nil, errors.NewDataLoadErrorAt(path, 0, opts.LinkCodeColumn, "column not found")
	}

	link := make(map[string]string, len(rows))
	for i, rec := range rows {
		row := i + 1
		if idCol >= len(rec) || codeCol >= len(rec) {
			return nil, errors.NewDataLoadErrorAt(path, row, "", "row is shorter than the header")
		}
		id := strings.TrimSpace(rec[idCol])
		code := strings.TrimSpace(rec[codeCol])
		if id == "" || code == "" {
			return nil, errors.NewDataLoadErrorAt(path, row, "", "empty sample id or code")
		}
		if _, dup := link[id]; dup {
			return nil, errors.NewDataLoadErrorAt(path, row, opts.LinkSpectraColumn, "duplicate sample id "+id)
		}
		link[id] = code
	}
	return link, nil
}

func combine(chem, phys *PropertyTable) *PropertyTable {
	out := &PropertyTable{Rows: make(map[string]map[string]float64)}
	out.Names = append(append(out.Names, chem.Names...), phys.Names...)
	sort.Strings(out.Names)
	for _, t := range []*PropertyTable{chem, phys} {
		for code, row := range t.Rows {
			dst, ok := out.Rows[code]
			if !ok {
				dst = make(map[string]float64, len(out.Names))
				out.Rows[code] = dst
			}
			for k, v := range row {
				dst[k] = v
			}
		}
	}
	return out
}

func indexOf(header []string, name string) int {
	for i, h := range header {
		if h == name {
			return i
		}
	}
	return -1
}
