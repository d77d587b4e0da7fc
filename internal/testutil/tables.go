package testutil

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/YuminosukeSato/soilspec/dataset"
)

// physical lists the properties written to physical.csv; all others go to
// chemical.csv.
var physical = map[string]bool{"Clay_Content": true, "Sand_Content": true, "Silt_Content": true}

// WriteTables writes ds as the four loader input tables into dir using the
// default file and column names. Lab codes are "L" + sample ID.
func WriteTables(dir string, ds *dataset.Dataset) error {
	files := dataset.DefaultFiles()

	header := []string{"sample_id"}
	for _, w := range ds.Wavelengths {
		header = append(header, strconv.FormatFloat(w, 'g', -1, 64))
	}
	rows := [][]string{header}
	link := [][]string{{"sample_id", "sample_code"}}
	for _, s := range ds.Samples {
		row := []string{s.ID}
		for _, v := range s.Reflectance {
			row = append(row, strconv.FormatFloat(v, 'g', -1, 64))
		}
		rows = append(rows, row)
		link = append(link, []string{s.ID, "L" + s.ID})
	}
	if err := writeCSV(filepath.Join(dir, files.Spectra), rows); err != nil {
		return err
	}
	if err := writeCSV(filepath.Join(dir, files.Link), link); err != nil {
		return err
	}

	var chem, phys []string
	for _, name := range ds.PropertyNames() {
		if physical[name] {
			phys = append(phys, name)
		} else {
			chem = append(chem, name)
		}
	}
	if err := writeCSV(filepath.Join(dir, files.Chemical), propertyRows(ds, chem)); err != nil {
		return err
	}
	return writeCSV(filepath.Join(dir, files.Physical), propertyRows(ds, phys))
}

func propertyRows(ds *dataset.Dataset, names []string) [][]string {
	sort.Strings(names)
	rows := [][]string{append([]string{"sample_code"}, names...)}
	for _, s := range ds.Samples {
		row := []string{"L" + s.ID}
		for _, n := range names {
			if v, ok := s.Value(n); ok {
				row = append(row, strconv.FormatFloat(v, 'g', -1, 64))
			} else {
				row = append(row, "NA")
			}
		}
		rows = append(rows, row)
	}
	return rows
}

func writeCSV(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
