// Package dataset loads VNIR reflectance spectra and laboratory soil
// properties and joins them into an immutable Dataset.
package dataset

import (
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/soilspec/pkg/errors"
)

// SpectralSample is one measured soil sample.
// A property absent from Properties is missing for that sample.
type SpectralSample struct {
	ID          string
	Reflectance []float64
	Properties  map[string]float64
}

// Value returns the measured value of property name.
func (s SpectralSample) Value(name string) (float64, bool) {
	v, ok := s.Properties[name]
	return v, ok
}

// Dataset is a set of samples sharing one ordered wavelength axis.
// It is not modified after construction and may be read concurrently.
type Dataset struct {
	Wavelengths []float64
	Samples     []SpectralSample

	propertyNames []string
}

// New validates samples against wavelengths and builds a Dataset.
// Property names are the union of the sample property keys.
func New(wavelengths []float64, samples []SpectralSample) (*Dataset, error) {
	ds := &Dataset{Wavelengths: wavelengths, Samples: samples}
	if err := ds.Validate(); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	for _, s := range samples {
		for name := range s.Properties {
			seen[name] = struct{}{}
		}
	}
	for name := range seen {
		ds.propertyNames = append(ds.propertyNames, name)
	}
	sort.Strings(ds.propertyNames)
	return ds, nil
}

// Validate checks that every spectrum has one value per wavelength and that
// sample IDs are unique.
func (d *Dataset) Validate() error {
	if len(d.Wavelengths) == 0 {
		return errors.NewValidationError("wavelengths", "must not be empty", 0)
	}
	ids := make(map[string]struct{}, len(d.Samples))
	for _, s := range d.Samples {
		if len(s.Reflectance) != len(d.Wavelengths) {
			return errors.NewDimensionError("Dataset.Validate sample "+s.ID, len(d.Wavelengths), len(s.Reflectance), 1)
		}
		if _, dup := ids[s.ID]; dup {
			return errors.NewValidationError("sample_id", "duplicate sample id", s.ID)
		}
		ids[s.ID] = struct{}{}
	}
	return nil
}

// Len returns the number of samples.
func (d *Dataset) Len() int { return len(d.Samples) }

// NBands returns the number of wavelength bands.
func (d *Dataset) NBands() int { return len(d.Wavelengths) }

// PropertyNames returns the sorted property names present in the dataset.
func (d *Dataset) PropertyNames() []string {
	out := make([]string, len(d.propertyNames))
	copy(out, d.propertyNames)
	return out
}

// HasProperty reports whether any sample carries property name.
func (d *Dataset) HasProperty(name string) bool {
	i := sort.SearchStrings(d.propertyNames, name)
	return i < len(d.propertyNames) && d.propertyNames[i] == name
}

// Target returns the spectra, values and IDs of the samples that have a
// measured value for property name, in dataset order. Samples missing that
// property are excluded here only.
func (d *Dataset) Target(name string) (*mat.Dense, []float64, []string, error) {
	if !d.HasProperty(name) {
		return nil, nil, nil, errors.NewValidationError("target", "unknown property", name)
	}

	var y []float64
	var ids []string
	var data []float64
	for _, s := range d.Samples {
		v, ok := s.Value(name)
		if !ok {
			continue
		}
		y = append(y, v)
		ids = append(ids, s.ID)
		data = append(data, s.Reflectance...)
	}
	if len(y) == 0 {
		return nil, nil, nil, errors.Wrapf(errors.ErrEmptyData, "no measured values for %q", name)
	}
	return mat.NewDense(len(y), d.NBands(), data), y, ids, nil
}

// Spectra returns all reflectance spectra as a samples × bands matrix.
func (d *Dataset) Spectra() *mat.Dense {
	if len(d.Samples) == 0 {
		return nil
	}
	data := make([]float64, 0, len(d.Samples)*d.NBands())
	for _, s := range d.Samples {
		data = append(data, s.Reflectance...)
	}
	return mat.NewDense(len(d.Samples), d.NBands(), data)
}

// IDs returns the sample IDs in dataset order.
func (d *Dataset) IDs() []string {
	ids := make([]string, len(d.Samples))
	for i, s := range d.Samples {
		ids[i] = s.ID
	}
	return ids
}

// MissingCount returns how many samples lack property name.
func (d *Dataset) MissingCount(name string) int {
	n := 0
	for _, s := range d.Samples {
		if _, ok := s.Properties[name]; !ok {
			n++
		}
	}
	return n
}

// PropertyTable holds the combined chemical and physical measurements keyed
// by laboratory sample code.
type PropertyTable struct {
	Names []string
	Rows  map[string]map[string]float64
}

// Value returns the measured value of property name for code.
func (p *PropertyTable) Value(code, name string) (float64, bool) {
	row, ok := p.Rows[code]
	if !ok {
		return 0, false
	}
	v, ok := row[name]
	return v, ok
}

// Codes returns the sample codes in sorted order.
func (p *PropertyTable) Codes() []string {
	codes := make([]string, 0, len(p.Rows))
	for c := range p.Rows {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}
