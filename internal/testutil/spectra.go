// Package testutil builds small synthetic spectral datasets for tests.
package testutil

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/YuminosukeSato/soilspec/dataset"
)

// Spectra configures Dataset.
type Spectra struct {
	Samples int
	Bands   int
	Seed    uint64
	// Missing is the share of samples without a pH value.
	Missing float64
}

// Dataset generates reflectance driven by two latent factors.
// Organic_Carbon is a noisy linear function of the first factor, pH of the
// second, Clay_Content of both.
func Dataset(s Spectra) (*dataset.Dataset, error) {
	r := rand.New(rand.NewPCG(s.Seed, s.Seed^0xda3e39cb94b95bdb))
	wl := make([]float64, s.Bands)
	for j := range wl {
		wl[j] = 400 + 10*float64(j)
	}
	samples := make([]dataset.SpectralSample, s.Samples)
	for i := range samples {
		a, b := r.NormFloat64(), r.NormFloat64()
		refl := make([]float64, s.Bands)
		for j := range refl {
			x := float64(j) / float64(s.Bands)
			refl[j] = 0.3 + 0.08*a*math.Sin(math.Pi*x) + 0.05*b*math.Cos(2*math.Pi*x) + 0.002*r.NormFloat64()
		}
		props := map[string]float64{
			"Organic_Carbon": 2 + 1.5*a + 0.1*r.NormFloat64(),
			"Clay_Content":   25 + 4*a - 3*b + 0.5*r.NormFloat64(),
		}
		ph := 6.5 + 0.6*b + 0.05*r.NormFloat64()
		if r.Float64() >= s.Missing {
			props["pH"] = ph
		}
		samples[i] = dataset.SpectralSample{
			ID:          fmt.Sprintf("S%04d", i),
			Reflectance: refl,
			Properties:  props,
		}
	}
	return dataset.New(wl, samples)
}
