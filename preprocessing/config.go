package preprocessing

import (
	"strconv"
	"strings"

	"github.com/YuminosukeSato/soilspec/pkg/errors"
)

// Config fully determines the feature transform applied to spectra.
// It is a value type; copies taken at the start of a training run cannot be
// changed by the caller afterwards.
type Config struct {
	Scale           bool `json:"scale" yaml:"scale" mapstructure:"scale"`
	UsePCA          bool `json:"use_pca" yaml:"use_pca" mapstructure:"use_pca"`
	NComponents     int  `json:"n_components,omitempty" yaml:"n_components,omitempty" mapstructure:"n_components"`
	DerivativeOrder int  `json:"derivative_order" yaml:"derivative_order" mapstructure:"derivative_order"`
}

// Validate checks the configuration on its own, independent of data shape.
func (c Config) Validate() error {
	if c.DerivativeOrder < 0 || c.DerivativeOrder > 2 {
		return errors.NewPreprocessingError("derivative_order", "must be 0, 1 or 2", c.DerivativeOrder)
	}
	if c.UsePCA && c.NComponents < 1 {
		return errors.NewPreprocessingError("n_components", "must be at least 1 when use_pca is set", c.NComponents)
	}
	if !c.UsePCA && c.NComponents < 0 {
		return errors.NewPreprocessingError("n_components", "must not be negative", c.NComponents)
	}
	return nil
}

// Normalize clears NComponents when PCA is disabled so that equal transforms
// compare equal.
func (c Config) Normalize() Config {
	if !c.UsePCA {
		c.NComponents = 0
	}
	return c
}

// Label returns the display identifier of the configuration, for example
// "StndScale_PCA10_deriv1" or "noScale".
func (c Config) Label() string {
	c = c.Normalize()
	var b strings.Builder
	if c.Scale {
		b.WriteString("StndScale")
	} else {
		b.WriteString("noScale")
	}
	if c.UsePCA {
		b.WriteString("_PCA")
		b.WriteString(strconv.Itoa(c.NComponents))
	}
	if c.DerivativeOrder > 0 {
		b.WriteString("_deriv")
		b.WriteString(strconv.Itoa(c.DerivativeOrder))
	}
	return b.String()
}

// Key returns the canonical string used in report keys.
func (c Config) Key() string {
	return c.Label()
}

// IsDerivative reports whether the configuration applies a spectral derivative.
func (c Config) IsDerivative() bool {
	return c.DerivativeOrder > 0
}

// ParseLabel parses the output of Label.
func ParseLabel(label string) (Config, error) {
	parts := strings.Split(strings.TrimSpace(label), "_")
	var c Config
	switch parts[0] {
	case "StndScale":
		c.Scale = true
	case "noScale":
	default:
		return Config{}, errors.NewPreprocessingError("label", "must start with StndScale or noScale", label)
	}
	for _, part := range parts[1:] {
		switch {
		case strings.HasPrefix(part, "PCA"):
			n, err := strconv.Atoi(strings.TrimPrefix(part, "PCA"))
			if err != nil {
				return Config{}, errors.NewPreprocessingError("label", "invalid PCA component count", label)
			}
			c.UsePCA, c.NComponents = true, n
		case strings.HasPrefix(part, "deriv"):
			n, err := strconv.Atoi(strings.TrimPrefix(part, "deriv"))
			if err != nil {
				return Config{}, errors.NewPreprocessingError("label", "invalid derivative order", label)
			}
			c.DerivativeOrder = n
		default:
			return Config{}, errors.NewPreprocessingError("label", "unknown part "+strconv.Quote(part), label)
		}
	}
	return c, c.Validate()
}
