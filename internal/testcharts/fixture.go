package testcharts

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/okian/kline/internal/domain/chart"
)

// ErrInvalidFixture is returned for fixtures that cannot describe a chart.
var ErrInvalidFixture = errors.New("invalid chart fixture")

// Fixture is the on-disk form of a chart.
type Fixture struct {
	BirthYear int            `yaml:"birth_year" json:"birth_year"`
	Palaces   []chart.Palace `yaml:"palaces" json:"palaces"`
}

// Almanac turns the fixture into a chart.
func (f Fixture) Almanac(opts ...chart.AlmanacOption) (*chart.Almanac, error) {
	if f.BirthYear <= 0 {
		return nil, fmt.Errorf("%w: birth_year %d", ErrInvalidFixture, f.BirthYear)
	}
	a, err := chart.NewAlmanac(f.BirthYear, f.Palaces, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFixture, err)
	}
	return a, nil
}

// Decode reads a YAML (or JSON) fixture.
func Decode(r io.Reader) (Fixture, error) {
	var f Fixture
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		return Fixture{}, fmt.Errorf("%w: %w", ErrInvalidFixture, err)
	}
	return f, nil
}

// Encode writes f as YAML.
func Encode(w io.Writer, f Fixture) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		return err
	}
	return enc.Close()
}

// Load reads a fixture file.
func Load(path string) (Fixture, error) {
	fh, err := os.Open(path) //nolint:gosec // path comes from the operator
	if err != nil {
		return Fixture{}, err
	}
	defer func() { _ = fh.Close() }()
	return Decode(fh)
}
