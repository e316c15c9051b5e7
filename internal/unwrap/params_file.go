package unwrap

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

type calibrationFile struct {
	Calibration Params `toml:"calibration"`
}

// LoadParams reads calibrated parameters from a TOML file.
func LoadParams(path string) (Params, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Params{}, err
	}
	var f calibrationFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return Params{}, fmt.Errorf("failed to parse calibration file: %w", err)
	}
	if err := f.Calibration.Validate(); err != nil {
		return Params{}, err
	}
	return f.Calibration, nil
}

// SaveParams writes parameters to path, replacing the file atomically.
func SaveParams(path string, p Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	data, err := toml.Marshal(calibrationFile{Calibration: p})
	if err != nil {
		return fmt.Errorf("failed to encode calibration: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write calibration file: %w", err)
	}
	return os.Rename(tmp, path)
}
