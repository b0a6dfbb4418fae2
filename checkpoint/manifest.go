package checkpoint

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ManifestFilename sits next to the spin table.
const ManifestFilename = "run.yaml"

// Manifest records how the table in a working directory is being collected.
type Manifest struct {
	Profile                   string     `yaml:"profile"`
	HRange                    float64    `yaml:"h_range"`
	HStep                     float64    `yaml:"h_step"`
	ScalingFactor             float64    `yaml:"scaling_factor"`
	DeviceRange               [2]float64 `yaml:"device_range,flow"`
	NumReads                  int        `yaml:"num_reads"`
	AnnealingTime             int        `yaml:"annealing_time"`
	SpinReversalTransformRate int        `yaml:"spin_reversal_transform_rate,omitempty"`
	SpinIDs                   []int      `yaml:"spin_ids,flow"`
	Planned                   []float64  `yaml:"planned,flow"`
	StartedAt                 time.Time  `yaml:"started_at"`
}

// WriteManifest replaces the manifest in dir.
func WriteManifest(dir string, m Manifest) error {
	out, err := yaml.Marshal(m)
	if err != nil {
		return err
	}
	tmp := filepath.Join(dir, ManifestFilename+".tmp")
	if err := os.WriteFile(tmp, out, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(dir, ManifestFilename))
}

// ReadManifest loads the manifest in dir.
func ReadManifest(dir string) (Manifest, error) {
	var m Manifest
	data, err := os.ReadFile(filepath.Join(dir, ManifestFilename))
	if err != nil {
		return m, err
	}
	err = yaml.Unmarshal(data, &m)
	return m, err
}
