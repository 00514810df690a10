package dataset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/followup/followup/internal/generator"
)

// Load reads every patient-*.json file in dir back into memory, sorted by
// patient ID for stable downstream iteration. summary.json and anything
// else in the directory is ignored.
func Load(dir string) ([]generator.PatientData, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "patient-*.json"))
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", dir, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no patient files found in %s", dir)
	}

	records := make([]generator.PatientData, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		var pd generator.PatientData
		if err := json.Unmarshal(data, &pd); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		records = append(records, pd)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].Patient.ID < records[j].Patient.ID
	})
	return records, nil
}
