// -----------------------------------------------------------------------
// Resource Calculator - Normalizes raw consumption into billing units
// -----------------------------------------------------------------------

package resources

import (
	"fmt"
	"math"

	"github.com/ternarybob/tracto/internal/models"
)

// Unit conversion constants. Compute units weight page handling, wall-clock
// processing time and token throughput; storage units are megabytes touched.
const (
	unitsPerPage        = 1.0
	unitsPerSecond      = 0.5
	tokensPerUnit       = 1000.0
	bytesPerStorageUnit = 1024 * 1024
)

// Calculator converts raw consumption measures into normalized units.
// It is pure and deterministic: identical input always yields identical
// output, which cache reuse and test reproducibility depend on.
type Calculator struct {
	computeWeight float64
	storageWeight float64
}

// NewCalculator creates a calculator with the given total-unit weights.
// Weights default to 1.0 each when non-positive, so the default total is
// compute + storage.
func NewCalculator(computeWeight, storageWeight float64) *Calculator {
	if computeWeight <= 0 {
		computeWeight = 1.0
	}
	if storageWeight <= 0 {
		storageWeight = 1.0
	}
	return &Calculator{
		computeWeight: computeWeight,
		storageWeight: storageWeight,
	}
}

// ComputeUnits converts page, duration and token measures into compute units
func (c *Calculator) ComputeUnits(m models.Measurement) (float64, error) {
	if err := validate(m); err != nil {
		return 0, err
	}
	units := float64(m.Pages)*unitsPerPage +
		m.DurationSeconds*unitsPerSecond +
		float64(m.Tokens)/tokensPerUnit
	return units, nil
}

// StorageUnits converts bytes processed into storage units
func (c *Calculator) StorageUnits(m models.Measurement) (float64, error) {
	if err := validate(m); err != nil {
		return 0, err
	}
	return float64(m.Bytes) / bytesPerStorageUnit, nil
}

// TotalUnits combines compute and storage units with the configured weights
func (c *Calculator) TotalUnits(computeUnits, storageUnits float64) (float64, error) {
	if !isFinite(computeUnits) || computeUnits < 0 {
		return 0, fmt.Errorf("%w: compute units %v", models.ErrInvalidMeasurement, computeUnits)
	}
	if !isFinite(storageUnits) || storageUnits < 0 {
		return 0, fmt.Errorf("%w: storage units %v", models.ErrInvalidMeasurement, storageUnits)
	}
	return c.computeWeight*computeUnits + c.storageWeight*storageUnits, nil
}

// Usage computes the full usage record for one consumption measurement
func (c *Calculator) Usage(m models.Measurement) (models.ResourceUsage, error) {
	compute, err := c.ComputeUnits(m)
	if err != nil {
		return models.ResourceUsage{}, err
	}
	storage, err := c.StorageUnits(m)
	if err != nil {
		return models.ResourceUsage{}, err
	}
	total, err := c.TotalUnits(compute, storage)
	if err != nil {
		return models.ResourceUsage{}, err
	}
	return models.ResourceUsage{
		ComputeUnits: compute,
		StorageUnits: storage,
		TotalUnits:   total,
	}, nil
}

func validate(m models.Measurement) error {
	if m.Bytes < 0 {
		return fmt.Errorf("%w: negative bytes %d", models.ErrInvalidMeasurement, m.Bytes)
	}
	if m.Pages < 0 {
		return fmt.Errorf("%w: negative pages %d", models.ErrInvalidMeasurement, m.Pages)
	}
	if m.Tokens < 0 {
		return fmt.Errorf("%w: negative tokens %d", models.ErrInvalidMeasurement, m.Tokens)
	}
	if !isFinite(m.DurationSeconds) || m.DurationSeconds < 0 {
		return fmt.Errorf("%w: invalid duration %v", models.ErrInvalidMeasurement, m.DurationSeconds)
	}
	return nil
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
