package deployer

import (
	"fmt"

	"k8s.io/apimachinery/pkg/api/resource"

	"github.com/skillcoder/jobadapter/internal/logic/job"
)

// memoryHeadroomRatio bounds how far the memory request may fall below the limit.
const memoryHeadroomRatio = 4

// ComputeLimits resolves the effective resources of a job from what the manifest
// declares, falling back to defaults. A zero ceiling disables the ceiling check.
func ComputeLimits(
	declared *job.DeclaredResources,
	defaults job.ResourceLimits,
	ceiling resource.Quantity,
) (job.ResourceLimits, error) {
	if declared == nil {
		declared = &job.DeclaredResources{}
	}

	out := job.ResourceLimits{
		MemoryMin: pick(declared.MemoryMin, defaults.MemoryMin),
		MemoryMax: pick(declared.MemoryMax, defaults.MemoryMax),
		CPUMin:    pick(declared.CPUMin, defaults.CPUMin),
		CPUMax:    pick(declared.CPUMax, defaults.CPUMax),
	}

	if declared.MemoryMax == nil && out.MemoryMax.Cmp(out.MemoryMin) < 0 {
		out.MemoryMax = out.MemoryMin.DeepCopy()
	}

	if declared.CPUMax == nil && out.CPUMax.Cmp(out.CPUMin) < 0 {
		out.CPUMax = out.CPUMin.DeepCopy()
	}

	if out.MemoryMin.Value()*memoryHeadroomRatio < out.MemoryMax.Value() {
		out.MemoryMin = *resource.NewQuantity(out.MemoryMax.Value()/memoryHeadroomRatio, resource.BinarySI)
	}

	if err := validateLimits(out, ceiling); err != nil {
		return job.ResourceLimits{}, err
	}

	return out, nil
}

func validateLimits(limits job.ResourceLimits, ceiling resource.Quantity) error {
	switch {
	case !ceiling.IsZero() && limits.MemoryMax.Cmp(ceiling) > 0:
		return limitsError("given memory limit %s is greater than max allowed %s",
			limits.MemoryMax.String(), ceiling.String())
	case limits.MemoryMin.Sign() <= 0:
		return limitsError("memory_min must be greater than zero, got %s", limits.MemoryMin.String())
	case limits.CPUMin.Sign() <= 0:
		return limitsError("cpu_min must be greater than zero, got %s", limits.CPUMin.String())
	case limits.MemoryMin.Cmp(limits.MemoryMax) > 0:
		return limitsError("memory_min %s must not exceed memory_max %s",
			limits.MemoryMin.String(), limits.MemoryMax.String())
	case limits.CPUMin.Cmp(limits.CPUMax) > 0:
		return limitsError("cpu_min %s must not exceed cpu_max %s",
			limits.CPUMin.String(), limits.CPUMax.String())
	}

	return nil
}

func limitsError(format string, args ...any) error {
	return &job.ConfigurationError{
		Err:    job.ErrInvalidLimits,
		Detail: fmt.Sprintf(format, args...),
	}
}

func pick(declared *resource.Quantity, fallback resource.Quantity) resource.Quantity {
	if declared != nil {
		return declared.DeepCopy()
	}

	return fallback.DeepCopy()
}
