package deployer

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"k8s.io/apimachinery/pkg/util/validation"

	"github.com/skillcoder/jobadapter/internal/logic/job"
)

// ValidateLabels checks the manifest labels copied onto job pods. Keys must be
// qualified names outside the adapter's own prefix and values valid label values.
func ValidateLabels(labels map[string]string) error {
	var errs error

	for _, key := range slices.Sorted(maps.Keys(labels)) {
		if strings.HasPrefix(key, job.LabelPrefix) {
			errs = errors.Join(errs, fmt.Errorf("label %q: prefix %s is reserved", key, job.LabelPrefix))

			continue
		}

		if msgs := validation.IsQualifiedName(key); len(msgs) > 0 {
			errs = errors.Join(errs, fmt.Errorf("label key %q: %s", key, strings.Join(msgs, "; ")))
		}

		if msgs := validation.IsValidLabelValue(labels[key]); len(msgs) > 0 {
			errs = errors.Join(errs, fmt.Errorf("label %q value %q: %s", key, labels[key], strings.Join(msgs, "; ")))
		}
	}

	if errs != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, errs)
	}

	return nil
}
