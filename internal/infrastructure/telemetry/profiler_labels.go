// Profiling labels let Pyroscope slice CPU time by handler, operation, and
// tenant. Keys must stay low-cardinality: a per-movement or per-serial label
// would explode the profile store.
package telemetry

import (
	"context"
	"maps"
	"sort"
	"strings"

	"github.com/grafana/pyroscope-go"
)

const (
	ProfilingLabelController = "controller"
	ProfilingLabelRoute      = "route"
	ProfilingLabelMethod     = "method"
	ProfilingLabelTenantID   = "tenant_id"
	ProfilingLabelOperation  = "operation"
)

// MaxLabelValueLength caps label values before they reach Pyroscope.
const MaxLabelValueLength = 128

// HighCardinalityLabels are keys sanitizeLabels silently drops. One value per
// movement, request, or serial unit would make profiles unusable. tenant_id
// is deliberately absent: tenant counts stay low enough to label.
var HighCardinalityLabels = map[string]bool{
	"request_id":     true,
	"transaction_id": true,
	"movement_id":    true,
	"serial_number":  true,
	"trace_id":       true,
	"span_id":        true,
}

// WithProfilingLabels runs fn with the labels attached to the goroutine's
// pprof context. Labels are sanitized first; with nothing left after
// sanitizing, fn runs unlabeled. The input map is copied, so callers may
// reuse it.
func WithProfilingLabels(ctx context.Context, labels map[string]string, fn func(context.Context)) {
	if len(labels) == 0 {
		fn(ctx)
		return
	}

	labelsCopy := make(map[string]string, len(labels))
	maps.Copy(labelsCopy, labels)

	labelPairs := sanitizeLabels(labelsCopy)
	if len(labelPairs) == 0 {
		fn(ctx)
		return
	}

	pyroscope.TagWrapper(ctx, pyroscope.Labels(labelPairs...), fn)
}

// OperationLabels builds the label set for a named service operation.
func OperationLabels(operation string, extraLabels map[string]string) map[string]string {
	labels := make(map[string]string, len(extraLabels)+1)
	labels[ProfilingLabelOperation] = operation
	maps.Copy(labels, extraLabels)
	return labels
}

// sanitizeLabels flattens a label map into the pair slice Pyroscope expects:
// high-cardinality and empty entries dropped, values truncated, keys
// normalized, output sorted for determinism.
func sanitizeLabels(labels map[string]string) []string {
	if len(labels) == 0 {
		return nil
	}

	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(labels)*2)
	for _, key := range keys {
		value := labels[key]
		if key == "" || value == "" {
			continue
		}
		if HighCardinalityLabels[key] {
			continue
		}
		if len(value) > MaxLabelValueLength {
			value = value[:MaxLabelValueLength]
		}
		sanitizedKey := sanitizeLabelKey(key)
		if sanitizedKey == "" {
			continue
		}
		pairs = append(pairs, sanitizedKey, value)
	}
	return pairs
}

// sanitizeLabelKey normalizes a key to snake_case alphanumerics.
func sanitizeLabelKey(key string) string {
	key = strings.ToLower(key)
	key = strings.ReplaceAll(key, " ", "_")
	key = strings.ReplaceAll(key, "-", "_")

	result := make([]byte, 0, len(key))
	for i := 0; i < len(key); i++ {
		c := key[i]
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '_' {
			result = append(result, c)
		}
	}
	return string(result)
}
