package telemetry

import (
	"context"
	"maps"
	"sort"
	"strings"

	"github.com/grafana/pyroscope-go"
)

// Label keys attached to request profiles. The HTTP middleware fills
// these from the matched gin route so profiles can be sliced by billing
// endpoint in the Pyroscope UI.
const (
	ProfilingLabelController = "controller"
	ProfilingLabelRoute      = "route"
	ProfilingLabelMethod     = "method"
)

// MaxLabelValueLength caps label values; anything longer is truncated
// before it reaches the profiler.
const MaxLabelValueLength = 128

// highCardinalityLabels lists keys that must never become profile
// labels. Document and request identifiers are unbounded and would blow
// up the profiler's label index.
var highCardinalityLabels = map[string]bool{
	"user_id":        true,
	"request_id":     true,
	"invoice_id":     true,
	"quotation_id":   true,
	"credit_note_id": true,
	"trace_id":       true,
	"span_id":        true,
}

// WithProfilingLabels runs fn with the given labels attached to the
// profiling context. Labels are sanitized first; the input map is copied
// and may be reused by the caller.
func WithProfilingLabels(ctx context.Context, labels map[string]string, fn func(context.Context)) {
	if len(labels) == 0 {
		fn(ctx)
		return
	}

	labelsCopy := make(map[string]string, len(labels))
	maps.Copy(labelsCopy, labels)

	pairs := sanitizeLabels(labelsCopy)
	if len(pairs) == 0 {
		fn(ctx)
		return
	}

	pyroscope.TagWrapper(ctx, pyroscope.Labels(pairs...), fn)
}

// sanitizeLabels drops empty and high-cardinality labels, truncates long
// values and returns the remainder as a sorted key-value slice.
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
		if key == "" || value == "" || highCardinalityLabels[key] {
			continue
		}
		if len(value) > MaxLabelValueLength {
			value = value[:MaxLabelValueLength]
		}
		sanitized := sanitizeLabelKey(key)
		if sanitized == "" {
			continue
		}
		pairs = append(pairs, sanitized, value)
	}

	return pairs
}

// sanitizeLabelKey normalizes a key to snake_case ASCII
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
