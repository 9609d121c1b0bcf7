package models

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// NodeID identifies a node in the cluster. It is opaque to the executor:
// the membership layer mints it, the result pipeline only carries it.
type NodeID string

func (n NodeID) String() string {
	return string(n)
}

// JobConfig holds the variable bindings that distinguish one job from its
// siblings in a batch. It is immutable after creation: the coordinator builds
// it once when splitting the batch and the worker only reads it.
type JobConfig struct {
	bindings map[string]any
}

// NewJobConfig copies the given bindings into an immutable JobConfig.
func NewJobConfig(bindings map[string]any) JobConfig {
	copied := make(map[string]any, len(bindings))
	for k, v := range bindings {
		copied[k] = v
	}
	return JobConfig{bindings: copied}
}

// Bindings returns a copy of the variable bindings.
func (j JobConfig) Bindings() map[string]any {
	copied := make(map[string]any, len(j.bindings))
	for k, v := range j.bindings {
		copied[k] = v
	}
	return copied
}

// Value returns the bound value for a variable name.
func (j JobConfig) Value(name string) (any, bool) {
	v, ok := j.bindings[name]
	return v, ok
}

// String renders the bindings deterministically: keys sorted
// lexicographically, joined as "{k1=v1, k2=v2}". The rendering is part of the
// artifact-naming contract, so it must be stable across processes and across
// JSON round-trips (ints arriving as float64 render the same as they left).
func (j JobConfig) String() string {
	keys := make([]string, 0, len(j.bindings))
	for k := range j.bindings {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(sanitizeToken(k))
		b.WriteByte('=')
		b.WriteString(sanitizeToken(formatBindingValue(j.bindings[k])))
	}
	b.WriteByte('}')
	return b.String()
}

// Equal reports whether two configs carry the same bindings. Values are
// compared through their canonical rendering so that 1 and 1.0 are the same
// binding.
func (j JobConfig) Equal(other JobConfig) bool {
	if len(j.bindings) != len(other.bindings) {
		return false
	}
	for k, v := range j.bindings {
		ov, ok := other.bindings[k]
		if !ok || formatBindingValue(v) != formatBindingValue(ov) {
			return false
		}
	}
	return true
}

// ArtifactName derives the output artifact filename for a job submitted by
// the given identity: "<submitter>_<config>.txt". The output observer writes
// this file and the result assembler reads it back, so both sides must agree
// on this exact derivation. Re-running the same config under the same
// submitter targets the same name, which makes repeated submissions overwrite
// rather than accumulate.
func ArtifactName(submitter NodeID, config JobConfig) string {
	return sanitizeToken(string(submitter)) + "_" + config.String() + ".txt"
}

// formatBindingValue canonicalizes a binding value to text. Floats use the
// shortest representation that round-trips, so integral floats (the form JSON
// decoding produces for whole numbers) render without a trailing ".0".
func formatBindingValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'g', -1, 32)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// sanitizeToken replaces characters that are unsafe in filenames. The
// original convention put the raw config rendering into the filename; we keep
// the shape but refuse path separators and other hostile characters.
func sanitizeToken(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '_' || r == '-' || r == '=' || r == ',' ||
			r == '{' || r == '}' || r == ' ' || r == '+':
			return r
		default:
			return '-'
		}
	}, s)
}
