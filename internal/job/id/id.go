// Package id provides unique identifier generation for jobs.
package id

import (
	"strings"

	"github.com/google/uuid"
)

const prefix = "job-"

// Generate creates a new unique job ID of the form job-<uuid v4>.
func Generate() string {
	return prefix + uuid.NewString()
}

// Valid reports whether s looks like an ID produced by Generate.
func Valid(s string) bool {
	rest, ok := strings.CutPrefix(s, prefix)
	if !ok || rest == "" {
		return false
	}
	return uuid.Validate(rest) == nil
}
