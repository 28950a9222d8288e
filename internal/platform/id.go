package platform

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

func NewID() string {
	return uuid.New().String()
}

// artifactTimeLayout is the timestamp embedded in artifact names,
// e.g. backup_2025-03-14_02-00-00.
const artifactTimeLayout = "2006-01-02_15-04-05"

const artifactPrefix = "backup_"

// ArtifactName returns the canonical artifact stem for a run started at t,
// without any .zip suffix.
func ArtifactName(t time.Time) string {
	return artifactPrefix + t.UTC().Format(artifactTimeLayout)
}

// IsArtifactName reports whether name follows the backup naming convention,
// with or without a .zip suffix.
func IsArtifactName(name string) bool {
	return strings.HasPrefix(name, artifactPrefix)
}

// ArtifactTime extracts the run timestamp from an artifact name. The zero
// time is returned for names that don't carry a parseable timestamp.
func ArtifactTime(name string) time.Time {
	stem := strings.TrimSuffix(name, ".zip")
	stem = strings.TrimPrefix(stem, artifactPrefix)
	t, err := time.Parse(artifactTimeLayout, stem)
	if err != nil {
		return time.Time{}
	}
	return t
}
