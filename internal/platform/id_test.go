package platform

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestArtifactName(t *testing.T) {
	ts := time.Date(2025, 3, 14, 2, 0, 0, 0, time.UTC)
	assert.Equal(t, "backup_2025-03-14_02-00-00", ArtifactName(ts))
}

func TestArtifactTime_RoundTrip(t *testing.T) {
	ts := time.Date(2025, 3, 14, 2, 0, 0, 0, time.UTC)
	assert.Equal(t, ts, ArtifactTime(ArtifactName(ts)))
	assert.Equal(t, ts, ArtifactTime(ArtifactName(ts)+".zip"))
}

func TestArtifactTime_Unparseable(t *testing.T) {
	assert.True(t, ArtifactTime("backup_not-a-time").IsZero())
	assert.True(t, ArtifactTime("something-else").IsZero())
}

func TestIsArtifactName(t *testing.T) {
	assert.True(t, IsArtifactName("backup_2025-03-14_02-00-00.zip"))
	assert.True(t, IsArtifactName("backup_2025-03-14_02-00-00"))
	assert.False(t, IsArtifactName("dump.sql"))
}

func TestNewID_Unique(t *testing.T) {
	assert.NotEqual(t, NewID(), NewID())
}
