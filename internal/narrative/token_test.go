package narrative

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimatedCounter(t *testing.T) {
	c := NewEstimatedCounter(4)

	assert.Equal(t, 0, c.Count(""))
	assert.Equal(t, 25, c.Count(strings.Repeat("x", 100)))
}

func TestEstimatedCounterDefaultsCalibration(t *testing.T) {
	assert.Equal(t, 4.0, NewEstimatedCounter(0).CharsPerToken)
	assert.Equal(t, 4.0, NewEstimatedCounter(-1).CharsPerToken)
	assert.Equal(t, 3.5, NewEstimatedCounter(3.5).CharsPerToken)
}

func TestTiktokenCounterUnknownModelFallsBack(t *testing.T) {
	c, err := NewTiktokenCounter("not-a-real-model")
	if err != nil {
		// tiktoken-go fetches the BPE file when it is not cached locally,
		// so construction fails on hosts without network access.
		t.Skipf("cl100k_base encoding unavailable: %v", err)
	}
	require.NotNil(t, c)

	n := c.Count("The boat slid into the fog.")
	assert.Greater(t, n, 0)
	assert.Less(t, n, 27)
}
