package agent

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTextResultWrapsTextInASingleContentPart(t *testing.T) {
	res := TextResult("done", false)
	require.Equal(t, []ContentPart{TextPart{Text: "done"}}, res.Content)
	require.False(t, res.IsError)
}

func TestTextResultCarriesTheErrorFlag(t *testing.T) {
	res := TextResult("boom", true)
	require.True(t, res.IsError)
}
