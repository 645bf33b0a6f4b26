package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamarack-wildlife/settle-cli/internal/model"
)

func TestFormatDispersals(t *testing.T) {
	dispersals := []model.Dispersal{
		{Individual: "F01", Fixes: 48, DistanceKm: 12.482},
		{Individual: "M03", Fixes: 31, DistanceKm: 3.907},
	}

	var buf bytes.Buffer
	formatDispersals(&buf, dispersals)

	output := buf.String()
	assert.Contains(t, output, "INDIVIDUAL")
	assert.Contains(t, output, "DISTANCE_KM")
	assert.Contains(t, output, "F01")
	assert.Contains(t, output, "12.482")
	assert.Contains(t, output, "M03")
	assert.Contains(t, output, "3.907")
}

func TestFormatDispersals_Empty(t *testing.T) {
	var buf bytes.Buffer
	formatDispersals(&buf, nil)

	// Header and separator only.
	output := buf.String()
	assert.Contains(t, output, "INDIVIDUAL")
	assert.Contains(t, output, "FIXES")
}

func TestDisperseCmd_Flags_Exist(t *testing.T) {
	for _, name := range []string{"input", "crs", "output"} {
		require.NotNil(t, disperseCmd.Flags().Lookup(name), "flag %s", name)
	}
}
