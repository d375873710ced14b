package stepper

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRampTable_Validation(t *testing.T) {
	cases := []struct {
		name   string
		delays []float64
	}{
		{"empty", nil},
		{"zero", []float64{0.001, 0}},
		{"negative", []float64{-0.001}},
		{"increasing", []float64{0.002, 0.001, 0.0015}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewRampTable(tc.delays)
			require.Error(t, err)
		})
	}
}

func TestNewRampTable_CopiesInput(t *testing.T) {
	in := []float64{0.004, 0.002, 0.001}
	table, err := NewRampTable(in)
	require.NoError(t, err)
	in[0] = 1
	assert.Equal(t, 0.004, table.At(0))
	assert.Equal(t, 3, table.Len())
	assert.Equal(t, 0.001, table.MinDelay())
}

func TestRampTable_StopIndex(t *testing.T) {
	table, err := NewRampTable([]float64{0.008, 0.004, 0.002, 0.001, 0.001})
	require.NoError(t, err)

	assert.Equal(t, 0, table.StopIndex(0.01), "slower than the start needs no ramp")
	assert.Equal(t, 0, table.StopIndex(0.008))
	assert.Equal(t, 2, table.StopIndex(0.003))
	assert.Equal(t, 2, table.StopIndex(0.002))
	assert.Equal(t, 3, table.StopIndex(0.001))
	assert.Equal(t, 3, table.StopIndex(0.0001), "targets past the table clamp to its minimum delay")
}

func TestLoadRampTable_CSV(t *testing.T) {
	src := "0.004\n0.003,ignored\n\n0.002\n"
	table, err := LoadRampTable(strings.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, 3, table.Len())
	assert.Equal(t, 0.002, table.MinDelay())
}

func TestLoadRampTable_BadNumber(t *testing.T) {
	_, err := LoadRampTable(strings.NewReader("0.004\nfast\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestNewConstantAccelRamp(t *testing.T) {
	table, err := NewConstantAccelRamp(500, 9600, 20000)
	require.NoError(t, err)
	require.Greater(t, table.Len(), 2)

	assert.InDelta(t, 1.0/(2*500), table.At(0), 1e-12)
	assert.InDelta(t, 1.0/(2*9600), table.MinDelay(), 1e-12)
	for i := 1; i < table.Len(); i++ {
		assert.LessOrEqual(t, table.At(i), table.At(i-1), "entry %d must not increase", i)
	}

	_, err = NewConstantAccelRamp(0, 9600, 1)
	require.Error(t, err)
}
