package gpio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDriver_Mock(t *testing.T) {
	drv, err := NewDriver(BackendMock, "")
	require.NoError(t, err)
	_, ok := drv.(*MockDriver)
	assert.True(t, ok, "mock backend should return *MockDriver")
	require.NoError(t, drv.Close())
}

func TestNewDriver_Unknown(t *testing.T) {
	_, err := NewDriver("spi", "")
	require.Error(t, err)
}

func TestMockDriver_InputsDefaultHigh(t *testing.T) {
	drv := NewMockDriver()
	require.NoError(t, drv.SetupPin(3, InputPullUp))

	l, err := drv.ReadPin(3)
	require.NoError(t, err)
	assert.Equal(t, High, l, "unset inputs read as pulled up")

	drv.SetInput(3, Low)
	l, err = drv.ReadPin(3)
	require.NoError(t, err)
	assert.Equal(t, Low, l)

	mode, ok := drv.Mode(3)
	require.True(t, ok)
	assert.Equal(t, InputPullUp, mode)
}

func TestMockDriver_WriteRecordsOutput(t *testing.T) {
	drv := NewMockDriver()
	_, ok := drv.Output(17)
	assert.False(t, ok)

	require.NoError(t, drv.WritePin(17, High))
	l, ok := drv.Output(17)
	require.True(t, ok)
	assert.Equal(t, High, l)
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "HIGH", High.String())
	assert.Equal(t, "LOW", Low.String())
}

func TestMockDriver_HoldSurvivesClose(t *testing.T) {
	drv := NewMockDriver()
	var _ Holder = drv
	require.NoError(t, drv.SetupPin(20, Output))
	require.NoError(t, drv.WritePin(20, High))

	drv.Hold(20)
	require.NoError(t, drv.Close())

	assert.True(t, drv.Held(20))
	assert.False(t, drv.Held(21))
	l, ok := drv.Output(20)
	require.True(t, ok)
	assert.Equal(t, High, l)
}
