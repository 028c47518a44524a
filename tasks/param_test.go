package tasks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParamDefaultsAndTypes(t *testing.T) {
	var (
		f    float64
		b    bool
		n    int
		s    string
		list []string
	)

	set := NewParamSet()
	set.Bind("Control Frequency", &f).DefaultValue("10").Units("hertz")
	set.Bind("Course Control", &b).DefaultValue("true")
	set.Bind("Forward Samples", &n).DefaultValue("5")
	set.Bind("Label", &s).DefaultValue(`"Bottom Track"`)
	set.Bind("Safe Entities", &list).DefaultValue("IMU, Depth Sensor")

	require.NoError(t, set.Load(map[string]string{}))

	assert.Equal(t, 10.0, f)
	assert.True(t, b)
	assert.Equal(t, 5, n)
	assert.Equal(t, "Bottom Track", s)
	assert.Equal(t, []string{"IMU", "Depth Sensor"}, list)
}

func TestParamUnitTaggedScalar(t *testing.T) {
	var f float64

	set := NewParamSet()
	set.Bind("Safe Pitch", &f).DefaultValue("15.0").Units("degree")

	require.NoError(t, set.Load(map[string]string{"Safe Pitch": "20.0 deg"}))
	assert.Equal(t, 20.0, f)
}

func TestParamRangeValidation(t *testing.T) {
	var f float64

	set := NewParamSet()
	set.Bind("Frequency", &f).DefaultValue("1").MinimumValue(0.1).MaximumValue(100)

	assert.Error(t, set.Load(map[string]string{"Frequency": "0"}))
	assert.Error(t, set.Load(map[string]string{"Frequency": "1000"}))
	assert.NoError(t, set.Load(map[string]string{"Frequency": "50"}))
}

func TestParamSizeValidation(t *testing.T) {
	var list []string

	set := NewParamSet()
	set.Bind("Names", &list).DefaultValue("a,b").MinimumSize(2).MaximumSize(3)

	assert.Error(t, set.Load(map[string]string{"Names": "a"}))
	assert.Error(t, set.Load(map[string]string{"Names": "a,b,c,d"}))
	assert.NoError(t, set.Load(map[string]string{"Names": "a,b,c"}))
}

func TestParamEnumeratedValues(t *testing.T) {
	var s string

	set := NewParamSet()
	set.Bind("Mode", &s).DefaultValue("auto").Values("auto", "manual")

	assert.Error(t, set.Load(map[string]string{"Mode": "wild"}))
	assert.NoError(t, set.Load(map[string]string{"Mode": "manual"}))
	assert.Equal(t, "manual", s)
}

func TestParamInvalidTextIsFatal(t *testing.T) {
	var f float64

	set := NewParamSet()
	set.Bind("Frequency", &f).DefaultValue("1")

	assert.Error(t, set.Load(map[string]string{"Frequency": "fast"}))
}

func TestParamChangedFlag(t *testing.T) {
	var f float64

	set := NewParamSet()
	p := set.Bind("Frequency", &f).DefaultValue("1")

	require.NoError(t, set.Load(map[string]string{}))
	assert.True(t, p.Changed(), "initial binding counts as a change")
	assert.False(t, p.Changed(), "reading clears the flag")

	require.NoError(t, set.Load(map[string]string{"Frequency": "1"}))
	assert.False(t, p.Changed(), "same value is not a change")

	require.NoError(t, set.Load(map[string]string{"Frequency": "2"}))
	assert.True(t, p.Changed())
}

func TestParamDuplicateDeclarationPanics(t *testing.T) {
	var f float64

	set := NewParamSet()
	set.Bind("Frequency", &f)

	assert.Panics(t, func() { set.Bind("Frequency", &f) })
}
