package node

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/canode/pkg/dsdl"
)

func TestParamRef(t *testing.T) {
	assert.Equal(t, dsdl.ParamGetSetRequest{Index: 3}, ParamRef("3"))
	assert.Equal(t, dsdl.ParamGetSetRequest{Name: "PARM_1"}, ParamRef("PARM_1"))
	assert.Equal(t, dsdl.ParamGetSetRequest{Name: "9000"}, ParamRef("9000"))
}

func TestParamValue(t *testing.T) {
	tests := []struct {
		arg    string
		expect dsdl.Value
	}{
		{"69", dsdl.IntegerValue(69)},
		{"-2", dsdl.IntegerValue(-2)},
		{"0x10", dsdl.IntegerValue(16)},
		{"0.5", dsdl.RealValue(0.5)},
		{"true", dsdl.Value{Tag: dsdl.ValueBoolean, Boolean: 1}},
	}
	for _, tc := range tests {
		t.Run(tc.arg, func(t *testing.T) {
			v, err := ParamValue(tc.arg)
			require.NoError(t, err)
			assert.Equal(t, tc.expect, v)
		})
	}
	_, err := ParamValue("fast")
	assert.Error(t, err)
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "69", FormatValue(dsdl.IntegerValue(69)))
	assert.Equal(t, "0.25", FormatValue(dsdl.RealValue(0.25)))
	assert.Equal(t, "true", FormatValue(dsdl.Value{Tag: dsdl.ValueBoolean, Boolean: 1}))
	assert.Equal(t, "-", FormatValue(dsdl.Value{}))
}
