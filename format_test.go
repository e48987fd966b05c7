package lal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountParameters(t *testing.T) {
	assert.Equal(t, 0, countParameters("no placeholders here"))
	assert.Equal(t, 1, countParameters("value: {}"))
	assert.Equal(t, 3, countParameters("{} plus {} equals {}"))
}

func TestParamKeyForStandardTypes(t *testing.T) {
	cases := []any{
		int8(1), uint8(1), int16(1), uint16(1),
		int32(1), uint32(1), int64(1), uint64(1),
		float32(1), float64(1),
	}
	seen := map[ParameterKey]bool{}
	for _, v := range cases {
		key, size, ok := ParamKeyFor(v)
		require.Truef(t, ok, "expected %T to be a standard catalog type", v)
		assert.Greater(t, size, uint32(0))
		assert.False(t, seen[key], "ParameterKey collision for %T", v)
		seen[key] = true
	}
}

func TestParamKeyForRejectsUnknownType(t *testing.T) {
	_, _, ok := ParamKeyFor("a string is not in the standard catalog")
	assert.False(t, ok)
}

func TestStandardParameterSizesMatchesParamKeyFor(t *testing.T) {
	sizes := StandardParameterSizes()
	key, size, ok := ParamKeyFor(int32(0))
	require.True(t, ok)
	assert.Equal(t, size, sizes[key])
}

func TestDescribeTemplateXORsParameterKeysIntoMessageKey(t *testing.T) {
	tmplA := testTemplate{message: "a {}", category: 1}
	key1, paramKeys, _, payloadSize, err := describeTemplate(tmplA, []any{int32(0)})
	require.NoError(t, err)
	require.Len(t, paramKeys, 1)
	assert.Equal(t, uint32(4), payloadSize)

	key2, _, _, _, err := describeTemplate(tmplA, []any{float32(0)})
	require.NoError(t, err)
	assert.NotEqual(t, key1, key2, "different parameter types must yield different keys")
}

func TestDescribeTemplateRejectsUnsupportedType(t *testing.T) {
	tmpl := testTemplate{message: "{}", category: 0}
	_, _, _, _, err := describeTemplate(tmpl, []any{"oops"})
	require.Error(t, err)
	var lalErr *Error
	require.ErrorAs(t, err, &lalErr)
	assert.Equal(t, ErrContractViolation, lalErr.Kind)
}

type testTemplate struct {
	message  string
	category uint32
}

func (t testTemplate) Message() string  { return t.message }
func (t testTemplate) Category() uint32 { return t.category }
