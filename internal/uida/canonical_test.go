package uida

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SakenW/transhub/internal/domain"
)

func TestCanonicalize_PermutationInvariance(t *testing.T) {
	k1 := map[string]any{
		"b": "two",
		"a": 1,
		"nested": map[string]any{
			"z": true,
			"y": nil,
			"x": []any{"p", "q", map[string]any{"k2": 2, "k1": 1}},
		},
	}
	k2 := map[string]any{
		"nested": map[string]any{
			"x": []any{"p", "q", map[string]any{"k1": 1, "k2": 2}},
			"y": nil,
			"z": true,
		},
		"a": 1,
		"b": "two",
	}

	b1, s1, h1, err := Canonicalize(k1)
	require.NoError(t, err)
	b2, s2, h2, err := Canonicalize(k2)
	require.NoError(t, err)

	assert.Equal(t, b1, b2)
	assert.Equal(t, s1, s2)
	assert.Equal(t, h1, h2)
}

func TestCanonicalize_Deterministic(t *testing.T) {
	keys := map[string]any{"id": "submit", "count": 3}
	b, _, _, err := Canonicalize(keys)
	require.NoError(t, err)
	assert.Equal(t, `{"count":3,"id":"submit"}`, string(b))
}

func TestCanonicalize_RejectsFloats(t *testing.T) {
	cases := []struct {
		name string
		keys map[string]any
	}{
		{"float64", map[string]any{"v": 1.5}},
		{"float32", map[string]any{"v": float32(1.5)}},
		{"nan", map[string]any{"v": math.NaN()}},
		{"inf", map[string]any{"v": math.Inf(1)}},
		{"nested float", map[string]any{"a": map[string]any{"b": []any{2.5}}}},
		{"float number literal", map[string]any{"v": json.Number("1.5")}},
		{"exponent number literal", map[string]any{"v": json.Number("1e3")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, _, err := Canonicalize(tc.keys)
			var cerr *domain.CanonicalizationError
			require.ErrorAs(t, err, &cerr)
			assert.NotEmpty(t, cerr.Path)
		})
	}
}

func TestCanonicalize_RejectsUnsupportedTypes(t *testing.T) {
	_, _, _, err := Canonicalize(map[string]any{"v": map[int]any{1: "x"}})
	var cerr *domain.CanonicalizationError
	require.ErrorAs(t, err, &cerr)

	_, _, _, err = Canonicalize(map[string]any{"v": struct{}{}})
	require.ErrorAs(t, err, &cerr)
}

func TestCanonicalize_ErrorPath(t *testing.T) {
	_, _, _, err := Canonicalize(map[string]any{"outer": map[string]any{"inner": 2.5}})
	var cerr *domain.CanonicalizationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "$.outer.inner", cerr.Path)
}

func TestCanonicalize_IntegerKinds(t *testing.T) {
	b, _, _, err := Canonicalize(map[string]any{
		"a": int64(-7),
		"b": uint32(9),
		"c": json.Number("42"),
	})
	require.NoError(t, err)
	assert.Equal(t, `{"a":-7,"b":9,"c":42}`, string(b))
}

func TestCanonicalize_SafeIntegerRange(t *testing.T) {
	_, _, _, err := Canonicalize(map[string]any{"v": int64(1) << 53})
	var cerr *domain.CanonicalizationError
	require.ErrorAs(t, err, &cerr)

	_, _, _, err = Canonicalize(map[string]any{"v": uint64(math.MaxUint64)})
	require.ErrorAs(t, err, &cerr)

	_, _, _, err = Canonicalize(map[string]any{"v": int64(1<<53 - 1)})
	require.NoError(t, err)
}

func TestCanonicalize_StringEscaping(t *testing.T) {
	b, _, _, err := Canonicalize(map[string]any{"s": "a\"b\\c\nd\te"})
	require.NoError(t, err)
	assert.Equal(t, `{"s":"a\"b\\c\nd\te"}`, string(b))
}

func TestCanonicalize_UnicodeLiteral(t *testing.T) {
	b, _, _, err := Canonicalize(map[string]any{"s": "größe 按钮"})
	require.NoError(t, err)
	assert.Equal(t, `{"s":"größe 按钮"}`, string(b))
}

func TestCanonicalJSON_Array(t *testing.T) {
	b, err := CanonicalJSON([]any{map[string]any{"b": 2, "a": 1}, "x"})
	require.NoError(t, err)
	assert.Equal(t, `[{"a":1,"b":2},"x"]`, string(b))
}
