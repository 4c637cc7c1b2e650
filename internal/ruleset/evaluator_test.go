package ruleset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kneutral-org/checkconfig/internal/params"
)

func paramRules() []Rule {
	return []Rule{
		{ID: "disabled", Disabled: true, Value: map[string]any{"levels": []any{1, 2}}},
		{ID: "web", Condition: Condition{HostNames: []string{"web01"}}, Value: map[string]any{"levels": []any{80, 90}}},
		{ID: "db", Condition: Condition{HostNames: []string{"db01"}}, Value: map[string]any{"levels": []any{50, 60}}},
		{ID: "all", Value: map[string]any{"levels": []any{70, 80}, "average": 15}},
	}
}

func TestEvaluator_First(t *testing.T) {
	e := NewEvaluator()
	rs := Ruleset{Name: "cpu_load", Policy: PolicyFirst, Rules: paramRules()}

	v, ok, err := e.First(rs, ForHost(testHost()))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"levels": []any{80, 90}}, v)

	_, ok, err = e.First(Ruleset{Name: "empty"}, ForHost(testHost()))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvaluator_All(t *testing.T) {
	e := NewEvaluator()
	rs := Ruleset{Name: "cpu_load", Policy: PolicyAll, Rules: paramRules()}

	values, err := e.All(rs, ForHost(testHost()))
	require.NoError(t, err)
	assert.Equal(t, []any{
		map[string]any{"levels": []any{80, 90}},
		map[string]any{"levels": []any{70, 80}, "average": 15},
	}, values)
}

func TestEvaluator_DictMerge(t *testing.T) {
	e := NewEvaluator()
	rules := append(paramRules(),
		Rule{ID: "scalar", Value: []any{1, 2}},
		Rule{ID: "parameters", Value: params.Dict(map[string]any{"horizon": 90, "levels": []any{0, 0}})},
	)
	rs := Ruleset{Name: "cpu_load", Policy: PolicyDictMerge, Rules: rules}

	merged, ok, err := e.DictMerge(rs, ForHost(testHost()))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, map[string]any{
		"levels":  []any{80, 90},
		"average": 15,
		"horizon": 90,
	}, merged)

	_, ok, err = e.DictMerge(Ruleset{Name: "nothing"}, ForHost(testHost()))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvaluator_Evaluate(t *testing.T) {
	e := NewEvaluator()

	tests := []struct {
		name     string
		policy   Policy
		expected int
	}{
		{"first", PolicyFirst, 1},
		{"all", PolicyAll, 2},
		{"dict-merge", PolicyDictMerge, 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			values, err := e.Evaluate(Ruleset{Name: "cpu_load", Policy: tc.policy, Rules: paramRules()}, ForHost(testHost()))
			require.NoError(t, err)
			assert.Len(t, values, tc.expected)
		})
	}

	_, err := e.Evaluate(Ruleset{Name: "broken", Policy: "weird"}, ForHost(testHost()))
	assert.ErrorIs(t, err, ErrUnknownPolicy)
}

func TestEvaluator_AnyTrue(t *testing.T) {
	e := NewEvaluator()
	rs := Ruleset{
		Name:   "clustered_services",
		Policy: PolicyAll,
		Rules: []Rule{
			{ID: "off", Condition: Condition{Services: []string{"Temp"}}, Value: false},
			{ID: "disabled", Disabled: true, Condition: Condition{Services: []string{"CPU"}}, Value: true},
			{ID: "fs", Condition: Condition{Services: []string{"Filesystem"}}, Value: true},
		},
	}

	ok, err := e.AnyTrue(rs, ForService(testHost(), "Filesystem /var"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.AnyTrue(rs, ForService(testHost(), "CPU load"))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = e.AnyTrue(rs, ForService(testHost(), "Temperature"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvaluator_PatternErrorIsReturned(t *testing.T) {
	e := NewEvaluator()
	rs := Ruleset{
		Name:  "clustered_services",
		Rules: []Rule{{ID: "bad", Condition: Condition{Services: []string{"[a-"}}, Value: true}},
	}

	_, err := e.AnyTrue(rs, ForService(testHost(), "anything"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidPattern)
	assert.Contains(t, err.Error(), "clustered_services")

	_, err = e.All(rs, ForService(testHost(), "anything"))
	assert.ErrorIs(t, err, ErrInvalidPattern)
}

func TestEvaluator_Explain(t *testing.T) {
	e := NewEvaluator()
	rs := Ruleset{Name: "cpu_load", Rules: paramRules()}

	evals, err := e.Explain(rs, ForHost(testHost()))
	require.NoError(t, err)
	require.Len(t, evals, 4)

	assert.Equal(t, MatchTypeDisabled, evals[0].Result.MatchType)
	assert.True(t, evals[1].Result.Matched)
	assert.NotNil(t, evals[1].Value)
	assert.False(t, evals[2].Result.Matched)
	assert.Nil(t, evals[2].Value)
	assert.True(t, evals[3].Result.Matched)
}
