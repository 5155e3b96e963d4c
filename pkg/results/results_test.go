package results

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResultRecord_IsEmpty(t *testing.T) {
	assert.True(t, ResultRecord{}.IsEmpty())
	assert.False(t, ResultRecord{Name: "A Runner"}.IsEmpty())
	assert.False(t, ResultRecord{Position: 1}.IsEmpty())
}

func TestPageResult_JSONShape(t *testing.T) {
	page := NewPageResult(3, []ResultRecord{{Position: 1, Name: "A Runner", Time: "17:02"}})

	data, err := json.Marshal(page)
	require.NoError(t, err)
	assert.JSONEq(t, `{"week":3,"results":[{"position":1,"name":"A Runner","time":"17:02"}]}`, string(data))
}

func TestNewPageResult_EmptyRecordsSerializeAsArray(t *testing.T) {
	data, err := json.Marshal(NewPageResult(7, nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"week":7,"results":[]}`, string(data))
}

func TestOutcomeKind_String(t *testing.T) {
	tests := []struct {
		kind OutcomeKind
		want string
	}{
		{OutcomeSuccess, "success"},
		{OutcomeNotFound, "not_found"},
		{OutcomeRateLimited, "rate_limited"},
		{OutcomeTransient, "transient"},
		{OutcomeParseFailure, "parse_failure"},
		{OutcomeKind(42), "outcome(42)"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.kind.String())
		})
	}
}

func TestOutcomeKind_Err(t *testing.T) {
	assert.NoError(t, OutcomeSuccess.Err())
	assert.ErrorIs(t, OutcomeNotFound.Err(), ErrNotFound)
	assert.ErrorIs(t, OutcomeRateLimited.Err(), ErrRateLimited)
	assert.ErrorIs(t, OutcomeTransient.Err(), ErrTransient)
	assert.ErrorIs(t, OutcomeParseFailure.Err(), ErrParseFailure)
}

func TestFailure(t *testing.T) {
	t.Run("default error from kind", func(t *testing.T) {
		out := Failure(4, OutcomeNotFound, nil)
		assert.Equal(t, 4, out.Index)
		assert.False(t, out.OK())
		assert.ErrorIs(t, out.Err, ErrNotFound)
	})

	t.Run("explicit error kept", func(t *testing.T) {
		cause := errors.New("connection reset")
		out := Failure(5, OutcomeTransient, cause)
		assert.Equal(t, OutcomeTransient, out.Kind)
		assert.ErrorIs(t, out.Err, cause)
	})
}

func TestFetchOutcome_OK(t *testing.T) {
	assert.True(t, FetchOutcome{Kind: OutcomeSuccess}.OK())
	assert.False(t, FetchOutcome{Kind: OutcomeRateLimited}.OK())
}
