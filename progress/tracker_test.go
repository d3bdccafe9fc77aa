package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func float(v float64) *float64 { return &v }

func TestTrackerHistoryPercentages(t *testing.T) {
	tr := NewTracker("tok")

	tr.Update(1, float(5), "one")
	tr.Update(2, nil, "two")
	last := tr.Update(3, nil, "three")

	history := tr.History()
	require.Len(t, history, 3)
	assert.Equal(t, []float64{20, 40, 60}, []float64{history[0].Percentage, history[1].Percentage, history[2].Percentage})
	assert.Equal(t, 5.0, last.Total)
	assert.Equal(t, "three", tr.Message())
	assert.Equal(t, "tok", last.Token)
	assert.False(t, tr.IsComplete())
}

func TestTrackerDefaults(t *testing.T) {
	tr := NewTracker("tok")
	assert.Equal(t, 0.0, tr.Progress())
	assert.Equal(t, DefaultTotal, tr.Total())
	assert.Equal(t, 0.0, tr.Percentage())
	assert.Empty(t, tr.History())

	u := tr.Update(0.5, nil, "")
	assert.Equal(t, 50.0, u.Percentage)
}

func TestTrackerOvershootNotClamped(t *testing.T) {
	tr := NewTracker("tok")
	u := tr.Update(150, float(100), "over")
	assert.Equal(t, 150.0, u.Percentage)
	assert.True(t, tr.IsComplete())

	tr.Update(100, nil, "")
	assert.True(t, tr.IsComplete())
}

func TestTrackerZeroTotal(t *testing.T) {
	tr := NewTracker("tok")
	u := tr.Update(3, float(0), "")
	assert.Equal(t, 0.0, u.Percentage)
	assert.True(t, tr.IsComplete())
}

func TestTrackerHistoryIsCopy(t *testing.T) {
	tr := NewTracker("tok")
	tr.Update(1, nil, "a")
	h := tr.History()
	h[0].Message = "changed"
	assert.Equal(t, "a", tr.History()[0].Message)
}

func TestTokenKey(t *testing.T) {
	tests := []struct {
		in   interface{}
		want string
		ok   bool
	}{
		{"abc", "abc", true},
		{"", "", false},
		{nil, "", false},
		{float64(7), "7", true},
		{1.5, "1.5", true},
		{int64(12), "12", true},
		{true, "", false},
		{map[string]interface{}{}, "", false},
	}
	for _, tc := range tests {
		got, ok := TokenKey(tc.in)
		assert.Equal(t, tc.ok, ok, "%v", tc.in)
		assert.Equal(t, tc.want, got, "%v", tc.in)
	}

	assert.NotEqual(t, NewToken(), NewToken())
	assert.Len(t, NewToken(), 36)
}
