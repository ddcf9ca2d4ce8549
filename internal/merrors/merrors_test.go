package merrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessage(t *testing.T) {
	e := New(Timeout, "deadline exceeded", nil)
	assert.Equal(t, "[timeout] deadline exceeded", e.Error())
}

func TestErrorMessageWithCause(t *testing.T) {
	cause := fmt.Errorf("boom")
	e := New(Internal, "invariant broken", cause)
	assert.Contains(t, e.Error(), "invariant broken")
	assert.Contains(t, e.Error(), "boom")
}

func TestIsMatchesByKind(t *testing.T) {
	e := New(ShardUnavailable, "shard 7 errored", nil)
	assert.True(t, errors.Is(e, ErrShardUnavailable))
	assert.False(t, errors.Is(e, ErrTimeout))
}

func TestWithDetail(t *testing.T) {
	e := New(InvalidInput, "bad dimension", nil).WithDetail("expected", "384").WithDetail("got", "128")
	assert.Equal(t, "384", e.Details["expected"])
	assert.Equal(t, "128", e.Details["got"])
}

func TestUnwrap(t *testing.T) {
	cause := fmt.Errorf("root cause")
	e := New(AllShardsFailed, "all failed", cause)
	require.ErrorIs(t, e, cause)
}

func TestKindOf(t *testing.T) {
	e := New(Overloaded, "queue full", nil)
	assert.Equal(t, Overloaded, KindOf(e))
	assert.Equal(t, Kind(""), KindOf(fmt.Errorf("plain error")))
}
