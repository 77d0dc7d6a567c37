package toolerrors

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultsToAGenericMessageWhenGivenAnEmptyString(t *testing.T) {
	t.Parallel()
	err := New("")
	assert.Equal(t, "tool error", err.Error())
}

func TestNewPreservesTheGivenMessage(t *testing.T) {
	t.Parallel()
	err := New("sandbox denied write outside root")
	assert.Equal(t, "sandbox denied write outside root", err.Error())
}

func TestNewWithCauseWrapsAPlainError(t *testing.T) {
	t.Parallel()
	cause := errors.New("permission denied")
	err := NewWithCause("write failed", cause)
	assert.Equal(t, "write failed", err.Error())
	require.NotNil(t, err.Cause)
	assert.Equal(t, "permission denied", err.Cause.Error())
}

func TestNewWithCauseDefaultsMessageToTheCausesErrorWhenEmpty(t *testing.T) {
	t.Parallel()
	cause := errors.New("disk full")
	err := NewWithCause("", cause)
	assert.Equal(t, "disk full", err.Error())
}

func TestFromErrorReturnsNilForANilError(t *testing.T) {
	t.Parallel()
	assert.Nil(t, FromError(nil))
}

func TestFromErrorReturnsTheSameToolErrorWithoutRewrapping(t *testing.T) {
	t.Parallel()
	original := New("original failure")
	got := FromError(original)
	assert.Same(t, original, got)
}

func TestFromErrorWrapsAStandardErrorChainPreservingEachLevelsMessage(t *testing.T) {
	t.Parallel()
	inner := errors.New("inner")
	outer := fmt.Errorf("outer: %w", inner)

	got := FromError(outer)
	assert.Equal(t, "outer: inner", got.Message)
	require.NotNil(t, got.Cause)
	assert.Equal(t, "inner", got.Cause.Message)
}

func TestErrorfFormatsLikeFmtSprintf(t *testing.T) {
	t.Parallel()
	err := Errorf("tool %q failed with code %d", "bash", 1)
	assert.Equal(t, `tool "bash" failed with code 1`, err.Error())
}

func TestErrorOnANilToolErrorReturnsAnEmptyStringWithoutPanicking(t *testing.T) {
	t.Parallel()
	var err *ToolError
	assert.Equal(t, "", err.Error())
}

func TestErrorsIsMatchesAWrappedToolErrorByIdentity(t *testing.T) {
	t.Parallel()
	sentinel := New("rate limited")
	wrapped := NewWithCause("tool call failed", sentinel)
	assert.True(t, errors.Is(wrapped, sentinel))
}

func TestErrorsAsUnwrapsToTheUnderlyingToolErrorCause(t *testing.T) {
	t.Parallel()
	wrapped := NewWithCause("outer failure", New("inner failure"))

	var target *ToolError
	require.True(t, errors.As(wrapped.Cause, &target))
	assert.Equal(t, "inner failure", target.Message)
}

func TestUnwrapOfAToolErrorWithNoCauseDoesNotInfinitelyLoopUnderErrorsIs(t *testing.T) {
	t.Parallel()
	err := New("leaf error")
	assert.False(t, errors.Is(err, errors.New("unrelated")))
}

func TestTruncateLeavesShortOutputUnchanged(t *testing.T) {
	t.Parallel()
	out, truncated := Truncate("short output")
	assert.Equal(t, "short output", out)
	assert.False(t, truncated)
}

func TestTruncateCapsOutputAtMaxOutputChars(t *testing.T) {
	t.Parallel()
	long := strings.Repeat("a", MaxOutputChars+100)
	out, truncated := Truncate(long)
	assert.True(t, truncated)
	assert.Len(t, out, MaxOutputChars)
}

func TestTruncateLeavesOutputExactlyAtTheLimitUnchanged(t *testing.T) {
	t.Parallel()
	exact := strings.Repeat("b", MaxOutputChars)
	out, truncated := Truncate(exact)
	assert.False(t, truncated)
	assert.Len(t, out, MaxOutputChars)
}
