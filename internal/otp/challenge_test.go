package otp

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateIssuesSixDigitCode(t *testing.T) {
	m := NewManager(60, 600)

	code, err := m.Create("w-1")
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^\d{6}$`), code)
	assert.Equal(t, 60, m.Cooldown("w-1"))
}

func TestVerifyCorrectCodeDestroysChallenge(t *testing.T) {
	m := NewManager(60, 600)

	code, err := m.Create("w-1")
	require.NoError(t, err)

	assert.Equal(t, VerifyOK, m.Verify("w-1", code))

	// the challenge is single-use
	assert.Equal(t, VerifyNotFound, m.Verify("w-1", code))
}

func TestVerifyWrongCodeKeepsChallengeAlive(t *testing.T) {
	m := NewManager(60, 600)

	code, err := m.Create("w-1")
	require.NoError(t, err)

	before := m.Cooldown("w-1")

	assert.Equal(t, VerifyMismatch, m.Verify("w-1", "000000"))
	assert.Equal(t, VerifyMismatch, m.Verify("w-1", "999999"))
	assert.Equal(t, 2, m.Attempts("w-1"))

	// a failed attempt must not reset the resend cooldown
	assert.LessOrEqual(t, m.Cooldown("w-1"), before)

	// the original code still works after failed attempts
	assert.Equal(t, VerifyOK, m.Verify("w-1", code))
}

func TestResendBlockedDuringCooldown(t *testing.T) {
	m := NewManager(60, 600)

	_, err := m.Create("w-1")
	require.NoError(t, err)

	code, remaining, ok, err := m.Resend("w-1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, code)
	assert.Greater(t, remaining, 0)
}

func TestResendRotatesCode(t *testing.T) {
	// zero-second window so resend is allowed immediately
	m := NewManager(0, 600)

	first, err := m.Create("w-1")
	require.NoError(t, err)

	second, _, ok, err := m.Resend("w-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Regexp(t, regexp.MustCompile(`^\d{6}$`), second)

	if first != second {
		assert.Equal(t, VerifyMismatch, m.Verify("w-1", first))
	}
	assert.Equal(t, VerifyOK, m.Verify("w-1", second))
}

func TestResendWithoutChallenge(t *testing.T) {
	m := NewManager(60, 600)

	_, _, _, err := m.Resend("missing")
	require.ErrorIs(t, err, ErrNoChallenge)
}

func TestAliveReflectsChallengeState(t *testing.T) {
	m := NewManager(60, 600)

	assert.False(t, m.Alive("w-1"))

	_, err := m.Create("w-1")
	require.NoError(t, err)
	assert.True(t, m.Alive("w-1"))

	m.Destroy("w-1")
	assert.False(t, m.Alive("w-1"))
}

func TestCooldownNonIncreasing(t *testing.T) {
	m := NewManager(60, 600)

	_, err := m.Create("w-1")
	require.NoError(t, err)

	previous := m.Cooldown("w-1")
	for i := 0; i < 5; i++ {
		current := m.Cooldown("w-1")
		assert.LessOrEqual(t, current, previous)
		previous = current
	}
}

func TestSweepRemovesExpiredChallenges(t *testing.T) {
	m := NewManager(60, 0)

	_, err := m.Create("w-1")
	require.NoError(t, err)

	m.Sweep(time.Now().Add(time.Second))

	assert.False(t, m.Alive("w-1"))
	assert.Equal(t, VerifyNotFound, m.Verify("w-1", "123456"))
}

func TestDestroy(t *testing.T) {
	m := NewManager(60, 600)

	code, err := m.Create("w-1")
	require.NoError(t, err)

	m.Destroy("w-1")
	assert.Equal(t, VerifyNotFound, m.Verify("w-1", code))
	assert.Zero(t, m.Cooldown("w-1"))
}
