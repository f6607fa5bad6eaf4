package pkce

import (
	"errors"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base64URL = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

func TestNewSession(t *testing.T) {
	for i := 0; i < 50; i++ {
		s, err := New()
		require.NoError(t, err)

		assert.GreaterOrEqual(t, len(s.Verifier), MinVerifierLength)
		assert.LessOrEqual(t, len(s.Verifier), MaxVerifierLength)
		assert.Regexp(t, base64URL, s.Verifier)
		assert.Regexp(t, base64URL, s.State)
		assert.Equal(t, MethodS256, s.Method)
		assert.Equal(t, Challenge(s.Verifier), s.Challenge)
		assert.True(t, Verify(s.Verifier, s.Challenge))
	}
}

func TestSessionsAreUnique(t *testing.T) {
	a, err := New()
	require.NoError(t, err)
	b, err := New()
	require.NoError(t, err)

	assert.NotEqual(t, a.Verifier, b.Verifier)
	assert.NotEqual(t, a.State, b.State)
}

func TestChallengeKnownVector(t *testing.T) {
	// RFC 7636 附录 B
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	assert.Equal(t, "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM", Challenge(verifier))
}

func TestVerifyRejectsMismatch(t *testing.T) {
	s, err := New()
	require.NoError(t, err)
	assert.False(t, Verify(s.Verifier+"x", s.Challenge))
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("entropy exhausted")
}

func TestGeneratorPropagatesEntropyError(t *testing.T) {
	g := &Generator{rand: failingReader{}}
	_, err := g.New()
	assert.ErrorContains(t, err, "entropy exhausted")
}
