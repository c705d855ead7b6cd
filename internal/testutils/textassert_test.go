package testutils

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

// recordingT captures failures instead of failing the enclosing test.
type recordingT struct {
	failures []string
}

func (r *recordingT) Helper() {}

func (r *recordingT) Errorf(format string, args ...interface{}) {
	r.failures = append(r.failures, fmt.Sprintf(format, args...))
}

func TestTextAsserter(t *testing.T) {
	t.Run("identical text passes", func(t *testing.T) {
		rt := &recordingT{}
		assert.True(t, NewTextAsserter(rt).Assert("a\nb\n", "a\nb\n"))
		assert.Empty(t, rt.failures)
	})

	t.Run("ANSI colors are stripped from actual", func(t *testing.T) {
		rt := &recordingT{}
		ok := NewTextAsserter(rt).Assert("\x1b[92m✓ Connected\x1b[0m\n", "✓ Connected\n")
		assert.True(t, ok)
	})

	t.Run("trailing whitespace ignored by default", func(t *testing.T) {
		rt := &recordingT{}
		assert.True(t, NewTextAsserter(rt).Assert("line   \n", "line\n"))
	})

	t.Run("difference reports unified diff", func(t *testing.T) {
		rt := &recordingT{}
		ok := NewTextAsserter(rt).Assert("one\ntwo\n", "one\nthree\n")
		assert.False(t, ok)
		if assert.Len(t, rt.failures, 1) {
			assert.Contains(t, rt.failures[0], "-three")
			assert.Contains(t, rt.failures[0], "+two")
		}
	})

	t.Run("empty lines can be ignored", func(t *testing.T) {
		rt := &recordingT{}
		assert.True(t, NewTextAsserter(rt, WithIgnoreEmptyLines(true)).Assert("a\n\n\nb", "a\nb"))
	})

	t.Run("colored diff shows whitespace", func(t *testing.T) {
		diff := NewTextAsserter(&recordingT{}, WithEnableColors(true)).Diff("a b\n", "a  b\n")
		assert.Contains(t, diff, "a·b")
	})
}

func TestStripANSI(t *testing.T) {
	assert.Equal(t, "plain", StripANSI("plain"))
	assert.Equal(t, "ℹ Port: 1", StripANSI("\x1b[94mℹ\x1b[0m Port: 1"))
	assert.Equal(t, "bold", StripANSI("\x1b[95;1mbold\x1b[0m"))
}
