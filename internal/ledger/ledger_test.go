package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLedger(t *testing.T) {
	t.Run("first acquire and last release", func(t *testing.T) {
		l := New()
		const n = 5

		firsts := 0
		for i := 0; i < n; i++ {
			if l.Acquire("pkg.build") {
				firsts++
			}
		}
		assert.Equal(t, 1, firsts)
		assert.Equal(t, n, l.Count("pkg.build"))

		lasts := 0
		for i := 0; i < n; i++ {
			if l.Release("pkg.build") {
				lasts++
				assert.Equal(t, n-1, i, "last release must be the final one")
			}
		}
		assert.Equal(t, 1, lasts)
		assert.Zero(t, l.Len())
		assert.Zero(t, l.Count("pkg.build"))
	})

	t.Run("topics are isolated", func(t *testing.T) {
		l := New()
		l.Acquire("a")
		l.Acquire("b")

		assert.True(t, l.Release("a"))
		assert.Equal(t, 1, l.Count("b"))
		assert.Equal(t, []string{"b"}, l.Topics())
	})

	t.Run("release of unknown topic", func(t *testing.T) {
		l := New()
		assert.False(t, l.Release("nope"))
		assert.Zero(t, l.Len())
	})

	t.Run("keeps acquisition order", func(t *testing.T) {
		l := New()
		for _, topic := range []string{"c", "a", "b", "a"} {
			l.Acquire(topic)
		}
		assert.Equal(t, []string{"c", "a", "b"}, l.Topics())
	})
}
