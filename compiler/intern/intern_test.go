package intern

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntern(t *testing.T) {
	tb := New()

	a := tb.Intern("rax")
	b := tb.Intern("rbx")
	a2 := tb.Intern("rax")

	assert.Equal(t, a, a2)
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, None, a)

	assert.Equal(t, "rax", tb.Name(a))
	assert.Equal(t, "rbx", tb.Name(b))
	assert.Equal(t, "", tb.Name(None))

	id, ok := tb.Lookup("rbx")
	assert.True(t, ok)
	assert.Equal(t, b, id)

	_, ok = tb.Lookup("rcx")
	assert.False(t, ok)
}

func TestFresh(t *testing.T) {
	tb := New()

	taken := tb.Intern("tmp.0")

	s := tb.Scope()

	x := s.Fresh("tmp")
	y := s.Fresh("tmp")
	z := s.Fresh("p")

	assert.NotEqual(t, taken, x)
	assert.NotEqual(t, x, y)
	assert.Equal(t, "tmp.1", tb.Name(x))
	assert.Equal(t, "tmp.2", tb.Name(y))
	assert.Equal(t, "p.0", tb.Name(z))
}

func TestFreshScopesIndependent(t *testing.T) {
	tb := New()

	tb.Intern("tmp.0")

	a := tb.Scope()
	b := tb.Scope()

	// a issues names first, b does not see them as taken
	assert.Equal(t, "tmp.1", tb.Name(a.Fresh("tmp")))
	assert.Equal(t, "tmp.2", tb.Name(a.Fresh("tmp")))

	assert.Equal(t, "tmp.1", tb.Name(b.Fresh("tmp")))
	assert.Equal(t, "tmp.2", tb.Name(b.Fresh("tmp")))

	// scope created later sees them
	c := tb.Scope()
	assert.Equal(t, "tmp.3", tb.Name(c.Fresh("tmp")))
}

func TestFreshConcurrentScopes(t *testing.T) {
	tb := New()

	scopes := make([]*Scope, 8)
	for i := range scopes {
		scopes[i] = tb.Scope()
	}

	var wg sync.WaitGroup

	res := make([][]string, len(scopes))

	for i, s := range scopes {
		wg.Add(1)

		go func(i int, s *Scope) {
			defer wg.Done()

			for j := 0; j < 100; j++ {
				res[i] = append(res[i], tb.Name(s.Fresh("tmp")))
			}
		}(i, s)
	}

	wg.Wait()

	for _, r := range res {
		require.Len(t, r, 100)
		assert.Equal(t, "tmp.0", r[0])
		assert.Equal(t, "tmp.99", r[99])
	}
}

func TestConcurrent(t *testing.T) {
	tb := New()

	var wg sync.WaitGroup

	res := make([][]Ident, 8)

	for i := range res {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			res[i] = tb.InternAll("a", "b", "c", "d")
		}(i)
	}

	wg.Wait()

	for _, r := range res[1:] {
		require.Equal(t, res[0], r)
	}

	assert.Equal(t, 5, tb.Len())
}
