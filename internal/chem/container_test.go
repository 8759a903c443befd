package chem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContainer_GetSetAdd(t *testing.T) {
	c := NewContainer()

	assert.Equal(t, 0.0, c.Get(Inner, "A"), "unknown entity reads as zero")

	c.Set(Inner, "A", 1.5)
	c.Add(Inner, "A", 0.5)
	c.Add(Outer, "A", 2.0)

	assert.Equal(t, 2.0, c.Get(Inner, "A"))
	assert.Equal(t, 2.0, c.Get(Outer, "A"))
	assert.Equal(t, 4.0, c.Total("A"))
	assert.Equal(t, []Subsection{Inner, Outer}, c.Subsections())
}

func TestContainer_CloneIsIndependent(t *testing.T) {
	c := NewContainer()
	c.Set(Inner, "A", 1.0)

	clone := c.Clone()
	clone.Set(Inner, "A", 9.0)

	assert.Equal(t, 1.0, c.Get(Inner, "A"))
	assert.False(t, c.Equal(clone))

	clone.Set(Inner, "A", 1.0)
	assert.True(t, c.Equal(clone))
}

func TestContainer_EqualIgnoresZeroEntries(t *testing.T) {
	a := NewContainer()
	a.Set(Inner, "A", 1.0)
	b := a.Clone()
	b.Set(Inner, "B", 0)

	assert.True(t, a.Equal(b))
}

func TestFeature_ParseRoundTrip(t *testing.T) {
	for _, f := range []Feature{Diffusivity, RateConstant, BackwardRateConstant, DegradationRate} {
		parsed, err := ParseFeature(f.String())
		require.NoError(t, err)
		assert.Equal(t, f, parsed)
	}

	_, err := ParseFeature("charge")
	assert.Error(t, err)
}

func TestTable(t *testing.T) {
	tbl := NewTable(
		NewEntity("B").With(Diffusivity, 1e-3),
		NewEntity("A"),
	)

	assert.Equal(t, []EntityID{"A", "B"}, tbl.IDs())

	b, ok := tbl.Get("B")
	require.True(t, ok)
	d, ok := b.Feature(Diffusivity)
	assert.True(t, ok)
	assert.Equal(t, 1e-3, d)

	a, _ := tbl.Get("A")
	_, ok = a.Feature(Diffusivity)
	assert.False(t, ok)
}
