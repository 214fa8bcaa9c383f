package intern

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInternResolveRoundTrip(t *testing.T) {
	tbl := New()

	id1 := tbl.Intern("Darth Malgus")
	id2 := tbl.Intern("Darth Malgus")
	require.Equal(t, id1, id2, "interning the same string twice must return the same handle")
	require.Equal(t, "Darth Malgus", tbl.Resolve(id1))
}

func TestInternDistinctStrings(t *testing.T) {
	tbl := New()

	a := tbl.Intern("Aivela")
	b := tbl.Intern("Bestia")
	require.NotEqual(t, a, b)
	require.Equal(t, "Aivela", tbl.Resolve(a))
	require.Equal(t, "Bestia", tbl.Resolve(b))
}

func TestResolveUnknownReturnsEmpty(t *testing.T) {
	tbl := New()
	require.Equal(t, "", tbl.Resolve(IStr(999)))
}

func TestGlobalTableIsShared(t *testing.T) {
	id := Intern("global-probe")
	require.Equal(t, "global-probe", Resolve(id))
}
