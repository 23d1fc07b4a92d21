package callgrind

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNameResolver_DefineThenReference(t *testing.T) {
	r := newNameResolver()

	assert.Equal(t, "foo", r.resolveFunc("(1) foo"))
	assert.Equal(t, "foo", r.resolveFunc("(1)"))
	assert.Equal(t, "bar", r.resolveFunc("(2) bar"))
	assert.Equal(t, "foo", r.resolveFunc("(1)"))
}

func TestNameResolver_UnboundReferenceReturnsRaw(t *testing.T) {
	r := newNameResolver()
	assert.Equal(t, "(99)", r.resolveFunc("(99)"))
}

func TestNameResolver_LiteralPassesThrough(t *testing.T) {
	r := newNameResolver()
	assert.Equal(t, "plain_name", r.resolveFunc("plain_name"))
}

func TestNameResolver_TablesAreDisjoint(t *testing.T) {
	r := newNameResolver()
	r.resolveFile("(1) /a/b.php")
	// Same token in the function table is independently unbound.
	assert.Equal(t, "(1)", r.resolveFunc("(1)"))
}

func TestNameResolver_TrimsCapturedName(t *testing.T) {
	r := newNameResolver()
	assert.Equal(t, "foo", r.resolveFunc("(3)   foo  "))
}
