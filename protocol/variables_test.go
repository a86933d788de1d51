package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVariablesExpand(t *testing.T) {
	v := NewVariables()
	v.Put("host", "db01")
	v.Put("port", "4228")

	got := v.Expand("tcp(host=$host$,port=$port$)")
	assert.Equal(t, "tcp(host=db01,port=4228)", got)
}

func TestVariablesMissingLeftLiteral(t *testing.T) {
	v := NewVariables()
	v.Put("known", "x")

	assert.Equal(t, "a=$unknown$,b=x", v.Expand("a=$unknown$,b=$known$"))
	assert.Equal(t, "tail$", v.Expand("tail$"))
}

func TestVariablesSinglePass(t *testing.T) {
	v := NewVariables()
	v.Put("outer", "$inner$")
	v.Put("inner", "secret")

	// A substituted value is never expanded again.
	assert.Equal(t, "$inner$", v.Expand("$outer$"))
}

func TestVariablesAddDoesNotOverwrite(t *testing.T) {
	v := NewVariables()
	v.Add("key", "first")
	v.Add("key", "second")

	value, ok := v.Get("key")
	assert.True(t, ok)
	assert.Equal(t, "first", value)

	v.Put("key", "third")
	value, _ = v.Get("key")
	assert.Equal(t, "third", value)

	v.Remove("key")
	_, ok = v.Get("key")
	assert.False(t, ok)
	assert.Equal(t, 0, v.Count())
}

func TestVariablesNoVariables(t *testing.T) {
	v := NewVariables()
	assert.Equal(t, "unchanged$x$", v.Expand("unchanged$x$"))
}
