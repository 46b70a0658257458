package cu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseObject_KeepsOrderAndNumbers(t *testing.T) {
	src := `{"z":1,"a":{"y":[true,null,"s"],"b":12345678901234567890},"m":1.50}`
	obj, err := ParseObject([]byte(src))
	require.NoError(t, err)
	assert.Equal(t, []string{"z", "a", "m"}, obj.Keys())

	out, err := obj.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, src, string(out))
}

func TestParseObject_Rejects(t *testing.T) {
	_, err := ParseObject([]byte(`[1,2]`))
	assert.ErrorIs(t, err, ErrNotObject)

	_, err = ParseObject([]byte(`{"a":1} {"b":2}`))
	assert.Error(t, err)

	_, err = ParseObject([]byte(`{"a":`))
	assert.Error(t, err)
}

func TestObject_SetReplaceDelete(t *testing.T) {
	o := NewObject().Set("a", String("1")).Set("b", Number("2")).Set("a", String("3"))
	assert.Equal(t, []string{"a", "b"}, o.Keys())
	s, ok := o.StringField("a")
	assert.True(t, ok)
	assert.Equal(t, "3", s)

	o.Delete("a")
	o.Delete("missing")
	assert.Equal(t, 1, o.Len())
	out, _ := o.MarshalJSON()
	assert.Equal(t, `{"b":2}`, string(out))

	o.Set("n", nil)
	out, _ = o.MarshalJSON()
	assert.Equal(t, `{"b":2,"n":null}`, string(out))
}

func TestObject_InvalidNumber(t *testing.T) {
	_, err := NewObject().Set("n", Number("1e")).MarshalJSON()
	assert.Error(t, err)
}

func TestObject_UnmarshalJSON(t *testing.T) {
	var o Object
	require.NoError(t, o.UnmarshalJSON([]byte(`{"k":"v"}`)))
	v, _ := o.StringField("k")
	assert.Equal(t, "v", v)
}
