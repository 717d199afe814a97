package check

import (
	"testing"

	"github.com/casualjim/hubtrigger/messages"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func message(body string) messages.Message {
	return messages.Message{Topic: "pkg.build", Timestamp: 1, Body: gjson.Parse(body)}
}

func TestField(t *testing.T) {
	msg := message(`{"name":"kernel","build":{"id":42,"owner":"bob"},"tags":["a","b"]}`)

	tests := []struct {
		name     string
		path     string
		expected string
		want     bool
	}{
		{"top level string", "name", "kernel", true},
		{"nested string", "build.owner", "bob", true},
		{"number renders as text", "build.id", "42", true},
		{"array index", "tags.1", "b", true},
		{"mismatch", "name", "glibc", false},
		{"missing path", "build.nope", "", false},
		{"paths are relative to the body", "msg.name", "kernel", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := Field(tt.path, tt.expected).Evaluate(msg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestRegexp(t *testing.T) {
	msg := message(`{"name":"kernel-headers"}`)

	p, err := Regexp("name", "kernel.*")
	require.NoError(t, err)
	ok, err := p.Evaluate(msg)
	require.NoError(t, err)
	assert.True(t, ok)

	p, err = Regexp("name", "kernel")
	require.NoError(t, err)
	ok, _ = p.Evaluate(msg)
	assert.False(t, ok, "pattern must match the whole value")

	p, err = Regexp("missing", ".*")
	require.NoError(t, err)
	ok, _ = p.Evaluate(msg)
	assert.False(t, ok)

	_, err = Regexp("name", "(")
	assert.Error(t, err)
}

func TestExists(t *testing.T) {
	msg := message(`{"name":null}`)
	ok, _ := Exists("name").Evaluate(msg)
	assert.True(t, ok)
	ok, _ = Exists("other").Evaluate(msg)
	assert.False(t, ok)
}

func TestSpec(t *testing.T) {
	msg := message(`{"name":"kernel"}`)

	preds, err := Compile([]Spec{
		{Field: " name ", Expected: "kernel"},
		{Field: "name", Expected: "k.*", Regexp: true},
		{Field: "name"},
	})
	require.NoError(t, err)
	require.Len(t, preds, 3)
	for _, p := range preds {
		ok, err := p.Evaluate(msg)
		require.NoError(t, err)
		assert.True(t, ok, "%v", p)
	}

	_, err = Compile([]Spec{{Field: "name"}, {Field: "  "}})
	assert.ErrorIs(t, err, ErrEmptyField)
	assert.ErrorContains(t, err, "check 1")
}

func TestStringers(t *testing.T) {
	assert.Equal(t, `name == "kernel"`, Field("name", "kernel").(fieldCheck).String())
	assert.Equal(t, "name exists", Exists("name").(existsCheck).String())
}
