package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve_SimplePlaceholders(t *testing.T) {
	data := map[string]any{
		"user":    map[string]any{"name": "Sam"},
		"message": map[string]any{"text": "hi"},
	}

	result := Resolve("Hello {{user.name}}, you said {{message.text}}", data)
	assert.Equal(t, "Hello Sam, you said hi", result)
}

func TestResolve_MissingPathYieldsEmpty(t *testing.T) {
	result := Resolve("value: {{x.y}}", map[string]any{})
	assert.Equal(t, "value: ", result)
}

func TestResolve_NullValueYieldsEmpty(t *testing.T) {
	result := Resolve("{{a}}", map[string]any{"a": nil})
	assert.Equal(t, "", result)
}

func TestResolve_NoPlaceholders(t *testing.T) {
	result := Resolve("plain text", map[string]any{"a": "b"})
	assert.Equal(t, "plain text", result)
}

func TestResolve_BracketIndex(t *testing.T) {
	data := map[string]any{
		"items": []any{
			map[string]any{"name": "first"},
			map[string]any{"name": "second"},
		},
	}

	assert.Equal(t, "second", Resolve("{{items[1].name}}", data))
}

func TestResolve_MalformedPathYieldsEmpty(t *testing.T) {
	data := map[string]any{"a": "b"}

	assert.Equal(t, "", Resolve("{{a..b}}", data))
	assert.Equal(t, "", Resolve("{{items[x]}}", data))
	assert.Equal(t, "", Resolve("{{ }}", data))
}

func TestResolve_NumberAndBoolStringification(t *testing.T) {
	data := map[string]any{
		"count":   float64(42),
		"ratio":   1.5,
		"enabled": true,
	}

	assert.Equal(t, "42", Resolve("{{count}}", data))
	assert.Equal(t, "1.5", Resolve("{{ratio}}", data))
	assert.Equal(t, "true", Resolve("{{enabled}}", data))
}

func TestResolve_ObjectValueEncodedAsJSON(t *testing.T) {
	data := map[string]any{"obj": map[string]any{"k": "v"}}

	assert.Equal(t, `{"k":"v"}`, Resolve("{{obj}}", data))
}

func TestResolveMap(t *testing.T) {
	data := map[string]any{"token": "abc"}

	resolved := ResolveMap(map[string]string{
		"Authorization": "Bearer {{token}}",
		"Accept":        "application/json",
	}, data)

	assert.Equal(t, "Bearer abc", resolved["Authorization"])
	assert.Equal(t, "application/json", resolved["Accept"])
}

func TestLookup(t *testing.T) {
	data := map[string]any{
		"a": map[string]any{
			"b": []any{
				"zero",
				map[string]any{"c": float64(7)},
			},
		},
	}

	value, ok := Lookup("a.b[1].c", data)
	assert.True(t, ok)
	assert.InDelta(t, 7.0, value, 0.0001)

	_, ok = Lookup("a.b[5].c", data)
	assert.False(t, ok)

	_, ok = Lookup("a.missing", data)
	assert.False(t, ok)
}
