package automation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterpolate(t *testing.T) {
	f := map[string]any{
		"sale":     map[string]any{"id": "S-9", "total": 120.5, "items": []any{"a", "b"}},
		"customer": map[string]any{"name": "Carla", "nickname": nil},
	}

	assert.Equal(t, 120.5, interpolate("{{sale.total}}", f))
	assert.Equal(t, []any{"a", "b"}, interpolate("{{ sale.items }}", f))
	assert.Equal(t, "Sale S-9 by Carla", interpolate("Sale {{sale.id}} by {{customer.name}}", f))
	assert.Equal(t, "{{sale.missing}}", interpolate("{{sale.missing}}", f))
	assert.Equal(t, "hi {{customer.nickname}}", interpolate("hi {{customer.nickname}}", f))
	assert.Equal(t, 5, interpolate(5, f))

	nested := interpolate(map[string]any{
		"payload": map[string]any{"saleId": "{{sale.id}}"},
		"list":    []any{"{{customer.name}}", 1},
	}, f).(map[string]any)
	assert.Equal(t, "S-9", nested["payload"].(map[string]any)["saleId"])
	assert.Equal(t, []any{"Carla", 1}, nested["list"])
}

func TestParams(t *testing.T) {
	p := params{
		"queue":    "badge",
		"count":    3,
		"delayMs":  1500.0,
		"str":      "250",
		"bad":      "x",
		"channels": []any{"in_app", " email "},
		"csv":      "push, whatsapp,",
		"obj":      map[string]any{"a": 1},
	}

	assert.Equal(t, "badge", p.str("queue"))
	assert.Equal(t, "3", p.str("count"))
	assert.Equal(t, "", p.str("missing"))

	n, err := p.number("delayMs")
	require.NoError(t, err)
	assert.EqualValues(t, 1500, n)
	n, err = p.number("str")
	require.NoError(t, err)
	assert.EqualValues(t, 250, n)
	_, err = p.number("bad")
	assert.Error(t, err)
	n, err = p.number("missing")
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.Equal(t, []string{"in_app", "email"}, p.list("channels"))
	assert.Equal(t, []string{"push", "whatsapp"}, p.list("csv"))

	obj, err := p.object("obj")
	require.NoError(t, err)
	assert.Equal(t, 1, obj["a"])
	_, err = p.object("queue")
	assert.Error(t, err)
}
