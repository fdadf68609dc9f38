package jsonutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractJSON_Fenced(t *testing.T) {
	raw := "Here is the plan:\n```json\n{\"reasoning\": \"flat\", \"trade_decisions\": []}\n```\nDone."
	out, ok := ExtractJSON(raw)
	assert.True(t, ok)
	assert.Equal(t, `{"reasoning": "flat", "trade_decisions": []}`, out)
}

func TestExtractJSON_BareObjectWithProse(t *testing.T) {
	raw := `I will hold everything. {"reasoning":"x","trade_decisions":[{"asset":"BTC","action":"hold"}]} Thanks.`
	out, ok := ExtractJSON(raw)
	assert.True(t, ok)
	assert.Equal(t, `{"reasoning":"x","trade_decisions":[{"asset":"BTC","action":"hold"}]}`, out)
}

func TestExtractJSON_ObjectWinsOverInnerArray(t *testing.T) {
	raw := `{"trade_decisions":["BTC","hold"]}`
	out, ok := ExtractJSON(raw)
	assert.True(t, ok)
	assert.Equal(t, raw, out)
}

func TestExtractJSON_BareArray(t *testing.T) {
	raw := `noise ["BTC", "hold", 0, null, null, "", ""] noise`
	out, ok := ExtractJSON(raw)
	assert.True(t, ok)
	assert.Equal(t, `["BTC", "hold", 0, null, null, "", ""]`, out)
}

func TestExtractJSON_BracesInsideStrings(t *testing.T) {
	raw := `{"rationale":"range {support} holds","trade_decisions":[]}`
	out, ok := ExtractJSON(raw)
	assert.True(t, ok)
	assert.Equal(t, raw, out)
}

func TestExtractJSON_Empty(t *testing.T) {
	_, ok := ExtractJSON("   \n ")
	assert.False(t, ok)
	_, ok = ExtractJSON("no json here")
	assert.False(t, ok)
}

func TestExtractJSONWithOffset(t *testing.T) {
	raw := `abc {"a":1}`
	out, off, ok := ExtractJSONWithOffset(raw)
	assert.True(t, ok)
	assert.Equal(t, `{"a":1}`, out)
	assert.Equal(t, 4, off)
}
