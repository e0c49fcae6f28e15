package interpreter

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		name  string
		reply string
		want  string
	}{
		{"bare", `{"a":1}`, `{"a":1}`},
		{"fenced", "text\n```json\n{\"a\":1}\n```\nmore", `{"a":1}`},
		{"fence without language", "```\n{\"a\":2}\n```", `{"a":2}`},
		{"prose around", `Here you go: {"a":{"b":[1,2]}} hope it helps {"c":3}`, `{"a":{"b":[1,2]}}`},
		{"braces in strings", `{"text":"use } and { freely","n":1}`, `{"text":"use } and { freely","n":1}`},
		{"escaped quote", `{"text":"say \"}\" now"}`, `{"text":"say \"}\" now"}`},
		{"skips invalid candidate", `{not json} then {"ok":true}`, `{"ok":true}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ExtractJSON(tc.reply)
			require.NoError(t, err)
			assert.JSONEq(t, tc.want, string(got))
		})
	}
}

func TestExtractJSONFailure(t *testing.T) {
	for _, reply := range []string{"", "no json here", "{unbalanced", "```json\nnot json\n```"} {
		_, err := ExtractJSON(reply)
		assert.True(t, errors.Is(err, ErrNoJSON), reply)
	}
}
