package reasoning

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const plainVerdict = `{"escalate": true, "notify_roles": ["Safety Officer", "Supervisor"], "shutdown_required": false, "summary": "Worker without helmet in frame F1."}`

func TestParseVerdict_Plain(t *testing.T) {
	v, err := ParseVerdict(plainVerdict)
	require.NoError(t, err)
	assert.True(t, v.Escalate)
	assert.Equal(t, []string{"Safety Officer", "Supervisor"}, v.NotifyRoles)
	assert.False(t, v.ShutdownRequired)
	assert.Equal(t, "Worker without helmet in frame F1.", v.Summary)
}

func TestParseVerdict_FencedEqualsUnwrapped(t *testing.T) {
	want, err := ParseVerdict(plainVerdict)
	require.NoError(t, err)

	for name, reply := range map[string]string{
		"json fence":        "```json\n" + plainVerdict + "\n```",
		"bare fence":        "```\n" + plainVerdict + "\n```",
		"fence with spaces": "  \n```json " + plainVerdict + " ```\n\n",
		"upper case tag":    "```JSON\n" + plainVerdict + "\n```",
	} {
		t.Run(name, func(t *testing.T) {
			got, err := ParseVerdict(reply)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestParseVerdict_QuoteNormalization(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{"single quotes", `{'escalate': false, 'notify_roles': [], 'shutdown_required': false, 'summary': 'ok'}`},
		{"typographic quotes", `{“escalate”: false, “notify_roles”: [], “shutdown_required”: false, “summary”: “ok”}`},
		{"trailing comma", `{"escalate": false, "notify_roles": [], "shutdown_required": false, "summary": "ok",}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := ParseVerdict(tt.reply)
			require.NoError(t, err)
			assert.False(t, v.Escalate)
			assert.Empty(t, v.NotifyRoles)
			assert.Equal(t, "ok", v.Summary)
		})
	}
}

func TestParseVerdict_ApostropheInsideDoubleQuotes(t *testing.T) {
	v, err := ParseVerdict(`{"escalate": true, "notify_roles": ["Supervisor"], "shutdown_required": true, "summary": "The worker's harness is missing."}`)
	require.NoError(t, err)
	assert.Equal(t, "The worker's harness is missing.", v.Summary)
}

func TestParseVerdict_Failures(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{"empty", ""},
		{"only fences", "```json\n```"},
		{"prose", "I think this should be escalated to the supervisor."},
		{"array", `[true, ["Supervisor"], false, "x"]`},
		{"missing summary", `{"escalate": true, "notify_roles": [], "shutdown_required": false}`},
		{"missing escalate", `{"notify_roles": [], "shutdown_required": false, "summary": "x"}`},
		{"string boolean", `{"escalate": "true", "notify_roles": [], "shutdown_required": false, "summary": "x"}`},
		{"roles not strings", `{"escalate": true, "notify_roles": [1, 2], "shutdown_required": false, "summary": "x"}`},
		{"roles null", `{"escalate": true, "notify_roles": null, "shutdown_required": false, "summary": "x"}`},
		{"truncated", `{"escalate": true, "notify_roles": ["Super`},
		{"prose around json", `Sure! {"escalate": true, "notify_roles": [], "shutdown_required": false, "summary": "x"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := ParseVerdict(tt.reply)
			assert.Nil(t, v)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrParse)
		})
	}
}

func TestParseVerdict_ExtraFieldsIgnored(t *testing.T) {
	v, err := ParseVerdict(`{"escalate": false, "notify_roles": ["Supervisor"], "shutdown_required": false, "summary": "x", "confidence": 0.9}`)
	require.NoError(t, err)
	assert.Equal(t, []string{"Supervisor"}, v.NotifyRoles)
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, `{"a": "b"}`, Sanitize("```json\n{“a”: “b”}\n```"))
	assert.Equal(t, "plain text", StripFences("  plain text \n"))
	assert.Equal(t, "It's fine", Sanitize("It’s fine"))
}

func TestParseVerdict_SingleQuotedReplies(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		summary string
	}{
		{"fenced single-quoted object", "```json\n{'escalate': true, 'notify_roles': ['Supervisor'], 'shutdown_required': false, 'summary': 'No helmet'}\n```", "No helmet"},
		{"single-quoted values only", `{"escalate": true, "notify_roles": ['Supervisor'], "shutdown_required": false, "summary": 'No helmet'}`, "No helmet"},
		{"escaped apostrophe", `{'escalate': true, 'notify_roles': ['Supervisor'], 'shutdown_required': false, 'summary': 'Worker\'s helmet missing'}`, "Worker's helmet missing"},
		{"double quote inside single", `{'escalate': true, 'notify_roles': ['Supervisor'], 'shutdown_required': false, 'summary': 'Sign reads "KEEP OUT"'}`, `Sign reads "KEEP OUT"`},
		{"typographic single quotes", `{‘escalate’: true, ‘notify_roles’: [‘Supervisor’], ‘shutdown_required’: false, ‘summary’: ‘No helmet’}`, "No helmet"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := ParseVerdict(tt.reply)
			require.NoError(t, err)
			assert.True(t, v.Escalate)
			assert.Equal(t, []string{"Supervisor"}, v.NotifyRoles)
			assert.Equal(t, tt.summary, v.Summary)
		})
	}
}

func TestRequoteSingle(t *testing.T) {
	assert.Equal(t, `{"a": "b"}`, requoteSingle(`{'a': 'b'}`))
	assert.Equal(t, `{"a": "it's"}`, requoteSingle(`{"a": "it's"}`))
	assert.Equal(t, `{"a": "say \"hi\""}`, requoteSingle(`{'a': 'say "hi"'}`))
	assert.Equal(t, `{"a": "x\"y"}`, requoteSingle(`{"a": "x\"y"}`))
}
