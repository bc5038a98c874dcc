package security

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeInput(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain", input: "Hello world", want: "Hello world"},
		{name: "script block", input: "a<script>alert(1)</script>b", want: "ab"},
		{name: "script with attrs across lines", input: "x<SCRIPT type=\"text/javascript\">\nsteal()\n</script>y", want: "xy"},
		{name: "javascript uri", input: `<a href="javascript:alert(1)">x</a>`, want: `<a href="alert(1)">x</a>`},
		{name: "event handler", input: `<img src="a.png" onerror="alert(1)">`, want: `<img src="a.png">`},
		{name: "unquoted handler", input: `<div onclick=go()>x</div>`, want: `<div>x</div>`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, SanitizeInput(tc.input))
		})
	}
}

func TestValidateEmail(t *testing.T) {
	assert.True(t, ValidateEmail("ed@example.com"))
	assert.True(t, ValidateEmail("first.last+tag@sub.example.co"))
	assert.False(t, ValidateEmail("ed@example"))
	assert.False(t, ValidateEmail("ed example@x.com"))
	assert.False(t, ValidateEmail("@example.com"))
	assert.False(t, ValidateEmail(""))
}

func TestSecurityHeaders(t *testing.T) {
	headers := SecurityHeaders()
	assert.Equal(t, "nosniff", headers["X-Content-Type-Options"])
	assert.Equal(t, "DENY", headers["X-Frame-Options"])
	assert.Contains(t, headers["Strict-Transport-Security"], "max-age=")
	assert.NotEmpty(t, headers["Content-Security-Policy"])
	assert.NotEmpty(t, headers["Referrer-Policy"])
	assert.NotEmpty(t, headers["Permissions-Policy"])

	headers["X-Frame-Options"] = "ALLOW"
	assert.Equal(t, "DENY", SecurityHeaders()["X-Frame-Options"])

	h := http.Header{}
	ApplySecurityHeaders(h)
	assert.Equal(t, "nosniff", h.Get("X-Content-Type-Options"))
}
