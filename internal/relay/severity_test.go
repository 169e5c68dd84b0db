package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSeverityOrdering(t *testing.T) {
	assert.Less(t, Debug, Info)
	assert.Less(t, Info, Warning)
	assert.Less(t, Warning, Error)
	assert.Less(t, Error, Critical)
}

func TestParseSeverity(t *testing.T) {
	cases := map[string]Severity{
		"debug":    Debug,
		" INFO ":   Info,
		"warn":     Warning,
		"WARNING":  Warning,
		"err":      Error,
		"critical": Critical,
		"fatal":    Critical,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseSeverity(in, 0), in)
	}
	assert.Equal(t, Severity(0), ParseSeverity("verbose", 0))
	assert.Equal(t, Error, ParseSeverity("", Error))
}

func TestSeverityString(t *testing.T) {
	assert.Equal(t, "WARNING", Warning.String())
	assert.Equal(t, "CRITICAL", Critical.String())
	assert.Equal(t, "DEBUG", Severity(0).String())
}
