package job

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseVersion(t *testing.T) {
	v, ok := ParseVersion("2.6.7")
	assert.True(t, ok)
	assert.Equal(t, Triple{2, 6, 7}, v)

	v, ok = ParseVersion("1")
	assert.True(t, ok)
	assert.Equal(t, Triple{1, 0, 0}, v, "missing components default to 0")

	v, ok = ParseVersion("3.1")
	assert.True(t, ok)
	assert.Equal(t, Triple{3, 1, 0}, v)

	_, ok = ParseVersion("branch-name")
	assert.False(t, ok)

	_, ok = ParseVersion("")
	assert.False(t, ok)
}

func TestVersionSmaller(t *testing.T) {
	assert.True(t, VersionSmaller("1.2.3", Triple{2, 6, 7}))
	assert.False(t, VersionSmaller("1.0.0", Triple{1, 0, 0}))
	assert.False(t, VersionSmaller("2.6.8", Triple{2, 6, 7}))
	assert.True(t, VersionSmaller("feature-x", Triple{0, 0, 1}), "unparsable counts as 0.0.0")
	assert.False(t, VersionSmaller("feature-x", Triple{}))
}

func TestCheckVersion(t *testing.T) {
	tests := []struct {
		name   string
		job    string
		engine string
		want   Verdict
	}{
		{"two majors behind", "1.2.3", "3.2.1", Stale},
		{"major only, two behind", "1", "3.2.1", Stale},
		{"equal", "7.6.5", "7.6.5", Compatible},
		{"patch newer", "0.0.2", "0.0.1", TooNew},
		{"minor newer", "3.3.0", "3.2.1", TooNew},
		{"major newer", "4", "3.2.1", TooNew},
		{"one major behind", "2.9.9", "3.0.0", Compatible},
		{"missing vs 2.0.0", "", "2.0.0", Stale},
		{"missing vs 0.0.1", "", "0.0.1", Compatible},
		{"missing vs 1.0.0", "", "1.0.0", Compatible},
		{"missing vs 1.2.3", "", "1.2.3", Compatible},
		{"branch job vs 5.0.0", "my-branch", "5.0.0", Stale},
		{"development engine", "99.0.0", "dev", Compatible},
		{"development engine, ancient job", "0.0.1", "dev", Compatible},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CheckVersion(tt.job, tt.engine), "job %q engine %q", tt.job, tt.engine)
		})
	}
}
