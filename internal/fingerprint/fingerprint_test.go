package fingerprint

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "github.com/laksac24/VeriFy/pkg/domain-errors"
)

func validFields() Fields {
	return Fields{
		SubjectName: "A",
		SubjectID:   "123",
		Program:     "CS",
		Period:      "2027",
		Institution: "INST1",
		Score:       "9.1",
	}
}

func TestComputeDeterministic(t *testing.T) {
	first, err := Compute(validFields())
	require.NoError(t, err)
	second, err := Compute(validFields())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestComputeFormat(t *testing.T) {
	fp, err := Compute(validFields())
	require.NoError(t, err)

	s := fp.String()
	assert.True(t, strings.HasPrefix(s, "0x"))
	assert.Len(t, s, 66)
}

func TestComputeChangesWithAnyField(t *testing.T) {
	base, err := Compute(validFields())
	require.NoError(t, err)

	mutations := map[string]func(*Fields){
		"subject name": func(f *Fields) { f.SubjectName = "B" },
		"subject id":   func(f *Fields) { f.SubjectID = "124" },
		"program":      func(f *Fields) { f.Program = "EE" },
		"period":       func(f *Fields) { f.Period = "2028" },
		"institution":  func(f *Fields) { f.Institution = "INST2" },
		"score":        func(f *Fields) { f.Score = "9.2" },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			f := validFields()
			mutate(&f)
			got, err := Compute(f)
			require.NoError(t, err)
			assert.NotEqual(t, base, got)
		})
	}
}

func TestComputeRejectsMissingFields(t *testing.T) {
	f := validFields()
	f.Program = "  "
	_, err := Compute(f)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestComputeRejectsSeparator(t *testing.T) {
	f := validFields()
	f.SubjectName = "A|B"
	_, err := Compute(f)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestParseRoundTrip(t *testing.T) {
	fp, err := Compute(validFields())
	require.NoError(t, err)

	parsed, err := Parse(fp.String())
	require.NoError(t, err)
	assert.Equal(t, fp, parsed)
}

func TestParseRejectsMalformed(t *testing.T) {
	cases := []string{
		"",
		"abcdef",
		"0x1234",
		"0x" + strings.Repeat("g", 64),
	}
	for _, c := range cases {
		_, err := Parse(c)
		assert.Error(t, err, "input %q", c)
	}
}
