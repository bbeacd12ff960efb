package content

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet(t *testing.T) {
	for _, p := range Pages() {
		md, err := Get(p)
		require.NoError(t, err, p)
		assert.NotEmpty(t, md)
		assert.NotEmpty(t, p.Title())
	}

	md, _ := Get(Privacy)
	assert.Contains(t, md, "# Privacy Policy")
	md, _ = Get(Terms)
	assert.Contains(t, md, "Not a substitute for professional medical advice")

	_, err := Get(Page("about"))
	assert.Error(t, err)
}

func TestDiseaseInfo(t *testing.T) {
	md := DiseaseInfo("parkinsons")
	assert.Contains(t, md, "Parkinson's disease is a progressive nervous system disorder")

	md = DiseaseInfo("gout")
	assert.Contains(t, md, "# Gout Information")
	assert.Contains(t, md, UnknownDiseaseInfo)

	assert.Contains(t, DiseaseInfo(""), UnknownDiseaseInfo)
}
