package onboarding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractInterests(t *testing.T) {
	cases := []struct {
		name string
		text string
		want []string
	}{
		{"keywords", "I'm into TECHNOLOGY and travel", []string{"Technology", "Travel"}},
		{"first words", "Knitting, birds, old cars", []string{"Knitting,", "Birds,", "Old"}},
		{"short words skipped", "go to yoga", []string{"Yoga"}},
		{"empty", "", []string{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ExtractInterests(tc.text))
		})
	}
}

func TestExtractProfileDefaults(t *testing.T) {
	profile := ExtractProfile([]string{"Ada", "twenty"})
	assert.Equal(t, "Ada", profile.Name)
	assert.Nil(t, profile.Age)
	assert.Equal(t, []string{}, profile.Interests)
	assert.Equal(t, "Meaningful conversations", profile.LookingFor)

	profile = ExtractProfile([]string{"Ada", " 31 ", "art"})
	require.NotNil(t, profile.Age)
	assert.Equal(t, 31, *profile.Age)
	assert.Equal(t, []string{"Art"}, profile.Interests)
}
