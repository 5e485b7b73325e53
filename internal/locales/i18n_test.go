package locales

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func TestPartLabel(t *testing.T) {
	b, err := Load(nil)
	require.NoError(t, err)

	tests := []struct {
		langs []string
		want  string
	}{
		{[]string{"en"}, "Part 2"},
		{[]string{"es"}, "Parte 2"},
		{[]string{"es-MX"}, "Parte 2"},
		{[]string{"ru"}, "Часть 2"},
		{[]string{"xx"}, "Part 2"},
		{nil, "Part 2"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, b.Localizer(tt.langs...).PartLabel(2), "langs %v", tt.langs)
	}
}

func TestMessageTemplateData(t *testing.T) {
	b, err := Load(nil)
	require.NoError(t, err)

	got := b.Localizer("en").Message(MsgRunSummary, map[string]any{
		"Account":   "acct",
		"Published": 3,
		"First":     "2024-05-10 12:00",
		"Last":      "2024-05-11 12:00",
	})
	assert.Equal(t, "acct: published 3 clip(s), 2024-05-10 12:00 to 2024-05-11 12:00", got)
}

func TestMessageUnknownID(t *testing.T) {
	b, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, "NoSuchMessage", b.Localizer("es").Message("NoSuchMessage", nil))
}

func TestLanguages(t *testing.T) {
	b, err := Load(nil)
	require.NoError(t, err)
	assert.Contains(t, b.Languages(), language.English)
	assert.Contains(t, b.Languages(), language.Spanish)
	assert.Contains(t, b.Languages(), language.Russian)
}
