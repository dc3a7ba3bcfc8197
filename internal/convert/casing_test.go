package convert

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeText(t *testing.T) {
	assert.Equal(t, "Gewogen deelnamecoefficient", NormalizeText("Gewogen deelnamecoëfficiënt"))
	assert.Equal(t, "Hoger beroepsonderwijs", NormalizeText("Hoger beroepsonderwijs"))
	assert.Equal(t, "eleve", NormalizeText("élève"))
}

func TestConvertCase(t *testing.T) {
	tests := []struct {
		name  string
		style CaseStyle
		want  string
	}{
		{"Persoonsgebonden nummer", CaseSnake, "persoonsgebonden_nummer"},
		{"Persoonsgebonden nummer", CaseCamel, "persoonsgebondenNummer"},
		{"Persoonsgebonden nummer", CasePascal, "PersoonsgebondenNummer"},
		{"Persoonsgebonden nummer", CaseOriginal, "Persoonsgebonden nummer"},
		{"Gewogen deelnamecoëfficiënt", CaseSnake, "gewogen_deelnamecoefficient"},
		{"Code (CBS)", CaseSnake, "code_cbs"},
		{"BRIN nummer", CaseSnake, "brin_nummer"},
		{"BRINNummer", CasePascal, "BrinNummer"},
		{"jaar2023", CaseSnake, "jaar2023"},
	}
	for _, tt := range tests {
		t.Run(tt.name+"/"+string(tt.style), func(t *testing.T) {
			assert.Equal(t, tt.want, ConvertCase(tt.name, tt.style))
		})
	}
}

func TestSplitWords(t *testing.T) {
	assert.Equal(t, []string{"Naam", "land"}, splitWords("Naam land"))
	assert.Equal(t, []string{"camel", "Case", "Name"}, splitWords("camelCaseName"))
	assert.Equal(t, []string{"ABC", "Word"}, splitWords("ABCWord"))
	assert.Empty(t, splitWords("---"))
}
