package grading

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Letter is a grade on the UGEL literal scale.
type Letter string

const (
	LetterAD Letter = "AD"
	LetterA  Letter = "A"
	LetterB  Letter = "B"
	LetterC  Letter = "C"
)

var (
	thresholdAD = decimal.NewFromInt(18)
	thresholdA  = decimal.NewFromInt(14)
	thresholdB  = decimal.NewFromInt(11)
)

// Description returns the achievement label printed on report cards.
func (l Letter) Description() string {
	switch l {
	case LetterAD:
		return "Logro Destacado (18-20)"
	case LetterA:
		return "Logro Esperado (14-17)"
	case LetterB:
		return "En Proceso (11-13)"
	default:
		return "En Inicio (00-10)"
	}
}

// Banding selects how a decimal average is mapped onto the letter scale.
//
// Two strategies exist because the annual roll-up and the spreadsheet
// pipeline have always banded differently. This is an inherited
// inconsistency, not a design goal; keep each call site on the strategy it
// uses today until the expected behaviour is confirmed.
type Banding string

const (
	// BandingRaw bands the decimal average directly (17.99 -> A).
	BandingRaw Banding = "raw"
	// BandingRounded bands the commercially rounded integer (17.5 -> AD).
	BandingRounded Banding = "rounded"
)

// Band maps value onto the letter scale using the selected strategy.
func (b Banding) Band(value decimal.Decimal) Letter {
	if b == BandingRounded {
		return BandRounded(value)
	}
	return BandRaw(value)
}

// BandRaw uses inclusive lower bounds on the unrounded value:
// AD >= 18, A >= 14, B >= 11, otherwise C.
func BandRaw(value decimal.Decimal) Letter {
	switch {
	case value.GreaterThanOrEqual(thresholdAD):
		return LetterAD
	case value.GreaterThanOrEqual(thresholdA):
		return LetterA
	case value.GreaterThanOrEqual(thresholdB):
		return LetterB
	default:
		return LetterC
	}
}

// BandRounded applies CommercialRound before banding.
func BandRounded(value decimal.Decimal) Letter {
	return BandRaw(decimal.NewFromInt(CommercialRound(value)))
}

// ParseLetter accepts a letter in any case.
func ParseLetter(raw string) (Letter, error) {
	switch Letter(strings.ToUpper(strings.TrimSpace(raw))) {
	case LetterAD:
		return LetterAD, nil
	case LetterA:
		return LetterA, nil
	case LetterB:
		return LetterB, nil
	case LetterC:
		return LetterC, nil
	}
	return "", fmt.Errorf("unknown letter %q", raw)
}

// Comment builds the narrative remark printed next to an annual grade.
func Comment(letter Letter, average decimal.Decimal, bimesters int) string {
	avg := average.StringFixed(Scale)
	switch letter {
	case LetterAD:
		return fmt.Sprintf("Excelente desempeño académico. Promedio %s en %d bimestre(s).", avg, bimesters)
	case LetterA:
		return fmt.Sprintf("Buen desempeño académico. Promedio %s en %d bimestre(s).", avg, bimesters)
	case LetterB:
		return fmt.Sprintf("Desempeño regular. Necesita mejorar. Promedio %s en %d bimestre(s).", avg, bimesters)
	default:
		return fmt.Sprintf("Desempeño insuficiente. Requiere apoyo. Promedio %s en %d bimestre(s).", avg, bimesters)
	}
}
