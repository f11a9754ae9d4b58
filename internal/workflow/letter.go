package workflow

import (
	"fmt"
	"time"
)

// DefaultLetterPrefix is used when no prefix is configured.
const DefaultLetterPrefix = "IZP"

var romanMonths = [12]string{"I", "II", "III", "IV", "V", "VI", "VII", "VIII", "IX", "X", "XI", "XII"}

// FormatLetterNumber renders the seq-th letter of at's year, e.g.
// 007/IZP/X/2026.
func FormatLetterNumber(seq int, prefix string, at time.Time) string {
	return fmt.Sprintf("%03d/%s/%s/%d", seq, prefix, romanMonths[at.Month()-1], at.Year())
}
