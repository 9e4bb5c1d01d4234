package scoring

// gradeBand maps a minimum percentage to a letter grade. Bands are
// checked in descending order; anything below the last band is an F.
type gradeBand struct {
	minPercent float64
	letter     string
}

var gradeBands = []gradeBand{
	{90, "A+"},
	{85, "A"},
	{80, "A-"},
	{75, "B+"},
	{70, "B"},
	{65, "B-"},
	{60, "C+"},
	{55, "C"},
	{50, "C-"},
	{45, "D+"},
	{40, "D"},
}

// LetterGrade maps a percentage in [0, 100] to a letter grade.
func LetterGrade(percent float64) string {
	for _, band := range gradeBands {
		if percent >= band.minPercent {
			return band.letter
		}
	}
	return "F"
}
