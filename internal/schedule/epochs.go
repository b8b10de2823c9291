package schedule

// Years lists the in-game years a room progresses through.
var Years = buildYears(1960, 2024, 2)

func buildYears(from, to, step int) []int {
	var out []int
	for y := from; y <= to; y += step {
		out = append(out, y)
	}
	return out
}

// NextYear returns the year following y in Years. The last year, and any
// year not in the list, is returned unchanged.
func NextYear(y int) int {
	for i, v := range Years {
		if v == y && i < len(Years)-1 {
			return Years[i+1]
		}
	}
	return y
}

// PowerCategory is a horsepower band used to split world series fields.
type PowerCategory struct {
	Label string `json:"label"`
	Min   int    `json:"min"`
	Max   int    `json:"max"` // 0 means unbounded
}

var PowerCategories = []PowerCategory{
	{Label: "0-120", Min: 0, Max: 120},
	{Label: "121-200", Min: 121, Max: 200},
	{Label: "201-300", Min: 201, Max: 300},
	{Label: "301-450", Min: 301, Max: 450},
	{Label: "451-650", Min: 451, Max: 650},
	{Label: "651-900", Min: 651, Max: 900},
	{Label: "900+", Min: 901},
}

// CategoryFor returns the band containing power.
func CategoryFor(power float64) PowerCategory {
	for _, c := range PowerCategories {
		if power <= float64(c.Max) || c.Max == 0 {
			return c
		}
	}
	return PowerCategories[len(PowerCategories)-1]
}
