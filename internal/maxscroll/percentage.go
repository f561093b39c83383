package maxscroll

import (
	"math"

	"github.com/JakeFAU/maxscroll/internal/page"
)

// Percentage converts scroll geometry into an integer in [0, 100]. A page
// that is no taller than its viewport cannot scroll and counts as fully
// seen (100). Geometry with an undefined ratio, such as NaN or Inf/Inf,
// gives 0.
func Percentage(g page.Geometry) int {
	scrollable := g.DocumentHeight - g.ViewportHeight
	if math.IsNaN(g.ScrollTop) || math.IsNaN(scrollable) {
		return 0
	}
	if scrollable <= 0 {
		return 100
	}
	p := math.Round(100 * g.ScrollTop / scrollable)
	switch {
	case math.IsNaN(p):
		return 0
	case p <= 0:
		return 0
	case p >= 100:
		return 100
	default:
		return int(p)
	}
}
