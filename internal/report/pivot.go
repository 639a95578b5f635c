package report

import (
	"sort"

	"github.com/modelpulse/tracker-cli/internal/model"
)

// PivotRow holds the current/previous counts for one identity.
type PivotRow struct {
	Identity model.Identity `json:"identity"`
	Current  int64          `json:"current"`
	Previous int64          `json:"previous"`
}

// Delta is the current-minus-previous difference for the row.
func (r PivotRow) Delta() int64 { return r.Current - r.Previous }

// Pivot accumulates per-identity counts while preserving insertion order.
// Leaderboard ties break on that order, so ranking stays reproducible for
// identical store contents.
type Pivot struct {
	rows  []*PivotRow
	index map[model.Identity]*PivotRow
}

func NewPivot() *Pivot {
	return &Pivot{index: make(map[model.Identity]*PivotRow)}
}

// Row returns the row for the identity, creating it on first use.
func (p *Pivot) Row(id model.Identity) *PivotRow {
	if r, ok := p.index[id]; ok {
		return r
	}
	r := &PivotRow{Identity: id}
	p.rows = append(p.rows, r)
	p.index[id] = r
	return r
}

// Rows returns all rows in insertion order.
func (p *Pivot) Rows() []PivotRow {
	out := make([]PivotRow, len(p.rows))
	for i, r := range p.rows {
		out[i] = *r
	}
	return out
}

func (p *Pivot) Len() int { return len(p.rows) }

// TopBy returns the n rows with the largest value, stable-sorted so rows
// with equal values keep insertion order.
func (p *Pivot) TopBy(n int, value func(PivotRow) int64) []PivotRow {
	rows := p.Rows()
	sort.SliceStable(rows, func(i, j int) bool {
		return value(rows[i]) > value(rows[j])
	})
	if n > 0 && len(rows) > n {
		rows = rows[:n]
	}
	return rows
}

// Filter returns a new pivot containing only rows the predicate accepts,
// keeping insertion order.
func (p *Pivot) Filter(keep func(PivotRow) bool) *Pivot {
	out := NewPivot()
	for _, r := range p.rows {
		if keep(*r) {
			row := out.Row(r.Identity)
			row.Current = r.Current
			row.Previous = r.Previous
		}
	}
	return out
}
