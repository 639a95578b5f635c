package report

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/modelpulse/tracker-cli/internal/model"
)

func id(name string) model.Identity {
	return model.Identity{Platform: "huggingface", Publisher: "Acme", ModelName: name}
}

func TestPivot_RowGetOrCreate(t *testing.T) {
	p := NewPivot()
	p.Row(id("a")).Current = 10
	p.Row(id("a")).Previous = 5
	p.Row(id("b")).Current = 20

	rows := p.Rows()
	assert.Len(t, rows, 2)
	assert.Equal(t, int64(10), rows[0].Current)
	assert.Equal(t, int64(5), rows[0].Previous)
	assert.Equal(t, int64(5), rows[0].Delta())
}

func TestPivot_TopBy_StableTies(t *testing.T) {
	p := NewPivot()
	p.Row(id("first")).Current = 100
	p.Row(id("second")).Current = 100
	p.Row(id("third")).Current = 200

	top := p.TopBy(2, func(r PivotRow) int64 { return r.Current })
	assert.Equal(t, "third", top[0].Identity.ModelName)
	// equal values keep insertion order
	assert.Equal(t, "first", top[1].Identity.ModelName)
}

func TestPivot_TopBy_FewerRowsThanN(t *testing.T) {
	p := NewPivot()
	p.Row(id("only")).Current = 1

	top := p.TopBy(5, func(r PivotRow) int64 { return r.Current })
	assert.Len(t, top, 1)
}

func TestPivot_Filter(t *testing.T) {
	p := NewPivot()
	p.Row(id("keep")).Current = 10
	p.Row(id("drop")).Current = 20

	kept := p.Filter(func(r PivotRow) bool { return r.Identity.ModelName == "keep" })
	assert.Equal(t, 1, kept.Len())
	assert.Equal(t, int64(10), kept.Rows()[0].Current)
}
