package pivot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"czsc-engine/internal/model"
)

var day0 = time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC)

// zigzag builds connected legs through the given turning points.
func zigzag(points ...float64) []model.Leg {
	out := make([]model.Leg, 0, len(points)-1)
	for i := 1; i < len(points); i++ {
		from, to := points[i-1], points[i]
		dir := model.Up
		if to < from {
			dir = model.Down
		}
		out = append(out, model.Leg{
			SDT:       day0.AddDate(0, 0, i-1),
			EDT:       day0.AddDate(0, 0, i),
			Direction: dir,
			High:      max(from, to),
			Low:       min(from, to),
		})
	}
	return out
}

func TestFind_ThirdBuyThenOpenPivot(t *testing.T) {
	legs := zigzag(10, 20, 15, 18, 12, 17, 14, 30, 25, 28)

	zss := Find(legs)
	require.Len(t, zss, 2)

	first := zss[0]
	assert.Equal(t, 18.0, first.ZG)
	assert.Equal(t, 15.0, first.ZD)
	assert.Len(t, first.Members, 7)
	assert.Equal(t, 30.0, first.GG)
	assert.Equal(t, 17.0, first.G)
	assert.Equal(t, 15.0, first.D)
	assert.Equal(t, 10.0, first.DD)
	require.True(t, first.Closed())
	assert.Equal(t, model.ThirdBuy, first.Third)
	assert.Equal(t, 25.0, first.Escape.Low)
	assert.True(t, first.SDT.Equal(legs[0].SDT))
	assert.True(t, first.EDT.Equal(legs[6].EDT))

	open := zss[1]
	assert.False(t, open.Closed())
	assert.Equal(t, model.ThirdNone, open.Third)
	assert.Equal(t, 28.0, open.ZG)
	assert.Equal(t, 25.0, open.ZD)
	assert.Len(t, open.Members, 3)
}

func TestFind_ThirdSell(t *testing.T) {
	legs := zigzag(20, 10, 15, 12, 16, 5, 8)

	zss := Find(legs)
	require.Len(t, zss, 1)
	assert.Equal(t, 15.0, zss[0].ZG)
	assert.Equal(t, 12.0, zss[0].ZD)
	assert.Len(t, zss[0].Members, 5)
	assert.Equal(t, model.ThirdSell, zss[0].Third)
}

func TestFind_MembersOverlapBand(t *testing.T) {
	legs := zigzag(10, 20, 15, 18, 12, 17, 14, 30, 25, 28, 22, 40, 35, 38, 33, 36, 20, 24)
	for _, zs := range Find(legs) {
		assert.Greater(t, zs.ZG, zs.ZD)
		assert.GreaterOrEqual(t, zs.GG, zs.ZG)
		assert.LessOrEqual(t, zs.DD, zs.ZD)
		for _, m := range zs.Members {
			assert.Greater(t, m.High, zs.ZD)
			assert.Less(t, m.Low, zs.ZG)
		}
		if zs.Escape != nil {
			assert.False(t, zs.Escape.High > zs.ZD && zs.Escape.Low < zs.ZG)
		}
	}
}

func TestFind_NoOverlap(t *testing.T) {
	legs := []model.Leg{
		{High: 10, Low: 8},
		{High: 13, Low: 11},
		{High: 16, Low: 14},
		{High: 19, Low: 17},
	}
	assert.Empty(t, Find(legs))
	assert.Empty(t, Find(nil))
	assert.Empty(t, Find(legs[:2]))
}

func TestLegs(t *testing.T) {
	bis := []model.BI{{Direction: model.Up, High: 12, Low: 10, SDT: day0, EDT: day0.AddDate(0, 0, 1)}}
	legs := Legs(bis)
	require.Len(t, legs, 1)
	assert.Equal(t, model.Leg{SDT: day0, EDT: day0.AddDate(0, 0, 1), Direction: model.Up, High: 12, Low: 10}, legs[0])

	xds := []model.XD{{Direction: model.Down, High: 30, Low: 12}}
	assert.Equal(t, 30.0, SegmentLegs(xds)[0].High)
}
