package scoring

import "github.com/okian/kline/internal/domain/model"

// neutralRaw stands in for a mapped palace missing from the input.
const neutralRaw = 50

// Project maps raw palace scores onto the four dimensions. Each dimension
// is the weighted mean of its palaces plus shift, rescaled into 0..100.
// Raising any contributing palace score never lowers a dimension.
func (m *Model) Project(palaceScores map[string]float64, shift float64) model.Dimensions {
	var d model.Dimensions
	for _, dim := range model.AllDimensions {
		var sum, weight float64
		for _, pw := range m.dimensions[dim] {
			raw, ok := palaceScores[pw.Palace]
			if !ok {
				raw = neutralRaw
			}
			sum += raw * pw.Weight
			weight += pw.Weight
		}
		mean := float64(neutralRaw)
		if weight > 0 {
			mean = sum / weight
		}
		d.Set(dim, model.Round1(m.Normalize(mean+shift)))
	}
	return d
}
