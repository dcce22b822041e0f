package indicators

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

const (
	profileBins          = 20
	valueAreaFraction    = 0.70
	shelfVolumeThreshold = 1.5 // multiple of the mean bin volume
)

// VolumeShelf is a high-volume price band.
type VolumeShelf struct {
	PriceLow  float64 `json:"price_low"`
	PriceHigh float64 `json:"price_high"`
	Volume    float64 `json:"volume"`
}

// VolumeProfile summarizes where volume traded across a price range.
type VolumeProfile struct {
	POC        float64       `json:"poc"` // point of control
	VAH        float64       `json:"vah"` // value area high
	VAL        float64       `json:"val"` // value area low
	Shelves    []VolumeShelf `json:"shelves"`
	BinEdges   []float64     `json:"bin_edges"`
	BinVolumes []float64     `json:"bin_volumes"`
}

// ComputeVolumeProfile builds a 20-bin volume profile. Each bar's volume is
// spread across the bins its low-high range overlaps, proportionally to the
// overlap. Returns nil when there are no bars or the price range is flat.
func ComputeVolumeProfile(highs, lows, volumes []float64) *VolumeProfile {
	if len(highs) == 0 {
		return nil
	}

	priceMin := math.Inf(1)
	priceMax := math.Inf(-1)
	for i := range highs {
		if lows[i] < priceMin {
			priceMin = lows[i]
		}
		if highs[i] > priceMax {
			priceMax = highs[i]
		}
	}
	if priceMax <= priceMin {
		return nil
	}

	binSize := (priceMax - priceMin) / profileBins
	edges := make([]float64, profileBins+1)
	for i := range edges {
		edges[i] = priceMin + float64(i)*binSize
	}

	binVolumes := make([]float64, profileBins)
	for i := range highs {
		lo, hi, vol := lows[i], highs[i], volumes[i]
		span := hi - lo
		if span <= 0 {
			// Flat bar: all volume lands in its containing bin
			idx := int((lo - priceMin) / binSize)
			if idx >= profileBins {
				idx = profileBins - 1
			}
			if idx < 0 {
				idx = 0
			}
			binVolumes[idx] += vol
			continue
		}
		for b := 0; b < profileBins; b++ {
			overlap := math.Min(hi, edges[b+1]) - math.Max(lo, edges[b])
			if overlap > 0 {
				binVolumes[b] += vol * overlap / span
			}
		}
	}

	totalVolume := 0.0
	pocBin := 0
	for b, v := range binVolumes {
		totalVolume += v
		if v > binVolumes[pocBin] {
			pocBin = b
		}
	}
	if totalVolume == 0 {
		return nil
	}

	// Value area: take bins in descending volume order until 70% is covered
	order := make([]int, profileBins)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool {
		return binVolumes[order[i]] > binVolumes[order[j]]
	})

	var covered float64
	vah := math.Inf(-1)
	val := math.Inf(1)
	for _, b := range order {
		covered += binVolumes[b]
		if edges[b] < val {
			val = edges[b]
		}
		if edges[b+1] > vah {
			vah = edges[b+1]
		}
		if covered >= totalVolume*valueAreaFraction {
			break
		}
	}

	meanVolume := stat.Mean(binVolumes, nil)
	var shelves []VolumeShelf
	for b, v := range binVolumes {
		if v > shelfVolumeThreshold*meanVolume {
			shelves = append(shelves, VolumeShelf{
				PriceLow:  edges[b],
				PriceHigh: edges[b+1],
				Volume:    v,
			})
		}
	}

	return &VolumeProfile{
		POC:        edges[pocBin] + binSize/2,
		VAH:        vah,
		VAL:        val,
		Shelves:    shelves,
		BinEdges:   edges,
		BinVolumes: binVolumes,
	}
}
