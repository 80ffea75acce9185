package models

import "fmt"

// DensityCell is one square of a density tier grid
type DensityCell struct {
	XIndex        int64 `json:"xIndex" db:"xIndex"`
	YIndex        int64 `json:"yIndex" db:"yIndex"`
	LastPointTime int64 `json:"lastPointTime" db:"lastPointTime"` // Unix milliseconds
	Amount        int64 `json:"amount" db:"amount"`
}

// Tier identifies one of the fixed-resolution density grids
type Tier int

const (
	TierWorld Tier = iota
	TierContinent
	TierCountry
	TierCity
	TierStreet
)

// Tiers lists all tiers from coarsest to finest
var Tiers = []Tier{TierWorld, TierContinent, TierCountry, TierCity, TierStreet}

var tierNames = map[Tier]string{
	TierWorld:     "world",
	TierContinent: "continent",
	TierCountry:   "country",
	TierCity:      "city",
	TierStreet:    "street",
}

var tierSubdivisions = map[Tier]int64{
	TierWorld:     3_000,
	TierContinent: 30_000,
	TierCountry:   300_000,
	TierCity:      1_500_000,
	TierStreet:    5_000_000,
}

func (t Tier) String() string {
	if name, ok := tierNames[t]; ok {
		return name
	}
	return fmt.Sprintf("tier(%d)", int(t))
}

// Subdivisions returns the number of cells per axis of the tier grid
func (t Tier) Subdivisions() int64 {
	return tierSubdivisions[t]
}

// DensityCellsResponse is returned by the density cells endpoint
type DensityCellsResponse struct {
	Tier         string        `json:"tier"`
	Subdivisions int64         `json:"subdivisions"`
	Cells        []DensityCell `json:"cells"`
}
