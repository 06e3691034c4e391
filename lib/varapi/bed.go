package varapi

// BedInterval is one region of a BED track. Start and End are kept as
// they appear in the track; position matching treats both ends as
// inclusive.
type BedInterval struct {
	Chrom string `json:"chrom"`
	Start int64  `json:"start"`
	End   int64  `json:"end"`
	Name  string `json:"name,omitempty"`
}
