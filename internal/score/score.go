// Package score derives a job's protection status from its evidence.
package score

import "tradeproof/pkg/types"

const (
	MaxScore = 100

	volumeWeight   = 2
	volumeCap      = 5
	gpsWeight      = 3
	signatureBonus = 2
)

// TypeWeights is the coverage credit for having at least one item of a type.
var TypeWeights = map[types.EvidenceType]int{
	types.EvidenceBefore:   20,
	types.EvidenceAfter:    20,
	types.EvidenceApproval: 15,
	types.EvidenceProgress: 10,
	types.EvidenceContract: 10,
	types.EvidenceReceipt:  5,
	types.EvidenceDefect:   5,
}

// Factors is the per-factor detail behind a score.
type Factors struct {
	Coverage       int                        `json:"coverage"`
	Volume         int                        `json:"volume"`
	GPS            int                        `json:"gps"`
	SignedApproval int                        `json:"signed_approval"`
	Total          int                        `json:"total"`
	Missing        []types.EvidenceType       `json:"missing_types"`
	Counts         map[types.EvidenceType]int `json:"counts"`
}

// Breakdown scores items and explains the result. Every factor only grows as
// items are added, so the total never decreases.
func Breakdown(items []*types.EvidenceItem) Factors {
	f := Factors{Counts: make(map[types.EvidenceType]int, len(types.EvidenceTypes))}

	var gps, signed bool
	for _, item := range items {
		if item == nil || !item.EvidenceType.Valid() {
			continue
		}
		f.Counts[item.EvidenceType]++
		gps = gps || item.HasGPS()
		signed = signed || item.IsSignedApproval()
	}

	counted := 0
	for _, t := range types.EvidenceTypes {
		n := f.Counts[t]
		if n > 0 {
			f.Coverage += TypeWeights[t]
		} else {
			f.Missing = append(f.Missing, t)
		}
		counted += n
	}

	f.Volume = min(counted, volumeCap) * volumeWeight
	if gps {
		f.GPS = gpsWeight
	}
	if signed {
		f.SignedApproval = signatureBonus
	}

	f.Total = clamp(f.Coverage + f.Volume + f.GPS + f.SignedApproval)
	return f
}

// Calculate returns the protection status in [0, 100].
func Calculate(items []*types.EvidenceItem) int {
	return Breakdown(items).Total
}

func clamp(v int) int {
	return max(0, min(MaxScore, v))
}

// Label buckets a score for display.
func Label(score int) string {
	switch {
	case score >= 80:
		return "Well protected"
	case score >= 50:
		return "Partially protected"
	case score > 0:
		return "Minimal protection"
	default:
		return "Unprotected"
	}
}
