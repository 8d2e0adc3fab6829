package inspect

// RiskLevel classifies how dangerous a decoded operation is. The ordering
// is load-bearing: aggregation takes the maximum across a transaction's
// intents, so the levels must stay ordinal.
type RiskLevel uint8

const (
	RiskInfo RiskLevel = iota
	RiskLow
	RiskMedium
	RiskHigh
	RiskCritical
)

func (r RiskLevel) String() string {
	switch r {
	case RiskInfo:
		return "info"
	case RiskLow:
		return "low"
	case RiskMedium:
		return "medium"
	case RiskHigh:
		return "high"
	case RiskCritical:
		return "critical"
	}
	return "unknown"
}

// Max returns the higher of the two risk levels.
func (r RiskLevel) Max(other RiskLevel) RiskLevel {
	if other > r {
		return other
	}
	return r
}
