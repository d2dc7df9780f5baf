package reputation

// Status classifies an entity's participation rights, derived from
// its counters on every read rather than stored (spec.md §4.2/§4.6).
type Status int

const (
	OK Status = iota
	Throttled
	Banned
)

func (s Status) String() string {
	switch s {
	case OK:
		return "ok"
	case Throttled:
		return "throttled"
	case Banned:
		return "banned"
	default:
		return "unknown"
	}
}

// Default tuning constants (spec.md §4.2); callers may override via config.
const (
	DefaultMinInclusionRateDenominator = 10
	DefaultThrottlingSlack             = 10
	DefaultBanSlack                    = 50
)

// DeriveStatus is a pure function of (opsSeen, opsIncluded) plus the
// tuning constants — it never mutates a reputation entry, which is
// what lets the derivation be exercised directly in tests without any
// storage fixture (spec.md §4.3 "Derived reputation status"). Exported
// so alternative Storage implementations (storageredis) derive status
// identically.
func DeriveStatus(opsSeen, opsIncluded, minInclusionRateDenominator, throttlingSlack, banSlack uint64) Status {
	minInclusion := uint64(0)
	if minInclusionRateDenominator > 0 {
		minInclusion = opsSeen / minInclusionRateDenominator
	}
	if opsIncluded >= minInclusion {
		return OK
	}
	diff := minInclusion - opsIncluded
	if diff > banSlack {
		return Banned
	}
	if diff <= throttlingSlack {
		return Throttled
	}
	return Throttled
}
