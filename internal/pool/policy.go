package pool

// Policy ranks the candidates that survived conflict and cap filtering and
// picks one. Candidates arrive ordered by priority, highest first.
type Policy interface {
	// NeedsStats reports whether Pick reads assignment stats. Policies that
	// do not are spared the stats query and the daily cap filter.
	NeedsStats() bool
	Pick(candidates []Candidate) (Candidate, bool)
}

func defaultPolicies() map[Type]Policy {
	return map[Type]Policy{
		TypePriority:     priorityPolicy{},
		TypeRoundRobin:   roundRobinPolicy{},
		TypeLoadBalanced: loadBalancedPolicy{},
	}
}

type priorityPolicy struct{}

func (priorityPolicy) NeedsStats() bool { return false }

func (priorityPolicy) Pick(candidates []Candidate) (Candidate, bool) {
	if len(candidates) == 0 {
		return Candidate{}, false
	}
	return candidates[0], true
}

// roundRobinPolicy picks the member assigned least recently. Never-assigned
// members come first.
type roundRobinPolicy struct{}

func (roundRobinPolicy) NeedsStats() bool { return true }

func (roundRobinPolicy) Pick(candidates []Candidate) (Candidate, bool) {
	return pickMin(candidates, func(a, b Candidate) bool {
		switch {
		case a.LastAssignedAt == nil:
			return b.LastAssignedAt != nil
		case b.LastAssignedAt == nil:
			return false
		default:
			return a.LastAssignedAt.Before(*b.LastAssignedAt)
		}
	})
}

// loadBalancedPolicy picks the member with the fewest bookings this week.
type loadBalancedPolicy struct{}

func (loadBalancedPolicy) NeedsStats() bool { return true }

func (loadBalancedPolicy) Pick(candidates []Candidate) (Candidate, bool) {
	return pickMin(candidates, func(a, b Candidate) bool {
		return a.BookingsThisWeek < b.BookingsThisWeek
	})
}

// pickMin returns the first candidate no other candidate is less than, so ties
// keep input order.
func pickMin(candidates []Candidate, less func(a, b Candidate) bool) (Candidate, bool) {
	if len(candidates) == 0 {
		return Candidate{}, false
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if less(c, best) {
			best = c
		}
	}
	return best, true
}
