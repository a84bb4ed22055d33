package penalty

import (
	"time"
)

const (
	recentLimit = 5
	monthLayout = "2006-01"
)

// BuildProfile aggregates a driver's full history into the dashboard view.
// events and rewards must be in insertion order.
func BuildProfile(driver Driver, events []ViolationEvent, rewards []RewardSubmission, now time.Time) ProfileView {
	var active, expired float64
	timeline := newMonthCounter()
	types := newTypeCounter()

	for _, e := range events {
		timeline.add(e.Timestamp)
		types.add(e.Label)
		if e.IsActive(now) {
			active += e.Points
		} else {
			expired += e.Points
		}
	}

	var totalRewards float64
	rewardTimeline := newMonthCounter()
	rewardTypes := newTypeCounter()

	for _, r := range rewards {
		totalRewards += r.Amount
		rewardTimeline.add(r.Timestamp)
		category := r.ViolationReported
		if category == "" {
			category = DefaultRewardCategory
		}
		rewardTypes.add(category)
	}

	// Risk is judged on the exact sum; only the reported figures are rounded.
	risk := RiskLevel(active)
	active = Round2(active)
	expired = Round2(expired)

	return ProfileView{
		Profile: driver,
		Stats: ProfileStats{
			ActivePoints:       active,
			ExpiredPoints:      expired,
			RiskLevel:          risk,
			TotalViolations:    len(events),
			TotalRewards:       Round2(totalRewards),
			TotalContributions: len(rewards),
			ContributorLevel:   ContributorLevel(len(rewards)),
		},
		Charts: ProfileCharts{
			PenaltyTimeline: timeline.result(),
			RewardTimeline:  rewardTimeline.result(),
			ViolationTypes:  types.result(),
			RewardTypes:     rewardTypes.result(),
			PointsSplit:     [2]float64{active, expired},
		},
		RecentViolations: lastN(events, recentLimit),
		RecentRewards:    lastN(rewards, recentLimit),
	}
}

// lastN keeps the original order of the tail.
func lastN[T any](items []T, n int) []T {
	if len(items) > n {
		items = items[len(items)-n:]
	}
	out := make([]T, len(items))
	copy(out, items)
	return out
}

// counter preserves first-seen key order so chart series stay stable.
type counter struct {
	order  []string
	counts map[string]int
}

func newCounter() *counter {
	return &counter{counts: make(map[string]int)}
}

func (c *counter) inc(key string) {
	if _, ok := c.counts[key]; !ok {
		c.order = append(c.order, key)
	}
	c.counts[key]++
}

type monthCounter struct{ *counter }

func newMonthCounter() monthCounter { return monthCounter{newCounter()} }

func (m monthCounter) add(ts time.Time) { m.inc(ts.UTC().Format(monthLayout)) }

func (m monthCounter) result() []MonthCount {
	out := make([]MonthCount, 0, len(m.order))
	for _, k := range m.order {
		out = append(out, MonthCount{Month: k, Count: m.counts[k]})
	}
	return out
}

type typeCounter struct{ *counter }

func newTypeCounter() typeCounter { return typeCounter{newCounter()} }

func (t typeCounter) add(label string) { t.inc(label) }

func (t typeCounter) result() []TypeCount {
	out := make([]TypeCount, 0, len(t.order))
	for _, k := range t.order {
		out = append(out, TypeCount{Type: k, Count: t.counts[k]})
	}
	return out
}
