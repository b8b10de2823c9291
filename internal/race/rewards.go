package race

import "github.com/raceweek/raceweek/pkg/core"

// RewardTable maps a finishing position to its payout.
type RewardTable interface {
	Reward(rank, participants int) core.Reward
}

// TieredRewards is the default payout: 5000/25, 2500/18, 1000/15 for the
// podium, 250/10 for 4th and 5th, 50/0 for everyone else.
type TieredRewards struct{}

func (TieredRewards) Reward(rank, _ int) core.Reward {
	switch {
	case rank == 1:
		return core.Reward{Money: 5000, Points: 25}
	case rank == 2:
		return core.Reward{Money: 2500, Points: 18}
	case rank == 3:
		return core.Reward{Money: 1000, Points: 15}
	case rank <= 5:
		return core.Reward{Money: 250, Points: 10}
	default:
		return core.Reward{Money: 50}
	}
}

// ScheduledRewards holds per-field-size payout tables. ByParticipants[n][i]
// is the reward for rank i+1 in a race of n participants. Field sizes or
// ranks missing from the table fall through to Fallback.
type ScheduledRewards struct {
	ByParticipants map[int][]core.Reward
	Fallback       RewardTable
}

func (s ScheduledRewards) Reward(rank, participants int) core.Reward {
	if table, ok := s.ByParticipants[participants]; ok && rank >= 1 && rank <= len(table) {
		return table[rank-1]
	}
	if s.Fallback != nil {
		return s.Fallback.Reward(rank, participants)
	}
	return TieredRewards{}.Reward(rank, participants)
}
