package notifications

const (
	TypeTargetUpdated        = "target_updated"
	TypeTargetAchievement    = "target_achievement"
	TypeContributionProgress = "contribution_progress"
	TypeNewPeriod            = "target_new_period"
	TypeGoalAssigned         = "goal_assigned"
)
