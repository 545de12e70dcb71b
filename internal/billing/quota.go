package billing

import "proofwork/internal/types"

const (
	reasonProjectLimit = "You have reached your project limit. Upgrade to create more projects."
	reasonSessionLimit = "You have reached your monthly session limit. Upgrade to continue tracking."
)

// CheckQuota decides whether action is allowed for a user on def with the
// given usage. A finite limit denies once usage reaches it; an unbounded
// limit always allows. Unknown actions are denied.
func CheckQuota(def types.TierDefinition, usage types.UsageSnapshot, action types.QuotaAction) types.QuotaDecision {
	var (
		limit, used int
		code        types.ErrorCode
		reason      string
	)
	switch action {
	case types.ActionCreateProject:
		limit, used = def.ProjectLimit, usage.ProjectsOwned
		code, reason = types.ErrCodeLimitProjects, reasonProjectLimit
	case types.ActionCreateSession:
		limit, used = def.SessionLimit, usage.SessionsThisCalendarMonth
		code, reason = types.ErrCodeLimitSessions, reasonSessionLimit
	default:
		return types.QuotaDecision{
			Action: action,
			Reason: "unknown action",
			Code:   types.ErrCodeValidationInvalidAction,
		}
	}

	d := types.QuotaDecision{Action: action, Limit: limit, Used: used}
	switch {
	case limit < 0:
		d.Allowed = true
		d.Remaining = types.Unlimited
	case used >= limit:
		d.Code = code
		d.Reason = reason
	default:
		d.Allowed = true
		d.Remaining = limit - used
	}
	return d
}

// ValidAction reports whether a is a quota-checked action.
func ValidAction(a types.QuotaAction) bool {
	return a == types.ActionCreateProject || a == types.ActionCreateSession
}
