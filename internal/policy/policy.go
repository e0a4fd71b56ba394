// Package policy is the pure, side-effect-free decision engine: the only
// component that decides a request's final_space.
package policy

import "strings"

// Action is a policy decision's outcome.
type Action string

const (
	Allow    Action = "allow"
	Redirect Action = "redirect"
	Reject   Action = "reject"
)

// Decision is the engine's output.
type Decision struct {
	Action     Action
	Reason     string
	FinalSpace string
}

// Settings is the subset of project settings the engine reads.
type Settings struct {
	TeamWriteEnabled bool
}

// Config holds the deployment-configured space-naming conventions.
type Config struct {
	PrivateSpacePrefix string
}

// Evaluate applies the rules in SPEC_FULL.md §4.2 in order.
func Evaluate(actorUserID, targetSpace string, settings Settings, cfg Config) Decision {
	prefix := cfg.PrivateSpacePrefix
	if prefix == "" {
		prefix = "private:"
	}

	if strings.HasPrefix(targetSpace, "team:") && !settings.TeamWriteEnabled {
		return Decision{
			Action:     Redirect,
			Reason:     "policy:team_write_disabled",
			FinalSpace: prefix + actorUserID,
		}
	}

	if strings.HasPrefix(targetSpace, "private:") || strings.HasPrefix(targetSpace, "team:") || isKnownSharedSpace(targetSpace) {
		return Decision{
			Action:     Allow,
			Reason:     "policy:allow",
			FinalSpace: targetSpace,
		}
	}

	return Decision{
		Action: Reject,
		Reason: "unknown_space_type",
	}
}

func isKnownSharedSpace(space string) bool {
	return space == "org:shared"
}
