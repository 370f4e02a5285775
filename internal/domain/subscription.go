package domain

import (
	"fmt"
	"strings"
	"time"
)

// Policy is a destination's rule for which show transitions generate an announcement.
type Policy int

const (
	PolicyUnknown Policy = iota
	PolicyAllShows
	PolicyDailyFixedTime
	PolicyKeywordMatch
	PolicyDisabled
)

// DefaultDailyTime is offered as the one-tap choice for daily posts.
const DefaultDailyTime = "16:20"

// Persisted names. They match the rows written by earlier versions of the bot.
const (
	policyNameAllShows = "all_shows"
	policyNameDaily    = "daily_info"
	policyNameKeyword  = "keyword_show"
	policyNameNoPosts  = "no_posts"
	policyNameUnknown  = "unknown"
)

func (p Policy) String() string {
	switch p {
	case PolicyAllShows:
		return policyNameAllShows
	case PolicyDailyFixedTime:
		return policyNameDaily
	case PolicyKeywordMatch:
		return policyNameKeyword
	case PolicyDisabled:
		return policyNameNoPosts
	default:
		return policyNameUnknown
	}
}

// Label is the human-readable policy name used in chat replies.
func (p Policy) Label() string {
	switch p {
	case PolicyAllShows:
		return "все радио-шоу"
	case PolicyDailyFixedTime:
		return "ежедневный пост"
	case PolicyKeywordMatch:
		return "шоу с ключевым словом"
	case PolicyDisabled:
		return "без постов"
	default:
		return "?"
	}
}

// NeedsParam reports whether the policy requires PolicyParam.
func (p Policy) NeedsParam() bool {
	return p == PolicyDailyFixedTime || p == PolicyKeywordMatch
}

// ParsePolicy maps a persisted policy name back to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case policyNameAllShows:
		return PolicyAllShows, nil
	case policyNameDaily:
		return PolicyDailyFixedTime, nil
	case policyNameKeyword:
		return PolicyKeywordMatch, nil
	case policyNameNoPosts:
		return PolicyDisabled, nil
	default:
		return PolicyUnknown, fmt.Errorf("unknown policy %q", s)
	}
}

// Subscription binds one owner's destination to a delivery policy.
// (OwnerID, DestinationID) is unique.
type Subscription struct {
	OwnerID          int64
	DestinationID    int64
	Policy           Policy
	PolicyParam      string
	DestinationTitle string
	OwnerHandle      string
	UpdatedAt        time.Time
}

// Validate checks the policy/param invariant.
func (s Subscription) Validate() error {
	if s.DestinationID == 0 {
		return NewValidationError("destination", "destination id is required")
	}
	switch s.Policy {
	case PolicyAllShows, PolicyDisabled:
		if s.PolicyParam != "" {
			return NewValidationError("policy_param", "policy "+s.Policy.String()+" takes no parameter")
		}
	case PolicyDailyFixedTime:
		if _, _, err := ParseTimeOfDay(s.PolicyParam); err != nil {
			return err
		}
	case PolicyKeywordMatch:
		if strings.TrimSpace(s.PolicyParam) == "" {
			return NewValidationError("policy_param", "keyword is required")
		}
	default:
		return NewValidationError("policy", "unknown policy")
	}
	return nil
}

// Describe renders the policy with its parameter, e.g. "daily_info (16:20)".
func (s Subscription) Describe() string {
	if s.PolicyParam == "" {
		return s.Policy.String()
	}
	return s.Policy.String() + " (" + s.PolicyParam + ")"
}
