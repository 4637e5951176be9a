// Package session derives access-control decisions from the auth slice and
// keeps the local session honest against the backend through periodic
// revalidation.
package session

import (
	"time"

	"github.com/openshelf/openshelf-go/internal/appstate"
)

// State classifies a user's ability to view paid content. It is derived from
// the auth slice on every check, never stored.
type State string

const (
	Anonymous         State = "anonymous"
	Deleted           State = "authenticated-deleted"
	Unsubscribed      State = "authenticated-unsubscribed"
	SubscribedExpired State = "authenticated-subscribed-expired"
	SubscribedActive  State = "authenticated-subscribed-active"
)

// Prompt names the call to action shown alongside a blocked decision.
type Prompt string

const (
	PromptNone      Prompt = ""
	PromptLogin     Prompt = "login"
	PromptSupport   Prompt = "support"
	PromptSubscribe Prompt = "subscribe"
	PromptRenew     Prompt = "renew"
)

// Decision is the outcome of one access check.
type Decision struct {
	State   State
	Allowed bool
	Prompt  Prompt
}

// expiryLayouts are the accepted ExpiryDate renderings, newest first.
var expiryLayouts = []string{time.RFC3339, "2006-01-02"}

// Evaluate classifies the auth snapshot at the given instant. Only an active
// subscription grants access; every other state carries its own prompt so the
// UI can route the user somewhere useful.
func Evaluate(auth appstate.AuthState, now time.Time) Decision {
	switch {
	case !auth.IsLoggedIn:
		return Decision{State: Anonymous, Prompt: PromptLogin}
	case auth.IsDeleted:
		// Deleted accounts get no subscribe prompt; support has to untangle it.
		return Decision{State: Deleted, Prompt: PromptSupport}
	case !auth.IsSubscribed:
		return Decision{State: Unsubscribed, Prompt: PromptSubscribe}
	case subscriptionExpired(auth.ExpiryDate, now):
		return Decision{State: SubscribedExpired, Prompt: PromptRenew}
	default:
		return Decision{State: SubscribedActive, Allowed: true}
	}
}

// RecomputeExpiry refreshes the derived IsSubscriptionExpired flag on the auth
// slice, maintaining the invariant that it is never set while unsubscribed.
func RecomputeExpiry(auth *appstate.AuthState, now time.Time) {
	if !auth.IsSubscribed {
		auth.IsSubscriptionExpired = false
		return
	}
	auth.IsSubscriptionExpired = subscriptionExpired(auth.ExpiryDate, now)
}

func subscriptionExpired(expiryDate string, now time.Time) bool {
	if expiryDate == "" {
		return false
	}
	for _, layout := range expiryLayouts {
		if expiry, err := time.Parse(layout, expiryDate); err == nil {
			return now.After(expiry)
		}
	}
	// An unparseable date blocks access rather than granting it forever.
	return true
}
