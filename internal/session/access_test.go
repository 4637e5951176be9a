package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openshelf/openshelf-go/internal/appstate"
)

var checkTime = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func TestEvaluateStates(t *testing.T) {
	cases := []struct {
		name    string
		auth    appstate.AuthState
		state   State
		allowed bool
		prompt  Prompt
	}{
		{
			name:   "anonymous",
			auth:   appstate.AuthState{},
			state:  Anonymous,
			prompt: PromptLogin,
		},
		{
			name: "deleted account",
			auth: appstate.AuthState{
				IsLoggedIn:   true,
				IsDeleted:    true,
				IsSubscribed: true,
				ExpiryDate:   "2030-01-01",
			},
			state:  Deleted,
			prompt: PromptSupport,
		},
		{
			name:   "never subscribed",
			auth:   appstate.AuthState{IsLoggedIn: true},
			state:  Unsubscribed,
			prompt: PromptSubscribe,
		},
		{
			name: "subscription lapsed",
			auth: appstate.AuthState{
				IsLoggedIn:   true,
				IsSubscribed: true,
				ExpiryDate:   "2020-01-01",
			},
			state:  SubscribedExpired,
			prompt: PromptRenew,
		},
		{
			name: "active subscription",
			auth: appstate.AuthState{
				IsLoggedIn:   true,
				IsSubscribed: true,
				ExpiryDate:   "2030-01-01",
			},
			state:   SubscribedActive,
			allowed: true,
		},
		{
			name: "subscribed with no expiry date",
			auth: appstate.AuthState{
				IsLoggedIn:   true,
				IsSubscribed: true,
			},
			state:   SubscribedActive,
			allowed: true,
		},
		{
			name: "unparseable expiry blocks",
			auth: appstate.AuthState{
				IsLoggedIn:   true,
				IsSubscribed: true,
				ExpiryDate:   "soon",
			},
			state:  SubscribedExpired,
			prompt: PromptRenew,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			decision := Evaluate(tc.auth, checkTime)
			require.Equal(t, tc.state, decision.State)
			require.Equal(t, tc.allowed, decision.Allowed)
			require.Equal(t, tc.prompt, decision.Prompt)
		})
	}
}

func TestEvaluateAcceptsRFC3339Expiry(t *testing.T) {
	auth := appstate.AuthState{
		IsLoggedIn:   true,
		IsSubscribed: true,
		ExpiryDate:   "2024-06-01T18:00:00Z",
	}
	require.True(t, Evaluate(auth, checkTime).Allowed)

	auth.ExpiryDate = "2024-06-01T06:00:00Z"
	require.Equal(t, SubscribedExpired, Evaluate(auth, checkTime).State)
}

func TestRecomputeExpiry(t *testing.T) {
	auth := appstate.AuthState{
		IsLoggedIn:   true,
		IsSubscribed: true,
		ExpiryDate:   "2020-01-01",
	}
	RecomputeExpiry(&auth, checkTime)
	require.True(t, auth.IsSubscriptionExpired)

	auth.ExpiryDate = "2030-01-01"
	RecomputeExpiry(&auth, checkTime)
	require.False(t, auth.IsSubscriptionExpired)
}

func TestRecomputeExpiryNeverSetWhileUnsubscribed(t *testing.T) {
	auth := appstate.AuthState{
		IsLoggedIn:            true,
		IsSubscribed:          false,
		ExpiryDate:            "2020-01-01",
		IsSubscriptionExpired: true,
	}
	RecomputeExpiry(&auth, checkTime)
	require.False(t, auth.IsSubscriptionExpired)
}
