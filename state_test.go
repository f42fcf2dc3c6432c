package paywallkit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCloseReasonStateShouldComplete(t *testing.T) {
	cases := []struct {
		reason PaywallCloseReason
		want   bool
	}{
		{CloseReasonSystemLogic, true},
		{CloseReasonWebViewFailedToLoad, true},
		{CloseReasonManualClose, true},
		{CloseReasonForNextPaywall, false},
		{CloseReasonNone, false},
	}
	for _, tc := range cases {
		t.Run(string(tc.reason), func(t *testing.T) {
			assert.Equal(t, tc.want, tc.reason.StateShouldComplete())
		})
	}
}

func TestPaywallStateTerminal(t *testing.T) {
	assert.False(t, PaywallState{Kind: StateRequested}.Terminal())
	assert.False(t, PaywallState{Kind: StatePresented}.Terminal())
	assert.True(t, PaywallState{Kind: StateDismissed}.Terminal())
	assert.True(t, PaywallState{Kind: StateSkipped}.Terminal())
	assert.True(t, PaywallState{Kind: StatePresentationError}.Terminal())
}
