package registry

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/payperplay/hosting/internal/model"
)

// What UpdateState writes must decode back to the same state and cause on
// the next poll: a draining node rediscovered after a restart keeps its
// reversibility, so an irreversible drain is never resurrected by the
// scale-up reactivation path.
func TestConsulStateTagRoundTrip(t *testing.T) {
	tests := []struct {
		state model.NodeDiscoveryState
		cause model.DrainCause
	}{
		{model.DiscoveryReady, model.CauseScaling},
		{model.DiscoveryActive, model.CauseScaling},
		{model.DiscoveryDraining, model.CauseScaling},
		{model.DiscoveryDraining, model.CauseRollingUpdate},
		{model.DiscoveryDraining, model.CauseTermination},
	}

	for _, tc := range tests {
		tag := consulStateTag(tc.state, tc.cause)
		state, cause := consulStateFromTags([]string{"group:edge-eu", tag})
		require.Equal(t, tc.state, state, tag)
		if tc.state == model.DiscoveryDraining {
			require.Equal(t, tc.cause, cause, tag)
		}
	}
}
