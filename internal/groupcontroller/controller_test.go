package groupcontroller

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/payperplay/hosting/internal/cloudprovider"
	"github.com/payperplay/hosting/internal/dnsprovider"
	"github.com/payperplay/hosting/internal/groupstate"
	"github.com/payperplay/hosting/internal/model"
	"github.com/payperplay/hosting/internal/nodestate"
	"github.com/payperplay/hosting/internal/registry"
	"github.com/payperplay/hosting/internal/scaler"
)

func newTestController(now *time.Time) *Controller {
	cloud := cloudprovider.NewMock()
	dns := dnsprovider.NewMock()
	reg := registry.NewMock()

	newScaler := func(group string) groupstate.ScalerFactory {
		return func(cfg *model.GroupConfig) *scaler.Scaler {
			return scaler.New(scaler.Deps{
				Group:    group,
				Cloud:    cloud,
				DNS:      dns,
				Registry: reg,
				Rng:      rand.New(rand.NewSource(1)),
				Now:      func() time.Time { return *now },
				Timeouts: nodestate.Timeouts{
					ProvisioningTimeout: time.Minute,
					DiscoveryTimeout:    time.Minute,
					ExplorationTimeout:  time.Minute,
					DrainingTime:        time.Minute,
				},
				ScaleLockMax: time.Minute,
			}, cfg)
		}
	}

	return New(Deps{
		NewScaler:        newScaler,
		Now:              func() time.Time { return *now },
		DiscoveryTimeout: time.Minute,
	})
}

func TestGroupDiscoveryCreatesGroup(t *testing.T) {
	now := time.Now()
	c := newTestController(&now)
	c.HandleGroupDiscovery(model.NodeGroup{Name: "edge-eu", Config: &model.GroupConfig{MinActiveNodes: 1}})
	require.Contains(t, c.Groups(), "edge-eu")
}

func TestNodeDiscoveryLazilyCreatesGroup(t *testing.T) {
	now := time.Now()
	c := newTestController(&now)
	ctx := context.Background()
	c.HandleNodeDiscovery(ctx, "edge-us", model.NodeDiscoveryData{Hostname: "edge-us-abcdefgh"})
	require.Contains(t, c.Groups(), "edge-us")
}

func TestGroupDiscardedAfterTimeout(t *testing.T) {
	now := time.Now()
	c := newTestController(&now)
	c.HandleGroupDiscovery(model.NodeGroup{Name: "edge-eu"})
	ctx := context.Background()

	now = now.Add(2 * time.Minute)
	for i := 0; i < 3; i++ {
		c.Tick(ctx)
	}
	require.NotContains(t, c.Groups(), "edge-eu")
}

// TestConcurrentCallersAreSerialized exercises the controller from several
// goroutines at once, the way the three pollers and the main ticker do in
// production. Every Handle*/Tick call is a request-response call into the
// controller's own actor, so this must never race on the groups map
// regardless of how many callers overlap.
func TestConcurrentCallersAreSerialized(t *testing.T) {
	now := time.Now()
	c := newTestController(&now)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			group := fmt.Sprintf("edge-%d", i)
			c.HandleGroupDiscovery(model.NodeGroup{Name: group, Config: &model.GroupConfig{MinActiveNodes: 1}})
			c.HandleNodeDiscovery(ctx, group, model.NodeDiscoveryData{Hostname: group + "-abcdefgh"})
			c.Tick(ctx)
		}()
	}
	wg.Wait()

	require.Len(t, c.Groups(), 8)
}
