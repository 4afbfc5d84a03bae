package nodestate

import (
	"context"

	"github.com/payperplay/hosting/internal/model"
)

type deprovisioned struct{}

func (deprovisioned) Kind() model.NodeState { return model.StateDeprovisioned }

func (s deprovisioned) Handle(context.Context, *Deps, Event) State { return s }
