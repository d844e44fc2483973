package mgmt

import (
	"context"

	"github.com/openfroyo/blueprint/pkg/catalog"
	"github.com/openfroyo/blueprint/pkg/engine"
	"github.com/openfroyo/blueprint/pkg/policy"
	"github.com/openfroyo/blueprint/pkg/telemetry"
)

// admitter runs catalog admission through the policy engine and publishes
// a policy.violation event for every rejected item.
type admitter struct {
	policies *policy.Engine
	events   *telemetry.EventPublisher
}

func (a *admitter) Admit(ctx context.Context, item catalog.Item) error {
	err := a.policies.Admit(ctx, item)
	if err != nil && engine.IsInvalidArgument(err) {
		_ = a.events.PublishPolicyViolation(item.ID(), err.Error())
	}
	return err
}
