package catalog

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/openfroyo/blueprint/pkg/engine"
	"github.com/openfroyo/blueprint/pkg/plan"
	"github.com/openfroyo/blueprint/pkg/spec"
	"github.com/openfroyo/blueprint/pkg/telemetry"
)

// Spec creation strategies, reported to the Observer.
const (
	StrategyPlan   = "plan"
	StrategyLegacy = "legacy"
	StrategyNone   = "none"
)

var tracer = otel.Tracer("github.com/openfroyo/blueprint/pkg/catalog")

// CreateSpec materializes item into a spec. Plan-based items are re-parsed
// and handed to the instantiator of their assembly template; items with a
// legacy type use the spec type's factory.
func (s *Store) CreateSpec(ctx context.Context, item Item) (spec.Spec, error) {
	ctx, span := tracer.Start(ctx, "catalog.CreateSpec",
		trace.WithAttributes(
			telemetry.AttrItemID.String(item.ID()),
			telemetry.AttrItemKind.String(string(item.Kind)),
		))
	defer span.End()

	h, ok := s.GetHandle(item.ID())
	if !ok {
		h = newHandle(item, s.factories)
	}

	strategy := StrategyNone
	var (
		result spec.Spec
		err    error
	)
	switch {
	case item.PlanYAML != "":
		strategy = StrategyPlan
		result, err = s.createFromPlan(ctx, h)
	case item.TypeRef != "":
		strategy = StrategyLegacy
		result, err = s.createFromType(h)
	}

	if err == nil && result == nil {
		err = engine.NewIllegalStateError(
			fmt.Sprintf("%s does not know how to create a spec for %s", s.name, item.ID()), nil).
			WithSubject(item.ID())
	}

	if s.opts.Observer != nil {
		s.opts.Observer.SpecCreated(h.SpecType(), strategy, err)
	}
	span.SetAttributes(telemetry.AttrStrategy.String(strategy))
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if setter, ok := result.(interface{ SetCatalogItemID(string) }); ok {
		setter.SetCatalogItemID(item.ID())
	}

	s.logger.Debug().
		Str("item", item.ID()).
		Str("strategy", strategy).
		Str("spec", result.ID()).
		Msg("Created spec")
	return result, nil
}

func (s *Store) createFromPlan(ctx context.Context, h *Handle) (spec.Spec, error) {
	item := h.item

	p, err := s.parser.Parse(ctx, item.PlanYAML)
	if err != nil {
		return nil, fmt.Errorf("failed to parse plan of %s: %w", item.ID(), err)
	}

	at, err := s.platform.RegisterDeploymentPlan(p)
	if err != nil {
		return nil, fmt.Errorf("failed to register plan of %s: %w", item.ID(), err)
	}

	specType := h.SpecType()
	inst, ok := at.Instantiator().(plan.SpecInstantiator)
	if !ok || !inst.Supports(specType) {
		return nil, engine.NewIllegalStateError(
			fmt.Sprintf("unable to create %s spec for %s: incompatible instantiator %s",
				specType, item.ID(), at.Instantiator().Name()), nil).
			WithSubject(item.ID())
	}

	result, err := inst.CreateSpec(ctx, at, specType)
	if err != nil {
		return nil, fmt.Errorf("failed to create spec for %s: %w", item.ID(), err)
	}
	return result, nil
}

func (s *Store) createFromType(h *Handle) (spec.Spec, error) {
	item := h.item

	factory, ok := h.Factory()
	if !ok {
		return nil, engine.NewIllegalStateError(
			fmt.Sprintf("unsupported creation of spec type %s for %s; it must have a factory %s",
				h.SpecType(), item.ID(), spec.FactorySignature), nil).
			WithSubject(item.ID())
	}

	result, err := factory(item.TypeRef)
	if err != nil {
		return nil, fmt.Errorf("failed to create spec for %s: %w", item.ID(), err)
	}
	return result, nil
}
