package branching

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"variantree/internal/config"
	branchingRepo "variantree/internal/domain/repositories/branching"
	branchingSvc "variantree/internal/domain/services/branching"
)

// Services holds all branching services
type Services struct {
	Retry   branchingSvc.RetryService
	Query   branchingSvc.VariantQueryService
	Message branchingSvc.MessageService
}

// SetupServices wires the branching core onto a message store
func SetupServices(
	store branchingRepo.MessageStore,
	limits config.Branching,
	registerer prometheus.Registerer,
	logger *slog.Logger,
) *Services {
	metrics := NewMetrics(registerer)
	resolver := NewRootResolver(store, limits.MaxRootHops)
	sequencer := NewSequencer(store, limits.MaxVariantsPerRoot, limits.InsertAttempts, metrics, logger)

	logger.Info("branching services initialized",
		"max_variants_per_root", limits.MaxVariantsPerRoot,
		"insert_attempts", limits.InsertAttempts,
		"max_root_hops", limits.MaxRootHops,
	)

	return &Services{
		Retry:   NewCoordinator(store, resolver, sequencer, limits, metrics, logger),
		Query:   NewQueryService(store, resolver, logger),
		Message: NewMessageService(store, logger),
	}
}
