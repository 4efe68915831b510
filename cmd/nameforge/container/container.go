package container

import (
	"github.com/convexa/nameforge/cmd/nameforge/service"
	"github.com/convexa/nameforge/common/bootstrap"
	"github.com/convexa/nameforge/common/engine"
	"github.com/convexa/nameforge/common/repository"
	"github.com/convexa/nameforge/common/worker"
)

// Container holds all initialized services and repositories (singleton pattern)
type Container struct {
	// Components
	Components *bootstrap.Components

	// Repositories
	Stores *repository.Stores

	// Engine
	Analyzer *engine.Analyzer
	Detector *engine.Detector
	Executor *engine.Executor
	Retrier  *worker.Retrier

	// Services
	PropagationService *service.PropagationService
	ErrorService       *service.ErrorService
	HistoryService     *service.HistoryService
	RollbackService    *service.RollbackService
}

// NewContainer initializes all services and repositories once
func NewContainer(components *bootstrap.Components) (*Container, error) {
	engineCfg := components.Config.Engine
	workerCfg := components.Config.Worker

	// Initialize repositories
	stores := repository.NewStores(components.DB)

	// Initialize engine components (bottom-up: dependencies first)
	analyzer := engine.NewAnalyzer(stores.Strings, stores.Slots, stores.Templates, engineCfg, components.Logger)
	detector := engine.NewDetector(stores.Strings, stores.Audits, engineCfg, components.Logger)
	executor := engine.NewExecutor(stores, stores.Jobs, stores.Errors, engineCfg, components.Logger)
	retrier := worker.NewRetrier(executor, stores.Jobs, stores.Errors, workerCfg, components.Logger)

	// Initialize services
	propagationService := service.NewPropagationService(
		stores,
		analyzer,
		detector,
		executor,
		components,
	)
	errorService := service.NewErrorService(stores, retrier, components)
	historyService := service.NewHistoryService(stores)
	rollbackService := service.NewRollbackService(stores, stores.Audits, components.Logger)

	return &Container{
		Components:         components,
		Stores:             stores,
		Analyzer:           analyzer,
		Detector:           detector,
		Executor:           executor,
		Retrier:            retrier,
		PropagationService: propagationService,
		ErrorService:       errorService,
		HistoryService:     historyService,
		RollbackService:    rollbackService,
	}, nil
}
