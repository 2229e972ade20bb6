package bootstrap

import (
	"nexus_server/adapter/in/worker"
	"nexus_server/config"
	"nexus_server/pkg/logger"
)

// NewScheduler builds the briefing scheduler on its own dependency
// graph, for deployments that split the API and the scheduler.
func NewScheduler(cfg *config.Config) (*worker.BriefingScheduler, func(), error) {
	logLevel := logger.LevelInfo
	if cfg.IsDevelopment() {
		logLevel = logger.LevelDebug
	}
	logger.Init(logger.Config{
		Level:   logLevel,
		Service: "nexus-scheduler",
	})

	deps, cleanup, err := NewDependencies(cfg)
	if err != nil {
		return nil, nil, err
	}

	scheduler := worker.NewBriefingScheduler(
		deps.BriefingService,
		cfg.BriefingMorningHour,
		cfg.BriefingEveningHour,
	)
	return scheduler, cleanup, nil
}
