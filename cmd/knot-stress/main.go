package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/oliverbestmann/knot"
	"github.com/pkg/profile"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "", "Optional yaml file describing the scenario.")
	duration := flag.Duration("duration", 0, "The total duration the test should run for.")
	entityCount := flag.Int("entities", 0, "The initial number of entities to create per world.")
	worldCount := flag.Int("worlds", 0, "The number of independent worlds to run in parallel.")
	profileMode := flag.String("profile", "none", "Profile to record: cpu, mem or none.")
	flag.Parse()

	logger := newLogger()
	defer func() { _ = logger.Sync() }()

	scenario := DefaultScenario()
	if *configPath != "" {
		var err error
		scenario, err = LoadScenario(*configPath)
		if err != nil {
			logger.Fatal("Failed to load scenario", zap.Error(err))
		}
	}

	// explicitly set flags override the scenario
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "duration":
			scenario.Duration = *duration
		case "entities":
			scenario.Entities = *entityCount
		case "worlds":
			scenario.Worlds = *worldCount
		}
	})

	if err := scenario.Validate(); err != nil {
		logger.Fatal("Invalid scenario", zap.Error(err))
	}

	switch *profileMode {
	case "cpu":
		defer profile.Start(profile.CPUProfile, profile.ProfilePath("."), profile.NoShutdownHook).Stop()
	case "mem":
		defer profile.Start(profile.MemProfile, profile.ProfilePath("."), profile.NoShutdownHook).Stop()
	case "none":
	default:
		logger.Fatal("Unknown profile mode", zap.String("profile", *profileMode))
	}

	report := &Report{
		RunId:    uuid.NewString(),
		Scenario: scenario,
		Worlds:   make([]WorldResult, scenario.Worlds),
	}

	logger = logger.With(zap.String("run", report.RunId))

	logger.Info("Populating worlds",
		zap.Int("worlds", scenario.Worlds),
		zap.Int("entities", scenario.Entities))

	worlds := make([]*knot.World, scenario.Worlds)
	for idx := range worlds {
		worlds[idx] = newSimulation(scenario, idx)
	}

	runtime.ReadMemStats(&report.MemStatsStart)

	logger.Info("Running simulation", zap.Duration("duration", scenario.Duration))

	ctx, cancel := context.WithTimeout(context.Background(), scenario.Duration)
	defer cancel()

	startTime := time.Now()

	// worlds are single threaded, each one gets its own goroutine
	var group errgroup.Group
	for idx, world := range worlds {
		group.Go(func() error {
			report.Worlds[idx] = runSimulation(ctx, world, idx)

			logger.Info("World finished",
				zap.Int("world", idx),
				zap.Int64("updates", report.Worlds[idx].Updates),
				zap.Duration("avgFrameTime", report.Worlds[idx].FrameTime.Avg))

			return nil
		})
	}

	if err := group.Wait(); err != nil {
		logger.Fatal("Simulation failed", zap.Error(err))
	}

	report.TotalTime = time.Since(startTime)
	runtime.ReadMemStats(&report.MemStatsEnd)

	if err := report.Generate(os.Stdout); err != nil {
		logger.Fatal("Failed to generate report", zap.Error(err))
	}

	logger.Info("Stress test complete", zap.Int64("updates", report.TotalUpdates()))
}

func newLogger() *zap.Logger {
	config := zap.Config{
		Level:             zap.NewAtomicLevelAt(zap.InfoLevel),
		Development:       false,
		Encoding:          "json",
		EncoderConfig:     zap.NewProductionEncoderConfig(),
		OutputPaths:       []string{"stderr"},
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     true,
		DisableStacktrace: true,
	}

	logger, err := config.Build()
	if err != nil {
		panic(err)
	}

	return logger
}
