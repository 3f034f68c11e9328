// Package main provides the day-ahead PV and battery scheduler's entry point and CLI interface.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"

	"github.com/oskarsson/pvsched/config"
	"github.com/oskarsson/pvsched/consumption"
	"github.com/oskarsson/pvsched/forecast"
	"github.com/oskarsson/pvsched/inverter"
	"github.com/oskarsson/pvsched/meteo"
	"github.com/oskarsson/pvsched/orchestrator"
	"github.com/oskarsson/pvsched/persistence"
	"github.com/oskarsson/pvsched/pricing"
	"github.com/oskarsson/pvsched/server"
	"github.com/oskarsson/pvsched/sigenergy"
)

func main() {
	var (
		configFile = flag.String("config", "config.json", "Configuration file path")
		info       = flag.Bool("info", false, "Show plant information and exit")
		help       = flag.Bool("help", false, "Show help message")
		serverOnly = flag.Bool("serverOnly", false, "Serve the last computed schedule without running the planning loop")
		once       = flag.Bool("once", false, "Run one planning cycle and exit")
	)
	flag.Parse()

	if *help {
		showHelp()
		return
	}

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		fmt.Println("Error loading configuration:", err)
		os.Exit(1)
	}

	if *info {
		if cfg.PlantModbusAddress == "" {
			fmt.Println("Error: plant_modbus_address not configured")
			os.Exit(1)
		}
		if err := sigenergy.ShowPlantInfo(cfg.PlantModbusAddress); err != nil {
			fmt.Println("Error:", err)
			os.Exit(1)
		}
		return
	}

	logger := log.New(os.Stdout, "[SCHEDULER] ", log.LstdFlags)

	location, err := cfg.TimeLocation()
	if err != nil {
		logger.Fatalf("invalid location: %v", err)
	}

	diagram := consumption.WeeklyDiagram{}
	if cfg.ConsumptionDiagramPath != "" {
		diagram, err = config.LoadConsumptionDiagram(cfg.ConsumptionDiagramPath)
		if err != nil {
			logger.Fatalf("loading consumption diagram: %v", err)
		}
	}

	pricingProvider := pricing.NewProvider(cfg.SecurityToken, cfg.URLFormat, location)
	forecastProvider := forecast.NewProvider(cfg.UserAgent, meteo.Location{Latitude: cfg.Latitude, Longitude: cfg.Longitude})

	var inv *inverter.Client
	if cfg.PlantModbusAddress != "" {
		inv, err = inverter.NewTCPClient(cfg.PlantModbusAddress)
		if err != nil {
			logger.Printf("Warning: could not connect to plant at %s, scheduling will use fallback SoC: %v", cfg.PlantModbusAddress, err)
			inv = nil
		} else {
			defer inv.Close()
		}
	}

	var store *persistence.PostgresStore
	if cfg.PostgresConnString != "" {
		db, err := sql.Open("postgres", cfg.PostgresConnString)
		if err != nil {
			logger.Printf("Warning: could not open Postgres connection, schedules will not be persisted to it: %v", err)
		} else {
			store = persistence.NewPostgresStore(db)
			defer db.Close()
		}
	}

	srv := server.New(cfg.HealthCheckPort)

	notifier := orchestrator.NewNotifier(cfg.SMTP())

	driver, err := orchestrator.New(orchestrator.Config{
		Location:           location,
		CheckInterval:      cfg.CheckInterval,
		PlanningCutoffHour: cfg.PlanningCutoffHour,
		Battery:            cfg.BatteryModel(),
		BatterySOH:         cfg.BatterySOH,
		Panel:              cfg.Panel(),
		Diagram:            diagram,
		Fees:               cfg.Fees(),
		ScheduleDir:        cfg.ScheduleDir,
		FallbackSOC:        cfg.FallbackSOC,
	}, pricingProvider, forecastProvider, inv, store, srv, notifier, logger)
	if err != nil {
		logger.Fatalf("building orchestrator: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if srv != nil {
		if err := srv.Start(); err != nil {
			logger.Printf("Warning: failed to start server: %v", err)
		} else {
			logger.Printf("Server listening on port %d", cfg.HealthCheckPort)
		}
	}

	if *once {
		result, err := driver.RunCycle(ctx)
		if err != nil {
			logger.Fatalf("planning cycle failed: %v", err)
		}
		logger.Printf("Planned %d blocks from %s to %s", len(result.Blocks), result.StartTime, result.EndTime)
		return
	}

	if *serverOnly {
		logger.Printf("Running in server-only mode. Press Ctrl+C to stop...")
	} else {
		go func() {
			if err := driver.Start(ctx); err != nil && err != context.Canceled {
				logger.Printf("Orchestrator stopped: %v", err)
			}
		}()
		logger.Printf("Scheduler started. Press Ctrl+C to stop...")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Printf("Shutdown signal received, stopping...")

	cancel()
	if srv != nil {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), cfg.APITimeout)
		defer stopCancel()
		if err := srv.Stop(stopCtx); err != nil {
			logger.Printf("Error stopping server: %v", err)
		}
	}
	logger.Printf("Stopped.")
}

func showHelp() {
	fmt.Println("pvsched - day-ahead quarter-hourly PV and battery scheduler")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Computes a charge/hold/use schedule for a residential battery against day-ahead")
	fmt.Println("  electricity prices, a weather-driven solar production estimate and a household")
	fmt.Println("  consumption forecast, then serves and optionally persists and acts on it.")
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  pvsched [OPTIONS]")
	fmt.Println()
	fmt.Println("OPTIONS:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  # Basic usage with default settings")
	fmt.Println("  pvsched")
	fmt.Println()
	fmt.Println("  # Custom configuration")
	fmt.Println("  pvsched --config=config.json")
	fmt.Println()
	fmt.Println("  # Show plant/system information")
	fmt.Println("  pvsched -info")
	fmt.Println()
	fmt.Println("  # Run one planning cycle and exit")
	fmt.Println("  pvsched -once")
	fmt.Println()
	fmt.Println("  # Serve the last computed schedule without planning")
	fmt.Println("  pvsched -serverOnly")
	fmt.Println()
	fmt.Println("  # Show this help")
	fmt.Println("  pvsched -help")
}
