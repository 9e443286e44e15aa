package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"

	"laundry-pay-backend/config"
	"laundry-pay-backend/internal/actuator"
	"laundry-pay-backend/internal/api"
	"laundry-pay-backend/internal/arbiter"
	"laundry-pay-backend/internal/charge"
	"laundry-pay-backend/internal/db"
	"laundry-pay-backend/internal/ha"
	"laundry-pay-backend/internal/keypad"
	"laundry-pay-backend/internal/ledger"
	"laundry-pay-backend/internal/notify"
	"laundry-pay-backend/internal/watch"
)

func main() {
	logger := log.New(os.Stdout, "laundry-pay ", log.LstdFlags)

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded from %s", configPath)

	fleet, err := cfg.Fleet()
	if err != nil {
		logger.Fatalf("invalid machine configuration: %v", err)
	}

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	store := ledger.NewGormStore(gormDB)
	logger.Println("ledger store initialized")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Home Assistant is optional: without it there is no TTS, no remote
	// sensor fallback and no websocket keypad.
	haClient := ha.NewClient(cfg.HomeAssistant.BaseURL, cfg.HomeAssistant.Token,
		time.Duration(cfg.HomeAssistant.TimeoutSeconds*float64(time.Second)))

	var haDriver actuator.Driver
	if haClient.Configured() {
		haDriver = actuator.NewHADriver(haClient, 2)
	}

	var primary actuator.Driver
	switch {
	case cfg.Simulate:
		logger.Println("simulation mode: no physical outputs will be driven")
		primary = actuator.NewSimDriver()
	case cfg.Modbus.Enabled():
		mb := actuator.NewModbusDriver(cfg.Modbus.Host, cfg.Modbus.Port, cfg.Modbus.UnitID,
			cfg.ModbusTimeout(), cfg.Modbus.Retries, cfg.Modbus.CoilBase, cfg.Modbus.InvertDI)
		logger.Printf("modbus driver: %s:%d coil base %d", cfg.Modbus.Host, cfg.Modbus.Port, cfg.Modbus.CoilBase)
		// Machines mapped to a Home Assistant switch still route there.
		primary = &actuator.RouterDriver{Modbus: mb, HA: haDriver}
	case haDriver != nil:
		primary = haDriver
	default:
		logger.Fatalf("no actuation backend configured: set modbus.host, home_assistant, or simulate")
	}

	mode := actuator.ModePulse
	if cfg.Charge.Mode == "hold" {
		mode = actuator.ModeHold
	}

	arb := arbiter.New(primary, haDriver, arbiter.NewSoftTimers(), mode, cfg.Simulate)

	var webpushOptions *webpush.Options
	if cfg.Push.PublicKey != "" && cfg.Push.PrivateKey != "" {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
	} else {
		logger.Println("VAPID keys not configured, web push disabled")
	}

	pool := notify.NewPool(cfg.WorkerPool.Size, gormDB, haClient, notify.TTSSettings{
		Service:     cfg.HomeAssistant.TTSService,
		MediaPlayer: cfg.HomeAssistant.MediaPlayer,
	}, webpushOptions)
	pool.Start(ctx)

	orch := charge.New(fleet, store, arb, primary, pool, charge.Settings{
		Mode:           mode,
		Pulse:          cfg.PulseDuration(),
		ConfirmTimeout: cfg.ConfirmTimeout(),
		ConfirmPoll:    cfg.ConfirmPollInterval(),
		LockTimeout:    cfg.LockTimeout(),
		Simulate:       cfg.Simulate,
	})
	defer orch.Releaser().Stop()

	if cfg.HomeAssistant.KeypadEvents && haClient.Configured() {
		controller := keypad.NewController(orch, store, pool, keypad.Policy{
			CodeLength:        cfg.Security.CodeLength,
			EntryTimeout:      time.Duration(cfg.Security.CodeEntryTimeoutSec) * time.Second,
			MaxFailedAttempts: cfg.Security.MaxFailedAttempts,
			Lockout:           time.Duration(cfg.Security.LockoutSeconds) * time.Second,
			AutoValidate:      !cfg.Security.ConfirmGated,
		})
		eventsURL := cfg.HomeAssistant.EventsURL
		if eventsURL == "" {
			eventsURL = cfg.HomeAssistant.BaseURL
		}
		listener := ha.NewEventListener(eventsURL, cfg.HomeAssistant.Token,
			cfg.HomeAssistant.EventType, func(ev ha.KeypadEvent) {
				sym, ok := mapKeypadEvent(ev)
				if !ok {
					return
				}
				controller.HandleSymbol(ctx, sym)
			})
		go listener.Run(ctx)
		logger.Println("keypad event listener started")
	}

	if cfg.Watcher.Enabled {
		watcher := watch.NewService(orch, pool, cfg.Watcher.Interval())
		go watcher.Run(ctx)
		logger.Println("cycle watcher started")
	}

	router := api.NewRouter(orch, store, webpushOptions, api.RouterOptions{
		RateLimitPerSec: cfg.Server.RateLimitPerSec,
		RateLimitBurst:  cfg.Server.RateLimitBurst,
		CacheTTL:        time.Duration(cfg.Server.CacheTTLSeconds) * time.Second,
	})
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Println("Shutdown signal received, stopping services...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server Shutdown: %v", err)
	}

	logger.Println("Server gracefully stopped")
}

// mapKeypadEvent normalizes whichever key field the event carried.
func mapKeypadEvent(ev ha.KeypadEvent) (keypad.Symbol, bool) {
	if ev.KeyCode != nil {
		if sym, ok := keypad.MapKeyCode(*ev.KeyCode); ok {
			return sym, true
		}
	}
	if sym, ok := keypad.MapKeyName(ev.Key); ok {
		return sym, true
	}
	return keypad.MapKeyName(ev.KeyName)
}
