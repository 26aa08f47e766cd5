package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Phoenix5595/cea-automation-core/internal/config"
	"github.com/Phoenix5595/cea-automation-core/internal/control"
	"github.com/Phoenix5595/cea-automation-core/internal/hardware"
	"github.com/Phoenix5595/cea-automation-core/internal/persistence"
	"github.com/Phoenix5595/cea-automation-core/internal/sensorcache"
	"github.com/Phoenix5595/cea-automation-core/internal/statebus"
	"github.com/Phoenix5595/cea-automation-core/internal/telemetry"
	"github.com/Phoenix5595/cea-automation-core/internal/tsdb"
	"github.com/Phoenix5595/cea-automation-core/pkg/coreerr"
	"github.com/Phoenix5595/cea-automation-core/pkg/failsafe"
	"github.com/Phoenix5595/cea-automation-core/pkg/interlock"
	"github.com/Phoenix5595/cea-automation-core/pkg/model"
	"github.com/Phoenix5595/cea-automation-core/pkg/pid"
	"github.com/Phoenix5595/cea-automation-core/pkg/relay"
	"github.com/Phoenix5595/cea-automation-core/pkg/zone"
)

// Exit code classes (spec §6 "Exit codes / process lifecycle"): a failure
// in any startup prerequisite returns a non-zero exit code in a specific
// class so an operator or supervisor can distinguish causes without
// parsing log text.
const (
	exitConfig   = 10
	exitDB       = 11
	exitBus      = 12
	exitHardware = 13
)

var (
	metricsAddr      string
	startupPolicyStr string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the control core daemon",
	RunE:  runDaemon,
}

func init() {
	runCmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "address to serve /metrics on")
	runCmd.Flags().StringVar(&startupPolicyStr, "startup-policy", "", "device startup policy for every device (safe_start|restore_last; default restore_last)")
}

var validateConfigCmd = &cobra.Command{
	Use:   "validate-config",
	Short: "Load and validate the configuration file, then exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := loadSnapshot(configPath); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(exitConfig)
		}
		fmt.Println("configuration is valid")
		return nil
	},
}

func loadSnapshot(path string) (*config.Snapshot, error) {
	raw, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return config.Resolve(raw)
}

func newLogger() zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	return zerolog.New(os.Stdout).With().Timestamp().Str("service", "ceacore").Logger()
}

func runDaemon(cmd *cobra.Command, args []string) error {
	log := newLogger()

	snap, err := loadSnapshot(configPath)
	if err != nil {
		log.Error().Err(err).Msg("config invalid")
		os.Exit(exitConfig)
	}
	log.Info().Int("devices", len(snap.Devices)).Int("zones", len(snap.Zones)).Msg("configuration loaded")

	db, err := tsdb.Open(snap.DatabasePath)
	if err != nil {
		log.Error().Err(err).Msg("database unreachable")
		os.Exit(exitDB)
	}
	defer db.Close()

	var bus statebus.Bus
	redisBus, err := statebus.NewRedisBus(statebus.RedisConfig{
		Addr:     snap.StateBusAddr,
		Password: snap.StateBusPassword,
		DB:       snap.StateBusDB,
	}, log)
	degraded := false
	if err != nil {
		log.Warn().Err(err).Msg("state bus unreachable at startup, running degraded (sensors fall back to last-good/DB)")
		degraded = true
	} else {
		bus = redisBus
		defer redisBus.Close()
	}
	if degraded {
		// spec §6: "state bus reachable or declared degraded" — a missing
		// bus does not block startup, but nothing can be reached live
		// until it recovers, so every sensor read falls through to DB.
		bus = noopBus{}
	}

	var hw hardware.Adapter
	if snap.Simulation {
		hw = hardware.NewSim()
	} else {
		boards := make([]hardware.BoardAddr, 0, len(snap.Boards))
		for _, b := range snap.Boards {
			boards = append(boards, hardware.BoardAddr{Name: b.Name, RelayAddr: b.RelayAddr, DACAddr: b.DACAddr})
		}
		hw = hardware.NewPeriph(snap.I2CBus, boards)
	}
	hw = hardware.NewRetrying(hw, log)

	configStore := config.NewStore(snap)

	zones := zone.NewManager()
	for _, z := range snap.Zones {
		if err := zones.Register(z); err != nil && !errors.Is(err, zone.ErrZoneExists) {
			log.Error().Err(err).Str("zone", z.String()).Msg("zone registration failed")
		}
	}

	reg := prometheus.NewRegistry()
	metrics := telemetry.New(reg)

	failsafeMgr := failsafe.NewManager(zones, failsafe.Config{
		MissingWarn:     failsafe.DefaultMissingWarn,
		MissingCritical: snap.MissingAlarmPeriod,
		SensorLossAfter: failsafe.DefaultSensorLossAfter,
		ClearHold:       snap.FailsafeClearHold,
	})
	failsafeMgr.OnAlarm(func(a model.Alarm, raised bool) {
		if raised {
			metrics.AlarmsRaised.WithLabelValues(a.Zone.String(), string(a.Class), string(a.Severity)).Inc()
			log.Warn().Str("zone", a.Zone.String()).Str("class", string(a.Class)).Str("id", a.ID).Msg("alarm raised")
			_ = db.InsertAlarm(context.Background(), a)
		} else {
			log.Info().Str("zone", a.Zone.String()).Str("class", string(a.Class)).Str("id", a.ID).Msg("alarm cleared")
			_ = db.MarkAlarmCleared(context.Background(), a.ID, time.Now().UnixMilli())
		}
	})

	sensors := sensorcache.New(bus, db, failsafeMgr, sensorcache.Config{
		FreshnessWindow:    snap.FreshnessWindow,
		LastGoodHoldPeriod: snap.LastGoodHoldPeriod,
		MaxDBLookback:      snap.MaxDBLookback,
	})

	relayMgr := relay.NewManager(hw, failsafeMgr, snap.Devices, log)
	relayMgr.OnTransition(func(key model.DeviceKey, st model.DeviceState) {
		writeCtx, writeCancel := context.WithTimeout(context.Background(), time.Second)
		defer writeCancel()
		if err := db.UpsertDeviceState(writeCtx, st); err != nil {
			log.Warn().Err(err).Str("device", key.String()).Msg("device state persist failed")
		}
		metrics.DutyCycle.WithLabelValues(key.Zone.String(), key.Name).Set(derefOr(st.DutyCyclePct, 0))
	})
	policy := model.StartupRestoreLast
	if startupPolicyStr != "" {
		policy = model.StartupPolicy(startupPolicyStr)
	}

	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = relayMgr.Startup(startupCtx, db, policy, time.Now())
	startupCancel()
	if err != nil {
		log.Error().Err(err).Msg("hardware startup failed")
		os.Exit(exitHardware)
	}

	pidBank := pid.NewBank(snap.PIDRateLimit)
	seedPIDBank(context.Background(), pidBank, db, snap, log)

	interlockMgr := interlock.NewManagerWithCap(failsafeMgr, snap.InterlockMaxPasses)

	writer := persistence.NewWriter(db, failsafeMgr, persistence.DefaultQueueCapacity, persistence.DefaultWorkers)
	writer.OnSnapshot(func(s persistence.AutomationSnapshot) {
		if s.PIDOutput != nil {
			metrics.PIDOutput.WithLabelValues(s.Device.Zone.String(), s.Device.Name).Set(*s.PIDOutput)
		}
	})

	ruleScheduleStore := control.NewRuleScheduleStore(db, db, log)
	loadCtx, loadCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := ruleScheduleStore.Load(loadCtx); err != nil {
		log.Warn().Err(err).Msg("initial rule/schedule load failed, starting with an empty set")
	}
	loadCancel()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go ruleScheduleStore.Run(ctx, control.DefaultRefreshInterval)

	engine := control.New(configStore, sensors, ruleScheduleStore, pidBank, interlockMgr, failsafeMgr, relayMgr, writer, snap.Devices, log)

	mux := http.NewServeMux()
	mux.Handle("/metrics", telemetry.Handler(reg))
	metricsSrv := &http.Server{Addr: metricsAddr, Handler: mux}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()

	log.Info().Str("update_interval", snap.UpdateInterval.String()).Msg("control core started")
	runTickLoop(ctx, engine, metrics, log, snap.UpdateInterval)

	log.Info().Msg("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	_ = metricsSrv.Shutdown(shutdownCtx)
	shutdownCancel()
	writer.Flush()
	if err := hw.Close(); err != nil {
		log.Warn().Err(err).Msg("hardware close failed")
	}
	return nil
}

func derefOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

// seedPIDBank loads each device type's persisted gains from the DB, or
// falls back to the midpoint of its configured limit range so a freshly
// provisioned device type starts with a sane, in-range controller rather
// than all-zero gains (spec §4.3).
func seedPIDBank(ctx context.Context, bank *pid.Bank, db *tsdb.DB, snap *config.Snapshot, log zerolog.Logger) {
	now := time.Now()
	for dt, lim := range snap.PIDLimits {
		if p, ok, err := db.LoadPIDParams(ctx, dt); err == nil && ok {
			bank.SeedDefaults(dt, p, now)
			continue
		} else if err != nil {
			log.Warn().Err(err).Str("device_type", string(dt)).Msg("pid params load failed, using limit midpoint")
		}
		bank.SeedDefaults(dt, model.PIDParameters{
			DeviceType: dt,
			Kp:         (lim.KpMin + lim.KpMax) / 2,
			Ki:         (lim.KiMin + lim.KiMax) / 2,
			Kd:         (lim.KdMin + lim.KdMax) / 2,
			UpdatedAt:  now,
			Source:     "default",
		}, now)
	}
}

// runTickLoop drives the control engine on a fixed period (spec §5). A
// tick that overruns the period does not queue a second tick behind it —
// the next tick fires at the next period boundary and the overrun is
// logged, never compounding a backlog of stale ticks.
func runTickLoop(ctx context.Context, engine *control.Engine, metrics *telemetry.Metrics, log zerolog.Logger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastErrors uint64
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			start := time.Now()
			engine.Tick(ctx, now)
			elapsed := time.Since(start)
			metrics.TickDuration.Observe(elapsed.Seconds())

			total := engine.TickErrors()
			if delta := total - lastErrors; delta > 0 {
				metrics.TickErrors.Add(float64(delta))
			}
			lastErrors = total

			if elapsed > interval {
				log.Warn().Dur("elapsed", elapsed).Dur("interval", interval).Msg("control tick overran its period")
				// Drop the tick the ticker buffered during the overrun.
				select {
				case <-ticker.C:
				default:
				}
			}
		}
	}
}

// noopBus satisfies sensorcache.Bus and statebus.Bus when the state bus is
// unreachable at startup (spec §6 "declared degraded"): every live/last-
// good read misses, so the sensor cache falls straight to its DB tier.
type noopBus struct{}

func (noopBus) SetSensor(ctx context.Context, zone model.ZoneKey, name string, value float64, ts time.Time) error {
	return coreerr.BusUnreachable
}

func (noopBus) GetLiveSensor(ctx context.Context, zone model.ZoneKey, name string) (float64, time.Time, bool, error) {
	return 0, time.Time{}, false, nil
}

func (noopBus) GetLastGoodSensor(ctx context.Context, zone model.ZoneKey, name string) (float64, time.Time, bool, error) {
	return 0, time.Time{}, false, nil
}

func (noopBus) SetPIDParams(ctx context.Context, dt model.DeviceType, p model.PIDParameters) error {
	return coreerr.BusUnreachable
}

func (noopBus) GetPIDParams(ctx context.Context, dt model.DeviceType) (model.PIDParameters, bool, error) {
	return model.PIDParameters{}, false, nil
}

func (noopBus) SetSetpoint(ctx context.Context, zone model.ZoneKey, phase model.ClimatePhase, sp model.Setpoint) error {
	return coreerr.BusUnreachable
}

func (noopBus) GetSetpoint(ctx context.Context, zone model.ZoneKey, phase model.ClimatePhase) (model.Setpoint, bool, error) {
	return model.Setpoint{}, false, nil
}

func (noopBus) SetZoneMode(ctx context.Context, zone model.ZoneKey, mode model.ZoneMode) error {
	return coreerr.BusUnreachable
}

func (noopBus) GetZoneMode(ctx context.Context, zone model.ZoneKey) (model.ZoneMode, bool, error) {
	return model.ZoneMode{}, false, nil
}

func (noopBus) Heartbeat(ctx context.Context, component string, ts time.Time) error { return nil }

func (noopBus) AppendEvent(ctx context.Context, fields map[string]string) error { return nil }

func (noopBus) Close() error { return nil }
