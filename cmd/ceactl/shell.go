package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Phoenix5595/cea-automation-core/internal/config"
	"github.com/Phoenix5595/cea-automation-core/internal/hardware"
	"github.com/Phoenix5595/cea-automation-core/internal/operator"
	"github.com/Phoenix5595/cea-automation-core/internal/tsdb"
	"github.com/Phoenix5595/cea-automation-core/pkg/coreerr"
	"github.com/Phoenix5595/cea-automation-core/pkg/failsafe"
	"github.com/Phoenix5595/cea-automation-core/pkg/model"
	"github.com/Phoenix5595/cea-automation-core/pkg/pid"
	"github.com/Phoenix5595/cea-automation-core/pkg/relay"
	"github.com/Phoenix5595/cea-automation-core/pkg/zone"
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Start the interactive operator shell",
	RunE:  runShell,
}

func runShell(cmd *cobra.Command, args []string) error {
	log := zerolog.New(os.Stdout).With().Timestamp().Str("service", "ceactl").Logger()

	raw, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	snap, err := config.Resolve(raw)
	if err != nil {
		return fmt.Errorf("resolve config: %w", err)
	}
	configStore := config.NewStore(snap)

	db, err := tsdb.Open(snap.DatabasePath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	zones := zone.NewManager()
	for _, z := range snap.Zones {
		_ = zones.Register(z)
	}
	failsafeMgr := failsafe.NewManager(zones, failsafe.DefaultConfig())

	// ceactl never drives real hardware directly; it edits persisted state
	// (setpoints, schedules, rules, PID gains, alarm acks) that the running
	// ceacore daemon picks up through its own DB-backed stores, and offers
	// a read-only/simulated view of device state for inspection.
	hw := hardware.NewSim()
	relayMgr := relay.NewManager(hw, failsafeMgr, snap.Devices, log)
	startupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = relayMgr.Startup(startupCtx, db, model.StartupRestoreLast, time.Now())
	cancel()
	if err != nil {
		return fmt.Errorf("load device state: %w", err)
	}

	pidBank := pid.NewBank(snap.PIDRateLimit)
	api := operator.New(configStore, relayMgr, zones, failsafeMgr, pidBank, db, log)

	rl, err := readline.New("ceactl> ")
	if err != nil {
		return fmt.Errorf("readline: %w", err)
	}
	defer rl.Close()

	printHelp()
	for {
		line, err := rl.Readline()
		if err != nil { // io.EOF on Ctrl-D, readline.ErrInterrupt on Ctrl-C
			if err == readline.ErrInterrupt {
				continue
			}
			if err == io.EOF {
				return nil
			}
			return err
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		if err := dispatch(context.Background(), api, fields); err != nil {
			fmt.Println("error:", formatErr(err))
		}
	}
}

func printHelp() {
	fmt.Println(`ceactl operator shell. Commands:
  list
  get_device_state <zone/cluster/device>
  apply_manual <zone/cluster/device> <on|off> [reason]
  set_device_mode <zone/cluster/device> <manual|auto|scheduled>
  upsert_setpoint <zone/cluster> <phase|-> <heating_c|-> <cooling_c|-> <co2_ppm|-> <vpd_kpa|-> <ramp_in_min>
  upsert_schedule <zone/cluster/device> <name> <day|-> <start_hhmm> <end_hhmm> <enabled>
  upsert_rule <zone/cluster> <name> <enabled> <sensor> <op> <threshold> <action_device> <action_state> <priority>
  set_pid_params <device_type> <kp> <ki> <kd>
  get_failsafe <zone/cluster>
  clear_failsafe <zone/cluster>
  ack_alarm <zone/cluster> <alarm_id> <operator_name>
  help
  quit`)
}

func formatErr(err error) string {
	var ve *coreerr.ValidationError
	if errors.As(err, &ve) {
		return fmt.Sprintf("validation_failed: %s", ve.Error())
	}
	return err.Error()
}

func dispatch(ctx context.Context, api *operator.API, fields []string) error {
	switch fields[0] {
	case "help":
		printHelp()
		return nil
	case "quit", "exit":
		os.Exit(0)
		return nil
	case "list":
		for _, st := range api.ListDeviceStates() {
			fmt.Printf("%-40s state=%v mode=%s reason=%s seq=%d\n", st.Key.String(), st.State, st.Mode, st.LastReason, st.Seq)
		}
		return nil
	case "get_device_state":
		if len(fields) != 2 {
			return fmt.Errorf("usage: get_device_state <zone/cluster/device>")
		}
		key, err := parseDeviceKey(fields[1])
		if err != nil {
			return err
		}
		st, err := api.GetDeviceState(key)
		if err != nil {
			return err
		}
		fmt.Printf("%+v\n", st)
		return nil
	case "apply_manual":
		if len(fields) < 3 {
			return fmt.Errorf("usage: apply_manual <key> <on|off> [reason]")
		}
		key, err := parseDeviceKey(fields[1])
		if err != nil {
			return err
		}
		state, err := parseOnOff(fields[2])
		if err != nil {
			return err
		}
		reason := ""
		if len(fields) > 3 {
			reason = strings.Join(fields[3:], " ")
		}
		st, err := api.ApplyManual(ctx, key, state, reason, time.Now())
		if err != nil {
			return err
		}
		fmt.Printf("applied: %+v\n", st)
		return nil
	case "set_device_mode":
		if len(fields) != 3 {
			return fmt.Errorf("usage: set_device_mode <key> <manual|auto|scheduled>")
		}
		key, err := parseDeviceKey(fields[1])
		if err != nil {
			return err
		}
		return api.SetDeviceMode(key, model.Mode(fields[2]))
	case "upsert_setpoint":
		return doUpsertSetpoint(ctx, api, fields[1:])
	case "upsert_schedule":
		return doUpsertSchedule(ctx, api, fields[1:])
	case "upsert_rule":
		return doUpsertRule(ctx, api, fields[1:])
	case "set_pid_params":
		return doSetPIDParams(ctx, api, fields[1:])
	case "get_failsafe":
		if len(fields) != 2 {
			return fmt.Errorf("usage: get_failsafe <zone>")
		}
		z, err := parseZoneKey(fields[1])
		if err != nil {
			return err
		}
		fmt.Println(api.GetFailsafe(z))
		return nil
	case "clear_failsafe":
		if len(fields) != 2 {
			return fmt.Errorf("usage: clear_failsafe <zone>")
		}
		z, err := parseZoneKey(fields[1])
		if err != nil {
			return err
		}
		return api.ClearFailsafe(z, time.Now())
	case "ack_alarm":
		if len(fields) != 4 {
			return fmt.Errorf("usage: ack_alarm <zone> <alarm_id> <operator_name>")
		}
		z, err := parseZoneKey(fields[1])
		if err != nil {
			return err
		}
		return api.AckAlarm(ctx, z, fields[2], fields[3], time.Now())
	default:
		return fmt.Errorf("unknown command %q, try 'help'", fields[0])
	}
}

func parseZoneKey(s string) (model.ZoneKey, error) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 {
		return model.ZoneKey{}, fmt.Errorf("zone must be location/cluster, got %q", s)
	}
	return model.ZoneKey{Location: parts[0], Cluster: parts[1]}, nil
}

func parseDeviceKey(s string) (model.DeviceKey, error) {
	parts := strings.SplitN(s, "/", 3)
	if len(parts) != 3 {
		return model.DeviceKey{}, fmt.Errorf("device key must be location/cluster/device, got %q", s)
	}
	return model.DeviceKey{Zone: model.ZoneKey{Location: parts[0], Cluster: parts[1]}, Name: parts[2]}, nil
}

func parseOnOff(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	default:
		return false, fmt.Errorf("expected on|off, got %q", s)
	}
}

func optionalFloat(s string) (*float64, error) {
	if s == "-" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func doUpsertSetpoint(ctx context.Context, api *operator.API, args []string) error {
	if len(args) != 7 {
		return fmt.Errorf("usage: upsert_setpoint <zone> <phase|-> <heating|-> <cooling|-> <co2|-> <vpd|-> <ramp_in_min>")
	}
	z, err := parseZoneKey(args[0])
	if err != nil {
		return err
	}
	var phase *model.ClimatePhase
	if args[1] != "-" {
		p := model.ClimatePhase(args[1])
		phase = &p
	}
	heating, err := optionalFloat(args[2])
	if err != nil {
		return err
	}
	cooling, err := optionalFloat(args[3])
	if err != nil {
		return err
	}
	co2, err := optionalFloat(args[4])
	if err != nil {
		return err
	}
	vpd, err := optionalFloat(args[5])
	if err != nil {
		return err
	}
	rampMin, err := strconv.ParseFloat(args[6], 64)
	if err != nil {
		return err
	}
	return api.UpsertSetpoint(ctx, model.Setpoint{
		Zone: z, Phase: phase,
		HeatingSetpoint: heating, CoolingSetpoint: cooling, CO2: co2, VPD: vpd,
		RampInDuration: time.Duration(rampMin * float64(time.Minute)),
	})
}

func parseHHMM(s string) (time.Duration, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("expected HH:MM, got %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, err
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, err
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute, nil
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "true", "1", "yes", "on":
		return true, nil
	case "false", "0", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("expected true|false, got %q", s)
	}
}

func doUpsertSchedule(ctx context.Context, api *operator.API, args []string) error {
	if len(args) != 6 {
		return fmt.Errorf("usage: upsert_schedule <device_key> <name> <day|-> <start_hhmm> <end_hhmm> <enabled>")
	}
	key, err := parseDeviceKey(args[0])
	if err != nil {
		return err
	}
	var day *model.DayOfWeek
	if args[2] != "-" {
		n, err := strconv.Atoi(args[2])
		if err != nil {
			return err
		}
		wd := model.DayOfWeek(n)
		day = &wd
	}
	start, err := parseHHMM(args[3])
	if err != nil {
		return err
	}
	end, err := parseHHMM(args[4])
	if err != nil {
		return err
	}
	enabled, err := parseBool(args[5])
	if err != nil {
		return err
	}
	id, err := api.UpsertSchedule(ctx, model.Schedule{
		Name: args[1], Device: key, DayOfWeek: day,
		StartTime: start, EndTime: end, Enabled: enabled,
	})
	if err != nil {
		return err
	}
	fmt.Println("schedule id:", id)
	return nil
}

func doUpsertRule(ctx context.Context, api *operator.API, args []string) error {
	if len(args) != 9 {
		return fmt.Errorf("usage: upsert_rule <zone> <name> <enabled> <sensor> <op> <threshold> <action_device> <action_state> <priority>")
	}
	z, err := parseZoneKey(args[0])
	if err != nil {
		return err
	}
	enabled, err := parseBool(args[2])
	if err != nil {
		return err
	}
	threshold, err := strconv.ParseFloat(args[5], 64)
	if err != nil {
		return err
	}
	actionState, err := parseOnOff(args[7])
	if err != nil {
		return err
	}
	priority, err := strconv.Atoi(args[8])
	if err != nil {
		return err
	}
	id, err := api.UpsertRule(ctx, model.Rule{
		Name: args[1], Enabled: enabled, Zone: z,
		ConditionSensor: args[3], ConditionOperator: model.CompareOperator(args[4]), ConditionValue: threshold,
		ActionDevice: args[6], ActionState: actionState, Priority: priority,
	})
	if err != nil {
		return err
	}
	fmt.Println("rule id:", id)
	return nil
}

func doSetPIDParams(ctx context.Context, api *operator.API, args []string) error {
	if len(args) != 4 {
		return fmt.Errorf("usage: set_pid_params <device_type> <kp> <ki> <kd>")
	}
	kp, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return err
	}
	ki, err := strconv.ParseFloat(args[2], 64)
	if err != nil {
		return err
	}
	kd, err := strconv.ParseFloat(args[3], 64)
	if err != nil {
		return err
	}
	return api.SetPIDParams(ctx, model.PIDParameters{
		DeviceType: model.DeviceType(args[0]),
		Kp:         kp, Ki: ki, Kd: kd,
	}, time.Now())
}
