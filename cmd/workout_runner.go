package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rivo/tview"
	"github.com/spf13/pflag"
	"tinygo.org/x/bluetooth"

	"github.com/lowaak/smart-trainer/workout-runner/internal/bt"
	"github.com/lowaak/smart-trainer/workout-runner/internal/config"
	"github.com/lowaak/smart-trainer/workout-runner/internal/dashboard"
	"github.com/lowaak/smart-trainer/workout-runner/internal/execution"
	"github.com/lowaak/smart-trainer/workout-runner/internal/feedback"
	"github.com/lowaak/smart-trainer/workout-runner/internal/heartrate"
	"github.com/lowaak/smart-trainer/workout-runner/internal/location"
	"github.com/lowaak/smart-trainer/workout-runner/internal/logging"
	"github.com/lowaak/smart-trainer/workout-runner/internal/replay"
	"github.com/lowaak/smart-trainer/workout-runner/internal/store"
	"github.com/lowaak/smart-trainer/workout-runner/internal/workout"
)

const (
	tickInterval      = time.Second
	hrConnectTimeout  = 30 * time.Second
	historyListWindow = 10 * time.Second
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		fmt.Fprintf(os.Stdout, "Usage of workout-runner:\n%s", config.Usage())
		return
	}
	must("load config", err)

	logger, err := logging.New(logging.Options{
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	must("open log file", err)
	defer logger.Close()

	sessions, err := store.OpenSQLite(logger.Logger, cfg.Storage.DB)
	must("open session database", err)
	defer sessions.Close()

	if cfg.History {
		must("list sessions", printHistory(sessions))
		return
	}

	plan, err := workout.Resolve(cfg.Workout)
	must("load workout", err)

	var (
		source  location.PositionSource = location.NoReceiver{}
		sensor  heartrate.Sensor
		binding heartrate.Bindings
		manager *bt.BTManager
	)
	switch {
	case cfg.Replay.File != "":
		track, err := replay.LoadFIT(cfg.Replay.File)
		must("load replay file", err)
		player := replay.NewPlayer(logger.Logger, track, cfg.Replay.Speed)
		logger.Printf("Main: replaying %s (%s at %.1fx)", track.Name, track.Duration(), cfg.Replay.Speed)
		source = player.PositionSource()
		sensor = player.Sensor()
	case cfg.HeartRate.BLE:
		manager = bt.NewBTManager(bluetooth.DefaultAdapter, logger.Logger)
		must("enable BLE stack", manager.Enable())
		sensor = heartrate.NewBLESensor(logger.Logger, manager)
		bindings := heartrate.NewFileBindingStore(logger.Logger, cfg.HeartRate.BindingFile)
		if cfg.HeartRate.Address != "" {
			must("save heart rate binding", bindings.SetAddress(cfg.HeartRate.Address))
		}
		binding = bindings
	}

	var tracker *location.Tracker
	if cfg.EnvironmentValue() == workout.Outdoor {
		tracker = location.NewTracker(logger.Logger, source)
		if !tracker.RequestPermission(context.Background()) {
			logger.Println("Main: location permission denied; distance will not be recorded")
		}
	}
	var monitor *heartrate.Monitor
	if sensor != nil {
		monitor = heartrate.NewMonitor(logger.Logger, sensor, binding)
	}

	persisters := store.Chain{sessions}
	if cfg.Storage.ParquetDir != "" {
		persisters = append(persisters, store.NewParquetExporter(logger.Logger, cfg.Storage.ParquetDir))
	}

	engine := execution.NewEngine(logger.Logger, execution.Config{
		Persister:        persisters,
		Tracker:          tracker,
		HeartRate:        monitor,
		TickInterval:     tickInterval,
		CountdownSeconds: cfg.Countdown,
	})

	dispatcher := feedback.NewDispatcher(logger.Logger, newVoice(logger.Logger, cfg.Feedback), feedback.NewBellHaptic(os.Stdout), feedback.NewLogWakeLock(logger.Logger))
	dispatcher.Attach(engine.Transitions)

	engine.SetToggles(execution.Toggles{
		Voice:          cfg.Feedback.Voice,
		Vibration:      cfg.Feedback.Vibration,
		MusicInterrupt: cfg.Feedback.MusicInterrupt,
	})
	engine.SetPlannedWorkout(plan)
	engine.SetEnvironment(cfg.EnvironmentValue(), cfg.Equipment)

	if monitor != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), hrConnectTimeout)
			defer cancel()
			if !engine.ConnectHeartRate(ctx) {
				logger.Println("Main: heart rate sensor not connected; press H to retry")
			}
		}()
	}

	app := tview.NewApplication()
	view := dashboard.New(logger.Logger, app, engine, nil)
	snapshots := make(chan execution.Snapshot, 16)
	unsubscribe := engine.Snapshots.Listen(snapshots)

	runErr := view.Run(snapshots, logger.Lines())

	unsubscribe()
	dispatcher.Close()
	engine.Shutdown()
	if manager != nil {
		manager.Shutdown()
	}
	must("run dashboard", runErr)
}

func newVoice(logger *log.Logger, cfg config.FeedbackConfig) feedback.Voice {
	if cfg.VoiceCommand != "" {
		return feedback.NewCommandVoice(logger, cfg.VoiceCommand)
	}
	return feedback.NewLogVoice(logger)
}

func printHistory(sessions *store.SQLiteStore) error {
	ctx, cancel := context.WithTimeout(context.Background(), historyListWindow)
	defer cancel()
	summaries, err := sessions.List(ctx)
	if err != nil {
		return err
	}
	if len(summaries) == 0 {
		fmt.Println("No saved sessions.")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tWORKOUT\tWHERE\tELAPSED\tDISTANCE\tSAMPLES\tSESSION")
	for _, s := range summaries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.2f km\t%d\t%s\n",
			s.StartedAt.Local().Format("2006-01-02 15:04"), s.Name, s.Environment,
			(time.Duration(s.TotalElapsedS) * time.Second).String(), s.TotalDistanceM/1000, s.SampleCount, s.SessionID)
	}
	return w.Flush()
}

func must(action string, err error) {
	if err != nil {
		panic("failed to " + action + ": " + err.Error())
	}
}
