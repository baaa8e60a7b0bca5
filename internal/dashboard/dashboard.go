// Package dashboard is the terminal view of a live session.
package dashboard

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/lowaak/smart-trainer/workout-runner/internal/execution"
	"github.com/lowaak/smart-trainer/workout-runner/internal/go_func_utils"
	"github.com/lowaak/smart-trainer/workout-runner/internal/workout"
)

const (
	maxLogLines     = 200
	reconnectWindow = 30 * time.Second
)

// Controller is the part of the engine the dashboard drives.
type Controller interface {
	Snapshot() execution.Snapshot
	BeginCountdown()
	TogglePause()
	SkipStep()
	RestartStep()
	EndWorkout()
	Discard()
	RetryPersistence()
	SetToggles(execution.Toggles)
	ReconnectHeartRate(ctx context.Context) bool
}

type Dashboard struct {
	logger     *log.Logger
	app        *tview.Application
	controller Controller
	onQuit     func()

	root          *tview.Flex
	stepPanel     *tview.TextView
	sessionPanel  *tview.TextView
	sensorsPanel  *tview.TextView
	planList      *tview.List
	logView       *tview.TextView
	tabWidgets    []*tview.Box
	logLineCount  int
	lastStepIndex int

	group        *go_func_utils.Group
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownOnce sync.Once
}

// New builds the widgets. onQuit runs when the athlete presses Esc; it
// defaults to stopping the application.
func New(logger *log.Logger, app *tview.Application, controller Controller, onQuit func()) *Dashboard {
	if logger == nil {
		panic("Dashboard: logger cannot be nil")
	}
	if controller == nil {
		panic("Dashboard: controller cannot be nil")
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dashboard{
		logger:        logger,
		app:           app,
		controller:    controller,
		onQuit:        onQuit,
		lastStepIndex: -1,
		group:         go_func_utils.NewGroup(logger),
		ctx:           ctx,
		cancel:        cancel,
	}
	if d.onQuit == nil {
		d.onQuit = app.Stop
	}
	d.build()
	return d
}

func (d *Dashboard) build() {
	d.stepPanel = tview.NewTextView().SetDynamicColors(true)
	d.stepPanel.SetBorder(true).SetTitle(" Step ")

	d.sessionPanel = tview.NewTextView().SetDynamicColors(true)
	d.sessionPanel.SetBorder(true).SetTitle(" Session ")

	d.sensorsPanel = tview.NewTextView().SetDynamicColors(true)
	d.sensorsPanel.SetBorder(true).SetTitle(" Sensors ")

	d.planList = tview.NewList().ShowSecondaryText(false)
	d.planList.SetBorder(true).SetTitle(" Plan ")

	// Don't hook SetChangedFunc to app.Draw; writes after Stop would hang.
	d.logView = tview.NewTextView().SetDynamicColors(false).SetScrollable(true)
	d.logView.SetBorder(true).SetTitle(" Logs ")

	controls := tview.NewTextView().SetDynamicColors(true).SetTextAlign(tview.AlignCenter)
	controls.SetText(controlsText)

	leftColumn := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(d.stepPanel, 0, 3, false).
		AddItem(d.sessionPanel, 0, 2, false).
		AddItem(d.sensorsPanel, 7, 0, false)

	rightColumn := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(d.planList, 0, 1, true).
		AddItem(d.logView, 0, 1, false)

	body := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(leftColumn, 0, 1, false).
		AddItem(rightColumn, 0, 1, true)

	d.root = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(body, 0, 1, true).
		AddItem(controls, 2, 0, false)

	d.tabWidgets = []*tview.Box{d.planList.Box, d.logView.Box}
	d.app.SetInputCapture(d.HandleKey)
	d.Render(d.controller.Snapshot())
}

// SetPlan fills the plan list.
func (d *Dashboard) SetPlan(w *workout.Structure) {
	d.planList.Clear()
	d.lastStepIndex = -1
	if w == nil {
		return
	}
	for i, s := range w.Steps {
		d.planList.AddItem(stepLine(i, s), "", 0, nil)
	}
}

// Render draws snap. Call it on the UI goroutine.
func (d *Dashboard) Render(snap execution.Snapshot) {
	d.stepPanel.SetText(renderStep(snap))
	d.sessionPanel.SetText(renderSession(snap))
	d.sensorsPanel.SetText(renderSensors(snap))

	if snap.Workout != nil && d.planList.GetItemCount() != len(snap.Workout.Steps) {
		d.SetPlan(snap.Workout)
	}
	if cs := snap.CurrentStep; cs != nil && cs.Index != d.lastStepIndex && cs.Index < d.planList.GetItemCount() {
		d.planList.SetCurrentItem(cs.Index)
		d.lastStepIndex = cs.Index
	}
}

func (d *Dashboard) appendLog(line string) {
	if d.logLineCount >= maxLogLines {
		d.logView.Clear()
		d.logLineCount = 0
	}
	fmt.Fprintln(d.logView, line)
	d.logLineCount++
	d.logView.ScrollToEnd()
}

// HandleKey maps keys to engine commands.
func (d *Dashboard) HandleKey(event *tcell.EventKey) *tcell.EventKey {
	switch event.Key() {
	case tcell.KeyEscape:
		d.logger.Println("Dashboard: quit requested")
		d.onQuit()
		return nil
	case tcell.KeyTab:
		d.cycleFocus()
		return nil
	case tcell.KeyRune:
	default:
		return event
	}

	switch event.Rune() {
	case 's', 'S':
		d.controller.BeginCountdown()
	case 'p', 'P', ' ':
		d.controller.TogglePause()
	case 'n', 'N':
		d.controller.SkipStep()
	case 'r', 'R':
		d.controller.RestartStep()
	case 'e', 'E':
		d.controller.EndWorkout()
	case 'x', 'X':
		d.controller.Discard()
	case 'y', 'Y':
		d.controller.RetryPersistence()
	case 'h', 'H':
		d.reconnectHeartRate()
	case 'v', 'V':
		d.updateToggles(func(t *execution.Toggles) { t.Voice = !t.Voice })
	case 'b', 'B':
		d.updateToggles(func(t *execution.Toggles) { t.Vibration = !t.Vibration })
	case 'm', 'M':
		d.updateToggles(func(t *execution.Toggles) { t.MusicInterrupt = !t.MusicInterrupt })
	default:
		return event
	}
	return nil
}

func (d *Dashboard) cycleFocus() {
	n := len(d.tabWidgets)
	for i, w := range d.tabWidgets {
		if w.HasFocus() {
			d.app.SetFocus(d.tabWidgets[(i+1)%n])
			return
		}
	}
	if n > 0 {
		d.app.SetFocus(d.tabWidgets[0])
	}
}

func (d *Dashboard) updateToggles(change func(*execution.Toggles)) {
	t := d.controller.Snapshot().Toggles
	change(&t)
	d.controller.SetToggles(t)
}

// reconnectHeartRate runs off the UI goroutine; scanning blocks.
func (d *Dashboard) reconnectHeartRate() {
	d.group.Go(func() {
		ctx, cancel := context.WithTimeout(d.ctx, reconnectWindow)
		defer cancel()
		if !d.controller.ReconnectHeartRate(ctx) {
			d.logger.Println("Dashboard: heart rate reconnect failed")
		}
	})
}

// Run shows the dashboard until the application stops. Snapshots and log
// lines are applied on the UI goroutine.
func (d *Dashboard) Run(snapshots <-chan execution.Snapshot, logLines <-chan string) error {
	d.group.Go(func() {
		for {
			select {
			case <-d.ctx.Done():
				return
			case snap, ok := <-snapshots:
				if !ok {
					return
				}
				d.app.QueueUpdateDraw(func() { d.Render(snap) })
			}
		}
	})
	if logLines != nil {
		d.group.Go(func() {
			for {
				select {
				case <-d.ctx.Done():
					return
				case line, ok := <-logLines:
					if !ok {
						return
					}
					d.app.QueueUpdateDraw(func() { d.appendLog(line) })
				}
			}
		})
	}

	d.app.SetRoot(d.root, true).SetFocus(d.planList)
	err := d.app.Run()
	d.Shutdown()
	return err
}

// Shutdown stops the feed goroutines. Safe to call repeatedly.
func (d *Dashboard) Shutdown() {
	d.shutdownOnce.Do(func() {
		d.cancel()
		d.group.Wait()
	})
}
