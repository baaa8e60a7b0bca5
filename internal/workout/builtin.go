package workout

import "sort"

func paceRange(lower, upper float64) *Range { return &Range{Lower: lower, Upper: upper} }
func hrRange(lower, upper float64) *Range   { return &Range{Lower: lower, Upper: upper} }

func repeats(n int, work, recovery PlannedStep) []PlannedStep {
	steps := make([]PlannedStep, 0, 2*n)
	for i := 0; i < n; i++ {
		steps = append(steps, work)
		if i < n-1 {
			steps = append(steps, recovery)
		}
	}
	return steps
}

func withWarmupCooldown(warmup, cooldown PlannedStep, main ...PlannedStep) []PlannedStep {
	steps := []PlannedStep{warmup}
	steps = append(steps, main...)
	return append(steps, cooldown)
}

var (
	easyWarmup   = PlannedStep{Name: "Warmup", Kind: StepWarmup, DurationS: 600, PaceRange: paceRange(540, 660)}
	easyCooldown = PlannedStep{Name: "Cooldown", Kind: StepCooldown, DurationS: 300, PaceRange: paceRange(570, 720)}
)

// builtins is the catalogue shipped with the binary, keyed by name.
var builtins = map[string]Structure{
	"easy-30": {
		Name:  "easy-30",
		Sport: "run",
		Steps: []PlannedStep{
			{Name: "Easy", Kind: StepWork, DurationS: 1800, PaceRange: paceRange(540, 600), HRRange: hrRange(125, 145)},
		},
	},
	"6x800": {
		Name:  "6x800",
		Sport: "run",
		Steps: withWarmupCooldown(easyWarmup, easyCooldown, repeats(6,
			PlannedStep{Name: "800m", Kind: StepWork, DistanceM: 800, PaceRange: paceRange(390, 420)},
			PlannedStep{Name: "Jog", Kind: StepRecovery, DurationS: 120, PaceRange: paceRange(600, 780)},
		)...),
	},
	"tempo-5k": {
		Name:  "tempo-5k",
		Sport: "run",
		Steps: withWarmupCooldown(easyWarmup, easyCooldown,
			PlannedStep{Name: "Tempo", Kind: StepWork, DistanceM: 5000, PaceRange: paceRange(435, 455), HRRange: hrRange(160, 172)},
		),
	},
	"hill-repeats": {
		Name:  "hill-repeats",
		Sport: "run",
		Steps: withWarmupCooldown(easyWarmup, easyCooldown, repeats(8,
			PlannedStep{Name: "Hill", Kind: StepWork, DurationS: 60, HRRange: hrRange(165, 180)},
			PlannedStep{Name: "Walk down", Kind: StepRest, DurationS: 90},
		)...),
	},
	"treadmill-mile": {
		Name:  "treadmill-mile",
		Sport: "run",
		Steps: []PlannedStep{
			{Name: "Warmup", Kind: StepWarmup, DistanceM: 800, PaceRange: paceRange(560, 620)},
			{Name: "Mile", Kind: StepWork, DistanceM: 1609.34, PaceRange: paceRange(420, 440)},
			{Name: "Cooldown", Kind: StepCooldown, DistanceM: 800, PaceRange: paceRange(600, 660)},
		},
	},
}

// Builtin returns a copy of the named catalogue workout.
func Builtin(name string) (Structure, bool) {
	w, ok := builtins[name]
	if !ok {
		return Structure{}, false
	}
	w.Steps = append([]PlannedStep(nil), w.Steps...)
	return w, true
}

// BuiltinNames lists the catalogue in name order.
func BuiltinNames() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
