package tracking

import (
	"errors"
	"math"
	"math/rand"
	"testing"
)

func newTestController(t *testing.T, cfg Config) *Controller {
	t.Helper()
	c, err := NewController(cfg)
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	return c
}

// ---------- Config ----------

func TestConfig_DefaultIsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("default config should be valid, got: %v", err)
	}
}

func TestConfig_ValidBoundaries(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
	}{
		{"zero_dead_zone", Config{MaxMotorStep: 1, DeadZone: 0, SmoothingFactor: 0.5}},
		{"dead_zone_just_below_half", Config{MaxMotorStep: 10, DeadZone: 0.499, SmoothingFactor: 0.5}},
		{"unfiltered", Config{MaxMotorStep: 10, DeadZone: 0.1, SmoothingFactor: 1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.cfg.Validate(); err != nil {
				t.Errorf("expected valid, got: %v", err)
			}
		})
	}
}

func TestConfig_Invalid(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
	}{
		{"zero_max_step", Config{MaxMotorStep: 0, DeadZone: 0.05, SmoothingFactor: 0.3}},
		{"negative_max_step", Config{MaxMotorStep: -5, DeadZone: 0.05, SmoothingFactor: 0.3}},
		{"negative_dead_zone", Config{MaxMotorStep: 100, DeadZone: -0.01, SmoothingFactor: 0.3}},
		{"dead_zone_half", Config{MaxMotorStep: 100, DeadZone: 0.5, SmoothingFactor: 0.3}},
		{"dead_zone_NaN", Config{MaxMotorStep: 100, DeadZone: math.NaN(), SmoothingFactor: 0.3}},
		{"zero_smoothing", Config{MaxMotorStep: 100, DeadZone: 0.05, SmoothingFactor: 0}},
		{"smoothing_above_one", Config{MaxMotorStep: 100, DeadZone: 0.05, SmoothingFactor: 1.01}},
		{"smoothing_NaN", Config{MaxMotorStep: 100, DeadZone: 0.05, SmoothingFactor: math.NaN()}},
		{"smoothing_+Inf", Config{MaxMotorStep: 100, DeadZone: 0.05, SmoothingFactor: math.Inf(1)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewController(tc.cfg)
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("NewController error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

// ---------- Compute ----------

func TestCompute_Scenario(t *testing.T) {
	c := newTestController(t, Config{MaxMotorStep: 100, DeadZone: 0.05, SmoothingFactor: 0.3})

	steps := []struct {
		x, y float64
		want Command
	}{
		{0.5, 0.5, Command{0, 0}},
		{1.0, 0.5, Command{30, 0}},
		{1.0, 0.5, Command{51, 0}},
		{0.52, 0.5, Command{36, 0}}, // 51*0.7 = 35.7
	}
	for i, s := range steps {
		got, err := c.Compute(s.x, s.y)
		if err != nil {
			t.Fatalf("call %d: unexpected error: %v", i, err)
		}
		if got != s.want {
			t.Errorf("call %d: Compute(%v, %v) = %+v, want %+v", i, s.x, s.y, got, s.want)
		}
	}
	if st := c.State(); st.PrevStepX != 36 || st.PrevStepY != 0 {
		t.Errorf("state = %+v, want {36 0}", st)
	}
}

func TestCompute_NegativeDirection(t *testing.T) {
	c := newTestController(t, DefaultConfig())

	got, err := c.Compute(0, 0)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if got != (Command{-30, -30}) {
		t.Errorf("Compute(0, 0) = %+v, want {-30 -30}", got)
	}
}

func TestCompute_RoundHalfToEven(t *testing.T) {
	// 0.25 error * 2 * 1 * 1.0 smoothing = 0.5, which rounds to 0;
	// 0.75 -> 1.5 rounds to 2.
	c := newTestController(t, Config{MaxMotorStep: 1, DeadZone: 0, SmoothingFactor: 1})
	got, err := c.Compute(0.75, 0.25)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if got != (Command{0, 0}) {
		t.Errorf("Compute(0.75, 0.25) = %+v, want {0 0}", got)
	}

	c = newTestController(t, Config{MaxMotorStep: 3, DeadZone: 0, SmoothingFactor: 1})
	got, err = c.Compute(0.75, 0.25)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if got != (Command{2, -2}) {
		t.Errorf("Compute(0.75, 0.25) = %+v, want {2 -2}", got)
	}
}

func TestCompute_DeadZoneIndependentOfValue(t *testing.T) {
	cfg := Config{MaxMotorStep: 100, DeadZone: 0.05, SmoothingFactor: 0.3}
	inside := []float64{0.451, 0.47, 0.5, 0.52, 0.549}

	for _, x := range inside {
		c := newTestController(t, cfg)
		got, err := c.Compute(x, x)
		if err != nil {
			t.Fatalf("Compute(%v): %v", x, err)
		}
		if got != (Command{}) {
			t.Errorf("from zero state, Compute(%v, %v) = %+v, want {0 0}", x, x, got)
		}
	}

	// From a non-zero history the output only depends on that history.
	var first *Command
	for _, x := range inside {
		c := newTestController(t, cfg)
		if _, err := c.Compute(1, 0); err != nil {
			t.Fatal(err)
		}
		got, err := c.Compute(x, x)
		if err != nil {
			t.Fatal(err)
		}
		if first == nil {
			first = &got
			continue
		}
		if got != *first {
			t.Errorf("dead-zoned x=%v gave %+v, want %+v", x, got, *first)
		}
	}
}

func TestCompute_DeadZonedAxisDecaysTowardZero(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
		want int
	}{
		// 1*0.7 rounds back to 1, so the history settles one step off centre.
		{"default_leaves_rounding_residue", DefaultConfig(), 1},
		{"fast_filter_reaches_zero", Config{MaxMotorStep: 100, DeadZone: 0.05, SmoothingFactor: 0.6}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestController(t, tc.cfg)
			if _, err := c.Compute(1, 0.5); err != nil {
				t.Fatal(err)
			}
			prev := c.State().PrevStepX
			for i := 0; i < 30; i++ {
				got, err := c.Compute(0.5, 0.5)
				if err != nil {
					t.Fatal(err)
				}
				if got.StepX > prev {
					t.Fatalf("call %d: step grew from %d to %d inside the dead zone", i, prev, got.StepX)
				}
				prev = got.StepX
			}
			if prev != tc.want {
				t.Errorf("after 30 centred calls step = %d, want %d", prev, tc.want)
			}
		})
	}
}

func TestCompute_BoundedOverRandomSequences(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	configs := []Config{
		DefaultConfig(),
		{MaxMotorStep: 1, DeadZone: 0, SmoothingFactor: 1},
		{MaxMotorStep: 7, DeadZone: 0.2, SmoothingFactor: 0.9},
		{MaxMotorStep: 1000, DeadZone: 0.01, SmoothingFactor: 0.05},
	}
	for _, cfg := range configs {
		c := newTestController(t, cfg)
		for i := 0; i < 2000; i++ {
			x, y := rng.Float64(), rng.Float64()
			if i%17 == 0 {
				x, y = 1, 0
			}
			got, err := c.Compute(x, y)
			if err != nil {
				t.Fatalf("cfg %+v call %d: %v", cfg, i, err)
			}
			if abs(got.StepX) > cfg.MaxMotorStep || abs(got.StepY) > cfg.MaxMotorStep {
				t.Fatalf("cfg %+v call %d: %+v exceeds %d", cfg, i, got, cfg.MaxMotorStep)
			}
		}
	}
}

func TestCompute_ConvergesToMax(t *testing.T) {
	cfg := Config{MaxMotorStep: 100, DeadZone: 0.05, SmoothingFactor: 0.3}
	c := newTestController(t, cfg)

	const eps = 0.02
	bound := int(math.Ceil(math.Log(eps) / math.Log(1-cfg.SmoothingFactor)))
	// one extra step of slack for integer rounding of the history
	tolerance := eps*float64(cfg.MaxMotorStep) + 1

	prev := Command{}
	for i := 1; i <= bound+20; i++ {
		got, err := c.Compute(1, 1)
		if err != nil {
			t.Fatal(err)
		}
		if got.StepX < prev.StepX || got.StepY < prev.StepY {
			t.Fatalf("call %d: %+v decreased from %+v", i, got, prev)
		}
		if i >= bound {
			if d := float64(cfg.MaxMotorStep - got.StepX); d > tolerance {
				t.Errorf("call %d: step x %d is %v away from max, tolerance %v", i, got.StepX, d, tolerance)
			}
		}
		prev = got
	}
}

func TestCompute_UnfilteredIsInstant(t *testing.T) {
	c := newTestController(t, Config{MaxMotorStep: 50, DeadZone: 0, SmoothingFactor: 1})
	if _, err := c.Compute(1, 1); err != nil {
		t.Fatal(err)
	}
	got, err := c.Compute(0, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	if got != (Command{-50, 0}) {
		t.Errorf("Compute(0, 0.5) = %+v, want {-50 0}", got)
	}
}

func TestCompute_InvalidInputRejected(t *testing.T) {
	cases := []struct {
		name string
		x, y float64
		axis Axis
	}{
		{"x_negative", -0.01, 0.5, AxisX},
		{"x_above_one", 1.01, 0.5, AxisX},
		{"y_negative", 0.5, -1, AxisY},
		{"y_above_one", 0.5, 2, AxisY},
		{"x_NaN", math.NaN(), 0.5, AxisX},
		{"y_+Inf", 0.5, math.Inf(1), AxisY},
		{"both_bad_reports_x", -1, -1, AxisX},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestController(t, DefaultConfig())
			if _, err := c.Compute(1, 1); err != nil {
				t.Fatal(err)
			}
			before := c.State()

			_, err := c.Compute(tc.x, tc.y)
			if !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("error = %v, want ErrInvalidInput", err)
			}
			var inErr *InvalidInputError
			if !errors.As(err, &inErr) {
				t.Fatalf("error %T is not *InvalidInputError", err)
			}
			if inErr.Axis != tc.axis {
				t.Errorf("axis = %q, want %q", inErr.Axis, tc.axis)
			}
			if after := c.State(); after != before {
				t.Errorf("state changed on rejected input: %+v -> %+v", before, after)
			}
		})
	}
}

func TestCompute_BoundaryInputsAccepted(t *testing.T) {
	c := newTestController(t, DefaultConfig())
	for _, p := range [][2]float64{{0, 0}, {1, 1}, {0, 1}, {1, 0}} {
		if _, err := c.Compute(p[0], p[1]); err != nil {
			t.Errorf("Compute(%v, %v): %v", p[0], p[1], err)
		}
	}
}

// ---------- Track ----------

func TestTrack_MissHoldsState(t *testing.T) {
	c := newTestController(t, DefaultConfig())
	ref := newTestController(t, DefaultConfig())

	for _, ctrl := range []*Controller{c, ref} {
		if _, _, err := ctrl.Track(Hit(1, 0.5)); err != nil {
			t.Fatal(err)
		}
	}
	before := c.State()

	for i := 0; i < 5; i++ {
		cmd, emitted, err := c.Track(Miss())
		if err != nil {
			t.Fatalf("miss %d: %v", i, err)
		}
		if emitted {
			t.Errorf("miss %d: command %+v emitted, want nothing", i, cmd)
		}
	}
	if after := c.State(); after != before {
		t.Errorf("state after misses = %+v, want %+v", after, before)
	}

	got, emitted, err := c.Track(Hit(1, 0.5))
	if err != nil || !emitted {
		t.Fatalf("Track(hit) = emitted %v, err %v", emitted, err)
	}
	want, _, _ := ref.Track(Hit(1, 0.5))
	if got != want {
		t.Errorf("after misses got %+v, want %+v (as if misses never happened)", got, want)
	}
}

func TestTrack_InvalidHitReturnsError(t *testing.T) {
	c := newTestController(t, DefaultConfig())
	_, emitted, err := c.Track(Hit(3, 0.5))
	if emitted {
		t.Error("invalid hit should not emit a command")
	}
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("error = %v, want ErrInvalidInput", err)
	}
}

// ---------- Determinism / Reset ----------

func TestController_Deterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	seq := make([]Detection, 500)
	for i := range seq {
		if rng.Intn(5) == 0 {
			seq[i] = Miss()
			continue
		}
		seq[i] = Hit(rng.Float64(), rng.Float64())
	}

	a := newTestController(t, DefaultConfig())
	b := newTestController(t, DefaultConfig())
	for i, d := range seq {
		ca, ea, errA := a.Track(d)
		cb, eb, errB := b.Track(d)
		if ca != cb || ea != eb || (errA == nil) != (errB == nil) {
			t.Fatalf("call %d diverged: (%+v,%v,%v) vs (%+v,%v,%v)", i, ca, ea, errA, cb, eb, errB)
		}
	}
}

func TestController_Reset(t *testing.T) {
	c := newTestController(t, DefaultConfig())
	if _, err := c.Compute(1, 0); err != nil {
		t.Fatal(err)
	}
	c.Reset()
	if st := c.State(); st != (State{}) {
		t.Errorf("state after Reset = %+v, want zero", st)
	}
	got, _ := c.Compute(1, 0.5)
	if got != (Command{30, 0}) {
		t.Errorf("first command after Reset = %+v, want {30 0}", got)
	}
}

func TestWithinBound(t *testing.T) {
	cases := []struct {
		step, max int
		want      bool
	}{
		{0, 100, true},
		{100, 100, true},
		{-100, 100, true},
		{101, 100, false},
		{-101, 100, false},
	}
	for _, tc := range cases {
		if got := withinBound(tc.step, tc.max); got != tc.want {
			t.Errorf("withinBound(%d, %d) = %v, want %v", tc.step, tc.max, got, tc.want)
		}
	}
}

func TestInternalConsistencyError_Is(t *testing.T) {
	err := error(&InternalConsistencyError{Axis: AxisY, Step: 120, Max: 100})
	if !errors.Is(err, ErrInternalConsistency) {
		t.Error("InternalConsistencyError should match ErrInternalConsistency")
	}
	if errors.Is(err, ErrInvalidInput) {
		t.Error("InternalConsistencyError should not match ErrInvalidInput")
	}
}

func TestErrorPercent(t *testing.T) {
	ex, ey := ErrorPercent(Position{X: 1, Y: 0.25})
	if ex != 50 || ey != -25 {
		t.Errorf("ErrorPercent = (%v, %v), want (50, -25)", ex, ey)
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
