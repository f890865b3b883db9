package engine

import (
	"testing"

	"github.com/paulmach/orb"
)

func readyAdapter() (*Adapter, *MemoryBackend) {
	b := NewMemoryBackend()
	a := NewAdapter()
	a.Attach(b)
	return a, b
}

func TestAdapterNotReady(t *testing.T) {
	a := NewAdapter()

	// Every operation is a silent no-op before attach.
	a.StartDrawing(TypePolygon, "#ff0000")
	a.SetDrawMode(ModeDelete)
	a.CancelDrawing()
	a.ClearDrawings()
	a.RemoveFeature("x")
	if ids := a.AddFeatures([]Feature{{Type: TypePoint, Geometry: orb.Point{0, 0}}}, ""); ids != nil {
		t.Fatalf("ids = %v, want nil before ready", ids)
	}
	if a.Ready() {
		t.Fatalf("adapter should not be ready")
	}
}

func TestStartDrawing(t *testing.T) {
	a, b := readyAdapter()

	a.StartDrawing(TypeRectangle, "#00ff00")

	if !b.Enabled() {
		t.Fatalf("backend should be enabled")
	}
	if b.Mode() != ModeRectangle {
		t.Fatalf("mode = %q, want rectangle", b.Mode())
	}
	// Color fans out to every draw mode before the switch.
	for _, m := range DrawTypes {
		if got := b.ModeStyles(Mode(m)).Color; got != "#00ff00" {
			t.Fatalf("mode %q color = %q, want #00ff00", m, got)
		}
	}
}

func TestStartDrawingKeepsFeatures(t *testing.T) {
	a, b := readyAdapter()
	a.AddFeatures([]Feature{{Type: TypePoint, Geometry: orb.Point{1, 1}}}, "")

	a.StartDrawing(TypePoint, "")

	if len(b.Snapshot()) != 1 {
		t.Fatalf("existing features must survive StartDrawing")
	}
}

func TestAddFeatures(t *testing.T) {
	a, b := readyAdapter()

	ids := a.AddFeatures([]Feature{
		{Type: TypePoint, Geometry: orb.Point{0, 0}},
		{Type: TypePolygon, Geometry: orb.Polygon{{{0, 0}, {0, 1}, {1, 1}, {0, 0}}}},
	}, "#123456")

	if len(ids) != 2 {
		t.Fatalf("ids = %d, want 2", len(ids))
	}
	if b.Mode() != ModeSelect {
		t.Fatalf("mode = %q, want select after add", b.Mode())
	}

	snapshot := b.Snapshot()
	if len(snapshot) != 2 {
		t.Fatalf("snapshot = %d, want 2", len(snapshot))
	}
	if snapshot[0].ID != ids[0] || snapshot[1].ID != ids[1] {
		t.Fatalf("ids not returned in input order")
	}
	if snapshot[1].Properties["mode"] != string(ModePolygon) {
		t.Fatalf("mode discriminator = %v, want polygon", snapshot[1].Properties["mode"])
	}
}

func TestAddFeaturesRegeneratesIDs(t *testing.T) {
	a, _ := readyAdapter()
	f := Feature{Type: TypePoint, Geometry: orb.Point{2, 2}}

	first := a.AddFeatures([]Feature{f}, "")
	second := a.AddFeatures([]Feature{f}, "")

	if first[0] == second[0] {
		t.Fatalf("expected a fresh ID per add, got %q twice", first[0])
	}
}

func TestDeleteSelection(t *testing.T) {
	a, b := readyAdapter()
	ids := a.AddFeatures([]Feature{
		{Type: TypePoint, Geometry: orb.Point{0, 0}},
		{Type: TypePoint, Geometry: orb.Point{1, 0}},
		{Type: TypePoint, Geometry: orb.Point{2, 0}},
	}, "")
	b.Select(ids[1])

	a.SetDrawMode(ModeDeleteSelection)

	if got := len(b.Snapshot()); got != 2 {
		t.Fatalf("snapshot = %d, want 2", got)
	}
	if b.Mode() != ModeSelect {
		t.Fatalf("mode = %q, want select after delete-selection", b.Mode())
	}
	for _, f := range b.Snapshot() {
		if f.ID == ids[1] {
			t.Fatalf("selected feature should be gone")
		}
	}
}

func TestClearIdempotent(t *testing.T) {
	a, b := readyAdapter()
	a.AddFeatures([]Feature{{Type: TypePoint, Geometry: orb.Point{0, 0}}}, "")

	a.ClearDrawings()
	first := len(b.Snapshot())
	a.ClearDrawings()
	second := len(b.Snapshot())

	if first != 0 || second != 0 {
		t.Fatalf("snapshots = %d, %d, want 0, 0", first, second)
	}
	if b.Mode() != ModeSelect {
		t.Fatalf("mode = %q, want select", b.Mode())
	}
}

func TestRemoveFeature(t *testing.T) {
	t.Run("deselects before removal", func(t *testing.T) {
		a, b := readyAdapter()
		ids := a.AddFeatures([]Feature{
			{Type: TypePoint, Geometry: orb.Point{0, 0}},
			{Type: TypePoint, Geometry: orb.Point{1, 1}},
		}, "")
		b.Select(ids[0])

		a.RemoveFeature(ids[0])

		snapshot := b.Snapshot()
		if len(snapshot) != 1 || snapshot[0].ID != ids[1] {
			t.Fatalf("snapshot = %+v", snapshot)
		}
	})

	t.Run("single remaining feature uses clear", func(t *testing.T) {
		a, b := readyAdapter()
		ids := a.AddFeatures([]Feature{{Type: TypePoint, Geometry: orb.Point{0, 0}}}, "")

		a.RemoveFeature(ids[0])

		if got := len(b.Snapshot()); got != 0 {
			t.Fatalf("snapshot = %d, want 0", got)
		}
	})

	t.Run("unknown id is a no-op", func(t *testing.T) {
		a, b := readyAdapter()
		a.AddFeatures([]Feature{{Type: TypePoint, Geometry: orb.Point{0, 0}}}, "")

		a.RemoveFeature("missing")

		if got := len(b.Snapshot()); got != 1 {
			t.Fatalf("snapshot = %d, want 1", got)
		}
	})
}

func TestUpdateDrawingStyles(t *testing.T) {
	a, b := readyAdapter()
	b.Start()

	a.UpdateDrawingStyles(Styles{Color: "#abcdef", LineWidth: 4, FillPolygons: false})

	// Select mode highlight is included so selected features restyle.
	if got := b.ModeStyles(ModeSelect).Color; got != "#abcdef" {
		t.Fatalf("select color = %q, want #abcdef", got)
	}
	if got := b.ModeStyles(ModeFreehand).LineWidth; got != 4 {
		t.Fatalf("freehand line width = %v, want 4", got)
	}
}

func TestLoader(t *testing.T) {
	t.Run("fetches once and notifies waiters", func(t *testing.T) {
		calls := 0
		l := NewLoader(func() (Constructor, error) {
			calls++
			return func() Backend { return NewMemoryBackend() }, nil
		})

		done := make(chan Constructor, 2)
		l.Load(func(ctor Constructor, err error) {
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			done <- ctor
		})
		l.Load(func(ctor Constructor, err error) { done <- ctor })

		c1, c2 := <-done, <-done
		if c1 == nil || c2 == nil {
			t.Fatalf("waiter missed the constructor")
		}
		if calls != 1 {
			t.Fatalf("factory calls = %d, want 1", calls)
		}
		if l.State() != StateReady {
			t.Fatalf("state = %v, want ready", l.State())
		}
	})

	t.Run("constructor builds distinct instances", func(t *testing.T) {
		l := NewLoader(func() (Constructor, error) {
			return func() Backend { return NewMemoryBackend() }, nil
		})

		done := make(chan Constructor, 1)
		l.Load(func(ctor Constructor, _ error) { done <- ctor })
		ctor := <-done
		if ctor() == ctor() {
			t.Fatalf("constructor returned a shared instance")
		}
	})

	t.Run("failure is terminal", func(t *testing.T) {
		l := NewLoader(func() (Constructor, error) {
			return nil, errFailed
		})

		done := make(chan error, 1)
		l.Load(func(_ Constructor, err error) { done <- err })
		if err := <-done; err == nil {
			t.Fatalf("expected load error")
		}
		if l.State() != StateFailed {
			t.Fatalf("state = %v, want failed", l.State())
		}

		// A late caller sees the failure immediately.
		late := make(chan error, 1)
		l.Load(func(_ Constructor, err error) { late <- err })
		if err := <-late; err == nil {
			t.Fatalf("late caller did not observe the failure")
		}
	})
}

var errFailed = errTest("load failed")

type errTest string

func (e errTest) Error() string { return string(e) }
