package molviz

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func embeddedCatalogue(t *testing.T) func() *Catalogue {
	t.Helper()
	cat, err := LoadCatalogue(EmbeddedPresets(), "")
	if err != nil {
		t.Fatal(err)
	}
	return func() *Catalogue { return cat }
}

func TestController_NotifiesInOrder(t *testing.T) {
	c := NewController(Selection{Source: PresetSource("caffeine"), Style: StyleSpheres}, embeddedCatalogue(t))

	var calls []string
	c.Subscribe(func(s Selection) { calls = append(calls, "a:"+s.Style.String()) })
	unsub := c.Subscribe(func(s Selection) { calls = append(calls, "b:"+s.Style.String()) })

	if err := c.SetStyle(StyleDepth); err != nil {
		t.Fatal(err)
	}
	unsub()
	if err := c.SetStyle(StyleNormal); err != nil {
		t.Fatal(err)
	}

	want := []string{"a:depth", "b:depth", "a:normal"}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("call %d = %q, want %q", i, calls[i], want[i])
		}
	}
}

func TestController_SetPreset(t *testing.T) {
	c := NewController(Selection{Source: PresetSource("caffeine"), Style: StylePoints}, embeddedCatalogue(t))

	notified := 0
	c.Subscribe(func(Selection) { notified++ })

	if err := c.SetPreset("WATER"); err != nil {
		t.Fatalf("SetPreset: %v", err)
	}
	sel := c.Selection()
	if sel.Source.Preset != "WATER" || sel.Style != StylePoints {
		t.Errorf("unexpected selection %+v", sel)
	}

	if err := c.SetPreset("benzene"); !errors.Is(err, ErrUnknownPreset) {
		t.Errorf("expected ErrUnknownPreset, got %v", err)
	}
	if notified != 1 {
		t.Errorf("expected 1 notification, got %d", notified)
	}
}

func TestController_SubscriberCanReadSelection(t *testing.T) {
	c := NewController(Selection{Source: PresetSource("caffeine")}, nil)

	var seen Selection
	c.Subscribe(func(Selection) { seen = c.Selection() })
	c.SetText("up.pdb", "text")

	if seen.Source.Kind != SourceText || seen.Source.FileName != "up.pdb" {
		t.Errorf("subscriber saw %+v", seen)
	}
}

func TestController_Set(t *testing.T) {
	c := NewController(Selection{Source: PresetSource("caffeine")}, embeddedCatalogue(t))

	if err := c.Set(Selection{Source: PresetSource("water"), Style: RenderStyle(12)}); !errors.Is(err, ErrUnknownStyle) {
		t.Errorf("expected ErrUnknownStyle, got %v", err)
	}
	if err := c.Set(Selection{Source: PresetSource("nope"), Style: StyleDepth}); !errors.Is(err, ErrUnknownPreset) {
		t.Errorf("expected ErrUnknownPreset, got %v", err)
	}
	if err := c.Set(Selection{Source: TextSource("x.pdb", "t"), Style: StyleDepth}); err != nil {
		t.Errorf("unexpected error %v", err)
	}
	if err := c.SetStyle(RenderStyle(-3)); !errors.Is(err, ErrUnknownStyle) {
		t.Errorf("expected ErrUnknownStyle, got %v", err)
	}
	if got := c.Selection(); got.Style != StyleDepth || got.Source.Kind != SourceText {
		t.Errorf("unexpected selection %+v", got)
	}
}

func TestController_Refresh(t *testing.T) {
	c := NewController(Selection{Source: PresetSource("water"), Style: StyleNormal}, nil)

	var got []Selection
	c.Subscribe(func(s Selection) { got = append(got, s) })
	c.Refresh()

	if len(got) != 1 || got[0].Style != StyleNormal || got[0].Source.Preset != "water" {
		t.Errorf("unexpected notifications %+v", got)
	}
}

func TestController_ConcurrentChangesNotifyInOrder(t *testing.T) {
	c := NewController(Selection{Source: PresetSource("caffeine")}, nil)

	entered := make(chan struct{})
	release := make(chan struct{})
	var mu sync.Mutex
	var seen []string
	c.Subscribe(func(s Selection) {
		if s.Source.FileName == "a.pdb" {
			close(entered)
			<-release
		}
		mu.Lock()
		seen = append(seen, s.Source.FileName)
		mu.Unlock()
	})

	doneA := make(chan struct{})
	go func() {
		defer close(doneA)
		c.SetText("a.pdb", "a")
	}()
	<-entered

	doneB := make(chan struct{})
	go func() {
		defer close(doneB)
		c.SetText("b.pdb", "b")
	}()

	select {
	case <-doneB:
		t.Fatal("second change notified before the first finished")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	<-doneA
	<-doneB

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 || seen[0] != "a.pdb" || seen[1] != "b.pdb" {
		t.Errorf("notifications = %v, want [a.pdb b.pdb]", seen)
	}
	if got := c.Selection().Source.FileName; got != seen[len(seen)-1] {
		t.Errorf("selection %q does not match last notification %q", got, seen[len(seen)-1])
	}
}

func TestController_RevertSource(t *testing.T) {
	c := NewController(Selection{Source: PresetSource("caffeine"), Style: StyleDepth}, nil)

	notified := 0
	c.Subscribe(func(Selection) { notified++ })

	bad := TextSource("junk.pdb", "junk")
	c.SetSource(bad)
	if !c.RevertSource(bad, PresetSource("caffeine")) {
		t.Fatal("expected the source to be reverted")
	}
	if got := c.Selection(); got.Source != PresetSource("caffeine") || got.Style != StyleDepth {
		t.Errorf("unexpected selection %+v", got)
	}

	c.SetPreset("water")
	if c.RevertSource(bad, PresetSource("caffeine")) {
		t.Error("reverted a source that is no longer current")
	}
	if got := c.Selection().Source.Preset; got != "water" {
		t.Errorf("expected water, got %q", got)
	}
	if notified != 2 {
		t.Errorf("expected 2 notifications, got %d", notified)
	}
}
