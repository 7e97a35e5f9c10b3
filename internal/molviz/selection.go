package molviz

import (
	"fmt"
	"sync"
)

// Selection is the pair of values the control panel edits.
type Selection struct {
	Source MoleculeSource `json:"source"`
	Style  RenderStyle    `json:"style"`
}

// Controller owns a session's selection and tells subscribers about every
// change. Subscribers run synchronously, in subscription order, outside the
// controller's lock. Notifications are serialized, so subscribers see changes
// in the order they were made.
type Controller struct {
	notifyMu sync.Mutex
	mu       sync.RWMutex
	sel      Selection
	presets  func() *Catalogue
	subs     map[int]func(Selection)
	order    []int
	nextID   int
}

// NewController starts from initial. presets validates SetPreset calls and
// may be nil to accept any name.
func NewController(initial Selection, presets func() *Catalogue) *Controller {
	return &Controller{
		sel:     initial,
		presets: presets,
		subs:    make(map[int]func(Selection)),
	}
}

// Selection returns the current value.
func (c *Controller) Selection() Selection {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sel
}

// Subscribe registers fn for future changes and returns a func that removes it.
func (c *Controller) Subscribe(fn func(Selection)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	c.order = append(c.order, id)
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
		for i, v := range c.order {
			if v == id {
				c.order = append(c.order[:i], c.order[i+1:]...)
				break
			}
		}
	}
}

// SetPreset selects a catalogue molecule, keeping the style.
func (c *Controller) SetPreset(name string) error {
	if c.presets != nil {
		if cat := c.presets(); cat == nil || !cat.Has(name) {
			return fmt.Errorf("%w: %s", ErrUnknownPreset, name)
		}
	}
	c.update(func(s *Selection) { s.Source = PresetSource(name) })
	return nil
}

// SetText selects uploaded text, keeping the style.
func (c *Controller) SetText(fileName, text string) {
	c.update(func(s *Selection) { s.Source = TextSource(fileName, text) })
}

// SetSource replaces the source, keeping the style.
func (c *Controller) SetSource(src MoleculeSource) {
	c.update(func(s *Selection) { s.Source = src })
}

// SetStyle changes the style, keeping the source.
func (c *Controller) SetStyle(style RenderStyle) error {
	if !style.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownStyle, int(style))
	}
	c.update(func(s *Selection) { s.Style = style })
	return nil
}

// Set replaces the whole selection.
func (c *Controller) Set(sel Selection) error {
	if !sel.Style.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownStyle, int(sel.Style))
	}
	if sel.Source.Kind == SourcePreset && c.presets != nil {
		if cat := c.presets(); cat == nil || !cat.Has(sel.Source.Preset) {
			return fmt.Errorf("%w: %s", ErrUnknownPreset, sel.Source.Preset)
		}
	}
	c.update(func(s *Selection) { *s = sel })
	return nil
}

// Refresh notifies subscribers with the unchanged selection.
func (c *Controller) Refresh() {
	c.update(func(*Selection) {})
}

// RevertSource puts good back in place of failed without notifying
// subscribers. It does nothing unless failed is still the current source.
func (c *Controller) RevertSource(failed, good MoleculeSource) bool {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sel.Source != failed {
		return false
	}
	c.sel.Source = good
	return true
}

// update must not be called from a subscriber.
func (c *Controller) update(fn func(*Selection)) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	fn(&c.sel)
	sel := c.sel
	subs := make([]func(Selection), 0, len(c.order))
	for _, id := range c.order {
		subs = append(subs, c.subs[id])
	}
	c.mu.Unlock()

	for _, sub := range subs {
		sub(sel)
	}
}
