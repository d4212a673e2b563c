package main

import (
	"context"
	"errors"
)

type ComposerState int

const (
	ComposerIdle ComposerState = iota
	ComposerAwaitingSelection
	ComposerLocationSelected
	ComposerSubmitting
)

func (s ComposerState) String() string {
	switch s {
	case ComposerAwaitingSelection:
		return "awaiting_selection"
	case ComposerLocationSelected:
		return "location_selected"
	case ComposerSubmitting:
		return "submitting"
	default:
		return "idle"
	}
}

var errNoSelection = errors.New("no location selected")

// Composer drives "start reporting -> pick a spot -> describe -> submit" on
// top of a browsing-mode map.
type Composer struct {
	State       ComposerState
	Selection   *Coordinate
	Description string
	Err         error
	Submitted   *Report
}

func (c *Composer) Reporting() bool {
	return c.State != ComposerIdle
}

// Start begins a new report and drops any previous selection.
func (c *Composer) Start() {
	c.State = ComposerAwaitingSelection
	c.Selection = nil
	c.Err = nil
}

// LocationSelected is the map's browsing-mode callback. Clicks outside a
// reporting session are ignored.
func (c *Composer) LocationSelected(lat, lng float64) {
	if c.State != ComposerAwaitingSelection && c.State != ComposerLocationSelected {
		return
	}
	c.Selection = &Coordinate{Lat: lat, Lng: lng}
	c.State = ComposerLocationSelected
}

func (c *Composer) SetDescription(text string) {
	c.Description = text
}

func (c *Composer) Cancel() {
	c.State = ComposerIdle
	c.Selection = nil
	c.Description = ""
	c.Err = nil
}

// Submit writes the pending report. On failure the selection and the
// description stay so the user can resubmit.
func (c *Composer) Submit(ctx context.Context, store ReportAppender) error {
	if c.State != ComposerLocationSelected || c.Selection == nil {
		return errNoSelection
	}
	c.State = ComposerSubmitting
	c.Err = nil

	saved, err := store.Append(ctx, Report{
		Latitude:    c.Selection.Lat,
		Longitude:   c.Selection.Lng,
		Description: normalizeDescription(c.Description),
	})
	if err != nil {
		c.State = ComposerLocationSelected
		c.Err = err
		return err
	}

	c.Cancel()
	c.Submitted = &saved
	return nil
}
