// Package model contains domain models passed between layers.
package model

import (
	"strings"
	"time"
)

// TrainingModule is one unit of training content eligible for assignment.
// Modules are loaded fresh each run and never mutated afterward.
type TrainingModule struct {
	ID          string // explicit id or content hash of the required columns
	Title       string
	Topic       string // platform training-type checkbox label
	Location    string
	Description string
	Duration    string // raw duration as written in the module file
	Instructor  string
	Date        string // optional override of the run date
	Time        string // optional start time, e.g. "7:00 PM"
	Source      string // file path plus line or section, e.g. "modules.csv:4"
}

// Label returns the most readable name for the module.
func (m TrainingModule) Label() string {
	if m.Title != "" {
		return m.Title
	}
	return m.Topic
}

// PersonnelRecord is an active staff member sourced from the roster feed.
type PersonnelRecord struct {
	ID     string            // feed id or the normalized name
	Name   string            // "Last, First"
	Unit   string            // apparatus or crew, e.g. "R1"
	Fields map[string]string // other scalar fields exposed by the feed
}

// Key identifies the person across units and stages. Feed ids are not
// reliable across units, so the normalized name is used when present.
func (p PersonnelRecord) Key() string {
	if p.Name != "" {
		return strings.ToLower(strings.TrimSpace(p.Name))
	}
	return p.ID
}

// Assignment pairs one person with one module for a run date.
type Assignment struct {
	ID        string
	RunID     string
	RunDate   time.Time
	Policy    string
	Personnel PersonnelRecord
	Module    TrainingModule
}
