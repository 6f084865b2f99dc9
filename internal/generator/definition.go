// Package generator turns report definitions into queued report jobs, one per account
// and date window.
package generator

import (
	"fmt"
	"os"
	"time"

	"github.com/joshuadwieczorek/ga-queue-processor/internal/worker/domain"
	"gopkg.in/yaml.v3"
)

// Schedule decides the date windows of a definition and the queue kind it lands in
type Schedule string

// Schedule constants
const (
	ScheduledDaily   Schedule = "scheduled_daily"
	ScheduledMonthly Schedule = "scheduled_monthly"
	ManualDaily      Schedule = "manual_daily"
	ManualMonthly    Schedule = "manual_monthly"
)

// ParseSchedule converts a string into a Schedule
func ParseSchedule(s string) (Schedule, error) {
	switch Schedule(s) {
	case ScheduledDaily, ScheduledMonthly, ManualDaily, ManualMonthly:
		return Schedule(s), nil
	default:
		return "", fmt.Errorf("%w: unknown schedule %q", domain.ErrValidation, s)
	}
}

// Kind returns the queue kind jobs of this schedule are enqueued as
func (s Schedule) Kind() domain.Kind {
	if s.IsManual() {
		return domain.KindManual
	}
	return domain.KindScheduled
}

// IsManual reports whether the schedule needs an explicit date range
func (s Schedule) IsManual() bool {
	return s == ManualDaily || s == ManualMonthly
}

// DateRange is an inclusive range of calendar days
type DateRange struct {
	Start time.Time `yaml:"start" json:"start"`
	End   time.Time `yaml:"end" json:"end"`
}

// ReportDefinition describes one report to request for every account
type ReportDefinition struct {
	Name       string          `yaml:"name"`
	Schedule   Schedule        `yaml:"schedule"`
	Dimensions []string        `yaml:"dimensions"`
	Metrics    []domain.Metric `yaml:"metrics"`
	Filter     string          `yaml:"filter"`
	SinkTable  string          `yaml:"sink_table"`
	DateRange  *DateRange      `yaml:"date_range"` // manual schedules only
}

type definitionsFile struct {
	Reports []ReportDefinition `yaml:"reports"`
}

// LoadDefinitions reads report definitions from a YAML file
func LoadDefinitions(path string) ([]ReportDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read definitions file: %w", err)
	}

	var file definitionsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse definitions file: %w", err)
	}

	for i := range file.Reports {
		if err := file.Reports[i].Validate(); err != nil {
			return nil, fmt.Errorf("report %d: %w", i, err)
		}
	}

	return file.Reports, nil
}

// Validate checks the fields every schedule needs
func (d *ReportDefinition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("%w: report name is required", domain.ErrValidation)
	}
	if _, err := ParseSchedule(string(d.Schedule)); err != nil {
		return fmt.Errorf("report %s: %w", d.Name, err)
	}
	if len(d.Dimensions) == 0 {
		return fmt.Errorf("%w: report %s has no dimensions", domain.ErrValidation, d.Name)
	}
	if len(d.Metrics) == 0 {
		return fmt.Errorf("%w: report %s has no metrics", domain.ErrValidation, d.Name)
	}
	if d.SinkTable == "" {
		return fmt.Errorf("%w: report %s has no sink_table", domain.ErrValidation, d.Name)
	}
	if d.Schedule.IsManual() && d.DateRange == nil {
		return fmt.Errorf("%w: report %s needs a date_range for schedule %s", domain.ErrValidation, d.Name, d.Schedule)
	}
	return nil
}

// Due reports whether a scheduled definition runs on today. Monthly reports run on the
// first day of the month; manual definitions are always due.
func (d *ReportDefinition) Due(today time.Time) bool {
	if d.Schedule == ScheduledMonthly {
		return today.Day() == 1
	}
	return true
}
