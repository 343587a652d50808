package calendar

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
)

// CategorySet holds the ids of categories currently toggled on.
type CategorySet map[string]bool

func NewCategorySet(ids ...string) CategorySet {
	set := make(CategorySet, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func (set CategorySet) Has(categoryID *string) bool {
	return categoryID != nil && set[*categoryID]
}

// Filter combines the grid predicates. An instance is kept only when every
// enabled predicate accepts it.
type Filter struct {
	ActiveCategories CategorySet `json:"active_categories"`
	HidePast         bool        `json:"hide_past"`
	AllDayOnly       bool        `json:"all_day_only"`
	RequireLocation  bool        `json:"require_location"`
	WeekdaysOnly     bool        `json:"weekdays_only"`
	Search           string      `json:"search"`
}

type Predicate func(EventInstance) bool

// Predicates returns the enabled predicates. now is read once so the past
// check is consistent across a single evaluation.
func (filter Filter) Predicates(now time.Time, location *time.Location) []Predicate {
	predicates := []Predicate{
		func(instance EventInstance) bool {
			return filter.ActiveCategories.Has(instance.CategoryID)
		},
	}

	if filter.HidePast {
		predicates = append(predicates, func(instance EventInstance) bool {
			return !instance.EndTime.Before(now)
		})
	}
	if filter.AllDayOnly {
		predicates = append(predicates, func(instance EventInstance) bool {
			return instance.IsAllDay
		})
	}
	if filter.RequireLocation {
		predicates = append(predicates, func(instance EventInstance) bool {
			return instance.Location != ""
		})
	}
	if filter.WeekdaysOnly {
		predicates = append(predicates, func(instance EventInstance) bool {
			switch instance.StartTime.In(location).Weekday() {
			case time.Saturday, time.Sunday:
				return false
			}
			return true
		})
	}
	if query := strings.TrimSpace(filter.Search); query != "" {
		folder := cases.Fold()
		needle := folder.String(query)
		predicates = append(predicates, func(instance EventInstance) bool {
			for _, field := range []string{instance.Title, instance.Description, instance.Location} {
				if strings.Contains(folder.String(field), needle) {
					return true
				}
			}
			return false
		})
	}

	return predicates
}

// Apply returns the instances accepted by all enabled predicates, in input
// order. The input slice is not modified.
func (filter Filter) Apply(instances []EventInstance, now time.Time, location *time.Location) []EventInstance {
	predicates := filter.Predicates(now, location)

	kept := make([]EventInstance, 0, len(instances))
	for _, instance := range instances {
		if matchesAll(instance, predicates) {
			kept = append(kept, instance)
		}
	}
	return kept
}

func matchesAll(instance EventInstance, predicates []Predicate) bool {
	for _, predicate := range predicates {
		if !predicate(instance) {
			return false
		}
	}
	return true
}
