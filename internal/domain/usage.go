// Package domain contains core business types and interfaces.
//
// This file defines the monthly usage ledger types. Usage is tracked per
// user per calendar month; a new month starts every counter at zero.
package domain

import (
	"fmt"
	"time"
)

// Counter names a metered action tracked in the usage ledger.
type Counter string

const (
	CounterPersonalChatMessages Counter = "personal_chat_messages"
	CounterPersonChatMessages   Counter = "person_chat_messages"
	CounterStatisticsAccess     Counter = "statistics_access"
	CounterTranscriptions       Counter = "transcriptions"
	CounterPeopleManaged        Counter = "people_managed"
)

// Counters lists every metered counter. Order matches the usage row layout.
var Counters = []Counter{
	CounterPersonalChatMessages,
	CounterPersonChatMessages,
	CounterStatisticsAccess,
	CounterTranscriptions,
	CounterPeopleManaged,
}

// Valid returns true if the counter is a recognised metered action.
func (c Counter) Valid() bool {
	switch c {
	case CounterPersonalChatMessages, CounterPersonChatMessages,
		CounterStatisticsAccess, CounterTranscriptions, CounterPeopleManaged:
		return true
	default:
		return false
	}
}

// MonthKey identifies one calendar month as "YYYY-MM" (UTC).
type MonthKey string

// MonthOf returns the month key containing t.
func MonthOf(t time.Time) MonthKey {
	u := t.UTC()
	return MonthKey(fmt.Sprintf("%04d-%02d", u.Year(), int(u.Month())))
}

// CurrentMonth returns the month key for the current wall-clock month.
func CurrentMonth() MonthKey {
	return MonthOf(time.Now())
}

// UsageCounters holds one user's counter values for one month.
// A zero value represents a month with no recorded usage.
type UsageCounters struct {
	Month                MonthKey `json:"month"`
	PersonalChatMessages int64    `json:"personalChatMessages"`
	PersonChatMessages   int64    `json:"personChatMessages"`
	StatisticsAccess     int64    `json:"statisticsAccess"`
	Transcriptions       int64    `json:"transcriptions"`
	PeopleManaged        int64    `json:"peopleManaged"`
}

// Get returns the value of the named counter.
func (u UsageCounters) Get(c Counter) int64 {
	switch c {
	case CounterPersonalChatMessages:
		return u.PersonalChatMessages
	case CounterPersonChatMessages:
		return u.PersonChatMessages
	case CounterStatisticsAccess:
		return u.StatisticsAccess
	case CounterTranscriptions:
		return u.Transcriptions
	case CounterPeopleManaged:
		return u.PeopleManaged
	default:
		return 0
	}
}

// Add increments the named counter in place by n.
func (u *UsageCounters) Add(c Counter, n int64) {
	switch c {
	case CounterPersonalChatMessages:
		u.PersonalChatMessages += n
	case CounterPersonChatMessages:
		u.PersonChatMessages += n
	case CounterStatisticsAccess:
		u.StatisticsAccess += n
	case CounterTranscriptions:
		u.Transcriptions += n
	case CounterPeopleManaged:
		u.PeopleManaged += n
	}
}
