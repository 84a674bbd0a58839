package entity

import "time"

// EventRecord представляет одну очищенную строку журнала событий
type EventRecord struct {
	CaseID    string
	Event     string
	Timestamp time.Time
}

// Step представляет интервал от события до следующего события того же кейса.
// Метка шага берётся из более раннего события.
type Step struct {
	CaseID        string
	Event         string
	Start         time.Time
	End           time.Time
	DurationHours float64
}
