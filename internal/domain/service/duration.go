package service

import (
	"sort"
	"time"

	"github.com/dreschagin/process-detector/internal/domain/entity"
	"github.com/dreschagin/process-detector/internal/domain/valueobject"
)

// DeriveSteps строит шаги по каждому кейсу: время от события до следующего события.
// Последнее событие кейса шага не даёт, отрицательные длительности отбрасываются.
// Порядок результата детерминирован: case_id по возрастанию, затем время начала.
func DeriveSteps(records []entity.EventRecord) []entity.Step {
	byCase := make(map[string][]entity.EventRecord)
	for _, r := range records {
		byCase[r.CaseID] = append(byCase[r.CaseID], r)
	}

	caseIDs := make([]string, 0, len(byCase))
	for id := range byCase {
		caseIDs = append(caseIDs, id)
	}
	sort.Strings(caseIDs)

	steps := make([]entity.Step, 0, len(records))
	for _, id := range caseIDs {
		events := byCase[id]
		sort.SliceStable(events, func(i, j int) bool {
			return events[i].Timestamp.Before(events[j].Timestamp)
		})

		for i := 0; i < len(events)-1; i++ {
			cur, next := events[i], events[i+1]
			hours := next.Timestamp.Sub(cur.Timestamp).Hours()
			if hours < 0 {
				continue
			}
			steps = append(steps, entity.Step{
				CaseID:        id,
				Event:         cur.Event,
				Start:         cur.Timestamp,
				End:           next.Timestamp,
				DurationHours: hours,
			})
		}
	}

	return steps
}

// CountCases возвращает число различных кейсов
func CountCases(records []entity.EventRecord) int {
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		seen[r.CaseID] = struct{}{}
	}
	return len(seen)
}

// ObservedPeriod возвращает интервал между самым ранним и самым поздним событием.
// Для пустого набора возвращается нулевой период.
func ObservedPeriod(records []entity.EventRecord) valueobject.AnalysisPeriod {
	if len(records) == 0 {
		return valueobject.AnalysisPeriod{}
	}

	var minTS, maxTS time.Time
	for i, r := range records {
		if i == 0 || r.Timestamp.Before(minTS) {
			minTS = r.Timestamp
		}
		if i == 0 || r.Timestamp.After(maxTS) {
			maxTS = r.Timestamp
		}
	}

	period, err := valueobject.NewAnalysisPeriod(minTS, maxTS)
	if err != nil {
		return valueobject.AnalysisPeriod{}
	}
	return period
}
