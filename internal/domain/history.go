package domain

import "time"

// HistoryEvent описывает событие в жизненном цикле лота (аудит).
// Терминальные лоты не удаляются физически, история — их постоянный след.
type HistoryEvent struct {
	LotID    string
	Type     string
	Reason   string
	Occurred time.Time
}
