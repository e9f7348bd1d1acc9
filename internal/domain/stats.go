package domain

// GlobalStats — агрегаты для дашборда Console API.
type GlobalStats struct {
	TotalSystems     int64            `json:"total_systems"`
	TotalAssessments int64            `json:"total_assessments"`
	NonCompliant     int64            `json:"non_compliant"`
	StatusBreakdown  map[string]int64 `json:"status_breakdown"` // status -> кол-во систем
	AvgScore         float64          `json:"avg_score"`
	AlertsLastHour   int64            `json:"alerts_last_hour"`
	HourlyActivity   []ActivityPoint  `json:"hourly_activity"`
}

type ActivityPoint struct {
	Hour  string `json:"hour"`
	Count int64  `json:"count"`
}
