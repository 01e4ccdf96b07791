package health

import (
	"math"

	"github.com/hitoshi/healthtrack/internal/model"
)

// ComputeStats は測定記録の件数と平均値を計算する。
// 記録が0件の場合、平均値はすべて0を返す。
func ComputeStats(readings []model.HealthReading) model.Stats {
	n := len(readings)
	if n == 0 {
		return model.Stats{}
	}

	var systolic, diastolic, sugar float64
	for _, r := range readings {
		systolic += r.BloodPressure.Systolic
		diastolic += r.BloodPressure.Diastolic
		sugar += r.SugarLevel
	}

	return model.Stats{
		Count:        n,
		AvgSystolic:  systolic / float64(n),
		AvgDiastolic: diastolic / float64(n),
		AvgSugar:     sugar / float64(n),
	}
}

// RoundedStats はプロフィール画面に表示する整数に丸めた平均値。
type RoundedStats struct {
	Count        int
	AvgSystolic  int64
	AvgDiastolic int64
	AvgSugar     int64
}

// Round は平均値を四捨五入で整数に丸める。
func Round(s model.Stats) RoundedStats {
	return RoundedStats{
		Count:        s.Count,
		AvgSystolic:  int64(math.Round(s.AvgSystolic)),
		AvgDiastolic: int64(math.Round(s.AvgDiastolic)),
		AvgSugar:     int64(math.Round(s.AvgSugar)),
	}
}

// OneDecimal は平均値を小数点以下1桁に丸める。ダッシュボード表示用。
func OneDecimal(s model.Stats) model.Stats {
	return model.Stats{
		Count:        s.Count,
		AvgSystolic:  round1(s.AvgSystolic),
		AvgDiastolic: round1(s.AvgDiastolic),
		AvgSugar:     round1(s.AvgSugar),
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
