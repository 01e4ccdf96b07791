package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// BloodPressure は血圧の測定値。
type BloodPressure struct {
	Systolic  float64 `json:"systolic"`
	Diastolic float64 `json:"diastolic"`
}

// Medication は服薬記録の1行。
type Medication struct {
	Name string `json:"name"`
	Time string `json:"time"`
}

// HealthReading は健康データサービスが保持する測定記録。
// サービスから受け取った内容をそのまま扱う。
type HealthReading struct {
	ID            string        `json:"_id,omitempty"`
	BloodPressure BloodPressure `json:"bloodPressure"`
	SugarLevel    float64       `json:"sugarLevel"`
	Medications   []Medication  `json:"medications"`
	CreatedAt     time.Time     `json:"createdAt,omitzero"`
}

// UnmarshalJSON は_idが数値でも文字列でも受け付ける。
func (h *HealthReading) UnmarshalJSON(data []byte) error {
	type plain HealthReading
	var raw struct {
		plain
		ID json.RawMessage `json:"_id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	id, err := decodeFlexibleID(raw.ID)
	if err != nil {
		return fmt.Errorf("invalid reading id: %w", err)
	}

	*h = HealthReading(raw.plain)
	h.ID = id
	return nil
}

// Reminder は服薬リマインダーの登録内容。
// TimeはRFC 3339形式で送信する。
type Reminder struct {
	UserID   string `json:"userId"`
	Medicine string `json:"medicine"`
	Time     string `json:"time"`
	Dosage   string `json:"dosage"`
}

// Stats は測定記録の集計結果。
// 記録が0件の場合、平均値はすべて0になる。
type Stats struct {
	Count        int     `json:"count"`
	AvgSystolic  float64 `json:"avgSystolic"`
	AvgDiastolic float64 `json:"avgDiastolic"`
	AvgSugar     float64 `json:"avgSugar"`
}
