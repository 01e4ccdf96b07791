// Package health は健康データ（血圧・血糖値・服薬記録）の取得・登録と集計を提供する。
package health

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/hitoshi/healthtrack/internal/model"
)

const dataPath = "/api/data"

// Requester は健康データサービスの呼び出しに必要なHTTPクライアントのインターフェース。
// apiclient.Clientの部分集合として定義する。
type Requester interface {
	Get(ctx context.Context, path string, out any) error
	Post(ctx context.Context, path string, body, out any) error
}

// Service は健康データサービスのクライアント。
type Service struct {
	api Requester
}

// NewService はServiceを生成する。
func NewService(api Requester) *Service {
	return &Service{api: api}
}

// ReadingInput はフォームから受け取った測定記録の入力値。
type ReadingInput struct {
	Systolic    string
	Diastolic   string
	SugarLevel  string
	Medications []MedicationInput
}

// MedicationInput は服薬記録1行分の入力値。
type MedicationInput struct {
	Name string
	Time string
}

// List は測定記録の一覧をサービスが返した順のまま返す。
func (s *Service) List(ctx context.Context) ([]model.HealthReading, error) {
	var readings []model.HealthReading
	if err := s.api.Get(ctx, dataPath, &readings); err != nil {
		return nil, err
	}
	if readings == nil {
		readings = []model.HealthReading{}
	}
	return readings, nil
}

// Submit は入力値を検証して測定記録を登録する。
// 入力に誤りがある場合は送信せずに*model.ValidationErrorを返す。
func (s *Service) Submit(ctx context.Context, in ReadingInput) error {
	reading, err := Validate(in)
	if err != nil {
		return err
	}
	return s.api.Post(ctx, dataPath, reading, nil)
}

// Validate は入力値を検証し、送信用の測定記録に変換する。
// 名前が空の服薬記録の行は取り除く。
func Validate(in ReadingInput) (*model.HealthReading, error) {
	systolic, err := parsePositive("systolic", "最高血圧", in.Systolic)
	if err != nil {
		return nil, err
	}
	diastolic, err := parsePositive("diastolic", "最低血圧", in.Diastolic)
	if err != nil {
		return nil, err
	}
	sugar, err := parsePositive("sugarLevel", "血糖値", in.SugarLevel)
	if err != nil {
		return nil, err
	}

	meds := make([]model.Medication, 0, len(in.Medications))
	for _, m := range in.Medications {
		name := strings.TrimSpace(m.Name)
		if name == "" {
			continue
		}
		meds = append(meds, model.Medication{Name: name, Time: strings.TrimSpace(m.Time)})
	}

	return &model.HealthReading{
		BloodPressure: model.BloodPressure{Systolic: systolic, Diastolic: diastolic},
		SugarLevel:    sugar,
		Medications:   meds,
	}, nil
}

func parsePositive(field, label, raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, model.NewRequiredFieldError(field, label)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return 0, &model.ValidationError{
			Field:   field,
			Message: fmt.Sprintf("%sには正の数値を入力してください。", label),
		}
	}
	return v, nil
}
