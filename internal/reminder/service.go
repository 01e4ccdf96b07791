// Package reminder は服薬リマインダーの登録を提供する。
package reminder

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/hitoshi/healthtrack/internal/model"
)

const remindersPath = "/api/reminders"

// datetimeLocalLayout はHTMLのdatetime-local入力の形式。
const datetimeLocalLayout = "2006-01-02T15:04"

// Requester はリマインダーサービスの呼び出しに必要なHTTPクライアントのインターフェース。
type Requester interface {
	Post(ctx context.Context, path string, body, out any) error
}

// Input はフォームから受け取ったリマインダーの入力値。
type Input struct {
	Medicine string
	Time     string
	Dosage   string
}

// Service はリマインダーサービスのクライアント。
type Service struct {
	api Requester
	loc *time.Location
}

// NewService はServiceを生成する。
// タイムゾーンを含まない日時はlocの時刻として解釈する（nilの場合はtime.Local）。
func NewService(api Requester, loc *time.Location) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{api: api, loc: loc}
}

// Submit はuserIDのリマインダーを登録する。
// 入力に誤りがある場合は送信せずに*model.ValidationErrorを返す。
func (s *Service) Submit(ctx context.Context, userID string, in Input) error {
	if strings.TrimSpace(userID) == "" {
		return errors.New("reminder requires a logged-in user")
	}

	r, err := s.Build(userID, in)
	if err != nil {
		return err
	}
	return s.api.Post(ctx, remindersPath, r, nil)
}

// Build は入力値を検証し、送信用のリマインダーに変換する。
func (s *Service) Build(userID string, in Input) (*model.Reminder, error) {
	medicine := strings.TrimSpace(in.Medicine)
	if medicine == "" {
		return nil, model.NewRequiredFieldError("medicine", "薬の名前")
	}
	dosage := strings.TrimSpace(in.Dosage)
	if dosage == "" {
		return nil, model.NewRequiredFieldError("dosage", "服用量")
	}
	raw := strings.TrimSpace(in.Time)
	if raw == "" {
		return nil, model.NewRequiredFieldError("time", "日時")
	}
	at, err := s.parseTime(raw)
	if err != nil {
		return nil, &model.ValidationError{Field: "time", Message: "日時の形式が正しくありません。"}
	}

	return &model.Reminder{
		UserID:   userID,
		Medicine: medicine,
		Time:     at.UTC().Format(time.RFC3339),
		Dosage:   dosage,
	}, nil
}

// parseTime はdatetime-local形式またはRFC 3339形式の日時を解釈する。
func (s *Service) parseTime(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation(datetimeLocalLayout+":05", raw, s.loc); err == nil {
		return t, nil
	}
	return time.ParseInLocation(datetimeLocalLayout, raw, s.loc)
}
