package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"story-bot/api/internal/apperr"
	"story-bot/api/internal/story"
)

type AnswerRepo struct{ DB *sql.DB }

func NewAnswerRepo(db *sql.DB) *AnswerRepo { return &AnswerRepo{DB: db} }

// InsertAnswerBatch stores the batch in one transaction; on any error nothing is kept.
func (r *AnswerRepo) InsertAnswerBatch(ctx context.Context, answers []story.Answer) ([]story.Answer, error) {
	const op = "store.answers.insert"
	const q = `
insert into story_answers (question_id, user_id, answer_text, selected_option, followup_answers)
values ($1, $2, $3, $4, $5)
returning id, created_at`

	saved := make([]story.Answer, 0, len(answers))
	err := inTx(ctx, r.DB, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, q)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, a := range answers {
			var fups []byte
			if len(a.FollowupAnswers) > 0 {
				fups, _ = json.Marshal(a.FollowupAnswers)
			}
			var (
				id int64
				ts time.Time
			)
			if err := stmt.QueryRowContext(ctx,
				a.QuestionID, nullInt64(a.UserID), a.AnswerText, nullString(a.SelectedOption), nullJSON(fups),
			).Scan(&id, &ts); err != nil {
				return err
			}
			a.ID, a.CreatedAt = id, &ts
			saved = append(saved, a)
		}
		return nil
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, op, "insert answer batch", err)
	}
	return saved, nil
}

// QueryAnswers returns the answers to every question asked about imageID, oldest first.
func (r *AnswerRepo) QueryAnswers(ctx context.Context, imageID int64) ([]story.Answer, error) {
	const op = "store.answers.query"
	const q = `
select a.id, a.question_id, a.user_id, a.answer_text, a.selected_option, a.followup_answers, a.created_at
from story_answers a
join story_questions q on q.id = a.question_id
where q.image_id = $1
order by a.id`

	rows, err := r.DB.QueryContext(ctx, q, imageID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, op, "query story_answers", err)
	}
	defer rows.Close()

	var out []story.Answer
	for rows.Next() {
		var (
			a      story.Answer
			userID sql.NullInt64
			option sql.NullString
			fups   []byte
			ts     time.Time
		)
		if err := rows.Scan(&a.ID, &a.QuestionID, &userID, &a.AnswerText, &option, &fups, &ts); err != nil {
			return nil, apperr.Wrap(apperr.KindPersistence, op, "scan story_answers", err)
		}
		if userID.Valid {
			a.UserID = &userID.Int64
		}
		if option.Valid {
			a.SelectedOption = &option.String
		}
		if len(fups) > 0 {
			_ = json.Unmarshal(fups, &a.FollowupAnswers)
		}
		a.CreatedAt = &ts
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, op, "iterate story_answers", err)
	}
	return out, nil
}

func nullInt64(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullString(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}
