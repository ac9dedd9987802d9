package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"story-bot/api/internal/apperr"
	"story-bot/api/internal/story"
)

type QuestionRepo struct{ DB *sql.DB }

func NewQuestionRepo(db *sql.DB) *QuestionRepo { return &QuestionRepo{DB: db} }

// InsertQuestionBatch stores the batch in one transaction; on any error nothing is kept.
func (r *QuestionRepo) InsertQuestionBatch(ctx context.Context, imageID int64, qs []story.Question) ([]story.Question, error) {
	const op = "store.questions.insert"
	const q = `
insert into story_questions (image_id, target_element, question_text, question_type, options, followups, reason)
values ($1, $2, $3, $4, $5, $6, $7)
returning id, created_at`

	saved := make([]story.Question, 0, len(qs))
	err := inTx(ctx, r.DB, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, q)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, sq := range qs {
			opts, _ := json.Marshal(sq.Options)
			fups, _ := json.Marshal(sq.Followups)
			var (
				id int64
				ts time.Time
			)
			if err := stmt.QueryRowContext(ctx,
				imageID, sq.TargetElement, sq.Text, string(sq.Type), nullJSON(opts), nullJSON(fups), sq.Reason,
			).Scan(&id, &ts); err != nil {
				return err
			}
			sq.ID, sq.ImageID, sq.CreatedAt = id, imageID, &ts
			saved = append(saved, sq)
		}
		return nil
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, op, "insert question batch", err)
	}
	return saved, nil
}

func (r *QuestionRepo) QueryQuestions(ctx context.Context, imageID int64) ([]story.Question, error) {
	const op = "store.questions.query"
	const q = `
select id, image_id, target_element, question_text, question_type,
       options, followups, coalesce(reason, ''), created_at
from story_questions
where image_id = $1
order by id`

	rows, err := r.DB.QueryContext(ctx, q, imageID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, op, "query story_questions", err)
	}
	defer rows.Close()

	var out []story.Question
	for rows.Next() {
		var (
			sq         story.Question
			typ        string
			opts, fups []byte
			ts         time.Time
		)
		if err := rows.Scan(&sq.ID, &sq.ImageID, &sq.TargetElement, &sq.Text, &typ, &opts, &fups, &sq.Reason, &ts); err != nil {
			return nil, apperr.Wrap(apperr.KindPersistence, op, "scan story_questions", err)
		}
		sq.Type = story.QuestionType(typ)
		sq.CreatedAt = &ts
		if len(opts) > 0 {
			_ = json.Unmarshal(opts, &sq.Options)
		}
		sq.Followups = []string{}
		if len(fups) > 0 {
			_ = json.Unmarshal(fups, &sq.Followups)
		}
		out = append(out, sq)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindPersistence, op, "iterate story_questions", err)
	}
	return out, nil
}
