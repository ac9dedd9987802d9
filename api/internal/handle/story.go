package handle

import (
	"context"
	"net/http"
	"time"

	"story-bot/api/internal/apperr"
	"story-bot/api/internal/story"
)

// one model call plus one transaction
const workflowTimeout = 120 * time.Second

func (d *Handle) Analyze(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		d.writeError(w, r, err, "")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), workflowTimeout)
	defer cancel()

	out := d.agent.AnalyzeImage(ctx, id)
	if out.Status == story.StatusError {
		d.writeError(w, r, out.Err, "")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type QuestionsRequest struct {
	MissingElements []string `json:"missing_elements"`
}

func (d *Handle) Questions(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		d.writeError(w, r, err, "")
		return
	}
	var req QuestionsRequest
	if err := decodeBody(w, r, &req); err != nil {
		d.writeError(w, r, err, "")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), workflowTimeout)
	defer cancel()

	out, err := d.agent.GenerateQuestions(ctx, id, req.MissingElements)
	if err != nil {
		d.writeError(w, r, err, "質問生成中にエラーが発生しました")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type AnswersRequest struct {
	Answers []story.Answer `json:"answers"`
}

func (d *Handle) Answers(w http.ResponseWriter, r *http.Request) {
	var req AnswersRequest
	if err := decodeBody(w, r, &req); err != nil {
		d.writeError(w, r, err, "")
		return
	}
	if req.Answers == nil {
		d.writeError(w, r, apperr.New(apperr.KindInvalid, "handle.answers", "answers is required"), "")
		return
	}
	out, err := d.agent.SubmitAnswers(r.Context(), req.Answers)
	if err != nil {
		detail := ""
		if apperr.IsKind(err, apperr.KindPersistence) {
			detail = "回答保存中にエラーが発生しました"
		}
		d.writeError(w, r, err, detail)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (d *Handle) Validate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		d.writeError(w, r, err, "")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), workflowTimeout)
	defer cancel()

	out, err := d.agent.ValidateCollected(ctx, id)
	if err != nil {
		detail := ""
		if apperr.IsKind(err, apperr.KindNotFound) {
			detail = "指定された画像の質問が見つかりません"
		}
		d.writeError(w, r, err, detail)
		return
	}
	if out.Status == story.StatusError {
		d.writeError(w, r, out.Err, out.Message)
		return
	}
	// partial_success is still a usable verdict
	writeJSON(w, http.StatusOK, out)
}
