// Package exam holds the core of the assessment backend: the window &
// lock guard and the submission orchestrator. Every state-mutating
// operation re-runs the guard and commits through a compare-and-set in
// the store, so the one-submission-per-modality and final-lock
// invariants hold under concurrent requests for the same candidate.
package exam

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pavelanni/screener/internal/model"
	"github.com/pavelanni/screener/internal/notify"
	"github.com/pavelanni/screener/internal/scorer"
	"github.com/pavelanni/screener/internal/store"
)

const inviteRetries = 5

// NoSubmissionsVerdict is returned by FinalVerdict for candidates with
// an empty ledger; the scorer is not called in that case.
const NoSubmissionsVerdict = "No submissions found."

// Service wires the guard, the orchestrator and the admin aggregator
// around the shared store. Only this package mutates candidate fields.
type Service struct {
	store    *store.Store
	scorer   scorer.Scorer
	notifier notify.Notifier
	locks    candidateLocks

	// now is swappable in tests to step through the window.
	now func() time.Time
}

// New creates the exam service.
func New(st *store.Store, sc scorer.Scorer, n notify.Notifier) *Service {
	return &Service{
		store:    st,
		scorer:   sc,
		notifier: n,
		now:      time.Now,
	}
}

// SubmitRequest is one modality submission.
type SubmitRequest struct {
	CandidateID int64
	Modality    model.Modality
	Question    string
	// Answer is what the ledger records: the raw text answer, or the
	// blob key of an uploaded file.
	Answer string
	// Content is what the scorer sees.
	Content scorer.Content
}

// Invite creates a candidate with a fresh access code and kicks off
// best-effort email delivery. The code is regenerated on the unlikely
// collision with an existing one.
func (s *Service) Invite(email string, windowStart, windowEnd time.Time) (model.Candidate, error) {
	if email == "" {
		return model.Candidate{}, &model.ValidationError{Msg: "email is required"}
	}
	if !windowStart.Before(windowEnd) {
		return model.Candidate{}, &model.ValidationError{Msg: "test window start must be before end"}
	}

	var id int64
	var code string
	for attempt := 0; ; attempt++ {
		var err error
		code, err = GenerateCode()
		if err != nil {
			return model.Candidate{}, err
		}
		id, err = s.store.CreateCandidate(email, code, windowStart, windowEnd)
		if err == nil {
			break
		}
		if !errors.Is(err, store.ErrConflict) {
			return model.Candidate{}, fmt.Errorf("create candidate: %w", err)
		}
		// A code collision is retryable; a taken email is not.
		if _, lookupErr := s.store.GetCandidateByCode(code); lookupErr == sql.ErrNoRows {
			return model.Candidate{}, &model.ValidationError{Msg: "email already invited"}
		}
		if attempt+1 >= inviteRetries {
			return model.Candidate{}, fmt.Errorf("create candidate: %w", err)
		}
	}

	candidate, err := s.store.GetCandidate(id)
	if err != nil {
		return model.Candidate{}, err
	}

	go func() {
		if err := s.notifier.Invite(email, code, windowStart, windowEnd); err != nil {
			slog.Error("invite delivery failed", "email", email, "error", err)
		}
	}()

	slog.Info("candidate invited", "id", id, "email", email,
		"window_start", windowStart, "window_end", windowEnd)
	return candidate, nil
}

// CheckAccess is the window & lock guard: nil means allowed, otherwise
// the error says why. Checks short-circuit in order: existence, final
// lock, window start, window end. Observing an expired window flips the
// status to TimeExpired as a side effect.
func (s *Service) CheckAccess(candidateID int64) error {
	candidate, err := s.store.GetCandidate(candidateID)
	if err == sql.ErrNoRows {
		return &model.NotFoundError{What: "candidate"}
	}
	if err != nil {
		return err
	}
	return s.checkWindow(candidate, true)
}

// checkWindow applies the time-window steps of the guard. The final
// lock step is skipped for redemption: a finalized candidate may still
// redeem the code to re-view, just never re-submit.
func (s *Service) checkWindow(c model.Candidate, enforceFinalLock bool) error {
	if enforceFinalLock && c.FinalLocked {
		return &model.DeniedError{Reason: model.ReasonFinalSubmitted}
	}

	now := s.now()
	if now.Before(c.WindowStart) {
		return &model.DeniedError{Reason: model.ReasonNotStarted}
	}
	if now.After(c.WindowEnd) {
		if err := s.store.MarkExpired(c.ID); err != nil {
			slog.Error("failed to mark candidate expired", "id", c.ID, "error", err)
		}
		return &model.DeniedError{Reason: model.ReasonTimeOver}
	}
	return nil
}

// Redeem validates an access code against the window and returns the
// candidate snapshot. Idempotent: the Invited -> Started transition
// happens once, every later in-window redemption returns the same
// snapshot with no further side effects.
func (s *Service) Redeem(code string) (model.Snapshot, error) {
	candidate, err := s.store.GetCandidateByCode(code)
	if err == sql.ErrNoRows {
		return model.Snapshot{}, &model.NotFoundError{What: "access code"}
	}
	if err != nil {
		return model.Snapshot{}, err
	}

	if err := s.checkWindow(candidate, false); err != nil {
		return model.Snapshot{}, err
	}

	if err := s.store.MarkStarted(candidate.ID); err != nil {
		return model.Snapshot{}, err
	}

	return model.Snapshot{
		CandidateID: candidate.ID,
		Email:       candidate.Email,
		WindowStart: candidate.WindowStart,
		WindowEnd:   candidate.WindowEnd,
	}, nil
}

// Submit runs one modality submission: guard, duplicate check, scorer
// call, ledger append + flag flip. The scorer call happens outside the
// per-candidate lock; two racing submissions for the same modality may
// both reach the scorer, but the commit compare-and-set lets only one
// through and the loser's verdict is discarded.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	if !req.Modality.Valid() {
		return "", &model.ValidationError{Msg: fmt.Sprintf("unknown modality %q", req.Modality)}
	}

	unlock := s.locks.lock(req.CandidateID)
	candidate, err := s.store.GetCandidate(req.CandidateID)
	if err == sql.ErrNoRows {
		unlock()
		return "", &model.NotFoundError{What: "candidate"}
	}
	if err != nil {
		unlock()
		return "", err
	}
	if err := s.checkWindow(candidate, true); err != nil {
		unlock()
		return "", err
	}
	if candidate.Done(req.Modality) {
		unlock()
		return "", &model.RejectedError{Reason: duplicateReason(req.Modality)}
	}
	unlock()

	// Slow external call, deliberately not under the lock.
	verdict, err := s.scorer.Score(ctx, scorer.PromptFor(req.Modality), req.Content)
	if err != nil {
		return "", &model.ScorerUnavailableError{Err: err}
	}

	unlock = s.locks.lock(req.CandidateID)
	defer unlock()

	_, err = s.store.CommitSubmission(model.Submission{
		CandidateID: req.CandidateID,
		Modality:    req.Modality,
		Question:    req.Question,
		Answer:      req.Answer,
		Verdict:     verdict,
	})
	if errors.Is(err, store.ErrNotCommitted) {
		return "", s.classifyLostCommit(req.CandidateID, req.Modality)
	}
	if err != nil {
		return "", err
	}

	slog.Info("submission accepted", "candidate_id", req.CandidateID, "modality", req.Modality)
	return verdict, nil
}

// classifyLostCommit distinguishes why a commit compare-and-set matched
// no row: the modality flag was taken by a racing submission, or the
// candidate was finalized in between.
func (s *Service) classifyLostCommit(candidateID int64, m model.Modality) error {
	candidate, err := s.store.GetCandidate(candidateID)
	if err != nil {
		return &model.RejectedError{Reason: duplicateReason(m)}
	}
	if candidate.FinalLocked && !candidate.Done(m) {
		return &model.DeniedError{Reason: model.ReasonFinalSubmitted}
	}
	return &model.RejectedError{Reason: duplicateReason(m)}
}

// Finalize sets the irrevocable final lock. Partial submissions are
// fine: no modality completeness is required.
func (s *Service) Finalize(candidateID int64) error {
	unlock := s.locks.lock(candidateID)
	defer unlock()

	if err := s.CheckAccess(candidateID); err != nil {
		return err
	}

	err := s.store.Finalize(candidateID)
	if errors.Is(err, store.ErrNotCommitted) {
		return &model.RejectedError{Reason: "Already final submitted"}
	}
	if err != nil {
		return err
	}

	slog.Info("candidate finalized", "candidate_id", candidateID)
	return nil
}

// Status returns a candidate's per-modality completion flags.
func (s *Service) Status(candidateID int64) (model.Candidate, error) {
	candidate, err := s.store.GetCandidate(candidateID)
	if err == sql.ErrNoRows {
		return model.Candidate{}, &model.NotFoundError{What: "candidate"}
	}
	return candidate, err
}

// ListAll is the admin read path: every candidate with their ledger in
// sequence order. No guard check; the admin bypasses candidate windows.
func (s *Service) ListAll() (map[int64]model.CandidateReport, error) {
	candidates, err := s.store.ListCandidates()
	if err != nil {
		return nil, err
	}

	reports := make(map[int64]model.CandidateReport, len(candidates))
	for _, c := range candidates {
		subs, err := s.store.ListSubmissions(c.ID)
		if err != nil {
			return nil, err
		}
		reports[c.ID] = model.CandidateReport{
			Email:       c.Email,
			Status:      c.Status,
			WindowStart: c.WindowStart,
			WindowEnd:   c.WindowEnd,
			Answers:     subs,
		}
	}
	return reports, nil
}

// FinalVerdict asks the scorer to synthesize a hiring recommendation
// from the candidate's verdicts in ledger order. An empty ledger short-
// circuits to a fixed message without calling the scorer.
func (s *Service) FinalVerdict(ctx context.Context, candidateID int64) (string, error) {
	if _, err := s.store.GetCandidate(candidateID); err == sql.ErrNoRows {
		return "", &model.NotFoundError{What: "candidate"}
	} else if err != nil {
		return "", err
	}

	verdicts, err := s.store.ListVerdicts(candidateID)
	if err != nil {
		return "", err
	}
	if len(verdicts) == 0 {
		return NoSubmissionsVerdict, nil
	}

	prompt := scorer.BuildSynthesisPrompt(verdicts)
	verdict, err := s.scorer.Score(ctx, prompt, scorer.Content{})
	if err != nil {
		return "", &model.ScorerUnavailableError{Err: err}
	}
	return verdict, nil
}

func duplicateReason(m model.Modality) string {
	switch m {
	case model.ModalityText:
		return "Text already submitted"
	case model.ModalityImage:
		return "Image already submitted"
	case model.ModalityAudio:
		return "Audio already submitted"
	case model.ModalityVideo:
		return "Video already submitted"
	}
	return "Already submitted"
}
