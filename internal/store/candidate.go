package store

import (
	"time"

	"github.com/pavelanni/screener/internal/model"
)

const candidateColumns = `id, email, access_code, test_start, test_end, status,
	text_done, image_done, audio_done, video_done, final_locked, created_at`

// CreateCandidate inserts a new candidate record. Returns ErrConflict
// if the email or access code is already taken.
func (s *Store) CreateCandidate(email, accessCode string, windowStart, windowEnd time.Time) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO candidates (email, access_code, test_start, test_end, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		email, accessCode, windowStart, windowEnd, model.StatusInvited, time.Now(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrConflict
		}
		return 0, err
	}
	return res.LastInsertId()
}

func scanCandidate(row interface{ Scan(...any) error }) (model.Candidate, error) {
	var c model.Candidate
	err := row.Scan(&c.ID, &c.Email, &c.AccessCode, &c.WindowStart, &c.WindowEnd, &c.Status,
		&c.TextDone, &c.ImageDone, &c.AudioDone, &c.VideoDone, &c.FinalLocked, &c.CreatedAt)
	return c, err
}

// GetCandidate returns a candidate by ID. sql.ErrNoRows passes through.
func (s *Store) GetCandidate(id int64) (model.Candidate, error) {
	return scanCandidate(s.db.QueryRow(
		`SELECT `+candidateColumns+` FROM candidates WHERE id = ?`, id,
	))
}

// GetCandidateByCode returns a candidate by access code.
func (s *Store) GetCandidateByCode(code string) (model.Candidate, error) {
	return scanCandidate(s.db.QueryRow(
		`SELECT `+candidateColumns+` FROM candidates WHERE access_code = ?`, code,
	))
}

// ListCandidates returns all candidates, newest first (the admin
// dashboard order).
func (s *Store) ListCandidates() ([]model.Candidate, error) {
	rows, err := s.db.Query(`SELECT ` + candidateColumns + ` FROM candidates ORDER BY id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var candidates []model.Candidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

// MarkStarted transitions Invited -> Started. Redeeming an already
// started candidate matches no row, which keeps redemption idempotent.
func (s *Store) MarkStarted(id int64) error {
	_, err := s.db.Exec(
		`UPDATE candidates SET status = ? WHERE id = ? AND status = ?`,
		model.StatusStarted, id, model.StatusInvited,
	)
	return err
}

// MarkExpired flips a non-terminal, unlocked candidate to TimeExpired.
func (s *Store) MarkExpired(id int64) error {
	_, err := s.db.Exec(
		`UPDATE candidates SET status = ? WHERE id = ? AND final_locked = 0 AND status IN (?, ?)`,
		model.StatusTimeExpired, id, model.StatusInvited, model.StatusStarted,
	)
	return err
}

// Finalize sets the irrevocable lock: status Submitted, final_locked 1.
// The WHERE clause is the compare-and-set; a second finalize matches no
// row and returns ErrNotCommitted.
func (s *Store) Finalize(id int64) error {
	res, err := s.db.Exec(
		`UPDATE candidates SET status = ?, final_locked = 1 WHERE id = ? AND final_locked = 0`,
		model.StatusSubmitted, id,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotCommitted
	}
	return nil
}

// CommitSubmission atomically flips the modality flag and appends the
// ledger row in one transaction. The flag UPDATE carries the
// compare-and-set (flag still unset, candidate not final-locked); when
// it matches no row the transaction rolls back and ErrNotCommitted is
// returned, so at most one submission per (candidate, modality) ever
// exists regardless of how many racing requests reached the scorer.
func (s *Store) CommitSubmission(sub model.Submission) (int64, error) {
	col, err := flagColumn(sub.Modality)
	if err != nil {
		return 0, err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`UPDATE candidates SET `+col+` = 1 WHERE id = ? AND `+col+` = 0 AND final_locked = 0`,
		sub.CandidateID,
	)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, ErrNotCommitted
	}

	ins, err := tx.Exec(
		`INSERT INTO submissions (candidate_id, modality, question, answer, verdict, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sub.CandidateID, sub.Modality, sub.Question, sub.Answer, sub.Verdict, time.Now(),
	)
	if err != nil {
		return 0, err
	}
	id, err := ins.LastInsertId()
	if err != nil {
		return 0, err
	}

	return id, tx.Commit()
}
