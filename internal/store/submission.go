package store

import "github.com/pavelanni/screener/internal/model"

// ListSubmissions returns a candidate's ledger in insertion order.
func (s *Store) ListSubmissions(candidateID int64) ([]model.Submission, error) {
	rows, err := s.db.Query(
		`SELECT id, candidate_id, modality, question, answer, verdict, created_at
		 FROM submissions WHERE candidate_id = ? ORDER BY id`, candidateID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var subs []model.Submission
	for rows.Next() {
		var sub model.Submission
		if err := rows.Scan(&sub.ID, &sub.CandidateID, &sub.Modality, &sub.Question,
			&sub.Answer, &sub.Verdict, &sub.CreatedAt); err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// ListVerdicts returns only the verdict texts for a candidate, in
// insertion order, for final-verdict synthesis.
func (s *Store) ListVerdicts(candidateID int64) ([]string, error) {
	rows, err := s.db.Query(
		`SELECT verdict FROM submissions WHERE candidate_id = ? ORDER BY id`, candidateID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var verdicts []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		verdicts = append(verdicts, v)
	}
	return verdicts, rows.Err()
}

// SubmissionCount returns the number of ledger rows for a candidate.
func (s *Store) SubmissionCount(candidateID int64) (int, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM submissions WHERE candidate_id = ?`, candidateID,
	).Scan(&count)
	return count, err
}
