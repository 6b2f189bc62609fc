package model

import "time"

// CandidateStatus represents a candidate's lifecycle state.
type CandidateStatus string

const (
	// StatusInvited means the candidate has a code but has not redeemed it.
	StatusInvited CandidateStatus = "Invited"
	// StatusStarted means the candidate redeemed the code inside the window.
	StatusStarted CandidateStatus = "Started"
	// StatusTimeExpired means a guarded call observed the window end.
	StatusTimeExpired CandidateStatus = "TimeExpired"
	// StatusSubmitted is terminal: the candidate finalized the assessment.
	StatusSubmitted CandidateStatus = "Submitted"
)

// Terminal reports whether the status accepts no further transitions
// on the write path.
func (s CandidateStatus) Terminal() bool {
	return s == StatusTimeExpired || s == StatusSubmitted
}

// Modality is one of the four independently submittable answer types.
type Modality string

const (
	ModalityText  Modality = "text"
	ModalityImage Modality = "image"
	ModalityAudio Modality = "audio"
	ModalityVideo Modality = "video"
)

// Modalities lists all modalities in canonical order.
var Modalities = []Modality{ModalityText, ModalityImage, ModalityAudio, ModalityVideo}

// Valid reports whether m names a known modality.
func (m Modality) Valid() bool {
	switch m {
	case ModalityText, ModalityImage, ModalityAudio, ModalityVideo:
		return true
	}
	return false
}

// Candidate is one invited candidate and their submission flags.
type Candidate struct {
	ID          int64           `json:"id"`
	Email       string          `json:"email"`
	AccessCode  string          `json:"-"`
	WindowStart time.Time       `json:"test_start"`
	WindowEnd   time.Time       `json:"test_end"`
	Status      CandidateStatus `json:"status"`
	TextDone    bool            `json:"text_done"`
	ImageDone   bool            `json:"image_done"`
	AudioDone   bool            `json:"audio_done"`
	VideoDone   bool            `json:"video_done"`
	FinalLocked bool            `json:"final_locked"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Done returns the completion flag for the given modality.
func (c Candidate) Done(m Modality) bool {
	switch m {
	case ModalityText:
		return c.TextDone
	case ModalityImage:
		return c.ImageDone
	case ModalityAudio:
		return c.AudioDone
	case ModalityVideo:
		return c.VideoDone
	}
	return false
}

// Submission is one accepted answer and its scorer verdict. Rows are
// append-only; ID doubles as the per-insertion sequence used for
// chronological aggregation.
type Submission struct {
	ID          int64     `json:"id"`
	CandidateID int64     `json:"candidate_id"`
	Modality    Modality  `json:"modality"`
	Question    string    `json:"question"`
	Answer      string    `json:"answer"`
	Verdict     string    `json:"ai_result"`
	CreatedAt   time.Time `json:"created_at"`
}

// Snapshot is what a successful code redemption returns to the client.
type Snapshot struct {
	CandidateID int64     `json:"user_id"`
	Email       string    `json:"email"`
	WindowStart time.Time `json:"test_start"`
	WindowEnd   time.Time `json:"test_end"`
}

// AdminUser is a reviewer account.
type AdminUser struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// AuthSession is an admin login session.
type AuthSession struct {
	ID        string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

// CandidateReport is the admin view of one candidate with their ledger
// in sequence order.
type CandidateReport struct {
	Email       string          `json:"email"`
	Status      CandidateStatus `json:"status"`
	WindowStart time.Time       `json:"test_start"`
	WindowEnd   time.Time       `json:"test_end"`
	Answers     []Submission    `json:"answers"`
}
