package model

import (
	"fmt"
	"time"
)

// UserRole represents a user's access level on the platform.
type UserRole string

const (
	// UserRoleUser is a regular user.
	UserRoleUser UserRole = "user"
	// UserRoleAdmin is an admin user.
	UserRoleAdmin UserRole = "admin"
	// UserRoleSuperadmin is a superadmin user.
	UserRoleSuperadmin UserRole = "superadmin"
)

// Plan represents a subscription tier.
type Plan string

const (
	PlanFree       Plan = "free"
	PlanPro        Plan = "pro"
	PlanEnterprise Plan = "enterprise"
)

// User is the identity record returned by login/signup and persisted locally.
// A nil *User means unauthenticated.
type User struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Name          string    `json:"username"`
	Role          UserRole  `json:"role"`
	Plan          Plan      `json:"plan"`
	EmailVerified bool      `json:"emailVerified"`
	AvatarURL     string    `json:"profileImageUrl,omitempty"`
	Bio           string    `json:"bio,omitempty"`
	JoinedAt      time.Time `json:"createdAt,omitzero"`
	Language      string    `json:"language,omitempty"`
	Timezone      string    `json:"timezone,omitempty"`
	AccessToken   string    `json:"accessToken,omitempty"`
	RefreshToken  string    `json:"refreshToken,omitempty"`
}

// ProfileUpdate carries a partial profile edit. Nil fields are left unchanged.
type ProfileUpdate struct {
	Name      *string `json:"username,omitempty"`
	Bio       *string `json:"bio,omitempty"`
	AvatarURL *string `json:"profileImageUrl,omitempty"`
	Language  *string `json:"language,omitempty"`
	Timezone  *string `json:"timezone,omitempty"`
}

// BlockType represents a summary content block kind.
type BlockType string

const (
	BlockHeading   BlockType = "heading"
	BlockParagraph BlockType = "paragraph"
	BlockList      BlockType = "list"
	BlockCode      BlockType = "code"
)

// ContentBlock is one typed block of the exam's content summary.
type ContentBlock struct {
	Type  BlockType `json:"type"`
	Text  string    `json:"text,omitempty"`
	Items []string  `json:"items,omitempty"`
}

// Question is a single multiple-choice question.
//
// CorrectAnswer is only populated in non-authoritative contexts and is used
// solely for degraded local scoring when submission fails. Authoritative
// correctness always comes from the submit response.
type Question struct {
	ID            string   `json:"id"`
	Text          string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer *int     `json:"correctAnswer,omitempty"`
}

// Exam is the content and question set fetched for one attempt.
type Exam struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	Summary      []ContentBlock `json:"summary"`
	TimerMinutes int            `json:"timerMinutes"`
	Questions    []Question     `json:"questions"`
}

// Validate checks the structural invariants of a fetched exam: unique
// question IDs, non-empty option lists, and in-range CorrectAnswer indices.
func (e *Exam) Validate() error {
	if len(e.Questions) == 0 {
		return fmt.Errorf("exam %q has no questions", e.Title)
	}
	seen := make(map[string]struct{}, len(e.Questions))
	for i, q := range e.Questions {
		if q.ID == "" {
			return fmt.Errorf("question %d has no id", i)
		}
		if _, dup := seen[q.ID]; dup {
			return fmt.Errorf("duplicate question id %q", q.ID)
		}
		seen[q.ID] = struct{}{}
		if len(q.Options) == 0 {
			return fmt.Errorf("question %q has no options", q.ID)
		}
		if q.CorrectAnswer != nil && (*q.CorrectAnswer < 0 || *q.CorrectAnswer >= len(q.Options)) {
			return fmt.Errorf("question %q: correct answer %d out of range", q.ID, *q.CorrectAnswer)
		}
	}
	return nil
}

// AnswerPair is one entry of the ordered submission payload.
type AnswerPair struct {
	QuestionID string `json:"questionId"`
	Answer     int    `json:"answer"`
}

// ExamResult is the server-authoritative outcome of a submission.
type ExamResult struct {
	ExamID         string         `json:"examId"`
	ExamTitle      string         `json:"examTitle"`
	Score          float64        `json:"score"`
	CorrectAnswers int            `json:"correctAnswers"`
	TotalQuestions int            `json:"totalQuestions"`
	Percentage     int            `json:"percentage"`
	Solutions      map[string]int `json:"solutions"`
}

// Attempt is one locally recorded exam attempt shown in the history view.
type Attempt struct {
	ID             int64
	ExamID         string
	ExamTitle      string
	Score          float64
	CorrectAnswers int
	TotalQuestions int
	Percentage     int
	TakenAt        time.Time
}

// Visibility controls who can discover a generated exam.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)
