package model

import "errors"

// Answer is the student's current answer for one question.
// Exactly one of the two fields is set: ChosenOptionID for CHOICE
// questions, WrittenText for FREE_TEXT questions.
type Answer struct {
	ChosenOptionID *int64  `json:"chosen_option_id,omitempty"`
	WrittenText    *string `json:"written_text,omitempty"`
}

// Validate checks the exactly-one-field invariant.
func (a Answer) Validate() error {
	if a.ChosenOptionID == nil && a.WrittenText == nil {
		return errors.New("answer carries neither an option nor a text")
	}
	if a.ChosenOptionID != nil && a.WrittenText != nil {
		return errors.New("answer carries both an option and a text")
	}
	return nil
}

// SubmittedAnswer is one entry of the submission payload sent to the
// center backend, ordered by question display order.
type SubmittedAnswer struct {
	QuestionID     int64   `json:"question_id"`
	ChosenOptionID *int64  `json:"chosen_option_id,omitempty"`
	WrittenText    *string `json:"written_text,omitempty"`
}
