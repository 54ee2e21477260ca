package engine_test

import (
	"testing"

	"github.com/lesprima/attempt-service/internal/engine"
	"github.com/lesprima/attempt-service/internal/model"
)

func choiceExam() *model.ExamDefinition {
	return &model.ExamDefinition{
		ID:                1,
		Title:             "Matematika Dasar",
		TimeBudgetSeconds: 600,
		Questions: []model.Question{
			{
				ID: 10, Order: 1, Text: "2+2?", Kind: model.QuestionKindChoice,
				Options: []model.Option{{ID: 100, Text: "3"}, {ID: 101, Text: "4"}},
			},
			{
				ID: 11, Order: 2, Text: "Jelaskan.", Kind: model.QuestionKindFreeText,
			},
		},
	}
}

func optID(v int64) *int64 { return &v }
func text(v string) *string { return &v }

func TestBufferSetAndOverwrite(t *testing.T) {
	b := engine.NewBuffer(choiceExam())

	if err := b.Set(10, model.Answer{ChosenOptionID: optID(100)}); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if err := b.Set(10, model.Answer{ChosenOptionID: optID(101)}); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}

	ans, ok := b.Get(10)
	if !ok || *ans.ChosenOptionID != 101 {
		t.Fatalf("expected last write to win, got %+v", ans)
	}
	if b.Len() != 1 {
		t.Fatalf("expected 1 answer, got %d", b.Len())
	}
}

func TestBufferRejectsInvalidAnswers(t *testing.T) {
	b := engine.NewBuffer(choiceExam())

	cases := []struct {
		name       string
		questionID int64
		ans        model.Answer
		want       error
	}{
		{"unknown question", 99, model.Answer{ChosenOptionID: optID(100)}, engine.ErrUnknownQuestion},
		{"unknown option", 10, model.Answer{ChosenOptionID: optID(999)}, engine.ErrUnknownOption},
		{"text for choice", 10, model.Answer{WrittenText: text("empat")}, engine.ErrAnswerShape},
		{"option for free text", 11, model.Answer{ChosenOptionID: optID(100)}, engine.ErrAnswerShape},
		{"both fields", 10, model.Answer{ChosenOptionID: optID(100), WrittenText: text("4")}, engine.ErrAnswerShape},
		{"neither field", 10, model.Answer{}, engine.ErrAnswerShape},
	}

	for _, tc := range cases {
		if err := b.Set(tc.questionID, tc.ans); err != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}

	if b.Len() != 0 {
		t.Fatalf("rejected answers must not modify the buffer, got %d entries", b.Len())
	}
}

func TestBufferSnapshotIsolation(t *testing.T) {
	b := engine.NewBuffer(choiceExam())
	if err := b.Set(10, model.Answer{ChosenOptionID: optID(100)}); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	snap := b.Snapshot()

	if err := b.Set(10, model.Answer{ChosenOptionID: optID(101)}); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if err := b.Set(11, model.Answer{WrittenText: text("karena")}); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	if len(snap) != 1 {
		t.Fatalf("snapshot grew after later writes: %d entries", len(snap))
	}
	if *snap[10].ChosenOptionID != 100 {
		t.Fatalf("snapshot mutated by later write: %+v", snap[10])
	}
}

func TestBufferRestore(t *testing.T) {
	b := engine.NewBuffer(choiceExam())
	saved := map[int64]model.Answer{
		10: {ChosenOptionID: optID(101)},
		11: {WrittenText: text("jawaban")},
	}
	if err := b.Restore(saved); err != nil {
		t.Fatalf("restore failed: %v", err)
	}
	if b.Len() != 2 {
		t.Fatalf("expected 2 restored answers, got %d", b.Len())
	}

	bad := map[int64]model.Answer{99: {ChosenOptionID: optID(1)}}
	if err := engine.NewBuffer(choiceExam()).Restore(bad); err != engine.ErrUnknownQuestion {
		t.Fatalf("expected unknown question error, got %v", err)
	}
}
