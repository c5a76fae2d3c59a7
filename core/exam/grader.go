package exam

import (
	"encoding/json"
	"math"
	"sort"
	"strings"
)

type (
	// GradedItem is the grading of one exam question, persisted as a submission item.
	GradedItem struct {
		QuestionID    string
		Answer        Answer
		AwardedPoints float64
		Graded        bool
	}

	choiceAnswer struct {
		SelectedOptionIndexes []int `json:"selectedOptionIndexes"`
	}

	clozeAnswer struct {
		Blanks map[string]string `json:"blanks"`
	}

	textAnswer struct {
		Text string `json:"text"`
	}
)

// Grade scores answers against the exam questions. It yields exactly one item per exam question,
// in question order; answers to questions outside the exam are ignored.
func Grade(questions []ExamQuestion, answers []AnswerInput, passingScore float64) ([]GradedItem, Result) {
	byQuestion := make(map[string]Answer, len(answers))
	for _, a := range answers {
		byQuestion[a.QuestionID] = a.Answer
	}

	items := make([]GradedItem, 0, len(questions))
	var res Result
	for _, eq := range questions {
		res.MaxScore += eq.Points
		item := GradedItem{QuestionID: eq.QuestionID}
		answer, ok := byQuestion[eq.QuestionID]
		if !ok || answer.IsEmpty() || eq.Question == nil {
			item.Graded = true
		} else {
			item.Answer = answer
			item.AwardedPoints, item.Graded = gradeAnswer(*eq.Question, eq.Points, answer)
		}

		if item.Graded {
			res.GradedItems++
		} else {
			res.PendingItems++
		}
		res.TotalScore += item.AwardedPoints
		items = append(items, item)
	}

	res.TotalScore = round2(res.TotalScore)
	res.MaxScore = round2(res.MaxScore)
	if res.MaxScore > 0 {
		res.Percent = round2(100 * res.TotalScore / res.MaxScore)
	}
	res.Passed = res.Percent >= passingScore
	return items, res
}

// gradeAnswer returns the awarded points and whether the answer could be graded automatically.
func gradeAnswer(q Question, points float64, answer Answer) (float64, bool) {
	switch q.Type {
	case TypeSingleChoice, TypeMultipleChoice:
		var a choiceAnswer
		if err := json.Unmarshal(answer, &a); err != nil {
			return 0, true
		}
		if sameIndexes(a.SelectedOptionIndexes, correctIndexes(q.Choices)) {
			return points, true
		}
		return 0, true

	case TypeCloze:
		var a clozeAnswer
		if err := json.Unmarshal(answer, &a); err != nil {
			return 0, true
		}
		accepted := make(map[string][]string)
		for _, c := range q.Choices {
			accepted[c.Value] = append(accepted[c.Value], c.Text)
		}
		if len(accepted) == 0 {
			return 0, true
		}
		var correct int
		for blank, texts := range accepted {
			if matchesAny(a.Blanks[blank], texts) {
				correct++
			}
		}
		return round2(points * float64(correct) / float64(len(accepted))), true

	case TypeShortAnswer:
		if len(q.Choices) == 0 {
			return 0, false
		}
		var a textAnswer
		if err := json.Unmarshal(answer, &a); err != nil {
			return 0, true
		}
		texts := make([]string, len(q.Choices))
		for i, c := range q.Choices {
			texts[i] = c.Text
		}
		if matchesAny(a.Text, texts) {
			return points, true
		}
		return 0, true
	}

	// essays wait for a teacher
	return 0, false
}

func correctIndexes(choices Choices) []int {
	idx := make([]int, 0, len(choices))
	for i, c := range choices {
		if c.IsCorrect {
			idx = append(idx, i)
		}
	}
	return idx
}

// sameIndexes compares index sets, ignoring order and duplicates.
func sameIndexes(a, b []int) bool {
	set := func(s []int) []int {
		seen := make(map[int]bool, len(s))
		out := make([]int, 0, len(s))
		for _, v := range s {
			if !seen[v] {
				seen[v] = true
				out = append(out, v)
			}
		}
		sort.Ints(out)
		return out
	}
	sa, sb := set(a), set(b)
	if len(sa) != len(sb) {
		return false
	}
	for i := range sa {
		if sa[i] != sb[i] {
			return false
		}
	}
	return true
}

func matchesAny(given string, accepted []string) bool {
	given = strings.TrimSpace(given)
	if given == "" {
		return false
	}
	for _, acc := range accepted {
		if strings.EqualFold(given, strings.TrimSpace(acc)) {
			return true
		}
	}
	return false
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
