package main

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/trezcool/learninghub/core"
	"github.com/trezcool/learninghub/core/exam"
	"github.com/trezcool/learninghub/core/identity"
)

// questionDoc is one entry of an import file:
//
//	- title: Capital of France
//	  body: Which city is the capital of France?
//	  type: single_choice
//	  difficulty: 1
//	  tags: [geography]
//	  choices:
//	    - text: Paris
//	      correct: true
//	    - text: Lyon
type questionDoc struct {
	Title      string   `yaml:"title"`
	Body       string   `yaml:"body"`
	Type       string   `yaml:"type"`
	Difficulty *int     `yaml:"difficulty"`
	Tags       []string `yaml:"tags"`
	Choices    []struct {
		Text    string `yaml:"text"`
		Correct bool   `yaml:"correct"`
		Value   string `yaml:"value"`
	} `yaml:"choices"`
}

func (d questionDoc) newQuestion() exam.NewQuestion {
	nq := exam.NewQuestion{
		Title:      d.Title,
		Body:       d.Body,
		Type:       d.Type,
		Difficulty: d.Difficulty,
		Tags:       d.Tags,
	}
	for _, c := range d.Choices {
		nq.Choices = append(nq.Choices, exam.Choice{Text: c.Text, IsCorrect: c.Correct, Value: c.Value})
	}
	return nq
}

// importQuestions validates every question of file before creating any of them.
func (cli *commandLine) importQuestions(file, authorEmail string) error {
	ctx := context.Background()

	author, err := cli.usrRepo.GetUserByEmail(ctx, core.CleanString(authorEmail, true /* lower */))
	if err != nil {
		return err
	}
	if !(author.IsAdmin() || author.IsTeacher()) {
		return errors.Errorf("%s is not a Teacher or an Admin", author.Email)
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	var docs []questionDoc
	if err = yaml.Unmarshal(data, &docs); err != nil {
		return errors.Wrapf(err, "parsing %s", file)
	}

	questions := make([]exam.NewQuestion, 0, len(docs))
	for i, doc := range docs {
		nq := doc.newQuestion()
		if err = nq.Validate(cli.validate); err != nil {
			return errors.Wrapf(err, "question #%d (%q)", i+1, doc.Title)
		}
		questions = append(questions, nq)
	}

	principal := identity.Principal{
		Sub:         author.CognitoSub,
		Email:       author.Email,
		RoleID:      author.RoleID,
		RoleName:    author.RoleName,
		LocalUserID: author.ID,
	}
	for _, nq := range questions {
		if _, err = cli.examSvc.CreateQuestion(ctx, principal, nq); err != nil {
			return err
		}
	}
	fmt.Fprintf(cli.out, "imported %d questions for %s\n", len(questions), author.Email)
	return nil
}
