package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/spf13/cobra"

	"github.com/scriptbloxx/brainsift-cli/internal/exam"
	appI18n "github.com/scriptbloxx/brainsift-cli/internal/i18n"
	"github.com/scriptbloxx/brainsift-cli/internal/model"
)

func generateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate an exam from a file or inline text",
		RunE:  runGenerate,
	}
	f := cmd.Flags()
	f.StringP("title", "t", "", "Exam title")
	f.StringP("file", "f", "", "Source document to generate questions from")
	f.String("text", "", "Inline source text instead of a file")
	f.Int("timer", 30, "Time limit in minutes")
	f.IntP("questions", "q", 10, "Number of questions to generate")
	f.StringSlice("tags", nil, "Tags for discoverability (repeatable)")
	f.String("visibility", "private", "Exam visibility (public, private)")
	addCommonFlags(f)
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer e.close()

	form := model.GenerateForm{
		Title:         e.v.GetString("title"),
		TimerMinutes:  e.v.GetInt("timer"),
		QuestionCount: e.v.GetInt("questions"),
		Tags:          e.v.GetStringSlice("tags"),
		Visibility:    model.Visibility(e.v.GetString("visibility")),
		FilePath:      e.v.GetString("file"),
		Text:          e.v.GetString("text"),
	}
	if err := form.Validate(); err != nil {
		return err
	}

	var upload io.Reader
	if form.FilePath != "" {
		f, err := os.Open(form.FilePath)
		if err != nil {
			return fmt.Errorf("open source file: %w", err)
		}
		defer f.Close()
		upload = f
	}

	examID, err := e.client.GenerateExam(cmd.Context(), form, upload)
	if err != nil {
		// No automatic retry; the command exits and can simply be re-run.
		fmt.Fprintln(cmd.ErrOrStderr(), appI18n.Td("GenerateFailed", map[string]any{"Error": err.Error()}))
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), appI18n.Td("GenerateSuccess", map[string]any{"ExamID": examID}))
	return nil
}

func takeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "take <exam-id>",
		Short: "Take an exam interactively",
		Args:  cobra.ExactArgs(1),
		RunE:  runTake,
	}
	addCommonFlags(cmd.Flags())
	return cmd
}

func runTake(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer e.close()

	out := cmd.OutOrStdout()
	in := bufio.NewScanner(cmd.InOrStdin())

	sess := exam.NewSession(e.client, args[0])
	if err := sess.Begin(cmd.Context()); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), appI18n.T("ExamLoadFailed"))
		return err
	}

	ex := sess.Exam()
	fmt.Fprintf(out, "\n%s\n\n", ex.Title)
	renderSummary(out, ex.Summary)
	fmt.Fprintf(out, "\n%d questions, %s total.\n", len(ex.Questions), exam.FormatRemaining(ex.TimerMinutes*60))
	fmt.Fprintln(out, appI18n.T("SummaryHeading"))
	if !in.Scan() {
		return nil
	}
	if err := sess.Acknowledge(); err != nil {
		return err
	}

	// The scanner blocks between prompts, so expiry is announced out of
	// band and picked up on the next state check.
	var manualSubmit atomic.Bool
	go func() {
		<-sess.Done()
		if !manualSubmit.Load() {
			fmt.Fprintln(out, "\n"+appI18n.T("TimeUp"))
		}
	}()

	for sess.State() == exam.StateAnswering {
		renderQuestion(out, sess)
		fmt.Fprintf(out, "[%s] %s\n> ", exam.FormatRemaining(sess.Remaining()), appI18n.T("PromptAnswer"))
		if !in.Scan() {
			break
		}
		if sess.State() != exam.StateAnswering {
			break
		}
		input := strings.TrimSpace(in.Text())
		switch {
		case input == "n":
			if err := sess.Next(); errors.Is(err, exam.ErrNotAnswered) {
				fmt.Fprintln(out, appI18n.T("AnswerRequired"))
			}
		case input == "p":
			_ = sess.Previous()
		case input == "s":
			manualSubmit.Store(true)
			if err := sess.Submit(cmd.Context()); errors.Is(err, exam.ErrIncomplete) {
				manualSubmit.Store(false)
				fmt.Fprintln(out, appI18n.T("ExamIncomplete"))
			}
		case input == "q":
			return nil
		default:
			n, err := strconv.Atoi(input)
			if err != nil {
				continue
			}
			q := sess.CurrentQuestion()
			if err := sess.SelectAnswer(q.ID, n-1); err != nil {
				fmt.Fprintf(out, "invalid option %q\n", input)
			}
		}
	}

	if sess.State() == exam.StateCompleted {
		renderResult(out, in, sess)
	}
	if res := sess.Result(); res != nil {
		if err := e.state.RecordAttempt(res); err != nil {
			return fmt.Errorf("record attempt: %w", err)
		}
	}
	return nil
}

func renderSummary(out io.Writer, blocks []model.ContentBlock) {
	for _, b := range blocks {
		switch b.Type {
		case model.BlockHeading:
			fmt.Fprintf(out, "## %s\n", b.Text)
		case model.BlockList:
			for _, item := range b.Items {
				fmt.Fprintf(out, "  - %s\n", item)
			}
		case model.BlockCode:
			fmt.Fprintf(out, "    %s\n", strings.ReplaceAll(b.Text, "\n", "\n    "))
		default:
			fmt.Fprintln(out, b.Text)
		}
	}
}

func renderQuestion(out io.Writer, sess *exam.Session) {
	q := sess.CurrentQuestion()
	ex := sess.Exam()
	fmt.Fprintf(out, "\nQuestion %d/%d: %s\n", sess.CurrentIndex()+1, len(ex.Questions), q.Text)
	selected, answered := sess.SelectedAnswer()
	for i, opt := range q.Options {
		marker := " "
		if answered && i == selected {
			marker = "*"
		}
		fmt.Fprintf(out, " %s %d) %s\n", marker, i+1, opt)
	}
}

func renderResult(out io.Writer, in *bufio.Scanner, sess *exam.Session) {
	fmt.Fprintln(out)
	if res := sess.Result(); res != nil {
		fmt.Fprintln(out, appI18n.Td("ResultSummary", map[string]any{
			"Correct": res.CorrectAnswers, "Total": res.TotalQuestions,
		}))
		fmt.Fprintf(out, "%d%%\n", res.Percentage)
	} else if local := sess.LocalResult(); local != nil {
		fmt.Fprintln(out, appI18n.T("SubmitFailed"))
		fmt.Fprintln(out, appI18n.Td("ResultSummary", map[string]any{
			"Correct": local.Correct, "Total": local.Total,
		}))
		fmt.Fprintf(out, "%d%%\n", local.Percentage)
	}

	fmt.Fprint(out, "\nShow the answer key? (y/N) ")
	if in.Scan() && strings.EqualFold(strings.TrimSpace(in.Text()), "y") {
		sess.ToggleAnswerKey()
		renderAnswerKey(out, sess)
	}
}

func renderAnswerKey(out io.Writer, sess *exam.Session) {
	ex := sess.Exam()
	var solutions map[string]int
	if res := sess.Result(); res != nil {
		solutions = res.Solutions
	}
	for i, q := range ex.Questions {
		correct := -1
		if idx, ok := solutions[q.ID]; ok {
			correct = idx
		} else if q.CorrectAnswer != nil {
			correct = *q.CorrectAnswer
		}
		if correct >= 0 && correct < len(q.Options) {
			fmt.Fprintf(out, "%d. %s\n   -> %s\n", i+1, q.Text, q.Options[correct])
		} else {
			fmt.Fprintf(out, "%d. %s\n   -> (no answer key available)\n", i+1, q.Text)
		}
	}
}

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List locally recorded exam attempts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			attempts, err := e.state.ListAttempts()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(attempts) == 0 {
				fmt.Fprintln(out, appI18n.T("NoAttempts"))
				return nil
			}
			for _, a := range attempts {
				fmt.Fprintf(out, "%s  %-30s %3d%%  (%d/%d)\n",
					a.TakenAt.Format("2006-01-02 15:04"), a.ExamTitle, a.Percentage, a.CorrectAnswers, a.TotalQuestions)
			}
			return nil
		},
	}
	addCommonFlags(cmd.Flags())
	return cmd
}
