package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/owulveryck/nexushealth/agents/orchestrator"
	"github.com/owulveryck/nexushealth/agents/orchestrator/state"
	"github.com/owulveryck/nexushealth/internal/cli"
)

func renderResult(out *cli.Printer, res *orchestrator.Result, verbose bool) {
	for _, name := range res.Tools {
		out.Success("Found agent: %s", name)
	}
	if verbose {
		out.Heading("Plan")
		for i, s := range res.Steps {
			out.Plain(fmt.Sprintf("%d. %s %s %s", i+1, stepMark(s.Status), color.CyanString(s.Tool), s.Question))
			if s.Status != state.StepAnswered {
				out.Plain("   " + color.HiBlackString("%s", stepDetail(s)))
			}
		}
	}

	out.Heading("Orchestrator's Final Answer")
	out.Plain(res.Answer)
	out.Plain(color.HiBlackString("run %s, status %s", res.RunID, res.Status))
}

func stepMark(status string) string {
	switch status {
	case state.StepAnswered:
		return color.GreenString("✓")
	case state.StepSkipped:
		return color.YellowString("-")
	default:
		return color.RedString("✗")
	}
}

func stepDetail(s orchestrator.StepResult) string {
	if s.SkipReason != "" {
		return "skipped: " + strings.ReplaceAll(s.SkipReason, "_", " ")
	}
	if s.Err != nil {
		return fmt.Sprintf("failed after %d attempt(s): %v", s.Attempts, s.Err)
	}
	return s.Status
}

func renderRuns(out *cli.Printer, runs []*state.Run) {
	if len(runs) == 0 {
		out.Plain("No runs recorded.")
		return
	}
	out.Heading("Recent runs")
	for _, r := range runs {
		out.Plain(fmt.Sprintf("%s  %s  %-14s %6s  %s",
			color.CyanString(r.ID),
			r.StartedAt.Format(time.DateTime),
			r.Status,
			r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond),
			truncate(r.Query, 60),
		))
	}
}

func renderRun(out *cli.Printer, r *state.Run) {
	out.Heading("Run " + r.ID)
	out.Plain("Query:   " + r.Query)
	out.Plain("Status:  " + r.Status)
	out.Plain("Started: " + r.StartedAt.Format(time.DateTime))
	out.Plain("Tools:   " + strings.Join(r.Tools, ", "))
	for i, s := range r.Steps {
		line := fmt.Sprintf("%d. %s %s %s (%d attempt(s), %s)", i+1, stepMark(s.Status), s.Tool, s.Question,
			s.Attempts, s.Duration.Round(time.Millisecond))
		out.Plain(line)
		if s.Error != "" {
			kind := s.ErrorKind
			if kind == "" {
				kind = "skipped"
			}
			out.Plain("   " + color.HiBlackString("%s: %s", kind, s.Error))
		}
	}
	out.Heading("Answer")
	out.Plain(r.Answer)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
