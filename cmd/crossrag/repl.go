package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"github.com/xhad/crossrag/internal/models"
	"github.com/xhad/crossrag/pkg/config"
	"github.com/xhad/crossrag/pkg/export"
	"github.com/xhad/crossrag/pkg/history"
	"github.com/xhad/crossrag/pkg/query"
)

var errExit = errors.New("exit")

// querier is the orchestrator surface the REPL drives.
type querier interface {
	Validate(req query.Request) (query.Request, error)
	Run(ctx context.Context, req query.Request, observer query.Observer) (*query.Response, error)
	Rerun(ctx context.Context, i int, req query.Request, observer query.Observer) (*query.Response, error)
	History() []models.HistoryEntry
	ClearCache(ctx context.Context) error
	Stats(ctx context.Context) query.Stats
	Templates() []models.Template
	Template(name string) (models.Template, bool)
}

type session struct {
	q      querier
	status config.Status
	out    io.Writer

	// request carries the sticky settings applied to every query.
	request query.Request
	last    *query.Response
	spinner bool
}

func newSession(q querier, status config.Status, out io.Writer) *session {
	return &session{
		q:       q,
		status:  status,
		out:     out,
		request: query.Request{Mode: models.ModeDual},
		spinner: true,
	}
}

var (
	heading = color.New(color.FgCyan, color.Bold)
	okText  = color.New(color.FgGreen)
	errText = color.New(color.FgRed)
	dimText = color.New(color.FgHiBlack)
	prompt  = color.New(color.FgGreen)
)

func getSpinner(out io.Writer, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionClearOnFinish(),
	)
}

// loop reads lines until EOF or exit.
func (s *session) loop(ctx context.Context, in io.Reader) error {
	heading.Fprintln(s.out, "\nCross-RAG query (type :help for commands, 'exit' to quit)")
	s.printStatus()

	scanner := bufio.NewScanner(in)
	for {
		prompt.Fprintf(s.out, "\n[%s] > ", s.request.Mode.Label())
		if !scanner.Scan() {
			return scanner.Err()
		}
		err := s.handle(ctx, scanner.Text())
		if errors.Is(err, errExit) {
			return nil
		}
		if err != nil {
			errText.Fprintf(s.out, "Error: %v\n", err)
		}
	}
}

// handle runs one input line.
func (s *session) handle(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return nil
	case line == "exit" || line == "quit":
		return errExit
	case !strings.HasPrefix(line, ":"):
		req := s.request
		req.Query = line
		return s.run(ctx, func(obs query.Observer) (*query.Response, error) {
			return s.q.Run(ctx, req, obs)
		})
	}

	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case ":help":
		s.printHelp()
	case ":mode":
		return s.setMode(args)
	case ":count":
		return s.setCount(args)
	case ":threshold":
		return s.setThreshold(args)
	case ":method":
		return s.setMethod(args)
	case ":history":
		s.printHistory()
	case ":rerun":
		if len(args) != 1 {
			return fmt.Errorf("usage: :rerun <n>")
		}
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return fmt.Errorf("history number must be a positive integer")
		}
		return s.run(ctx, func(obs query.Observer) (*query.Response, error) {
			return s.q.Rerun(ctx, n-1, s.request, obs)
		})
	case ":template", ":templates":
		if len(args) == 0 {
			s.printTemplates()
			return nil
		}
		t, ok := s.q.Template(strings.Join(args, " "))
		if !ok {
			return fmt.Errorf("no template named %q", strings.Join(args, " "))
		}
		req := s.request
		req.Query = t.Query
		return s.run(ctx, func(obs query.Observer) (*query.Response, error) {
			return s.q.Run(ctx, req, obs)
		})
	case ":clear-cache":
		if err := s.q.ClearCache(ctx); err != nil {
			return err
		}
		okText.Fprintln(s.out, "✓ Cache cleared")
	case ":stats":
		s.printStats(ctx)
	case ":export":
		return s.export(args)
	case ":status":
		s.printStatus()
	default:
		return fmt.Errorf("unknown command %s (try :help)", cmd)
	}
	return nil
}

func (s *session) run(ctx context.Context, do func(query.Observer) (*query.Response, error)) error {
	var (
		spinner  *progressbar.ProgressBar
		streamed bool
	)
	observer := func(e query.Event) {
		if e.Stage == query.StageChunk {
			if !streamed {
				if spinner != nil {
					spinner.Finish()
					fmt.Fprint(s.out, "\r")
					spinner = nil
				}
				heading.Fprintln(s.out, "\n═══ Contradiction Analysis ═══")
				streamed = true
			}
			fmt.Fprint(s.out, e.Message)
			return
		}
		line := fmt.Sprintf("%s: %s", e.Source, e.Stage)
		if e.Message != "" {
			line += " (" + e.Message + ")"
		}
		if spinner != nil {
			spinner.Describe(color.CyanString(line))
			spinner.Add(1)
			return
		}
		dimText.Fprintln(s.out, line)
	}
	if s.spinner {
		spinner = getSpinner(s.out, "🔍 Querying...")
	}

	resp, err := do(observer)
	if spinner != nil {
		spinner.Finish()
		fmt.Fprint(s.out, "\r")
	}
	if err != nil {
		return err
	}

	s.last = resp
	s.printResponse(resp, streamed)
	return nil
}

func (s *session) setMode(args []string) error {
	if len(args) == 0 {
		for _, m := range models.Modes() {
			marker := " "
			if m == s.request.Mode {
				marker = "*"
			}
			fmt.Fprintf(s.out, "%s %-15s %s\n", marker, m, m.Label())
		}
		return nil
	}
	mode, err := models.ParseMode(strings.Join(args, " "))
	if err != nil {
		return err
	}
	s.request.Mode = mode
	okText.Fprintf(s.out, "✓ Mode: %s\n", mode.Label())
	return nil
}

func (s *session) setCount(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: :count <n>")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("count must be an integer")
	}
	req := s.request
	req.Query = "-"
	req.MatchCount = n
	if _, err := s.q.Validate(req); err != nil {
		return err
	}
	s.request.MatchCount = n
	okText.Fprintf(s.out, "✓ Results per source: %d\n", n)
	return nil
}

func (s *session) setThreshold(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: :threshold <0..1>")
	}
	v, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return fmt.Errorf("threshold must be a number")
	}
	req := s.request
	req.Query = "-"
	req.MatchThreshold = &v
	if _, err := s.q.Validate(req); err != nil {
		return err
	}
	s.request.MatchThreshold = &v
	okText.Fprintf(s.out, "✓ Similarity threshold: %.2f\n", v)
	return nil
}

func (s *session) setMethod(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: :method global|local")
	}
	req := s.request
	req.Query = "-"
	req.Method = strings.ToLower(args[0])
	if _, err := s.q.Validate(req); err != nil {
		return err
	}
	s.request.Method = req.Method
	okText.Fprintf(s.out, "✓ Graph method: %s\n", req.Method)
	return nil
}

func (s *session) export(args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("usage: :export json|md [path]")
	}
	if s.last == nil {
		return fmt.Errorf("nothing to export yet, run a query first")
	}
	format, err := export.ParseFormat(args[0])
	if err != nil {
		return err
	}

	data, err := export.Render(format, export.Bundle{
		Query:     s.last.Query,
		Timestamp: s.last.Timestamp,
		Results:   s.last.Results,
	})
	if err != nil {
		return err
	}

	path := export.FileName(s.last.Timestamp, format)
	if len(args) == 2 {
		path = args[1]
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	okText.Fprintf(s.out, "✓ Exported to %s\n", path)
	return nil
}

// printResponse renders every source. A report that was already streamed is
// not printed again unless it failed.
func (s *session) printResponse(resp *query.Response, streamed bool) {
	r := resp.Results

	if streamed && r.Synthesis.OK() {
		fmt.Fprintln(s.out)
	} else if r.Synthesis != nil {
		heading.Fprintln(s.out, "\n═══ Contradiction Analysis ═══")
		if r.Synthesis.OK() {
			fmt.Fprintln(s.out, r.Synthesis.Report)
		} else {
			errText.Fprintf(s.out, "Error: %s\n", r.Synthesis.Error)
		}
	}

	if d := r.Documents; d != nil {
		heading.Fprintln(s.out, "\n═══ Court Documents ═══")
		if d.OK() {
			dimText.Fprintf(s.out, "%d passages, %d documents searched\n\n", d.ChunksFound, d.DocumentsSearched)
			fmt.Fprintln(s.out, d.Results)
		} else {
			errText.Fprintf(s.out, "Error: %s\n", d.Error)
		}
	}

	if c := r.Communications; c != nil {
		heading.Fprintf(s.out, "\n═══ Communications (%s) ═══\n", c.Method)
		if c.OK() {
			fmt.Fprintln(s.out, c.Results)
		} else {
			errText.Fprintf(s.out, "Error: %s\n", c.Error)
		}
	}

	dimText.Fprintf(s.out, "\n%s in %dms", resp.Mode.Label(), resp.ElapsedMS)
	if resp.Parallel {
		dimText.Fprint(s.out, " (parallel)")
	}
	fmt.Fprintln(s.out)
}

func (s *session) printHistory() {
	entries := s.q.History()
	if len(entries) == 0 {
		fmt.Fprintln(s.out, "No queries yet.")
		return
	}
	for i, e := range entries {
		fmt.Fprintf(s.out, "%2d. %s ", i+1, history.Preview(e.Query))
		dimText.Fprintf(s.out, "[%s, %s]\n", e.Mode.Label(), e.Timestamp.Format("15:04:05"))
	}
}

func (s *session) printTemplates() {
	for _, t := range s.q.Templates() {
		heading.Fprintf(s.out, "%s: ", t.Name)
		fmt.Fprintln(s.out, t.Query)
	}
}

func (s *session) printStats(ctx context.Context) {
	stats := s.q.Stats(ctx)

	heading.Fprintln(s.out, "Court documents")
	if stats.DocumentsError != "" {
		errText.Fprintf(s.out, "  %s\n", stats.DocumentsError)
	} else {
		for k, v := range stats.Documents {
			fmt.Fprintf(s.out, "  %s: %v\n", k, v)
		}
	}

	heading.Fprintln(s.out, "Communications")
	if stats.CommunicationsError != "" {
		errText.Fprintf(s.out, "  %s\n", stats.CommunicationsError)
	} else {
		fmt.Fprintf(s.out, "  entities: %d\n", stats.Entities)
	}
}

func (s *session) printStatus() {
	line := func(ok bool, name string) {
		if ok {
			okText.Fprintf(s.out, "  ✓ %s\n", name)
		} else {
			errText.Fprintf(s.out, "  ✗ %s\n", name)
		}
	}
	line(s.status.Documents, "Court documents (vector search)")
	line(s.status.Communications, "Communications (Neo4j graph)")
	line(s.status.LLM, "LLM (contradiction analysis)")
}

func (s *session) printHelp() {
	fmt.Fprint(s.out, `Commands:
  <text>                 run a query with the current settings
  :mode [name]           show or set the mode (dual, documents, communications, contradiction)
  :count <n>             results per source
  :threshold <0..1>      similarity threshold for court documents
  :method global|local   graph search method
  :history               recent queries
  :rerun <n>             repeat history entry n
  :template [name]       list templates or run one
  :clear-cache           drop cached results
  :stats                 backend statistics
  :export json|md [path] save the last result
  :status                configured services
  exit                   quit
`)
}
