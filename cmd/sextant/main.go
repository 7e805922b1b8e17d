package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"sextant/internal/config"
	"sextant/internal/domain"
	"sextant/internal/domain/models/session"
	sessionsvc "sextant/internal/domain/services/session"
	"sextant/internal/service/state"
	"sextant/internal/service/transport"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorRed    = "\033[31m"
	colorBlue   = "\033[34m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
)

type CLI struct {
	ctx          context.Context
	cfg          *config.Config
	state        sessionsvc.State
	client       sessionsvc.Transport
	scanner      *bufio.Scanner
	logger       *slog.Logger
	active       string
	followCancel context.CancelFunc
}

// setupLogger creates a logger that writes to both console and file. The
// console side goes to stderr so streamed conversation text on stdout
// stays readable.
func setupLogger(cfg *config.Config) (*slog.Logger, string, error) {
	logFile, err := config.SetupLogFile(cfg.LogDir, config.MaxLogFiles)
	if err != nil {
		return nil, "", err
	}

	consoleLevel := slog.LevelWarn
	if cfg.Debug {
		consoleLevel = slog.LevelDebug
	}
	consoleHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: consoleLevel,
	})

	// File: DEBUG level, formatted text for readability
	fileHandler := slog.NewTextHandler(logFile, &slog.HandlerOptions{
		Level:     slog.LevelDebug,
		AddSource: true,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					return slog.String(slog.TimeKey, t.Format("2006-01-02 15:04:05"))
				}
			}
			if a.Key == slog.SourceKey {
				if src, ok := a.Value.Any().(*slog.Source); ok {
					return slog.String(slog.SourceKey, fmt.Sprintf("%s:%d", filepath.Base(src.File), src.Line))
				}
			}
			return a
		},
	})

	logger := slog.New(&multiHandler{
		handlers: []slog.Handler{consoleHandler, fileHandler},
	})
	return logger, logFile.Name(), nil
}

// multiHandler writes to multiple handlers
type multiHandler struct {
	handlers []slog.Handler
}

func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *multiHandler) Handle(ctx context.Context, record slog.Record) error {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, record.Level) {
			if err := handler.Handle(ctx, record); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithAttrs(attrs)
	}
	return &multiHandler{handlers: handlers}
}

func (h *multiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithGroup(name)
	}
	return &multiHandler{handlers: handlers}
}

func main() {
	// Load .env file (silently ignore if it doesn't exist - for production)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("%s❌ Invalid configuration: %v%s\n", colorRed, err, colorReset)
		os.Exit(1)
	}

	logger, logFile, err := setupLogger(cfg)
	if err != nil {
		fmt.Printf("Failed to setup logger: %v\n", err)
		os.Exit(1)
	}
	logger.Info("session follower starting", "log_file", logFile, "server", cfg.ServerURL)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Wire the state core and transport
	coordinator := state.NewCoordinator(cfg.MessageCap, config.StreamThrottleInterval, logger)
	client := transport.NewClient(cfg.ServerURL, cfg.ServerToken, cfg.RequestTimeout)
	stream := transport.NewStream(cfg.ServerURL, cfg.ServerToken, logger)
	consumer := transport.NewConsumer(stream, coordinator, logger)

	// The live stream starts before the initial fetch on purpose: anything
	// it writes while the fetch is in flight wins the hydration merge.
	go func() {
		if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("event stream stopped", "error", err)
		}
	}()

	// Initial fetch: session list and, when preconfigured, the session's
	// first message page in parallel.
	var (
		sessions  []*session.Session
		envelopes []sessionsvc.MessageEnvelope
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		sessions, err = client.FetchSessions(gctx)
		return err
	})
	if cfg.SessionID != "" {
		g.Go(func() error {
			var err error
			envelopes, err = client.FetchMessages(gctx, cfg.SessionID, sessionsvc.FetchOptions{Limit: cfg.FetchLimit})
			return err
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error("initial fetch failed", "error", err)
		fmt.Printf("%s❌ Failed to reach %s: %v%s\n", colorRed, cfg.ServerURL, err, colorReset)
		os.Exit(1)
	}
	for _, s := range sessions {
		coordinator.UpsertSession(s)
	}
	logger.Info("sessions loaded", "count", len(sessions))

	cli := &CLI{
		ctx:     ctx,
		cfg:     cfg,
		state:   coordinator,
		client:  client,
		scanner: bufio.NewScanner(os.Stdin),
		logger:  logger,
	}

	if cfg.SessionID != "" {
		cli.installPage(cfg.SessionID, envelopes)
		cli.activate(cfg.SessionID)
	} else if newest := newestTopLevel(coordinator.Sessions()); newest != "" {
		cli.openSession(newest)
	}

	cli.run()
}

// newestTopLevel picks the newest non-agent session; ids are
// time-sortable, so the last one in the sorted registry is newest.
func newestTopLevel(sessions []*session.Session) string {
	for i := len(sessions) - 1; i >= 0; i-- {
		if !sessions[i].IsChild() {
			return sessions[i].ID
		}
	}
	return ""
}

func (cli *CLI) run() {
	fmt.Printf("\n%s╔══════════════════════════════════════╗%s\n", colorCyan, colorReset)
	fmt.Printf("%s║       Sextant Session Follower       ║%s\n", colorCyan, colorReset)
	fmt.Printf("%s╚══════════════════════════════════════╝%s\n", colorCyan, colorReset)
	fmt.Printf("%sServer: %s%s\n", colorBlue, cli.cfg.ServerURL, colorReset)
	cli.printHelp()

	for {
		fmt.Printf("\n%s%s>%s ", colorCyan, cli.promptLabel(), colorReset)
		if !cli.scanner.Scan() {
			return
		}
		line := strings.TrimSpace(cli.scanner.Text())
		if line == "" {
			continue
		}
		cli.logger.Debug("command entered", "line", line)

		cmd, arg := splitCommand(line)
		switch cmd {
		case "/sessions":
			cli.showSessions()
		case "/open":
			cli.cmdOpen(arg)
		case "/earlier":
			cli.loadEarlier()
		case "/send":
			cli.sendMessage(arg)
		case "/todos":
			cli.showTodos()
		case "/agents":
			cli.showAgents()
		case "/waiting":
			cli.showWaiting()
		case "/help":
			cli.printHelp()
		case "/quit", "/exit":
			cli.logger.Info("follower exiting")
			fmt.Printf("%s✓ Goodbye!%s\n", colorGreen, colorReset)
			return
		default:
			if strings.HasPrefix(cmd, "/") {
				fmt.Printf("%s⚠ Unknown command %s. Try /help.%s\n", colorYellow, cmd, colorReset)
				continue
			}
			// Bare text goes to the active session.
			cli.sendMessage(line)
		}
	}
}

func (cli *CLI) printHelp() {
	fmt.Printf(`
Commands:
  /sessions         list sessions grouped by project
  /open [id]        open a session (newest when no id given)
  /earlier          load the previous page of the open session
  /send <text>      send a prompt (bare text works too)
  /todos            show the agent's plan list
  /agents           show sub-agents of the open session
  /waiting          show sessions waiting on your input
  /quit             exit
`)
}

func (cli *CLI) promptLabel() string {
	if cli.active == "" {
		return "sextant"
	}
	return cli.active
}

// splitCommand separates the command word from the rest of the line.
func splitCommand(line string) (string, string) {
	if i := strings.IndexByte(line, ' '); i >= 0 {
		return line[:i], strings.TrimSpace(line[i+1:])
	}
	return line, ""
}

// installPage hydrates one fetched message page into the state layer.
func (cli *CLI) installPage(sessionID string, envelopes []sessionsvc.MessageEnvelope) int {
	msgs := make([]*session.Message, 0, len(envelopes))
	partsByMessage := make(map[string][]*session.Part, len(envelopes))
	for _, e := range envelopes {
		if e.Info == nil {
			continue
		}
		msgs = append(msgs, e.Info)
		partsByMessage[e.Info.ID] = e.Parts
	}
	cli.state.Hydrate(sessionID, msgs, partsByMessage)
	return len(msgs)
}

// activate switches the follower goroutine to a session.
func (cli *CLI) activate(sessionID string) {
	if cli.followCancel != nil {
		cli.followCancel()
	}
	fctx, cancel := context.WithCancel(cli.ctx)
	cli.followCancel = cancel
	cli.active = sessionID
	go cli.follow(fctx, sessionID)
}

// follow prints streamed text as it accumulates, waking on the throttled
// version signal and printing only the unseen suffix of each text part.
func (cli *CLI) follow(ctx context.Context, sessionID string) {
	ch, cancel := cli.state.SubscribeStreaming(sessionID)
	defer cancel()

	printed := make(map[string]int)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ch:
			cli.printUnseen(sessionID, printed)
		}
	}
}

func (cli *CLI) printUnseen(sessionID string, printed map[string]int) {
	for _, m := range cli.state.Messages(sessionID) {
		if !m.IsAssistant() {
			continue
		}
		for _, p := range cli.state.Parts(m.ID) {
			if !p.IsTextual() {
				continue
			}
			seen := printed[p.ID]
			if len(p.Text) > seen {
				fmt.Print(colorGreen + p.Text[seen:] + colorReset)
				printed[p.ID] = len(p.Text)
			}
		}
	}
}

func (cli *CLI) cmdOpen(arg string) {
	if arg == "" {
		arg = newestTopLevel(cli.state.Sessions())
		if arg == "" {
			fmt.Printf("%s⚠ No sessions available%s\n", colorYellow, colorReset)
			return
		}
	}
	cli.openSession(arg)
}

func (cli *CLI) openSession(sessionID string) {
	fmt.Printf("%s⏳ Loading %s...%s\n", colorBlue, sessionID, colorReset)
	envelopes, err := cli.client.FetchMessages(cli.ctx, sessionID, sessionsvc.FetchOptions{Limit: cli.cfg.FetchLimit})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			fmt.Printf("%s❌ No such session: %s%s\n", colorRed, sessionID, colorReset)
		} else {
			fmt.Printf("%s❌ Failed to load session: %v%s\n", colorRed, err, colorReset)
		}
		cli.logger.Error("open session failed", "session_id", sessionID, "error", err)
		return
	}

	count := cli.installPage(sessionID, envelopes)
	cli.activate(sessionID)
	cli.logger.Info("session opened", "session_id", sessionID, "messages", count)

	if s, ok := cli.state.Session(sessionID); ok && s.Title != "" {
		fmt.Printf("%s✓ %s%s\n", colorGreen, s.Title, colorReset)
	}
	cli.renderTurns()
}

func (cli *CLI) renderTurns() {
	turns := cli.state.Turns(cli.active)
	if len(turns) == 0 {
		fmt.Printf("%s(no conversation yet)%s\n", colorGray, colorReset)
		return
	}

	for _, turn := range turns {
		fmt.Printf("\n%sYou:%s %s\n", colorBlue, colorReset, textSummary(turn.User.Parts))
		for i := range turn.Responses {
			r := &turn.Responses[i]
			label := r.Message.ModelID
			if label == "" {
				label = "agent"
			}
			fmt.Printf("%s%s:%s %s\n", colorGreen, label, colorReset, textSummary(r.Parts))
			for _, p := range r.Parts {
				if p.IsTool() {
					fmt.Printf("%s  ⚙ %s [%s]%s\n", colorGray, p.Tool, p.ToolStatus(), colorReset)
				}
			}
		}
		if turn.InProgress() {
			fmt.Printf("%s  … streaming%s\n", colorGray, colorReset)
		}
	}
}

func (cli *CLI) loadEarlier() {
	if cli.active == "" {
		fmt.Printf("%s⚠ No open session%s\n", colorYellow, colorReset)
		return
	}

	opts := sessionsvc.FetchOptions{Limit: cli.cfg.FetchLimit}
	if msgs := cli.state.Messages(cli.active); len(msgs) > 0 {
		opts.Before = msgs[0].ID
	}

	envelopes, err := cli.client.FetchMessages(cli.ctx, cli.active, opts)
	if err != nil {
		fmt.Printf("%s❌ Failed to load earlier messages: %v%s\n", colorRed, err, colorReset)
		cli.logger.Error("load earlier failed", "session_id", cli.active, "error", err)
		return
	}
	if len(envelopes) == 0 {
		fmt.Printf("%s(no earlier messages)%s\n", colorGray, colorReset)
		return
	}

	count := cli.installPage(cli.active, envelopes)
	fmt.Printf("%s✓ Loaded %d earlier messages (%d in memory)%s\n",
		colorGreen, count, len(cli.state.Messages(cli.active)), colorReset)
}

func (cli *CLI) sendMessage(text string) {
	if cli.active == "" {
		fmt.Printf("%s⚠ Open a session first (/open)%s\n", colorYellow, colorReset)
		return
	}
	if text == "" {
		fmt.Printf("%s⚠ Nothing to send%s\n", colorYellow, colorReset)
		return
	}

	// Optimistic insert: the prompt shows up immediately and is replaced
	// in place when the server confirms it under the same id.
	messageID := session.NewMessageID()
	cli.state.UpsertMessage(&session.Message{
		ID:         messageID,
		SessionID:  cli.active,
		Role:       session.RoleUser,
		Time:       session.MessageTime{Created: time.Now().UnixMilli()},
		Optimistic: true,
	})
	cli.state.UpsertPart(&session.Part{
		ID:        session.NewPartID(),
		MessageID: messageID,
		SessionID: cli.active,
		Type:      session.PartTypeText,
		Text:      text,
	})

	confirmed, err := cli.client.SendMessage(cli.ctx, cli.active, &sessionsvc.SendMessageRequest{
		MessageID: messageID,
		Text:      text,
	})
	if err != nil {
		// Roll the placeholder back; the send never happened.
		cli.state.RemoveMessage(cli.active, messageID)
		fmt.Printf("%s❌ Send failed: %v%s\n", colorRed, err, colorReset)
		cli.logger.Error("send failed", "session_id", cli.active, "error", err)
		return
	}

	cli.state.UpsertMessage(confirmed)
	cli.logger.Info("message sent", "session_id", cli.active, "message_id", confirmed.ID)
	fmt.Printf("%s✓ Sent%s\n", colorGreen, colorReset)
}

func (cli *CLI) showSessions() {
	groups := cli.state.Projects()
	if len(groups) == 0 {
		fmt.Printf("%s(no sessions)%s\n", colorGray, colorReset)
		return
	}

	for _, group := range groups {
		name := group.ProjectID
		if name == "" {
			name = "(no project)"
		}
		fmt.Printf("\n%s%s%s\n", colorBlue, name, colorReset)
		for _, s := range group.Sessions {
			marker := "  "
			if s.ID == cli.active {
				marker = "* "
			}
			title := s.Title
			if title == "" {
				title = "(untitled)"
			}
			line := fmt.Sprintf("%s%s  %s", marker, s.ID, title)
			if n := len(cli.state.Agents(s.ID)); n > 0 {
				line += fmt.Sprintf("  [%d agents]", n)
			}
			if cli.state.Waiting(s.ID) {
				line += fmt.Sprintf("  %s● waiting%s", colorYellow, colorReset)
			}
			fmt.Println(line)
		}
	}
	if n := cli.state.WaitingCount(); n > 0 {
		fmt.Printf("\n%s%d session(s) waiting on your input%s\n", colorYellow, n, colorReset)
	}
}

func (cli *CLI) showTodos() {
	if cli.active == "" {
		fmt.Printf("%s⚠ No open session%s\n", colorYellow, colorReset)
		return
	}
	todos := cli.state.Todos(cli.active)
	if len(todos) == 0 {
		fmt.Printf("%s(no plan posted)%s\n", colorGray, colorReset)
		return
	}

	for _, todo := range todos {
		var symbol string
		switch todo.Status {
		case session.TodoStatusCompleted:
			symbol = colorGreen + "●" + colorReset
		case session.TodoStatusInProgress:
			symbol = colorYellow + "◐" + colorReset
		case session.TodoStatusCancelled:
			symbol = colorGray + "✗" + colorReset
		default:
			symbol = "○"
		}
		fmt.Printf("  %s %s\n", symbol, todo.Content)
	}
}

func (cli *CLI) showAgents() {
	if cli.active == "" {
		fmt.Printf("%s⚠ No open session%s\n", colorYellow, colorReset)
		return
	}
	agents := cli.state.Agents(cli.active)
	if len(agents) == 0 {
		fmt.Printf("%s(no sub-agents)%s\n", colorGray, colorReset)
		return
	}

	for _, a := range agents {
		title := a.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Printf("  %s  %s\n", a.ID, title)
	}
}

func (cli *CLI) showWaiting() {
	fmt.Printf("%d session(s) waiting on input\n", cli.state.WaitingCount())
	for _, s := range cli.state.Sessions() {
		if cli.state.Waiting(s.ID) {
			fmt.Printf("  %s%s%s  %s\n", colorYellow, s.ID, colorReset, s.Title)
		}
	}
}

// textSummary joins the textual parts into one display line.
func textSummary(parts []*session.Part) string {
	var b strings.Builder
	for _, p := range parts {
		if p.IsTextual() && p.Text != "" {
			if b.Len() > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(p.Text)
		}
	}
	return truncate(strings.TrimSpace(b.String()), 200)
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}
