// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/peterh/liner"

	"github.com/jeranaias/presence-chat/internal/client"
	"github.com/jeranaias/presence-chat/internal/config"
	"github.com/jeranaias/presence-chat/internal/conversation"
	"github.com/jeranaias/presence-chat/internal/export"
	"github.com/jeranaias/presence-chat/internal/logging"
	"github.com/jeranaias/presence-chat/internal/model"
	"github.com/jeranaias/presence-chat/internal/offline"
	"github.com/jeranaias/presence-chat/internal/session"
)

// HistoryFileName stores REPL input history under the config dir.
const HistoryFileName = "input_history"

// ErrQuit is returned by Handle when the user asks to leave.
var ErrQuit = errors.New("quit")

// =============================================================================
// CHAT
// =============================================================================

// Chat runs turns and slash commands against an App, writing to out.
// It is independent of the terminal so it can be driven by tests.
type Chat struct {
	app    *App
	out    io.Writer
	render *Renderer

	mu      sync.Mutex
	printed map[string]string // streamed text already shown, per message
	unsub   func()
}

// NewChat creates a Chat. When the renderer does not use markdown, reply
// text is streamed to out as it arrives.
func NewChat(app *App, out io.Writer, render *Renderer) *Chat {
	c := &Chat{
		app:     app,
		out:     out,
		render:  render,
		printed: make(map[string]string),
	}
	if !render.Markdown() {
		c.unsub = app.Client.Subscribe(c.onChange)
	}
	return c
}

// Close stops streaming output.
func (c *Chat) Close() {
	if c.unsub != nil {
		c.unsub()
	}
}

// onChange prints streamed fragments. It runs on the session goroutine.
func (c *Chat) onChange(ch conversation.Change) {
	if ch.Kind != conversation.Updated || ch.Message.Role != model.RoleAssistant {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	shown := c.printed[ch.Message.ID]
	if strings.HasPrefix(ch.Message.Text, shown) && len(ch.Message.Text) > len(shown) {
		fmt.Fprint(c.out, ch.Message.Text[len(shown):])
		c.printed[ch.Message.ID] = ch.Message.Text
	}
}

func (c *Chat) println(a ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, a...)
}

// Greet prints the widget greeting when the conversation is empty, or a
// short recap otherwise.
func (c *Chat) Greet() {
	msgs := c.app.Client.Messages()
	if len(msgs) == 0 {
		c.println(AssistantStyle.Render("Assistant") + " " + c.render.Text(c.app.Client.Greeting()))
		return
	}
	c.println(DimStyle.Render(fmt.Sprintf("Conversation restaurée (%d messages, /history pour l'afficher)", len(msgs))))
}

// Handle processes one line of input. It returns ErrQuit when the user
// leaves.
func (c *Chat) Handle(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if strings.EqualFold(line, "exit") || strings.EqualFold(line, "quit") {
		return ErrQuit
	}
	if !strings.HasPrefix(line, "/") {
		return c.send(ctx, line)
	}

	fields := strings.Fields(line)
	cmd, rest := strings.ToLower(fields[0]), fields[1:]
	switch cmd {
	case "/help", "/h", "/?":
		c.printHelp()
	case "/quit", "/q", "/exit":
		return ErrQuit
	case "/retry", "/r":
		return c.retry(ctx)
	case "/clear", "/c":
		return c.clear(ctx)
	case "/status", "/s":
		caps := c.app.Client.CheckStatus(ctx)
		c.println(c.render.Status(c.app.Widget, c.app.Config.Server.BaseURL, caps))
	case "/stop":
		if c.app.Client.Active() == nil {
			c.println(DimStyle.Render("Aucune réponse en cours."))
			return nil
		}
		c.app.Client.Cancel()
	case "/pick", "/p":
		return c.pick(ctx, rest)
	case "/history":
		c.println(c.render.History(c.app.Client.Messages()))
	case "/stats":
		c.printStats()
	case "/export", "/e":
		return c.export(rest)
	default:
		return fmt.Errorf("commande inconnue %s (/help pour la liste)", cmd)
	}
	return nil
}

// =============================================================================
// TURNS
// =============================================================================

func (c *Chat) send(ctx context.Context, text string) error {
	sess, err := c.app.Client.Send(ctx, text)
	if err != nil {
		return err
	}
	c.finish(sess)
	return nil
}

func (c *Chat) retry(ctx context.Context) error {
	sess, err := c.app.Client.Retry(ctx)
	switch {
	case errors.Is(err, client.ErrNothingToRetry):
		return errors.New("rien à réessayer")
	case errors.Is(err, client.ErrRetryBudgetExhausted):
		return errors.New("nombre maximal de tentatives atteint, reformulez la question")
	case err != nil:
		return err
	}
	c.finish(sess)
	return nil
}

// finish waits for the turn and prints what has not been shown yet.
func (c *Chat) finish(sess *session.Session) {
	if c.render.Markdown() {
		c.println(DimStyle.Render("…"))
	}
	sess.Wait()

	msg, ok := findMessage(c.app.Client.Messages(), sess.MessageID)
	if !ok {
		return
	}

	c.mu.Lock()
	shown, streamed := c.printed[msg.ID]
	delete(c.printed, msg.ID)
	c.mu.Unlock()

	if !streamed {
		c.println(c.render.Reply(msg))
	} else {
		c.println(streamTail(msg, shown))
		if meta := c.render.Meta(msg); meta != "" {
			c.println(meta)
		}
	}

	if sess.UsedFallback() && sess.State() == session.StateFinal {
		c.println(DimStyle.Render("(réponse obtenue sans streaming)"))
	}
	if msg.IsErrored() && c.app.Client.CanRetry() {
		c.println(DimStyle.Render(fmt.Sprintf("/retry pour réessayer (%d restant)", c.app.Client.RetriesLeft())))
	}
}

// streamTail returns what to print after shown was streamed: the rest of
// the text when it extends shown, the whole final text on its own line
// when the reply was replaced.
func streamTail(msg model.Message, shown string) string {
	if strings.HasPrefix(msg.Text, shown) {
		tail := msg.Text[len(shown):]
		if msg.IsErrored() {
			tail += "\n" + ErrorStyle.Render("[réponse incomplète]")
		}
		return tail
	}
	if msg.IsErrored() {
		return "\n" + ErrorStyle.Render(msg.Text)
	}
	return "\n" + msg.Text
}

func (c *Chat) clear(ctx context.Context) error {
	if err := c.app.Client.Clear(ctx); err != nil {
		return err
	}
	c.println(SuccessStyle.Render("[Conversation effacée]"))
	c.Greet()
	return nil
}

// pick sends the follow-up question for suggestion N of the last reply.
func (c *Chat) pick(ctx context.Context, rest []string) error {
	if len(rest) != 1 {
		return errors.New("usage : /pick N")
	}
	n, err := strconv.Atoi(rest[0])
	if err != nil || n < 1 {
		return fmt.Errorf("numéro invalide %q", rest[0])
	}

	msgs := c.app.Client.Messages()
	var sugg *model.Suggestions
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == model.RoleAssistant {
			sugg = msgs[i].Suggestions
			break
		}
	}
	if !sugg.Visible() {
		return errors.New("aucune suggestion disponible")
	}
	if n > len(sugg.Items) {
		return fmt.Errorf("choisissez entre 1 et %d", len(sugg.Items))
	}
	question, ok := sugg.FollowUp(sugg.Items[n-1])
	if !ok {
		return errors.New("aucune suggestion disponible")
	}
	c.println(UserStyle.Render("Vous") + " " + question)
	return c.send(ctx, question)
}

func (c *Chat) printStats() {
	if c.app.Tracker == nil {
		c.println(DimStyle.Render("Statistiques indisponibles."))
		return
	}
	trends, err := c.app.Tracker.Trends(7)
	if err != nil {
		c.app.Logger.Warn("failed to load turn statistics", "error", err)
	}
	c.println(c.render.Stats(c.app.Tracker.Current(), trends))
}

// export writes the conversation to disk: /export [md|json] [path].
func (c *Chat) export(args []string) error {
	format, path := "md", ""
	if len(args) > 0 {
		format = args[0]
	}
	if len(args) > 1 {
		path = args[1]
	}
	exporter, err := export.ForFormat(format, nil)
	if err != nil {
		return err
	}
	opts := export.DefaultOptions()
	opts.Path = path

	doc := export.NewDocument(c.app.Widget, c.app.Client.Messages())
	written, err := export.ToFile(doc, exporter, opts)
	if errors.Is(err, export.ErrEmpty) {
		return errors.New("rien à exporter")
	}
	if err != nil {
		return err
	}
	c.println(SuccessStyle.Render("Conversation exportée : ") + written)
	return nil
}

func (c *Chat) printHelp() {
	cmds := []struct{ cmd, desc string }{
		{"/retry", "Réessayer la dernière question"},
		{"/stop", "Interrompre la réponse en cours (ou Ctrl+C)"},
		{"/pick N", "Choisir la suggestion N"},
		{"/status", "Afficher l'état du service"},
		{"/history", "Afficher la conversation"},
		{"/stats", "Statistiques des échanges"},
		{"/export", "Exporter la conversation (md|json) [fichier]"},
		{"/clear", "Effacer la conversation"},
		{"/quit", "Quitter (ou Ctrl+D)"},
	}
	lines := []string{TitleStyle.Render("Commandes"), RenderSeparator(30)}
	for _, c := range cmds {
		lines = append(lines, fmt.Sprintf("  %s %s", ChoiceStyle.Render(fmt.Sprintf("%-10s", c.cmd)), DimStyle.Render(c.desc)))
	}
	c.println(strings.Join(lines, "\n"))
}

func findMessage(msgs []model.Message, id string) (model.Message, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].ID == id {
			return msgs[i], true
		}
	}
	return model.Message{}, false
}

// =============================================================================
// REPL
// =============================================================================

// RunChat runs the interactive chat until /quit, Ctrl+D or Ctrl+C at an
// empty prompt.
func RunChat(ctx context.Context, args Args) error {
	app, err := Open(ctx, args, false)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go watchConfig(ctx, app)
	app.Client.CheckStatus(ctx)
	app.Client.StartStatusPolling(ctx)

	chat := NewChat(app, os.Stdout, NewRenderer(GetTerminalWidth(), IsStdoutTTY()))
	defer chat.Close()

	printBanner(app)
	chat.Greet()

	// Ctrl+C while a reply streams cancels the turn. At the prompt liner
	// owns the terminal and reports it as ErrPromptAborted instead.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-sigCh:
				if sig == syscall.SIGTERM {
					cancel()
				}
				app.Client.Cancel()
			}
		}
	}()

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)
	historyPath := loadInputHistory(line)
	defer saveInputHistory(line, historyPath)

	for ctx.Err() == nil {
		input, err := line.Prompt(prompt(app))
		if err != nil {
			fmt.Println()
			return nil
		}
		if strings.TrimSpace(input) != "" {
			line.AppendHistory(input)
		}

		err = chat.Handle(ctx, input)
		if errors.Is(err, ErrQuit) {
			return nil
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s %v\n", ErrorStyle.Render("[Erreur]"), err)
		}
	}
	return nil
}

// prompt shows the widget and a marker while the backend is unreachable.
func prompt(app *App) string {
	p := app.Widget
	if badge := offline.StatusBadge(); badge != "" {
		p += " " + badge
	}
	if !app.Client.Status().Connected {
		p += " ⚠"
	}
	// liner measures the prompt itself, so it must stay unstyled.
	return p + "> "
}

func printBanner(app *App) {
	fmt.Println(TitleStyle.Render("presence-chat · " + WidgetTitle(app.Widget)))
	fmt.Println(RenderSeparator(30))
	fmt.Println(RenderField("Serveur", app.Config.Server.BaseURL) + " " + RenderStatus(app.Client.Status().Connected))
	fmt.Println(DimStyle.Render("Tapez votre question. /help pour les commandes, /quit pour quitter."))
	fmt.Println()
}

// watchConfig applies log level changes from the config file live.
func watchConfig(ctx context.Context, app *App) {
	err := config.Watch(ctx, app.ConfigPath, app.Logger, func(cfg *config.Config) {
		if err := logging.SetLevel(cfg.Log.Level); err != nil {
			app.Logger.Warn("ignoring log level from config", "level", cfg.Log.Level, "error", err)
			return
		}
		config.SetGlobal(cfg)
		app.Logger.Info("config reloaded", "log_level", cfg.Log.Level)
	})
	if err != nil {
		app.Logger.Debug("config watch disabled", "error", err)
	}
}

func loadInputHistory(line *liner.State) string {
	dir, err := config.ConfigDir()
	if err != nil {
		return ""
	}
	path := filepath.Join(dir, HistoryFileName)
	if f, err := os.Open(path); err == nil {
		line.ReadHistory(f)
		f.Close()
	}
	return path
}

func saveInputHistory(line *liner.State, path string) {
	if path == "" || config.EnsureConfigDir() != nil {
		return
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	line.WriteHistory(f)
}
