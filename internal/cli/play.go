package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ashureev/escape-labs/internal/app"
	"github.com/ashureev/escape-labs/internal/domain"
	"github.com/ashureev/escape-labs/internal/game"
	"github.com/ashureev/escape-labs/internal/scenario"
	"github.com/ashureev/escape-labs/internal/session"
	"github.com/ashureev/escape-labs/internal/store"
	"github.com/containerd/errdefs"
	"github.com/spf13/cobra"
)

// LocalUser owns sessions played from the terminal.
const LocalUser = "local"

const helpText = `Type a message to talk to the room's persona, or a command:
  /next              advance to the next room
  /back              return to the previous room
  /goto N            jump to unlocked room N
  /room              show the current room again
  /status            show progress
  /fields            list discovered fields
  /columns           list the columns offered for submission
  /submit a,b,c      submit the selected columns
  /download FILE     save a room file into the download directory
  /reset             start over
  /quit              leave`

var errUsage = fmt.Errorf("usage: %w", errdefs.ErrInvalidArgument)

// Player runs the game as a line based terminal session.
type Player struct {
	sessions    *session.Manager
	key         session.Key
	out         io.Writer
	render      *Renderer
	downloadDir string
}

// NewPlayer creates a player for key.
func NewPlayer(sessions *session.Manager, key session.Key, out io.Writer, render *Renderer, downloadDir string) *Player {
	if downloadDir == "" {
		downloadDir = "."
	}
	return &Player{sessions: sessions, key: key, out: out, render: render, downloadDir: downloadDir}
}

func (p *Player) engine() *game.Engine {
	return p.sessions.Engine()
}

// Run shows the current room and processes lines from in until /quit, EOF
// or ctx is done.
func (p *Player) Run(ctx context.Context, in io.Reader) error {
	if err := p.showRoom(ctx); err != nil {
		return err
	}
	fmt.Fprintln(p.out, p.render.dim.Render("Type /help for commands."))

	sc := bufio.NewScanner(in)
	for {
		fmt.Fprint(p.out, "> ")
		if !sc.Scan() {
			fmt.Fprintln(p.out)
			return sc.Err()
		}
		if ctx.Err() != nil {
			return nil
		}
		quit, err := p.Handle(ctx, sc.Text())
		if err != nil {
			p.render.Error(p.out, err)
		}
		if quit {
			return nil
		}
	}
}

// Handle processes one input line. It returns true when the player quits.
func (p *Player) Handle(ctx context.Context, line string) (bool, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}
	if !strings.HasPrefix(line, "/") {
		return false, p.chat(ctx, line)
	}

	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "/quit", "/exit":
		return true, nil
	case "/help":
		fmt.Fprintln(p.out, helpText)
		return false, nil
	case "/room":
		return false, p.showRoom(ctx)
	case "/next":
		return false, p.step(ctx, +1)
	case "/back":
		return false, p.step(ctx, -1)
	case "/goto":
		n, err := strconv.Atoi(arg)
		if err != nil {
			return false, fmt.Errorf("%w /goto N", errUsage)
		}
		return false, p.goTo(ctx, n)
	case "/status":
		return false, p.status(ctx)
	case "/fields":
		return false, p.fields(ctx)
	case "/columns":
		return false, p.columns(ctx)
	case "/submit":
		return false, p.submit(ctx, arg)
	case "/download":
		if arg == "" {
			return false, fmt.Errorf("%w /download FILE", errUsage)
		}
		return false, p.download(ctx, arg)
	case "/reset":
		if err := p.sessions.Reset(ctx, p.key); err != nil {
			return false, err
		}
		p.render.Warn(p.out, "Progress cleared.")
		return false, p.showRoom(ctx)
	default:
		return false, fmt.Errorf("unknown command %s: %w", cmd, errdefs.ErrInvalidArgument)
	}
}

func (p *Player) showRoom(ctx context.Context) error {
	var view game.RoomView
	err := p.sessions.With(ctx, p.key, func(sess *game.Session) error {
		var err error
		view, err = p.engine().View(sess, sess.Progress.Room())
		return err
	})
	if err != nil {
		return err
	}
	p.render.Room(p.out, view)
	return nil
}

func (p *Player) chat(ctx context.Context, message string) error {
	var (
		result game.ChatResult
		titles []string
	)
	err := p.sessions.With(ctx, p.key, func(sess *game.Session) error {
		var err error
		result, err = p.engine().Chat(ctx, sess, sess.Progress.Room(), message)
		if err != nil {
			return err
		}
		for _, i := range result.NewlyUnlocked {
			if r, ok := p.engine().Scenario().Room(i); ok {
				titles = append(titles, r.Title)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	p.render.Turn(p.out, string(domain.RoleAssistant), result.Assistant.Text)
	if d := result.Discovery; d != nil && len(d.Added) > 0 {
		p.render.OK(p.out, "New fields: "+strings.Join(d.Added, ", "))
	}
	if result.PointsAdded > 0 {
		p.render.OK(p.out, fmt.Sprintf("+%d points", result.PointsAdded))
	}
	for _, t := range titles {
		p.render.OK(p.out, "Unlocked: "+t+". Type /next to continue.")
	}
	return nil
}

// step moves by delta rooms. Moving forward out of an intro room advances
// it; every other move is plain navigation.
func (p *Player) step(ctx context.Context, delta int) error {
	err := p.sessions.With(ctx, p.key, func(sess *game.Session) error {
		cur := sess.Progress.Room()
		if delta > 0 {
			if r, ok := p.engine().Scenario().Room(cur); ok && r.Kind == scenario.KindIntro {
				_, err := p.engine().Advance(sess)
				return err
			}
		}
		return p.engine().Navigate(sess, cur+delta)
	})
	if err != nil {
		return err
	}
	return p.showRoom(ctx)
}

func (p *Player) goTo(ctx context.Context, room int) error {
	err := p.sessions.With(ctx, p.key, func(sess *game.Session) error {
		return p.engine().Navigate(sess, room)
	})
	if err != nil {
		return err
	}
	return p.showRoom(ctx)
}

func (p *Player) status(ctx context.Context) error {
	var state game.StateView
	err := p.sessions.With(ctx, p.key, func(sess *game.Session) error {
		state = p.engine().State(sess)
		return nil
	})
	if err != nil {
		return err
	}
	p.render.State(p.out, state)
	return nil
}

func (p *Player) fields(ctx context.Context) error {
	var fields []game.DiscoveredField
	err := p.sessions.With(ctx, p.key, func(sess *game.Session) error {
		fields = sess.Ledger.Sorted()
		return nil
	})
	if err != nil {
		return err
	}
	p.render.Fields(p.out, fields)
	return nil
}

func (p *Player) columns(ctx context.Context) error {
	var cols []string
	err := p.sessions.With(ctx, p.key, func(sess *game.Session) error {
		var err error
		cols, err = p.engine().SubmissionOptions(sess)
		return err
	})
	if err != nil {
		return err
	}
	p.render.Columns(p.out, cols)
	return nil
}

func (p *Player) submit(ctx context.Context, arg string) error {
	selected := splitColumns(arg)
	if len(selected) == 0 {
		return fmt.Errorf("%w /submit a,b,c", errUsage)
	}
	var result game.SubmitResult
	err := p.sessions.With(ctx, p.key, func(sess *game.Session) error {
		var err error
		result, err = p.engine().Submit(sess, selected)
		return err
	})
	if err != nil {
		return err
	}
	if result.Escaped {
		p.render.OK(p.out, result.Message)
	} else {
		p.render.Warn(p.out, result.Message)
	}
	return nil
}

func (p *Player) download(ctx context.Context, filename string) error {
	var data []byte
	err := p.sessions.With(ctx, p.key, func(sess *game.Session) error {
		_, f, err := p.engine().OpenDownload(sess, sess.Progress.Room(), filename)
		if err != nil {
			return err
		}
		defer f.Close()
		data, err = io.ReadAll(f)
		return err
	})
	if err != nil {
		return err
	}
	dest := filepath.Join(p.downloadDir, filepath.Base(filename))
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return fmt.Errorf("save %s: %w", dest, err)
	}
	p.render.OK(p.out, "Saved "+dest)
	return nil
}

// splitColumns accepts comma or space separated names.
func splitColumns(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' })
	out := fields[:0]
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func newPlayCmd(opts *rootOptions) *cobra.Command {
	var (
		dbPath      string
		sessionID   string
		downloadDir string
		plain       bool
	)
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Play the escape room in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.config()
			if err != nil {
				return err
			}
			logger := opts.logger(cmd.ErrOrStderr())

			repo, err := store.NewSQLite(dbPath)
			if err != nil {
				return err
			}
			defer repo.Close()

			ctx := cmd.Context()
			now := time.Now()
			local := &domain.User{UserID: LocalUser, Username: LocalUser, LastSeenAt: now, CreatedAt: now, UpdatedAt: now}
			if err := repo.UpsertUser(ctx, local); err != nil {
				return err
			}

			assembled, err := app.New(cfg, logger)
			if err != nil {
				return err
			}
			defer assembled.Close()

			sessions := session.NewManager(repo, assembled.Engine, logger)
			player := NewPlayer(sessions, session.Key{UserID: LocalUser, SessionID: sessionID},
				cmd.OutOrStdout(), NewRenderer(plain), downloadDir)
			err = player.Run(ctx, cmd.InOrStdin())
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", store.MemoryPath, "SQLite file to keep progress in between runs")
	cmd.Flags().StringVar(&sessionID, "session", "default", "Session name, to keep several games apart")
	cmd.Flags().StringVar(&downloadDir, "downloads", ".", "Directory room files are saved to")
	cmd.Flags().BoolVar(&plain, "plain", false, "Disable colors and markdown styling")
	return cmd
}
