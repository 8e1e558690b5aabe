package game

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"math/rand/v2"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/ashureev/escape-labs/internal/domain"
	"github.com/ashureev/escape-labs/internal/metrics"
	"github.com/ashureev/escape-labs/internal/reply"
	"github.com/ashureev/escape-labs/internal/scenario"
)

// DefaultMaxMessageChars limits learner chat input.
const DefaultMaxMessageChars = 1000

// Submission messages.
const (
	MessageEscaped   = "You escaped! Great job."
	MessageRedundant = "There are still some redundant columns. Please review and deselect them."
)

// Persona answers chat messages. agent.Client implements it.
type Persona interface {
	Send(ctx context.Context, system, message string, history []domain.Turn) string
}

// Engine applies the rules of one scenario to sessions. It holds no
// per-session state and is safe for concurrent use across sessions.
type Engine struct {
	scn      *scenario.Scenario
	persona  Persona
	logger   *slog.Logger
	maxChars int
	shuffle  func([]string)
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMaxMessageChars overrides DefaultMaxMessageChars.
func WithMaxMessageChars(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxChars = n
		}
	}
}

// WithShuffle replaces the shuffle used for submission options.
func WithShuffle(shuffle func([]string)) Option {
	return func(e *Engine) {
		if shuffle != nil {
			e.shuffle = shuffle
		}
	}
}

// NewEngine creates an engine for scn that chats through persona.
func NewEngine(scn *scenario.Scenario, persona Persona, opts ...Option) *Engine {
	e := &Engine{
		scn:      scn,
		persona:  persona,
		logger:   slog.Default(),
		maxChars: DefaultMaxMessageChars,
		shuffle: func(s []string) {
			rand.Shuffle(len(s), func(i, j int) { s[i], s[j] = s[j], s[i] })
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Scenario returns the scenario the engine runs.
func (e *Engine) Scenario() *scenario.Scenario {
	return e.scn
}

// MaxMessageChars returns the chat input limit in characters.
func (e *Engine) MaxMessageChars() int {
	return e.maxChars
}

// NewSession starts a game of this engine's scenario.
func (e *Engine) NewSession() *Session {
	return NewSession(e.scn.Name)
}

// RoomSummary is a room's entry in the state view.
type RoomSummary struct {
	Index     int           `json:"index"`
	Key       string        `json:"key"`
	Title     string        `json:"title"`
	Kind      scenario.Kind `json:"kind"`
	Locked    bool          `json:"locked"`
	Completed bool          `json:"completed"`
	HasChat   bool          `json:"has_chat"`
}

// StateView summarizes a session.
type StateView struct {
	Scenario           string        `json:"scenario"`
	Label              string        `json:"label"`
	Current            int           `json:"current"`
	MaxUnlocked        int           `json:"max_unlocked"`
	Rooms              []RoomSummary `json:"rooms"`
	Discovered         int           `json:"discovered"`
	DiscoveryThreshold int           `json:"discovery_threshold"`
	Points             int           `json:"points"`
	ScoreThreshold     int           `json:"score_threshold"`
	Escaped            bool          `json:"escaped"`
}

// DownloadView is a room download with its availability.
type DownloadView struct {
	scenario.Download
	Available bool `json:"available"`
	Locked    bool `json:"locked"`
}

// RoomView is everything needed to render one room.
type RoomView struct {
	RoomSummary
	Narrative       string            `json:"narrative"`
	Turns           []domain.Turn     `json:"turns"`
	Unlocked        bool              `json:"unlocked"`
	ChatEnabled     bool              `json:"chat_enabled"`
	MaxMessageChars int               `json:"max_message_chars"`
	Discovered      []DiscoveredField `json:"discovered,omitempty"`
	Points          int               `json:"points"`
	Downloads       []DownloadView    `json:"downloads,omitempty"`
	Options         []string          `json:"options,omitempty"`
	Escaped         bool              `json:"escaped"`
	Notice          string            `json:"notice,omitempty"`
}

// ChatResult is the outcome of one chat exchange.
type ChatResult struct {
	Room          int              `json:"room"`
	User          domain.Turn      `json:"user"`
	Assistant     domain.Turn      `json:"assistant"`
	Unlocked      bool             `json:"unlocked"`
	NewlyUnlocked []int            `json:"newly_unlocked,omitempty"`
	Discovery     *DiscoveryUpdate `json:"discovery,omitempty"`
	PointsAdded   int              `json:"points_added"`
	MaxUnlocked   int              `json:"max_unlocked"`
}

// SubmitResult is the outcome of a final submission.
type SubmitResult struct {
	Escaped bool   `json:"escaped"`
	Message string `json:"message"`
}

func (e *Engine) room(i int) (scenario.Room, error) {
	r, ok := e.scn.Room(i)
	if !ok {
		return scenario.Room{}, fmt.Errorf("%w: %d", ErrUnknownRoom, i)
	}
	return r, nil
}

// exitMet reports whether room i's condition for opening i+1 holds.
func (e *Engine) exitMet(sess *Session, i int) bool {
	r, ok := e.scn.Room(i)
	if !ok {
		return false
	}
	switch r.Kind {
	case scenario.KindChat:
		return ConditionFor(r.Unlock).Met(sess.existingLog(r.Key))
	case scenario.KindDiscovery:
		return sess.Ledger.Len() >= e.scn.Manifest.DiscoveryThreshold
	case scenario.KindScoring:
		return sess.Score.Total >= e.scn.Manifest.ScoreThreshold
	default:
		return false
	}
}

func (e *Engine) chatEnabled(sess *Session, i int) bool {
	r, ok := e.scn.Room(i)
	if !ok || !r.HasPersona() || !sess.Progress.Reachable(i) {
		return false
	}
	return r.Kind != scenario.KindChat || !e.exitMet(sess, i)
}

// Refresh brings derived state up to date with the logs: legacy turns are
// backfilled, new engineering replies are scored and every satisfied exit
// condition unlocks the next room. Returns newly unlocked rooms and points
// added.
func (e *Engine) Refresh(sess *Session) ([]int, int) {
	points := 0
	for _, r := range e.scn.Manifest.Rooms {
		log := sess.existingLog(r.Key)
		if log == nil {
			continue
		}
		if n := log.Backfill(reply.DisplayText); n > 0 {
			e.logger.Debug("backfilled raw replies", "session_id", sess.ID, "room", r.Key, "turns", n)
		}
		if r.Kind == scenario.KindScoring {
			points += sess.Score.Consume(log.Turns)
		}
	}

	var unlocked []int
	for i := 0; i < e.scn.RoomCount()-1; i++ {
		if !sess.Progress.Reachable(i) {
			break
		}
		if e.exitMet(sess, i) && sess.Progress.Unlock(i+1) {
			unlocked = append(unlocked, i+1)
			e.recordUnlock(sess, i+1)
		}
	}
	return unlocked, points
}

func (e *Engine) recordUnlock(sess *Session, i int) {
	r, _ := e.scn.Room(i)
	metrics.RoomUnlocks.WithLabelValues(r.Key).Inc()
	e.logger.Info("room unlocked", "session_id", sess.ID, "room", r.Key, "index", i)
}

func (e *Engine) summary(sess *Session, i int) RoomSummary {
	r, _ := e.scn.Room(i)
	return RoomSummary{
		Index:     i,
		Key:       r.Key,
		Title:     r.Title,
		Kind:      r.Kind,
		Locked:    !sess.Progress.Reachable(i),
		Completed: e.exitMet(sess, i),
		HasChat:   r.HasPersona(),
	}
}

// State refreshes the session and summarizes it.
func (e *Engine) State(sess *Session) StateView {
	e.Refresh(sess)
	m := e.scn.Manifest
	view := StateView{
		Scenario:           e.scn.Name,
		Label:              e.scn.Label(),
		Current:            sess.Progress.Room(),
		MaxUnlocked:        sess.Progress.MaxUnlocked,
		Discovered:         sess.Ledger.Len(),
		DiscoveryThreshold: m.DiscoveryThreshold,
		Points:             sess.Score.Total,
		ScoreThreshold:     m.ScoreThreshold,
		Escaped:            sess.Submission.Escaped,
	}
	for i := range m.Rooms {
		view.Rooms = append(view.Rooms, e.summary(sess, i))
	}
	return view
}

// View refreshes the session and renders room i.
func (e *Engine) View(sess *Session, i int) (RoomView, error) {
	r, err := e.room(i)
	if err != nil {
		return RoomView{}, err
	}
	if !sess.Progress.Reachable(i) {
		return RoomView{}, fmt.Errorf("%w: %s", ErrRoomLocked, r.Key)
	}
	e.Refresh(sess)

	view := RoomView{
		RoomSummary:     e.summary(sess, i),
		Narrative:       e.scn.Narrative(i),
		Unlocked:        e.exitMet(sess, i),
		ChatEnabled:     e.chatEnabled(sess, i),
		MaxMessageChars: e.maxChars,
		Points:          sess.Score.Total,
		Escaped:         sess.Submission.Escaped,
	}
	if log := sess.existingLog(r.Key); log != nil {
		view.Turns = log.All()
	}
	if r.Kind == scenario.KindDiscovery {
		view.Discovered = sess.Ledger.Sorted()
	}
	for _, d := range r.Downloads {
		locked := sess.Ledger.Len() < d.MinDiscovered
		if locked && view.Notice == "" {
			view.Notice = fmt.Sprintf("Discover at least %d fields to unlock the downloads.", d.MinDiscovered)
		}
		view.Downloads = append(view.Downloads, DownloadView{
			Download:  d,
			Available: e.scn.DownloadExists(d),
			Locked:    locked,
		})
	}
	if r.Kind == scenario.KindSubmission {
		opts, err := e.SubmissionOptions(sess)
		if err != nil {
			view.Notice = "Dataset not available yet. Add a CSV to the scenario data folder."
		}
		view.Options = opts
	}
	return view, nil
}

// Chat sends a learner message in room i and records the exchange.
//
// The message is rejected before anything is recorded when it is empty,
// longer than the limit, or the room is locked, has no persona, or is a
// chat room whose condition already holds.
func (e *Engine) Chat(ctx context.Context, sess *Session, i int, message string) (ChatResult, error) {
	r, err := e.room(i)
	if err != nil {
		return ChatResult{}, err
	}
	if !sess.Progress.Reachable(i) {
		return ChatResult{}, fmt.Errorf("%w: %s", ErrRoomLocked, r.Key)
	}
	if !r.HasPersona() {
		return ChatResult{}, fmt.Errorf("%w: %s", ErrNoPersona, r.Key)
	}
	if strings.TrimSpace(message) == "" {
		return ChatResult{}, ErrEmptyMessage
	}
	if utf8.RuneCountInString(message) > e.maxChars {
		return ChatResult{}, fmt.Errorf("%w (>%d chars). Please shorten and resend", ErrMessageTooLong, e.maxChars)
	}

	e.Refresh(sess)
	if !e.chatEnabled(sess, i) {
		return ChatResult{}, fmt.Errorf("%w: %s", ErrChatDisabled, r.Key)
	}

	log := sess.Log(r.Key)
	history := log.All()
	userTurn := log.AppendUser(message)

	raw := e.persona.Send(ctx, e.scn.SystemPrompt(i), message, history)
	assistantTurn := log.AppendAssistant(raw, reply.DisplayText)
	metrics.ChatTurns.WithLabelValues(r.Key).Inc()

	result := ChatResult{
		Room:      i,
		User:      userTurn,
		Assistant: assistantTurn,
	}

	if r.Kind == scenario.KindDiscovery {
		update, err := ApplyDiscovery(&sess.Ledger, e.scn.Catalog, raw)
		if err != nil {
			e.logger.Debug("discovery hook skipped reply", "session_id", sess.ID, "room", r.Key, "error", err)
		} else {
			result.Discovery = &update
		}
	}

	result.NewlyUnlocked, result.PointsAdded = e.Refresh(sess)
	result.Unlocked = e.exitMet(sess, i)
	result.MaxUnlocked = sess.Progress.MaxUnlocked
	return result, nil
}

// Advance leaves an intro room for the next one, unlocking it.
func (e *Engine) Advance(sess *Session) (int, error) {
	cur := sess.Progress.Room()
	r, err := e.room(cur)
	if err != nil {
		return cur, err
	}
	if r.Kind != scenario.KindIntro || cur+1 >= e.scn.RoomCount() {
		return cur, fmt.Errorf("%w: %s", ErrNotAdvanceable, r.Key)
	}
	if sess.Progress.Unlock(cur + 1) {
		e.recordUnlock(sess, cur+1)
	}
	sess.Progress.Current = cur + 1
	return cur + 1, nil
}

// Navigate moves to room i if it is unlocked.
func (e *Engine) Navigate(sess *Session, i int) error {
	if _, err := e.room(i); err != nil {
		return err
	}
	e.Refresh(sess)
	return sess.Progress.Navigate(i)
}

// SubmissionOptions returns the dataset columns in the order offered to the
// learner. The order is shuffled once per session and reshuffled only when
// the dataset header changes.
func (e *Engine) SubmissionOptions(sess *Session) ([]string, error) {
	cols, err := e.scn.Columns()
	if err != nil {
		return nil, err
	}
	if sess.Submission.Order == nil || !slices.Equal(sess.Submission.Source, cols) {
		order := slices.Clone(cols)
		e.shuffle(order)
		sess.Submission.Order = order
		sess.Submission.Source = slices.Clone(cols)
	}
	return slices.Clone(sess.Submission.Order), nil
}

func (e *Engine) submissionRoom() (int, bool) {
	for i, r := range e.scn.Manifest.Rooms {
		if r.Kind == scenario.KindSubmission {
			return i, true
		}
	}
	return 0, false
}

// Submit checks the learner's final feature selection. A selection that
// still holds a disallowed column is rejected without changing the session.
func (e *Engine) Submit(sess *Session, selected []string) (SubmitResult, error) {
	idx, ok := e.submissionRoom()
	if !ok {
		return SubmitResult{}, ErrNoSubmission
	}
	e.Refresh(sess)
	if !sess.Progress.Reachable(idx) {
		return SubmitResult{}, fmt.Errorf("%w: submission", ErrRoomLocked)
	}

	cols, err := e.scn.Columns()
	if err != nil {
		return SubmitResult{}, err
	}
	for _, c := range selected {
		if !slices.Contains(cols, c) {
			return SubmitResult{}, fmt.Errorf("%w: %q", ErrUnknownColumn, c)
		}
	}

	for _, bad := range e.scn.Manifest.DisallowedColumns {
		if slices.Contains(selected, bad) {
			metrics.Submissions.WithLabelValues("rejected").Inc()
			return SubmitResult{Escaped: false, Message: MessageRedundant}, nil
		}
	}

	sess.Submission.Escaped = true
	metrics.Submissions.WithLabelValues("escaped").Inc()
	e.logger.Info("session escaped", "session_id", sess.ID, "scenario", e.scn.Name)
	return SubmitResult{Escaped: true, Message: MessageEscaped}, nil
}

// OpenDownload opens a file offered in room i once its gate is satisfied.
func (e *Engine) OpenDownload(sess *Session, i int, filename string) (scenario.Download, fs.File, error) {
	r, err := e.room(i)
	if err != nil {
		return scenario.Download{}, nil, err
	}
	if !sess.Progress.Reachable(i) {
		return scenario.Download{}, nil, fmt.Errorf("%w: %s", ErrRoomLocked, r.Key)
	}
	for _, d := range r.Downloads {
		if d.Filename == filename && sess.Ledger.Len() < d.MinDiscovered {
			return d, nil, fmt.Errorf("%w: discover at least %d fields", ErrDownloadLocked, d.MinDiscovered)
		}
	}
	return e.scn.OpenDownload(i, filename)
}
