// Package exploration drives guided interviews about one item: the turn
// loop, the transcript and the session status machine.
package exploration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/PabloGalante/brandlab/internal/app/itemtype"
	"github.com/PabloGalante/brandlab/internal/domain"
	"github.com/PabloGalante/brandlab/internal/keylock"
	"github.com/PabloGalante/brandlab/internal/observability"
)

const defaultReportTimeout = 2 * time.Minute

// Registry resolves item kinds.
type Registry interface {
	Lookup(kind domain.ItemKind) (itemtype.Config, error)
}

type Options struct {
	// Backend and Model are pinned on every new session.
	Backend       domain.Backend
	Model         string
	ReportTimeout time.Duration
}

type Service struct {
	registry Registry
	store    domain.ExplorationStore
	llm      domain.LLMGateway
	opts     Options
	now      func() time.Time
	newID    func() string

	locks *keylock.Map
	// reports tracks in-flight report goroutines.
	reports sync.WaitGroup

	mu      sync.Mutex
	running map[domain.SessionID]int
}

func NewService(registry Registry, store domain.ExplorationStore, llm domain.LLMGateway, opts Options) *Service {
	if opts.ReportTimeout <= 0 {
		opts.ReportTimeout = defaultReportTimeout
	}
	return &Service{
		registry: registry,
		store:    store,
		llm:      llm,
		opts:     opts,
		now:      time.Now,
		newID:    uuid.NewString,
		locks:    keylock.New(),
		running:  make(map[domain.SessionID]int),
	}
}

// SessionView is a session with its full transcript.
type SessionView struct {
	Session  *domain.ExplorationSession
	Messages []*domain.ExplorationMessage
	// Resumed is set by StartSession when an active session was returned.
	Resumed bool
}

type StartSessionInput struct {
	ItemType domain.ItemKind
	ItemID   domain.ItemID
	ScopeID  domain.ScopeID
}

// StartSession resumes the active session for the item or creates one with
// the intro and the first question.
func (s *Service) StartSession(ctx context.Context, in StartSessionInput) (*SessionView, error) {
	const op = "start session"

	cfg, err := s.registry.Lookup(in.ItemType)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(string(in.ItemID)) == "" {
		return nil, domain.ClientError(op, errors.New("item id is required"))
	}

	log := observability.LoggerFromContext(ctx).With(
		"item_type", in.ItemType,
		"item_id", in.ItemID,
		"scope_id", in.ScopeID,
	)

	ref := domain.ItemRef{Kind: in.ItemType, ID: in.ItemID, ScopeID: in.ScopeID}
	release, err := s.locks.Acquire(ctx, "item:"+ref.Key())
	if err != nil {
		return nil, err
	}
	defer release()

	active, err := s.store.FindActiveSession(ctx, ref)
	switch {
	case err == nil:
		log.Info("resuming active session", "session_id", active.ID, "status", active.Status)
		msgs, err := s.store.ListMessages(ctx, active.ID)
		if err != nil {
			return nil, domain.PersistenceError(op, err)
		}
		return &SessionView{Session: active, Messages: msgs, Resumed: true}, nil
	case !errors.Is(err, domain.ErrNotFound):
		log.Error("failed to look up active session", "error", err)
		return nil, domain.PersistenceError(op, err)
	}

	item, err := cfg.FetchItem(ctx, in.ItemID, in.ScopeID)
	if err != nil {
		log.Error("failed to fetch item", "error", err)
		return nil, domain.PersistenceError(op, err)
	}
	if item == nil {
		return nil, domain.NotFoundError(op, fmt.Errorf("%s %q: %w", in.ItemType, in.ItemID, domain.ErrItemNotFound))
	}

	dims := cfg.Dimensions(item)
	if len(dims) == 0 {
		return nil, fmt.Errorf("%s: kind %s has no dimensions", op, in.ItemType)
	}

	now := s.now().UTC()
	session := &domain.ExplorationSession{
		ID:             domain.SessionID(s.newID()),
		ItemID:         in.ItemID,
		ItemType:       in.ItemType,
		ScopeID:        in.ScopeID,
		Backend:        s.opts.Backend,
		ModelID:        s.opts.Model,
		Dimensions:     dims,
		Status:         domain.StatusNotStarted,
		TotalQuestions: len(dims),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	log = log.With("session_id", session.ID)
	log.Info("starting new session", "dimensions", len(dims))

	tc := turnContext{
		session:    session,
		label:      cfg.Label(),
		itemName:   item.Name,
		brief:      cfg.BuildItemContext(item),
		dimensions: dims,
	}
	question := s.question(ctx, tc, nil, dims[0])

	msgs := []*domain.ExplorationMessage{
		s.message(session, domain.MessageSystemIntro, cfg.BuildIntro(item), 0, nil),
		s.message(session, domain.MessageAIQuestion, question.text, 1, question.metadata(dims[0].Key)),
	}

	session.Status = domain.StatusInProgress
	if err := s.store.CreateSession(ctx, session, msgs); err != nil {
		log.Error("failed to create session", "error", err)
		return nil, domain.PersistenceError(op, err)
	}

	log.Info("session started")
	return &SessionView{Session: session, Messages: msgs}, nil
}

// sessionDimensions prefers the set pinned at start. Sessions stored
// before dimensions were pinned fall back to the item's current variant.
func sessionDimensions(session *domain.ExplorationSession, cfg itemtype.Config, item *domain.Item) []domain.DimensionQuestion {
	if len(session.Dimensions) > 0 {
		return session.Dimensions
	}
	return cfg.Dimensions(item)
}

type SubmitAnswerInput struct {
	SessionID domain.SessionID
	Content   string
}

type SubmitAnswerOutput struct {
	Feedback *domain.ExplorationMessage
	// NextQuestion is nil once every dimension has been asked.
	NextQuestion      *domain.ExplorationMessage
	Progress          int
	AnsweredQuestions int
	TotalQuestions    int
	Session           *domain.ExplorationSession
}

// SubmitAnswer appends the answer, its feedback and the next question in one
// store write. A second submit while one is in flight is rejected.
func (s *Service) SubmitAnswer(ctx context.Context, in SubmitAnswerInput) (*SubmitAnswerOutput, error) {
	const op = "submit answer"

	answer := strings.TrimSpace(in.Content)
	if answer == "" {
		return nil, domain.ClientError(op, domain.ErrEmptyAnswer)
	}

	release, ok := s.locks.TryAcquire(string(in.SessionID))
	if !ok {
		return nil, domain.ConflictError(op, domain.ErrSessionBusy)
	}
	defer release()

	session, err := s.loadSession(ctx, op, in.SessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != domain.StatusInProgress {
		return nil, domain.ConflictError(op, fmt.Errorf("session is %s: %w", session.Status, domain.ErrInvalidTransition))
	}

	log := observability.LoggerFromContext(ctx).With(
		"session_id", session.ID,
		"item_type", session.ItemType,
		"item_id", session.ItemID,
	)

	cfg, item, err := s.resolveItem(ctx, op, session)
	if err != nil {
		return nil, err
	}
	history, err := s.store.ListMessages(ctx, session.ID)
	if err != nil {
		return nil, domain.PersistenceError(op, err)
	}

	dims := sessionDimensions(session, cfg, item)
	if len(dims) == 0 {
		return nil, fmt.Errorf("%s: kind %s has no dimensions", op, session.ItemType)
	}
	idx := session.CurrentDimensionIndex
	bonus := idx >= len(dims)
	dim := dims[min(idx, len(dims)-1)]

	tc := turnContext{
		session:    session,
		label:      cfg.Label(),
		itemName:   item.Name,
		brief:      cfg.BuildItemContext(item),
		dimensions: dims,
	}

	questionText := ""
	if q := lastQuestion(history); q != nil {
		questionText = q.Content
	}
	feedback := s.feedback(ctx, tc, dim, questionText, answer, bonus)

	next := len(history)
	answerMsg := s.message(session, domain.MessageUserAnswer, answer, next, &domain.MessageMetadata{DimensionKey: dim.Key, Bonus: bonus})
	feedbackMsg := s.message(session, domain.MessageAIFeedback, feedback.text, next+1, feedback.metadata(dim.Key))
	turn := []*domain.ExplorationMessage{answerMsg, feedbackMsg}

	var questionMsg *domain.ExplorationMessage
	if !bonus {
		idx++
		if idx < len(dims) {
			q := s.question(ctx, tc, append(history, answerMsg), dims[idx])
			questionMsg = s.message(session, domain.MessageAIQuestion, q.text, next+2, q.metadata(dims[idx].Key))
			turn = append(turn, questionMsg)
		}
	}

	updated := session.Clone()
	updated.CurrentDimensionIndex = idx
	updated.AnsweredQuestions = domain.CountAnswers(history) + 1
	updated.Progress = domain.ComputeProgress(updated.AnsweredQuestions, updated.TotalQuestions)
	updated.UpdatedAt = s.now().UTC()

	if err := s.store.SaveTurn(ctx, updated, turn); err != nil {
		log.Error("failed to save turn", "error", err)
		if errors.Is(err, domain.ErrOrderConflict) {
			return nil, domain.ConflictError(op, err)
		}
		return nil, domain.PersistenceError(op, err)
	}

	log.Info("answer recorded",
		"dimension", dim.Key,
		"bonus", bonus,
		"answered", updated.AnsweredQuestions,
		"progress", updated.Progress,
	)

	return &SubmitAnswerOutput{
		Feedback:          feedbackMsg,
		NextQuestion:      questionMsg,
		Progress:          updated.Progress,
		AnsweredQuestions: updated.AnsweredQuestions,
		TotalQuestions:    updated.TotalQuestions,
		Session:           updated,
	}, nil
}

// CompleteSession closes the interview once every dimension is answered.
// Completing a completed session is a no-op.
func (s *Service) CompleteSession(ctx context.Context, id domain.SessionID) error {
	const op = "complete session"

	release, err := s.locks.Acquire(ctx, string(id))
	if err != nil {
		return err
	}
	defer release()

	session, err := s.loadSession(ctx, op, id)
	if err != nil {
		return err
	}
	if session.Status == domain.StatusCompleted {
		return nil
	}
	if !domain.CanTransition(session.Status, domain.StatusCompleted) {
		return domain.ConflictError(op, fmt.Errorf("session is %s: %w", session.Status, domain.ErrInvalidTransition))
	}

	msgs, err := s.store.ListMessages(ctx, id)
	if err != nil {
		return domain.PersistenceError(op, err)
	}
	answered := domain.CountAnswers(msgs)
	if answered < session.TotalQuestions {
		return domain.ClientError(op, fmt.Errorf("%d of %d answered: %w", answered, session.TotalQuestions, domain.ErrIncompleteSession))
	}

	session.Status = domain.StatusCompleted
	session.AnsweredQuestions = answered
	session.Progress = domain.ComputeProgress(answered, session.TotalQuestions)
	session.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateSession(ctx, session); err != nil {
		return domain.PersistenceError(op, err)
	}

	observability.LoggerFromContext(ctx).Info("session completed", "session_id", id, "answered", answered)
	return nil
}

// GenerateReport moves the session to REPORT_GENERATING and synthesizes the
// report in the background. Callers poll GetSession for the outcome.
//
// A session left in REPORT_GENERATING by a run that no longer exists (the
// process restarted, or the run outlived its deadline) can be started again.
func (s *Service) GenerateReport(ctx context.Context, id domain.SessionID) error {
	const op = "generate report"

	release, err := s.locks.Acquire(ctx, string(id))
	if err != nil {
		return err
	}
	defer release()

	session, err := s.loadSession(ctx, op, id)
	if err != nil {
		return err
	}
	log := observability.LoggerFromContext(ctx).With("session_id", id, "item_type", session.ItemType, "item_id", session.ItemID)

	switch {
	case session.Status == domain.StatusReportGenerating:
		if !s.reportStalled(session) {
			return domain.ConflictError(op, fmt.Errorf("report already running: %w", domain.ErrInvalidTransition))
		}
		log.Warn("restarting stalled report", "since", session.UpdatedAt)
	case !domain.CanTransition(session.Status, domain.StatusReportGenerating):
		return domain.ConflictError(op, fmt.Errorf("session is %s: %w", session.Status, domain.ErrInvalidTransition))
	}
	if session.AnsweredQuestions < session.TotalQuestions {
		return domain.ClientError(op, domain.ErrIncompleteSession)
	}

	session.Status = domain.StatusReportGenerating
	session.LastError = ""
	session.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateSession(ctx, session); err != nil {
		return domain.PersistenceError(op, err)
	}

	log.Info("report generation queued")

	// The report outlives the request that asked for it.
	bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.ReportTimeout)
	s.track(id, 1)
	s.reports.Add(1)
	go func() {
		defer s.reports.Done()
		defer s.track(id, -1)
		defer cancel()
		s.runReport(bg, session.Clone())
	}()
	return nil
}

// reportStalled reports whether nothing can still finish the session's
// report: no run is tracked here and the last write is older than a run's
// deadline, so no other instance is still working on it either.
func (s *Service) reportStalled(session *domain.ExplorationSession) bool {
	s.mu.Lock()
	running := s.running[session.ID]
	s.mu.Unlock()
	if running > 0 {
		return false
	}
	return s.now().Sub(session.UpdatedAt) > s.opts.ReportTimeout
}

func (s *Service) track(id domain.SessionID, delta int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := s.running[id] + delta; n > 0 {
		s.running[id] = n
	} else {
		delete(s.running, id)
	}
}

func (s *Service) runReport(ctx context.Context, session *domain.ExplorationSession) {
	log := observability.LoggerFromContext(ctx).With("session_id", session.ID)

	report, cfg, err := s.synthesize(ctx, session)
	if err != nil {
		log.Error("report generation failed", "error", err)
		s.finishReport(ctx, session.ID, func(sess *domain.ExplorationSession) {
			sess.Status = domain.StatusError
			sess.LastError = err.Error()
		})
		return
	}

	if !s.finishReport(ctx, session.ID, func(sess *domain.ExplorationSession) {
		sess.Status = domain.StatusReportReady
		sess.Report = report
	}) {
		return
	}
	log.Info("report ready", "findings", len(report.Findings))

	updater, ok := cfg.(itemtype.ResearchMethodUpdater)
	if !ok {
		return
	}
	coverage, err := updater.UpdateResearchMethod(ctx, session.ItemID, session.ScopeID)
	if err != nil {
		// The report stands; coverage is recomputable from method records.
		log.Error("failed to update research method", "error", err)
		return
	}
	log.Info("validation coverage updated", "coverage", coverage)
}

func (s *Service) synthesize(ctx context.Context, session *domain.ExplorationSession) (*domain.InsightReport, itemtype.Config, error) {
	const op = "generate report"

	cfg, item, err := s.resolveItem(ctx, op, session)
	if err != nil {
		return nil, nil, err
	}
	msgs, err := s.store.ListMessages(ctx, session.ID)
	if err != nil {
		return nil, nil, domain.PersistenceError(op, err)
	}
	report, err := cfg.GenerateInsights(ctx, item, session, msgs)
	if err != nil {
		if domain.KindOf(err) == domain.KindUnknown {
			err = domain.SynthesisError(op, err)
		}
		return nil, nil, err
	}
	return report, cfg, nil
}

// finishReport applies the final transition under the session lock. It only
// touches sessions still in REPORT_GENERATING.
func (s *Service) finishReport(ctx context.Context, id domain.SessionID, apply func(*domain.ExplorationSession)) bool {
	log := observability.LoggerFromContext(ctx).With("session_id", id)
	// Writes must land even if the synthesis used up the deadline.
	ctx = context.WithoutCancel(ctx)

	release, err := s.locks.Acquire(ctx, string(id))
	if err != nil {
		log.Error("failed to lock session for report", "error", err)
		return false
	}
	defer release()

	session, err := s.store.GetSession(ctx, id)
	if err != nil {
		log.Error("failed to reload session for report", "error", err)
		return false
	}
	if session.Status != domain.StatusReportGenerating {
		log.Warn("session left REPORT_GENERATING while the report was running", "status", session.Status)
		return false
	}

	apply(session)
	session.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateSession(ctx, session); err != nil {
		log.Error("failed to store report outcome", "error", err, "status", session.Status)
		return false
	}
	return true
}

// GetSession returns the session and its transcript.
func (s *Service) GetSession(ctx context.Context, id domain.SessionID) (*SessionView, error) {
	const op = "get session"

	session, err := s.store.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NotFoundError(op, fmt.Errorf("%s: %w", id, domain.ErrSessionNotFound))
		}
		return nil, domain.PersistenceError(op, err)
	}
	msgs, err := s.store.ListMessages(ctx, id)
	if err != nil {
		return nil, domain.PersistenceError(op, err)
	}
	return &SessionView{Session: session, Messages: msgs}, nil
}

// LockSession freezes a session once its report has been approved.
func (s *Service) LockSession(ctx context.Context, id domain.SessionID) error {
	const op = "lock session"

	release, err := s.locks.Acquire(ctx, string(id))
	if err != nil {
		return err
	}
	defer release()

	session, err := s.store.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.NotFoundError(op, fmt.Errorf("%s: %w", id, domain.ErrSessionNotFound))
		}
		return domain.PersistenceError(op, err)
	}
	if session.Locked {
		return nil
	}
	if session.Status != domain.StatusReportReady {
		return domain.ConflictError(op, fmt.Errorf("session is %s: %w", session.Status, domain.ErrInvalidTransition))
	}

	session.Locked = true
	session.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateSession(ctx, session); err != nil {
		return domain.PersistenceError(op, err)
	}
	observability.LoggerFromContext(ctx).Info("session locked", "session_id", id)
	return nil
}

// Wait blocks until every background report has finished.
func (s *Service) Wait() {
	s.reports.Wait()
}

// loadSession reads a session that is about to be mutated.
func (s *Service) loadSession(ctx context.Context, op string, id domain.SessionID) (*domain.ExplorationSession, error) {
	session, err := s.store.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NotFoundError(op, fmt.Errorf("%s: %w", id, domain.ErrSessionNotFound))
		}
		return nil, domain.PersistenceError(op, err)
	}
	if session.Locked {
		return nil, domain.ConflictError(op, domain.ErrSessionLocked)
	}
	return session, nil
}

func (s *Service) resolveItem(ctx context.Context, op string, session *domain.ExplorationSession) (itemtype.Config, *domain.Item, error) {
	cfg, err := s.registry.Lookup(session.ItemType)
	if err != nil {
		return nil, nil, err
	}
	item, err := cfg.FetchItem(ctx, session.ItemID, session.ScopeID)
	if err != nil {
		return nil, nil, domain.PersistenceError(op, err)
	}
	if item == nil {
		return nil, nil, domain.NotFoundError(op, fmt.Errorf("%s %q: %w", session.ItemType, session.ItemID, domain.ErrItemNotFound))
	}
	return cfg, item, nil
}

func (s *Service) message(session *domain.ExplorationSession, typ domain.MessageType, content string, order int, md *domain.MessageMetadata) *domain.ExplorationMessage {
	return &domain.ExplorationMessage{
		ID:         domain.MessageID(s.newID()),
		SessionID:  session.ID,
		Type:       typ,
		Content:    content,
		OrderIndex: order,
		Metadata:   md,
		CreatedAt:  s.now().UTC(),
	}
}

type generated struct {
	text     string
	fallback bool
}

func (g generated) metadata(key string) *domain.MessageMetadata {
	return &domain.MessageMetadata{DimensionKey: key, Fallback: g.fallback}
}

// question asks the model for the next question and falls back to the
// dimension's scripted text.
func (s *Service) question(ctx context.Context, tc turnContext, history []*domain.ExplorationMessage, dim domain.DimensionQuestion) generated {
	if text := s.llm.Call(ctx, tc.questionRequest(history, dim)); text != "" {
		return generated{text: text}
	}
	observability.LoggerFromContext(ctx).Warn("using scripted question", "session_id", tc.session.ID, "dimension", dim.Key)
	return generated{text: dim.Question, fallback: true}
}

func (s *Service) feedback(ctx context.Context, tc turnContext, dim domain.DimensionQuestion, question, answer string, bonus bool) generated {
	if text := s.llm.Call(ctx, tc.feedbackRequest(dim, question, answer)); text != "" {
		return generated{text: text}
	}
	observability.LoggerFromContext(ctx).Warn("using scripted feedback", "session_id", tc.session.ID, "dimension", dim.Key)
	if bonus {
		return generated{text: fallbackBonusFeedback, fallback: true}
	}
	return generated{text: fallbackFeedback, fallback: true}
}
