package worker

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"nutriplan/internal/errs"
	"nutriplan/internal/models"
	"nutriplan/internal/service/ai"
	"nutriplan/internal/service/planner"
)

// Completer runs one chat completion over a conversation history.
type Completer interface {
	Generate(ctx context.Context, history []*models.Message) (string, error)
}

// CompleterFactory builds a completer for a provider/model pair. Built
// completers are cached by the manager.
type CompleterFactory func(provider, model string) (Completer, error)

// Config tunes the worker pool and completion calls.
type Config struct {
	MinWorkers        int
	MaxWorkers        int
	QueueSize         int
	IdleTimeout       time.Duration
	CompletionTimeout time.Duration
}

const defaultCompletionTimeout = 2 * time.Minute

// Manager schedules chat work onto the pool and serializes exchanges per
// session, so two concurrent prompts to the same session cannot interleave
// their history or double-apply prompt_count.
type Manager struct {
	planner *planner.Service
	pool    *Pool
	factory CompleterFactory
	timeout time.Duration

	mu     sync.Mutex
	states map[int64]*sessionState

	cmu        sync.Mutex
	completers map[string]Completer
}

// sessionState caches one session's conversation between exchanges. Its
// mutex is the per-session serialization point; owner is kept separately
// and atomically so ResetUser can scan states without taking every lane
// lock behind an in-flight completion.
type sessionState struct {
	mu      sync.Mutex
	owner   atomic.Int64
	loaded  bool
	session *models.ChatSession
	history []*models.Message
}

func NewManager(svc *planner.Service, factory CompleterFactory, cfg Config) *Manager {
	timeout := cfg.CompletionTimeout
	if timeout <= 0 {
		timeout = defaultCompletionTimeout
	}
	return &Manager{
		planner:    svc,
		pool:       NewPool(cfg.MinWorkers, cfg.MaxWorkers, cfg.QueueSize, cfg.IdleTimeout),
		factory:    factory,
		timeout:    timeout,
		states:     make(map[int64]*sessionState),
		completers: make(map[string]Completer),
	}
}

// CreateRequest starts a new planning session.
type CreateRequest struct {
	UserID   int64
	Startup  *models.StartupData
	Title    string
	Provider string
	Model    string
}

// CreateResult is the new session and the assistant's opening reply.
type CreateResult struct {
	Session *models.ChatSession
	Reply   string
}

// ExchangeRequest is one user prompt against an existing session.
type ExchangeRequest struct {
	UserID    int64
	SessionID int64
	Content   string
	Provider  string
	Model     string
}

// ExchangeResult carries the stored messages and the session's new prompt
// count.
type ExchangeResult struct {
	SessionID   int64
	UserMessage *models.Message
	Message     *models.Message
	PromptCount int
}

// CreateSession validates the startup data, runs the opening completion
// and persists the session with its first exchange. Validation fails
// before any network call.
func (m *Manager) CreateSession(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	if req.Startup == nil {
		return nil, errs.Validationf("startup data is required")
	}
	if err := req.Startup.Validate(); err != nil {
		return nil, err
	}
	completer, err := m.completer(req.Provider, req.Model)
	if err != nil {
		return nil, errs.Upstream("completion client unavailable", err)
	}

	type createReturn struct {
		result *CreateResult
		err    error
	}
	done := make(chan createReturn, 1)
	job := func() {
		systemPrompt := ai.SystemPrompt(req.Startup)
		title := strings.TrimSpace(req.Title)
		if title == "" {
			title = ai.SessionTitle(req.Startup, time.Now())
		}
		history := []*models.Message{{Role: models.RoleSystem, Content: systemPrompt}}

		cctx, cancel := context.WithTimeout(ctx, m.timeout)
		reply, err := completer.Generate(cctx, history)
		cancel()
		if err != nil {
			done <- createReturn{err: errs.Upstream("completion failed", err)}
			return
		}

		session, err := m.planner.CreateSessionWithExchange(ctx, req.UserID, req.Startup, title, systemPrompt, reply)
		if err != nil {
			done <- createReturn{err: err}
			return
		}
		m.primeState(session, []*models.Message{
			{SessionID: session.ID, UserID: req.UserID, Role: models.RoleSystem, Content: systemPrompt},
			{SessionID: session.ID, UserID: req.UserID, Role: models.RoleAssistant, Content: reply},
		})
		debugf("worker: created session %d for user %d", session.ID, req.UserID)
		done <- createReturn{result: &CreateResult{Session: session, Reply: reply}}
	}
	if err := m.pool.Submit(job); err != nil {
		return nil, err
	}
	select {
	case r := <-done:
		return r.result, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Exchange runs one prompt through the session's serialized lane. On
// upstream failure nothing is persisted and the session row is unchanged.
func (m *Manager) Exchange(ctx context.Context, req ExchangeRequest) (*ExchangeResult, error) {
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, errs.Validationf("message content is required")
	}
	completer, err := m.completer(req.Provider, req.Model)
	if err != nil {
		return nil, errs.Upstream("completion client unavailable", err)
	}
	state := m.state(req.SessionID)

	type exchangeReturn struct {
		result *ExchangeResult
		err    error
	}
	done := make(chan exchangeReturn, 1)
	job := func() {
		state.mu.Lock()
		defer state.mu.Unlock()

		if !state.loaded {
			session, msgs, err := m.planner.GetSessionWithMessages(ctx, req.UserID, req.SessionID)
			if err != nil {
				done <- exchangeReturn{err: err}
				return
			}
			state.session = session
			state.history = msgs
			state.loaded = true
			state.owner.Store(session.UserID)
		} else if state.session.UserID != req.UserID {
			done <- exchangeReturn{err: errs.NotFound("session not found")}
			return
		}

		cctx := ai.WithToolSession(ctx, req.UserID, req.SessionID)

		attempt := make([]*models.Message, 0, len(state.history)+2)
		attempt = append(attempt, state.history...)
		// uploaded documents go in as a manifest so the model knows which
		// file_id values attachment_reader accepts
		if files, err := m.planner.SessionAttachments(ctx, req.UserID, req.SessionID); err == nil && len(files) > 0 {
			cctx = ai.WithAttachments(cctx, files)
			attempt = append(attempt, &models.Message{
				SessionID: req.SessionID,
				UserID:    req.UserID,
				Role:      models.RoleSystem,
				Content:   ai.AttachmentManifest(files),
			})
		}
		attempt = append(attempt, &models.Message{
			SessionID: req.SessionID,
			UserID:    req.UserID,
			Role:      models.RoleUser,
			Content:   content,
		})

		cctx, cancel := context.WithTimeout(cctx, m.timeout)
		reply, err := completer.Generate(cctx, attempt)
		cancel()
		if err != nil {
			done <- exchangeReturn{err: errs.Upstream("completion failed", err)}
			return
		}

		userMsg, aiMsg, promptCount, err := m.planner.AppendExchange(ctx, req.UserID, req.SessionID, content, reply)
		if err != nil {
			done <- exchangeReturn{err: err}
			return
		}
		state.history = append(state.history, userMsg, aiMsg)
		state.session.PromptCount = promptCount
		debugf("worker: session %d exchange %d complete", req.SessionID, promptCount)
		done <- exchangeReturn{result: &ExchangeResult{
			SessionID:   req.SessionID,
			UserMessage: userMsg,
			Message:     aiMsg,
			PromptCount: promptCount,
		}}
	}
	if err := m.pool.Submit(job); err != nil {
		return nil, err
	}
	select {
	case r := <-done:
		return r.result, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Purge drops a session's cached state after deletion.
func (m *Manager) Purge(sessionID int64) {
	m.mu.Lock()
	delete(m.states, sessionID)
	m.mu.Unlock()
}

// ResetUser drops all cached state belonging to a user, used on account
// deletion and logout-everywhere. Only the atomic owner id is read here:
// the session row itself belongs to the lane lock, which may be held by an
// in-flight exchange. A state that never finished loading has owner 0 and
// holds nothing worth dropping.
func (m *Manager) ResetUser(userID int64) {
	m.mu.Lock()
	for id, st := range m.states {
		if st.owner.Load() == userID {
			delete(m.states, id)
		}
	}
	m.mu.Unlock()
}

func (m *Manager) state(sessionID int64) *sessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[sessionID]
	if !ok {
		st = &sessionState{}
		m.states[sessionID] = st
	}
	return st
}

func (m *Manager) primeState(session *models.ChatSession, history []*models.Message) {
	st := m.state(session.ID)
	st.mu.Lock()
	st.session = session
	st.history = history
	st.loaded = true
	st.owner.Store(session.UserID)
	st.mu.Unlock()
}

func (m *Manager) completer(provider, model string) (Completer, error) {
	key := provider + "/" + model
	m.cmu.Lock()
	defer m.cmu.Unlock()
	if c, ok := m.completers[key]; ok {
		return c, nil
	}
	c, err := m.factory(provider, model)
	if err != nil {
		return nil, err
	}
	m.completers[key] = c
	return c, nil
}
