package conversation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"agribot-workers/internal/common/config"
	"agribot-workers/internal/common/logger"
	"agribot-workers/internal/common/metrics"
	"agribot-workers/internal/knowledge"
	"agribot-workers/internal/nlp"
	"agribot-workers/internal/nlp/entity"
	"agribot-workers/internal/nlp/intent"
	"agribot-workers/internal/repository"

	"github.com/google/uuid"
)

var (
	ErrNoActiveConversation = errors.New("NO_ACTIVE_CONVERSATION")
	ErrStateStoreFailed     = errors.New("STATE_STORE_FAILED")
)

const (
	DefaultSessionTimeout = 120 * time.Minute
	DefaultMaxHistory     = 10
	DefaultMaxCrops       = 5
	DefaultMaxRegions     = 3
	DefaultMaxDiseases    = 5
	DefaultMaxPests       = 5

	endReasonExplicit = "explicit"
	endReasonExpired  = "expired"
)

// ConversationStore is the conversation table the tracker writes through to.
type ConversationStore interface {
	CreateConversation(ctx context.Context, userID, region string) (int64, error)
	AddMessage(ctx context.Context, msg repository.Message) error
	UpdateContext(ctx context.Context, conversationID int64, topic string, crops []string) error
	EndConversation(ctx context.Context, conversationID int64) error
}

type UserStore interface {
	GetOrCreateUser(ctx context.Context, userID, name, region string) (*repository.User, error)
	IncrementConversations(ctx context.Context, userID string) error
}

// Options bounds the state a session may hold. Zero values take the defaults.
type Options struct {
	SessionTimeout time.Duration
	MaxHistory     int
	MaxCrops       int
	MaxRegions     int
	MaxDiseases    int
	MaxPests       int
	Now            func() time.Time
}

func OptionsFromConfig(cfg config.ConversationConfig) Options {
	return Options{
		SessionTimeout: cfg.SessionTimeout(),
		MaxHistory:     cfg.MaxHistory,
		MaxCrops:       cfg.MaxCrops,
		MaxRegions:     cfg.MaxRegions,
		MaxDiseases:    cfg.MaxDiseases,
		MaxPests:       cfg.MaxPests,
	}
}

func (o Options) withDefaults() Options {
	if o.SessionTimeout <= 0 {
		o.SessionTimeout = DefaultSessionTimeout
	}
	if o.MaxHistory <= 0 {
		o.MaxHistory = DefaultMaxHistory
	}
	if o.MaxCrops <= 0 {
		o.MaxCrops = DefaultMaxCrops
	}
	if o.MaxRegions <= 0 {
		o.MaxRegions = DefaultMaxRegions
	}
	if o.MaxDiseases <= 0 {
		o.MaxDiseases = DefaultMaxDiseases
	}
	if o.MaxPests <= 0 {
		o.MaxPests = DefaultMaxPests
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Tracker owns the active sessions of one deployment. With a MemoryStore the
// sessions are local to the process; with a RedisStore they are shared.
// Concurrent updates for the same user are last-write-wins.
type Tracker struct {
	store         StateStore
	conversations ConversationStore
	users         UserStore
	topics        knowledge.Conversation
	opts          Options
	log           logger.Logger
}

// NewTracker builds a tracker. conversations and users may be nil, in which
// case sessions are kept in the store only.
func NewTracker(store StateStore, conversations ConversationStore, users UserStore, topics knowledge.Conversation, opts Options, log logger.Logger) *Tracker {
	return &Tracker{
		store:         store,
		conversations: conversations,
		users:         users,
		topics:        topics,
		opts:          opts.withDefaults(),
		log:           log.WithFields(map[string]interface{}{"component": "conversation-tracker"}),
	}
}

// GetOrCreate returns the user's active state. A session idle for at least
// the timeout is ended and replaced by a fresh one.
func (t *Tracker) GetOrCreate(ctx context.Context, userID, name, region string) (*State, error) {
	state, err := t.get(ctx, userID)
	switch {
	case err == nil:
		if !t.expired(state) {
			return state, nil
		}
		if err := t.evict(ctx, state); err != nil {
			if !errors.Is(err, repository.ErrPersistenceFailed) {
				return nil, err
			}
			t.log.Warn("expired conversation not closed in storage", map[string]interface{}{
				"userId": userID,
				"error":  err.Error(),
			})
		}
	case errors.Is(err, ErrNoActiveConversation):
	default:
		return nil, err
	}

	return t.create(ctx, userID, name, region)
}

func (t *Tracker) create(ctx context.Context, userID, name, region string) (*State, error) {
	now := t.opts.Now()
	if name == "" {
		name = repository.DefaultUserName
	}
	if region == "" {
		region = repository.DefaultRegion
	}

	state := &State{
		UserID:            userID,
		SessionID:         uuid.NewString(),
		CurrentTopic:      TopicGreeting,
		MentionedCrops:    []string{},
		MentionedRegions:  []string{},
		MentionedDiseases: []string{},
		MentionedPests:    []string{},
		SessionStart:      now,
		LastActivity:      now,
		History:           []Turn{},
		Preferences:       Preferences{Name: name, Region: region, Role: repository.DefaultRole},
	}

	if t.users != nil {
		user, err := t.users.GetOrCreateUser(ctx, userID, name, region)
		if err != nil {
			metrics.PersistenceFailures.WithLabelValues("get_or_create_user").Inc()
			return nil, err
		}
		state.Preferences = Preferences{
			Name:               user.Name,
			Region:             user.Region,
			Role:               user.Role,
			TotalConversations: user.TotalConversations,
		}
	}

	if t.conversations != nil {
		id, err := t.conversations.CreateConversation(ctx, userID, region)
		if err != nil {
			metrics.PersistenceFailures.WithLabelValues("create_conversation").Inc()
			return nil, err
		}
		state.ConversationID = &id
	}

	if err := t.put(ctx, state); err != nil {
		return nil, err
	}

	metrics.ConversationsStarted.Inc()
	t.log.Info("conversation started", map[string]interface{}{
		"userId":         userID,
		"sessionId":      state.SessionID,
		"conversationId": conversationID(state),
	})
	return state, nil
}

// Update records a turn. The updated state is stored before the turn is
// written to the repositories; on a persistence error the updated state is
// returned together with an error wrapping repository.ErrPersistenceFailed.
func (t *Tracker) Update(ctx context.Context, userID, userText string, analysis nlp.Analysis, botText string) (*State, error) {
	state, err := t.get(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := t.opts.Now()
	state.TurnCount++
	state.LastActivity = now

	primary := nlp.PrimaryIntent(analysis)
	confidence := nlp.IntentConfidence(analysis)
	if primary != intent.Unknown {
		state.CurrentTopic = primary
		state.LastIntent = primary
		state.LastConfidence = confidence
	}

	summary := nlp.EntitySummary(analysis)
	state.MentionedCrops = mergeRecent(state.MentionedCrops, summary[entity.Crops], t.opts.MaxCrops)
	state.MentionedRegions = mergeRecent(state.MentionedRegions, summary[entity.Regions], t.opts.MaxRegions)
	state.MentionedDiseases = mergeRecent(state.MentionedDiseases, summary[entity.Diseases], t.opts.MaxDiseases)
	state.MentionedPests = mergeRecent(state.MentionedPests, summary[entity.Pests], t.opts.MaxPests)

	state.History = append(state.History, Turn{
		Timestamp:  now,
		UserText:   userText,
		BotText:    botText,
		Intent:     state.LastIntent,
		Confidence: state.LastConfidence,
		Entities:   summary,
	})
	if len(state.History) > t.opts.MaxHistory {
		state.History = append([]Turn{}, state.History[len(state.History)-t.opts.MaxHistory:]...)
	}

	if err := t.put(ctx, state); err != nil {
		return nil, err
	}

	if err := t.persistTurn(ctx, state, userText, botText, analysis, summary); err != nil {
		t.log.Error("turn not persisted", map[string]interface{}{
			"userId":         userID,
			"conversationId": conversationID(state),
			"turnCount":      state.TurnCount,
			"error":          err.Error(),
		})
		return state, err
	}
	return state, nil
}

func (t *Tracker) persistTurn(ctx context.Context, state *State, userText, botText string, analysis nlp.Analysis, entities map[string][]string) error {
	if state.ConversationID == nil || t.conversations == nil {
		return nil
	}
	id := *state.ConversationID
	primary := nlp.PrimaryIntent(analysis)
	confidence := nlp.IntentConfidence(analysis)

	var sentiment *float64
	if rb, ok := analysis.(*nlp.RuleBased); ok {
		polarity := rb.Sentiment.Polarity
		sentiment = &polarity
	}

	if err := t.conversations.AddMessage(ctx, repository.Message{
		ConversationID: id,
		Type:           repository.MessageTypeUser,
		Content:        userText,
		Intent:         primary,
		Confidence:     &confidence,
		Entities:       entities,
		Sentiment:      sentiment,
	}); err != nil {
		metrics.PersistenceFailures.WithLabelValues("add_user_message").Inc()
		return err
	}

	if err := t.conversations.AddMessage(ctx, repository.Message{
		ConversationID: id,
		Type:           repository.MessageTypeBot,
		Content:        botText,
		Intent:         primary,
		Confidence:     &confidence,
	}); err != nil {
		metrics.PersistenceFailures.WithLabelValues("add_bot_message").Inc()
		return err
	}

	if err := t.conversations.UpdateContext(ctx, id, state.CurrentTopic, state.MentionedCrops); err != nil {
		metrics.PersistenceFailures.WithLabelValues("update_context").Inc()
		return err
	}
	return nil
}

// SuggestNextTopics follows the transition table from the current topic and
// adds crop topics once a crop has come up. Users without a session get the
// default topics.
func (t *Tracker) SuggestNextTopics(ctx context.Context, userID string) ([]string, error) {
	state, err := t.get(ctx, userID)
	if errors.Is(err, ErrNoActiveConversation) {
		return t.limitTopics(append([]string{}, t.topics.DefaultTopics...)), nil
	}
	if err != nil {
		return nil, err
	}
	return t.suggest(state), nil
}

func (t *Tracker) suggest(state *State) []string {
	topics := append([]string{}, t.topics.Transitions[state.CurrentTopic]...)
	if len(state.MentionedCrops) > 0 {
		for _, topic := range t.topics.CropTopics {
			if !contains(topics, topic) {
				topics = append(topics, topic)
			}
		}
	}
	return t.limitTopics(topics)
}

func (t *Tracker) limitTopics(topics []string) []string {
	if limit := t.topics.SuggestionLimit; limit > 0 && len(topics) > limit {
		return topics[:limit]
	}
	return topics
}

// Summary describes the user's active session.
func (t *Tracker) Summary(ctx context.Context, userID string) (*Summary, error) {
	state, err := t.get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return t.summarize(state), nil
}

// End closes the user's session and returns its summary. The session is
// removed even when the repositories fail; that failure is returned with the
// summary.
func (t *Tracker) End(ctx context.Context, userID string) (*Summary, error) {
	state, err := t.get(ctx, userID)
	if err != nil {
		return nil, err
	}
	summary := t.summarize(state)

	var persistErr error
	if state.ConversationID != nil && t.conversations != nil {
		if err := t.conversations.EndConversation(ctx, *state.ConversationID); err != nil {
			metrics.PersistenceFailures.WithLabelValues("end_conversation").Inc()
			persistErr = err
		}
	}
	if t.users != nil {
		if err := t.users.IncrementConversations(ctx, userID); err != nil {
			metrics.PersistenceFailures.WithLabelValues("increment_conversations").Inc()
			persistErr = errors.Join(persistErr, err)
		}
	}

	if err := t.delete(ctx, userID); err != nil {
		return summary, errors.Join(persistErr, err)
	}

	metrics.ConversationsEnded.WithLabelValues(endReasonExplicit).Inc()
	t.log.Info("conversation ended", map[string]interface{}{
		"userId":         userID,
		"conversationId": conversationID(state),
		"turnCount":      state.TurnCount,
	})
	return summary, persistErr
}

// CleanupExpired ends every session idle for at least the timeout and
// returns how many were removed.
func (t *Tracker) CleanupExpired(ctx context.Context) (int, error) {
	states, err := t.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStateStoreFailed, err)
	}

	removed := 0
	var errs []error
	for _, state := range states {
		if !t.expired(state) {
			continue
		}
		err := t.evict(ctx, state)
		if err == nil || errors.Is(err, repository.ErrPersistenceFailed) {
			removed++
		}
		if err != nil {
			errs = append(errs, err)
		}
	}

	metrics.ActiveConversations.Set(float64(len(states) - removed))
	if removed > 0 {
		t.log.Info("expired conversations removed", map[string]interface{}{
			"removed": removed,
			"active":  len(states) - removed,
		})
	}
	return removed, errors.Join(errs...)
}

// evict ends an expired session without counting it as a completed
// conversation for the user.
func (t *Tracker) evict(ctx context.Context, state *State) error {
	var persistErr error
	if state.ConversationID != nil && t.conversations != nil {
		if err := t.conversations.EndConversation(ctx, *state.ConversationID); err != nil {
			metrics.PersistenceFailures.WithLabelValues("end_conversation").Inc()
			persistErr = err
		}
	}
	if err := t.delete(ctx, state.UserID); err != nil {
		return err
	}
	metrics.ConversationsEnded.WithLabelValues(endReasonExpired).Inc()
	return persistErr
}

// ContextFor returns the analysis hints for the user's session, or an empty
// context when there is none.
func (t *Tracker) ContextFor(ctx context.Context, userID string) (nlp.Context, error) {
	state, err := t.get(ctx, userID)
	if errors.Is(err, ErrNoActiveConversation) {
		return nlp.Context{}, nil
	}
	if err != nil {
		return nlp.Context{}, err
	}
	return state.Context(), nil
}

func (t *Tracker) ActiveCount(ctx context.Context) (int, error) {
	states, err := t.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStateStoreFailed, err)
	}
	return len(states), nil
}

func (t *Tracker) expired(state *State) bool {
	return t.opts.Now().Sub(state.LastActivity) >= t.opts.SessionTimeout
}

func (t *Tracker) get(ctx context.Context, userID string) (*State, error) {
	state, err := t.store.Get(ctx, userID)
	if errors.Is(err, ErrStateNotFound) {
		return nil, fmt.Errorf("%w: user %s", ErrNoActiveConversation, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStateStoreFailed, err)
	}
	return state, nil
}

func (t *Tracker) put(ctx context.Context, state *State) error {
	if err := t.store.Put(ctx, state); err != nil {
		return fmt.Errorf("%w: %v", ErrStateStoreFailed, err)
	}
	return nil
}

func (t *Tracker) delete(ctx context.Context, userID string) error {
	if err := t.store.Delete(ctx, userID); err != nil {
		return fmt.Errorf("%w: %v", ErrStateStoreFailed, err)
	}
	return nil
}

func conversationID(state *State) interface{} {
	if state.ConversationID == nil {
		return nil
	}
	return *state.ConversationID
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
