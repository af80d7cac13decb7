// Package thread keeps one consistent, deduplicated, ordered message
// list per open conversation, reconciling three independent sources:
// the bulk history fetch, the outbound send path and the live
// subscription feed.
package thread

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/qlchat/qlchat-go/internal/chat"
	"github.com/qlchat/qlchat-go/internal/graphql"
	"github.com/qlchat/qlchat-go/internal/metrics"
	"github.com/qlchat/qlchat-go/internal/session"
)

// Phase of a conversation view.
type Phase int

const (
	// PhaseLoading means the initial history fetch is in flight.
	PhaseLoading Phase = iota
	// PhaseReady means the list reflects the server and the live feed.
	PhaseReady
	// PhaseFailed means the history fetch failed; Err says why. Transient
	// failures may be retried, terminal ones end the view.
	PhaseFailed
)

// State is the snapshot handed to the consumer after every change.
type State struct {
	ConversationID string
	Conversation   chat.Conversation
	Items          []Item
	Phase          Phase
	// Err is set when Phase == PhaseFailed.
	Err error
	// Notice is a short-lived, user-visible message (a failed send); the
	// consumer dismisses it on its own schedule.
	Notice string
	// NoticeSeq increments with every new notice. Snapshots coalesce, so
	// the consumer keys dismissal on the sequence, not the text: two
	// consecutive failures carry the same text but distinct sequences.
	NoticeSeq int
	// FailedContent preserves the content of the last failed send so the
	// user can retry without retyping.
	FailedContent string
	// Reconnecting is set while the live channel is down and the
	// transport works on re-establishing it.
	Reconnecting bool
}

// Stream is the live feed consumed by the synchronizer.
type Stream interface {
	Events() <-chan chat.StreamEvent
	Close()
}

// API is the remote surface the synchronizer needs.
type API interface {
	History(ctx context.Context, conversationID string) ([]chat.Message, error)
	Send(ctx context.Context, conversationID, content string) (chat.Message, error)
	AddParticipant(ctx context.Context, conversationID, userID string) (chat.Conversation, error)
	SubscribeMessages(ctx context.Context, conversationID string) Stream
}

// errFeedEnded marks a live channel the server completed without a
// terminal error. Classified transient: retry refetches history and
// reopens the feed.
var errFeedEnded = errors.New("live channel ended by server")

type clientAPI struct{ *chat.Client }

func (a clientAPI) SubscribeMessages(ctx context.Context, conversationID string) Stream {
	return a.Client.SubscribeMessages(ctx, conversationID)
}

// WrapClient adapts the chat client to the API surface.
func WrapClient(c *chat.Client) API { return clientAPI{c} }

// commands from the consumer
type sendCmd struct{ content string }
type addParticipantCmd struct{ userID string }
type retryCmd struct{}

// results from in-flight operations
type historyResult struct {
	epoch int
	msgs  []chat.Message
	err   error
}

type sendResult struct {
	corr    string
	content string
	msg     chat.Message
	err     error
}

type addParticipantResult struct {
	conv chat.Conversation
	err  error
}

// Synchronizer reconciles one conversation. All mutable state lives in
// a single goroutine; conversations never share state. Create one per
// open conversation and Close it when navigating away.
type Synchronizer struct {
	api     API
	session session.Session
	conv    chat.Conversation
	timeout time.Duration
	log     zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	cmds   chan any
	events chan State
}

// New starts a synchronizer for conv. timeout bounds each history fetch
// and send; the live channel has no timeout beyond transport reconnect.
func New(api API, sess session.Session, conv chat.Conversation, timeout time.Duration, log zerolog.Logger) *Synchronizer {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Synchronizer{
		api:     api,
		session: sess,
		conv:    conv,
		timeout: timeout,
		log:     log.With().Str("conversation", conv.ID).Logger(),
		ctx:     ctx,
		cancel:  cancel,
		cmds:    make(chan any, 8),
		events:  make(chan State, 1),
	}
	go s.run(ctx)
	return s
}

// Events returns the snapshot channel. Only the latest snapshot is
// retained; slow consumers skip intermediate states. The channel closes
// when the synchronizer shuts down.
func (s *Synchronizer) Events() <-chan State { return s.events }

// Close detaches the live channel and discards the effect of any
// in-flight fetch. Safe to call more than once.
func (s *Synchronizer) Close() { s.cancel() }

// Send submits a new message. Content that is empty after trimming is
// rejected here with a validation failure: no network call is made and
// the list is untouched.
func (s *Synchronizer) Send(content string) error {
	if strings.TrimSpace(content) == "" {
		metrics.SendFailures.WithLabelValues("validation").Inc()
		return graphql.Validation("message content is empty")
	}
	select {
	case s.cmds <- sendCmd{content: content}:
		return nil
	case <-s.ctx.Done():
		return graphql.Transient(s.ctx.Err())
	}
}

// AddParticipant adds a user to the group conversation. On success the
// synchronizer refreshes the full metadata instead of patching locally,
// so server-computed fields (admin lists) cannot drift.
func (s *Synchronizer) AddParticipant(userID string) {
	select {
	case s.cmds <- addParticipantCmd{userID: userID}:
	case <-s.ctx.Done():
	}
}

// Retry re-runs the history fetch after a failure.
func (s *Synchronizer) Retry() {
	select {
	case s.cmds <- retryCmd{}:
	case <-s.ctx.Done():
	}
}

// loopState is owned exclusively by run.
type loopState struct {
	list  *list
	state State
	epoch int
}

func (s *Synchronizer) run(ctx context.Context) {
	defer close(s.events)

	stream := s.api.SubscribeMessages(ctx, s.conv.ID)
	defer func() { stream.Close() }()
	streamCh := stream.Events()

	results := make(chan any, 8)
	st := &loopState{
		list:  newList(),
		state: State{ConversationID: s.conv.ID, Conversation: s.conv, Phase: PhaseLoading},
		epoch: 1,
	}
	s.fetchHistory(ctx, st.epoch, results)
	s.publish(st)

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-streamCh:
			if !ok {
				// The feed can end with no error event when the server
				// completes the subscription. The view cannot stay
				// current without it, so fail it; retry reopens the feed.
				streamCh = nil
				if ctx.Err() == nil && st.state.Phase != PhaseFailed {
					st.state.Phase = PhaseFailed
					st.state.Err = errFeedEnded
					st.state.Reconnecting = false
					s.publish(st)
				}
				continue
			}
			s.handleStreamEvent(ctx, st, ev, results)

		case res := <-results:
			s.handleResult(ctx, st, res, results)

		case cmd := <-s.cmds:
			if _, ok := cmd.(retryCmd); ok && streamCh == nil && ctx.Err() == nil {
				stream.Close()
				stream = s.api.SubscribeMessages(ctx, s.conv.ID)
				streamCh = stream.Events()
			}
			s.handleCommand(ctx, st, cmd, results)
		}
	}
}

func (s *Synchronizer) handleStreamEvent(ctx context.Context, st *loopState, ev chat.StreamEvent, results chan<- any) {
	switch {
	case ev.Message != nil:
		if st.list.append(*ev.Message) {
			metrics.MessagesReceived.Inc()
		} else {
			metrics.DuplicatesSuppressed.Inc()
			s.log.Debug().Str("message", ev.Message.ID).Msg("duplicate delivery suppressed")
		}
		s.publish(st)

	case ev.Reconnected:
		// nothing missed during the gap is replayed; refetch to close it
		st.state.Reconnecting = false
		st.epoch++
		metrics.HistoryRefetches.WithLabelValues("reconnect").Inc()
		s.fetchHistory(ctx, st.epoch, results)
		s.publish(st)

	case ev.Err != nil:
		if graphql.IsTerminal(ev.Err) {
			st.state.Phase = PhaseFailed
			st.state.Err = ev.Err
		} else {
			st.state.Reconnecting = true
		}
		s.publish(st)
	}
}

func (s *Synchronizer) handleResult(ctx context.Context, st *loopState, res any, results chan<- any) {
	switch r := res.(type) {
	case historyResult:
		if r.epoch != st.epoch {
			s.log.Debug().Int("epoch", r.epoch).Msg("stale history fetch discarded")
			return
		}
		if r.err != nil {
			st.state.Phase = PhaseFailed
			st.state.Err = r.err
			s.publish(st)
			return
		}
		st.list.mergeHistory(r.msgs)
		st.state.Phase = PhaseReady
		st.state.Err = nil
		s.adoptMetadata(st, r.msgs)
		s.publish(st)

	case sendResult:
		if r.err != nil {
			st.list.dropPending(r.corr)
			st.state.Notice = "message not sent, try again"
			st.state.NoticeSeq++
			st.state.FailedContent = r.content
			metrics.SendFailures.WithLabelValues("transient").Inc()
			s.publish(st)
			return
		}
		st.list.confirm(r.corr, r.msg)
		st.state.Notice = ""
		st.state.FailedContent = ""
		metrics.MessagesSent.Inc()
		s.publish(st)

	case addParticipantResult:
		if r.err != nil {
			st.state.Notice = "could not add participant"
			st.state.NoticeSeq++
			s.publish(st)
			return
		}
		// adopt the server-computed conversation wholesale, then refetch
		// so every derived field is refreshed
		st.state.Conversation = r.conv
		st.epoch++
		metrics.HistoryRefetches.WithLabelValues("membership").Inc()
		s.fetchHistory(ctx, st.epoch, results)
		s.publish(st)
	}
}

func (s *Synchronizer) handleCommand(ctx context.Context, st *loopState, cmd any, results chan<- any) {
	switch c := cmd.(type) {
	case sendCmd:
		corr := ulid.Make().String()
		echo := chat.Message{
			Sender: chat.User{
				ID:     s.session.Identity.UserID,
				Name:   s.session.Identity.Name,
				Email:  s.session.Identity.Email,
				Avatar: s.session.Identity.Avatar,
			},
			Content: c.content,
			Conversation: chat.ConversationRef{
				ID:      s.conv.ID,
				Name:    st.state.Conversation.Name,
				IsGroup: st.state.Conversation.IsGroup,
			},
		}
		st.list.appendPending(corr, echo)
		st.state.Notice = ""
		st.state.FailedContent = ""
		go func() {
			reqCtx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()
			msg, err := s.api.Send(reqCtx, s.conv.ID, c.content)
			deliver(ctx, results, sendResult{corr: corr, content: c.content, msg: msg, err: err})
		}()
		s.publish(st)

	case addParticipantCmd:
		go func() {
			reqCtx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()
			conv, err := s.api.AddParticipant(reqCtx, s.conv.ID, c.userID)
			deliver(ctx, results, addParticipantResult{conv: conv, err: err})
		}()

	case retryCmd:
		if st.state.Phase != PhaseFailed {
			return
		}
		st.state.Phase = PhaseLoading
		st.state.Err = nil
		st.epoch++
		s.fetchHistory(ctx, st.epoch, results)
		s.publish(st)
	}
}

func (s *Synchronizer) fetchHistory(ctx context.Context, epoch int, results chan<- any) {
	go func() {
		reqCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		msgs, err := s.api.History(reqCtx, s.conv.ID)
		deliver(ctx, results, historyResult{epoch: epoch, msgs: msgs, err: err})
	}()
}

// adoptMetadata refreshes the conversation metadata from the history's
// embedded echo; the server is authoritative for names and membership.
func (s *Synchronizer) adoptMetadata(st *loopState, msgs []chat.Message) {
	if len(msgs) == 0 {
		return
	}
	ref := msgs[len(msgs)-1].Conversation
	if ref.ID != s.conv.ID {
		return
	}
	st.state.Conversation.Name = ref.Name
	st.state.Conversation.IsGroup = ref.IsGroup
	if len(ref.Participants) > 0 {
		st.state.Conversation.Participants = ref.Participants
	}
}

// publish hands the consumer the latest snapshot, replacing any unread
// one: the consumer always observes the freshest state.
func (s *Synchronizer) publish(st *loopState) {
	snap := st.state
	snap.Items = st.list.snapshot()
	for i := range snap.Items {
		snap.Items[i].Own = s.session.Owns(snap.Items[i].Message.Sender.Name)
	}
	for {
		select {
		case s.events <- snap:
			return
		default:
			select {
			case <-s.events:
			default:
			}
		}
	}
}

// deliver posts a result unless the synchronizer is shutting down, so a
// late response for an abandoned conversation has no effect.
func deliver(ctx context.Context, results chan<- any, res any) {
	select {
	case results <- res:
	case <-ctx.Done():
	}
}
