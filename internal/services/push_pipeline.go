package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/CyberwizD/Distributed-Notification-System/services/push_delivery/internal/message"
	"github.com/CyberwizD/Distributed-Notification-System/services/push_delivery/internal/models"
	"github.com/CyberwizD/Distributed-Notification-System/services/push_delivery/pkg/metrics"
)

// State is the furthest point a push attempt reached.
type State int

const (
	StateNew State = iota
	StateValidated
	StateMessageBuilt
	StateSent
	StateResponseHandled
	StateLogged
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateValidated:
		return "validated"
	case StateMessageBuilt:
		return "message_built"
	case StateSent:
		return "sent"
	case StateResponseHandled:
		return "response_handled"
	case StateLogged:
		return "logged"
	default:
		return "unknown"
	}
}

// Sender holds the collaborators shared by every push. It is safe for
// concurrent use; each Push it creates is not.
type Sender struct {
	transport  Transport
	health     *TokenHealth
	logs       LogStore
	classifier *Classifier
	replace    ParamReplacer
	metrics    *metrics.Metrics
	logger     *slog.Logger
	now        func() time.Time
}

type Option func(*Sender)

func WithClassifier(c *Classifier) Option {
	return func(s *Sender) { s.classifier = c }
}

func WithParamReplacer(fn ParamReplacer) Option {
	return func(s *Sender) { s.replace = fn }
}

// WithClock sets the clock used for TTL expiration headers.
func WithClock(now func() time.Time) Option {
	return func(s *Sender) { s.now = now }
}

func NewSender(
	transport Transport,
	tokens TokenStore,
	logs LogStore,
	metrics *metrics.Metrics,
	logger *slog.Logger,
	opts ...Option,
) *Sender {
	s := &Sender{
		transport:  transport,
		health:     NewTokenHealth(tokens, logger),
		logs:       logs,
		classifier: NewClassifier(),
		replace:    RenderTemplate,
		metrics:    metrics,
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// flow customises one kind of push: direct to a user or from a campaign task.
type flow interface {
	name() string
	validate(p *Push) *DeliveryError
	buildMessage(p *Push) (*message.Builder, error)
	// settle runs in the finalizer before writeLog, whatever the outcome.
	settle(ctx context.Context, a *attempt) error
	writeLog(ctx context.Context, logs LogStore, a *attempt) error
}

// Push sends one notification to one recipient token. Configure it with the
// setters, then call Send once.
type Push struct {
	sender *Sender
	flow   flow
	userID int64
	token  *models.RecipientToken
	title  string
	body   string
	data   map[string]string
	tweaks []func(*message.Builder)
	sent   bool
}

// NewPush starts a direct push to a user.
func (s *Sender) NewPush() *Push {
	return &Push{sender: s, flow: directFlow{}}
}

func (p *Push) SetUserID(id int64) *Push {
	p.userID = id
	return p
}

func (p *Push) SetUserToken(token *models.RecipientToken) *Push {
	p.token = token
	return p
}

func (p *Push) SetNotificationTitle(text string) *Push {
	p.title = text
	return p
}

func (p *Push) SetNotificationBody(text string) *Push {
	p.body = text
	return p
}

func (p *Push) SetMessageData(data map[string]string) *Push {
	p.data = data
	return p
}

// Configure adjusts the message after the flow has built it, e.g. to set
// priority or a TTL. Calls accumulate in order.
func (p *Push) Configure(fn func(*message.Builder)) *Push {
	p.tweaks = append(p.tweaks, fn)
	return p
}

// Send validates, builds, transmits and logs the push. Every failure of the
// attempt itself is reported through the Response. The error is non-nil only
// when a log or status row could not be written.
func (p *Push) Send(ctx context.Context) (*Response, error) {
	if p.sent {
		return nil, ErrAlreadySent
	}
	p.sent = true
	return p.sender.run(ctx, p)
}

type attempt struct {
	push         *Push
	state        State
	msg          *message.Message
	messageJSON  []byte
	gateway      *GatewayResponse
	err          *DeliveryError
	tokenInvalid bool
	fatal        []error
}

func (a *attempt) errorJSON() []byte {
	if a.err == nil {
		return nil
	}
	b, err := json.Marshal(a.err)
	if err != nil {
		return []byte(`{"message":"unencodable error"}`)
	}
	return b
}

type stageResult int

const (
	stageContinue stageResult = iota
	stageStop
)

type stage struct {
	reached State
	run     func(ctx context.Context, a *attempt) stageResult
}

func (s *Sender) run(ctx context.Context, p *Push) (resp *Response, err error) {
	a := &attempt{push: p, state: StateNew}
	defer func() {
		if r := recover(); r != nil {
			s.recovered(a, r)
		}
		resp, err = s.finish(ctx, a)
	}()

	stages := []stage{
		{StateValidated, s.validate},
		{StateMessageBuilt, s.build},
		{StateSent, s.transmit},
		{StateResponseHandled, s.handleResponse},
	}
	for _, st := range stages {
		if st.run(ctx, a) == stageStop {
			return
		}
		a.state = st.reached
	}
	return
}

func (s *Sender) validate(_ context.Context, a *attempt) stageResult {
	p := a.push
	if p.userID == 0 {
		a.err = newDeliveryError(ErrValidation, "user id is not set", nil)
		return stageStop
	}
	if p.token == nil || p.token.Token == "" {
		a.err = newDeliveryError(ErrValidation, "user token is not set", nil)
		return stageStop
	}
	if derr := p.flow.validate(p); derr != nil {
		a.err = derr
		return stageStop
	}
	return stageContinue
}

func (s *Sender) build(_ context.Context, a *attempt) stageResult {
	b, err := a.push.flow.buildMessage(a.push)
	if err != nil {
		var derr *DeliveryError
		if !errors.As(err, &derr) {
			derr = newDeliveryError(ErrValidation, "message could not be built", err)
		}
		a.err = derr
		return stageStop
	}

	for _, tweak := range a.push.tweaks {
		tweak(b)
	}
	msg := b.Token(a.push.token.Token).Build()
	raw, err := msg.Encode(s.now())
	if err != nil {
		a.err = newDeliveryError(ErrValidation, "message could not be encoded", err)
		return stageStop
	}
	a.msg = &msg
	a.messageJSON = raw
	return stageContinue
}

func (s *Sender) transmit(ctx context.Context, a *attempt) stageResult {
	started := time.Now()
	resp, err := s.transport.Post(ctx, a.messageJSON)
	s.metrics.ObserveTransmit(time.Since(started))
	if err != nil {
		a.err = newDeliveryError(ErrTransmit, "fcm request failed", err)
		return stageStop
	}
	a.gateway = resp
	return stageContinue
}

// handleResponse classifies the gateway answer and reconciles token health.
// A gateway error does not stop the attempt: the token must still be updated.
func (s *Sender) handleResponse(ctx context.Context, a *attempt) stageResult {
	if a.gateway.StatusCode != http.StatusOK {
		a.err = s.classifier.GatewayError(a.gateway.StatusCode, a.gateway.Body)
		a.tokenInvalid = a.err.IsCritical()
	}

	token := a.push.token
	if a.tokenInvalid {
		// The gateway error already occupies the slot; a store failure is only logged.
		_ = s.health.MarkInvalid(ctx, token)
		if err := s.logs.LogCriticalTokenFailure(ctx, token.ID, a.messageJSON, a.errorJSON()); err != nil {
			a.fatal = append(a.fatal, fmt.Errorf("log critical token failure: %w", err))
		}
		return stageContinue
	}

	if err := s.health.MarkHealthy(ctx, token); err != nil && a.err == nil {
		a.err = newDeliveryError(ErrPersistence, "token state could not be saved", err)
	}
	return stageContinue
}

// recovered records a panic raised by a stage as the attempt's error. The
// transmit stage runs while the state is StateMessageBuilt.
func (s *Sender) recovered(a *attempt, r any) {
	cause := fmt.Errorf("panic: %v", r)
	s.logger.Error("push stage panicked",
		slog.String("reached", a.state.String()),
		slog.Any("error", cause),
	)
	if a.err != nil {
		return
	}
	if a.state == StateMessageBuilt {
		a.err = newDeliveryError(ErrTransmit, "fcm request failed", cause)
		return
	}
	a.err = newDeliveryError(ErrInternal, "push pipeline failed", cause)
}

func (s *Sender) finish(ctx context.Context, a *attempt) (*Response, error) {
	fatal := a.fatal
	f := a.push.flow
	if err := f.settle(ctx, a); err != nil {
		fatal = append(fatal, fmt.Errorf("settle %s push: %w", f.name(), err))
	}
	if err := f.writeLog(ctx, s.logs, a); err != nil {
		fatal = append(fatal, fmt.Errorf("write %s push log: %w", f.name(), err))
	}
	reached := a.state
	a.state = StateLogged

	outcome := outcomeOf(a.err)
	s.metrics.ObserveSend(f.name(), outcome)

	attrs := []any{
		slog.String("flow", f.name()),
		slog.String("provider", s.transport.Name()),
		slog.Int64("user_id", a.push.userID),
		slog.String("reached", reached.String()),
		slog.String("outcome", outcome),
	}
	if a.err != nil {
		s.logger.Warn("push not delivered", append(attrs, slog.Any("error", a.err))...)
	} else {
		s.logger.Info("push delivered", attrs...)
	}

	return newResponse(a.err), errors.Join(fatal...)
}

func outcomeOf(err *DeliveryError) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrTransmit):
		return "transmit"
	case errors.Is(err, ErrGateway) && err.IsCritical():
		return "gateway_critical"
	case errors.Is(err, ErrGateway):
		return "gateway"
	case errors.Is(err, ErrPersistence):
		return "persistence"
	case errors.Is(err, ErrInternal):
		return "internal"
	default:
		return "unknown"
	}
}

type directFlow struct{}

func (directFlow) name() string { return "direct" }

func (directFlow) validate(*Push) *DeliveryError { return nil }

func (directFlow) buildMessage(p *Push) (*message.Builder, error) {
	return baseMessage(p), nil
}

func (directFlow) settle(context.Context, *attempt) error { return nil }

func (directFlow) writeLog(ctx context.Context, logs LogStore, a *attempt) error {
	return logs.AddLog(ctx, a.push.userID, a.messageJSON, a.errorJSON())
}

func baseMessage(p *Push) *message.Builder {
	return message.NewBuilder().
		Title(p.title).
		Body(p.body).
		Data(p.data)
}
