package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"commerce-agent/internal/catalog"
	"commerce-agent/internal/errs"
	"commerce-agent/internal/intent"
	"commerce-agent/internal/llm"
	"commerce-agent/internal/models"
	"commerce-agent/internal/pending"
	"commerce-agent/internal/stream"
	"commerce-agent/internal/util"

	"go.uber.org/zap"
)

// StreamErrorMessage is the message of the terminal error event
const StreamErrorMessage = "stream error"

// ChatRequest is one user utterance
type ChatRequest struct {
	Prompt   string `json:"prompt"`
	ClientID string `json:"clientId"`
}

// ChatService runs utterances through the intent router, the catalog and
// the pending-order state machine and streams the reply
type ChatService struct {
	router  *intent.Router
	catalog *catalog.Resolver
	pending pending.Store
	orders  *OrderService
	llm     llm.Passthrough
	logger  *zap.Logger
}

// NewChatService creates a new chat service. A nil passthrough answers
// free-form prompts with a canned reply.
func NewChatService(resolver *catalog.Resolver, pendingStore pending.Store, orders *OrderService, passthrough llm.Passthrough) *ChatService {
	return &ChatService{
		router:  intent.NewRouter(),
		catalog: resolver,
		pending: pendingStore,
		orders:  orders,
		llm:     passthrough,
		logger:  util.GetLogger(),
	}
}

// LLMBackend names the free-form answer backend
func (s *ChatService) LLMBackend() string {
	if s.llm == nil {
		return "mock"
	}
	return s.llm.Name()
}

// CatalogBackend names the catalog backend
func (s *ChatService) CatalogBackend() string {
	return s.catalog.Backend().Name()
}

// turn carries the per-request state of one utterance
type turn struct {
	ctx      context.Context
	clientID string
	prompt   string
	em       *stream.Emitter
}

func (t *turn) say(text string) error {
	return t.em.Words(t.ctx, text)
}

// Handle streams the reply to req and always ends the stream with a done
// or error event unless ctx was canceled.
func (s *ChatService) Handle(ctx context.Context, req ChatRequest, em *stream.Emitter) error {
	ctx, span := util.StartSpan(ctx, "ChatService.Handle")
	defer span.End()

	if req.Prompt == "" {
		return fmt.Errorf("%w: missing prompt", errs.ErrMalformedInput)
	}
	clientID := req.ClientID
	if clientID == "" {
		clientID = models.DefaultClientID
	}
	t := &turn{ctx: ctx, clientID: clientID, prompt: req.Prompt, em: em}

	if err := s.dispatch(t); err != nil {
		if ctx.Err() != nil {
			s.logger.Debug("Chat stream canceled", zap.String("client_id", clientID))
			return ctx.Err()
		}
		util.ChatStreamErrorsTotal.Inc()
		s.logger.Error("Chat stream failed",
			zap.String("client_id", clientID),
			zap.Error(err))
		if !em.Terminated() {
			_ = em.Error(StreamErrorMessage)
		}
		return err
	}
	return em.Done()
}

func (s *ChatService) dispatch(t *turn) error {
	_, hasPending, err := s.pending.Get(t.ctx, t.clientID)
	if err != nil {
		return fmt.Errorf("failed to read pending order: %w", err)
	}

	action := s.router.Classify(t.prompt, intent.State{HasPending: hasPending})
	if action.Kind == intent.KindUpdateQuantity {
		updated, ok, err := s.pending.UpdateQuantity(t.ctx, t.clientID, action.Quantity)
		if err != nil {
			return fmt.Errorf("failed to update pending order: %w", err)
		}
		if ok {
			util.ChatRequestsTotal.WithLabelValues(string(action.Kind)).Inc()
			util.PendingTransitionsTotal.WithLabelValues("quantity_updated").Inc()
			return t.say(fmt.Sprintf("Updated quantity to %d for %s (%s) — Estimated $%s. Type 'confirm' to proceed or 'cancel' to abort.",
				updated.Quantity, updated.Item.Title, updated.Item.ID, formatAmount(updated.Estimate())))
		}
		// the entry was confirmed or canceled concurrently
		action = s.router.Classify(t.prompt, intent.State{})
	}

	util.ChatRequestsTotal.WithLabelValues(string(action.Kind)).Inc()
	switch action.Kind {
	case intent.KindSearch:
		return s.search(t, action.Query)
	case intent.KindBuy:
		return s.buy(t, action)
	case intent.KindConfirm:
		return s.confirm(t)
	case intent.KindCancel:
		return s.cancel(t)
	default:
		return s.freeform(t)
	}
}

func (s *ChatService) search(t *turn, query string) error {
	if err := t.say(fmt.Sprintf("Searching catalog for \"%s\"...", query)); err != nil {
		return err
	}
	items, err := s.catalog.Search(t.ctx, query)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return t.say(" No results found.")
	}
	if err := t.em.Catalog(catalog.Cards(items)); err != nil {
		return err
	}
	return t.say("\nSay 'buy <ID>' or click Buy to place an order.")
}

func (s *ChatService) buy(t *turn, action intent.Action) error {
	if id, ok := intent.ItemID(action.Query); ok {
		item, err := s.catalog.GetByID(t.ctx, id)
		switch {
		case err == nil:
			return s.propose(t, item, action.Quantity)
		case !errors.Is(err, errs.ErrNotFound):
			return err
		}
	}

	candidates, err := s.catalog.Candidates(t.ctx, intent.CleanBuyQuery(action.Query))
	if err != nil {
		return err
	}
	switch len(candidates) {
	case 0:
		return t.say(fmt.Sprintf("Couldn't find a product matching \"%s\".", action.Query))
	case 1:
		return s.propose(t, candidates[0], action.Quantity)
	}

	if err := t.em.Catalog(catalog.Cards(candidates)); err != nil {
		return err
	}
	return t.say(fmt.Sprintf("Found %d products. Click Buy on a card or say 'buy <ID>'.", len(candidates)))
}

func (s *ChatService) propose(t *turn, item models.CatalogItem, quantity int) error {
	order := models.PendingOrder{Item: item, Quantity: models.NormalizeQuantity(quantity)}
	if err := s.pending.Put(t.ctx, t.clientID, order); err != nil {
		return fmt.Errorf("failed to store pending order: %w", err)
	}
	util.PendingTransitionsTotal.WithLabelValues("proposed").Inc()

	if err := t.em.Catalog([]models.CatalogItem{item}); err != nil {
		return err
	}
	return t.say(fmt.Sprintf("I can order %s (%s) — Qty %d — Estimated $%s.\nType 'confirm' to proceed or 'cancel' to abort.",
		item.Title, item.ID, order.Quantity, formatAmount(order.Estimate())))
}

func (s *ChatService) confirm(t *turn) error {
	order, ok, err := s.pending.Take(t.ctx, t.clientID)
	if err != nil {
		return fmt.Errorf("failed to take pending order: %w", err)
	}
	if !ok {
		return t.say("No pending order to confirm.")
	}

	record, err := s.orders.Place(t.ctx, order.Item, order.Quantity, t.clientID, models.OrderChannelChat)
	if err != nil {
		// a newer order placed by a concurrent request wins over the restore
		restored, perr := s.pending.PutIfAbsent(context.WithoutCancel(t.ctx), t.clientID, order)
		if perr != nil {
			s.logger.Error("Failed to restore pending order", zap.String("client_id", t.clientID), zap.Error(perr))
		} else if !restored {
			s.logger.Info("Pending order replaced while confirming, not restored", zap.String("client_id", t.clientID))
		}
		return err
	}
	util.PendingTransitionsTotal.WithLabelValues("confirmed").Inc()

	if err := t.say(fmt.Sprintf("Order placed: %s. Item %s — %s. Qty %d. Total $%s.",
		record.OrderID, record.Item.ID, record.Item.Title, record.Quantity, formatAmount(record.Total))); err != nil {
		return err
	}
	return t.em.Order(record)
}

func (s *ChatService) cancel(t *turn) error {
	existed, err := s.pending.Delete(t.ctx, t.clientID)
	if err != nil {
		return fmt.Errorf("failed to delete pending order: %w", err)
	}
	if existed {
		util.PendingTransitionsTotal.WithLabelValues("canceled").Inc()
	}
	return t.say("Canceled the pending action.")
}

func (s *ChatService) freeform(t *turn) error {
	if s.llm == nil {
		return t.say(fmt.Sprintf("Streaming SSE response to: \"%s\" with incremental tokens.", t.prompt))
	}
	return s.llm.Stream(t.ctx, t.prompt, func(fragment string) error {
		if err := t.ctx.Err(); err != nil {
			return err
		}
		return t.em.Token(fragment)
	})
}

// formatAmount prints a cent-rounded amount without trailing zeros
func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
