package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/avasa-home/checkout/internal/commerce"
	"github.com/avasa-home/checkout/internal/domain"
)

var (
	// ErrCartUnavailable indicates cart dependencies are missing or the
	// upstream call failed without a business reason.
	ErrCartUnavailable = errors.New("cart: unavailable")
	// ErrCartLineNotFound indicates the line id does not exist locally.
	ErrCartLineNotFound = errors.New("cart: line not found")
)

// CartServiceDeps wires the dependencies required by the cart service.
type CartServiceDeps struct {
	Gateway CartGateway
	Session IdentitySource
	Logger  func(ctx context.Context, event string, fields map[string]any)
}

type cartService struct {
	gateway CartGateway
	session IdentitySource
	logger  func(ctx context.Context, event string, fields map[string]any)

	mu    sync.Mutex
	lines []domain.CartLine
	// seq assigns a monotonically increasing token per line so a stale
	// mutation response cannot clobber newer local state.
	seq map[string]uint64
}

// NewCartService constructs a CartService validating required dependencies.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Gateway == nil {
		return nil, errors.New("cart service: gateway is required")
	}
	if deps.Session == nil {
		return nil, errors.New("cart service: session is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &cartService{
		gateway: deps.Gateway,
		session: deps.Session,
		logger:  logger,
		seq:     make(map[string]uint64),
	}, nil
}

func (s *cartService) Load(ctx context.Context) ([]domain.CartLine, error) {
	identity := s.session.Identity()
	creds := identity.Credentials()
	if !creds.HasIdentity() {
		// A fresh anonymous session has no cart yet; nothing to dispatch.
		s.mu.Lock()
		s.lines = nil
		s.mu.Unlock()
		return nil, nil
	}

	lines, err := s.gateway.FetchCart(ctx, creds)
	if err != nil {
		s.logger(ctx, "cart.load_failed", map[string]any{"error": err.Error()})
		// Prior in-memory cart is preserved on failure.
		return s.Lines(), translateCartError(err)
	}

	s.mu.Lock()
	s.lines = normalizeLines(lines)
	s.mu.Unlock()
	return s.Lines(), nil
}

func (s *cartService) Lines() []domain.CartLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.CartLine, len(s.lines))
	copy(out, s.lines)
	return out
}

func (s *cartService) AddItem(ctx context.Context, req commerce.AddItemRequest) ([]domain.CartLine, error) {
	if req.Quantity < 1 {
		req.Quantity = 1
	}
	creds := s.session.Identity().Credentials()
	result, err := s.gateway.AddCartItem(ctx, creds, req)
	if err != nil {
		s.logger(ctx, "cart.add_failed", map[string]any{"productId": req.ProductID, "error": err.Error()})
		return s.Lines(), translateCartError(err)
	}
	if result.TempCartID != "" {
		if err := s.session.CaptureTempCartID(result.TempCartID); err != nil {
			return s.Lines(), err
		}
	}
	return s.Load(ctx)
}

func (s *cartService) UpdateQuantity(ctx context.Context, lineID string, quantity int) error {
	if quantity < 1 {
		return nil
	}

	s.mu.Lock()
	idx := indexOfLine(s.lines, lineID)
	if idx < 0 {
		s.mu.Unlock()
		return ErrCartLineNotFound
	}
	if s.lines[idx].Quantity == quantity {
		// Equal-value guard keeps the mutation idempotent.
		s.mu.Unlock()
		return nil
	}
	s.seq[lineID]++
	token := s.seq[lineID]
	s.mu.Unlock()

	creds := s.session.Identity().Credentials()
	if err := s.gateway.UpdateCartItem(ctx, creds, lineID, quantity); err != nil {
		s.logger(ctx, "cart.update_failed", map[string]any{"lineId": lineID, "error": err.Error()})
		return translateCartError(err)
	}

	// Local state is updated only after server acknowledgment, and only if no
	// newer mutation has been dispatched for this line meanwhile.
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seq[lineID] != token {
		return nil
	}
	if idx := indexOfLine(s.lines, lineID); idx >= 0 {
		s.lines[idx].Quantity = quantity
	}
	return nil
}

func (s *cartService) RemoveLine(ctx context.Context, lineID string) error {
	s.mu.Lock()
	if indexOfLine(s.lines, lineID) < 0 {
		s.mu.Unlock()
		return ErrCartLineNotFound
	}
	s.seq[lineID]++
	s.mu.Unlock()

	creds := s.session.Identity().Credentials()
	if err := s.gateway.RemoveCartItem(ctx, creds, lineID); err != nil {
		// The line is not speculatively removed; local state stays untouched.
		s.logger(ctx, "cart.remove_failed", map[string]any{"lineId": lineID, "error": err.Error()})
		return translateCartError(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if idx := indexOfLine(s.lines, lineID); idx >= 0 {
		s.lines = append(s.lines[:idx], s.lines[idx+1:]...)
	}
	delete(s.seq, lineID)
	return nil
}

func indexOfLine(lines []domain.CartLine, lineID string) int {
	for i, line := range lines {
		if line.ID == lineID {
			return i
		}
	}
	return -1
}

// normalizeLines drops zero-quantity lines so the invariant quantity >= 1
// holds regardless of upstream payload quality.
func normalizeLines(lines []domain.CartLine) []domain.CartLine {
	out := make([]domain.CartLine, 0, len(lines))
	for _, line := range lines {
		if line.Quantity < 1 {
			continue
		}
		out = append(out, line)
	}
	return out
}

func translateCartError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *commerce.APIError
	if errors.As(err, &apiErr) {
		return err
	}
	if errors.Is(err, commerce.ErrNoIdentity) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrCartUnavailable, err)
}
