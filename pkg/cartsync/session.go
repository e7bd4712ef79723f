// Package cartsync keeps a client's local cart and wishlist in step with the
// server copy of a signed-in user.
//
// Local state is authoritative while signed out. SignIn merges it with the
// server copy once, and later mutations are pushed after a debounce. One
// mutex serialises mutations, merges and pushes, and the server version token
// rejects pushes built on an outdated copy.
package cartsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultDebounce    = 800 * time.Millisecond
	DefaultMaxQuantity = 99
	pushTimeout        = 15 * time.Second
)

var ErrInvalidItem = errors.New("cartsync: product id and a positive quantity are required")

type Options struct {
	Debounce    time.Duration
	MaxQuantity int
	Logger      *zerolog.Logger
}

type listState struct {
	name    List
	items   []Item
	version int64

	// gen counts local changes; synced is the gen the server last agreed with.
	gen    uint64
	synced uint64
}

func (l *listState) dirty() bool { return l.gen != l.synced }

type Session struct {
	mu       sync.Mutex
	store    Persister
	remote   Remote
	log      zerolog.Logger
	debounce time.Duration
	maxQty   int

	cart     listState
	wishlist listState

	signedIn bool
	epoch    uint64
	timer    *time.Timer
	bgCtx    context.Context
	cancel   context.CancelFunc
}

// NewSession loads the local state from store.
func NewSession(ctx context.Context, store Persister, remote Remote, opts Options) (*Session, error) {
	state, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load local state: %w", err)
	}
	s := &Session{
		store:    store,
		remote:   remote,
		log:      zerolog.Nop(),
		debounce: opts.Debounce,
		maxQty:   opts.MaxQuantity,
		cart:     listState{name: ListCart, items: state.Cart},
		wishlist: listState{name: ListWishlist, items: state.Wishlist},
	}
	if opts.Logger != nil {
		s.log = opts.Logger.With().Str("component", "cartsync").Logger()
	}
	if s.debounce <= 0 {
		s.debounce = DefaultDebounce
	}
	if s.maxQty <= 0 {
		s.maxQty = DefaultMaxQuantity
	}
	return s, nil
}

// SignIn reconciles local and server state. It does nothing when already signed in.
// A failed fetch leaves the session signed out so the caller can retry; a
// failed push is logged and retried with the next mutation.
func (s *Session) SignIn(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.signedIn {
		return nil
	}

	if err := s.mergeLocked(ctx); err != nil {
		return err
	}
	s.signedIn = true
	s.epoch++
	s.bgCtx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))

	if err := s.syncLocked(ctx); err != nil {
		s.log.Warn().Err(err).Msg("push after sign-in merge failed")
	}
	return nil
}

// SignOut stops background pushes. Local data is kept.
func (s *Session) SignOut() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.signedIn {
		return
	}
	s.signedIn = false
	s.epoch++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Session) SignedIn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.signedIn
}

func (s *Session) Cart() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneItems(s.cart.items)
}

func (s *Session) Wishlist() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneItems(s.wishlist.items)
}

// AddToCart adds quantity to the product's line, capped at the maximum quantity.
func (s *Session) AddToCart(ctx context.Context, productID string, quantity int) error {
	if productID == "" || quantity <= 0 {
		return ErrInvalidItem
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, it := range s.cart.items {
		if it.ProductID == productID {
			next := min(it.Quantity+quantity, s.maxQty)
			if next == it.Quantity {
				return nil
			}
			s.cart.items[i].Quantity = next
			return s.changedLocked(ctx, &s.cart)
		}
	}
	s.cart.items = append(s.cart.items, Item{ProductID: productID, Quantity: min(quantity, s.maxQty)})
	return s.changedLocked(ctx, &s.cart)
}

// SetQuantity sets the line's quantity. Zero or less removes the line.
func (s *Session) SetQuantity(ctx context.Context, productID string, quantity int) error {
	if productID == "" {
		return ErrInvalidItem
	}
	if quantity <= 0 {
		return s.RemoveFromCart(ctx, productID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	quantity = min(quantity, s.maxQty)
	for i, it := range s.cart.items {
		if it.ProductID == productID {
			if it.Quantity == quantity {
				return nil
			}
			s.cart.items[i].Quantity = quantity
			return s.changedLocked(ctx, &s.cart)
		}
	}
	s.cart.items = append(s.cart.items, Item{ProductID: productID, Quantity: quantity})
	return s.changedLocked(ctx, &s.cart)
}

func (s *Session) RemoveFromCart(ctx context.Context, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, it := range s.cart.items {
		if it.ProductID == productID {
			s.cart.items = append(s.cart.items[:i], s.cart.items[i+1:]...)
			return s.changedLocked(ctx, &s.cart)
		}
	}
	return nil
}

// ToggleWishlist adds or removes productID and reports whether it is now on the list.
func (s *Session) ToggleWishlist(ctx context.Context, productID string) (bool, error) {
	if productID == "" {
		return false, ErrInvalidItem
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, it := range s.wishlist.items {
		if it.ProductID == productID {
			s.wishlist.items = append(s.wishlist.items[:i], s.wishlist.items[i+1:]...)
			return false, s.changedLocked(ctx, &s.wishlist)
		}
	}
	s.wishlist.items = append(s.wishlist.items, Item{ProductID: productID})
	return true, s.changedLocked(ctx, &s.wishlist)
}

// Flush pushes pending changes now instead of waiting for the debounce.
func (s *Session) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.signedIn {
		return nil
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	return s.syncLocked(ctx)
}

func (s *Session) changedLocked(ctx context.Context, l *listState) error {
	l.gen++
	if err := s.saveLocked(ctx); err != nil {
		return err
	}
	if s.signedIn {
		s.scheduleLocked()
	}
	return nil
}

func (s *Session) saveLocked(ctx context.Context) error {
	state := State{Cart: cloneItems(s.cart.items), Wishlist: cloneItems(s.wishlist.items)}
	if err := s.store.Save(ctx, state); err != nil {
		return fmt.Errorf("save local state: %w", err)
	}
	return nil
}

func (s *Session) scheduleLocked() {
	if s.timer != nil {
		s.timer.Stop()
	}
	epoch := s.epoch
	s.timer = time.AfterFunc(s.debounce, func() { s.backgroundPush(epoch) })
}

// backgroundPush is fire-and-forget: failures are logged and not retried.
func (s *Session) backgroundPush(epoch uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.signedIn || epoch != s.epoch {
		return
	}
	s.timer = nil

	ctx, cancel := context.WithTimeout(s.bgCtx, pushTimeout)
	defer cancel()
	if err := s.syncLocked(ctx); err != nil {
		s.log.Warn().Err(err).Msg("background push failed")
	}
}

// syncLocked pushes dirty lists. A stale version triggers one re-merge and push.
func (s *Session) syncLocked(ctx context.Context) error {
	err := s.pushLocked(ctx)
	if !errors.Is(err, ErrStale) {
		return err
	}
	s.log.Info().Msg("server copy changed, merging again")
	if err := s.mergeLocked(ctx); err != nil {
		return err
	}
	return s.pushLocked(ctx)
}

func (s *Session) pushLocked(ctx context.Context) error {
	for _, l := range []*listState{&s.cart, &s.wishlist} {
		if !l.dirty() {
			continue
		}
		version, err := s.remote.Push(ctx, l.name, cloneItems(l.items), l.version)
		if err != nil {
			return fmt.Errorf("push %s: %w", l.name, err)
		}
		l.version = version
		l.synced = l.gen
		s.log.Debug().Str("list", string(l.name)).Int64("version", version).Msg("pushed")
	}
	return nil
}

// mergeLocked fetches both server lists, merges local state over them and
// saves the result locally. Lists whose merge differs from the server copy
// are left dirty for the next push.
func (s *Session) mergeLocked(ctx context.Context) error {
	cartSnap, err := s.remote.Fetch(ctx, ListCart)
	if err != nil {
		return fmt.Errorf("fetch cart: %w", err)
	}
	wishSnap, err := s.remote.Fetch(ctx, ListWishlist)
	if err != nil {
		return fmt.Errorf("fetch wishlist: %w", err)
	}

	s.applyMerge(&s.cart, cartSnap, s.clamp(MergeCart(cartSnap.Items, s.cart.items)))
	s.applyMerge(&s.wishlist, wishSnap, MergeWishlist(wishSnap.Items, s.wishlist.items))

	s.log.Debug().
		Int("cart_items", len(s.cart.items)).
		Int("wishlist_items", len(s.wishlist.items)).
		Msg("merged with server copy")
	return s.saveLocked(ctx)
}

func (s *Session) applyMerge(l *listState, server Snapshot, merged []Item) {
	l.items = merged
	l.version = server.Version
	l.synced = l.gen
	if !sameItems(merged, server.Items) {
		l.gen++
	}
}

func (s *Session) clamp(items []Item) []Item {
	for i := range items {
		items[i].Quantity = min(items[i].Quantity, s.maxQty)
	}
	return items
}
