package store

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/iurnickita/cashback/internal/idempotency"
	"github.com/iurnickita/cashback/internal/model"
)

// memoryStore - хранилище в памяти для тестов и локального запуска.
// Блокировки строк имитируются каналами, изменения транзакции
// применяются разом при фиксации.
type memoryStore struct {
	mu           sync.Mutex
	locks        map[string]chan struct{}
	wallets      map[string]model.Wallet
	transactions map[string][]model.Transaction
	orders       map[string]model.Order
	orderKeys    map[string]string // user/key -> order id
	partners     map[string]model.Partner
	products     map[string]model.Product
	keys         map[idempotency.Scope]idempotency.Record
}

func NewMemoryStore() Store {
	return &memoryStore{
		locks:        make(map[string]chan struct{}),
		wallets:      make(map[string]model.Wallet),
		transactions: make(map[string][]model.Transaction),
		orders:       make(map[string]model.Order),
		orderKeys:    make(map[string]string),
		partners:     make(map[string]model.Partner),
		products:     make(map[string]model.Product),
		keys:         make(map[idempotency.Scope]idempotency.Record),
	}
}

func (store *memoryStore) Close() error {
	return nil
}

func orderKey(userID, key string) string {
	return userID + "/" + key
}

func cloneOrder(order model.Order) model.Order {
	order.Items = slices.Clone(order.Items)
	return order
}

// lockChan возвращает канал-мьютекс для ключа
func (store *memoryStore) lockChan(key string) chan struct{} {
	store.mu.Lock()
	defer store.mu.Unlock()

	ch, ok := store.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		store.locks[key] = ch
	}
	return ch
}

func (store *memoryStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx := &memoryTx{
		store:   store,
		held:    make(map[string]chan struct{}),
		wallets: make(map[string]model.Wallet),
		orders:  make(map[string]model.Order),
	}
	defer tx.unlock()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return tx.commit()
}

func (store *memoryStore) WalletGet(ctx context.Context, userID string) (model.Wallet, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	wallet, ok := store.wallets[userID]
	if !ok {
		return model.NewWallet(userID), nil
	}
	return wallet, nil
}

func (store *memoryStore) TransactionGetList(ctx context.Context, userID string) ([]model.Transaction, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	return slices.Clone(store.transactions[userID]), nil
}

func (store *memoryStore) OrderGet(ctx context.Context, orderID string) (model.Order, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	order, ok := store.orders[orderID]
	if !ok {
		return model.Order{}, ErrNoRows
	}
	return cloneOrder(order), nil
}

func (store *memoryStore) OrderGetList(ctx context.Context, userID string) ([]model.Order, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	var orders []model.Order
	for _, order := range store.orders {
		if order.UserID != userID {
			continue
		}
		order.Items = nil
		orders = append(orders, order)
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
	return orders, nil
}

func (store *memoryStore) PartnerGet(ctx context.Context, partnerID string) (model.Partner, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	partner, ok := store.partners[partnerID]
	if !ok {
		return model.Partner{}, ErrNoRows
	}
	return partner, nil
}

func (store *memoryStore) PartnerPut(ctx context.Context, partner model.Partner) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	store.partners[partner.ID] = partner
	return nil
}

func (store *memoryStore) ProductGetList(ctx context.Context, partnerID string, productIDs []string) ([]model.Product, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	products := make([]model.Product, 0, len(productIDs))
	for _, productID := range productIDs {
		product, ok := store.products[productID]
		if !ok || product.PartnerID != partnerID {
			return nil, fmt.Errorf("%w: product %s", ErrNoRows, productID)
		}
		products = append(products, product)
	}
	return products, nil
}

func (store *memoryStore) ProductPut(ctx context.Context, product model.Product) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	if _, ok := store.partners[product.PartnerID]; !ok {
		return fmt.Errorf("%w: partner %s", ErrNoRows, product.PartnerID)
	}
	store.products[product.ID] = product
	return nil
}

func (store *memoryStore) Reserve(ctx context.Context, ticket idempotency.Ticket, staleBefore time.Time) (idempotency.Record, bool, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	now := time.Now()
	rec, ok := store.keys[ticket.Scope]
	switch {
	case !ok:
		rec = idempotency.Record{
			Scope:     ticket.Scope,
			Status:    idempotency.StatusInProgress,
			Token:     ticket.Token,
			CreatedAt: now,
			UpdatedAt: now,
		}
	case rec.Status == idempotency.StatusInProgress && rec.UpdatedAt.Before(staleBefore):
		// перехват зависшей отметки
		rec.Token = ticket.Token
		rec.UpdatedAt = now
	default:
		rec.Result = slices.Clone(rec.Result)
		return rec, false, nil
	}
	store.keys[ticket.Scope] = rec
	return rec, true, nil
}

func (store *memoryStore) Release(ctx context.Context, ticket idempotency.Ticket) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	rec, ok := store.keys[ticket.Scope]
	if ok && rec.Token == ticket.Token && rec.Status == idempotency.StatusInProgress {
		delete(store.keys, ticket.Scope)
	}
	return nil
}

// holdsLease - отметка все еще принадлежит ticket. Вызывать под store.mu.
func (store *memoryStore) holdsLease(ticket idempotency.Ticket) bool {
	rec, ok := store.keys[ticket.Scope]
	return ok && rec.Token == ticket.Token && rec.Status == idempotency.StatusInProgress
}

type seal struct {
	ticket idempotency.Ticket
	result []byte
}

type memoryTx struct {
	store *memoryStore
	held  map[string]chan struct{}

	// изменения до фиксации
	wallets   map[string]model.Wallet
	entries   []model.Transaction
	orders    map[string]model.Order
	newOrders []string
	seals     []seal
}

func (t *memoryTx) lock(ctx context.Context, key string) error {
	if _, ok := t.held[key]; ok {
		return nil
	}
	ch := t.store.lockChan(key)
	select {
	case ch <- struct{}{}:
		t.held[key] = ch
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *memoryTx) unlock() {
	for key, ch := range t.held {
		<-ch
		delete(t.held, key)
	}
}

func (t *memoryTx) WalletLock(ctx context.Context, userID string) (model.Wallet, error) {
	if err := t.lock(ctx, "wallet:"+userID); err != nil {
		return model.Wallet{}, err
	}
	if wallet, ok := t.wallets[userID]; ok {
		return wallet, nil
	}
	return t.store.WalletGet(ctx, userID)
}

func (t *memoryTx) WalletApplyDelta(ctx context.Context, userID string, delta model.Delta) (model.Wallet, []model.Transaction, error) {
	before, err := t.WalletLock(ctx, userID)
	if err != nil {
		return model.Wallet{}, nil, err
	}

	after, entries, err := applyDelta(before, delta, time.Now())
	if err != nil {
		return model.Wallet{}, nil, err
	}

	t.wallets[userID] = after
	t.entries = append(t.entries, entries...)
	return after, entries, nil
}

func (t *memoryTx) OrderPost(ctx context.Context, order model.Order) error {
	if err := t.lock(ctx, "order:"+order.ID); err != nil {
		return err
	}

	t.store.mu.Lock()
	_, idTaken := t.store.orders[order.ID]
	_, keyTaken := t.store.orderKeys[orderKey(order.UserID, order.IdempotencyKey)]
	t.store.mu.Unlock()
	if _, ok := t.orders[order.ID]; ok {
		idTaken = true
	}
	if idTaken || keyTaken {
		return fmt.Errorf("%w: order %s", ErrAlreadyExists, order.ID)
	}

	t.orders[order.ID] = cloneOrder(order)
	t.newOrders = append(t.newOrders, order.ID)
	return nil
}

func (t *memoryTx) OrderLock(ctx context.Context, orderID string) (model.Order, error) {
	if err := t.lock(ctx, "order:"+orderID); err != nil {
		return model.Order{}, err
	}
	if order, ok := t.orders[orderID]; ok {
		return cloneOrder(order), nil
	}
	return t.store.OrderGet(ctx, orderID)
}

func (t *memoryTx) OrderPut(ctx context.Context, order model.Order) error {
	current, err := t.OrderLock(ctx, order.ID)
	if err != nil {
		return err
	}

	// меняется только состояние жизненного цикла
	current.Status = order.Status
	current.PaymentStatus = order.PaymentStatus
	current.UpdatedAt = order.UpdatedAt
	current.PaidAt = order.PaidAt
	current.CompletedAt = order.CompletedAt
	t.orders[order.ID] = current
	return nil
}

func (t *memoryTx) Seal(ctx context.Context, ticket idempotency.Ticket, result []byte) error {
	t.store.mu.Lock()
	held := t.store.holdsLease(ticket)
	t.store.mu.Unlock()
	if !held {
		return idempotency.ErrLeaseLost
	}

	t.seals = append(t.seals, seal{ticket: ticket, result: slices.Clone(result)})
	return nil
}

func (t *memoryTx) commit() error {
	store := t.store
	store.mu.Lock()
	defer store.mu.Unlock()

	// проверки до применения: транзакция фиксируется целиком или никак
	for _, s := range t.seals {
		if !store.holdsLease(s.ticket) {
			return idempotency.ErrLeaseLost
		}
	}
	for _, orderID := range t.newOrders {
		order := t.orders[orderID]
		if _, ok := store.orderKeys[orderKey(order.UserID, order.IdempotencyKey)]; ok {
			return fmt.Errorf("%w: order %s", ErrAlreadyExists, orderID)
		}
	}

	now := time.Now()
	for userID, wallet := range t.wallets {
		store.wallets[userID] = wallet
	}
	for _, entry := range t.entries {
		store.transactions[entry.UserID] = append(store.transactions[entry.UserID], entry)
	}
	for orderID, order := range t.orders {
		store.orders[orderID] = order
	}
	for _, orderID := range t.newOrders {
		order := t.orders[orderID]
		store.orderKeys[orderKey(order.UserID, order.IdempotencyKey)] = orderID
	}
	for _, s := range t.seals {
		rec := store.keys[s.ticket.Scope]
		rec.Status = idempotency.StatusCompleted
		rec.Result = s.result
		rec.UpdatedAt = now
		store.keys[s.ticket.Scope] = rec
	}
	return nil
}
