// Package memory implements storage.Store in process memory. It backs the
// test suite and lets marketd run without a database URI. A single mutex
// serializes mutations; WithinTx holds it for the whole callback and restores
// a snapshot on error, giving the same all-or-nothing visibility as the
// Postgres transaction.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/accountax/marketd/internal/models"
	"github.com/accountax/marketd/internal/storage"
)

type state struct {
	users        map[uuid.UUID]models.User
	usersByEmail map[string]uuid.UUID
	wallets      map[uuid.UUID]models.Wallet // keyed by owner
	transactions []models.Transaction
	requests     map[uuid.UUID]models.Request
	proposals    map[uuid.UUID]models.Proposal
	bookings     map[uuid.UUID]models.Booking
}

func newState() *state {
	return &state{
		users:        make(map[uuid.UUID]models.User),
		usersByEmail: make(map[string]uuid.UUID),
		wallets:      make(map[uuid.UUID]models.Wallet),
		requests:     make(map[uuid.UUID]models.Request),
		proposals:    make(map[uuid.UUID]models.Proposal),
		bookings:     make(map[uuid.UUID]models.Booking),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.usersByEmail {
		c.usersByEmail[k] = v
	}
	for k, v := range s.wallets {
		c.wallets[k] = v
	}
	c.transactions = append([]models.Transaction(nil), s.transactions...)
	for k, v := range s.requests {
		v.Attachments = append([]models.Attachment(nil), v.Attachments...)
		c.requests[k] = v
	}
	for k, v := range s.proposals {
		v.Attachments = append([]models.Attachment(nil), v.Attachments...)
		c.proposals[k] = v
	}
	for k, v := range s.bookings {
		v.Timeline = append([]models.TimelineEvent(nil), v.Timeline...)
		v.HistoryLogs = append([]models.HistoryLog(nil), v.HistoryLogs...)
		v.Warnings = append([]models.Warning(nil), v.Warnings...)
		c.bookings[k] = v
	}
	return c
}

type Store struct {
	mu   *sync.Mutex
	st   *state
	inTx bool
}

func New() *Store {
	return &Store{mu: &sync.Mutex{}, st: newState()}
}

// lock is a no-op inside WithinTx, where the mutex is already held.
func (m *Store) lock() func() {
	if m.inTx {
		return func() {}
	}
	m.mu.Lock()
	return m.mu.Unlock
}

func (m *Store) WithinTx(ctx context.Context, fn func(storage.Store) error) error {
	if m.inTx {
		return fn(m)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.st.clone()
	if err := fn(&Store{mu: m.mu, st: m.st, inTx: true}); err != nil {
		*m.st = *snapshot
		return err
	}
	return nil
}

func (m *Store) CreateUser(ctx context.Context, u models.User) error {
	defer m.lock()()
	if _, ok := m.st.usersByEmail[u.Email]; ok {
		return storage.ErrDuplicate
	}
	m.st.users[u.ID] = u
	m.st.usersByEmail[u.Email] = u.ID
	return nil
}

func (m *Store) UserByEmail(ctx context.Context, email string) (models.User, error) {
	defer m.lock()()
	id, ok := m.st.usersByEmail[email]
	if !ok {
		return models.User{}, storage.ErrNotFound
	}
	return m.st.users[id], nil
}

func (m *Store) UserByID(ctx context.Context, id uuid.UUID) (models.User, error) {
	defer m.lock()()
	u, ok := m.st.users[id]
	if !ok {
		return models.User{}, storage.ErrNotFound
	}
	return u, nil
}

func (m *Store) EnsureWallet(ctx context.Context, owner uuid.UUID) (models.Wallet, error) {
	defer m.lock()()
	if w, ok := m.st.wallets[owner]; ok {
		return w, nil
	}
	now := time.Now().UTC()
	w := models.Wallet{
		ID:        uuid.New(),
		Owner:     owner,
		Balance:   decimal.Zero,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.st.wallets[owner] = w
	return w, nil
}

func (m *Store) WalletByOwner(ctx context.Context, owner uuid.UUID) (models.Wallet, error) {
	defer m.lock()()
	w, ok := m.st.wallets[owner]
	if !ok {
		return models.Wallet{}, storage.ErrNotFound
	}
	return w, nil
}

func (m *Store) CreditBalance(ctx context.Context, owner uuid.UUID, amount decimal.Decimal) (models.Wallet, error) {
	defer m.lock()()
	w, ok := m.st.wallets[owner]
	if !ok {
		return models.Wallet{}, storage.ErrNotFound
	}
	w.Balance = w.Balance.Add(amount)
	w.UpdatedAt = time.Now().UTC()
	m.st.wallets[owner] = w
	return w, nil
}

func (m *Store) DebitBalance(ctx context.Context, owner uuid.UUID, amount decimal.Decimal) (models.Wallet, bool, error) {
	defer m.lock()()
	w, ok := m.st.wallets[owner]
	if !ok || w.Balance.LessThan(amount) {
		return models.Wallet{}, false, nil
	}
	w.Balance = w.Balance.Sub(amount)
	w.UpdatedAt = time.Now().UTC()
	m.st.wallets[owner] = w
	return w, true, nil
}

func (m *Store) InsertTransaction(ctx context.Context, tx models.Transaction) error {
	defer m.lock()()
	m.st.transactions = append(m.st.transactions, tx)
	return nil
}

func (m *Store) TransactionsByWallet(ctx context.Context, walletID uuid.UUID, limit int) ([]models.Transaction, error) {
	defer m.lock()()
	var txs []models.Transaction
	for _, tx := range m.st.transactions {
		if tx.WalletID == walletID {
			txs = append(txs, tx)
		}
	}
	sort.Slice(txs, func(i, j int) bool { return txs[i].CreatedAt.After(txs[j].CreatedAt) })
	if limit > 0 && len(txs) > limit {
		txs = txs[:limit]
	}
	return txs, nil
}

func (m *Store) InsertRequest(ctx context.Context, r models.Request) error {
	defer m.lock()()
	m.st.requests[r.ID] = r
	return nil
}

func (m *Store) RequestByID(ctx context.Context, id uuid.UUID) (models.Request, error) {
	defer m.lock()()
	r, ok := m.st.requests[id]
	if !ok {
		return models.Request{}, storage.ErrNotFound
	}
	return r, nil
}

func (m *Store) RequestsByClient(ctx context.Context, client uuid.UUID) ([]models.Request, error) {
	defer m.lock()()
	var requests []models.Request
	for _, r := range m.st.requests {
		if r.Client == client {
			requests = append(requests, r)
		}
	}
	sortRequests(requests)
	return requests, nil
}

func (m *Store) RequestsByStatus(ctx context.Context, statuses ...models.RequestStatus) ([]models.Request, error) {
	defer m.lock()()
	var requests []models.Request
	for _, r := range m.st.requests {
		for _, s := range statuses {
			if r.Status == s {
				requests = append(requests, r)
				break
			}
		}
	}
	sortRequests(requests)
	return requests, nil
}

func sortRequests(requests []models.Request) {
	sort.Slice(requests, func(i, j int) bool { return requests[i].CreatedAt.After(requests[j].CreatedAt) })
}

func (m *Store) UpdateRequest(ctx context.Context, r models.Request) error {
	defer m.lock()()
	if _, ok := m.st.requests[r.ID]; !ok {
		return storage.ErrNotFound
	}
	r.UpdatedAt = time.Now().UTC()
	m.st.requests[r.ID] = r
	return nil
}

func (m *Store) DeleteRequest(ctx context.Context, id uuid.UUID) error {
	defer m.lock()()
	if _, ok := m.st.requests[id]; !ok {
		return storage.ErrNotFound
	}
	delete(m.st.requests, id)
	return nil
}

func (m *Store) SetRequestStatus(ctx context.Context, id uuid.UUID, status models.RequestStatus, reason string) error {
	defer m.lock()()
	r, ok := m.st.requests[id]
	if !ok {
		return storage.ErrNotFound
	}
	r.Status = status
	r.RejectionReason = reason
	r.UpdatedAt = time.Now().UTC()
	m.st.requests[id] = r
	return nil
}

func (m *Store) InsertProposal(ctx context.Context, p models.Proposal) error {
	defer m.lock()()
	for _, existing := range m.st.proposals {
		if existing.RequestID == p.RequestID && existing.ServiceProvider == p.ServiceProvider && existing.Open() {
			return storage.ErrDuplicate
		}
	}
	m.st.proposals[p.ID] = p
	return nil
}

func (m *Store) ProposalByID(ctx context.Context, id uuid.UUID) (models.Proposal, error) {
	defer m.lock()()
	p, ok := m.st.proposals[id]
	if !ok {
		return models.Proposal{}, storage.ErrNotFound
	}
	return p, nil
}

func (m *Store) ProposalsByProvider(ctx context.Context, provider uuid.UUID) ([]models.Proposal, error) {
	defer m.lock()()
	var proposals []models.Proposal
	for _, p := range m.st.proposals {
		if p.ServiceProvider == provider {
			proposals = append(proposals, p)
		}
	}
	sortProposals(proposals)
	return proposals, nil
}

func (m *Store) ProposalsByRequest(ctx context.Context, requestID uuid.UUID) ([]models.Proposal, error) {
	defer m.lock()()
	var proposals []models.Proposal
	for _, p := range m.st.proposals {
		if p.RequestID == requestID {
			proposals = append(proposals, p)
		}
	}
	sortProposals(proposals)
	return proposals, nil
}

func sortProposals(proposals []models.Proposal) {
	sort.Slice(proposals, func(i, j int) bool { return proposals[i].CreatedAt.After(proposals[j].CreatedAt) })
}

func (m *Store) HasOpenProposal(ctx context.Context, requestID, provider uuid.UUID) (bool, error) {
	defer m.lock()()
	for _, p := range m.st.proposals {
		if p.RequestID == requestID && p.ServiceProvider == provider && p.Open() {
			return true, nil
		}
	}
	return false, nil
}

func (m *Store) UpdateProposal(ctx context.Context, p models.Proposal) error {
	defer m.lock()()
	current, ok := m.st.proposals[p.ID]
	if !ok {
		return storage.ErrNotFound
	}
	current.Price = p.Price
	current.DurationDays = p.DurationDays
	current.Notes = p.Notes
	current.Attachments = p.Attachments
	current.UpdatedAt = time.Now().UTC()
	m.st.proposals[p.ID] = current
	return nil
}

func (m *Store) SetProposalStatus(ctx context.Context, id uuid.UUID, status models.ProposalStatus, reason string) error {
	defer m.lock()()
	p, ok := m.st.proposals[id]
	if !ok {
		return storage.ErrNotFound
	}
	p.Status = status
	p.RejectionReason = reason
	p.UpdatedAt = time.Now().UTC()
	m.st.proposals[id] = p
	return nil
}

func (m *Store) RejectPendingSiblings(ctx context.Context, requestID, winner uuid.UUID) (int64, error) {
	defer m.lock()()
	var n int64
	for id, p := range m.st.proposals {
		if p.RequestID == requestID && id != winner && p.Status == models.ProposalPending {
			p.Status = models.ProposalRejected
			p.RejectionReason = "another proposal was accepted"
			p.UpdatedAt = time.Now().UTC()
			m.st.proposals[id] = p
			n++
		}
	}
	return n, nil
}

func (m *Store) InsertBooking(ctx context.Context, b models.Booking) error {
	defer m.lock()()
	for _, existing := range m.st.bookings {
		if existing.RequestID == b.RequestID && existing.Status != models.BookingCanceled {
			return storage.ErrDuplicate
		}
	}
	m.st.bookings[b.ID] = b
	return nil
}

func (m *Store) BookingByID(ctx context.Context, id uuid.UUID) (models.Booking, error) {
	defer m.lock()()
	b, ok := m.st.bookings[id]
	if !ok {
		return models.Booking{}, storage.ErrNotFound
	}
	return b, nil
}

func (m *Store) BookingsByClient(ctx context.Context, client uuid.UUID) ([]models.Booking, error) {
	defer m.lock()()
	var bookings []models.Booking
	for _, b := range m.st.bookings {
		if b.Client == client {
			bookings = append(bookings, b)
		}
	}
	sortBookings(bookings)
	return bookings, nil
}

func (m *Store) BookingsByProvider(ctx context.Context, provider uuid.UUID) ([]models.Booking, error) {
	defer m.lock()()
	var bookings []models.Booking
	for _, b := range m.st.bookings {
		if b.ServiceProvider == provider {
			bookings = append(bookings, b)
		}
	}
	sortBookings(bookings)
	return bookings, nil
}

func (m *Store) BookingsByStatus(ctx context.Context, statuses ...models.BookingStatus) ([]models.Booking, error) {
	defer m.lock()()
	var bookings []models.Booking
	for _, b := range m.st.bookings {
		for _, s := range statuses {
			if b.Status == s {
				bookings = append(bookings, b)
				break
			}
		}
	}
	sortBookings(bookings)
	return bookings, nil
}

func sortBookings(bookings []models.Booking) {
	sort.Slice(bookings, func(i, j int) bool { return bookings[i].CreatedAt.After(bookings[j].CreatedAt) })
}

func (m *Store) HasActiveBooking(ctx context.Context, requestID uuid.UUID) (bool, error) {
	defer m.lock()()
	for _, b := range m.st.bookings {
		if b.RequestID == requestID && b.Status != models.BookingCanceled {
			return true, nil
		}
	}
	return false, nil
}

func (m *Store) UpdateBooking(ctx context.Context, b models.Booking) error {
	defer m.lock()()
	if _, ok := m.st.bookings[b.ID]; !ok {
		return storage.ErrNotFound
	}
	b.UpdatedAt = time.Now().UTC()
	m.st.bookings[b.ID] = b
	return nil
}
