package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"keysaccounting-api/internal/ledger"
	"keysaccounting-api/internal/metrics"
	"keysaccounting-api/internal/model"
	"keysaccounting-api/internal/notify"
	"keysaccounting-api/internal/pending"
	"keysaccounting-api/internal/repository"
	"keysaccounting-api/internal/resolve"
)

// notifyTimeout bounds a single notification delivery.
const notifyTimeout = 10 * time.Second

// LendingDeps holds the collaborators of a LendingService.
type LendingDeps struct {
	Keys       repository.KeyRepository
	Ledger     *ledger.Ledger
	Registry   *pending.Registry
	Directory  *Directory
	Resolver   resolve.Resolver
	Notifier   notify.Notifier
	RequestTTL time.Duration
}

// ApproverContext identifies who acts on a request and, optionally, which
// request they were shown.
type ApproverContext struct {
	ApproverID string
	RequestID  string
}

// KeyState is what is known about one key.
type KeyState struct {
	Name    string           `json:"key_name"`
	Key     *model.Key       `json:"key,omitempty"`
	Last    *model.LoanEntry `json:"last_entry,omitempty"`
	OnLoan  bool             `json:"on_loan"`
	Pending *pending.Request `json:"pending_request,omitempty"`
}

// LendingService coordinates requests, approvals and returns of keys.
type LendingService struct {
	keys       repository.KeyRepository
	ledger     *ledger.Ledger
	registry   *pending.Registry
	directory  *Directory
	resolver   resolve.Resolver
	notifier   notify.Notifier
	requestTTL time.Duration

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewLendingService creates the coordinator and hooks request expiry.
func NewLendingService(deps LendingDeps) *LendingService {
	if deps.RequestTTL <= 0 {
		deps.RequestTTL = time.Hour
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.LogNotifier{}
	}
	if deps.Resolver == nil {
		deps.Resolver = resolve.NewFuzzy()
	}

	s := &LendingService{
		keys:       deps.Keys,
		ledger:     deps.Ledger,
		registry:   deps.Registry,
		directory:  deps.Directory,
		resolver:   deps.Resolver,
		notifier:   deps.Notifier,
		requestTTL: deps.RequestTTL,
		locks:      make(map[string]*sync.Mutex),
	}
	s.registry.OnExpire(s.onExpire)
	return s
}

// Directory returns the employee directory the service uses.
func (s *LendingService) Directory() *Directory {
	return s.directory
}

// RequestKey registers a request for the key matching query and notifies the approver.
func (s *LendingService) RequestKey(ctx context.Context, query, requesterID, comment string) (pending.Request, error) {
	requester, err := s.directory.ByTelegramID(ctx, requesterID)
	if err != nil {
		return pending.Request{}, err
	}

	key, err := s.resolveKey(ctx, query)
	if err != nil {
		return pending.Request{}, err
	}

	unlock := s.lock(key)
	req, approver, err := s.submit(ctx, key, requesterID, comment)
	unlock()
	if err != nil {
		return pending.Request{}, err
	}

	text := fmt.Sprintf("%s requests key %s", requester.FullName(), key)
	if comment != "" {
		text += ": " + comment
	}
	s.notify(ctx, approver.TelegramID, notify.Message{
		Kind:      notify.KindRequest,
		KeyName:   key,
		RequestID: req.ID,
		Text:      text,
	})
	return req, nil
}

// submit checks availability and registers the request. Caller holds the key lock.
func (s *LendingService) submit(ctx context.Context, key, requesterID, comment string) (pending.Request, *model.Employee, error) {
	entry, onLoan, err := s.ledger.Outstanding(ctx, key)
	if err != nil {
		return pending.Request{}, nil, err
	}
	if onLoan {
		return pending.Request{}, nil, &KeyOnLoanError{Entry: *entry}
	}

	approver, err := s.directory.Approver(ctx)
	if err != nil {
		return pending.Request{}, nil, err
	}

	req, err := s.registry.Submit(key, requesterID, comment, s.requestTTL)
	if errors.Is(err, pending.ErrAlreadyPending) {
		return pending.Request{}, nil, ErrRequestAlreadyPending
	}
	if err != nil {
		return pending.Request{}, nil, err
	}
	return req, approver, nil
}

// Approve resolves the pending request for key and records the loan.
func (s *LendingService) Approve(ctx context.Context, key string, ac ApproverContext) (*model.LoanEntry, error) {
	if err := s.authorize(ctx, ac); err != nil {
		return nil, err
	}

	unlock := s.lock(key)
	req, entry, err := s.approve(ctx, key, ac)
	unlock()

	switch {
	case err == nil:
		recordOutcome(pending.Approved.String())
		s.notify(ctx, req.RequesterID, notify.Message{
			Kind:      notify.KindApproved,
			KeyName:   key,
			RequestID: req.ID,
			Text:      fmt.Sprintf("Your request for key %s was approved", key),
		})
		return entry, nil
	case errors.Is(err, ErrRequestLapsed):
	case errors.Is(err, ErrKeyAlreadyOnLoan):
		recordOutcome(pending.Denied.String())
		s.notify(ctx, req.RequesterID, notify.Message{
			Kind:      notify.KindDenied,
			KeyName:   key,
			RequestID: req.ID,
			Text:      fmt.Sprintf("Key %s is already on loan", key),
		})
	default:
		// The request is already out of the registry; tell the requester
		// to ask again instead of leaving them waiting.
		recordOutcome(outcomeFailed)
		log.Printf("[LendingService] Approval of %s for %s failed: %v", key, req.RequesterID, err)
		s.notify(ctx, req.RequesterID, notify.Message{
			Kind:      notify.KindDenied,
			KeyName:   key,
			RequestID: req.ID,
			Text:      fmt.Sprintf("Your request for key %s could not be recorded, please request it again", key),
		})
	}
	return nil, err
}

func (s *LendingService) approve(ctx context.Context, key string, ac ApproverContext) (pending.Request, *model.LoanEntry, error) {
	req, ok := s.resolve(key, ac, pending.Approved)
	if !ok {
		return pending.Request{}, nil, ErrRequestLapsed
	}

	current, onLoan, err := s.ledger.OutstandingFresh(ctx, key)
	if err != nil {
		return req, nil, err
	}
	if onLoan {
		return req, nil, &KeyOnLoanError{Entry: *current}
	}

	requester, err := s.directory.ByTelegramID(ctx, req.RequesterID)
	if err != nil {
		return req, nil, fmt.Errorf("requester of %s: %w", key, err)
	}

	entry, err := s.ledger.RecordLoan(ctx, key, requester.Snapshot(), req.Comment)
	if err != nil {
		return req, nil, err
	}
	return req, entry, nil
}

// Deny resolves the pending request for key without touching the ledger.
func (s *LendingService) Deny(ctx context.Context, key string, ac ApproverContext) (pending.Request, error) {
	if err := s.authorize(ctx, ac); err != nil {
		return pending.Request{}, err
	}

	req, ok := s.resolve(key, ac, pending.Denied)
	if !ok {
		return pending.Request{}, ErrRequestLapsed
	}
	recordOutcome(pending.Denied.String())

	s.notify(ctx, req.RequesterID, notify.Message{
		Kind:      notify.KindDenied,
		KeyName:   key,
		RequestID: req.ID,
		Text:      fmt.Sprintf("Your request for key %s was denied", key),
	})
	return req, nil
}

// ReturnKey closes the outstanding loan of key. It reports false without
// error when nothing was outstanding.
func (s *LendingService) ReturnKey(ctx context.Context, key string) (*model.LoanEntry, bool, error) {
	unlock := s.lock(key)
	entry, ok, err := s.ledger.RecordReturn(ctx, key)
	unlock()

	switch {
	case err != nil:
		metrics.Returns.WithLabelValues("error").Inc()
		return nil, false, err
	case !ok:
		metrics.Returns.WithLabelValues("nothing_outstanding").Inc()
		return nil, false, nil
	}
	metrics.Returns.WithLabelValues("returned").Inc()

	holder, err := s.directory.ByName(ctx, entry.EmployeeFirstName, entry.EmployeeLastName)
	if err != nil {
		log.Printf("[LendingService] Holder of %s not notified: %v", key, err)
		return entry, true, nil
	}
	s.notify(ctx, holder.TelegramID, notify.Message{
		Kind:    notify.KindReturned,
		KeyName: key,
		Text:    fmt.Sprintf("Key %s has been returned", key),
	})
	return entry, true, nil
}

// OverdueScan returns loans outstanding for longer than threshold.
func (s *LendingService) OverdueScan(ctx context.Context, threshold time.Duration) ([]model.LoanEntry, error) {
	return s.ledger.Overdue(ctx, threshold)
}

// OutstandingLoans returns every key currently on loan.
func (s *LendingService) OutstandingLoans(ctx context.Context) ([]model.LoanEntry, error) {
	return s.ledger.OutstandingEntries(ctx)
}

// KeyState reports the key record, its last ledger entry and any pending request.
func (s *LendingService) KeyState(ctx context.Context, name string) (*KeyState, error) {
	state := &KeyState{Name: name}

	key, err := s.keys.KeyByName(ctx, name)
	switch {
	case err == nil:
		state.Key = key
	case !errors.Is(err, repository.ErrNotFound):
		return nil, err
	}

	last, ok, err := s.ledger.CurrentState(ctx, name)
	if err != nil {
		return nil, err
	}
	if ok {
		state.Last = last
		state.OnLoan = last.Outstanding()
	}

	if state.Key == nil && state.Last == nil {
		return nil, fmt.Errorf("key %q: %w", name, repository.ErrNotFound)
	}

	if req, ok := s.registry.Get(name); ok {
		state.Pending = &req
	}
	return state, nil
}

// KeyHistory returns every ledger entry of a key.
func (s *LendingService) KeyHistory(ctx context.Context, key string) ([]model.LoanEntry, error) {
	return s.ledger.KeyHistory(ctx, key)
}

// EmployeeHistory resolves a name and returns the entries of that employee.
func (s *LendingService) EmployeeHistory(ctx context.Context, query string) (model.EmployeeSnapshot, []model.LoanEntry, error) {
	found, err := s.directory.FindEmployees(ctx, query)
	if err != nil {
		return model.EmployeeSnapshot{}, nil, err
	}

	switch len(found) {
	case 0:
		return model.EmployeeSnapshot{}, nil, fmt.Errorf("employee %q: %w", query, repository.ErrNotFound)
	case 1:
	default:
		names := make([]string, len(found))
		for i, f := range found {
			names[i] = strings.TrimSpace(f.FirstName + " " + f.LastName)
		}
		return model.EmployeeSnapshot{}, nil, &AmbiguousEmployeeError{Query: query, Candidates: names}
	}

	entries, err := s.ledger.EmployeeHistory(ctx, found[0].FirstName, found[0].LastName)
	if err != nil {
		return model.EmployeeSnapshot{}, nil, err
	}
	return found[0], entries, nil
}

// MyKeys returns the keys the employee with the given chat identity holds.
func (s *LendingService) MyKeys(ctx context.Context, telegramID string) ([]model.LoanEntry, error) {
	emp, err := s.directory.ByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, err
	}
	return s.ledger.HeldBy(ctx, emp.FirstName, emp.LastName)
}

// FindKeys resolves a free-text query against known key names.
func (s *LendingService) FindKeys(ctx context.Context, query string) ([]string, error) {
	names, err := s.keyNames(ctx)
	if err != nil {
		return nil, err
	}
	return s.resolver.Resolve(query, names), nil
}

// PendingRequests lists requests awaiting approval.
func (s *LendingService) PendingRequests() []pending.Request {
	return s.registry.List()
}

// resolveKey maps user input to a single key name.
func (s *LendingService) resolveKey(ctx context.Context, query string) (string, error) {
	query = strings.TrimSpace(query)
	names, err := s.keyNames(ctx)
	if err != nil {
		return "", err
	}

	for _, name := range names {
		if name == query {
			return name, nil
		}
	}

	candidates := s.resolver.Resolve(query, names)
	switch len(candidates) {
	case 0:
		return "", fmt.Errorf("key %q: %w", query, repository.ErrNotFound)
	case 1:
		return candidates[0], nil
	default:
		return "", &AmbiguousKeyError{Query: query, Candidates: candidates}
	}
}

// keyNames lists names from the Keys table followed by names only seen in the ledger.
func (s *LendingService) keyNames(ctx context.Context) ([]string, error) {
	keys, err := s.keys.Keys(ctx)
	if err != nil {
		return nil, err
	}
	ledgerNames, err := s.ledger.KeyNames(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(keys)+len(ledgerNames))
	names := make([]string, 0, len(keys)+len(ledgerNames))
	for _, k := range keys {
		if _, ok := seen[k.Name]; !ok {
			seen[k.Name] = struct{}{}
			names = append(names, k.Name)
		}
	}
	for _, n := range ledgerNames {
		if _, ok := seen[n]; !ok {
			seen[n] = struct{}{}
			names = append(names, n)
		}
	}
	return names, nil
}

func (s *LendingService) authorize(ctx context.Context, ac ApproverContext) error {
	if ac.ApproverID == "" {
		return nil
	}
	_, err := s.directory.CheckPermission(ctx, ac.ApproverID, model.RoleSecurity)
	return err
}

func (s *LendingService) resolve(key string, ac ApproverContext, outcome pending.Outcome) (pending.Request, bool) {
	if ac.RequestID != "" {
		return s.registry.ResolveRequest(key, ac.RequestID, outcome)
	}
	return s.registry.Resolve(key, outcome)
}

func (s *LendingService) onExpire(req pending.Request) {
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	s.notify(ctx, req.RequesterID, notify.Message{
		Kind:      notify.KindExpired,
		KeyName:   req.KeyName,
		RequestID: req.ID,
		Text:      fmt.Sprintf("Your request for key %s has expired", req.KeyName),
	})
}

// notify delivers a message; failures are logged and never returned.
func (s *LendingService) notify(ctx context.Context, recipientID string, msg notify.Message) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	if err := s.notifier.Notify(ctx, recipientID, msg); err != nil {
		metrics.NotificationFailures.Inc()
		log.Printf("[LendingService] Failed to notify %s about %s (%s): %v", recipientID, msg.KeyName, msg.Kind, err)
	}
}

// outcomeFailed labels approvals whose loan could not be recorded.
const outcomeFailed = "failed"

func recordOutcome(outcome string) {
	metrics.RequestOutcomes.WithLabelValues(outcome).Inc()
}

// lock serializes check-then-act sequences on one key.
func (s *LendingService) lock(key string) func() {
	s.locksMu.Lock()
	mu, ok := s.locks[key]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[key] = mu
	}
	s.locksMu.Unlock()

	mu.Lock()
	return mu.Unlock
}
