package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/haierkeys/onyx-note-sync/internal/domain"
	"github.com/haierkeys/onyx-note-sync/pkg/code"
)

// memNotes in-memory local store with the same binding rules as the SQLite repository
type memNotes struct {
	mu         sync.Mutex
	notes      map[int64]*domain.Note
	tombstones map[string]time.Time
	tombScope  map[string]string
	nextID     int64
	now        func() time.Time
}

func newMemNotes() *memNotes {
	return &memNotes{
		notes:      make(map[int64]*domain.Note),
		tombstones: make(map[string]time.Time),
		tombScope:  make(map[string]string),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (m *memNotes) ListNotes(ctx context.Context) ([]*domain.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.Note, 0, len(m.notes))
	for _, n := range m.notes {
		c := *n
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].LocalID > out[j].LocalID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (m *memNotes) GetNote(ctx context.Context, localID int64) (*domain.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notes[localID]
	if !ok {
		return nil, code.ErrorNoteNotFound
	}
	c := *n
	return &c, nil
}

func (m *memNotes) GetNoteContent(ctx context.Context, localID int64) (*domain.NoteContent, error) {
	n, err := m.GetNote(ctx, localID)
	if err != nil {
		return nil, err
	}
	return &domain.NoteContent{Title: n.Title, Content: n.Content, RemoteID: n.RemoteID}, nil
}

func (m *memNotes) GetNoteByRemoteID(ctx context.Context, remoteID string) (*domain.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.notes {
		if n.RemoteID == remoteID {
			c := *n
			return &c, nil
		}
	}
	return nil, code.ErrorNoteNotFound
}

func (m *memNotes) CreateNote(ctx context.Context, title, content string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	now := m.now()
	m.notes[m.nextID] = &domain.Note{LocalID: m.nextID, Title: title, Content: content, CreatedAt: now, UpdatedAt: now}
	return m.nextID, nil
}

// put inserts a note with explicit fields
func (m *memNotes) put(n domain.Note) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	n.LocalID = m.nextID
	m.notes[n.LocalID] = &n
	return n.LocalID
}

func (m *memNotes) UpdateNote(ctx context.Context, localID int64, title, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notes[localID]
	if !ok {
		return code.ErrorNoteNotFound
	}
	n.Title, n.Content, n.UpdatedAt = title, content, m.now()
	return nil
}

func (m *memNotes) BindRemoteID(ctx context.Context, localID int64, remoteID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notes[localID]
	if !ok {
		return code.ErrorNoteNotFound
	}
	if n.RemoteID == remoteID {
		return nil
	}
	if n.RemoteID != "" {
		return code.ErrorBindingConflict.WithDetails(remoteID)
	}
	for _, other := range m.notes {
		if other.RemoteID == remoteID {
			return code.ErrorRemoteIDTaken
		}
	}
	n.RemoteID = remoteID
	n.UpdatedAt = m.now()
	return nil
}

func (m *memNotes) ImportRemoteNote(ctx context.Context, remoteID, title, content string, remoteUpdatedAt time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.notes {
		if other.RemoteID == remoteID {
			return 0, code.ErrorRemoteIDTaken
		}
	}
	m.nextID++
	m.notes[m.nextID] = &domain.Note{
		LocalID: m.nextID, RemoteID: remoteID, Title: title, Content: content,
		CreatedAt: m.now(), UpdatedAt: remoteUpdatedAt.UTC(),
	}
	return m.nextID, nil
}

func (m *memNotes) DeleteNote(ctx context.Context, localID int64) (*domain.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notes[localID]
	if !ok {
		return nil, code.ErrorNoteNotFound
	}
	delete(m.notes, localID)
	if n.RemoteID != "" {
		m.tombstones[n.RemoteID] = m.now()
		m.tombScope[n.RemoteID] = n.RemoteScope
	}
	return n, nil
}

func (m *memNotes) DeleteNoteByRemoteID(ctx context.Context, remoteID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tombstones, remoteID)
	delete(m.tombScope, remoteID)
	for id, n := range m.notes {
		if n.RemoteID == remoteID {
			delete(m.notes, id)
			return true, nil
		}
	}
	return false, nil
}

func (m *memNotes) ListTombstones(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.tombstones))
	for id := range m.tombstones {
		out = append(out, id)
	}
	return out, nil
}

func (m *memNotes) ClearTombstone(ctx context.Context, remoteID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tombstones, remoteID)
	delete(m.tombScope, remoteID)
	return nil
}

func (m *memNotes) MarkRemoteScope(ctx context.Context, scope string, remoteIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := make(map[string]struct{}, len(remoteIDs))
	for _, id := range remoteIDs {
		want[id] = struct{}{}
	}
	for _, n := range m.notes {
		if _, ok := want[n.RemoteID]; ok && n.RemoteID != "" {
			n.RemoteScope = scope
		}
	}
	return nil
}

func (m *memNotes) ListScopedTombstones(ctx context.Context, scope string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for id, sc := range m.tombScope {
		if sc == scope {
			out = append(out, id)
		}
	}
	return out, nil
}

func (m *memNotes) scopeOf(remoteID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.notes {
		if n.RemoteID == remoteID {
			return n.RemoteScope
		}
	}
	return ""
}

func (m *memNotes) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.notes)
}

// memStore in-memory remote collection store
type memStore struct {
	mu     sync.Mutex
	docs   map[string]*domain.Document
	nextID int
	now    func() time.Time

	creates   atomic.Int32
	updates   atomic.Int32
	deletes   []string
	createErr error
	deleteErr error
	listErr   error
	healthErr atomic.Pointer[error]

	// listGate blocks ListDocuments until closed, when set
	listGate    chan struct{}
	listEntered chan struct{}
	// listHook runs at the start of ListDocuments, when set
	listHook func()

	subs       []*memSub
	subscribes atomic.Int32
}

func newMemStore() *memStore {
	return &memStore{
		docs: make(map[string]*domain.Document),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *memStore) ListDocuments(ctx context.Context, collection string) ([]*domain.Document, error) {
	if s.listHook != nil {
		s.listHook()
	}
	if s.listEntered != nil {
		select {
		case s.listEntered <- struct{}{}:
		default:
		}
	}
	if s.listGate != nil {
		select {
		case <-s.listGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]*domain.Document, 0, len(s.docs))
	for _, d := range s.docs {
		if d.Collection == collection {
			c := *d
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) CreateDocument(ctx context.Context, collection string, fields domain.DocumentFields) (string, error) {
	s.creates.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return "", s.createErr
	}
	s.nextID++
	id := fmt.Sprintf("r%03d", s.nextID)
	now := s.now()
	s.docs[id] = &domain.Document{
		ID: id, Collection: collection, Owner: fields.Owner, Title: fields.Title,
		Content: fields.Content, ClientKey: fields.ClientKey, Created: now, Updated: now,
	}
	return id, nil
}

// seed inserts a document with explicit fields
func (s *memStore) seed(d domain.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := d
	s.docs[d.ID] = &c
}

func (s *memStore) remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, id)
}

func (s *memStore) get(id string) (*domain.Document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[id]
	if !ok {
		return nil, false
	}
	c := *d
	return &c, true
}

func (s *memStore) UpdateDocument(ctx context.Context, collection, remoteID string, fields domain.DocumentFields) error {
	s.updates.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[remoteID]
	if !ok {
		return code.ErrorRemoteRequest.WithDetails("not found")
	}
	d.Title, d.Content, d.Updated = fields.Title, fields.Content, s.now()
	return nil
}

func (s *memStore) DeleteDocument(ctx context.Context, collection, remoteID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes = append(s.deletes, remoteID)
	if s.deleteErr != nil {
		return s.deleteErr
	}
	delete(s.docs, remoteID)
	return nil
}

func (s *memStore) deleteCalls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.deletes...)
}

func (s *memStore) Subscribe(ctx context.Context, collection string, handler domain.RemoteEventHandler) (domain.Subscription, error) {
	s.subscribes.Add(1)
	if err := s.health(); err != nil {
		return nil, err
	}
	sub := &memSub{handler: handler, done: make(chan struct{})}
	s.mu.Lock()
	s.subs = append(s.subs, sub)
	s.mu.Unlock()
	return sub, nil
}

func (s *memStore) lastSub() *memSub {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.subs) == 0 {
		return nil
	}
	return s.subs[len(s.subs)-1]
}

func (s *memStore) setHealthy(ok bool) {
	if ok {
		s.healthErr.Store(nil)
		return
	}
	err := error(code.ErrorConnectivityLost)
	s.healthErr.Store(&err)
}

func (s *memStore) health() error {
	if p := s.healthErr.Load(); p != nil {
		return *p
	}
	return nil
}

func (s *memStore) HealthCheck(ctx context.Context) error {
	return s.health()
}

type memSub struct {
	handler      domain.RemoteEventHandler
	done         chan struct{}
	once         sync.Once
	unsubscribed atomic.Bool
}

func (s *memSub) Unsubscribe() error {
	s.unsubscribed.Store(true)
	s.once.Do(func() { close(s.done) })
	return nil
}

func (s *memSub) Done() <-chan struct{} { return s.done }

// drop simulates a server side disconnect
func (s *memSub) drop() {
	s.once.Do(func() { close(s.done) })
}

func (s *memSub) emit(ev domain.RemoteEvent) {
	s.handler(ev)
}

// recordingSyncer counts triggers
type recordingSyncer struct {
	mu      sync.Mutex
	reasons []string
}

func (r *recordingSyncer) Trigger(reason string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reasons = append(r.reasons, reason)
	return true
}

func (r *recordingSyncer) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.reasons...)
}

type staticGate struct {
	recordingSyncer
	connected bool
}

func (g *staticGate) Connected() bool { return g.connected }

var errBoom = errors.New("boom")
