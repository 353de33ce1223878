package mock

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/garnizeh/recruit/pkg/models"
	"github.com/garnizeh/recruit/pkg/repository"
)

// Test helpers and mocks
type Mocks struct {
	Users   *UserRepo
	Store   *Store
	Schemas *SchemaRepo
}

func NewMocks() *Mocks {
	s := NewStore()
	return &Mocks{
		Users:   &UserRepo{store: s},
		Store:   s,
		Schemas: &SchemaRepo{schemas: map[string]models.Schema{}},
	}
}

// Store is an in-memory ApplicationRepo and DocumentRepo. It is safe for concurrent use.
type Store struct {
	mu        sync.Mutex
	users     map[int64]models.User
	apps      map[int64]models.Application
	docs      map[int64]models.UploadedDocument
	seq       map[int]int64
	appIDs    map[string]bool
	nextUser  int64
	nextApp   int64
	nextDoc   int64
	CreateErr error
	UpdateErr error
	DocErr    error
}

var (
	_ repository.ApplicationRepo = (*Store)(nil)
	_ repository.DocumentRepo    = (*Store)(nil)
	_ repository.UserRepo        = (*UserRepo)(nil)
	_ repository.SchemaRepo      = (*SchemaRepo)(nil)
)

func NewStore() *Store {
	return &Store{
		users:  map[int64]models.User{},
		apps:   map[int64]models.Application{},
		docs:   map[int64]models.UploadedDocument{},
		seq:    map[int]int64{},
		appIDs: map[string]bool{},
	}
}

func copyApp(a models.Application) models.Application {
	a.Stages = append([]models.StageEntry(nil), a.Stages...)
	return a
}

func (s *Store) withOwner(a models.Application) models.Application {
	a = copyApp(a)
	if u, ok := s.users[a.OwnerID]; ok {
		a.Owner = &models.Owner{ID: u.ID, Name: u.Name, Email: u.Email, Phone: u.Phone}
	}
	return a
}

func (s *Store) NextApplicationSeq(ctx context.Context, year int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq[year]++
	return s.seq[year], nil
}

// SetSeq forces the counter for year, letting tests provoke applicationId collisions.
func (s *Store) SetSeq(year int, v int64) {
	s.mu.Lock()
	s.seq[year] = v
	s.mu.Unlock()
}

func (s *Store) CreateApplication(ctx context.Context, a *models.Application) (int64, error) {
	if a == nil {
		return 0, fmt.Errorf("application is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.CreateErr != nil {
		return 0, s.CreateErr
	}
	if s.appIDs[a.ApplicationID] {
		return 0, fmt.Errorf("insert application %s: %w", a.ApplicationID, repository.ErrConflict)
	}
	s.nextApp++
	c := copyApp(*a)
	c.ID = s.nextApp
	c.Owner = nil
	s.apps[c.ID] = c
	s.appIDs[c.ApplicationID] = true
	return c.ID, nil
}

func (s *Store) GetApplication(ctx context.Context, id int64) (*models.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.apps[id]
	if !ok {
		return nil, nil
	}
	out := s.withOwner(a)
	return &out, nil
}

func (s *Store) list(keep func(models.Application) bool) []models.Application {
	ids := make([]int64, 0, len(s.apps))
	for id, a := range s.apps {
		if keep(a) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]models.Application, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.withOwner(s.apps[id]))
	}
	return out
}

func (s *Store) ListApplications(ctx context.Context) ([]models.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list(func(models.Application) bool { return true }), nil
}

func (s *Store) ListApplicationsByOwner(ctx context.Context, ownerID int64) ([]models.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list(func(a models.Application) bool { return a.OwnerID == ownerID }), nil
}

func (s *Store) UpdateApplication(ctx context.Context, a *models.Application) error {
	if a == nil {
		return fmt.Errorf("application is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.UpdateErr != nil {
		return s.UpdateErr
	}
	if _, ok := s.apps[a.ID]; !ok {
		return nil
	}
	c := copyApp(*a)
	c.Owner = nil
	c.UpdatedAt = time.Now().UTC()
	s.apps[a.ID] = c
	return nil
}

func (s *Store) DeleteApplication(ctx context.Context, id int64) ([]models.UploadedDocument, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.apps[id]; !ok {
		return nil, false, nil
	}
	var removed []models.UploadedDocument
	for did, d := range s.docs {
		if d.ApplicationID == id {
			removed = append(removed, d)
			delete(s.docs, did)
		}
	}
	sort.Slice(removed, func(i, j int) bool { return removed[i].ID < removed[j].ID })
	// appIDs keeps the business key reserved after deletion.
	delete(s.apps, id)
	return removed, true, nil
}

func (s *Store) CreateDocument(ctx context.Context, d *models.UploadedDocument) (int64, error) {
	if d == nil {
		return 0, fmt.Errorf("document is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.DocErr != nil {
		return 0, s.DocErr
	}
	s.nextDoc++
	c := *d
	c.ID = s.nextDoc
	s.docs[c.ID] = c
	return c.ID, nil
}

func (s *Store) GetDocument(ctx context.Context, id int64) (*models.UploadedDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[id]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (s *Store) ListDocumentsByApplication(ctx context.Context, applicationID int64) ([]models.UploadedDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.UploadedDocument
	for _, d := range s.docs {
		if d.ApplicationID == applicationID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) CountDocumentsByType(ctx context.Context, applicationID int64, t models.DocumentType) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, d := range s.docs {
		if d.ApplicationID == applicationID && d.DocumentType == t {
			n++
		}
	}
	return n, nil
}

func (s *Store) UpdateDocument(ctx context.Context, d *models.UploadedDocument) error {
	if d == nil {
		return fmt.Errorf("document is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[d.ID]; ok {
		s.docs[d.ID] = *d
	}
	return nil
}

func (s *Store) DeleteDocument(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, id)
	return nil
}

// UserRepo shares the Store's user table so applications can attach owners.
type UserRepo struct {
	store     *Store
	CreateErr error
}

func (m *UserRepo) CreateUser(ctx context.Context, u *models.User) (int64, error) {
	if m.CreateErr != nil {
		return 0, m.CreateErr
	}
	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return 0, fmt.Errorf("insert user %s: %w", u.Email, repository.ErrConflict)
		}
	}
	s.nextUser++
	c := *u
	c.ID = s.nextUser
	if c.Role == "" {
		c.Role = models.RoleUser
	}
	s.users[c.ID] = c
	return c.ID, nil
}

func (m *UserRepo) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (m *UserRepo) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, nil
}

func (m *UserRepo) UpdateUserRole(ctx context.Context, id int64, role models.Role) error {
	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		u.Role = role
		s.users[id] = u
	}
	return nil
}

type SchemaRepo struct {
	mu      sync.Mutex
	schemas map[string]models.Schema
}

func (m *SchemaRepo) UpsertSchema(ctx context.Context, name, description, schemaJSON string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schemas[name] = models.Schema{Name: name, Description: description, SchemaJSON: schemaJSON}
	return nil
}

func (m *SchemaRepo) GetSchemaByName(ctx context.Context, name string) (*models.Schema, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.schemas[name]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *SchemaRepo) ListSchemas(ctx context.Context) ([]models.Schema, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Schema, 0, len(m.schemas))
	for _, s := range m.schemas {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
