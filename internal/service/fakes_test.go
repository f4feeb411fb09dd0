package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"fp-innova/internal/models"
	"fp-innova/internal/rbac"
	"fp-innova/internal/repository"
	"fp-innova/internal/storage"
)

type fakeTx struct{}

func (fakeTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type sentNotification struct {
	users []uint
	kind  string
	title string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (n *fakeNotifier) Notify(_ context.Context, userIDs []uint, kind, title, _, _ string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{users: slices.Clone(userIDs), kind: kind, title: title})
}

func (n *fakeNotifier) ofKind(kind string) []sentNotification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []sentNotification
	for _, s := range n.sent {
		if s.kind == kind {
			out = append(out, s)
		}
	}
	return out
}

type fakeAuditStore struct {
	mu   sync.Mutex
	logs []models.AuditLog
}

func (s *fakeAuditStore) Create(_ context.Context, log *models.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, *log)
	return nil
}

func (s *fakeAuditStore) List(_ context.Context, _ models.AuditFilter) ([]models.AuditLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.logs), nil
}

func newTestAudit() *AuditService {
	return NewAuditService(&fakeAuditStore{})
}

type fakeReviewSettings struct {
	reviews models.ReviewSettings
}

func (f *fakeReviewSettings) Reviews(context.Context) models.ReviewSettings { return f.reviews }

// fakeUsers implements UserStore over a map
type fakeUsers struct {
	mu    sync.Mutex
	users map[uint]*models.User
	next  uint
}

func newFakeUsers(users ...*models.User) *fakeUsers {
	f := &fakeUsers{users: map[uint]*models.User{}, next: 1000}
	for _, u := range users {
		f.users[u.ID] = u
	}
	return f
}

func (f *fakeUsers) Create(_ context.Context, u *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.users {
		if existing.Email == u.Email {
			return repository.ErrDuplicate
		}
	}
	f.next++
	u.ID = f.next
	c := *u
	f.users[u.ID] = &c
	return nil
}

func (f *fakeUsers) GetByID(_ context.Context, id uint) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (f *fakeUsers) List(_ context.Context, filter models.UserFilter) ([]models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.User
	for _, u := range f.users {
		if filter.Role == "" || u.Role == filter.Role {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (f *fakeUsers) ListByIDs(_ context.Context, ids []uint) ([]models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.User
	for _, id := range ids {
		if u, ok := f.users[id]; ok {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (f *fakeUsers) ListActiveByRoles(_ context.Context, roles []string) ([]models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.User
	for _, u := range f.users {
		if u.Active && slices.Contains(roles, u.Role) {
			out = append(out, *u)
		}
	}
	slices.SortFunc(out, func(a, b models.User) int { return int(a.ID) - int(b.ID) })
	return out, nil
}

func (f *fakeUsers) Update(_ context.Context, u *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[u.ID]; !ok {
		return repository.ErrNotFound
	}
	c := *u
	f.users[u.ID] = &c
	return nil
}

func (f *fakeUsers) SetActive(_ context.Context, id uint, active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.Active = active
	return nil
}

// fakeConvocatorias implements ConvocatoriaStore
type fakeConvocatorias struct {
	convs      map[uint]*models.Convocatoria
	categories map[uint]*models.Category
}

func newFakeConvocatorias(c *models.Convocatoria) *fakeConvocatorias {
	f := &fakeConvocatorias{convs: map[uint]*models.Convocatoria{c.ID: c}, categories: map[uint]*models.Category{}}
	for i := range c.Categories {
		f.categories[c.Categories[i].ID] = &c.Categories[i]
	}
	return f
}

func (f *fakeConvocatorias) Create(_ context.Context, c *models.Convocatoria) error {
	c.ID = uint(len(f.convs) + 1)
	f.convs[c.ID] = c
	return nil
}

func (f *fakeConvocatorias) GetByID(_ context.Context, id uint) (*models.Convocatoria, error) {
	c, ok := f.convs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeConvocatorias) LockForUpdate(ctx context.Context, id uint) (*models.Convocatoria, error) {
	return f.GetByID(ctx, id)
}

func (f *fakeConvocatorias) List(context.Context, string) ([]models.Convocatoria, error) {
	var out []models.Convocatoria
	for _, c := range f.convs {
		out = append(out, *c)
	}
	return out, nil
}

func (f *fakeConvocatorias) Update(_ context.Context, c *models.Convocatoria) error {
	f.convs[c.ID] = c
	return nil
}

func (f *fakeConvocatorias) UpdateStatus(_ context.Context, id uint, status string) error {
	c, ok := f.convs[id]
	if !ok {
		return repository.ErrNotFound
	}
	c.Status = status
	return nil
}

func (f *fakeConvocatorias) Delete(_ context.Context, id uint) error {
	delete(f.convs, id)
	return nil
}

func (f *fakeConvocatorias) ListCategories(_ context.Context, id uint) ([]models.Category, error) {
	return f.convs[id].Categories, nil
}

func (f *fakeConvocatorias) GetCategory(_ context.Context, id uint) (*models.Category, error) {
	c, ok := f.categories[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeConvocatorias) ReplaceCategories(_ context.Context, id uint, cats []models.Category) error {
	f.convs[id].Categories = cats
	return nil
}

// fakeProjects implements ProjectStore
type fakeProjects struct {
	mu       sync.Mutex
	projects map[uint]*models.Project
	next     uint
	nextDoc  uint
}

func newFakeProjects() *fakeProjects {
	return &fakeProjects{projects: map[uint]*models.Project{}}
}

func cloneProject(p *models.Project) *models.Project {
	c := *p
	c.Presenters = slices.Clone(p.Presenters)
	c.Reviewers = slices.Clone(p.Reviewers)
	c.CollaboratingCenters = slices.Clone(p.CollaboratingCenters)
	c.Documents = slices.Clone(p.Documents)
	return &c
}

func (f *fakeProjects) put(p *models.Project) *models.Project {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p.ID == 0 {
		f.next++
		p.ID = f.next
	}
	f.projects[p.ID] = cloneProject(p)
	return p
}

func (f *fakeProjects) Create(_ context.Context, p *models.Project) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	p.ID = f.next
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	f.projects[p.ID] = cloneProject(p)
	return nil
}

func (f *fakeProjects) GetByID(_ context.Context, id uint) (*models.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneProject(p), nil
}

func (f *fakeProjects) GetForUpdate(ctx context.Context, id uint) (*models.Project, error) {
	return f.GetByID(ctx, id)
}

func (f *fakeProjects) List(_ context.Context, filter models.ProjectFilter) ([]models.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Project
	for _, p := range f.projects {
		if filter.PresenterID != nil && !p.IsPresenter(*filter.PresenterID) {
			continue
		}
		if filter.ReviewerID != nil {
			if _, ok := p.Reviewer(*filter.ReviewerID); !ok {
				continue
			}
		}
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		out = append(out, *cloneProject(p))
	}
	slices.SortFunc(out, func(a, b models.Project) int { return int(a.ID) - int(b.ID) })
	return out, nil
}

func (f *fakeProjects) with(id uint, fn func(p *models.Project)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[id]
	if !ok {
		return repository.ErrNotFound
	}
	fn(p)
	return nil
}

func (f *fakeProjects) Update(_ context.Context, p *models.Project) error {
	return f.with(p.ID, func(stored *models.Project) {
		stored.Title = p.Title
		stored.Description = p.Description
		stored.RequestedAmount = p.RequestedAmount
		stored.DepartmentID = p.DepartmentID
		stored.CollaboratingCenters = slices.Clone(p.CollaboratingCenters)
	})
}

func (f *fakeProjects) UpdateStatus(_ context.Context, id uint, status models.ProjectStatus) error {
	return f.with(id, func(p *models.Project) {
		p.Status = status
		if status == models.ProjectSubmitted && p.SubmittedAt == nil {
			now := time.Now()
			p.SubmittedAt = &now
		}
	})
}

func (f *fakeProjects) UpdateScore(_ context.Context, id uint, score, weighted *float64) error {
	return f.with(id, func(p *models.Project) {
		p.Score = score
		p.WeightedScore = weighted
	})
}

func (f *fakeProjects) Delete(_ context.Context, id uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.projects[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.projects, id)
	return nil
}

func (f *fakeProjects) CountByCenter(_ context.Context, convocatoriaID, centerID, excludeID uint) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, p := range f.projects {
		if p.ConvocatoriaID == convocatoriaID && p.CenterID == centerID && p.Status != models.ProjectRejected && p.ID != excludeID {
			n++
		}
	}
	return n, nil
}

func (f *fakeProjects) SetPresenters(_ context.Context, id uint, userIDs []uint) error {
	return f.with(id, func(p *models.Project) { p.Presenters = slices.Clone(userIDs) })
}

func (f *fakeProjects) ReplaceReviewers(_ context.Context, id uint, userIDs []uint) ([]uint, error) {
	var added []uint
	err := f.with(id, func(p *models.Project) {
		next := make([]models.ProjectReviewer, 0, len(userIDs))
		for _, uid := range userIDs {
			if r, ok := p.Reviewer(uid); ok {
				next = append(next, *r)
				continue
			}
			added = append(added, uid)
			next = append(next, models.ProjectReviewer{ProjectID: id, UserID: uid, AssignedAt: time.Now()})
		}
		p.Reviewers = next
	})
	return added, err
}

func (f *fakeProjects) UpsertReviewer(_ context.Context, id, userID uint, hasReviewed bool) error {
	return f.with(id, func(p *models.Project) {
		if r, ok := p.Reviewer(userID); ok {
			r.HasReviewed = hasReviewed
			return
		}
		p.Reviewers = append(p.Reviewers, models.ProjectReviewer{ProjectID: id, UserID: userID, HasReviewed: hasReviewed})
	})
}

func (f *fakeProjects) SetHasReviewed(_ context.Context, id, userID uint, hasReviewed bool) error {
	return f.with(id, func(p *models.Project) {
		if r, ok := p.Reviewer(userID); ok {
			r.HasReviewed = hasReviewed
		}
	})
}

func (f *fakeProjects) AddDocument(_ context.Context, d *models.ProjectDocument) error {
	return f.with(d.ProjectID, func(p *models.Project) {
		f.nextDoc++
		d.ID = f.nextDoc
		if d.Status == "" {
			d.Status = models.DocumentPending
		}
		d.UploadedAt = time.Now()
		p.Documents = append(p.Documents, *d)
	})
}

func (f *fakeProjects) GetDocument(_ context.Context, projectID, documentID uint) (*models.ProjectDocument, error) {
	var found *models.ProjectDocument
	err := f.with(projectID, func(p *models.Project) {
		for i := range p.Documents {
			if p.Documents[i].ID == documentID {
				d := p.Documents[i]
				found = &d
			}
		}
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, repository.ErrNotFound
	}
	return found, nil
}

func (f *fakeProjects) ListDocuments(ctx context.Context, projectID uint) ([]models.ProjectDocument, error) {
	p, err := f.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return p.Documents, nil
}

func (f *fakeProjects) SetDocumentStatus(_ context.Context, projectID, documentID uint, status string) error {
	found := false
	err := f.with(projectID, func(p *models.Project) {
		for i := range p.Documents {
			if p.Documents[i].ID == documentID {
				p.Documents[i].Status = status
				found = true
			}
		}
	})
	if err == nil && !found {
		return repository.ErrNotFound
	}
	return err
}

func (f *fakeProjects) DeleteDocument(_ context.Context, projectID, documentID uint) error {
	found := false
	err := f.with(projectID, func(p *models.Project) {
		p.Documents = slices.DeleteFunc(p.Documents, func(d models.ProjectDocument) bool {
			if d.ID == documentID {
				found = true
				return true
			}
			return false
		})
	})
	if err == nil && !found {
		return repository.ErrNotFound
	}
	return err
}

// fakeReviews implements ReviewStore
type fakeReviews struct {
	mu      sync.Mutex
	reviews map[uint]*models.Review
	next    uint
}

func newFakeReviews() *fakeReviews {
	return &fakeReviews{reviews: map[uint]*models.Review{}}
}

func (f *fakeReviews) Upsert(_ context.Context, r *models.Review) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.reviews {
		if existing.ProjectID == r.ProjectID && existing.ReviewerID == r.ReviewerID {
			if !existing.IsDraft {
				return repository.ErrNotFound
			}
			r.ID = existing.ID
			c := *r
			f.reviews[r.ID] = &c
			return nil
		}
	}
	f.next++
	r.ID = f.next
	c := *r
	f.reviews[r.ID] = &c
	return nil
}

func (f *fakeReviews) GetByID(_ context.Context, id uint) (*models.Review, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reviews[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *r
	return &c, nil
}

func (f *fakeReviews) GetByProjectAndReviewer(_ context.Context, projectID, reviewerID uint) (*models.Review, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.reviews {
		if r.ProjectID == projectID && r.ReviewerID == reviewerID {
			c := *r
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeReviews) filter(keep func(r *models.Review) bool) []models.Review {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Review
	for _, r := range f.reviews {
		if keep(r) {
			out = append(out, *r)
		}
	}
	slices.SortFunc(out, func(a, b models.Review) int { return int(a.ID) - int(b.ID) })
	return out
}

func (f *fakeReviews) ListByProject(_ context.Context, projectID uint) ([]models.Review, error) {
	return f.filter(func(r *models.Review) bool { return r.ProjectID == projectID }), nil
}

func (f *fakeReviews) ListByReviewer(_ context.Context, reviewerID uint) ([]models.Review, error) {
	return f.filter(func(r *models.Review) bool { return r.ReviewerID == reviewerID }), nil
}

func (f *fakeReviews) Delete(_ context.Context, id uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.reviews[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.reviews, id)
	return nil
}

func (f *fakeReviews) FinalScores(_ context.Context, projectID uint) ([]float64, []float64, error) {
	var scores, weighted []float64
	for _, r := range f.filter(func(r *models.Review) bool { return r.ProjectID == projectID && !r.IsDraft }) {
		scores = append(scores, r.Score)
		weighted = append(weighted, r.WeightedScore)
	}
	return scores, weighted, nil
}

func (f *fakeReviews) CountByProject(_ context.Context, projectID uint) (int, int, error) {
	final, draft := 0, 0
	for _, r := range f.filter(func(r *models.Review) bool { return r.ProjectID == projectID }) {
		if r.IsDraft {
			draft++
		} else {
			final++
		}
	}
	return final, draft, nil
}

// memStore is an in-memory storage.Store
type memStore struct {
	mu    sync.Mutex
	files map[string][]byte
	next  int
	limit int64
}

func newMemStore() *memStore {
	return &memStore{files: map[string][]byte{}, limit: 1 << 20}
}

func (m *memStore) Save(_ context.Context, _ string, r io.Reader) (string, int64, error) {
	data, err := io.ReadAll(io.LimitReader(r, m.limit+1))
	if err != nil {
		return "", 0, err
	}
	if int64(len(data)) > m.limit {
		return "", 0, storage.ErrTooLarge
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	key := fmt.Sprintf("file-%d.bin", m.next)
	m.files[key] = data
	return key, int64(len(data)), nil
}

func (m *memStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, key)
	return nil
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.files)
}

// testRubricCategory returns a category with two sections of two criteria each
func testRubricCategory(id, convocatoriaID uint) models.Category {
	return models.Category{
		ID:             id,
		ConvocatoriaID: convocatoriaID,
		Name:           "Innovación tecnológica",
		MinCorrections: 2,
		TotalBudget:    10000,
		Rubric: models.Rubric{
			Sections: []models.RubricSection{
				{ID: "s1", Name: "Calidad", Weight: 60, Criteria: []models.RubricCriterion{
					{ID: "c1", Name: "Objetivos", MaxScore: 10},
					{ID: "c2", Name: "Metodología", MaxScore: 10},
				}},
				{ID: "s2", Name: "Impacto", Weight: 40, Criteria: []models.RubricCriterion{
					{ID: "c3", Name: "Alcance", MaxScore: 10},
					{ID: "c4", Name: "Transferencia", MaxScore: 10},
				}},
			},
			TotalScore: 40,
		},
	}
}

func testConvocatoria(now time.Time) *models.Convocatoria {
	return &models.Convocatoria{
		ID:                   1,
		Title:                "Convocatoria 2026",
		Year:                 2026,
		Status:               models.ConvocatoriaActive,
		MaxProjectsPerCenter: 2,
		Phases: models.Phases{
			Submission:  models.DateRange{Start: now.Add(-24 * time.Hour), End: now.Add(24 * time.Hour)},
			FirstReview: models.DateRange{Start: now.Add(48 * time.Hour), End: now.Add(96 * time.Hour)},
			Corrections: models.DateRange{Start: now.Add(120 * time.Hour), End: now.Add(144 * time.Hour)},
		},
		Categories: []models.Category{testRubricCategory(10, 1)},
	}
}

func uintPtr(v uint) *uint { return &v }

func testUser(id uint, role string) *models.User {
	return &models.User{ID: id, Name: role, Email: role + "@fpinnova.test", Role: role, Active: true, CenterID: uintPtr(5)}
}

var testPolicy = rbac.NewPolicy()
