package usecase

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/totegamma/spamguard/internal/domain"
)

type mockUserRepo struct {
	mu    sync.Mutex
	users map[int64]domain.User
	err   error
}

func newMockUserRepo(users ...domain.User) *mockUserRepo {
	m := &mockUserRepo{users: map[int64]domain.User{}}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

func (m *mockUserRepo) Get(ctx context.Context, id int64) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return domain.User{}, m.err
	}
	u, ok := m.users[id]
	if !ok {
		return domain.User{}, domain.NewNotFound("user")
	}
	return u, nil
}

func (m *mockUserRepo) ListByEmailDomain(ctx context.Context, emailDomain string) ([]domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []domain.User
	for _, u := range m.users {
		if ExtractDomain(u.Email) == emailDomain {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mockUserRepo) addRole(id int64, role domain.Role) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.users[id]
	if u.HasRole(role) {
		return false
	}
	u.Roles = append(u.Roles, role)
	m.users[id] = u
	return true
}

type mockContentRepo struct {
	articles map[int64]domain.Article
	comments map[int64]domain.Comment
}

func (m *mockContentRepo) GetArticle(ctx context.Context, id int64) (domain.Article, error) {
	a, ok := m.articles[id]
	if !ok {
		return domain.Article{}, domain.NewNotFound("article")
	}
	return a, nil
}

func (m *mockContentRepo) GetComment(ctx context.Context, id int64) (domain.Comment, error) {
	c, ok := m.comments[id]
	if !ok {
		return domain.Comment{}, domain.NewNotFound("comment")
	}
	return c, nil
}

type mockReactionRepo struct {
	mu        sync.Mutex
	reactions []domain.Reaction
	// owners maps content to its author for spam reaction counting.
	owners map[domain.Ref]int64

	organic map[int64]int64
	facts   []domain.ReactionFact
	totals  map[int64]domain.ReactionTotals
	failFor map[int64]error
	err     error
}

func newMockReactionRepo() *mockReactionRepo {
	return &mockReactionRepo{
		owners:  map[domain.Ref]int64{},
		organic: map[int64]int64{},
		totals:  map[int64]domain.ReactionTotals{},
		failFor: map[int64]error{},
	}
}

func (m *mockReactionRepo) CreateModerationReaction(ctx context.Context, r domain.Reaction) (domain.Reaction, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return domain.Reaction{}, false, m.err
	}
	for _, existing := range m.reactions {
		if existing.UserID == r.UserID && existing.Reactable == r.Reactable && existing.Category == r.Category {
			return existing, false, nil
		}
	}
	r.ID = int64(len(m.reactions) + 1)
	m.reactions = append(m.reactions, r)
	return r, true, nil
}

func (m *mockReactionRepo) CountSpamReactions(ctx context.Context, authorID int64, kind domain.ContentKind, includeProfile bool) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, r := range m.reactions {
		if r.Category != domain.CategoryVomit {
			continue
		}
		if r.Status != domain.StatusValid && r.Status != domain.StatusConfirmed {
			continue
		}
		switch {
		case r.Reactable.Kind == kind && m.owners[r.Reactable] == authorID:
			n++
		case includeProfile && r.Reactable == domain.UserRef(authorID):
			n++
		}
	}
	return n, nil
}

func (m *mockReactionRepo) CountOrganicReactions(ctx context.Context, userID int64, since time.Time) (int64, error) {
	if err := m.failFor[userID]; err != nil {
		return 0, err
	}
	if n, ok := m.organic[userID]; ok {
		return n, nil
	}
	var n int64
	for _, f := range m.facts {
		if f.ReactorID == userID && !f.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *mockReactionRepo) ReactionFactsByUser(ctx context.Context, userID int64, since time.Time) ([]domain.ReactionFact, error) {
	var out []domain.ReactionFact
	for _, f := range m.facts {
		if f.ReactorID == userID && !f.CreatedAt.Before(since) {
			out = append(out, f)
		}
	}
	return out, nil
}

func (m *mockReactionRepo) ReactionFactsOnAuthors(ctx context.Context, authorIDs []int64, since time.Time) ([]domain.ReactionFact, error) {
	set := map[int64]bool{}
	for _, id := range authorIDs {
		set[id] = true
	}
	var out []domain.ReactionFact
	for _, f := range m.facts {
		if set[f.AuthorID] && !f.CreatedAt.Before(since) {
			out = append(out, f)
		}
	}
	return out, nil
}

func (m *mockReactionRepo) ReactionTotals(ctx context.Context, userIDs []int64, since time.Time) (map[int64]domain.ReactionTotals, error) {
	out := map[int64]domain.ReactionTotals{}
	for _, id := range userIDs {
		if t, ok := m.totals[id]; ok {
			out[id] = t
		}
	}
	return out, nil
}

func (m *mockReactionRepo) ActiveReactors(ctx context.Context, since time.Time, minReactions int64) ([]int64, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []int64
	for id, n := range m.organic {
		if n >= minReactions {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

type mockGraphRepo struct {
	orgs    map[int64]bool
	follows map[int64]bool
	roles   map[int64][]domain.Role
}

func pick(flags map[int64]bool, ids []int64) map[int64]bool {
	out := map[int64]bool{}
	for _, id := range ids {
		if flags[id] {
			out[id] = true
		}
	}
	return out
}

func (m *mockGraphRepo) SharedOrganizationMembers(ctx context.Context, userID int64, candidateIDs []int64) (map[int64]bool, error) {
	return pick(m.orgs, candidateIDs), nil
}

func (m *mockGraphRepo) FollowConnected(ctx context.Context, userID int64, candidateIDs []int64) (map[int64]bool, error) {
	return pick(m.follows, candidateIDs), nil
}

func (m *mockGraphRepo) UsersWithRoles(ctx context.Context, userIDs []int64, roles ...domain.Role) (map[int64]bool, error) {
	out := map[int64]bool{}
	for _, id := range userIDs {
		u := domain.User{Roles: m.roles[id]}
		if u.HasAnyRole(roles...) {
			out[id] = true
		}
	}
	return out, nil
}

type mockModerationRepo struct {
	mu          sync.Mutex
	users       *mockUserRepo
	blocked     map[string]bool
	notes       []domain.Note
	suspensions []AutoSuspension
	penalties   []RingPenalty
	err         error
}

func newMockModerationRepo(users *mockUserRepo) *mockModerationRepo {
	return &mockModerationRepo{users: users, blocked: map[string]bool{}}
}

func (m *mockModerationRepo) IsDomainBlocked(ctx context.Context, emailDomain string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	return m.blocked[emailDomain], nil
}

func (m *mockModerationRepo) BlockDomainAndSuspend(ctx context.Context, block DomainBlock) (DomainBlockResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return DomainBlockResult{}, m.err
	}
	if m.blocked[block.Domain] {
		return DomainBlockResult{}, nil
	}
	m.blocked[block.Domain] = true

	users, _ := m.users.ListByEmailDomain(ctx, block.Domain)
	result := DomainBlockResult{Blocked: true}
	for _, u := range users {
		if !m.users.addRole(u.ID, domain.RoleSuspended) {
			continue
		}
		result.Suspended = append(result.Suspended, u.ID)
		m.notes = append(m.notes, domain.Note{
			AuthorID: block.AuthorID,
			Noteable: domain.UserRef(u.ID),
			Reason:   block.Reason,
			Content:  block.Content,
		})
	}
	return result, nil
}

func (m *mockModerationRepo) AutoSuspend(ctx context.Context, s AutoSuspension) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	if !m.users.addRole(s.UserID, domain.RoleSuspended) {
		return false, nil
	}
	m.suspensions = append(m.suspensions, s)
	m.notes = append(m.notes, domain.Note{
		AuthorID: s.AuthorID,
		Noteable: domain.UserRef(s.UserID),
		Reason:   s.Reason,
		Content:  s.Content,
	})
	return true, nil
}

func (m *mockModerationRepo) ApplyRingPenalty(ctx context.Context, p RingPenalty) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var fresh []int64
	for _, id := range p.MemberIDs {
		noted := false
		for _, n := range m.notes {
			if n.Noteable == domain.UserRef(id) && n.Reason == p.Reason && !n.CreatedAt.Before(p.Since) {
				noted = true
				break
			}
		}
		if noted {
			continue
		}
		fresh = append(fresh, id)
		m.notes = append(m.notes, domain.Note{
			AuthorID:  p.AuthorID,
			Noteable:  domain.UserRef(id),
			Reason:    p.Reason,
			Content:   p.Content,
			CreatedAt: fixedNow,
		})
	}
	if len(fresh) > 0 {
		p.MemberIDs = fresh
		m.penalties = append(m.penalties, p)
	}
	return fresh, nil
}

type mockTrigger struct {
	terms []string
}

func (m *mockTrigger) TriggerSpamFor(ctx context.Context, text string) bool {
	lower := strings.ToLower(text)
	for _, term := range m.terms {
		if strings.Contains(lower, strings.ToLower(term)) {
			return true
		}
	}
	return false
}

type mockClassifier struct {
	mu    sync.Mutex
	spam  bool
	err   error
	block bool
	calls int
	seen  []ClassifierInput
}

func (m *mockClassifier) IsSpam(ctx context.Context, in ClassifierInput) (bool, error) {
	m.mu.Lock()
	m.calls++
	m.seen = append(m.seen, in)
	m.mu.Unlock()
	if m.block {
		<-ctx.Done()
		return false, ctx.Err()
	}
	return m.spam, m.err
}

type mockFlags map[string]bool

func (m mockFlags) Enabled(ctx context.Context, name string) bool {
	return m[name]
}

type mockSignal struct {
	mu      sync.Mutex
	signals []domain.ModerationSignal
	err     error
}

func (m *mockSignal) Publish(ctx context.Context, s domain.ModerationSignal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.signals = append(m.signals, s)
	return nil
}

func (m *mockSignal) types() []domain.SignalType {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.SignalType, 0, len(m.signals))
	for _, s := range m.signals {
		out = append(out, s.Type)
	}
	return out
}

type mockJobs struct {
	mu  sync.Mutex
	ids []int64
	err error
}

func (m *mockJobs) PublishRingScan(ctx context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.ids = append(m.ids, userID)
	return nil
}
