package users

import (
	"context"
	"sort"
	"strings"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
)

type memRepo struct {
	mu   sync.Mutex
	data map[string]User
}

func newMemRepo() *memRepo {
	return &memRepo{data: make(map[string]User)}
}

func (m *memRepo) Create(ctx context.Context, user User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.data {
		if u.Email == user.Email {
			return ErrEmailTaken
		}
	}
	m.data[user.ID] = user
	return nil
}

func (m *memRepo) GetByID(ctx context.Context, id string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.data[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (m *memRepo) GetByEmail(ctx context.Context, email string) (User, error) {
	return m.find(func(u User) bool { return u.Email == email })
}

func (m *memRepo) GetByVerificationToken(ctx context.Context, token string) (User, error) {
	return m.find(func(u User) bool { return u.VerificationToken == token })
}

func (m *memRepo) find(match func(User) bool) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.data {
		if match(u) {
			return u, nil
		}
	}
	return User{}, ErrNotFound
}

// Update applies $set and $unset through a bson round trip so field names match the stored document.
func (m *memRepo) Update(ctx context.Context, id string, update bson.M) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.data[id]
	if !ok {
		return User{}, ErrNotFound
	}
	raw, err := bson.Marshal(u)
	if err != nil {
		return User{}, err
	}
	doc := bson.M{}
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return User{}, err
	}
	if set, ok := update["$set"].(bson.M); ok {
		for k, v := range set {
			doc[k] = v
		}
	}
	if unset, ok := update["$unset"].(bson.M); ok {
		for k := range unset {
			delete(doc, k)
		}
	}
	if email, ok := doc["email"].(string); ok {
		for otherID, other := range m.data {
			if otherID != id && other.Email == email {
				return User{}, ErrEmailTaken
			}
		}
	}
	raw, err = bson.Marshal(doc)
	if err != nil {
		return User{}, err
	}
	var updated User
	if err := bson.Unmarshal(raw, &updated); err != nil {
		return User{}, err
	}
	m.data[id] = updated
	return updated, nil
}

func (m *memRepo) Delete(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[id]; !ok {
		return false, nil
	}
	delete(m.data, id)
	return true, nil
}

func (m *memRepo) matching(search string) []User {
	search = strings.ToLower(search)
	items := make([]User, 0, len(m.data))
	for _, u := range m.data {
		if search == "" || strings.Contains(strings.ToLower(u.Name), search) || strings.Contains(u.Email, search) {
			items = append(items, u)
		}
	}
	return items
}

func (m *memRepo) List(ctx context.Context, q ListQuery) ([]User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := m.matching(q.Search)
	sort.Slice(items, func(i, j int) bool {
		if q.SortDesc {
			return items[i].Email > items[j].Email
		}
		return items[i].Email < items[j].Email
	})
	start := int(q.Offset)
	if start > len(items) {
		start = len(items)
	}
	end := start + int(q.Limit)
	if q.Limit <= 0 || end > len(items) {
		end = len(items)
	}
	return items[start:end], nil
}

func (m *memRepo) Count(ctx context.Context, search string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.matching(search))), nil
}

func (m *memRepo) CountAll(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.data)), nil
}

type sentMail struct {
	kind  string
	to    string
	value string
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []sentMail
}

func (r *recordingMailer) SendVerificationEmail(ctx context.Context, toEmail, toName, verifyURL string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentMail{kind: "verify", to: toEmail, value: verifyURL})
	return "msg-1", nil
}

func (r *recordingMailer) SendPasswordReset(ctx context.Context, toEmail, toName, token string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentMail{kind: "reset", to: toEmail, value: token})
	return "msg-2", nil
}

func (r *recordingMailer) last() sentMail {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sent) == 0 {
		return sentMail{}
	}
	return r.sent[len(r.sent)-1]
}
