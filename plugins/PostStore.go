package plugins

import (
	"sync"
	"sync/atomic"
	"ywwzwb/imagearchive/interfaces"
	"ywwzwb/imagearchive/models"
)

const PostStorePluginID string = "PostStore"

// PostStore maps composite post keys to posts, last write wins.
type PostStore struct {
	mtx      sync.RWMutex
	posts    map[models.PostKey]models.Post
	order    []models.PostKey
	revision atomic.Uint64
}

func newPostStore() *PostStore {
	return &PostStore{posts: make(map[models.PostKey]models.Post)}
}

func (s *PostStore) Name() string {
	return "PostStore"
}
func (s *PostStore) ID() string {
	return PostStorePluginID
}
func (s *PostStore) Load(app interfaces.IApplication) error {
	return nil
}
func (s *PostStore) Unload() {
}
func (s *PostStore) GetService(serviceID interfaces.ServiceID) (interfaces.IService, error) {
	switch serviceID {
	case interfaces.PostStoreServiceID:
		return s, nil
	}
	return nil, unsupportedService(serviceID)
}

func (s *PostStore) Add(post models.Post) {
	key := post.Key()
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if _, ok := s.posts[key]; !ok {
		s.order = append(s.order, key)
	}
	s.posts[key] = post
	s.revision.Add(1)
}

func (s *PostStore) Get(key models.PostKey) (models.Post, bool) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	post, ok := s.posts[key]
	return post, ok
}

func (s *PostStore) Has(key models.PostKey) bool {
	_, ok := s.Get(key)
	return ok
}

func (s *PostStore) Len() int {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return len(s.posts)
}

func (s *PostStore) Restore(records []models.PostRecord) {
	for _, record := range records {
		s.Add(record)
	}
}

// Records returns the posts in first-added order.
func (s *PostStore) Records() []models.PostRecord {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	records := make([]models.PostRecord, 0, len(s.order))
	for _, key := range s.order {
		records = append(records, s.posts[key])
	}
	return records
}

func (s *PostStore) Revision() uint64 {
	return s.revision.Load()
}
