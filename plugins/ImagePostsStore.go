package plugins

import (
	"sort"
	"sync"
	"sync/atomic"
	"ywwzwb/imagearchive/interfaces"
	"ywwzwb/imagearchive/models"
)

const ImagePostsPluginID string = "ImagePosts"

// ImagePostsStore maps an image filename to the set of posts that
// referenced it. Entries only grow.
type ImagePostsStore struct {
	mtx       sync.RWMutex
	keys      map[string]map[models.PostKey]struct{}
	filenames []string
	revision  atomic.Uint64
}

func newImagePostsStore() *ImagePostsStore {
	return &ImagePostsStore{keys: make(map[string]map[models.PostKey]struct{})}
}

func (s *ImagePostsStore) Name() string {
	return "ImagePosts"
}
func (s *ImagePostsStore) ID() string {
	return ImagePostsPluginID
}
func (s *ImagePostsStore) Load(app interfaces.IApplication) error {
	return nil
}
func (s *ImagePostsStore) Unload() {
}
func (s *ImagePostsStore) GetService(serviceID interfaces.ServiceID) (interfaces.IService, error) {
	switch serviceID {
	case interfaces.ImagePostsServiceID:
		return s, nil
	}
	return nil, unsupportedService(serviceID)
}

func (s *ImagePostsStore) Add(filename string, key models.PostKey) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	set, ok := s.keys[filename]
	if !ok {
		set = make(map[models.PostKey]struct{})
		s.keys[filename] = set
		s.filenames = append(s.filenames, filename)
	}
	if _, ok := set[key]; ok {
		return
	}
	set[key] = struct{}{}
	s.revision.Add(1)
}

// Keys returns the post keys of filename, sorted.
func (s *ImagePostsStore) Keys(filename string) []models.PostKey {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return sortedKeys(s.keys[filename])
}

// Filenames returns every associated image in first-seen order.
func (s *ImagePostsStore) Filenames() []string {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return append([]string(nil), s.filenames...)
}

func (s *ImagePostsStore) Restore(records []models.ImagePostsRecord) {
	for _, record := range records {
		for _, key := range record.PostKeys {
			s.Add(record.ImageFilename, key)
		}
	}
}

func (s *ImagePostsStore) Records() []models.ImagePostsRecord {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	records := make([]models.ImagePostsRecord, 0, len(s.filenames))
	for _, filename := range s.filenames {
		records = append(records, models.ImagePostsRecord{
			ImageFilename: filename,
			PostKeys:      sortedKeys(s.keys[filename]),
		})
	}
	return records
}

func (s *ImagePostsStore) Revision() uint64 {
	return s.revision.Load()
}

func sortedKeys(set map[models.PostKey]struct{}) []models.PostKey {
	keys := make([]models.PostKey, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
