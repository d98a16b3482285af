package interfaces

import "ywwzwb/imagearchive/models"

const PostStoreServiceID ServiceID = "PostStore"
const ImagePostsServiceID ServiceID = "ImagePosts"

type IPostStoreService interface {
	Add(post models.Post)
	Get(key models.PostKey) (models.Post, bool)
	Has(key models.PostKey) bool
	Len() int

	Restore(records []models.PostRecord)
	Records() []models.PostRecord
	Revision() uint64
}

type IImagePostsService interface {
	Add(filename string, key models.PostKey)
	Keys(filename string) []models.PostKey
	Filenames() []string

	Restore(records []models.ImagePostsRecord)
	Records() []models.ImagePostsRecord
	Revision() uint64
}
