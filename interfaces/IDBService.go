package interfaces

import (
	"context"
	"ywwzwb/imagearchive/models"
)

const DBServiceID ServiceID = "DBService"

type Snapshot struct {
	Images     []models.ImageRecord
	Posts      []models.PostRecord
	ImagePosts []models.ImagePostsRecord
}

type IDBService interface {
	Mirror(ctx context.Context, snapshot Snapshot) error
}
