package plugins

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"ywwzwb/imagearchive/embed"
	"ywwzwb/imagearchive/interfaces"
	"ywwzwb/imagearchive/models"
	"ywwzwb/imagearchive/models/config"

	"github.com/lib/pq"
)

const DBPluginID string = "DB"

// DB mirrors snapshots into Postgres for ad hoc queries. The json documents
// stay authoritative; nothing is read back from here.
type DB struct {
	config config.DatabaseConfig
	db     *sql.DB
}

func newDB() *DB {
	return &DB{}
}

func (s *DB) Name() string {
	return "DB"
}
func (s *DB) ID() string {
	return DBPluginID
}
func (s *DB) Load(app interfaces.IApplication) error {
	s.config = app.GetAppConfig().Database
	if s.config.Connection == "" {
		return &PluginError{PluginID: s.ID(), Err: fmt.Errorf("database connection is empty")}
	}
	db, err := sql.Open("postgres", s.config.Connection)
	if err != nil {
		slog.Error("open database failed", "error", err)
		return err
	}
	s.db = db
	res, err := db.Exec(embed.InitSql)
	if err != nil {
		slog.Error("init database failed", "error", err)
		return err
	}
	slog.Info("init database success", "result", res)
	return nil
}
func (s *DB) Unload() {
	if s.db != nil {
		s.db.Close()
	}
}
func (s *DB) GetService(serviceID interfaces.ServiceID) (interfaces.IService, error) {
	switch serviceID {
	case interfaces.DBServiceID:
		return s, nil
	}
	return nil, unsupportedService(serviceID)
}

// Mirror upserts every record of snapshot in one transaction.
func (s *DB) Mirror(ctx context.Context, snapshot interfaces.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin mirror: %w", err)
	}
	defer tx.Rollback()
	if err := upsertImages(ctx, tx, snapshot.Images); err != nil {
		return err
	}
	if err := upsertPosts(ctx, tx, snapshot.Posts); err != nil {
		return err
	}
	if err := upsertImagePosts(ctx, tx, snapshot.ImagePosts); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit mirror: %w", err)
	}
	slog.Debug("snapshot mirrored", "images", len(snapshot.Images), "posts", len(snapshot.Posts), "imagePosts", len(snapshot.ImagePosts))
	return nil
}

func upsertImages(ctx context.Context, tx *sql.Tx, images []models.ImageRecord) error {
	if len(images) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO images (filename, width, height) VALUES ($1, $2, $3)
		ON CONFLICT (filename) DO UPDATE SET width = EXCLUDED.width, height = EXCLUDED.height`)
	if err != nil {
		return fmt.Errorf("prepare images upsert: %w", err)
	}
	defer stmt.Close()
	for _, img := range images {
		if _, err := stmt.ExecContext(ctx, img.Filename, img.Width, img.Height); err != nil {
			return fmt.Errorf("upsert image %s: %w", img.Filename, err)
		}
	}
	return nil
}

func upsertPosts(ctx context.Context, tx *sql.Tx, posts []models.PostRecord) error {
	if len(posts) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO posts (author_id, post_id, author_name, text, post_time) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (author_id, post_id) DO UPDATE SET author_name = EXCLUDED.author_name, text = EXCLUDED.text, post_time = EXCLUDED.post_time`)
	if err != nil {
		return fmt.Errorf("prepare posts upsert: %w", err)
	}
	defer stmt.Close()
	for _, post := range posts {
		if _, err := stmt.ExecContext(ctx, post.AuthorID, post.PostID, post.AuthorName, post.Text, post.Timestamp); err != nil {
			return fmt.Errorf("upsert post %s: %w", post.Key(), err)
		}
	}
	return nil
}

func upsertImagePosts(ctx context.Context, tx *sql.Tx, records []models.ImagePostsRecord) error {
	if len(records) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO image_posts (image_filename, post_keys) VALUES ($1, $2)
		ON CONFLICT (image_filename) DO UPDATE SET post_keys = EXCLUDED.post_keys`)
	if err != nil {
		return fmt.Errorf("prepare image posts upsert: %w", err)
	}
	defer stmt.Close()
	for _, record := range records {
		keys := make([]string, 0, len(record.PostKeys))
		for _, key := range record.PostKeys {
			keys = append(keys, string(key))
		}
		if _, err := stmt.ExecContext(ctx, record.ImageFilename, pq.Array(keys)); err != nil {
			return fmt.Errorf("upsert image posts %s: %w", record.ImageFilename, err)
		}
	}
	return nil
}
