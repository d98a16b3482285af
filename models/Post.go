package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// UnknownAuthor is substituted by adapters when a post lacks author data.
const UnknownAuthor = "none"

// PostKey is the composite "authorId:postId" identity of a post.
type PostKey string

func NewPostKey(authorID, postID string) PostKey {
	return PostKey(fmt.Sprintf("%s:%s", authorID, postID))
}

// Split returns the author and post ids. Post ids never contain ':' in
// practice, so the last separator is used.
func (k PostKey) Split() (authorID, postID string, err error) {
	idx := strings.LastIndex(string(k), ":")
	if idx <= 0 || idx == len(k)-1 {
		return "", "", fmt.Errorf("malformed post key %q", string(k))
	}
	return string(k[:idx]), string(k[idx+1:]), nil
}

type Post struct {
	AuthorID   string    `json:"authorId" yaml:"authorId"`
	PostID     string    `json:"postId" yaml:"postId"`
	AuthorName string    `json:"authorName" yaml:"authorName"`
	Text       string    `json:"text" yaml:"text"`
	Timestamp  time.Time `json:"timestamp" yaml:"timestamp"`
}

func (p *Post) Key() PostKey {
	return NewPostKey(p.AuthorID, p.PostID)
}

// FillUnknown replaces missing author fields with UnknownAuthor.
func (p *Post) FillUnknown() {
	if p.AuthorID == "" {
		p.AuthorID = UnknownAuthor
	}
	if p.AuthorName == "" {
		p.AuthorName = UnknownAuthor
	}
}

func (p *Post) Validate() error {
	if p.PostID == "" {
		return errors.New("post id cannot be empty")
	}
	if p.AuthorID == "" {
		return errors.New("author id cannot be empty")
	}
	return nil
}

// PostRecord is the persisted form of a Post.
type PostRecord = Post

// ImagePostsRecord is one persisted association entry.
type ImagePostsRecord struct {
	ImageFilename string    `json:"imageFilename" yaml:"imageFilename"`
	PostKeys      []PostKey `json:"compoundPostIds" yaml:"compoundPostIds"`
}
