package models

// UnknownDimension marks a width or height that no metadata could supply.
const UnknownDimension = -1

// Image is a canonical archived image. The bytes live in the archive directory
// under Filename; nothing else keeps a copy.
type Image struct {
	Filename string `json:"filename" yaml:"filename"`
	Width    int    `json:"width" yaml:"width"`
	Height   int    `json:"height" yaml:"height"`
}

// ImageRecord is the persisted form of an Image.
type ImageRecord = Image
