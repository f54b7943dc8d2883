package utils

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// CommentIDPrefix is prepended to every comment id.
const CommentIDPrefix = "c_"

const idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

const idLength = 16

// NewCommentID returns a short, URL-safe, opaque comment id.
func NewCommentID() (string, error) {
	id, err := nanoid.Generate(idAlphabet, idLength)
	if err != nil {
		return "", fmt.Errorf("generate comment id: %w", err)
	}
	return CommentIDPrefix + id, nil
}
