package services

import (
	"zhutalk/internal/models"
)

// Viewer is the identity reading or mutating comments. A nil *Viewer is an
// anonymous reader.
type Viewer struct {
	ID       uint
	Elevated bool
}

// ViewerOf converts a session user; nil stays nil.
func ViewerOf(u *models.User) *Viewer {
	if u == nil {
		return nil
	}
	return &Viewer{ID: u.ID, Elevated: u.IsElevated()}
}

func (v *Viewer) canSee(c *models.Comment) bool {
	if c.IsDeleted() {
		return false
	}
	if c.Status == models.CommentStatusPublished {
		return true
	}
	return v != nil && (v.Elevated || c.AuthorID == v.ID)
}

// FilterVisible returns the comments eligible for the viewer, in input order.
//
// Deleted comments are excluded unless they are an ancestor of an eligible
// comment; those stay as tombstone anchors so replies keep their place in the
// thread. The upward walk stops at the first live ancestor, so a reply under
// an ineligible live comment is orphan-promoted instead.
func FilterVisible(comments []models.Comment, viewer *Viewer) []models.Comment {
	byID := make(map[string]*models.Comment, len(comments))
	for i := range comments {
		if _, dup := byID[comments[i].ID]; !dup {
			byID[comments[i].ID] = &comments[i]
		}
	}

	keep := make(map[string]bool, len(comments))
	for i := range comments {
		c := &comments[i]
		if !viewer.canSee(c) {
			continue
		}
		keep[c.ID] = true

		for pid := c.ParentID; pid != nil; {
			parent, ok := byID[*pid]
			if !ok || !parent.IsDeleted() || keep[parent.ID] {
				break
			}
			keep[parent.ID] = true
			pid = parent.ParentID
		}
	}

	out := make([]models.Comment, 0, len(keep))
	for i := range comments {
		if keep[comments[i].ID] {
			out = append(out, comments[i])
			delete(keep, comments[i].ID)
		}
	}
	return out
}
