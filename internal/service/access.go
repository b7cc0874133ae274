package service

import (
	"context"

	apperrors "github.com/edulive/session-knowledge/internal/errors"
	"github.com/edulive/session-knowledge/internal/model"
	"github.com/edulive/session-knowledge/internal/repository"
)

// AccessService answers whether a user may act on a session's course.
type AccessService struct {
	repo repository.CourseAccessRepository
}

func NewAccessService(repo repository.CourseAccessRepository) *AccessService {
	return &AccessService{repo: repo}
}

// Require fails with Unauthorized for anonymous callers and Forbidden when the
// user's access to the course is below need. Admins pass every check.
func (s *AccessService) Require(ctx context.Context, user *model.User, courseID string, need model.AccessLevel) error {
	if user == nil {
		return apperrors.Unauthorized("Authentication required")
	}
	if user.IsAdmin() {
		return nil
	}

	level, err := s.repo.AccessLevel(ctx, user.ID, courseID)
	if err != nil {
		return apperrors.Database(err)
	}
	if level < need {
		if need == model.AccessTeacher {
			return apperrors.Forbidden("Only the course teacher can manage this session")
		}
		return apperrors.Forbidden("You are not enrolled in this course")
	}
	return nil
}
