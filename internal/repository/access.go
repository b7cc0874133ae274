package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/edulive/session-knowledge/internal/model"
)

type UserRepository interface {
	FindByTokenHash(ctx context.Context, tokenHash string) (*model.User, error)
}

type userRepo struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) UserRepository {
	return &userRepo{db: db}
}

func (r *userRepo) FindByTokenHash(ctx context.Context, tokenHash string) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user, `
		SELECT * FROM users WHERE api_token_hash = $1
	`, tokenHash)
	return HandleNotFound(&user, err)
}

// CourseAccessRepository answers who may act on a course's sessions.
type CourseAccessRepository interface {
	AccessLevel(ctx context.Context, userID, courseID string) (model.AccessLevel, error)
}

type courseAccessRepo struct {
	db *sqlx.DB
}

func NewCourseAccessRepository(db *sqlx.DB) CourseAccessRepository {
	return &courseAccessRepo{db: db}
}

func (r *courseAccessRepo) AccessLevel(ctx context.Context, userID, courseID string) (model.AccessLevel, error) {
	var row struct {
		Teaching bool `db:"teaching"`
		Enrolled bool `db:"enrolled"`
	}
	err := r.db.GetContext(ctx, &row, `
		SELECT
			EXISTS (SELECT 1 FROM courses WHERE id = $2 AND teacher_id = $1) AS teaching,
			EXISTS (
				SELECT 1 FROM course_enrollments
				WHERE course_id = $2 AND user_id = $1 AND status = 'active'
			) AS enrolled
	`, userID, courseID)
	if err != nil {
		return model.AccessNone, err
	}

	switch {
	case row.Teaching:
		return model.AccessTeacher, nil
	case row.Enrolled:
		return model.AccessLearner, nil
	default:
		return model.AccessNone, nil
	}
}
