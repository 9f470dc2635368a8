package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/schoolware/course-admin-api/internal/models"
)

// CourseRepository handles persistence for courses and their roster links.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository creates a new repository instance.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// List returns one page of courses ordered by creation time plus the total count.
func (r *CourseRepository) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error) {
	order := "ASC"
	if strings.EqualFold(filter.SortOrder, "desc") {
		order = "DESC"
	}

	offset := (filter.Page - 1) * filter.PageSize
	query := fmt.Sprintf("SELECT id, title, description, teacher_id, created_at, updated_at FROM courses ORDER BY created_at %s LIMIT %d OFFSET %d", order, filter.PageSize, offset)
	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, query); err != nil {
		return nil, 0, fmt.Errorf("list courses: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM courses"); err != nil {
		return nil, 0, fmt.Errorf("count courses: %w", err)
	}

	return courses, total, nil
}

// FindByID returns a course by id.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	const query = `SELECT id, title, description, teacher_id, created_at, updated_at FROM courses WHERE id = $1`
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		return nil, err
	}
	return &course, nil
}

// Create persists a new course.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if course.CreatedAt.IsZero() {
		course.CreatedAt = now
	}
	course.UpdatedAt = now

	const query = `INSERT INTO courses (id, title, description, teacher_id, created_at, updated_at) VALUES (:id, :title, :description, :teacher_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("create course: %w", err)
	}
	return nil
}

// Update modifies the mutable fields of a course.
func (r *CourseRepository) Update(ctx context.Context, course *models.Course) error {
	course.UpdatedAt = time.Now().UTC()
	const query = `UPDATE courses SET title = :title, description = :description, teacher_id = :teacher_id, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("update course: %w", err)
	}
	return nil
}

// Delete removes a course record. Roster links are removed first so the
// delete never trips the join table's foreign key.
func (r *CourseRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM course_students WHERE course_id = $1`, id); err != nil {
		return fmt.Errorf("delete course roster: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM courses WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete course: %w", err)
	}
	return nil
}

// TeacherExists checks whether the referenced instructor is known.
func (r *CourseRepository) TeacherExists(ctx context.Context, id string) (bool, error) {
	var exists int
	if err := r.db.GetContext(ctx, &exists, `SELECT 1 FROM teachers WHERE id = $1 LIMIT 1`, id); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check teacher: %w", err)
	}
	return true, nil
}

// StudentExists checks whether the referenced student is known.
func (r *CourseRepository) StudentExists(ctx context.Context, id string) (bool, error) {
	var exists int
	if err := r.db.GetContext(ctx, &exists, `SELECT 1 FROM students WHERE id = $1 LIMIT 1`, id); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check student: %w", err)
	}
	return true, nil
}

type courseStudentRow struct {
	CourseID string `db:"course_id"`
	models.Student
}

// StudentsByCourse loads enrolled students for the given course ids keyed by course.
func (r *CourseRepository) StudentsByCourse(ctx context.Context, courseIDs []string) (map[string][]models.Student, error) {
	result := make(map[string][]models.Student, len(courseIDs))
	if len(courseIDs) == 0 {
		return result, nil
	}

	query, args, err := sqlx.In(`SELECT cs.course_id, s.id, s.full_name, s.email, s.created_at, s.updated_at FROM course_students cs JOIN students s ON s.id = cs.student_id WHERE cs.course_id IN (?) ORDER BY s.full_name`, courseIDs)
	if err != nil {
		return nil, fmt.Errorf("build roster query: %w", err)
	}
	query = r.db.Rebind(query)

	var rows []courseStudentRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("load course students: %w", err)
	}

	for _, row := range rows {
		result[row.CourseID] = append(result[row.CourseID], row.Student)
	}
	return result, nil
}

type courseTeacherRow struct {
	CourseID string `db:"course_id"`
	models.Teacher
}

// TeachersByCourse loads assigned instructors for the given course ids keyed by course.
func (r *CourseRepository) TeachersByCourse(ctx context.Context, courseIDs []string) (map[string][]models.Teacher, error) {
	result := make(map[string][]models.Teacher, len(courseIDs))
	if len(courseIDs) == 0 {
		return result, nil
	}

	query, args, err := sqlx.In(`SELECT c.id AS course_id, t.id, t.full_name, t.email, t.created_at, t.updated_at FROM courses c JOIN teachers t ON t.id = c.teacher_id WHERE c.id IN (?)`, courseIDs)
	if err != nil {
		return nil, fmt.Errorf("build instructor query: %w", err)
	}
	query = r.db.Rebind(query)

	var rows []courseTeacherRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("load course teachers: %w", err)
	}

	for _, row := range rows {
		result[row.CourseID] = append(result[row.CourseID], row.Teacher)
	}
	return result, nil
}

// IsEnrolled reports whether the student is already on the course roster.
func (r *CourseRepository) IsEnrolled(ctx context.Context, courseID, studentID string) (bool, error) {
	var exists int
	if err := r.db.GetContext(ctx, &exists, `SELECT 1 FROM course_students WHERE course_id = $1 AND student_id = $2 LIMIT 1`, courseID, studentID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check enrollment: %w", err)
	}
	return true, nil
}

// Enroll links a student to a course.
func (r *CourseRepository) Enroll(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.EnrolledAt.IsZero() {
		enrollment.EnrolledAt = time.Now().UTC()
	}
	const query = `INSERT INTO course_students (course_id, student_id, enrolled_at) VALUES (:course_id, :student_id, :enrolled_at)`
	if _, err := r.db.NamedExecContext(ctx, query, enrollment); err != nil {
		return fmt.Errorf("enroll student: %w", err)
	}
	return nil
}

// Unenroll removes a roster link, reporting whether one existed.
func (r *CourseRepository) Unenroll(ctx context.Context, courseID, studentID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM course_students WHERE course_id = $1 AND student_id = $2`, courseID, studentID)
	if err != nil {
		return false, fmt.Errorf("unenroll student: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("unenroll student: %w", err)
	}
	return affected > 0, nil
}
