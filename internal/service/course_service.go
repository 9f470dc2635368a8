package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/schoolware/course-admin-api/internal/models"
	appErrors "github.com/schoolware/course-admin-api/pkg/errors"
	"github.com/schoolware/course-admin-api/pkg/export"
)

type courseRepository interface {
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error)
	FindByID(ctx context.Context, id string) (*models.Course, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, course *models.Course) error
	Delete(ctx context.Context, id string) error
	TeacherExists(ctx context.Context, id string) (bool, error)
	StudentExists(ctx context.Context, id string) (bool, error)
	StudentsByCourse(ctx context.Context, courseIDs []string) (map[string][]models.Student, error)
	TeachersByCourse(ctx context.Context, courseIDs []string) (map[string][]models.Teacher, error)
	IsEnrolled(ctx context.Context, courseID, studentID string) (bool, error)
	Enroll(ctx context.Context, enrollment *models.Enrollment) error
	Unenroll(ctx context.Context, courseID, studentID string) (bool, error)
}

// CreateCourseRequest captures fields for creating courses.
type CreateCourseRequest struct {
	Title       string `json:"title" validate:"required"`
	Description string `json:"description" validate:"required"`
	TeacherID   string `json:"teacher_id" validate:"required"`
}

// UpdateCourseRequest modifies course fields. Only the listed fields are
// mutable; identifier and timestamps never change through this path.
type UpdateCourseRequest struct {
	Title       *string `json:"title" validate:"omitempty,min=1"`
	Description *string `json:"description" validate:"omitempty,min=1"`
	TeacherID   *string `json:"teacher_id" validate:"omitempty,min=1"`
}

// EnrollStudentRequest adds a student to a course roster.
type EnrollStudentRequest struct {
	StudentID string `json:"student_id" validate:"required"`
}

// CourseList is the cached/returned shape of one course page.
type CourseList struct {
	Meta models.ListMeta       `json:"meta"`
	Data []models.CourseDetail `json:"data"`
}

// CourseConfig tunes listing defaults.
type CourseConfig struct {
	DefaultPageSize int
	MaxPageSize     int
}

const courseCachePattern = "courses:list:*"

// includeTokens maps populate query tokens onto the include set. Unknown
// tokens fall through silently.
var includeTokens = map[string]func(*models.IncludeSet){
	"students": func(s *models.IncludeSet) { s.Students = true },
	"teachers": func(s *models.IncludeSet) { s.Teachers = true },
}

// ParseIncludes converts a comma separated populate parameter into an
// include set. Matching is case-insensitive.
func ParseIncludes(raw string) models.IncludeSet {
	var set models.IncludeSet
	for _, token := range strings.Split(raw, ",") {
		if apply, ok := includeTokens[strings.ToLower(strings.TrimSpace(token))]; ok {
			apply(&set)
		}
	}
	return set
}

// CourseService handles course domain workflows.
type CourseService struct {
	repo      courseRepository
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	config    CourseConfig
	csv       *export.CSVExporter
	pdf       *export.PDFExporter
}

// NewCourseService creates a new course service.
func NewCourseService(repo courseRepository, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, config CourseConfig) *CourseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.DefaultPageSize <= 0 {
		config.DefaultPageSize = 10
	}
	if config.MaxPageSize <= 0 {
		config.MaxPageSize = 100
	}
	return &CourseService{
		repo:      repo,
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		config:    config,
		csv:       export.NewCSVExporter(),
		pdf:       export.NewPDFExporter(),
	}
}

// List returns one paginated course page with any requested association
// expansions applied.
func (s *CourseService) List(ctx context.Context, filter models.CourseFilter) (*CourseList, error) {
	filter = s.normalize(filter)

	key := filter.CacheKey()
	var cached CourseList
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return &cached, nil
	}

	start := time.Now()
	courses, total, err := s.repo.List(ctx, filter)
	s.metrics.ObserveDBQuery("course_list", time.Since(start))
	if err != nil {
		s.logger.Error("failed to list courses", zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}

	details, err := s.expand(ctx, courses, filter.Include)
	if err != nil {
		s.logger.Error("failed to expand course associations", zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course associations")
	}

	totalPages := 0
	if total > 0 {
		totalPages = (total + filter.PageSize - 1) / filter.PageSize
	}

	result := &CourseList{
		Meta: models.ListMeta{TotalItems: total, Page: filter.Page, TotalPages: totalPages},
		Data: details,
	}

	_ = s.cache.Set(ctx, key, result, 0)
	return result, nil
}

// Get returns a course by identifier with both associations expanded.
func (s *CourseService) Get(ctx context.Context, id string) (*models.CourseDetail, error) {
	course, err := s.findCourse(ctx, id)
	if err != nil {
		return nil, err
	}

	details, err := s.expand(ctx, []models.Course{*course}, models.IncludeSet{Students: true, Teachers: true})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course associations")
	}
	return &details[0], nil
}

// Create adds a new course after checking the instructor reference.
func (s *CourseService) Create(ctx context.Context, req CreateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}

	exists, err := s.repo.TeacherExists(ctx, req.TeacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check instructor")
	}
	if !exists {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown teacher reference")
	}

	course := &models.Course{
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		TeacherID:   req.TeacherID,
	}

	start := time.Now()
	err = s.repo.Create(ctx, course)
	s.metrics.ObserveDBQuery("course_create", time.Since(start))
	if err != nil {
		s.logger.Error("failed to create course", zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}

	s.invalidateListings(ctx)
	return course, nil
}

// Update applies the allow-listed fields onto an existing course.
func (s *CourseService) Update(ctx context.Context, id string, req UpdateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}

	course, err := s.findCourse(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Title != nil {
		course.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		course.Description = *req.Description
	}
	if req.TeacherID != nil {
		exists, err := s.repo.TeacherExists(ctx, *req.TeacherID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check instructor")
		}
		if !exists {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown teacher reference")
		}
		course.TeacherID = *req.TeacherID
	}

	start := time.Now()
	err = s.repo.Update(ctx, course)
	s.metrics.ObserveDBQuery("course_update", time.Since(start))
	if err != nil {
		s.logger.Error("failed to update course", zap.String("id", id), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course")
	}

	s.invalidateListings(ctx)
	return course, nil
}

// Delete removes a course permanently.
func (s *CourseService) Delete(ctx context.Context, id string) error {
	if _, err := s.findCourse(ctx, id); err != nil {
		return err
	}

	start := time.Now()
	err := s.repo.Delete(ctx, id)
	s.metrics.ObserveDBQuery("course_delete", time.Since(start))
	if err != nil {
		s.logger.Error("failed to delete course", zap.String("id", id), zap.Error(err))
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete course")
	}

	s.invalidateListings(ctx)
	return nil
}

// EnrollStudent adds a student to the course roster.
func (s *CourseService) EnrollStudent(ctx context.Context, courseID string, req EnrollStudentRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	if _, err := s.findCourse(ctx, courseID); err != nil {
		return nil, err
	}

	exists, err := s.repo.StudentExists(ctx, req.StudentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check student")
	}
	if !exists {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}

	enrolled, err := s.repo.IsEnrolled(ctx, courseID, req.StudentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}
	if enrolled {
		return nil, appErrors.Clone(appErrors.ErrConflict, "student already enrolled")
	}

	enrollment := &models.Enrollment{CourseID: courseID, StudentID: req.StudentID}
	if err := s.repo.Enroll(ctx, enrollment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enroll student")
	}

	s.invalidateListings(ctx)
	return enrollment, nil
}

// UnenrollStudent removes a student from the course roster.
func (s *CourseService) UnenrollStudent(ctx context.Context, courseID, studentID string) error {
	if _, err := s.findCourse(ctx, courseID); err != nil {
		return err
	}

	removed, err := s.repo.Unenroll(ctx, courseID, studentID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to unenroll student")
	}
	if !removed {
		return appErrors.Clone(appErrors.ErrNotFound, "")
	}

	s.invalidateListings(ctx)
	return nil
}

// ExportRoster renders the course roster as a downloadable document.
func (s *CourseService) ExportRoster(ctx context.Context, courseID, format string) ([]byte, string, error) {
	detail, err := s.Get(ctx, courseID)
	if err != nil {
		return nil, "", err
	}

	table := export.Table{
		Title:   fmt.Sprintf("%s roster", detail.Title),
		Headers: []string{"Student ID", "Name", "Email"},
	}
	if detail.Students != nil {
		for _, student := range *detail.Students {
			table.Rows = append(table.Rows, []string{student.ID, student.FullName, student.Email})
		}
	}

	switch strings.ToLower(format) {
	case "", "csv":
		payload, err := s.csv.Render(table)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render roster csv")
		}
		return payload, "text/csv", nil
	case "pdf":
		payload, err := s.pdf.Render(table)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render roster pdf")
		}
		return payload, "application/pdf", nil
	default:
		return nil, "", appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}
}

func (s *CourseService) findCourse(ctx context.Context, id string) (*models.Course, error) {
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

// normalize clamps pagination input and canonicalizes the sort direction.
// Anything unrecognized defaults rather than erroring.
func (s *CourseService) normalize(filter models.CourseFilter) models.CourseFilter {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = s.config.DefaultPageSize
	}
	if filter.PageSize > s.config.MaxPageSize {
		filter.PageSize = s.config.MaxPageSize
	}
	if strings.EqualFold(filter.SortOrder, "desc") {
		filter.SortOrder = "desc"
	} else {
		filter.SortOrder = "asc"
	}
	return filter
}

func (s *CourseService) expand(ctx context.Context, courses []models.Course, include models.IncludeSet) ([]models.CourseDetail, error) {
	details := make([]models.CourseDetail, len(courses))
	for i, course := range courses {
		details[i] = models.CourseDetail{Course: course}
	}
	if include.Empty() || len(courses) == 0 {
		return details, nil
	}

	ids := make([]string, len(courses))
	for i, course := range courses {
		ids[i] = course.ID
	}

	if include.Students {
		roster, err := s.repo.StudentsByCourse(ctx, ids)
		if err != nil {
			return nil, err
		}
		for i := range details {
			students := roster[details[i].ID]
			if students == nil {
				students = []models.Student{}
			}
			details[i].Students = &students
		}
	}

	if include.Teachers {
		instructors, err := s.repo.TeachersByCourse(ctx, ids)
		if err != nil {
			return nil, err
		}
		for i := range details {
			teachers := instructors[details[i].ID]
			if teachers == nil {
				teachers = []models.Teacher{}
			}
			details[i].Teachers = &teachers
		}
	}

	return details, nil
}

func (s *CourseService) invalidateListings(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, courseCachePattern); err != nil {
		s.logger.Warn("failed to invalidate course listings", zap.Error(err))
	}
}
