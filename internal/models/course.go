package models

import (
	"fmt"
	"time"
)

// Course represents one offered course.
type Course struct {
	ID          string    `db:"id" json:"id"`
	Title       string    `db:"title" json:"title"`
	Description string    `db:"description" json:"description"`
	TeacherID   string    `db:"teacher_id" json:"teacher_id"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// CourseDetail is a course with optionally expanded associations. Slice
// pointers distinguish "not requested" (omitted) from "requested but empty"
// (serialised as an empty array).
type CourseDetail struct {
	Course
	Students *[]Student `json:"students,omitempty"`
	Teachers *[]Teacher `json:"teachers,omitempty"`
}

// IncludeSet enumerates the associations a course query may expand.
type IncludeSet struct {
	Students bool
	Teachers bool
}

// Empty reports whether no association expansion was requested.
func (s IncludeSet) Empty() bool {
	return !s.Students && !s.Teachers
}

// CourseFilter captures listing parameters for courses.
type CourseFilter struct {
	Page      int
	PageSize  int
	SortOrder string
	Include   IncludeSet
}

// CacheKey derives a deterministic cache key from the filter.
func (f CourseFilter) CacheKey() string {
	return fmt.Sprintf("courses:list:p%d:s%d:%s:st%t:te%t",
		f.Page, f.PageSize, f.SortOrder, f.Include.Students, f.Include.Teachers)
}

// ListMeta contains pagination metadata returned in list responses.
type ListMeta struct {
	TotalItems int `json:"totalItems"`
	Page       int `json:"page"`
	TotalPages int `json:"totalPages"`
}
