package dto

// CreateCourseRequest adds a course to the caller's roster.
type CreateCourseRequest struct {
	Name         string  `json:"name" validate:"required,max=120"`
	Priority     int     `json:"priority" validate:"required,min=1,max=3"`
	HoursPerWeek float64 `json:"hoursPerWeek" validate:"gte=0,lte=168"`
}

// UpdateCourseRequest mutates an existing course.
type UpdateCourseRequest struct {
	Name         *string  `json:"name" validate:"omitempty,max=120"`
	Priority     *int     `json:"priority" validate:"omitempty,min=1,max=3"`
	HoursPerWeek *float64 `json:"hoursPerWeek" validate:"omitempty,gte=0,lte=168"`
}

// CourseListQuery filters course listings.
type CourseListQuery struct {
	Search   string `form:"search"`
	Page     int    `form:"page"`
	PageSize int    `form:"limit"`
	Sort     string `form:"sort"`
	Order    string `form:"order"`
}
