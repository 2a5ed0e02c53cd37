package dto

// UpsertPreferenceRequest stores the caller's default scheduling constraints.
type UpsertPreferenceRequest struct {
	StudyDays     []string    `json:"studyDays" validate:"required,min=1,dive,oneof=Mon Tue Wed Thu Fri Sat Sun"`
	StudyHours    StudyWindow `json:"studyHours"`
	SessionLength int         `json:"sessionLength" validate:"required,min=1"`
	Breaks        int         `json:"breaks" validate:"min=0"`
}

// PreferenceResponse echoes stored preferences in request shape.
type PreferenceResponse struct {
	StudyDays     []string    `json:"studyDays"`
	StudyHours    StudyWindow `json:"studyHours"`
	SessionLength int         `json:"sessionLength"`
	Breaks        int         `json:"breaks"`
}
