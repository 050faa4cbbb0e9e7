package domain

// EventKind enumerates the build-server happenings that produce a notification.
type EventKind string

const (
	EventBuildStarted                      EventKind = "build_started"
	EventBuildSuccessful                   EventKind = "build_successful"
	EventBuildFailed                       EventKind = "build_failed"
	EventBuildFailedToStart                EventKind = "build_failed_to_start"
	EventLabelingFailed                    EventKind = "labeling_failed"
	EventBuildFailing                      EventKind = "build_failing"
	EventBuildProbablyHanging              EventKind = "build_probably_hanging"
	EventBuildTypeResponsibilityChanged    EventKind = "build_type_responsibility_changed"
	EventBuildTypeResponsibilityAssigned   EventKind = "build_type_responsibility_assigned"
	EventTestResponsibilityChanged         EventKind = "test_responsibility_changed"
	EventTestResponsibilityAssigned        EventKind = "test_responsibility_assigned"
	EventTestsResponsibilityChanged        EventKind = "tests_responsibility_changed"
	EventTestsResponsibilityAssigned       EventKind = "tests_responsibility_assigned"
	EventBuildProblemsResponsibilityAssign EventKind = "build_problems_responsibility_assigned"
	EventBuildProblemsResponsibilityChange EventKind = "build_problems_responsibility_changed"
	EventTestsMuted                        EventKind = "tests_muted"
	EventTestsUnmuted                      EventKind = "tests_unmuted"
	EventBuildProblemsMuted                EventKind = "build_problems_muted"
	EventBuildProblemsUnmuted              EventKind = "build_problems_unmuted"
)

// BuildSubject identifies a single build run.
type BuildSubject struct {
	FullName    string `json:"fullName"`
	Number      string `json:"number"`
	BuildTypeID string `json:"buildTypeId"`
}

// BuildTypeSubject identifies a build configuration.
type BuildTypeSubject struct {
	FullName   string `json:"fullName"`
	ExternalID string `json:"externalId"`
}

// ProjectSubject identifies a project.
type ProjectSubject struct {
	FullName   string `json:"fullName"`
	ExternalID string `json:"externalId"`
}

// Event is what the build server reports. Only the subject matching Kind is read;
// Count carries the number of tests or problems for the aggregate kinds.
type Event struct {
	Kind       EventKind         `json:"kind"`
	Build      *BuildSubject     `json:"build,omitempty"`
	BuildType  *BuildTypeSubject `json:"buildType,omitempty"`
	Project    *ProjectSubject   `json:"project,omitempty"`
	Count      int               `json:"count,omitempty"`
	Recipients []UserID          `json:"recipients"`
}
