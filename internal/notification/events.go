package notification

import (
	"fmt"
	"net/url"

	"github.com/pscheid92/buildnotify/internal/domain"
)

type subjectKind int

const (
	subjectBuild subjectKind = iota
	subjectBuildType
	subjectProject
	subjectMute
)

type eventFormat struct {
	status  string
	counted bool
	icon    domain.Icon
	subject subjectKind
}

var catalogue = map[domain.EventKind]eventFormat{
	domain.EventBuildStarted:         {status: "Build started", icon: domain.IconStarted, subject: subjectBuild},
	domain.EventBuildSuccessful:      {status: "Build successful", icon: domain.IconSuccessful, subject: subjectBuild},
	domain.EventBuildFailed:          {status: "Build failed", icon: domain.IconFailed, subject: subjectBuild},
	domain.EventBuildFailedToStart:   {status: "Build failed to start", icon: domain.IconAborted, subject: subjectBuild},
	domain.EventLabelingFailed:       {status: "Labeling failed", icon: domain.IconAborted, subject: subjectBuild},
	domain.EventBuildFailing:         {status: "Build is failing", icon: domain.IconFailed, subject: subjectBuild},
	domain.EventBuildProbablyHanging: {status: "Build probably hanging", icon: domain.IconHanging, subject: subjectBuild},

	domain.EventBuildTypeResponsibilityChanged:  {status: "Responsibility for configuration changed", icon: domain.IconResponsibilityChanged, subject: subjectBuildType},
	domain.EventBuildTypeResponsibilityAssigned: {status: "You were assigned as responsible for build", icon: domain.IconYouAreResponsible, subject: subjectBuildType},

	domain.EventTestResponsibilityChanged:         {status: "Responsibility for test changed", icon: domain.IconResponsibilityChanged, subject: subjectProject},
	domain.EventTestResponsibilityAssigned:        {status: "You were assigned as responsible for test", icon: domain.IconYouAreResponsible, subject: subjectProject},
	domain.EventTestsResponsibilityChanged:        {status: "Responsibility for %d tests changed", counted: true, icon: domain.IconResponsibilityChanged, subject: subjectProject},
	domain.EventTestsResponsibilityAssigned:       {status: "You were assigned as responsible for %d tests", counted: true, icon: domain.IconYouAreResponsible, subject: subjectProject},
	domain.EventBuildProblemsResponsibilityAssign: {status: "Responsibility for %d build problems is assigned", counted: true, icon: domain.IconResponsibilityChanged, subject: subjectProject},
	domain.EventBuildProblemsResponsibilityChange: {status: "Responsibility for %d build problems is changed", counted: true, icon: domain.IconResponsibilityChanged, subject: subjectProject},

	domain.EventTestsMuted:           {status: "%d tests are muted", counted: true, icon: domain.IconMute, subject: subjectMute},
	domain.EventTestsUnmuted:         {status: "%d tests are unmuted", counted: true, icon: domain.IconUnmute, subject: subjectMute},
	domain.EventBuildProblemsMuted:   {status: "%d problems are muted", counted: true, icon: domain.IconMute, subject: subjectMute},
	domain.EventBuildProblemsUnmuted: {status: "%d problems are unmuted", counted: true, icon: domain.IconUnmute, subject: subjectMute},
}

// Supported reports whether kind has a known message format.
func Supported(kind domain.EventKind) bool {
	_, ok := catalogue[kind]
	return ok
}

// FromEvent formats the message for ev. It fails with ErrUnknownEventKind for kinds
// outside the catalogue and ErrInvalidEvent when the required subject is missing.
func FromEvent(ev domain.Event) (domain.Message, error) {
	f, ok := catalogue[ev.Kind]
	if !ok {
		return domain.Message{}, fmt.Errorf("%w: %q", domain.ErrUnknownEventKind, ev.Kind)
	}

	status := f.status
	if f.counted {
		status = fmt.Sprintf(f.status, ev.Count)
	}

	subject, link, err := describe(f.subject, ev)
	if err != nil {
		return domain.Message{}, fmt.Errorf("%s: %w", ev.Kind, err)
	}
	return Format(status, f.icon, subject, link), nil
}

func describe(kind subjectKind, ev domain.Event) (string, string, error) {
	switch kind {
	case subjectBuild:
		if ev.Build == nil {
			return "", "", fmt.Errorf("%w: build subject required", domain.ErrInvalidEvent)
		}
		return fmt.Sprintf("%s [%s]", ev.Build.FullName, ev.Build.Number), buildTypeURL(ev.Build.BuildTypeID), nil
	case subjectBuildType:
		if ev.BuildType == nil {
			return "", "", fmt.Errorf("%w: build type subject required", domain.ErrInvalidEvent)
		}
		return ev.BuildType.FullName, buildTypeURL(ev.BuildType.ExternalID), nil
	case subjectProject:
		if ev.Project == nil {
			return "", "", fmt.Errorf("%w: project subject required", domain.ErrInvalidEvent)
		}
		return ev.Project.FullName, projectURL(ev.Project.ExternalID), nil
	default:
		if ev.Project == nil {
			return "<unknown>", "/", nil
		}
		return ev.Project.FullName, projectURL(ev.Project.ExternalID), nil
	}
}

func buildTypeURL(id string) string {
	return "/viewType.html?buildTypeId=" + url.QueryEscape(id)
}

func projectURL(id string) string {
	return "/project.html?projectId=" + url.QueryEscape(id)
}
