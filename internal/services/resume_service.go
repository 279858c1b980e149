package services

import (
	"context"
	"errors"
	"strings"

	pgrepo "github.com/yoockh/yoointerview/internal/repositories/postgres"
	"github.com/yoockh/yoointerview/internal/utils"
)

// ResumeService supplies resume context for question generation.
type ResumeService interface {
	// ResumeText returns the stored resume text for userID, or "" when the
	// candidate has no profile.
	ResumeText(ctx context.Context, userID string) (string, error)
}

type resumeService struct {
	profiles pgrepo.ProfileRepository
}

func NewResumeService(profiles pgrepo.ProfileRepository) ResumeService {
	return &resumeService{profiles: profiles}
}

func (s *resumeService) ResumeText(ctx context.Context, userID string) (string, error) {
	const op = "ResumeService.ResumeText"

	if userID == "" {
		return "", utils.E(utils.CodeInvalidArgument, op, "user_id is required", nil)
	}

	p, err := s.profiles.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return "", nil
		}
		return "", utils.E(utils.CodeInternal, op, "failed to load profile", err)
	}

	text := strings.TrimSpace(p.CVText)
	if len(p.Skills) > 0 {
		skills := "Skills: " + strings.Join(p.Skills, ", ")
		if text == "" {
			return skills, nil
		}
		if !strings.Contains(strings.ToLower(text), "skills") {
			text += "\n" + skills
		}
	}
	return text, nil
}
