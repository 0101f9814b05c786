package task

import (
	"strings"
	"time"

	"github.com/rpggio/taskflow/internal/validation"
)

// ValidateCreate checks creation inputs against now.
func ValidateCreate(req CreateRequest, now time.Time) error {
	if !validation.TaskTitle(req.Title) {
		return validation.Fail("title", "must be between 1 and 200 characters")
	}
	if req.Description != "" && !validation.TaskDescription(req.Description) {
		return validation.Fail("description", "must be at most 2000 characters")
	}
	if req.Priority != "" && !validation.Priority(req.Priority) {
		return validation.Fail("priority", "must be low, medium, or high")
	}
	if req.DueDate != nil && !validation.DueDate(*req.DueDate, now) {
		return validation.Fail("due_date", "must be in the future")
	}
	return nil
}

// ValidateUpdate checks the fields present in req against now.
func ValidateUpdate(req UpdateRequest, now time.Time) error {
	if strings.TrimSpace(req.ID) == "" {
		return validation.Fail("id", "is required")
	}
	if req.Title != nil && !validation.TaskTitle(*req.Title) {
		return validation.Fail("title", "must be between 1 and 200 characters")
	}
	if req.Description != nil && !validation.TaskDescription(*req.Description) {
		return validation.Fail("description", "must be at most 2000 characters")
	}
	if req.Priority != nil && *req.Priority != "" && !validation.Priority(*req.Priority) {
		return validation.Fail("priority", "must be low, medium, or high")
	}
	if !req.ClearDueDate && req.DueDate != nil && !validation.DueDate(*req.DueDate, now) {
		return validation.Fail("due_date", "must be in the future")
	}
	return nil
}
