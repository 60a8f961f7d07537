package client

import (
	"context"
	"net/url"

	"github.com/pkg/errors"
	"github.com/sendgrid/rest"
	"github.com/shopspring/decimal"

	"github.com/caffeinepub/diploma-smart-study-hub/core/gallery"
	"github.com/caffeinepub/diploma-smart-study-hub/core/lesson"
	"github.com/caffeinepub/diploma-smart-study-hub/core/profile"
	"github.com/caffeinepub/diploma-smart-study-hub/core/withdrawal"
)

// Profile returns the profile of the session owner.
func (c *Client) Profile(ctx context.Context) (profile.UserProfile, error) {
	var p profile.UserProfile
	return p, c.query(ctx, "/profile", nil, &p)
}

func (c *Client) SaveProfile(ctx context.Context, p profile.UserProfile) (profile.UserProfile, error) {
	var saved profile.UserProfile
	err := c.call(ctx, rest.Put, "/profile", nil, p, &saved)
	return saved, errors.Wrap(err, "saving profile")
}

// Galleries lists the galleries of a category; without access they come locked (no media).
func (c *Client) Galleries(ctx context.Context, filter gallery.CategoryFilter) ([]gallery.Gallery, error) {
	params := make(map[string]string)
	for k, v := range map[string]string{
		"branch":   filter.Branch,
		"semester": filter.Semester,
		"subject":  filter.Subject,
		"chapter":  filter.Chapter,
	} {
		if v != "" {
			params[k] = v
		}
	}
	var galleries []gallery.Gallery
	return galleries, c.query(ctx, "/galleries", params, &galleries)
}

// Gallery is gated: see IsUnauthenticated & IsSubscriptionRequired.
func (c *Client) Gallery(ctx context.Context, id string) (gallery.Gallery, error) {
	var g gallery.Gallery
	return g, c.query(ctx, "/galleries/"+url.PathEscape(id), nil, &g)
}

// Lessons is gated: see IsUnauthenticated & IsSubscriptionRequired.
func (c *Client) Lessons(ctx context.Context, filter lesson.QueryFilter) ([]lesson.Lesson, error) {
	params := make(map[string]string)
	if filter.Branch != "" {
		params["branch"] = filter.Branch
	}
	if filter.Semester != "" {
		params["semester"] = filter.Semester
	}
	if filter.Subject != "" {
		params["subject"] = filter.Subject
	}
	var lessons []lesson.Lesson
	return lessons, c.query(ctx, "/lessons", params, &lessons)
}

func (c *Client) UpdateLessonStatus(ctx context.Context, lessonID, status string) (lesson.Progress, error) {
	var p lesson.Progress
	err := c.call(ctx, rest.Put, "/lessons/"+url.PathEscape(lessonID)+"/status", nil, lesson.StatusUpdate{Status: status}, &p)
	return p, errors.Wrap(err, "updating lesson status")
}

// SubmitWithdrawal requests the withdrawal of amount to the UPI account of phoneNumber.
func (c *Client) SubmitWithdrawal(ctx context.Context, amount decimal.Decimal, phoneNumber string) (withdrawal.Request, error) {
	var req withdrawal.Request
	nr := withdrawal.NewRequest{Amount: &amount, PhoneNumber: phoneNumber}
	err := c.call(ctx, rest.Post, "/withdrawals", nil, nr, &req)
	return req, errors.Wrap(err, "submitting withdrawal")
}

// SupportPhone returns the phone number to contact about withdrawals.
func (c *Client) SupportPhone(ctx context.Context) (string, error) {
	var res struct {
		PhoneNumber string `json:"phoneNumber"`
	}
	return res.PhoneNumber, c.query(ctx, "/withdrawals/contact", nil, &res)
}
