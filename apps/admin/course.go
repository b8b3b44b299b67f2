package main

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/madrasa/backend/core"
	"github.com/madrasa/backend/core/course"
	"github.com/madrasa/backend/core/principal"
)

// addCourse creates a course owned by the professor registered under profEmail.
func (cli *commandLine) addCourse(profEmail string, nc course.NewCourse) error {
	ctx := context.Background()

	prof, err := cli.principals.GetPrincipalByEmail(ctx, core.CleanString(profEmail, true /* lower */))
	if err != nil {
		if errors.Is(err, principal.ErrNotFound) {
			return errors.Errorf("no principal with email %q", profEmail)
		}
		return err
	}
	if !prof.IsProfessor() {
		return errors.Errorf("%s is a %s, not a professor", prof.Email, prof.Role)
	}

	nc.ProfessorID = prof.ID
	if err = nc.Validate(cli.validate); err != nil {
		return cli.validationError(err)
	}

	now := time.Now().UTC()
	c, err := cli.courses.CreateCourse(ctx, course.Course{
		Title:       nc.Title,
		IsPublished: nc.IsPublished,
		Pricing:     nc.Pricing(cli.conf.Payments.DefaultCurrency),
		ProfessorID: nc.ProfessorID,
		LessonCount: nc.LessonCount,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "created course %q (%s): %s\n", c.Title, c.Pricing, c.ID)
	return nil
}

func (cli *commandLine) publish(courseID string, published bool) error {
	if err := cli.courses.SetPublished(context.Background(), courseID, published); err != nil {
		return err
	}
	state := "published"
	if !published {
		state = "unpublished"
	}
	fmt.Fprintf(cli.out, "course %s %s\n", courseID, state)
	return nil
}
