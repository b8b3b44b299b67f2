package main

import (
	"context"
	"fmt"
	"time"

	"github.com/madrasa/backend/core/principal"
)

// addPrincipal creates an active principal.
func (cli *commandLine) addPrincipal(np principal.NewPrincipal) error {
	if err := np.Validate(cli.validate); err != nil {
		return cli.validationError(err)
	}

	now := time.Now().UTC()
	p, err := cli.principals.CreatePrincipal(context.Background(), principal.Principal{
		Name:      np.Name,
		Email:     np.Email,
		Role:      np.Role,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "created %s %s <%s>: %s\n", p.Role, p.Name, p.Email, p.ID)
	return nil
}
