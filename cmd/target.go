package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/immport/internal/services"
	"github.com/desertthunder/immport/internal/shared"
	"github.com/urfave/cli/v3"
)

// TargetWhoami checks credentials against the target server and prints the authenticated user.
//
// Email and password are exchanged for a session token first; the token is not stored.
func (r *Runner) TargetWhoami(ctx context.Context, cmd *cli.Command) error {
	baseURL := cmd.String("target")
	factory := r.target
	if factory == nil {
		factory = services.NewImmichTarget(r.targetClient)
	}

	var cred services.Credential
	switch {
	case cmd.String("api-key") != "":
		cred.APIKey = cmd.String("api-key")
	case cmd.String("email") != "" && cmd.String("password") != "":
		token, err := factory(baseURL, services.Credential{}).ExchangeToken(ctx, cmd.String("email"), cmd.String("password"))
		if err != nil {
			return err
		}
		cred.AccessToken = token
	default:
		return fmt.Errorf("%w: --api-key or --email and --password", shared.ErrMissingCredentials)
	}

	user, err := factory(baseURL, cred).Identity(ctx)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(user, false)
	}
	r.writePlain("%s Authenticated as %s <%s>\n", palette.OK("✓"), user.Name, user.Email)
	r.writePlain("  User ID: %s\n", user.ID)
	return nil
}
