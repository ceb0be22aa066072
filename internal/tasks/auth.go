package tasks

import (
	"context"
	"fmt"

	"github.com/desertthunder/immport/internal/models"
	"github.com/desertthunder/immport/internal/secrets"
	"github.com/desertthunder/immport/internal/services"
	"github.com/desertthunder/immport/internal/shared"
)

// AuthSession turns a job's sealed credentials into a [services.TargetClient].
type AuthSession struct {
	jobs   JobStore
	box    *secrets.Box
	target services.TargetFactory
}

// NewAuthSession creates an AuthSession.
func NewAuthSession(jobs JobStore, box *secrets.Box, target services.TargetFactory) *AuthSession {
	return &AuthSession{jobs: jobs, box: box, target: target}
}

// Resolve returns a client for the job's target.
//
// An API key is used as is. For email and password, a token already stored on the job is reused;
// otherwise one login is made and the token is sealed back onto the job for later runs.
// None of these paths touch the network except the login.
func (a *AuthSession) Resolve(ctx context.Context, job *models.Job) (services.TargetClient, error) {
	const op = "auth.resolve"
	if a.box == nil {
		return nil, shared.E(shared.KindInternal, op, shared.ErrMissingCipherKey)
	}
	if a.target == nil {
		return nil, shared.E(shared.KindInternal, op, fmt.Errorf("%w: no target client", shared.ErrServiceUnavailable))
	}

	switch job.AuthMode {
	case models.AuthAPIKey:
		key, err := a.open(job.EncryptedAPIKey)
		if err != nil {
			return nil, err
		}
		return a.target(job.TargetURL, services.Credential{APIKey: key}), nil

	case models.AuthCredentials:
		if job.EncryptedAccessToken != "" {
			token, err := a.open(job.EncryptedAccessToken)
			if err != nil {
				return nil, err
			}
			return a.target(job.TargetURL, services.Credential{AccessToken: token}), nil
		}

		email, err := a.open(job.EncryptedEmail)
		if err != nil {
			return nil, err
		}
		password, err := a.open(job.EncryptedPassword)
		if err != nil {
			return nil, err
		}

		token, err := a.target(job.TargetURL, services.Credential{}).ExchangeToken(ctx, email, password)
		if err != nil {
			return nil, shared.E(shared.KindAuth, op, err)
		}

		sealed, err := a.box.Encrypt(token)
		if err != nil {
			return nil, shared.E(shared.KindInternal, op, err)
		}
		if err := a.jobs.SetAccessToken(ctx, job.ID, sealed); err != nil {
			return nil, shared.E(shared.KindInternal, op, err)
		}
		job.EncryptedAccessToken = sealed
		return a.target(job.TargetURL, services.Credential{AccessToken: token}), nil

	default:
		return nil, shared.E(shared.KindValidation, op, fmt.Errorf("%w: unknown auth mode %q", shared.ErrInvalidInput, job.AuthMode))
	}
}

func (a *AuthSession) open(sealed string) (string, error) {
	if sealed == "" {
		return "", shared.E(shared.KindAuth, "auth.resolve", shared.ErrMissingCredentials)
	}
	plain, err := a.box.Decrypt(sealed)
	if err != nil {
		return "", shared.E(shared.KindAuth, "auth.resolve", fmt.Errorf("%w: %v", shared.ErrInvalidCredentials, err))
	}
	return plain, nil
}
