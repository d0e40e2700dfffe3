package credentials

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/rs/zerolog/log"

	"github.com/fpang/auction-catalog/internal/catalog"
)

// ParameterGetter is the subset of the SSM client used by SSMSource.
type ParameterGetter interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// SSMSource reads a SecureString parameter from SSM Parameter Store.
type SSMSource struct {
	client ParameterGetter
	name   string
}

// NewSSMSource returns a Source for the named parameter.
func NewSSMSource(client ParameterGetter, name string) *SSMSource {
	return &SSMSource{client: client, name: name}
}

// Fetch implements Source. A missing parameter or an empty value maps to
// catalog.ErrSecretNotFound; any other SSM failure is returned wrapped.
func (s *SSMSource) Fetch(ctx context.Context) (string, error) {
	start := time.Now()
	out, err := s.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(s.name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		var notFound *types.ParameterNotFound
		if errors.As(err, &notFound) {
			return "", fmt.Errorf("SSM parameter %s: %w", s.name, catalog.ErrSecretNotFound)
		}
		return "", fmt.Errorf("SSM GetParameter %s: %w", s.name, err)
	}
	if out.Parameter == nil || aws.ToString(out.Parameter.Value) == "" {
		return "", fmt.Errorf("SSM parameter %s has no value: %w", s.name, catalog.ErrSecretNotFound)
	}
	log.Debug().Str("param", s.name).Dur("elapsed", time.Since(start)).Msg("Credential loaded from SSM")
	return aws.ToString(out.Parameter.Value), nil
}
