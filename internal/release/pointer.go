package release

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"

	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/xerrors"
)

// SSMAPI is the subset of the SSM API the pointer uses.
type SSMAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
	PutParameter(ctx context.Context, params *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error)
}

// SSMPointer keeps the hash of the current release manifest in an SSM
// parameter so readers can find and pin it.
type SSMPointer struct {
	client SSMAPI
	name   string
}

func NewSSMPointer(client SSMAPI, name string) (*SSMPointer, error) {
	if client == nil {
		return nil, xerrors.New("ssm client is required")
	}
	if strings.TrimSpace(name) == "" {
		return nil, xerrors.New("ssm parameter name is required")
	}
	return &SSMPointer{client: client, name: name}, nil
}

func (p *SSMPointer) Name() string { return p.name }

// Set overwrites the parameter with hash.
func (p *SSMPointer) Set(ctx context.Context, hash string) error {
	_, err := p.client.PutParameter(ctx, &ssm.PutParameterInput{
		Name:      aws.String(p.name),
		Value:     aws.String(hash),
		Type:      ssmtypes.ParameterTypeString,
		Overwrite: aws.Bool(true),
	})
	if err != nil {
		return xerrors.Wrapf(err, "put SSM parameter %s", p.name)
	}
	return nil
}

// Get returns the stored hash.
func (p *SSMPointer) Get(ctx context.Context) (string, error) {
	out, err := p.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(p.name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", xerrors.Wrapf(err, "get SSM parameter %s", p.name)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", xerrors.Newf("SSM parameter %s has no value", p.name)
	}
	hash := strings.TrimSpace(*out.Parameter.Value)
	if hash == "" {
		return "", xerrors.Newf("SSM parameter %s is empty", p.name)
	}
	return hash, nil
}
