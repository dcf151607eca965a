package taskrunner

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// ParameterAPI is the subset of the SSM client used to resolve infra values.
type ParameterAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// IdentityAPI is the subset of the STS client used to resolve the account.
type IdentityAPI interface {
	GetCallerIdentity(ctx context.Context, in *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// InfraParams are the network and database settings a task needs. They are
// resolved once per invocation.
type InfraParams struct {
	SubnetA       string
	SubnetC       string
	SecurityGroup string
	DBHost        string
	DBName        string
	DBUser        string
	DBPassword    string
}

// LoadInfraParams reads the per-environment parameters from SSM.
func LoadInfraParams(ctx context.Context, api ParameterAPI, env string) (InfraParams, error) {
	common := fmt.Sprintf("/study01/%s/common/aws", env)
	db := fmt.Sprintf("/study01/%s/app/db", env)

	var p InfraParams
	targets := []struct {
		name    string
		decrypt bool
		dst     *string
	}{
		{common + "/subnet/public_1a", false, &p.SubnetA},
		{common + "/subnet/public_1c", false, &p.SubnetC},
		{common + "/security_group/common", false, &p.SecurityGroup},
		{db + "/host", false, &p.DBHost},
		{db + "/name", false, &p.DBName},
		{db + "/username", false, &p.DBUser},
		{db + "/password", true, &p.DBPassword},
	}
	for _, t := range targets {
		out, err := api.GetParameter(ctx, &ssm.GetParameterInput{
			Name:           aws.String(t.name),
			WithDecryption: aws.Bool(t.decrypt),
		})
		if err != nil {
			return InfraParams{}, newOrchestratorError("GetParameter "+t.name, "", "", err)
		}
		if out.Parameter == nil || out.Parameter.Value == nil {
			return InfraParams{}, fmt.Errorf("parameter %s has no value", t.name)
		}
		*t.dst = *out.Parameter.Value
	}
	return p, nil
}

// ResolveAccountID returns the account of the calling identity.
func ResolveAccountID(ctx context.Context, api IdentityAPI) (string, error) {
	out, err := api.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", newOrchestratorError("GetCallerIdentity", "", "", err)
	}
	account := aws.ToString(out.Account)
	if account == "" {
		return "", errors.New("caller identity has no account id")
	}
	return account, nil
}
